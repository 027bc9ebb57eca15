package utils

import (
	"fmt"
	"strings"
)

// MySQL stores SRID 4326 geometries in lat/lon axis order, while GeoJSON
// coordinates come as [lon, lat]. All converters below emit "lat lon" pairs.

// PointWKT returns the WKT for a single coordinate.
func PointWKT(lat, lon float64) string {
	return fmt.Sprintf("POINT(%g %g)", lat, lon)
}

// LineStringWKT converts GeoJSON [lon, lat] pairs to a WKT linestring.
func LineStringWKT(points [][2]float64) (string, error) {
	if len(points) < 2 {
		return "", fmt.Errorf("linestring needs at least 2 points, got %d", len(points))
	}
	pairs := make([]string, len(points))
	for i, p := range points {
		pairs[i] = fmt.Sprintf("%g %g", p[1], p[0])
	}
	return fmt.Sprintf("LINESTRING(%s)", strings.Join(pairs, ",")), nil
}

// PolygonWKT converts GeoJSON polygon rings to a WKT polygon.
func PolygonWKT(rings [][][]float64) (string, error) {
	if len(rings) == 0 {
		return "", fmt.Errorf("empty polygon coordinates")
	}
	return fmt.Sprintf("POLYGON(%s)", innerWKT(rings)), nil
}

// MultiPolygonWKT converts GeoJSON multi-polygon coordinates to WKT.
func MultiPolygonWKT(polys [][][][]float64) (string, error) {
	if len(polys) == 0 {
		return "", fmt.Errorf("empty multi-polygon coordinates")
	}
	parts := make([]string, len(polys))
	for i, poly := range polys {
		if len(poly) == 0 {
			return "", fmt.Errorf("empty polygon %d in multi-polygon", i)
		}
		parts[i] = fmt.Sprintf("(%s)", innerWKT(poly))
	}
	return fmt.Sprintf("MULTIPOLYGON(%s)", strings.Join(parts, ",")), nil
}

// ViewPortWKT returns the WKT polygon covering a viewport box.
func ViewPortWKT(latMin, lonMin, latMax, lonMax float64) string {
	return fmt.Sprintf("POLYGON((%g %g,%g %g,%g %g,%g %g,%g %g))",
		latMin, lonMin,
		latMin, lonMax,
		latMax, lonMax,
		latMax, lonMin,
		latMin, lonMin)
}

func innerWKT(poly [][][]float64) string {
	wktLoops := make([]string, len(poly))
	for i, loop := range poly {
		pairs := make([]string, len(loop))
		for j, point := range loop {
			pairs[j] = fmt.Sprintf("%g %g", point[1], point[0])
		}
		wktLoops[i] = fmt.Sprintf("(%s)", strings.Join(pairs, ","))
	}
	return strings.Join(wktLoops, ",")
}

package geo

import (
	"github.com/golang/geo/s2"

	"santiago-a-pie/models"
)

const earthRadiusM = 6371010.0

// DistanceM returns the great-circle distance between two points in meters.
func DistanceM(a, b models.Point) float64 {
	la := s2.LatLngFromDegrees(a.Lat, a.Lon)
	lb := s2.LatLngFromDegrees(b.Lat, b.Lon)
	return la.Distance(lb).Radians() * earthRadiusM
}

// PolylineLengthM returns the length of a GeoJSON [lon, lat] polyline in meters.
func PolylineLengthM(points [][2]float64) float64 {
	total := 0.0
	for i := 1; i < len(points); i++ {
		total += DistanceM(
			models.Point{Lat: points[i-1][1], Lon: points[i-1][0]},
			models.Point{Lat: points[i][1], Lon: points[i][0]},
		)
	}
	return total
}

// DistanceToPolylineM returns the distance in meters from p to the closest
// position on the polyline.
func DistanceToPolylineM(p models.Point, points [][2]float64) float64 {
	if len(points) == 0 {
		return earthRadiusM
	}
	pt := s2.PointFromLatLng(s2.LatLngFromDegrees(p.Lat, p.Lon))
	if len(points) == 1 {
		q := s2.PointFromLatLng(s2.LatLngFromDegrees(points[0][1], points[0][0]))
		return pt.Distance(q).Radians() * earthRadiusM
	}

	best := s1ChordAngleInf
	for i := 1; i < len(points); i++ {
		a := s2.PointFromLatLng(s2.LatLngFromDegrees(points[i-1][1], points[i-1][0]))
		b := s2.PointFromLatLng(s2.LatLngFromDegrees(points[i][1], points[i][0]))
		d := s2.DistanceFromSegment(pt, a, b).Radians()
		if d < best {
			best = d
		}
	}
	return best * earthRadiusM
}

const s1ChordAngleInf = 1e18

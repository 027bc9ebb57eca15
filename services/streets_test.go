package services

import (
	"testing"

	geojson "github.com/paulmach/go.geojson"
)

func TestParseSegmentFeature(t *testing.T) {
	feature := geojson.NewLineStringFeature([][]float64{
		{-70.651, -33.4365},
		{-70.647, -33.4363},
	})
	feature.SetProperty("id", 7)
	feature.SetProperty("name", "Calle Monjitas")
	feature.SetProperty("comuna", "Santiago")
	feature.SetProperty("osm_id", 123456)

	segment, err := ParseSegmentFeature(feature, 99)
	if err != nil {
		t.Fatalf("ParseSegmentFeature: %v", err)
	}

	if segment.ID != 7 {
		t.Errorf("ID: got %d, want 7", segment.ID)
	}
	if segment.Name != "Calle Monjitas" || segment.Comuna != "Santiago" {
		t.Errorf("Properties lost: %+v", segment)
	}
	if segment.OSMID != 123456 {
		t.Errorf("OSMID: got %d, want 123456", segment.OSMID)
	}
	if len(segment.Points) != 2 {
		t.Fatalf("Points: got %d, want 2", len(segment.Points))
	}
	// GeoJSON order preserved: lon first.
	if segment.Points[0][0] != -70.651 || segment.Points[0][1] != -33.4365 {
		t.Errorf("Point order wrong: %v", segment.Points[0])
	}
	if segment.LengthM < 300 || segment.LengthM > 450 {
		t.Errorf("LengthM: got %f, want ~370m", segment.LengthM)
	}
}

func TestParseSegmentFeatureFallbackID(t *testing.T) {
	feature := geojson.NewLineStringFeature([][]float64{
		{-70.651, -33.4365},
		{-70.647, -33.4363},
	})

	segment, err := ParseSegmentFeature(feature, 42)
	if err != nil {
		t.Fatalf("ParseSegmentFeature: %v", err)
	}
	if segment.ID != 42 {
		t.Errorf("Fallback ID: got %d, want 42", segment.ID)
	}
}

func TestParseSegmentFeatureRejectsBadGeometry(t *testing.T) {
	testCases := []struct {
		name    string
		feature *geojson.Feature
	}{
		{
			name:    "point geometry",
			feature: geojson.NewPointFeature([]float64{-70.65, -33.44}),
		},
		{
			name:    "single point linestring",
			feature: geojson.NewLineStringFeature([][]float64{{-70.65, -33.44}}),
		},
		{
			name: "degenerate coordinate",
			feature: geojson.NewLineStringFeature([][]float64{
				{-70.65, -33.44},
				{-70.64},
			}),
		},
	}

	for _, tc := range testCases {
		if _, err := ParseSegmentFeature(tc.feature, 1); err == nil {
			t.Errorf("%s: expected an error", tc.name)
		}
	}
}

func TestParseComunaFeature(t *testing.T) {
	polygon := geojson.NewPolygonFeature([][][]float64{
		{
			{-70.70, -33.47},
			{-70.60, -33.47},
			{-70.60, -33.40},
			{-70.70, -33.47},
		},
	})
	polygon.SetProperty("name", "Santiago")
	polygon.SetProperty("osm_id", 555)

	comuna, err := parseComunaFeature(polygon)
	if err != nil {
		t.Fatalf("parseComunaFeature: %v", err)
	}
	if comuna.Name != "Santiago" || comuna.OSMID != 555 {
		t.Errorf("Unexpected comuna: %+v", comuna)
	}

	// Name is required.
	unnamed := geojson.NewPolygonFeature([][][]float64{
		{
			{-70.70, -33.47},
			{-70.60, -33.47},
			{-70.70, -33.47},
		},
	})
	if _, err := parseComunaFeature(unnamed); err == nil {
		t.Error("Expected an error for an unnamed comuna")
	}

	// Only polygonal geometries are accepted.
	line := geojson.NewLineStringFeature([][]float64{{-70.65, -33.44}, {-70.64, -33.44}})
	line.SetProperty("name", "Linea")
	if _, err := parseComunaFeature(line); err == nil {
		t.Error("Expected an error for a non-polygon comuna")
	}
}

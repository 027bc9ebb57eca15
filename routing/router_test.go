package routing

import (
	"testing"

	"santiago-a-pie/geo"
	"santiago-a-pie/models"
)

// A small street grid near Plaza de Armas:
//
//	A --1-- B --2-- C      direct path, ~370m
//	 \             /
//	  3           4        southern detour, ~580m
//	   \         /
//	    D-------+
//
// Plus an isolated segment several km away.
var (
	nodeA = [2]float64{-70.6500, -33.4400}
	nodeB = [2]float64{-70.6480, -33.4400}
	nodeC = [2]float64{-70.6460, -33.4400}
	nodeD = [2]float64{-70.6480, -33.4420}
)

func gridSegments() []models.Segment {
	return []models.Segment{
		{ID: 1, Name: "Norte poniente", Points: [][2]float64{nodeA, nodeB}},
		{ID: 2, Name: "Norte oriente", Points: [][2]float64{nodeB, nodeC}},
		{ID: 3, Name: "Bajada", Points: [][2]float64{nodeA, nodeD}},
		{ID: 4, Name: "Subida", Points: [][2]float64{nodeD, nodeC}},
		{ID: 5, Name: "Aislada", Points: [][2]float64{
			{-70.6000, -33.4000},
			{-70.5980, -33.4000},
		}},
	}
}

func scoreMap(values map[int64]float64) map[int64]models.SegmentScore {
	scores := make(map[int64]models.SegmentScore, len(values))
	for id, v := range values {
		scores[id] = models.SegmentScore{SegmentID: id, Score: v}
	}
	return scores
}

func TestGraphConstruction(t *testing.T) {
	g := NewGraph(gridSegments())

	// A, B, C, D plus the two isolated endpoints.
	if g.NodeCount() != 6 {
		t.Errorf("NodeCount: got %d, want 6", g.NodeCount())
	}
	if g.SegmentCount() != 5 {
		t.Errorf("SegmentCount: got %d, want 5", g.SegmentCount())
	}
}

func TestSafestRouteNeutralTakesShortest(t *testing.T) {
	g := NewGraph(gridSegments())

	route, err := g.SafestRoute(
		models.Point{Lat: nodeA[1], Lon: nodeA[0]},
		models.Point{Lat: nodeC[1], Lon: nodeC[0]})
	if err != nil {
		t.Fatalf("SafestRoute: %v", err)
	}

	if len(route.SegmentIDs) != 2 || route.SegmentIDs[0] != 1 || route.SegmentIDs[1] != 2 {
		t.Errorf("Expected direct route [1 2], got %v", route.SegmentIDs)
	}
	if route.LengthM < 300 || route.LengthM > 450 {
		t.Errorf("Direct route length: got %f, want ~370m", route.LengthM)
	}
	if route.Score != NeutralScore {
		t.Errorf("Unscored route score: got %f, want %f", route.Score, NeutralScore)
	}
	if route.Geometry == nil || !route.Geometry.IsLineString() {
		t.Fatal("Route geometry must be a LineString")
	}
	if len(route.Geometry.LineString) != 3 {
		t.Errorf("Route polyline: got %d points, want 3", len(route.Geometry.LineString))
	}
}

func TestSafestRouteAvoidsBadSegments(t *testing.T) {
	g := NewGraph(gridSegments())
	g.UpdateScores(scoreMap(map[int64]float64{
		1: 0, 2: 0, // direct path perceived dangerous
		3: 100, 4: 100, // detour perceived safe
	}))

	route, err := g.SafestRoute(
		models.Point{Lat: nodeA[1], Lon: nodeA[0]},
		models.Point{Lat: nodeC[1], Lon: nodeC[0]})
	if err != nil {
		t.Fatalf("SafestRoute: %v", err)
	}

	if len(route.SegmentIDs) != 2 || route.SegmentIDs[0] != 3 || route.SegmentIDs[1] != 4 {
		t.Errorf("Expected detour [3 4], got %v", route.SegmentIDs)
	}
	if route.Score != 100 {
		t.Errorf("Detour score: got %f, want 100", route.Score)
	}
	if route.LengthM <= 450 {
		t.Errorf("Detour must be longer than the direct path, got %f", route.LengthM)
	}
}

func TestSafestRouteSamePoint(t *testing.T) {
	g := NewGraph(gridSegments())

	route, err := g.SafestRoute(
		models.Point{Lat: nodeA[1], Lon: nodeA[0]},
		models.Point{Lat: nodeA[1], Lon: nodeA[0]})
	if err != nil {
		t.Fatalf("SafestRoute: %v", err)
	}
	if len(route.SegmentIDs) != 0 || route.LengthM != 0 {
		t.Errorf("Same-point route should be empty, got %+v", route)
	}
}

func TestSafestRouteDisconnected(t *testing.T) {
	g := NewGraph(gridSegments())

	// The isolated segment cannot be reached from the grid.
	_, err := g.SafestRoute(
		models.Point{Lat: nodeA[1], Lon: nodeA[0]},
		models.Point{Lat: -33.4000, Lon: -70.6000})
	if err == nil {
		t.Error("Expected an error for a disconnected destination")
	}
}

func TestSafestRouteNoSnapCandidate(t *testing.T) {
	g := NewGraph(gridSegments())

	// Tens of kilometers away from every street.
	_, err := g.SafestRoute(
		models.Point{Lat: -33.0, Lon: -71.5},
		models.Point{Lat: nodeC[1], Lon: nodeC[0]})
	if err == nil {
		t.Error("Expected an error when no street is within snapping range")
	}
}

func TestScoreRoute(t *testing.T) {
	g := NewGraph(gridSegments())
	g.UpdateScores(scoreMap(map[int64]float64{1: 20, 2: 80}))

	idx := geo.NewSegmentIndex()
	for _, s := range gridSegments() {
		idx.Add(s)
	}

	// Walk straight along segments 1 then 2.
	points := []models.Point{
		{Lat: nodeA[1], Lon: nodeA[0]},
		{Lat: nodeB[1], Lon: nodeB[0]},
		{Lat: nodeC[1], Lon: nodeC[0]},
	}
	resp, err := g.ScoreRoute(points, idx)
	if err != nil {
		t.Fatalf("ScoreRoute: %v", err)
	}

	if len(resp.SegmentIDs) != 2 {
		t.Errorf("Matched segments: got %v, want 2 segments", resp.SegmentIDs)
	}
	// Legs are about equal length so the score sits near the middle.
	if resp.Score < 40 || resp.Score > 60 {
		t.Errorf("Route score: got %f, want ~50", resp.Score)
	}
	if resp.LengthM < 300 || resp.LengthM > 450 {
		t.Errorf("Route length: got %f, want ~370m", resp.LengthM)
	}
}

func TestScoreRouteTooFewPoints(t *testing.T) {
	g := NewGraph(gridSegments())
	idx := geo.NewSegmentIndex()

	if _, err := g.ScoreRoute([]models.Point{{Lat: -33.44, Lon: -70.65}}, idx); err == nil {
		t.Error("Expected an error for a single-point route")
	}
}

func TestRiskFactor(t *testing.T) {
	if f := riskFactor(100); f != 1.0 {
		t.Errorf("riskFactor(100): got %f, want 1", f)
	}
	if f := riskFactor(0); f != 1.0+riskWeight {
		t.Errorf("riskFactor(0): got %f, want %f", f, 1.0+riskWeight)
	}
	if f := riskFactor(50); f <= 1.0 || f >= 1.0+riskWeight {
		t.Errorf("riskFactor(50) out of range: %f", f)
	}
	// Out-of-range scores clamp.
	if riskFactor(-10) != riskFactor(0) || riskFactor(110) != riskFactor(100) {
		t.Error("riskFactor must clamp scores to 0..100")
	}
}

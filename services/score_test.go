package services

import (
	"database/sql"
	"testing"
	"time"

	"santiago-a-pie/database"
	"santiago-a-pie/models"
)

const testHalfLife = 30 * 24 * time.Hour

func scoringInput(segID int64, comunaID int64, category string, severity int, age time.Duration, now time.Time) database.ScoringInput {
	in := database.ScoringInput{
		SegmentID: segID,
		Category:  category,
		Severity:  severity,
		Timestamp: now.Add(-age),
	}
	if comunaID > 0 {
		in.ComunaID = sql.NullInt64{Int64: comunaID, Valid: true}
	}
	return in
}

func TestComputeSegmentScores(t *testing.T) {
	now := time.Now()

	inputs := []database.ScoringInput{
		scoringInput(1, 10, models.CategoryCrime, 5, 0, now),
		scoringInput(2, 10, models.CategoryCrime, 1, 0, now),
	}

	scores := ComputeSegmentScores(inputs, testHalfLife, now)

	if len(scores) != 2 {
		t.Fatalf("Expected scores for 2 segments, got %d", len(scores))
	}

	severe := scores[1]
	mild := scores[2]

	if severe.Score >= NeutralScore {
		t.Errorf("Severe crime segment score %f should be below neutral %f", severe.Score, NeutralScore)
	}
	if mild.Score <= NeutralScore {
		t.Errorf("Mild report segment score %f should be above neutral %f", mild.Score, NeutralScore)
	}
	if severe.ReportCount != 1 || mild.ReportCount != 1 {
		t.Errorf("Report counts: got %d/%d, want 1/1", severe.ReportCount, mild.ReportCount)
	}
}

func TestComputeSegmentScoresDecay(t *testing.T) {
	now := time.Now()

	fresh := ComputeSegmentScores([]database.ScoringInput{
		scoringInput(1, 0, models.CategoryCrime, 5, 0, now),
	}, testHalfLife, now)
	old := ComputeSegmentScores([]database.ScoringInput{
		scoringInput(1, 0, models.CategoryCrime, 5, 2*testHalfLife, now),
	}, testHalfLife, now)

	// An aged report carries less weight, so the blended score sits closer
	// to neutral.
	if old[1].Score <= fresh[1].Score {
		t.Errorf("Old report score %f should be closer to neutral than fresh %f",
			old[1].Score, fresh[1].Score)
	}
	if old[1].Score >= NeutralScore {
		t.Errorf("Old severe report should still pull below neutral, got %f", old[1].Score)
	}
}

func TestComputeSegmentScoresCategoryWeight(t *testing.T) {
	now := time.Now()

	crime := ComputeSegmentScores([]database.ScoringInput{
		scoringInput(1, 0, models.CategoryCrime, 4, 0, now),
	}, testHalfLife, now)
	dog := ComputeSegmentScores([]database.ScoringInput{
		scoringInput(1, 0, models.CategoryDog, 4, 0, now),
	}, testHalfLife, now)

	if crime[1].Score >= dog[1].Score {
		t.Errorf("Crime (%f) should weigh heavier than stray dog (%f)", crime[1].Score, dog[1].Score)
	}
}

func TestComputeComunaScoresLengthWeighted(t *testing.T) {
	now := time.Now()

	// A long calm avenue and a short troubled alley in the same comuna.
	segments := []models.Segment{
		{ID: 1, Comuna: "Santiago", LengthM: 2000},
		{ID: 2, Comuna: "Santiago", LengthM: 50},
	}
	comunaIDs := map[string]int64{"Santiago": 10}

	inputs := []database.ScoringInput{
		scoringInput(1, 10, models.CategoryCrime, 1, 0, now),
		scoringInput(2, 10, models.CategoryCrime, 5, 0, now),
	}
	segScores := ComputeSegmentScores(inputs, testHalfLife, now)

	scores := ComputeComunaScores(segments, segScores, comunaIDs, inputs)
	if len(scores) != 1 {
		t.Fatalf("Expected 1 comuna score, got %d", len(scores))
	}

	// Segment scores land at 66.67 and 33.33; the 2000m segment dominates:
	// (2000*66.67 + 50*33.33) / 2050 = 65.85.
	if got := scores[0].Score; got < 65.8 || got > 65.9 {
		t.Errorf("Length-weighted comuna score: got %f, want ~65.85", got)
	}
	if scores[0].ReportCount != 2 {
		t.Errorf("Report count: got %d, want 2", scores[0].ReportCount)
	}
}

func TestComputeComunaScoresStats(t *testing.T) {
	now := time.Now()

	segments := []models.Segment{
		{ID: 1, Comuna: "Santiago", LengthM: 500},
		{ID: 3, Comuna: "Providencia", LengthM: 800},
		// Segment of a comuna missing from the polygon set, skipped.
		{ID: 5, Comuna: "Desconocida", LengthM: 100},
	}
	comunaIDs := map[string]int64{"Santiago": 10, "Providencia": 20}

	inputs := []database.ScoringInput{
		scoringInput(1, 10, models.CategoryCrime, 5, 0, now),
		scoringInput(1, 10, models.CategoryCrime, 5, 0, now),
		scoringInput(3, 20, models.CategoryOther, 1, 0, now),
		// No comuna assignment, must be ignored.
		scoringInput(4, 0, models.CategoryCrime, 5, 0, now),
	}
	segScores := ComputeSegmentScores(inputs, testHalfLife, now)

	scores := ComputeComunaScores(segments, segScores, comunaIDs, inputs)
	if len(scores) != 2 {
		t.Fatalf("Expected 2 comuna scores, got %d", len(scores))
	}

	// Sorted by comuna id.
	if scores[0].ComunaID != 10 || scores[1].ComunaID != 20 {
		t.Fatalf("Unexpected comuna order: %d, %d", scores[0].ComunaID, scores[1].ComunaID)
	}
	if scores[0].Score >= scores[1].Score {
		t.Errorf("Crime-heavy comuna (%f) should score below quiet one (%f)",
			scores[0].Score, scores[1].Score)
	}
	if scores[0].ReportCount != 2 || scores[1].ReportCount != 1 {
		t.Errorf("Report counts: got %d/%d, want 2/1", scores[0].ReportCount, scores[1].ReportCount)
	}
	// Median of counts {2, 1} is 1.5.
	if scores[0].ReportMedian != 1.5 {
		t.Errorf("Report median: got %f, want 1.5", scores[0].ReportMedian)
	}
}

func TestComputeComunaScoresUnscoredSegmentsStayNeutral(t *testing.T) {
	segments := []models.Segment{
		{ID: 1, Comuna: "Santiago", LengthM: 300},
		{ID: 2, Comuna: "Santiago", LengthM: 700},
	}
	comunaIDs := map[string]int64{"Santiago": 10}

	scores := ComputeComunaScores(segments, nil, comunaIDs, nil)
	if len(scores) != 1 {
		t.Fatalf("Expected 1 comuna score, got %d", len(scores))
	}
	if scores[0].Score != NeutralScore {
		t.Errorf("Comuna without scored segments: got %f, want %f", scores[0].Score, NeutralScore)
	}
	if scores[0].ReportCount != 0 {
		t.Errorf("Report count: got %d, want 0", scores[0].ReportCount)
	}
}

func TestBlendedScore(t *testing.T) {
	if s := blendedScore(0, 0); s != NeutralScore {
		t.Errorf("No evidence: got %f, want %f", s, NeutralScore)
	}

	// Low-evidence scores stay near neutral, heavy evidence moves further.
	light := blendedScore(5*0.1, 0.1)
	heavy := blendedScore(5*10, 10)
	if light < heavy {
		t.Errorf("Light evidence (%f) should stay closer to neutral than heavy (%f)", light, heavy)
	}
	if heavy > 15 {
		t.Errorf("Heavy severe evidence should push score near 0, got %f", heavy)
	}
}

func TestMedianOfInts(t *testing.T) {
	testCases := []struct {
		name   string
		values []int
		want   float64
	}{
		{"empty", nil, 0},
		{"single", []int{7}, 7},
		{"odd", []int{3, 1, 2}, 2},
		{"even", []int{4, 1, 3, 2}, 2.5},
	}
	for _, tc := range testCases {
		if got := medianOfInts(tc.values); got != tc.want {
			t.Errorf("%s: got %f, want %f", tc.name, got, tc.want)
		}
	}
}

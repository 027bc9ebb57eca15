package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/apex/log"

	"santiago-a-pie/config"
	"santiago-a-pie/database"
	"santiago-a-pie/metrics"
	"santiago-a-pie/models"
)

// Score scale: 0 means avoid, 100 means perceived safe. Segments without
// recent reports sit at the neutral midpoint.
const (
	NeutralScore = 50.0
	MaxSeverity  = 5.0

	// priorWeight pulls sparsely reported segments toward the neutral
	// score so one old report cannot dominate a segment.
	priorWeight = 2.0
)

// categoryWeights express how strongly each category shapes perceived
// safety. Personal-security categories outweigh infrastructure ones.
var categoryWeights = map[string]float64{
	models.CategoryHarassment:   1.0,
	models.CategoryCrime:        1.0,
	models.CategoryPoorLighting: 0.7,
	models.CategoryBrokenPath:   0.5,
	models.CategoryTraffic:      0.6,
	models.CategoryDog:          0.4,
	models.CategoryOther:        0.3,
}

// ScoreService recomputes segment and comuna perception scores.
type ScoreService struct {
	cfg     *config.Config
	db      *database.Database
	streets *StreetsService

	stopChan chan struct{}
	doneChan chan struct{}
}

// NewScoreService creates the scoring service.
func NewScoreService(cfg *config.Config, db *database.Database, streets *StreetsService) *ScoreService {
	return &ScoreService{
		cfg:      cfg,
		db:       db,
		streets:  streets,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Start runs the periodic recompute loop until Stop is called.
func (s *ScoreService) Start(onRecompute func([]models.ComunaScore)) {
	go func() {
		defer close(s.doneChan)
		ticker := time.NewTicker(s.cfg.RecomputeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stopChan:
				return
			case <-ticker.C:
				scores, err := s.Recompute(context.Background())
				if err != nil {
					log.Errorf("Score recompute failed: %v", err)
					continue
				}
				if onRecompute != nil {
					onRecompute(scores)
				}
			}
		}
	}()
}

// Stop stops the recompute loop.
func (s *ScoreService) Stop() {
	close(s.stopChan)
	<-s.doneChan
}

// Recompute rebuilds every segment and comuna score from the recent reports
// and persists them. Returns the fresh comuna scores.
func (s *ScoreService) Recompute(ctx context.Context) ([]models.ComunaScore, error) {
	start := time.Now()

	cutoff := start.Add(-4 * s.cfg.ScoreHalfLife)
	inputs, err := s.db.GetReportsForScoring(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to load reports for scoring: %w", err)
	}

	segScores := ComputeSegmentScores(inputs, s.cfg.ScoreHalfLife, start)

	// Every indexed segment gets a row, so renderers and routers never
	// miss a score.
	for _, segment := range s.streets.Index().All() {
		if _, ok := segScores[segment.ID]; !ok {
			segScores[segment.ID] = models.SegmentScore{
				SegmentID: segment.ID,
				Score:     NeutralScore,
			}
		}
	}

	for _, score := range segScores {
		score := score
		if err := s.db.UpsertSegmentScore(ctx, &score); err != nil {
			return nil, err
		}
	}

	comunas, err := s.db.GetComunas(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load comunas for scoring: %w", err)
	}
	comunaIDs := make(map[string]int64, len(comunas))
	for _, c := range comunas {
		comunaIDs[c.Name] = c.ID
	}

	comunaScores := ComputeComunaScores(s.streets.Index().All(), segScores, comunaIDs, inputs)
	for i := range comunaScores {
		if err := s.db.UpsertComunaScore(ctx, &comunaScores[i]); err != nil {
			return nil, err
		}
	}

	elapsed := time.Since(start)
	metrics.ScoreRecomputeDurationSeconds.Observe(elapsed.Seconds())
	log.Infof("Recomputed %d segment and %d comuna scores from %d reports in %s",
		len(segScores), len(comunaScores), len(inputs), elapsed)

	fresh, err := s.db.GetComunaScores(ctx)
	if err != nil {
		return nil, err
	}
	return fresh, nil
}

// ComputeSegmentScores derives a perception score per segment from the
// reports. Report weight decays exponentially with age at the configured
// half-life and is shaped by the category weight.
func ComputeSegmentScores(inputs []database.ScoringInput, halfLife time.Duration, now time.Time) map[int64]models.SegmentScore {
	type accum struct {
		weightSum   float64
		weightedSev float64
		count       int
	}
	acc := map[int64]*accum{}

	for _, in := range inputs {
		w := reportWeight(in, halfLife, now)
		if w <= 0 {
			continue
		}
		a, ok := acc[in.SegmentID]
		if !ok {
			a = &accum{}
			acc[in.SegmentID] = a
		}
		a.weightSum += w
		a.weightedSev += w * float64(in.Severity)
		a.count++
	}

	scores := make(map[int64]models.SegmentScore, len(acc))
	for segID, a := range acc {
		scores[segID] = models.SegmentScore{
			SegmentID:   segID,
			Score:       blendedScore(a.weightedSev, a.weightSum),
			ReportCount: a.count,
		}
	}
	return scores
}

// ComputeComunaScores derives each comuna's score as the length-weighted
// mean of its segment scores, so a long unsafe avenue moves the comuna more
// than a short alley. Segments without a stored score count as neutral.
// Report counts and their median across comunas ride along as stats.
func ComputeComunaScores(segments []models.Segment, segScores map[int64]models.SegmentScore, comunaIDs map[string]int64, inputs []database.ScoringInput) []models.ComunaScore {
	type accum struct {
		lengthSum     float64
		weightedScore float64
		count         int
	}
	acc := map[int64]*accum{}

	for _, seg := range segments {
		comunaID, ok := comunaIDs[seg.Comuna]
		if !ok || seg.LengthM <= 0 {
			continue
		}
		score := NeutralScore
		if s, ok := segScores[seg.ID]; ok {
			score = s.Score
		}
		a, ok := acc[comunaID]
		if !ok {
			a = &accum{}
			acc[comunaID] = a
		}
		a.lengthSum += seg.LengthM
		a.weightedScore += seg.LengthM * score
	}

	for _, in := range inputs {
		if !in.ComunaID.Valid {
			continue
		}
		a, ok := acc[in.ComunaID.Int64]
		if !ok {
			a = &accum{}
			acc[in.ComunaID.Int64] = a
		}
		a.count++
	}

	counts := make([]int, 0, len(acc))
	for _, a := range acc {
		counts = append(counts, a.count)
	}
	median := medianOfInts(counts)

	scores := make([]models.ComunaScore, 0, len(acc))
	for comunaID, a := range acc {
		score := NeutralScore
		if a.lengthSum > 0 {
			score = clampScore(a.weightedScore / a.lengthSum)
		}
		scores = append(scores, models.ComunaScore{
			ComunaID:     comunaID,
			Score:        score,
			ReportCount:  a.count,
			ReportMedian: median,
		})
	}
	sort.Slice(scores, func(i, j int) bool { return scores[i].ComunaID < scores[j].ComunaID })
	return scores
}

func reportWeight(in database.ScoringInput, halfLife time.Duration, now time.Time) float64 {
	age := now.Sub(in.Timestamp)
	if age < 0 {
		age = 0
	}
	decay := math.Exp2(-age.Hours() / halfLife.Hours())
	cw, ok := categoryWeights[in.Category]
	if !ok {
		cw = categoryWeights[models.CategoryOther]
	}
	return decay * cw
}

// blendedScore maps the weighted mean severity to the 0..100 scale,
// blended with the neutral prior so low-evidence segments stay near 50.
func blendedScore(weightedSev, weightSum float64) float64 {
	if weightSum <= 0 {
		return NeutralScore
	}
	meanSev := weightedSev / weightSum
	raw := 100 * (MaxSeverity - meanSev) / (MaxSeverity - 1)
	score := (NeutralScore*priorWeight + raw*weightSum) / (priorWeight + weightSum)
	return clampScore(score)
}

func clampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}

func medianOfInts(values []int) float64 {
	if len(values) == 0 {
		return 0
	}
	sort.Ints(values)
	mid := len(values) / 2
	if len(values)%2 == 0 {
		return float64(values[mid-1]+values[mid]) / 2.0
	}
	return float64(values[mid])
}

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"santiago-a-pie/models"
)

// ScoringInput is one report row as seen by the scoring engine.
type ScoringInput struct {
	SegmentID int64
	ComunaID  sql.NullInt64
	Category  string
	Severity  int
	Timestamp time.Time
}

// GetReportsForScoring returns all segment-assigned reports newer than the
// cutoff. Older reports no longer move the score and are skipped at the query.
func (d *Database) GetReportsForScoring(ctx context.Context, cutoff time.Time) ([]ScoringInput, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT segment_id, comuna_id, category, severity, ts
		FROM reports
		WHERE segment_id IS NOT NULL AND ts >= ?`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports for scoring: %w", err)
	}
	defer rows.Close()

	inputs := []ScoringInput{}
	for rows.Next() {
		var in ScoringInput
		if err := rows.Scan(&in.SegmentID, &in.ComunaID, &in.Category, &in.Severity, &in.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan scoring row: %w", err)
		}
		inputs = append(inputs, in)
	}
	return inputs, rows.Err()
}

// UpsertSegmentScore stores the score of one segment.
func (d *Database) UpsertSegmentScore(ctx context.Context, s *models.SegmentScore) error {
	result, err := d.db.ExecContext(ctx, `INSERT
		INTO segment_scores (segment_id, score, report_count) VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE score=?, report_count=?`,
		s.SegmentID, s.Score, s.ReportCount, s.Score, s.ReportCount)
	return validateResult("upsertSegmentScore", result, err, false)
}

// UpsertComunaScore stores the score of one comuna.
func (d *Database) UpsertComunaScore(ctx context.Context, s *models.ComunaScore) error {
	result, err := d.db.ExecContext(ctx, `INSERT
		INTO comuna_scores (comuna_id, score, report_count, report_median) VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE score=?, report_count=?, report_median=?`,
		s.ComunaID, s.Score, s.ReportCount, s.ReportMedian,
		s.Score, s.ReportCount, s.ReportMedian)
	return validateResult("upsertComunaScore", result, err, false)
}

// GetSegmentScores returns the stored scores keyed by segment id.
func (d *Database) GetSegmentScores(ctx context.Context) (map[int64]models.SegmentScore, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT segment_id, score, report_count, updated_at FROM segment_scores`)
	if err != nil {
		return nil, fmt.Errorf("failed to query segment scores: %w", err)
	}
	defer rows.Close()

	scores := map[int64]models.SegmentScore{}
	for rows.Next() {
		var (
			s  models.SegmentScore
			ts time.Time
		)
		if err := rows.Scan(&s.SegmentID, &s.Score, &s.ReportCount, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan segment score: %w", err)
		}
		s.UpdatedAt = ts.Format(time.RFC3339)
		scores[s.SegmentID] = s
	}
	return scores, rows.Err()
}

// GetComunaScores returns stored comuna scores joined with comuna names.
func (d *Database) GetComunaScores(ctx context.Context) ([]models.ComunaScore, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT cs.comuna_id, c.name, cs.score, cs.report_count, cs.report_median, cs.updated_at
		FROM comuna_scores cs
		JOIN comunas c ON cs.comuna_id = c.id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query comuna scores: %w", err)
	}
	defer rows.Close()

	scores := []models.ComunaScore{}
	for rows.Next() {
		var (
			s  models.ComunaScore
			ts time.Time
		)
		if err := rows.Scan(&s.ComunaID, &s.Name, &s.Score, &s.ReportCount, &s.ReportMedian, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan comuna score: %w", err)
		}
		s.UpdatedAt = ts.Format(time.RFC3339)
		scores = append(scores, s)
	}
	return scores, rows.Err()
}

// AddComunaContact subscribes an email to comuna score alerts.
func (d *Database) AddComunaContact(ctx context.Context, comunaID int64, email string, consent bool) error {
	rows, err := d.db.QueryContext(ctx,
		`SELECT email FROM comuna_contacts WHERE comuna_id = ? AND email = ?`, comunaID, email)
	if err != nil {
		return err
	}
	exists := rows.Next()
	rows.Close()

	if exists {
		result, err := d.db.ExecContext(ctx,
			`UPDATE comuna_contacts SET consent_alerts = ? WHERE comuna_id = ? AND email = ?`,
			consent, comunaID, email)
		return validateResult("updateComunaContact", result, err, false)
	}
	result, err := d.db.ExecContext(ctx,
		`INSERT INTO comuna_contacts (comuna_id, email, consent_alerts) VALUES (?, ?, ?)`,
		comunaID, email, consent)
	return validateResult("insertComunaContact", result, err, true)
}

// GetAlertableContacts returns consenting contacts of a comuna whose last
// alert is older than the cooldown.
func (d *Database) GetAlertableContacts(ctx context.Context, comunaID int64, cooldown time.Duration) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT email FROM comuna_contacts
		WHERE comuna_id = ? AND consent_alerts = true
			AND (last_alert_at IS NULL OR last_alert_at < ?)`,
		comunaID, time.Now().Add(-cooldown))
	if err != nil {
		return nil, fmt.Errorf("failed to query comuna contacts: %w", err)
	}
	defer rows.Close()

	emails := []string{}
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, fmt.Errorf("failed to scan contact email: %w", err)
		}
		emails = append(emails, email)
	}
	return emails, rows.Err()
}

// MarkContactsAlerted stamps last_alert_at for a comuna's contacts.
func (d *Database) MarkContactsAlerted(ctx context.Context, comunaID int64) error {
	result, err := d.db.ExecContext(ctx,
		`UPDATE comuna_contacts SET last_alert_at = CURRENT_TIMESTAMP WHERE comuna_id = ?`, comunaID)
	return validateResult("markContactsAlerted", result, err, false)
}

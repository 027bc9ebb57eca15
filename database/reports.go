package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/apex/log"

	"santiago-a-pie/models"
	"santiago-a-pie/utils"
)

// SaveReport inserts a report together with its spatial geometry and the
// precomputed segment/comuna assignment. Returns the assigned sequence.
func (d *Database) SaveReport(ctx context.Context, r *models.Report) (int, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `INSERT
		INTO reports (ts, source, reporter_id, external_id, latitude, longitude, category, severity, comment, segment_id, comuna_id, geo_flagged)
		VALUES (COALESCE(?, CURRENT_TIMESTAMP), ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		reportedAt(r.Timestamp), r.Source, r.ReporterID, nullString(r.ExternalID), r.Latitude, r.Longitude,
		r.Category, r.Severity, r.Comment, r.SegmentID, r.ComunaID, r.GeoFlagged)
	if err := validateResult("insertReport", result, err, true); err != nil {
		return 0, err
	}

	seq, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get report seq: %w", err)
	}

	result, err = tx.ExecContext(ctx,
		`INSERT INTO reports_geometry (seq, geom) VALUES (?, ST_GeomFromText(?, 4326))`,
		seq, utils.PointWKT(r.Latitude, r.Longitude))
	if err := validateResult("insertReportGeometry", result, err, true); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit report: %w", err)
	}

	return int(seq), nil
}

// HasExternalReport reports whether an imported report with the given
// source and external id already exists. Used for import idempotency.
func (d *Database) HasExternalReport(ctx context.Context, source, externalID string) (bool, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT seq FROM reports WHERE source = ? AND external_id = ?`, source, externalID)
	if err != nil {
		return false, err
	}
	defer rows.Close()
	return rows.Next(), nil
}

// GetReportsForViewport returns the report points inside a viewport,
// optionally limited to the given time window.
func (d *Database) GetReportsForViewport(ctx context.Context, vp *models.ViewPort, since time.Time) ([]models.Report, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT r.seq, r.latitude, r.longitude, r.category, r.severity
		FROM reports r
		JOIN reports_geometry rg ON r.seq = rg.seq
		WHERE ST_Within(rg.geom, ST_GeomFromText(?, 4326)) AND r.ts >= ?`,
		utils.ViewPortWKT(vp.LatMin, vp.LonMin, vp.LatMax, vp.LonMax), since)
	if err != nil {
		return nil, fmt.Errorf("failed to query viewport reports: %w", err)
	}
	defer rows.Close()

	reports := []models.Report{}
	for rows.Next() {
		var r models.Report
		if err := rows.Scan(&r.Seq, &r.Latitude, &r.Longitude, &r.Category, &r.Severity); err != nil {
			log.Errorf("Cannot scan a report row: %v", err)
			continue
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

// GetReportsByLatLng returns reports within radiusM meters from the point.
func (d *Database) GetReportsByLatLng(ctx context.Context, lat, lon, radiusM float64, limit int) ([]models.Report, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT r.seq, r.ts, r.source, r.reporter_id, r.latitude, r.longitude, r.category, r.severity, r.comment, r.segment_id, r.comuna_id
		FROM reports r
		JOIN reports_geometry rg ON r.seq = rg.seq
		WHERE ST_Distance_Sphere(rg.geom, ST_GeomFromText(?, 4326)) <= ?
		ORDER BY r.ts DESC
		LIMIT ?`,
		utils.PointWKT(lat, lon), radiusM, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports by latlng: %w", err)
	}
	defer rows.Close()

	return scanReports(rows)
}

// GetLastNReports returns the most recent n reports.
func (d *Database) GetLastNReports(ctx context.Context, n int) ([]models.Report, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT r.seq, r.ts, r.source, r.reporter_id, r.latitude, r.longitude, r.category, r.severity, r.comment, r.segment_id, r.comuna_id
		FROM reports r
		ORDER BY r.seq DESC
		LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query last reports: %w", err)
	}
	defer rows.Close()

	return scanReports(rows)
}

// GetReportsSince returns reports with seq greater than lastSeq, ordered by
// seq. Feeds the WebSocket broadcast loop.
func (d *Database) GetReportsSince(ctx context.Context, lastSeq int) ([]models.Report, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT r.seq, r.ts, r.source, r.reporter_id, r.latitude, r.longitude, r.category, r.severity, r.comment, r.segment_id, r.comuna_id
		FROM reports r
		WHERE r.seq > ?
		ORDER BY r.seq ASC`, lastSeq)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports since %d: %w", lastSeq, err)
	}
	defer rows.Close()

	return scanReports(rows)
}

// GetLatestReportSeq returns the latest sequence number from the reports table
func (d *Database) GetLatestReportSeq(ctx context.Context) (int, error) {
	var seq int
	err := d.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM reports`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("failed to get latest report seq: %w", err)
	}
	return seq, nil
}

// GetLastProcessedSeq returns the persisted broadcast position.
func (d *Database) GetLastProcessedSeq(ctx context.Context) (int, error) {
	var seq int
	err := d.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(value), 0) FROM service_state WHERE name = 'last_broadcast_seq'`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("failed to get last processed seq: %w", err)
	}
	return seq, nil
}

// UpdateLastProcessedSeq persists the broadcast position.
func (d *Database) UpdateLastProcessedSeq(ctx context.Context, seq int) error {
	result, err := d.db.ExecContext(ctx, `INSERT INTO service_state (name, value) VALUES ('last_broadcast_seq', ?)
		ON DUPLICATE KEY UPDATE value = ?`, seq, seq)
	return validateResult("updateLastProcessedSeq", result, err, false)
}

func scanReports(rows *sql.Rows) ([]models.Report, error) {
	reports := []models.Report{}
	for rows.Next() {
		var (
			r         models.Report
			ts        time.Time
			segmentID sql.NullInt64
			comunaID  sql.NullInt64
		)
		if err := rows.Scan(&r.Seq, &ts, &r.Source, &r.ReporterID, &r.Latitude, &r.Longitude,
			&r.Category, &r.Severity, &r.Comment, &segmentID, &comunaID); err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		r.Timestamp = ts.Format(time.RFC3339)
		if segmentID.Valid {
			r.SegmentID = &segmentID.Int64
		}
		if comunaID.Valid {
			r.ComunaID = &comunaID.Int64
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// reportedAt converts a report timestamp for the insert. Imported incidents
// carry the feed's reported_at so score decay sees their real age; app
// submissions leave it empty and take the insert time.
func reportedAt(ts string) interface{} {
	if t, err := time.Parse(time.RFC3339, ts); err == nil {
		return t
	}
	return nil
}

package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/apex/log"
	geojson "github.com/paulmach/go.geojson"

	"santiago-a-pie/models"
	"santiago-a-pie/utils"
)

// UpsertSegment stores a street segment and refreshes its spatial index row.
func (d *Database) UpsertSegment(ctx context.Context, s *models.Segment) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	lineJSON, err := json.Marshal(s.Points)
	if err != nil {
		return fmt.Errorf("failed to marshal segment geometry: %w", err)
	}

	result, err := tx.ExecContext(ctx, `INSERT
		INTO segments (id, name, comuna, osm_id, length_m, line_json)
		VALUES (?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE name=?, comuna=?, osm_id=?, length_m=?, line_json=?`,
		s.ID, s.Name, s.Comuna, s.OSMID, s.LengthM, string(lineJSON),
		s.Name, s.Comuna, s.OSMID, s.LengthM, string(lineJSON))
	if err := validateResult("upsertSegment", result, err, false); err != nil {
		return err
	}

	lineWKT, err := utils.LineStringWKT(s.Points)
	if err != nil {
		return err
	}
	result, err = tx.ExecContext(ctx, `DELETE FROM segment_index WHERE segment_id = ?`, s.ID)
	if err := validateResult("deletePreviousSegmentIndex", result, err, false); err != nil {
		return err
	}
	result, err = tx.ExecContext(ctx,
		`INSERT INTO segment_index (segment_id, geom) VALUES (?, ST_GeomFromText(?, 4326))`,
		s.ID, lineWKT)
	if err := validateResult("insertSegmentIndex", result, err, true); err != nil {
		return err
	}

	return tx.Commit()
}

// GetSegments returns all stored segments.
func (d *Database) GetSegments(ctx context.Context) ([]models.Segment, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, name, comuna, osm_id, length_m, line_json FROM segments`)
	if err != nil {
		return nil, fmt.Errorf("failed to query segments: %w", err)
	}
	defer rows.Close()

	segments := []models.Segment{}
	for rows.Next() {
		var (
			s        models.Segment
			osmID    sql.NullInt64
			lineJSON string
		)
		if err := rows.Scan(&s.ID, &s.Name, &s.Comuna, &osmID, &s.LengthM, &lineJSON); err != nil {
			return nil, fmt.Errorf("failed to scan segment: %w", err)
		}
		if osmID.Valid {
			s.OSMID = osmID.Int64
		}
		if err := json.Unmarshal([]byte(lineJSON), &s.Points); err != nil {
			log.Warnf("Skipping segment %d with bad geometry: %v", s.ID, err)
			continue
		}
		segments = append(segments, s)
	}
	return segments, rows.Err()
}

// CountSegments returns the number of stored segments.
func (d *Database) CountSegments(ctx context.Context) (int, error) {
	var cnt int
	if err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM segments`).Scan(&cnt); err != nil {
		return 0, fmt.Errorf("failed to count segments: %w", err)
	}
	return cnt, nil
}

// UpsertComuna stores a comuna polygon and refreshes its spatial index row.
// Returns the comuna id.
func (d *Database) UpsertComuna(ctx context.Context, c *models.Comuna) (int64, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	areaJSON, err := json.Marshal(c.Geometry)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal comuna geometry: %w", err)
	}

	result, err := tx.ExecContext(ctx, `INSERT
		INTO comunas (name, osm_id, area_json) VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE osm_id=?, area_json=?, id=LAST_INSERT_ID(id)`,
		c.Name, c.OSMID, string(areaJSON), c.OSMID, string(areaJSON))
	if err := validateResult("upsertComuna", result, err, false); err != nil {
		return 0, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get comuna id: %w", err)
	}

	areaWKT, err := geometryToWKT(c.Geometry)
	if err != nil {
		return 0, err
	}
	result, err = tx.ExecContext(ctx, `DELETE FROM comuna_index WHERE comuna_id = ?`, id)
	if err := validateResult("deletePreviousComunaIndex", result, err, false); err != nil {
		return 0, err
	}
	result, err = tx.ExecContext(ctx,
		`INSERT INTO comuna_index (comuna_id, geom) VALUES (?, ST_GeomFromText(?, 4326))`,
		id, areaWKT)
	if err := validateResult("insertComunaIndex", result, err, true); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	c.ID = id
	return id, nil
}

// GetComunas returns all stored comunas with their geometries.
func (d *Database) GetComunas(ctx context.Context) ([]models.Comuna, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT id, name, osm_id, area_json FROM comunas`)
	if err != nil {
		return nil, fmt.Errorf("failed to query comunas: %w", err)
	}
	defer rows.Close()

	comunas := []models.Comuna{}
	for rows.Next() {
		var (
			c        models.Comuna
			osmID    sql.NullInt64
			areaJSON string
		)
		if err := rows.Scan(&c.ID, &c.Name, &osmID, &areaJSON); err != nil {
			return nil, fmt.Errorf("failed to scan comuna: %w", err)
		}
		if osmID.Valid {
			c.OSMID = osmID.Int64
		}
		geom := &geojson.Geometry{}
		if err := json.Unmarshal([]byte(areaJSON), geom); err != nil {
			log.Warnf("Skipping comuna %q with bad geometry: %v", c.Name, err)
			continue
		}
		c.Geometry = geom
		comunas = append(comunas, c)
	}
	return comunas, rows.Err()
}

// FindComunaForPoint returns the id of the comuna containing the point, or
// nil when the point falls outside every stored comuna.
func (d *Database) FindComunaForPoint(ctx context.Context, lat, lon float64) (*int64, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT comuna_id FROM comuna_index WHERE ST_Contains(geom, ST_GeomFromText(?, 4326))`,
		utils.PointWKT(lat, lon))
	if err != nil {
		return nil, fmt.Errorf("failed to query comuna for point: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	var id int64
	if err := rows.Scan(&id); err != nil {
		return nil, fmt.Errorf("failed to scan comuna id: %w", err)
	}
	return &id, nil
}

func geometryToWKT(geom *geojson.Geometry) (string, error) {
	if geom == nil {
		return "", fmt.Errorf("nil geometry")
	}
	switch {
	case geom.IsPolygon():
		return utils.PolygonWKT(geom.Polygon)
	case geom.IsMultiPolygon():
		return utils.MultiPolygonWKT(geom.MultiPolygon)
	default:
		return "", fmt.Errorf("unsupported geometry type: %s", geom.Type)
	}
}

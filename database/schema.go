package database

import (
	"database/sql"
	"fmt"

	"github.com/apex/log"
)

// InitSchema creates the necessary database tables if they don't exist
func InitSchema(db *sql.DB) error {
	log.Info("Initializing santiago-a-pie database schema...")

	reportsTableSQL := `
	CREATE TABLE IF NOT EXISTS reports(
		seq INT NOT NULL AUTO_INCREMENT,
		ts TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		source VARCHAR(32) NOT NULL,
		reporter_id VARCHAR(255) NOT NULL,
		external_id VARCHAR(255),
		latitude DOUBLE NOT NULL,
		longitude DOUBLE NOT NULL,
		category VARCHAR(32) NOT NULL,
		severity TINYINT NOT NULL,
		comment TEXT,
		segment_id BIGINT,
		comuna_id BIGINT,
		geo_flagged BOOL NOT NULL DEFAULT false,
		PRIMARY KEY (seq),
		INDEX reporter_id_index (reporter_id),
		INDEX segment_id_index (segment_id),
		INDEX comuna_id_index (comuna_id),
		UNIQUE INDEX source_external_index (source, external_id)
	)`

	if _, err := db.Exec(reportsTableSQL); err != nil {
		return fmt.Errorf("failed to create reports table: %w", err)
	}
	log.Info("Reports table created/verified")

	reportsGeometryTableSQL := `
	CREATE TABLE IF NOT EXISTS reports_geometry(
		seq INT NOT NULL,
		geom POINT NOT NULL SRID 4326,
		PRIMARY KEY (seq),
		SPATIAL INDEX(geom)
	)`

	if _, err := db.Exec(reportsGeometryTableSQL); err != nil {
		return fmt.Errorf("failed to create reports_geometry table: %w", err)
	}
	log.Info("Reports_geometry table created/verified")

	segmentsTableSQL := `
	CREATE TABLE IF NOT EXISTS segments(
		id BIGINT NOT NULL,
		name VARCHAR(255),
		comuna VARCHAR(255),
		osm_id BIGINT,
		length_m DOUBLE NOT NULL,
		line_json JSON,
		PRIMARY KEY (id),
		INDEX comuna_index (comuna)
	)`

	if _, err := db.Exec(segmentsTableSQL); err != nil {
		return fmt.Errorf("failed to create segments table: %w", err)
	}
	log.Info("Segments table created/verified")

	segmentIndexTableSQL := `
	CREATE TABLE IF NOT EXISTS segment_index(
		segment_id BIGINT NOT NULL,
		geom LINESTRING NOT NULL SRID 4326,
		PRIMARY KEY (segment_id),
		SPATIAL INDEX(geom)
	)`

	if _, err := db.Exec(segmentIndexTableSQL); err != nil {
		return fmt.Errorf("failed to create segment_index table: %w", err)
	}
	log.Info("Segment_index table created/verified")

	comunasTableSQL := `
	CREATE TABLE IF NOT EXISTS comunas(
		id BIGINT NOT NULL AUTO_INCREMENT,
		name VARCHAR(255) NOT NULL,
		osm_id BIGINT,
		area_json JSON,
		PRIMARY KEY (id),
		UNIQUE INDEX name_index (name)
	)`

	if _, err := db.Exec(comunasTableSQL); err != nil {
		return fmt.Errorf("failed to create comunas table: %w", err)
	}
	log.Info("Comunas table created/verified")

	comunaIndexTableSQL := `
	CREATE TABLE IF NOT EXISTS comuna_index(
		comuna_id BIGINT NOT NULL,
		geom GEOMETRY NOT NULL SRID 4326,
		PRIMARY KEY (comuna_id),
		SPATIAL INDEX(geom)
	)`

	if _, err := db.Exec(comunaIndexTableSQL); err != nil {
		return fmt.Errorf("failed to create comuna_index table: %w", err)
	}
	log.Info("Comuna_index table created/verified")

	segmentScoresTableSQL := `
	CREATE TABLE IF NOT EXISTS segment_scores(
		segment_id BIGINT NOT NULL,
		score DOUBLE NOT NULL,
		report_count INT NOT NULL DEFAULT 0,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		PRIMARY KEY (segment_id)
	)`

	if _, err := db.Exec(segmentScoresTableSQL); err != nil {
		return fmt.Errorf("failed to create segment_scores table: %w", err)
	}
	log.Info("Segment_scores table created/verified")

	comunaScoresTableSQL := `
	CREATE TABLE IF NOT EXISTS comuna_scores(
		comuna_id BIGINT NOT NULL,
		score DOUBLE NOT NULL,
		report_count INT NOT NULL DEFAULT 0,
		report_median DOUBLE NOT NULL DEFAULT 0,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		PRIMARY KEY (comuna_id)
	)`

	if _, err := db.Exec(comunaScoresTableSQL); err != nil {
		return fmt.Errorf("failed to create comuna_scores table: %w", err)
	}
	log.Info("Comuna_scores table created/verified")

	comunaContactsTableSQL := `
	CREATE TABLE IF NOT EXISTS comuna_contacts(
		comuna_id BIGINT NOT NULL,
		email CHAR(64) NOT NULL,
		consent_alerts BOOL NOT NULL DEFAULT true,
		last_alert_at TIMESTAMP NULL DEFAULT NULL,
		INDEX comuna_id_index (comuna_id),
		INDEX email_index (email)
	)`

	if _, err := db.Exec(comunaContactsTableSQL); err != nil {
		return fmt.Errorf("failed to create comuna_contacts table: %w", err)
	}
	log.Info("Comuna_contacts table created/verified")

	serviceStateTableSQL := `
	CREATE TABLE IF NOT EXISTS service_state(
		name VARCHAR(64) NOT NULL,
		value INT NOT NULL DEFAULT 0,
		PRIMARY KEY (name)
	)`

	if _, err := db.Exec(serviceStateTableSQL); err != nil {
		return fmt.Errorf("failed to create service_state table: %w", err)
	}
	log.Info("Service_state table created/verified")

	log.Info("Santiago-a-pie database schema initialization completed")
	return nil
}

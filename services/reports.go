package services

import (
	"context"
	"fmt"

	"github.com/apex/log"

	"santiago-a-pie/config"
	"santiago-a-pie/database"
	"santiago-a-pie/geo"
	"santiago-a-pie/metrics"
	"santiago-a-pie/models"
	"santiago-a-pie/rabbitmq"
	"santiago-a-pie/utils"
)

// Segment assignment tolerances, in meters.
const (
	maxSegmentJoinDistM = 150.0

	// A report whose stated position and photo EXIF position disagree by
	// more than this is stored but flagged for review.
	exifMismatchM = 200.0
)

// ReportService ingests citizen reports: validation, geospatial join,
// persistence, and downstream publishing.
type ReportService struct {
	cfg       *config.Config
	db        *database.Database
	streets   *StreetsService
	publisher *rabbitmq.Publisher // nil when AMQP is not configured
}

// NewReportService creates the report ingestion service.
func NewReportService(cfg *config.Config, db *database.Database, streets *StreetsService, publisher *rabbitmq.Publisher) *ReportService {
	return &ReportService{
		cfg:       cfg,
		db:        db,
		streets:   streets,
		publisher: publisher,
	}
}

// Submit validates and stores an in-app report. Returns the stored report.
func (s *ReportService) Submit(ctx context.Context, req *models.SubmitReportRequest) (*models.Report, error) {
	if err := validateSubmission(req); err != nil {
		metrics.ReportsRejectedTotal.WithLabelValues("validation").Inc()
		return nil, err
	}

	report := &models.Report{
		Source:     models.SourceApp,
		ReporterID: req.ReporterID,
		Latitude:   req.Latitude,
		Longitude:  req.Longitude,
		Category:   req.Category,
		Severity:   req.Severity,
		Comment:    req.Comment,
	}

	// A photo with EXIF coordinates fills a missing position and
	// cross-checks a stated one.
	if exifLat, exifLon, ok := utils.PhotoLocation(req.Photo); ok {
		if report.Latitude == 0 && report.Longitude == 0 {
			report.Latitude = exifLat
			report.Longitude = exifLon
		} else {
			d := geo.DistanceM(
				models.Point{Lat: report.Latitude, Lon: report.Longitude},
				models.Point{Lat: exifLat, Lon: exifLon})
			if d > exifMismatchM {
				log.Warnf("Report position differs from photo EXIF by %.0fm, flagging", d)
				report.GeoFlagged = true
			}
		}
	}

	if report.Latitude == 0 && report.Longitude == 0 {
		metrics.ReportsRejectedTotal.WithLabelValues("no_coordinates").Inc()
		return nil, fmt.Errorf("report has no coordinates")
	}

	return s.Ingest(ctx, report)
}

// Ingest joins a report to the street network, persists it and publishes it
// downstream. Used by both the submit path and the SoSafe importer.
func (s *ReportService) Ingest(ctx context.Context, report *models.Report) (*models.Report, error) {
	point := models.Point{Lat: report.Latitude, Lon: report.Longitude}
	if segment, dist, ok := s.streets.Index().Nearest(point, maxSegmentJoinDistM); ok {
		report.SegmentID = &segment.ID
		log.Debugf("Report joined to segment %d at %.0fm", segment.ID, dist)
	}

	comunaID, err := s.db.FindComunaForPoint(ctx, report.Latitude, report.Longitude)
	if err != nil {
		log.Errorf("Comuna lookup failed, storing report unassigned: %v", err)
	} else {
		report.ComunaID = comunaID
	}

	seq, err := s.db.SaveReport(ctx, report)
	if err != nil {
		return nil, fmt.Errorf("failed to save report: %w", err)
	}
	report.Seq = seq

	metrics.ReportsIngestedTotal.WithLabelValues(report.Source).Inc()

	// Publishing is best-effort; a broker outage must not fail the submit.
	if s.publisher != nil {
		if err := s.publisher.Publish(report); err != nil {
			metrics.PublishErrorTotal.Inc()
			log.Errorf("Failed to publish report %d: %v", report.Seq, err)
		}
	}

	return report, nil
}

func validateSubmission(req *models.SubmitReportRequest) error {
	if req.ReporterID == "" {
		return fmt.Errorf("reporter_id is required")
	}
	if !models.ValidCategory(req.Category) {
		return fmt.Errorf("unknown category %q", req.Category)
	}
	if req.Severity < 1 || req.Severity > 5 {
		return fmt.Errorf("severity must be between 1 and 5, got %d", req.Severity)
	}
	return nil
}

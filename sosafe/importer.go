package sosafe

import (
	"context"
	"sync"
	"time"

	"github.com/apex/log"

	"santiago-a-pie/config"
	"santiago-a-pie/database"
	"santiago-a-pie/metrics"
	"santiago-a-pie/models"
	"santiago-a-pie/services"
)

// Lookback for the first poll after a start. Incidents older than this are
// only picked up if they were imported by a previous run.
const initialLookback = 24 * time.Hour

// Importer polls the SoSafe feed and funnels new incidents through the
// regular report ingestion path.
type Importer struct {
	cfg     *config.Config
	db      *database.Database
	client  *Client
	reports *services.ReportService

	// mu serializes import runs: the poll loop and the admin trigger may
	// fire concurrently, and the since cursor and the exists-then-insert
	// dedupe are only safe for one run at a time.
	mu    sync.Mutex
	since time.Time

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewImporter creates the SoSafe importer.
func NewImporter(cfg *config.Config, db *database.Database, reports *services.ReportService) *Importer {
	return &Importer{
		cfg:      cfg,
		db:       db,
		client:   NewClient(cfg.SoSafeURL, cfg.SoSafeAPIKey, cfg.SoSafePageSize),
		reports:  reports,
		since:    time.Now().Add(-initialLookback),
		stopChan: make(chan struct{}),
	}
}

// Start launches the poll loop. No-op when the feed URL is not configured.
func (im *Importer) Start() {
	if im.cfg.SoSafeURL == "" {
		log.Info("SoSafe feed not configured, importer disabled")
		return
	}

	log.Infof("Starting SoSafe importer, polling every %v", im.cfg.SoSafePollInterval)
	im.wg.Add(1)
	go im.pollLoop()
}

// Stop stops the poll loop gracefully.
func (im *Importer) Stop() {
	close(im.stopChan)
	im.wg.Wait()
}

func (im *Importer) pollLoop() {
	defer im.wg.Done()

	// First import right away, then on the ticker.
	im.runImport()

	ticker := time.NewTicker(im.cfg.SoSafePollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-im.stopChan:
			return
		case <-ticker.C:
			im.runImport()
		}
	}
}

func (im *Importer) runImport() {
	ctx := context.Background()
	started := time.Now()

	imported, err := im.ImportOnce(ctx)
	if err != nil {
		metrics.SoSafeImportTotal.WithLabelValues("error").Inc()
		log.Errorf("SoSafe import failed: %v", err)
		return
	}

	metrics.SoSafeImportTotal.WithLabelValues("success").Inc()
	metrics.SoSafeLastImportSeconds.Set(metrics.NowUnixSeconds())
	if imported > 0 {
		log.Infof("Imported %d SoSafe incidents in %v", imported, time.Since(started))
	}
}

// ImportOnce fetches the feed once and ingests incidents not seen before.
// Returns the number of newly stored reports. Only one import runs at a
// time; a concurrent call waits for the running one to finish.
func (im *Importer) ImportOnce(ctx context.Context) (int, error) {
	im.mu.Lock()
	defer im.mu.Unlock()

	incidents, err := im.client.FetchIncidents(ctx, im.since)
	if err != nil {
		return 0, err
	}

	imported := 0
	newest := im.since
	for i := range incidents {
		in := &incidents[i]

		// The since cursor overlaps poll windows, so repeats are expected.
		exists, err := im.db.HasExternalReport(ctx, models.SourceSoSafe, in.ID)
		if err != nil {
			return imported, err
		}
		if exists {
			continue
		}

		report := MapIncident(in)
		if ts, err := time.Parse(time.RFC3339, in.ReportedAt); err == nil && ts.After(newest) {
			newest = ts
		}

		if _, err := im.reports.Ingest(ctx, report); err != nil {
			log.Errorf("Failed to ingest SoSafe incident %s: %v", in.ID, err)
			continue
		}
		imported++
	}

	// Back the cursor off a little so late-arriving incidents near the
	// boundary are still fetched; dedupe absorbs the overlap.
	if newest.After(im.since) {
		im.since = newest.Add(-5 * time.Minute)
	}

	return imported, nil
}

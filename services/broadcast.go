package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/apex/log"

	"santiago-a-pie/config"
	"santiago-a-pie/database"
	"santiago-a-pie/metrics"
	"santiago-a-pie/websocket"
)

// BroadcastService polls for new reports and pushes them to WebSocket
// listeners.
type BroadcastService struct {
	cfg *config.Config
	db  *database.Database
	hub *websocket.Hub

	// State tracking
	lastProcessedSeq int
	mu               sync.RWMutex

	// Control channels
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewBroadcastService creates a new broadcast service.
func NewBroadcastService(cfg *config.Config, db *database.Database, hub *websocket.Hub) *BroadcastService {
	return &BroadcastService{
		cfg:      cfg,
		db:       db,
		hub:      hub,
		stopChan: make(chan struct{}),
	}
}

// Start starts the hub and the broadcast loop.
func (s *BroadcastService) Start() error {
	log.Info("Starting report broadcast service...")

	go s.hub.Run()

	if err := s.initializeLastProcessedSeq(); err != nil {
		return err
	}

	s.wg.Add(1)
	go s.broadcastLoop()

	log.Info("Report broadcast service started successfully")
	return nil
}

// Stop stops the broadcast loop gracefully.
func (s *BroadcastService) Stop() {
	log.Info("Stopping report broadcast service...")
	close(s.stopChan)
	s.wg.Wait()
	log.Info("Report broadcast service stopped")
}

// GetStats returns current service statistics
func (s *BroadcastService) GetStats() (int, int, int) {
	connectedClients, lastBroadcastSeq := s.hub.GetStats()
	s.mu.RLock()
	lastProcessedSeq := s.lastProcessedSeq
	s.mu.RUnlock()
	return connectedClients, lastBroadcastSeq, lastProcessedSeq
}

// initializeLastProcessedSeq initializes the last processed sequence number
func (s *BroadcastService) initializeLastProcessedSeq() error {
	ctx := context.Background()

	lastSeq, err := s.db.GetLastProcessedSeq(ctx)
	if err != nil {
		return fmt.Errorf("failed to get last processed seq: %w", err)
	}

	// If no persistent state exists, start from the newest stored report.
	if lastSeq == 0 {
		latestSeq, err := s.db.GetLatestReportSeq(ctx)
		if err != nil {
			return fmt.Errorf("failed to get latest report seq: %w", err)
		}
		lastSeq = latestSeq

		if err := s.db.UpdateLastProcessedSeq(ctx, lastSeq); err != nil {
			log.Warnf("Failed to store initial sequence state: %v", err)
		}
	}

	s.mu.Lock()
	s.lastProcessedSeq = lastSeq
	s.mu.Unlock()

	log.Infof("Initialized last processed sequence: %d", lastSeq)
	return nil
}

// broadcastLoop continuously polls for new reports and broadcasts them
func (s *BroadcastService) broadcastLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.BroadcastInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			if err := s.processNewReports(); err != nil {
				log.Errorf("Error processing new reports: %v", err)
			}
			connected, _ := s.hub.GetStats()
			metrics.ConnectedClients.Set(float64(connected))
		}
	}
}

// processNewReports fetches and broadcasts new reports
func (s *BroadcastService) processNewReports() error {
	ctx := context.Background()

	s.mu.RLock()
	lastSeq := s.lastProcessedSeq
	s.mu.RUnlock()

	reports, err := s.db.GetReportsSince(ctx, lastSeq)
	if err != nil {
		return err
	}

	if len(reports) == 0 {
		return nil
	}

	s.hub.BroadcastReports(reports)

	newLastSeq := reports[len(reports)-1].Seq

	s.mu.Lock()
	s.lastProcessedSeq = newLastSeq
	s.mu.Unlock()

	// Persist the position so a restart does not re-broadcast.
	if err := s.db.UpdateLastProcessedSeq(ctx, newLastSeq); err != nil {
		log.Warnf("Failed to persist last processed seq: %v", err)
	}

	log.Infof("Processed %d new reports (seq %d-%d)",
		len(reports), reports[0].Seq, newLastSeq)

	return nil
}

package services

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"

	"document-rag-platform/internal/logger"
	"document-rag-platform/internal/vectorindex"
	"document-rag-platform/utils"
)

// MaintenanceService runs periodic housekeeping: failing documents stuck
// in processing after a worker crash, and logging store totals so index
// drift shows up in the logs before it shows up in queries.
type MaintenanceService struct {
	scheduler  *gocron.Scheduler
	metadata   *MetadataService
	index      vectorindex.Index
	sweepEvery time.Duration
	staleAfter time.Duration
}

func NewMaintenanceService(metadata *MetadataService, index vectorindex.Index, sweepEvery, staleAfter time.Duration) *MaintenanceService {
	s := gocron.NewScheduler(time.UTC)
	s.TagsUnique()

	if sweepEvery <= 0 {
		sweepEvery = 5 * time.Minute
	}
	if staleAfter <= 0 {
		staleAfter = 10 * time.Minute
	}

	return &MaintenanceService{
		scheduler:  s,
		metadata:   metadata,
		index:      index,
		sweepEvery: sweepEvery,
		staleAfter: staleAfter,
	}
}

// Start registers the jobs and runs the scheduler in the background.
func (m *MaintenanceService) Start() error {
	if _, err := m.scheduler.Every(m.sweepEvery).Tag("stale-processing-sweep").Do(m.sweepStaleProcessing); err != nil {
		return err
	}
	if _, err := m.scheduler.Every(1 * time.Hour).Tag("store-stats").Do(m.logStoreStats); err != nil {
		return err
	}

	m.scheduler.StartAsync()
	logger.Info("Maintenance scheduler started",
		"sweep_interval", m.sweepEvery.String(),
		"stale_after", m.staleAfter.String(),
	)
	return nil
}

// Stop stops the scheduler
func (m *MaintenanceService) Stop() {
	m.scheduler.Stop()
}

func (m *MaintenanceService) sweepStaleProcessing() {
	ctx, cancel := utils.WithTimeout(context.Background())
	defer cancel()

	swept, err := m.metadata.MarkStaleProcessing(ctx, m.staleAfter)
	if err != nil {
		logger.Error("Stale processing sweep failed", "error", err.Error())
		return
	}
	if swept > 0 {
		logger.Warn("Failed documents stuck in processing", "count", swept, "stale_after", m.staleAfter.String())
	}
}

func (m *MaintenanceService) logStoreStats() {
	ctx, cancel := utils.WithLongTimeout(context.Background())
	defer cancel()

	stats, err := m.metadata.Stats(ctx)
	if err != nil {
		logger.Error("Store stats collection failed", "error", err.Error())
		return
	}

	indexStats, err := m.index.Stats(ctx)
	if err != nil {
		logger.Error("Index stats collection failed", "error", err.Error())
		return
	}

	logger.Info("Store totals",
		"documents", stats.TotalDocuments,
		"chunks", stats.TotalChunks,
		"vectors_tracked", stats.TotalVectors,
		"vectors_indexed", indexStats.TotalPoints,
		"size_mb", stats.TotalSizeMB,
	)
}

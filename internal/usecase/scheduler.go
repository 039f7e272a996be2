package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"CallScorer/internal/domain"
	"CallScorer/internal/ports"
)

// Scheduler wires the cron-like trigger with recurring analysis runs: load
// transcripts, analyze the delta, publish the report.
type Scheduler struct {
	driver   ports.Trigger
	source   ports.TranscriptSource
	analyzer *Analyzer
	notifier ports.Notifier
	logger   *slog.Logger

	mu sync.Mutex
}

// NewScheduler returns a helper to start/stop recurring jobs.
func NewScheduler(driver ports.Trigger, source ports.TranscriptSource, analyzer *Analyzer, notifier ports.Notifier, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Scheduler{
		driver:   driver,
		source:   source,
		analyzer: analyzer,
		notifier: notifier,
		logger:   logger,
	}
}

// RunOnce performs a single load/analyze/notify cycle. Runs never overlap:
// the progress store supports a single writer.
func (s *Scheduler) RunOnce(ctx context.Context) (domain.RunReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.source == nil || s.analyzer == nil {
		return domain.RunReport{}, fmt.Errorf("scheduler is not configured")
	}

	items, err := s.source.Load(ctx)
	if err != nil {
		return domain.RunReport{}, fmt.Errorf("load transcripts: %w", err)
	}

	report, err := s.analyzer.Run(ctx, items)
	if err != nil {
		return domain.RunReport{}, fmt.Errorf("analyze: %w", err)
	}

	if s.notifier != nil && report.Analyzed+report.Failed > 0 {
		if err := s.notifier.PublishReport(ctx, report); err != nil {
			s.logger.Warn("publish report", "run_id", report.RunID, "error", err)
		}
	}

	return report, nil
}

// Start registers the recurring run with the provided trigger.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	job := func(trigger time.Time) {
		s.logger.Info("scheduled run triggered", "at", trigger)
		if _, err := s.RunOnce(ctx); err != nil {
			s.logger.Error("scheduled run failed", "error", err)
		}
	}

	return s.driver.Start(ctx, job)
}

// Stop gracefully tears down the underlying trigger.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}

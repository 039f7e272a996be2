package usecase

import (
	"log/slog"

	"CallScorer/internal/domain"
	"CallScorer/internal/ports"
)

// LogObserver reports run progress through slog.
type LogObserver struct {
	logger *slog.Logger
}

var _ ports.RunObserver = (*LogObserver)(nil)

// NewLogObserver wraps a logger.
func NewLogObserver(logger *slog.Logger) *LogObserver {
	return &LogObserver{logger: logger}
}

func (o *LogObserver) BatchStarted(batch, size, concurrency int) {
	o.logger.Info("batch started", "batch", batch, "size", size, "concurrency", concurrency)
}

func (o *LogObserver) ItemCompleted(itemID string, result *domain.ScoringResult, attempts int, err error) {
	if err != nil {
		o.logger.Warn("item failed", "item_id", itemID, "attempts", attempts, "error", err)
		return
	}
	o.logger.Debug("item scored",
		"item_id", itemID,
		"attempts", attempts,
		"score", result.TotalScore,
		"status", result.Status,
	)
}

func (o *LogObserver) BatchCompleted(batch int, failed int, state domain.SchedulerState) {
	o.logger.Info("batch completed",
		"batch", batch,
		"failed", failed,
		"next_batch_size", state.BatchSize,
		"next_concurrency", state.Concurrency,
		"consecutive_successes", state.ConsecutiveSuccesses,
		"cost_usd", state.Counters.CostUSD,
	)
}

func (o *LogObserver) CheckpointSaved(records int, err error) {
	if err != nil {
		o.logger.Error("checkpoint not saved", "records", records, "error", err)
		return
	}
	o.logger.Debug("checkpoint saved", "records", records)
}

// MultiObserver fans progress out to several observers.
type MultiObserver []ports.RunObserver

var _ ports.RunObserver = MultiObserver(nil)

func (m MultiObserver) BatchStarted(batch, size, concurrency int) {
	for _, o := range m {
		o.BatchStarted(batch, size, concurrency)
	}
}

func (m MultiObserver) ItemCompleted(itemID string, result *domain.ScoringResult, attempts int, err error) {
	for _, o := range m {
		o.ItemCompleted(itemID, result, attempts, err)
	}
}

func (m MultiObserver) BatchCompleted(batch int, failed int, state domain.SchedulerState) {
	for _, o := range m {
		o.BatchCompleted(batch, failed, state)
	}
}

func (m MultiObserver) CheckpointSaved(records int, err error) {
	for _, o := range m {
		o.CheckpointSaved(records, err)
	}
}

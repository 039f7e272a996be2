package usecase

import (
	"slices"

	"CallScorer/internal/config"
	"CallScorer/internal/domain"
)

// Tuner applies the batch-size/concurrency adaptation rules. It never owns
// state: the coordinator passes its SchedulerState explicitly.
type Tuner struct {
	cfg config.SchedulerConfig
}

// NewTuner builds a tuner over validated scheduler settings.
func NewTuner(cfg config.SchedulerConfig) Tuner {
	return Tuner{cfg: cfg}
}

// Initial returns the starting state of a run.
func (t Tuner) Initial() domain.SchedulerState {
	idx := slices.Index(t.cfg.BatchTiers, t.cfg.InitialBatchSize)
	if idx < 0 {
		idx = 0
	}
	return domain.SchedulerState{
		BatchSize:   t.cfg.BatchTiers[idx],
		TierIndex:   idx,
		Concurrency: t.cfg.InitialConcurrency,
	}
}

// Observe folds one fully resolved batch into the state.
func (t Tuner) Observe(s *domain.SchedulerState, batchFailed bool) {
	if batchFailed {
		s.ConsecutiveSuccesses = 0
		s.ConsecutiveFailures++
		if s.TierIndex > 0 {
			s.TierIndex--
		}
		s.BatchSize = t.cfg.BatchTiers[s.TierIndex]
		s.Concurrency = max(t.cfg.MinConcurrency, s.Concurrency/2, 1)
		return
	}

	s.ConsecutiveFailures = 0
	s.ConsecutiveSuccesses++

	if s.ConsecutiveSuccesses%t.cfg.BatchScaleUpAfter == 0 && s.TierIndex < len(t.cfg.BatchTiers)-1 {
		s.TierIndex++
		s.BatchSize = t.cfg.BatchTiers[s.TierIndex]
	}
	if s.ConsecutiveSuccesses%t.cfg.ConcurrencyScaleUpAfter == 0 {
		s.Concurrency = min(t.cfg.MaxConcurrency, s.Concurrency+t.cfg.ConcurrencyStep)
	}
}

// AtFloor reports whether both axes sit at their lower bounds.
func (t Tuner) AtFloor(s domain.SchedulerState) bool {
	return s.TierIndex == 0 && s.Concurrency <= t.cfg.MinConcurrency
}

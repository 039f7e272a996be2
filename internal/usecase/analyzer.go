package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"CallScorer/internal/config"
	"CallScorer/internal/domain"
	"CallScorer/internal/ports"
)

// ErrInvalidConfig is returned before any extraction when the run cannot start.
var ErrInvalidConfig = errors.New("invalid analyzer configuration")

// AnalyzerDeps wires all driven adapters into the adaptive analysis run.
type AnalyzerDeps struct {
	Extractor ports.Extractor
	Score     ports.ScoreFn
	Store     ports.ProgressStore
	Observer  ports.RunObserver
	Logger    *slog.Logger
	Scheduler config.SchedulerConfig
	Pricing   config.PricingConfig
	Profile   string
}

// Analyzer drives bulk evidence extraction in adaptive batches.
type Analyzer struct {
	extractor ports.Extractor
	score     ports.ScoreFn
	store     ports.ProgressStore
	observer  ports.RunObserver
	logger    *slog.Logger
	cfg       config.SchedulerConfig
	pricing   config.PricingConfig
	profile   string
	tuner     Tuner
}

// NewAnalyzer constructs the scheduler use case.
func NewAnalyzer(deps AnalyzerDeps) *Analyzer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	observer := deps.Observer
	if observer == nil {
		observer = NewLogObserver(logger)
	}
	return &Analyzer{
		extractor: deps.Extractor,
		score:     deps.Score,
		store:     deps.Store,
		observer:  observer,
		logger:    logger,
		cfg:       deps.Scheduler,
		pricing:   deps.Pricing,
		profile:   deps.Profile,
		tuner:     NewTuner(deps.Scheduler),
	}
}

type itemOutcome struct {
	dispatched bool
	cancelled  bool
	attempts   int
	usage      domain.Usage
	record     domain.AnalysisRecord
	err        error
}

// Run analyzes every item not already present in the progress store and
// returns the run report. Item failures are reported, not returned; only an
// invalid configuration or an unreachable store at startup is an error.
func (a *Analyzer) Run(ctx context.Context, items []domain.WorkItem) (domain.RunReport, error) {
	if err := a.cfg.Validate(); err != nil {
		return domain.RunReport{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if a.extractor == nil || a.score == nil {
		return domain.RunReport{}, fmt.Errorf("%w: extractor and score function are required", ErrInvalidConfig)
	}

	progress := domain.Progress{AnalyzedIDs: map[string]bool{}}
	if a.store != nil {
		var err error
		progress, err = a.store.Load(ctx)
		if err != nil {
			return domain.RunReport{}, fmt.Errorf("load progress: %w", err)
		}
	}

	started := time.Now()
	runID := uuid.NewString()
	pending, skipped := filterPending(items, progress.AnalyzedIDs)
	results := progress.Results()
	state := a.tuner.Initial()

	report := domain.RunReport{RunID: runID, Skipped: skipped}
	var unsaved []domain.AnalysisRecord
	floorFailures := 0

	a.logger.Info("analysis run started",
		"run_id", runID,
		"items", len(items),
		"pending", len(pending),
		"skipped", skipped,
		"batch_size", state.BatchSize,
		"concurrency", state.Concurrency,
	)

	for cursor := 0; cursor < len(pending); {
		if ctx.Err() != nil {
			break
		}
		if state.BatchesRun > 0 {
			if err := sleep(ctx, a.cfg.InterBatchDelay); err != nil {
				break
			}
		}

		end := min(cursor+state.BatchSize, len(pending))
		batch := pending[cursor:end]
		cursor = end

		state.BatchesRun++
		atFloor := a.tuner.AtFloor(state)
		a.observer.BatchStarted(state.BatchesRun, len(batch), state.Concurrency)

		outcomes := a.dispatch(ctx, runID, batch, state.Concurrency)

		failed, interrupted := 0, false
		for i, o := range outcomes {
			if !o.dispatched {
				interrupted = true
				continue
			}

			c := &state.Counters
			c.ExtractionCalls += o.attempts
			c.Retries += o.attempts - 1
			c.PromptTokens += o.usage.PromptTokens
			c.CompletionTokens += o.usage.CompletionTokens
			c.CostUSD += a.pricing.Cost(o.usage.PromptTokens, o.usage.CompletionTokens)

			if o.cancelled {
				interrupted = true
				continue
			}
			if o.err != nil {
				failed++
				c.Failed++
				report.Failures = append(report.Failures, domain.ItemFailure{
					ItemID:   batch[i].ID,
					Attempts: o.attempts,
					Error:    o.err.Error(),
				})
				a.observer.ItemCompleted(batch[i].ID, nil, o.attempts, o.err)
				continue
			}

			c.Analyzed++
			unsaved = append(unsaved, o.record)
			results = append(results, o.record.Result)
			result := o.record.Result
			a.observer.ItemCompleted(batch[i].ID, &result, o.attempts, nil)
		}

		if interrupted && ctx.Err() != nil {
			break
		}

		a.tuner.Observe(&state, failed > 0)
		a.observer.BatchCompleted(state.BatchesRun, failed, state)

		if failed > 0 && atFloor {
			floorFailures++
		} else {
			floorFailures = 0
		}

		if state.BatchesRun%a.cfg.CheckpointEveryBatches == 0 {
			unsaved = a.checkpoint(ctx, runID, unsaved, state)
		}

		if a.cfg.AbortAfterFloorFailures > 0 && floorFailures >= a.cfg.AbortAfterFloorFailures {
			a.logger.Error("aborting run: extraction keeps failing at floor settings",
				"run_id", runID,
				"failed_batches", floorFailures,
			)
			report.Aborted = true
			break
		}
	}

	unsaved = a.checkpoint(context.WithoutCancel(ctx), runID, unsaved, state)
	if len(unsaved) > 0 {
		a.logger.Error("run finished with unsaved results", "run_id", runID, "records", len(unsaved))
	}

	report.Analyzed = state.Counters.Analyzed
	report.Failed = state.Counters.Failed
	report.Cancelled = len(pending) - state.Counters.Analyzed - state.Counters.Failed
	report.Counters = state.Counters
	report.Batches = state.BatchesRun
	report.FinalBatchSize = state.BatchSize
	report.FinalConcurrency = state.Concurrency
	report.Elapsed = time.Since(started)
	report.Summary = domain.Summarize(results)

	a.logger.Info("analysis run finished",
		"run_id", runID,
		"analyzed", report.Analyzed,
		"failed", report.Failed,
		"cancelled", report.Cancelled,
		"batches", report.Batches,
		"cost_usd", report.Counters.CostUSD,
		"mean_score", report.Summary.Mean,
		"elapsed", report.Elapsed,
	)

	return report, nil
}

// dispatch runs one batch on a pool bounded by concurrency. Each worker only
// writes its own slot of the returned slice.
func (a *Analyzer) dispatch(ctx context.Context, runID string, batch []domain.WorkItem, concurrency int) []itemOutcome {
	outcomes := make([]itemOutcome, len(batch))

	var g errgroup.Group
	g.SetLimit(max(concurrency, 1))
	for i, item := range batch {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			outcomes[i] = a.process(ctx, runID, item)
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

func (a *Analyzer) process(ctx context.Context, runID string, item domain.WorkItem) itemOutcome {
	extraction, attempts, usage, err := a.extractWithRetry(ctx, item)
	out := itemOutcome{dispatched: true, attempts: attempts, usage: usage}
	if err != nil {
		out.err = err
		out.cancelled = ctx.Err() != nil
		return out
	}

	evidence := extraction.Evidence.Normalize()
	out.record = domain.AnalysisRecord{
		ItemID:     item.ID,
		RunID:      runID,
		Result:     a.score(evidence),
		Evidence:   evidence,
		Usage:      usage,
		AnalyzedAt: time.Now().UTC(),
	}
	return out
}

// extractWithRetry calls the extractor up to RetryAttempts times, sleeping
// attempt*RetryBackoff between attempts.
func (a *Analyzer) extractWithRetry(ctx context.Context, item domain.WorkItem) (domain.Extraction, int, domain.Usage, error) {
	var (
		usage   domain.Usage
		lastErr error
	)

	for attempt := 1; attempt <= a.cfg.RetryAttempts; attempt++ {
		extraction, err := a.extractor.Extract(ctx, item.Transcript)
		usage = usage.Add(extraction.Usage)
		if err == nil {
			return extraction, attempt, usage, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return domain.Extraction{}, attempt, usage, fmt.Errorf("extract %s: %w", item.ID, ctx.Err())
		}
		if attempt == a.cfg.RetryAttempts {
			break
		}

		a.logger.Debug("extraction attempt failed",
			"item_id", item.ID,
			"attempt", attempt,
			"error", err,
		)
		if err := sleep(ctx, time.Duration(attempt)*a.cfg.RetryBackoff); err != nil {
			return domain.Extraction{}, attempt, usage, fmt.Errorf("extract %s: %w", item.ID, err)
		}
	}

	return domain.Extraction{}, a.cfg.RetryAttempts, usage,
		fmt.Errorf("extract %s after %d attempts: %w", item.ID, a.cfg.RetryAttempts, lastErr)
}

// checkpoint persists unsaved records with the current state. On failure the
// records are kept for the next checkpoint.
func (a *Analyzer) checkpoint(ctx context.Context, runID string, unsaved []domain.AnalysisRecord, state domain.SchedulerState) []domain.AnalysisRecord {
	if a.store == nil {
		return nil
	}

	snapshot, err := json.Marshal(a.cfg)
	if err != nil {
		a.logger.Warn("marshal scheduler config", "error", err)
	}

	cp := domain.Checkpoint{
		RunID:   runID,
		SavedAt: time.Now().UTC(),
		State:   state,
		Profile: a.profile,
		Config:  snapshot,
	}

	err = a.store.Save(ctx, unsaved, cp)
	a.observer.CheckpointSaved(len(unsaved), err)
	if err != nil {
		a.logger.Error("checkpoint failed; continuing in memory",
			"run_id", runID,
			"records", len(unsaved),
			"error", err,
		)
		return unsaved
	}
	return nil
}

func filterPending(items []domain.WorkItem, analyzed map[string]bool) ([]domain.WorkItem, int) {
	pending := make([]domain.WorkItem, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	skipped := 0

	for _, item := range items {
		if item.AlreadyAnalyzed || analyzed[item.ID] {
			skipped++
			continue
		}
		if _, dup := seen[item.ID]; dup {
			skipped++
			continue
		}
		seen[item.ID] = struct{}{}
		pending = append(pending, item)
	}
	return pending, skipped
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

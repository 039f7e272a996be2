package usecase

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CallScorer/internal/config"
	"CallScorer/internal/domain"
	"CallScorer/internal/qci"
)

func newTestAnalyzer(ex *fakeExtractor, store *memoryStore, obs *recordingObserver, cfg config.SchedulerConfig) *Analyzer {
	deps := AnalyzerDeps{
		Extractor: ex,
		Score:     fixedScore,
		Scheduler: cfg,
		Profile:   "default",
	}
	if store != nil {
		deps.Store = store
	}
	if obs != nil {
		deps.Observer = obs
	}
	return NewAnalyzer(deps)
}

func TestRunFailedItemDecaysNextBatch(t *testing.T) {
	t.Parallel()

	ex := newFakeExtractor()
	ex.failures["item-07"] = -1
	obs := &recordingObserver{}
	a := newTestAnalyzer(ex, &memoryStore{}, obs, testScheduler())

	report, err := a.Run(context.Background(), workItems(15))
	require.NoError(t, err)

	require.Len(t, obs.started, 2)
	assert.Equal(t, batchStart{Batch: 1, Size: 10, Concurrency: 4}, obs.started[0])
	assert.Equal(t, batchStart{Batch: 2, Size: 5, Concurrency: 2}, obs.started[1])
	assert.Equal(t, []int{1, 0}, obs.failedPer)
	assert.Equal(t, 0, obs.states[0].ConsecutiveSuccesses)

	assert.Equal(t, 14, report.Analyzed)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 0, report.Cancelled)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "item-07", report.Failures[0].ItemID)
	assert.Equal(t, 2, report.Failures[0].Attempts)
	assert.Contains(t, report.Failures[0].Error, errUpstream.Error())
	assert.Equal(t, 16, report.Counters.ExtractionCalls)
	assert.Equal(t, 1, report.Counters.Retries)
	assert.Equal(t, 15, obs.items)
}

func TestRunTiersAdvanceOneStepAtATime(t *testing.T) {
	t.Parallel()

	cfg := testScheduler()
	cfg.BatchTiers = []int{2, 4, 8}
	cfg.InitialBatchSize = 2
	cfg.InitialConcurrency = 1
	cfg.MaxConcurrency = 3
	cfg.BatchScaleUpAfter = 2
	cfg.ConcurrencyScaleUpAfter = 1

	obs := &recordingObserver{}
	a := newTestAnalyzer(newFakeExtractor(), nil, obs, cfg)

	report, err := a.Run(context.Background(), workItems(30))
	require.NoError(t, err)

	sizes := make([]int, 0, len(obs.started))
	conc := make([]int, 0, len(obs.started))
	for _, b := range obs.started {
		sizes = append(sizes, b.Size)
		conc = append(conc, b.Concurrency)
	}
	assert.Equal(t, []int{2, 2, 4, 4, 8, 8, 2}, sizes)
	assert.Equal(t, []int{1, 2, 3, 3, 3, 3, 3}, conc)
	assert.Equal(t, 30, report.Analyzed)
	assert.Equal(t, 8, report.FinalBatchSize)
	assert.Equal(t, 3, report.FinalConcurrency)
	assert.Equal(t, 7, report.Batches)
}

func TestRunRetriesTransientFailures(t *testing.T) {
	t.Parallel()

	cfg := testScheduler()
	cfg.RetryAttempts = 3

	ex := newFakeExtractor()
	ex.failures["item-02"] = 1
	a := newTestAnalyzer(ex, nil, nil, cfg)

	report, err := a.Run(context.Background(), workItems(4))
	require.NoError(t, err)

	assert.Equal(t, 4, report.Analyzed)
	assert.Zero(t, report.Failed)
	assert.Equal(t, 1, report.Counters.Retries)
	assert.Equal(t, 5, report.Counters.ExtractionCalls)
}

func TestRunAccountsCost(t *testing.T) {
	t.Parallel()

	ex := newFakeExtractor()
	ex.usage = domain.Usage{PromptTokens: 1000, CompletionTokens: 500}
	a := NewAnalyzer(AnalyzerDeps{
		Extractor: ex,
		Score:     fixedScore,
		Scheduler: testScheduler(),
		Pricing:   config.PricingConfig{InputPer1K: 0.5, OutputPer1K: 2},
	})

	report, err := a.Run(context.Background(), workItems(4))
	require.NoError(t, err)

	assert.Equal(t, 4000, report.Counters.PromptTokens)
	assert.Equal(t, 2000, report.Counters.CompletionTokens)
	assert.InDelta(t, 6.0, report.Counters.CostUSD, 1e-9)
}

// cancellingExtractor succeeds on the first call and cancels the run from
// inside the second, which still reports the usage it consumed.
type cancellingExtractor struct {
	cancel context.CancelFunc
	usage  domain.Usage
	calls  atomic.Int32
}

func (e *cancellingExtractor) Extract(ctx context.Context, _ string) (domain.Extraction, error) {
	if e.calls.Add(1) == 1 {
		return domain.Extraction{
			Evidence: domain.EvidenceRecord{Dynamics: domain.DynamicsEvidence{AgentTalkRatio: 0.45}},
			Usage:    e.usage,
		}, nil
	}
	e.cancel()
	return domain.Extraction{Usage: e.usage}, ctx.Err()
}

func TestRunCountsUsageOfCancelledCalls(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := testScheduler()
	cfg.BatchTiers = []int{2}
	cfg.InitialBatchSize = 2
	cfg.InitialConcurrency = 1
	ex := &cancellingExtractor{cancel: cancel, usage: domain.Usage{PromptTokens: 1000, CompletionTokens: 500}}
	store := &memoryStore{}
	a := NewAnalyzer(AnalyzerDeps{
		Extractor: ex,
		Score:     fixedScore,
		Store:     store,
		Scheduler: cfg,
		Pricing:   config.PricingConfig{InputPer1K: 0.5, OutputPer1K: 2},
	})

	report, err := a.Run(ctx, workItems(10))
	require.NoError(t, err)

	assert.Equal(t, 1, report.Analyzed)
	assert.Zero(t, report.Failed)
	assert.Equal(t, 9, report.Cancelled)
	assert.Equal(t, 2, report.Counters.ExtractionCalls)
	assert.Zero(t, report.Counters.Retries)
	assert.Equal(t, 2000, report.Counters.PromptTokens)
	assert.Equal(t, 1000, report.Counters.CompletionTokens)
	assert.InDelta(t, 3.0, report.Counters.CostUSD, 1e-9)

	require.NotEmpty(t, store.checkpoints)
	assert.InDelta(t, 3.0, store.checkpoints[len(store.checkpoints)-1].State.Counters.CostUSD, 1e-9)
}

func TestRunNeverExceedsBatchConcurrency(t *testing.T) {
	t.Parallel()

	var (
		inflight, peak atomic.Int32
		peaks          []int32
	)
	obs := &recordingObserver{onBatchStart: func(batch, _ int) {
		if batch > 1 {
			peaks = append(peaks, peak.Swap(0))
		}
	}}
	ex := newFakeExtractor()
	ex.onCall = func(string) {
		n := inflight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		inflight.Add(-1)
	}
	a := newTestAnalyzer(ex, &memoryStore{}, obs, testScheduler())

	report, err := a.Run(context.Background(), workItems(40))
	require.NoError(t, err)
	peaks = append(peaks, peak.Load())

	assert.Equal(t, 40, report.Analyzed)
	require.Len(t, peaks, len(obs.started))

	highest := int32(0)
	for i, b := range obs.started {
		assert.LessOrEqual(t, int(peaks[i]), b.Concurrency, "batch %d", b.Batch)
		highest = max(highest, peaks[i])
	}
	assert.Greater(t, highest, int32(1))
}

func TestRunResumeIsIdempotent(t *testing.T) {
	t.Parallel()

	store := &memoryStore{}
	ex := newFakeExtractor()
	a := NewAnalyzer(AnalyzerDeps{
		Extractor: ex,
		Score:     qci.New(config.DefaultScoring()).Score,
		Store:     store,
		Scheduler: testScheduler(),
	})
	items := workItems(8)

	first, err := a.Run(context.Background(), items)
	require.NoError(t, err)
	require.Equal(t, 8, first.Analyzed)
	calls := ex.totalCalls()

	second, err := a.Run(context.Background(), items)
	require.NoError(t, err)

	assert.Zero(t, second.Analyzed)
	assert.Equal(t, 8, second.Skipped)
	assert.Zero(t, second.Batches)
	assert.Equal(t, calls, ex.totalCalls())
	assert.Equal(t, first.Summary, second.Summary)
	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestRunSkipsAnalyzedAndDuplicateItems(t *testing.T) {
	t.Parallel()

	items := workItems(4)
	items[1].AlreadyAnalyzed = true
	items = append(items, items[0])

	ex := newFakeExtractor()
	a := newTestAnalyzer(ex, nil, nil, testScheduler())

	report, err := a.Run(context.Background(), items)
	require.NoError(t, err)

	assert.Equal(t, 3, report.Analyzed)
	assert.Equal(t, 2, report.Skipped)
	assert.Equal(t, 3, ex.totalCalls())
}

func TestRunStopsBetweenBatchesOnCancel(t *testing.T) {
	t.Parallel()

	cfg := testScheduler()
	cfg.BatchTiers = []int{5}
	cfg.InitialBatchSize = 5

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := &memoryStore{}
	obs := &recordingObserver{onBatchDone: func(int) { cancel() }}
	ex := newFakeExtractor()
	a := newTestAnalyzer(ex, store, obs, cfg)
	items := workItems(12)

	report, err := a.Run(ctx, items)
	require.NoError(t, err)

	assert.Equal(t, 5, report.Analyzed)
	assert.Equal(t, 7, report.Cancelled)
	assert.Len(t, store.records, 5)

	// A fresh run picks up only the remainder.
	resumed := newTestAnalyzer(ex, store, nil, cfg)
	report, err = resumed.Run(context.Background(), items)
	require.NoError(t, err)

	assert.Equal(t, 7, report.Analyzed)
	assert.Equal(t, 5, report.Skipped)
	assert.Len(t, store.records, 12)
	for _, item := range items {
		assert.Equal(t, 1, ex.calls[item.ID], item.ID)
	}
}

func TestRunCancelledMidBatchKeepsFinishedItems(t *testing.T) {
	t.Parallel()

	cfg := testScheduler()
	cfg.InitialConcurrency = 1

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ex := newFakeExtractor()
	ex.onCall = func(id string) {
		if id == "item-03" {
			cancel()
		}
	}
	store := &memoryStore{}
	obs := &recordingObserver{}
	a := newTestAnalyzer(ex, store, obs, cfg)

	report, err := a.Run(ctx, workItems(12))
	require.NoError(t, err)

	assert.Equal(t, 3, report.Analyzed)
	assert.Zero(t, report.Failed)
	assert.Equal(t, 9, report.Cancelled)
	assert.Empty(t, obs.failedPer)
	assert.Len(t, store.records, 3)
}

func TestRunToleratesCheckpointFailure(t *testing.T) {
	t.Parallel()

	cfg := testScheduler()
	cfg.BatchTiers = []int{5}
	cfg.InitialBatchSize = 5

	store := &memoryStore{saveErrs: []error{errors.New("disk full")}}
	obs := &recordingObserver{}
	a := newTestAnalyzer(newFakeExtractor(), store, obs, cfg)

	report, err := a.Run(context.Background(), workItems(10))
	require.NoError(t, err)

	assert.Equal(t, 10, report.Analyzed)
	assert.Len(t, store.records, 10)
	require.Len(t, obs.checkpoints, 3)
	assert.Error(t, obs.checkpoints[0])
	assert.NoError(t, obs.checkpoints[1])
}

func TestRunCheckpointsEveryNBatches(t *testing.T) {
	t.Parallel()

	cfg := testScheduler()
	cfg.BatchTiers = []int{5}
	cfg.InitialBatchSize = 5
	cfg.CheckpointEveryBatches = 2

	store := &memoryStore{}
	a := newTestAnalyzer(newFakeExtractor(), store, nil, cfg)

	_, err := a.Run(context.Background(), workItems(20))
	require.NoError(t, err)

	require.Len(t, store.checkpoints, 3)
	assert.Equal(t, 2, store.checkpoints[0].State.BatchesRun)
	assert.Equal(t, 4, store.checkpoints[1].State.BatchesRun)
	assert.Equal(t, "default", store.checkpoints[2].Profile)
	assert.NotEmpty(t, store.checkpoints[2].Config)
}

func TestRunAbortsAfterRepeatedFloorFailures(t *testing.T) {
	t.Parallel()

	cfg := testScheduler()
	cfg.BatchTiers = []int{5}
	cfg.InitialBatchSize = 5
	cfg.InitialConcurrency = 1
	cfg.MaxConcurrency = 1
	cfg.AbortAfterFloorFailures = 2

	ex := newFakeExtractor()
	for _, item := range workItems(20) {
		ex.failures[item.ID] = -1
	}
	a := newTestAnalyzer(ex, nil, nil, cfg)

	report, err := a.Run(context.Background(), workItems(20))
	require.NoError(t, err)

	assert.True(t, report.Aborted)
	assert.Equal(t, 10, report.Failed)
	assert.Equal(t, 10, report.Cancelled)
	assert.Equal(t, 20, ex.totalCalls())
}

func TestRunWithoutAbortPolicyProcessesEverything(t *testing.T) {
	t.Parallel()

	cfg := testScheduler()
	cfg.BatchTiers = []int{5}
	cfg.InitialBatchSize = 5

	ex := newFakeExtractor()
	for _, item := range workItems(20) {
		ex.failures[item.ID] = -1
	}
	a := newTestAnalyzer(ex, nil, nil, cfg)

	report, err := a.Run(context.Background(), workItems(20))
	require.NoError(t, err)

	assert.False(t, report.Aborted)
	assert.Equal(t, 20, report.Failed)
	assert.Zero(t, report.Analyzed)
	assert.Equal(t, 4, report.Batches)
}

func TestRunRejectsInvalidConfigBeforeExtraction(t *testing.T) {
	t.Parallel()

	cfg := testScheduler()
	cfg.MinConcurrency = 5
	cfg.MaxConcurrency = 2

	ex := newFakeExtractor()
	a := newTestAnalyzer(ex, &memoryStore{}, nil, cfg)

	_, err := a.Run(context.Background(), workItems(3))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Zero(t, ex.totalCalls())
}

func TestRunFailsWhenStoreIsUnreachable(t *testing.T) {
	t.Parallel()

	ex := newFakeExtractor()
	store := &memoryStore{loadErr: errors.New("connection refused")}
	a := newTestAnalyzer(ex, store, nil, testScheduler())

	_, err := a.Run(context.Background(), workItems(3))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load progress")
	assert.Zero(t, ex.totalCalls())
}

func TestRunWithNoItems(t *testing.T) {
	t.Parallel()

	a := newTestAnalyzer(newFakeExtractor(), nil, nil, testScheduler())

	report, err := a.Run(context.Background(), nil)
	require.NoError(t, err)

	assert.Zero(t, report.Batches)
	assert.Zero(t, report.Summary.Count)
	assert.Equal(t, 10, report.FinalBatchSize)
}

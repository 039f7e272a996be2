package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"CallScorer/internal/config"
	"CallScorer/internal/domain"
)

var errUpstream = errors.New("upstream returned 503")

// fakeExtractor treats the transcript as the item ID. failures maps an ID to
// the number of attempts that fail before success; -1 fails forever.
type fakeExtractor struct {
	mu       sync.Mutex
	calls    map[string]int
	failures map[string]int
	usage    domain.Usage
	onCall   func(transcript string)
}

func newFakeExtractor() *fakeExtractor {
	return &fakeExtractor{calls: map[string]int{}, failures: map[string]int{}}
}

func (f *fakeExtractor) Extract(ctx context.Context, transcript string) (domain.Extraction, error) {
	if err := ctx.Err(); err != nil {
		return domain.Extraction{}, err
	}

	f.mu.Lock()
	f.calls[transcript]++
	n := f.calls[transcript]
	limit, failing := f.failures[transcript]
	onCall := f.onCall
	f.mu.Unlock()

	if onCall != nil {
		onCall(transcript)
	}
	if failing && (limit < 0 || n <= limit) {
		return domain.Extraction{}, errUpstream
	}

	return domain.Extraction{
		Evidence: domain.EvidenceRecord{
			Dynamics: domain.DynamicsEvidence{AgentTalkRatio: 0.45},
			Outcome:  domain.OutcomeEvidence{FinalOutcome: domain.OutcomeMeetingBooked},
		},
		Usage: f.usage,
	}, nil
}

func (f *fakeExtractor) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

type memoryStore struct {
	mu          sync.Mutex
	records     []domain.AnalysisRecord
	checkpoints []domain.Checkpoint
	saveErrs    []error
	loadErr     error
}

func (s *memoryStore) Load(context.Context) (domain.Progress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return domain.Progress{}, s.loadErr
	}

	p := domain.Progress{AnalyzedIDs: map[string]bool{}}
	p.Records = append(p.Records, s.records...)
	for _, r := range s.records {
		p.AnalyzedIDs[r.ItemID] = true
	}
	if n := len(s.checkpoints); n > 0 {
		cp := s.checkpoints[n-1]
		p.Checkpoint = &cp
	}
	return p, nil
}

func (s *memoryStore) Save(_ context.Context, records []domain.AnalysisRecord, cp domain.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.saveErrs) > 0 {
		err := s.saveErrs[0]
		s.saveErrs = s.saveErrs[1:]
		if err != nil {
			return err
		}
	}
	s.records = append(s.records, records...)
	s.checkpoints = append(s.checkpoints, cp)
	return nil
}

type batchStart struct {
	Batch, Size, Concurrency int
}

type recordingObserver struct {
	started     []batchStart
	failedPer   []int
	states      []domain.SchedulerState
	items       int
	checkpoints  []error
	onBatchStart func(batch, concurrency int)
	onBatchDone  func(batch int)
}

func (o *recordingObserver) BatchStarted(batch, size, concurrency int) {
	o.started = append(o.started, batchStart{batch, size, concurrency})
	if o.onBatchStart != nil {
		o.onBatchStart(batch, concurrency)
	}
}

func (o *recordingObserver) ItemCompleted(string, *domain.ScoringResult, int, error) {
	o.items++
}

func (o *recordingObserver) BatchCompleted(batch int, failed int, state domain.SchedulerState) {
	o.failedPer = append(o.failedPer, failed)
	o.states = append(o.states, state)
	if o.onBatchDone != nil {
		o.onBatchDone(batch)
	}
}

func (o *recordingObserver) CheckpointSaved(_ int, err error) {
	o.checkpoints = append(o.checkpoints, err)
}

func fixedScore(domain.EvidenceRecord) domain.ScoringResult {
	return domain.ScoringResult{TotalScore: 80, Status: domain.StatusPass, Flags: []string{}}
}

func testScheduler() config.SchedulerConfig {
	return config.SchedulerConfig{
		BatchTiers:              []int{5, 10, 20},
		InitialBatchSize:        10,
		MinConcurrency:          1,
		InitialConcurrency:      4,
		MaxConcurrency:          8,
		ConcurrencyStep:         1,
		BatchScaleUpAfter:       3,
		ConcurrencyScaleUpAfter: 2,
		RetryAttempts:           2,
		CheckpointEveryBatches:  1,
	}
}

func workItems(n int) []domain.WorkItem {
	items := make([]domain.WorkItem, n)
	for i := range items {
		id := fmt.Sprintf("item-%02d", i+1)
		items[i] = domain.WorkItem{ID: id, Transcript: id}
	}
	return items
}

package domain

import (
	"encoding/json"
	"math"
	"time"
)

// WorkItem is a call transcript queued for analysis.
type WorkItem struct {
	ID              string `json:"id"`
	Transcript      string `json:"transcript"`
	AlreadyAnalyzed bool   `json:"alreadyAnalyzed,omitempty"`
}

// Counters accumulate run-wide statistics.
type Counters struct {
	Analyzed         int     `json:"analyzed"`
	Failed           int     `json:"failed"`
	ExtractionCalls  int     `json:"extractionCalls"`
	Retries          int     `json:"retries"`
	PromptTokens     int     `json:"promptTokens"`
	CompletionTokens int     `json:"completionTokens"`
	CostUSD          float64 `json:"costUsd"`
}

// SchedulerState is the adaptive tuning state of one run. Only the
// coordinating goroutine mutates it.
type SchedulerState struct {
	BatchSize            int      `json:"batchSize"`
	TierIndex            int      `json:"tierIndex"`
	Concurrency          int      `json:"concurrency"`
	ConsecutiveSuccesses int      `json:"consecutiveSuccesses"`
	ConsecutiveFailures  int      `json:"consecutiveFailures"`
	BatchesRun           int      `json:"batchesRun"`
	Counters             Counters `json:"counters"`
}

// Checkpoint is the run state persisted alongside results.
type Checkpoint struct {
	RunID   string          `json:"runId"`
	SavedAt time.Time       `json:"savedAt"`
	State   SchedulerState  `json:"state"`
	Profile string          `json:"profile"`
	Config  json.RawMessage `json:"config,omitempty"`
}

// Progress is what a progress store knows from earlier runs.
type Progress struct {
	AnalyzedIDs map[string]bool
	Records     []AnalysisRecord
	Checkpoint  *Checkpoint
}

// Results returns the scoring results of all stored records.
func (p Progress) Results() []ScoringResult {
	out := make([]ScoringResult, 0, len(p.Records))
	for _, r := range p.Records {
		out = append(out, r.Result)
	}
	return out
}

// ItemFailure is an item that could not be analyzed after all retries.
type ItemFailure struct {
	ItemID   string `json:"itemId"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error"`
}

// ScoreSummary aggregates a set of scoring results.
type ScoreSummary struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Pass   int     `json:"pass"`
	Review int     `json:"review"`
	Fail   int     `json:"fail"`
}

// Summarize computes summary statistics over results.
func Summarize(results []ScoringResult) ScoreSummary {
	var s ScoreSummary
	if len(results) == 0 {
		return s
	}

	s.Min = math.Inf(1)
	s.Max = math.Inf(-1)
	var sum float64
	for _, r := range results {
		sum += r.TotalScore
		s.Min = math.Min(s.Min, r.TotalScore)
		s.Max = math.Max(s.Max, r.TotalScore)
		switch r.Status {
		case StatusPass:
			s.Pass++
		case StatusReview:
			s.Review++
		default:
			s.Fail++
		}
	}
	s.Count = len(results)
	s.Mean = math.Round(sum/float64(len(results))*100) / 100
	return s
}

// RunReport is the structured outcome of one scheduler run.
type RunReport struct {
	RunID            string        `json:"runId"`
	Analyzed         int           `json:"analyzed"`
	Failed           int           `json:"failed"`
	Skipped          int           `json:"skipped"`
	Cancelled        int           `json:"cancelled"`
	Failures         []ItemFailure `json:"failures,omitempty"`
	Counters         Counters      `json:"counters"`
	Batches          int           `json:"batches"`
	FinalBatchSize   int           `json:"finalBatchSize"`
	FinalConcurrency int           `json:"finalConcurrency"`
	Elapsed          time.Duration `json:"elapsed"`
	Aborted          bool          `json:"aborted"`
	Summary          ScoreSummary  `json:"summary"`
}

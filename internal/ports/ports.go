package ports

import (
	"context"
	"time"

	"CallScorer/internal/domain"
)

// Extractor turns one transcript into structured evidence via an external service.
type Extractor interface {
	Extract(ctx context.Context, transcript string) (domain.Extraction, error)
}

// ScoreFn scores a single evidence record.
type ScoreFn func(domain.EvidenceRecord) domain.ScoringResult

// ProgressStore persists analysis results and scheduler checkpoints.
type ProgressStore interface {
	Load(ctx context.Context) (domain.Progress, error)
	Save(ctx context.Context, records []domain.AnalysisRecord, checkpoint domain.Checkpoint) error
}

// TranscriptSource loads the work items to analyze.
type TranscriptSource interface {
	Load(ctx context.Context) ([]domain.WorkItem, error)
}

// Notifier publishes run reports to Telegram or other channels.
type Notifier interface {
	PublishReport(ctx context.Context, report domain.RunReport) error
}

// RunObserver receives incremental progress from a scheduler run.
type RunObserver interface {
	BatchStarted(batch, size, concurrency int)
	ItemCompleted(itemID string, result *domain.ScoringResult, attempts int, err error)
	BatchCompleted(batch int, failed int, state domain.SchedulerState)
	CheckpointSaved(records int, err error)
}

// Trigger controls when analysis runs execute.
type Trigger interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}

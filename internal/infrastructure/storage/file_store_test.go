package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CallScorer/internal/domain"
)

func sampleRecord(id string, score float64) domain.AnalysisRecord {
	return domain.AnalysisRecord{
		ItemID: id,
		RunID:  "run-1",
		Result: domain.ScoringResult{
			TotalScore: score,
			Status:     domain.StatusReview,
			Flags:      []string{domain.FlagCallTooShort},
		},
		Usage:      domain.Usage{PromptTokens: 10, CompletionTokens: 5},
		AnalyzedAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestFileStoreLoadMissingDir(t *testing.T) {
	t.Parallel()

	s := NewFileStore(filepath.Join(t.TempDir(), "absent"), nil)

	p, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, p.AnalyzedIDs)
	assert.Empty(t, p.Records)
	assert.Nil(t, p.Checkpoint)
}

func TestFileStoreRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewFileStore(filepath.Join(t.TempDir(), "progress"), nil)

	cp := domain.Checkpoint{RunID: "run-1", Profile: "default", State: domain.SchedulerState{BatchSize: 10, BatchesRun: 1}}
	require.NoError(t, s.Save(ctx, []domain.AnalysisRecord{sampleRecord("a", 71), sampleRecord("b", 64)}, cp))

	cp.State.BatchesRun = 2
	require.NoError(t, s.Save(ctx, []domain.AnalysisRecord{sampleRecord("c", 90)}, cp))
	require.NoError(t, s.Save(ctx, nil, cp))

	p, err := s.Load(ctx)
	require.NoError(t, err)

	assert.Equal(t, map[string]bool{"a": true, "b": true, "c": true}, p.AnalyzedIDs)
	require.Len(t, p.Records, 3)
	assert.Equal(t, sampleRecord("b", 64), p.Records[1])
	require.NotNil(t, p.Checkpoint)
	assert.Equal(t, 2, p.Checkpoint.State.BatchesRun)
}

func TestFileStoreIgnoresDuplicateLines(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewFileStore(t.TempDir(), nil)

	require.NoError(t, s.Save(ctx, []domain.AnalysisRecord{sampleRecord("a", 50)}, domain.Checkpoint{}))
	require.NoError(t, s.Save(ctx, []domain.AnalysisRecord{sampleRecord("a", 99)}, domain.Checkpoint{}))

	p, err := s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, p.Records, 1)
	assert.Equal(t, 50.0, p.Records[0].Result.TotalScore)
}

func TestFileStoreRejectsCorruptResults(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	good, err := json.Marshal(sampleRecord("a", 70))
	require.NoError(t, err)
	body := "{not json}\n" + string(good) + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, resultsFile), []byte(body), 0o644))

	_, err = NewFileStore(dir, nil).Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 1")
}

func TestFileStoreSkipsTruncatedLastLine(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()
	s := NewFileStore(dir, nil)
	cp := domain.Checkpoint{RunID: "run-1"}
	require.NoError(t, s.Save(ctx, []domain.AnalysisRecord{sampleRecord("a", 71)}, cp))

	path := filepath.Join(dir, resultsFile)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"itemId":"b","runId":"run-1","res`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	p, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"a": true}, p.AnalyzedIDs)
	require.Len(t, p.Records, 1)

	// The next save drops the fragment before appending.
	require.NoError(t, s.Save(ctx, []domain.AnalysisRecord{sampleRecord("b", 64)}, cp))

	p, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"a": true, "b": true}, p.AnalyzedIDs)
	require.Len(t, p.Records, 2)
	assert.Equal(t, sampleRecord("b", 64), p.Records[1])

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), `"res`+"\n")
	assert.Equal(t, 2, strings.Count(string(raw), "\n"))
}

func TestFileStoreKeepsCompleteUnterminatedLine(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()
	good, err := json.Marshal(sampleRecord("a", 71))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, resultsFile), good, 0o644))

	s := NewFileStore(dir, nil)
	require.NoError(t, s.Save(ctx, []domain.AnalysisRecord{sampleRecord("b", 64)}, domain.Checkpoint{}))

	p, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"a": true, "b": true}, p.AnalyzedIDs)
}

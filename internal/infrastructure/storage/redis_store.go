package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"

	"CallScorer/internal/domain"
	"CallScorer/internal/ports"
)

// RedisStore keeps records in a hash keyed by item ID and the latest
// checkpoint in a plain key.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

var _ ports.ProgressStore = (*RedisStore)(nil)

// NewRedisStore wraps an existing client. Keys live under prefix.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: strings.TrimSuffix(prefix, ":")}
}

func (s *RedisStore) recordsKey() string {
	return s.key("records")
}

func (s *RedisStore) checkpointKey() string {
	return s.key("checkpoint")
}

func (s *RedisStore) key(name string) string {
	if s.prefix == "" {
		return name
	}
	return s.prefix + ":" + name
}

// Load reads all records and the latest checkpoint.
func (s *RedisStore) Load(ctx context.Context) (domain.Progress, error) {
	progress := domain.Progress{AnalyzedIDs: map[string]bool{}}

	entries, err := s.client.HGetAll(ctx, s.recordsKey()).Result()
	if err != nil {
		return domain.Progress{}, fmt.Errorf("load records: %w", err)
	}
	for id, raw := range entries {
		var rec domain.AnalysisRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return domain.Progress{}, fmt.Errorf("decode record %s: %w", id, err)
		}
		progress.AnalyzedIDs[id] = true
		progress.Records = append(progress.Records, rec)
	}
	sortRecords(progress.Records)

	raw, err := s.client.Get(ctx, s.checkpointKey()).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
	case err != nil:
		return domain.Progress{}, fmt.Errorf("load checkpoint: %w", err)
	default:
		var cp domain.Checkpoint
		if err := json.Unmarshal(raw, &cp); err != nil {
			return domain.Progress{}, fmt.Errorf("decode checkpoint: %w", err)
		}
		progress.Checkpoint = &cp
	}

	return progress, nil
}

// Save writes records and the checkpoint in a single MULTI/EXEC.
func (s *RedisStore) Save(ctx context.Context, records []domain.AnalysisRecord, checkpoint domain.Checkpoint) error {
	fields, err := recordFields(records)
	if err != nil {
		return err
	}
	cp, err := json.Marshal(checkpoint)
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}

	pipe := s.client.TxPipeline()
	if len(fields) > 0 {
		pipe.HSet(ctx, s.recordsKey(), fields)
	}
	pipe.Set(ctx, s.checkpointKey(), cp, 0)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save progress: %w", err)
	}
	return nil
}

func recordFields(records []domain.AnalysisRecord) (map[string]any, error) {
	fields := make(map[string]any, len(records))
	for _, rec := range records {
		payload, err := json.Marshal(rec)
		if err != nil {
			return nil, fmt.Errorf("encode record %s: %w", rec.ItemID, err)
		}
		fields[rec.ItemID] = string(payload)
	}
	return fields, nil
}

func sortRecords(records []domain.AnalysisRecord) {
	sort.Slice(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if !a.AnalyzedAt.Equal(b.AnalyzedAt) {
			return a.AnalyzedAt.Before(b.AnalyzedAt)
		}
		return a.ItemID < b.ItemID
	})
}

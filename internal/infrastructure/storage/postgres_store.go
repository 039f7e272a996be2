package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"CallScorer/internal/domain"
	"CallScorer/internal/ports"
)

// insertChunk bounds the rows per INSERT to stay well below the Postgres
// parameter limit.
const insertChunk = 500

var (
	identPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

	recordColumns = []string{
		"item_id", "run_id", "profile", "total_score", "status", "flags",
		"result", "evidence", "prompt_tokens", "completion_tokens", "analyzed_at",
	}

	psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
)

// PostgresStore persists analysis records and checkpoints into Postgres.
type PostgresStore struct {
	db          *sql.DB
	table       string
	checkpoints string
}

var _ ports.ProgressStore = (*PostgresStore)(nil)

// NewPostgresStore wires a sql.DB implementation. table names the records
// table; checkpoints go to "<table>_checkpoints".
func NewPostgresStore(db *sql.DB, table string) (*PostgresStore, error) {
	if !identPattern.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &PostgresStore{db: db, table: table, checkpoints: table + "_checkpoints"}, nil
}

// EnsureSchema creates the tables when they do not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
              item_id TEXT PRIMARY KEY,
              run_id TEXT NOT NULL,
              profile TEXT NOT NULL DEFAULT '',
              total_score DOUBLE PRECISION NOT NULL,
              status TEXT NOT NULL,
              flags TEXT[] NOT NULL DEFAULT '{}',
              result JSONB NOT NULL,
              evidence JSONB NOT NULL,
              prompt_tokens INTEGER NOT NULL DEFAULT 0,
              completion_tokens INTEGER NOT NULL DEFAULT 0,
              analyzed_at TIMESTAMPTZ NOT NULL,
              updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW())`, s.table),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
              run_id TEXT PRIMARY KEY,
              saved_at TIMESTAMPTZ NOT NULL,
              profile TEXT NOT NULL DEFAULT '',
              state JSONB NOT NULL,
              config JSONB)`, s.checkpoints),
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// Load returns all stored records and the most recent checkpoint.
func (s *PostgresStore) Load(ctx context.Context) (domain.Progress, error) {
	progress := domain.Progress{AnalyzedIDs: map[string]bool{}}
	if s.db == nil {
		return progress, nil
	}

	query, args, err := s.selectRecordsQuery()
	if err != nil {
		return domain.Progress{}, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return domain.Progress{}, fmt.Errorf("query records: %w", err)
	}

	for rows.Next() {
		var (
			rec              domain.AnalysisRecord
			result, evidence []byte
		)
		if err := rows.Scan(&rec.ItemID, &rec.RunID, &result, &evidence,
			&rec.Usage.PromptTokens, &rec.Usage.CompletionTokens, &rec.AnalyzedAt); err != nil {
			_ = rows.Close()
			return domain.Progress{}, fmt.Errorf("scan record: %w", err)
		}
		if err := json.Unmarshal(result, &rec.Result); err != nil {
			_ = rows.Close()
			return domain.Progress{}, fmt.Errorf("decode result %s: %w", rec.ItemID, err)
		}
		if err := json.Unmarshal(evidence, &rec.Evidence); err != nil {
			_ = rows.Close()
			return domain.Progress{}, fmt.Errorf("decode evidence %s: %w", rec.ItemID, err)
		}
		progress.AnalyzedIDs[rec.ItemID] = true
		progress.Records = append(progress.Records, rec)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		_ = rows.Close()
		return domain.Progress{}, fmt.Errorf("rows iteration: %w", rowsErr)
	}

	if closeErr := rows.Close(); closeErr != nil {
		return domain.Progress{}, fmt.Errorf("close rows: %w", closeErr)
	}

	cp, err := s.latestCheckpoint(ctx)
	if err != nil {
		return domain.Progress{}, err
	}
	progress.Checkpoint = cp

	return progress, nil
}

// Save upserts records and the run checkpoint in one transaction.
func (s *PostgresStore) Save(ctx context.Context, records []domain.AnalysisRecord, checkpoint domain.Checkpoint) (err error) {
	if s.db == nil {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for start := 0; start < len(records); start += insertChunk {
		chunk := records[start:min(start+insertChunk, len(records))]
		query, args, qErr := s.insertRecordsQuery(chunk)
		if qErr != nil {
			return qErr
		}
		if _, err = tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("upsert records: %w", err)
		}
	}

	query, args, err := s.upsertCheckpointQuery(checkpoint)
	if err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert checkpoint: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *PostgresStore) latestCheckpoint(ctx context.Context) (*domain.Checkpoint, error) {
	query, args, err := psql.
		Select("run_id", "saved_at", "profile", "state", "config").
		From(s.checkpoints).
		OrderBy("saved_at DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build checkpoint query: %w", err)
	}

	var (
		cp     domain.Checkpoint
		state  []byte
		config []byte
	)
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&cp.RunID, &cp.SavedAt, &cp.Profile, &state, &config)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query checkpoint: %w", err)
	}
	if err := json.Unmarshal(state, &cp.State); err != nil {
		return nil, fmt.Errorf("decode checkpoint state: %w", err)
	}
	if len(config) > 0 {
		cp.Config = json.RawMessage(config)
	}
	return &cp, nil
}

func (s *PostgresStore) selectRecordsQuery() (string, []any, error) {
	query, args, err := psql.
		Select("item_id", "run_id", "result", "evidence", "prompt_tokens", "completion_tokens", "analyzed_at").
		From(s.table).
		OrderBy("analyzed_at", "item_id").
		ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("build records query: %w", err)
	}
	return query, args, nil
}

func (s *PostgresStore) insertRecordsQuery(records []domain.AnalysisRecord) (string, []any, error) {
	insert := psql.Insert(s.table).Columns(recordColumns...)
	for _, rec := range records {
		result, err := json.Marshal(rec.Result)
		if err != nil {
			return "", nil, fmt.Errorf("encode result %s: %w", rec.ItemID, err)
		}
		evidence, err := json.Marshal(rec.Evidence)
		if err != nil {
			return "", nil, fmt.Errorf("encode evidence %s: %w", rec.ItemID, err)
		}
		flags := rec.Result.Flags
		if flags == nil {
			flags = []string{}
		}
		insert = insert.Values(
			rec.ItemID,
			rec.RunID,
			rec.Result.Profile,
			rec.Result.TotalScore,
			string(rec.Result.Status),
			pq.StringArray(flags),
			string(result),
			string(evidence),
			rec.Usage.PromptTokens,
			rec.Usage.CompletionTokens,
			rec.AnalyzedAt,
		)
	}

	query, args, err := insert.Suffix(`ON CONFLICT (item_id) DO UPDATE
              SET run_id = EXCLUDED.run_id,
                  profile = EXCLUDED.profile,
                  total_score = EXCLUDED.total_score,
                  status = EXCLUDED.status,
                  flags = EXCLUDED.flags,
                  result = EXCLUDED.result,
                  evidence = EXCLUDED.evidence,
                  prompt_tokens = EXCLUDED.prompt_tokens,
                  completion_tokens = EXCLUDED.completion_tokens,
                  analyzed_at = EXCLUDED.analyzed_at,
                  updated_at = NOW()`).ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("build insert: %w", err)
	}
	return query, args, nil
}

func (s *PostgresStore) upsertCheckpointQuery(cp domain.Checkpoint) (string, []any, error) {
	state, err := json.Marshal(cp.State)
	if err != nil {
		return "", nil, fmt.Errorf("encode checkpoint state: %w", err)
	}
	var config any
	if len(cp.Config) > 0 {
		config = string(cp.Config)
	}

	query, args, err := psql.
		Insert(s.checkpoints).
		Columns("run_id", "saved_at", "profile", "state", "config").
		Values(cp.RunID, cp.SavedAt, cp.Profile, string(state), config).
		Suffix(`ON CONFLICT (run_id) DO UPDATE
              SET saved_at = EXCLUDED.saved_at,
                  profile = EXCLUDED.profile,
                  state = EXCLUDED.state,
                  config = EXCLUDED.config`).
		ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("build checkpoint upsert: %w", err)
	}
	return query, args, nil
}

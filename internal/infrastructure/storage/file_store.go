package storage

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"CallScorer/internal/domain"
	"CallScorer/internal/ports"
)

const (
	resultsFile    = "results.jsonl"
	checkpointFile = "checkpoint.json"
)

// FileStore keeps analysis records as JSON lines and the latest checkpoint
// as a JSON document inside one directory.
type FileStore struct {
	dir    string
	logger *slog.Logger
}

var _ ports.ProgressStore = (*FileStore)(nil)

// NewFileStore returns a store rooted at dir. The directory is created on
// first save.
func NewFileStore(dir string, logger *slog.Logger) *FileStore {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &FileStore{dir: dir, logger: logger}
}

// Load reads every stored record and the latest checkpoint. A missing
// directory is an empty history. An undecodable final line is a write cut
// short by a crash: it is skipped here and trimmed by the next Save.
func (s *FileStore) Load(ctx context.Context) (domain.Progress, error) {
	progress := domain.Progress{AnalyzedIDs: map[string]bool{}}

	f, err := os.Open(filepath.Join(s.dir, resultsFile))
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return domain.Progress{}, fmt.Errorf("open results: %w", err)
	default:
		defer f.Close()

		var (
			badLine int
			badErr  error
		)
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
		for line := 1; scanner.Scan(); line++ {
			if err := ctx.Err(); err != nil {
				return domain.Progress{}, err
			}
			raw := scanner.Bytes()
			if len(raw) == 0 {
				continue
			}
			if badErr != nil {
				return domain.Progress{}, fmt.Errorf("decode results line %d: %w", badLine, badErr)
			}
			var rec domain.AnalysisRecord
			if err := json.Unmarshal(raw, &rec); err != nil {
				badLine, badErr = line, err
				continue
			}
			if progress.AnalyzedIDs[rec.ItemID] {
				continue
			}
			progress.AnalyzedIDs[rec.ItemID] = true
			progress.Records = append(progress.Records, rec)
		}
		if err := scanner.Err(); err != nil {
			return domain.Progress{}, fmt.Errorf("read results: %w", err)
		}
		if badErr != nil {
			s.logger.Warn("skipping truncated last results line",
				"path", f.Name(),
				"line", badLine,
				"error", badErr,
			)
		}
	}

	raw, err := os.ReadFile(filepath.Join(s.dir, checkpointFile))
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return domain.Progress{}, fmt.Errorf("read checkpoint: %w", err)
	default:
		var cp domain.Checkpoint
		if err := json.Unmarshal(raw, &cp); err != nil {
			return domain.Progress{}, fmt.Errorf("decode checkpoint: %w", err)
		}
		progress.Checkpoint = &cp
	}

	return progress, nil
}

// Save appends records and replaces the checkpoint atomically.
func (s *FileStore) Save(ctx context.Context, records []domain.AnalysisRecord, checkpoint domain.Checkpoint) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}

	if len(records) > 0 {
		if err := s.appendRecords(records); err != nil {
			return err
		}
	}

	payload, err := json.MarshalIndent(checkpoint, "", "  ")
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, checkpointFile+".*")
	if err != nil {
		return fmt.Errorf("create checkpoint: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close checkpoint: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, checkpointFile)); err != nil {
		return fmt.Errorf("replace checkpoint: %w", err)
	}
	return nil
}

func (s *FileStore) appendRecords(records []domain.AnalysisRecord) error {
	f, err := os.OpenFile(filepath.Join(s.dir, resultsFile), os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("open results: %w", err)
	}
	if err := s.repairTail(f); err != nil {
		f.Close()
		return fmt.Errorf("repair results: %w", err)
	}

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			f.Close()
			return fmt.Errorf("encode record %s: %w", rec.ItemID, err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("write results: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync results: %w", err)
	}
	return f.Close()
}

// repairTail makes sure the file ends with a newline before appending. An
// unterminated last line is kept when it is a complete record and cut off
// otherwise.
func (s *FileStore) repairTail(f *os.File) error {
	info, err := f.Stat()
	if err != nil {
		return err
	}
	size := info.Size()
	if size == 0 {
		return nil
	}

	last := make([]byte, 1)
	if _, err := f.ReadAt(last, size-1); err != nil {
		return err
	}
	if last[0] == '\n' {
		return nil
	}

	const chunk = 4096
	start := int64(0)
	for end := size; end > 0; {
		from := max(end-chunk, 0)
		buf := make([]byte, end-from)
		if _, err := f.ReadAt(buf, from); err != nil {
			return err
		}
		if i := bytes.LastIndexByte(buf, '\n'); i >= 0 {
			start = from + int64(i) + 1
			break
		}
		end = from
	}

	tail := make([]byte, size-start)
	if _, err := f.ReadAt(tail, start); err != nil {
		return err
	}
	if json.Valid(tail) {
		_, err := f.Write([]byte{'\n'})
		return err
	}

	s.logger.Warn("trimming truncated last results line", "path", f.Name(), "bytes", len(tail))
	return f.Truncate(start)
}

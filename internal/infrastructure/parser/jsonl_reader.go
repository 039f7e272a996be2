package parser

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"CallScorer/internal/domain"
	"CallScorer/internal/source"
)

type jsonlLine struct {
	ID              string    `json:"id"`
	CallID          string    `json:"callId"`
	Transcript      string    `json:"transcript"`
	Segments        []Segment `json:"segments"`
	AlreadyAnalyzed bool      `json:"alreadyAnalyzed"`
}

// JSONLReader reads one transcript per line. A line carries either a plain
// "transcript" or speaker "segments". The path may be a file or a directory
// of *.jsonl files.
type JSONLReader struct{}

// NewJSONLReader returns the JSON lines reader.
func NewJSONLReader() *JSONLReader {
	return &JSONLReader{}
}

// Kind identifies the reader inside the registry.
func (r *JSONLReader) Kind() string {
	return "jsonl"
}

// Read parses every line of the export.
func (r *JSONLReader) Read(ctx context.Context, req source.Request) ([]domain.WorkItem, error) {
	files, err := expandPath(req.Path, ".jsonl")
	if err != nil {
		return nil, err
	}

	var items []domain.WorkItem
	for _, path := range files {
		parsed, err := r.readFile(ctx, path)
		if err != nil {
			return nil, err
		}
		items = append(items, parsed...)
	}
	return items, nil
}

func (r *JSONLReader) readFile(ctx context.Context, path string) ([]domain.WorkItem, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var items []domain.WorkItem
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for line := 1; scanner.Scan(); line++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}

		var entry jsonlLine
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, line, err)
		}

		id := entry.ID
		if id == "" {
			id = entry.CallID
		}
		transcript := entry.Transcript
		if transcript == "" {
			transcript = renderTranscript(entry.Segments)
		}
		items = append(items, domain.WorkItem{
			ID:              id,
			Transcript:      transcript,
			AlreadyAnalyzed: entry.AlreadyAnalyzed,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return items, nil
}

// expandPath returns path itself, or the sorted files with ext when path is
// a directory.
func expandPath(path, ext string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	files, err := filepath.Glob(filepath.Join(path, "*"+ext))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", path, err)
	}
	sort.Strings(files)
	return files, nil
}

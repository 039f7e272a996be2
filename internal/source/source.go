package source

import (
	"context"
	"fmt"
	"sort"

	"CallScorer/internal/domain"
)

// Request carries all parameters required to read one transcript export.
type Request struct {
	Path    string
	Options map[string]string
}

// Option returns the named option or def when it is unset.
func (r Request) Option(name, def string) string {
	if v, ok := r.Options[name]; ok && v != "" {
		return v
	}
	return def
}

// Reader captures a single export format (JSONL, HTML, etc.).
type Reader interface {
	Kind() string
	Read(ctx context.Context, req Request) ([]domain.WorkItem, error)
}

// Registry keeps a mapping from export kinds to their readers.
type Registry struct {
	readers map[string]Reader
}

// NewRegistry builds a registry with the given readers.
func NewRegistry(readers ...Reader) *Registry {
	r := &Registry{readers: map[string]Reader{}}
	for _, reader := range readers {
		r.Register(reader)
	}
	return r
}

// Register adds or replaces a reader implementation.
func (r *Registry) Register(reader Reader) {
	if r.readers == nil {
		r.readers = map[string]Reader{}
	}
	r.readers[reader.Kind()] = reader
}

// Resolve returns a reader by kind or an error if it is absent.
func (r *Registry) Resolve(kind string) (Reader, error) {
	if reader, ok := r.readers[kind]; ok {
		return reader, nil
	}
	return nil, fmt.Errorf("source kind %q is not registered (known: %v)", kind, r.Kinds())
}

// Kinds lists registered kinds in order.
func (r *Registry) Kinds() []string {
	kinds := make([]string, 0, len(r.readers))
	for k := range r.readers {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

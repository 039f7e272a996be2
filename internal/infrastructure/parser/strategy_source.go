package parser

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"CallScorer/internal/config"
	"CallScorer/internal/domain"
	"CallScorer/internal/ports"
	"CallScorer/internal/source"
)

// StrategySource implements TranscriptSource via registered export readers.
type StrategySource struct {
	registry *source.Registry
	cfg      config.SourceConfig
	logger   *slog.Logger
}

var _ ports.TranscriptSource = (*StrategySource)(nil)

// NewStrategySource wires the reader registry with the configured export.
func NewStrategySource(reg *source.Registry, cfg config.SourceConfig, log *slog.Logger) *StrategySource {
	return &StrategySource{
		registry: reg,
		cfg:      cfg,
		logger:   log,
	}
}

// Load reads the configured export and drops items without an ID or text.
func (s *StrategySource) Load(ctx context.Context) ([]domain.WorkItem, error) {
	if s.registry == nil {
		return nil, fmt.Errorf("source registry is not configured")
	}

	reader, err := s.registry.Resolve(s.cfg.Kind)
	if err != nil {
		return nil, err
	}

	s.debug("load transcripts", "kind", s.cfg.Kind, "path", s.cfg.Path)
	items, err := reader.Read(ctx, source.Request{Path: s.cfg.Path, Options: s.cfg.Options})
	if err != nil {
		return nil, fmt.Errorf("read %s source %s: %w", s.cfg.Kind, s.cfg.Path, err)
	}

	kept := items[:0]
	for _, item := range items {
		item.ID = strings.TrimSpace(item.ID)
		if item.ID == "" || strings.TrimSpace(item.Transcript) == "" {
			s.debug("skip unusable transcript", "id", item.ID)
			continue
		}
		kept = append(kept, item)
	}

	s.debug("source done", "read", len(items), "kept", len(kept))
	return kept, nil
}

func (s *StrategySource) debug(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

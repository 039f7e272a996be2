package config

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError represents a single validation error with field context.
type ValidationError struct {
	Field string
	Msg   string
}

func (v *ValidationError) Error() string {
	if v.Field != "" {
		return v.Field + ": " + v.Msg
	}
	return v.Msg
}

type problems []error

func (p *problems) add(field, format string, args ...any) {
	*p = append(*p, &ValidationError{Field: field, Msg: fmt.Sprintf(format, args...)})
}

func (p problems) err() error {
	return errors.Join(p...)
}

// Validate checks the whole configuration.
func Validate(cfg Config) error {
	var errs []error
	if err := cfg.Scheduler.Validate(); err != nil {
		errs = append(errs, err)
	}

	if _, err := cfg.Scoring.Active(); err != nil {
		errs = append(errs, &ValidationError{Field: "scoring.profile", Msg: err.Error()})
	}
	for name, profile := range cfg.Scoring.Profiles {
		if err := profile.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("scoring.profiles.%s: %w", name, err))
		}
	}

	switch strings.ToLower(cfg.Storage.Driver) {
	case "file":
		if cfg.Storage.Path == "" {
			errs = append(errs, &ValidationError{Field: "storage.path", Msg: "required for file driver"})
		}
	case "postgres":
		if cfg.Storage.DSN == "" {
			errs = append(errs, &ValidationError{Field: "storage.dsn", Msg: "required for postgres driver"})
		}
	case "redis":
		if cfg.Storage.Redis.Addr == "" {
			errs = append(errs, &ValidationError{Field: "storage.redis.addr", Msg: "required for redis driver"})
		}
	default:
		errs = append(errs, &ValidationError{Field: "storage.driver", Msg: fmt.Sprintf("unknown driver %q", cfg.Storage.Driver)})
	}

	switch cfg.Source.Kind {
	case "jsonl", "html":
	default:
		errs = append(errs, &ValidationError{Field: "source.kind", Msg: fmt.Sprintf("unknown kind %q", cfg.Source.Kind)})
	}

	if cfg.Extraction.Pricing.InputPer1K < 0 || cfg.Extraction.Pricing.OutputPer1K < 0 {
		errs = append(errs, &ValidationError{Field: "extraction.pricing", Msg: "prices must be non-negative"})
	}

	return errors.Join(errs...)
}

// Validate checks tier ordering and concurrency bounds.
func (s SchedulerConfig) Validate() error {
	var p problems

	if len(s.BatchTiers) == 0 {
		p.add("scheduler.batchTiers", "at least one tier is required")
	}
	initialIsTier := false
	for i, tier := range s.BatchTiers {
		if tier <= 0 {
			p.add("scheduler.batchTiers", "tier %d must be positive, got %d", i, tier)
		}
		if i > 0 && tier <= s.BatchTiers[i-1] {
			p.add("scheduler.batchTiers", "tiers must be strictly ascending (%d after %d)", tier, s.BatchTiers[i-1])
		}
		if tier == s.InitialBatchSize {
			initialIsTier = true
		}
	}
	if len(s.BatchTiers) > 0 && !initialIsTier {
		p.add("scheduler.initialBatchSize", "%d is not one of the batch tiers %v", s.InitialBatchSize, s.BatchTiers)
	}

	if s.MinConcurrency < 1 {
		p.add("scheduler.minConcurrency", "must be at least 1, got %d", s.MinConcurrency)
	}
	if s.MinConcurrency > s.MaxConcurrency {
		p.add("scheduler.maxConcurrency", "min %d exceeds max %d", s.MinConcurrency, s.MaxConcurrency)
	}
	if s.InitialConcurrency < s.MinConcurrency || s.InitialConcurrency > s.MaxConcurrency {
		p.add("scheduler.initialConcurrency", "%d is outside [%d, %d]", s.InitialConcurrency, s.MinConcurrency, s.MaxConcurrency)
	}
	if s.ConcurrencyStep < 1 {
		p.add("scheduler.concurrencyStep", "must be at least 1")
	}
	if s.BatchScaleUpAfter < 1 {
		p.add("scheduler.batchScaleUpAfter", "must be at least 1")
	}
	if s.ConcurrencyScaleUpAfter < 1 {
		p.add("scheduler.concurrencyScaleUpAfter", "must be at least 1")
	}
	if s.RetryAttempts < 1 {
		p.add("scheduler.retryAttempts", "must be at least 1")
	}
	if s.RetryBackoff < 0 {
		p.add("scheduler.retryBackoff", "must not be negative")
	}
	if s.InterBatchDelay < 0 {
		p.add("scheduler.interBatchDelay", "must not be negative")
	}
	if s.CheckpointEveryBatches < 1 {
		p.add("scheduler.checkpointEveryBatches", "must be at least 1")
	}
	if s.AbortAfterFloorFailures < 0 {
		p.add("scheduler.abortAfterFloorFailures", "must not be negative")
	}

	return p.err()
}

// Validate checks that bands are ordered and every rate is usable.
func (c ScoringConfig) Validate() error {
	var p problems

	for _, d := range []struct {
		field string
		max   float64
	}{
		{"dynamics.max", c.Dynamics.Max},
		{"objections.max", c.Objections.Max},
		{"brand.max", c.Brand.Max},
		{"outcome.max", c.Outcome.Max},
	} {
		if d.max < 0 {
			p.add(d.field, "must not be negative")
		}
	}

	tr := c.Dynamics.TalkRatio
	if !(tr.LowFalloff <= tr.Low && tr.Low <= tr.High && tr.High <= tr.HighFalloff) {
		p.add("dynamics.talkRatio", "band must satisfy lowFalloff <= low <= high <= highFalloff")
	}
	if tr.Max < 0 {
		p.add("dynamics.talkRatio.max", "must not be negative")
	}
	checkLatency(&p, "dynamics.timeToValue", c.Dynamics.TimeToValue)
	checkLatency(&p, "dynamics.firstCta", c.Dynamics.FirstCTA)
	checkLatency(&p, "objections.compliance", c.Objections.Compliance)
	checkLatency(&p, "brand.firstMention", c.Brand.FirstMention)

	da := c.Dynamics.DeadAir
	if da.ThresholdSeconds < 0 || da.PenaltyPerEvent < 0 || da.MaxPenalty < 0 {
		p.add("dynamics.deadAir", "threshold and penalties must not be negative")
	}

	ack := c.Objections.Acknowledgment
	if ack.Partial > ack.Max || ack.Partial < 0 {
		p.add("objections.acknowledgment.partial", "must be within [0, max]")
	}
	if ack.FullWithinSeconds > ack.PartialWithinSeconds {
		p.add("objections.acknowledgment", "fullWithinSeconds exceeds partialWithinSeconds")
	}

	if c.Brand.Variants.PenaltyPerExtra < 0 {
		p.add("brand.variants.penaltyPerExtra", "must not be negative")
	}
	if c.Brand.Language.SwitchWindowSeconds < 0 {
		p.add("brand.language.switchWindowSeconds", "must not be negative")
	}

	lat := c.Outcome.Tools.Latency
	if lat.Partial > lat.Max || lat.Partial < 0 {
		p.add("outcome.tools.latency.partial", "must be within [0, max]")
	}
	if lat.SevereSeconds < lat.ThresholdSeconds {
		p.add("outcome.tools.latency", "severeSeconds must not be below thresholdSeconds")
	}
	if c.Outcome.Tools.Apology.MaxApologies < 0 {
		p.add("outcome.tools.apology.maxApologies", "must not be negative")
	}
	for outcome, points := range c.Outcome.Outcomes {
		if points < 0 {
			p.add("outcome.outcomes."+string(outcome), "must not be negative")
		}
	}

	if c.Gates.MaxBrandVariants < 1 {
		p.add("gates.maxBrandVariants", "must be at least 1")
	}
	if c.Gates.MaxDuplicateWaits < 0 {
		p.add("gates.maxDuplicateWaits", "must not be negative")
	}

	th := c.Thresholds
	if th.Review < 0 || th.Pass > 100 || th.Review > th.Pass {
		p.add("thresholds", "must satisfy 0 <= review <= pass <= 100")
	}

	return p.err()
}

func checkLatency(p *problems, field string, r LatencyRule) {
	if r.Max < 0 {
		p.add(field+".max", "must not be negative")
	}
	if r.TargetSeconds < 0 {
		p.add(field+".targetSeconds", "must not be negative")
	}
	if r.IncrementSeconds <= 0 {
		p.add(field+".incrementSeconds", "must be positive")
	}
	if r.PenaltyPerStep < 0 {
		p.add(field+".penaltyPerStep", "must not be negative")
	}
}

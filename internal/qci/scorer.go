// Package qci computes the Quality Call Index for extracted call evidence.
//
// Scoring is pure: the same evidence and profile always produce the same
// result, and no input makes it fail. Gates are evaluated from the raw
// evidence, independently of the points awarded in the breakdown.
package qci

import (
	"fmt"
	"sort"

	"CallScorer/internal/config"
	"CallScorer/internal/domain"
)

// Scorer binds a scoring profile.
type Scorer struct {
	cfg config.ScoringConfig
}

// New returns a scorer for the given profile. The profile is copied so later
// changes by the caller cannot leak into results.
func New(cfg config.ScoringConfig) *Scorer {
	return &Scorer{cfg: cfg.Clone()}
}

// Profile returns the bound profile name.
func (s *Scorer) Profile() string {
	return s.cfg.Name
}

// Score evaluates one evidence record with the bound profile.
func (s *Scorer) Score(ev domain.EvidenceRecord) domain.ScoringResult {
	return Score(ev, s.cfg)
}

// Score evaluates one evidence record against cfg.
func Score(ev domain.EvidenceRecord, cfg config.ScoringConfig) domain.ScoringResult {
	ev = ev.Normalize()

	breakdown := domain.Breakdown{
		Dynamics:   scoreDynamics(ev.Dynamics, cfg.Dynamics),
		Objections: scoreObjections(ev.Objections, cfg.Objections),
		Brand:      scoreBrand(ev.Brand, cfg.Brand),
		Outcome:    scoreOutcome(ev.Outcome, cfg.Outcome),
	}

	var sum float64
	for _, d := range breakdown.Dimensions() {
		sum += d.Total
	}
	total := round2(clamp(sum, 0, 100))

	gates := evaluateGates(ev, cfg.Gates)

	return domain.ScoringResult{
		TotalScore: total,
		Status:     status(total, gates, cfg.Thresholds),
		Breakdown:  breakdown,
		Gates:      gates,
		Flags:      flags(ev, cfg.Flags),
		Profile:    cfg.Name,
	}
}

func status(total float64, gates []domain.GateResult, th config.StatusThresholds) domain.Status {
	for _, g := range gates {
		if !g.Passed {
			return domain.StatusFail
		}
	}
	switch {
	case total < th.Review:
		return domain.StatusFail
	case total < th.Pass:
		return domain.StatusReview
	default:
		return domain.StatusPass
	}
}

func evaluateGates(ev domain.EvidenceRecord, cfg config.GateConfig) []domain.GateResult {
	return []domain.GateResult{
		brandGate(ev.Brand, cfg),
		stopGate(ev.Objections, cfg),
		toolGate(ev.Outcome.ToolUsage, cfg),
	}
}

func brandGate(b domain.BrandEvidence, cfg config.GateConfig) domain.GateResult {
	g := domain.GateResult{Name: domain.GateBrand, Passed: true, Reason: "brand introduced on time"}

	switch mention := b.FirstBrandMentionTimeSeconds; {
	case mention == nil && cfg.FailOnMissingBrand:
		g.Passed, g.Reason = false, "brand never mentioned"
	case mention == nil:
		g.Reason = "brand never mentioned"
	case *mention > cfg.BrandMentionMaxSeconds:
		g.Passed = false
		g.Reason = fmt.Sprintf("first brand mention at %gs, limit %gs", *mention, cfg.BrandMentionMaxSeconds)
	}

	if b.BrandVariantCount > cfg.MaxBrandVariants {
		reason := fmt.Sprintf("%d brand variants used", b.BrandVariantCount)
		if !g.Passed {
			reason = g.Reason + "; " + reason
		}
		g.Passed, g.Reason = false, reason
	}
	return g
}

func stopGate(o domain.ObjectionEvidence, cfg config.GateConfig) domain.GateResult {
	g := domain.GateResult{Name: domain.GateStop, Passed: true, Reason: "no resistance detected"}
	if !o.ResistanceFound {
		return g
	}

	switch {
	case o.Compliance == nil && cfg.FailOnMissingCompliance:
		g.Passed, g.Reason = false, "agent never complied with the stop request"
	case o.Compliance == nil:
		g.Reason = "compliance not observed"
	case o.Compliance.ComplyTimeSeconds > cfg.ComplyMaxSeconds:
		g.Passed = false
		g.Reason = fmt.Sprintf("complied after %gs, limit %gs", o.Compliance.ComplyTimeSeconds, cfg.ComplyMaxSeconds)
	default:
		g.Reason = fmt.Sprintf("complied after %gs", o.Compliance.ComplyTimeSeconds)
	}
	return g
}

func toolGate(t domain.ToolUsage, cfg config.GateConfig) domain.GateResult {
	if t.DuplicateWaits > cfg.MaxDuplicateWaits {
		return domain.GateResult{
			Name:   domain.GateTool,
			Passed: false,
			Reason: fmt.Sprintf("%d duplicate wait event(s)", t.DuplicateWaits),
		}
	}
	return domain.GateResult{Name: domain.GateTool, Passed: true, Reason: "no duplicate waits"}
}

func flags(ev domain.EvidenceRecord, cfg config.FlagConfig) []string {
	out := []string{}
	if ev.Metadata.TotalDurationSeconds < cfg.MinDurationSeconds {
		out = append(out, domain.FlagCallTooShort)
	}
	if ev.Dynamics.FirstValueTimeSeconds == nil {
		out = append(out, domain.FlagNoValueStatement)
	}
	if !ev.Brand.Language.Matched() && !ev.Brand.Language.AgentSwitched {
		out = append(out, domain.FlagLanguageMismatch)
	}
	if ev.Objections.ResistanceFound && ev.Objections.Acknowledgment == nil {
		out = append(out, domain.FlagUnhandledObjection)
	}
	sort.Strings(out)
	return out
}

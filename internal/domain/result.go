package domain

import "time"

// Status is the overall verdict for a scored call.
type Status string

const (
	StatusPass   Status = "pass"
	StatusReview Status = "review"
	StatusFail   Status = "fail"
)

// Gate names.
const (
	GateBrand = "brand"
	GateStop  = "stop"
	GateTool  = "tool"
)

// Flag names.
const (
	FlagCallTooShort       = "call_too_short"
	FlagNoValueStatement   = "no_value_statement"
	FlagLanguageMismatch   = "language_mismatch"
	FlagUnhandledObjection = "unhandled_objection"
)

// ScoringResult is the auditable QCI verdict for one evidence record.
type ScoringResult struct {
	TotalScore float64      `json:"totalScore"`
	Status     Status       `json:"status"`
	Breakdown  Breakdown    `json:"breakdown"`
	Gates      []GateResult `json:"gates"`
	Flags      []string     `json:"flags"`
	Profile    string       `json:"profile,omitempty"`
}

// Breakdown groups the four dimension sub-results.
type Breakdown struct {
	Dynamics   DimensionScore `json:"dynamics"`
	Objections DimensionScore `json:"objections"`
	Brand      DimensionScore `json:"brand"`
	Outcome    DimensionScore `json:"outcome"`
}

// Dimensions returns the sub-results in a fixed order.
func (b Breakdown) Dimensions() []DimensionScore {
	return []DimensionScore{b.Dynamics, b.Objections, b.Brand, b.Outcome}
}

// DimensionScore is one dimension's sub-total with its components.
type DimensionScore struct {
	Name       string           `json:"name"`
	Total      float64          `json:"total"`
	Max        float64          `json:"max"`
	Components []ComponentScore `json:"components"`
}

// ComponentScore is a single scored rule with the evidence it was based on.
type ComponentScore struct {
	Name     string  `json:"name"`
	Score    float64 `json:"score"`
	Max      float64 `json:"max"`
	Evidence string  `json:"evidence"`
}

// GateResult is a hard pass/fail policy check.
type GateResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Reason string `json:"reason"`
}

// FailedGates lists gates that did not pass.
func (r ScoringResult) FailedGates() []GateResult {
	var failed []GateResult
	for _, g := range r.Gates {
		if !g.Passed {
			failed = append(failed, g)
		}
	}
	return failed
}

// HasFlag reports whether the flag is set.
func (r ScoringResult) HasFlag(flag string) bool {
	for _, f := range r.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// Usage is the token accounting reported by the extraction service.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
}

// Add sums two usages.
func (u Usage) Add(other Usage) Usage {
	return Usage{
		PromptTokens:     u.PromptTokens + other.PromptTokens,
		CompletionTokens: u.CompletionTokens + other.CompletionTokens,
	}
}

// Extraction is what a single extraction call yields.
type Extraction struct {
	Evidence EvidenceRecord
	Usage    Usage
}

// AnalysisRecord is persisted per analyzed item for resumability and audit.
type AnalysisRecord struct {
	ItemID     string         `json:"itemId"`
	RunID      string         `json:"runId"`
	Result     ScoringResult  `json:"result"`
	Evidence   EvidenceRecord `json:"evidence"`
	Usage      Usage          `json:"usage"`
	AnalyzedAt time.Time      `json:"analyzedAt"`
}

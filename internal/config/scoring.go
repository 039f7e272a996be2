package config

import (
	"maps"

	"CallScorer/internal/domain"
)

// ScoringConfig is one immutable QCI scoring profile. Every threshold, weight
// and penalty rate the scorer applies lives here.
type ScoringConfig struct {
	Name       string           `yaml:"-" json:"name"`
	Dynamics   DynamicsScoring  `yaml:"dynamics" json:"dynamics"`
	Objections ObjectionScoring `yaml:"objections" json:"objections"`
	Brand      BrandScoring     `yaml:"brand" json:"brand"`
	Outcome    OutcomeScoring   `yaml:"outcome" json:"outcome"`
	Gates      GateConfig       `yaml:"gates" json:"gates"`
	Flags      FlagConfig       `yaml:"flags" json:"flags"`
	Thresholds StatusThresholds `yaml:"thresholds" json:"thresholds"`
}

// PlateauRule awards Max inside [Low, High] and falls off linearly to zero at
// LowFalloff and HighFalloff.
type PlateauRule struct {
	Max         float64 `yaml:"max" json:"max"`
	LowFalloff  float64 `yaml:"lowFalloff" json:"lowFalloff"`
	Low         float64 `yaml:"low" json:"low"`
	High        float64 `yaml:"high" json:"high"`
	HighFalloff float64 `yaml:"highFalloff" json:"highFalloff"`
}

// LatencyRule awards Max up to TargetSeconds and deducts PenaltyPerStep for
// every started IncrementSeconds past the target.
type LatencyRule struct {
	Max              float64 `yaml:"max" json:"max"`
	TargetSeconds    float64 `yaml:"targetSeconds" json:"targetSeconds"`
	IncrementSeconds float64 `yaml:"incrementSeconds" json:"incrementSeconds"`
	PenaltyPerStep   float64 `yaml:"penaltyPerStep" json:"penaltyPerStep"`
}

// DeadAirRule penalizes silences longer than ThresholdSeconds.
type DeadAirRule struct {
	ThresholdSeconds float64 `yaml:"thresholdSeconds" json:"thresholdSeconds"`
	PenaltyPerEvent  float64 `yaml:"penaltyPerEvent" json:"penaltyPerEvent"`
	MaxPenalty       float64 `yaml:"maxPenalty" json:"maxPenalty"`
}

// DynamicsScoring configures the conversational dynamics dimension.
type DynamicsScoring struct {
	Max         float64     `yaml:"max" json:"max"`
	TalkRatio   PlateauRule `yaml:"talkRatio" json:"talkRatio"`
	TimeToValue LatencyRule `yaml:"timeToValue" json:"timeToValue"`
	FirstCTA    LatencyRule `yaml:"firstCta" json:"firstCta"`
	DeadAir     DeadAirRule `yaml:"deadAir" json:"deadAir"`
}

// TierRule awards Max within FullWithinSeconds, Partial within PartialWithinSeconds.
type TierRule struct {
	Max                  float64 `yaml:"max" json:"max"`
	Partial              float64 `yaml:"partial" json:"partial"`
	FullWithinSeconds    float64 `yaml:"fullWithinSeconds" json:"fullWithinSeconds"`
	PartialWithinSeconds float64 `yaml:"partialWithinSeconds" json:"partialWithinSeconds"`
}

// ObjectionScoring configures the objection handling dimension.
type ObjectionScoring struct {
	Max                float64     `yaml:"max" json:"max"`
	Acknowledgment     TierRule    `yaml:"acknowledgment" json:"acknowledgment"`
	Compliance         LatencyRule `yaml:"compliance" json:"compliance"`
	AlternativeOffered float64     `yaml:"alternativeOffered" json:"alternativeOffered"`
}

// VariantRule penalizes every brand variant beyond the first.
type VariantRule struct {
	Max             float64 `yaml:"max" json:"max"`
	PenaltyPerExtra float64 `yaml:"penaltyPerExtra" json:"penaltyPerExtra"`
}

// LanguageRule awards Max when agent and client share a language in time.
type LanguageRule struct {
	Max                 float64 `yaml:"max" json:"max"`
	SwitchWindowSeconds float64 `yaml:"switchWindowSeconds" json:"switchWindowSeconds"`
}

// BrandScoring configures the brand discipline dimension.
type BrandScoring struct {
	Max          float64      `yaml:"max" json:"max"`
	FirstMention LatencyRule  `yaml:"firstMention" json:"firstMention"`
	Variants     VariantRule  `yaml:"variants" json:"variants"`
	Language     LanguageRule `yaml:"language" json:"language"`
}

// ApologyRule awards Max when the agent apologized at most MaxApologies times.
type ApologyRule struct {
	Max          float64 `yaml:"max" json:"max"`
	MaxApologies int     `yaml:"maxApologies" json:"maxApologies"`
}

// ToolLatencyRule grades the pause after tool calls.
type ToolLatencyRule struct {
	Max              float64 `yaml:"max" json:"max"`
	Partial          float64 `yaml:"partial" json:"partial"`
	ThresholdSeconds float64 `yaml:"thresholdSeconds" json:"thresholdSeconds"`
	SevereSeconds    float64 `yaml:"severeSeconds" json:"severeSeconds"`
}

// ToolScoring configures tool hygiene checks.
type ToolScoring struct {
	NoDuplicateWaits float64         `yaml:"noDuplicateWaits" json:"noDuplicateWaits"`
	Apology          ApologyRule     `yaml:"apology" json:"apology"`
	Latency          ToolLatencyRule `yaml:"latency" json:"latency"`
}

// Max is the highest attainable tool hygiene score.
func (t ToolScoring) Max() float64 {
	return t.NoDuplicateWaits + t.Apology.Max + t.Latency.Max
}

// OutcomeScoring configures the outcome dimension.
type OutcomeScoring struct {
	Max      float64                    `yaml:"max" json:"max"`
	Outcomes map[domain.Outcome]float64 `yaml:"outcomes" json:"outcomes"`
	WrapUp   float64                    `yaml:"wrapUp" json:"wrapUp"`
	Tools    ToolScoring                `yaml:"tools" json:"tools"`
}

// GateConfig holds the hard pass/fail limits.
type GateConfig struct {
	BrandMentionMaxSeconds  float64 `yaml:"brandMentionMaxSeconds" json:"brandMentionMaxSeconds"`
	FailOnMissingBrand      bool    `yaml:"failOnMissingBrand" json:"failOnMissingBrand"`
	MaxBrandVariants        int     `yaml:"maxBrandVariants" json:"maxBrandVariants"`
	ComplyMaxSeconds        float64 `yaml:"complyMaxSeconds" json:"complyMaxSeconds"`
	FailOnMissingCompliance bool    `yaml:"failOnMissingCompliance" json:"failOnMissingCompliance"`
	MaxDuplicateWaits       int     `yaml:"maxDuplicateWaits" json:"maxDuplicateWaits"`
}

// FlagConfig holds diagnostic flag thresholds.
type FlagConfig struct {
	MinDurationSeconds float64 `yaml:"minDurationSeconds" json:"minDurationSeconds"`
}

// StatusThresholds are the score cutoffs for review and pass.
type StatusThresholds struct {
	Review float64 `yaml:"review" json:"review"`
	Pass   float64 `yaml:"pass" json:"pass"`
}

// Clone returns a deep copy so profiles never share the outcome table.
func (c ScoringConfig) Clone() ScoringConfig {
	out := c
	out.Outcome.Outcomes = maps.Clone(c.Outcome.Outcomes)
	return out
}

// DefaultScoring is the balanced profile.
func DefaultScoring() ScoringConfig {
	return ScoringConfig{
		Name: "default",
		Dynamics: DynamicsScoring{
			Max:         30,
			TalkRatio:   PlateauRule{Max: 10, LowFalloff: 0.25, Low: 0.35, High: 0.55, HighFalloff: 0.70},
			TimeToValue: LatencyRule{Max: 10, TargetSeconds: 20, IncrementSeconds: 5, PenaltyPerStep: 1},
			FirstCTA:    LatencyRule{Max: 10, TargetSeconds: 60, IncrementSeconds: 10, PenaltyPerStep: 1},
			DeadAir:     DeadAirRule{ThresholdSeconds: 5, PenaltyPerEvent: 2, MaxPenalty: 6},
		},
		Objections: ObjectionScoring{
			Max:                20,
			Acknowledgment:     TierRule{Max: 8, Partial: 4, FullWithinSeconds: 2, PartialWithinSeconds: 5},
			Compliance:         LatencyRule{Max: 8, TargetSeconds: 5, IncrementSeconds: 2, PenaltyPerStep: 2},
			AlternativeOffered: 4,
		},
		Brand: BrandScoring{
			Max:          20,
			FirstMention: LatencyRule{Max: 8, TargetSeconds: 15, IncrementSeconds: 5, PenaltyPerStep: 2},
			Variants:     VariantRule{Max: 6, PenaltyPerExtra: 3},
			Language:     LanguageRule{Max: 6, SwitchWindowSeconds: 30},
		},
		Outcome: OutcomeScoring{
			Max: 30,
			Outcomes: map[domain.Outcome]float64{
				domain.OutcomeMeetingBooked: 15,
				domain.OutcomeWarmLead:      10,
				domain.OutcomeCallbackSet:   7,
				domain.OutcomeInfoSent:      4,
				domain.OutcomeNone:          0,
			},
			WrapUp: 5,
			Tools: ToolScoring{
				NoDuplicateWaits: 4,
				Apology:          ApologyRule{Max: 3, MaxApologies: 1},
				Latency:          ToolLatencyRule{Max: 3, Partial: 1.5, ThresholdSeconds: 3, SevereSeconds: 8},
			},
		},
		Gates: GateConfig{
			BrandMentionMaxSeconds:  30,
			FailOnMissingBrand:      true,
			MaxBrandVariants:        1,
			ComplyMaxSeconds:        10,
			FailOnMissingCompliance: true,
			MaxDuplicateWaits:       0,
		},
		Flags:      FlagConfig{MinDurationSeconds: 30},
		Thresholds: StatusThresholds{Review: 60, Pass: 80},
	}
}

// BuiltinProfiles returns the default, strict and lenient profiles.
func BuiltinProfiles() map[string]ScoringConfig {
	def := DefaultScoring()

	strict := def.Clone()
	strict.Name = "strict"
	strict.Dynamics.TimeToValue.TargetSeconds = 15
	strict.Dynamics.FirstCTA.TargetSeconds = 45
	strict.Dynamics.DeadAir.ThresholdSeconds = 3
	strict.Brand.FirstMention.TargetSeconds = 10
	strict.Gates.BrandMentionMaxSeconds = 20
	strict.Gates.ComplyMaxSeconds = 5
	strict.Thresholds = StatusThresholds{Review: 70, Pass: 85}

	lenient := def.Clone()
	lenient.Name = "lenient"
	lenient.Dynamics.TalkRatio.LowFalloff = 0.15
	lenient.Dynamics.TalkRatio.HighFalloff = 0.80
	lenient.Dynamics.TimeToValue.TargetSeconds = 30
	lenient.Dynamics.FirstCTA.TargetSeconds = 90
	lenient.Gates.BrandMentionMaxSeconds = 45
	lenient.Gates.FailOnMissingCompliance = false
	lenient.Thresholds = StatusThresholds{Review: 50, Pass: 75}

	return map[string]ScoringConfig{
		def.Name:     def,
		strict.Name:  strict,
		lenient.Name: lenient,
	}
}

package domain

import (
	"math"
	"strings"
)

// Outcome is the final disposition of a call as reported by the extraction service.
type Outcome string

const (
	OutcomeMeetingBooked Outcome = "MEETING_BOOKED"
	OutcomeWarmLead      Outcome = "WARM_LEAD"
	OutcomeCallbackSet   Outcome = "CALLBACK_SET"
	OutcomeInfoSent      Outcome = "INFO_SENT"
	OutcomeNone          Outcome = "NO_OUTCOME"
)

// EvidenceRecord holds the structured facts extracted from one transcript.
// Pointer fields are nil when the event was not observed.
type EvidenceRecord struct {
	Dynamics   DynamicsEvidence  `json:"dynamics"`
	Objections ObjectionEvidence `json:"objections"`
	Brand      BrandEvidence     `json:"brand"`
	Outcome    OutcomeEvidence   `json:"outcome"`
	Metadata   CallMetadata      `json:"metadata"`
}

// DynamicsEvidence describes conversational pacing.
type DynamicsEvidence struct {
	AgentTalkRatio        float64        `json:"agentTalkRatio"`
	FirstValueTimeSeconds *float64       `json:"firstValueTimeSeconds"`
	FirstCTATimeSeconds   *float64       `json:"firstCtaTimeSeconds"`
	DeadAirEvents         []DeadAirEvent `json:"deadAirEvents"`
}

// DeadAirEvent is a stretch of silence on the line.
type DeadAirEvent struct {
	StartTime float64 `json:"startTime"`
	Duration  float64 `json:"duration"`
}

// ObjectionEvidence describes how the agent handled client resistance.
type ObjectionEvidence struct {
	ResistanceFound    bool            `json:"resistanceFound"`
	Acknowledgment     *Acknowledgment `json:"acknowledgment"`
	Compliance         *Compliance     `json:"compliance"`
	AlternativeOffered bool            `json:"alternativeOffered"`
}

// Acknowledgment records when the agent acknowledged an objection.
type Acknowledgment struct {
	ResponseTimeSeconds float64 `json:"responseTimeSeconds"`
}

// Compliance records when the agent complied with a stop request.
type Compliance struct {
	ComplyTimeSeconds float64 `json:"complyTimeSeconds"`
}

// BrandEvidence describes brand discipline.
type BrandEvidence struct {
	FirstBrandMentionTimeSeconds *float64         `json:"firstBrandMentionTimeSeconds"`
	BrandVariantCount            int              `json:"brandVariantCount"`
	Language                     LanguageEvidence `json:"language"`
}

// LanguageEvidence captures whether agent and client spoke the same language.
type LanguageEvidence struct {
	ClientLanguage    string   `json:"clientLanguage"`
	AgentLanguage     string   `json:"agentLanguage"`
	AgentSwitched     bool     `json:"agentSwitched"`
	SwitchTimeSeconds *float64 `json:"switchTimeSeconds"`
}

// Matched reports whether both sides spoke the same language from the first turn.
// Unknown languages count as matched.
func (l LanguageEvidence) Matched() bool {
	client := strings.TrimSpace(l.ClientLanguage)
	agent := strings.TrimSpace(l.AgentLanguage)
	if client == "" || agent == "" {
		return true
	}
	return strings.EqualFold(client, agent)
}

// OutcomeEvidence describes how the call ended.
type OutcomeEvidence struct {
	FinalOutcome  Outcome   `json:"finalOutcome"`
	WrapUpPresent bool      `json:"wrapUpPresent"`
	ToolUsage     ToolUsage `json:"toolUsage"`
}

// ToolUsage describes the agent's use of tools (calendar, CRM lookups) during the call.
type ToolUsage struct {
	ToolsUsed                bool      `json:"toolsUsed"`
	DuplicateWaits           int       `json:"duplicateWaits"`
	ApologyCount             int       `json:"apologyCount"`
	PostToolLatenciesSeconds []float64 `json:"postToolLatenciesSeconds"`
}

// CallMetadata carries call-level facts.
type CallMetadata struct {
	TotalDurationSeconds float64 `json:"totalDurationSeconds"`
}

// Normalize returns a copy that is safe to score: negative or
// non-finite times become "not observed", counters are non-negative and at
// least one brand variant is always present.
func (e EvidenceRecord) Normalize() EvidenceRecord {
	out := e

	out.Dynamics.AgentTalkRatio = clampUnit(e.Dynamics.AgentTalkRatio)
	out.Dynamics.FirstValueTimeSeconds = validTime(e.Dynamics.FirstValueTimeSeconds)
	out.Dynamics.FirstCTATimeSeconds = validTime(e.Dynamics.FirstCTATimeSeconds)
	out.Dynamics.DeadAirEvents = nil
	for _, ev := range e.Dynamics.DeadAirEvents {
		if !finite(ev.StartTime) || !finite(ev.Duration) || ev.StartTime < 0 || ev.Duration < 0 {
			continue
		}
		out.Dynamics.DeadAirEvents = append(out.Dynamics.DeadAirEvents, ev)
	}

	if a := e.Objections.Acknowledgment; a != nil {
		if t := validTime(&a.ResponseTimeSeconds); t != nil {
			out.Objections.Acknowledgment = &Acknowledgment{ResponseTimeSeconds: *t}
		} else {
			out.Objections.Acknowledgment = nil
		}
	}
	if c := e.Objections.Compliance; c != nil {
		if t := validTime(&c.ComplyTimeSeconds); t != nil {
			out.Objections.Compliance = &Compliance{ComplyTimeSeconds: *t}
		} else {
			out.Objections.Compliance = nil
		}
	}

	out.Brand.FirstBrandMentionTimeSeconds = validTime(e.Brand.FirstBrandMentionTimeSeconds)
	if out.Brand.BrandVariantCount < 1 {
		out.Brand.BrandVariantCount = 1
	}
	out.Brand.Language.SwitchTimeSeconds = validTime(e.Brand.Language.SwitchTimeSeconds)

	tools := &out.Outcome.ToolUsage
	tools.DuplicateWaits = max(0, tools.DuplicateWaits)
	tools.ApologyCount = max(0, tools.ApologyCount)
	tools.PostToolLatenciesSeconds = nil
	for _, l := range e.Outcome.ToolUsage.PostToolLatenciesSeconds {
		if finite(l) && l >= 0 {
			tools.PostToolLatenciesSeconds = append(tools.PostToolLatenciesSeconds, l)
		}
	}

	if !finite(out.Metadata.TotalDurationSeconds) || out.Metadata.TotalDurationSeconds < 0 {
		out.Metadata.TotalDurationSeconds = 0
	}

	return out
}

// Seconds is a helper for building optional time fields.
func Seconds(v float64) *float64 {
	return &v
}

func validTime(v *float64) *float64 {
	if v == nil || !finite(*v) || *v < 0 {
		return nil
	}
	t := *v
	return &t
}

func clampUnit(v float64) float64 {
	if !finite(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

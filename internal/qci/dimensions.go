package qci

import (
	"fmt"
	"strings"

	"CallScorer/internal/config"
	"CallScorer/internal/domain"
)

func scoreDynamics(ev domain.DynamicsEvidence, cfg config.DynamicsScoring) domain.DimensionScore {
	talk := plateau(ev.AgentTalkRatio, cfg.TalkRatio)
	value := latency(ev.FirstValueTimeSeconds, cfg.TimeToValue)
	cta := latency(ev.FirstCTATimeSeconds, cfg.FirstCTA)

	long := 0
	for _, e := range ev.DeadAirEvents {
		if e.Duration > cfg.DeadAir.ThresholdSeconds {
			long++
		}
	}
	penalty := min(cfg.DeadAir.MaxPenalty, float64(long)*cfg.DeadAir.PenaltyPerEvent)

	components := []domain.ComponentScore{
		{
			Name:     "talk_ratio",
			Score:    talk,
			Max:      cfg.TalkRatio.Max,
			Evidence: fmt.Sprintf("agent talk ratio %.2f, target band [%.2f, %.2f]", ev.AgentTalkRatio, cfg.TalkRatio.Low, cfg.TalkRatio.High),
		},
		{
			Name:     "time_to_value",
			Score:    value,
			Max:      cfg.TimeToValue.Max,
			Evidence: describeTime("first value statement", ev.FirstValueTimeSeconds, cfg.TimeToValue.TargetSeconds),
		},
		{
			Name:     "first_cta",
			Score:    cta,
			Max:      cfg.FirstCTA.Max,
			Evidence: describeTime("first call to action", ev.FirstCTATimeSeconds, cfg.FirstCTA.TargetSeconds),
		},
		{
			Name:     "dead_air",
			Score:    -penalty,
			Max:      0,
			Evidence: fmt.Sprintf("%d of %d silences longer than %gs", long, len(ev.DeadAirEvents), cfg.DeadAir.ThresholdSeconds),
		},
	}

	total := clamp(talk+value+cta-penalty, 0, cfg.Max)
	return dimension("dynamics", total, cfg.Max, components)
}

func scoreObjections(ev domain.ObjectionEvidence, cfg config.ObjectionScoring) domain.DimensionScore {
	if !ev.ResistanceFound {
		components := []domain.ComponentScore{
			{Name: "acknowledgment", Score: cfg.Acknowledgment.Max, Max: cfg.Acknowledgment.Max, Evidence: "no resistance detected"},
			{Name: "compliance", Score: cfg.Compliance.Max, Max: cfg.Compliance.Max, Evidence: "no resistance detected"},
			{Name: "alternative_offered", Score: cfg.AlternativeOffered, Max: cfg.AlternativeOffered, Evidence: "no resistance detected"},
		}
		total := clamp(cfg.Acknowledgment.Max+cfg.Compliance.Max+cfg.AlternativeOffered, 0, cfg.Max)
		return dimension("objections", total, cfg.Max, components)
	}

	var ack float64
	ackEvidence := "objection never acknowledged"
	if ev.Acknowledgment != nil {
		rt := ev.Acknowledgment.ResponseTimeSeconds
		switch {
		case rt <= cfg.Acknowledgment.FullWithinSeconds:
			ack = cfg.Acknowledgment.Max
		case rt <= cfg.Acknowledgment.PartialWithinSeconds:
			ack = cfg.Acknowledgment.Partial
		}
		ackEvidence = fmt.Sprintf("acknowledged after %gs", rt)
	}

	var complyAt *float64
	if ev.Compliance != nil {
		complyAt = &ev.Compliance.ComplyTimeSeconds
	}
	comply := latency(complyAt, cfg.Compliance)

	var alt float64
	altEvidence := "no alternative offered"
	if ev.AlternativeOffered {
		alt = cfg.AlternativeOffered
		altEvidence = "alternative offered"
	}

	components := []domain.ComponentScore{
		{Name: "acknowledgment", Score: ack, Max: cfg.Acknowledgment.Max, Evidence: ackEvidence},
		{Name: "compliance", Score: comply, Max: cfg.Compliance.Max, Evidence: describeTime("compliance", complyAt, cfg.Compliance.TargetSeconds)},
		{Name: "alternative_offered", Score: alt, Max: cfg.AlternativeOffered, Evidence: altEvidence},
	}

	total := clamp(ack+comply+alt, 0, cfg.Max)
	return dimension("objections", total, cfg.Max, components)
}

func scoreBrand(ev domain.BrandEvidence, cfg config.BrandScoring) domain.DimensionScore {
	mention := latency(ev.FirstBrandMentionTimeSeconds, cfg.FirstMention)

	variants := max(ev.BrandVariantCount, 1)
	variantScore := floor0(cfg.Variants.Max - float64(variants-1)*cfg.Variants.PenaltyPerExtra)

	var lang float64
	var langEvidence string
	l := ev.Language
	switch {
	case l.Matched():
		lang = cfg.Language.Max
		langEvidence = "languages matched from the start"
	case l.AgentSwitched && l.SwitchTimeSeconds != nil && *l.SwitchTimeSeconds <= cfg.Language.SwitchWindowSeconds:
		lang = cfg.Language.Max
		langEvidence = fmt.Sprintf("agent switched to %s after %gs", l.ClientLanguage, *l.SwitchTimeSeconds)
	case l.AgentSwitched:
		langEvidence = fmt.Sprintf("agent switched to %s outside the %gs window", l.ClientLanguage, cfg.Language.SwitchWindowSeconds)
	default:
		langEvidence = fmt.Sprintf("client spoke %s, agent stayed in %s", l.ClientLanguage, l.AgentLanguage)
	}

	components := []domain.ComponentScore{
		{
			Name:     "first_mention",
			Score:    mention,
			Max:      cfg.FirstMention.Max,
			Evidence: describeTime("first brand mention", ev.FirstBrandMentionTimeSeconds, cfg.FirstMention.TargetSeconds),
		},
		{
			Name:     "brand_variants",
			Score:    variantScore,
			Max:      cfg.Variants.Max,
			Evidence: fmt.Sprintf("%d brand variant(s) used", variants),
		},
		{Name: "language_match", Score: lang, Max: cfg.Language.Max, Evidence: langEvidence},
	}

	total := clamp(mention+variantScore+lang, 0, cfg.Max)
	return dimension("brand", total, cfg.Max, components)
}

func scoreOutcome(ev domain.OutcomeEvidence, cfg config.OutcomeScoring) domain.DimensionScore {
	outcome := cfg.Outcomes[ev.FinalOutcome]
	outcomeEvidence := "no recognized outcome"
	if ev.FinalOutcome != "" {
		outcomeEvidence = "final outcome " + string(ev.FinalOutcome)
	}

	var wrap float64
	wrapEvidence := "no wrap-up"
	if ev.WrapUpPresent {
		wrap = cfg.WrapUp
		wrapEvidence = "wrap-up present"
	}

	tools, toolEvidence := scoreTools(ev.ToolUsage, cfg.Tools)

	components := []domain.ComponentScore{
		{Name: "outcome", Score: outcome, Max: maxOutcome(cfg.Outcomes), Evidence: outcomeEvidence},
		{Name: "wrap_up", Score: wrap, Max: cfg.WrapUp, Evidence: wrapEvidence},
		{Name: "tool_hygiene", Score: tools, Max: cfg.Tools.Max(), Evidence: toolEvidence},
	}

	total := clamp(outcome+wrap+tools, 0, cfg.Max)
	return dimension("outcome", total, cfg.Max, components)
}

func scoreTools(t domain.ToolUsage, cfg config.ToolScoring) (float64, string) {
	if !t.ToolsUsed {
		return cfg.Max(), "no tools used"
	}

	var score float64
	var notes []string

	if t.DuplicateWaits == 0 {
		score += cfg.NoDuplicateWaits
	} else {
		notes = append(notes, fmt.Sprintf("%d duplicate wait(s)", t.DuplicateWaits))
	}

	if t.ApologyCount <= cfg.Apology.MaxApologies {
		score += cfg.Apology.Max
	} else {
		notes = append(notes, fmt.Sprintf("%d apologies", t.ApologyCount))
	}

	lat, latNote := scoreToolLatency(t.PostToolLatenciesSeconds, cfg.Latency)
	score += lat
	if latNote != "" {
		notes = append(notes, latNote)
	}

	if len(notes) == 0 {
		return score, "clean tool usage"
	}
	return score, strings.Join(notes, "; ")
}

func scoreToolLatency(samples []float64, cfg config.ToolLatencyRule) (float64, string) {
	if len(samples) == 0 {
		return cfg.Max, ""
	}

	var sum, worst float64
	allFast := true
	for _, s := range samples {
		sum += s
		worst = max(worst, s)
		if s >= cfg.ThresholdSeconds {
			allFast = false
		}
	}
	mean := sum / float64(len(samples))

	switch {
	case allFast:
		return cfg.Max, ""
	case mean < cfg.ThresholdSeconds && worst <= cfg.SevereSeconds:
		return cfg.Partial, fmt.Sprintf("post-tool latency mean %.1fs, worst %.1fs", mean, worst)
	default:
		return 0, fmt.Sprintf("slow post-tool latency mean %.1fs, worst %.1fs", mean, worst)
	}
}

func maxOutcome(table map[domain.Outcome]float64) float64 {
	var m float64
	for _, v := range table {
		m = max(m, v)
	}
	return m
}

func describeTime(event string, t *float64, target float64) string {
	if t == nil {
		return event + " not observed"
	}
	return fmt.Sprintf("%s at %gs (target %gs)", event, *t, target)
}

// dimension rounds the total and every component score to two decimals.
func dimension(name string, total, maxScore float64, components []domain.ComponentScore) domain.DimensionScore {
	for i := range components {
		components[i].Score = round2(components[i].Score)
	}
	return domain.DimensionScore{Name: name, Total: round2(total), Max: maxScore, Components: components}
}

package domain

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeClampsFields(t *testing.T) {
	t.Parallel()

	ev := EvidenceRecord{
		Dynamics: DynamicsEvidence{
			AgentTalkRatio:        1.7,
			FirstValueTimeSeconds: Seconds(-3),
			FirstCTATimeSeconds:   Seconds(math.Inf(1)),
			DeadAirEvents: []DeadAirEvent{
				{StartTime: 4, Duration: 6},
				{StartTime: -1, Duration: 6},
				{StartTime: 9, Duration: math.NaN()},
			},
		},
		Objections: ObjectionEvidence{
			Acknowledgment: &Acknowledgment{ResponseTimeSeconds: -2},
			Compliance:     &Compliance{ComplyTimeSeconds: 3},
		},
		Brand: BrandEvidence{BrandVariantCount: 0},
		Outcome: OutcomeEvidence{
			ToolUsage: ToolUsage{DuplicateWaits: -1, ApologyCount: -4, PostToolLatenciesSeconds: []float64{1, -2, math.NaN()}},
		},
		Metadata: CallMetadata{TotalDurationSeconds: -9},
	}

	n := ev.Normalize()

	assert.Equal(t, 1.0, n.Dynamics.AgentTalkRatio)
	assert.Nil(t, n.Dynamics.FirstValueTimeSeconds)
	assert.Nil(t, n.Dynamics.FirstCTATimeSeconds)
	assert.Equal(t, []DeadAirEvent{{StartTime: 4, Duration: 6}}, n.Dynamics.DeadAirEvents)
	assert.Nil(t, n.Objections.Acknowledgment)
	require.NotNil(t, n.Objections.Compliance)
	assert.Equal(t, 3.0, n.Objections.Compliance.ComplyTimeSeconds)
	assert.Equal(t, 1, n.Brand.BrandVariantCount)
	assert.Zero(t, n.Outcome.ToolUsage.DuplicateWaits)
	assert.Zero(t, n.Outcome.ToolUsage.ApologyCount)
	assert.Equal(t, []float64{1}, n.Outcome.ToolUsage.PostToolLatenciesSeconds)
	assert.Zero(t, n.Metadata.TotalDurationSeconds)

	// the original is left untouched
	assert.Equal(t, 0, ev.Brand.BrandVariantCount)
	assert.Equal(t, -2.0, ev.Objections.Acknowledgment.ResponseTimeSeconds)
}

func TestEvidenceJSONNullsAreNotObserved(t *testing.T) {
	t.Parallel()

	raw := `{
		"dynamics": {"agentTalkRatio": 0.4, "firstValueTimeSeconds": null, "firstCtaTimeSeconds": 42},
		"objections": {"resistanceFound": true, "acknowledgment": null, "compliance": {"complyTimeSeconds": 4}},
		"brand": {"brandVariantCount": 2, "language": {"clientLanguage": "de", "agentSwitched": true, "switchTimeSeconds": 11}},
		"outcome": {"finalOutcome": "WARM_LEAD", "toolUsage": {"toolsUsed": true, "postToolLatenciesSeconds": [1.5]}},
		"metadata": {"totalDurationSeconds": 181}
	}`

	var ev EvidenceRecord
	require.NoError(t, json.Unmarshal([]byte(raw), &ev))

	assert.Nil(t, ev.Dynamics.FirstValueTimeSeconds)
	require.NotNil(t, ev.Dynamics.FirstCTATimeSeconds)
	assert.Equal(t, 42.0, *ev.Dynamics.FirstCTATimeSeconds)
	assert.Nil(t, ev.Objections.Acknowledgment)
	assert.Equal(t, OutcomeWarmLead, ev.Outcome.FinalOutcome)
	assert.True(t, ev.Brand.Language.Matched(), "unknown agent language counts as matched")
}

func TestLanguageMatched(t *testing.T) {
	t.Parallel()

	tests := []struct {
		lang LanguageEvidence
		want bool
	}{
		{LanguageEvidence{ClientLanguage: "en", AgentLanguage: "EN"}, true},
		{LanguageEvidence{ClientLanguage: "es", AgentLanguage: "en"}, false},
		{LanguageEvidence{ClientLanguage: "", AgentLanguage: "en"}, true},
		{LanguageEvidence{ClientLanguage: " es ", AgentLanguage: "es"}, true},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.want, tc.lang.Matched(), "%+v", tc.lang)
	}
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ScoreSummary{}, Summarize(nil))

	s := Summarize([]ScoringResult{
		{TotalScore: 90, Status: StatusPass},
		{TotalScore: 70, Status: StatusReview},
		{TotalScore: 95, Status: StatusFail},
		{TotalScore: 40, Status: StatusFail},
	})

	assert.Equal(t, ScoreSummary{Count: 4, Mean: 73.75, Min: 40, Max: 95, Pass: 1, Review: 1, Fail: 2}, s)
}

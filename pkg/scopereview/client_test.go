package scopereview

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVerdict_CleanJSON(t *testing.T) {
	v, err := ParseVerdict(`{"flagged": true, "rationale": "resurfacing is not plumbing", "suggested_impact": 800}`)
	require.NoError(t, err)
	assert.True(t, v.Flagged)
	assert.Equal(t, "resurfacing is not plumbing", v.Rationale)
	require.NotNil(t, v.SuggestedImpact)
	assert.InDelta(t, 800.0, *v.SuggestedImpact, 0.001)
}

func TestParseVerdict_NullImpact(t *testing.T) {
	v, err := ParseVerdict(`{"flagged": false, "rationale": "consistent with history", "suggested_impact": null}`)
	require.NoError(t, err)
	assert.False(t, v.Flagged)
	assert.Nil(t, v.SuggestedImpact)
}

func TestParseVerdict_FencedAndProseWrapped(t *testing.T) {
	cases := []string{
		"```json\n{\"flagged\": true, \"rationale\": \"drift\", \"suggested_impact\": null}\n```",
		"Here is my assessment:\n{\"flagged\": true, \"rationale\": \"drift\", \"suggested_impact\": null}\nLet me know if you need more.",
	}
	for _, text := range cases {
		v, err := ParseVerdict(text)
		require.NoError(t, err, text)
		assert.True(t, v.Flagged)
		assert.Equal(t, "drift", v.Rationale)
	}
}

func TestParseVerdict_NoJSONObject(t *testing.T) {
	_, err := ParseVerdict("I cannot evaluate this bill.")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no JSON object")
}

func TestParseVerdict_MalformedJSON(t *testing.T) {
	_, err := ParseVerdict(`{"flagged": "maybe"}`)
	require.Error(t, err)
}

func TestBuildPayload_CapsHistory(t *testing.T) {
	history := make([]HistoricalBill, 8)
	for i := range history {
		history[i] = HistoricalBill{BillDate: "2026-01-01", Total: float64(i)}
	}

	p := BuildPayload("Apex Plumbing", nil, history, 5)
	assert.Len(t, p.History, 5)
	assert.InDelta(t, 0.0, p.History[0].Total, 0.001) // order preserved, tail dropped

	p = BuildPayload("Apex Plumbing", nil, history, 0)
	assert.Len(t, p.History, 8) // zero means no cap
}

package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/safeguard/internal/domain/safeguarding"
)

const validResponse = `{
  "risk_level": "high",
  "confidence": 1.7,
  "patterns": ["BEHAV_DISRUPTIVE_MEDIUM"],
  "pattern_combinations": ["behavioral_academic"],
  "evidence_summary": "Escalating disruptive behaviour alongside academic decline.",
  "recommendations": [" behavior_support_plan", "PARENT_CONSULTATION", ""],
  "reasoning": "Two domains show concurrent decline."
}`

func TestParseResponse(t *testing.T) {
	res, err := ParseResponse(validResponse)
	require.NoError(t, err)
	assert.Equal(t, safeguarding.RiskHigh, res.RiskLevel)
	assert.Equal(t, 1.0, res.Confidence)
	assert.Equal(t, []string{"BEHAV_DISRUPTIVE_MEDIUM"}, res.PatternTokens)
	assert.Equal(t, []string{"behavioral_academic"}, res.CombinationTokens)
	assert.Equal(t, []string{"BEHAVIOR_SUPPORT_PLAN", "PARENT_CONSULTATION"}, res.Recommendations)
	assert.False(t, res.Fallback)
}

func TestParseResponse_CodeFence(t *testing.T) {
	res, err := ParseResponse("```json\n" + validResponse + "\n```")
	require.NoError(t, err)
	assert.Equal(t, safeguarding.RiskHigh, res.RiskLevel)
}

func TestParseResponse_Rejects(t *testing.T) {
	tests := map[string]string{
		"not json":        "I think the student is at high risk.",
		"missing fields":  `{"risk_level": "LOW"}`,
		"bad level":       strings.Replace(validResponse, `"high"`, `"severe"`, 1),
		"wrong type":      strings.Replace(validResponse, `1.7`, `"very"`, 1),
		"array top level": `[1,2,3]`,
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseResponse(raw)
			assert.Error(t, err)
		})
	}
}

func TestPrompts(t *testing.T) {
	assert.Contains(t, GetSystemPrompt(), "Never attempt to re-identify")

	up, err := GetUserPrompt(safeguarding.AnalysisRequest{StudentToken: "TOKEN_STUDENT_ABC", TrendToken: "TREND_STABLE"})
	require.NoError(t, err)
	assert.Contains(t, up, `"studentToken": "TOKEN_STUDENT_ABC"`)
	assert.Contains(t, up, "TREND_STABLE")
}

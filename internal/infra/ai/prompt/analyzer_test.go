package prompt

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/safeguard/internal/domain/safeguarding"
)

func TestAnalyzeRequest_ConvergingSignals(t *testing.T) {
	raw := AnalyzeRequest(safeguarding.AnalysisRequest{
		StudentToken:   "TOKEN_STUDENT_0123456789ABCDEF01234567",
		DataCategories: []string{"behavioral", "academic", "communication"},
		Patterns:       []string{"BEHAV_DISRUPTIVE_MEDIUM", "ACAD_MATH_LOW", "COMM_URGENT_LOW"},
		TemporalTokens: []string{"TIME_RECENT"},
		FrequencyToken: "FREQ_MEDIUM",
		TrendToken:     "TREND_ESCALATING",
	})

	res, err := ParseResponse(raw)
	require.NoError(t, err)
	assert.Equal(t, safeguarding.RiskCritical, res.RiskLevel)
	assert.InDelta(t, 0.85, res.Confidence, 1e-9)
	assert.Equal(t, []string{"BEHAV_DISRUPTIVE_MEDIUM", "ACAD_MATH_LOW", "COMM_URGENT_LOW"}, res.PatternTokens)
	assert.Equal(t, []string{
		string(safeguarding.CombinationBehavioralAcademic),
		string(safeguarding.CombinationBehavioralEscalation),
		string(safeguarding.CombinationMultiFactor),
	}, res.CombinationTokens)
	assert.Equal(t, []string{
		"BEHAVIOR_SUPPORT_PLAN", "ACADEMIC_INTERVENTION", "PARENT_CONSULTATION",
		"DSL_REFERRAL", "MULTI_AGENCY_REVIEW",
	}, res.Recommendations)
	assert.NotContains(t, res.EvidenceSummary, "TOKEN_")
}

func TestAnalyzeRequest_Quiet(t *testing.T) {
	res, err := ParseResponse(AnalyzeRequest(safeguarding.AnalysisRequest{
		StudentToken:   "TOKEN_STUDENT_0123456789ABCDEF01234567",
		Patterns:       []string{"BEHAV_VERBAL_SINGLE"},
		FrequencyToken: "FREQ_SINGLE",
		TrendToken:     "TREND_ESCALATING",
	}))
	require.NoError(t, err)
	assert.Equal(t, safeguarding.RiskLow, res.RiskLevel)
	assert.Empty(t, res.PatternTokens)
	assert.Empty(t, res.CombinationTokens)
	assert.Equal(t, []string{"BEHAVIOR_SUPPORT_PLAN"}, res.Recommendations)
	assert.InDelta(t, 0.4, res.Confidence, 1e-9)

	res, err = ParseResponse(AnalyzeRequest(safeguarding.AnalysisRequest{}))
	require.NoError(t, err)
	assert.Equal(t, safeguarding.RiskLow, res.RiskLevel)
	assert.Equal(t, []string{"MONITOR"}, res.Recommendations)
}

func TestAnalyzeRequest_SevereSignals(t *testing.T) {
	res, err := ParseResponse(AnalyzeRequest(safeguarding.AnalysisRequest{
		Patterns: []string{"BEHAV_SELF_HARM_SINGLE", "ATTEND_DECLINE_SEVERE_MEDIUM"},
	}))
	require.NoError(t, err)
	assert.Equal(t, safeguarding.RiskHigh, res.RiskLevel)
	assert.Contains(t, res.Recommendations, "COUNSELLING_REFERRAL")
	assert.Contains(t, res.Recommendations, "ATTENDANCE_MONITORING")
	assert.Contains(t, res.Recommendations, "DSL_REFERRAL")
	assert.Empty(t, res.CombinationTokens)
}

func TestOffline(t *testing.T) {
	raw, err := Offline{}.Analyze(context.Background(), safeguarding.AnalysisRequest{})
	require.NoError(t, err)
	_, err = ParseResponse(raw)
	assert.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Offline{}.Analyze(ctx, safeguarding.AnalysisRequest{})
	assert.ErrorIs(t, err, context.Canceled)
}

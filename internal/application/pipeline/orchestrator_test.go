package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/bryanwahyu/safeguard/internal/application"
	"github.com/bryanwahyu/safeguard/internal/application/ai"
	"github.com/bryanwahyu/safeguard/internal/application/auditlog"
	"github.com/bryanwahyu/safeguard/internal/application/tokenize"
	"github.com/bryanwahyu/safeguard/internal/domain/audit"
	"github.com/bryanwahyu/safeguard/internal/domain/safeguarding"
)

var (
	now = time.Date(2025, 10, 14, 9, 0, 0, 0, time.UTC)
	day = 24 * time.Hour
)

type fakeProvider struct {
	mu       sync.Mutex
	requests []safeguarding.AnalysisRequest
	fn       func(n int) (string, error)
}

func (f *fakeProvider) Analyze(_ context.Context, req safeguarding.AnalysisRequest) (string, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	n := len(f.requests)
	f.mu.Unlock()
	return f.fn(n)
}

func (f *fakeProvider) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func body(level safeguarding.RiskLevel, confidence float64) string {
	return fmt.Sprintf(`{"risk_level":%q,"confidence":%g,"patterns":[],"pattern_combinations":[],
"evidence_summary":"","recommendations":["MONITOR"],"reasoning":"token pattern review"}`, level, confidence)
}

func always(level safeguarding.RiskLevel) *fakeProvider {
	return &fakeProvider{fn: func(int) (string, error) { return body(level, 0.7), nil }}
}

type fakeSink struct {
	err    error
	stored []*safeguarding.SafeguardingReport
}

func (s *fakeSink) Store(_ context.Context, tenant string, rep *safeguarding.SafeguardingReport) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.stored = append(s.stored, rep)
	return tenant + "/reports/" + rep.ID + ".json", nil
}

func newOrchestrator(t *testing.T, p safeguarding.Provider, opts ...Option) *Orchestrator {
	t.Helper()
	clock := application.FixedClock{T: now}
	logger := zaptest.NewLogger(t)
	log := auditlog.New(nil, clock, logger)
	svc := ai.NewService(p, log, ai.WithClock(clock), ai.WithLogger(logger), ai.WithTimeout(time.Second))
	base := []Option{WithClock(clock), WithLogger(logger), WithAuditLog(log), WithHistory([]byte("history-key"), nil)}
	o, err := New(tokenize.New([]byte("master"), clock), svc, append(base, opts...)...)
	require.NoError(t, err)
	return o
}

func scenario() safeguarding.RawRecord {
	return safeguarding.RawRecord{
		BehavioralIncidents: []safeguarding.BehavioralIncident{
			{Timestamp: now.Add(-6 * day), IncidentType: "disruptive", ReportedBy: "Ms Patel"},
			{Timestamp: now.Add(-4 * day), IncidentType: "disruptive"},
			{Timestamp: now.Add(-2 * day), IncidentType: "disruptive"},
			{Timestamp: now, IncidentType: "disruptive"},
		},
		Assessments: []safeguarding.Assessment{
			{Timestamp: now.Add(-20 * day), Subject: "Math", BelowGradeLevel: true},
			{Timestamp: now.Add(-1 * day), Subject: "Math", BelowGradeLevel: true},
		},
		Communications: []safeguarding.Communication{
			{Timestamp: now.Add(-5 * day), Sender: "parent@example.com", Priority: safeguarding.PriorityUrgent, Body: "worried"},
			{Timestamp: now, Sender: "teacher", Priority: safeguarding.PriorityUrgent},
		},
	}
}

// quiet has no pattern above the minimum frequency, so the local level is LOW.
func quiet() safeguarding.RawRecord {
	return safeguarding.RawRecord{
		BehavioralIncidents: []safeguarding.BehavioralIncident{{Timestamp: now.Add(-day), IncidentType: "verbal"}},
	}
}

func eventTypes(events []audit.Event) []audit.EventType {
	out := make([]audit.EventType, 0, len(events))
	for _, e := range events {
		out = append(out, e.EventType)
	}
	return out
}

func TestRun_EndToEndScenario(t *testing.T) {
	p := always(safeguarding.RiskLow)
	sink := &fakeSink{}
	o := newOrchestrator(t, p, WithSink(sink))

	rep, err := o.Run(context.Background(), Job{
		Tenant:    "school-a",
		StudentID: "S-1001",
		Record:    scenario(),
		Profile:   safeguarding.StudentProfile{StudentID: "S-1001", Name: "Jamie Doe"},
	})
	require.NoError(t, err)

	assert.Equal(t, "S-1001", rep.StudentID)
	assert.Equal(t, safeguarding.RiskHigh, rep.Summary.OverallRiskLevel)
	assert.Equal(t, safeguarding.RiskHigh, rep.Summary.LocalRiskLevel)
	assert.Equal(t, safeguarding.RiskLow, rep.Summary.ExternalRiskLevel)
	assert.Equal(t, 1.0, rep.Summary.LocalConfidence)
	assert.Len(t, rep.Concerns, 5)
	assert.Len(t, rep.Combinations, 3)
	assert.Equal(t, safeguarding.RiskHigh, rep.NextSteps.Level)
	require.Len(t, sink.stored, 1)

	require.Equal(t, 1, p.calls())
	sent, err := json.Marshal(p.requests[0])
	require.NoError(t, err)
	for _, raw := range []string{"S-1001", "Jamie", "parent@example.com", "Ms Patel", "worried", "Math"} {
		assert.NotContains(t, string(sent), raw)
	}

	events := o.AuditLog().Session(rep.SessionID)
	assert.Equal(t, []audit.EventType{
		audit.EventSessionCreated,
		audit.EventStageTransition, // tokenizing
		audit.EventStageTransition, // pattern_extracting
		audit.EventStageTransition, // risk_assessing
		audit.EventStageTransition, // external_analyzing
		audit.EventExternalAnalysis,
		audit.EventStageTransition, // localizing
		audit.EventStageTransition, // report_generating
		audit.EventStageTransition, // complete
		audit.EventSessionComplete,
	}, eventTypes(events))
	for _, e := range events {
		assert.Len(t, e.DetailsHash, 64)
		assert.True(t, e.AnonymityVerified)
	}
}

func TestRun_ValidationFailsFast(t *testing.T) {
	cases := []Job{
		{StudentID: "", Record: quiet()},
		{StudentID: " S-1", Record: quiet()},
		{StudentID: "S-\x001", Record: quiet()},
		{StudentID: "S-1"},
	}
	for _, job := range cases {
		p := always(safeguarding.RiskLow)
		o := newOrchestrator(t, p)
		rep, err := o.Run(context.Background(), job)
		assert.Nil(t, rep)
		var ve *safeguarding.ValidationError
		assert.ErrorAs(t, err, &ve)
		assert.Zero(t, p.calls())
		assert.Equal(t, []audit.EventType{audit.EventValidationFailure}, eventTypes(o.AuditLog().Events()))
	}
}

func TestRun_ProviderFailureUsesDefaultAnalysis(t *testing.T) {
	p := &fakeProvider{fn: func(int) (string, error) { return "", errors.New("connection refused") }}
	o := newOrchestrator(t, p)

	rep, err := o.Run(context.Background(), Job{StudentID: "S-7", Record: quiet()})
	require.NoError(t, err)
	assert.True(t, rep.Summary.FallbackUsed)
	assert.Equal(t, safeguarding.RiskMedium, rep.Summary.OverallRiskLevel)
	assert.Equal(t, safeguarding.RecommendationManualReview, rep.Interventions[0].Code)
	assert.Contains(t, eventTypes(o.AuditLog().Session(rep.SessionID)), audit.EventProviderFallback)
}

func TestRun_StageFailureIsSanitized(t *testing.T) {
	sink := &fakeSink{err: errors.New("bucket S-1001 unavailable")}
	o := newOrchestrator(t, always(safeguarding.RiskLow), WithSink(sink))

	rep, err := o.Run(context.Background(), Job{StudentID: "S-1001", Record: quiet()})
	assert.Nil(t, rep)
	var pe *safeguarding.PipelineError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, string(StageReportGenerating), pe.Stage)
	assert.NotContains(t, err.Error(), "S-1001")

	types := eventTypes(o.AuditLog().Events())
	assert.Equal(t, audit.EventStageFailure, types[len(types)-1])
	assert.Equal(t, audit.EventStageTransition, types[len(types)-2])
	assert.Zero(t, o.PrivacyComplianceReport().TotalAnalyses)
}

func TestRun_CancelledBeforeCallIssuesNothing(t *testing.T) {
	p := always(safeguarding.RiskLow)
	o := newOrchestrator(t, p)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := o.Run(ctx, Job{StudentID: "S-1", Record: quiet()})
	var pe *safeguarding.PipelineError
	require.ErrorAs(t, err, &pe)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "cancelled", pe.Message)
	assert.Zero(t, p.calls())
}

type violatingAnalyzer struct{}

func (violatingAnalyzer) Analyze(context.Context, *tokenize.Snapshot, tokenize.LeakChecker) (safeguarding.ExternalAnalysisResult, error) {
	return safeguarding.DefaultAnalysis(), &safeguarding.AnonymityViolation{Stage: "pre_call", Field: "$.x"}
}

func TestRun_AnonymityViolationDegradesToDefault(t *testing.T) {
	o, err := New(nil, violatingAnalyzer{}, WithClock(application.FixedClock{T: now}))
	require.NoError(t, err)

	rep, err := o.Run(context.Background(), Job{StudentID: "S-1", Record: quiet()})
	require.NoError(t, err)
	assert.True(t, rep.Summary.FallbackUsed)
	assert.Equal(t, safeguarding.RiskMedium, rep.Summary.OverallRiskLevel)
}

func TestSummaryAndCompliance(t *testing.T) {
	levels := []safeguarding.RiskLevel{safeguarding.RiskLow, safeguarding.RiskMedium, safeguarding.RiskHigh}
	p := &fakeProvider{fn: func(n int) (string, error) {
		return body(levels[(n-1)%len(levels)], 0.6), nil
	}}
	o := newOrchestrator(t, p)

	for range levels {
		_, err := o.Run(context.Background(), Job{StudentID: "S-9", Record: quiet()})
		require.NoError(t, err)
	}

	sum, err := o.GetAnalysisSummary(context.Background(), "S-9")
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Analyses)
	assert.Equal(t, levels, sum.RecentLevels)
	assert.Equal(t, TrendEscalating, sum.Trend)
	assert.Equal(t, safeguarding.RiskHigh, sum.Latest.RiskLevel)
	assert.NotContains(t, sum.Latest.SubjectKey, "S-9")

	_, err = o.GetAnalysisSummary(context.Background(), "S-unknown")
	assert.ErrorIs(t, err, safeguarding.ErrUnknownSubject)

	c := o.PrivacyComplianceReport()
	assert.Equal(t, 3, c.TotalAnalyses)
	assert.Equal(t, 1, c.ByRiskLevel[safeguarding.RiskLow])
	assert.Equal(t, 0, c.ByRiskLevel[safeguarding.RiskCritical])
	assert.InDelta(t, 0.6, c.AverageConfidence, 1e-9)
	assert.Equal(t, safeguarding.RiskHigh, c.MostCommonRisk)
	assert.Equal(t, c.AuditEvents, c.VerifiedEvents)
}

type countingMetrics struct {
	started, failed, fallback atomic.Int32
}

func (m *countingMetrics) AnalysisStarted() { m.started.Add(1) }

func (m *countingMetrics) AnalysisFinished(failed, fallback bool) {
	if failed {
		m.failed.Add(1)
	}
	if fallback {
		m.fallback.Add(1)
	}
}

func TestRun_ReportsMetrics(t *testing.T) {
	m := &countingMetrics{}
	o := newOrchestrator(t, &fakeProvider{fn: func(int) (string, error) { return "nope", nil }}, WithMetrics(m))

	_, err := o.Run(context.Background(), Job{StudentID: "S-1", Record: quiet()})
	require.NoError(t, err)
	_, err = o.Run(context.Background(), Job{StudentID: "", Record: quiet()})
	require.Error(t, err)

	assert.Equal(t, int32(1), m.started.Load())
	assert.Equal(t, int32(0), m.failed.Load())
	assert.Equal(t, int32(1), m.fallback.Load())
}

func TestSummary_ScopedByTenant(t *testing.T) {
	o := newOrchestrator(t, always(safeguarding.RiskLow))
	_, err := o.Run(context.Background(), Job{Tenant: "school-a", StudentID: "S-1", Record: quiet()})
	require.NoError(t, err)

	sum, err := o.GetTenantAnalysisSummary(context.Background(), "school-a", "S-1")
	require.NoError(t, err)
	assert.Equal(t, "S-1", sum.StudentID)
	assert.Equal(t, 1, sum.Analyses)

	_, err = o.GetTenantAnalysisSummary(context.Background(), "school-b", "S-1")
	assert.ErrorIs(t, err, safeguarding.ErrUnknownSubject)
	_, err = o.GetAnalysisSummary(context.Background(), "S-1")
	assert.ErrorIs(t, err, safeguarding.ErrUnknownSubject)
}

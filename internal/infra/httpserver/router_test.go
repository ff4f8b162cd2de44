package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/bryanwahyu/safeguard/internal/application/auditlog"
	"github.com/bryanwahyu/safeguard/internal/application/pipeline"
	"github.com/bryanwahyu/safeguard/internal/domain/audit"
	"github.com/bryanwahyu/safeguard/internal/domain/safeguarding"
)

type fakeAnalyses struct {
	runErr error
	job    pipeline.Job
}

func (f *fakeAnalyses) Run(_ context.Context, job pipeline.Job) (*safeguarding.SafeguardingReport, error) {
	f.job = job
	if f.runErr != nil {
		return nil, f.runErr
	}
	return &safeguarding.SafeguardingReport{ID: "r-1", StudentID: job.StudentID}, nil
}

func (f *fakeAnalyses) GetTenantAnalysisSummary(_ context.Context, tenant, id string) (pipeline.Summary, error) {
	if id != "S-1" {
		return pipeline.Summary{}, safeguarding.ErrUnknownSubject
	}
	return pipeline.Summary{StudentID: id, Analyses: 2, Trend: pipeline.TrendStable}, nil
}

func (f *fakeAnalyses) PrivacyComplianceReport() pipeline.ComplianceReport {
	return pipeline.ComplianceReport{TotalAnalyses: 7}
}

func newTestRouter(t *testing.T, a Analyses, src AuditSource) http.Handler {
	return NewRouter(a, src, Options{
		APIKeys: map[string]string{"school-a": "key-a"},
		Logger:  zaptest.NewLogger(t),
	})
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer key-a")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

const analyzeBody = `{"student_id":"S-1","profile":{"name":"Jamie"},
"record":{"behavioral_incidents":[{"timestamp":"2025-10-13T09:00:00Z","incident_type":"disruptive"}]}}`

func TestAnalyze(t *testing.T) {
	fa := &fakeAnalyses{}
	h := newTestRouter(t, fa, auditlog.New(nil, nil, nil))

	rec := do(h, http.MethodPost, "/v1/school-a/analyses", analyzeBody)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "school-a", fa.job.Tenant)
	assert.Equal(t, "S-1", fa.job.Profile.StudentID)
	assert.Len(t, fa.job.Record.BehavioralIncidents, 1)

	var rep safeguarding.SafeguardingReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rep))
	assert.Equal(t, "r-1", rep.ID)
}

func TestAnalyze_ErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		body string
		code int
	}{
		{"malformed", nil, `{`, http.StatusBadRequest},
		{"unknown field", nil, `{"student_id":"S-1","ssn":"x"}`, http.StatusBadRequest},
		{"bad id", nil, `{"student_id":"a b"}`, http.StatusBadRequest},
		{"validation", &safeguarding.ValidationError{Field: "record", Reason: "empty"}, analyzeBody, http.StatusBadRequest},
		{"quota", safeguarding.ErrQuotaExceeded, analyzeBody, http.StatusTooManyRequests},
		{"pipeline", safeguarding.NewPipelineError("localizing", "internal error", errors.New("S-1 secret")), analyzeBody, http.StatusInternalServerError},
		{"other", errors.New("S-1 boom"), analyzeBody, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newTestRouter(t, &fakeAnalyses{runErr: tc.err}, auditlog.New(nil, nil, nil))
			rec := do(h, http.MethodPost, "/v1/school-a/analyses", tc.body)
			assert.Equal(t, tc.code, rec.Code)
			assert.NotContains(t, rec.Body.String(), "secret")
			assert.NotContains(t, rec.Body.String(), "boom")
		})
	}
}

func TestSummaryComplianceAudit(t *testing.T) {
	log := auditlog.New(nil, nil, nil)
	log.Record(context.Background(), "sess-1", audit.EventSessionCreated, nil, true)
	log.Record(context.Background(), "sess-2", audit.EventSessionCreated, nil, true)
	h := newTestRouter(t, &fakeAnalyses{}, log)

	rec := do(h, http.MethodGet, "/v1/school-a/students/S-1/summary", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"analyses":2`)

	rec = do(h, http.MethodGet, "/v1/school-a/students/S-404/summary", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(h, http.MethodGet, "/v1/school-a/compliance", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"totalAnalyses":7`)

	rec = do(h, http.MethodGet, "/v1/school-a/audit?session=sess-2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var events []audit.Event
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	require.Len(t, events, 1)
	assert.Equal(t, "sess-2", events[0].SessionID)
}

func TestAuthAndPublicRoutes(t *testing.T) {
	h := newTestRouter(t, &fakeAnalyses{}, auditlog.New(nil, nil, nil))

	req := httptest.NewRequest(http.MethodGet, "/v1/school-a/compliance", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(h, http.MethodGet, "/v1/school-b/compliance", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	for _, path := range []string{"/health", "/ready", "/live", "/metrics"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

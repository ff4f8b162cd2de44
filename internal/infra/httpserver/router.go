package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/bryanwahyu/safeguard/internal/application/pipeline"
	"github.com/bryanwahyu/safeguard/internal/domain/audit"
	"github.com/bryanwahyu/safeguard/internal/domain/safeguarding"
	"github.com/bryanwahyu/safeguard/internal/middleware"
)

const maxBodyBytes = 4 << 20

// Analyses is the orchestrator surface the API needs.
type Analyses interface {
	Run(ctx context.Context, job pipeline.Job) (*safeguarding.SafeguardingReport, error)
	GetTenantAnalysisSummary(ctx context.Context, tenant, studentID string) (pipeline.Summary, error)
	PrivacyComplianceReport() pipeline.ComplianceReport
}

// AuditSource lists audit events, newest sessions included.
type AuditSource interface {
	List(ctx context.Context, sessionID string, limit int) ([]*audit.Event, error)
}

type Options struct {
	APIKeys        map[string]string
	AllowedOrigins []string
	Limiter        *middleware.RateLimiter
	Checkers       map[string]middleware.HealthChecker
	Logger         *zap.Logger
}

type Router struct {
	analyses Analyses
	audit    AuditSource
	logger   *zap.Logger
}

func NewRouter(analyses Analyses, auditSrc AuditSource, opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Router{analyses: analyses, audit: auditSrc, logger: logger}
	mux := chi.NewRouter()

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         300,
	}))
	mux.Use(middleware.MetricsMiddleware)
	mux.Use(middleware.Logging(logger, routePattern))
	mux.Use(middleware.APIKeyAuth(opts.APIKeys))
	if opts.Limiter != nil {
		mux.Use(middleware.RateLimitMiddleware(opts.Limiter))
	}

	mux.Get("/health", middleware.HealthHandler(opts.Checkers))
	mux.Get("/ready", middleware.ReadinessHandler(opts.Checkers))
	mux.Get("/live", middleware.LivenessHandler)
	mux.Get("/metrics", middleware.MetricsHandler)

	mux.Route("/v1/{tenant}", func(rt chi.Router) {
		rt.Use(middleware.RequireTenant)
		rt.Post("/analyses", r.wrap(r.handleAnalyze))
		rt.Get("/students/{id}/summary", r.wrap(r.handleSummary))
		rt.Get("/compliance", r.wrap(r.handleCompliance))
		rt.Get("/audit", r.wrap(r.handleAudit))
	})

	return mux
}

func routePattern(req *http.Request) string {
	if rc := chi.RouteContext(req.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

// wrap maps domain errors to status codes. Pipeline errors only ever carry
// a stage and a generic message.
func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		err := h(w, req)
		if err == nil {
			return
		}
		var (
			ve *safeguarding.ValidationError
			pe *safeguarding.PipelineError
		)
		switch {
		case errors.As(err, &ve):
			writeError(w, http.StatusBadRequest, ve.Error())
		case errors.Is(err, safeguarding.ErrQuotaExceeded):
			writeError(w, http.StatusTooManyRequests, "analysis quota exceeded")
		case errors.Is(err, safeguarding.ErrUnknownSubject):
			writeError(w, http.StatusNotFound, "not found")
		case errors.As(err, &pe):
			writeError(w, http.StatusInternalServerError, pe.Error())
		default:
			r.logger.Error("request failed", zap.String("route", routePattern(req)), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal error")
		}
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type analyzeRequest struct {
	StudentID string                      `json:"student_id"`
	Profile   safeguarding.StudentProfile `json:"profile"`
	Record    safeguarding.RawRecord      `json:"record"`
}

// POST /v1/{tenant}/analyses
func (r *Router) handleAnalyze(w http.ResponseWriter, req *http.Request) error {
	tenant := chi.URLParam(req, "tenant")

	var body analyzeRequest
	dec := json.NewDecoder(io.LimitReader(req.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		return &safeguarding.ValidationError{Field: "body", Reason: "malformed JSON"}
	}
	if err := middleware.ValidateStudentID(body.StudentID); err != nil {
		return &safeguarding.ValidationError{Field: "student_id", Reason: err.Error()}
	}
	if body.Profile.StudentID == "" {
		body.Profile.StudentID = body.StudentID
	}

	rep, err := r.analyses.Run(req.Context(), pipeline.Job{
		Tenant:    tenant,
		StudentID: body.StudentID,
		Record:    body.Record,
		Profile:   body.Profile,
	})
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, rep)
	return nil
}

// GET /v1/{tenant}/students/{id}/summary
func (r *Router) handleSummary(w http.ResponseWriter, req *http.Request) error {
	tenant := chi.URLParam(req, "tenant")
	id := chi.URLParam(req, "id")
	if err := middleware.ValidateStudentID(id); err != nil {
		return &safeguarding.ValidationError{Field: "id", Reason: err.Error()}
	}
	sum, err := r.analyses.GetTenantAnalysisSummary(req.Context(), tenant, id)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, sum)
	return nil
}

// GET /v1/{tenant}/compliance
func (r *Router) handleCompliance(w http.ResponseWriter, _ *http.Request) error {
	writeJSON(w, http.StatusOK, r.analyses.PrivacyComplianceReport())
	return nil
}

// GET /v1/{tenant}/audit?session=&limit=
func (r *Router) handleAudit(w http.ResponseWriter, req *http.Request) error {
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
	events, err := r.audit.List(req.Context(), req.URL.Query().Get("session"), middleware.ValidateLimit(limit))
	if err != nil {
		return err
	}
	if events == nil {
		events = []*audit.Event{}
	}
	writeJSON(w, http.StatusOK, events)
	return nil
}

// Package pipeline runs safeguarding analyses end to end. Each run owns one
// tokenizer session; the audit log and the analysis history are the only
// state shared between runs.
package pipeline

import (
	"context"
	"crypto/rand"
	"errors"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bryanwahyu/safeguard/internal/application"
	"github.com/bryanwahyu/safeguard/internal/application/auditlog"
	"github.com/bryanwahyu/safeguard/internal/application/localize"
	"github.com/bryanwahyu/safeguard/internal/application/patterns"
	"github.com/bryanwahyu/safeguard/internal/application/report"
	"github.com/bryanwahyu/safeguard/internal/application/risk"
	"github.com/bryanwahyu/safeguard/internal/application/tokenize"
	"github.com/bryanwahyu/safeguard/internal/domain/audit"
	"github.com/bryanwahyu/safeguard/internal/domain/history"
	"github.com/bryanwahyu/safeguard/internal/domain/safeguarding"
)

const (
	DefaultMaxConcurrentSessions = 4
	maxStudentIDLen              = 128
)

// Analyzer is the external analysis boundary. *ai.Service implements it.
type Analyzer interface {
	Analyze(ctx context.Context, snap *tokenize.Snapshot, guard tokenize.LeakChecker) (safeguarding.ExternalAnalysisResult, error)
}

// Metrics receives run outcomes. All methods must be safe for concurrent use.
type Metrics interface {
	AnalysisStarted()
	AnalysisFinished(failed, fallback bool)
}

type nopMetrics struct{}

func (nopMetrics) AnalysisStarted()           {}
func (nopMetrics) AnalysisFinished(_, _ bool) {}

// Job is one analysis request.
type Job struct {
	Tenant    string
	StudentID string
	Record    safeguarding.RawRecord
	Profile   safeguarding.StudentProfile
}

type Orchestrator struct {
	tokenizer *tokenize.Tokenizer
	extractor *patterns.Extractor
	assessor  *risk.Assessor
	analyzer  Analyzer
	generator *report.Generator
	audit     *auditlog.Log
	history   *History
	sink      safeguarding.ReportSink
	metrics   Metrics
	clock     application.Clock
	logger    *zap.Logger

	maxConcurrent int
	historyKey    []byte
	historyRepo   history.Repository
	extractorCfg  patterns.Config
	rules         []risk.CombinationRule
}

type Option func(*Orchestrator)

func WithClock(c application.Clock) Option { return func(o *Orchestrator) { o.clock = c } }

func WithLogger(l *zap.Logger) Option { return func(o *Orchestrator) { o.logger = l } }

func WithSink(s safeguarding.ReportSink) Option { return func(o *Orchestrator) { o.sink = s } }

func WithMetrics(m Metrics) Option { return func(o *Orchestrator) { o.metrics = m } }

func WithAuditLog(l *auditlog.Log) Option { return func(o *Orchestrator) { o.audit = l } }

// WithHistory sets the key used to hash student ids in the history and an
// optional persistent repository.
func WithHistory(key []byte, repo history.Repository) Option {
	return func(o *Orchestrator) {
		o.historyKey = key
		o.historyRepo = repo
	}
}

func WithExtractorConfig(cfg patterns.Config) Option {
	return func(o *Orchestrator) { o.extractorCfg = cfg }
}

func WithCombinationRules(rules []risk.CombinationRule) Option {
	return func(o *Orchestrator) { o.rules = rules }
}

func WithMaxConcurrentSessions(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxConcurrent = n
		}
	}
}

func New(tokenizer *tokenize.Tokenizer, analyzer Analyzer, opts ...Option) (*Orchestrator, error) {
	o := &Orchestrator{
		tokenizer:     tokenizer,
		analyzer:      analyzer,
		metrics:       nopMetrics{},
		clock:         application.SystemClock{},
		logger:        zap.NewNop(),
		maxConcurrent: DefaultMaxConcurrentSessions,
		extractorCfg:  patterns.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.tokenizer == nil {
		o.tokenizer = tokenize.New(nil, o.clock)
	}
	if o.analyzer == nil {
		return nil, errors.New("pipeline: analyzer is required")
	}
	if len(o.historyKey) == 0 {
		o.historyKey = make([]byte, 32)
		if _, err := rand.Read(o.historyKey); err != nil {
			return nil, err
		}
	}
	if o.audit == nil {
		o.audit = auditlog.New(nil, o.clock, o.logger)
	}
	o.extractor = patterns.NewExtractor(o.extractorCfg, o.clock)
	o.assessor = risk.NewAssessor(o.rules, o.clock)
	o.generator = report.NewGenerator(o.clock)
	o.history = NewHistory(o.historyKey, o.historyRepo, o.logger)
	return o, nil
}

func (o *Orchestrator) AuditLog() *auditlog.Log { return o.audit }

func (o *Orchestrator) History() *History { return o.history }

// GetAnalysisSummary returns the latest analysis of studentID and its
// three-point risk trend.
func (o *Orchestrator) GetAnalysisSummary(ctx context.Context, studentID string) (Summary, error) {
	return o.GetTenantAnalysisSummary(ctx, "", studentID)
}

// GetTenantAnalysisSummary is GetAnalysisSummary for jobs run with a tenant.
func (o *Orchestrator) GetTenantAnalysisSummary(ctx context.Context, tenant, studentID string) (Summary, error) {
	sum, err := o.history.Summary(ctx, Scope(tenant, studentID))
	if err != nil {
		return Summary{}, err
	}
	sum.StudentID = studentID
	return sum, nil
}

// PrivacyComplianceReport aggregates every analysis run so far.
func (o *Orchestrator) PrivacyComplianceReport() ComplianceReport {
	rep := o.history.Compliance()
	rep.AuditEvents = o.audit.Len()
	rep.VerifiedEvents = o.audit.Verified()
	return rep
}

// ValidateJob checks the inputs before any session is created.
func ValidateJob(job Job) error {
	id := strings.TrimSpace(job.StudentID)
	switch {
	case id == "":
		return &safeguarding.ValidationError{Field: "studentId", Reason: "must not be empty"}
	case id != job.StudentID:
		return &safeguarding.ValidationError{Field: "studentId", Reason: "must not have surrounding whitespace"}
	case len(id) > maxStudentIDLen:
		return &safeguarding.ValidationError{Field: "studentId", Reason: "too long"}
	case strings.IndexFunc(id, unicode.IsControl) >= 0:
		return &safeguarding.ValidationError{Field: "studentId", Reason: "contains control characters"}
	}
	if job.Record.Empty() {
		return &safeguarding.ValidationError{Field: "record", Reason: "must contain at least one entry"}
	}
	return nil
}

// run is the per-session state machine.
type run struct {
	o     *Orchestrator
	id    string
	stage Stage
}

type transitionDetails struct {
	From Stage `json:"from"`
	To   Stage `json:"to"`
}

func (r *run) advance(ctx context.Context, to Stage) error {
	if err := checkTransition(r.stage, to); err != nil {
		return err
	}
	r.o.audit.Record(ctx, r.id, audit.EventStageTransition, transitionDetails{From: r.stage, To: to}, true)
	r.stage = to
	return nil
}

// fail moves the session to Errored and returns the sanitized error. Only
// the stage name and a generic cause reach the audit trail.
func (r *run) fail(ctx context.Context, cause error) *safeguarding.PipelineError {
	stage := r.stage
	msg := genericCause(cause)
	if !stage.Terminal() {
		_ = r.advance(ctx, StageErrored)
	}
	r.o.audit.Record(ctx, r.id, audit.EventStageFailure, map[string]string{"stage": string(stage), "cause": msg}, true)
	r.o.logger.Error("analysis stage failed",
		zap.String("session_id", r.id),
		zap.String("stage", string(stage)),
		zap.String("cause", msg))
	return safeguarding.NewPipelineError(string(stage), msg, cause)
}

func genericCause(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		return "deadline exceeded"
	case errors.Is(err, safeguarding.ErrSessionClosed):
		return "session closed"
	case errors.Is(err, safeguarding.ErrUnknownSubject):
		return "subject could not be resolved"
	case errors.Is(err, safeguarding.ErrInvalidTransition):
		return "invalid stage transition"
	default:
		return "internal error"
	}
}

// Run executes every stage of one analysis in order. A *ValidationError is
// returned for bad input; any later failure is a *PipelineError.
func (o *Orchestrator) Run(ctx context.Context, job Job) (*safeguarding.SafeguardingReport, error) {
	if err := ValidateJob(job); err != nil {
		var ve *safeguarding.ValidationError
		errors.As(err, &ve)
		o.audit.Record(ctx, "", audit.EventValidationFailure, map[string]string{"field": ve.Field}, true)
		return nil, err
	}

	o.metrics.AnalysisStarted()
	rep, fallback, err := o.run(ctx, job)
	o.metrics.AnalysisFinished(err != nil, fallback)
	return rep, err
}

func (o *Orchestrator) run(ctx context.Context, job Job) (*safeguarding.SafeguardingReport, bool, error) {
	session, err := o.tokenizer.NewSession()
	if err != nil {
		return nil, false, safeguarding.NewPipelineError(string(StageCreated), "internal error", err)
	}
	defer session.Close()

	r := &run{o: o, id: session.ID(), stage: StageCreated}
	o.audit.Record(ctx, r.id, audit.EventSessionCreated, map[string]string{"session_id": r.id}, true)
	log := o.logger.With(zap.String("session_id", r.id))

	step := func(to Stage) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return r.advance(ctx, to)
	}

	if err := step(StageTokenizing); err != nil {
		return nil, false, r.fail(ctx, err)
	}
	snap, err := session.BuildSnapshot(job.StudentID, job.Record, o.clock.Now())
	if err != nil {
		return nil, false, r.fail(ctx, err)
	}

	if err := step(StagePatternExtracting); err != nil {
		return nil, false, r.fail(ctx, err)
	}
	window := o.extractor.Window()
	found := o.extractor.ExtractAll(snap.StudentToken(), job.Record)

	if err := step(StageRiskAssessing); err != nil {
		return nil, false, r.fail(ctx, err)
	}
	assessment := o.assessor.Assess(snap.StudentToken(), found, window)

	if err := step(StageExternalAnalyzing); err != nil {
		return nil, false, r.fail(ctx, err)
	}
	result, err := o.analyzer.Analyze(ctx, snap, session)
	if err != nil {
		var v *safeguarding.AnonymityViolation
		if !errors.As(err, &v) {
			return nil, false, r.fail(ctx, err)
		}
		// the call was never issued; carry on with the conservative result
		log.Warn("continuing with default analysis after anonymity gate", zap.String("field", v.Field))
		result = safeguarding.DefaultAnalysis()
	}

	if err := step(StageLocalizing); err != nil {
		return nil, result.Fallback, r.fail(ctx, err)
	}
	loc, err := localize.New(session).Localize(result, job.StudentID)
	if err != nil {
		return nil, result.Fallback, r.fail(ctx, err)
	}

	if err := step(StageReportGenerating); err != nil {
		return nil, result.Fallback, r.fail(ctx, err)
	}
	rep, err := o.generator.Generate(r.id, loc, job.Profile, &assessment)
	if err != nil {
		return nil, result.Fallback, r.fail(ctx, err)
	}
	if o.sink != nil {
		if _, err := o.sink.Store(ctx, job.Tenant, rep); err != nil {
			return nil, result.Fallback, r.fail(ctx, err)
		}
	}

	if err := r.advance(ctx, StageComplete); err != nil {
		return nil, result.Fallback, r.fail(ctx, err)
	}
	o.history.Append(ctx, history.Entry{
		ID:           uuid.New().String(),
		SubjectKey:   o.history.SubjectKey(Scope(job.Tenant, job.StudentID)),
		SessionID:    r.id,
		ReportID:     rep.ID,
		RiskLevel:    rep.Summary.OverallRiskLevel,
		Confidence:   rep.Summary.Confidence,
		FallbackUsed: rep.Summary.FallbackUsed,
		CreatedAt:    rep.GeneratedAt,
	})
	o.audit.Record(ctx, r.id, audit.EventSessionComplete, map[string]string{"report_id": rep.ID}, true)
	log.Info("analysis complete",
		zap.String("risk_level", string(rep.Summary.OverallRiskLevel)),
		zap.Int("patterns", len(assessment.Patterns)),
		zap.Bool("fallback", rep.Summary.FallbackUsed))
	return rep, rep.Summary.FallbackUsed, nil
}

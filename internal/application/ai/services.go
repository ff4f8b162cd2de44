// Package ai is the fail-safe boundary to the external inference provider.
package ai

import (
	"context"
	"errors"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/bryanwahyu/safeguard/internal/application"
	"github.com/bryanwahyu/safeguard/internal/application/auditlog"
	"github.com/bryanwahyu/safeguard/internal/application/tokenize"
	"github.com/bryanwahyu/safeguard/internal/domain/audit"
	"github.com/bryanwahyu/safeguard/internal/domain/safeguarding"
	"github.com/bryanwahyu/safeguard/internal/infra/ai/prompt"
)

const DefaultTimeout = 30 * time.Second

// Parser turns raw provider output into a result.
type Parser func(raw string) (safeguarding.ExternalAnalysisResult, error)

type Service struct {
	provider safeguarding.Provider
	audit    *auditlog.Log
	parse    Parser
	timeout  time.Duration
	clock    application.Clock
	logger   *zap.Logger
}

type Option func(*Service)

func WithTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func WithParser(p Parser) Option { return func(s *Service) { s.parse = p } }

func WithClock(c application.Clock) Option { return func(s *Service) { s.clock = c } }

func WithLogger(l *zap.Logger) Option { return func(s *Service) { s.logger = l } }

func NewService(provider safeguarding.Provider, log *auditlog.Log, opts ...Option) *Service {
	s := &Service{
		provider: provider,
		audit:    log,
		parse:    prompt.ParseResponse,
		timeout:  DefaultTimeout,
		clock:    application.SystemClock{},
		logger:   zap.NewNop(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.audit == nil {
		s.audit = auditlog.New(nil, s.clock, s.logger)
	}
	return s
}

const outcomeCancelled = "cancelled"

type callDetails struct {
	RequestHash string `json:"request_hash"`
	Outcome     string `json:"outcome"`
	DurationMS  int64  `json:"duration_ms"`
	Fallback    bool   `json:"fallback"`
}

// Analyze sends the snapshot to the provider and returns its parsed
// analysis. guard is the owning session's leak check, applied to the request
// before the call and to the response after it. Provider failures, timeouts
// and malformed output yield DefaultAnalysis with a nil error. A non-nil
// error means the call was never issued: either ctx was already done or the
// snapshot failed the anonymity gate (*AnonymityViolation); DefaultAnalysis
// is returned alongside it.
func (s *Service) Analyze(ctx context.Context, snap *tokenize.Snapshot, guard tokenize.LeakChecker) (safeguarding.ExternalAnalysisResult, error) {
	sessionID := snap.SessionID()
	if err := ctx.Err(); err != nil {
		s.logger.Info("analysis cancelled before provider call", zap.String("session_id", sessionID))
		s.audit.Record(context.WithoutCancel(ctx), sessionID, audit.EventProviderFallback,
			callDetails{Outcome: outcomeCancelled, Fallback: true}, true)
		return safeguarding.DefaultAnalysis(), err
	}

	if !snap.Valid() || guard == nil {
		return s.reject(ctx, sessionID, &safeguarding.AnonymityViolation{Stage: "pre_call", Field: "$"})
	}
	req := snap.Request()
	if err := tokenize.ValidateNoPII(req); err != nil {
		var v *safeguarding.AnonymityViolation
		if errors.As(err, &v) {
			return s.reject(ctx, sessionID, &safeguarding.AnonymityViolation{Stage: "pre_call", Field: v.Field})
		}
		return s.reject(ctx, sessionID, &safeguarding.AnonymityViolation{Stage: "pre_call", Field: "$"})
	}
	if guard.Leaks(req) {
		return s.reject(ctx, sessionID, &safeguarding.AnonymityViolation{Stage: "pre_call", Field: "raw_identifier"})
	}

	// the request is token-only from here on; a caller cancelling mid-flight
	// lets the call finish, bounded by the timeout
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	start := s.clock.Now()
	raw, err := s.provider.Analyze(callCtx, req)
	details := callDetails{RequestHash: auditlog.HashDetails(req)}
	details.DurationMS = s.clock.Now().Sub(start).Milliseconds()

	if err != nil {
		perr := classify(err)
		details.Outcome, details.Fallback = string(perr.Kind), true
		s.logger.Warn("provider call failed, using default analysis",
			zap.String("session_id", sessionID),
			zap.String("kind", string(perr.Kind)),
			zap.Int64("duration_ms", details.DurationMS))
		s.audit.Record(ctx, sessionID, audit.EventProviderFallback, details, true)
		return safeguarding.DefaultAnalysis(), nil
	}

	result, err := s.parse(raw)
	if err != nil {
		details.Outcome, details.Fallback = string(safeguarding.ProviderMalformed), true
		s.logger.Warn("provider response malformed, using default analysis",
			zap.String("session_id", sessionID),
			zap.Int("response_bytes", len(raw)))
		s.audit.Record(ctx, sessionID, audit.EventProviderFallback, details, true)
		return safeguarding.DefaultAnalysis(), nil
	}

	verified := true
	if err := tokenize.ValidateNoPII(result); err != nil || guard.Leaks(result) {
		verified = false
		s.logger.Warn("provider response failed identifier check",
			zap.String("session_id", sessionID))
		s.audit.Record(ctx, sessionID, audit.EventResponseLeak, details, false)
	}

	details.Outcome = "ok"
	s.logger.Info("provider analysis received",
		zap.String("session_id", sessionID),
		zap.String("risk_level", string(result.RiskLevel)),
		zap.Int64("duration_ms", details.DurationMS))
	s.audit.Record(ctx, sessionID, audit.EventExternalAnalysis, details, verified)
	return result, nil
}

func (s *Service) reject(ctx context.Context, sessionID string, v *safeguarding.AnonymityViolation) (safeguarding.ExternalAnalysisResult, error) {
	s.logger.Error("anonymity gate blocked provider call",
		zap.String("session_id", sessionID),
		zap.String("field", v.Field))
	s.audit.Record(ctx, sessionID, audit.EventAnonymityViolation, map[string]string{"stage": v.Stage, "field": v.Field}, false)
	return safeguarding.DefaultAnalysis(), v
}

func classify(err error) *safeguarding.ProviderError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &safeguarding.ProviderError{Kind: safeguarding.ProviderTimeout, Err: err}
	case errors.Is(err, safeguarding.ErrQuotaExceeded):
		return &safeguarding.ProviderError{Kind: safeguarding.ProviderQuota, Err: err}
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &safeguarding.ProviderError{Kind: safeguarding.ProviderTimeout, Err: err}
	}
	return &safeguarding.ProviderError{Kind: safeguarding.ProviderNetwork, Err: err}
}

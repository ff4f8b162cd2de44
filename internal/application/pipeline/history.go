package pipeline

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/bryanwahyu/safeguard/internal/domain/history"
	"github.com/bryanwahyu/safeguard/internal/domain/safeguarding"
)

// History is the append-only analysis history. Entries are keyed by a
// keyed hash of the student id so a persisted history holds no identifiers.
type History struct {
	key    []byte
	repo   history.Repository
	logger *zap.Logger

	mu        sync.RWMutex
	bySubject map[string][]history.Entry
	all       []history.Entry
}

func NewHistory(key []byte, repo history.Repository, logger *zap.Logger) *History {
	if logger == nil {
		logger = zap.NewNop()
	}
	k := make([]byte, len(key))
	copy(k, key)
	return &History{key: k, repo: repo, logger: logger, bySubject: make(map[string][]history.Entry)}
}

// SubjectKey hashes a subject (see Scope) under the history key.
func (h *History) SubjectKey(subject string) string {
	mac := hmac.New(sha256.New, h.key)
	mac.Write([]byte(subject))
	return hex.EncodeToString(mac.Sum(nil))
}

// Append records e in memory and, when configured, in the repository.
func (h *History) Append(ctx context.Context, e history.Entry) {
	h.mu.Lock()
	h.bySubject[e.SubjectKey] = append(h.bySubject[e.SubjectKey], e)
	h.all = append(h.all, e)
	h.mu.Unlock()

	if h.repo == nil {
		return
	}
	if err := h.repo.Save(ctx, &e); err != nil {
		h.logger.Warn("failed to persist history entry",
			zap.String("session_id", e.SessionID),
			zap.Error(err))
	}
}

// Load seeds the in-memory history from the repository, oldest first.
func (h *History) Load(ctx context.Context) error {
	if h.repo == nil {
		return nil
	}
	entries, err := h.repo.All(ctx)
	if err != nil {
		return err
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].CreatedAt.Before(entries[j].CreatedAt) })

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, e := range entries {
		h.bySubject[e.SubjectKey] = append(h.bySubject[e.SubjectKey], *e)
		h.all = append(h.all, *e)
	}
	return nil
}

// Subject returns a copy of the entries for subject, oldest first.
func (h *History) Subject(subject string) []history.Entry {
	key := h.SubjectKey(subject)
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]history.Entry(nil), h.bySubject[key]...)
}

func (h *History) All() []history.Entry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]history.Entry(nil), h.all...)
}

// RiskTrend is the direction of the last three analyses of a student.
type RiskTrend string

const (
	TrendEscalating RiskTrend = "escalating"
	TrendImproving  RiskTrend = "improving"
	TrendStable     RiskTrend = "stable"
)

const trendPoints = 3

// Summary is the latest analysis of a student plus its recent trend.
type Summary struct {
	StudentID    string                   `json:"student_id"`
	Analyses     int                      `json:"analyses"`
	Latest       *history.Entry           `json:"latest,omitempty"`
	RecentLevels []safeguarding.RiskLevel `json:"recent_levels"`
	Trend        RiskTrend                `json:"trend"`
}

// riskTrend compares the oldest and newest of up to three levels.
func riskTrend(levels []safeguarding.RiskLevel) RiskTrend {
	if len(levels) < 2 {
		return TrendStable
	}
	first, last := levels[0].Rank(), levels[len(levels)-1].Rank()
	switch {
	case last > first:
		return TrendEscalating
	case last < first:
		return TrendImproving
	default:
		return TrendStable
	}
}

// Scope namespaces a student id by tenant. Ids from different schools
// never share history.
func Scope(tenant, studentID string) string {
	if tenant == "" {
		return studentID
	}
	return tenant + "\x1f" + studentID
}

// maxSummaryEntries bounds how many persisted entries a summary reads.
const maxSummaryEntries = 1000

// entriesFor returns the entries of subject, oldest first. With a repository
// the persisted history is authoritative, so analyses written by other
// instances are included; a repository error falls back to memory.
func (h *History) entriesFor(ctx context.Context, subject string) []history.Entry {
	if h.repo == nil {
		return h.Subject(subject)
	}
	stored, err := h.repo.ListBySubject(ctx, h.SubjectKey(subject), maxSummaryEntries)
	if err != nil {
		h.logger.Warn("failed to read history, using in-memory entries", zap.Error(err))
		return h.Subject(subject)
	}
	out := make([]history.Entry, 0, len(stored))
	for i := len(stored) - 1; i >= 0; i-- {
		out = append(out, *stored[i])
	}
	return out
}

// Summary returns the latest analysis of subject and its trend.
func (h *History) Summary(ctx context.Context, subject string) (Summary, error) {
	entries := h.entriesFor(ctx, subject)
	if len(entries) == 0 {
		return Summary{}, safeguarding.ErrUnknownSubject
	}
	latest := entries[len(entries)-1]
	recent := entries
	if len(recent) > trendPoints {
		recent = recent[len(recent)-trendPoints:]
	}
	levels := make([]safeguarding.RiskLevel, 0, len(recent))
	for _, e := range recent {
		levels = append(levels, e.RiskLevel)
	}
	return Summary{
		Analyses:     len(entries),
		Latest:       &latest,
		RecentLevels: levels,
		Trend:        riskTrend(levels),
	}, nil
}

// ComplianceReport aggregates every analysis the orchestrator has run.
type ComplianceReport struct {
	TotalAnalyses     int                            `json:"totalAnalyses"`
	ByRiskLevel       map[safeguarding.RiskLevel]int `json:"byRiskLevel"`
	AverageConfidence float64                        `json:"averageConfidence"`
	MostCommonRisk    safeguarding.RiskLevel         `json:"mostCommonRisk,omitempty"`
	FallbackAnalyses  int                            `json:"fallbackAnalyses"`
	AuditEvents       int                            `json:"auditEvents"`
	VerifiedEvents    int                            `json:"verifiedEvents"`
}

// Compliance aggregates the history. Ties on the most common level go to
// the more severe level.
func (h *History) Compliance() ComplianceReport {
	entries := h.All()
	rep := ComplianceReport{ByRiskLevel: make(map[safeguarding.RiskLevel]int, len(safeguarding.RiskLevels))}
	for _, lvl := range safeguarding.RiskLevels {
		rep.ByRiskLevel[lvl] = 0
	}
	if len(entries) == 0 {
		return rep
	}

	var sum float64
	for _, e := range entries {
		rep.ByRiskLevel[e.RiskLevel]++
		sum += e.Confidence
		if e.FallbackUsed {
			rep.FallbackAnalyses++
		}
	}
	rep.TotalAnalyses = len(entries)
	rep.AverageConfidence = sum / float64(len(entries))

	best := -1
	for _, lvl := range safeguarding.RiskLevels {
		if n := rep.ByRiskLevel[lvl]; n > 0 && n >= best {
			best, rep.MostCommonRisk = n, lvl
		}
	}
	return rep
}

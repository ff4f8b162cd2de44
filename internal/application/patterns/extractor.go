// Package patterns detects recurring per-domain signals in raw student
// records. It reads the trusted record directly and produces Patterns whose
// evidence never leaves the process.
package patterns

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bryanwahyu/safeguard/internal/application"
	"github.com/bryanwahyu/safeguard/internal/application/tokenize"
	"github.com/bryanwahyu/safeguard/internal/domain/safeguarding"
)

const (
	DefaultLookback     = 30 * 24 * time.Hour
	DefaultMinFrequency = 2

	// subjectStruggleThreshold is fixed regardless of MinFrequency.
	subjectStruggleThreshold = 2
	multiSourceThreshold     = 2

	attendanceHighThreshold   = 0.70
	attendanceMediumThreshold = 0.85
)

type Config struct {
	Lookback     time.Duration
	MinFrequency int
}

func DefaultConfig() Config {
	return Config{Lookback: DefaultLookback, MinFrequency: DefaultMinFrequency}
}

// Extractor runs the four domain extractors.
type Extractor struct {
	cfg   Config
	clock application.Clock
}

func NewExtractor(cfg Config, clock application.Clock) *Extractor {
	if cfg.Lookback <= 0 {
		cfg.Lookback = DefaultLookback
	}
	if cfg.MinFrequency <= 0 {
		cfg.MinFrequency = DefaultMinFrequency
	}
	if clock == nil {
		clock = application.SystemClock{}
	}
	return &Extractor{cfg: cfg, clock: clock}
}

// Window returns the lookback window ending now.
func (e *Extractor) Window() safeguarding.Window {
	now := e.clock.Now()
	return safeguarding.Window{Start: now.Add(-e.cfg.Lookback), End: now}
}

// ExtractAll runs every domain extractor over rec. The student token is not
// needed for detection; it scopes log context for callers only.
func (e *Extractor) ExtractAll(_ safeguarding.Token, rec safeguarding.RawRecord) []safeguarding.Pattern {
	w := e.Window()
	var out []safeguarding.Pattern
	out = append(out, e.behavioral(w, rec.BehavioralIncidents)...)
	out = append(out, e.academic(w, rec.Assessments)...)
	out = append(out, e.communication(w, rec.Communications)...)
	out = append(out, e.attendance(w, rec.Attendance)...)
	return out
}

func inWindow(w safeguarding.Window, ts time.Time) bool {
	return !ts.Before(w.Start) && !ts.After(w.End)
}

// Severity: freq>=5 CRITICAL, >=4 HIGH, >=2 MEDIUM, else LOW.
func Severity(freq int) safeguarding.RiskLevel {
	switch {
	case freq >= 5:
		return safeguarding.RiskCritical
	case freq >= 4:
		return safeguarding.RiskHigh
	case freq >= 2:
		return safeguarding.RiskMedium
	default:
		return safeguarding.RiskLow
	}
}

// Trend classifies the spacing of a pattern's occurrences.
func Trend(timestamps []time.Time) safeguarding.PatternTrend {
	if len(timestamps) < 2 {
		return safeguarding.TrendSingleEvent
	}
	first, last := bounds(timestamps)
	span := int(last.Sub(first).Hours() / 24)
	switch {
	case span == 0:
		return safeguarding.TrendClustered
	case span <= 7:
		return safeguarding.TrendEscalating
	case span <= 30:
		return safeguarding.TrendPersistent
	default:
		return safeguarding.TrendScattered
	}
}

func bounds(ts []time.Time) (time.Time, time.Time) {
	first, last := ts[0], ts[0]
	for _, t := range ts[1:] {
		if t.Before(first) {
			first = t
		}
		if t.After(last) {
			last = t
		}
	}
	return first, last
}

func newPattern(typ safeguarding.PatternType, tok safeguarding.Token, ts []time.Time, evidence []safeguarding.TrustedEvidence) safeguarding.Pattern {
	first, last := bounds(ts)
	return safeguarding.Pattern{
		Type:            typ,
		Token:           tok,
		Severity:        Severity(len(ts)),
		Evidence:        evidence,
		FirstOccurrence: first,
		LastOccurrence:  last,
		Frequency:       len(ts),
		Trend:           Trend(ts),
	}
}

func formatDay(t time.Time) string { return t.Format("2006-01-02") }

func titleCase(s string) string {
	s = strings.ToLower(strings.ReplaceAll(s, "_", " "))
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

type group struct {
	ts       []time.Time
	evidence []safeguarding.TrustedEvidence
}

func (g *group) add(ts time.Time, ev string) {
	g.ts = append(g.ts, ts)
	g.evidence = append(g.evidence, safeguarding.NewEvidence(ev))
}

func sortedKeys(m map[string]*group) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// behavioral emits one pattern per incident type meeting MinFrequency.
func (e *Extractor) behavioral(w safeguarding.Window, incidents []safeguarding.BehavioralIncident) []safeguarding.Pattern {
	byType := make(map[string]*group)
	for _, inc := range incidents {
		if !inWindow(w, inc.Timestamp) {
			continue
		}
		key := tokenize.CategoricalValue(safeguarding.CategoryBehavior, inc.IncidentType)
		g, ok := byType[key]
		if !ok {
			g = &group{}
			byType[key] = g
		}
		g.add(inc.Timestamp, fmt.Sprintf("%s incident on %s", titleCase(inc.IncidentType), formatDay(inc.Timestamp)))
	}

	var out []safeguarding.Pattern
	for _, key := range sortedKeys(byType) {
		g := byType[key]
		if len(g.ts) < e.cfg.MinFrequency {
			continue
		}
		tok := tokenize.Categorical(safeguarding.CategoryBehavior, key, len(g.ts))
		out = append(out, newPattern(safeguarding.PatternBehavioral, tok, g.ts, g.evidence))
	}
	return out
}

// academic emits an overall below-grade-level pattern plus one struggle
// pattern per subject with at least two below-level results.
func (e *Extractor) academic(w safeguarding.Window, assessments []safeguarding.Assessment) []safeguarding.Pattern {
	overall := &group{}
	bySubject := make(map[string]*group)
	for _, a := range assessments {
		if !a.BelowGradeLevel || !inWindow(w, a.Timestamp) {
			continue
		}
		ev := fmt.Sprintf("Below grade level in %s on %s (score %.0f)", a.Subject, formatDay(a.Timestamp), a.Score)
		overall.add(a.Timestamp, ev)
		key := tokenize.CategoricalValue(safeguarding.CategoryAcademic, a.Subject)
		g, ok := bySubject[key]
		if !ok {
			g = &group{}
			bySubject[key] = g
		}
		g.add(a.Timestamp, ev)
	}

	var out []safeguarding.Pattern
	if len(overall.ts) >= e.cfg.MinFrequency {
		tok := tokenize.Categorical(safeguarding.CategoryAcademic, "BELOW_GRADE", len(overall.ts))
		out = append(out, newPattern(safeguarding.PatternAcademic, tok, overall.ts, overall.evidence))
	}
	for _, key := range sortedKeys(bySubject) {
		g := bySubject[key]
		if len(g.ts) < subjectStruggleThreshold {
			continue
		}
		tok := tokenize.Categorical(safeguarding.CategoryAcademic, key, len(g.ts))
		out = append(out, newPattern(safeguarding.PatternAcademic, tok, g.ts, g.evidence))
	}
	return out
}

// communication emits an escalation pattern for urgent/high messages and a
// fixed MEDIUM multi-source pattern when two or more senders raised concerns.
func (e *Extractor) communication(w safeguarding.Window, comms []safeguarding.Communication) []safeguarding.Pattern {
	concerns := &group{}
	senders := make(map[string]time.Time)
	var senderTimes []time.Time
	for _, c := range comms {
		if !c.Priority.Concerning() || !inWindow(w, c.Timestamp) {
			continue
		}
		concerns.add(c.Timestamp, fmt.Sprintf("%s priority message from %s on %s", titleCase(string(c.Priority)), c.Sender, formatDay(c.Timestamp)))
		sender := strings.ToLower(strings.TrimSpace(c.Sender))
		if _, seen := senders[sender]; !seen && sender != "" {
			senders[sender] = c.Timestamp
			senderTimes = append(senderTimes, c.Timestamp)
		}
	}

	var out []safeguarding.Pattern
	if len(concerns.ts) >= e.cfg.MinFrequency {
		tok := tokenize.Categorical(safeguarding.CategoryCommunication, "URGENT", len(concerns.ts))
		out = append(out, newPattern(safeguarding.PatternCommunicationEscalation, tok, concerns.ts, concerns.evidence))
	}
	if len(senders) >= multiSourceThreshold {
		p := newPattern(safeguarding.PatternCommunicationEscalation,
			safeguarding.Token{Category: safeguarding.CategoryCommunication, Value: "COMM_MULTI_SOURCE_" + string(safeguarding.BucketFrequency(len(senders)))},
			senderTimes,
			[]safeguarding.TrustedEvidence{safeguarding.NewEvidence(fmt.Sprintf("Concerns raised by %d different people", len(senders)))},
		)
		p.Severity = safeguarding.RiskMedium
		out = append(out, p)
	}
	return out
}

// attendance emits a decline pattern when the in-window attendance rate
// drops below 85%.
func (e *Extractor) attendance(w safeguarding.Window, records []safeguarding.AttendanceRecord) []safeguarding.Pattern {
	var total, present int
	absences := &group{}
	for _, r := range records {
		if !inWindow(w, r.Timestamp) {
			continue
		}
		total++
		if r.Present() {
			present++
			continue
		}
		absences.add(r.Timestamp, fmt.Sprintf("Absent on %s", formatDay(r.Timestamp)))
	}
	if total == 0 || len(absences.ts) == 0 {
		return nil
	}

	rate := float64(present) / float64(total)
	var sev safeguarding.RiskLevel
	switch {
	case rate < attendanceHighThreshold:
		sev = safeguarding.RiskHigh
	case rate < attendanceMediumThreshold:
		sev = safeguarding.RiskMedium
	default:
		return nil
	}

	p := newPattern(safeguarding.PatternAttendanceDecline,
		safeguarding.Token{Category: safeguarding.CategoryAcademic, Value: "ATTEND_DECLINE_" + string(safeguarding.BucketFrequency(len(absences.ts)))},
		absences.ts,
		append([]safeguarding.TrustedEvidence{safeguarding.NewEvidence(fmt.Sprintf("Attendance rate %.0f%% over the last %d days", rate*100, int(e.cfg.Lookback.Hours()/24)))}, absences.evidence...),
	)
	p.Severity = sev
	return []safeguarding.Pattern{p}
}

package tokenize

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/bryanwahyu/safeguard/internal/domain/safeguarding"
)

// Snapshot is the token-only payload allowed to cross the trust boundary.
// Its fields are unexported: only BuildSnapshot can populate one. It holds
// the owning session's id but no reference to its token maps.
type Snapshot struct {
	studentToken        safeguarding.Token
	dataCategories      []safeguarding.DataCategory
	behaviorTokens      []safeguarding.Token
	academicTokens      []safeguarding.Token
	communicationTokens []safeguarding.Token
	temporalTokens      []safeguarding.Token
	frequencyToken      safeguarding.Token
	trendToken          safeguarding.Token

	sessionID string
}

// LeakChecker reports whether a payload mentions a raw identifier. *Session
// implements it.
type LeakChecker interface {
	Leaks(payload any) bool
}

// BuildSnapshot tokenizes every domain of rec. ref is the reference time for
// temporal bucketing.
func (s *Session) BuildSnapshot(studentID string, rec safeguarding.RawRecord, ref time.Time) (*Snapshot, error) {
	studentTok, err := s.TokenizeIdentifier(safeguarding.CategoryStudent, studentID)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{studentToken: studentTok, sessionID: s.ID()}
	var concernEvents []time.Time
	latest := make(map[safeguarding.DataCategory]time.Time)
	touch := func(cat safeguarding.DataCategory, ts time.Time) {
		if cur, ok := latest[cat]; !ok || ts.After(cur) {
			latest[cat] = ts
		}
	}

	if len(rec.BehavioralIncidents) > 0 {
		byType := make(map[string]int)
		for _, inc := range rec.BehavioralIncidents {
			byType[CategoricalValue(safeguarding.CategoryBehavior, inc.IncidentType)]++
			concernEvents = append(concernEvents, inc.Timestamp)
			touch(safeguarding.DataBehavioral, inc.Timestamp)
		}
		snap.behaviorTokens = groupTokens(safeguarding.CategoryBehavior, byType)
	}

	if len(rec.Assessments) > 0 {
		bySubject := make(map[string]int)
		for _, a := range rec.Assessments {
			touch(safeguarding.DataAcademic, a.Timestamp)
			if !a.BelowGradeLevel {
				continue
			}
			bySubject[CategoricalValue(safeguarding.CategoryAcademic, a.Subject)]++
			concernEvents = append(concernEvents, a.Timestamp)
		}
		snap.academicTokens = groupTokens(safeguarding.CategoryAcademic, bySubject)
	}

	if len(rec.Attendance) > 0 {
		present, absences := 0, 0
		for _, a := range rec.Attendance {
			touch(safeguarding.DataAttendance, a.Timestamp)
			if a.Present() {
				present++
				continue
			}
			absences++
			concernEvents = append(concernEvents, a.Timestamp)
		}
		if tok, ok := attendanceToken(present, len(rec.Attendance), absences); ok {
			snap.academicTokens = append(snap.academicTokens, tok)
		}
	}

	if len(rec.Communications) > 0 {
		byPriority := make(map[string]int)
		for _, c := range rec.Communications {
			touch(safeguarding.DataCommunication, c.Timestamp)
			if !c.Priority.Concerning() {
				continue
			}
			byPriority[CategoricalValue(safeguarding.CategoryCommunication, string(c.Priority))]++
			concernEvents = append(concernEvents, c.Timestamp)
		}
		snap.communicationTokens = groupTokens(safeguarding.CategoryCommunication, byPriority)
	}

	seenTemporal := make(map[string]bool)
	for _, cat := range []safeguarding.DataCategory{
		safeguarding.DataBehavioral, safeguarding.DataAcademic,
		safeguarding.DataCommunication, safeguarding.DataAttendance,
	} {
		ts, ok := latest[cat]
		if !ok {
			continue
		}
		snap.dataCategories = append(snap.dataCategories, cat)
		tok := Temporal(ts, ref)
		if !seenTemporal[tok.Value] {
			seenTemporal[tok.Value] = true
			snap.temporalTokens = append(snap.temporalTokens, tok)
		}
	}

	snap.frequencyToken, snap.trendToken = FrequencyTrend(concernEvents)
	return snap, nil
}

// attendanceToken mirrors the attendance thresholds used by pattern
// extraction: <0.70 severe, <0.85 decline.
func attendanceToken(present, total, absences int) (safeguarding.Token, bool) {
	if total == 0 {
		return safeguarding.Token{}, false
	}
	rate := float64(present) / float64(total)
	var bucket string
	switch {
	case rate < 0.70:
		bucket = "ATTEND_DECLINE_SEVERE"
	case rate < 0.85:
		bucket = "ATTEND_DECLINE"
	default:
		return safeguarding.Token{}, false
	}
	return safeguarding.Token{
		Category: safeguarding.CategoryAcademic,
		Value:    bucket + "_" + string(safeguarding.BucketFrequency(absences)),
	}, true
}

func groupTokens(category safeguarding.TokenCategory, counts map[string]int) []safeguarding.Token {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]safeguarding.Token, 0, len(keys))
	for _, k := range keys {
		out = append(out, Categorical(category, k, counts[k]))
	}
	return out
}

// Valid reports whether the snapshot was produced by BuildSnapshot.
func (s *Snapshot) Valid() bool {
	return s != nil && s.sessionID != "" && !s.studentToken.IsZero()
}

func (s *Snapshot) StudentToken() safeguarding.Token { return s.studentToken }

func (s *Snapshot) DataCategories() []safeguarding.DataCategory {
	return append([]safeguarding.DataCategory(nil), s.dataCategories...)
}

func (s *Snapshot) BehaviorTokens() []safeguarding.Token {
	return append([]safeguarding.Token(nil), s.behaviorTokens...)
}

func (s *Snapshot) AcademicTokens() []safeguarding.Token {
	return append([]safeguarding.Token(nil), s.academicTokens...)
}

func (s *Snapshot) CommunicationTokens() []safeguarding.Token {
	return append([]safeguarding.Token(nil), s.communicationTokens...)
}

func (s *Snapshot) TemporalTokens() []safeguarding.Token {
	return append([]safeguarding.Token(nil), s.temporalTokens...)
}

func (s *Snapshot) FrequencyToken() safeguarding.Token { return s.frequencyToken }

func (s *Snapshot) TrendToken() safeguarding.Token { return s.trendToken }

// SessionID is the id of the owning session.
func (s *Snapshot) SessionID() string {
	if s == nil {
		return ""
	}
	return s.sessionID
}

// Request renders the provider request.
func (s *Snapshot) Request() safeguarding.AnalysisRequest {
	req := safeguarding.AnalysisRequest{
		StudentToken:   s.studentToken.Value,
		DataCategories: make([]string, 0, len(s.dataCategories)),
		Patterns:       make([]string, 0, len(s.behaviorTokens)+len(s.academicTokens)+len(s.communicationTokens)),
		TemporalTokens: make([]string, 0, len(s.temporalTokens)),
		FrequencyToken: s.frequencyToken.Value,
		TrendToken:     s.trendToken.Value,
	}
	for _, c := range s.dataCategories {
		req.DataCategories = append(req.DataCategories, string(c))
	}
	for _, group := range [][]safeguarding.Token{s.behaviorTokens, s.academicTokens, s.communicationTokens} {
		for _, t := range group {
			req.Patterns = append(req.Patterns, t.Value)
		}
	}
	for _, t := range s.temporalTokens {
		req.TemporalTokens = append(req.TemporalTokens, t.Value)
	}
	return req
}

// MarshalJSON encodes the snapshot as its provider request.
func (s *Snapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Request())
}

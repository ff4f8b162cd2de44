// Package localize maps provider output back to a student inside the
// trusted process.
package localize

import (
	"fmt"

	"github.com/bryanwahyu/safeguard/internal/application/tokenize"
	"github.com/bryanwahyu/safeguard/internal/domain/safeguarding"
)

// Localizer resolves through the session that produced the snapshot.
type Localizer struct {
	session *tokenize.Session
}

func New(session *tokenize.Session) *Localizer {
	return &Localizer{session: session}
}

// Localize binds result to studentID. The student must have been tokenized
// by this Localizer's session, the token must resolve back to the same id,
// and the result may mention no identifier token other than the student's.
func (l *Localizer) Localize(result safeguarding.ExternalAnalysisResult, studentID string) (safeguarding.LocalizedAnalysis, error) {
	if l.session == nil {
		return safeguarding.LocalizedAnalysis{}, safeguarding.ErrUnknownSubject
	}
	tok, ok := l.session.Lookup(safeguarding.CategoryStudent, studentID)
	if !ok {
		return safeguarding.LocalizedAnalysis{}, safeguarding.ErrUnknownSubject
	}
	raw, ok := l.session.Resolve(tok)
	if !ok || raw != studentID {
		return safeguarding.LocalizedAnalysis{}, safeguarding.ErrUnknownSubject
	}
	if foreign, ok := foreignToken(result, tok.Value); ok {
		return safeguarding.LocalizedAnalysis{}, fmt.Errorf("result mentions %s: %w", foreign, safeguarding.ErrUnknownSubject)
	}
	return safeguarding.LocalizedAnalysis{Result: result, StudentID: raw, StudentToken: tok}, nil
}

// Resolve returns the student id behind a student token, if this session
// issued it.
func (l *Localizer) Resolve(tok safeguarding.Token) (string, bool) {
	if l.session == nil || tok.Category != safeguarding.CategoryStudent {
		return "", false
	}
	return l.session.Resolve(tok)
}

// foreignToken finds an identifier token in the provider's free text or
// pattern lists that is not the student's own.
func foreignToken(result safeguarding.ExternalAnalysisResult, own string) (string, bool) {
	fields := []string{result.EvidenceSummary, result.Reasoning}
	fields = append(fields, result.PatternTokens...)
	fields = append(fields, result.CombinationTokens...)
	fields = append(fields, result.Recommendations...)
	for _, f := range fields {
		for _, t := range tokenize.FindTokens(f) {
			if t != own {
				return t, true
			}
		}
	}
	return "", false
}

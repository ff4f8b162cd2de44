package safeguarding

import (
	"errors"
	"time"
)

var errTrustedEvidence = errors.New("trusted evidence cannot be serialized")

// TrustedEvidence is prose that may identify a student. It refuses JSON
// encoding so it cannot end up in a payload by accident; callers that
// render it on the trusted side must call Text explicitly.
type TrustedEvidence struct {
	text string
}

func NewEvidence(text string) TrustedEvidence { return TrustedEvidence{text: text} }

func (e TrustedEvidence) Text() string { return e.text }

func (TrustedEvidence) MarshalJSON() ([]byte, error) { return nil, errTrustedEvidence }

func (TrustedEvidence) MarshalText() ([]byte, error) { return nil, errTrustedEvidence }

// Pattern is a recurring signal detected within one domain.
type Pattern struct {
	Type            PatternType
	Token           Token
	Severity        RiskLevel
	Evidence        []TrustedEvidence
	FirstOccurrence time.Time
	LastOccurrence  time.Time
	Frequency       int
	Trend           PatternTrend
}

// PatternCombination is a named co-occurrence of pattern types.
type PatternCombination struct {
	Token CombinationToken `json:"token"`
	Kind  string           `json:"kind"`
	Types []PatternType    `json:"types"`
}

// Window is the lookback window an assessment covers.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// RiskAssessment combines the patterns found for one student token.
type RiskAssessment struct {
	StudentToken        Token
	OverallRiskLevel    RiskLevel
	Confidence          float64
	Patterns            []Pattern
	Combinations        []PatternCombination
	ContributingFactors []string
	Timestamp           time.Time
	Window              Window
}

// HasCombination reports whether tok was detected.
func (a RiskAssessment) HasCombination(tok CombinationToken) bool {
	for _, c := range a.Combinations {
		if c.Token == tok {
			return true
		}
	}
	return false
}

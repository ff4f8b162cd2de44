package safeguarding

import (
	"fmt"
	"strings"
)

// RiskLevel ordered severity: LOW < MEDIUM < HIGH < CRITICAL.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// RiskLevels lists every level in ascending order.
var RiskLevels = []RiskLevel{RiskLow, RiskMedium, RiskHigh, RiskCritical}

// Rank returns the ordinal of the level, or -1 when the level is unknown.
func (r RiskLevel) Rank() int {
	switch r {
	case RiskLow:
		return 0
	case RiskMedium:
		return 1
	case RiskHigh:
		return 2
	case RiskCritical:
		return 3
	default:
		return -1
	}
}

func (r RiskLevel) Valid() bool { return r.Rank() >= 0 }

func (r RiskLevel) String() string { return string(r) }

// ParseRiskLevel accepts any casing ("high", "HIGH").
func ParseRiskLevel(s string) (RiskLevel, error) {
	lvl := RiskLevel(strings.ToUpper(strings.TrimSpace(s)))
	if !lvl.Valid() {
		return "", fmt.Errorf("unknown risk level %q", s)
	}
	return lvl, nil
}

// MaxRisk returns the more severe of a and b. Unknown levels lose.
func MaxRisk(a, b RiskLevel) RiskLevel {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// TokenCategory namespaces tokens.
type TokenCategory string

const (
	CategoryStudent       TokenCategory = "STUDENT"
	CategoryBehavior      TokenCategory = "BEHAVIOR"
	CategoryAcademic      TokenCategory = "ACADEMIC"
	CategoryCommunication TokenCategory = "COMMUNICATION"
	CategoryTemporal      TokenCategory = "TEMPORAL"
	CategoryFrequency     TokenCategory = "FREQUENCY"
	CategoryTrend         TokenCategory = "TREND"
)

func (c TokenCategory) Valid() bool {
	switch c {
	case CategoryStudent, CategoryBehavior, CategoryAcademic, CategoryCommunication,
		CategoryTemporal, CategoryFrequency, CategoryTrend:
		return true
	}
	return false
}

// Token is an opaque stand-in for a sensitive or categorical value.
type Token struct {
	Category TokenCategory `json:"category"`
	Value    string        `json:"value"`
}

func (t Token) String() string { return t.Value }

func (t Token) IsZero() bool { return t.Value == "" }

// DataCategory names a raw record domain.
type DataCategory string

const (
	DataBehavioral    DataCategory = "behavioral"
	DataAcademic      DataCategory = "academic"
	DataCommunication DataCategory = "communication"
	DataAttendance    DataCategory = "attendance"
)

// FrequencyBucket buckets an event count.
type FrequencyBucket string

const (
	FreqNone   FrequencyBucket = "NONE"
	FreqSingle FrequencyBucket = "SINGLE"
	FreqLow    FrequencyBucket = "LOW"
	FreqMedium FrequencyBucket = "MEDIUM"
	FreqHigh   FrequencyBucket = "HIGH"
)

// BucketFrequency: 0 NONE, 1 SINGLE, <=3 LOW, <=7 MEDIUM, >7 HIGH.
func BucketFrequency(n int) FrequencyBucket {
	switch {
	case n <= 0:
		return FreqNone
	case n == 1:
		return FreqSingle
	case n <= 3:
		return FreqLow
	case n <= 7:
		return FreqMedium
	default:
		return FreqHigh
	}
}

// TrendBucket is the coarse trend sent across the boundary.
type TrendBucket string

const (
	TrendBucketCluster    TrendBucket = "CLUSTER"
	TrendBucketEscalating TrendBucket = "ESCALATING"
	TrendBucketPersistent TrendBucket = "PERSISTENT"
	TrendBucketStable     TrendBucket = "STABLE"
	TrendBucketScattered  TrendBucket = "SCATTERED"
)

// TemporalBucket is a lossy age bucket.
type TemporalBucket string

const (
	TemporalRecent     TemporalBucket = "RECENT"
	TemporalMonth      TemporalBucket = "MONTH"
	TemporalQuarter    TemporalBucket = "QUARTER"
	TemporalHistorical TemporalBucket = "HISTORICAL"
)

// PatternType identifies the domain signal a Pattern represents.
type PatternType string

const (
	PatternBehavioral              PatternType = "behavioral"
	PatternAcademic                PatternType = "academic"
	PatternCommunicationEscalation PatternType = "communication_escalation"
	PatternAttendanceDecline       PatternType = "attendance_decline"
)

func (p PatternType) Valid() bool {
	switch p {
	case PatternBehavioral, PatternAcademic, PatternCommunicationEscalation, PatternAttendanceDecline:
		return true
	}
	return false
}

// PatternTrend is the trusted-side trend classification of a Pattern.
type PatternTrend string

const (
	TrendSingleEvent PatternTrend = "single_event"
	TrendClustered   PatternTrend = "clustered"
	TrendEscalating  PatternTrend = "escalating"
	TrendPersistent  PatternTrend = "persistent"
	TrendScattered   PatternTrend = "scattered"
)

// CombinationToken names a co-occurrence of pattern types.
type CombinationToken string

const (
	CombinationBehavioralAcademic   CombinationToken = "behavioral_academic"
	CombinationBehavioralEscalation CombinationToken = "behavioral_issues/escalating_concerns"
	CombinationAcademicWithdrawal   CombinationToken = "academic_difficulty/withdrawal_pattern"
	CombinationEscalationWithdrawal CombinationToken = "escalating_concerns/withdrawal_pattern"
	CombinationMultiFactor          CombinationToken = "multi_factor_concern"
)

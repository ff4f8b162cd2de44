package safeguarding

import "time"

// SafeguardingReport is the final document handed to a ReportSink.
type SafeguardingReport struct {
	ID                  string               `json:"id"`
	SessionID           string               `json:"session_id"`
	GeneratedAt         time.Time            `json:"generated_at"`
	StudentID           string               `json:"student_id"`
	StudentName         string               `json:"student_name,omitempty"`
	GradeLevel          string               `json:"grade_level,omitempty"`
	Summary             RiskSummary          `json:"summary"`
	Concerns            []ConcernDetail      `json:"concerns"`
	Combinations        []PatternCombination `json:"combinations,omitempty"`
	ContributingFactors []string             `json:"contributing_factors,omitempty"`
	Interventions       []Intervention       `json:"interventions"`
	NextSteps           EscalationPlan       `json:"next_steps"`
	PrivacyNotice       string               `json:"privacy_notice"`
}

type RiskSummary struct {
	OverallRiskLevel  RiskLevel `json:"overall_risk_level"`
	LocalRiskLevel    RiskLevel `json:"local_risk_level"`
	ExternalRiskLevel RiskLevel `json:"external_risk_level"`
	Confidence        float64   `json:"confidence"`
	LocalConfidence   float64   `json:"local_confidence"`
	EvidenceSummary   string    `json:"evidence_summary,omitempty"`
	Reasoning         string    `json:"reasoning,omitempty"`
	FallbackUsed      bool      `json:"fallback_used"`
}

type ConcernDetail struct {
	Token       string       `json:"token"`
	Type        PatternType  `json:"type,omitempty"`
	Description string       `json:"description"`
	Severity    RiskLevel    `json:"severity,omitempty"`
	Trend       PatternTrend `json:"trend,omitempty"`
	Frequency   int          `json:"frequency,omitempty"`
	Evidence    []string     `json:"evidence,omitempty"`
}

type Intervention struct {
	Code    string   `json:"code"`
	Title   string   `json:"title"`
	Actions []string `json:"actions"`
	Owner   string   `json:"owner"`
}

type EscalationStep struct {
	Action   string `json:"action"`
	Owner    string `json:"owner"`
	Deadline string `json:"deadline"`
}

type EscalationPlan struct {
	Level RiskLevel        `json:"level"`
	Steps []EscalationStep `json:"steps"`
}

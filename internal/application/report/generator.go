// Package report expands localized analyses into SafeguardingReports.
package report

import (
	"fmt"
	"regexp"

	"github.com/google/uuid"

	"github.com/bryanwahyu/safeguard/internal/application"
	"github.com/bryanwahyu/safeguard/internal/domain/safeguarding"
)

// PrivacyNotice is attached to every report.
const PrivacyNotice = "This report was produced by a privacy-preserving pipeline. " +
	"Only anonymous tokens were shared with the external analysis service; " +
	"student identity was restored inside the school's systems. " +
	"Handle under the school's safeguarding and data-protection policies."

// providerToken bounds what a provider-supplied pattern token may look like
// before it is echoed into a report.
var providerToken = regexp.MustCompile(`^[A-Z][A-Z0-9_]{2,63}$`)

type Generator struct {
	clock application.Clock
	newID func() string
}

func NewGenerator(clock application.Clock) *Generator {
	if clock == nil {
		clock = application.SystemClock{}
	}
	return &Generator{clock: clock, newID: func() string { return uuid.New().String() }}
}

// Generate builds the report for one session. assessment may be nil when
// the local assessment is unavailable; the provider level then stands alone.
func (g *Generator) Generate(sessionID string, loc safeguarding.LocalizedAnalysis, profile safeguarding.StudentProfile, assessment *safeguarding.RiskAssessment) (*safeguarding.SafeguardingReport, error) {
	if loc.StudentID == "" {
		return nil, safeguarding.ErrUnknownSubject
	}
	if profile.StudentID != "" && profile.StudentID != loc.StudentID {
		return nil, fmt.Errorf("profile %w", safeguarding.ErrUnknownSubject)
	}

	res := loc.Result
	external := res.RiskLevel
	if !external.Valid() {
		external = safeguarding.RiskMedium
	}
	summary := safeguarding.RiskSummary{
		OverallRiskLevel:  external,
		ExternalRiskLevel: external,
		Confidence:        res.Confidence,
		EvidenceSummary:   res.EvidenceSummary,
		Reasoning:         res.Reasoning,
		FallbackUsed:      res.Fallback,
	}

	rep := &safeguarding.SafeguardingReport{
		ID:            g.newID(),
		SessionID:     sessionID,
		GeneratedAt:   g.clock.Now(),
		StudentID:     loc.StudentID,
		StudentName:   profile.Name,
		GradeLevel:    profile.GradeLevel,
		PrivacyNotice: PrivacyNotice,
	}

	seen := make(map[string]bool)
	if assessment != nil {
		summary.LocalRiskLevel = assessment.OverallRiskLevel
		summary.LocalConfidence = assessment.Confidence
		summary.OverallRiskLevel = safeguarding.MaxRisk(assessment.OverallRiskLevel, external)
		for _, p := range assessment.Patterns {
			seen[p.Token.Value] = true
			rep.Concerns = append(rep.Concerns, concernFromPattern(p))
		}
		rep.Combinations = append(rep.Combinations, assessment.Combinations...)
		rep.ContributingFactors = append(rep.ContributingFactors, assessment.ContributingFactors...)
	}
	for _, tok := range res.PatternTokens {
		if seen[tok] || !providerToken.MatchString(tok) {
			continue
		}
		desc, ok := DescribePattern(tok)
		if !ok {
			continue
		}
		seen[tok] = true
		rep.Concerns = append(rep.Concerns, safeguarding.ConcernDetail{Token: tok, Description: desc})
	}
	for _, c := range res.CombinationTokens {
		tok := safeguarding.CombinationToken(c)
		if _, ok := DescribeCombination(tok); !ok || hasCombination(rep.Combinations, tok) {
			continue
		}
		rep.Combinations = append(rep.Combinations, safeguarding.PatternCombination{Token: tok, Kind: "external"})
	}
	if rep.Concerns == nil {
		rep.Concerns = []safeguarding.ConcernDetail{}
	}

	rep.Summary = summary
	rep.Interventions = expandInterventions(res.Recommendations)
	rep.NextSteps = EscalationFor(summary.OverallRiskLevel)
	return rep, nil
}

func concernFromPattern(p safeguarding.Pattern) safeguarding.ConcernDetail {
	desc, ok := DescribePattern(p.Token.Value)
	if !ok {
		desc = fmt.Sprintf("%s pattern", p.Type)
	}
	ev := make([]string, 0, len(p.Evidence))
	for _, e := range p.Evidence {
		ev = append(ev, e.Text())
	}
	return safeguarding.ConcernDetail{
		Token:       p.Token.Value,
		Type:        p.Type,
		Description: desc,
		Severity:    p.Severity,
		Trend:       p.Trend,
		Frequency:   p.Frequency,
		Evidence:    ev,
	}
}

func hasCombination(cs []safeguarding.PatternCombination, tok safeguarding.CombinationToken) bool {
	for _, c := range cs {
		if c.Token == tok {
			return true
		}
	}
	return false
}

// expandInterventions resolves recommendation codes through the catalog.
// Unknown codes are dropped; an empty result falls back to MONITOR.
func expandInterventions(codes []string) []safeguarding.Intervention {
	out := []safeguarding.Intervention{}
	seen := make(map[string]bool)
	for _, code := range codes {
		iv, ok := LookupIntervention(code)
		if !ok || seen[iv.Code] {
			continue
		}
		seen[iv.Code] = true
		out = append(out, iv)
	}
	if len(out) == 0 {
		iv, _ := LookupIntervention("MONITOR")
		out = append(out, iv)
	}
	return out
}

package risk

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/bryanwahyu/safeguard/internal/application"
	"github.com/bryanwahyu/safeguard/internal/domain/safeguarding"
)

// CombinationRule fires when every type in Requires is present. MinDistinct,
// when set, fires on the number of distinct types instead.
type CombinationRule struct {
	Token       safeguarding.CombinationToken
	Kind        string
	Requires    []safeguarding.PatternType
	MinDistinct int
}

// DefaultRules is the combination table applied by the Assessor.
var DefaultRules = []CombinationRule{
	{
		Token:    safeguarding.CombinationBehavioralAcademic,
		Kind:     "co_occurrence",
		Requires: []safeguarding.PatternType{safeguarding.PatternBehavioral, safeguarding.PatternAcademic},
	},
	{
		Token:    safeguarding.CombinationBehavioralEscalation,
		Kind:     "co_occurrence",
		Requires: []safeguarding.PatternType{safeguarding.PatternBehavioral, safeguarding.PatternCommunicationEscalation},
	},
	{
		Token:    safeguarding.CombinationAcademicWithdrawal,
		Kind:     "co_occurrence",
		Requires: []safeguarding.PatternType{safeguarding.PatternAcademic, safeguarding.PatternAttendanceDecline},
	},
	{
		Token:    safeguarding.CombinationEscalationWithdrawal,
		Kind:     "co_occurrence",
		Requires: []safeguarding.PatternType{safeguarding.PatternCommunicationEscalation, safeguarding.PatternAttendanceDecline},
	},
	{
		Token:       safeguarding.CombinationMultiFactor,
		Kind:        "convergence",
		MinDistinct: 3,
	},
}

// Match evaluates the rule against the set of present types.
func (r CombinationRule) Match(present map[safeguarding.PatternType]bool) (safeguarding.PatternCombination, bool) {
	if r.MinDistinct > 0 {
		if len(present) < r.MinDistinct {
			return safeguarding.PatternCombination{}, false
		}
		return safeguarding.PatternCombination{Token: r.Token, Kind: r.Kind, Types: sortedTypes(present)}, true
	}
	for _, t := range r.Requires {
		if !present[t] {
			return safeguarding.PatternCombination{}, false
		}
	}
	return safeguarding.PatternCombination{
		Token: r.Token,
		Kind:  r.Kind,
		Types: append([]safeguarding.PatternType(nil), r.Requires...),
	}, true
}

func sortedTypes(set map[safeguarding.PatternType]bool) []safeguarding.PatternType {
	out := make([]safeguarding.PatternType, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Assessor combines patterns into a RiskAssessment.
type Assessor struct {
	rules []CombinationRule
	clock application.Clock
}

func NewAssessor(rules []CombinationRule, clock application.Clock) *Assessor {
	if rules == nil {
		rules = DefaultRules
	}
	if clock == nil {
		clock = application.SystemClock{}
	}
	return &Assessor{rules: rules, clock: clock}
}

// Combinations applies the rule table to the distinct pattern types.
func (a *Assessor) Combinations(patterns []safeguarding.Pattern) []safeguarding.PatternCombination {
	present := make(map[safeguarding.PatternType]bool)
	for _, p := range patterns {
		present[p.Type] = true
	}
	var out []safeguarding.PatternCombination
	for _, r := range a.rules {
		if c, ok := r.Match(present); ok {
			out = append(out, c)
		}
	}
	return out
}

// Assess builds the assessment for one student token over window w.
func (a *Assessor) Assess(studentToken safeguarding.Token, patterns []safeguarding.Pattern, w safeguarding.Window) safeguarding.RiskAssessment {
	out := safeguarding.RiskAssessment{
		StudentToken:     studentToken,
		OverallRiskLevel: safeguarding.RiskLow,
		Patterns:         patterns,
		Timestamp:        a.clock.Now(),
		Window:           w,
	}
	if len(patterns) == 0 {
		out.Confidence = 0
		return out
	}

	for _, p := range patterns {
		out.OverallRiskLevel = safeguarding.MaxRisk(out.OverallRiskLevel, p.Severity)
	}
	out.Combinations = a.Combinations(patterns)
	out.Confidence = Confidence(patterns, out.Combinations)
	out.ContributingFactors = contributingFactors(patterns, out.Combinations)
	return out
}

// Confidence = clamp(0.5 + min(0.2, 0.05*|patterns|) + min(0.15, 0.02*Σfreq)
// + min(0.15, 0.05*|combinations|), 0, 1). Zero without patterns.
func Confidence(patterns []safeguarding.Pattern, combos []safeguarding.PatternCombination) float64 {
	if len(patterns) == 0 {
		return 0
	}
	total := 0
	for _, p := range patterns {
		total += p.Frequency
	}
	c := 0.5 +
		math.Min(0.2, 0.05*float64(len(patterns))) +
		math.Min(0.15, 0.02*float64(total)) +
		math.Min(0.15, 0.05*float64(len(combos)))
	return clamp(c)
}

func clamp(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	// strip float noise so the capped sum lands exactly on 1.0
	return math.Round(v*1e9) / 1e9
}

func contributingFactors(patterns []safeguarding.Pattern, combos []safeguarding.PatternCombination) []string {
	out := make([]string, 0, len(patterns)+len(combos))
	for _, p := range patterns {
		out = append(out, fmt.Sprintf("%s signal %s: %d occurrence(s), %s trend, %s severity",
			strings.ReplaceAll(string(p.Type), "_", " "), p.Token.Value, p.Frequency,
			strings.ReplaceAll(string(p.Trend), "_", " "), strings.ToLower(string(p.Severity))))
	}
	for _, c := range combos {
		out = append(out, fmt.Sprintf("combined concern %s (%s)", c.Token, c.Kind))
	}
	return out
}

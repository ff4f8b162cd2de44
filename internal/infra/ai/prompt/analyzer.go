package prompt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bryanwahyu/safeguard/internal/domain/safeguarding"
)

// AnalyzeRequest produces a rule-based analysis of a token-only request as a
// JSON string matching ResponseSchema. It never calls out; it is the offline
// stand-in for the model.
func AnalyzeRequest(req safeguarding.AnalysisRequest) string {
	type Output struct {
		RiskLevel           string   `json:"risk_level"`
		Confidence          float64  `json:"confidence"`
		Patterns            []string `json:"patterns"`
		PatternCombinations []string `json:"pattern_combinations"`
		EvidenceSummary     string   `json:"evidence_summary"`
		Recommendations     []string `json:"recommendations"`
		Reasoning           string   `json:"reasoning"`
	}

	out := Output{
		Patterns:            make([]string, 0, len(req.Patterns)),
		PatternCombinations: make([]string, 0, 4),
		Recommendations:     make([]string, 0, 4),
	}
	level := safeguarding.RiskLow
	raise := func(l safeguarding.RiskLevel) { level = safeguarding.MaxRisk(level, l) }

	seenRec := map[string]bool{}
	recommend := func(code string) {
		if !seenRec[code] {
			seenRec[code] = true
			out.Recommendations = append(out.Recommendations, code)
		}
	}

	// Domains present among the pattern tokens
	behavioral, academic, communication, attendance := false, false, false, false

	for _, p := range req.Patterns {
		lvl := levelForFrequency(p)
		switch {
		case strings.HasPrefix(p, "BEHAV_"):
			behavioral = true
			if strings.Contains(p, "_SELF_HARM_") || strings.Contains(p, "_SUBSTANCE_") {
				lvl = safeguarding.MaxRisk(lvl, safeguarding.RiskHigh)
				recommend("COUNSELLING_REFERRAL")
			}
		case strings.HasPrefix(p, "ATTEND_DECLINE_SEVERE_"):
			attendance = true
			lvl = safeguarding.MaxRisk(lvl, safeguarding.RiskHigh)
		case strings.HasPrefix(p, "ATTEND_"):
			attendance = true
			lvl = safeguarding.MaxRisk(lvl, safeguarding.RiskMedium)
		case strings.HasPrefix(p, "ACAD_"):
			academic = true
		case strings.HasPrefix(p, "COMM_URGENT_"):
			communication = true
			lvl = safeguarding.MaxRisk(lvl, safeguarding.RiskMedium)
		case strings.HasPrefix(p, "COMM_"):
			communication = true
		default:
			continue
		}
		raise(lvl)
		if lvl.Rank() >= safeguarding.RiskMedium.Rank() {
			out.Patterns = append(out.Patterns, p)
		}
	}

	domains := 0
	for _, present := range []bool{behavioral, academic, communication, attendance} {
		if present {
			domains++
		}
	}
	combine := func(ok bool, c safeguarding.CombinationToken) {
		if ok {
			out.PatternCombinations = append(out.PatternCombinations, string(c))
		}
	}
	combine(behavioral && academic, safeguarding.CombinationBehavioralAcademic)
	combine(behavioral && communication, safeguarding.CombinationBehavioralEscalation)
	combine(academic && attendance, safeguarding.CombinationAcademicWithdrawal)
	combine(communication && attendance, safeguarding.CombinationEscalationWithdrawal)
	combine(domains >= 3, safeguarding.CombinationMultiFactor)

	// An escalating trend over recurring signals moves the level up one step
	if req.TrendToken == "TREND_ESCALATING" && len(out.Patterns) > 0 {
		raise(nextLevel(level))
	}
	if domains >= 3 {
		raise(safeguarding.RiskHigh)
	}

	if behavioral {
		recommend("BEHAVIOR_SUPPORT_PLAN")
	}
	if academic {
		recommend("ACADEMIC_INTERVENTION")
	}
	if attendance {
		recommend("ATTENDANCE_MONITORING")
	}
	if communication {
		recommend("PARENT_CONSULTATION")
	}
	switch level {
	case safeguarding.RiskCritical:
		recommend("DSL_REFERRAL")
		recommend("MULTI_AGENCY_REVIEW")
	case safeguarding.RiskHigh:
		recommend("DSL_REFERRAL")
	}
	if len(out.Recommendations) == 0 {
		recommend("MONITOR")
	}

	// Rule-based output is capped below what a model review could reach
	conf := 0.4 + 0.1*float64(min(len(out.Patterns), 3)) + 0.05*float64(len(out.PatternCombinations))
	out.Confidence = min(conf, 0.85)

	out.RiskLevel = string(level)
	out.EvidenceSummary = fmt.Sprintf("%d significant signal(s) across %d domain(s).", len(out.Patterns), domains)
	out.Reasoning = "Offline rule-based assessment of pattern tokens; a model review was not performed."

	b, err := json.Marshal(out)
	if err != nil {
		return `{"risk_level":"MEDIUM","confidence":0.5,"patterns":[],"pattern_combinations":[],"evidence_summary":"","recommendations":["MANUAL_REVIEW_REQUIRED"],"reasoning":"offline analysis failed"}`
	}
	return string(b)
}

// levelForFrequency mirrors the extractor's severity rule on the frequency
// suffix of a categorical token: LOW (2-3) MEDIUM, MEDIUM (4-7) HIGH,
// HIGH (8+) CRITICAL.
func levelForFrequency(tok string) safeguarding.RiskLevel {
	switch tok[strings.LastIndexByte(tok, '_')+1:] {
	case string(safeguarding.FreqHigh):
		return safeguarding.RiskCritical
	case string(safeguarding.FreqMedium):
		return safeguarding.RiskHigh
	case string(safeguarding.FreqLow):
		return safeguarding.RiskMedium
	default:
		return safeguarding.RiskLow
	}
}

func nextLevel(l safeguarding.RiskLevel) safeguarding.RiskLevel {
	for i, lvl := range safeguarding.RiskLevels {
		if lvl == l && i+1 < len(safeguarding.RiskLevels) {
			return safeguarding.RiskLevels[i+1]
		}
	}
	return l
}

// Offline is a safeguarding.Provider backed by AnalyzeRequest.
type Offline struct{}

func (Offline) Analyze(ctx context.Context, req safeguarding.AnalysisRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return AnalyzeRequest(req), nil
}

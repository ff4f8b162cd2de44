package report

import (
	"sort"
	"strings"

	"github.com/bryanwahyu/safeguard/internal/domain/safeguarding"
)

// patternDescriptions is matched by longest prefix, so ATTEND_DECLINE_SEVERE
// wins over ATTEND_DECLINE.
var patternDescriptions = map[string]string{
	"BEHAV_DISRUPTIVE":      "Repeated disruptive behaviour in lessons",
	"BEHAV_AGGRESSIVE":      "Aggressive or physically confrontational behaviour",
	"BEHAV_BULLYING":        "Involvement in bullying incidents",
	"BEHAV_DEFIANT":         "Persistent defiance of staff instructions",
	"BEHAV_WITHDRAWN":       "Withdrawn behaviour noticed by staff",
	"BEHAV_SELF_HARM":       "Indicators of self-harm",
	"BEHAV_SUBSTANCE":       "Incidents involving substances",
	"BEHAV_TRUANCY":         "Truancy from lessons",
	"BEHAV_":                "Recurring behavioural incidents",
	"ACAD_BELOW_GRADE":      "Performance below grade level across assessments",
	"ACAD_":                 "Sustained difficulty in one subject",
	"ATTEND_DECLINE_SEVERE": "Attendance has fallen below 70%",
	"ATTEND_DECLINE":        "Attendance has fallen below 85%",
	"COMM_URGENT":           "Urgent or high-priority concerns raised with the school",
	"COMM_MULTI_SOURCE":     "Concerns raised independently by several people",
	"COMM_":                 "Escalating communications about the student",
}

var patternPrefixes = func() []string {
	keys := make([]string, 0, len(patternDescriptions))
	for k := range patternDescriptions {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return len(keys[i]) > len(keys[j]) })
	return keys
}()

// DescribePattern expands a pattern token. Unknown tokens return false.
func DescribePattern(token string) (string, bool) {
	for _, p := range patternPrefixes {
		if strings.HasPrefix(token, p) {
			return patternDescriptions[p], true
		}
	}
	return "", false
}

var combinationDescriptions = map[safeguarding.CombinationToken]string{
	safeguarding.CombinationBehavioralAcademic:   "Behavioural concerns alongside academic difficulty",
	safeguarding.CombinationBehavioralEscalation: "Behavioural concerns while communications are escalating",
	safeguarding.CombinationAcademicWithdrawal:   "Academic difficulty alongside declining attendance",
	safeguarding.CombinationEscalationWithdrawal: "Escalating communications alongside declining attendance",
	safeguarding.CombinationMultiFactor:          "Concerns converging across three or more areas",
}

// DescribeCombination expands a combination token.
func DescribeCombination(tok safeguarding.CombinationToken) (string, bool) {
	d, ok := combinationDescriptions[tok]
	return d, ok
}

var interventions = map[string]safeguarding.Intervention{
	"MONITOR": {
		Code: "MONITOR", Title: "Continued monitoring", Owner: "Class teacher",
		Actions: []string{"Record further incidents", "Review at next pastoral meeting"},
	},
	"PARENT_CONSULTATION": {
		Code: "PARENT_CONSULTATION", Title: "Parent or carer consultation", Owner: "Head of year",
		Actions: []string{"Arrange meeting with parents or carers", "Agree shared actions and a review date"},
	},
	"BEHAVIOR_SUPPORT_PLAN": {
		Code: "BEHAVIOR_SUPPORT_PLAN", Title: "Behaviour support plan", Owner: "Pastoral lead",
		Actions: []string{"Identify triggers with the student", "Set behaviour targets", "Review weekly"},
	},
	"ACADEMIC_INTERVENTION": {
		Code: "ACADEMIC_INTERVENTION", Title: "Academic intervention", Owner: "Subject lead",
		Actions: []string{"Small-group or 1:1 support", "Reassess after six weeks"},
	},
	"ATTENDANCE_MONITORING": {
		Code: "ATTENDANCE_MONITORING", Title: "Attendance monitoring", Owner: "Attendance officer",
		Actions: []string{"Daily attendance check", "First-day absence call home"},
	},
	"COUNSELLING_REFERRAL": {
		Code: "COUNSELLING_REFERRAL", Title: "Counselling referral", Owner: "Pastoral lead",
		Actions: []string{"Refer to school counsellor", "Obtain consent where required"},
	},
	"DSL_REFERRAL": {
		Code: "DSL_REFERRAL", Title: "Referral to the designated safeguarding lead", Owner: "DSL",
		Actions: []string{"Pass concerns to the DSL", "Record referral on the safeguarding log"},
	},
	"MULTI_AGENCY_REVIEW": {
		Code: "MULTI_AGENCY_REVIEW", Title: "Multi-agency review", Owner: "DSL",
		Actions: []string{"Convene multi-agency meeting", "Share information under local protocols"},
	},
	safeguarding.RecommendationManualReview: {
		Code: safeguarding.RecommendationManualReview, Title: "Manual review required", Owner: "DSL",
		Actions: []string{"Review the record manually; automated analysis was unavailable or inconclusive"},
	},
}

// LookupIntervention returns a copy of the catalog entry for code.
func LookupIntervention(code string) (safeguarding.Intervention, bool) {
	iv, ok := interventions[strings.ToUpper(strings.TrimSpace(code))]
	if !ok {
		return safeguarding.Intervention{}, false
	}
	iv.Actions = append([]string(nil), iv.Actions...)
	return iv, true
}

var escalationPlans = map[safeguarding.RiskLevel][]safeguarding.EscalationStep{
	safeguarding.RiskLow: {
		{Action: "Monitor and record further concerns", Owner: "Class teacher", Deadline: "within 2 weeks"},
	},
	safeguarding.RiskMedium: {
		{Action: "Parent or carer consultation", Owner: "Head of year", Deadline: "within 1 week"},
		{Action: "Put a support plan in place", Owner: "Pastoral lead", Deadline: "within 1 week"},
	},
	safeguarding.RiskHigh: {
		{Action: "Designated safeguarding lead review", Owner: "DSL", Deadline: "within 48 hours"},
		{Action: "Agree and record a safeguarding plan", Owner: "DSL", Deadline: "within 1 week"},
	},
	safeguarding.RiskCritical: {
		{Action: "Notify the designated safeguarding lead", Owner: "Any staff member", Deadline: "same day"},
		{Action: "Urgent safeguarding assessment", Owner: "DSL", Deadline: "same day"},
	},
}

// EscalationFor returns the next-steps plan for level. Unknown levels get
// the MEDIUM plan.
func EscalationFor(level safeguarding.RiskLevel) safeguarding.EscalationPlan {
	if !level.Valid() {
		level = safeguarding.RiskMedium
	}
	steps := append([]safeguarding.EscalationStep(nil), escalationPlans[level]...)
	return safeguarding.EscalationPlan{Level: level, Steps: steps}
}

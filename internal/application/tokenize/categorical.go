package tokenize

import (
	"sort"
	"strings"
	"time"

	"github.com/bryanwahyu/safeguard/internal/domain/safeguarding"
)

const valueOther = "OTHER"

var categoryPrefix = map[safeguarding.TokenCategory]string{
	safeguarding.CategoryBehavior:      "BEHAV",
	safeguarding.CategoryAcademic:      "ACAD",
	safeguarding.CategoryCommunication: "COMM",
}

// vocabularies keep free text out of categorical tokens: anything outside
// the list becomes OTHER.
var vocabularies = map[safeguarding.TokenCategory]map[string]string{
	safeguarding.CategoryBehavior: {
		"DISRUPTIVE": "DISRUPTIVE", "DISRUPTION": "DISRUPTIVE",
		"AGGRESSIVE": "AGGRESSIVE", "AGGRESSION": "AGGRESSIVE", "FIGHTING": "AGGRESSIVE",
		"BULLYING": "BULLYING", "DEFIANT": "DEFIANT", "DEFIANCE": "DEFIANT",
		"WITHDRAWN": "WITHDRAWN", "SELF_HARM": "SELF_HARM", "SUBSTANCE": "SUBSTANCE",
		"TRUANCY": "TRUANCY", "PHYSICAL": "PHYSICAL", "VERBAL": "VERBAL",
		"THEFT": "THEFT", "VANDALISM": "VANDALISM",
	},
	safeguarding.CategoryAcademic: {
		"MATH": "MATH", "MATHS": "MATH", "MATHEMATICS": "MATH",
		"ENGLISH": "ENGLISH", "READING": "READING", "WRITING": "WRITING",
		"SCIENCE": "SCIENCE", "BIOLOGY": "SCIENCE", "CHEMISTRY": "SCIENCE", "PHYSICS": "SCIENCE",
		"HISTORY": "HISTORY", "GEOGRAPHY": "GEOGRAPHY", "ART": "ART", "MUSIC": "MUSIC",
		"PE": "PE", "LANGUAGES": "LANGUAGES", "COMPUTING": "COMPUTING",
		"ATTENDANCE": "ATTENDANCE", "BELOW_GRADE": "BELOW_GRADE",
	},
	safeguarding.CategoryCommunication: {
		"URGENT": "URGENT", "HIGH": "HIGH", "NORMAL": "NORMAL", "LOW": "LOW",
	},
}

// vocabularyTerms is every string the tokenizer emits for categorical,
// temporal, frequency and trend tokens, plus the data category names.
// None of them can carry an identifier.
var vocabularyTerms = buildVocabularyTerms()

func buildVocabularyTerms() map[string]struct{} {
	freqs := []safeguarding.FrequencyBucket{
		safeguarding.FreqNone, safeguarding.FreqSingle, safeguarding.FreqLow,
		safeguarding.FreqMedium, safeguarding.FreqHigh,
	}
	terms := make(map[string]struct{})
	add := func(parts ...string) { terms[strings.Join(parts, "_")] = struct{}{} }

	for category, prefix := range categoryPrefix {
		values := map[string]struct{}{valueOther: {}}
		for _, v := range vocabularies[category] {
			values[v] = struct{}{}
		}
		for v := range values {
			for _, f := range freqs {
				add(prefix, v, string(f))
			}
		}
	}
	for _, f := range freqs {
		add("ATTEND_DECLINE", string(f))
		add("ATTEND_DECLINE_SEVERE", string(f))
		add("FREQ", string(f))
	}
	for _, b := range []safeguarding.TemporalBucket{
		safeguarding.TemporalRecent, safeguarding.TemporalMonth,
		safeguarding.TemporalQuarter, safeguarding.TemporalHistorical,
	} {
		add("TIME", string(b))
	}
	for _, b := range []safeguarding.TrendBucket{
		safeguarding.TrendBucketCluster, safeguarding.TrendBucketEscalating,
		safeguarding.TrendBucketPersistent, safeguarding.TrendBucketStable,
		safeguarding.TrendBucketScattered,
	} {
		add("TREND", string(b))
	}
	for _, c := range []safeguarding.DataCategory{
		safeguarding.DataBehavioral, safeguarding.DataAcademic,
		safeguarding.DataCommunication, safeguarding.DataAttendance,
	} {
		add(string(c))
	}
	return terms
}

// IsVocabularyTerm reports whether s is a token value or data category name
// the tokenizer itself produces.
func IsVocabularyTerm(s string) bool {
	_, ok := vocabularyTerms[s]
	return ok
}

// normalize upper-cases and snake-cases a categorical value.
func normalize(value string) string {
	var b strings.Builder
	underscore := false
	for _, r := range strings.ToUpper(strings.TrimSpace(value)) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			underscore = false
			continue
		}
		if !underscore && b.Len() > 0 {
			b.WriteByte('_')
			underscore = true
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}

// CategoricalValue maps a raw categorical value onto the vocabulary of the
// category.
func CategoricalValue(category safeguarding.TokenCategory, value string) string {
	if v, ok := vocabularies[category][normalize(value)]; ok {
		return v
	}
	return valueOther
}

// Categorical maps a (category, value, bucketed frequency) triple to a fixed
// token such as BEHAV_DISRUPTIVE_HIGH.
func Categorical(category safeguarding.TokenCategory, value string, frequency int) safeguarding.Token {
	prefix, ok := categoryPrefix[category]
	if !ok {
		prefix = string(category)
	}
	return safeguarding.Token{
		Category: category,
		Value:    prefix + "_" + CategoricalValue(category, value) + "_" + string(safeguarding.BucketFrequency(frequency)),
	}
}

// TemporalBucket buckets the age of ts relative to ref.
func TemporalBucket(ts, ref time.Time) safeguarding.TemporalBucket {
	age := ref.Sub(ts)
	switch {
	case age <= 7*24*time.Hour:
		return safeguarding.TemporalRecent
	case age <= 30*24*time.Hour:
		return safeguarding.TemporalMonth
	case age <= 90*24*time.Hour:
		return safeguarding.TemporalQuarter
	default:
		return safeguarding.TemporalHistorical
	}
}

// Temporal returns the lossy age token of ts relative to ref.
func Temporal(ts, ref time.Time) safeguarding.Token {
	return safeguarding.Token{
		Category: safeguarding.CategoryTemporal,
		Value:    "TIME_" + string(TemporalBucket(ts, ref)),
	}
}

// ClassifyFrequencyTrend buckets the event count and the trend derived from
// the span between first and last event.
func ClassifyFrequencyTrend(events []time.Time) (safeguarding.FrequencyBucket, safeguarding.TrendBucket) {
	n := len(events)
	if n == 0 {
		return safeguarding.FreqNone, safeguarding.TrendBucketStable
	}
	freq := safeguarding.BucketFrequency(n)

	span := spanDays(events)
	switch {
	case span == 0:
		return freq, safeguarding.TrendBucketCluster
	case span <= 7 && n >= 3:
		return freq, safeguarding.TrendBucketEscalating
	case span > 30 && n > 2:
		return freq, safeguarding.TrendBucketPersistent
	case n < 2:
		return freq, safeguarding.TrendBucketStable
	default:
		return freq, safeguarding.TrendBucketScattered
	}
}

// FrequencyTrend is ClassifyFrequencyTrend rendered as tokens.
func FrequencyTrend(events []time.Time) (safeguarding.Token, safeguarding.Token) {
	f, t := ClassifyFrequencyTrend(events)
	return safeguarding.Token{Category: safeguarding.CategoryFrequency, Value: "FREQ_" + string(f)},
		safeguarding.Token{Category: safeguarding.CategoryTrend, Value: "TREND_" + string(t)}
}

// spanDays is the whole number of days between the earliest and latest event.
func spanDays(events []time.Time) int {
	if len(events) == 0 {
		return 0
	}
	sorted := make([]time.Time, len(events))
	copy(sorted, events)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })
	return int(sorted[len(sorted)-1].Sub(sorted[0]).Hours() / 24)
}

package tokenize

import (
	"encoding/json"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/bryanwahyu/safeguard/internal/domain/safeguarding"
)

// piiKeys are normalized field names (lower case, separators removed).
var piiKeys = map[string]struct{}{
	"name": {}, "firstname": {}, "lastname": {}, "fullname": {}, "studentname": {},
	"email": {}, "emailaddress": {}, "studentid": {}, "studentnumber": {},
	"phone": {}, "phonenumber": {}, "mobile": {}, "address": {}, "homeaddress": {},
	"dob": {}, "dateofbirth": {}, "birthdate": {}, "parentname": {}, "guardianname": {},
	"ssn": {}, "nationalid": {},
}

var placeholders = map[string]struct{}{
	"": {}, "-": {}, "n/a": {}, "na": {}, "none": {}, "null": {},
	"redacted": {}, "[redacted]": {}, "***": {}, "anonymous": {},
}

var (
	tokenPattern = regexp.MustCompile(`^TOKEN_[A-Z]+_[0-9A-F]{24}$`)
	tokenInText  = regexp.MustCompile(`\bTOKEN_[A-Z]+_[0-9A-F]{24}\b`)
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?\d[\d\s().\-]{7,}\d`)
	datePattern  = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`)
)

// IsToken reports whether s has the identifier token shape.
func IsToken(s string) bool { return tokenPattern.MatchString(s) }

// FindTokens returns every identifier token mentioned in s, in order.
func FindTokens(s string) []string { return tokenInText.FindAllString(s, -1) }

// ValidateNoPII walks the JSON form of payload and fails on a populated PII
// field or a value shaped like an e-mail address, phone number or calendar
// date. A payload that cannot be encoded is rejected.
func ValidateNoPII(payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return &safeguarding.AnonymityViolation{Stage: "pii_check", Field: "$"}
	}
	var doc any
	if err := json.Unmarshal(b, &doc); err != nil {
		return &safeguarding.AnonymityViolation{Stage: "pii_check", Field: "$"}
	}
	if path, found := findPII(doc, "$"); found {
		return &safeguarding.AnonymityViolation{Stage: "pii_check", Field: path}
	}
	return nil
}

func findPII(v any, path string) (string, bool) {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			child := path + "." + k
			if isPIIKey(k) && populated(t[k]) {
				return child, true
			}
			if p, ok := findPII(t[k], child); ok {
				return p, true
			}
		}
	case []any:
		for i, item := range t {
			if p, ok := findPII(item, path+"["+strconv.Itoa(i)+"]"); ok {
				return p, true
			}
		}
	case string:
		if suspiciousValue(t) {
			return path, true
		}
	}
	return "", false
}

func isPIIKey(k string) bool {
	n := strings.NewReplacer("_", "", "-", "", " ", "").Replace(strings.ToLower(k))
	_, ok := piiKeys[n]
	return ok
}

func populated(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		if IsToken(t) {
			return false
		}
		_, placeholder := placeholders[strings.ToLower(strings.TrimSpace(t))]
		return !placeholder
	case bool:
		return false
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		// numbers are treated as identifiers
		return true
	}
}

func suspiciousValue(s string) bool {
	if IsToken(s) {
		return false
	}
	return emailPattern.MatchString(s) || phonePattern.MatchString(s) || datePattern.MatchString(s)
}

// Leaks reports whether payload mentions any raw identifier tokenized by
// this session. Strings equal to tokens the session issued, or to the
// tokenizer's own vocabulary, are skipped.
// Encoding failures count as leaks.
func (s *Session) Leaks(payload any) bool {
	raws := s.rawIdentifiers()
	if len(raws) == 0 {
		return false
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return true
	}
	var doc any
	if err := json.Unmarshal(b, &doc); err != nil {
		return true
	}
	return s.walkLeaks(doc, raws)
}

func (s *Session) walkLeaks(v any, raws []string) bool {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			if s.containsRaw(k, raws) || s.walkLeaks(child, raws) {
				return true
			}
		}
	case []any:
		for _, item := range t {
			if s.walkLeaks(item, raws) {
				return true
			}
		}
	case string:
		return s.containsRaw(t, raws)
	}
	return false
}

func (s *Session) containsRaw(str string, raws []string) bool {
	if str == "" || IsVocabularyTerm(str) || s.issued(str) {
		return false
	}
	lower := strings.ToLower(str)
	for _, raw := range raws {
		raw = strings.ToLower(raw)
		switch {
		case raw == "":
		case len(raw) < minSubstringLen:
			if containsWord(lower, raw) {
				return true
			}
		case strings.Contains(lower, raw):
			return true
		}
	}
	return false
}

// minSubstringLen: shorter identifiers only match as whole words.
const minSubstringLen = 4

func containsWord(s, word string) bool {
	isAlnum := func(r rune) bool {
		return (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
	}
	for _, f := range strings.FieldsFunc(s, func(r rune) bool { return !isAlnum(r) }) {
		if f == word {
			return true
		}
	}
	return false
}

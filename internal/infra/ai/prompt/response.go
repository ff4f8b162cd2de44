package prompt

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/bryanwahyu/safeguard/internal/domain/safeguarding"
)

const responseSchemaURL = "safeguard://analysis-response.schema.json"

// ResponseSchema is the JSON schema a provider response must satisfy.
const ResponseSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["risk_level", "confidence", "patterns", "pattern_combinations", "evidence_summary", "recommendations", "reasoning"],
  "properties": {
    "risk_level": {"type": "string", "enum": ["LOW", "MEDIUM", "HIGH", "CRITICAL", "low", "medium", "high", "critical"]},
    "confidence": {"type": "number"},
    "patterns": {"type": "array", "items": {"type": "string"}},
    "pattern_combinations": {"type": "array", "items": {"type": "string"}},
    "evidence_summary": {"type": "string"},
    "recommendations": {"type": "array", "items": {"type": "string"}},
    "reasoning": {"type": "string"}
  }
}`

var responseSchema = jsonschema.MustCompileString(responseSchemaURL, ResponseSchema)

// ParseResponse validates raw provider output against ResponseSchema and
// decodes it. Confidence is clamped to [0,1].
func ParseResponse(raw string) (safeguarding.ExternalAnalysisResult, error) {
	body := stripFences(raw)
	var doc any
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return safeguarding.ExternalAnalysisResult{}, fmt.Errorf("response is not JSON: %w", err)
	}
	if err := responseSchema.Validate(doc); err != nil {
		return safeguarding.ExternalAnalysisResult{}, fmt.Errorf("response does not match schema: %w", err)
	}

	var wire struct {
		RiskLevel           string   `json:"risk_level"`
		Confidence          float64  `json:"confidence"`
		Patterns            []string `json:"patterns"`
		PatternCombinations []string `json:"pattern_combinations"`
		EvidenceSummary     string   `json:"evidence_summary"`
		Recommendations     []string `json:"recommendations"`
		Reasoning           string   `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(body), &wire); err != nil {
		return safeguarding.ExternalAnalysisResult{}, fmt.Errorf("decode response: %w", err)
	}
	lvl, err := safeguarding.ParseRiskLevel(wire.RiskLevel)
	if err != nil {
		return safeguarding.ExternalAnalysisResult{}, err
	}

	conf := wire.Confidence
	if conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}
	return safeguarding.ExternalAnalysisResult{
		RiskLevel:         lvl,
		Confidence:        conf,
		PatternTokens:     wire.Patterns,
		CombinationTokens: wire.PatternCombinations,
		EvidenceSummary:   wire.EvidenceSummary,
		Recommendations:   normalizeCodes(wire.Recommendations),
		Reasoning:         wire.Reasoning,
	}, nil
}

func normalizeCodes(in []string) []string {
	out := make([]string, 0, len(in))
	for _, c := range in {
		c = strings.ToUpper(strings.TrimSpace(c))
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}

// stripFences removes a surrounding markdown code fence some models add
// despite instructions.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

package safeguarding

// RecommendationManualReview is the only recommendation of the fallback analysis.
const RecommendationManualReview = "MANUAL_REVIEW_REQUIRED"

// AnalysisRequest is the token-only payload sent to the external provider.
type AnalysisRequest struct {
	StudentToken   string   `json:"studentToken"`
	DataCategories []string `json:"dataCategories"`
	Patterns       []string `json:"patterns"`
	TemporalTokens []string `json:"temporalTokens"`
	FrequencyToken string   `json:"frequencyToken"`
	TrendToken     string   `json:"trendToken"`
}

// ExternalAnalysisResult is the parsed provider output. It is untrusted until
// it has passed response validation.
type ExternalAnalysisResult struct {
	RiskLevel         RiskLevel `json:"risk_level"`
	Confidence        float64   `json:"confidence"`
	PatternTokens     []string  `json:"patterns"`
	CombinationTokens []string  `json:"pattern_combinations"`
	EvidenceSummary   string    `json:"evidence_summary"`
	Recommendations   []string  `json:"recommendations"`
	Reasoning         string    `json:"reasoning"`
	Fallback          bool      `json:"-"`
}

// DefaultAnalysis is the conservative result used whenever the provider
// cannot be trusted or reached.
func DefaultAnalysis() ExternalAnalysisResult {
	return ExternalAnalysisResult{
		RiskLevel:       RiskMedium,
		Confidence:      0.5,
		Recommendations: []string{RecommendationManualReview},
		Fallback:        true,
	}
}

// LocalizedAnalysis binds a provider result back to a student inside the
// trusted process.
type LocalizedAnalysis struct {
	Result       ExternalAnalysisResult
	StudentID    string
	StudentToken Token
}

package history

import (
	"time"

	"github.com/bryanwahyu/safeguard/internal/domain/safeguarding"
)

// Entry records one completed analysis. SubjectKey is a keyed hash of the
// student id, never the id itself.
type Entry struct {
	ID           string                 `json:"id"`
	SubjectKey   string                 `json:"subject_key"`
	SessionID    string                 `json:"session_id"`
	ReportID     string                 `json:"report_id"`
	RiskLevel    safeguarding.RiskLevel `json:"risk_level"`
	Confidence   float64                `json:"confidence"`
	FallbackUsed bool                   `json:"fallback_used"`
	CreatedAt    time.Time              `json:"created_at"`
}

package pipeline

import (
	"fmt"

	"github.com/bryanwahyu/safeguard/internal/domain/safeguarding"
)

// Stage is the lifecycle state of one analysis session.
type Stage string

const (
	StageCreated           Stage = "created"
	StageTokenizing        Stage = "tokenizing"
	StagePatternExtracting Stage = "pattern_extracting"
	StageRiskAssessing     Stage = "risk_assessing"
	StageExternalAnalyzing Stage = "external_analyzing"
	StageLocalizing        Stage = "localizing"
	StageReportGenerating  Stage = "report_generating"
	StageComplete          Stage = "complete"
	StageErrored           Stage = "errored"
)

// stageOrder is the only forward path through a session.
var stageOrder = []Stage{
	StageCreated,
	StageTokenizing,
	StagePatternExtracting,
	StageRiskAssessing,
	StageExternalAnalyzing,
	StageLocalizing,
	StageReportGenerating,
	StageComplete,
}

func (s Stage) Terminal() bool { return s == StageComplete || s == StageErrored }

func (s Stage) index() int {
	for i, st := range stageOrder {
		if st == s {
			return i
		}
	}
	return -1
}

// checkTransition allows the next stage in order, or Errored from any
// non-terminal stage.
func checkTransition(from, to Stage) error {
	if from.Terminal() {
		return fmt.Errorf("%w: %s is terminal", safeguarding.ErrInvalidTransition, from)
	}
	if to == StageErrored {
		return nil
	}
	i := from.index()
	if i < 0 || to.index() != i+1 {
		return fmt.Errorf("%w: %s -> %s", safeguarding.ErrInvalidTransition, from, to)
	}
	return nil
}

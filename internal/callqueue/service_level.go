package callqueue

import (
	"time"

	"github.com/dennisdiepolder/switchboard/internal/types"
)

// SLTracker tracks the share of calls first answered within a threshold
type SLTracker struct {
	Target        int // target percentage (e.g., 80)
	Threshold     time.Duration
	AnsweredInSL  int
	TotalAnswered int
}

// NewSLTracker creates a tracker; thresholdSecs is the answer deadline
func NewSLTracker(target, thresholdSecs int) *SLTracker {
	return &SLTracker{
		Target:    target,
		Threshold: time.Duration(thresholdSecs) * time.Second,
	}
}

// RecordAnswer records the wait of a call that was just assigned for the first time
func (s *SLTracker) RecordAnswer(wait time.Duration) {
	s.TotalAnswered++
	if wait <= s.Threshold {
		s.AnsweredInSL++
	}
}

// CurrentSL returns the service level percentage; 100 when nothing was answered
func (s *SLTracker) CurrentSL() float64 {
	if s.TotalAnswered == 0 {
		return 100.0
	}
	return float64(s.AnsweredInSL) / float64(s.TotalAnswered) * 100.0
}

// Snapshot returns a ServiceLevel snapshot
func (s *SLTracker) Snapshot() types.ServiceLevel {
	return types.ServiceLevel{
		Target:        s.Target,
		ThresholdSecs: int(s.Threshold / time.Second),
		AnsweredInSL:  s.AnsweredInSL,
		TotalAnswered: s.TotalAnswered,
		CurrentSL:     s.CurrentSL(),
	}
}

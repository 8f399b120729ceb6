package types

import "time"

// WorkerState represents whether a worker can take a call
type WorkerState string

const (
	WorkerFree WorkerState = "free"
	WorkerBusy WorkerState = "busy"
)

// WorkerInfo represents the current state of a worker
type WorkerInfo struct {
	WorkerID      string      `json:"workerId"`
	Tier          Tier        `json:"tier"`
	State         WorkerState `json:"state"`
	StateStart    time.Time   `json:"stateStart"` // when current state started
	CurrentCallID string      `json:"currentCallId,omitempty"`
	Handled       int         `json:"handled"`
	Resolved      int         `json:"resolved"`
	Escalated     int         `json:"escalated"`
	Failed        int         `json:"failed"`
}

// AlertSeverity represents the severity of a tier alert
type AlertSeverity string

const (
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

// TierAlert represents an alert condition on a tier queue
type TierAlert struct {
	Rule     string        `json:"rule"`
	Severity AlertSeverity `json:"severity"`
	Message  string        `json:"message"`
}

// ServiceLevel tracks SL metrics for a tier queue
type ServiceLevel struct {
	Target        int     `json:"target"`        // target percentage (e.g., 80)
	ThresholdSecs int     `json:"thresholdSecs"` // threshold in seconds (e.g., 20)
	AnsweredInSL  int     `json:"answeredInSL"`  // calls answered within threshold
	TotalAnswered int     `json:"totalAnswered"` // total calls answered
	CurrentSL     float64 `json:"currentSL"`     // calculated SL percentage
}

// TierSnapshot represents the current state of one tier
type TierSnapshot struct {
	Tier            Tier         `json:"tier"`
	WaitingCount    int          `json:"waitingCount"`
	Workers         int          `json:"workers"`
	BusyWorkers     int          `json:"busyWorkers"`
	FreeWorkers     int          `json:"freeWorkers"`
	Submitted       int          `json:"submitted"` // calls queued or assigned with this required tier
	Resolved        int          `json:"resolved"`  // calls resolved by workers of this tier
	Escalated       int          `json:"escalated"` // calls escalated away from this tier
	Failed          int          `json:"failed"`
	Abandoned       int          `json:"abandoned"`
	LongestWaitSecs float64      `json:"longestWaitSecs"`
	ServiceLevel    ServiceLevel `json:"serviceLevel"`
	Alerts          []TierAlert  `json:"alerts,omitempty"`
}

// TierOverview is the payload pushed to dashboard clients every tick
type TierOverview struct {
	Type        string         `json:"type"` // always "tier_overview"
	Timestamp   time.Time      `json:"timestamp"`
	QueueDepths []int          `json:"queueDepths"`
	Tiers       []TierSnapshot `json:"tiers"`
}

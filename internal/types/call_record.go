package types

import "time"

// CallRecord represents a finished call for persistence
type CallRecord struct {
	DateKey      string  `json:"dateKey" dynamodbav:"DateKey"` // YYYY-MM-DD (partition key)
	CallID       string  `json:"callId" dynamodbav:"CallID"`   // sort key
	Status       string  `json:"status" dynamodbav:"Status"`
	RequiredTier string  `json:"requiredTier" dynamodbav:"RequiredTier"` // at the time the call ended
	ResolvedBy   string  `json:"resolvedBy" dynamodbav:"ResolvedBy"`
	WorkerID     string  `json:"workerId" dynamodbav:"WorkerID"`
	Escalations  int     `json:"escalations" dynamodbav:"Escalations"`
	EnqueueTime  string  `json:"enqueueTime" dynamodbav:"EnqueueTime"` // RFC3339
	StartTime    string  `json:"startTime" dynamodbav:"StartTime"`     // RFC3339
	EndTime      string  `json:"endTime" dynamodbav:"EndTime"`         // RFC3339
	WaitTime     float64 `json:"waitTime" dynamodbav:"WaitTime"`       // seconds
	HandleTime   float64 `json:"handleTime" dynamodbav:"HandleTime"`   // seconds
	Error        string  `json:"error,omitempty" dynamodbav:"Error"`
}

// TierDailyStats represents a tier's daily aggregated stats
type TierDailyStats struct {
	Tier          string  `json:"tier" dynamodbav:"Tier"` // partition key
	Date          string  `json:"date" dynamodbav:"Date"` // YYYY-MM-DD (sort key)
	Workers       int     `json:"workers" dynamodbav:"Workers"`
	Handled       int     `json:"handled" dynamodbav:"Handled"`
	Resolved      int     `json:"resolved" dynamodbav:"Resolved"`
	Escalated     int     `json:"escalated" dynamodbav:"Escalated"`
	Failed        int     `json:"failed" dynamodbav:"Failed"`
	Abandoned     int     `json:"abandoned" dynamodbav:"Abandoned"`
	AnsweredInSL  int     `json:"answeredInSL" dynamodbav:"AnsweredInSL"`
	TotalAnswered int     `json:"totalAnswered" dynamodbav:"TotalAnswered"`
	ServiceLevel  float64 `json:"serviceLevel" dynamodbav:"ServiceLevel"` // 0-100%
}

// ServiceLevelPercent derives the service level from the answer counts. A
// day without answered calls counts as 100%.
func (s TierDailyStats) ServiceLevelPercent() float64 {
	if s.TotalAnswered <= 0 {
		return 100
	}
	return float64(s.AnsweredInSL) / float64(s.TotalAnswered) * 100
}

// NewCallRecord converts a finished call into its persisted form
func NewCallRecord(info CallInfo) CallRecord {
	record := CallRecord{
		DateKey:      info.EnqueueTime.Format("2006-01-02"),
		CallID:       info.CallID,
		Status:       string(info.Status),
		RequiredTier: info.RequiredTier.String(),
		WorkerID:     info.WorkerID,
		Escalations:  info.Escalations,
		EnqueueTime:  info.EnqueueTime.Format(time.RFC3339),
		WaitTime:     info.WaitTime,
		HandleTime:   info.HandleTime,
		Error:        info.Error,
	}
	if info.ResolvedBy != nil {
		record.ResolvedBy = info.ResolvedBy.String()
	}
	if info.StartTime != nil {
		record.StartTime = info.StartTime.Format(time.RFC3339)
	}
	if info.EndTime != nil {
		record.EndTime = info.EndTime.Format(time.RFC3339)
	}
	return record
}

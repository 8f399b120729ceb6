package alerts

import (
	"fmt"
	"time"

	"github.com/dennisdiepolder/switchboard/internal/types"
)

// Rules
const (
	RuleLongWait   = "wait_long"
	RuleUnstaffed  = "no_capable_worker"
	criticalFactor = 3
)

// CheckTierAlerts evaluates alert rules for tier snapshots ordered lowest
// tier first, replacing each snapshot's Alerts field in place. A wait longer
// than waitAlertSecs is a warning, three times that is critical. A waiting
// call with no worker at its tier or above can never be answered.
func CheckTierAlerts(tiers []types.TierSnapshot, waitAlertSecs int) {
	threshold := time.Duration(waitAlertSecs) * time.Second

	for i := range tiers {
		tiers[i].Alerts = nil
		if tiers[i].WaitingCount == 0 {
			continue
		}

		capable := 0
		for j := i; j < len(tiers); j++ {
			capable += tiers[j].Workers
		}
		if capable == 0 {
			tiers[i].Alerts = append(tiers[i].Alerts, types.TierAlert{
				Rule:     RuleUnstaffed,
				Severity: types.SeverityCritical,
				Message:  fmt.Sprintf("%d calls waiting, no %s or higher on shift", tiers[i].WaitingCount, tiers[i].Tier),
			})
		}

		if threshold <= 0 {
			continue
		}
		wait := time.Duration(tiers[i].LongestWaitSecs * float64(time.Second))
		if wait > threshold {
			severity := types.SeverityWarning
			if wait > criticalFactor*threshold {
				severity = types.SeverityCritical
			}
			tiers[i].Alerts = append(tiers[i].Alerts, types.TierAlert{
				Rule:     RuleLongWait,
				Severity: severity,
				Message:  fmt.Sprintf("Longest wait %s", formatDuration(wait)),
			})
		}
	}
}

func formatDuration(d time.Duration) string {
	mins := int(d.Minutes())
	secs := int(d.Seconds()) % 60
	if mins >= 60 {
		hours := mins / 60
		mins = mins % 60
		return fmt.Sprintf("%dh%dm", hours, mins)
	}
	return fmt.Sprintf("%dm%ds", mins, secs)
}

package ticker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dennisdiepolder/switchboard/internal/alerts"
	"github.com/dennisdiepolder/switchboard/internal/metrics"
	"github.com/dennisdiepolder/switchboard/internal/types"
	"github.com/rs/zerolog"
)

// MessageType is the type field of every overview message
const MessageType = "tier_overview"

// Source provides the tier state to report
type Source interface {
	Snapshot() []types.TierSnapshot
}

// Broadcaster delivers a message to dashboard clients
type Broadcaster interface {
	Broadcast(message []byte)
	ClientCount() int
}

// Ticker periodically broadcasts a tier overview to the hub
type Ticker struct {
	source        Source
	hub           Broadcaster
	interval      time.Duration
	waitAlertSecs int
	logger        zerolog.Logger
}

// NewTicker creates a new Ticker. Tiers whose longest wait exceeds
// waitAlertSecs carry an alert; 0 disables the wait rule.
func NewTicker(source Source, hub Broadcaster, interval time.Duration, waitAlertSecs int, logger zerolog.Logger) *Ticker {
	return &Ticker{
		source:        source,
		hub:           hub,
		interval:      interval,
		waitAlertSecs: waitAlertSecs,
		logger:        logger,
	}
}

// Overview builds the current tier overview with alerts attached
func (t *Ticker) Overview(now time.Time) types.TierOverview {
	tiers := t.source.Snapshot()
	alerts.CheckTierAlerts(tiers, t.waitAlertSecs)

	depths := make([]int, len(tiers))
	for i, s := range tiers {
		depths[i] = s.WaitingCount
	}

	return types.TierOverview{
		Type:        MessageType,
		Timestamp:   now,
		QueueDepths: depths,
		Tiers:       tiers,
	}
}

// Start begins broadcasting overviews until ctx is done
func (t *Ticker) Start(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	m := metrics.Get()
	t.logger.Info().Dur("interval", t.interval).Msg("ticker started")

	for {
		select {
		case <-ctx.Done():
			t.logger.Info().Msg("ticker stopped")
			return

		case now := <-ticker.C:
			cycleStart := time.Now()
			overview := t.Overview(now)
			m.UpdateTierStats(overview.Tiers)

			data, err := json.Marshal(overview)
			if err != nil {
				t.logger.Error().Err(err).Msg("failed to marshal tier overview")
				continue
			}

			t.hub.Broadcast(data)
			m.RecordSnapshotCycle(time.Since(cycleStart))
			t.logger.Debug().
				Ints("queue_depths", overview.QueueDepths).
				Int("clients", t.hub.ClientCount()).
				Msg("broadcasted tier overview")
		}
	}
}

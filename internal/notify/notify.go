// Package notify delivers caller-facing messages produced by the dispatcher.
package notify

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dennisdiepolder/switchboard/internal/types"
	"github.com/rs/zerolog"
)

// ErrDropped is returned when a message could not be queued for delivery
var ErrDropped = errors.New("notification dropped")

// Broadcaster queues a serialized message for websocket clients without blocking
type Broadcaster interface {
	TryBroadcast(message []byte) bool
}

// HubNotifier pushes notifications to websocket clients as JSON
type HubNotifier struct {
	hub Broadcaster
}

// NewHubNotifier creates a HubNotifier
func NewHubNotifier(hub Broadcaster) *HubNotifier {
	return &HubNotifier{hub: hub}
}

func (n *HubNotifier) Notify(msg types.Notification) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal %s notification: %w", msg.Type, err)
	}
	if !n.hub.TryBroadcast(data) {
		return ErrDropped
	}
	return nil
}

// LogNotifier writes every notification to a logger, the way a console
// transcript of the calls would read
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier creates a LogNotifier
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(msg types.Notification) error {
	n.logger.Info().
		Str("call_id", msg.CallID).
		Str("type", string(msg.Type)).
		Str("tier", msg.Tier.String()).
		Str("worker_id", msg.WorkerID).
		Msg(msg.Message)
	return nil
}

// Notifier is the interface shared by the notifiers in this package
type Notifier interface {
	Notify(msg types.Notification) error
}

// Multi fans a notification out to several notifiers. Every notifier is
// tried; their errors are joined.
type Multi []Notifier

func (m Multi) Notify(msg types.Notification) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

package callqueue

import (
	"time"

	"github.com/dennisdiepolder/switchboard/internal/types"
)

// CallStore is the subset of storage.Store needed by the Dispatcher
type CallStore interface {
	SaveCallRecord(record types.CallRecord) error
}

// MetricsHook receives routing events. Implementations must be safe for
// concurrent use and must not block.
type MetricsHook interface {
	OnSubmit(tier types.Tier)
	OnReject()
	OnQueue(tier types.Tier, depth int)
	OnAssign(required, worker types.Tier)
	OnEscalate(from, to types.Tier)
	OnResolve(tier types.Tier, handleTime time.Duration)
	OnFailure(tier types.Tier)
	OnAbandon(tier types.Tier)
}

type nopMetrics struct{}

func (nopMetrics) OnSubmit(types.Tier) {}
func (nopMetrics) OnReject() {}
func (nopMetrics) OnQueue(types.Tier, int) {}
func (nopMetrics) OnAssign(types.Tier, types.Tier) {}
func (nopMetrics) OnEscalate(types.Tier, types.Tier) {}
func (nopMetrics) OnResolve(types.Tier, time.Duration) {}
func (nopMetrics) OnFailure(types.Tier) {}
func (nopMetrics) OnAbandon(types.Tier) {}

// Options holds the collaborators and tunables of a Dispatcher
type Options struct {
	Routing   RoutingStrategy
	Decider   Decider
	Work      WorkSimulator
	Notifier  Notifier
	Store     CallStore
	Metrics   MetricsHook
	SLTarget  int // percentage
	SLSeconds int
}

// Option configures Options
type Option func(*Options)

func defaultOptions() Options {
	return Options{
		Routing:   FirstFree{},
		Decider:   &RandomDecider{P: 0.5},
		Work:      &RandomDelay{Max: 100 * time.Millisecond},
		Notifier:  nopNotifier{},
		Metrics:   nopMetrics{},
		SLTarget:  80,
		SLSeconds: 20,
	}
}

// WithRoutingStrategy sets how a worker is picked inside one tier
func WithRoutingStrategy(r RoutingStrategy) Option {
	return func(o *Options) {
		o.Routing = r
	}
}

// WithDecider sets the escalate-or-resolve policy
func WithDecider(d Decider) Option {
	return func(o *Options) {
		o.Decider = d
	}
}

// WithWorkSimulator sets the conversation stand-in
func WithWorkSimulator(w WorkSimulator) Option {
	return func(o *Options) {
		o.Work = w
	}
}

// WithNotifier sets the caller-facing message sink
func WithNotifier(n Notifier) Option {
	return func(o *Options) {
		o.Notifier = n
	}
}

// WithStore persists a record of every finished call
func WithStore(s CallStore) Option {
	return func(o *Options) {
		o.Store = s
	}
}

// WithMetricsHook sets the routing event hook
func WithMetricsHook(m MetricsHook) Option {
	return func(o *Options) {
		o.Metrics = m
	}
}

// WithServiceLevel sets the SL target percentage and answer threshold
func WithServiceLevel(target, thresholdSecs int) Option {
	return func(o *Options) {
		o.SLTarget = target
		o.SLSeconds = thresholdSecs
	}
}

package callqueue

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/dennisdiepolder/switchboard/internal/types"
)

// Decision is what a worker does with a call once the conversation is over
type Decision int

const (
	Resolve Decision = iota
	Escalate
)

func (d Decision) String() string {
	if d == Escalate {
		return "escalate"
	}
	return "resolve"
}

// Decider chooses between escalating and resolving a call. The Dispatcher
// stays correct for any implementation, including one that always escalates:
// a call handled at the highest tier is resolved regardless.
type Decider interface {
	Decide(call *types.Call, tier types.Tier) (Decision, error)
}

// DeciderFunc adapts a function to Decider
type DeciderFunc func(call *types.Call, tier types.Tier) (Decision, error)

func (f DeciderFunc) Decide(call *types.Call, tier types.Tier) (Decision, error) {
	return f(call, tier)
}

// AlwaysResolve resolves every call at the first worker
var AlwaysResolve = DeciderFunc(func(*types.Call, types.Tier) (Decision, error) {
	return Resolve, nil
})

// AlwaysEscalate escalates every call until it reaches the highest tier
var AlwaysEscalate = DeciderFunc(func(*types.Call, types.Tier) (Decision, error) {
	return Escalate, nil
})

// RandomDecider escalates with probability P
type RandomDecider struct {
	P float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomDecider creates a seeded RandomDecider
func NewRandomDecider(p float64, seed int64) *RandomDecider {
	return &RandomDecider{P: p, rng: rand.New(rand.NewSource(seed))}
}

// Decide flips a biased coin
func (r *RandomDecider) Decide(*types.Call, types.Tier) (Decision, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rng == nil {
		r.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if r.rng.Float64() < r.P {
		return Escalate, nil
	}
	return Resolve, nil
}

// WorkSimulator stands in for the conversation between a worker and a
// caller. It may block for a finite time.
type WorkSimulator interface {
	Converse(ctx context.Context, call *types.Call, tier types.Tier) error
}

// WorkFunc adapts a function to WorkSimulator
type WorkFunc func(ctx context.Context, call *types.Call, tier types.Tier) error

func (f WorkFunc) Converse(ctx context.Context, call *types.Call, tier types.Tier) error {
	return f(ctx, call, tier)
}

// NoDelay finishes every conversation immediately
var NoDelay = WorkFunc(func(context.Context, *types.Call, types.Tier) error {
	return nil
})

// RandomDelay sleeps for a uniformly random duration in [0, Max)
type RandomDelay struct {
	Max time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomDelay creates a seeded RandomDelay
func NewRandomDelay(maxDelay time.Duration, seed int64) *RandomDelay {
	return &RandomDelay{Max: maxDelay, rng: rand.New(rand.NewSource(seed))}
}

// Converse sleeps, returning early only if ctx is done
func (r *RandomDelay) Converse(ctx context.Context, _ *types.Call, _ types.Tier) error {
	if r.Max <= 0 {
		return nil
	}

	r.mu.Lock()
	if r.rng == nil {
		r.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	d := time.Duration(r.rng.Int63n(int64(r.Max)))
	r.mu.Unlock()

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Notifier receives the messages said to callers. Errors are logged by the
// Dispatcher and never affect routing; implementations should not block.
type Notifier interface {
	Notify(n types.Notification) error
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(n types.Notification) error

func (f NotifierFunc) Notify(n types.Notification) error {
	return f(n)
}

type nopNotifier struct{}

func (nopNotifier) Notify(types.Notification) error { return nil }

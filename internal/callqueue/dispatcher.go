// Package callqueue routes calls to tiered workers.
//
// A call goes to the lowest free tier able to take it, or waits in the
// queue of its required tier. A worker that frees up takes the head of its
// own tier's queue, then the queues below it in descending order. During a
// burst of low-tier calls this lets managers and directors drain the
// respondent backlog, so a manager call arriving next may wait for a
// manager busy with a respondent call. Pull order is not weighted by wait
// time.
package callqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dennisdiepolder/switchboard/internal/types"
	"github.com/rs/zerolog"
)

// Dispatcher owns the worker pools and waiting queues of every tier and
// routes calls between them.
//
// A single mutex covers all pools and queues. Finding a free worker and
// claiming it happen under it, as do freeing a worker and polling the queues
// for its next call, so a worker is never handed two calls and a queued call
// is never left behind by a worker that just went idle.
type Dispatcher struct {
	mu     sync.Mutex
	pools  [types.NumTiers][]*Worker
	queues [types.NumTiers]*TierQueue
	calls  map[string]*types.Call // submitted and not yet terminal
	closed bool

	workers sync.WaitGroup
	saves   sync.WaitGroup

	opts   Options
	logger zerolog.Logger
}

// NewDispatcher creates a dispatcher with counts[t] workers at tier t and
// starts their goroutines. Tiers without workers are allowed: their queue is
// only drained by higher-tier workers.
func NewDispatcher(counts [types.NumTiers]int, logger zerolog.Logger, opts ...Option) (*Dispatcher, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	for i, n := range counts {
		if n < 0 {
			return nil, fmt.Errorf("negative worker count %d for tier %s", n, types.Tier(i))
		}
	}

	d := &Dispatcher{
		calls:  make(map[string]*types.Call),
		opts:   o,
		logger: logger,
	}

	now := time.Now()
	for _, tier := range types.AllTiers {
		d.queues[tier] = NewTierQueue(tier, o.SLTarget, o.SLSeconds)

		pool := make([]*Worker, 0, counts[tier])
		for i := 0; i < counts[tier]; i++ {
			pool = append(pool, newWorker(fmt.Sprintf("%s-%d", tier, i+1), tier, d, now))
		}
		d.pools[tier] = pool
	}

	for _, pool := range d.pools {
		for _, w := range pool {
			d.workers.Add(1)
			go w.run()
		}
	}

	logger.Info().
		Ints("workers", counts[:]).
		Msg("dispatcher started")

	return d, nil
}

// Submit routes a new call. It scans the pools upward from the call's
// required tier and hands the call to the first free worker found, so the
// least overqualified worker is preferred. If every capable worker is busy,
// the call joins the FIFO queue of its required tier.
//
// Submit never waits for a conversation. It returns ErrInvalidCall for a nil
// call, an out-of-range tier, a finished call or an ID that is already in
// flight; nothing is changed in that case.
func (d *Dispatcher) Submit(call *types.Call) error {
	if call == nil {
		d.opts.Metrics.OnReject()
		d.logger.Warn().Msg("nil call rejected")
		return fmt.Errorf("%w: nil call", ErrInvalidCall)
	}

	tier := call.RequiredTier()
	if !tier.Valid() || call.Status().Terminal() {
		d.opts.Metrics.OnReject()
		d.logger.Warn().
			Str("call_id", call.ID()).
			Int("required_tier", int(tier)).
			Str("status", string(call.Status())).
			Msg("invalid call rejected")
		return fmt.Errorf("%w: call %s requires tier %d", ErrInvalidCall, call.ID(), int(tier))
	}

	err := d.route(call, true)
	if errors.Is(err, ErrInvalidCall) {
		d.opts.Metrics.OnReject()
	}
	return err
}

// route assigns a validated call to a free worker or queues it. Escalated
// calls come through here again with fresh set to false.
func (d *Dispatcher) route(call *types.Call, fresh bool) error {
	tier := call.RequiredTier()

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	if fresh {
		if _, dup := d.calls[call.ID()]; dup {
			d.mu.Unlock()
			return fmt.Errorf("%w: call %s already submitted", ErrInvalidCall, call.ID())
		}
		d.calls[call.ID()] = call
	}
	d.queues[tier].Submitted++

	w := d.claimLocked(tier)
	if w != nil {
		d.assignLocked(w, call, time.Now())
		w.inbox <- call
	}
	d.mu.Unlock()

	d.opts.Metrics.OnSubmit(tier)
	if w != nil {
		d.logRouted(w, call)
		return nil
	}

	d.notify(types.Notification{
		Type:    types.NotifyWaiting,
		CallID:  call.ID(),
		Tier:    tier,
		Message: types.MsgWait,
	})
	return d.enqueue(call, fresh)
}

// enqueue queues a call that found every capable worker busy. The wait
// message has already gone out, so the caller never hears a greeting before
// it. A worker freed in the meantime takes the call directly.
func (d *Dispatcher) enqueue(call *types.Call, fresh bool) error {
	tier := call.RequiredTier()
	now := time.Now()

	d.mu.Lock()
	if d.closed {
		if fresh {
			delete(d.calls, call.ID())
		}
		d.mu.Unlock()
		return ErrClosed
	}
	if w := d.claimLocked(tier); w != nil {
		d.assignLocked(w, call, now)
		w.inbox <- call
		d.mu.Unlock()

		d.logRouted(w, call)
		return nil
	}

	q := d.queues[tier]
	q.Enqueue(call, now)
	depth := q.Len()
	d.mu.Unlock()

	d.opts.Metrics.OnQueue(tier, depth)
	d.logger.Debug().
		Str("call_id", call.ID()).
		Str("tier", tier.String()).
		Int("queue_depth", depth).
		Msg("call enqueued")
	return nil
}

func (d *Dispatcher) logRouted(w *Worker, call *types.Call) {
	d.opts.Metrics.OnAssign(call.RequiredTier(), w.Tier)
	d.logger.Debug().
		Str("call_id", call.ID()).
		Str("tier", call.RequiredTier().String()).
		Str("worker_id", w.ID).
		Msg("call routed to worker")
}

// PullNext offers queued work to a free worker: the head of its own tier's
// queue first, then the queues of each lower tier in descending order. It
// reports whether a call was handed over. Busy workers are left alone.
//
// Workers call the same logic themselves each time they finish a call, so
// PullNext is only needed to nudge an idle worker from outside.
func (d *Dispatcher) PullNext(w *Worker) bool {
	if w == nil || w.d != d {
		return false
	}

	d.mu.Lock()
	if d.closed || !w.free {
		d.mu.Unlock()
		return false
	}
	call := d.pullNextLocked(w, time.Now())
	if call != nil {
		w.inbox <- call
	}
	d.mu.Unlock()

	if call != nil {
		d.logPulled(w, call)
	}
	return call != nil
}

// release frees w after it finished a call and, in the same critical
// section, pulls its next queued call. A nil result means w is now idle.
func (d *Dispatcher) release(w *Worker, finished *types.Call, o outcome) *types.Call {
	now := time.Now()

	d.mu.Lock()
	q := d.queues[w.Tier]
	w.handled++
	switch o {
	case outcomeResolved:
		w.resolved++
		q.Resolved++
	case outcomeEscalated:
		w.escalated++
		q.Escalated++
	case outcomeFailed:
		w.failed++
		q.Failed++
	case outcomeAbandoned:
		// escalated past this tier but never rerouted
		d.queues[finished.RequiredTier()].Abandoned++
	}
	if o != outcomeEscalated {
		delete(d.calls, finished.ID())
	}

	w.free = true
	w.current = nil
	w.stateStart = now
	next := d.pullNextLocked(w, now)
	d.mu.Unlock()

	if next != nil {
		d.logPulled(w, next)
	}
	return next
}

// claimLocked returns a free worker of tier required or above, lowest tier
// first. Caller holds d.mu.
func (d *Dispatcher) claimLocked(required types.Tier) *Worker {
	for t := required; t < types.NumTiers; t++ {
		free := make([]*Worker, 0, len(d.pools[t]))
		for _, w := range d.pools[t] {
			if w.free {
				free = append(free, w)
			}
		}
		if w := d.opts.Routing.SelectWorker(free); w != nil {
			return w
		}
	}
	return nil
}

// pullNextLocked dequeues the next call eligible for w and assigns it.
// Caller holds d.mu and w must be free.
func (d *Dispatcher) pullNextLocked(w *Worker, now time.Time) *types.Call {
	for t := w.Tier; t >= types.TierRespondent; t-- {
		if call := d.queues[t].DequeueNext(); call != nil {
			d.assignLocked(w, call, now)
			return call
		}
	}
	return nil
}

// assignLocked marks w busy with call. Caller holds d.mu.
func (d *Dispatcher) assignLocked(w *Worker, call *types.Call, now time.Time) {
	if !w.free || w.current != nil {
		panic(fmt.Sprintf("callqueue: worker %s assigned call %s while busy", w.ID, call.ID()))
	}
	w.free = false
	w.current = call
	w.stateStart = now

	if call.MarkStarted(w.ID, now) {
		d.queues[call.RequiredTier()].SL.RecordAnswer(now.Sub(call.EnqueueTime()))
	}
}

func (d *Dispatcher) logPulled(w *Worker, call *types.Call) {
	d.opts.Metrics.OnAssign(call.RequiredTier(), w.Tier)
	d.logger.Debug().
		Str("call_id", call.ID()).
		Str("worker_id", w.ID).
		Str("tier", w.Tier.String()).
		Msg("queued call pulled by worker")
}

// QueueDepths returns the number of waiting calls per tier, lowest first
func (d *Dispatcher) QueueDepths() []int {
	d.mu.Lock()
	defer d.mu.Unlock()

	depths := make([]int, types.NumTiers)
	for i, q := range d.queues {
		depths[i] = q.Len()
	}
	return depths
}

// Snapshot returns the state of every tier, lowest first
func (d *Dispatcher) Snapshot() []types.TierSnapshot {
	now := time.Now()

	d.mu.Lock()
	defer d.mu.Unlock()

	snapshots := make([]types.TierSnapshot, 0, types.NumTiers)
	for _, tier := range types.AllTiers {
		s := d.queues[tier].Snapshot(now)
		s.Workers = len(d.pools[tier])
		for _, w := range d.pools[tier] {
			if w.free {
				s.FreeWorkers++
			} else {
				s.BusyWorkers++
			}
		}
		snapshots = append(snapshots, s)
	}
	return snapshots
}

// Workers returns the state of every worker, lowest tier first
func (d *Dispatcher) Workers() []types.WorkerInfo {
	d.mu.Lock()
	defer d.mu.Unlock()

	var infos []types.WorkerInfo
	for _, pool := range d.pools {
		for _, w := range pool {
			infos = append(infos, w.infoLocked())
		}
	}
	return infos
}

// Worker returns the worker with the given ID
func (d *Dispatcher) Worker(id string) (*Worker, bool) {
	for _, pool := range d.pools {
		for _, w := range pool {
			if w.ID == id {
				return w, true
			}
		}
	}
	return nil, false
}

// Lookup returns a copy of a call that is waiting or being handled
func (d *Dispatcher) Lookup(callID string) (types.CallInfo, bool) {
	d.mu.Lock()
	call, ok := d.calls[callID]
	d.mu.Unlock()

	if !ok {
		return types.CallInfo{}, false
	}
	return call.Info(), true
}

// InFlight returns the number of submitted calls that are not terminal yet
func (d *Dispatcher) InFlight() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

// AbandonCall removes a waiting call from its queue, as when the caller
// hangs up. Calls already picked up by a worker cannot be abandoned.
func (d *Dispatcher) AbandonCall(callID string) (types.CallInfo, error) {
	d.mu.Lock()
	var call *types.Call
	var tier types.Tier
	for _, q := range d.queues {
		if c := q.Remove(callID); c != nil {
			call, tier = c, q.Tier
			delete(d.calls, callID)
			break
		}
	}
	d.mu.Unlock()

	if call == nil {
		return types.CallInfo{}, ErrNotFound
	}
	d.finishAbandoned(call, tier)
	return call.Info(), nil
}

// WipeQueues abandons every waiting call and returns how many were dropped
func (d *Dispatcher) WipeQueues() int {
	d.mu.Lock()
	dropped := d.wipeLocked()
	d.mu.Unlock()

	d.abandonAll(dropped)
	d.logger.Info().Int("cleared", len(dropped)).Msg("wiped all waiting calls")
	return len(dropped)
}

type droppedCall struct {
	call *types.Call
	tier types.Tier
}

func (d *Dispatcher) wipeLocked() []droppedCall {
	var dropped []droppedCall
	for _, q := range d.queues {
		for _, call := range q.Wipe() {
			dropped = append(dropped, droppedCall{call: call, tier: q.Tier})
			delete(d.calls, call.ID())
		}
	}
	return dropped
}

func (d *Dispatcher) abandonAll(dropped []droppedCall) {
	for _, dc := range dropped {
		d.finishAbandoned(dc.call, dc.tier)
	}
}

func (d *Dispatcher) finishAbandoned(call *types.Call, tier types.Tier) {
	if !call.Abandon(time.Now()) {
		return
	}
	d.opts.Metrics.OnAbandon(tier)
	d.logger.Debug().
		Str("call_id", call.ID()).
		Str("tier", tier.String()).
		Msg("call abandoned")
	d.notify(types.Notification{
		Type:    types.NotifyAbandoned,
		CallID:  call.ID(),
		Tier:    tier,
		Message: types.MsgAbandon,
	})
	d.persist(call)
}

// WaitIdle blocks until no call is in flight and every worker is free
func (d *Dispatcher) WaitIdle(ctx context.Context) error {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	for {
		if d.idle() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (d *Dispatcher) idle() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.calls) > 0 {
		return false
	}
	for _, pool := range d.pools {
		for _, w := range pool {
			if !w.free {
				return false
			}
		}
	}
	return true
}

// Close stops accepting calls, abandons every waiting call and waits for
// the workers to finish the calls they hold. It returns the number of
// abandoned calls.
func (d *Dispatcher) Close() int {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return 0
	}
	d.closed = true
	dropped := d.wipeLocked()
	for _, pool := range d.pools {
		for _, w := range pool {
			close(w.inbox)
		}
	}
	d.mu.Unlock()

	d.abandonAll(dropped)
	d.workers.Wait()
	d.saves.Wait()

	d.logger.Info().Int("abandoned", len(dropped)).Msg("dispatcher stopped")
	return len(dropped)
}

// notify delivers a caller message; failures are only logged
func (d *Dispatcher) notify(n types.Notification) {
	n.Timestamp = time.Now()
	err := guard(func() error { return d.opts.Notifier.Notify(n) })
	if err != nil {
		d.logger.Warn().Err(err).
			Str("call_id", n.CallID).
			Str("type", string(n.Type)).
			Msg("failed to deliver notification")
	}
}

// persist saves a finished call asynchronously
func (d *Dispatcher) persist(call *types.Call) {
	if d.opts.Store == nil {
		return
	}

	record := types.NewCallRecord(call.Info())
	d.saves.Add(1)
	go func() {
		defer d.saves.Done()
		if err := d.opts.Store.SaveCallRecord(record); err != nil {
			d.logger.Error().Err(err).Str("call_id", record.CallID).Msg("failed to save call record")
		}
	}()
}

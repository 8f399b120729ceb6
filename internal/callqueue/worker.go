package callqueue

import (
	"context"
	"time"

	"github.com/dennisdiepolder/switchboard/internal/types"
	"github.com/rs/zerolog"
)

type outcome int

const (
	outcomeResolved outcome = iota
	outcomeEscalated
	outcomeFailed
	outcomeAbandoned
)

// Worker is a simulated employee with a fixed tier. Each worker runs on its
// own goroutine and handles at most one call at a time.
type Worker struct {
	ID   string
	Tier types.Tier

	d     *Dispatcher
	inbox chan *types.Call

	// guarded by d.mu
	free       bool
	current    *types.Call
	stateStart time.Time
	handled    int
	resolved   int
	escalated  int
	failed     int
}

func newWorker(id string, tier types.Tier, d *Dispatcher, now time.Time) *Worker {
	return &Worker{
		ID:         id,
		Tier:       tier,
		d:          d,
		inbox:      make(chan *types.Call, 1),
		free:       true,
		stateStart: now,
	}
}

// run handles delivered calls until the inbox is closed. Finishing a call
// may hand the worker its next queued call directly, so one delivery can
// turn into a chain of calls.
func (w *Worker) run() {
	defer w.d.workers.Done()

	for call := range w.inbox {
		for call != nil {
			o := w.handle(call)
			call = w.d.release(w, call, o)
		}
	}
}

// handle runs one conversation with no dispatcher lock held
func (w *Worker) handle(call *types.Call) outcome {
	d := w.d
	log := d.logger.With().
		Str("call_id", call.ID()).
		Str("worker_id", w.ID).
		Str("tier", w.Tier.String()).
		Logger()

	d.notify(types.Notification{
		Type:     types.NotifyGreeting,
		CallID:   call.ID(),
		Tier:     w.Tier,
		WorkerID: w.ID,
		Message:  types.GreetingMessage(w.Tier),
	})

	err := guard(func() error {
		return d.opts.Work.Converse(context.Background(), call, w.Tier)
	})
	if err != nil {
		return w.fail(log, call, "converse", err)
	}

	var decision Decision
	err = guard(func() error {
		var derr error
		decision, derr = d.opts.Decider.Decide(call, w.Tier)
		return derr
	})
	if err != nil {
		return w.fail(log, call, "decide", err)
	}

	if decision == Escalate {
		// Director calls are always resolved
		if next, ok := w.Tier.Next(); ok {
			return w.escalate(log, call, next)
		}
	}
	return w.resolve(log, call)
}

func (w *Worker) escalate(log zerolog.Logger, call *types.Call, next types.Tier) outcome {
	d := w.d
	if !call.Escalate(next) {
		log.Warn().Str("to", next.String()).Msg("escalation refused, resolving instead")
		return w.resolve(log, call)
	}

	d.notify(types.Notification{
		Type:     types.NotifyEscalated,
		CallID:   call.ID(),
		Tier:     next,
		WorkerID: w.ID,
		Message:  types.MsgEscalate,
	})
	d.opts.Metrics.OnEscalate(w.Tier, next)
	log.Debug().Str("to", next.String()).Msg("call escalated")

	if err := d.route(call, false); err != nil {
		log.Warn().Err(err).Msg("escalated call could not be rerouted")
		d.finishAbandoned(call, next)
		return outcomeAbandoned
	}
	return outcomeEscalated
}

func (w *Worker) resolve(log zerolog.Logger, call *types.Call) outcome {
	d := w.d
	if !call.Resolve(w.Tier, time.Now()) {
		log.Error().Str("status", string(call.Status())).Msg("call could not be resolved")
		return w.fail(log, call, "resolve", ErrInvalidCall)
	}

	info := call.Info()
	handleTime := time.Duration(info.HandleTime * float64(time.Second))

	d.notify(types.Notification{
		Type:     types.NotifyResolved,
		CallID:   call.ID(),
		Tier:     w.Tier,
		WorkerID: w.ID,
		Message:  types.EndMessage(handleTime),
	})
	d.opts.Metrics.OnResolve(w.Tier, handleTime)
	d.persist(call)

	log.Debug().
		Float64("handle_time", info.HandleTime).
		Int("escalations", info.Escalations).
		Msg("call resolved")
	return outcomeResolved
}

func (w *Worker) fail(log zerolog.Logger, call *types.Call, op string, err error) outcome {
	d := w.d
	perr := &PolicyError{Op: op, CallID: call.ID(), Tier: w.Tier, Err: err}
	log.Error().Err(perr).Msg("call handling failed")

	if call.Fail(perr, time.Now()) {
		d.opts.Metrics.OnFailure(w.Tier)
		d.notify(types.Notification{
			Type:     types.NotifyFailed,
			CallID:   call.ID(),
			Tier:     w.Tier,
			WorkerID: w.ID,
			Message:  types.MsgFailed,
		})
		d.persist(call)
	}
	return outcomeFailed
}

// infoLocked reports the worker state. Caller holds d.mu.
func (w *Worker) infoLocked() types.WorkerInfo {
	info := types.WorkerInfo{
		WorkerID:   w.ID,
		Tier:       w.Tier,
		State:      types.WorkerFree,
		StateStart: w.stateStart,
		Handled:    w.handled,
		Resolved:   w.resolved,
		Escalated:  w.escalated,
		Failed:     w.failed,
	}
	if !w.free {
		info.State = types.WorkerBusy
	}
	if w.current != nil {
		info.CurrentCallID = w.current.ID()
	}
	return info
}

package callqueue

import (
	"time"

	"github.com/dennisdiepolder/switchboard/internal/types"
)

type queuedCall struct {
	call     *types.Call
	queuedAt time.Time
}

// TierQueue is the FIFO of calls waiting for a worker of one tier, plus the
// counters reported for that tier. It is not safe for concurrent use; the
// Dispatcher guards every queue with its own mutex.
type TierQueue struct {
	Tier      types.Tier
	Submitted int // calls routed with this required tier, escalations included
	Resolved  int // calls resolved by workers of this tier
	Escalated int // calls escalated away from this tier
	Failed    int
	Abandoned int
	SL        *SLTracker

	waiting []queuedCall
}

// NewTierQueue creates an empty queue for tier
func NewTierQueue(tier types.Tier, slTarget, slSeconds int) *TierQueue {
	return &TierQueue{
		Tier:    tier,
		SL:      NewSLTracker(slTarget, slSeconds),
		waiting: make([]queuedCall, 0),
	}
}

// Enqueue appends a call to the tail of the queue
func (q *TierQueue) Enqueue(call *types.Call, now time.Time) {
	q.waiting = append(q.waiting, queuedCall{call: call, queuedAt: now})
}

// DequeueNext removes and returns the head of the queue (FIFO)
func (q *TierQueue) DequeueNext() *types.Call {
	if len(q.waiting) == 0 {
		return nil
	}
	head := q.waiting[0]
	q.waiting[0] = queuedCall{}
	q.waiting = q.waiting[1:]
	return head.call
}

// Len returns the number of waiting calls
func (q *TierQueue) Len() int {
	return len(q.waiting)
}

// Remove takes a specific waiting call out of the queue
func (q *TierQueue) Remove(callID string) *types.Call {
	for i, w := range q.waiting {
		if w.call.ID() == callID {
			q.waiting = append(q.waiting[:i], q.waiting[i+1:]...)
			q.Abandoned++
			return w.call
		}
	}
	return nil
}

// LongestWaitSecs returns how long the head of the queue has been waiting
func (q *TierQueue) LongestWaitSecs(now time.Time) float64 {
	if len(q.waiting) == 0 {
		return 0
	}
	return now.Sub(q.waiting[0].queuedAt).Seconds()
}

// Wipe empties the queue and returns the calls that were waiting, oldest first
func (q *TierQueue) Wipe() []*types.Call {
	dropped := make([]*types.Call, 0, len(q.waiting))
	for _, w := range q.waiting {
		dropped = append(dropped, w.call)
	}
	q.Abandoned += len(dropped)
	q.waiting = make([]queuedCall, 0)
	return dropped
}

// Snapshot returns the queue part of a TierSnapshot
func (q *TierQueue) Snapshot(now time.Time) types.TierSnapshot {
	return types.TierSnapshot{
		Tier:            q.Tier,
		WaitingCount:    len(q.waiting),
		Submitted:       q.Submitted,
		Resolved:        q.Resolved,
		Escalated:       q.Escalated,
		Failed:          q.Failed,
		Abandoned:       q.Abandoned,
		LongestWaitSecs: q.LongestWaitSecs(now),
		ServiceLevel:    q.SL.Snapshot(),
	}
}

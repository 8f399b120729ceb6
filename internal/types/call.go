package types

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// CallStatus represents the lifecycle state of a call
type CallStatus string

const (
	CallStatusWaiting   CallStatus = "waiting"   // Submitted, never assigned
	CallStatusActive    CallStatus = "active"    // Assigned at least once, not yet resolved
	CallStatusResolved  CallStatus = "resolved"  // Closed by a worker of sufficient tier
	CallStatusFailed    CallStatus = "failed"    // A collaborator failed while the call was handled
	CallStatusAbandoned CallStatus = "abandoned" // Dropped from a queue before anyone picked it up
)

// Terminal reports whether no further transitions are possible
func (s CallStatus) Terminal() bool {
	return s == CallStatusResolved || s == CallStatusFailed || s == CallStatusAbandoned
}

// CallInfo is a point-in-time copy of a call's state
type CallInfo struct {
	CallID       string     `json:"callId"`
	RequiredTier Tier       `json:"requiredTier"`
	Status       CallStatus `json:"status"`
	ResolvedBy   *Tier      `json:"resolvedBy,omitempty"`
	WorkerID     string     `json:"workerId,omitempty"`
	Escalations  int        `json:"escalations"`
	EnqueueTime  time.Time  `json:"enqueueTime"`
	StartTime    *time.Time `json:"startTime,omitempty"`
	EndTime      *time.Time `json:"endTime,omitempty"`
	WaitTime     float64    `json:"waitTime,omitempty"`   // seconds from submission to first assignment
	HandleTime   float64    `json:"handleTime,omitempty"` // seconds from first assignment to end
	Error        string     `json:"error,omitempty"`
}

// Call is a single call routed through the dispatcher.
//
// A call is owned by exactly one component at a time (a queue or a worker);
// the mutex only protects concurrent readers such as the HTTP API.
type Call struct {
	mu   sync.Mutex
	info CallInfo
	err  error
	done chan struct{}
}

// NewCall creates a call requiring at least the given tier
func NewCall(tier Tier) *Call {
	return NewCallWithID(uuid.New().String(), tier)
}

// NewCallWithID creates a call with a caller-supplied ID
func NewCallWithID(callID string, tier Tier) *Call {
	if callID == "" {
		callID = uuid.New().String()
	}
	return &Call{
		info: CallInfo{
			CallID:       callID,
			RequiredTier: tier,
			Status:       CallStatusWaiting,
			EnqueueTime:  time.Now(),
		},
		done: make(chan struct{}),
	}
}

// ID returns the call ID
func (c *Call) ID() string {
	return c.info.CallID
}

// EnqueueTime returns when the call was created
func (c *Call) EnqueueTime() time.Time {
	return c.info.EnqueueTime
}

// RequiredTier returns the minimum tier able to resolve the call
func (c *Call) RequiredTier() Tier {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.info.RequiredTier
}

// Status returns the current lifecycle state
func (c *Call) Status() CallStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.info.Status
}

// ResolvedBy returns the tier that resolved the call, if any
func (c *Call) ResolvedBy() (Tier, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.info.ResolvedBy == nil {
		return 0, false
	}
	return *c.info.ResolvedBy, true
}

// StartTime returns the time of the first assignment, if any
func (c *Call) StartTime() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.info.StartTime == nil {
		return time.Time{}, false
	}
	return *c.info.StartTime, true
}

// Err returns the failure recorded on the call
func (c *Call) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Info returns a copy of the call state
func (c *Call) Info() CallInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	info := c.info
	if c.info.ResolvedBy != nil {
		by := *c.info.ResolvedBy
		info.ResolvedBy = &by
	}
	if c.info.StartTime != nil {
		start := *c.info.StartTime
		info.StartTime = &start
	}
	if c.info.EndTime != nil {
		end := *c.info.EndTime
		info.EndTime = &end
	}
	return info
}

// Done is closed once the call reaches a terminal state
func (c *Call) Done() <-chan struct{} {
	return c.done
}

// Wait blocks until the call is terminal or ctx is done. It returns the
// failure recorded on the call, if any.
func (c *Call) Wait(ctx context.Context) error {
	select {
	case <-c.done:
		return c.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// MarkStarted records an assignment to a worker. StartTime and WaitTime are
// only set on the first assignment; it returns true when that happened.
func (c *Call) MarkStarted(workerID string, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.info.Status = CallStatusActive
	c.info.WorkerID = workerID
	if c.info.StartTime != nil {
		return false
	}
	c.info.StartTime = &now
	c.info.WaitTime = now.Sub(c.info.EnqueueTime).Seconds()
	return true
}

// Escalate raises the required tier. Lowering or keeping the tier is refused.
func (c *Call) Escalate(to Tier) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !to.Valid() || to <= c.info.RequiredTier || c.info.Status.Terminal() {
		return false
	}
	c.info.RequiredTier = to
	c.info.Escalations++
	c.info.WorkerID = ""
	return true
}

// Resolve closes the call on behalf of a worker of the given tier. It
// refuses a tier below the required one or a call that is already terminal.
func (c *Call) Resolve(by Tier, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if by < c.info.RequiredTier || c.info.Status.Terminal() {
		return false
	}
	c.info.ResolvedBy = &by
	c.setEnd(now)
	c.info.Status = CallStatusResolved
	close(c.done)
	return true
}

// Fail closes the call with the given cause
func (c *Call) Fail(err error, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.info.Status.Terminal() {
		return false
	}
	c.err = err
	if err != nil {
		c.info.Error = err.Error()
	}
	c.setEnd(now)
	c.info.Status = CallStatusFailed
	close(c.done)
	return true
}

// Abandon closes a call that was never picked up again
func (c *Call) Abandon(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.info.Status.Terminal() {
		return false
	}
	c.info.EndTime = &now
	c.info.Status = CallStatusAbandoned
	close(c.done)
	return true
}

// setEnd records EndTime, never earlier than StartTime. Caller holds mu.
func (c *Call) setEnd(now time.Time) {
	if c.info.StartTime != nil {
		if now.Before(*c.info.StartTime) {
			now = *c.info.StartTime
		}
		c.info.HandleTime = now.Sub(*c.info.StartTime).Seconds()
	}
	c.info.EndTime = &now
}

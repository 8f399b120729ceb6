package callqueue

import (
	"errors"
	"fmt"

	"github.com/dennisdiepolder/switchboard/internal/types"
)

var (
	// ErrInvalidCall is returned for a nil call, a call whose required tier
	// is out of range, or a call that already reached a terminal state.
	ErrInvalidCall = errors.New("invalid call")

	// ErrClosed is returned by Submit after Close
	ErrClosed = errors.New("dispatcher closed")

	// ErrNotFound is returned when a call ID is not waiting in any queue
	ErrNotFound = errors.New("call not found")
)

// PolicyError reports a failure of an injected collaborator (the work
// simulator or the escalation decider) while a worker handled a call.
type PolicyError struct {
	Op     string // "converse" or "decide"
	CallID string
	Tier   types.Tier
	Err    error
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("%s failed for call %s at tier %s: %v", e.Op, e.CallID, e.Tier, e.Err)
}

func (e *PolicyError) Unwrap() error {
	return e.Err
}

// guard runs fn and turns a panic into an error
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

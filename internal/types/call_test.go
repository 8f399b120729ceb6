package types

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNewCall(t *testing.T) {
	call := NewCall(TierManager)
	if call.ID() == "" {
		t.Fatal("expected generated call ID")
	}
	if call.Status() != CallStatusWaiting || call.RequiredTier() != TierManager {
		t.Errorf("unexpected new call: %+v", call.Info())
	}
	if _, ok := call.StartTime(); ok {
		t.Error("new call must not have a start time")
	}

	named := NewCallWithID("abc", TierRespondent)
	if named.ID() != "abc" {
		t.Errorf("expected ID abc, got %s", named.ID())
	}
	if NewCallWithID("", TierRespondent).ID() == "" {
		t.Error("expected generated ID for empty input")
	}
}

func TestCallLifecycle(t *testing.T) {
	call := NewCallWithID("life", TierRespondent)
	start := call.EnqueueTime().Add(2 * time.Second)

	if !call.MarkStarted("respondent-1", start) {
		t.Fatal("first start must be recorded")
	}
	if call.Status() != CallStatusActive {
		t.Errorf("expected active, got %s", call.Status())
	}

	if !call.Escalate(TierManager) {
		t.Fatal("escalation to manager must succeed")
	}
	if call.Escalate(TierManager) || call.Escalate(TierRespondent) {
		t.Error("escalation must strictly raise the tier")
	}
	if call.Escalate(Tier(3)) {
		t.Error("escalation beyond director must fail")
	}

	if call.MarkStarted("manager-1", start.Add(time.Second)) {
		t.Error("second start must not reset the start time")
	}
	if got, _ := call.StartTime(); !got.Equal(start) {
		t.Errorf("expected start time kept, got %v", got)
	}

	if call.Resolve(TierRespondent, start.Add(2*time.Second)) {
		t.Error("respondent cannot resolve a manager call")
	}
	if !call.Resolve(TierDirector, start.Add(3*time.Second)) {
		t.Fatal("director must be able to resolve")
	}

	info := call.Info()
	if info.Status != CallStatusResolved || *info.ResolvedBy != TierDirector {
		t.Errorf("unexpected resolution: %+v", info)
	}
	if info.Escalations != 1 || info.WorkerID != "manager-1" {
		t.Errorf("unexpected info: %+v", info)
	}
	if info.WaitTime != 2 || info.HandleTime != 3 {
		t.Errorf("expected wait 2s and handle 3s, got %.1f / %.1f", info.WaitTime, info.HandleTime)
	}

	select {
	case <-call.Done():
	default:
		t.Error("Done must be closed after resolution")
	}
	if call.Resolve(TierDirector, time.Now()) || call.Fail(errors.New("late"), time.Now()) || call.Abandon(time.Now()) {
		t.Error("terminal call must refuse further transitions")
	}
}

func TestCallEndNeverBeforeStart(t *testing.T) {
	call := NewCall(TierRespondent)
	start := time.Now()
	call.MarkStarted("respondent-1", start)
	call.Resolve(TierRespondent, start.Add(-time.Second))

	info := call.Info()
	if info.EndTime.Before(*info.StartTime) {
		t.Errorf("end %v before start %v", info.EndTime, info.StartTime)
	}
	if info.HandleTime != 0 {
		t.Errorf("expected zero handle time, got %f", info.HandleTime)
	}
}

func TestCallFailAndWait(t *testing.T) {
	call := NewCall(TierRespondent)
	cause := errors.New("decider crashed")

	go call.Fail(cause, time.Now())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := call.Wait(ctx); !errors.Is(err, cause) {
		t.Fatalf("expected cause from Wait, got %v", err)
	}
	if call.Info().Error != "decider crashed" {
		t.Errorf("unexpected error text: %q", call.Info().Error)
	}
}

func TestCallWaitHonoursContext(t *testing.T) {
	call := NewCall(TierRespondent)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := call.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestInfoIsACopy(t *testing.T) {
	call := NewCall(TierRespondent)
	call.MarkStarted("respondent-1", time.Now())

	info := call.Info()
	*info.StartTime = time.Time{}

	if start, _ := call.StartTime(); start.IsZero() {
		t.Error("modifying Info must not change the call")
	}
}

func TestNewCallRecord(t *testing.T) {
	call := NewCallWithID("rec", TierRespondent)
	call.MarkStarted("respondent-1", call.EnqueueTime())
	call.Resolve(TierRespondent, call.EnqueueTime().Add(time.Second))

	r := NewCallRecord(call.Info())
	if r.CallID != "rec" || r.Status != "resolved" || r.ResolvedBy != "respondent" || r.RequiredTier != "respondent" {
		t.Errorf("unexpected record: %+v", r)
	}
	if r.DateKey != call.EnqueueTime().Format("2006-01-02") {
		t.Errorf("unexpected date key %s", r.DateKey)
	}
	if r.StartTime == "" || r.EndTime == "" {
		t.Error("expected start and end times")
	}
}

func TestMessages(t *testing.T) {
	if got := GreetingMessage(TierDirector); got != "Hi! I'm a director. How can I help you?" {
		t.Errorf("unexpected greeting %q", got)
	}
	if got := EndMessage(1500 * time.Millisecond); got != MsgEnd+"[1500ms]" {
		t.Errorf("unexpected end message %q", got)
	}
}

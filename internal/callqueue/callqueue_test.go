package callqueue

import (
	"testing"
	"time"

	"github.com/dennisdiepolder/switchboard/internal/types"
)

func TestTierQueueFIFOOrdering(t *testing.T) {
	q := NewTierQueue(types.TierRespondent, 80, 20)
	now := time.Now()

	// Enqueue 3 calls
	q.Enqueue(types.NewCallWithID("call-1", types.TierRespondent), now)
	q.Enqueue(types.NewCallWithID("call-2", types.TierRespondent), now)
	q.Enqueue(types.NewCallWithID("call-3", types.TierRespondent), now)

	if q.Len() != 3 {
		t.Fatalf("expected 3 waiting, got %d", q.Len())
	}

	// Dequeue should return in FIFO order
	for _, want := range []string{"call-1", "call-2", "call-3"} {
		got := q.DequeueNext()
		if got == nil || got.ID() != want {
			t.Fatalf("expected %s, got %v", want, got)
		}
	}

	if q.DequeueNext() != nil {
		t.Error("expected nil from empty queue")
	}
}

func TestTierQueueRemove(t *testing.T) {
	q := NewTierQueue(types.TierManager, 80, 20)
	now := time.Now()
	q.Enqueue(types.NewCallWithID("a", types.TierManager), now)
	q.Enqueue(types.NewCallWithID("b", types.TierManager), now)
	q.Enqueue(types.NewCallWithID("c", types.TierManager), now)

	if q.Remove("missing") != nil {
		t.Error("expected nil for unknown call")
	}
	if got := q.Remove("b"); got == nil || got.ID() != "b" {
		t.Fatalf("expected b to be removed, got %v", got)
	}
	if q.Abandoned != 1 {
		t.Errorf("expected 1 abandoned, got %d", q.Abandoned)
	}
	if got := q.DequeueNext(); got.ID() != "a" {
		t.Errorf("expected a at head, got %s", got.ID())
	}
	if got := q.DequeueNext(); got.ID() != "c" {
		t.Errorf("expected c after a, got %s", got.ID())
	}
}

func TestTierQueueLongestWaitUsesQueueTime(t *testing.T) {
	q := NewTierQueue(types.TierDirector, 80, 20)
	now := time.Now()

	if q.LongestWaitSecs(now) != 0 {
		t.Error("expected zero wait on an empty queue")
	}

	// A call created long ago but queued just now, as after an escalation
	call := types.NewCall(types.TierDirector)
	q.Enqueue(call, now.Add(-3*time.Second))
	q.Enqueue(types.NewCall(types.TierDirector), now.Add(-1*time.Second))

	if got := q.LongestWaitSecs(now); got < 2.99 || got > 3.01 {
		t.Errorf("expected ~3s longest wait, got %.2f", got)
	}
}

func TestTierQueueWipe(t *testing.T) {
	q := NewTierQueue(types.TierRespondent, 80, 20)
	now := time.Now()
	q.Enqueue(types.NewCallWithID("x", types.TierRespondent), now)
	q.Enqueue(types.NewCallWithID("y", types.TierRespondent), now)

	dropped := q.Wipe()
	if len(dropped) != 2 || dropped[0].ID() != "x" || dropped[1].ID() != "y" {
		t.Fatalf("unexpected dropped calls: %v", dropped)
	}
	if q.Len() != 0 || q.Abandoned != 2 {
		t.Errorf("expected empty queue with 2 abandoned, got len=%d abandoned=%d", q.Len(), q.Abandoned)
	}

	snap := q.Snapshot(now)
	if snap.WaitingCount != 0 || snap.Abandoned != 2 || snap.Tier != types.TierRespondent {
		t.Errorf("unexpected snapshot: %+v", snap)
	}
}

func TestFirstFreeSelection(t *testing.T) {
	w1 := &Worker{ID: "respondent-1", free: true}
	w2 := &Worker{ID: "respondent-2", free: true}

	if got := (FirstFree{}).SelectWorker([]*Worker{w1, w2}); got != w1 {
		t.Errorf("expected respondent-1, got %v", got)
	}
	if (FirstFree{}).SelectWorker(nil) != nil {
		t.Error("expected nil for empty list")
	}
}

func TestLongestIdleFirstSelection(t *testing.T) {
	strategy := LongestIdleFirst{}

	now := time.Now()
	workers := []*Worker{
		{ID: "worker-1", stateStart: now.Add(-5 * time.Minute)},
		{ID: "worker-2", stateStart: now.Add(-10 * time.Minute)}, // longest idle
		{ID: "worker-3", stateStart: now.Add(-2 * time.Minute)},
	}

	selected := strategy.SelectWorker(workers)
	if selected == nil {
		t.Fatal("expected worker to be selected")
	}
	if selected.ID != "worker-2" {
		t.Errorf("expected worker-2 (longest idle), got %s", selected.ID)
	}
}

func TestLongestIdleFirstEmpty(t *testing.T) {
	strategy := LongestIdleFirst{}
	if strategy.SelectWorker(nil) != nil {
		t.Error("expected nil for empty list")
	}
}

func TestServiceLevelCalculation(t *testing.T) {
	sl := NewSLTracker(80, 20)

	// No calls yet - SL should be 100%
	if sl.CurrentSL() != 100.0 {
		t.Errorf("expected 100%% SL with no calls, got %.1f%%", sl.CurrentSL())
	}

	// 4 calls answered in SL, 1 outside
	sl.RecordAnswer(10 * time.Second) // in SL
	sl.RecordAnswer(15 * time.Second) // in SL
	sl.RecordAnswer(19 * time.Second) // in SL
	sl.RecordAnswer(20 * time.Second) // exactly at threshold, counts as in SL
	sl.RecordAnswer(25 * time.Second) // outside SL

	// 4/5 = 80%
	if sl.CurrentSL() != 80.0 {
		t.Errorf("expected 80%% SL, got %.1f%%", sl.CurrentSL())
	}

	snapshot := sl.Snapshot()
	if snapshot.AnsweredInSL != 4 {
		t.Errorf("expected 4 answered in SL, got %d", snapshot.AnsweredInSL)
	}
	if snapshot.TotalAnswered != 5 {
		t.Errorf("expected 5 total answered, got %d", snapshot.TotalAnswered)
	}
	if snapshot.ThresholdSecs != 20 {
		t.Errorf("expected 20s threshold, got %d", snapshot.ThresholdSecs)
	}
}

func TestRandomDeciderExtremes(t *testing.T) {
	never := NewRandomDecider(0, 1)
	always := NewRandomDecider(1, 1)
	call := types.NewCall(types.TierRespondent)

	for i := 0; i < 20; i++ {
		if d, _ := never.Decide(call, types.TierRespondent); d != Resolve {
			t.Fatal("P=0 must always resolve")
		}
		if d, _ := always.Decide(call, types.TierRespondent); d != Escalate {
			t.Fatal("P=1 must always escalate")
		}
	}
}

func TestGuardRecoversPanic(t *testing.T) {
	err := guard(func() error { panic("boom") })
	if err == nil || err.Error() != "panic: boom" {
		t.Errorf("expected recovered panic, got %v", err)
	}
}

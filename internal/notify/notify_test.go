package notify

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dennisdiepolder/switchboard/internal/types"
	"github.com/rs/zerolog"
)

type fakeHub struct {
	full     bool
	messages [][]byte
}

func (h *fakeHub) TryBroadcast(message []byte) bool {
	if h.full {
		return false
	}
	h.messages = append(h.messages, message)
	return true
}

func testNotification() types.Notification {
	return types.Notification{
		Type:      types.NotifyGreeting,
		CallID:    "call-1",
		Tier:      types.TierManager,
		WorkerID:  "manager-1",
		Message:   types.GreetingMessage(types.TierManager),
		Timestamp: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestHubNotifier(t *testing.T) {
	hub := &fakeHub{}
	n := NewHubNotifier(hub)

	if err := n.Notify(testNotification()); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(hub.messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(hub.messages))
	}

	var got map[string]interface{}
	if err := json.Unmarshal(hub.messages[0], &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["type"] != "call_greeting" || got["callId"] != "call-1" || got["tier"] != "manager" {
		t.Errorf("unexpected payload: %v", got)
	}

	hub.full = true
	if err := n.Notify(testNotification()); !errors.Is(err, ErrDropped) {
		t.Errorf("expected ErrDropped, got %v", err)
	}
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNotifier(zerolog.New(&buf))

	if err := n.Notify(testNotification()); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	out := buf.String()
	for _, want := range []string{`"call_id":"call-1"`, `"tier":"manager"`, "How can I help you?"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected log to contain %s, got %s", want, out)
		}
	}
}

func TestMulti(t *testing.T) {
	ok := &fakeHub{}
	full := &fakeHub{full: true}
	var buf bytes.Buffer

	m := Multi{NewHubNotifier(full), NewHubNotifier(ok), NewLogNotifier(zerolog.New(&buf))}
	err := m.Notify(testNotification())

	if !errors.Is(err, ErrDropped) {
		t.Errorf("expected joined ErrDropped, got %v", err)
	}
	if len(ok.messages) != 1 || buf.Len() == 0 {
		t.Error("a failing notifier must not stop the others")
	}
}

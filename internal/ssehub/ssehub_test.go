package ssehub

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestBroadcastDeliversToRegisteredSubscriber(t *testing.T) {
	hub := New(nil)
	sessionID := uuid.New()

	sub, unregister := hub.Register(sessionID)
	defer unregister()

	hub.Broadcast(sessionID, Event{Type: "user_message", Data: map[string]any{"text": "hi"}})

	select {
	case event := <-sub.Events():
		if event.Type != "user_message" {
			t.Fatalf("expected user_message event, got %q", event.Type)
		}
	default:
		t.Fatalf("expected an event to be queued for the subscriber")
	}
}

func TestBroadcastIgnoresUnregisteredSessions(t *testing.T) {
	hub := New(nil)
	// No subscriber registered for this session; Broadcast must not panic.
	hub.Broadcast(uuid.New(), Event{Type: "noop"})
}

func TestUnregisterClosesChannel(t *testing.T) {
	hub := New(nil)
	sessionID := uuid.New()
	sub, unregister := hub.Register(sessionID)
	unregister()

	_, ok := <-sub.Events()
	if ok {
		t.Fatalf("expected subscriber channel to be closed after unregister")
	}
}

func TestWriteStreamWritesSSEWireFormatUntilChannelCloses(t *testing.T) {
	hub := New(nil)
	sessionID := uuid.New()
	sub, unregister := hub.Register(sessionID)

	hub.Broadcast(sessionID, Event{Type: "assistant_message", Data: map[string]any{"text": "done"}})
	unregister()

	var buf bytes.Buffer
	if err := WriteStream(&buf, sub, nil); err != nil {
		t.Fatalf("WriteStream: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "event: assistant_message\n") {
		t.Fatalf("expected event line in output, got %q", out)
	}
	if !strings.Contains(out, `"text":"done"`) {
		t.Fatalf("expected JSON data in output, got %q", out)
	}
}

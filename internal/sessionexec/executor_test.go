package sessionexec

import (
	"context"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/haasonsaas/agentcore/internal/agentrepo"
	"github.com/haasonsaas/agentcore/internal/llmclient"
	"github.com/haasonsaas/agentcore/internal/sessioncore"
	"github.com/haasonsaas/agentcore/internal/sessionbuilder"
	"github.com/haasonsaas/agentcore/internal/skillrepo"
	"github.com/haasonsaas/agentcore/internal/ssehub"
	"github.com/haasonsaas/agentcore/pkg/models"
)

func mustEvent(t *testing.T, raw string) anthropic.MessageStreamEventUnion {
	t.Helper()
	var ev anthropic.MessageStreamEventUnion
	if err := ev.UnmarshalJSON([]byte(raw)); err != nil {
		t.Fatalf("unmarshal event: %v", err)
	}
	return ev
}

// scriptedClient is an LLMClient test double that replays a fixed
// sequence of raw stream events on every Query call.
type scriptedClient struct {
	events []anthropic.MessageStreamEventUnion
}

func (c *scriptedClient) Connect(ctx context.Context) error                  { return nil }
func (c *scriptedClient) Query(ctx context.Context, content string) error    { return nil }
func (c *scriptedClient) Interrupt(ctx context.Context) error                { return nil }
func (c *scriptedClient) Disconnect(ctx context.Context) error               { return nil }
func (c *scriptedClient) IsAlive() bool                                      { return true }
func (c *scriptedClient) ExternalSessionID() string                          { return "" }
func (c *scriptedClient) ContinueWithToolResults(ctx context.Context, assistantText string, calls []llmclient.ToolCallRecord) error {
	return nil
}
func (c *scriptedClient) ReceiveMessages(ctx context.Context) (<-chan anthropic.MessageStreamEventUnion, <-chan error) {
	events := make(chan anthropic.MessageStreamEventUnion, len(c.events))
	errs := make(chan error, 1)
	for _, e := range c.events {
		events <- e
	}
	close(events)
	close(errs)
	return events, errs
}

type fixedPaths struct{}

func (fixedPaths) WorkingDir(session *models.Session) (string, error) { return "/tmp/agentcore-test", nil }
func (fixedPaths) ProjectPath(ctx context.Context, session *models.Session) (string, error) {
	return "/tmp/agentcore-test-project", nil
}

func newTestExecutor(t *testing.T, events []anthropic.MessageStreamEventUnion) (*Executor, sessioncore.Store) {
	t.Helper()
	dir := t.TempDir()
	agents, err := agentrepo.New(dir + "/agents")
	if err != nil {
		t.Fatalf("agentrepo.New: %v", err)
	}
	skills, err := skillrepo.New(dir + "/skills")
	if err != nil {
		t.Fatalf("skillrepo.New: %v", err)
	}
	builder := sessionbuilder.New(agents, skills)
	factory := func(cfg *sessionbuilder.ClientConfig) llmclient.LLMClient {
		return &scriptedClient{events: events}
	}
	mgr := llmclient.NewManager(builder, factory)
	store := sessioncore.NewMemoryStore()
	locker := sessioncore.NewLocalLocker(time.Second)
	hub := ssehub.New(nil)
	exec := New(store, locker, mgr, hub, fixedPaths{}, nil)
	return exec, store
}

func TestEnqueueDrivesTurnToIdleAndPersistsAssistantMessage(t *testing.T) {
	events := []anthropic.MessageStreamEventUnion{
		mustEvent(t, `{"type":"message_start","message":{"id":"m1","type":"message","role":"assistant","content":[],"model":"claude","usage":{"input_tokens":10,"output_tokens":0}}}`),
		mustEvent(t, `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"hi there"}}`),
		mustEvent(t, `{"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":3}}`),
		mustEvent(t, `{"type":"message_stop"}`),
	}
	exec, store := newTestExecutor(t, events)
	ctx := context.Background()

	session := &models.Session{SessionType: models.SessionTypeAssistant, Status: models.StatusInitializing}
	if err := store.CreateSession(ctx, session); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	if err := exec.Enqueue(ctx, session.ID, "hello", nil); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	var final *models.Session
	for time.Now().Before(deadline) {
		s, err := store.GetSession(ctx, session.ID)
		if err != nil {
			t.Fatalf("GetSession: %v", err)
		}
		if s.Status == models.StatusIdle {
			final = s
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if final == nil {
		t.Fatalf("session never reached idle")
	}

	history, err := store.GetHistory(ctx, session.ID, 0)
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	var sawAssistant bool
	for _, m := range history {
		if m.Role == models.MessageRoleAssistant && m.Content == "hi there" {
			sawAssistant = true
		}
	}
	if !sawAssistant {
		t.Fatalf("expected persisted assistant message 'hi there', got %+v", history)
	}
}

func TestInterruptClearsQueueAndEvictsClient(t *testing.T) {
	exec, store := newTestExecutor(t, nil)
	ctx := context.Background()

	session := &models.Session{SessionType: models.SessionTypeAssistant, Status: models.StatusWorking}
	if err := store.CreateSession(ctx, session); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	if err := exec.Interrupt(ctx, session.ID); err != nil {
		t.Fatalf("Interrupt: %v", err)
	}

	updated, err := store.GetSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if updated.Status != models.StatusInterrupted {
		t.Fatalf("expected interrupted, got %s", updated.Status)
	}
	if exec.QueueSize(session.ID) != 0 {
		t.Fatalf("expected empty queue after interrupt")
	}
	if _, err := exec.clients.Get(session.ID); !models.IsKind(err, models.KindClientNotFound) {
		t.Fatalf("expected client evicted after interrupt, got err=%v", err)
	}
}

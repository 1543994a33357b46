package llmclient

import (
	"context"
	"errors"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/google/uuid"

	"github.com/haasonsaas/agentcore/internal/agentrepo"
	"github.com/haasonsaas/agentcore/internal/sessionbuilder"
	"github.com/haasonsaas/agentcore/internal/skillrepo"
)

// fakeClient is a minimal LLMClient test double that can be configured to
// fail its first Connect call in a resume-like way.
type fakeClient struct {
	cfg        *sessionbuilder.ClientConfig
	failResume bool
	connected  bool
}

func (f *fakeClient) Connect(ctx context.Context) error {
	if f.failResume && f.cfg.ResumeToken != nil {
		return errors.New("upstream: no conversation found for token")
	}
	f.connected = true
	return nil
}
func (f *fakeClient) Query(ctx context.Context, content string) error { return nil }
func (f *fakeClient) ReceiveMessages(ctx context.Context) (<-chan anthropic.MessageStreamEventUnion, <-chan error) {
	panic("unused in this test")
}
func (f *fakeClient) Interrupt(ctx context.Context) error  { return nil }
func (f *fakeClient) Disconnect(ctx context.Context) error { f.connected = false; return nil }
func (f *fakeClient) IsAlive() bool                        { return f.connected }
func (f *fakeClient) ExternalSessionID() string            { return "" }
func (f *fakeClient) ContinueWithToolResults(ctx context.Context, assistantText string, calls []ToolCallRecord) error {
	return nil
}

func newTestManager(t *testing.T, failResume bool) (*Manager, string) {
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

	var built *fakeClient
	factory := func(cfg *sessionbuilder.ClientConfig) LLMClient {
		built = &fakeClient{cfg: cfg, failResume: failResume}
		return built
	}
	return NewManager(builder, factory), dir
}

func TestCreateFromSessionRetriesOnResumeFailure(t *testing.T) {
	mgr, _ := newTestManager(t, true)
	resumeToken := "stale-token"

	client, err := mgr.CreateFromSession(context.Background(), sessionbuilder.Input{
		SessionID:   uuid.New().String(),
		SessionType: "assistant",
		ResumeToken: &resumeToken,
	})
	if err != nil {
		t.Fatalf("CreateFromSession: %v", err)
	}
	if !client.IsAlive() {
		t.Fatalf("expected client to be connected after resume retry")
	}
}

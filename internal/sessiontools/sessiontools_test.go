package sessiontools

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/agentcore/internal/agentrepo"
	"github.com/haasonsaas/agentcore/internal/llmclient"
	"github.com/haasonsaas/agentcore/internal/sessionbuilder"
	"github.com/haasonsaas/agentcore/internal/sessioncore"
	"github.com/haasonsaas/agentcore/internal/sessionexec"
	"github.com/haasonsaas/agentcore/internal/skillrepo"
	"github.com/haasonsaas/agentcore/internal/ssehub"
	"github.com/haasonsaas/agentcore/pkg/models"

	"github.com/anthropics/anthropic-sdk-go"
)

type noopClient struct{}

func (noopClient) Connect(ctx context.Context) error               { return nil }
func (noopClient) Query(ctx context.Context, content string) error { return nil }
func (noopClient) Interrupt(ctx context.Context) error              { return nil }
func (noopClient) Disconnect(ctx context.Context) error             { return nil }
func (noopClient) IsAlive() bool                                    { return true }
func (noopClient) ExternalSessionID() string                        { return "" }
func (noopClient) ContinueWithToolResults(ctx context.Context, assistantText string, calls []llmclient.ToolCallRecord) error {
	return nil
}
func (noopClient) ReceiveMessages(ctx context.Context) (<-chan anthropic.MessageStreamEventUnion, <-chan error) {
	events := make(chan anthropic.MessageStreamEventUnion)
	errs := make(chan error)
	close(events)
	close(errs)
	return events, errs
}

func newTestDeps(t *testing.T) (Deps, sessioncore.Store) {
	t.Helper()
	dir := t.TempDir()
	agents, err := agentrepo.New(dir + "/agents")
	if err != nil {
		t.Fatalf("agentrepo.New: %v", err)
	}
	if err := agents.Write(&models.Agent{ID: "backend-dev", Name: "Backend Dev", Description: "Writes backend code"}); err != nil {
		t.Fatalf("agents.Write: %v", err)
	}

	skills, err := skillrepo.New(dir + "/skills")
	if err != nil {
		t.Fatalf("skillrepo.New: %v", err)
	}
	builder := sessionbuilder.New(agents, skills)
	mgr := llmclient.NewManager(builder, func(cfg *sessionbuilder.ClientConfig) llmclient.LLMClient { return noopClient{} })

	store := sessioncore.NewMemoryStore()
	locker := sessioncore.NewLocalLocker(time.Second)
	hub := ssehub.New(nil)
	exec := sessionexec.New(store, locker, mgr, hub, testPaths{}, nil)

	return Deps{Store: store, Locker: locker, Executor: exec, Agents: agents}, store
}

type testPaths struct{}

func (testPaths) WorkingDir(session *models.Session) (string, error) { return "/tmp", nil }
func (testPaths) ProjectPath(ctx context.Context, session *models.Session) (string, error) {
	return "/tmp", nil
}

func mustCreateSession(t *testing.T, store sessioncore.Store, session *models.Session) {
	t.Helper()
	if err := store.CreateSession(context.Background(), session); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
}

func TestContactInstanceDeliversAndWakesTarget(t *testing.T) {
	deps, store := newTestDeps(t)
	ctx := context.Background()

	projectID := uuid.New()
	source := &models.Session{ID: uuid.New(), SessionType: models.SessionTypePM, ProjectID: &projectID, Status: models.StatusWorking, AgentID: "pm"}
	target := &models.Session{ID: uuid.New(), SessionType: models.SessionTypeSpecialist, ProjectID: &projectID, Status: models.StatusIdle, AgentID: "backend-dev"}
	mustCreateSession(t, store, source)
	mustCreateSession(t, store, target)

	tool := NewContactInstanceTool(deps)
	ctx = WithCaller(ctx, Caller{SessionID: source.ID, ProjectID: &projectID, AgentID: "pm"})

	params, _ := json.Marshal(map[string]string{"target_id": target.ID.String(), "message": "please begin"})
	result, err := tool.Execute(ctx, params)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %s", result.Content)
	}

	updated, err := store.GetSession(ctx, target.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if updated.Status != models.StatusWorking {
		t.Fatalf("expected target working, got %s", updated.Status)
	}

	deadline := time.Now().Add(time.Second)
	var history []*models.Message
	for time.Now().Before(deadline) {
		history, err = store.GetHistory(ctx, target.ID, 0)
		if err != nil {
			t.Fatalf("GetHistory: %v", err)
		}
		if len(history) > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if len(history) == 0 {
		t.Fatalf("expected a delivered message")
	}
	if history[0].Content != "please begin" || history[0].Role != models.MessageRoleUser {
		t.Fatalf("unexpected delivered message: %+v", history[0])
	}
	if history[0].AgentName == nil || *history[0].AgentName != "Pm" {
		t.Fatalf("expected sender attribution 'Pm', got %+v", history[0].AgentName)
	}
}

func TestContactInstanceRejectsCrossProject(t *testing.T) {
	deps, store := newTestDeps(t)
	ctx := context.Background()

	projectA, projectB := uuid.New(), uuid.New()
	source := &models.Session{ID: uuid.New(), SessionType: models.SessionTypePM, ProjectID: &projectA, Status: models.StatusWorking, AgentID: "pm"}
	target := &models.Session{ID: uuid.New(), SessionType: models.SessionTypeSpecialist, ProjectID: &projectB, Status: models.StatusIdle, AgentID: "backend-dev"}
	mustCreateSession(t, store, source)
	mustCreateSession(t, store, target)

	tool := NewContactInstanceTool(deps)
	ctx = WithCaller(ctx, Caller{SessionID: source.ID, ProjectID: &projectA, AgentID: "pm"})

	params, _ := json.Marshal(map[string]string{"target_id": target.ID.String(), "message": "hi"})
	result, err := tool.Execute(ctx, params)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.IsError {
		t.Fatalf("expected cross-project contact to be rejected")
	}
}

func TestSpawnInstanceCreatesBacklogSession(t *testing.T) {
	deps, store := newTestDeps(t)
	ctx := context.Background()

	projectID := uuid.New()
	pm := &models.Session{ID: uuid.New(), SessionType: models.SessionTypePM, ProjectID: &projectID, Status: models.StatusWorking, AgentID: "pm"}
	mustCreateSession(t, store, pm)

	tool := NewSpawnInstanceTool(deps)
	ctx = WithCaller(ctx, Caller{SessionID: pm.ID, ProjectID: &projectID, AgentID: "pm"})

	params, _ := json.Marshal(map[string]string{"agent_id": "backend-dev", "task_description": "wire up the API"})
	result, err := tool.Execute(ctx, params)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", result.Content)
	}

	sessions, err := store.ListSessions(ctx, sessioncore.ListOptions{ProjectID: &projectID, SessionType: models.SessionTypeSpecialist})
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("expected one specialist session, got %d", len(sessions))
	}
	if sessions[0].Status != models.StatusInitializing {
		t.Fatalf("expected initializing status, got %s", sessions[0].Status)
	}
	if sessions[0].KanbanStage() != models.KanbanBacklog {
		t.Fatalf("expected backlog kanban stage, got %s", sessions[0].KanbanStage())
	}
}

func TestSpawnInstanceRejectsUnknownAgent(t *testing.T) {
	deps, store := newTestDeps(t)
	ctx := context.Background()

	projectID := uuid.New()
	pm := &models.Session{ID: uuid.New(), SessionType: models.SessionTypePM, ProjectID: &projectID, Status: models.StatusWorking, AgentID: "pm"}
	mustCreateSession(t, store, pm)

	tool := NewSpawnInstanceTool(deps)
	ctx = WithCaller(ctx, Caller{SessionID: pm.ID, ProjectID: &projectID, AgentID: "pm"})

	params, _ := json.Marshal(map[string]string{"agent_id": "does-not-exist", "task_description": "x"})
	result, err := tool.Execute(ctx, params)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.IsError {
		t.Fatalf("expected unknown agent to be rejected")
	}
}

func TestRemindDeliversAfterDelay(t *testing.T) {
	deps, store := newTestDeps(t)
	ctx := context.Background()

	session := &models.Session{ID: uuid.New(), SessionType: models.SessionTypeAssistant, Status: models.StatusIdle, AgentID: "assistant"}
	mustCreateSession(t, store, session)

	tool := NewRemindTool(deps)
	defer tool.Stop()
	ctx = WithCaller(ctx, Caller{SessionID: session.ID})

	params, _ := json.Marshal(map[string]any{"delay_seconds": 1, "message": "check build"})
	result, err := tool.Execute(ctx, params)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", result.Content)
	}

	deadline := time.Now().Add(3 * time.Second)
	var updated *models.Session
	for time.Now().Before(deadline) {
		updated, err = store.GetSession(ctx, session.ID)
		if err != nil {
			t.Fatalf("GetSession: %v", err)
		}
		if updated.Status == models.StatusWorking {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if updated.Status != models.StatusWorking {
		t.Fatalf("expected session woken to working, got %s", updated.Status)
	}

	history, err := store.GetHistory(ctx, session.ID, 0)
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	var sawReminder bool
	for _, m := range history {
		if m.Content == "check build" && m.AgentName != nil && *m.AgentName == "System Reminder" {
			sawReminder = true
		}
	}
	if !sawReminder {
		t.Fatalf("expected delivered reminder message, got %+v", history)
	}
}

func TestRemindRejectsOutOfRangeDelay(t *testing.T) {
	deps, store := newTestDeps(t)
	ctx := context.Background()

	session := &models.Session{ID: uuid.New(), SessionType: models.SessionTypeAssistant, Status: models.StatusIdle, AgentID: "assistant"}
	mustCreateSession(t, store, session)

	tool := NewRemindTool(deps)
	defer tool.Stop()
	ctx = WithCaller(ctx, Caller{SessionID: session.ID})

	params, _ := json.Marshal(map[string]any{"delay_seconds": 0, "message": "x"})
	result, err := tool.Execute(ctx, params)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.IsError {
		t.Fatalf("expected delay_seconds=0 to be rejected")
	}

	params, _ = json.Marshal(map[string]any{"delay_seconds": 86401, "message": "x"})
	result, err = tool.Execute(ctx, params)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.IsError {
		t.Fatalf("expected delay_seconds=86401 to be rejected")
	}
}

func TestGetSessionInfoReturnsCallerIdentity(t *testing.T) {
	deps, store := newTestDeps(t)
	ctx := context.Background()

	session := &models.Session{ID: uuid.New(), SessionType: models.SessionTypeAssistant, Status: models.StatusWorking, AgentID: "assistant"}
	mustCreateSession(t, store, session)

	tool := NewGetSessionInfoTool(deps)
	ctx = WithCaller(ctx, Caller{SessionID: session.ID})

	result, err := tool.Execute(ctx, json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", result.Content)
	}
}

func TestListTeamMembersResolvesAgents(t *testing.T) {
	deps, store := newTestDeps(t)
	ctx := context.Background()

	projectID := uuid.New()
	project := &models.Project{ID: projectID, Name: "demo", TeamMemberIDs: []string{"backend-dev"}}
	if err := store.CreateProject(ctx, project); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	pm := &models.Session{ID: uuid.New(), SessionType: models.SessionTypePM, ProjectID: &projectID, Status: models.StatusWorking, AgentID: "pm"}
	mustCreateSession(t, store, pm)

	tool := NewListTeamMembersTool(deps)
	ctx = WithCaller(ctx, Caller{SessionID: pm.ID, ProjectID: &projectID})

	result, err := tool.Execute(ctx, json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", result.Content)
	}
}

func TestShowFileRejectsMissingPath(t *testing.T) {
	tool := NewShowFileTool()
	result, err := tool.Execute(context.Background(), json.RawMessage(`{"path":"/no/such/file"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.IsError {
		t.Fatalf("expected missing file to be rejected")
	}
}

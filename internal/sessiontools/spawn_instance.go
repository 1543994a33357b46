package sessiontools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/agentcore/pkg/models"
)

// SpawnInstanceTool creates a new specialist session in the caller's
// project. PM-only: callers validate the caller is a PM session before
// wiring this tool into a non-PM session's builder input.
type SpawnInstanceTool struct {
	deps Deps
}

// NewSpawnInstanceTool constructs the spawn_instance tool.
func NewSpawnInstanceTool(deps Deps) *SpawnInstanceTool {
	return &SpawnInstanceTool{deps: deps}
}

func (t *SpawnInstanceTool) Name() string { return "spawn_instance" }

func (t *SpawnInstanceTool) Description() string {
	return "Create a new specialist work instance for a project task"
}

func (t *SpawnInstanceTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"agent_id": {"type": "string", "description": "ID of the specialist agent to spawn"},
			"task_description": {"type": "string", "description": "What the session should accomplish"}
		},
		"required": ["agent_id", "task_description"]
	}`)
}

type spawnInstanceParams struct {
	AgentID         string `json:"agent_id"`
	TaskDescription string `json:"task_description"`
}

func (t *SpawnInstanceTool) Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
	var in spawnInstanceParams
	if err := json.Unmarshal(params, &in); err != nil {
		return errorResult("invalid parameters: %v", err), nil
	}
	if in.AgentID == "" {
		return errorResult("agent_id is required"), nil
	}
	if in.TaskDescription == "" {
		return errorResult("task_description is required"), nil
	}

	caller, ok := CallerFromContext(ctx)
	if !ok {
		return errorResult("could not determine calling session from context"), nil
	}
	if caller.ProjectID == nil {
		return errorResult("this session is not associated with a project"), nil
	}

	if _, err := t.deps.Agents.Get(in.AgentID); err != nil {
		available := t.deps.Agents.List("")
		ids := make([]string, 0, len(available))
		for _, a := range available {
			ids = append(ids, a.ID)
		}
		return errorResult("agent '%s' not found. Available agents: %s", in.AgentID, strings.Join(ids, ", ")), nil
	}

	now := time.Now()
	session := &models.Session{
		ID:          uuid.New(),
		AgentID:     in.AgentID,
		ProjectID:   caller.ProjectID,
		SessionType: models.SessionTypeSpecialist,
		Status:      models.StatusInitializing,
		Context: map[string]any{
			"task_description": in.TaskDescription,
			"description":      in.TaskDescription,
			"spawned_by":       "pm",
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	session.SyncKanbanStage()

	if err := t.deps.Store.CreateSession(ctx, session); err != nil {
		return nil, err
	}

	text := fmt.Sprintf(`✓ Specialist session created successfully!

Session ID: %s
Agent: %s
Task: %s
Status: %s

Instance is in %s status. Use contact_instance to send the first message and start execution.`,
		session.ID, in.AgentID, in.TaskDescription, session.Status, session.Status)
	return successResult(text), nil
}

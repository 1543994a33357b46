package sessiontools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// GetSessionInfoTool returns the caller's own session identity and
// context, the one tool whose target is always implicit.
type GetSessionInfoTool struct {
	deps Deps
}

// NewGetSessionInfoTool constructs the get_session_info tool.
func NewGetSessionInfoTool(deps Deps) *GetSessionInfoTool {
	return &GetSessionInfoTool{deps: deps}
}

func (t *GetSessionInfoTool) Name() string { return "get_session_info" }

func (t *GetSessionInfoTool) Description() string {
	return "Get information about the current session (your own identity and context)"
}

func (t *GetSessionInfoTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type": "object", "properties": {}}`)
}

func (t *GetSessionInfoTool) Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
	caller, ok := CallerFromContext(ctx)
	if !ok {
		return errorResult("could not determine calling session from context"), nil
	}

	session, err := t.deps.Store.GetSession(ctx, caller.SessionID)
	if err != nil {
		return errorResult("session %s not found", caller.SessionID), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Session Information\n\n")
	fmt.Fprintf(&b, "Session ID: %s\n", session.ID)
	fmt.Fprintf(&b, "Agent ID: %s\n", session.AgentID)
	fmt.Fprintf(&b, "Session Type: %s\n", session.SessionType)
	fmt.Fprintf(&b, "Status: %s\n", session.Status)
	if session.ProjectID != nil {
		fmt.Fprintf(&b, "Project ID: %s\n", *session.ProjectID)
	} else {
		fmt.Fprintf(&b, "Project ID: none\n")
	}
	fmt.Fprintf(&b, "Kanban Stage: %s\n", session.KanbanStage())
	if len(session.Context) > 0 {
		fmt.Fprintf(&b, "\nContext:\n")
		for k, v := range session.Context {
			fmt.Fprintf(&b, "  - %s: %v\n", k, v)
		}
	}
	if session.ErrorMessage != nil {
		fmt.Fprintf(&b, "\nError: %s\n", *session.ErrorMessage)
	}

	return successResult(b.String()), nil
}

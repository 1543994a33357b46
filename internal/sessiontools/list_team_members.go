package sessiontools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/haasonsaas/agentcore/pkg/models"
)

// ListTeamMembersTool returns the caller's project's team, resolved
// against the agent repository. PM-only.
type ListTeamMembersTool struct {
	deps Deps
}

// NewListTeamMembersTool constructs the list_team_members tool.
func NewListTeamMembersTool(deps Deps) *ListTeamMembersTool {
	return &ListTeamMembersTool{deps: deps}
}

func (t *ListTeamMembersTool) Name() string { return "list_team_members" }

func (t *ListTeamMembersTool) Description() string {
	return "View available team members assigned to the current project"
}

func (t *ListTeamMembersTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type": "object", "properties": {}}`)
}

func (t *ListTeamMembersTool) Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
	caller, ok := CallerFromContext(ctx)
	if !ok {
		return errorResult("could not determine calling session from context"), nil
	}
	if caller.ProjectID == nil {
		return errorResult("this session is not associated with a project"), nil
	}

	project, err := t.deps.Store.GetProject(ctx, *caller.ProjectID)
	if err != nil {
		if models.IsKind(err, models.KindNotFound) {
			return errorResult("project %s not found", *caller.ProjectID), nil
		}
		return nil, err
	}

	if len(project.TeamMemberIDs) == 0 {
		return successResult("No team members assigned to this project yet."), nil
	}

	var lines []string
	for _, agentID := range project.TeamMemberIDs {
		agent, err := t.deps.Agents.Get(agentID)
		if err != nil {
			continue
		}
		desc := agent.Description
		if desc == "" {
			desc = "No description"
		}
		lines = append(lines, fmt.Sprintf("• (%s) %s: %s", agent.ID, agent.Name, desc))
	}
	if len(lines) == 0 {
		return successResult("No valid team members found (agents may have been deleted)."), nil
	}

	text := fmt.Sprintf("Team Members (%d):\n\n%s", len(lines), strings.Join(lines, "\n"))
	return successResult(text), nil
}

package sessiontools

import (
	"context"
	"encoding/json"

	"github.com/haasonsaas/agentcore/pkg/models"
)

// ContactPMTool resolves the caller's project's latest PM session and
// delegates delivery to ContactInstanceTool.
type ContactPMTool struct {
	deps    Deps
	contact *ContactInstanceTool
}

// NewContactPMTool constructs the contact_pm tool.
func NewContactPMTool(deps Deps) *ContactPMTool {
	return &ContactPMTool{deps: deps, contact: NewContactInstanceTool(deps)}
}

func (t *ContactPMTool) Name() string { return "contact_pm" }

func (t *ContactPMTool) Description() string {
	return "Send a message to the Project Manager (PM) of your project"
}

func (t *ContactPMTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"message": {"type": "string", "description": "Message to send to the PM"}
		},
		"required": ["message"]
	}`)
}

type contactPMParams struct {
	Message string `json:"message"`
}

func (t *ContactPMTool) Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
	var in contactPMParams
	if err := json.Unmarshal(params, &in); err != nil {
		return errorResult("invalid parameters: %v", err), nil
	}
	if in.Message == "" {
		return errorResult("message is required"), nil
	}

	caller, ok := CallerFromContext(ctx)
	if !ok {
		return errorResult("could not determine calling session from context"), nil
	}
	if caller.ProjectID == nil {
		return errorResult("this session is not associated with a project"), nil
	}

	pm, err := t.deps.Store.LatestPMSession(ctx, *caller.ProjectID)
	if err != nil {
		if models.IsKind(err, models.KindNotFound) {
			return errorResult("no PM session found in project %s", *caller.ProjectID), nil
		}
		return nil, err
	}

	return t.contact.deliver(ctx, caller, pm.ID, in.Message)
}

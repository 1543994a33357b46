package sessiontools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/haasonsaas/agentcore/pkg/models"
)

// ContactInstanceTool delivers a message to another session in the
// caller's project, fire-and-forget: the target is woken to working and
// the message enqueued with sender attribution.
type ContactInstanceTool struct {
	deps Deps
}

// NewContactInstanceTool constructs the contact_instance tool.
func NewContactInstanceTool(deps Deps) *ContactInstanceTool {
	return &ContactInstanceTool{deps: deps}
}

func (t *ContactInstanceTool) Name() string { return "contact_instance" }

func (t *ContactInstanceTool) Description() string {
	return "Send a message to another instance to delegate work or request collaboration"
}

func (t *ContactInstanceTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"target_id": {"type": "string", "description": "UUID of the target instance"},
			"message": {"type": "string", "description": "Message to deliver"}
		},
		"required": ["target_id", "message"]
	}`)
}

type contactInstanceParams struct {
	TargetID string `json:"target_id"`
	Message  string `json:"message"`
}

func (t *ContactInstanceTool) Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
	var in contactInstanceParams
	if err := json.Unmarshal(params, &in); err != nil {
		return errorResult("invalid parameters: %v", err), nil
	}
	if in.TargetID == "" {
		return errorResult("target_id is required"), nil
	}
	if in.Message == "" {
		return errorResult("message is required"), nil
	}
	targetID, err := uuid.Parse(in.TargetID)
	if err != nil {
		return errorResult("invalid target_id format: %v", err), nil
	}

	caller, ok := CallerFromContext(ctx)
	if !ok {
		return errorResult("could not determine calling session from context"), nil
	}

	return t.deliver(ctx, caller, targetID, in.Message)
}

// deliver is shared by contact_instance and contact_pm once both have
// resolved a concrete target session id.
func (t *ContactInstanceTool) deliver(ctx context.Context, caller Caller, targetID uuid.UUID, message string) (*ToolResult, error) {
	target, err := t.deps.Store.GetSession(ctx, targetID)
	if err != nil {
		if models.IsKind(err, models.KindNotFound) {
			return errorResult("instance %s not found", targetID), nil
		}
		return nil, err
	}
	if target.IsDeleted() {
		return errorResult("instance %s not found", targetID), nil
	}

	if caller.ProjectID == nil || target.ProjectID == nil || *caller.ProjectID != *target.ProjectID {
		return errorResult("target instance %s is not in the same project", targetID), nil
	}

	if err := transitionToWorking(ctx, t.deps, target); err != nil {
		return nil, err
	}

	senderName := caller.AgentName
	if senderName == "" {
		senderName = models.DisplayName(caller.AgentID)
	}
	sender := &models.MessageSender{
		Name:      &senderName,
		SessionID: &caller.SessionID,
		AgentID:   &caller.AgentID,
	}
	if err := t.deps.Executor.Enqueue(ctx, targetID, message, sender); err != nil {
		return nil, err
	}

	preview := message
	if len(preview) > 100 {
		preview = preview[:100] + "..."
	}
	return successResult(fmt.Sprintf("✓ Message dispatched to instance %s\n\nFrom: %s\nMessage: %s", targetID, senderName, preview)), nil
}

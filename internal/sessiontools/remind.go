package sessiontools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/haasonsaas/agentcore/pkg/models"
)

const (
	minDelaySeconds = 1
	maxDelaySeconds = 86400
)

// RemindTool schedules a one-shot delivery of message back to the calling
// session after delay_seconds, waking it to working. Each call schedules
// its own cron entry on a shared *cron.Cron and removes that entry as
// soon as it has fired once — there is no recurring reminder concept.
type RemindTool struct {
	deps Deps
	cron *cron.Cron
}

// NewRemindTool constructs the remind tool and starts its private
// scheduler. Call Stop on shutdown to cancel any pending reminders.
func NewRemindTool(deps Deps) *RemindTool {
	c := cron.New()
	c.Start()
	return &RemindTool{deps: deps, cron: c}
}

// Stop cancels the scheduler and any reminders not yet fired.
func (t *RemindTool) Stop() {
	<-t.cron.Stop().Done()
}

func (t *RemindTool) Name() string { return "remind" }

func (t *RemindTool) Description() string {
	return "Schedule a reminder message to be sent back to you after a delay"
}

func (t *RemindTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"delay_seconds": {"type": "integer", "description": "Seconds to wait before the reminder (1-86400)"},
			"message": {"type": "string", "description": "The reminder message to send back to yourself"}
		},
		"required": ["delay_seconds", "message"]
	}`)
}

type remindParams struct {
	DelaySeconds int    `json:"delay_seconds"`
	Message      string `json:"message"`
}

func (t *RemindTool) Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
	var in remindParams
	if err := json.Unmarshal(params, &in); err != nil {
		return errorResult("invalid parameters: %v", err), nil
	}
	if in.Message == "" {
		return errorResult("message is required"), nil
	}
	if in.DelaySeconds < minDelaySeconds {
		return errorResult("delay_seconds must be at least 1 second"), nil
	}
	if in.DelaySeconds > maxDelaySeconds {
		return errorResult("delay_seconds cannot exceed 24 hours (86400 seconds)"), nil
	}

	caller, ok := CallerFromContext(ctx)
	if !ok {
		return errorResult("could not determine calling session from context"), nil
	}
	if _, err := t.deps.Store.GetSession(ctx, caller.SessionID); err != nil {
		return errorResult("session %s not found", caller.SessionID), nil
	}

	sessionID := caller.SessionID
	message := in.Message
	var entryID cron.EntryID
	entryID = t.cron.Schedule(cron.Every(time.Duration(in.DelaySeconds)*time.Second), cron.FuncJob(func() {
		defer t.cron.Remove(entryID)

		bg := context.Background()
		session, err := t.deps.Store.GetSession(bg, sessionID)
		if err != nil {
			return
		}
		if err := transitionToWorking(bg, t.deps, session); err != nil {
			return
		}
		name := "System Reminder"
		_ = t.deps.Executor.Enqueue(bg, sessionID, message, &models.MessageSender{Name: &name})
	}))

	return successResult(fmt.Sprintf("⏰ Reminder scheduled for %ds from now\n\nMessage: %s", in.DelaySeconds, in.Message)), nil
}

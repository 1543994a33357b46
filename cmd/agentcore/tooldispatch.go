package main

import (
	"context"
	"encoding/json"

	"github.com/haasonsaas/agentcore/internal/sessionbuilder"
	"github.com/haasonsaas/agentcore/internal/sessioncore"
	"github.com/haasonsaas/agentcore/internal/sessionexec"
	"github.com/haasonsaas/agentcore/internal/sessiontools"
	"github.com/haasonsaas/agentcore/pkg/models"
)

// toolDispatcher implements sessionexec.ToolDispatcher over the live
// []sessiontools.Tool registry built at startup. It looks a call up by
// name, applies the calling session's PreToolUse hooks (the PM
// project_id injection, per §4.7/§9) to the call's parameters, and
// injects sessiontools.WithCaller before Execute so the in-process tools
// can read who is calling — the three things §4.7's dispatch step needs
// that the executor itself, by design, knows nothing about.
type toolDispatcher struct {
	store sessioncore.Store
	tools map[string]sessiontools.Tool
}

func newToolDispatcher(store sessioncore.Store, tools []sessiontools.Tool) *toolDispatcher {
	byName := make(map[string]sessiontools.Tool, len(tools))
	for _, t := range tools {
		byName[t.Name()] = t
	}
	return &toolDispatcher{store: store, tools: byName}
}

func (d *toolDispatcher) Dispatch(ctx context.Context, req sessionexec.ToolCallRequest) (sessionexec.ToolCallResult, error) {
	tool, ok := d.tools[req.ToolName]
	if !ok {
		return sessionexec.ToolCallResult{Content: "unknown tool: " + req.ToolName, IsError: true}, nil
	}

	session, err := d.store.GetSession(ctx, req.SessionID)
	if err != nil {
		return sessionexec.ToolCallResult{}, err
	}

	params := d.applyHooks(session, req.ToolName, req.Params)

	caller := sessiontools.Caller{
		SessionID: req.SessionID,
		ProjectID: req.ProjectID,
		AgentID:   req.AgentID,
		AgentName: req.AgentName,
	}
	result, err := tool.Execute(sessiontools.WithCaller(ctx, caller), params)
	if err != nil {
		return sessionexec.ToolCallResult{}, err
	}
	return sessionexec.ToolCallResult{Content: result.Content, IsError: result.IsError}, nil
}

// applyHooks mutates params through every PreToolUse hook registered for
// session's session type whose name pattern matches toolName — in
// practice just the PM project_id injection, matched against two of the
// pm_management tool-server's tools (contact_instance,
// spawn_instance). A hook that fails to apply (unparsable params) is
// skipped rather than failing the whole dispatch.
func (d *toolDispatcher) applyHooks(session *models.Session, toolName string, params json.RawMessage) json.RawMessage {
	for _, hook := range sessionbuilder.PreToolUseHooks(session.SessionType) {
		if !hook.Match.MatchString(toolName) {
			continue
		}
		var args map[string]any
		if err := json.Unmarshal(params, &args); err != nil {
			continue
		}
		hook.Mutate(args, session)
		mutated, err := json.Marshal(args)
		if err != nil {
			continue
		}
		params = mutated
	}
	return params
}

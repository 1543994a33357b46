package sessiontools

import (
	"context"

	"github.com/google/uuid"
)

// Caller identifies whichever session is currently invoking a tool. The
// executor injects it into the tool-call context before Execute and it is
// cleared once Execute returns — the same thread-local shape the original
// MCP servers read via get_current_session_info, reexpressed as a typed
// context value instead of a module-global.
type Caller struct {
	SessionID uuid.UUID
	ProjectID *uuid.UUID
	AgentID   string
	AgentName string
}

type callerKey struct{}

// WithCaller attaches the calling session's identity to ctx.
func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

// CallerFromContext retrieves the calling session's identity, if any tool
// invocation injected one.
func CallerFromContext(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(callerKey{}).(Caller)
	return c, ok
}

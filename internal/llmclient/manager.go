package llmclient

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/agentcore/internal/sessionbuilder"
	"github.com/haasonsaas/agentcore/pkg/models"
)

// connectTimeout bounds how long a single connect attempt (including the
// one-shot resume retry) may take, per §4.3.
const connectTimeout = 30 * time.Second

// resumeFailureSubstrings are matched, case-insensitively, against a
// connection error's message to decide whether a resume attempt should be
// retried once without the resume token, mirroring the source client
// manager's _is_resume_failure check.
var resumeFailureSubstrings = []string{
	"no conversation found",
	"conversation not found",
	"exit code 1",
}

// isResumeFailure reports whether err looks like a failed attempt to
// resume a prior upstream conversation, as opposed to any other
// connection failure (auth, network, rate limit) that a blind retry
// would not fix.
func isResumeFailure(err error) bool {
	if err == nil {
		return false
	}
	lower := strings.ToLower(err.Error())
	for _, s := range resumeFailureSubstrings {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// Factory constructs a live LLMClient from a ClientConfig. Production code
// uses NewAnthropicStreamClient; tests substitute a fake.
type Factory func(cfg *sessionbuilder.ClientConfig) LLMClient

// Manager owns at most one live LLMClient per session, handling connect
// (with resume-failure fallback), lookup, removal, and shutdown.
// Generalizes the source ClaudeClientManager's _clients/_claude_sessions
// table into a single sync.Map keyed by session id.
type Manager struct {
	factory Factory
	builder *sessionbuilder.Builder
	metrics managerMetrics

	clients sync.Map // uuid.UUID -> LLMClient
}

// NewManager constructs a Manager that builds ClientConfigs via builder
// and clients via factory.
func NewManager(builder *sessionbuilder.Builder, factory Factory) *Manager {
	return &Manager{factory: factory, builder: builder, metrics: newManagerMetrics()}
}

// CreateFromSession builds a ClientConfig for session and connects a
// client for it, retrying exactly once without the resume token if the
// first connect attempt fails in a way that looks like a stale/invalid
// resume reference. The resulting client replaces any prior client for
// the session.
func (m *Manager) CreateFromSession(ctx context.Context, in sessionbuilder.Input) (LLMClient, error) {
	cfg, err := m.builder.Build(in)
	if err != nil {
		return nil, err
	}

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client := m.factory(cfg)
	if err := client.Connect(connectCtx); err != nil {
		if cfg.ResumeToken != nil && isResumeFailure(err) {
			retryCfg := *cfg
			retryCfg.ResumeToken = nil
			client = m.factory(&retryCfg)
			if retryErr := client.Connect(connectCtx); retryErr != nil {
				m.metrics.recordConnectFailure(ctx, "resume_retry")
				return nil, models.NewError(models.KindClientConnection, "connect failed after resume retry", retryErr)
			}
		} else {
			m.metrics.recordConnectFailure(ctx, "initial")
			return nil, models.NewError(models.KindClientConnection, "connect failed", err)
		}
	}

	sessionID, parseErr := uuid.Parse(in.SessionID)
	if parseErr != nil {
		return nil, models.NewError(models.KindValidation, "invalid session id", parseErr)
	}

	if old, loaded := m.clients.LoadOrStore(sessionID, client); loaded {
		if oldClient, ok := old.(LLMClient); ok {
			_ = oldClient.Disconnect(ctx)
		}
		m.clients.Store(sessionID, client)
	}
	return client, nil
}

// Get returns the live client for sessionID, or models.ErrClientNotFound.
func (m *Manager) Get(sessionID uuid.UUID) (LLMClient, error) {
	v, ok := m.clients.Load(sessionID)
	if !ok {
		return nil, models.ErrClientNotFound.WithContext("session_id", sessionID)
	}
	return v.(LLMClient), nil
}

// Remove disconnects and forgets the client for sessionID. It is
// best-effort: a disconnect error is returned but the client is forgotten
// regardless.
func (m *Manager) Remove(ctx context.Context, sessionID uuid.UUID) error {
	v, ok := m.clients.LoadAndDelete(sessionID)
	if !ok {
		return nil
	}
	return v.(LLMClient).Disconnect(ctx)
}

// Shutdown disconnects every live client. Individual disconnect failures
// are collected but do not stop the sweep, mirroring the source manager's
// shutdown behavior of logging per-client failures without raising.
func (m *Manager) Shutdown(ctx context.Context) []error {
	var errs []error
	var ids []uuid.UUID
	m.clients.Range(func(key, _ any) bool {
		ids = append(ids, key.(uuid.UUID))
		return true
	})
	for _, id := range ids {
		if err := m.Remove(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

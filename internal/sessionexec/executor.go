// Package sessionexec is the session executor: the per-session FIFO
// queue, lock, processor goroutine, and text-buffer table that drives one
// session's LLM turns to completion, persists the results, and broadcasts
// domain events to SSE subscribers. Generalizes
// internal/gateway/broadcast.go's goroutine-per-unit/panic-recover shape
// and internal/sessions/write_lock.go's per-session sync.Map keying into
// one registry that owns both concerns per spec.md §4.4.
package sessionexec

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/agentcore/internal/eventconv"
	"github.com/haasonsaas/agentcore/internal/llmclient"
	"github.com/haasonsaas/agentcore/internal/sessioncore"
	"github.com/haasonsaas/agentcore/internal/sessionbuilder"
	"github.com/haasonsaas/agentcore/internal/ssehub"
	"github.com/haasonsaas/agentcore/pkg/models"
)

// receiveTimeout bounds how long the processor waits for the next stream
// event before treating the session as stalled, per §4.4 step 7.
const receiveTimeout = 10 * time.Minute

// QueuedMessage is one pending turn awaiting processing, carrying sender
// attribution when it originates from another session rather than a user.
type QueuedMessage struct {
	Content         string
	SenderName      *string
	SenderSessionID *uuid.UUID
	SenderAgentID   *string
}

// Sender attributes an enqueued message to another session, for the
// cross-session tools (contact_instance, contact_pm, remind) — a plain
// user message passes a nil Sender to Enqueue. Aliased to
// models.MessageSender, the dependency-free form, so packages that only
// need to build a Sender (sessiontools, via its own Enqueuer interface)
// don't need to import this package.
type Sender = models.MessageSender

// pendingToolCall is one tool_use block observed during the current turn,
// held until the turn's message_stop reveals whether the model is done
// (stop_reason "end_turn") or expects tool results back (stop_reason
// "tool_use").
type pendingToolCall struct {
	id    string
	name  string
	input json.RawMessage
}

// ToolCallRequest is everything a ToolDispatcher needs to run one tool
// call on behalf of a session, carrying the caller identity inter-session
// tools read via sessiontools.CallerFromContext.
type ToolCallRequest struct {
	SessionID uuid.UUID
	ProjectID *uuid.UUID
	AgentID   string
	AgentName string
	ToolName  string
	Params    json.RawMessage
}

// ToolCallResult is a dispatched tool call's outcome, folded back into a
// tool_result content block on the next provider turn.
type ToolCallResult struct {
	Content string
	IsError bool
}

// ToolDispatcher looks up and runs one named tool call. Defined here
// rather than referencing sessiontools.Tool directly so sessiontools can
// depend on this package (via its own Enqueuer interface) without a
// cycle; the concrete implementation, in cmd/agentcore, wraps a
// []sessiontools.Tool registry and injects sessiontools.WithCaller before
// Execute.
type ToolDispatcher interface {
	Dispatch(ctx context.Context, req ToolCallRequest) (ToolCallResult, error)
}

// sessionState is the per-session in-memory, non-persistent state the
// Session Store deliberately does not own: the queue, the processing
// flag, the text-buffer table, and any tool calls pending a result.
type sessionState struct {
	mu          sync.Mutex
	queue       []QueuedMessage
	processing  bool
	textBuffers map[int]*strings.Builder
	pending     []pendingToolCall
	cancel      context.CancelFunc
	turnStart   time.Time
}

// PathResolver resolves the working directory and (for project-scoped
// sessions) the project path a session's client should run in. Kept as
// an interface seam so tests can substitute fixed paths without a real
// project tree.
type PathResolver interface {
	WorkingDir(session *models.Session) (string, error)
	ProjectPath(ctx context.Context, session *models.Session) (string, error)
}

// Executor owns the registry of per-session processors.
type Executor struct {
	store      sessioncore.Store
	locker     sessioncore.Locker
	clients    *llmclient.Manager
	hub        *ssehub.Hub
	paths      PathResolver
	logger     *slog.Logger
	metrics    execMetrics
	dispatcher ToolDispatcher

	states sync.Map // uuid.UUID -> *sessionState
}

// New constructs an Executor.
func New(store sessioncore.Store, locker sessioncore.Locker, clients *llmclient.Manager, hub *ssehub.Hub, paths PathResolver, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		store:   store,
		locker:  locker,
		clients: clients,
		hub:     hub,
		paths:   paths,
		logger:  logger.With("component", "sessionexec"),
		metrics: newExecMetrics(),
	}
}

// SetDispatcher wires tool-call dispatch into the executor. Registered
// after construction (cmd/agentcore builds the tool registry from the
// executor itself as its sessiontools.Enqueuer), a turn that ends with
// stop_reason "tool_use" before this is ever called simply completes
// without a continuation, same as before tool dispatch existed.
func (e *Executor) SetDispatcher(dispatcher ToolDispatcher) {
	e.dispatcher = dispatcher
}

func (e *Executor) state(sessionID uuid.UUID) *sessionState {
	v, _ := e.states.LoadOrStore(sessionID, &sessionState{textBuffers: make(map[int]*strings.Builder)})
	return v.(*sessionState)
}

// Enqueue persists content as a message attributed to sender (nil for a
// plain user message), appends it to the session's queue, and starts a
// processor if none is currently running. It never waits for execution.
func (e *Executor) Enqueue(ctx context.Context, sessionID uuid.UUID, content string, sender *Sender) error {
	session, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.IsDeleted() {
		return models.ErrNotFound.WithContext("session_id", sessionID)
	}

	msg := &models.Message{
		ID:        uuid.New(),
		SessionID: sessionID,
		Role:      models.MessageRoleUser,
		Content:   content,
		CreatedAt: timeNow(),
	}
	qm := QueuedMessage{Content: content}
	if sender != nil {
		msg.AgentName = sender.Name
		msg.FromInstanceID = sender.SessionID
		msg.AgentID = sender.AgentID
		qm.SenderName = sender.Name
		qm.SenderSessionID = sender.SessionID
		qm.SenderAgentID = sender.AgentID
	}
	if err := e.store.AppendMessage(ctx, msg); err != nil {
		return err
	}

	state := e.state(sessionID)
	state.mu.Lock()
	state.queue = append(state.queue, qm)
	start := !state.processing
	if start {
		state.processing = true
	}
	queueSize := len(state.queue)
	state.mu.Unlock()

	e.hub.Broadcast(sessionID, ssehub.Event{Type: "user_message", Data: msg})
	e.logger.Debug("enqueued message", "session_id", sessionID, "queue_size", queueSize)
	e.metrics.recordQueued(ctx)

	if start {
		go e.run(sessionID)
	}
	return nil
}

// run drains the session's queue one message at a time until it is
// empty, then releases the processing flag. Exactly one run goroutine is
// ever active per session: Enqueue only starts one when it flips
// processing from false to true.
func (e *Executor) run(sessionID uuid.UUID) {
	state := e.state(sessionID)
	for {
		state.mu.Lock()
		if len(state.queue) == 0 {
			state.processing = false
			state.mu.Unlock()
			return
		}
		qm := state.queue[0]
		state.queue = state.queue[1:]
		state.mu.Unlock()

		e.processOne(sessionID, qm, state)
	}
}

// processOne runs one full turn: connect-or-reuse a client, transition to
// working, query, drain the stream, and settle into idle or error.
func (e *Executor) processOne(sessionID uuid.UUID, qm QueuedMessage, state *sessionState) {
	ctx, cancel := context.WithCancel(context.Background())
	state.mu.Lock()
	state.cancel = cancel
	state.turnStart = time.Now()
	state.mu.Unlock()
	defer cancel()
	defer e.metrics.recordDequeued(ctx)

	session, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		e.logger.Warn("processor: session vanished", "session_id", sessionID, "error", err)
		return
	}

	client, err := e.clients.Get(sessionID)
	if err != nil {
		client, err = e.connect(ctx, session)
		if err != nil {
			e.failSession(ctx, session, state, models.NewError(models.KindClientConnection, "connect failed", err))
			return
		}
	}

	if err := e.transition(ctx, session, models.StatusWorking); err != nil {
		e.logger.Warn("processor: working transition failed", "session_id", sessionID, "error", err)
	}
	e.hub.Broadcast(sessionID, ssehub.Event{Type: "user_message", Data: qm})

	if err := client.Query(ctx, qm.Content); err != nil {
		e.failSession(ctx, session, state, models.NewError(models.KindClientExecution, "query failed", err))
		return
	}

	// drain returns true when the turn ended in a tool_use continuation
	// (a fresh stream was started by dispatching pending tool calls) and
	// must be drained again; it returns false once the turn is genuinely
	// over (completion, error, or timeout).
	for e.drain(ctx, session, client, state) {
	}
}

func (e *Executor) connect(ctx context.Context, session *models.Session) (llmclient.LLMClient, error) {
	workingDir, err := e.paths.WorkingDir(session)
	if err != nil {
		return nil, err
	}
	projectPath := ""
	if session.ProjectID != nil {
		projectPath, err = e.paths.ProjectPath(ctx, session)
		if err != nil {
			return nil, err
		}
	}
	in := sessionbuilder.Input{
		SessionID:   session.ID.String(),
		SessionType: session.SessionType,
		WorkingDir:  workingDir,
		ProjectPath: projectPath,
		AgentID:     session.AgentID,
		ResumeToken: session.ExternalSessionID,
		Session:     session,
	}
	if session.ProjectID != nil {
		in.ProjectID = session.ProjectID.String()
	}
	return e.clients.CreateFromSession(ctx, in)
}

// eventOutcome reports what handleDomainEvent's caller should do next.
type eventOutcome int

const (
	// eventContinue keeps reading the current stream.
	eventContinue eventOutcome = iota
	// eventDone ends the turn entirely: drain and processOne return.
	eventDone
	// eventToolContinuation means the stream just ended with stop_reason
	// tool_use, pending tool calls were dispatched, and the client has
	// started a fresh stream that must be drained in turn.
	eventToolContinuation
)

// drain iterates the client's stream, converting raw events, updating
// text buffers, and broadcasting to subscribers, until message_complete,
// a stream error, or receiveTimeout silence. It returns true when the
// turn ended via a tool_use continuation and the caller must call drain
// again to read the follow-up stream; false once the turn is genuinely
// over.
func (e *Executor) drain(ctx context.Context, session *models.Session, client llmclient.LLMClient, state *sessionState) bool {
	events, errs := client.ReceiveMessages(ctx)
	conv := eventconv.NewConverter()

	idle := time.NewTimer(receiveTimeout)
	defer idle.Stop()

	for {
		select {
		case raw, ok := <-events:
			if !ok {
				return false
			}
			domainEvents, convErr := conv.Convert(raw)
			if convErr != nil {
				e.failSession(ctx, session, state, models.NewError(models.KindClientExecution, "event conversion failed", convErr))
				return false
			}
			if !idle.Stop() {
				<-idle.C
			}
			idle.Reset(receiveTimeout)

			for _, de := range domainEvents {
				switch e.handleDomainEvent(ctx, session, client, state, de) {
				case eventDone:
					return false
				case eventToolContinuation:
					return true
				}
			}

		case err := <-errs:
			if err != nil {
				e.failSession(ctx, session, state, models.NewError(models.KindClientExecution, "stream error", err))
				return false
			}

		case <-idle.C:
			e.failSession(ctx, session, state, models.NewError(models.KindTimeout, "no stream activity within receive timeout", nil))
			return false

		case <-ctx.Done():
			return false
		}
	}
}

// handleDomainEvent applies one converted event to the text-buffer table
// and broadcasts it, reporting what drain should do next.
func (e *Executor) handleDomainEvent(ctx context.Context, session *models.Session, client llmclient.LLMClient, state *sessionState, de eventconv.Event) eventOutcome {
	switch de.Type {
	case eventconv.TypeTurnStart:
		state.mu.Lock()
		state.textBuffers = make(map[int]*strings.Builder)
		state.pending = nil
		state.mu.Unlock()

	case eventconv.TypeText:
		state.mu.Lock()
		buf, ok := state.textBuffers[de.Index]
		if !ok {
			buf = &strings.Builder{}
			state.textBuffers[de.Index] = buf
		}
		buf.WriteString(de.Text)
		state.mu.Unlock()
		e.hub.Broadcast(session.ID, ssehub.Event{Type: "stream_delta", Data: map[string]any{"index": de.Index, "text": de.Text}})

	case eventconv.TypeThinking:
		e.hub.Broadcast(session.ID, ssehub.Event{Type: "thinking_delta", Data: map[string]any{"index": de.Index, "text": de.Thinking}})

	case eventconv.TypeThinkingEnd:
		e.hub.Broadcast(session.ID, ssehub.Event{Type: "thinking_end", Data: map[string]any{"index": de.Index}})

	case eventconv.TypeToolCall:
		e.persistToolCall(ctx, session, de)
		state.mu.Lock()
		state.pending = append(state.pending, pendingToolCall{id: de.ToolCallID, name: de.ToolCallName, input: de.ToolCallInput})
		state.mu.Unlock()
		e.hub.Broadcast(session.ID, ssehub.Event{Type: "tool_call", Data: map[string]any{"index": de.Index, "name": de.ToolCallName, "id": de.ToolCallID}})

	case eventconv.TypeMessageComplete:
		if de.StopReason == "tool_use" && e.dispatcher != nil {
			if e.continueWithTools(ctx, session, client, state, de) {
				return eventToolContinuation
			}
			return eventDone
		}
		e.completeTurn(ctx, session, state, de)
		return eventDone

	case eventconv.TypeError:
		e.failSession(ctx, session, state, models.NewError(models.KindClientExecution, "provider stream error", de.Err))
		return eventDone
	}
	return eventContinue
}

// continueWithTools dispatches every tool call pending for the turn that
// just ended with stop_reason "tool_use", persists and broadcasts each
// result, and resubmits them to client so the conversation continues.
// Returns false (caller should treat the turn as over, via failSession
// already having run) only if the resubmission itself failed.
func (e *Executor) continueWithTools(ctx context.Context, session *models.Session, client llmclient.LLMClient, state *sessionState, de eventconv.Event) bool {
	state.mu.Lock()
	pending := state.pending
	state.pending = nil
	state.mu.Unlock()

	assistantText := e.drainAssistantText(ctx, session, state, de, true)

	records := make([]llmclient.ToolCallRecord, 0, len(pending))
	for _, call := range pending {
		result := e.dispatchToolCall(ctx, session, call)
		e.persistToolResult(ctx, session, call, result)
		e.hub.Broadcast(session.ID, ssehub.Event{Type: "tool_result", Data: map[string]any{"id": call.id, "name": call.name, "is_error": result.IsError}})
		records = append(records, llmclient.ToolCallRecord{
			ID:      call.id,
			Name:    call.name,
			Input:   call.input,
			Result:  result.Content,
			IsError: result.IsError,
		})
	}

	if err := client.ContinueWithToolResults(ctx, assistantText, records); err != nil {
		e.failSession(ctx, session, state, models.NewError(models.KindClientExecution, "tool result continuation failed", err))
		return false
	}
	return true
}

// dispatchToolCall runs one pending tool call through the executor's
// ToolDispatcher, translating a dispatch error into an error
// ToolCallResult rather than failing the whole session — a single bad
// tool call should not abort the turn.
func (e *Executor) dispatchToolCall(ctx context.Context, session *models.Session, call pendingToolCall) ToolCallResult {
	req := ToolCallRequest{
		SessionID: session.ID,
		ProjectID: session.ProjectID,
		AgentID:   session.AgentID,
		ToolName:  call.name,
		Params:    call.input,
	}
	result, err := e.dispatcher.Dispatch(ctx, req)
	if err != nil {
		return ToolCallResult{Content: err.Error(), IsError: true}
	}
	return result
}

// persistToolResult records a dispatched tool call's outcome, linked back
// to the originating tool_use block via ToolUseID.
func (e *Executor) persistToolResult(ctx context.Context, session *models.Session, call pendingToolCall, result ToolCallResult) {
	msg := &models.Message{
		ID:        uuid.New(),
		SessionID: session.ID,
		Role:      models.MessageRoleToolResult,
		Content:   result.Content,
		ToolUseID: &call.id,
		CreatedAt: timeNow(),
	}
	if err := e.store.AppendMessage(ctx, msg); err != nil {
		e.logger.Warn("persist tool result failed", "session_id", session.ID, "error", err)
	}
}

// persistToolCall records a completed tool call. It runs at
// content_block_stop time (via TypeToolCall), by which point
// ToolCallInput is the fully accumulated, non-partial JSON — never from
// the incremental input_json_delta events, whose JSON may still be
// partial.
func (e *Executor) persistToolCall(ctx context.Context, session *models.Session, de eventconv.Event) {
	msg := &models.Message{
		ID:        uuid.New(),
		SessionID: session.ID,
		Role:      models.MessageRoleToolCall,
		Content:   string(de.ToolCallInput),
		ToolUseID: &de.ToolCallID,
		Sequence:  de.Index,
		CreatedAt: timeNow(),
	}
	if err := e.store.AppendMessage(ctx, msg); err != nil {
		e.logger.Warn("persist tool call failed", "session_id", session.ID, "error", err)
	}
}

// drainAssistantText swaps out the turn's text-buffer table, persists
// each non-empty buffer as an assistant message in index order (broadcast
// when requested), and returns the buffers' text joined by newlines — the
// assistant turn's reconstructed content, needed both to finish a normal
// turn and to rebuild the assistant message a tool_use continuation must
// echo back to the provider.
func (e *Executor) drainAssistantText(ctx context.Context, session *models.Session, state *sessionState, de eventconv.Event, broadcast bool) string {
	state.mu.Lock()
	buffers := state.textBuffers
	state.textBuffers = make(map[int]*strings.Builder)
	state.mu.Unlock()

	indices := make([]int, 0, len(buffers))
	for index := range buffers {
		indices = append(indices, index)
	}
	sort.Ints(indices)

	var combined strings.Builder
	for _, index := range indices {
		buf := buffers[index]
		if buf.Len() == 0 {
			continue
		}
		if combined.Len() > 0 {
			combined.WriteString("\n")
		}
		combined.WriteString(buf.String())

		msg := &models.Message{
			ID:        uuid.New(),
			SessionID: session.ID,
			Role:      models.MessageRoleAssistant,
			Content:   buf.String(),
			Sequence:  index,
			CreatedAt: timeNow(),
			Usage:     &models.TokenUsage{InputTokens: de.InputTokens, OutputTokens: de.OutputTokens},
		}
		if err := e.store.AppendMessage(ctx, msg); err != nil {
			e.logger.Warn("persist assistant message failed", "session_id", session.ID, "error", err)
			continue
		}
		if broadcast {
			e.hub.Broadcast(session.ID, ssehub.Event{Type: "assistant_message", Data: msg})
		}
	}
	return combined.String()
}

func (e *Executor) completeTurn(ctx context.Context, session *models.Session, state *sessionState, de eventconv.Event) {
	e.drainAssistantText(ctx, session, state, de, true)

	if client, err := e.clients.Get(session.ID); err == nil {
		if ext := client.ExternalSessionID(); ext != "" {
			session.ExternalSessionID = &ext
		}
	}

	if err := e.transition(ctx, session, models.StatusIdle); err != nil {
		e.logger.Warn("idle transition failed", "session_id", session.ID, "error", err)
	}
	e.hub.Broadcast(session.ID, ssehub.Event{Type: "message_complete", Data: map[string]any{"stop_reason": de.StopReason}})
	e.metrics.recordTurn(ctx, "completed", elapsedMS(state))
}

// elapsedMS returns the milliseconds since processOne recorded the turn's
// start time, reading it under the session's own mutex.
func elapsedMS(state *sessionState) float64 {
	state.mu.Lock()
	start := state.turnStart
	state.mu.Unlock()
	if start.IsZero() {
		return 0
	}
	return float64(time.Since(start).Microseconds()) / 1000
}

// transition moves session to status under the store's per-session lock,
// persisting the kanban projection and clearing error_message when the
// target status clears it.
func (e *Executor) transition(ctx context.Context, session *models.Session, status models.SessionStatus) error {
	release, err := e.locker.Lock(ctx, session.ID)
	if err != nil {
		return err
	}
	defer release()

	if session.Status != status && !models.CanTransition(session.Status, status) {
		return models.ErrInvalidTransition.WithContext("from", session.Status).WithContext("to", status)
	}
	session.Status = status
	if models.ClearsErrorMessage(status) {
		session.ErrorMessage = nil
	}
	session.SyncKanbanStage()
	session.UpdatedAt = timeNow()
	return e.store.UpdateSession(ctx, session)
}

// failSession transitions session to error with message, broadcasts an
// error SSE, and evicts the client. The queue is intentionally left
// untouched, per §4.4 step 7.
func (e *Executor) failSession(ctx context.Context, session *models.Session, state *sessionState, cause error) {
	msg := cause.Error()
	release, err := e.locker.Lock(ctx, session.ID)
	if err == nil {
		if models.CanTransition(session.Status, models.StatusError) {
			session.Status = models.StatusError
			session.ErrorMessage = &msg
			session.SyncKanbanStage()
			session.UpdatedAt = timeNow()
			_ = e.store.UpdateSession(ctx, session)
		}
		release()
	}
	e.hub.Broadcast(session.ID, ssehub.Event{Type: "error", Data: map[string]any{"message": msg}})
	if err := e.clients.Remove(ctx, session.ID); err != nil {
		e.logger.Warn("client remove after failure failed", "session_id", session.ID, "error", err)
	}
	e.metrics.recordTurn(ctx, "failed", elapsedMS(state))
}

// Interrupt stops the session's in-flight turn: the client is told to
// interrupt, pending queue items are discarded, the session transitions
// to interrupted, and the client is evicted — the underlying subprocess
// is known to enter a broken state after interrupt, per §4.4 step 8.
func (e *Executor) Interrupt(ctx context.Context, sessionID uuid.UUID) error {
	if client, err := e.clients.Get(sessionID); err == nil {
		_ = client.Interrupt(ctx)
	}

	state := e.state(sessionID)
	state.mu.Lock()
	state.queue = nil
	cancel := state.cancel
	state.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	session, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := e.transition(ctx, session, models.StatusInterrupted); err != nil {
		return err
	}
	return e.clients.Remove(ctx, sessionID)
}

// Recreate erases the session's history and resume identity and returns
// it to idle, draining the queue and cancelling any running processor,
// per §4.1/§4.4's recreate semantics.
func (e *Executor) Recreate(ctx context.Context, sessionID uuid.UUID) error {
	state := e.state(sessionID)
	state.mu.Lock()
	state.queue = nil
	cancel := state.cancel
	state.textBuffers = make(map[int]*strings.Builder)
	state.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if err := e.clients.Remove(ctx, sessionID); err != nil {
		e.logger.Warn("client remove on recreate failed", "session_id", sessionID, "error", err)
	}

	release, err := e.locker.Lock(ctx, sessionID)
	if err != nil {
		return err
	}
	defer release()

	if err := e.store.DeleteMessages(ctx, sessionID); err != nil {
		return err
	}
	session, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	session.ExternalSessionID = nil
	session.ErrorMessage = nil
	session.Status = models.StatusIdle
	session.SyncKanbanStage()
	session.UpdatedAt = timeNow()
	return e.store.UpdateSession(ctx, session)
}

// QueueSize reports how many messages are currently pending for
// sessionID, for the enqueue endpoint's {queue_size} response field.
func (e *Executor) QueueSize(sessionID uuid.UUID) int {
	state := e.state(sessionID)
	state.mu.Lock()
	defer state.mu.Unlock()
	return len(state.queue)
}

// Shutdown cancels every active processor's context and disconnects
// every client. SSE subscribers observe a connection close, not a
// message_complete, per §5's shutdown behavior.
func (e *Executor) Shutdown(ctx context.Context) {
	e.states.Range(func(_, v any) bool {
		st := v.(*sessionState)
		st.mu.Lock()
		if st.cancel != nil {
			st.cancel()
		}
		st.mu.Unlock()
		return true
	})
	e.clients.Shutdown(ctx)
}

func timeNow() time.Time { return time.Now() }

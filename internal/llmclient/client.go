// Package llmclient wraps the Anthropic streaming SDK into the
// connect/query/receive/interrupt/disconnect lifecycle an LLM subprocess
// client exposes in the source system, and a Manager that owns one client
// per session with resume-failure fallback.
package llmclient

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/haasonsaas/agentcore/internal/sessionbuilder"
	"github.com/haasonsaas/agentcore/internal/sessiontools"
	"github.com/haasonsaas/agentcore/pkg/models"
)

// defaultMaxTokens bounds a single turn's response when ClientConfig does
// not otherwise constrain it.
const defaultMaxTokens = 8192

// LLMClient is one live connection to an LLM backing a single session.
// Connect must be called before Query or ReceiveMessages; Disconnect is
// idempotent and always safe to call.
type LLMClient interface {
	Connect(ctx context.Context) error
	Query(ctx context.Context, content string) error
	ReceiveMessages(ctx context.Context) (<-chan anthropic.MessageStreamEventUnion, <-chan error)
	Interrupt(ctx context.Context) error
	Disconnect(ctx context.Context) error
	IsAlive() bool
	ExternalSessionID() string

	// ContinueWithToolResults resubmits the assistant turn that just ended
	// with stop_reason "tool_use" (its text, reconstructed as tool_use
	// blocks from calls) together with the dispatched results, and opens a
	// fresh stream for the continuation. ReceiveMessages must be called
	// again afterward to drain it, exactly as after Query.
	ContinueWithToolResults(ctx context.Context, assistantText string, calls []ToolCallRecord) error
}

// ToolCallRecord carries one dispatched tool call's request and result,
// everything ContinueWithToolResults needs to rebuild both the prior
// assistant turn's tool_use block and the matching tool_result block —
// the client itself does not track content blocks as they stream, since
// the executor's eventconv.Event already captures them.
type ToolCallRecord struct {
	ID      string
	Name    string
	Input   json.RawMessage
	Result  string
	IsError bool
}

// AnthropicStreamClient is the LLMClient implementation backed by the
// Anthropic Messages streaming API, constructed from a session's
// sessionbuilder.ClientConfig.
type AnthropicStreamClient struct {
	cfg    *sessionbuilder.ClientConfig
	client anthropic.Client
	tools  []anthropic.ToolUnionParam

	mu       sync.Mutex
	alive    bool
	extID    string
	cancel   context.CancelFunc
	lastResp *ssestream.Stream[anthropic.MessageStreamEventUnion]
	messages []anthropic.MessageParam
}

// NewAnthropicStreamClient constructs a client for cfg, using apiKey and
// an optional baseURL override (used for proxies/mocks in tests).
func NewAnthropicStreamClient(cfg *sessionbuilder.ClientConfig, apiKey, baseURL string) *AnthropicStreamClient {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &AnthropicStreamClient{
		cfg:    cfg,
		client: anthropic.NewClient(opts...),
		tools:  convertTools(cfg.Tools),
	}
}

// convertTools translates sessiontools.Def values (read off
// sessionbuilder.ClientConfig.Tools) into the Anthropic tool-declaration
// wire format, in the pattern of the provider package's own
// convertTools/toolconv.ToAnthropicTools: unmarshal each JSON Schema into
// an input_schema param and attach the tool's name and description.
// Defs with an unparsable schema are skipped rather than failing client
// construction outright — a single malformed tool definition should not
// take down an entire session.
func convertTools(defs []sessiontools.Def) []anthropic.ToolUnionParam {
	if len(defs) == 0 {
		return nil
	}
	out := make([]anthropic.ToolUnionParam, 0, len(defs))
	for _, def := range defs {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(def.Schema, &schema); err != nil {
			continue
		}
		param := anthropic.ToolUnionParamOfTool(schema, def.Name)
		if param.OfTool != nil {
			param.OfTool.Description = anthropic.String(def.Description)
		}
		out = append(out, param)
	}
	return out
}

// Connect marks the client live. The Anthropic API is stateless per
// request, so there is no handshake beyond validating the configuration.
// The configuration's resume token is not sent on any request.
func (c *AnthropicStreamClient) Connect(ctx context.Context) error {
	if c.cfg == nil {
		return models.NewError(models.KindClientConnection, "missing client config", nil)
	}
	c.mu.Lock()
	c.alive = true
	c.mu.Unlock()
	return nil
}

// Query sends content as a new user turn and opens a streaming response.
// The response events must be drained via ReceiveMessages before the next
// Query call.
func (c *AnthropicStreamClient) Query(ctx context.Context, content string) error {
	c.mu.Lock()
	if !c.alive {
		c.mu.Unlock()
		return models.NewError(models.KindClientExecution, "client not connected", nil)
	}
	c.messages = append(c.messages, anthropic.NewUserMessage(anthropic.NewTextBlock(content)))
	c.mu.Unlock()

	return c.startStreamLocked(ctx)
}

// ContinueWithToolResults reconstructs the assistant turn that ended with
// stop_reason "tool_use" (its text plus one tool_use block per call),
// appends it and a matching user turn of tool_result blocks to the
// conversation history, and opens the continuation stream — mirroring
// the provider package's convertMessages handling of ToolCall/ToolResult
// pairs, generalized from a one-shot translation into an incremental
// append onto this client's own running history.
func (c *AnthropicStreamClient) ContinueWithToolResults(ctx context.Context, assistantText string, calls []ToolCallRecord) error {
	c.mu.Lock()
	if !c.alive {
		c.mu.Unlock()
		return models.NewError(models.KindClientExecution, "client not connected", nil)
	}

	var assistantBlocks []anthropic.ContentBlockParamUnion
	if assistantText != "" {
		assistantBlocks = append(assistantBlocks, anthropic.NewTextBlock(assistantText))
	}
	var toolResultBlocks []anthropic.ContentBlockParamUnion
	for _, call := range calls {
		var input map[string]any
		_ = json.Unmarshal(call.Input, &input)
		assistantBlocks = append(assistantBlocks, anthropic.NewToolUseBlock(call.ID, input, call.Name))
		toolResultBlocks = append(toolResultBlocks, anthropic.NewToolResultBlock(call.ID, call.Result, call.IsError))
	}

	c.messages = append(c.messages, anthropic.NewAssistantMessage(assistantBlocks...))
	c.messages = append(c.messages, anthropic.NewUserMessage(toolResultBlocks...))
	c.mu.Unlock()

	return c.startStreamLocked(ctx)
}

// startStreamLocked builds the request from the client's accumulated
// message history and declared tools, opens a new stream, and installs
// it (cancelling any prior in-flight stream first). Shared by Query and
// ContinueWithToolResults so both send the full conversation-so-far
// rather than a single isolated turn.
func (c *AnthropicStreamClient) startStreamLocked(ctx context.Context) error {
	c.mu.Lock()
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.cfg.Model),
		MaxTokens: int64(defaultMaxTokens),
		Messages:  append([]anthropic.MessageParam{}, c.messages...),
		Tools:     c.tools,
	}
	if c.cfg.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: c.cfg.SystemPrompt}}
	}
	c.mu.Unlock()

	streamCtx, cancel := context.WithCancel(ctx)
	stream := c.client.Messages.NewStreaming(streamCtx, params)

	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.cancel = cancel
	c.lastResp = stream
	c.mu.Unlock()
	return nil
}

// ReceiveMessages drains the most recent Query's stream onto a channel,
// closing it on stream end and reporting any stream error on the error
// channel. It is safe to call once per Query.
func (c *AnthropicStreamClient) ReceiveMessages(ctx context.Context) (<-chan anthropic.MessageStreamEventUnion, <-chan error) {
	events := make(chan anthropic.MessageStreamEventUnion)
	errs := make(chan error, 1)

	c.mu.Lock()
	stream := c.lastResp
	c.mu.Unlock()

	go func() {
		defer close(events)
		defer close(errs)
		if stream == nil {
			errs <- models.NewError(models.KindClientExecution, "no active stream", nil)
			return
		}
		for stream.Next() {
			select {
			case events <- stream.Current():
			case <-ctx.Done():
				return
			}
		}
		if err := stream.Err(); err != nil {
			errs <- models.NewError(models.KindClientExecution, "stream error", err)
		}
	}()
	return events, errs
}

// Interrupt cancels the in-flight stream, if any.
func (c *AnthropicStreamClient) Interrupt(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
	return nil
}

// Disconnect cancels any in-flight stream and marks the client dead. Safe
// to call more than once.
func (c *AnthropicStreamClient) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.alive = false
	return nil
}

// IsAlive reports whether Connect has succeeded and Disconnect has not
// since been called.
func (c *AnthropicStreamClient) IsAlive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.alive
}

// ExternalSessionID returns the upstream conversation id recorded by
// setExternalSessionID, or "" if none was recorded. The Anthropic
// Messages API does not issue one itself; callers that need resumable identity use the
// resume token carried through sessionbuilder.ClientConfig instead.
func (c *AnthropicStreamClient) ExternalSessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.extID
}

// setExternalSessionID records a provider-issued conversation id. Nothing
// in this package calls it, so ExternalSessionID returns "" for this
// client.
func (c *AnthropicStreamClient) setExternalSessionID(id string) {
	c.mu.Lock()
	c.extID = id
	c.mu.Unlock()
}

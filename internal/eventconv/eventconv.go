// Package eventconv converts the Anthropic SDK's polymorphic streaming
// events into the small, serializable domain events the session executor
// and SSE hub deal in, generalizing the provider's processStream
// type-switch (text/thinking/tool_use/usage/done/error) into a reusable,
// stateful converter instead of a one-shot channel pump.
package eventconv

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
)

// Type identifies the kind of domain event produced by a Converter.
type Type string

const (
	TypeTurnStart       Type = "turn_start"
	TypeThinkingStart   Type = "thinking_start"
	TypeThinking        Type = "thinking_delta"
	TypeThinkingEnd     Type = "thinking_end"
	TypeText            Type = "text_delta"
	TypeToolCall        Type = "tool_call"
	TypeMessageComplete Type = "message_complete"
	TypeError           Type = "error"
)

// Event is the converted, transport-agnostic representation of one
// meaningful moment in an LLM response stream. Exactly one of the
// type-specific fields is populated, per Type.
type Event struct {
	Type Type

	// Index is the content block index the event belongs to, for the
	// block-scoped event types (thinking/text/tool_call); the text-buffer
	// table is keyed by this value.
	Index int

	Text     string
	Thinking string

	ToolCallID    string
	ToolCallName  string
	ToolCallInput json.RawMessage

	// StopReason is set on TypeMessageComplete, carried from the stream's
	// message_delta event ("end_turn", "tool_use", "max_tokens", ...).
	StopReason string

	InputTokens  int
	OutputTokens int

	Err error
}

// maxEmptyStreamEvents bounds how many consecutive events may produce no
// domain event before the converter reports the stream malformed, carried
// over unchanged from the source stream-health guard.
const maxEmptyStreamEvents = 300

// Converter accumulates the per-stream state (in-flight tool call input,
// whether a thinking block is open, running token counts) needed to turn
// a sequence of raw SDK events into domain events. One Converter is used
// per LLM turn; it is not safe for concurrent use.
type Converter struct {
	inThinking       bool
	currentToolID    string
	currentToolName  string
	currentToolInput strings.Builder

	inputTokens  int
	outputTokens int
	stopReason   string

	emptyEvents int
}

// NewConverter returns a fresh, per-turn Converter.
func NewConverter() *Converter {
	return &Converter{}
}

// Convert processes one raw stream event and returns zero or more domain
// events. A content_block_delta event typically yields exactly one event;
// message_start updates the input token counter and yields a turn_start
// event; message_delta updates internal token counters and yields none;
// content_block_stop yields the accumulated tool_call or
// thinking_end event.
func (c *Converter) Convert(event anthropic.MessageStreamEventUnion) ([]Event, error) {
	var out []Event
	processed := false

	switch event.Type {
	case "message_start":
		start := event.AsMessageStart()
		if start.Message.Usage.InputTokens > 0 {
			c.inputTokens = int(start.Message.Usage.InputTokens)
		}
		// Emitted so the executor can defensively clear all text buffers,
		// preventing bleed between turns sharing one Converter's stream.
		out = append(out, Event{Type: TypeTurnStart})
		processed = true

	case "content_block_start":
		start := event.AsContentBlockStart()
		block := start.ContentBlock
		switch block.Type {
		case "thinking":
			c.inThinking = true
			out = append(out, Event{Type: TypeThinkingStart, Index: int(start.Index)})
			processed = true
		case "tool_use":
			toolUse := block.AsToolUse()
			c.currentToolID = toolUse.ID
			c.currentToolName = toolUse.Name
			c.currentToolInput.Reset()
			processed = true
		}

	case "content_block_delta":
		blockDelta := event.AsContentBlockDelta()
		index := int(blockDelta.Index)
		switch blockDelta.Delta.Type {
		case "text_delta":
			if blockDelta.Delta.Text != "" {
				out = append(out, Event{Type: TypeText, Index: index, Text: blockDelta.Delta.Text})
				processed = true
			}
		case "thinking_delta":
			if blockDelta.Delta.Thinking != "" {
				out = append(out, Event{Type: TypeThinking, Index: index, Thinking: blockDelta.Delta.Thinking})
				processed = true
			}
		case "input_json_delta":
			if blockDelta.Delta.PartialJSON != "" {
				c.currentToolInput.WriteString(blockDelta.Delta.PartialJSON)
				processed = true
			}
		}

	case "content_block_stop":
		index := int(event.AsContentBlockStop().Index)
		switch {
		case c.inThinking:
			c.inThinking = false
			out = append(out, Event{Type: TypeThinkingEnd, Index: index})
			processed = true
		case c.currentToolID != "":
			out = append(out, Event{
				Type:          TypeToolCall,
				Index:         index,
				ToolCallID:    c.currentToolID,
				ToolCallName:  c.currentToolName,
				ToolCallInput: json.RawMessage(c.currentToolInput.String()),
			})
			c.currentToolID = ""
			c.currentToolName = ""
			processed = true
		}

	case "message_delta":
		delta := event.AsMessageDelta()
		if delta.Usage.OutputTokens > 0 {
			c.outputTokens = int(delta.Usage.OutputTokens)
		}
		if delta.Delta.StopReason != "" {
			c.stopReason = string(delta.Delta.StopReason)
		}
		processed = true

	case "message_stop":
		// message_delta.stop_reason arrives immediately before message_stop
		// in every observed stream ordering; message_stop is used as the
		// unambiguous terminal marker so the processor always completes the
		// turn (including non-"end_turn" stops such as "tool_use") rather
		// than hanging if a particular stop reason were used as the sole
		// trigger.
		out = append(out, Event{
			Type:         TypeMessageComplete,
			StopReason:   c.stopReason,
			InputTokens:  c.inputTokens,
			OutputTokens: c.outputTokens,
		})
		return out, nil

	case "error":
		out = append(out, Event{Type: TypeError, Err: errors.New("anthropic stream error")})
		return out, nil
	}

	if processed {
		c.emptyEvents = 0
		return out, nil
	}

	c.emptyEvents++
	if c.emptyEvents >= maxEmptyStreamEvents {
		return []Event{{
			Type: TypeError,
			Err:  fmt.Errorf("eventconv: stream appears malformed: %d consecutive empty events", c.emptyEvents),
		}}, nil
	}
	return out, nil
}

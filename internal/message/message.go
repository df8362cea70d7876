// Package message defines the canonical message types and utilities used across the codebase.
// All packages import from here to avoid circular dependencies.
package message

import (
	"encoding/json"
	"strings"
	"time"
)

// Role represents the role of a message participant.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// Message represents one entry of a conversation, in OpenAI wire shape:
// tool results are carried as role=tool messages with a ToolCallID.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolName   string     `json:"tool_name,omitempty"`
	Timestamp  time.Time  `json:"timestamp,omitzero"`
}

// ToolCall represents a tool call requested by the model. Input is the raw
// argument string; during streaming it is accumulated from fragments and is
// only guaranteed to be valid JSON once the stream completes.
type ToolCall struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Input string `json:"input"`
}

// ToolResult pairs an executed tool call with its structured outcome.
// Result is opaque JSON-serializable data returned by the tool.
type ToolResult struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
	Result    any            `json:"result"`
}

// UserMessage creates a user message.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: text, Timestamp: time.Now()}
}

// AssistantMessage creates an assistant message.
func AssistantMessage(text string, calls []ToolCall) Message {
	return Message{Role: RoleAssistant, Content: text, ToolCalls: calls, Timestamp: time.Now()}
}

// SystemMessage creates a system message.
func SystemMessage(text string) Message {
	return Message{Role: RoleSystem, Content: text, Timestamp: time.Now()}
}

// ToolMessage creates a tool-role message carrying a serialized tool result.
func ToolMessage(callID, name, content string) Message {
	return Message{
		Role:       RoleTool,
		Content:    content,
		ToolCallID: callID,
		ToolName:   name,
		Timestamp:  time.Now(),
	}
}

// ParseToolInput deserializes JSON tool input into a params map.
func ParseToolInput(input string) (map[string]any, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return map[string]any{}, nil
	}
	var params map[string]any
	if err := json.Unmarshal([]byte(input), &params); err != nil {
		return nil, err
	}
	return params, nil
}

// LastUserContent returns the content of the most recent user message.
func LastUserContent(msgs []Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == RoleUser && msgs[i].Content != "" {
			return msgs[i].Content
		}
	}
	return ""
}

// CompletionResponse represents a fully assembled response from an LLM provider.
type CompletionResponse struct {
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	StopReason string     `json:"stop_reason"` // "end_turn", "tool_use", "max_tokens"
	Usage      Usage      `json:"usage"`
}

// Usage contains token usage information.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// ChunkType represents the type of a stream chunk.
type ChunkType string

const (
	ChunkTypeText      ChunkType = "text"
	ChunkTypeToolStart ChunkType = "tool_start"
	ChunkTypeToolInput ChunkType = "tool_input"
	ChunkTypeDone      ChunkType = "done"
	ChunkTypeError     ChunkType = "error"
)

// StreamChunk represents one delta of a streaming response. Tool-call deltas
// are addressed by Index so fragments arriving across chunks can be
// reassembled per call.
type StreamChunk struct {
	Type     ChunkType
	Text     string              // text or argument fragment
	Index    int                 // stream index of the tool call this delta belongs to
	ToolID   string              // for tool_start chunks
	ToolName string              // name fragment for tool_start/tool_input chunks
	Response *CompletionResponse // for done chunks
	Error    error               // for error chunks
}

// ToolCallAccumulator assembles ToolCalls from streamed deltas keyed by
// stream index. Fragments concatenate in arrival order per index, so the
// assembled argument string equals the non-streamed equivalent.
type ToolCallAccumulator struct {
	calls map[int]*ToolCall
	order []int
}

// NewToolCallAccumulator creates an empty accumulator.
func NewToolCallAccumulator() *ToolCallAccumulator {
	return &ToolCallAccumulator{calls: make(map[int]*ToolCall)}
}

// Add folds one streamed delta into the accumulator. A delta may carry part
// of the call id, part of the function name, and/or part of the arguments.
func (a *ToolCallAccumulator) Add(chunk StreamChunk) {
	tc, ok := a.calls[chunk.Index]
	if !ok {
		tc = &ToolCall{}
		a.calls[chunk.Index] = tc
		a.order = append(a.order, chunk.Index)
	}
	if chunk.ToolID != "" {
		tc.ID = chunk.ToolID
	}
	tc.Name += chunk.ToolName
	tc.Input += chunk.Text
}

// Calls returns the assembled tool calls in first-seen index order.
func (a *ToolCallAccumulator) Calls() []ToolCall {
	out := make([]ToolCall, 0, len(a.order))
	for _, idx := range a.order {
		out = append(out, *a.calls[idx])
	}
	return out
}

// Len returns the number of distinct tool calls seen so far.
func (a *ToolCallAccumulator) Len() int {
	return len(a.calls)
}

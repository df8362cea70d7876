package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tyrz939/dehum-assistant/internal/log"
	"github.com/tyrz939/dehum-assistant/internal/message"
	"github.com/tyrz939/dehum-assistant/internal/session"
)

// Result pairs an executed call with its serialized outcome.
type Result struct {
	CallID    string
	Name      string
	Arguments map[string]any
	Result    json.RawMessage
	Cached    bool
}

// Executor runs tool calls against a registry and memoizes cacheable results
// in the session. Tool failures never abort a turn: unknown tools, malformed
// arguments, and handler errors all come back as structured error results the
// model can read and recover from.
type Executor struct {
	registry *Registry
}

func NewExecutor(registry *Registry) *Executor {
	return &Executor{registry: registry}
}

// Registry exposes the underlying registry for schema listing.
func (e *Executor) Registry() *Registry { return e.registry }

// Execute runs all calls in order and returns one result per call.
func (e *Executor) Execute(ctx context.Context, calls []message.ToolCall, sess *session.Session) []Result {
	results := make([]Result, 0, len(calls))
	for _, call := range calls {
		results = append(results, e.executeOne(ctx, call, sess))
	}
	return results
}

func (e *Executor) executeOne(ctx context.Context, call message.ToolCall, sess *session.Session) Result {
	start := time.Now()

	args, err := message.ParseToolInput(call.Input)
	if err != nil {
		// Malformed JSON from the model: fall back to empty arguments so the
		// handler's own validation produces an actionable message.
		args = map[string]any{}
	}

	res := Result{CallID: call.ID, Name: call.Name, Arguments: args}

	def, ok := e.registry.Get(call.Name)
	if !ok {
		res.Result = errorResult("UNKNOWN_TOOL", fmt.Sprintf("Unknown function: %s", call.Name))
		log.LogTool(call.Name, time.Since(start).Milliseconds(), false, fmt.Errorf("unknown tool"))
		return res
	}

	key := CacheKey(call.Name, args)
	if def.Cacheable {
		if cached, ok := sess.CacheGet(key); ok {
			res.Result = cached
			res.Cached = true
			log.LogTool(call.Name, time.Since(start).Milliseconds(), true, nil)
			return res
		}
	}

	value, err := def.Handler(ctx, args, sess)
	if err != nil {
		res.Result = errorResult("EXECUTION_ERROR", err.Error())
		log.LogTool(call.Name, time.Since(start).Milliseconds(), false, err)
		return res
	}

	data, err := json.Marshal(value)
	if err != nil {
		res.Result = errorResult("EXECUTION_ERROR", fmt.Sprintf("unserializable result: %v", err))
		log.LogTool(call.Name, time.Since(start).Milliseconds(), false, err)
		return res
	}
	res.Result = data

	if def.Cacheable {
		sess.CachePut(key, data)
	}
	log.LogTool(call.Name, time.Since(start).Milliseconds(), false, nil)
	return res
}

// Content renders a result as the tool message content fed back to the model.
// Documentation retrievals surface their formatted text directly; everything
// else goes back as JSON.
func (r Result) Content() string {
	var probe struct {
		FormattedDocs *string `json:"formatted_docs"`
	}
	if json.Unmarshal(r.Result, &probe) == nil && probe.FormattedDocs != nil {
		return *probe.FormattedDocs
	}
	return string(r.Result)
}

// ToolResult converts to the wire-level result record.
func (r Result) ToolResult() message.ToolResult {
	var value any
	_ = json.Unmarshal(r.Result, &value)
	return message.ToolResult{Name: r.Name, Arguments: r.Arguments, Result: value}
}

func errorResult(code, msg string) json.RawMessage {
	data, _ := json.Marshal(map[string]string{"error": code, "message": msg})
	return data
}

// Package orchestrator drives a user turn through the four-phase streaming
// state machine: INITIAL (stream the model's first response while assembling
// tool-call fragments), TOOLS (execute assembled calls with caching),
// SYNTHESIS (stream the tool-informed follow-up), FINAL (persist and emit the
// terminal event).
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tyrz939/dehum-assistant/internal/catalog"
	"github.com/tyrz939/dehum-assistant/internal/client"
	"github.com/tyrz939/dehum-assistant/internal/log"
	"github.com/tyrz939/dehum-assistant/internal/message"
	"github.com/tyrz939/dehum-assistant/internal/provider"
	"github.com/tyrz939/dehum-assistant/internal/session"
	"github.com/tyrz939/dehum-assistant/internal/tool"
)

// DefaultTurnTimeout bounds one whole turn, both model calls and all tool
// executions included.
const DefaultTurnTimeout = 3 * time.Minute

// Orchestrator coordinates the engine, tools, catalog, and session store.
type Orchestrator struct {
	engine      *client.Client
	executor    *tool.Executor
	store       session.Store
	catalog     *catalog.Catalog
	locks       *lockTable
	turnTimeout time.Duration
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithTurnTimeout overrides the per-turn deadline.
func WithTurnTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.turnTimeout = d }
}

func New(engine *client.Client, executor *tool.Executor, store session.Store, cat *catalog.Catalog, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		engine:      engine,
		executor:    executor,
		store:       store,
		catalog:     cat,
		locks:       newLockTable(),
		turnTimeout: DefaultTurnTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// RunTurn processes one user message and returns the turn's event stream.
// The channel is closed after the final event. Cancelling ctx stops token
// forwarding and releases the session promptly.
func (o *Orchestrator) RunTurn(ctx context.Context, sessionID, userText string) <-chan Event {
	out := make(chan Event)
	go func() {
		defer close(out)
		o.runTurn(ctx, sessionID, userText, out)
	}()
	return out
}

func (o *Orchestrator) runTurn(ctx context.Context, sessionID, userText string, out chan<- Event) {
	em := newEmitter(ctx, out, sessionID)

	if userText == "" {
		em.finalError("empty message", nil)
		return
	}

	lock := o.locks.lockFor(sessionID)
	gen, err := lock.acquire(ctx)
	if err != nil {
		em.finalError(fmt.Sprintf("session busy: %v", err), nil)
		return
	}

	turnCtx, cancel := context.WithTimeout(ctx, o.turnTimeout)
	o.locks.setInflight(sessionID, cancel)
	defer func() {
		o.locks.clearInflight(sessionID)
		cancel()
		lock.release(gen)
	}()

	// One terminal event is guaranteed even on unexpected faults.
	defer func() {
		if r := recover(); r != nil {
			if log.IsEnabled() {
				log.Logger().Error("turn panic", zap.String("session", sessionID), zap.Any("panic", r))
			}
			em.finalError(fmt.Sprintf("internal error: %v", r), nil)
		}
	}()

	sess, err := o.store.Load(turnCtx, sessionID)
	if errors.Is(err, session.ErrNotFound) {
		sess = session.New(sessionID)
	} else if err != nil {
		em.finalError(fmt.Sprintf("load session: %v", err), nil)
		return
	}

	sess.Append(message.UserMessage(userText))
	msgs := prepareStreamingMessages(sess, o.catalog)

	// INITIAL
	initialContent, toolCalls, err := o.streamModel(turnCtx, em, msgs, o.executor.Registry().Definitions(), provider.ToolChoiceAuto, PhaseInitial)
	if err != nil {
		o.failTurn(em, sess, PhaseInitial, err)
		return
	}

	assistantContent := initialContent
	var results []message.ToolResult

	if len(toolCalls) > 0 {
		// TOOLS
		msgs = append(msgs, message.AssistantMessage(initialContent, toolCalls))
		msgs, results = o.runTools(turnCtx, em, msgs, toolCalls, sess, userText)

		// SYNTHESIS
		synthContent, _, err := o.streamModel(turnCtx, em, msgs, nil, provider.ToolChoiceNone, PhaseSynthesis)
		if err != nil {
			o.failTurn(em, sess, PhaseSynthesis, err)
			return
		}
		assistantContent += synthContent
	}
	// Zero content and zero tool calls is a degenerate model response; fall
	// straight through to FINAL with empty content rather than looping.

	// FINAL
	sess.Append(message.AssistantMessage(assistantContent, nil))
	sess.Touch()
	if err := o.store.Save(turnCtx, sess); err != nil && log.IsEnabled() {
		log.Logger().Error("save session", zap.String("session", sessionID), zap.Error(err))
	}

	em.final(results, map[string]any{"model": o.engine.ModelID()})
}

// failTurn persists the partial turn and emits the terminal error event.
// Content already streamed to the client is not retracted. The save gets a
// fresh context: the turn context is usually already expired or cancelled by
// the time a phase fails.
func (o *Orchestrator) failTurn(em *emitter, sess *session.Session, phase string, err error) {
	log.LogError(o.engine.Name(), err)
	saveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if saveErr := o.store.Save(saveCtx, sess); saveErr != nil && log.IsEnabled() {
		log.Logger().Error("save session after failure", zap.Error(saveErr))
	}
	em.finalError(err.Error(), map[string]any{"failed_phase": phase})
}

// streamModel runs one streaming engine call, forwarding content chunks as
// events and assembling tool-call fragments by stream index.
func (o *Orchestrator) streamModel(ctx context.Context, em *emitter, msgs []message.Message,
	tools []provider.Tool, choice provider.ToolChoice, phase string) (string, []message.ToolCall, error) {

	acc := message.NewToolCallAccumulator()
	var content string

	for chunk := range o.engine.Stream(ctx, msgs, tools, choice, "") {
		switch chunk.Type {
		case message.ChunkTypeText:
			content += chunk.Text
			em.chunk(chunk.Text, phase)
		case message.ChunkTypeToolStart, message.ChunkTypeToolInput:
			acc.Add(chunk)
		case message.ChunkTypeError:
			return content, nil, chunk.Error
		case message.ChunkTypeDone:
			if chunk.Response != nil {
				o.engine.AddUsage(chunk.Response.Usage)
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return content, nil, err
	}
	return content, acc.Calls(), nil
}

// runTools executes the assembled calls in request order, emitting progress
// events, and appends tool replies plus the refreshed catalog context to the
// working message list.
func (o *Orchestrator) runTools(ctx context.Context, em *emitter, msgs []message.Message,
	calls []message.ToolCall, sess *session.Session, userText string) ([]message.Message, []message.ToolResult) {

	plural := ""
	if len(calls) > 1 {
		plural = "s"
	}
	em.progress(fmt.Sprintf("🔧 Starting %d tool%s...", len(calls), plural), PhaseTools, map[string]any{
		"status":     "starting_tools",
		"tool_count": len(calls),
	})

	var results []message.ToolResult
	for i, tc := range calls {
		em.progress(fmt.Sprintf("⚙️ Executing tool %d/%d: %s", i+1, len(calls), tc.Name), PhaseTools, map[string]any{
			"status":      "executing_tool",
			"tool_name":   tc.Name,
			"tool_index":  i + 1,
			"total_tools": len(calls),
		})

		if _, err := message.ParseToolInput(tc.Input); err != nil {
			// Malformed argument JSON skips this one call, never the turn.
			em.progress(fmt.Sprintf("⚠️ Skipped tool %s: invalid arguments", tc.Name), PhaseTools, map[string]any{
				"status":    "tool_error",
				"tool_name": tc.Name,
			})
			errContent := fmt.Sprintf(`{"error":"INVALID_ARGUMENTS","message":"tool arguments were not valid JSON: %s"}`, tc.Name)
			msgs = append(msgs, message.ToolMessage(tc.ID, tc.Name, errContent))
			continue
		}

		res := o.executor.Execute(ctx, []message.ToolCall{tc}, sess)[0]
		results = append(results, res.ToolResult())
		msgs = append(msgs, message.ToolMessage(tc.ID, tc.Name, res.Content()))

		if res.Cached {
			em.progress(fmt.Sprintf("♻️ Reused cached result %d/%d: %s", i+1, len(calls), tc.Name), PhaseTools, map[string]any{
				"status":      "duplicate_skipped",
				"tool_name":   tc.Name,
				"tool_index":  i + 1,
				"total_tools": len(calls),
			})
		} else {
			em.progress(fmt.Sprintf("✅ Completed tool %d/%d: %s", i+1, len(calls), tc.Name), PhaseTools, map[string]any{
				"status":      "tool_completed",
				"tool_name":   tc.Name,
				"tool_index":  i + 1,
				"total_tools": len(calls),
			})
		}
	}

	if load, ok := latestLoadInfo(sess); ok {
		catMsg := o.catalog.ContextMessage(load, catalog.DetectPreferredTypes(userText))
		msgs = append(msgs, catMsg)
		count := productCount(catMsg)
		em.progress(fmt.Sprintf("📋 Prepared product catalog with %d matching products", count), PhaseTools, map[string]any{
			"status":        "catalog_prepared",
			"product_count": count,
		})
	}

	return msgs, results
}

// Recover forcibly aborts a stuck turn for the session, cancelling its
// in-flight work and releasing its lock. The returned message is suitable to
// show the user.
func (o *Orchestrator) Recover(sessionID string) string {
	if o.locks.abort(sessionID) {
		return "Your previous request was cancelled. You can send a new message now."
	}
	return "Session is not busy. You can send a new message now."
}

// Health reports liveness data for the health endpoint.
func (o *Orchestrator) Health() map[string]any {
	return map[string]any{
		"status":       "healthy",
		"model":        o.engine.ModelID(),
		"provider":     o.engine.Name(),
		"tools_loaded": len(o.executor.Registry().Names()),
		"active_turns": o.locks.activeTurns(),
	}
}

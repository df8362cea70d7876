package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/tyrz939/dehum-assistant/internal/catalog"
	"github.com/tyrz939/dehum-assistant/internal/message"
	"github.com/tyrz939/dehum-assistant/internal/provider"
	"github.com/tyrz939/dehum-assistant/internal/session"
)

// ChatResponse is the blocking, request/response form of a turn.
type ChatResponse struct {
	Message       string               `json:"message"`
	SessionID     string               `json:"session_id"`
	FunctionCalls []message.ToolResult `json:"function_calls,omitempty"`
}

// ProcessChat runs one turn without streaming. Cache summaries from prior
// turns are injected as session context instead of the full catalog message,
// which keeps the request small for transports that cannot stream.
func (o *Orchestrator) ProcessChat(ctx context.Context, sessionID, userText string) (*ChatResponse, error) {
	if userText == "" {
		return nil, errors.New("empty message")
	}

	lock := o.locks.lockFor(sessionID)
	gen, err := lock.acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("session busy: %w", err)
	}

	turnCtx, cancel := context.WithTimeout(ctx, o.turnTimeout)
	o.locks.setInflight(sessionID, cancel)
	defer func() {
		o.locks.clearInflight(sessionID)
		cancel()
		lock.release(gen)
	}()

	sess, err := o.store.Load(turnCtx, sessionID)
	if errors.Is(err, session.ErrNotFound) {
		sess = session.New(sessionID)
	} else if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	sess.Append(message.UserMessage(userText))
	msgs := prepareMessages(sess)

	resp, err := o.engine.Send(turnCtx, msgs, o.executor.Registry().Definitions(), provider.ToolChoiceAuto, "")
	if err != nil {
		return nil, err
	}
	o.engine.AddUsage(resp.Usage)

	content := resp.Content
	var results []message.ToolResult

	if len(resp.ToolCalls) > 0 {
		msgs = append(msgs, message.AssistantMessage(resp.Content, resp.ToolCalls))
		for _, res := range o.executor.Execute(turnCtx, resp.ToolCalls, sess) {
			results = append(results, res.ToolResult())
			msgs = append(msgs, message.ToolMessage(res.CallID, res.Name, res.Content()))
		}
		if load, ok := latestLoadInfo(sess); ok {
			msgs = append(msgs, o.catalog.ContextMessage(load, catalog.DetectPreferredTypes(userText)))
		}

		final, err := o.engine.Send(turnCtx, msgs, nil, provider.ToolChoiceNone, "")
		if err != nil {
			return nil, err
		}
		o.engine.AddUsage(final.Usage)
		content += final.Content
	}

	sess.Append(message.AssistantMessage(content, nil))
	sess.Touch()
	if err := o.store.Save(turnCtx, sess); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	return &ChatResponse{Message: content, SessionID: sess.ID, FunctionCalls: results}, nil
}

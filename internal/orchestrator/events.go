package orchestrator

import (
	"context"
	"time"

	"github.com/tyrz939/dehum-assistant/internal/message"
)

// Phase labels carried in event metadata. The client UI keys off these
// strings, so they are part of the wire contract.
const (
	PhaseInitial   = "initial_summary"
	PhaseTools     = "tools"
	PhaseSynthesis = "recommendations"
	PhaseFinal     = "final"
)

// Event is one frame of a streaming turn. Exactly one event per turn has
// IsFinal set, and it is always the last.
type Event struct {
	Message          string               `json:"message"`
	SessionID        string               `json:"session_id"`
	Timestamp        time.Time            `json:"timestamp"`
	IsFinal          bool                 `json:"is_final"`
	IsStreamingChunk bool                 `json:"is_streaming_chunk"`
	IsThinking       bool                 `json:"is_thinking"`
	FunctionCalls    []message.ToolResult `json:"function_calls,omitempty"`
	Metadata         map[string]any       `json:"metadata,omitempty"`
}

// emitter serializes event delivery for one turn and enforces the
// exactly-one-final-event guarantee even when multiple error paths race to
// terminate the turn.
type emitter struct {
	ctx       context.Context
	out       chan<- Event
	sessionID string
	finalSent bool
}

func newEmitter(ctx context.Context, out chan<- Event, sessionID string) *emitter {
	return &emitter{ctx: ctx, out: out, sessionID: sessionID}
}

// send delivers an event unless the turn is already finalized or the client
// has gone away.
func (e *emitter) send(ev Event) {
	if e.finalSent {
		return
	}
	ev.SessionID = e.sessionID
	ev.Timestamp = time.Now()
	if ev.IsFinal {
		e.finalSent = true
	}
	select {
	case e.out <- ev:
	case <-e.ctx.Done():
		// Client gone; mark final sent so later paths stop emitting.
		e.finalSent = true
	}
}

func (e *emitter) chunk(text, phase string) {
	e.send(Event{
		Message:          text,
		IsStreamingChunk: true,
		Metadata:         map[string]any{"phase": phase},
	})
}

func (e *emitter) progress(text, phase string, extra map[string]any) {
	md := map[string]any{"phase": phase}
	for k, v := range extra {
		md[k] = v
	}
	e.send(Event{Message: text, IsStreamingChunk: true, Metadata: md})
}

func (e *emitter) final(results []message.ToolResult, md map[string]any) {
	if md == nil {
		md = map[string]any{}
	}
	md["phase"] = PhaseFinal
	e.send(Event{Message: "", IsFinal: true, FunctionCalls: results, Metadata: md})
}

func (e *emitter) finalError(errMsg string, md map[string]any) {
	if md == nil {
		md = map[string]any{}
	}
	md["phase"] = PhaseFinal
	md["error"] = errMsg
	e.send(Event{
		Message:  "I hit a problem while processing that. Please try again.",
		IsFinal:  true,
		Metadata: md,
	})
}

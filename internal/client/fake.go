package client

import (
	"context"
	"sync"

	"github.com/tyrz939/dehum-assistant/internal/message"
	"github.com/tyrz939/dehum-assistant/internal/provider"
)

// FakeProvider is a scripted LLMProvider for tests. Each call to Stream pops
// the next script; a script is either a full response (streamed as one text
// chunk plus tool starts) or an explicit chunk sequence for exercising
// fragmented delivery. Calls records every CompletionOptions received.
type FakeProvider struct {
	mu sync.Mutex

	// Responses are popped in order; each is streamed as synthesized chunks.
	Responses []message.CompletionResponse

	// Scripts are popped in order and take precedence over Responses; each
	// inner slice is emitted verbatim as the stream.
	Scripts [][]message.StreamChunk

	// ErrorAt injects ErrorValue as the first chunk of the Nth call (1-based).
	ErrorAt    int
	ErrorValue error

	Calls []provider.CompletionOptions
}

var _ provider.LLMProvider = (*FakeProvider)(nil)

func (f *FakeProvider) Name() string { return "fake" }

func (f *FakeProvider) Stream(ctx context.Context, opts provider.CompletionOptions) <-chan message.StreamChunk {
	f.mu.Lock()
	f.Calls = append(f.Calls, opts)
	callNum := len(f.Calls)

	var script []message.StreamChunk
	switch {
	case f.ErrorAt == callNum && f.ErrorValue != nil:
		script = []message.StreamChunk{{Type: message.ChunkTypeError, Error: f.ErrorValue}}
	case len(f.Scripts) > 0:
		script = f.Scripts[0]
		f.Scripts = f.Scripts[1:]
	case len(f.Responses) > 0:
		script = synthesize(f.Responses[0])
		f.Responses = f.Responses[1:]
	default:
		script = synthesize(message.CompletionResponse{StopReason: "end_turn"})
	}
	f.mu.Unlock()

	out := make(chan message.StreamChunk)
	go func() {
		defer close(out)
		for _, chunk := range script {
			select {
			case <-ctx.Done():
				return
			case out <- chunk:
			}
		}
	}()
	return out
}

// CallCount returns how many stream calls have been made.
func (f *FakeProvider) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Calls)
}

// synthesize converts a full response into the chunk sequence a real
// provider would emit for it.
func synthesize(resp message.CompletionResponse) []message.StreamChunk {
	var chunks []message.StreamChunk
	if resp.Content != "" {
		chunks = append(chunks, message.StreamChunk{Type: message.ChunkTypeText, Text: resp.Content})
	}
	for i, tc := range resp.ToolCalls {
		chunks = append(chunks,
			message.StreamChunk{Type: message.ChunkTypeToolStart, Index: i, ToolID: tc.ID, ToolName: tc.Name},
			message.StreamChunk{Type: message.ChunkTypeToolInput, Index: i, Text: tc.Input},
		)
	}
	chunks = append(chunks, message.StreamChunk{Type: message.ChunkTypeDone, Response: &resp})
	return chunks
}

// ToolCallResponse builds a scripted response that requests one tool call.
func ToolCallResponse(id, name, input string) message.CompletionResponse {
	return message.CompletionResponse{
		StopReason: "tool_use",
		ToolCalls:  []message.ToolCall{{ID: id, Name: name, Input: input}},
	}
}

// TextResponse builds a scripted plain-text end-of-turn response.
func TextResponse(content string) message.CompletionResponse {
	return message.CompletionResponse{Content: content, StopReason: "end_turn"}
}

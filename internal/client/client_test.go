package client

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tyrz939/dehum-assistant/internal/message"
	"github.com/tyrz939/dehum-assistant/internal/provider"
)

func TestIsTransient(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{errors.New("429 Too Many Requests"), true},
		{errors.New("rate limit exceeded, retry later"), true},
		{errors.New("connection reset by peer"), true},
		{errors.New("request timed out"), true},
		{errors.New("503 Service Unavailable"), true},
		{errors.New("upstream returned 502"), true},
		{errors.New("invalid api key"), false},
		{errors.New("model not found"), false},
		{context.Canceled, false},
		{context.DeadlineExceeded, false},
		{nil, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, IsTransient(tc.err), "error: %v", tc.err)
	}
}

func TestStreamRetriesTransientFirstChunk(t *testing.T) {
	fake := &FakeProvider{
		Responses:  []message.CompletionResponse{TextResponse("hello")},
		ErrorAt:    1,
		ErrorValue: errors.New("429 rate limit"),
	}
	c := &Client{Provider: fake, Model: "test-model"}

	var text string
	for chunk := range c.Stream(context.Background(), []message.Message{message.UserMessage("hi")}, nil, provider.ToolChoiceAuto, "") {
		require.NotEqual(t, message.ChunkTypeError, chunk.Type, "retry should absorb the transient error")
		if chunk.Type == message.ChunkTypeText {
			text += chunk.Text
		}
	}
	assert.Equal(t, "hello", text)
	assert.Equal(t, 2, fake.CallCount())
}

func TestStreamDoesNotRetryFatalError(t *testing.T) {
	fake := &FakeProvider{
		Responses:  []message.CompletionResponse{TextResponse("unreachable")},
		ErrorAt:    1,
		ErrorValue: errors.New("invalid api key"),
	}
	c := &Client{Provider: fake, Model: "test-model"}

	var gotErr error
	for chunk := range c.Stream(context.Background(), []message.Message{message.UserMessage("hi")}, nil, provider.ToolChoiceAuto, "") {
		if chunk.Type == message.ChunkTypeError {
			gotErr = chunk.Error
		}
	}
	require.Error(t, gotErr)
	assert.Equal(t, 1, fake.CallCount())
}

func TestSendCollectsResponse(t *testing.T) {
	fake := &FakeProvider{Responses: []message.CompletionResponse{
		ToolCallResponse("call_1", "calculate_dehum_load", `{"length":5}`),
	}}
	c := &Client{Provider: fake, Model: "test-model"}

	resp, err := c.Send(context.Background(), []message.Message{message.UserMessage("size my room")}, nil, provider.ToolChoiceAuto, "")
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "calculate_dehum_load", resp.ToolCalls[0].Name)
	assert.Equal(t, "tool_use", resp.StopReason)
}

func TestAddUsageConcurrentTurns(t *testing.T) {
	// One engine is shared across sessions; independent turns report usage
	// concurrently.
	c := &Client{Provider: &FakeProvider{}, Model: "test-model"}

	const turns = 50
	var wg sync.WaitGroup
	for i := 0; i < turns; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.AddUsage(message.Usage{InputTokens: 10, OutputTokens: 5})
		}()
	}
	wg.Wait()

	got := c.Tokens()
	assert.Equal(t, turns*10, got.InputTokens)
	assert.Equal(t, turns*5, got.OutputTokens)
	assert.Equal(t, turns*15, got.TotalTokens)
}

func TestFakeScriptedFragments(t *testing.T) {
	fake := &FakeProvider{Scripts: [][]message.StreamChunk{{
		{Type: message.ChunkTypeToolStart, Index: 0, ToolID: "call_1", ToolName: "calculate_dehum_load"},
		{Type: message.ChunkTypeToolInput, Index: 0, Text: `{"len`},
		{Type: message.ChunkTypeToolInput, Index: 0, Text: `gth":5}`},
		{Type: message.ChunkTypeDone, Response: &message.CompletionResponse{StopReason: "tool_use"}},
	}}}

	acc := message.NewToolCallAccumulator()
	for chunk := range fake.Stream(context.Background(), provider.CompletionOptions{}) {
		acc.Add(chunk)
	}
	calls := acc.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, `{"length":5}`, calls[0].Input)
}

package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccumulatorAssemblesInterleavedFragments(t *testing.T) {
	acc := NewToolCallAccumulator()

	// Two concurrent calls whose argument fragments interleave on the wire.
	acc.Add(StreamChunk{Type: ChunkTypeToolStart, Index: 0, ToolID: "call_a", ToolName: "calculate_dehum_load"})
	acc.Add(StreamChunk{Type: ChunkTypeToolStart, Index: 1, ToolID: "call_b", ToolName: "get_product_catalog"})
	acc.Add(StreamChunk{Type: ChunkTypeToolInput, Index: 0, Text: `{"length":5,`})
	acc.Add(StreamChunk{Type: ChunkTypeToolInput, Index: 1, Text: `{"pool_safe`})
	acc.Add(StreamChunk{Type: ChunkTypeToolInput, Index: 0, Text: `"width":4}`})
	acc.Add(StreamChunk{Type: ChunkTypeToolInput, Index: 1, Text: `_only":true}`})

	calls := acc.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "call_a", calls[0].ID)
	assert.Equal(t, `{"length":5,"width":4}`, calls[0].Input)
	assert.Equal(t, "call_b", calls[1].ID)
	assert.Equal(t, `{"pool_safe_only":true}`, calls[1].Input)
}

func TestAccumulatorPreservesFirstSeenOrder(t *testing.T) {
	acc := NewToolCallAccumulator()
	acc.Add(StreamChunk{Type: ChunkTypeToolStart, Index: 2, ToolID: "c", ToolName: "third"})
	acc.Add(StreamChunk{Type: ChunkTypeToolStart, Index: 0, ToolID: "a", ToolName: "first"})

	calls := acc.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "third", calls[0].Name)
	assert.Equal(t, "first", calls[1].Name)
}

func TestAccumulatorNameArrivesInPieces(t *testing.T) {
	acc := NewToolCallAccumulator()
	acc.Add(StreamChunk{Type: ChunkTypeToolStart, Index: 0, ToolID: "x", ToolName: "retrieve_"})
	acc.Add(StreamChunk{Type: ChunkTypeToolInput, Index: 0, ToolName: "relevant_docs", Text: `{}`})

	calls := acc.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "retrieve_relevant_docs", calls[0].Name)
}

func TestParseToolInput(t *testing.T) {
	args, err := ParseToolInput(`{"length":5,"ach":0.5}`)
	require.NoError(t, err)
	assert.Equal(t, 5.0, args["length"])

	// Empty input means a no-argument call.
	args, err = ParseToolInput("")
	require.NoError(t, err)
	assert.Empty(t, args)

	_, err = ParseToolInput(`{"length":`)
	assert.Error(t, err)
}

func TestLastUserContent(t *testing.T) {
	msgs := []Message{
		UserMessage("first"),
		AssistantMessage("answer", nil),
		UserMessage("second"),
		AssistantMessage("", nil),
	}
	assert.Equal(t, "second", LastUserContent(msgs))
	assert.Equal(t, "", LastUserContent(nil))
}

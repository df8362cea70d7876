// Package openai implements the LLMProvider interface using the OpenAI SDK.
package openai

import (
	"context"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/tyrz939/dehum-assistant/internal/log"
	"github.com/tyrz939/dehum-assistant/internal/message"
	"github.com/tyrz939/dehum-assistant/internal/provider"
)

// Client implements the LLMProvider interface using the OpenAI SDK.
// It also serves OpenAI-compatible endpoints via a custom base URL.
type Client struct {
	client openai.Client
	name   string
}

// NewClient creates a new OpenAI client with the given SDK client.
func NewClient(client openai.Client, name string) *Client {
	return &Client{client: client, name: name}
}

// NewClientFromEnv creates a client from an API key and optional base URL.
func NewClientFromEnv(apiKey, baseURL, name string) *Client {
	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(baseURL))
	}
	return &Client{client: openai.NewClient(reqOpts...), name: name}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return c.name
}

// isReasoningModel reports whether the model rejects the temperature knob and
// takes its output budget via max_completion_tokens.
func isReasoningModel(model string) bool {
	return strings.HasPrefix(model, "o1") ||
		strings.HasPrefix(model, "o3") ||
		strings.HasPrefix(model, "o4") ||
		strings.HasPrefix(model, "gpt-5")
}

// Stream sends a completion request and returns a channel of streaming chunks.
func (c *Client) Stream(ctx context.Context, opts provider.CompletionOptions) <-chan message.StreamChunk {
	ch := make(chan message.StreamChunk)

	go func() {
		defer close(ch)

		params := c.buildParams(opts)

		log.LogRequest(c.name, opts.Model, opts)

		stream := c.client.Chat.Completions.NewStreaming(ctx, params)

		acc := message.NewToolCallAccumulator()
		var response message.CompletionResponse

		streamStart := time.Now()
		chunkCount := 0

		for stream.Next() {
			chunk := stream.Current()
			chunkCount++

			for _, choice := range chunk.Choices {
				if choice.Delta.Content != "" {
					ch <- message.StreamChunk{
						Type: message.ChunkTypeText,
						Text: choice.Delta.Content,
					}
					response.Content += choice.Delta.Content
				}

				for _, tc := range choice.Delta.ToolCalls {
					idx := int(tc.Index)
					out := message.StreamChunk{
						Index:    idx,
						ToolID:   tc.ID,
						ToolName: tc.Function.Name,
						Text:     tc.Function.Arguments,
					}
					// First delta for an index opens the call; later
					// deltas carry name/argument fragments only.
					if tc.ID != "" && tc.Function.Name != "" {
						out.Type = message.ChunkTypeToolStart
					} else {
						out.Type = message.ChunkTypeToolInput
					}
					acc.Add(out)
					ch <- out
				}

				if choice.FinishReason != "" {
					switch choice.FinishReason {
					case "stop":
						response.StopReason = "end_turn"
					case "tool_calls":
						response.StopReason = "tool_use"
					case "length":
						response.StopReason = "max_tokens"
					default:
						response.StopReason = choice.FinishReason
					}
				}
			}

			if chunk.Usage.PromptTokens > 0 {
				response.Usage.InputTokens = int(chunk.Usage.PromptTokens)
			}
			if chunk.Usage.CompletionTokens > 0 {
				response.Usage.OutputTokens = int(chunk.Usage.CompletionTokens)
			}
		}

		log.LogStreamDone(c.name, time.Since(streamStart), chunkCount)

		if err := stream.Err(); err != nil {
			log.LogError(c.name, err)
			ch <- message.StreamChunk{
				Type:  message.ChunkTypeError,
				Error: err,
			}
			return
		}

		response.ToolCalls = acc.Calls()

		log.LogResponse(c.name, response)

		ch <- message.StreamChunk{
			Type:     message.ChunkTypeDone,
			Response: &response,
		}
	}()

	return ch
}

// buildParams maps CompletionOptions to Chat Completions request parameters,
// shaping the token/temperature knobs per model family.
func (c *Client) buildParams(opts provider.CompletionOptions) openai.ChatCompletionNewParams {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(opts.Messages)+1)

	if opts.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(opts.SystemPrompt))
	}

	for _, msg := range opts.Messages {
		switch msg.Role {
		case message.RoleUser:
			messages = append(messages, openai.UserMessage(msg.Content))
		case message.RoleTool:
			messages = append(messages, openai.ToolMessage(msg.Content, msg.ToolCallID))
		case message.RoleAssistant:
			if len(msg.ToolCalls) > 0 {
				var asstMsg openai.ChatCompletionAssistantMessageParam
				if msg.Content != "" {
					asstMsg.Content.OfString = openai.Opt(msg.Content)
				}
				asstMsg.ToolCalls = make([]openai.ChatCompletionMessageToolCallUnionParam, len(msg.ToolCalls))
				for i, tc := range msg.ToolCalls {
					asstMsg.ToolCalls[i] = openai.ChatCompletionMessageToolCallUnionParam{
						OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
							ID: tc.ID,
							Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
								Name:      tc.Name,
								Arguments: tc.Input,
							},
						},
					}
				}
				messages = append(messages, openai.ChatCompletionMessageParamUnion{OfAssistant: &asstMsg})
			} else {
				messages = append(messages, openai.AssistantMessage(msg.Content))
			}
		default: // system messages
			messages = append(messages, openai.SystemMessage(msg.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    opts.Model,
		Messages: messages,
	}

	if opts.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(opts.MaxTokens))
	}

	// Reasoning models reject an explicit temperature.
	if opts.Temperature > 0 && !isReasoningModel(opts.Model) {
		params.Temperature = openai.Float(opts.Temperature)
	}

	if len(opts.Tools) > 0 {
		tools := make([]openai.ChatCompletionToolUnionParam, 0, len(opts.Tools))
		for _, t := range opts.Tools {
			var funcParams openai.FunctionParameters
			if props, ok := t.Parameters.(map[string]any); ok {
				funcParams = props
			}
			tools = append(tools, openai.ChatCompletionToolUnionParam{
				OfFunction: &openai.ChatCompletionFunctionToolParam{
					Function: openai.FunctionDefinitionParam{
						Name:        t.Name,
						Description: openai.String(t.Description),
						Parameters:  funcParams,
					},
				},
			})
		}
		params.Tools = tools
	}

	if opts.ToolChoice == provider.ToolChoiceNone {
		params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{
			OfAuto: openai.Opt("none"),
		}
	}

	return params
}

// Ensure Client implements LLMProvider.
var _ provider.LLMProvider = (*Client)(nil)

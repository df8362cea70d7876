package log

import (
	"fmt"
	"strings"

	"github.com/tyrz939/dehum-assistant/internal/message"
	"github.com/tyrz939/dehum-assistant/internal/provider"
)

// LogRequest logs an LLM request in human-readable format.
func LogRequest(providerName, model string, opts provider.CompletionOptions) {
	if !enabled {
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, ">>> [%s] %s | max_tokens=%d temp=%.1f tool_choice=%s\n",
		providerName, model, opts.MaxTokens, opts.Temperature, opts.ToolChoice)

	if opts.SystemPrompt != "" {
		fmt.Fprintf(&sb, "    System: %s\n", escapeForLog(opts.SystemPrompt))
	}

	if len(opts.Tools) > 0 {
		toolNames := make([]string, len(opts.Tools))
		for i, t := range opts.Tools {
			toolNames[i] = t.Name
		}
		fmt.Fprintf(&sb, "    Tools(%d): [%s]\n", len(opts.Tools), strings.Join(toolNames, ", "))
	}

	fmt.Fprintf(&sb, "    Messages(%d):\n", len(opts.Messages))
	for i, msg := range opts.Messages {
		switch msg.Role {
		case message.RoleUser:
			fmt.Fprintf(&sb, "      [%d] User: %s\n", i, escapeForLog(msg.Content))
		case message.RoleAssistant:
			if msg.Content != "" {
				fmt.Fprintf(&sb, "      [%d] Assistant: %s\n", i, escapeForLog(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				fmt.Fprintf(&sb, "      [%d] ToolCall: %s(%s)\n", i, tc.Name, escapeForLog(tc.Input))
			}
		case message.RoleTool:
			fmt.Fprintf(&sb, "      [%d] ToolResult[%s]: %s\n", i, msg.ToolCallID, escapeForLog(msg.Content))
		case message.RoleSystem:
			fmt.Fprintf(&sb, "      [%d] System: %s\n", i, escapeForLog(msg.Content))
		}
	}

	logger.Info(sb.String())
}

// LogResponse logs an assembled LLM response.
func LogResponse(providerName string, resp message.CompletionResponse) {
	if !enabled {
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "<<< [%s] stop=%s in=%d out=%d\n",
		providerName, resp.StopReason, resp.Usage.InputTokens, resp.Usage.OutputTokens)
	if resp.Content != "" {
		fmt.Fprintf(&sb, "    Content: %s\n", escapeForLog(resp.Content))
	}
	for _, tc := range resp.ToolCalls {
		fmt.Fprintf(&sb, "    ToolCall: %s(%s)\n", tc.Name, escapeForLog(tc.Input))
	}

	logger.Info(sb.String())
}

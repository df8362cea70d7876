package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	progressStyle = lipgloss.NewStyle().Faint(true)
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	promptStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
)

var sessionFlag string

func init() {
	chatCmd.Flags().StringVarP(&sessionFlag, "session", "s", "", "Session ID to continue (default: new session)")
}

var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Chat with the sizing assistant",
	Long: `Start an interactive sizing conversation, or pass a message for a
one-shot answer. Use --session to continue an earlier conversation.`,
	Args: cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		defer a.Close()

		sessionID := sessionFlag
		if sessionID == "" {
			sessionID = uuid.NewString()
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if msg := inputMessage(args); msg != "" {
			return runTurn(ctx, a, sessionID, msg)
		}
		return runInteractive(ctx, a, sessionID)
	},
}

// inputMessage gets the one-shot message from args or piped stdin.
func inputMessage(args []string) string {
	if msg := strings.TrimSpace(strings.Join(args, " ")); msg != "" {
		return msg
	}
	stat, _ := os.Stdin.Stat()
	if (stat.Mode() & os.ModeCharDevice) == 0 {
		data, err := io.ReadAll(bufio.NewReader(os.Stdin))
		if err == nil {
			return strings.TrimSpace(string(data))
		}
	}
	return ""
}

func runInteractive(ctx context.Context, a *app, sessionID string) error {
	fmt.Printf("Dehumidifier sizing assistant (session %s)\n", sessionID)
	fmt.Println("Describe your room or pool area. Ctrl+D or 'exit' to quit.")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print(promptStyle.Render("> ") + " ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if text == "exit" || text == "quit" {
			return nil
		}

		if err := runTurn(ctx, a, sessionID, text); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// runTurn streams one turn to the terminal. Progress markers print dim as
// they arrive; the assistant's answer is collected and re-rendered as
// markdown once the turn completes.
func runTurn(ctx context.Context, a *app, sessionID, text string) error {
	var answer strings.Builder

	for ev := range a.orch.RunTurn(ctx, sessionID, text) {
		switch {
		case ev.IsFinal:
			if errMsg, ok := ev.Metadata["error"].(string); ok {
				fmt.Println(errorStyle.Render("Error: " + errMsg))
				continue
			}
			printMarkdown(answer.String())
		case ev.Metadata["status"] != nil:
			fmt.Println(progressStyle.Render(ev.Message))
		case ev.IsStreamingChunk:
			answer.WriteString(ev.Message)
			fmt.Print(ev.Message)
		}
	}
	fmt.Println()
	return nil
}

// printMarkdown replaces the raw streamed text with a rendered version when
// the terminal supports it.
func printMarkdown(text string) {
	if text == "" {
		return
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return
	}
	rendered, err := renderer.Render(text)
	if err != nil {
		return
	}
	fmt.Print("\n\n" + rendered)
}

package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tyrz939/dehum-assistant/internal/session"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect and manage stored sessions",
}

func init() {
	sessionsCmd.AddCommand(sessionsListCmd, sessionsShowCmd, sessionsClearCmd)
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored sessions, most recent first",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ids, err := a.store.List(context.Background())
		if errors.Is(err, session.ErrListUnsupported) {
			fmt.Println("The configured store backend does not support listing sessions.")
			return nil
		}
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			fmt.Println("No stored sessions.")
			return nil
		}
		for _, id := range ids {
			sess, err := a.store.Load(context.Background(), id)
			if err != nil {
				fmt.Printf("%s  (unreadable: %v)\n", id, err)
				continue
			}
			fmt.Printf("%s  messages=%d  last=%s\n",
				sess.ID, sess.MessageCount, sess.LastActivity.Format("2006-01-02 15:04"))
		}
		return nil
	},
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Print a session's conversation history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		defer a.Close()

		sess, err := a.store.Load(context.Background(), args[0])
		if errors.Is(err, session.ErrNotFound) {
			return fmt.Errorf("session %s not found", args[0])
		}
		if err != nil {
			return err
		}

		fmt.Printf("Session %s (%d messages, last activity %s)\n\n",
			sess.ID, sess.MessageCount, sess.LastActivity.Format("2006-01-02 15:04"))
		for _, m := range sess.History {
			fmt.Printf("[%s] %s\n\n", m.Role, m.Content)
		}
		return nil
	},
}

var sessionsClearCmd = &cobra.Command{
	Use:   "clear <session-id>",
	Short: "Delete a stored session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.store.Delete(context.Background(), args[0]); err != nil {
			return err
		}
		fmt.Printf("Session %s cleared.\n", args[0])
		return nil
	},
}

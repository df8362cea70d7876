package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tyrz939/dehum-assistant/internal/server"
)

var addrFlag string

func init() {
	serveCmd.Flags().StringVar(&addrFlag, "addr", "", "Listen address (overrides settings)")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP/WebSocket gateway",
	Long: `Serve the assistant over HTTP: POST /chat for blocking requests,
POST /chat/stream for server-sent events, and GET /ws for WebSocket
streaming. Set DEHUM_API_KEY to require Bearer authentication.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		defer a.Close()

		addr := a.cfg.Server.Addr
		if addrFlag != "" {
			addr = addrFlag
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Printf("dehum gateway listening on %s\n", addr)
		srv := server.New(a.orch, a.store, os.Getenv("DEHUM_API_KEY"))
		return srv.Start(ctx, addr)
	},
}

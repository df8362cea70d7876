package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/tyrz939/dehum-assistant/internal/log"
)

var version = "0.1.0"

var configFlag string

func init() {
	// Load .env file if it exists (silent fail if not found)
	_ = godotenv.Load()

	// Initialize logging (enabled via DEHUM_DEBUG=1)
	_ = log.Init()

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Path to settings file")
	rootCmd.AddCommand(chatCmd, serveCmd, sessionsCmd, versionCmd)
}

func main() {
	defer log.Sync()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "dehum",
	Short: "Dehum - dehumidifier sizing assistant",
	Long: `Dehum is a conversational dehumidifier sizing assistant.
It computes latent moisture loads from room and pool conditions and
recommends appropriately sized units from the product catalog.

  dehum chat               Interactive sizing conversation
  dehum chat "message"     One-shot question
  dehum serve              Run the HTTP/WebSocket gateway
  dehum sessions list      Show stored sessions`,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("dehum version %s\n", version)
	},
}

// Command ragctl talks to a running doc-chat server from the terminal.
package main

import (
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	serverURL string
	userID    string
	sessionID string
)

var rootCmd = &cobra.Command{
	Use:           "ragctl",
	Short:         "Operate a doc-chat server",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("RAGCTL_SERVER", "http://localhost:3000/api"), "server API base URL")
	rootCmd.PersistentFlags().StringVarP(&userID, "user", "u", envOr("RAGCTL_USER", ""), "user id")
	rootCmd.PersistentFlags().StringVarP(&sessionID, "session", "s", "", "session id")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		color.Red("✗ %v", err)
		os.Exit(1)
	}
}

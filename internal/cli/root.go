// Package cli implements the chatcli terminal client.
package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/yigit/educhat/internal/client"
)

var version = "dev"

var (
	serverURL string
	token     string
	timeout   time.Duration
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "chatcli",
	Short: "Terminal client for the EduChat API",
	Long: `chatcli reads and sends chat messages, uploads attachments and voice
notes, and follows live chat events from a terminal.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the command tree. It is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", envOr("EDUCHAT_SERVER", "http://localhost:4000"), "API base URL")
	rootCmd.PersistentFlags().StringVarP(&token, "token", "t", os.Getenv("EDUCHAT_TOKEN"), "access token (or EDUCHAT_TOKEN)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "request timeout")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func newClient() *client.Client {
	return client.New(serverURL, token)
}

func requestContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), timeout)
}

package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/rickgao/socketmode/internal/config"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "socketmode",
		Short: "Socket-mode client for the real-time events gateway",
		Long: `socketmode opens a socket-mode connection with an app-level token,
acknowledges every envelope it receives and prints them to stdout.

The connection is refreshed when the gateway asks for it and re-established
with backoff when it is lost.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		listenCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %s\n", color.RedString("Error:"), err)
		os.Exit(1)
	}
}

// newLogger builds the process logger from the log config section.
func newLogger(w io.Writer, cfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

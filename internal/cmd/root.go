// Package cmd implements the sunoctl command line tool.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/makeasinger/sunoflow/internal/app"
	"github.com/makeasinger/sunoflow/internal/config"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "sunoctl",
	Short: "Generate and manage Suno songs from the command line",
	Long: `sunoctl submits songs to the Suno API, waits for them, and keeps the
local task queue and song library in sync with the server.

Configuration is read from config.yaml and the same environment variables
the server uses (SUNO_API_KEY, GROQ_API_KEY, SUNO_COOKIE, ...).`,
	SilenceUsage: true,
}

var jsonOutput bool

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print results as JSON")
}

// openApp loads configuration and builds the service graph. The returned
// context is cancelled on SIGINT/SIGTERM; a wait interrupted that way leaves
// its task pending.
func openApp(cmd *cobra.Command) (context.Context, *app.App, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	a, err := app.New(ctx, cfg, nil)
	if err != nil {
		stop()
		return nil, nil, nil, err
	}
	return ctx, a, func() {
		a.Close()
		stop()
	}, nil
}

// printJSON writes v indented to w.
func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

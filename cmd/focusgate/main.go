package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"focusgate/config"
	"focusgate/internal/client"
	"focusgate/internal/logging"
)

// rootOptions are the flags shared by every command
type rootOptions struct {
	configPath string
	serverURL  string
	apiKey     string
	verbose    bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "focusgate",
		Short:         "Block distracting apps until you earn unlock time",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to config.yaml (defaults and FOCUSGATE_* env when empty)")
	root.PersistentFlags().StringVar(&opts.serverURL, "url", "", "control API URL (derived from config when empty)")
	root.PersistentFlags().StringVar(&opts.apiKey, "api-key", "", "control API key (server.api_key when empty)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log client requests")

	root.AddCommand(newServeCmd(opts))
	root.AddCommand(newStatusCmd(opts))
	root.AddCommand(newAppsCmd(opts))
	root.AddCommand(newCompleteCmd(opts))
	root.AddCommand(newSpendCmd(opts))
	root.AddCommand(newHistoryCmd(opts))
	root.AddCommand(newEventCmd(opts))
	return root
}

// newClient builds an API client from flags, falling back to the config file
func newClient(opts *rootOptions, stderr io.Writer) (*client.Client, error) {
	baseURL, apiKey := opts.serverURL, opts.apiKey
	if baseURL == "" || apiKey == "" {
		cfg, err := config.Load(opts.configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		if baseURL == "" {
			baseURL = cfg.BaseURL()
		}
		if apiKey == "" {
			apiKey = cfg.Server.APIKey
		}
	}

	level := slog.LevelWarn
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := logging.NewLogger(logging.LoggerConfig{Format: "text", Level: level, Output: stderr})
	return client.New(baseURL, apiKey, logger), nil
}

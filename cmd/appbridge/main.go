package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dgellow/appbridge/internal"
	"github.com/dgellow/appbridge/internal/config"
	"github.com/dgellow/appbridge/internal/log"
)

var BuildVersion = "dev"

const defaultConfigPath = "appbridge.json"

type rootOptions struct {
	configPath string
	logLevel   string
	logFormat  string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "appbridge",
		Short: "Session and configuration bridge for independently deployed frontends",
		Long: `appbridge discovers the current user's session against a central auth
service and issues tenant-scoped requests to a shared GraphQL endpoint using
configuration injected into the served page.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.logLevel != "" {
				if err := log.SetLogLevel(opts.logLevel); err != nil {
					return err
				}
			}
			if opts.logFormat != "" {
				if err := log.SetFormat(opts.logFormat); err != nil {
					return err
				}
			}
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", envOr("APPBRIDGE_CONFIG", defaultConfigPath), "path to config file")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level (error, warn, info, debug, trace)")
	flags.StringVar(&opts.logFormat, "log-format", "", "log format (text, json)")

	root.AddCommand(
		statusCmd(opts),
		queryCmd(opts),
		watchCmd(opts),
		injectCmd(),
		configCmd(),
		versionCmd(),
	)
	return root
}

// loadApp reads the config file and builds the application.
func (o *rootOptions) loadApp(ctx context.Context) (*internal.App, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	log.LogInfoWithFields("main", "Starting appbridge", map[string]any{
		"version": BuildVersion,
		"config":  o.configPath,
	})

	app, err := internal.New(ctx, cfg, internal.WithVersion(BuildVersion))
	if err != nil {
		return nil, fmt.Errorf("failed to create application: %w", err)
	}
	return app, nil
}

// closeApp flushes telemetry, bounded by its own deadline.
func closeApp(app *internal.App) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := app.Close(ctx); err != nil {
		log.LogWarnWithFields("main", "Telemetry shutdown error", map[string]any{
			"error": err.Error(),
		})
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

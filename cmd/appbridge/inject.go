package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dgellow/appbridge/internal/injected"
)

func injectCmd() *cobra.Command {
	var (
		cfg     injected.Config
		global  string
		fromEnv bool
		prefix  string
	)

	cmd := &cobra.Command{
		Use:   "inject",
		Short: "Print the script element that injects backend configuration into a page",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			src := injected.Static(&cfg)
			if fromEnv {
				src = injected.EnvSource{Prefix: prefix}
			}
			record, err := src.Lookup(cmd.Context())
			if err != nil {
				return err
			}
			if record == nil && fromEnv {
				return fmt.Errorf("no %s* variables set", prefix)
			}

			script, err := injected.Script(record, global)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), script)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfg.AppID, "app-id", "", "application id")
	flags.StringVar(&cfg.GraphQLURL, "graphql-url", "", "query endpoint URL")
	flags.StringVar(&cfg.AppKey, "app-key", "", "tenant key")
	flags.StringVar(&cfg.PreviewOrigin, "preview-origin", "", "origin of the preview sandbox")
	flags.StringVar(&global, "global", injected.DefaultGlobal, "global variable name")
	flags.BoolVar(&fromEnv, "from-env", false, "read fields from prefixed environment variables")
	flags.StringVar(&prefix, "env-prefix", injected.DefaultEnvPrefix, "prefix for --from-env")
	cmd.MarkFlagsMutuallyExclusive("from-env", "app-key")
	return cmd
}

package main

import (
	"github.com/spf13/cobra"
)

func watchCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Keep the session fresh and serve its state over HTTP",
		Long: `Refresh the session every watch.interval, log state transitions and serve
/healthz, /metrics, GET /state, POST /refresh, GET /login and GET /logout on
watch.addr until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.loadApp(cmd.Context())
			if err != nil {
				return err
			}
			return app.Run()
		},
	}
}

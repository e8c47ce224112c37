package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/dgellow/appbridge/internal/config"
)

func versionCmd() *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			if short {
				fmt.Fprintln(out, BuildVersion)
				return
			}
			fmt.Fprintf(out, "appbridge %s\n", BuildVersion)
			fmt.Fprintf(out, "  Config format: %s\n", config.Version)
			fmt.Fprintf(out, "  Go version:    %s\n", runtime.Version())
			fmt.Fprintf(out, "  OS/Arch:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}

	cmd.Flags().BoolVarP(&short, "short", "s", false, "Print only version number")
	return cmd
}

package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/dgellow/appbridge/internal/config"
)

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Create or check config files",
	}
	cmd.AddCommand(configInitCmd(), configValidateCmd())
	return cmd
}

func configInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init <path>",
		Short: "Write a starter config file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if !force {
				if _, err := os.Stat(path); err == nil {
					return fmt.Errorf("%s already exists (use --force to overwrite)", path)
				} else if !errors.Is(err, fs.ErrNotExist) {
					return err
				}
			}

			data, err := config.Default()
			if err != nil {
				return fmt.Errorf("failed to generate config: %w", err)
			}
			if err := os.WriteFile(path, data, 0o644); err != nil {
				return fmt.Errorf("failed to write config file: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Generated default config at: %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")
	return cmd
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <path>",
		Short: "Check a config file without resolving environment variables",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return validateConfig(cmd.OutOrStdout(), args[0])
		},
	}
}

func validateConfig(out io.Writer, path string) error {
	result, err := config.ValidateFile(path)
	if err != nil {
		return fmt.Errorf("error during validation: %w", err)
	}

	fmt.Fprintf(out, "Validating: %s\n", path)
	printIssues(out, "Errors", result.Errors)
	printIssues(out, "Warnings", result.Warnings)

	fmt.Fprintln(out)
	switch {
	case len(result.Errors) == 0 && len(result.Warnings) == 0:
		fmt.Fprintln(out, "Result: PASS")
		return nil
	case len(result.Errors) == 0:
		fmt.Fprintln(out, "Result: FAIL (warnings present)")
	default:
		fmt.Fprintln(out, "Result: FAIL")
	}
	return fmt.Errorf("validation failed: %d error(s), %d warning(s)", len(result.Errors), len(result.Warnings))
}

func printIssues(out io.Writer, title string, issues []config.ValidationError) {
	if len(issues) == 0 {
		return
	}
	fmt.Fprintf(out, "\n%s (%d):\n", title, len(issues))
	for _, issue := range issues {
		if issue.Path != "" {
			fmt.Fprintf(out, "  - %s: %s\n", issue.Path, issue.Message)
		} else {
			fmt.Fprintf(out, "  - %s\n", issue.Message)
		}
	}
}

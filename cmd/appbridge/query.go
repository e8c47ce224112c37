package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	jmes "github.com/jmespath/go-jmespath"
	"github.com/spf13/cobra"
)

type queryOptions struct {
	query     string
	queryFile string
	vars      string
	selectExp string
}

func queryCmd(root *rootOptions) *cobra.Command {
	opts := &queryOptions{}

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Run one GraphQL request against the injected query endpoint",
		Example: `  appbridge query --query '{ viewer { id email } }'
  appbridge query --query-file orders.graphql --vars '{"first": 10}' --select 'orders[].id'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			query, err := opts.readQuery(cmd.InOrStdin())
			if err != nil {
				return err
			}
			variables, err := parseVars(opts.vars)
			if err != nil {
				return err
			}

			var selector *jmes.JMESPath
			if opts.selectExp != "" {
				if selector, err = jmes.Compile(opts.selectExp); err != nil {
					return fmt.Errorf("invalid --select expression: %w", err)
				}
			}

			app, err := root.loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer closeApp(app)

			data, err := app.GraphQL().Request(cmd.Context(), query, variables)
			if err != nil {
				return err
			}
			return writeResult(cmd.OutOrStdout(), data, selector)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.query, "query", "q", "", "GraphQL document")
	flags.StringVarP(&opts.queryFile, "query-file", "f", "", "read the GraphQL document from a file (- for stdin)")
	flags.StringVar(&opts.vars, "vars", "", "variables as a JSON object")
	flags.StringVarP(&opts.selectExp, "select", "s", "", "JMESPath expression applied to the result data")
	cmd.MarkFlagsMutuallyExclusive("query", "query-file")
	cmd.MarkFlagsOneRequired("query", "query-file")
	return cmd
}

func (o *queryOptions) readQuery(stdin io.Reader) (string, error) {
	if o.query != "" {
		return o.query, nil
	}
	var (
		data []byte
		err  error
	)
	if o.queryFile == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(o.queryFile)
	}
	if err != nil {
		return "", fmt.Errorf("reading query: %w", err)
	}
	if len(data) == 0 {
		return "", errors.New("query is empty")
	}
	return string(data), nil
}

func parseVars(raw string) (map[string]any, error) {
	if raw == "" {
		return nil, nil
	}
	var vars map[string]any
	if err := json.Unmarshal([]byte(raw), &vars); err != nil {
		return nil, fmt.Errorf("--vars must be a JSON object: %w", err)
	}
	return vars, nil
}

func writeResult(out io.Writer, data json.RawMessage, selector *jmes.JMESPath) error {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("decoding result: %w", err)
	}
	if selector != nil {
		selected, err := selector.Search(doc)
		if err != nil {
			return fmt.Errorf("applying --select: %w", err)
		}
		doc = selected
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

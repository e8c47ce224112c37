package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dgellow/appbridge/internal/graphql"
	"github.com/dgellow/appbridge/internal/session"
)

// probeQuery is valid against any GraphQL schema.
const probeQuery = "{ __typename }"

type statusReport struct {
	Status        string            `json:"status"`
	Mode          string            `json:"mode,omitempty"`
	Identity      *session.Identity `json:"identity,omitempty"`
	SessionCookie bool              `json:"sessionCookie"`
	LoginURL      string            `json:"loginUrl"`
	LogoutURL     string            `json:"logoutUrl"`
	Backend       backendReport     `json:"backend"`
}

type backendReport struct {
	Configured bool   `json:"configured"`
	AppID      string `json:"appId,omitempty"`
	GraphQLURL string `json:"graphqlUrl,omitempty"`
	Probe      string `json:"probe,omitempty"`
}

func statusCmd(root *rootOptions) *cobra.Command {
	var (
		timeout time.Duration
		probe   bool
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Discover the session and report who is signed in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			app, err := root.loadApp(ctx)
			if err != nil {
				return err
			}
			defer closeApp(app)

			report := statusReport{
				SessionCookie: app.HasSessionCookie(),
				Backend:       backendReport{Configured: app.GraphQL().Configured()},
			}
			if inj := app.Injected(); inj != nil {
				report.Backend.AppID = inj.AppID
				report.Backend.GraphQLURL = inj.GraphQLURL
			}

			// Session discovery and the backend probe are independent.
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				st, err := app.WaitSettled(gctx)
				if err != nil {
					return fmt.Errorf("waiting for session discovery: %w", err)
				}
				report.Status = st.Status().String()
				report.Mode = st.Mode
				report.Identity = st.Identity
				return nil
			})
			if probe && report.Backend.Configured {
				g.Go(func() error {
					report.Backend.Probe = probeResult(app.GraphQL().Request(gctx, probeQuery, nil))
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			report.LoginURL = app.Bridge().LoginURL()
			report.LogoutURL = app.Bridge().LogoutURL()

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			printStatus(cmd.OutOrStdout(), report)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.DurationVar(&timeout, "timeout", 10*time.Second, "how long to wait for discovery")
	flags.BoolVar(&probe, "probe", false, "also send a trivial query to the backend")
	flags.BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}

func probeResult(_ json.RawMessage, err error) string {
	var ee *graphql.EndpointError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &ee):
		return fmt.Sprintf("endpoint error (status %d): %s", ee.StatusCode, ee.Message)
	default:
		return err.Error()
	}
}

func printStatus(out io.Writer, r statusReport) {
	fmt.Fprintf(out, "Status:   %s\n", r.Status)
	mode := r.Mode
	if mode == "" {
		mode = "unknown"
	}
	fmt.Fprintf(out, "Mode:     %s\n", mode)
	if r.Identity != nil {
		user := r.Identity.Subject
		if r.Identity.Email != "" {
			user += " <" + r.Identity.Email + ">"
		}
		if r.Identity.Name != "" {
			user = r.Identity.Name + " (" + user + ")"
		}
		fmt.Fprintf(out, "User:     %s\n", user)
	}
	if r.SessionCookie {
		fmt.Fprintln(out, "Cookie:   present")
	} else {
		fmt.Fprintln(out, "Cookie:   absent")
	}
	fmt.Fprintf(out, "Login:    %s\n", r.LoginURL)
	fmt.Fprintf(out, "Logout:   %s\n", r.LogoutURL)

	if !r.Backend.Configured {
		fmt.Fprintln(out, "Backend:  not configured")
		return
	}
	fmt.Fprintf(out, "Backend:  %s (app %s)\n", r.Backend.GraphQLURL, r.Backend.AppID)
	if r.Backend.Probe != "" {
		fmt.Fprintf(out, "Probe:    %s\n", r.Backend.Probe)
	}
}

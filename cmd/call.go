package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"appauth/internal/worker"

	"github.com/spf13/cobra"
)

func newCallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "call [url]",
		Short: "GET a protected resource with a fresh access token",
		Long: `Request a JSON resource with the current access token, refreshing the
token first when it is about to expire.

Without a URL the configured apiEndpoint is used, and failing that the
issuer's userinfo endpoint.

Examples:
  appauth call                                   # Userinfo of the logged in user
  appauth call https://api.example.com/v1/me`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var target string
			if len(args) == 1 {
				target = args[0]
			}
			return runCall(cmd.Context(), cmd.OutOrStdout(), target)
		},
	}
}

func runCall(ctx context.Context, out io.Writer, target string) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	state, err := a.service.State(ctx)
	if err != nil {
		return err
	}
	if err := requireAuthorized(state); err != nil {
		return err
	}

	if target == "" {
		target = a.cfg.APIEndpoint
	}
	if target == "" && state.ServiceConfiguration != nil {
		target = state.ServiceConfiguration.UserinfoEndpoint
	}
	if target == "" {
		return fmt.Errorf("no URL given and neither apiEndpoint nor a userinfo endpoint is known")
	}

	return printResult(out, a.service.CallAPI(ctx, target))
}

func printResult(out io.Writer, result worker.Result) error {
	switch result.Outcome() {
	case worker.OutcomeOK:
		data, err := json.MarshalIndent(result.JSON, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, string(data))
		return err
	case worker.OutcomeReauthorizationRequired:
		return &AuthRequiredError{Reason: "the resource server rejected the access token", Err: result.Err}
	default:
		if result.Err != nil {
			return result.Err
		}
		return fmt.Errorf("request failed with status %d", result.StatusCode)
	}
}

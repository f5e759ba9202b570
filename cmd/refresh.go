package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"
)

func newRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Force a token refresh",
		Long: `Exchange the stored refresh token for a new access token, even if the
current one is still valid.

A refresh token the issuer no longer accepts ends the session; the command
then exits with code 2 and 'appauth login' is required.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRefresh(cmd.Context())
		},
	}
}

func runRefresh(ctx context.Context) error {
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
	if state.RefreshToken == "" {
		return &AuthRequiredError{Reason: "no refresh token is stored"}
	}

	if err := a.service.MarkNeedsTokenRefresh(ctx); err != nil {
		return err
	}
	if err := a.service.PerformActionWithFreshToken(ctx, func(string, string, error) {}); err != nil {
		return err
	}

	state, err = a.service.State(ctx)
	if err != nil {
		return err
	}
	progressf("Token refreshed")
	if state.AccessTokenExpirationTime != nil {
		progressf("  Access token expires %s", formatExpiry(*state.AccessTokenExpirationTime, time.Now()))
	}
	return nil
}

package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

func newLogoutCmd() *cobra.Command {
	var local bool
	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Revoke the stored tokens and forget them",
		Long: `Revoke the refresh token (or, without one, the access token) at the
issuer's revocation endpoint and clear the stored state.

If revocation fails the tokens are kept so that logout can be retried;
use --local to forget them without contacting the issuer.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogout(cmd.Context(), local)
		},
	}
	cmd.Flags().BoolVar(&local, "local", false, "Only forget the tokens, do not revoke them")
	return cmd
}

func runLogout(ctx context.Context, local bool) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if local {
		if err := a.service.Reset(ctx); err != nil {
			return err
		}
		progressf("Local authorization state cleared")
		return nil
	}

	if err := a.service.Revoke(ctx); err != nil {
		return err
	}
	progressf("Logged out")
	return nil
}

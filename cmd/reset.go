package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newResetCmd() *cobra.Command {
	var destroyKeys bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete the stored authorization state",
		Long: `Delete the stored authorization state without contacting the issuer.

With --keys the data encryption key is destroyed as well; a new one is
created on next use.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReset(cmd.Context(), destroyKeys)
		},
	}
	cmd.Flags().BoolVar(&destroyKeys, "keys", false, "Also destroy the data encryption key")
	return cmd
}

func runReset(ctx context.Context, destroyKeys bool) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.service.Reset(ctx); err != nil {
		return err
	}
	if err := a.gateway.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear stored state: %w", err)
	}
	if destroyKeys {
		if err := a.keys.Destroy(ctx); err != nil {
			return fmt.Errorf("failed to destroy key: %w", err)
		}
		progressf("Authorization state and %s key removed", a.keys.BackendName())
		return nil
	}
	progressf("Authorization state removed")
	return nil
}

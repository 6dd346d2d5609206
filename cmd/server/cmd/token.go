package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/tinychat/server/internal/config"
	"github.com/tinychat/server/internal/domain/ids"
)

func newTokenCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "token <user-id>",
		Short: "Issue a bearer token for an existing user",
		Long: `Sign a bearer token for the given user with their current password hash.

The token stops verifying as soon as the user's password changes. Intended
for local tooling and debugging the realtime gateway.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ids.Validate(args[0]); err != nil {
				return err
			}
			cfg, err := root.load()
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			a, err := newApp(ctx, cfg, config.NewLogger(cfg.Logging))
			if err != nil {
				return err
			}
			defer a.Close()

			token, err := a.users.IssueToken(ctx, args[0])
			if err != nil {
				return fmt.Errorf("issue token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
}

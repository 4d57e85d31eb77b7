package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewResetCommand creates the reset command.
func NewResetCommand(rootOpts *RootOptions) *cobra.Command {
	var key keyFlags

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete every row for a key",
		Long: `Delete all progress for a player and module, including history,
and drop the player from the module leaderboard.

Example:
  playledger reset --player p1 --module chem-1`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := key.validate(); err != nil {
				return err
			}
			ctx := cmd.Context()
			b, err := openBackend(ctx, rootOpts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer b.Close(ctx)

			n, err := b.coord.Reset(ctx, key.Player, key.Module)
			if err != nil {
				return domainExit("reset failed", err)
			}
			if rootOpts.Format == "json" {
				return formatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr()).Success(map[string]any{"deleted": n})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d rows\n", n)
			return nil
		},
	}

	cmd.Flags().StringVar(&key.Player, "player", "", "player id (required)")
	cmd.Flags().StringVar(&key.Module, "module", "", "module id (required)")

	return cmd
}

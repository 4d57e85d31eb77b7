package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	var key keyFlags

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the canonical record for a key",
		Long: `Load the canonical record for a player and module.

Loading repairs the key first: invalid rows are removed and duplicates are
collapsed into one.

Example:
  playledger show --player p1 --module chem-1 --format json`,
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

			rec, err := b.coord.LoadCanonical(ctx, key.Player, key.Module)
			if err != nil {
				return domainExit("load failed", err)
			}
			if rootOpts.Format == "json" {
				return formatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr()).Success(rec)
			}
			fmt.Fprintln(cmd.OutOrStdout(), describeRecord(rec))
			return nil
		},
	}

	cmd.Flags().StringVar(&key.Player, "player", "", "player id (required)")
	cmd.Flags().StringVar(&key.Module, "module", "", "module id (required)")

	return cmd
}

package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// NewLeaderboardCommand creates the leaderboard command.
func NewLeaderboardCommand(rootOpts *RootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "leaderboard <module>",
		Short: "Print the best completed results for a module",
		Long: `Print each player's best completed result for a module, best first.
Ties go to the faster time.

Reads the Redis mirror when PLAYLEDGER_REDIS_ADDR is set, the store otherwise.

Example:
  playledger leaderboard chem-1 --limit 10`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			b, err := openBackend(ctx, rootOpts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer b.Close(ctx)

			standings, err := b.ranker.Top(ctx, args[0], limit)
			if err != nil {
				return WrapExitError(ExitStoreError, "failed to read leaderboard", err)
			}
			if rootOpts.Format == "json" {
				return formatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr()).Success(standings)
			}

			w := cmd.OutOrStdout()
			if len(standings) == 0 {
				fmt.Fprintln(w, "No completed results.")
				return nil
			}
			tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RANK\tPLAYER\tSCORE\tTIME")
			for i, st := range standings {
				fmt.Fprintf(tw, "%d\t%s\t%d\t%ds\n", i+1, st.PlayerID, st.Score, st.Time)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "number of players to show (0 for all)")

	return cmd
}

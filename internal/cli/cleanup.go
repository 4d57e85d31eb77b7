package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/playledger/internal/record"
	"github.com/roach88/playledger/internal/syncer"
)

// NewCleanupCommand creates the cleanup command.
func NewCleanupCommand(rootOpts *RootOptions) *cobra.Command {
	var key keyFlags

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Collapse duplicate rows for one key",
		Long: `Collapse the rows of one player and module to at most one.

Invalid rows are deleted. The best valid row survives and the history of the
others is folded into it.

Example:
  playledger cleanup --player p1 --module chem-1`,
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

			report, err := b.coord.CleanupDuplicates(ctx, key.Player, key.Module)
			if err != nil {
				return domainExit("cleanup failed", err)
			}
			if rootOpts.Format == "json" {
				return formatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr()).Success(report)
			}
			printReport(cmd.OutOrStdout(), report)
			return nil
		},
	}

	cmd.Flags().StringVar(&key.Player, "player", "", "player id (required)")
	cmd.Flags().StringVar(&key.Module, "module", "", "module id (required)")

	return cmd
}

// NewRepairCommand creates the repair command.
func NewRepairCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "repair",
		Short: "Clean up every key holding duplicate rows",
		Long: `Find every player and module with more than one row and clean each up.

Example:
  playledger repair --db ./playledger.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			b, err := openBackend(ctx, rootOpts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer b.Close(ctx)

			keys, err := b.store.DuplicateKeys(ctx)
			if err != nil {
				return WrapExitError(ExitStoreError, "failed to list duplicate keys", err)
			}

			reports := make([]syncer.CleanupReport, 0, len(keys))
			var failed []record.Key
			for _, k := range keys {
				report, err := b.coord.CleanupDuplicates(ctx, k.PlayerID, k.ModuleID)
				if err != nil {
					b.log.Error("repair failed", "player_id", k.PlayerID, "module_id", k.ModuleID, "error", err)
					failed = append(failed, k)
					continue
				}
				reports = append(reports, report)
			}

			if rootOpts.Format == "json" {
				if err := formatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr()).Success(reports); err != nil {
					return err
				}
			} else {
				w := cmd.OutOrStdout()
				if len(keys) == 0 {
					fmt.Fprintln(w, "No duplicate rows found.")
				}
				for _, r := range reports {
					printReport(w, r)
				}
			}
			if len(failed) > 0 {
				return NewExitError(ExitStoreError, fmt.Sprintf("%d key(s) could not be repaired", len(failed)))
			}
			return nil
		},
	}
}

func printReport(w io.Writer, r syncer.CleanupReport) {
	fmt.Fprintf(w, "%s/%s: scanned %d, removed %d (%d invalid), passes %d\n",
		r.PlayerID, r.ModuleID, r.Scanned, r.Removed(), len(r.Invalid), r.Passes)
	if r.Anomaly {
		fmt.Fprintln(w, "  warning: more than one row persisted")
	}
	fmt.Fprintf(w, "  %s\n", describeRecord(r.Survivor))
}

package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/playledger/internal/record"
	"github.com/roach88/playledger/internal/syncer"
)

// SubmitOptions holds flags for the submit command.
type SubmitOptions struct {
	*RootOptions
	keyFlags
	Score     int
	Time      int
	Completed bool
	Progress  string
}

// NewSubmitCommand creates the submit command.
func NewSubmitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SubmitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Write a raw attempt",
		Long: `Write one attempt for a player and module.

Without --completed the attempt is a checkpoint: it never touches score
history and is skipped when the stored record is completed or scores higher.
With --completed the attempt is finalized into the top-three history and the
key's duplicate rows are cleaned up.

Examples:
  playledger submit --player p1 --module chem-1 --score 40 --time 95
  playledger submit --player p1 --module chem-1 --score 120 --time 210 --completed`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubmit(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Player, "player", "", "player id (required)")
	cmd.Flags().StringVar(&opts.Module, "module", "", "module id (required)")
	cmd.Flags().IntVar(&opts.Score, "score", 0, "attempt score")
	cmd.Flags().IntVar(&opts.Time, "time", 0, "elapsed seconds")
	cmd.Flags().BoolVar(&opts.Completed, "completed", false, "finalize the attempt")
	cmd.Flags().StringVar(&opts.Progress, "progress", "{}", "progress JSON object")

	return cmd
}

func runSubmit(opts *SubmitOptions, cmd *cobra.Command) error {
	if err := opts.keyFlags.validate(); err != nil {
		return err
	}
	if !json.Valid([]byte(opts.Progress)) {
		return NewExitError(ExitCommandError, "--progress must be valid JSON")
	}

	ctx := cmd.Context()
	b, err := openBackend(ctx, opts.RootOptions, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer b.Close(ctx)

	a := record.AttemptRecord{
		PlayerID:       opts.Player,
		ModuleID:       opts.Module,
		Score:          opts.Score,
		ElapsedSeconds: opts.Time,
		Completed:      opts.Completed,
		Progress:       json.RawMessage(opts.Progress),
		Timestamp:      time.Now().UTC(),
	}

	write := b.coord.Checkpoint
	if opts.Completed {
		write = b.coord.Finalize
	}
	res, err := write(ctx, opts.Player, opts.Module, a)
	if err != nil {
		return domainExit("submit failed", err)
	}
	return printResult(opts.RootOptions, cmd, res)
}

func printResult(opts *RootOptions, cmd *cobra.Command, res syncer.Result) error {
	if opts.Format == "json" {
		return formatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr()).Success(res)
	}
	w := cmd.OutOrStdout()
	if res.Reason != "" {
		fmt.Fprintf(w, "%s (%s)\n", res.Outcome, res.Reason)
	} else {
		fmt.Fprintln(w, res.Outcome)
	}
	fmt.Fprintln(w, describeRecord(res.Record))
	if res.Cleanup != nil && res.Cleanup.Removed() > 0 {
		fmt.Fprintf(w, "removed %d duplicate or invalid rows\n", res.Cleanup.Removed())
	}
	return nil
}

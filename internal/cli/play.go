package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/playledger/internal/board"
	"github.com/roach88/playledger/internal/content"
	"github.com/roach88/playledger/internal/record"
	"github.com/roach88/playledger/internal/syncer"
)

// PlayOptions holds flags for the play command.
type PlayOptions struct {
	*RootOptions
	Player  string
	Module  string
	Cells   []int // explicit selections; empty answers every prompt correctly
	Prompts []int // prompt order; empty prompts randomly
	Moves   int   // cap on selections, 0 for no cap
	Seconds int   // seconds spent per selection
	Finish  bool  // finalize even when the board is not complete
	Resume  bool  // continue the stored in-progress session
}

// PlaySummary is the JSON payload of the play command.
type PlaySummary struct {
	Session  board.Snapshot `json:"session"`
	Accepted int            `json:"accepted"`
	Rejected int            `json:"rejected"`
	Resumed  bool           `json:"resumed"`
	Result   *syncer.Result `json:"result,omitempty"`
}

// NewPlayCommand creates the play command.
func NewPlayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PlayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "play <deck-file>",
		Short: "Play a scripted board session from a deck",
		Long: `Play a board session built from a deck file (.yaml, .json or .cue).

Each selection is checkpointed through the autosaver. When the board is
complete, or with --finish, the attempt is finalized into the score history.
Without --cells every prompt is answered correctly.

Examples:
  playledger play decks/biology.yaml --player p1
  playledger play decks/biology.yaml --player p1 --moves 6
  playledger play decks/biology.yaml --player p1 --resume --finish
  playledger play decks/warmup.cue --player p1 --cells 0,3,1 --prompts 0,1,2,3`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlay(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Player, "player", "", "player id (required)")
	cmd.Flags().StringVar(&opts.Module, "module", "", "module id (defaults to the deck's module)")
	cmd.Flags().IntSliceVar(&opts.Cells, "cells", nil, "cells to select, in order")
	cmd.Flags().IntSliceVar(&opts.Prompts, "prompts", nil, "prompt order")
	cmd.Flags().IntVar(&opts.Moves, "moves", 0, "maximum number of selections (0 for no limit)")
	cmd.Flags().IntVar(&opts.Seconds, "seconds", 5, "seconds spent per selection")
	cmd.Flags().BoolVar(&opts.Finish, "finish", false, "finalize even if the board is not complete")
	cmd.Flags().BoolVar(&opts.Resume, "resume", false, "resume the stored in-progress session")

	return cmd
}

func runPlay(opts *PlayOptions, deckPath string, cmd *cobra.Command) error {
	if opts.Player == "" {
		return NewExitError(ExitCommandError, "--player is required")
	}
	if opts.Seconds < 0 || opts.Moves < 0 {
		return NewExitError(ExitCommandError, "--seconds and --moves must not be negative")
	}

	deck, err := content.Load(deckPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load deck", err)
	}
	module := opts.Module
	if module == "" {
		module = deck.Module
	}

	ctx := cmd.Context()
	b, err := openBackend(ctx, opts.RootOptions, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer b.Close(ctx)

	engineOpts := []board.Option{board.WithLineReward(b.cfg.LineReward)}
	if len(opts.Prompts) > 0 {
		engineOpts = append(engineOpts, board.WithPicker(board.ScriptedPicker(opts.Prompts...)))
	}
	engine, err := board.New(deck.Side, engineOpts...)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid board", err)
	}

	summary := PlaySummary{}
	session, resumed, err := startSession(ctx, b, engine, deck, opts.Player, module, opts.Resume)
	if err != nil {
		return err
	}
	summary.Resumed = resumed
	out := formatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	out.VerboseLog("session %s on %s (%dx%d), resumed=%t", session.ID, module, deck.Side, deck.Side, resumed)

	saver := syncer.NewAutosaver(b.coord, opts.Player, module, b.cfg.CheckpointInterval, b.log)
	runCtx, stop := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		saver.Run(runCtx)
	}()

	for move := 0; !session.IsComplete; move++ {
		if opts.Moves > 0 && move >= opts.Moves {
			break
		}
		cell := engine.PromptCell(session)
		if len(opts.Cells) > 0 {
			if move >= len(opts.Cells) {
				break
			}
			cell = opts.Cells[move]
		}

		prompt := session.CurrentPrompt
		engine.Tick(session, opts.Seconds)
		res := engine.SelectCell(session, cell)
		if res.Accepted {
			summary.Accepted++
			out.VerboseLog("cell %d accepted for %q: +%d (%d lines)", cell, prompt, res.ScoreDelta, len(res.NewLines))
		} else {
			summary.Rejected++
			out.VerboseLog("cell %d rejected for %q: %s", cell, prompt, res.Reason)
		}

		att, err := record.Checkpoint(session, opts.Player, module, time.Now())
		if err != nil {
			stop()
			<-done
			return domainExit("failed to build checkpoint", err)
		}
		saver.Offer(att)
	}
	stop()
	<-done

	var res syncer.Result
	if session.IsComplete || opts.Finish {
		final, err := record.Finalize(session, opts.Player, module, time.Now())
		if err != nil {
			return domainExit("failed to build final attempt", err)
		}
		if res, err = saver.Flush(ctx, final); err != nil {
			return domainExit("finalize failed", err)
		}
	} else {
		if err := saver.SaveNow(ctx); err != nil {
			return domainExit("checkpoint failed", err)
		}
		rec, err := b.coord.LoadCanonical(ctx, opts.Player, module)
		if err != nil {
			return domainExit("load failed", err)
		}
		res = syncer.Result{Outcome: syncer.OutcomeUnchanged, Record: rec}
	}
	summary.Session = session.Snapshot()
	summary.Result = &res

	if opts.Format == "json" {
		return out.Success(summary)
	}
	w := cmd.OutOrStdout()
	state := "in progress"
	if session.IsComplete {
		state = "complete"
	}
	fmt.Fprintf(w, "Board %s: score %d in %ds, %d lines, %d accepted, %d rejected\n",
		state, session.Score, session.ElapsedSeconds, len(session.CompletedLines), summary.Accepted, summary.Rejected)
	return printResult(opts.RootOptions, cmd, res)
}

// startSession resumes the stored in-progress session when asked and
// possible, and starts a fresh one otherwise.
func startSession(ctx context.Context, b *backend, engine *board.Engine, deck *content.Deck, player, module string, resume bool) (*board.Session, bool, error) {
	if resume {
		rec, err := b.coord.LoadCanonical(ctx, player, module)
		if err != nil {
			return nil, false, domainExit("load failed", err)
		}
		if rec != nil && !rec.Completed && len(rec.Progress) > 0 {
			var snap board.Snapshot
			if err := json.Unmarshal(rec.Progress, &snap); err == nil && snap.Side == deck.Side {
				s, err := engine.Resume(deck.Items, snap)
				if err == nil {
					return s, true, nil
				}
				b.log.Warn("stored progress does not resume, starting over", "error", err)
			}
		}
	}
	s, err := engine.Initialize(deck.Items, deck.FreeCell)
	if err != nil {
		return nil, false, WrapExitError(ExitCommandError, "failed to start session", err)
	}
	return s, false, nil
}

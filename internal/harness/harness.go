package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/roach88/playledger/internal/board"
	"github.com/roach88/playledger/internal/content"
	"github.com/roach88/playledger/internal/errs"
	"github.com/roach88/playledger/internal/leaderboard"
	"github.com/roach88/playledger/internal/record"
	"github.com/roach88/playledger/internal/store"
	"github.com/roach88/playledger/internal/syncer"
	"github.com/roach88/playledger/internal/testutil"
)

// Harness is the scenario execution state.
type Harness struct {
	scenario *Scenario
	store    *store.Store
	coord    *syncer.Coordinator
	saver    *syncer.Autosaver
	ranker   *leaderboard.SQLRanker
	clock    *testutil.DeterministicClock
	deck     *content.Deck
	engine   *board.Engine
	session  *board.Session
	sessions int
	module   string
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation. A failed
// expectation or assertion marks the result as failed; an error is returned
// only when the scenario could not be executed at all.
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	start := scenario.Start
	if start.IsZero() {
		start = DefaultStart
	}

	h := &Harness{
		scenario: scenario,
		store:    st,
		clock:    testutil.NewDeterministicClock(start, time.Second),
		ranker:   leaderboard.NewSQLRanker(st),
		module:   scenario.Module,
	}
	if scenario.Deck != "" {
		if h.deck, err = content.Load(scenario.Deck); err != nil {
			return nil, fmt.Errorf("failed to load deck: %w", err)
		}
		if h.module == "" {
			h.module = h.deck.Module
		}
	}

	logger := slog.New(slog.DiscardHandler)
	h.coord = syncer.New(st,
		syncer.WithLogger(logger),
		syncer.WithClock(h.clock),
		syncer.WithPublisher(h.ranker),
		syncer.WithRetryPolicy(syncer.RetryPolicy{MaxTries: 3, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}),
	)
	h.saver = syncer.NewAutosaver(h.coord, scenario.Player, h.module, 0, logger)

	ctx := context.Background()
	if err := h.seed(ctx); err != nil {
		return nil, fmt.Errorf("failed to seed rows: %w", err)
	}

	result := NewResult()
	for i, step := range scenario.Flow {
		ev, err := h.execute(ctx, step)
		if err != nil {
			return nil, fmt.Errorf("flow step %d (%s): %w", i, step.Action, err)
		}
		ev = result.AddEvent(ev)
		for _, msg := range checkExpect(step.Expect, ev) {
			result.AddError(fmt.Sprintf("flow[%d] %s: %s", i, step.Action, msg))
		}
	}

	if err := h.collectState(ctx, result); err != nil {
		return nil, fmt.Errorf("failed to read final state: %w", err)
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) seed(ctx context.Context) error {
	for i, s := range h.scenario.Seed {
		player := s.Player
		if player == "" {
			player = h.scenario.Player
		}
		progress := s.Progress
		if progress == "" {
			progress = "{}"
		}
		now := h.clock.Now()
		row := record.Row{
			PlayerID:     player,
			ModuleID:     h.module,
			Score:        s.Score,
			Time:         s.Time,
			ScoreHistory: s.ScoreHistory,
			TimeHistory:  s.TimeHistory,
			Progress:     json.RawMessage(progress),
			IsCompleted:  s.Completed,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if _, err := h.store.InsertRow(ctx, row); err != nil {
			return fmt.Errorf("seed[%d]: %w", i, err)
		}
	}
	return nil
}

// execute runs one step. Domain failures are reported in the event; only
// harness failures are returned.
func (h *Harness) execute(ctx context.Context, step FlowStep) (TraceEvent, error) {
	switch step.Action {
	case StepStart:
		return h.start()
	case StepAnswer:
		return h.selectCell(StepAnswer, h.engine.PromptCell(h.session)), nil
	case StepSelect:
		return h.selectCell(StepSelect, *step.Cell), nil
	case StepTick:
		h.engine.Tick(h.session, step.Seconds)
		return TraceEvent{
			Action:  StepTick,
			Args:    map[string]any{"seconds": step.Seconds},
			Outcome: "ticked",
			Result:  map[string]any{"elapsed": h.session.ElapsedSeconds},
		}, nil
	case StepCheckpoint, StepFinalize:
		return h.saveSession(ctx, step.Action)
	case StepAutosave:
		return h.autosave(ctx)
	case StepSubmit:
		return h.submit(ctx, step)
	case StepCleanup:
		report, err := h.coord.CleanupDuplicates(ctx, h.scenario.Player, h.module)
		if err != nil {
			return errorEvent(StepCleanup, nil, err), nil
		}
		return TraceEvent{
			Action:  StepCleanup,
			Outcome: "cleaned",
			Result: map[string]any{
				"duplicates": len(report.Duplicates),
				"invalid":    len(report.Invalid),
				"passes":     report.Passes,
			},
		}, nil
	case StepReset:
		n, err := h.coord.Reset(ctx, h.scenario.Player, h.module)
		if err != nil {
			return errorEvent(StepReset, nil, err), nil
		}
		return TraceEvent{Action: StepReset, Outcome: "reset", Result: map[string]any{"deleted": n}}, nil
	default:
		return TraceEvent{}, fmt.Errorf("unknown action %q", step.Action)
	}
}

func (h *Harness) start() (TraceEvent, error) {
	opts := []board.Option{
		board.WithPicker(board.ScriptedPicker(h.scenario.Prompts...)),
		board.WithIDGenerator(board.NewFixedGenerator(fmt.Sprintf("session-%d", h.sessions+1))),
	}
	if h.scenario.LineReward > 0 {
		opts = append(opts, board.WithLineReward(h.scenario.LineReward))
	}
	e, err := board.New(h.deck.Side, opts...)
	if err != nil {
		return TraceEvent{}, err
	}
	s, err := e.Initialize(h.deck.Items, h.deck.FreeCell)
	if err != nil {
		return TraceEvent{}, err
	}
	h.engine, h.session = e, s
	h.sessions++
	return TraceEvent{
		Action:  StepStart,
		Args:    map[string]any{"side": h.deck.Side},
		Outcome: "started",
		Result:  map[string]any{"prompt": s.CurrentPrompt, "score": s.Score},
	}, nil
}

func (h *Harness) selectCell(action string, idx int) TraceEvent {
	res := h.engine.SelectCell(h.session, idx)
	ev := TraceEvent{Action: action, Args: map[string]any{"cell": idx}}
	if !res.Accepted {
		ev.Outcome = "rejected"
		ev.Result = map[string]any{"reason": string(res.Reason)}
		return ev
	}
	ev.Outcome = "accepted"
	ev.Result = map[string]any{"lines": len(res.NewLines), "score": h.session.Score}
	return ev
}

func (h *Harness) saveSession(ctx context.Context, action string) (TraceEvent, error) {
	build := record.Checkpoint
	write := h.coord.Checkpoint
	if action == StepFinalize {
		build = record.Finalize
		write = h.coord.Finalize
	}
	args := map[string]any{"score": h.session.Score, "time": h.session.ElapsedSeconds}

	a, err := build(h.session, h.scenario.Player, h.module, h.clock.Now())
	if err != nil {
		return errorEvent(action, args, err), nil
	}
	res, err := write(ctx, h.scenario.Player, h.module, a)
	if err != nil {
		return errorEvent(action, args, err), nil
	}
	return writeEvent(action, args, res), nil
}

func (h *Harness) autosave(ctx context.Context) (TraceEvent, error) {
	args := map[string]any{"score": h.session.Score, "time": h.session.ElapsedSeconds}
	a, err := record.Checkpoint(h.session, h.scenario.Player, h.module, h.clock.Now())
	if err != nil {
		return errorEvent(StepAutosave, args, err), nil
	}
	h.saver.Offer(a)
	if err := h.saver.SaveNow(ctx); err != nil {
		return errorEvent(StepAutosave, args, err), nil
	}
	return TraceEvent{Action: StepAutosave, Args: args, Outcome: "saved"}, nil
}

func (h *Harness) submit(ctx context.Context, step FlowStep) (TraceEvent, error) {
	args := map[string]any{"score": step.Score, "time": step.Time, "completed": step.Completed}
	a := record.AttemptRecord{
		PlayerID:       h.scenario.Player,
		ModuleID:       h.module,
		Score:          step.Score,
		ElapsedSeconds: step.Time,
		Completed:      step.Completed,
		Progress:       json.RawMessage(`{}`),
		Timestamp:      h.clock.Now(),
	}
	write := h.coord.Checkpoint
	if step.Completed {
		write = h.coord.Finalize
	}
	res, err := write(ctx, h.scenario.Player, h.module, a)
	if err != nil {
		return errorEvent(StepSubmit, args, err), nil
	}
	return writeEvent(StepSubmit, args, res), nil
}

func (h *Harness) collectState(ctx context.Context, result *Result) error {
	rows, err := h.store.Select(ctx, h.scenario.Player, h.module)
	if err != nil {
		return err
	}
	result.Rows = len(rows)

	if result.Record, err = h.coord.LoadCanonical(ctx, h.scenario.Player, h.module); err != nil {
		return err
	}
	if result.Standings, err = h.ranker.Top(ctx, h.module, 0); err != nil {
		return err
	}
	return nil
}

func writeEvent(action string, args map[string]any, res syncer.Result) TraceEvent {
	ev := TraceEvent{Action: action, Args: args, Outcome: string(res.Outcome), Result: map[string]any{}}
	if res.Reason != "" {
		ev.Result["reason"] = res.Reason
	}
	if rec := res.Record; rec != nil {
		ev.Result["completed"] = rec.Completed
		ev.Result["current_score"] = rec.CurrentScore
		ev.Result["current_time"] = rec.CurrentTime
		ev.Result["score_history"] = nonNil(rec.ScoreHistory)
		ev.Result["time_history"] = nonNil(rec.TimeHistory)
	}
	if res.Cleanup != nil {
		ev.Result["removed"] = res.Cleanup.Removed()
	}
	return ev
}

func errorEvent(action string, args map[string]any, err error) TraceEvent {
	code := string(errs.CodeOf(err))
	if code == "" {
		code = "UNKNOWN"
	}
	return TraceEvent{
		Action:  action,
		Args:    args,
		Outcome: "error",
		Result:  map[string]any{"error": code},
		Err:     err,
	}
}

func nonNil(s []int) []int {
	if s == nil {
		return []int{}
	}
	return slices.Clone(s)
}

// checkExpect compares a step's event with its expect clause.
func checkExpect(exp *ExpectClause, ev TraceEvent) []string {
	if exp == nil {
		if ev.Outcome == "error" {
			return []string{fmt.Sprintf("unexpected error: %v", ev.Err)}
		}
		return nil
	}

	var msgs []string
	if exp.Error != "" {
		if ev.Outcome != "error" || ev.Result["error"] != exp.Error {
			msgs = append(msgs, fmt.Sprintf("expected error %s, got outcome %s %v", exp.Error, ev.Outcome, ev.Result["error"]))
		}
		return msgs
	}
	if ev.Outcome == "error" {
		return []string{fmt.Sprintf("unexpected error: %v", ev.Err)}
	}
	if exp.Outcome != "" && ev.Outcome != exp.Outcome {
		msgs = append(msgs, fmt.Sprintf("expected outcome %s, got %s", exp.Outcome, ev.Outcome))
	}
	if exp.Reason != "" && ev.Result["reason"] != exp.Reason {
		msgs = append(msgs, fmt.Sprintf("expected reason %q, got %v", exp.Reason, ev.Result["reason"]))
	}
	if exp.Score != nil {
		got, ok := ev.Result["score"]
		if !ok {
			got, ok = ev.Result["current_score"]
		}
		if !ok || got != *exp.Score {
			msgs = append(msgs, fmt.Sprintf("expected score %d, got %v", *exp.Score, got))
		}
	}
	if exp.Lines != nil && ev.Result["lines"] != *exp.Lines {
		msgs = append(msgs, fmt.Sprintf("expected %d lines, got %v", *exp.Lines, ev.Result["lines"]))
	}
	return msgs
}

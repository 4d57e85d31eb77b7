package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultStart is the instant the deterministic clock starts at when a
// scenario does not set one.
var DefaultStart = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// Scenario defines one reproducible run of the persistence layer.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Deck is the path to a deck file, relative to the scenario file.
	// Required when the flow plays a board.
	Deck string `yaml:"deck,omitempty"`

	// Player and Module form the key every step writes to. Module defaults
	// to the deck's module.
	Player string `yaml:"player"`
	Module string `yaml:"module,omitempty"`

	// Prompts steers which cells the board prompts for, in order. Without it
	// the lowest unselected cell is prompted.
	Prompts []int `yaml:"prompts,omitempty"`

	// LineReward overrides the per-line reward when positive.
	LineReward int `yaml:"line_reward,omitempty"`

	// Start overrides DefaultStart. The clock advances one second per reading.
	Start time.Time `yaml:"start,omitempty"`

	// Seed rows are inserted directly into the store before the flow.
	Seed []SeedRow `yaml:"seed,omitempty"`

	// Flow is the ordered list of steps.
	Flow []FlowStep `yaml:"flow"`

	// Assertions validate the trace and the final state.
	Assertions []Assertion `yaml:"assertions"`
}

// SeedRow is a row written around the coordinator.
type SeedRow struct {
	Player       string `yaml:"player,omitempty"`
	Score        int    `yaml:"score"`
	Time         int    `yaml:"time"`
	ScoreHistory []int  `yaml:"score_history,omitempty"`
	TimeHistory  []int  `yaml:"time_history,omitempty"`
	Completed    bool   `yaml:"completed,omitempty"`
	Progress     string `yaml:"progress,omitempty"`
}

// Step actions.
const (
	StepStart      = "start"
	StepAnswer     = "answer"
	StepSelect     = "select"
	StepTick       = "tick"
	StepCheckpoint = "checkpoint"
	StepFinalize   = "finalize"
	StepSubmit     = "submit"
	StepAutosave   = "autosave"
	StepCleanup    = "cleanup"
	StepReset      = "reset"
)

var boardSteps = map[string]bool{
	StepAnswer:     true,
	StepSelect:     true,
	StepTick:       true,
	StepCheckpoint: true,
	StepFinalize:   true,
	StepAutosave:   true,
}

// FlowStep is one action in the flow.
type FlowStep struct {
	Action string `yaml:"action"`

	// Cell is the index chosen by a select step.
	Cell *int `yaml:"cell,omitempty"`

	// Seconds advances the session clock in a tick step.
	Seconds int `yaml:"seconds,omitempty"`

	// Score, Time and Completed describe the raw attempt of a submit step.
	Score     int  `yaml:"score,omitempty"`
	Time      int  `yaml:"time,omitempty"`
	Completed bool `yaml:"completed,omitempty"`

	// Expect validates the step's outcome. Nil accepts anything but errors.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause constrains the outcome of one step. Empty fields are not
// checked.
type ExpectClause struct {
	// Outcome is the trace outcome, e.g. "accepted", "inserted", "skipped".
	Outcome string `yaml:"outcome,omitempty"`

	// Reason is the skip or rejection reason.
	Reason string `yaml:"reason,omitempty"`

	// Error is the expected error code, e.g. "VALIDATION".
	Error string `yaml:"error,omitempty"`

	// Score is the session score after a board step, or the canonical
	// current score after a write.
	Score *int `yaml:"score,omitempty"`

	// Lines is the number of lines a selection completed.
	Lines *int `yaml:"lines,omitempty"`
}

// Assertion validates the trace or the final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Action is the step action counted by trace_count.
	Action string `yaml:"action,omitempty"`

	// Outcome narrows trace_count to steps with this outcome.
	Outcome string `yaml:"outcome,omitempty"`

	// Count is the expected number for trace_count and row_count.
	Count int `yaml:"count"`

	// Outcomes is the expected order for trace_order.
	Outcomes []string `yaml:"outcomes,omitempty"`

	// Expect holds the record fields checked by final_record: current_score,
	// current_time, score_history, time_history, completed.
	Expect map[string]any `yaml:"expect,omitempty"`

	// Players is the expected leaderboard order for leaderboard.
	Players []string `yaml:"players,omitempty"`
}

// Assertion types.
const (
	AssertTraceCount  = "trace_count"
	AssertTraceOrder  = "trace_order"
	AssertFinalRecord = "final_record"
	AssertNoRecord    = "no_record"
	AssertRowCount    = "row_count"
	AssertLeaderboard = "leaderboard"
)

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected so typos fail loudly. The deck path is
// resolved relative to the scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Deck != "" && !filepath.IsAbs(scenario.Deck) {
		scenario.Deck = filepath.Join(filepath.Dir(path), scenario.Deck)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Player == "" {
		return fmt.Errorf("player is required")
	}
	if s.Deck == "" && s.Module == "" {
		return fmt.Errorf("module is required when no deck is given")
	}
	if s.Deck != "" {
		if _, err := os.Stat(s.Deck); os.IsNotExist(err) {
			return fmt.Errorf("deck file not found: %s", s.Deck)
		}
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	started := false
	for i, step := range s.Flow {
		switch step.Action {
		case StepStart:
			if s.Deck == "" {
				return fmt.Errorf("flow[%d]: start needs a deck", i)
			}
			started = true
		case StepSelect:
			if step.Cell == nil {
				return fmt.Errorf("flow[%d]: cell is required for select", i)
			}
		case StepTick:
			if step.Seconds <= 0 {
				return fmt.Errorf("flow[%d]: seconds must be positive for tick", i)
			}
		case StepAnswer, StepCheckpoint, StepFinalize, StepAutosave, StepSubmit, StepCleanup, StepReset:
		case "":
			return fmt.Errorf("flow[%d]: action is required", i)
		default:
			return fmt.Errorf("flow[%d]: unknown action %q", i, step.Action)
		}
		if boardSteps[step.Action] && !started {
			return fmt.Errorf("flow[%d]: %s before start", i, step.Action)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertTraceCount:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertTraceOrder:
		if len(a.Outcomes) == 0 {
			return fmt.Errorf("assertions[%d]: outcomes list is required for trace_order", index)
		}
	case AssertFinalRecord:
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_record", index)
		}
	case AssertRowCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for row_count", index)
		}
	case AssertNoRecord, AssertLeaderboard:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

package harness

import (
	"fmt"
	"slices"
	"strings"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s -> %s %v\n", ev.Seq, ev.Action, ev.Outcome, ev.Result)
		}
	}
	return buf.String()
}

// EvaluateAssertions runs every assertion and returns the failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var msgs []string
	for i, a := range assertions {
		if err := evaluate(result, a); err != nil {
			msgs = append(msgs, fmt.Sprintf("assertion %d: %s", i, err.Error()))
		}
	}
	return msgs
}

func evaluate(result *Result, a Assertion) error {
	switch a.Type {
	case AssertTraceCount:
		return assertTraceCount(result.Trace, a)
	case AssertTraceOrder:
		return assertTraceOrder(result.Trace, a)
	case AssertFinalRecord:
		return assertFinalRecord(result, a)
	case AssertNoRecord:
		if result.Record != nil {
			return &AssertionError{Type: a.Type, Expected: "no canonical record", Actual: fmt.Sprintf("record with score %d", result.Record.CurrentScore)}
		}
		return nil
	case AssertRowCount:
		if result.Rows != a.Count {
			return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("%d rows", a.Count), Actual: fmt.Sprintf("%d rows", result.Rows)}
		}
		return nil
	case AssertLeaderboard:
		return assertLeaderboard(result, a)
	default:
		return fmt.Errorf("unknown assertion type: %s", a.Type)
	}
}

// assertTraceCount checks how many steps ran the action, optionally
// restricted to one outcome.
func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, ev := range trace {
		if ev.Action == a.Action && (a.Outcome == "" || ev.Outcome == a.Outcome) {
			count++
		}
	}
	if count != a.Count {
		what := a.Action
		if a.Outcome != "" {
			what += " (" + a.Outcome + ")"
		}
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", a.Count, what),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertTraceOrder checks that the outcomes appear in order. Other steps
// may appear in between.
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	next := 0
	for _, ev := range trace {
		if next < len(a.Outcomes) && ev.Outcome == a.Outcomes[next] {
			next++
		}
	}
	if next < len(a.Outcomes) {
		return &AssertionError{
			Type:     AssertTraceOrder,
			Expected: fmt.Sprintf("outcomes in order: %v", a.Outcomes),
			Actual:   fmt.Sprintf("missing %s after position %d", a.Outcomes[next], next),
			Trace:    trace,
		}
	}
	return nil
}

// assertFinalRecord compares the listed fields of the canonical record.
func assertFinalRecord(result *Result, a Assertion) error {
	rec := result.Record
	if rec == nil {
		return &AssertionError{Type: AssertFinalRecord, Expected: "a canonical record", Actual: "none"}
	}
	actual := map[string]any{
		"current_score": rec.CurrentScore,
		"current_time":  rec.CurrentTime,
		"score_history": nonNil(rec.ScoreHistory),
		"time_history":  nonNil(rec.TimeHistory),
		"completed":     rec.Completed,
	}
	keys := make([]string, 0, len(a.Expect))
	for k := range a.Expect {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	for _, field := range keys {
		got, ok := actual[field]
		if !ok {
			return fmt.Errorf("final_record: unknown field %q", field)
		}
		if !matchValue(a.Expect[field], got) {
			return &AssertionError{
				Type:     AssertFinalRecord,
				Expected: fmt.Sprintf("%s = %v", field, a.Expect[field]),
				Actual:   fmt.Sprintf("%s = %v", field, got),
			}
		}
	}
	return nil
}

func assertLeaderboard(result *Result, a Assertion) error {
	players := make([]string, len(result.Standings))
	for i, st := range result.Standings {
		players[i] = st.PlayerID
	}
	want := a.Players
	if want == nil {
		want = []string{}
	}
	if !slices.Equal(players, want) {
		return &AssertionError{
			Type:     AssertLeaderboard,
			Expected: fmt.Sprintf("%v", want),
			Actual:   fmt.Sprintf("%v", players),
		}
	}
	return nil
}

// matchValue compares a YAML-decoded expectation with an actual value.
// YAML yields int for integers and []any for sequences.
func matchValue(expected, actual any) bool {
	switch act := actual.(type) {
	case int:
		exp, ok := expected.(int)
		return ok && exp == act
	case bool:
		exp, ok := expected.(bool)
		return ok && exp == act
	case []int:
		exp, ok := expected.([]any)
		if !ok || len(exp) != len(act) {
			return false
		}
		for i := range act {
			if n, ok := exp[i].(int); !ok || n != act[i] {
				return false
			}
		}
		return true
	default:
		return false
	}
}

package runner

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/craftlab/lodestone/pkg/fault"
	"github.com/craftlab/lodestone/pkg/story"
)

// healthTolerance is the EQ/NE window for floating-point health values.
const healthTolerance = 1e-3

// evalAssertion evaluates one assertion-section action against the
// backend and the current stores. The returned outcome never carries an
// error for a plain false result; infrastructure failures (backend
// errors, unbound references) are returned separately so the step record
// can carry the fault kind.
func (e *Engine) evalAssertion(ctx context.Context, act *story.Action, st *stores) (story.AssertionOutcome, error) {
	out := story.AssertionOutcome{Name: act.DisplayName()}

	switch act.Kind {
	case story.KindEntityHealth:
		actual, err := e.backend.GetEntityHealth(ctx, act.EntityName())
		if err != nil {
			return out, err
		}
		want, ok := asFloat(act.Value)
		if !ok {
			return out, fault.New(fault.ValidationFailed, "entity_health value %v is not numeric", act.Value)
		}
		out.Passed, err = compareHealth(actual, want, strings.ToUpper(act.Condition))
		if err != nil {
			return out, err
		}
		out.Message = fmt.Sprintf("entity %q health %.3f %s %.3f", act.EntityName(), actual, act.Condition, want)

	case story.KindEntityExists, story.KindAssertEntityExists:
		exists, err := e.backend.EntityExists(ctx, act.EntityName())
		if err != nil {
			return out, err
		}
		want := expectedBool(act.Expected, true)
		out.Passed = exists == want
		out.Message = fmt.Sprintf("entity %q exists=%v (want %v)", act.EntityName(), exists, want)

	case story.KindAssertEntityMissing:
		exists, err := e.backend.EntityExists(ctx, act.EntityName())
		if err != nil {
			return out, err
		}
		out.Passed = !exists
		out.Message = fmt.Sprintf("entity %q exists=%v (want missing)", act.EntityName(), exists)

	case story.KindPlayerInventory, story.KindAssertPlayerHasItem:
		has, detail, err := e.playerHasItem(ctx, act.Player, act.Item, act.Slot)
		if err != nil {
			return out, err
		}
		want := true
		if act.Kind == story.KindPlayerInventory {
			want = expectedBool(act.Expected, true)
		}
		out.Passed = has == want
		out.Message = fmt.Sprintf("player %q has %q = %v (want %v)", act.Player, act.Item, has, want)
		out.Details = detail

	case story.KindAssertResponseContains:
		src, err := st.loadOperand(act.Source)
		if err != nil {
			return out, err
		}
		text := stringify(src)
		out.Passed = strings.Contains(text, act.Contains)
		out.Message = fmt.Sprintf("source contains %q = %v", act.Contains, out.Passed)
		out.Details = text

	case story.KindAssertLogContains:
		text := ""
		if e.logs != nil {
			text = e.logs.Text("server", "rcon")
		}
		out.Passed = strings.Contains(text, act.Contains)
		out.Message = fmt.Sprintf("server log contains %q = %v", act.Contains, out.Passed)

	case story.KindAssertJSONEquals:
		src, err := st.loadOperand(act.Source)
		if err != nil {
			return out, err
		}
		expected := act.Expected
		if s, ok := expected.(string); ok {
			if parsed, perr := parseJSONOperand(s); perr == nil {
				expected = parsed
			}
		}
		out.Passed = normalizedEqual(src, expected)
		out.Message = fmt.Sprintf("json equality = %v", out.Passed)
		if !out.Passed {
			out.Details = fmt.Sprintf("got %s, want %s", stringify(generic(src)), stringify(generic(expected)))
		}

	case story.KindAssertCondition:
		passed, err := evalCondition(act.Condition)
		if err != nil {
			// Grammar violations fail the assertion with the parse text
			// rather than erroring the step.
			out.Passed = false
			out.Message = "condition rejected: " + err.Error()
			return out, nil
		}
		out.Passed = passed
		out.Message = fmt.Sprintf("condition %q = %v", act.Condition, passed)

	default:
		return out, fault.New(fault.ValidationFailed, "%q is not an assertion kind", act.Kind)
	}
	return out, nil
}

func compareHealth(actual, want float64, cond string) (bool, error) {
	switch cond {
	case "EQ", "":
		return math.Abs(actual-want) < healthTolerance, nil
	case "NE":
		return math.Abs(actual-want) >= healthTolerance, nil
	case "LT":
		return actual < want, nil
	case "LE":
		return actual <= want, nil
	case "GT":
		return actual > want, nil
	case "GE":
		return actual >= want, nil
	}
	return false, fault.New(fault.ValidationFailed, "unknown health condition %q", cond)
}

// expectedBool reads an optional expected field with a default.
func expectedBool(v any, def bool) bool {
	switch t := v.(type) {
	case nil:
		return def
	case bool:
		return t
	case string:
		return strings.EqualFold(t, "true")
	}
	return def
}

// playerHasItem scans the player's inventory for the item, optionally
// pinned to a slot.
func (e *Engine) playerHasItem(ctx context.Context, player, item, slot string) (bool, string, error) {
	inv, err := e.backend.GetInventory(ctx, player)
	if err != nil {
		return false, "", err
	}
	var seen []string
	for _, it := range inv.Items {
		seen = append(seen, it.ID)
		if !itemMatches(it.ID, item) {
			continue
		}
		if slot == "" || fmt.Sprintf("%d", it.Slot) == slot {
			return true, strings.Join(seen, ", "), nil
		}
	}
	return false, strings.Join(seen, ", "), nil
}

// itemMatches tolerates the minecraft: namespace prefix on either side.
func itemMatches(have, want string) bool {
	return strings.TrimPrefix(have, "minecraft:") == strings.TrimPrefix(want, "minecraft:")
}

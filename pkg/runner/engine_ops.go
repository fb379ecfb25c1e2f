package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/craftlab/lodestone/pkg/backend"
	"github.com/craftlab/lodestone/pkg/fault"
	"github.com/craftlab/lodestone/pkg/story"
)

// sleep implements wait. A zero or absent duration sleeps one tick.
func (e *Engine) sleep(ctx context.Context, act *story.Action) error {
	d := waitTick
	if act.Duration != nil && act.Duration.Duration() > 0 {
		d = act.Duration.Duration()
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return fault.Wrap(fault.Cancelled, ctx.Err(), "wait interrupted")
	}
}

// waitForEntity polls entityExists until it holds or the deadline
// expires. The deadline lives in ctx (deadlineFor handled duration).
func (e *Engine) waitForEntity(ctx context.Context, act *story.Action) (any, []string, error) {
	name := act.EntityName()
	for {
		exists, err := e.backend.EntityExists(ctx, name)
		if err == nil && exists {
			return map[string]any{"entity": name, "found": true}, nil, nil
		}
		if err != nil && !fault.Is(err, fault.Timeout) {
			return nil, nil, err
		}
		select {
		case <-time.After(pollInterval):
		case <-ctx.Done():
			return nil, nil, fault.New(fault.Timeout, "entity %q did not spawn in time", name)
		}
	}
}

// waitForChat polls the captured client and server log streams for a
// line matching the pattern.
func (e *Engine) waitForChat(ctx context.Context, act *story.Action) (any, []string, error) {
	re, err := regexp.Compile(act.Pattern)
	if err != nil {
		return nil, nil, fault.Wrap(fault.ValidationFailed, err, "invalid chat pattern %q", act.Pattern)
	}
	for {
		if e.logs != nil {
			for _, line := range e.logs.Lines() {
				if (line.Channel == "client" || line.Channel == "server") && re.MatchString(line.Text) {
					return map[string]any{"matched": line.Text}, []string{"matched: " + line.Text}, nil
				}
			}
		}
		select {
		case <-time.After(pollInterval):
		case <-ctx.Done():
			return nil, nil, fault.New(fault.Timeout, "no chat line matched %q in time", act.Pattern)
		}
	}
}

// entityByName finds a visible entity by its tracked test name, or by the
// raw name when it is not a tracked entity.
func (e *Engine) entityByName(ctx context.Context, player, name string) (any, []string, error) {
	ents, err := e.backend.GetEntities(ctx, player)
	if err != nil {
		return nil, nil, err
	}
	world := backend.WorldEntityName(name)
	for _, ent := range ents.Entities {
		if ent.Name == world || ent.Name == name {
			return generic(ent), nil, nil
		}
	}
	return nil, nil, fault.New(fault.ValidationFailed, "no visible entity named %q", name)
}

// storeStateOp binds a value under storeAs: the literal value field when
// present, else the source operand. The actual store write happens in
// the generic binding step.
func storeStateOp(act *story.Action, st *stores) (any, []string, error) {
	if act.Value != nil {
		return act.Value, nil, nil
	}
	src := act.Source
	if src == "" {
		src = act.SourceVariable
	}
	if src == "" {
		return nil, nil, fault.New(fault.ValidationFailed, "store_state needs a value or source")
	}
	v, err := st.loadOperand(src)
	return v, nil, err
}

// compareStateOp serves compare_states and print_state_comparison.
func compareStateOp(act *story.Action, st *stores) (any, []string, error) {
	a, err := st.loadState(act.State1)
	if err != nil {
		return nil, nil, err
	}
	b, err := st.loadState(act.State2)
	if err != nil {
		return nil, nil, err
	}
	cmp := CompareStates(a, b)
	var evidence []string
	if act.Kind == story.KindPrintStateComparison {
		evidence = describeComparison(cmp)
	}
	return generic(cmp), evidence, nil
}

func describeComparison(cmp *StateComparison) []string {
	if cmp.Equal {
		return []string{"states are equal"}
	}
	var out []string
	for _, c := range cmp.Added {
		out = append(out, fmt.Sprintf("+ %s = %s", c.Path, stringify(c.Value)))
	}
	for _, c := range cmp.Removed {
		out = append(out, fmt.Sprintf("- %s = %s", c.Path, stringify(c.Value)))
	}
	for _, c := range cmp.Changed {
		out = append(out, fmt.Sprintf("~ %s: %s -> %s", c.Path, stringify(c.From), stringify(c.To)))
	}
	return out
}

// extractOp evaluates the restricted jsonpath subset against the source
// operand.
func extractOp(act *story.Action, st *stores) (any, []string, error) {
	src := act.Source
	if src == "" {
		src = act.SourceVariable
	}
	v, err := st.loadOperand(src)
	if err != nil {
		return nil, nil, err
	}
	segs, err := parsePath(act.JSONPath)
	if err != nil {
		return nil, nil, fault.Wrap(fault.ValidationFailed, err, "jsonpath %q", act.JSONPath)
	}
	out, err := evalPath(generic(v), segs)
	if err != nil {
		return nil, nil, fault.Wrap(fault.ValidationFailed, err, "jsonpath %q matched nothing", act.JSONPath)
	}
	return out, nil, nil
}

// filterOp retains list items whose named field equals the filter value.
func filterOp(act *story.Action, st *stores) (any, []string, error) {
	v, err := st.loadOperand(act.Source)
	if err != nil {
		return nil, nil, err
	}
	list := asList(generic(v))
	if list == nil {
		return nil, nil, fault.New(fault.ValidationFailed, "filter_entities source is not a list")
	}
	out := []any{}
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if stringify(m[act.FilterType]) == act.FilterValue {
			out = append(out, item)
		}
	}
	return out, []string{fmt.Sprintf("%d of %d items retained", len(out), len(list))}, nil
}

// asList accepts either a bare list or an entity-query result carrying
// its list under "entities".
func asList(v any) []any {
	if list, ok := v.([]any); ok {
		return list
	}
	if m, ok := v.(map[string]any); ok {
		if list, ok := m["entities"].([]any); ok {
			return list
		}
	}
	return nil
}

// snapshot performs the best-effort matching read for state-affecting
// actions. Failures (console backends cannot read player state) yield an
// empty snapshot, never an error.
func (e *Engine) snapshot(ctx context.Context, act *story.Action) string {
	sctx, cancel := context.WithTimeout(ctx, snapshotTimeout)
	defer cancel()

	var v any
	var err error
	switch act.Kind {
	case story.KindGiveItem, story.KindRemoveItem, story.KindClearInventory, story.KindEquipItem:
		v, err = e.backend.GetInventory(sctx, act.Player)
	case story.KindTeleportPlayer, story.KindMovePlayer:
		v, err = e.backend.GetPosition(sctx, act.Player)
	case story.KindKillPlayer, story.KindHealPlayer, story.KindSetPlayerHealth:
		v, err = e.backend.GetHealth(sctx, act.Player)
	case story.KindSetEntityHealth, story.KindDamageEntity:
		var h float64
		h, err = e.backend.GetEntityHealth(sctx, act.EntityName())
		v = map[string]any{"health": h}
	case story.KindSpawnEntity, story.KindKillEntity:
		var exists bool
		exists, err = e.backend.EntityExists(sctx, act.EntityName())
		v = map[string]any{"exists": exists}
	default:
		return ""
	}
	if err != nil {
		return ""
	}
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}

// validateResult applies the step-level expect* validators and fills the
// record's expected/actual fields.
func validateResult(act *story.Action, result any, rec *StepRecord) error {
	text := stringify(generic(result))
	switch {
	case act.Expect != nil:
		rec.Expected = stringify(generic(act.Expect))
		if !normalizedEqual(result, act.Expect) && text != rec.Expected {
			return fault.New(fault.ValidationFailed, "result %q != expected %q", text, rec.Expected)
		}
	case act.ExpectContains != "":
		rec.Expected = "contains " + act.ExpectContains
		if !strings.Contains(text, act.ExpectContains) {
			return fault.New(fault.ValidationFailed, "result %q does not contain %q", text, act.ExpectContains)
		}
	case act.ExpectMatches != "":
		rec.Expected = "matches " + act.ExpectMatches
		re, err := regexp.Compile(act.ExpectMatches)
		if err != nil {
			return fault.Wrap(fault.ValidationFailed, err, "invalid expectMatches pattern")
		}
		if !re.MatchString(text) {
			return fault.New(fault.ValidationFailed, "result %q does not match %q", text, act.ExpectMatches)
		}
	}
	if act.ExpectNotContains != "" {
		if rec.Expected != "" {
			rec.Expected += "; "
		}
		rec.Expected += "not contains " + act.ExpectNotContains
		if strings.Contains(text, act.ExpectNotContains) {
			return fault.New(fault.ValidationFailed, "result %q contains forbidden %q", text, act.ExpectNotContains)
		}
	}
	return nil
}

// describe builds the human-readable action string used in reports.
func describe(act *story.Action) string {
	var parts []string
	parts = append(parts, string(act.Kind))
	if act.Command != "" {
		parts = append(parts, act.Command)
	}
	if act.Item != "" {
		parts = append(parts, act.Item)
	}
	if act.EntityName() != "" && act.EntityName() != act.DisplayName() {
		parts = append(parts, act.EntityName())
	}
	if act.Player != "" {
		parts = append(parts, "-> "+act.Player)
	}
	return strings.Join(parts, " ")
}

// channelOf assigns the coarse report channel for a kind.
func channelOf(k story.Kind) string {
	switch k {
	case story.KindConnectPlayer, story.KindDisconnectPlayer,
		story.KindSendChatMessage, story.KindMovePlayer,
		story.KindGetPlayerPosition, story.KindGetPlayerHealth,
		story.KindGetPlayerInventory, story.KindGetPlayerEquipment,
		story.KindGetEntities, story.KindGetEntitiesInView,
		story.KindGetEntityByName, story.KindExecutePlayerCommand,
		story.KindExecutePlayerRaw, story.KindWaitForChatMessage:
		return "client"
	case story.KindWait, story.KindStoreState, story.KindPrintStoredState,
		story.KindCompareStates, story.KindPrintStateComparison,
		story.KindExtractWithJSONPath, story.KindFilterEntities,
		story.KindAssertCondition, story.KindAssertResponseContains,
		story.KindAssertJSONEquals:
		return "other"
	}
	return "server"
}

func countOf(act *story.Action, def int) int {
	if act.Count != nil {
		return *act.Count
	}
	return def
}

// weatherSeconds derives the optional set_weather duration, given in the
// duration field (milliseconds, rounded down) or as an integer value.
func weatherSeconds(act *story.Action) int {
	if act.Duration != nil {
		return int(act.Duration.Duration().Seconds())
	}
	if n, ok := asInt(act.Value); ok {
		return int(n)
	}
	return 0
}

func evidenceLines(out string) []string {
	out = strings.TrimSpace(out)
	if out == "" {
		return nil
	}
	return strings.Split(out, "\n")
}

func appendNonEmpty(dst []string, s string) []string {
	if s == "" {
		return dst
	}
	return append(dst, s)
}

func prettyJSON(v any) string {
	data, err := json.MarshalIndent(generic(v), "", "  ")
	if err != nil {
		return stringify(v)
	}
	return string(data)
}

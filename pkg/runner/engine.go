// Package runner is the orchestrator: it executes one parsed story
// against a backend, maintains the per-story variable and step-output
// stores, resolves reference expressions, enforces per-action deadlines,
// and streams step records to the report aggregator.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/craftlab/lodestone/pkg/backend"
	"github.com/craftlab/lodestone/pkg/fault"
	"github.com/craftlab/lodestone/pkg/story"
)

const (
	// DefaultActionTimeout bounds every action unless overridden by the
	// action's timeout field (or duration, for the wait_for_* kinds).
	DefaultActionTimeout = 30 * time.Second

	// pollInterval paces the wait_for_* polling loops.
	pollInterval = 100 * time.Millisecond

	// waitTick is the sleep for a zero-duration wait.
	waitTick = 50 * time.Millisecond

	// snapshotTimeout bounds the best-effort before/after state reads.
	snapshotTimeout = 5 * time.Second
)

// StepRecord is one executed action as reported to the aggregator.
type StepRecord struct {
	Section     string     `json:"section"` // setup, steps, assertions, cleanup
	Name        string     `json:"name"`
	Action      string     `json:"action"` // descriptive, e.g. "give_item diamond_sword -> tester"
	Channel     string     `json:"actionChannel"`
	Expected    string     `json:"expected,omitempty"`
	Actual      string     `json:"actual,omitempty"`
	Passed      bool       `json:"passed"`
	Evidence    []string   `json:"evidence,omitempty"`
	StateBefore string     `json:"stateBefore,omitempty"`
	StateAfter  string     `json:"stateAfter,omitempty"`
	Start       time.Time  `json:"startTime"`
	End         time.Time  `json:"endTime"`
	FaultKind   fault.Kind `json:"faultKind,omitempty"`
	Message     string     `json:"message,omitempty"`
}

// Recorder receives story and step records. The report aggregator
// implements it.
type Recorder interface {
	BeginStory(name, description string)
	AddStep(rec StepRecord)
	EndStory(result *story.TestResult)
}

// LogSource exposes the captured log streams for log-scanning waits and
// assertions. The report aggregator implements it.
type LogSource interface {
	Lines() []story.LogLine
	Text(channels ...string) string
}

type nopRecorder struct{}

func (nopRecorder) BeginStory(string, string) {}

func (nopRecorder) AddStep(StepRecord) {}

func (nopRecorder) EndStory(*story.TestResult) {}

// Options tune engine policy.
type Options struct {
	// DefaultTimeout replaces DefaultActionTimeout when positive.
	DefaultTimeout time.Duration

	// StopOnStepFailure short-circuits remaining setup/steps after any
	// failed step, not only failOnError ones. Assertions and cleanup
	// still run.
	StopOnStepFailure bool
}

// Engine executes stories one at a time against a single backend.
type Engine struct {
	backend backend.Backend
	rec     Recorder
	logs    LogSource
	opts    Options
}

// NewEngine creates an engine. rec and logs may be nil.
func NewEngine(b backend.Backend, rec Recorder, logs LogSource, opts Options) *Engine {
	if rec == nil {
		rec = nopRecorder{}
	}
	return &Engine{backend: b, rec: rec, logs: logs, opts: opts}
}

// Run executes one story: setup, steps, assertions, cleanup. Cleanup
// always runs, even after failures or cancellation. The variable and
// step-output stores live exactly as long as this call.
func (e *Engine) Run(ctx context.Context, s *story.Story) *story.TestResult {
	start := time.Now()
	e.rec.BeginStory(s.Name, s.Description)
	st := newStores()
	res := &story.TestResult{StoryName: s.Name, Success: true}

	aborted := false
	for _, section := range []struct {
		name string
		acts []story.Action
	}{{"setup", s.Setup}, {"steps", s.Steps}} {
		if aborted {
			break
		}
		for i := range section.acts {
			if ctx.Err() != nil {
				aborted = true
				break
			}
			if stop := e.runAction(ctx, &section.acts[i], st, section.name, res); stop {
				aborted = true
				break
			}
		}
	}

	for i := range s.Assertions {
		if ctx.Err() != nil {
			break
		}
		e.runAction(ctx, &s.Assertions[i], st, "assertions", res)
	}

	// Cleanup runs under its own context so external cancellation of the
	// story does not starve resource release.
	cleanupCtx := context.WithoutCancel(ctx)
	for i := range s.Cleanup {
		e.runAction(cleanupCtx, &s.Cleanup[i], st, "cleanup", res)
	}

	if ctx.Err() != nil && res.Error == "" {
		res.Success = false
		res.Error = fault.Wrap(fault.Cancelled, ctx.Err(), "story interrupted").Error()
	}
	res.ExecutionTimeMs = time.Since(start).Milliseconds()
	if e.logs != nil {
		res.Logs = e.logs.Lines()
	}
	e.rec.EndStory(res)
	return res
}

// runAction drives the full step cycle for one action and reports
// whether the remaining setup/steps should be short-circuited.
func (e *Engine) runAction(ctx context.Context, act *story.Action, st *stores, section string, res *story.TestResult) (stop bool) {
	startAt := time.Now()
	res.ActionsExecuted++

	rec := StepRecord{
		Section: section,
		Name:    act.DisplayName(),
		Action:  describe(act),
		Channel: channelOf(act.Kind),
		Start:   startAt,
	}
	failOnError := section == "assertions"
	if act.FailOnError != nil {
		failOnError = *act.FailOnError
	}

	resolved, err := st.resolveAction(act)
	if err == nil {
		if reqErr := resolved.CheckRequired(); reqErr != nil {
			err = fault.Wrap(fault.ValidationFailed, reqErr, "materialized action invalid")
		}
	}

	if err == nil {
		rec.StateBefore = e.snapshot(ctx, resolved)
	}

	var result any
	var validatorFailed bool
	if err == nil {
		if resolved.Kind.IsAssertion() {
			var outcome story.AssertionOutcome
			outcome, err = e.evalAssertion(ctx, resolved, st)
			if err == nil {
				result = outcome.Passed
				rec.Actual = outcome.Message
				rec.Evidence = appendNonEmpty(rec.Evidence, outcome.Details)
				res.AssertionResults = append(res.AssertionResults, outcome)
				if outcome.Passed {
					res.AssertionsPassed++
				} else {
					res.AssertionsFailed++
					res.Success = false
					err = fault.New(fault.AssertionFailed, "%s", outcome.Message)
				}
			}
		} else {
			var evidence []string
			result, evidence, err = e.executeWithDeadline(ctx, resolved, st)
			rec.Evidence = append(rec.Evidence, evidence...)
			if err == nil {
				rec.Actual = stringify(generic(result))
				if vErr := validateResult(resolved, result, &rec); vErr != nil {
					validatorFailed = true
					if failOnError {
						err = vErr
					} else {
						rec.Evidence = append(rec.Evidence, "validator mismatch (ignored): "+vErr.Error())
					}
				}
			}
			rec.StateAfter = e.snapshot(ctx, resolved)
		}
	}

	durMs := time.Since(startAt).Milliseconds()
	if err == nil {
		g := generic(result)
		st.bindStep(resolved.StepID, g, "success", "", durMs)
		if resolved.StoreAs != "" {
			st.vars[resolved.StoreAs] = g
		}
		rec.Passed = true
	} else {
		// A failed action binds its status but never touches storeAs.
		st.bindStep(act.StepID, nil, "failed", err.Error(), durMs)
		rec.Passed = false
		rec.FaultKind = fault.KindOf(err)
		rec.Message = err.Error()
		var fe *fault.Error
		if errors.As(err, &fe) && fe.Detail != "" {
			rec.Evidence = append(rec.Evidence, fe.Detail)
		}
		res.Success = false
		if section == "assertions" {
			// Infrastructure failures inside an assertion count as a
			// failed assertion; a plain false outcome was already
			// counted above.
			if fault.KindOf(err) != fault.AssertionFailed {
				res.AssertionsFailed++
				res.AssertionResults = append(res.AssertionResults, story.AssertionOutcome{
					Name: act.DisplayName(), Passed: false, Message: err.Error(),
				})
			}
		} else if res.Error == "" && section != "cleanup" {
			res.Error = err.Error()
		}
	}
	rec.End = time.Now()
	e.rec.AddStep(rec)

	if section == "assertions" || section == "cleanup" {
		return false
	}
	if err != nil && failOnError {
		return true
	}
	if (err != nil || validatorFailed) && e.opts.StopOnStepFailure {
		return true
	}
	return false
}

// executeWithDeadline runs one action in a goroutine and enforces the
// per-action deadline. On expiry the in-flight backend call is abandoned
// (the relevant socket closes under it) and the step fails Timeout; an
// external cancel fails it Cancelled instead.
func (e *Engine) executeWithDeadline(ctx context.Context, act *story.Action, st *stores) (any, []string, error) {
	type outcome struct {
		result   any
		evidence []string
		err      error
	}
	actx, cancel := context.WithTimeout(ctx, e.deadlineFor(act))
	defer cancel()

	ch := make(chan outcome, 1)
	go func() {
		r, ev, err := e.execute(actx, act, st)
		ch <- outcome{r, ev, err}
	}()

	select {
	case o := <-ch:
		return o.result, o.evidence, o.err
	case <-actx.Done():
		e.backend.Abandon()
		// Give the abandoned call a moment to unwind so its goroutine
		// does not race a reconnecting successor.
		select {
		case o := <-ch:
			if o.err == nil {
				return o.result, o.evidence, nil
			}
		case <-time.After(250 * time.Millisecond):
		}
		if ctx.Err() == context.Canceled {
			return nil, nil, fault.Wrap(fault.Cancelled, ctx.Err(), "action %q interrupted", act.DisplayName())
		}
		return nil, nil, fault.New(fault.Timeout, "action %q exceeded its deadline", act.DisplayName())
	}
}

// deadlineFor picks the per-action deadline. The wait_for_* kinds treat
// duration as their deadline; a plain wait gets its sleep plus the
// default so the sleep itself is never cut short.
func (e *Engine) deadlineFor(act *story.Action) time.Duration {
	base := e.opts.DefaultTimeout
	if base <= 0 {
		base = DefaultActionTimeout
	}
	if act.Timeout != nil {
		return act.Timeout.Duration()
	}
	switch act.Kind {
	case story.KindWaitForEntitySpawn, story.KindWaitForChatMessage:
		if act.Duration != nil {
			return act.Duration.Duration()
		}
	case story.KindWait:
		if act.Duration != nil {
			return act.Duration.Duration() + base
		}
	}
	return base
}

// execute dispatches one resolved non-assertion action to the backend.
func (e *Engine) execute(ctx context.Context, act *story.Action, st *stores) (any, []string, error) {
	b := e.backend
	switch act.Kind {
	case story.KindExecuteRconCommand, story.KindExecuteRconWithCapture:
		out, err := b.ExecuteConsole(ctx, act.Command, act.Args)
		return out, evidenceLines(out), err
	case story.KindExecuteRconRaw:
		out, err := b.ExecuteConsoleRaw(ctx, act.Command)
		return out, evidenceLines(out), err
	case story.KindExecutePlayerCommand, story.KindExecutePlayerRaw:
		out, err := b.ExecutePlayerCommand(ctx, act.Player, act.Command)
		return out, evidenceLines(out), err

	case story.KindMakeOperator:
		return nil, nil, b.MakeOperator(ctx, act.Player)
	case story.KindGiveItem:
		return nil, nil, b.GiveItem(ctx, act.Player, act.Item, countOf(act, 1))
	case story.KindEquipItem:
		return nil, nil, b.Equip(ctx, act.Player, act.Item, act.Slot)
	case story.KindRemoveItem:
		return nil, nil, b.RemoveItem(ctx, act.Player, act.Item, countOf(act, 0))
	case story.KindClearInventory:
		return nil, nil, b.ClearInventory(ctx, act.Player)
	case story.KindSetSpawnPoint:
		loc := *act.Location
		out, err := b.ExecuteConsole(ctx, "spawnpoint", []string{act.Player, stringify(loc[0]), stringify(loc[1]), stringify(loc[2])})
		return out, nil, err
	case story.KindTeleportPlayer:
		loc := *act.Location
		return nil, nil, b.Teleport(ctx, act.Player, loc[0], loc[1], loc[2])
	case story.KindGamemodeChange:
		return nil, nil, b.Gamemode(ctx, act.Player, stringify(act.Value))
	case story.KindKillPlayer:
		out, err := b.ExecuteConsole(ctx, "kill", []string{act.Player})
		return out, nil, err
	case story.KindHealPlayer:
		out, err := b.ExecuteConsole(ctx, "effect", []string{"give", act.Player, "minecraft:instant_health", "1", "10"})
		return out, nil, err
	case story.KindSetPlayerHealth:
		v, ok := asFloat(act.Value)
		if !ok {
			return nil, nil, fault.New(fault.ValidationFailed, "set_player_health value %v is not numeric", act.Value)
		}
		out, err := b.ExecuteConsoleRaw(ctx, fmt.Sprintf("data modify entity %s Health set value %sf", act.Player, stringify(v)))
		return out, nil, err

	case story.KindSpawnEntity:
		loc := *act.Location
		var equipment map[string]string
		if act.Item != "" && act.Slot != "" {
			equipment = map[string]string{act.Slot: act.Item}
		}
		err := b.SpawnEntity(ctx, act.EntityName(), act.EntityType, loc[0], loc[1], loc[2], equipment)
		return map[string]any{"entity": act.EntityName(), "entityType": act.EntityType}, nil, err
	case story.KindKillEntity:
		out, err := b.ExecuteConsoleRaw(ctx, "kill "+backend.EntitySelector(act.EntityName()))
		return out, nil, err
	case story.KindSetEntityHealth:
		v, ok := asFloat(act.Value)
		if !ok {
			return nil, nil, fault.New(fault.ValidationFailed, "set_entity_health value %v is not numeric", act.Value)
		}
		return nil, nil, b.SetEntityHealth(ctx, act.EntityName(), v)
	case story.KindGetEntityHealth:
		h, err := b.GetEntityHealth(ctx, act.EntityName())
		return h, nil, err
	case story.KindDamageEntity:
		v, ok := asFloat(act.Value)
		if !ok {
			return nil, nil, fault.New(fault.ValidationFailed, "damage_entity value %v is not numeric", act.Value)
		}
		out, err := b.ExecuteConsoleRaw(ctx, fmt.Sprintf("damage %s %s", backend.EntitySelector(act.EntityName()), stringify(v)))
		return out, nil, err
	case story.KindRemoveEntities:
		return nil, nil, b.RemoveAllTestEntities(ctx)

	case story.KindSetWeather:
		return nil, nil, b.SetWeather(ctx, act.Weather, weatherSeconds(act))
	case story.KindSetTime:
		ticks, ok := asInt(act.Value)
		if !ok {
			return nil, nil, fault.New(fault.ValidationFailed, "set_time value %v is not an integer", act.Value)
		}
		return nil, nil, b.SetTime(ctx, ticks)
	case story.KindGetWorldTime:
		t, err := b.GetWorldTime(ctx)
		return t, nil, err
	case story.KindGetWeather:
		w, err := b.GetWeather(ctx)
		return w, nil, err

	case story.KindConnectPlayer:
		err := b.ConnectPlayer(ctx, act.Player)
		return map[string]any{"connected": err == nil, "player": act.Player}, nil, err
	case story.KindDisconnectPlayer:
		return nil, nil, b.DisconnectPlayer(ctx, act.Player)
	case story.KindSendChatMessage:
		id, err := b.SendChat(ctx, act.Player, act.Message)
		return map[string]any{"sent": err == nil, "messageId": id}, nil, err
	case story.KindMovePlayer:
		loc := *act.Location
		return nil, nil, b.Move(ctx, act.Player, loc[0], loc[1], loc[2])
	case story.KindGetPlayerPosition:
		p, err := b.GetPosition(ctx, act.Player)
		if err != nil {
			return nil, nil, err
		}
		return generic(p), nil, nil
	case story.KindGetPlayerHealth:
		h, err := b.GetHealth(ctx, act.Player)
		if err != nil {
			return nil, nil, err
		}
		return generic(h), nil, nil
	case story.KindGetPlayerInventory:
		inv, err := b.GetInventory(ctx, act.Player)
		if err != nil {
			return nil, nil, err
		}
		return generic(inv), nil, nil
	case story.KindGetPlayerEquipment:
		eq, err := b.GetEquipment(ctx, act.Player)
		if err != nil {
			return nil, nil, err
		}
		return generic(eq), nil, nil
	case story.KindGetEntities, story.KindGetEntitiesInView:
		ents, err := b.GetEntities(ctx, act.Player)
		if err != nil {
			return nil, nil, err
		}
		return generic(ents), nil, nil
	case story.KindGetEntityByName:
		return e.entityByName(ctx, act.Player, act.EntityName())

	case story.KindWait:
		return nil, nil, e.sleep(ctx, act)
	case story.KindWaitForEntitySpawn:
		return e.waitForEntity(ctx, act)
	case story.KindWaitForChatMessage:
		return e.waitForChat(ctx, act)
	case story.KindCheckServiceHealth:
		err := b.ServiceHealth(ctx)
		return map[string]any{"healthy": err == nil}, nil, err

	case story.KindStoreState:
		return storeStateOp(act, st)
	case story.KindPrintStoredState:
		v, err := st.variable(act.SourceVariable)
		if err != nil {
			return nil, nil, err
		}
		return v, []string{act.SourceVariable + " = " + prettyJSON(v)}, nil
	case story.KindCompareStates, story.KindPrintStateComparison:
		return compareStateOp(act, st)
	case story.KindExtractWithJSONPath:
		return extractOp(act, st)
	case story.KindFilterEntities:
		return filterOp(act, st)
	}
	return nil, nil, fault.New(fault.ValidationFailed, "no executor for action kind %q", act.Kind)
}

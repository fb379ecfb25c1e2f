package runner

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/craftlab/lodestone/pkg/bridge"
	"github.com/craftlab/lodestone/pkg/fault"
	"github.com/craftlab/lodestone/pkg/story"
)

// fakeBackend is a scriptable in-memory backend. consoleOnly mimics the
// console backend's capability boundary.
type fakeBackend struct {
	mu          sync.Mutex
	consoleOnly bool
	commands    []string
	entities    map[string]float64
	inventories map[string][]bridge.Item
	bridgeCalls int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		entities:    make(map[string]float64),
		inventories: make(map[string][]bridge.Item),
	}
}

func (f *fakeBackend) record(cmd string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, cmd)
}

func (f *fakeBackend) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.commands))
	copy(out, f.commands)
	return out
}

func (f *fakeBackend) capability(op string) error {
	return fault.New(fault.CapabilityUnavailable, "%s requires the playersim backend", op)
}

func (f *fakeBackend) Initialize(ctx context.Context) error { return nil }

func (f *fakeBackend) Cleanup(ctx context.Context) error { return nil }

func (f *fakeBackend) Type() string { return "fake" }

func (f *fakeBackend) Abandon() {}

func (f *fakeBackend) ExecuteConsole(ctx context.Context, cmd string, args []string) (string, error) {
	composed := cmd
	if len(args) > 0 {
		composed = cmd + " " + strings.Join(args, " ")
	}
	composed = strings.TrimRight(composed, " \t")
	f.record(composed)
	return "ok: " + composed, nil
}

func (f *fakeBackend) ExecuteConsoleRaw(ctx context.Context, text string) (string, error) {
	f.record(text)
	return "ok", nil
}

func (f *fakeBackend) SpawnEntity(ctx context.Context, localName, entityType string, x, y, z float64, equipment map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entities[localName] = 20
	return nil
}

func (f *fakeBackend) EntityExists(ctx context.Context, localName string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.entities[localName]
	return ok, nil
}

func (f *fakeBackend) GetEntityHealth(ctx context.Context, localName string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.entities[localName]
	if !ok {
		return 0, fault.New(fault.BackendProtocol, "no entity %q", localName)
	}
	return h, nil
}

func (f *fakeBackend) SetEntityHealth(ctx context.Context, localName string, health float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entities[localName] = health
	return nil
}

func (f *fakeBackend) GiveItem(ctx context.Context, player, item string, count int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	inv := f.inventories[player]
	f.inventories[player] = append(inv, bridge.Item{Slot: len(inv), ID: item, Count: count})
	return nil
}

func (f *fakeBackend) RemoveItem(ctx context.Context, player, item string, count int) error {
	return nil
}

func (f *fakeBackend) ClearInventory(ctx context.Context, player string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inventories[player] = nil
	return nil
}

func (f *fakeBackend) MakeOperator(ctx context.Context, player string) error { return nil }

func (f *fakeBackend) Teleport(ctx context.Context, player string, x, y, z float64) error {
	return nil
}

func (f *fakeBackend) Gamemode(ctx context.Context, player, mode string) error { return nil }

func (f *fakeBackend) SetWeather(ctx context.Context, kind string, sec int) error { return nil }

func (f *fakeBackend) SetTime(ctx context.Context, ticks int64) error { return nil }

func (f *fakeBackend) GetWorldTime(ctx context.Context) (int64, error) { return 6000, nil }

func (f *fakeBackend) GetWeather(ctx context.Context) (string, error) { return "clear", nil }

func (f *fakeBackend) RemoveAllTestEntities(ctx context.Context) error { return nil }

func (f *fakeBackend) RemoveAllTestPlayers(ctx context.Context) error { return nil }

func (f *fakeBackend) ServiceHealth(ctx context.Context) error { return nil }

func (f *fakeBackend) ConnectPlayer(ctx context.Context, name string) error {
	if f.consoleOnly {
		return f.capability("connect_player")
	}
	f.bridgeCalls++
	return nil
}

func (f *fakeBackend) DisconnectPlayer(ctx context.Context, name string) error { return nil }

func (f *fakeBackend) SendChat(ctx context.Context, name, message string) (string, error) {
	if f.consoleOnly {
		return "", f.capability("send_chat_message")
	}
	f.bridgeCalls++
	return "msg-1", nil
}

func (f *fakeBackend) ExecutePlayerCommand(ctx context.Context, name, cmd string) (string, error) {
	if f.consoleOnly {
		return "", f.capability("execute_player_command")
	}
	f.bridgeCalls++
	return "done", nil
}

func (f *fakeBackend) Move(ctx context.Context, name string, x, y, z float64) error { return nil }

func (f *fakeBackend) Equip(ctx context.Context, name, item, slot string) error { return nil }

func (f *fakeBackend) Use(ctx context.Context, name, target string) error { return nil }

func (f *fakeBackend) GetPosition(ctx context.Context, name string) (*bridge.Position, error) {
	if f.consoleOnly {
		return nil, f.capability("get_player_position")
	}
	return &bridge.Position{X: 1.5, Y: 64, Z: -2, World: "overworld"}, nil
}

func (f *fakeBackend) GetHealth(ctx context.Context, name string) (*bridge.Health, error) {
	if f.consoleOnly {
		return nil, f.capability("get_player_health")
	}
	return &bridge.Health{Health: 20, MaxHealth: 20, Food: 20}, nil
}

func (f *fakeBackend) GetInventory(ctx context.Context, name string) (*bridge.Inventory, error) {
	if f.consoleOnly {
		return nil, f.capability("get_player_inventory")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	items := make([]bridge.Item, len(f.inventories[name]))
	copy(items, f.inventories[name])
	return &bridge.Inventory{Items: items, Size: 36}, nil
}

func (f *fakeBackend) GetEntities(ctx context.Context, name string) (*bridge.Entities, error) {
	if f.consoleOnly {
		return nil, f.capability("get_entities")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := &bridge.Entities{Types: map[string]int{}}
	for local := range f.entities {
		out.Entities = append(out.Entities, bridge.Entity{Type: "zombie", Name: "lt_" + local})
		out.Types["zombie"]++
	}
	out.Count = len(out.Entities)
	return out, nil
}

func (f *fakeBackend) GetEquipment(ctx context.Context, name string) (*bridge.Equipment, error) {
	if f.consoleOnly {
		return nil, f.capability("get_player_equipment")
	}
	return &bridge.Equipment{Hand: "diamond_sword"}, nil
}

// captureRecorder collects step records and serves captured logs.
type captureRecorder struct {
	steps []StepRecord
	lines []story.LogLine
}

func (c *captureRecorder) BeginStory(name, description string) {}
func (c *captureRecorder) AddStep(rec StepRecord)              { c.steps = append(c.steps, rec) }
func (c *captureRecorder) EndStory(res *story.TestResult)      {}

func (c *captureRecorder) Lines() []story.LogLine { return c.lines }

func (c *captureRecorder) Text(channels ...string) string {
	want := map[string]bool{}
	for _, ch := range channels {
		want[ch] = true
	}
	var b strings.Builder
	for _, l := range c.lines {
		if len(want) == 0 || want[l.Channel] {
			b.WriteString(l.Text)
			b.WriteString("\n")
		}
	}
	return b.String()
}

func newTestEngine(b *fakeBackend) (*Engine, *captureRecorder) {
	rec := &captureRecorder{}
	return NewEngine(b, rec, rec, Options{}), rec
}

func act(kind story.Kind, mut func(*story.Action)) story.Action {
	a := story.Action{Kind: kind}
	if mut != nil {
		mut(&a)
	}
	return a
}

func TestRunTrailingSpaceRegression(t *testing.T) {
	b := newFakeBackend()
	e, _ := newTestEngine(b)
	res := e.Run(context.Background(), &story.Story{
		Name: "trailing-space",
		Steps: []story.Action{
			act(story.KindExecuteRconCommand, func(a *story.Action) {
				a.Command = "list"
				a.StepID = "l1"
			}),
		},
	})
	if !res.Success {
		t.Fatalf("story failed: %s", res.Error)
	}
	sent := b.sent()
	if len(sent) != 1 || sent[0] != "list" {
		t.Errorf("transmitted %q, want exactly [list]", sent)
	}
}

func TestRunSpawnThenHealth(t *testing.T) {
	b := newFakeBackend()
	e, rec := newTestEngine(b)
	loc := story.Location{100, 64, 100}
	res := e.Run(context.Background(), &story.Story{
		Name: "spawn-health",
		Setup: []story.Action{
			act(story.KindSpawnEntity, func(a *story.Action) {
				a.Name = "z1"
				a.EntityType = "minecraft:zombie"
				a.Location = &loc
			}),
		},
		Steps: []story.Action{
			act(story.KindGetEntityHealth, func(a *story.Action) {
				a.Entity = "z1"
				a.StepID = "h"
				a.StoreAs = "zh"
			}),
		},
	})
	if !res.Success {
		t.Fatalf("story failed: %s", res.Error)
	}
	if ok, _ := b.EntityExists(context.Background(), "z1"); !ok {
		t.Error("z1 should exist")
	}
	last := rec.steps[len(rec.steps)-1]
	if !last.Passed || last.Actual != "20" {
		t.Errorf("health step record %+v", last)
	}
}

func TestRunInventoryComparison(t *testing.T) {
	b := newFakeBackend()
	e, _ := newTestEngine(b)
	res := e.Run(context.Background(), &story.Story{
		Name: "inventory-diff",
		Steps: []story.Action{
			act(story.KindGetPlayerInventory, func(a *story.Action) {
				a.Player = "tester"
				a.StoreAs = "inv_before"
			}),
			act(story.KindGiveItem, func(a *story.Action) {
				a.Player = "tester"
				a.Item = "diamond_sword"
				one := 1
				a.Count = &one
			}),
			act(story.KindGetPlayerInventory, func(a *story.Action) {
				a.Player = "tester"
				a.StoreAs = "inv_after"
			}),
			act(story.KindCompareStates, func(a *story.Action) {
				a.State1 = "inv_before"
				a.State2 = "inv_after"
				a.StepID = "d"
			}),
		},
	})
	if !res.Success {
		t.Fatalf("story failed: %s", res.Error)
	}

	// Re-run the comparison the way the stored outputs see it.
	st := newStores()
	invBefore := map[string]any{"items": []any{}, "size": 36}
	invAfter := map[string]any{"items": []any{map[string]any{"slot": 0, "id": "diamond_sword", "count": 1}}, "size": 36}
	st.vars["a"], st.vars["b"] = generic(invBefore), generic(invAfter)
	cmp := CompareStates(st.vars["a"], st.vars["b"])
	if cmp.Equal {
		t.Fatal("inventories should differ after give_item")
	}
	found := false
	for _, a := range cmp.Added {
		if strings.Contains(a.Path, "items") && strings.Contains(stringify(a.Value), "diamond_sword") {
			found = true
		}
	}
	if !found {
		t.Errorf("added entries %v missing diamond_sword under items", cmp.Added)
	}
}

func TestRunCrossStepReference(t *testing.T) {
	b := newFakeBackend()
	e, _ := newTestEngine(b)
	res := e.Run(context.Background(), &story.Story{
		Name: "cross-step",
		Steps: []story.Action{
			act(story.KindGetPlayerPosition, func(a *story.Action) {
				a.Player = "tester"
				a.StepID = "p1"
			}),
			act(story.KindGetPlayerPosition, func(a *story.Action) {
				a.Player = "tester"
				a.StepID = "p2"
			}),
		},
		Assertions: []story.Action{
			act(story.KindAssertResponseContains, func(a *story.Action) {
				a.Source = "${{ steps.p1.outputs.result }}"
				a.Contains = "world"
			}),
		},
	})
	if !res.Success {
		t.Fatalf("story failed: %s", res.Error)
	}
	if res.AssertionsPassed != 1 || res.AssertionsFailed != 0 {
		t.Errorf("assertions %d/%d", res.AssertionsPassed, res.AssertionsFailed)
	}
}

func TestRunTimeoutThenContinue(t *testing.T) {
	b := newFakeBackend()
	e, rec := newTestEngine(b)
	d := story.Millis(500)
	start := time.Now()
	res := e.Run(context.Background(), &story.Story{
		Name: "timeout",
		Steps: []story.Action{
			act(story.KindWaitForChatMessage, func(a *story.Action) {
				a.Pattern = ".*never.*"
				a.Duration = &d
			}),
			act(story.KindExecuteRconCommand, func(a *story.Action) {
				a.Command = "list"
			}),
		},
		Cleanup: []story.Action{
			act(story.KindRemoveEntities, nil),
		},
	})
	elapsed := time.Since(start)
	if elapsed < 400*time.Millisecond || elapsed > 3*time.Second {
		t.Errorf("elapsed %v, want ~500ms", elapsed)
	}
	if res.Success {
		t.Error("story with a timed-out step should fail")
	}
	if rec.steps[0].FaultKind != fault.Timeout {
		t.Errorf("first step fault = %q, want Timeout", rec.steps[0].FaultKind)
	}
	// The later step and the cleanup both ran.
	if len(rec.steps) != 3 {
		t.Fatalf("recorded %d steps, want 3", len(rec.steps))
	}
	if !rec.steps[1].Passed || rec.steps[1].Section != "steps" {
		t.Errorf("subsequent step did not run: %+v", rec.steps[1])
	}
	if rec.steps[2].Section != "cleanup" {
		t.Errorf("cleanup did not run: %+v", rec.steps[2])
	}
}

func TestRunCapabilityBoundary(t *testing.T) {
	b := newFakeBackend()
	b.consoleOnly = true
	e, rec := newTestEngine(b)
	res := e.Run(context.Background(), &story.Story{
		Name: "capability",
		Steps: []story.Action{
			act(story.KindSendChatMessage, func(a *story.Action) {
				a.Player = "tester"
				a.Message = "hello"
			}),
		},
	})
	if res.Success {
		t.Error("suite must fail")
	}
	if rec.steps[0].FaultKind != fault.CapabilityUnavailable {
		t.Errorf("fault = %q, want CapabilityUnavailable", rec.steps[0].FaultKind)
	}
	if b.bridgeCalls != 0 {
		t.Errorf("%d bridge calls made, want none", b.bridgeCalls)
	}
}

func TestRunCleanupAlwaysRuns(t *testing.T) {
	b := newFakeBackend()
	e, rec := newTestEngine(b)
	tr := true
	res := e.Run(context.Background(), &story.Story{
		Name: "cleanup-always",
		Steps: []story.Action{
			act(story.KindGetEntityHealth, func(a *story.Action) {
				a.Entity = "ghost"
				a.FailOnError = &tr
			}),
			act(story.KindExecuteRconCommand, func(a *story.Action) {
				a.Command = "never-reached"
			}),
		},
		Cleanup: []story.Action{
			act(story.KindRemoveEntities, nil),
		},
	})
	if res.Success {
		t.Error("story should fail")
	}
	var sections []string
	for _, s := range rec.steps {
		sections = append(sections, s.Section)
	}
	if len(rec.steps) != 2 || sections[0] != "steps" || sections[1] != "cleanup" {
		t.Fatalf("sections = %v, want failed step then cleanup only", sections)
	}
	for _, cmd := range b.sent() {
		if cmd == "never-reached" {
			t.Error("short-circuited step was executed")
		}
	}
}

func TestRunStoreAsOnlyOnSuccess(t *testing.T) {
	b := newFakeBackend()
	e, rec := newTestEngine(b)
	res := e.Run(context.Background(), &story.Story{
		Name: "storeas",
		Steps: []story.Action{
			act(story.KindGetEntityHealth, func(a *story.Action) {
				a.Entity = "ghost"
				a.StoreAs = "gh"
				a.StepID = "g"
			}),
			act(story.KindAssertCondition, func(a *story.Action) {
				a.Condition = "${gh} > 0"
			}),
		},
	})
	if res.Success {
		t.Error("story should fail")
	}
	// The second step's reference must be unbound, not stale.
	if rec.steps[1].FaultKind != fault.ReferenceUnbound {
		t.Errorf("fault = %q, want ReferenceUnbound", rec.steps[1].FaultKind)
	}
}

func TestRunUnboundReferenceContinues(t *testing.T) {
	b := newFakeBackend()
	e, rec := newTestEngine(b)
	e.Run(context.Background(), &story.Story{
		Name: "unbound-continues",
		Steps: []story.Action{
			act(story.KindExecuteRconCommand, func(a *story.Action) {
				a.Command = "say ${ghost}"
			}),
			act(story.KindExecuteRconCommand, func(a *story.Action) {
				a.Command = "list"
			}),
		},
	})
	if rec.steps[0].FaultKind != fault.ReferenceUnbound {
		t.Errorf("fault = %q, want ReferenceUnbound", rec.steps[0].FaultKind)
	}
	if !rec.steps[1].Passed {
		t.Error("execution should continue past an unbound reference")
	}
}

func TestRunValidators(t *testing.T) {
	b := newFakeBackend()
	e, rec := newTestEngine(b)
	tr := true
	res := e.Run(context.Background(), &story.Story{
		Name: "validators",
		Steps: []story.Action{
			act(story.KindExecuteRconCommand, func(a *story.Action) {
				a.Command = "list"
				a.ExpectContains = "ok"
			}),
			act(story.KindExecuteRconCommand, func(a *story.Action) {
				a.Command = "list"
				a.ExpectContains = "nope"
			}),
			act(story.KindExecuteRconCommand, func(a *story.Action) {
				a.Command = "list"
				a.ExpectContains = "nope"
				a.FailOnError = &tr
			}),
		},
	})
	if !rec.steps[0].Passed {
		t.Error("matching validator should pass")
	}
	// failOnError defaults false for steps: mismatch recorded, step passes.
	if !rec.steps[1].Passed {
		t.Error("mismatch with failOnError=false should not fail the step")
	}
	if rec.steps[2].Passed || rec.steps[2].FaultKind != fault.ValidationFailed {
		t.Errorf("mismatch with failOnError=true: %+v", rec.steps[2])
	}
	if res.Success {
		t.Error("story should fail on the failOnError validator")
	}
}

func TestRunWaitZeroDuration(t *testing.T) {
	b := newFakeBackend()
	e, _ := newTestEngine(b)
	start := time.Now()
	res := e.Run(context.Background(), &story.Story{
		Name:  "wait-tick",
		Steps: []story.Action{act(story.KindWait, nil)},
	})
	if !res.Success {
		t.Fatalf("wait failed: %s", res.Error)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("zero-duration wait took %v", elapsed)
	}
}

func TestRunExternalCancellation(t *testing.T) {
	b := newFakeBackend()
	e, rec := newTestEngine(b)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(150 * time.Millisecond)
		cancel()
	}()
	d := story.Millis(10_000)
	res := e.Run(ctx, &story.Story{
		Name: "cancelled",
		Steps: []story.Action{
			act(story.KindWait, func(a *story.Action) { a.Duration = &d }),
			act(story.KindExecuteRconCommand, func(a *story.Action) { a.Command = "list" }),
		},
		Cleanup: []story.Action{act(story.KindRemoveEntities, nil)},
	})
	if res.Success {
		t.Error("cancelled story should fail")
	}
	if rec.steps[0].FaultKind != fault.Cancelled {
		t.Errorf("fault = %q, want Cancelled", rec.steps[0].FaultKind)
	}
	last := rec.steps[len(rec.steps)-1]
	if last.Section != "cleanup" || !last.Passed {
		t.Errorf("cleanup must run after cancellation: %+v", last)
	}
}

func TestWaitForEntitySpawnPolls(t *testing.T) {
	b := newFakeBackend()
	e, _ := newTestEngine(b)
	go func() {
		time.Sleep(250 * time.Millisecond)
		b.SpawnEntity(context.Background(), "late", "zombie", 0, 0, 0, nil)
	}()
	d := story.Millis(3000)
	res := e.Run(context.Background(), &story.Story{
		Name: "late-spawn",
		Steps: []story.Action{
			act(story.KindWaitForEntitySpawn, func(a *story.Action) {
				a.Entity = "late"
				a.Duration = &d
			}),
		},
	})
	if !res.Success {
		t.Fatalf("wait_for_entity_spawn failed: %s", res.Error)
	}
}

func TestRunAssertionKinds(t *testing.T) {
	tests := []struct {
		name   string
		seed   func(b *fakeBackend, rec *captureRecorder)
		steps  []story.Action
		assert story.Action
		want   bool
	}{
		{
			name: "entity health inside eq tolerance",
			seed: func(b *fakeBackend, _ *captureRecorder) { b.entities["guard"] = 10.0004 },
			assert: act(story.KindEntityHealth, func(a *story.Action) {
				a.Entity = "guard"
				a.Condition = "EQ"
				a.Value = 10.0
			}),
			want: true,
		},
		{
			name: "entity health outside eq tolerance",
			seed: func(b *fakeBackend, _ *captureRecorder) { b.entities["guard"] = 10.002 },
			assert: act(story.KindEntityHealth, func(a *story.Action) {
				a.Entity = "guard"
				a.Condition = "EQ"
				a.Value = 10.0
			}),
			want: false,
		},
		{
			name: "entity health gt",
			seed: func(b *fakeBackend, _ *captureRecorder) { b.entities["guard"] = 15 },
			assert: act(story.KindEntityHealth, func(a *story.Action) {
				a.Entity = "guard"
				a.Condition = "GT"
				a.Value = 10
			}),
			want: true,
		},
		{
			name: "entity missing when absent",
			assert: act(story.KindAssertEntityMissing, func(a *story.Action) {
				a.Entity = "ghost"
			}),
			want: true,
		},
		{
			name: "entity missing when present",
			seed: func(b *fakeBackend, _ *captureRecorder) { b.entities["guard"] = 20 },
			assert: act(story.KindAssertEntityMissing, func(a *story.Action) {
				a.Entity = "guard"
			}),
			want: false,
		},
		{
			name: "player has item across namespace prefix",
			seed: func(b *fakeBackend, _ *captureRecorder) {
				b.inventories["tester"] = []bridge.Item{{Slot: 0, ID: "minecraft:diamond_sword", Count: 1}}
			},
			assert: act(story.KindAssertPlayerHasItem, func(a *story.Action) {
				a.Player = "tester"
				a.Item = "diamond_sword"
			}),
			want: true,
		},
		{
			name: "player has item pinned to wrong slot",
			seed: func(b *fakeBackend, _ *captureRecorder) {
				b.inventories["tester"] = []bridge.Item{{Slot: 0, ID: "diamond_sword", Count: 1}}
			},
			assert: act(story.KindAssertPlayerHasItem, func(a *story.Action) {
				a.Player = "tester"
				a.Item = "diamond_sword"
				a.Slot = "3"
			}),
			want: false,
		},
		{
			name: "player_inventory expected false for absent item",
			seed: func(b *fakeBackend, _ *captureRecorder) {
				b.inventories["tester"] = []bridge.Item{{Slot: 0, ID: "stone", Count: 64}}
			},
			assert: act(story.KindPlayerInventory, func(a *story.Action) {
				a.Player = "tester"
				a.Item = "bow"
				a.Expected = false
			}),
			want: true,
		},
		{
			name: "log contains hit",
			seed: func(_ *fakeBackend, rec *captureRecorder) {
				rec.lines = []story.LogLine{{Channel: "server", Text: "[Server] Done (3.2s)"}}
			},
			assert: act(story.KindAssertLogContains, func(a *story.Action) {
				a.Contains = "Done"
			}),
			want: true,
		},
		{
			name: "log contains miss",
			seed: func(_ *fakeBackend, rec *captureRecorder) {
				rec.lines = []story.LogLine{{Channel: "server", Text: "[Server] Done (3.2s)"}}
			},
			assert: act(story.KindAssertLogContains, func(a *story.Action) {
				a.Contains = "Exception"
			}),
			want: false,
		},
		{
			name: "json equals on stored value",
			steps: []story.Action{
				act(story.KindStoreState, func(a *story.Action) {
					a.StoreAs = "snapshot"
					a.Value = map[string]any{"health": 20, "armor": []any{"helmet"}}
				}),
			},
			assert: act(story.KindAssertJSONEquals, func(a *story.Action) {
				a.Source = "snapshot"
				a.Expected = `{"armor":["helmet"],"health":20}`
			}),
			want: true,
		},
		{
			name: "json equals mismatch",
			steps: []story.Action{
				act(story.KindStoreState, func(a *story.Action) {
					a.StoreAs = "snapshot"
					a.Value = map[string]any{"health": 20}
				}),
			},
			assert: act(story.KindAssertJSONEquals, func(a *story.Action) {
				a.Source = "snapshot"
				a.Expected = `{"health":19}`
			}),
			want: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newFakeBackend()
			e, rec := newTestEngine(b)
			if tt.seed != nil {
				tt.seed(b, rec)
			}
			res := e.Run(context.Background(), &story.Story{
				Name:       "assertion-kinds",
				Steps:      tt.steps,
				Assertions: []story.Action{tt.assert},
			})
			if len(res.AssertionResults) != 1 {
				t.Fatalf("assertion results = %+v", res.AssertionResults)
			}
			if got := res.AssertionResults[0].Passed; got != tt.want {
				t.Errorf("passed = %v, want %v (%s)", got, tt.want, res.AssertionResults[0].Message)
			}
			if res.Success != tt.want {
				t.Errorf("story success = %v, want %v", res.Success, tt.want)
			}
		})
	}
}

// Package story defines the story model — the declarative test scenario
// types — and the strict YAML parser that produces them.
package story

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// BackendKind selects which backend a story targets.
type BackendKind string

const (
	BackendConsole   BackendKind = "console"
	BackendPlayerSim BackendKind = "playersim"
)

// Story is one declarative test scenario: four ordered sections of actions
// plus a target backend kind. Plain data; created by the parser, consumed
// by one orchestrator invocation, then discarded.
type Story struct {
	Name        string      `yaml:"name" json:"name" jsonschema:"required"`
	Description string      `yaml:"description,omitempty" json:"description,omitempty"`
	Backend     BackendKind `yaml:"backend,omitempty" json:"backend,omitempty" jsonschema:"enum=console,enum=playersim"`
	Setup       []Action    `yaml:"setup,omitempty" json:"setup,omitempty"`
	Steps       []Action    `yaml:"steps,omitempty" json:"steps,omitempty"`
	Assertions  []Action    `yaml:"assertions,omitempty" json:"assertions,omitempty"`
	Cleanup     []Action    `yaml:"cleanup,omitempty" json:"cleanup,omitempty"`
}

// Millis is a duration in milliseconds. YAML accepts a bare integer
// (milliseconds) or a string of the form "250ms", "3s", "1m".
type Millis int64

// Duration converts to a time.Duration.
func (m Millis) Duration() time.Duration { return time.Duration(m) * time.Millisecond }

// ParseMillis parses the duration coercion forms.
func ParseMillis(s string) (Millis, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("negative duration %d", n)
		}
		return Millis(n), nil
	}
	for _, unit := range []struct {
		suffix string
		factor int64
	}{{"ms", 1}, {"s", 1000}, {"m", 60000}} {
		if strings.HasSuffix(s, unit.suffix) {
			num := strings.TrimSuffix(s, unit.suffix)
			n, err := strconv.ParseInt(strings.TrimSpace(num), 10, 64)
			if err != nil || n < 0 {
				return 0, fmt.Errorf("invalid duration %q", s)
			}
			return Millis(n * unit.factor), nil
		}
	}
	return 0, fmt.Errorf("invalid duration %q (want integer ms or Nms|Ns|Nm)", s)
}

// Location is a world coordinate triple.
type Location [3]float64

// Action is one tagged unit of work (or, in the assertions section, one
// check). The Kind determines which of the optional fields are meaningful;
// requiredFields in kinds.go is the per-kind contract.
type Action struct {
	Kind Kind `yaml:"action" json:"action" jsonschema:"required"`

	// Core fields every action may carry.
	Name    string `yaml:"name,omitempty" json:"name,omitempty"`
	StepID  string `yaml:"id,omitempty" json:"id,omitempty"`
	StoreAs string `yaml:"storeAs,omitempty" json:"storeAs,omitempty"`

	// Action-specific parameters.
	Player         string    `yaml:"player,omitempty" json:"player,omitempty"`
	Entity         string    `yaml:"entity,omitempty" json:"entity,omitempty"`
	EntityType     string    `yaml:"entityType,omitempty" json:"entityType,omitempty"`
	Item           string    `yaml:"item,omitempty" json:"item,omitempty"`
	Slot           string    `yaml:"slot,omitempty" json:"slot,omitempty"`
	Command        string    `yaml:"command,omitempty" json:"command,omitempty"`
	Args           []string  `yaml:"args,omitempty" json:"args,omitempty"`
	Location       *Location `yaml:"location,omitempty" json:"location,omitempty"`
	Count          *int      `yaml:"count,omitempty" json:"count,omitempty" jsonschema:"minimum=0"`
	Duration       *Millis   `yaml:"duration,omitempty" json:"duration,omitempty"`
	Timeout        *Millis   `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	Value          any       `yaml:"value,omitempty" json:"value,omitempty"`
	Message        string    `yaml:"message,omitempty" json:"message,omitempty"`
	Pattern        string    `yaml:"pattern,omitempty" json:"pattern,omitempty"`
	Weather        string    `yaml:"weather,omitempty" json:"weather,omitempty"`
	Source         string    `yaml:"source,omitempty" json:"source,omitempty"`
	Contains       string    `yaml:"contains,omitempty" json:"contains,omitempty"`
	Condition      string    `yaml:"condition,omitempty" json:"condition,omitempty"`
	State1         string    `yaml:"state1,omitempty" json:"state1,omitempty"`
	State2         string    `yaml:"state2,omitempty" json:"state2,omitempty"`
	SourceVariable string    `yaml:"sourceVariable,omitempty" json:"sourceVariable,omitempty"`
	JSONPath       string    `yaml:"jsonPath,omitempty" json:"jsonPath,omitempty"`
	FilterType     string    `yaml:"filterType,omitempty" json:"filterType,omitempty"`
	FilterValue    string    `yaml:"filterValue,omitempty" json:"filterValue,omitempty"`
	Target         string    `yaml:"target,omitempty" json:"target,omitempty"`
	Expected       any       `yaml:"expected,omitempty" json:"expected,omitempty"`

	// Step-level result validators.
	Expect            any    `yaml:"expect,omitempty" json:"expect,omitempty"`
	ExpectContains    string `yaml:"expectContains,omitempty" json:"expectContains,omitempty"`
	ExpectMatches     string `yaml:"expectMatches,omitempty" json:"expectMatches,omitempty"`
	ExpectNotContains string `yaml:"expectNotContains,omitempty" json:"expectNotContains,omitempty"`
	FailOnError       *bool  `yaml:"failOnError,omitempty" json:"failOnError,omitempty"`

	// Extra holds unknown action fields: preserved, ignored, warned about.
	Extra map[string]any `yaml:"-" json:"-"`
}

// DisplayName is the name used in reports: explicit name, else the kind.
func (a *Action) DisplayName() string {
	if a.Name != "" {
		return a.Name
	}
	return string(a.Kind)
}

// EntityName returns the local entity name for spawn-style actions, which
// accept it under either `entity` or `name`.
func (a *Action) EntityName() string {
	if a.Entity != "" {
		return a.Entity
	}
	return a.Name
}

// has reports whether the named parameter is present, for required-field
// validation. Field names follow the YAML keys.
func (a *Action) has(field string) bool {
	switch field {
	case "player":
		return a.Player != ""
	case "entity":
		return a.Entity != "" || a.Name != "" // spawn-style local names
	case "entityType":
		return a.EntityType != ""
	case "item":
		return a.Item != ""
	case "slot":
		return a.Slot != ""
	case "command":
		return a.Command != ""
	case "location":
		return a.Location != nil
	case "value":
		return a.Value != nil
	case "message":
		return a.Message != ""
	case "pattern":
		return a.Pattern != ""
	case "weather":
		return a.Weather != ""
	case "source":
		return a.Source != "" || a.SourceVariable != ""
	case "contains":
		return a.Contains != ""
	case "condition":
		return a.Condition != ""
	case "state1":
		return a.State1 != ""
	case "state2":
		return a.State2 != ""
	case "sourceVariable":
		return a.SourceVariable != ""
	case "jsonPath":
		return a.JSONPath != ""
	case "filterType":
		return a.FilterType != ""
	case "filterValue":
		return a.FilterValue != ""
	case "storeAs":
		return a.StoreAs != ""
	case "expected":
		return a.Expected != nil
	}
	return false
}

// CheckRequired verifies the per-kind required fields are present. Called
// at parse time and again by the orchestrator after reference resolution.
func (a *Action) CheckRequired() error {
	for _, f := range requiredFields[a.Kind] {
		if !a.has(f) {
			return fmt.Errorf("action %q requires field %q", a.Kind, f)
		}
	}
	return nil
}

// AssertionOutcome is what an assertion evaluates to.
type AssertionOutcome struct {
	Name    string `json:"name"`
	Passed  bool   `json:"passed"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// LogLine is one captured log entry with its channel.
type LogLine struct {
	Channel string    `json:"channel"` // server, rcon, client
	Time    time.Time `json:"time"`
	Text    string    `json:"text"`
}

// TestResult summarizes one story execution.
type TestResult struct {
	StoryName        string             `json:"storyName"`
	Success          bool               `json:"success"`
	ExecutionTimeMs  int64              `json:"executionTimeMs"`
	ActionsExecuted  int                `json:"actionsExecuted"`
	AssertionsPassed int                `json:"assertionsPassed"`
	AssertionsFailed int                `json:"assertionsFailed"`
	Logs             []LogLine          `json:"logs,omitempty"`
	AssertionResults []AssertionOutcome `json:"assertionResults,omitempty"`
	Error            string             `json:"error,omitempty"`
}

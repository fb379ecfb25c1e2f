package runner

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/craftlab/lodestone/pkg/fault"
)

// stores holds the per-story mutable state: the variable store written by
// storeAs and store_state, and the step-output store keyed by step-id.
// Both die with the story.
type stores struct {
	vars    map[string]any
	outputs map[string]map[string]any
}

func newStores() *stores {
	return &stores{
		vars:    make(map[string]any),
		outputs: make(map[string]map[string]any),
	}
}

// variable reads a variable, navigating any trailing path.
func (s *stores) variable(expr string) (any, error) {
	segs, err := parsePath(expr)
	if err != nil {
		return nil, fault.Wrap(fault.ReferenceUnbound, err, "reference %q", expr)
	}
	if len(segs) == 0 || segs[0].kind != segKey {
		return nil, fault.New(fault.ReferenceUnbound, "reference %q has no variable name", expr)
	}
	root, ok := s.vars[segs[0].key]
	if !ok {
		return nil, fault.New(fault.ReferenceUnbound, "variable %q is not bound", segs[0].key)
	}
	v, err := evalPath(root, segs[1:])
	if err != nil {
		return nil, fault.Wrap(fault.ReferenceUnbound, err, "reference %q", expr)
	}
	return v, nil
}

// stepOutput reads steps.ID.outputs.PATH for an already-executed step.
func (s *stores) stepOutput(stepID, path string) (any, error) {
	out, ok := s.outputs[stepID]
	if !ok {
		return nil, fault.New(fault.ReferenceUnbound, "step %q has not executed", stepID)
	}
	segs, err := parsePath(path)
	if err != nil {
		return nil, fault.Wrap(fault.ReferenceUnbound, err, "step %q output path %q", stepID, path)
	}
	if len(segs) == 0 || segs[0].kind != segKey {
		return nil, fault.New(fault.ReferenceUnbound, "step %q output path %q has no name", stepID, path)
	}
	root, ok := out[segs[0].key]
	if !ok {
		return nil, fault.New(fault.ReferenceUnbound, "step %q has no output %q", stepID, segs[0].key)
	}
	v, err := evalPath(root, segs[1:])
	if err != nil {
		return nil, fault.Wrap(fault.ReferenceUnbound, err, "step %q output %q", stepID, path)
	}
	return v, nil
}

// bindStep records a step's outputs. Map-shaped results additionally
// expose their top-level keys as named outputs, so steps.P.outputs.x
// works alongside steps.P.outputs.result.x.
func (s *stores) bindStep(stepID string, result any, status, message string, durationMs int64) {
	if stepID == "" {
		return
	}
	out := map[string]any{
		"result":   result,
		"status":   status,
		"message":  message,
		"duration": durationMs,
	}
	if m, ok := result.(map[string]any); ok {
		for k, v := range m {
			if _, reserved := out[k]; !reserved {
				out[k] = v
			}
		}
	}
	s.outputs[stepID] = out
}

// loadOperand interprets a source field leniently: a bound variable
// (with optional path), else literal JSON, else the raw string itself.
func (s *stores) loadOperand(src string) (any, error) {
	if v, err := s.variable(src); err == nil {
		return v, nil
	}
	if v, err := parseJSONOperand(src); err == nil {
		return v, nil
	}
	return src, nil
}

// loadState interprets a compare_states operand strictly: a bound
// variable or literal JSON, nothing else.
func (s *stores) loadState(name string) (any, error) {
	if v, err := s.variable(name); err == nil {
		return v, nil
	}
	if v, err := parseJSONOperand(name); err == nil {
		return v, nil
	}
	return nil, fault.New(fault.ReferenceUnbound, "state %q is neither a bound variable nor literal JSON", name)
}

// parseJSONOperand parses a string as a JSON document. Bare words are
// not JSON; quoted strings, numbers, objects and arrays are.
func parseJSONOperand(s string) (any, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil, fmt.Errorf("empty operand")
	}
	var v any
	if err := json.Unmarshal([]byte(trimmed), &v); err != nil {
		return nil, err
	}
	return v, nil
}

// --- generic value helpers ---

// generic converts a typed value into the map/slice/float64 shape every
// store consumer expects, via a JSON round trip.
func generic(v any) any {
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return v
	}
	return out
}

// stringify renders a value the way it is substituted into strings:
// scalars in their plain form, composites as compact JSON.
func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

// asFloat coerces numeric-ish values for comparators.
func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	}
	return 0, false
}

func asInt(v any) (int64, bool) {
	switch t := v.(type) {
	case int:
		return int64(t), true
	case int64:
		return t, true
	case float64:
		return int64(t), true
	case string:
		n, err := strconv.ParseInt(t, 10, 64)
		return n, err == nil
	}
	return 0, false
}

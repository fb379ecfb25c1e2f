package story

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/craftlab/lodestone/pkg/fault"
)

// Warning is a non-fatal parser note (unknown action field, deprecated
// alias) with a file location.
type Warning struct {
	Line    int
	Column  int
	Message string
}

func (w Warning) String() string {
	return fmt.Sprintf("line %d: %s", w.Line, w.Message)
}

// ParseFile reads and parses a story YAML file.
func ParseFile(path string) (*Story, []Warning, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fault.Wrap(fault.ParseError, err, "read story %s", path)
	}
	return Parse(data)
}

// Parse translates story text into a Story value. Unknown top-level keys
// are errors; unknown action fields are warnings (preserved, ignored).
func Parse(data []byte) (*Story, []Warning, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, nil, fault.Wrap(fault.ParseError, err, "malformed YAML")
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, nil, fault.New(fault.ParseError, "empty story document")
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, nil, parseErr(root, "story must be a mapping")
	}

	p := &parser{}
	s := &Story{Backend: BackendConsole}

	for i := 0; i < len(root.Content)-1; i += 2 {
		key, val := root.Content[i], root.Content[i+1]
		switch key.Value {
		case "name":
			s.Name = val.Value
		case "description":
			s.Description = val.Value
		case "backend":
			switch BackendKind(val.Value) {
			case BackendConsole, BackendPlayerSim:
				s.Backend = BackendKind(val.Value)
			default:
				return nil, nil, parseErr(val, "unknown backend %q (want console or playersim)", val.Value)
			}
		case "setup", "steps", "cleanup":
			actions, err := p.decodeSection(val, false)
			if err != nil {
				return nil, nil, err
			}
			switch key.Value {
			case "setup":
				s.Setup = actions
			case "steps":
				s.Steps = actions
			case "cleanup":
				s.Cleanup = actions
			}
		case "assertions":
			actions, err := p.decodeSection(val, true)
			if err != nil {
				return nil, nil, err
			}
			s.Assertions = actions
		default:
			return nil, nil, parseErr(key, "unknown top-level key %q", key.Value)
		}
	}

	if s.Name == "" {
		return nil, nil, parseErr(root, "story has no name")
	}
	if err := checkStepIDs(s); err != nil {
		return nil, nil, err
	}
	return s, p.warnings, nil
}

type parser struct {
	warnings []Warning
}

func (p *parser) warnf(n *yaml.Node, format string, args ...any) {
	p.warnings = append(p.warnings, Warning{
		Line:    n.Line,
		Column:  n.Column,
		Message: fmt.Sprintf(format, args...),
	})
}

func (p *parser) decodeSection(node *yaml.Node, assertions bool) ([]Action, error) {
	if node.Kind == yaml.ScalarNode && node.Value == "" {
		return nil, nil // empty section is legal and a no-op
	}
	if node.Kind != yaml.SequenceNode {
		return nil, parseErr(node, "section must be a sequence of actions")
	}
	var out []Action
	for _, item := range node.Content {
		a, err := p.decodeAction(item)
		if err != nil {
			return nil, err
		}
		if assertions && !a.Kind.IsAssertion() {
			return nil, parseErr(item, "%q is not an assertion kind", a.Kind)
		}
		out = append(out, *a)
	}
	return out, nil
}

func (p *parser) decodeAction(node *yaml.Node) (*Action, error) {
	if node.Kind != yaml.MappingNode {
		return nil, parseErr(node, "action must be a mapping")
	}
	a := &Action{}

	// Resolve the kind tag first so field errors can name it.
	for i := 0; i < len(node.Content)-1; i += 2 {
		if node.Content[i].Value == "action" {
			tok := node.Content[i+1].Value
			kind, deprecated, err := NormalizeKind(tok)
			if err != nil {
				return nil, parseErr(node.Content[i+1], "%v", err)
			}
			if deprecated != "" {
				p.warnf(node.Content[i+1], "%s", deprecated)
			}
			a.Kind = kind
		}
	}
	if a.Kind == "" {
		return nil, parseErr(node, "action mapping has no \"action\" tag")
	}

	for i := 0; i < len(node.Content)-1; i += 2 {
		key, val := node.Content[i], node.Content[i+1]
		if err := p.decodeField(a, key, val); err != nil {
			return nil, err
		}
	}

	if err := a.CheckRequired(); err != nil {
		return nil, parseErr(node, "%v", err)
	}
	return a, nil
}

func (p *parser) decodeField(a *Action, key, val *yaml.Node) error {
	switch key.Value {
	case "action":
		// handled in decodeAction
	case "name":
		a.Name = val.Value
	case "id":
		a.StepID = val.Value
	case "storeAs":
		a.StoreAs = val.Value
	case "player":
		a.Player = val.Value
	case "entity":
		a.Entity = val.Value
	case "entityType":
		a.EntityType = val.Value
	case "item":
		a.Item = val.Value
	case "slot":
		a.Slot = val.Value
	case "command":
		a.Command = val.Value
	case "args":
		if val.Kind != yaml.SequenceNode {
			return parseErr(val, "args must be a sequence of strings")
		}
		for _, e := range val.Content {
			a.Args = append(a.Args, e.Value)
		}
	case "location":
		loc, err := decodeLocation(val)
		if err != nil {
			return err
		}
		a.Location = loc
	case "count":
		n, err := strconv.Atoi(val.Value)
		if err != nil || n < 0 {
			return parseErr(val, "count must be a non-negative integer, got %q", val.Value)
		}
		a.Count = &n
	case "duration":
		ms, err := ParseMillis(val.Value)
		if err != nil {
			return parseErr(val, "%v", err)
		}
		a.Duration = &ms
	case "timeout":
		ms, err := ParseMillis(val.Value)
		if err != nil {
			return parseErr(val, "%v", err)
		}
		a.Timeout = &ms
	case "value":
		var v any
		if err := val.Decode(&v); err != nil {
			return parseErr(val, "invalid value: %v", err)
		}
		a.Value = v
	case "message":
		a.Message = val.Value
	case "pattern":
		a.Pattern = val.Value
	case "weather":
		a.Weather = val.Value
	case "source":
		a.Source = val.Value
	case "contains":
		a.Contains = val.Value
	case "condition":
		a.Condition = val.Value
	case "state1":
		a.State1 = val.Value
	case "state2":
		a.State2 = val.Value
	case "sourceVariable":
		a.SourceVariable = val.Value
	case "jsonPath":
		a.JSONPath = val.Value
	case "filterType":
		a.FilterType = val.Value
	case "filterValue":
		a.FilterValue = val.Value
	case "target":
		a.Target = val.Value
	case "expected":
		var v any
		if err := val.Decode(&v); err != nil {
			return parseErr(val, "invalid expected: %v", err)
		}
		a.Expected = v
	case "expect":
		var v any
		if err := val.Decode(&v); err != nil {
			return parseErr(val, "invalid expect: %v", err)
		}
		a.Expect = v
	case "expectContains":
		a.ExpectContains = val.Value
	case "expectMatches":
		a.ExpectMatches = val.Value
	case "expectNotContains":
		a.ExpectNotContains = val.Value
	case "failOnError":
		b, err := strconv.ParseBool(val.Value)
		if err != nil {
			return parseErr(val, "failOnError must be a boolean, got %q", val.Value)
		}
		a.FailOnError = &b
	default:
		p.warnf(key, "unknown field %q on action %q (ignored)", key.Value, a.Kind)
		if a.Extra == nil {
			a.Extra = make(map[string]any)
		}
		var v any
		val.Decode(&v)
		a.Extra[key.Value] = v
	}
	return nil
}

func decodeLocation(val *yaml.Node) (*Location, error) {
	if val.Kind != yaml.SequenceNode || len(val.Content) != 3 {
		return nil, parseErr(val, "location must be a sequence of 3 numbers")
	}
	var loc Location
	for i, e := range val.Content {
		f, err := strconv.ParseFloat(e.Value, 64)
		if err != nil {
			return nil, parseErr(e, "location[%d] is not a number: %q", i, e.Value)
		}
		loc[i] = f
	}
	return &loc, nil
}

// checkStepIDs enforces step-id uniqueness within a story.
func checkStepIDs(s *Story) error {
	seen := make(map[string]bool)
	for _, section := range [][]Action{s.Setup, s.Steps, s.Assertions, s.Cleanup} {
		for _, a := range section {
			if a.StepID == "" {
				continue
			}
			if seen[a.StepID] {
				return fault.New(fault.ParseError, "duplicate step id %q in story %q", a.StepID, s.Name)
			}
			seen[a.StepID] = true
		}
	}
	return nil
}

func parseErr(n *yaml.Node, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if n != nil && n.Line > 0 {
		return fault.New(fault.ParseError, "line %d: %s", n.Line, msg)
	}
	return fault.New(fault.ParseError, "%s", msg)
}

// MustKind panics on an unknown kind token. Test helper.
func MustKind(token string) Kind {
	k, _, err := NormalizeKind(token)
	if err != nil {
		panic(err)
	}
	return k
}

package runner

import (
	"regexp"
	"strings"

	"github.com/craftlab/lodestone/pkg/fault"
	"github.com/craftlab/lodestone/pkg/story"
)

// Reference expressions come in three forms:
//
//	${name}                              variable store
//	{name}                               variable store (bare form)
//	${{ steps.ID.outputs.NAME }}         step-output store
//
// Resolution is eager: every expression is replaced by its value before
// the action runs. An expression that is the entire field keeps the
// value's structure; one embedded in a larger string is replaced by its
// string form.

var (
	stepRefRe = regexp.MustCompile(`\$\{\{\s*(.+?)\s*\}\}`)
	varRefRe  = regexp.MustCompile(`\$\{([^{}]+)\}`)
	// The bare {name} form only applies when the whole field is a single
	// identifier in braces; anything looser would collide with literal
	// JSON in field values.
	bareRefRe = regexp.MustCompile(`^\{([A-Za-z_][A-Za-z0-9_]*)\}$`)
)

// resolveValue resolves one field value. Strings are scanned for
// references; everything else passes through.
func (s *stores) resolveValue(v any) (any, error) {
	str, ok := v.(string)
	if !ok {
		return v, nil
	}
	return s.resolveString(str)
}

// resolveString substitutes every reference in the string. When the whole
// string is exactly one reference, the bound value is returned as-is
// (structure preserved); otherwise each reference is stringified in place.
func (s *stores) resolveString(in string) (any, error) {
	if m := bareRefRe.FindStringSubmatch(in); m != nil {
		return s.variable(m[1])
	}
	if m := stepRefRe.FindStringSubmatch(in); m != nil && m[0] == in {
		return s.lookupRef(m[1])
	}
	if m := varRefRe.FindStringSubmatch(in); m != nil && m[0] == in && !strings.HasPrefix(in, "${{") {
		return s.variable(m[1])
	}

	var firstErr error
	out := stepRefRe.ReplaceAllStringFunc(in, func(match string) string {
		inner := stepRefRe.FindStringSubmatch(match)[1]
		v, err := s.lookupRef(inner)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			return match
		}
		return stringify(v)
	})
	out = varRefRe.ReplaceAllStringFunc(out, func(match string) string {
		inner := varRefRe.FindStringSubmatch(match)[1]
		v, err := s.variable(inner)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			return match
		}
		return stringify(v)
	})
	if firstErr != nil {
		return in, firstErr
	}
	return out, nil
}

// lookupRef handles the inside of a ${{ ... }} expression:
// steps.ID.outputs.PATH, or a plain variable path.
func (s *stores) lookupRef(inner string) (any, error) {
	if rest, ok := strings.CutPrefix(inner, "steps."); ok {
		id, path, ok := strings.Cut(rest, ".outputs.")
		if !ok {
			return nil, fault.New(fault.ReferenceUnbound, "step reference %q must be steps.ID.outputs.NAME", inner)
		}
		return s.stepOutput(id, path)
	}
	return s.variable(inner)
}

// resolveAction materializes a copy of the action with every reference
// substituted. The original is untouched.
func (s *stores) resolveAction(act *story.Action) (*story.Action, error) {
	out := *act

	strFields := []*string{
		&out.Player, &out.Entity, &out.EntityType, &out.Item, &out.Slot,
		&out.Command, &out.Message, &out.Pattern, &out.Weather,
		&out.Source, &out.Contains, &out.Condition, &out.State1,
		&out.State2, &out.SourceVariable, &out.FilterValue, &out.Target,
	}
	for _, f := range strFields {
		if *f == "" {
			continue
		}
		v, err := s.resolveString(*f)
		if err != nil {
			return &out, err
		}
		*f = stringify(v)
	}

	if len(act.Args) > 0 {
		out.Args = make([]string, len(act.Args))
		for i, a := range act.Args {
			v, err := s.resolveString(a)
			if err != nil {
				return &out, err
			}
			out.Args[i] = stringify(v)
		}
	}

	anyFields := []*any{&out.Value, &out.Expect, &out.Expected}
	for _, f := range anyFields {
		if *f == nil {
			continue
		}
		v, err := s.resolveValue(*f)
		if err != nil {
			return &out, err
		}
		*f = v
	}
	return &out, nil
}

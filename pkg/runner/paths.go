package runner

import (
	"fmt"
	"strconv"
	"strings"
)

// The path grammar shared by reference expressions, jsonpath extraction
// and state-comparison output: dotted keys, bracketed array indices, and
// a single equality filter predicate.
//
//	$.entities[0].name
//	result.items[?(@.id == 'diamond_sword')].count

type segKind int

const (
	segKey segKind = iota
	segIndex
	segFilter
)

type pathSeg struct {
	kind  segKind
	key   string // segKey: map key; segFilter: the @.KEY field
	index int    // segIndex
	lit   string // segFilter: the literal to match
}

// parsePath splits a path expression into segments. A leading "$" (the
// jsonpath root) is accepted and skipped.
func parsePath(s string) ([]pathSeg, error) {
	orig := s
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "$")
	var segs []pathSeg
	for len(s) > 0 {
		switch s[0] {
		case '.':
			s = s[1:]
		case '[':
			end := strings.IndexByte(s, ']')
			if end < 0 {
				return nil, fmt.Errorf("path %q: unterminated bracket", orig)
			}
			inner := strings.TrimSpace(s[1:end])
			s = s[end+1:]
			seg, err := parseBracket(orig, inner)
			if err != nil {
				return nil, err
			}
			segs = append(segs, seg)
		default:
			end := strings.IndexAny(s, ".[")
			if end < 0 {
				end = len(s)
			}
			segs = append(segs, pathSeg{kind: segKey, key: s[:end]})
			s = s[end:]
		}
	}
	return segs, nil
}

func parseBracket(orig, inner string) (pathSeg, error) {
	if inner == "" {
		return pathSeg{}, fmt.Errorf("path %q: empty bracket", orig)
	}
	if n, err := strconv.Atoi(inner); err == nil {
		if n < 0 {
			return pathSeg{}, fmt.Errorf("path %q: negative index %d", orig, n)
		}
		return pathSeg{kind: segIndex, index: n}, nil
	}
	if strings.HasPrefix(inner, "'") || strings.HasPrefix(inner, `"`) {
		key := strings.Trim(inner, `'"`)
		return pathSeg{kind: segKey, key: key}, nil
	}
	if strings.HasPrefix(inner, "?(") && strings.HasSuffix(inner, ")") {
		return parseFilter(orig, strings.TrimSuffix(strings.TrimPrefix(inner, "?("), ")"))
	}
	return pathSeg{}, fmt.Errorf("path %q: unsupported bracket expression [%s]", orig, inner)
}

// parseFilter handles the single supported predicate form
// @.KEY == 'LITERAL'.
func parseFilter(orig, body string) (pathSeg, error) {
	parts := strings.SplitN(body, "==", 2)
	if len(parts) != 2 {
		return pathSeg{}, fmt.Errorf("path %q: filter %q must be @.KEY == 'LITERAL'", orig, body)
	}
	left := strings.TrimSpace(parts[0])
	if !strings.HasPrefix(left, "@.") {
		return pathSeg{}, fmt.Errorf("path %q: filter key %q must start with @.", orig, left)
	}
	lit := strings.TrimSpace(parts[1])
	lit = strings.Trim(lit, `'"`)
	return pathSeg{kind: segFilter, key: strings.TrimPrefix(left, "@."), lit: lit}, nil
}

// evalPath navigates v along segs. A filter segment applied to a list
// yields the list of matching elements; every other miss is an error.
func evalPath(v any, segs []pathSeg) (any, error) {
	for _, seg := range segs {
		switch seg.kind {
		case segKey:
			m, ok := v.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("segment %q: value is %T, not an object", seg.key, v)
			}
			child, ok := m[seg.key]
			if !ok {
				return nil, fmt.Errorf("key %q not present", seg.key)
			}
			v = child
		case segIndex:
			list, ok := v.([]any)
			if !ok {
				return nil, fmt.Errorf("index [%d]: value is %T, not a list", seg.index, v)
			}
			if seg.index >= len(list) {
				return nil, fmt.Errorf("index [%d] out of range (len %d)", seg.index, len(list))
			}
			v = list[seg.index]
		case segFilter:
			list, ok := v.([]any)
			if !ok {
				return nil, fmt.Errorf("filter on %T, not a list", v)
			}
			var matches []any
			for _, item := range list {
				m, ok := item.(map[string]any)
				if !ok {
					continue
				}
				if stringify(m[seg.key]) == seg.lit {
					matches = append(matches, item)
				}
			}
			v = matches
		}
	}
	return v, nil
}

// joinPath renders segments back into the dotted/bracketed display form
// used by comparison records.
func joinPath(parent, child string) string {
	if parent == "" {
		return child
	}
	if strings.HasPrefix(child, "[") {
		return parent + child
	}
	return parent + "." + child
}

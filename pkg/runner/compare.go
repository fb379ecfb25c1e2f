package runner

import (
	"fmt"
	"reflect"
)

// StateComparison is the result record of compare_states: a normalized
// structural diff between two captured states. Object key order and
// serialization whitespace are irrelevant; array order is significant.
type StateComparison struct {
	Equal   bool         `json:"equal"`
	Added   []ChangeItem `json:"added"`
	Removed []ChangeItem `json:"removed"`
	Changed []ChangedVal `json:"changed"`
}

// ChangeItem is a value present on only one side.
type ChangeItem struct {
	Path  string `json:"path"`
	Value any    `json:"value"`
}

// ChangedVal is a leaf that differs between the two sides.
type ChangedVal struct {
	Path string `json:"path"`
	From any    `json:"from"`
	To   any    `json:"to"`
}

// CompareStates diffs two values after normalization. Paths use the
// dotted/bracketed display form ("items[0].id").
func CompareStates(a, b any) *StateComparison {
	cmp := &StateComparison{
		Added:   []ChangeItem{},
		Removed: []ChangeItem{},
		Changed: []ChangedVal{},
	}
	diffInto(cmp, "", generic(a), generic(b))
	cmp.Equal = len(cmp.Added) == 0 && len(cmp.Removed) == 0 && len(cmp.Changed) == 0
	return cmp
}

func diffInto(cmp *StateComparison, path string, a, b any) {
	am, aIsMap := a.(map[string]any)
	bm, bIsMap := b.(map[string]any)
	if aIsMap && bIsMap {
		for k, av := range am {
			bv, ok := bm[k]
			if !ok {
				cmp.Removed = append(cmp.Removed, ChangeItem{Path: joinPath(path, k), Value: av})
				continue
			}
			diffInto(cmp, joinPath(path, k), av, bv)
		}
		for k, bv := range bm {
			if _, ok := am[k]; !ok {
				cmp.Added = append(cmp.Added, ChangeItem{Path: joinPath(path, k), Value: bv})
			}
		}
		return
	}

	as, aIsList := a.([]any)
	bs, bIsList := b.([]any)
	if aIsList && bIsList {
		n := len(as)
		if len(bs) < n {
			n = len(bs)
		}
		for i := 0; i < n; i++ {
			diffInto(cmp, fmt.Sprintf("%s[%d]", path, i), as[i], bs[i])
		}
		for i := n; i < len(as); i++ {
			cmp.Removed = append(cmp.Removed, ChangeItem{Path: fmt.Sprintf("%s[%d]", path, i), Value: as[i]})
		}
		for i := n; i < len(bs); i++ {
			cmp.Added = append(cmp.Added, ChangeItem{Path: fmt.Sprintf("%s[%d]", path, i), Value: bs[i]})
		}
		return
	}

	if !reflect.DeepEqual(a, b) {
		cmp.Changed = append(cmp.Changed, ChangedVal{Path: path, From: a, To: b})
	}
}

// normalizedEqual reports structural equality of two values after
// normalization. Used by assert_json_equals and the expect validator.
func normalizedEqual(a, b any) bool {
	return reflect.DeepEqual(generic(a), generic(b))
}

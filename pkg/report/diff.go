package report

import (
	"encoding/json"

	"github.com/craftlab/lodestone/pkg/runner"
)

// PatchOp is one RFC 6902 operation, with the path rendered in the
// dotted/bracketed form used everywhere else in the reports.
type PatchOp struct {
	Op    string `json:"op"` // add, remove, replace
	Path  string `json:"path"`
	Value any    `json:"value,omitempty"`
	From  any    `json:"from,omitempty"`
}

// DiffStates computes the semantic diff between two captured state
// snapshots (JSON strings). Undecodable input yields no operations.
func DiffStates(before, after string) []PatchOp {
	var a, b any
	if json.Unmarshal([]byte(before), &a) != nil || json.Unmarshal([]byte(after), &b) != nil {
		return nil
	}
	cmp := runner.CompareStates(a, b)
	if cmp.Equal {
		return nil
	}
	ops := make([]PatchOp, 0, len(cmp.Added)+len(cmp.Removed)+len(cmp.Changed))
	for _, c := range cmp.Added {
		ops = append(ops, PatchOp{Op: "add", Path: c.Path, Value: c.Value})
	}
	for _, c := range cmp.Removed {
		ops = append(ops, PatchOp{Op: "remove", Path: c.Path, From: c.Value})
	}
	for _, c := range cmp.Changed {
		ops = append(ops, PatchOp{Op: "replace", Path: c.Path, Value: c.To, From: c.From})
	}
	return ops
}

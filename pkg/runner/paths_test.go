package runner

import (
	"reflect"
	"testing"
)

func sampleDoc() any {
	return generic(map[string]any{
		"count": 2,
		"world": "overworld",
		"entities": []any{
			map[string]any{"id": 1, "type": "zombie", "name": "lt_z1"},
			map[string]any{"id": 2, "type": "cow"},
		},
	})
}

func TestEvalPath(t *testing.T) {
	doc := sampleDoc()
	cases := []struct {
		path string
		want any
	}{
		{"$.world", "overworld"},
		{"world", "overworld"},
		{"$.entities[0].type", "zombie"},
		{"entities[1].id", float64(2)},
		{"$.count", float64(2)},
	}
	for _, tc := range cases {
		segs, err := parsePath(tc.path)
		if err != nil {
			t.Fatalf("parsePath(%q): %v", tc.path, err)
		}
		got, err := evalPath(doc, segs)
		if err != nil {
			t.Fatalf("evalPath(%q): %v", tc.path, err)
		}
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("evalPath(%q) = %v, want %v", tc.path, got, tc.want)
		}
	}
}

func TestEvalPathFilter(t *testing.T) {
	segs, err := parsePath("$.entities[?(@.type == 'zombie')]")
	if err != nil {
		t.Fatalf("parsePath: %v", err)
	}
	got, err := evalPath(sampleDoc(), segs)
	if err != nil {
		t.Fatalf("evalPath: %v", err)
	}
	list, ok := got.([]any)
	if !ok || len(list) != 1 {
		t.Fatalf("filter matched %v, want one zombie", got)
	}
	if list[0].(map[string]any)["name"] != "lt_z1" {
		t.Errorf("wrong match %v", list[0])
	}
}

func TestEvalPathMisses(t *testing.T) {
	doc := sampleDoc()
	for _, path := range []string{"$.missing", "entities[9]", "world.deeper"} {
		segs, err := parsePath(path)
		if err != nil {
			t.Fatalf("parsePath(%q): %v", path, err)
		}
		if _, err := evalPath(doc, segs); err == nil {
			t.Errorf("evalPath(%q) should fail", path)
		}
	}
}

func TestParsePathRejects(t *testing.T) {
	for _, path := range []string{"a[", "a[]", "a[?(type == 'x')]", "a[-1]"} {
		if _, err := parsePath(path); err == nil {
			t.Errorf("parsePath(%q) should fail", path)
		}
	}
}

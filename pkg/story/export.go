package story

import (
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/invopop/jsonschema"
)

// GenerateJSONSchema produces a JSON Schema Draft 2020-12 document from
// the Story struct using invopop/jsonschema. Used by `lodestone schema`
// and by the semantic validation phase.
func GenerateJSONSchema() ([]byte, error) {
	r := new(jsonschema.Reflector)
	r.DoNotReference = false

	s := r.Reflect(&Story{})
	s.ID = "https://github.com/craftlab/lodestone/schemas/story-v0.json"
	s.Title = "Lodestone Story v0"
	s.Description = "Schema for lodestone integration-test story YAML documents (Draft 2020-12)"

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	return data, nil
}

// compilePattern compiles a chat-message wait pattern.
func compilePattern(pattern string) (*regexp.Regexp, error) {
	return regexp.Compile(pattern)
}

package story

import (
	"encoding/json"
	"fmt"
	"strings"

	sjsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// ValidationError is a single validation finding with location context.
type ValidationError struct {
	Phase    string `json:"phase"` // structural, semantic, domain
	Path     string `json:"path"`
	Message  string `json:"message"`
	Severity string `json:"severity"` // error, warning
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Phase, e.Path, e.Message)
}

// ValidateFile runs the full validation pipeline on a story file.
// Phase 1: structural (strict YAML parse, kind normalization, required fields)
// Phase 2: semantic (JSON Schema validation of the parsed document)
// Phase 3: domain (cross-field rules the schema cannot express)
func ValidateFile(path string) (*Story, []*ValidationError) {
	var all []*ValidationError

	s, warnings, err := ParseFile(path)
	if err != nil {
		all = append(all, &ValidationError{
			Phase:    "structural",
			Message:  err.Error(),
			Severity: "error",
		})
		return nil, all
	}
	for _, w := range warnings {
		all = append(all, &ValidationError{
			Phase:    "structural",
			Path:     fmt.Sprintf("line %d", w.Line),
			Message:  w.Message,
			Severity: "warning",
		})
	}

	all = append(all, validateSemantic(s)...)
	all = append(all, validateDomain(s)...)
	return s, all
}

// validateSemantic validates the parsed story against the generated JSON
// Schema.
func validateSemantic(s *Story) []*ValidationError {
	data, err := json.Marshal(s)
	if err != nil {
		return []*ValidationError{{
			Phase: "semantic", Message: fmt.Sprintf("marshal for schema validation: %v", err), Severity: "error",
		}}
	}

	schemaJSON, err := GenerateJSONSchema()
	if err != nil {
		return []*ValidationError{{
			Phase: "semantic", Message: fmt.Sprintf("generate schema: %v", err), Severity: "error",
		}}
	}

	var schemaDoc any
	if err := json.Unmarshal(schemaJSON, &schemaDoc); err != nil {
		return []*ValidationError{{
			Phase: "semantic", Message: fmt.Sprintf("unmarshal schema: %v", err), Severity: "error",
		}}
	}

	c := sjsonschema.NewCompiler()
	if err := c.AddResource("story-v0.json", schemaDoc); err != nil {
		return []*ValidationError{{
			Phase: "semantic", Message: fmt.Sprintf("add schema resource: %v", err), Severity: "error",
		}}
	}
	sch, err := c.Compile("story-v0.json")
	if err != nil {
		return []*ValidationError{{
			Phase: "semantic", Message: fmt.Sprintf("compile schema: %v", err), Severity: "error",
		}}
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return []*ValidationError{{
			Phase: "semantic", Message: fmt.Sprintf("unmarshal document: %v", err), Severity: "error",
		}}
	}

	if err := sch.Validate(doc); err != nil {
		var errs []*ValidationError
		if ve, ok := err.(*sjsonschema.ValidationError); ok {
			for _, cause := range flattenValidationErrors(ve) {
				errs = append(errs, &ValidationError{
					Phase:    "semantic",
					Path:     strings.Join(cause.InstanceLocation, "/"),
					Message:  fmt.Sprintf("%v", cause.ErrorKind),
					Severity: "error",
				})
			}
		} else {
			errs = append(errs, &ValidationError{
				Phase: "semantic", Message: err.Error(), Severity: "error",
			})
		}
		return errs
	}
	return nil
}

func flattenValidationErrors(ve *sjsonschema.ValidationError) []*sjsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*sjsonschema.ValidationError{ve}
	}
	var flat []*sjsonschema.ValidationError
	for _, cause := range ve.Causes {
		flat = append(flat, flattenValidationErrors(cause)...)
	}
	return flat
}

// clientPlaneKinds require the playersim backend at runtime.
var clientPlaneKinds = map[Kind]bool{
	KindConnectPlayer: true, KindDisconnectPlayer: true,
	KindSendChatMessage: true, KindMovePlayer: true,
	KindGetPlayerPosition: true, KindGetPlayerHealth: true,
	KindGetPlayerInventory: true, KindGetPlayerEquipment: true,
	KindGetEntities: true, KindGetEntitiesInView: true,
	KindGetEntityByName: true, KindWaitForChatMessage: true,
	KindEquipItem: true, KindExecutePlayerCommand: true,
	KindExecutePlayerRaw: true,
}

// validateDomain applies cross-field rules the schema cannot express.
func validateDomain(s *Story) []*ValidationError {
	var errs []*ValidationError

	if s.Backend == BackendConsole {
		for secName, section := range map[string][]Action{
			"setup": s.Setup, "steps": s.Steps, "cleanup": s.Cleanup,
		} {
			for i, a := range section {
				if clientPlaneKinds[a.Kind] {
					errs = append(errs, &ValidationError{
						Phase:    "domain",
						Path:     fmt.Sprintf("%s[%d]", secName, i),
						Message:  fmt.Sprintf("%q needs the playersim backend; it will fail with CapabilityUnavailable on backend: console", a.Kind),
						Severity: "warning",
					})
				}
			}
		}
	}

	for i, a := range s.Steps {
		if a.Kind == KindWaitForChatMessage && a.Pattern != "" {
			if _, err := compilePattern(a.Pattern); err != nil {
				errs = append(errs, &ValidationError{
					Phase:    "domain",
					Path:     fmt.Sprintf("steps[%d].pattern", i),
					Message:  fmt.Sprintf("invalid pattern: %v", err),
					Severity: "error",
				})
			}
		}
	}
	return errs
}

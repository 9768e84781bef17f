package schema

import (
	"encoding/json"
	"fmt"
	"strings"

	sjsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// DefinitionError is a single problem found while checking a
// form-definition document, with a JSON-path-like location.
type DefinitionError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (e *DefinitionError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ValidateDefinition checks a decoded definition against the generated
// JSON Schema. A non-empty return means the document is unusable: the
// caller must treat the whole run as a parse failure, not attempt
// row-level validation against a partial model.
func ValidateDefinition(def *Definition) []*DefinitionError {
	data, err := json.Marshal(def)
	if err != nil {
		return []*DefinitionError{{Message: fmt.Sprintf("marshal for schema validation: %v", err)}}
	}

	schemaJSON, err := GenerateJSONSchema()
	if err != nil {
		return []*DefinitionError{{Message: fmt.Sprintf("generate schema: %v", err)}}
	}

	var schemaDoc interface{}
	if err := json.Unmarshal(schemaJSON, &schemaDoc); err != nil {
		return []*DefinitionError{{Message: fmt.Sprintf("unmarshal schema: %v", err)}}
	}

	c := sjsonschema.NewCompiler()
	if err := c.AddResource("form-definition-v0.json", schemaDoc); err != nil {
		return []*DefinitionError{{Message: fmt.Sprintf("add schema resource: %v", err)}}
	}

	sch, err := c.Compile("form-definition-v0.json")
	if err != nil {
		return []*DefinitionError{{Message: fmt.Sprintf("compile schema: %v", err)}}
	}

	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return []*DefinitionError{{Message: fmt.Sprintf("unmarshal document: %v", err)}}
	}

	if err := sch.Validate(doc); err != nil {
		var errs []*DefinitionError
		if ve, ok := err.(*sjsonschema.ValidationError); ok {
			for _, cause := range flattenValidationErrors(ve) {
				errs = append(errs, &DefinitionError{
					Path:    strings.Join(cause.InstanceLocation, "/"),
					Message: fmt.Sprintf("%v", cause.ErrorKind),
				})
			}
		} else {
			errs = append(errs, &DefinitionError{Message: err.Error()})
		}
		return errs
	}
	return nil
}

// flattenValidationErrors recursively collects all leaf validation errors.
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

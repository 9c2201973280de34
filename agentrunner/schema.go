package agentrunner

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/streetrace-ai/streetrace/workflow"
)

// schemaRegistry maps an `output schema <Type>` name to its compiled JSON
// schema bytes, resolved by the workload loader from *.yaml declarations
// or built-in schema definitions.
type schemaRegistry interface {
	Schema(name string) ([]byte, bool)
}

// validateOutput compiles and validates raw model output against the
// named schema: compile-then-validate, one schema per call rather than
// a cached compiler, since schemas are small and validated once per
// agent turn.
func validateOutput(schemaName string, schemas schemaRegistry, raw []byte) error {
	if schemaName == "" || schemas == nil {
		return nil
	}
	schemaBytes, ok := schemas.Schema(schemaName)
	if !ok || len(schemaBytes) == 0 {
		return nil
	}

	var schemaDoc any
	if err := json.Unmarshal(schemaBytes, &schemaDoc); err != nil {
		return fmt.Errorf("agentrunner: unmarshal schema %s: %w", schemaName, err)
	}
	var payloadDoc any
	if err := json.Unmarshal(raw, &payloadDoc); err != nil {
		return &workflow.JSONParseError{Raw: string(raw), ParseError: err}
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource(schemaName+".json", schemaDoc); err != nil {
		return fmt.Errorf("agentrunner: add schema resource %s: %w", schemaName, err)
	}
	compiled, err := c.Compile(schemaName + ".json")
	if err != nil {
		return fmt.Errorf("agentrunner: compile schema %s: %w", schemaName, err)
	}
	if err := compiled.Validate(payloadDoc); err != nil {
		return &workflow.SchemaValidationError{SchemaName: schemaName, Errors: []string{err.Error()}, Raw: string(raw)}
	}
	return nil
}

package schema

import (
	"bytes"
	"fmt"
	"os"

	"github.com/dojoai/dojo/internal/ast"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

const schemaURL = "https://schemas.dojo.ai/v1.0/module.json"

// Validator validates module documents against the generated JSON Schema
type Validator struct {
	schema *jsonschema.Schema
}

// ValidationError represents a validation error with context
type ValidationError struct {
	Message string      `json:"message"`
	Path    string      `json:"path"`
	Value   interface{} `json:"value,omitempty"`
}

// ValidationResult contains the results of module validation
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// NewValidator creates a new schema validator. The schema is generated
// from the module types rather than read from disk, so it can never drift
// from the structs the parser decodes into.
func NewValidator() (*Validator, error) {
	schemaData, err := ast.NewSchema()
	if err != nil {
		return nil, fmt.Errorf("failed to generate schema: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaURL, bytes.NewReader(schemaData)); err != nil {
		return nil, fmt.Errorf("failed to add schema resource: %w", err)
	}
	schema, err := compiler.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}

	return &Validator{schema: schema}, nil
}

// ValidateFile validates a module file
func (v *Validator) ValidateFile(filename string) (*ValidationResult, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", filename, err)
	}

	return v.ValidateBytes(data)
}

// ValidateBytes validates module data
func (v *Validator) ValidateBytes(data []byte) (*ValidationResult, error) {
	// Parse YAML to interface{}
	var module interface{}
	if err := yaml.Unmarshal(data, &module); err != nil {
		return &ValidationResult{
			Valid: false,
			Errors: []ValidationError{{
				Message: fmt.Sprintf("YAML parsing error: %v", err),
				Path:    "root",
			}},
		}, nil
	}

	// Validate against schema
	err := v.schema.Validate(module)
	if err == nil {
		return &ValidationResult{Valid: true}, nil
	}

	// Convert validation errors
	var validationErrors []ValidationError
	if validationErr, ok := err.(*jsonschema.ValidationError); ok {
		validationErrors = v.convertValidationErrors(validationErr)
	} else {
		validationErrors = []ValidationError{{
			Message: err.Error(),
			Path:    "root",
		}}
	}

	return &ValidationResult{
		Valid:  false,
		Errors: validationErrors,
	}, nil
}

// convertValidationErrors converts jsonschema validation errors to our format
func (v *Validator) convertValidationErrors(err *jsonschema.ValidationError) []ValidationError {
	var errors []ValidationError

	// Add the main error
	errors = append(errors, ValidationError{
		Message: err.Message,
		Path:    err.InstanceLocation,
	})

	// Add any sub-errors recursively
	for _, subErr := range err.Causes {
		errors = append(errors, v.convertValidationErrors(subErr)...)
	}

	return errors
}

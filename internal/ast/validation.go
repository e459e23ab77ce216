package ast

import (
	"fmt"
	"strings"
)

// ValidationError represents a validation error
type ValidationError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// Error implements the error interface
func (ve *ValidationError) Error() string {
	if ve.Path != "" {
		return fmt.Sprintf("%s: %s", ve.Path, ve.Message)
	}
	return ve.Message
}

// ValidationResult contains the results of module validation
type ValidationResult struct {
	Valid  bool               `json:"valid"`
	Errors []*ValidationError `json:"errors,omitempty"`
}

// AddError adds a validation error
func (vr *ValidationResult) AddError(path, message string) {
	vr.Valid = false
	vr.Errors = append(vr.Errors, &ValidationError{
		Path:    path,
		Message: message,
	})
}

// HasErrors returns true if there are validation errors
func (vr *ValidationResult) HasErrors() bool {
	return len(vr.Errors) > 0
}

// Messages returns the validation errors as plain strings
func (vr *ValidationResult) Messages() []string {
	msgs := make([]string, len(vr.Errors))
	for i, err := range vr.Errors {
		msgs[i] = err.Message
	}
	return msgs
}

// ToError returns a combined error if there are validation errors
func (vr *ValidationResult) ToError() error {
	if !vr.HasErrors() {
		return nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("validation failed with %d error(s):", len(vr.Errors)))
	for _, err := range vr.Errors {
		sb.WriteString("\n  - " + err.Error())
	}
	return fmt.Errorf("%s", sb.String())
}

// Validator performs structural validation of a parsed module. Validation
// never fails the parse: unknown actions, branch names, and check kinds
// are reported as findings for the caller to surface.
type Validator struct{}

// NewValidator creates a new module validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateModule checks a module for structural problems and returns every
// finding. A module with findings can still be inspected but will be
// refused by the executors.
func (v *Validator) ValidateModule(m *Module) *ValidationResult {
	result := &ValidationResult{Valid: true}

	if m.ID == "" {
		result.AddError("id", "module is missing required field: id")
	}

	v.validateSteps(m, "steps", m.Steps, result)
	for name, steps := range m.Branches {
		v.validateSteps(m, fmt.Sprintf("branches.%s", name), steps, result)
	}

	seen := make(map[string]bool)
	for _, step := range m.AllSteps() {
		if step.ID == "" {
			continue
		}
		if seen[step.ID] {
			result.AddError("steps", fmt.Sprintf("Duplicate step id: %s", step.ID))
		}
		seen[step.ID] = true
	}

	for _, check := range m.Evaluation {
		if !check.IsKnownKind() {
			result.AddError("evaluation", fmt.Sprintf("Evaluation '%s' has invalid kind: %s", check.Name, check.Kind))
		}
	}

	return result
}

func (v *Validator) validateSteps(m *Module, path string, steps []*Step, result *ValidationResult) {
	for _, step := range steps {
		if step.ID == "" {
			result.AddError(path, "step is missing required field: id")
		}
		if !step.IsKnownAction() {
			result.AddError(path, fmt.Sprintf("Step '%s' has invalid action: %s", step.ID, step.Action))
		}
		if step.Action == ActionBranch {
			branchName := step.ParamString("branch_name", "")
			if branchName != "" {
				if _, ok := m.GetBranch(branchName); !ok {
					result.AddError(path, fmt.Sprintf("Step '%s' references unknown branch: %s", step.ID, branchName))
				}
			}
		}
		if step.Action == ActionToolCall {
			if step.ParamString("tool", "") == "" {
				result.AddError(path, fmt.Sprintf("Step '%s' is missing required param: tool", step.ID))
			}
			if step.ParamString("action", "") == "" {
				result.AddError(path, fmt.Sprintf("Step '%s' is missing required param: action", step.ID))
			}
		}
	}
}

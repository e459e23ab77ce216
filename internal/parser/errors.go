package parser

import (
	"fmt"
	"strings"

	"github.com/dojoai/dojo/internal/ast"
)

// ParseError represents a parsing error with context
type ParseError struct {
	Message    string       `json:"message"`
	Position   ast.Position `json:"position"`
	Context    string       `json:"context,omitempty"`
	Source     []byte       `json:"-"`
	Suggestion string       `json:"suggestion,omitempty"`
}

// Error implements the error interface
func (e *ParseError) Error() string {
	var result strings.Builder

	if e.Position.Line > 0 {
		result.WriteString(fmt.Sprintf("Parse error at %s: %s", e.Position.String(), e.Message))
	} else {
		result.WriteString(e.Message)
	}

	if e.Suggestion != "" {
		result.WriteString(fmt.Sprintf("\nSuggestion: %s", e.Suggestion))
	}

	if e.Context != "" {
		result.WriteString(fmt.Sprintf("\n\nContext:\n%s", e.Context))
	}

	return result.String()
}

// WrapYAMLError converts a yaml library error into a ParseError with as
// much position information as the message carries.
func WrapYAMLError(err error, source []byte) *ParseError {
	pos := extractPositionFromMessage(err.Error(), source)
	return &ParseError{
		Message:  fmt.Sprintf("Invalid YAML: %v", err),
		Position: pos,
		Context:  ast.ExtractContext(source, pos, 2),
		Source:   source,
	}
}

// extractPositionFromMessage attempts to extract line/column from error messages
func extractPositionFromMessage(message string, source []byte) ast.Position {
	// yaml.v3 errors carry "line X" fragments
	words := strings.FieldsFunc(message, func(r rune) bool {
		return r == ' ' || r == ':' || r == ','
	})
	for i, word := range words {
		if word == "line" && i+1 < len(words) {
			var line int
			if _, err := fmt.Sscanf(words[i+1], "%d", &line); err == nil {
				return ast.Position{Line: line, Column: 1}
			}
		}
	}

	return ast.Position{Line: 1, Column: 1}
}

// MultiError represents multiple parsing or validation errors
type MultiError struct {
	Errors []error `json:"errors"`
}

// Error implements the error interface for MultiError
func (e *MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "no errors"
	}

	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	var result strings.Builder
	result.WriteString(fmt.Sprintf("Multiple errors (%d):\n", len(e.Errors)))

	for i, err := range e.Errors {
		result.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}

	return result.String()
}

// Add adds an error to the MultiError
func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors returns true if there are any errors
func (e *MultiError) HasErrors() bool {
	return len(e.Errors) > 0
}

// ToError returns the MultiError as an error if there are errors, nil otherwise
func (e *MultiError) ToError() error {
	if !e.HasErrors() {
		return nil
	}
	return e
}

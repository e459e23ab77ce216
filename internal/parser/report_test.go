package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dojoai/dojo/internal/ast"
)

func TestReportValidation(t *testing.T) {
	source := `id: m
steps:
  - id: s1
    action: tool_call
    params:
      tool: stripe
      action: charge
evaluation:
  - name: paid
    kind: tool_called
    tool: stripe
`

	p := newTestParser(t)
	module, err := p.ParseBytes([]byte(source))
	require.NoError(t, err)

	result := p.Validate(module)
	require.True(t, result.HasErrors())

	reporter := ReportValidation(result, module, []byte(source), "m.yaml")
	require.True(t, reporter.HasErrors())
	require.Len(t, reporter.GetErrors(), 2)

	reportErr := reporter.ToError()
	require.Error(t, reportErr)

	multi, ok := reportErr.(*MultiErrorEnhanced)
	require.True(t, ok)
	require.Len(t, multi.Errors, 2)

	// Findings resolve to the positions captured during decoding, sorted
	// by source order: the step comes before the check.
	stepErr, checkErr := multi.Errors[0], multi.Errors[1]
	assert.Equal(t, module.Steps[0].Position.Line, stepErr.Position.Line)
	assert.Equal(t, module.Evaluation[0].Position.Line, checkErr.Position.Line)
	assert.Equal(t, "m.yaml", stepErr.Position.File)

	assert.Contains(t, stepErr.Title, "Step 's1' references undeclared tool: stripe")
	assert.Equal(t, "semantic", stepErr.Category)
	require.NotNil(t, stepErr.Suggestion)
	assert.Equal(t, "Declare the tool", stepErr.Suggestion.Title)

	// Context lines mark the offending source line
	assert.Contains(t, stepErr.Error(), "→")
}

func TestReportValidation_Fallbacks(t *testing.T) {
	module := &ast.Module{ID: "m", Position: ast.Position{Line: 1, Column: 1}}

	t.Run("nil result", func(t *testing.T) {
		reporter := ReportValidation(nil, module, nil, "")
		assert.False(t, reporter.HasErrors())
		assert.NoError(t, reporter.ToError())
	})

	t.Run("clean result", func(t *testing.T) {
		reporter := ReportValidation(&ast.ValidationResult{Valid: true}, module, nil, "")
		assert.False(t, reporter.HasErrors())
	})

	t.Run("unknown path falls back to the module position", func(t *testing.T) {
		result := &ast.ValidationResult{}
		result.AddError("scoring.formula", "invalid scoring formula: boom")

		reporter := ReportValidation(result, module, nil, "")
		require.Len(t, reporter.GetErrors(), 1)
		assert.Equal(t, module.Position.Line, reporter.GetErrors()[0].Position.Line)
	})
}

func TestErrorReporter(t *testing.T) {
	source := []byte("id: m\nsteps:\n  - id: s1\n    action: teleport\n")
	reporter := NewErrorReporter(source, "m.yaml")

	assert.False(t, reporter.HasErrors())
	assert.NoError(t, reporter.ToError())

	reporter.AddSimpleError("Step 's1' has invalid action: teleport", ast.Position{Line: 4, Column: 5}, "schema")
	reporter.AddSimpleError("module is missing required field: id", ast.Position{Line: 1, Column: 1}, "schema")
	reporter.AddWarning("branch 'leftover' is never referenced by a branch step", ast.Position{Line: 2, Column: 1}, "semantic")

	assert.True(t, reporter.HasErrors())
	assert.True(t, reporter.HasWarnings())
	assert.Len(t, reporter.GetErrors(), 2)
	assert.Len(t, reporter.GetWarnings(), 1)

	err := reporter.ToError()
	require.Error(t, err)

	multi, ok := err.(*MultiErrorEnhanced)
	require.True(t, ok)

	// ToError sorts by position
	assert.Equal(t, 1, multi.Errors[0].Position.Line)
	assert.Equal(t, 4, multi.Errors[1].Position.Line)
	assert.Len(t, multi.GetAllIssues(), 3)

	rendered := err.Error()
	assert.Contains(t, rendered, "Multiple errors (2):")
	assert.Contains(t, rendered, "m.yaml")
}

func TestEnhancedError_Error(t *testing.T) {
	err := &EnhancedError{
		ID:       "semantic_3_5",
		Severity: SeverityError,
		Title:    "Step 's1' references undeclared tool: stripe",
		Position: ast.Position{Line: 3, Column: 5, File: "m.yaml"},
		Category: "semantic",
		Suggestion: &ErrorSuggestion{
			Title:    "Declare the tool",
			Examples: []string{"environment:", "  tools:", "    - name: stripe"},
			DocsURL:  "https://docs.dojo.ai/modules",
		},
	}

	rendered := err.Error()
	assert.Contains(t, rendered, "m.yaml:3:5: error: Step 's1' references undeclared tool: stripe")
	assert.Contains(t, rendered, "Suggestion: Declare the tool")
	assert.Contains(t, rendered, "Example:")
	assert.Contains(t, rendered, "See: https://docs.dojo.ai/modules")
}

package parser

import (
	"strings"

	"github.com/dojoai/dojo/internal/ast"
)

// ReportValidation converts structural findings into enhanced errors with
// source positions and suggestions, for human-facing output.
func ReportValidation(result *ast.ValidationResult, module *ast.Module, source []byte, filename string) *ErrorReporter {
	reporter := NewErrorReporter(source, filename)
	if result == nil {
		return reporter
	}

	for _, finding := range result.Errors {
		pos := findingPosition(module, finding.Path)
		reporter.AddSimpleError(finding.Message, pos, categorizeFinding(finding))
	}

	return reporter
}

// findingPosition resolves a finding path to the closest known source
// position. Paths look like "steps[2].condition", "branches.esc[0]",
// "evaluation[1]", or "scoring.formula".
func findingPosition(module *ast.Module, path string) ast.Position {
	if module == nil {
		return ast.Position{Line: 1, Column: 1}
	}

	switch {
	case strings.HasPrefix(path, "steps"):
		if i, ok := pathIndex(path); ok && i < len(module.Steps) {
			return module.Steps[i].Position
		}
	case strings.HasPrefix(path, "branches."):
		rest := strings.TrimPrefix(path, "branches.")
		name := rest
		if bracket := strings.IndexByte(rest, '['); bracket >= 0 {
			name = rest[:bracket]
		}
		if steps, ok := module.GetBranch(name); ok {
			if i, ok := pathIndex(path); ok && i < len(steps) {
				return steps[i].Position
			}
			if len(steps) > 0 {
				return steps[0].Position
			}
		}
	case strings.HasPrefix(path, "evaluation"):
		if i, ok := pathIndex(path); ok && i < len(module.Evaluation) {
			return module.Evaluation[i].Position
		}
	}

	return module.Position
}

// pathIndex extracts the first [N] index from a finding path
func pathIndex(path string) (int, bool) {
	open := strings.IndexByte(path, '[')
	if open < 0 {
		return 0, false
	}
	end := strings.IndexByte(path[open:], ']')
	if end < 0 {
		return 0, false
	}

	idx := 0
	for _, c := range path[open+1 : open+end] {
		if c < '0' || c > '9' {
			return 0, false
		}
		idx = idx*10 + int(c-'0')
	}
	return idx, true
}

// categorizeFinding picks the suggestion category for a finding
func categorizeFinding(finding *ast.ValidationError) string {
	msg := strings.ToLower(finding.Message)
	switch {
	case strings.Contains(msg, "branch"),
		strings.Contains(msg, "tool"),
		strings.Contains(msg, "variable"),
		strings.Contains(msg, "condition"),
		strings.Contains(msg, "expr"),
		strings.Contains(msg, "formula"):
		return "semantic"
	default:
		return "schema"
	}
}

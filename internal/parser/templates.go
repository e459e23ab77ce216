package parser

import (
	"regexp"
	"strings"
)

var (
	placeholderNamePattern = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)
	conditionExprPattern   = regexp.MustCompile(`\{\{#if\s+(.+?)\s*\}\}|\{\{else\s+if\s+(.+?)\s*\}\}`)
)

// TemplateValidator inspects template strings without rendering them. It
// understands the two template forms modules carry: {{name}} placeholders
// and {{#if expr}} conditional blocks.
type TemplateValidator struct{}

// NewTemplateValidator creates a new template validator
func NewTemplateValidator() *TemplateValidator {
	return &TemplateValidator{}
}

// ExtractPlaceholders returns the variable names referenced as {{name}}
// placeholders, in order of first appearance. Conditional block markers
// are not placeholders and are skipped.
func (tv *TemplateValidator) ExtractPlaceholders(template string) []string {
	if template == "" {
		return nil
	}

	seen := make(map[string]bool)
	var names []string
	for _, match := range placeholderNamePattern.FindAllStringSubmatch(template, -1) {
		name := match[1]
		if name == "else" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}

	return names
}

// ExtractConditionExpressions returns the expressions carried by
// {{#if expr}} and {{else if expr}} markers, in order of appearance.
func (tv *TemplateValidator) ExtractConditionExpressions(template string) []string {
	if !strings.Contains(template, "{{#if") && !strings.Contains(template, "{{else") {
		return nil
	}

	var exprs []string
	for _, match := range conditionExprPattern.FindAllStringSubmatch(template, -1) {
		expr := match[1]
		if expr == "" {
			expr = match[2]
		}
		if expr != "" {
			exprs = append(exprs, expr)
		}
	}

	return exprs
}

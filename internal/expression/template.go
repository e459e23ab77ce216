package expression

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var (
	placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)
	ifOpenPattern      = regexp.MustCompile(`\{\{#if\s+(.+?)\s*\}\}`)
	elseIfPattern      = regexp.MustCompile(`^\{\{else\s+if\s+(.+?)\s*\}\}$`)
	elsePattern        = regexp.MustCompile(`^\{\{else\s*\}\}$`)
	endIfPattern       = regexp.MustCompile(`^\{\{/if\s*\}\}$`)
	blockMarkerPattern = regexp.MustCompile(`\{\{#if\s+.+?\s*\}\}|\{\{else\s+if\s+.+?\s*\}\}|\{\{else\s*\}\}|\{\{/if\s*\}\}`)
)

// TemplateEngine renders module template strings against a variable
// assignment. Two forms are understood:
//
//	{{name}}                        substitute the variable named name
//	{{#if expr}}...{{else if expr}}...{{else}}...{{/if}}
//
// A string whose entire trimmed content is a single {{name}} placeholder
// is replaced by the typed variable value rather than a stringification,
// preserving numbers, booleans, mappings, and sequences. An unresolved
// placeholder is left literal. A malformed conditional expression is
// treated as false.
type TemplateEngine struct {
	evaluator *ExpressionEvaluator
}

// NewTemplateEngine creates a new template engine
func NewTemplateEngine() *TemplateEngine {
	return &TemplateEngine{
		evaluator: NewExpressionEvaluator(),
	}
}

// Render renders a template string with the given variables. The result
// is typed when the whole string is a single placeholder; otherwise it is
// the string with placeholders substituted.
func (te *TemplateEngine) Render(template string, vars map[string]any) (interface{}, error) {
	if template == "" {
		return "", nil
	}

	result, err := te.renderConditionals(template, vars)
	if err != nil {
		return nil, err
	}

	// Whole-string single placeholder: return the typed value
	trimmed := strings.TrimSpace(result)
	if match := placeholderPattern.FindStringSubmatch(trimmed); match != nil && match[0] == trimmed {
		if val, ok := vars[match[1]]; ok {
			return val, nil
		}
		return result, nil
	}

	for _, match := range placeholderPattern.FindAllStringSubmatch(result, -1) {
		val, ok := vars[match[1]]
		if !ok {
			// Unresolved placeholders stay literal
			continue
		}
		result = strings.ReplaceAll(result, match[0], ValueToString(val))
	}

	return result, nil
}

// renderConditionals resolves every conditional block in the template.
// The first branch whose expression is truthy wins; when no branch
// matches, the block contributes the empty string. Blocks nest.
func (te *TemplateEngine) renderConditionals(template string, vars map[string]any) (string, error) {
	s := template
	for {
		loc := ifOpenPattern.FindStringSubmatchIndex(s)
		if loc == nil {
			return s, nil
		}

		blockStart := loc[0]

		type branch struct {
			expr  string
			start int
			end   int
		}

		branches := []branch{{expr: s[loc[2]:loc[3]], start: loc[1]}}
		elseStart, elseEnd := -1, -1
		blockEnd := -1

		pos := loc[1]
		depth := 1
		for depth > 0 {
			mloc := blockMarkerPattern.FindStringIndex(s[pos:])
			if mloc == nil {
				return "", fmt.Errorf("unterminated conditional block at offset %d", blockStart)
			}

			mStart, mEnd := pos+mloc[0], pos+mloc[1]
			marker := s[mStart:mEnd]

			switch {
			case strings.HasPrefix(marker, "{{#if"):
				depth++
			case endIfPattern.MatchString(marker):
				depth--
				if depth == 0 {
					if elseStart >= 0 {
						elseEnd = mStart
					} else {
						branches[len(branches)-1].end = mStart
					}
					blockEnd = mEnd
				}
			case depth == 1 && elseIfPattern.MatchString(marker):
				if elseStart >= 0 {
					return "", fmt.Errorf("conditional block has 'else if' after 'else' at offset %d", mStart)
				}
				branches[len(branches)-1].end = mStart
				expr := elseIfPattern.FindStringSubmatch(marker)[1]
				branches = append(branches, branch{expr: expr, start: mEnd})
			case depth == 1 && elsePattern.MatchString(marker):
				if elseStart >= 0 {
					return "", fmt.Errorf("conditional block has multiple 'else' markers at offset %d", mStart)
				}
				branches[len(branches)-1].end = mStart
				elseStart = mEnd
			}

			pos = mEnd
		}

		chosen := ""
		matched := false
		for _, b := range branches {
			if te.evaluator.EvaluateBool(b.expr, vars) {
				chosen = s[b.start:b.end]
				matched = true
				break
			}
		}
		if !matched && elseStart >= 0 {
			chosen = s[elseStart:elseEnd]
		}

		rendered, err := te.renderConditionals(chosen, vars)
		if err != nil {
			return "", err
		}

		s = s[:blockStart] + rendered + s[blockEnd:]
	}
}

// ValueToString converts a value to its string representation
func ValueToString(value interface{}) string {
	if value == nil {
		return "null"
	}

	switch v := value.(type) {
	case string:
		return v
	case int:
		return fmt.Sprintf("%d", v)
	case int64:
		return fmt.Sprintf("%d", v)
	case float64:
		return fmt.Sprintf("%g", v)
	case bool:
		if v {
			return "true"
		}
		return "false"
	case []interface{}:
		// Convert arrays to comma-separated strings wrapped in brackets
		strs := make([]string, len(v))
		for i, item := range v {
			if _, ok := item.(string); ok {
				strs[i] = fmt.Sprintf("%q", item)
			} else {
				strs[i] = ValueToString(item)
			}
		}
		return "[" + strings.Join(strs, ", ") + "]"
	case map[string]interface{}:
		// For maps, return a JSON-like representation
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		parts := make([]string, 0, len(v))
		for _, k := range keys {
			if _, ok := v[k].(string); ok {
				parts = append(parts, fmt.Sprintf("%s: %q", k, v[k]))
			} else {
				strVal := ValueToString(v[k])
				parts = append(parts, fmt.Sprintf("%s: %v", k, strVal))
			}
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return fmt.Sprintf("%v", value)
	}
}

package evaluator

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"regexp"
	"strings"

	"github.com/dojoai/dojo/internal/ast"
	"github.com/dojoai/dojo/internal/expression"
	"github.com/dojoai/dojo/pkg/events"
)

// numericTolerance absorbs float drift between tool arithmetic and the
// literal values module authors write in checks.
const numericTolerance = 1e-9

func evalContains(check *ast.Check, run Run) interface{} {
	text, err := resolveText(check.Target, run)
	if err != nil {
		return errorRecordf("%v", err)
	}

	needle := valueString(check.Value)
	if !check.CaseSensitive {
		text = strings.ToLower(text)
		needle = strings.ToLower(needle)
	}
	found := strings.Contains(text, needle)
	return passedRecord(found == expected(check))
}

func evalRegex(check *ast.Check, run Run) interface{} {
	if check.Pattern == "" {
		return errorRecordf("regex check has no pattern")
	}

	pattern := check.Pattern
	if !check.CaseSensitive {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return errorRecordf("invalid pattern: %v", err)
	}

	text, err := resolveText(check.Target, run)
	if err != nil {
		return errorRecordf("%v", err)
	}
	return passedRecord(re.MatchString(text) == expected(check))
}

func evalCount(check *ast.Check, run Run) interface{} {
	n, err := resolveCount(check.Target, run)
	if err != nil {
		return errorRecordf("%v", err)
	}

	passed := true
	if check.Min != nil && n < *check.Min {
		passed = false
	}
	if check.Max != nil && n > *check.Max {
		passed = false
	}
	return map[string]interface{}{"passed": passed, "count": n}
}

func evalToolCalled(check *ast.Check, run Run) interface{} {
	if check.Tool == "" {
		return errorRecordf("tool_called check has no tool")
	}

	found := false
	for _, e := range run.Events {
		if e.Type != events.TypeToolCall {
			continue
		}
		if payloadString(e, "tool") != check.Tool {
			continue
		}
		if check.Action != "" && payloadString(e, "action") != check.Action {
			continue
		}
		found = true
		break
	}
	return passedRecord(found == expected(check))
}

func evalEquals(check *ast.Check, run Run) interface{} {
	var actual interface{}
	if key, ok := strings.CutPrefix(check.Target, "env."); ok {
		actual, _ = lookupPath(run.EnvState, key)
	} else {
		text, err := resolveText(check.Target, run)
		if err != nil {
			return errorRecordf("%v", err)
		}
		actual = text
	}
	return passedRecord(looseEqual(actual, check.Value, check.CaseSensitive) == expected(check))
}

func evalEnvState(check *ast.Check, run Run) interface{} {
	if check.Key == "" {
		return errorRecordf("env_state check has no key")
	}

	actual, ok := lookupPath(run.EnvState, check.Key)
	equal := ok && looseEqual(actual, check.Value, check.CaseSensitive)
	record := map[string]interface{}{"passed": equal == expected(check)}
	if ok {
		record["actual"] = actual
	}
	return record
}

// evalDeterministic runs a raw expression over the finished run. The
// expression sees env_state, history, and events; pass_if turns a
// numeric result into a pass/fail record, otherwise the raw value is
// the record. Expr and pass_if also load from the legacy config map.
func (ev *Evaluator) evalDeterministic(check *ast.Check, run Run) interface{} {
	expr := check.Expr
	if expr == "" {
		expr, _ = check.Config["expr"].(string)
	}
	if expr == "" || expr == "TODO" {
		return skippedRecord("No expression defined")
	}

	result, err := ev.exprs.Evaluate(expr, map[string]any{
		"env_state": run.EnvState,
		"history":   historyContext(run.History),
		"events":    eventContext(run.Events),
	})
	if err != nil {
		return errorRecordf("%v", err)
	}

	passIf := check.PassIf
	if passIf == "" {
		passIf, _ = check.Config["pass_if"].(string)
	}
	if passIf == "" {
		return result
	}

	cond, err := expression.ParsePassCondition(passIf)
	if err != nil {
		return errorRecordf("%v", err)
	}
	value, ok := asFloat(result)
	if !ok {
		if b, isBool := result.(bool); isBool {
			ok = true
			if b {
				value = 1.0
			}
		}
	}
	if !ok {
		return errorRecordf("pass_if needs a numeric result, got %T", result)
	}
	return map[string]interface{}{"passed": cond.Apply(value), "value": result}
}

// resolveText renders a check target as one string. Message accessors
// join matching contents with newlines; the last_* accessors return the
// most recent matching content or an empty string; tool_calls renders
// each call as "tool.action(args)".
func resolveText(target string, run Run) (string, error) {
	switch target {
	case "", ast.TargetAgentMessages:
		return joinContents(run.History, ast.RoleAssistant), nil
	case ast.TargetUserMessages:
		return joinContents(run.History, ast.RoleUser), nil
	case ast.TargetAllMessages:
		return joinContents(run.History, ""), nil
	case ast.TargetLastAgentMessage:
		return lastContent(run.History, ast.RoleAssistant), nil
	case ast.TargetLastUserMessage:
		return lastContent(run.History, ast.RoleUser), nil
	case ast.TargetToolCalls:
		var lines []string
		for _, e := range run.Events {
			if e.Type != events.TypeToolCall {
				continue
			}
			args, _ := json.Marshal(e.Payload["args"])
			lines = append(lines, fmt.Sprintf("%s.%s(%s)", payloadString(e, "tool"), payloadString(e, "action"), args))
		}
		return strings.Join(lines, "\n"), nil
	default:
		return "", fmt.Errorf("unknown check target %q", target)
	}
}

// resolveCount returns the length of a list accessor. The last_*
// accessors are single messages, not lists, and cannot be counted.
func resolveCount(target string, run Run) (int, error) {
	switch target {
	case "", ast.TargetAgentMessages:
		return countRole(run.History, ast.RoleAssistant), nil
	case ast.TargetUserMessages:
		return countRole(run.History, ast.RoleUser), nil
	case ast.TargetAllMessages:
		return len(run.History), nil
	case ast.TargetToolCalls:
		n := 0
		for _, e := range run.Events {
			if e.Type == events.TypeToolCall {
				n++
			}
		}
		return n, nil
	default:
		return 0, fmt.Errorf("target %q is not countable", target)
	}
}

func joinContents(history []ast.Message, role string) string {
	var parts []string
	for _, msg := range history {
		if role != "" && msg.Role != role {
			continue
		}
		parts = append(parts, msg.Content)
	}
	return strings.Join(parts, "\n")
}

func lastContent(history []ast.Message, role string) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == role {
			return history[i].Content
		}
	}
	return ""
}

func countRole(history []ast.Message, role string) int {
	n := 0
	for _, msg := range history {
		if msg.Role == role {
			n++
		}
	}
	return n
}

// lookupPath reads a value from env_state by dotted key, descending
// through nested maps.
func lookupPath(state map[string]interface{}, key string) (interface{}, bool) {
	var current interface{} = state
	for _, part := range strings.Split(key, ".") {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// looseEqual compares check values the way module authors write them:
// numbers by value within numericTolerance, strings case-insensitively
// unless caseSensitive is set, everything else structurally.
func looseEqual(actual, expectedValue interface{}, caseSensitive bool) bool {
	if af, ok := asFloat(actual); ok {
		if ef, ok := asFloat(expectedValue); ok {
			return math.Abs(af-ef) <= numericTolerance
		}
	}
	as, actualIsString := actual.(string)
	es, expectedIsString := expectedValue.(string)
	if actualIsString && expectedIsString {
		if caseSensitive {
			return as == es
		}
		return strings.EqualFold(as, es)
	}
	return reflect.DeepEqual(actual, expectedValue)
}

func historyContext(history []ast.Message) []interface{} {
	out := make([]interface{}, 0, len(history))
	for _, msg := range history {
		entry := map[string]interface{}{
			"role":    msg.Role,
			"content": msg.Content,
		}
		if msg.ToolName != "" {
			entry["tool_name"] = msg.ToolName
		}
		if msg.ToolCallID != "" {
			entry["tool_call_id"] = msg.ToolCallID
		}
		if len(msg.ToolCalls) > 0 {
			calls := make([]interface{}, 0, len(msg.ToolCalls))
			for _, call := range msg.ToolCalls {
				calls = append(calls, map[string]interface{}{
					"id":        call.ID,
					"name":      call.Name,
					"arguments": call.Arguments,
				})
			}
			entry["tool_calls"] = calls
		}
		out = append(out, entry)
	}
	return out
}

func eventContext(evs []events.Event) []interface{} {
	out := make([]interface{}, 0, len(evs))
	for _, e := range evs {
		out = append(out, map[string]interface{}{
			"type":    string(e.Type),
			"payload": e.Payload,
		})
	}
	return out
}

func expected(check *ast.Check) bool {
	if check.Expected == nil {
		return true
	}
	return *check.Expected
}

func valueString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func payloadString(e events.Event, key string) string {
	s, _ := e.Payload[key].(string)
	return s
}

func passedRecord(passed bool) map[string]interface{} {
	return map[string]interface{}{"passed": passed}
}

func skippedRecord(reason string) map[string]interface{} {
	return map[string]interface{}{"status": "skipped", "reason": reason}
}

func errorRecordf(format string, args ...interface{}) map[string]interface{} {
	return map[string]interface{}{"status": "error", "error": fmt.Sprintf(format, args...)}
}

package engine

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dojoai/dojo/internal/evaluator"
	"github.com/dojoai/dojo/pkg/events"
)

// RunResult is the full record of one module run: the event transcript
// plus the evaluation computed over it.
type RunResult struct {
	ModuleID   string           `json:"module_id"`
	AgentID    string           `json:"agent_id"`
	Events     []events.Event   `json:"events"`
	Evaluation evaluator.Result `json:"evaluation"`
}

// ToJSON serializes the result, indented by the given number of spaces
// when indent is positive.
func (r *RunResult) ToJSON(indent int) (string, error) {
	var data []byte
	var err error
	if indent > 0 {
		data, err = json.MarshalIndent(r, "", strings.Repeat(" ", indent))
	} else {
		data, err = json.Marshal(r)
	}
	if err != nil {
		return "", fmt.Errorf("encoding run result: %w", err)
	}
	return string(data), nil
}

// Pretty renders the run as a readable transcript followed by the
// evaluation summary.
func (r *RunResult) Pretty() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Module: %s\n", r.ModuleID)
	fmt.Fprintf(&b, "Agent: %s\n\n", r.AgentID)

	for _, e := range r.Events {
		switch e.Type {
		case events.TypeUser:
			fmt.Fprintf(&b, "USER: %s\n", e.Content())
		case events.TypeAgent:
			fmt.Fprintf(&b, "AGENT: %s\n", e.Content())
		case events.TypeAgentStop:
			b.WriteString("[AGENT STOPPED]\n")
		case events.TypeToolCall:
			args, _ := json.Marshal(e.Payload["args"])
			fmt.Fprintf(&b, "TOOL CALL: %s.%s(%s)\n", stringField(e, "tool"), stringField(e, "action"), args)
		case events.TypeToolResult:
			result, _ := e.Payload["result"].(map[string]any)
			status := "FAIL"
			if success, _ := result["success"].(bool); success {
				status = "OK"
			}
			var body []byte
			if errMsg, ok := result["error"].(string); ok && errMsg != "" {
				body = []byte(errMsg)
			} else {
				body, _ = json.Marshal(result["data"])
			}
			fmt.Fprintf(&b, "TOOL RESULT [%s]: %s\n", status, body)
		case events.TypeBranch:
			fmt.Fprintf(&b, "[BRANCH] -> %s\n", stringField(e, "branch"))
		case events.TypeAwaitingInput:
			fmt.Fprintf(&b, "AWAITING INPUT: %s\n", stringField(e, "prompt"))
		}
	}

	b.WriteString("\nEVALUATION:\n")
	fmt.Fprintf(&b, "  Score: %g\n", r.Evaluation.Score)
	fmt.Fprintf(&b, "  Status: %s\n", r.Evaluation.Status)
	fmt.Fprintf(&b, "  Events: %d\n", r.Evaluation.NumEvents)
	if len(r.Evaluation.Checks) > 0 {
		checks, err := json.MarshalIndent(r.Evaluation.Checks, "  ", "  ")
		if err == nil {
			fmt.Fprintf(&b, "  Checks: %s\n", checks)
		}
	}
	return b.String()
}

func stringField(e events.Event, key string) string {
	s, _ := e.Payload[key].(string)
	return s
}

package engine

import (
	"github.com/dojoai/dojo/internal/evaluator"
	"github.com/dojoai/dojo/internal/tools"
	"github.com/dojoai/dojo/pkg/events"
)

// Event constructors. The payload keys are the wire contract consumed
// by transcript renderers, the WebSocket server, and evaluation
// expressions; pkg/events documents the types, this file pins the
// shapes.

func userEvent(content, stepID string) events.Event {
	return events.New(events.TypeUser, map[string]any{"content": content, "step_id": stepID})
}

// interactiveUserEvent carries the scripted flag sessions use to tell
// replayed module turns from live user input.
func interactiveUserEvent(content, stepID string, scripted bool) events.Event {
	return events.New(events.TypeUser, map[string]any{"content": content, "step_id": stepID, "scripted": scripted})
}

func agentEvent(content, stepID string) events.Event {
	return events.New(events.TypeAgent, map[string]any{"content": content, "step_id": stepID})
}

func agentStopEvent(stepID string) events.Event {
	return events.New(events.TypeAgentStop, map[string]any{"step_id": stepID})
}

func toolCallEvent(tool, action string, args map[string]interface{}, stepID string) events.Event {
	return events.New(events.TypeToolCall, map[string]any{
		"tool":    tool,
		"action":  action,
		"args":    args,
		"step_id": stepID,
	})
}

// directToolCallEvent marks tool calls issued by a module step rather
// than the agent.
func directToolCallEvent(tool, action string, args map[string]interface{}, stepID string) events.Event {
	e := toolCallEvent(tool, action, args, stepID)
	e.Payload["direct"] = true
	return e
}

func toolResultEvent(tool, action string, result tools.Result) events.Event {
	payload := map[string]any{"success": result.Success}
	if result.Data != nil {
		payload["data"] = result.Data
	}
	if result.Error != "" {
		payload["error"] = result.Error
	}
	return events.New(events.TypeToolResult, map[string]any{
		"tool":   tool,
		"action": action,
		"result": payload,
	})
}

func branchEvent(name, stepID string) events.Event {
	return events.New(events.TypeBranch, map[string]any{"branch": name, "step_id": stepID})
}

// awaitingInputEvent passes the step's timeout through untyped: absent
// means wait indefinitely, so the key is omitted rather than sent as
// null, and consumers display whatever the module declared.
func awaitingInputEvent(prompt, stepID string, timeout interface{}) events.Event {
	payload := map[string]any{
		"prompt":  prompt,
		"step_id": stepID,
	}
	if timeout != nil {
		payload["timeout"] = timeout
	}
	return events.New(events.TypeAwaitingInput, payload)
}

func completedEvent(evaluation evaluator.Result, numEvents int) events.Event {
	return events.New(events.TypeCompleted, map[string]any{
		"evaluation": evaluation,
		"num_events": numEvents,
	})
}

func errorEvent(message string) events.Event {
	return events.New(events.TypeError, map[string]any{"message": message})
}

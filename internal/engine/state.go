package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dojoai/dojo/internal/agent"
	"github.com/dojoai/dojo/internal/ast"
	"github.com/dojoai/dojo/internal/tools"
	"github.com/dojoai/dojo/pkg/events"
)

// maxToolCalls bounds the agent sub-loop per await_agent step.
const maxToolCalls = 10

// stopNudge is appended to history when the agent stops right after
// making tool calls, giving it one chance to summarize the results. It
// never appears in the event transcript.
const stopNudge = "Please respond to the tool results."

// eventSink receives each event as it is emitted. The synchronous
// runner records and moves on; sessions also push onto the live stream
// and may fail when the consumer is gone.
type eventSink func(events.Event) error

func discardSink(events.Event) error { return nil }

// state carries one execution's mutable pieces: the conversation
// history, the event transcript, and the environment state shared with
// tools. It is driven from a single goroutine; toolMu serializes tool
// invocations against out-of-band event injection.
type state struct {
	module   *ast.Module
	agent    agent.Agent
	tools    map[string]tools.Tool
	history  []ast.Message
	events   []events.Event
	envState map[string]interface{}
	toolMu   *sync.Mutex
}

func newState(m *ast.Module, ag agent.Agent, instances map[string]tools.Tool) state {
	var initial map[string]interface{}
	if m.Environment != nil {
		initial = m.Environment.InitialState
	}
	return state{
		module:   m,
		agent:    ag,
		tools:    instances,
		envState: copyState(initial),
		toolMu:   &sync.Mutex{},
	}
}

// record appends the event to the transcript and hands it to the sink.
func (s *state) record(sink eventSink, e events.Event) error {
	s.events = append(s.events, e)
	return sink(e)
}

// injectUser appends the step's scripted content as a user message and
// returns it for the caller to emit.
func (s *state) injectUser(step *ast.Step) string {
	content := stringParam(step.Params, "content", "")
	s.history = append(s.history, ast.Message{Role: ast.RoleUser, Content: content})
	return content
}

// branchTarget resolves the step's branch_name. The boolean reports
// whether the branch exists and execution should jump; the caller emits
// the branch event either way.
func (s *state) branchTarget(step *ast.Step) (string, []*ast.Step, bool) {
	name := stringParam(step.Params, "branch_name", "")
	if name == "" {
		return name, nil, false
	}
	steps, ok := s.module.Branches[name]
	return name, steps, ok
}

// awaitAgent runs the agent sub-loop: the agent acts repeatedly until
// it produces a message, stops, or hits the tool-call bound. A first
// stop that follows tool calls gets one nudge to respond before the
// turn ends with agent_stop.
func (s *state) awaitAgent(ctx context.Context, step *ast.Step, sink eventSink) error {
	published := s.published()
	toolCalls := 0
	nudged := false

	for toolCalls < maxToolCalls {
		action, err := s.agent.Step(ctx, s.history, published)
		if err != nil {
			return fmt.Errorf("agent %s: %w", s.agent.ID(), err)
		}

		switch action.Type {
		case agent.ActionMessage:
			s.history = append(s.history, ast.Message{Role: ast.RoleAssistant, Content: action.Content})
			return s.record(sink, agentEvent(action.Content, step.ID))

		case agent.ActionToolCall:
			if err := s.toolCall(action, step, sink); err != nil {
				return err
			}
			toolCalls++

		case agent.ActionStop:
			if toolCalls > 0 && !nudged {
				s.history = append(s.history, ast.Message{Role: ast.RoleUser, Content: stopNudge})
				nudged = true
				continue
			}
			return s.record(sink, agentStopEvent(step.ID))

		default:
			return fmt.Errorf("agent %s returned unknown action type %q", s.agent.ID(), action.Type)
		}
	}

	// Tool-call bound reached; the turn ends without an agent message.
	return nil
}

// toolCall executes one agent-requested tool invocation: tool_call
// event, assistant message carrying the call, the invocation itself,
// tool_result event, and the tool message the agent reads next turn.
func (s *state) toolCall(action agent.Action, step *ast.Step, sink eventSink) error {
	name, toolAction := action.ToolName, action.ToolAction
	args := action.ToolArgs
	if args == nil {
		args = map[string]interface{}{}
	}

	// The ID embeds the transcript position before the tool_call event
	// lands, so IDs are unique and stable across executors.
	callID := fmt.Sprintf("call_%s_%s_%d", name, toolAction, len(s.events))
	if err := s.record(sink, toolCallEvent(name, toolAction, args, step.ID)); err != nil {
		return err
	}

	rawArgs, _ := json.Marshal(args)
	s.history = append(s.history, ast.Message{
		Role: ast.RoleAssistant,
		ToolCalls: []ast.ToolCall{{
			ID:        callID,
			Name:      tools.FunctionName(name, toolAction),
			Arguments: string(rawArgs),
		}},
	})

	tool, ok := s.tools[name]
	if !ok {
		message := fmt.Sprintf("Tool not found: %s", name)
		if err := s.record(sink, toolResultEvent(name, toolAction, tools.Errorf("%s", message))); err != nil {
			return err
		}
		s.history = append(s.history, ast.Message{
			Role:       ast.RoleTool,
			Content:    message,
			ToolName:   name,
			ToolCallID: callID,
		})
		return nil
	}

	result := s.invokeTool(tool, toolAction, args)
	if err := s.record(sink, toolResultEvent(name, toolAction, result)); err != nil {
		return err
	}
	s.history = append(s.history, ast.Message{
		Role:       ast.RoleTool,
		Content:    toolContent(result),
		ToolName:   name,
		ToolCallID: callID,
	})
	return nil
}

// directToolCall executes a step-issued tool invocation. Only events
// are produced; the conversation history is untouched.
func (s *state) directToolCall(step *ast.Step, sink eventSink) error {
	name := stringParam(step.Params, "tool", "")
	action := stringParam(step.Params, "action", "")
	args, _ := step.Params["args"].(map[string]interface{})
	if args == nil {
		args = map[string]interface{}{}
	}

	if err := s.record(sink, directToolCallEvent(name, action, args, step.ID)); err != nil {
		return err
	}

	tool, ok := s.tools[name]
	if !ok {
		return s.record(sink, toolResultEvent(name, action, tools.Errorf("Tool not found: %s", name)))
	}
	return s.record(sink, toolResultEvent(name, action, s.invokeTool(tool, action, args)))
}

func (s *state) invokeTool(tool tools.Tool, action string, args map[string]interface{}) tools.Result {
	s.toolMu.Lock()
	defer s.toolMu.Unlock()
	return tool.Invoke(action, args, s.envState)
}

func (s *state) published() []agent.PublishedTool {
	return agent.Publish(s.tools)
}

// toolContent is what the agent reads back after a tool call: the
// JSON-serialized data on success, the error string on failure.
func toolContent(result tools.Result) string {
	if result.Success {
		data, _ := json.Marshal(result.Data)
		return string(data)
	}
	return result.Error
}

// validateSteps rejects modules the executor cannot drive. Interactive
// sessions accept await_user; the synchronous runner refuses it. Both
// refuse unknown actions outright rather than skipping them.
func validateSteps(m *ast.Module, interactive bool) error {
	check := func(steps []*ast.Step) error {
		for _, step := range steps {
			switch step.Action {
			case ast.ActionInjectUser, ast.ActionAwaitAgent, ast.ActionBranch, ast.ActionToolCall:
			case ast.ActionAwaitUser:
				if !interactive {
					return fmt.Errorf("step %s: await_user requires an interactive session", step.ID)
				}
			default:
				return fmt.Errorf("step %s: unknown action %q", step.ID, step.Action)
			}
		}
		return nil
	}

	if err := check(m.Steps); err != nil {
		return err
	}
	for name, steps := range m.Branches {
		if err := check(steps); err != nil {
			return fmt.Errorf("branch %s: %w", name, err)
		}
	}
	return nil
}

// copyState deep-copies the module's initial state so repeated runs of
// one bound module never observe each other's tool mutations.
func copyState(state map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(state))
	for k, v := range state {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return copyState(val)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = copyValue(item)
		}
		return out
	default:
		return v
	}
}

func stringParam(params map[string]any, key, fallback string) string {
	if s, ok := params[key].(string); ok {
		return s
	}
	return fallback
}

// Package agent implements the decision side of a session: given the
// conversation so far and the tools the module publishes, an agent
// returns its next action. Four kinds are supported. llm-prompt
// delegates to a hosted model, scripted plays back a fixed action
// list, http-endpoint and command hand the turn to an external
// process over JSON.
package agent

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/dojoai/dojo/internal/ast"
	"github.com/dojoai/dojo/internal/provider"
	"github.com/dojoai/dojo/internal/schema"
	"github.com/dojoai/dojo/internal/tools"
)

// Agent kinds accepted in agent spec files.
const (
	KindLLMPrompt = "llm-prompt"
	KindScripted  = "scripted"
	KindEndpoint  = "http-endpoint"
	KindCommand   = "command"
)

// Action types an agent can return.
const (
	ActionMessage  = "message"
	ActionToolCall = "tool_call"
	ActionStop     = "stop"
)

// ErrUnknownKind is returned when a spec names a kind New cannot build.
var ErrUnknownKind = errors.New("unknown agent kind")

// Action is one agent decision. Type selects which fields are
// meaningful: message carries Content, tool_call carries the Tool*
// fields, stop carries nothing.
type Action struct {
	Type       string                 `yaml:"type" json:"type"`
	Content    string                 `yaml:"content,omitempty" json:"content,omitempty"`
	ToolName   string                 `yaml:"tool_name,omitempty" json:"tool_name,omitempty"`
	ToolAction string                 `yaml:"tool_action,omitempty" json:"tool_action,omitempty"`
	ToolArgs   map[string]interface{} `yaml:"tool_args,omitempty" json:"tool_args,omitempty"`
	ToolCallID string                 `yaml:"tool_call_id,omitempty" json:"tool_call_id,omitempty"`
}

// PublishedTool describes one tool offered to the agent for a turn.
type PublishedTool struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Actions     []tools.ActionSpec `json:"actions"`
}

// Agent chooses the next action for a session turn.
type Agent interface {
	// ID reports the spec id the agent was built from.
	ID() string

	// Step inspects the history and published tools and returns the
	// agent's next action.
	Step(ctx context.Context, history []ast.Message, published []PublishedTool) (Action, error)
}

// New builds an agent instance from its spec. Each session gets its
// own instance; scripted agents keep playback state.
func New(spec *Spec, providers *provider.Registry) (Agent, error) {
	if spec == nil || spec.ID == "" {
		return nil, fmt.Errorf("agent spec has no id")
	}
	switch spec.Kind {
	case KindLLMPrompt, "":
		return newLLM(spec, providers), nil
	case KindScripted:
		return newScripted(spec), nil
	case KindEndpoint:
		return newEndpoint(spec)
	case KindCommand:
		return newCommand(spec)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, spec.Kind)
	}
}

// Publish flattens a tool instance set into the published list, sorted
// by tool name so agents see a stable order.
func Publish(instances map[string]tools.Tool) []PublishedTool {
	names := make([]string, 0, len(instances))
	for name := range instances {
		names = append(names, name)
	}
	sort.Strings(names)

	published := make([]PublishedTool, 0, len(names))
	for _, name := range names {
		tool := instances[name]
		published = append(published, PublishedTool{
			Name:        name,
			Description: tool.Description(),
			Actions:     tool.Actions(),
		})
	}
	return published
}

// Functions flattens published tools into the tool__action function
// list model APIs expect. Actions without a parameter schema get an
// empty object schema since the APIs reject schemaless functions.
func Functions(published []PublishedTool) []tools.ActionSpec {
	var specs []tools.ActionSpec
	for _, tool := range published {
		for _, action := range tool.Actions {
			parameters := action.Parameters
			if parameters.Type == nil && len(parameters.Properties) == 0 {
				parameters = schema.JSON{
					Type:       "object",
					Properties: map[string]schema.JSON{},
				}
			}
			specs = append(specs, tools.ActionSpec{
				Name:        tools.FunctionName(tool.Name, action.Name),
				Description: action.Description,
				Parameters:  parameters,
			})
		}
	}
	return specs
}

// stepRequest is the JSON document sent to external agents
// (http-endpoint POST bodies and command stdin).
type stepRequest struct {
	History []ast.Message   `json:"history"`
	Tools   []PublishedTool `json:"tools"`
}

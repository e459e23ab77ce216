// Package events defines the event model produced by module executions.
// Every run, batch or interactive, is described by an ordered stream of
// events: scripted and live user messages, agent turns, tool invocations
// and their results, branch jumps, input requests, and the terminal
// completed/error markers.
//
// Events are transport-agnostic. The engine produces them, and consumers
// (CLI renderers, the WebSocket server, tests) read them either from a
// recorded transcript or from a live channel.
package events

// Type identifies the kind of session event.
type Type string

const (
	// TypeUser is a user message entering the conversation, either
	// scripted by the module or provided interactively.
	TypeUser Type = "user"

	// TypeAgent is an agent message produced during an agent turn.
	TypeAgent Type = "agent"

	// TypeAgentStop marks the agent ending its turn without a message.
	TypeAgentStop Type = "agent_stop"

	// TypeToolCall is a tool invocation requested by the agent or issued
	// directly by a module step.
	TypeToolCall Type = "tool_call"

	// TypeToolResult carries the outcome of the immediately preceding
	// tool call.
	TypeToolResult Type = "tool_result"

	// TypeBranch marks control transferring to a named branch.
	TypeBranch Type = "branch"

	// TypeAwaitingInput signals that an interactive session is suspended
	// waiting for user input.
	TypeAwaitingInput Type = "awaiting_input"

	// TypeCompleted is the terminal event of a successful run and carries
	// the evaluation result. It is not part of the recorded transcript.
	TypeCompleted Type = "completed"

	// TypeError is the terminal event of a failed run. It is not part of
	// the recorded transcript.
	TypeError Type = "error"
)

// Event is a single occurrence within a session. Payload keys are part of
// the wire contract and vary by type; see the constructors in the engine
// for the exact shapes.
type Event struct {
	Type    Type           `json:"type"`
	Payload map[string]any `json:"payload"`
}

// New builds an event from a type and payload.
func New(t Type, payload map[string]any) Event {
	if payload == nil {
		payload = map[string]any{}
	}
	return Event{Type: t, Payload: payload}
}

// Terminal reports whether the event ends the stream. Terminal events are
// delivered to consumers but never appended to the transcript, so event
// counts in evaluations exclude them.
func (e Event) Terminal() bool {
	return e.Type == TypeCompleted || e.Type == TypeError
}

// StepID returns the step_id payload field, if present.
func (e Event) StepID() string {
	if s, ok := e.Payload["step_id"].(string); ok {
		return s
	}
	return ""
}

// Content returns the content payload field, if present. It is set on
// user and agent events.
func (e Event) Content() string {
	if s, ok := e.Payload["content"].(string); ok {
		return s
	}
	return ""
}

// Listener consumes a live event stream. Implementations receive every
// event in order until the channel closes.
type Listener interface {
	// Listen reads events until the channel is closed. It is called on
	// its own goroutine by the session owner.
	Listen(stream <-chan Event)
}

// ListenerFunc adapts a function to the Listener interface.
type ListenerFunc func(stream <-chan Event)

// Listen implements Listener.
func (f ListenerFunc) Listen(stream <-chan Event) { f(stream) }

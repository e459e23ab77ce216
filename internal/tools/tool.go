// Package tools defines the contract between the executor and the
// simulation tools an agent can call, plus the registry that builds
// tool instances from a module's environment declaration.
package tools

import (
	"fmt"
	"strings"

	"github.com/dojoai/dojo/internal/schema"
)

// Result is the outcome of a single tool invocation. Data carries the
// payload handed back to the agent; Error is set when Success is false.
type Result struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// OK returns a successful result carrying data.
func OK(data interface{}) Result {
	return Result{Success: true, Data: data}
}

// Errorf returns a failed result with a formatted error message.
func Errorf(format string, args ...interface{}) Result {
	return Result{Success: false, Error: fmt.Sprintf(format, args...)}
}

// ActionSpec describes one action a tool publishes to the agent.
type ActionSpec struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  schema.JSON `json:"parameters"`
}

// Tool is the contract every simulation tool implements. Invoke may
// mutate envState; that is the sanctioned side-channel between tools
// and the evaluator. Implementations need not be safe for concurrent
// use: a session drives its tools from a single goroutine.
type Tool interface {
	Name() string
	Description() string
	Invoke(action string, args map[string]interface{}, envState map[string]interface{}) Result
	Actions() []ActionSpec
}

// separator joins tool and action names in the flat function namespace
// published to agents.
const separator = "__"

// FunctionName renders the wire name for a tool action.
func FunctionName(tool, action string) string {
	return tool + separator + action
}

// SplitFunctionName recovers the tool and action from a wire name. The
// split is on the first "__" so action names may contain underscores.
// Names without the separator fall back to the legacy single-underscore
// form (split on the last "_"), then to an implicit "invoke" action.
func SplitFunctionName(name string) (tool, action string) {
	if idx := strings.Index(name, separator); idx >= 0 {
		return name[:idx], name[idx+len(separator):]
	}
	if idx := strings.LastIndex(name, "_"); idx >= 0 {
		return name[:idx], name[idx+1:]
	}
	return name, "invoke"
}

// Package script runs catalog tools backed by an external executable.
// Each invocation execs the spec's command with a JSON request on stdin
// and reads a JSON result from stdout, so tools can be written in any
// language without linking against the engine.
package script

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/dojoai/dojo/internal/ast"
	"github.com/dojoai/dojo/internal/tools"
)

// request is the JSON document written to the tool's stdin. Config
// carries the module's tool config since the process holds no state
// between invocations.
type request struct {
	Action   string                 `json:"action"`
	Args     map[string]interface{} `json:"args"`
	EnvState map[string]interface{} `json:"env_state"`
	Config   map[string]interface{} `json:"config,omitempty"`
}

// response is the JSON document expected on stdout. EnvState keys, when
// present, are merged back into the session's environment state.
type response struct {
	Success  bool                   `json:"success"`
	Data     interface{}            `json:"data,omitempty"`
	Error    string                 `json:"error,omitempty"`
	EnvState map[string]interface{} `json:"env_state,omitempty"`
}

// Tool is a script-backed tool instance.
type Tool struct {
	name        string
	description string
	command     []string
	timeout     time.Duration
	actions     []tools.ActionSpec
	config      map[string]interface{}
}

var _ tools.Tool = (*Tool)(nil)

// Factory adapts a catalog spec into a constructor for script-backed
// tools. Register it on the registry under tools.ImplScript.
func Factory(spec *tools.Spec) tools.Constructor {
	return func(ref *ast.ToolRef) (tools.Tool, error) {
		if len(spec.Command) == 0 {
			return nil, fmt.Errorf("script tool %s has no command", spec.Type)
		}

		description := ref.Description
		if description == "" {
			description = spec.Description
		}

		timeout := spec.Timeout
		if timeout <= 0 {
			timeout = tools.DefaultTimeout
		}

		return &Tool{
			name:        ref.Name,
			description: description,
			command:     spec.Command,
			timeout:     timeout,
			actions:     spec.Actions,
			config:      ref.Config,
		}, nil
	}
}

func (t *Tool) Name() string        { return t.name }
func (t *Tool) Description() string { return t.description }

// Actions returns the actions the spec document declares; a process
// cannot be queried for its actions without invoking it.
func (t *Tool) Actions() []tools.ActionSpec { return t.actions }

// Invoke runs the command once. The call is bounded by the spec's
// timeout so a hung script cannot stall the session forever.
func (t *Tool) Invoke(action string, args map[string]interface{}, envState map[string]interface{}) tools.Result {
	payload, err := json.Marshal(request{
		Action:   action,
		Args:     args,
		EnvState: envState,
		Config:   t.config,
	})
	if err != nil {
		return tools.Errorf("encoding request: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, t.command[0], t.command[1:]...)
	cmd.Stdin = bytes.NewReader(payload)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return tools.Errorf("script timed out after %s", t.timeout)
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return tools.Errorf("script failed: %s", msg)
	}

	var resp response
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return tools.Errorf("invalid script response: %v", err)
	}

	for key, value := range resp.EnvState {
		envState[key] = value
	}

	if !resp.Success {
		return tools.Result{Success: false, Error: resp.Error}
	}
	return tools.OK(resp.Data)
}

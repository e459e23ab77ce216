package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/dojoai/dojo/internal/ast"
)

const defaultCommandTimeout = 30 * time.Second

// Command hands each turn to an external process: the step request
// goes in on stdin, an action JSON document comes back on stdout.
type Command struct {
	spec    *Spec
	timeout time.Duration
}

func newCommand(spec *Spec) (*Command, error) {
	if len(spec.Impl.Command) == 0 {
		return nil, fmt.Errorf("agent %s: command requires impl.command", spec.ID)
	}
	timeout := defaultCommandTimeout
	if seconds := intParam(spec.Params, "timeout_seconds", 0); seconds > 0 {
		timeout = time.Duration(seconds) * time.Second
	}
	return &Command{spec: spec, timeout: timeout}, nil
}

func (a *Command) ID() string { return a.spec.ID }

func (a *Command) Step(ctx context.Context, history []ast.Message, published []PublishedTool) (Action, error) {
	payload, err := json.Marshal(stepRequest{History: history, Tools: published})
	if err != nil {
		return Action{}, fmt.Errorf("agent %s: encoding step request: %w", a.spec.ID, err)
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	argv := a.spec.Impl.Command
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Action{}, fmt.Errorf("agent %s: command timed out after %s", a.spec.ID, a.timeout)
		}
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		return Action{}, fmt.Errorf("agent %s: command failed: %s", a.spec.ID, detail)
	}

	var action Action
	if err := json.Unmarshal(stdout.Bytes(), &action); err != nil {
		return Action{}, fmt.Errorf("agent %s: invalid action response: %w", a.spec.ID, err)
	}
	return action, nil
}

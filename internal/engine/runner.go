// Package engine executes bound modules. The synchronous Runner drives
// a module start to finish in the calling goroutine; Session adds the
// interactive pieces: a live event stream, await_user suspension,
// out-of-band input and event injection, and cooperative pause. Both
// share the same step semantics, so a scripted run produces the same
// history and environment state through either.
package engine

import (
	"context"
	"fmt"

	"github.com/dojoai/dojo/internal/agent"
	"github.com/dojoai/dojo/internal/ast"
	"github.com/dojoai/dojo/internal/evaluator"
	"github.com/dojoai/dojo/internal/tools"
	"github.com/dojoai/dojo/internal/tools/builtin"
	"github.com/dojoai/dojo/internal/tools/script"
	"github.com/dojoai/dojo/pkg/events"
)

// DefaultToolRegistry builds the registry executors share: the built-in
// simulation tools plus any script tools discovered in the catalog
// directories.
func DefaultToolRegistry(catalogDirs ...string) (*tools.Registry, error) {
	reg := tools.NewRegistry()
	if err := builtin.Register(reg); err != nil {
		return nil, err
	}
	reg.RegisterImpl(tools.ImplScript, script.Factory)

	cat, err := tools.LoadCatalog(catalogDirs...)
	if err != nil {
		return nil, err
	}
	if err := reg.AddCatalog(cat); err != nil {
		return nil, err
	}
	return reg, nil
}

// Runner executes a bound module synchronously. It refuses modules that
// need interactivity; those run through Session instead.
type Runner struct {
	state
	eval     *evaluator.Evaluator
	listener events.Listener
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithListener streams the run's events to the listener as they happen.
// The listener is started on its own goroutine and is drained before Run
// returns.
func WithListener(l events.Listener) RunnerOption {
	return func(r *Runner) {
		r.listener = l
	}
}

// NewRunner validates the module's steps and constructs its tool
// instances from the registry.
func NewRunner(m *ast.Module, ag agent.Agent, registry *tools.Registry, options ...RunnerOption) (*Runner, error) {
	if err := validateSteps(m, false); err != nil {
		return nil, err
	}
	instances, err := registry.FromEnvironment(m.Environment)
	if err != nil {
		return nil, err
	}
	r := &Runner{
		state: newState(m, ag, instances),
		eval:  evaluator.New(),
	}
	for _, option := range options {
		option(r)
	}
	return r, nil
}

// Run drives the step sequence to completion and evaluates the result.
// The context bounds agent calls and is checked between steps.
func (r *Runner) Run(ctx context.Context) (*RunResult, error) {
	sink := discardSink
	if r.listener != nil {
		stream := make(chan events.Event, eventBuffer)
		done := make(chan struct{})
		go func() {
			defer close(done)
			r.listener.Listen(stream)
		}()
		defer func() {
			close(stream)
			<-done
		}()
		sink = func(e events.Event) error {
			stream <- e
			return nil
		}
	}

	steps := r.module.Steps

	for i := 0; i < len(steps); {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		step := steps[i]

		switch step.Action {
		case ast.ActionInjectUser:
			content := r.injectUser(step)
			if err := r.record(sink, userEvent(content, step.ID)); err != nil {
				return nil, err
			}

		case ast.ActionAwaitAgent:
			if err := r.awaitAgent(ctx, step, sink); err != nil {
				return nil, err
			}

		case ast.ActionBranch:
			name, branchSteps, ok := r.branchTarget(step)
			if err := r.record(sink, branchEvent(name, step.ID)); err != nil {
				return nil, err
			}
			if ok {
				steps = branchSteps
				i = 0
				continue
			}

		case ast.ActionToolCall:
			if err := r.directToolCall(step, sink); err != nil {
				return nil, err
			}

		default:
			// validateSteps rejected everything else up front.
			return nil, fmt.Errorf("step %s: unknown action %q", step.ID, step.Action)
		}

		i++
	}

	evaluation := r.eval.Evaluate(r.module, evaluator.Run{
		History:  r.history,
		Events:   r.events,
		EnvState: r.envState,
	})

	return &RunResult{
		ModuleID:   r.module.ID,
		AgentID:    r.agent.ID(),
		Events:     r.events,
		Evaluation: evaluation,
	}, nil
}

// EnvState exposes the environment state for inspection after Run.
func (r *Runner) EnvState() map[string]interface{} {
	return r.envState
}

// History exposes the conversation history for inspection after Run.
func (r *Runner) History() []ast.Message {
	return r.history
}

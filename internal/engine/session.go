package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dojoai/dojo/internal/agent"
	"github.com/dojoai/dojo/internal/ast"
	"github.com/dojoai/dojo/internal/evaluator"
	"github.com/dojoai/dojo/internal/tools"
	"github.com/dojoai/dojo/pkg/events"
)

// eventBuffer bounds the live stream. A full buffer blocks the run
// loop, so a slow consumer applies backpressure instead of growing an
// unbounded queue.
const eventBuffer = 16

// ErrNotAwaitingInput is returned by ProvideInput when the session has
// no pending await_user step.
var ErrNotAwaitingInput = errors.New("not currently awaiting user input")

// errAwaitReleased deliberately does not wrap context.Canceled: a
// suspended await_user released by cancellation surfaces as an error
// event, while cancellation elsewhere ends the stream silently.
var errAwaitReleased = errors.New("session cancelled while awaiting user input")

// Status is a session's lifecycle state.
type Status string

const (
	StatusIdle          Status = "idle"
	StatusRunning       Status = "running"
	StatusAwaitingUser  Status = "awaiting_user"
	StatusAwaitingAgent Status = "awaiting_agent"
	StatusPaused        Status = "paused"
	StatusCompleted     Status = "completed"
	StatusError         Status = "error"
)

// Session drives one interactive module run on its own goroutine.
// Events stream in order on Events(); the loop blocks on the channel,
// so consumers pull the execution forward. ProvideInput, InjectEvent,
// Pause, Resume, and Cancel are safe to call from other goroutines.
type Session struct {
	state
	eval *evaluator.Evaluator

	stream chan events.Event

	mu      sync.Mutex
	status  Status
	input   chan string // live while awaiting user input
	pauseCh chan struct{}
	cancel  context.CancelFunc
	started bool
	result  *RunResult
}

// NewSession validates the module's steps (await_user allowed here) and
// constructs its tool instances from the registry.
func NewSession(m *ast.Module, ag agent.Agent, registry *tools.Registry) (*Session, error) {
	if err := validateSteps(m, true); err != nil {
		return nil, err
	}
	instances, err := registry.FromEnvironment(m.Environment)
	if err != nil {
		return nil, err
	}
	return &Session{
		state:  newState(m, ag, instances),
		eval:   evaluator.New(),
		stream: make(chan events.Event, eventBuffer),
		status: StatusIdle,
	}, nil
}

// Events is the live stream. It closes when the run ends, after the
// terminal completed or error event.
func (s *Session) Events() <-chan events.Event {
	return s.stream
}

// Status reports the session's lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Result returns the final run result once the session has completed.
func (s *Session) Result() (*RunResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result, s.result != nil
}

// Start launches the run goroutine. A session runs once; the caller
// must drain Events.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("session already started")
	}
	s.started = true
	ctx, s.cancel = context.WithCancel(ctx)
	s.status = StatusRunning

	go s.loop(ctx)
	return nil
}

// Cancel stops the session. Safe to call at any point, including before
// Start and after completion.
func (s *Session) Cancel() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// ProvideInput resumes a session suspended at await_user.
func (s *Session) ProvideInput(content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.input == nil {
		return ErrNotAwaitingInput
	}
	s.input <- content
	s.input = nil
	return nil
}

// InjectEvent invokes the named tool's trigger_event action with
// {event: kind, ...args} and returns its result data. It fails when the
// tool is absent or the tool reports failure. This is how external
// systems deliver mid-run disruptions into a simulation.
func (s *Session) InjectEvent(toolName, kind string, args map[string]interface{}) (interface{}, error) {
	tool, ok := s.tools[toolName]
	if !ok {
		return nil, fmt.Errorf("tool %q not found", toolName)
	}

	merged := map[string]interface{}{"event": kind}
	for k, v := range args {
		merged[k] = v
	}

	result := s.invokeTool(tool, "trigger_event", merged)
	if !result.Success {
		return nil, fmt.Errorf("injecting %q: %s", kind, result.Error)
	}
	return result.Data, nil
}

// Pause requests a cooperative pause; the loop observes it between
// steps. An await_user suspension is unaffected.
func (s *Session) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.status {
	case StatusCompleted, StatusError:
		return fmt.Errorf("session is %s", s.status)
	}
	if s.pauseCh != nil {
		return fmt.Errorf("session is already paused")
	}
	s.pauseCh = make(chan struct{})
	return nil
}

// Resume releases a paused session.
func (s *Session) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pauseCh == nil {
		return fmt.Errorf("session is not paused")
	}
	close(s.pauseCh)
	s.pauseCh = nil
	if s.status == StatusPaused {
		s.status = StatusRunning
	}
	return nil
}

func (s *Session) loop(ctx context.Context) {
	var runErr error
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("module", s.module.ID).Interface("panic", r).
				Bytes("stack", debug.Stack()).Msg("session executor panicked")
			runErr = fmt.Errorf("internal error: %v", r)
		}
		s.finish(ctx, runErr)
		close(s.stream)
	}()

	runErr = s.execute(ctx)
}

func (s *Session) execute(ctx context.Context) error {
	sink := func(e events.Event) error { return s.push(ctx, e) }

	steps := s.module.Steps
	for i := 0; i < len(steps); {
		if err := s.pauseGate(ctx); err != nil {
			return err
		}
		step := steps[i]

		switch step.Action {
		case ast.ActionInjectUser:
			content := s.injectUser(step)
			if err := s.record(sink, interactiveUserEvent(content, step.ID, true)); err != nil {
				return err
			}

		case ast.ActionAwaitUser:
			if err := s.awaitUser(ctx, step, sink); err != nil {
				return err
			}

		case ast.ActionAwaitAgent:
			s.setStatus(StatusAwaitingAgent)
			if err := s.awaitAgent(ctx, step, sink); err != nil {
				return err
			}
			s.setStatus(StatusRunning)

		case ast.ActionBranch:
			name, branchSteps, ok := s.branchTarget(step)
			if err := s.record(sink, branchEvent(name, step.ID)); err != nil {
				return err
			}
			if ok {
				steps = branchSteps
				i = 0
				continue
			}

		case ast.ActionToolCall:
			if err := s.directToolCall(step, sink); err != nil {
				return err
			}

		default:
			// validateSteps rejected everything else up front.
			return fmt.Errorf("step %s: unknown action %q", step.ID, step.Action)
		}

		i++
	}
	return nil
}

// awaitUser suspends the run on a one-shot rendezvous until input
// arrives, the step's timeout fires, or the session is cancelled. On
// timeout the step's default (or a timeout marker) stands in for the
// user.
func (s *Session) awaitUser(ctx context.Context, step *ast.Step, sink eventSink) error {
	input := make(chan string, 1)
	s.mu.Lock()
	s.status = StatusAwaitingUser
	s.input = input
	s.mu.Unlock()

	prompt := stringParam(step.Params, "prompt", "")
	if err := s.record(sink, awaitingInputEvent(prompt, step.ID, step.Params["timeout"])); err != nil {
		return err
	}

	var timer <-chan time.Time
	if timeout := floatParam(step.Params, "timeout", 0); timeout > 0 {
		t := time.NewTimer(time.Duration(timeout * float64(time.Second)))
		defer t.Stop()
		timer = t.C
	}

	var content string
	select {
	case content = <-input:
	case <-timer:
		content = stringParam(step.Params, "default", "[timeout - no input]")
	case <-ctx.Done():
		s.mu.Lock()
		s.input = nil
		s.mu.Unlock()
		return errAwaitReleased
	}

	s.mu.Lock()
	s.input = nil
	s.status = StatusRunning
	s.mu.Unlock()

	s.history = append(s.history, ast.Message{Role: ast.RoleUser, Content: content})
	return s.record(sink, interactiveUserEvent(content, step.ID, false))
}

// pauseGate blocks between steps while a pause is in effect.
func (s *Session) pauseGate(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	gate := s.pauseCh
	if gate != nil {
		s.status = StatusPaused
	}
	s.mu.Unlock()
	if gate == nil {
		return nil
	}

	select {
	case <-gate:
		s.setStatus(StatusRunning)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// finish evaluates the run and emits the terminal event. Terminal
// events never join the transcript, so num_events excludes them.
func (s *Session) finish(ctx context.Context, runErr error) {
	if runErr != nil {
		s.setStatus(StatusError)
		switch {
		case errors.Is(runErr, context.Canceled):
			// Cancellation ends the stream without a terminal event.
		case ctx.Err() != nil:
			// The context died under the error. Deliver if there is
			// room; a vanished consumer must not pin the goroutine.
			select {
			case s.stream <- errorEvent(runErr.Error()):
			default:
			}
		default:
			_ = s.push(ctx, errorEvent(runErr.Error()))
		}
		return
	}

	evaluation := s.eval.Evaluate(s.module, evaluator.Run{
		History:  s.history,
		Events:   s.events,
		EnvState: s.envState,
	})
	result := &RunResult{
		ModuleID:   s.module.ID,
		AgentID:    s.agent.ID(),
		Events:     s.events,
		Evaluation: evaluation,
	}

	s.mu.Lock()
	s.status = StatusCompleted
	s.result = result
	s.mu.Unlock()

	_ = s.push(ctx, completedEvent(evaluation, len(s.events)))
}

func (s *Session) push(ctx context.Context, e events.Event) error {
	select {
	case s.stream <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) setStatus(status Status) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

func floatParam(params map[string]any, key string, fallback float64) float64 {
	switch v := params[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return fallback
}

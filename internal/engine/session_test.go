package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dojoai/dojo/internal/agent"
	"github.com/dojoai/dojo/internal/ast"
	"github.com/dojoai/dojo/internal/evaluator"
	"github.com/dojoai/dojo/internal/tools/builtin"
	"github.com/dojoai/dojo/pkg/events"
)

// readUntil consumes the stream until an event of the wanted type
// arrives, returning everything read including it.
func readUntil(t *testing.T, stream <-chan events.Event, want events.Type) []events.Event {
	t.Helper()
	var seen []events.Event
	deadline := time.After(5 * time.Second)
	for {
		select {
		case e, ok := <-stream:
			if !ok {
				t.Fatalf("stream closed before %s event, saw %v", want, eventTypes(seen))
			}
			seen = append(seen, e)
			if e.Type == want {
				return seen
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event, saw %v", want, eventTypes(seen))
		}
	}
}

// drain reads the stream until the session closes it.
func drain(t *testing.T, s *Session) []events.Event {
	t.Helper()
	var out []events.Event
	deadline := time.After(5 * time.Second)
	for {
		select {
		case e, ok := <-s.Events():
			if !ok {
				return out
			}
			out = append(out, e)
		case <-deadline:
			t.Fatalf("timed out draining session, saw %v", eventTypes(out))
		}
	}
}

func newSession(t *testing.T, m *ast.Module, ag agent.Agent) *Session {
	t.Helper()
	s, err := NewSession(m, ag, testRegistry(t))
	require.NoError(t, err)
	return s
}

func TestSessionAwaitUserTimeout(t *testing.T) {
	m := &ast.Module{
		ID: "interactive.name",
		Steps: []*ast.Step{
			{ID: "ask_name", Action: ast.ActionAwaitUser, Params: map[string]any{
				"prompt":  "name?",
				"timeout": 1,
				"default": "anon",
			}},
			{ID: "reply", Action: ast.ActionAwaitAgent},
		},
	}
	s := newSession(t, m, scriptedAgent(t, "greeter", agent.Action{Type: agent.ActionMessage, Content: "hello anon"}))

	start := time.Now()
	require.NoError(t, s.Start(context.Background()))

	seen := readUntil(t, s.Events(), events.TypeUser)
	assert.GreaterOrEqual(t, time.Since(start), 900*time.Millisecond)

	waiting := seen[0]
	require.Equal(t, events.TypeAwaitingInput, waiting.Type)
	assert.Equal(t, "name?", waiting.Payload["prompt"])
	assert.Equal(t, "ask_name", waiting.StepID())
	assert.Equal(t, 1, waiting.Payload["timeout"])

	user := seen[len(seen)-1]
	assert.Equal(t, "anon", user.Content())
	assert.Equal(t, false, user.Payload["scripted"])

	rest := drain(t, s)
	require.NotEmpty(t, rest)
	assert.Equal(t, "hello anon", rest[0].Content())
	assert.Equal(t, events.TypeCompleted, rest[len(rest)-1].Type)
	assert.Equal(t, StatusCompleted, s.Status())
}

func TestSessionProvideInput(t *testing.T) {
	m := &ast.Module{
		ID: "interactive.followup",
		Steps: []*ast.Step{
			{ID: "greet", Action: ast.ActionInjectUser, Params: map[string]any{"content": "hi"}},
			{ID: "ask_more", Action: ast.ActionAwaitUser, Params: map[string]any{"prompt": "anything else?"}},
			{ID: "reply", Action: ast.ActionAwaitAgent},
		},
	}
	s := newSession(t, m, scriptedAgent(t, "helper", agent.Action{Type: agent.ActionMessage, Content: "noted"}))

	require.ErrorIs(t, s.ProvideInput("too early"), ErrNotAwaitingInput)
	require.NoError(t, s.Start(context.Background()))

	seen := readUntil(t, s.Events(), events.TypeAwaitingInput)
	require.Len(t, seen, 2)
	assert.Equal(t, true, seen[0].Payload["scripted"])
	assert.NotContains(t, seen[1].Payload, "timeout")
	assert.Equal(t, StatusAwaitingUser, s.Status())

	require.NoError(t, s.ProvideInput("the blue one"))
	require.ErrorIs(t, s.ProvideInput("again"), ErrNotAwaitingInput)

	rest := drain(t, s)
	require.Equal(t, []events.Type{events.TypeUser, events.TypeAgent, events.TypeCompleted}, eventTypes(rest))
	assert.Equal(t, "the blue one", rest[0].Content())
	assert.Equal(t, false, rest[0].Payload["scripted"])

	completed := rest[len(rest)-1]
	assert.Equal(t, 4, completed.Payload["num_events"])
	evaluation, ok := completed.Payload["evaluation"].(evaluator.Result)
	require.True(t, ok)
	assert.Equal(t, "ok", evaluation.Status)

	// Terminal events never join the transcript.
	result, ok := s.Result()
	require.True(t, ok)
	assert.Len(t, result.Events, 4)
}

func TestSessionInjectEvent(t *testing.T) {
	m := &ast.Module{
		ID: "negotiation",
		Environment: &ast.Environment{
			Tools: []*ast.ToolRef{{Name: "store", Type: builtin.TypeStore}},
		},
		Steps: []*ast.Step{
			{ID: "hold", Action: ast.ActionAwaitUser, Params: map[string]any{"prompt": "offer?"}},
		},
	}
	s := newSession(t, m, scriptedAgent(t, "seller"))

	require.NoError(t, s.Start(context.Background()))
	readUntil(t, s.Events(), events.TypeAwaitingInput)

	data, err := s.InjectEvent("store", "competitor_claim", nil)
	require.NoError(t, err)
	payload, ok := data.(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, payload["message"], "TechMart")

	_, err = s.InjectEvent("ghost", "competitor_claim", nil)
	require.ErrorContains(t, err, `tool "ghost" not found`)

	_, err = s.InjectEvent("store", "alien_invasion", nil)
	require.ErrorContains(t, err, "Unknown event")

	// Explicit args win over the event kind, mirroring the payload merge.
	data, err = s.InjectEvent("store", "competitor_claim", map[string]interface{}{"event": "loyalty_appeal"})
	require.NoError(t, err)
	payload, ok = data.(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, payload["message"], "long history")

	require.NoError(t, s.ProvideInput("deal"))
	drain(t, s)

	triggered, _ := s.envState["negotiation_events"].([]interface{})
	assert.Equal(t, []interface{}{"competitor_claim", "loyalty_appeal"}, triggered)
}

func TestSessionPauseResume(t *testing.T) {
	s := newSession(t, refundModule(), scriptedAgent(t, "support-bot", refundActions()...))

	require.NoError(t, s.Pause())
	require.ErrorContains(t, s.Pause(), "already paused")
	require.NoError(t, s.Start(context.Background()))

	require.Eventually(t, func() bool { return s.Status() == StatusPaused }, time.Second, 5*time.Millisecond)
	select {
	case e := <-s.Events():
		t.Fatalf("unexpected event while paused: %s", e.Type)
	default:
	}

	require.NoError(t, s.Resume())
	require.ErrorContains(t, s.Resume(), "session is not paused")

	all := drain(t, s)
	require.Equal(t, []events.Type{
		events.TypeUser,
		events.TypeToolCall,
		events.TypeToolResult,
		events.TypeAgent,
		events.TypeCompleted,
	}, eventTypes(all))
	assert.Equal(t, StatusCompleted, s.Status())
	require.ErrorContains(t, s.Pause(), "session is completed")
}

func TestSessionCancel(t *testing.T) {
	t.Run("Releases A Pending Await User With An Error Event", func(t *testing.T) {
		m := &ast.Module{
			ID: "interactive.idle",
			Steps: []*ast.Step{
				{ID: "hold", Action: ast.ActionAwaitUser, Params: map[string]any{"prompt": "still there?"}},
			},
		}
		s := newSession(t, m, scriptedAgent(t, "idle"))

		require.NoError(t, s.Start(context.Background()))
		readUntil(t, s.Events(), events.TypeAwaitingInput)

		s.Cancel()

		rest := drain(t, s)
		require.Len(t, rest, 1)
		assert.Equal(t, events.TypeError, rest[0].Type)
		assert.Contains(t, rest[0].Payload["message"], "awaiting user input")
		assert.Equal(t, StatusError, s.Status())
		_, ok := s.Result()
		assert.False(t, ok)
	})

	t.Run("Cancel Elsewhere Closes The Stream Silently", func(t *testing.T) {
		s := newSession(t, refundModule(), scriptedAgent(t, "support-bot", refundActions()...))

		require.NoError(t, s.Pause())
		require.NoError(t, s.Start(context.Background()))
		require.Eventually(t, func() bool { return s.Status() == StatusPaused }, time.Second, 5*time.Millisecond)

		s.Cancel()

		assert.Empty(t, drain(t, s))
		assert.Equal(t, StatusError, s.Status())
	})
}

func TestSessionAgentFailure(t *testing.T) {
	m := &ast.Module{
		ID:    "flaky",
		Steps: []*ast.Step{{ID: "go", Action: ast.ActionAwaitAgent}},
	}
	s := newSession(t, m, stubAgent{id: "flaky-bot", err: errors.New("boom")})

	require.NoError(t, s.Start(context.Background()))

	all := drain(t, s)
	require.Len(t, all, 1)
	assert.Equal(t, events.TypeError, all[0].Type)
	assert.Contains(t, all[0].Payload["message"], "agent flaky-bot: boom")
	assert.Equal(t, StatusError, s.Status())
	_, ok := s.Result()
	assert.False(t, ok)
}

func TestSessionStartTwice(t *testing.T) {
	s := newSession(t, refundModule(), scriptedAgent(t, "support-bot", refundActions()...))

	require.NoError(t, s.Start(context.Background()))
	require.ErrorContains(t, s.Start(context.Background()), "session already started")
	drain(t, s)
}

func TestSessionMatchesRunnerOutcome(t *testing.T) {
	r, runnerResult := runSync(t, refundModule(), scriptedAgent(t, "support-bot", refundActions()...))

	s := newSession(t, refundModule(), scriptedAgent(t, "support-bot", refundActions()...))
	require.NoError(t, s.Start(context.Background()))
	drain(t, s)

	sessionResult, ok := s.Result()
	require.True(t, ok)

	assert.Equal(t, eventTypes(runnerResult.Events), eventTypes(sessionResult.Events))
	assert.Equal(t, runnerResult.Evaluation.Score, sessionResult.Evaluation.Score)
	assert.Equal(t, runnerResult.Evaluation.NumEvents, sessionResult.Evaluation.NumEvents)
	assert.InDelta(t, 900.01, r.EnvState()["cash_balance"], 1e-9)
	assert.InDelta(t, 900.01, s.envState["cash_balance"], 1e-9)
}

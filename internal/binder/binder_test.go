package binder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dojoai/dojo/internal/ast"
)

func refundModule() *ast.Module {
	return &ast.Module{
		ID: "refund-flow",
		Variables: []*ast.Variable{
			{Name: "mode", Type: "select", Default: "hard"},
			{Name: "store_name", Type: "string", Default: "Lemonade & Co"},
			{Name: "starting_cash", Type: "number", Default: 1000.0},
		},
		AgentConfig: map[string]any{
			"model": "gpt-4o-mini",
			"system_prompt": `You work the register at {{store_name}}.
{{#if mode == "hard"}}Refunds require a manager override.{{else}}Refunds are fine.{{/if}}`,
		},
		Environment: &ast.Environment{
			SandboxType: ast.SandboxLocal,
			Tools: []*ast.ToolRef{
				{
					Name: "register",
					Type: "mock_cash_register",
					Config: map[string]any{
						"balance": "{{starting_cash}}",
						"labels":  []any{"Till at {{store_name}}"},
					},
				},
			},
			InitialState: map[string]any{
				"cash_balance": "{{starting_cash}}",
				"greeting":     "Welcome to {{store_name}}",
			},
		},
		Steps: []*ast.Step{
			{
				ID:     "ask",
				Action: ast.ActionInjectUser,
				Params: map[string]any{"content": "I want a refund at {{store_name}}"},
			},
			{
				ID:        "escalate",
				Action:    ast.ActionBranch,
				Condition: `mode == "hard"`,
				Params:    map[string]any{"branch_name": "manager"},
			},
			{ID: "reply", Action: ast.ActionAwaitAgent},
		},
		Branches: map[string][]*ast.Step{
			"manager": {
				{
					ID:        "manager_only",
					Action:    ast.ActionInjectUser,
					Condition: `mode == "hard"`,
					Params:    map[string]any{"content": "Get me a manager"},
				},
			},
		},
	}
}

func TestBinder_ResolveVariables(t *testing.T) {
	b := New()
	m := refundModule()

	t.Run("defaults", func(t *testing.T) {
		vars := b.ResolveVariables(m, nil)
		assert.Equal(t, "hard", vars["mode"])
		assert.Equal(t, 1000.0, vars["starting_cash"])
	})

	t.Run("overrides win", func(t *testing.T) {
		vars := b.ResolveVariables(m, map[string]any{"mode": "easy"})
		assert.Equal(t, "easy", vars["mode"])
		assert.Equal(t, "Lemonade & Co", vars["store_name"])
	})

	t.Run("undeclared bindings kept", func(t *testing.T) {
		vars := b.ResolveVariables(m, map[string]any{"session_tag": "demo"})
		assert.Equal(t, "demo", vars["session_tag"])
	})

	t.Run("variable without default is unset", func(t *testing.T) {
		m := &ast.Module{Variables: []*ast.Variable{{Name: "unset"}}}
		vars := b.ResolveVariables(m, nil)
		_, exists := vars["unset"]
		assert.False(t, exists)
	})
}

func TestBinder_SystemPrompt(t *testing.T) {
	b := New()

	t.Run("hard mode", func(t *testing.T) {
		bound := b.Bind(refundModule(), nil)
		prompt := bound.SystemPrompt()
		assert.Contains(t, prompt, "You work the register at Lemonade & Co.")
		assert.Contains(t, prompt, "Refunds require a manager override.")
		assert.NotContains(t, prompt, "{{")

		// Other agent_config keys pass through untouched
		assert.Equal(t, "gpt-4o-mini", bound.AgentConfig["model"])
	})

	t.Run("easy mode takes the else branch", func(t *testing.T) {
		bound := b.Bind(refundModule(), map[string]any{"mode": "easy"})
		assert.Contains(t, bound.SystemPrompt(), "Refunds are fine.")
	})
}

func TestBinder_TypedSubstitution(t *testing.T) {
	b := New()
	bound := b.Bind(refundModule(), nil)

	// A whole-string placeholder keeps the variable's type
	require.NotNil(t, bound.Environment)
	assert.Equal(t, 1000.0, bound.Environment.InitialState["cash_balance"])
	assert.Equal(t, 1000.0, bound.Environment.Tools[0].Config["balance"])

	// Embedded placeholders stringify
	assert.Equal(t, "Welcome to Lemonade & Co", bound.Environment.InitialState["greeting"])
	labels := bound.Environment.Tools[0].Config["labels"].([]any)
	assert.Equal(t, "Till at Lemonade & Co", labels[0])

	t.Run("integer defaults stay integers", func(t *testing.T) {
		m := &ast.Module{
			ID:        "m",
			Variables: []*ast.Variable{{Name: "max_turns", Default: 5}},
			Environment: &ast.Environment{
				InitialState: map[string]any{"turns_left": "{{max_turns}}"},
			},
		}
		bound := b.Bind(m, nil)
		assert.Equal(t, 5, bound.Environment.InitialState["turns_left"])
	})
}

func TestBinder_ConditionFiltering(t *testing.T) {
	b := New()

	t.Run("true condition keeps the step and clears it", func(t *testing.T) {
		bound := b.Bind(refundModule(), nil)
		require.Len(t, bound.Steps, 3)
		assert.Equal(t, "escalate", bound.Steps[1].ID)
		assert.Empty(t, bound.Steps[1].Condition)
	})

	t.Run("false condition drops the step", func(t *testing.T) {
		bound := b.Bind(refundModule(), map[string]any{"mode": "easy"})
		require.Len(t, bound.Steps, 2)
		assert.Equal(t, "ask", bound.Steps[0].ID)
		assert.Equal(t, "reply", bound.Steps[1].ID)
	})

	t.Run("branch steps are filtered too", func(t *testing.T) {
		bound := b.Bind(refundModule(), map[string]any{"mode": "easy"})
		assert.Empty(t, bound.Branches["manager"])
	})

	t.Run("malformed condition counts as false", func(t *testing.T) {
		m := &ast.Module{
			ID: "m",
			Steps: []*ast.Step{
				{ID: "s1", Action: ast.ActionAwaitAgent, Condition: "mode =="},
				{ID: "s2", Action: ast.ActionAwaitAgent},
			},
		}
		bound := b.Bind(m, nil)
		require.Len(t, bound.Steps, 1)
		assert.Equal(t, "s2", bound.Steps[0].ID)
	})

	t.Run("no conditions survive anywhere", func(t *testing.T) {
		bound := b.Bind(refundModule(), nil)
		for _, step := range bound.AllSteps() {
			assert.Empty(t, step.Condition)
		}
	})
}

func TestBinder_StepParams(t *testing.T) {
	b := New()
	bound := b.Bind(refundModule(), nil)

	assert.Equal(t, "I want a refund at Lemonade & Co", bound.Steps[0].Params["content"])
}

func TestBinder_UnresolvedPlaceholders(t *testing.T) {
	b := New()
	m := &ast.Module{
		ID: "m",
		Steps: []*ast.Step{
			{
				ID:     "s1",
				Action: ast.ActionInjectUser,
				Params: map[string]any{
					"content": "Hello {{nobody}}",
					"alias":   "{{nobody}}",
				},
			},
		},
	}

	bound := b.Bind(m, nil)
	assert.Equal(t, "Hello {{nobody}}", bound.Steps[0].Params["content"])
	assert.Equal(t, "{{nobody}}", bound.Steps[0].Params["alias"])
}

func TestBinder_DoesNotMutateInput(t *testing.T) {
	b := New()
	m := refundModule()

	_ = b.Bind(m, map[string]any{"mode": "easy"})

	assert.Equal(t, `mode == "hard"`, m.Steps[1].Condition)
	assert.Equal(t, "I want a refund at {{store_name}}", m.Steps[0].Params["content"])
	assert.Equal(t, "{{starting_cash}}", m.Environment.InitialState["cash_balance"])
	assert.Equal(t, "{{starting_cash}}", m.Environment.Tools[0].Config["balance"])
	assert.Contains(t, m.AgentConfig["system_prompt"], "{{store_name}}")
	assert.Len(t, m.Steps, 3)
	assert.Len(t, m.Branches["manager"], 1)
}

func TestBinder_NilSections(t *testing.T) {
	b := New()
	m := &ast.Module{ID: "bare"}

	bound := b.Bind(m, nil)
	assert.Equal(t, "bare", bound.ID)
	assert.Nil(t, bound.AgentConfig)
	assert.Nil(t, bound.Environment)
	assert.Nil(t, bound.Steps)
}

package ast

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestModule_Basic(t *testing.T) {
	module := &Module{
		ID:          "refund-flow",
		Description: "Customer requests a refund",
		Variables: []*Variable{
			{Name: "customer_name", Type: "string", Default: "Alice"},
		},
		Environment: &Environment{
			SandboxType: "local",
			Tools: []*ToolRef{
				{Name: "shopify", Type: "mock_shopify"},
			},
			InitialState: map[string]any{"cash_balance": 1000.0},
		},
		Steps: []*Step{
			{ID: "s1", Action: ActionInjectUser, Params: map[string]any{"content": "hi"}},
			{ID: "s2", Action: ActionAwaitAgent},
		},
		Branches: map[string][]*Step{
			"escalate": {
				{ID: "b1", Action: ActionInjectUser, Params: map[string]any{"content": "manager please"}},
			},
		},
	}

	assert.Equal(t, "refund-flow", module.ID)

	step, exists := module.GetStep("s2")
	assert.True(t, exists)
	assert.Equal(t, ActionAwaitAgent, step.Action)

	_, exists = module.GetStep("missing")
	assert.False(t, exists)

	branch, exists := module.GetBranch("escalate")
	assert.True(t, exists)
	assert.Len(t, branch, 1)

	tool, exists := module.GetTool("shopify")
	assert.True(t, exists)
	assert.Equal(t, "mock_shopify", tool.Type)

	variable, exists := module.GetVariable("customer_name")
	assert.True(t, exists)
	assert.Equal(t, "Alice", variable.Default)

	assert.Equal(t, []string{"s1", "s2"}, module.ListStepIDs())
	assert.Len(t, module.AllSteps(), 3)
}

func TestVariable_UnmarshalDefaults(t *testing.T) {
	var v Variable
	err := yaml.Unmarshal([]byte(`name: price
default: 3.5`), &v)
	require.NoError(t, err)

	assert.Equal(t, "price", v.Name)
	assert.Equal(t, "string", v.Type)
	assert.Equal(t, 3.5, v.Default)
}

func TestCheck_UnmarshalDefaults(t *testing.T) {
	testCases := []struct {
		name     string
		yaml     string
		expected bool
	}{
		{
			name:     "expected defaults to true",
			yaml:     "name: mentions_refund\nkind: contains\ntarget: agent_messages\nvalue: refund",
			expected: true,
		},
		{
			name:     "explicit false preserved",
			yaml:     "name: no_apology\nkind: contains\ntarget: agent_messages\nvalue: sorry\nexpected: false",
			expected: false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var c Check
			err := yaml.Unmarshal([]byte(tc.yaml), &c)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, c.IsExpected())
		})
	}
}

func TestScoring_UnmarshalDefaults(t *testing.T) {
	var s Scoring
	err := yaml.Unmarshal([]byte(`weights:
  accuracy: 2.0`), &s)
	require.NoError(t, err)

	assert.False(t, s.Normalize)
	assert.Equal(t, 0.0, s.MinScore)
	assert.Equal(t, 100.0, s.MaxScore)
	assert.Equal(t, 2.0, s.Weights["accuracy"])
}

func TestModule_EffectiveScoring(t *testing.T) {
	m := &Module{ID: "m"}
	scoring := m.EffectiveScoring()
	require.NotNil(t, scoring)
	assert.Equal(t, 100.0, scoring.MaxScore)
	assert.Empty(t, scoring.Formula)

	m.Scoring = &Scoring{Formula: "A + B", MaxScore: 10}
	assert.Equal(t, "A + B", m.EffectiveScoring().Formula)
}

func TestCheck_EffectiveExpr(t *testing.T) {
	flat := &Check{Kind: CheckDeterministic, Expr: "env_state['cash'] > 0"}
	assert.Equal(t, "env_state['cash'] > 0", flat.EffectiveExpr())

	legacy := &Check{Kind: CheckDeterministic, Config: map[string]any{"expr": "len(events) > 2", "pass_if": "> 0.5"}}
	assert.Equal(t, "len(events) > 2", legacy.EffectiveExpr())
	assert.Equal(t, "> 0.5", legacy.EffectivePassIf())
}

func TestValidator_ValidateModule(t *testing.T) {
	testCases := []struct {
		name     string
		module   *Module
		valid    bool
		errorMsg string
	}{
		{
			name: "valid module",
			module: &Module{
				ID: "ok",
				Steps: []*Step{
					{ID: "s1", Action: ActionInjectUser},
					{ID: "s2", Action: ActionAwaitAgent},
				},
			},
			valid: true,
		},
		{
			name: "missing module id",
			module: &Module{
				Steps: []*Step{{ID: "s1", Action: ActionAwaitAgent}},
			},
			valid:    false,
			errorMsg: "missing required field: id",
		},
		{
			name: "invalid step action",
			module: &Module{
				ID:    "m",
				Steps: []*Step{{ID: "s1", Action: "teleport"}},
			},
			valid:    false,
			errorMsg: "Step 's1' has invalid action: teleport",
		},
		{
			name: "unknown branch reference",
			module: &Module{
				ID: "m",
				Steps: []*Step{
					{ID: "s1", Action: ActionBranch, Params: map[string]any{"branch_name": "nowhere"}},
				},
			},
			valid:    false,
			errorMsg: "Step 's1' references unknown branch: nowhere",
		},
		{
			name: "known branch reference",
			module: &Module{
				ID: "m",
				Steps: []*Step{
					{ID: "s1", Action: ActionBranch, Params: map[string]any{"branch_name": "esc"}},
				},
				Branches: map[string][]*Step{
					"esc": {{ID: "b1", Action: ActionAwaitAgent}},
				},
			},
			valid: true,
		},
		{
			name: "invalid check kind",
			module: &Module{
				ID:         "m",
				Steps:      []*Step{{ID: "s1", Action: ActionAwaitAgent}},
				Evaluation: []*Check{{Name: "judge", Kind: "vibes"}},
			},
			valid:    false,
			errorMsg: "Evaluation 'judge' has invalid kind: vibes",
		},
		{
			name: "duplicate step ids across branches",
			module: &Module{
				ID:    "m",
				Steps: []*Step{{ID: "s1", Action: ActionAwaitAgent}},
				Branches: map[string][]*Step{
					"alt": {{ID: "s1", Action: ActionAwaitAgent}},
				},
			},
			valid:    false,
			errorMsg: "Duplicate step id: s1",
		},
		{
			name: "tool_call missing params",
			module: &Module{
				ID:    "m",
				Steps: []*Step{{ID: "s1", Action: ActionToolCall}},
			},
			valid:    false,
			errorMsg: "missing required param: tool",
		},
	}

	validator := NewValidator()
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result := validator.ValidateModule(tc.module)
			assert.Equal(t, tc.valid, result.Valid)

			if tc.errorMsg != "" {
				require.True(t, result.HasErrors())
				found := false
				for _, msg := range result.Messages() {
					if strings.Contains(msg, tc.errorMsg) {
						found = true
						break
					}
				}
				assert.True(t, found, "expected a finding containing %q, got %v", tc.errorMsg, result.Messages())
			} else if tc.valid {
				assert.NoError(t, result.ToError())
			}
		})
	}
}

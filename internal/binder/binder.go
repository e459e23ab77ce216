package binder

import (
	"github.com/rs/zerolog/log"

	"github.com/dojoai/dojo/internal/ast"
	"github.com/dojoai/dojo/internal/expression"
)

// Binder specializes a module for a concrete variable assignment so the
// executors never see templates or conditions.
type Binder struct {
	templates *expression.TemplateEngine
	evaluator *expression.ExpressionEvaluator
}

// New creates a new binder.
func New() *Binder {
	return &Binder{
		templates: expression.NewTemplateEngine(),
		evaluator: expression.NewExpressionEvaluator(),
	}
}

// ResolveVariables builds the effective variable map: every declared
// variable starts at its default and caller bindings override. Bindings
// for undeclared names are kept so callers can thread extra values
// through to templates.
func (b *Binder) ResolveVariables(m *ast.Module, overrides map[string]any) map[string]any {
	vars := make(map[string]any, len(m.Variables)+len(overrides))
	for _, v := range m.Variables {
		if v.Default != nil {
			vars[v.Name] = v.Default
		}
	}
	for name, value := range overrides {
		vars[name] = value
	}
	return vars
}

// Bind returns a copy of the module with variables substituted into the
// system prompt, tool configs, initial state, and step params, conditional
// blocks resolved, and conditional steps filtered. The input module is
// never modified; the returned module carries no condition fields.
func (b *Binder) Bind(m *ast.Module, overrides map[string]any) *ast.Module {
	vars := b.ResolveVariables(m, overrides)

	bound := *m
	bound.AgentConfig = b.bindAgentConfig(m.AgentConfig, vars)
	bound.Environment = b.bindEnvironment(m.Environment, vars)
	bound.Steps = b.bindSteps(m.Steps, vars)

	if m.Branches != nil {
		branches := make(map[string][]*ast.Step, len(m.Branches))
		for name, steps := range m.Branches {
			branches[name] = b.bindSteps(steps, vars)
		}
		bound.Branches = branches
	}

	return &bound
}

// bindAgentConfig copies the agent config, rendering only the system
// prompt. Other keys (model, params) are provider configuration and pass
// through untouched.
func (b *Binder) bindAgentConfig(config map[string]any, vars map[string]any) map[string]any {
	if config == nil {
		return nil
	}

	bound := make(map[string]any, len(config))
	for key, value := range config {
		bound[key] = value
	}

	if prompt, ok := bound["system_prompt"].(string); ok {
		bound["system_prompt"] = b.renderString(prompt, vars)
	}

	return bound
}

func (b *Binder) bindEnvironment(env *ast.Environment, vars map[string]any) *ast.Environment {
	if env == nil {
		return nil
	}

	bound := &ast.Environment{
		SandboxType:  env.SandboxType,
		InitialState: b.renderMap(env.InitialState, vars),
		Position:     env.Position,
	}

	if env.Tools != nil {
		bound.Tools = make([]*ast.ToolRef, len(env.Tools))
		for i, tool := range env.Tools {
			boundTool := *tool
			boundTool.Config = b.renderMap(tool.Config, vars)
			bound.Tools[i] = &boundTool
		}
	}

	return bound
}

// bindSteps renders step params and filters steps whose condition is
// false. A condition that fails to evaluate counts as false. Surviving
// steps have their condition cleared.
func (b *Binder) bindSteps(steps []*ast.Step, vars map[string]any) []*ast.Step {
	if steps == nil {
		return nil
	}

	bound := make([]*ast.Step, 0, len(steps))
	for _, step := range steps {
		if step.Condition != "" && !b.evaluator.EvaluateBool(step.Condition, vars) {
			log.Debug().
				Str("step_id", step.ID).
				Str("condition", step.Condition).
				Msg("Dropping step, condition is false")
			continue
		}

		boundStep := *step
		boundStep.Condition = ""
		boundStep.Params = b.renderMap(step.Params, vars)
		bound = append(bound, &boundStep)
	}

	return bound
}

func (b *Binder) renderMap(value map[string]any, vars map[string]any) map[string]any {
	if value == nil {
		return nil
	}

	bound := make(map[string]any, len(value))
	for key, item := range value {
		bound[key] = b.renderValue(item, vars)
	}
	return bound
}

// renderValue renders template strings in nested structures, rebuilding
// maps and slices so the source module stays untouched.
func (b *Binder) renderValue(value any, vars map[string]any) any {
	switch v := value.(type) {
	case string:
		rendered, err := b.templates.Render(v, vars)
		if err != nil {
			log.Debug().Err(err).Str("template", v).Msg("Leaving malformed template unrendered")
			return v
		}
		return rendered
	case map[string]any:
		return b.renderMap(v, vars)
	case []any:
		bound := make([]any, len(v))
		for i, item := range v {
			bound[i] = b.renderValue(item, vars)
		}
		return bound
	default:
		return value
	}
}

// renderString renders a template that must stay a string, such as the
// system prompt. Typed whole-string substitutions are stringified.
func (b *Binder) renderString(template string, vars map[string]any) string {
	rendered, err := b.templates.Render(template, vars)
	if err != nil {
		log.Debug().Err(err).Msg("Leaving malformed template unrendered")
		return template
	}

	if s, ok := rendered.(string); ok {
		return s
	}
	return expression.ValueToString(rendered)
}

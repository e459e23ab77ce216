package parser

import (
	"fmt"
	"regexp"

	"github.com/dojoai/dojo/internal/ast"
	"github.com/dojoai/dojo/internal/expression"
)

// SemanticValidator provides comprehensive semantic validation for
// modules. It layers cross-reference and expression checks on top of the
// structural findings from ast.Validator: undeclared tools, unparseable
// conditions and formulas, template references to unknown variables, and
// branch flow problems.
type SemanticValidator struct {
	templateValidator *TemplateValidator
}

// NewSemanticValidator creates a new semantic validator
func NewSemanticValidator() *SemanticValidator {
	return &SemanticValidator{
		templateValidator: NewTemplateValidator(),
	}
}

// ValidateModule performs comprehensive semantic validation
func (sv *SemanticValidator) ValidateModule(m *ast.Module) *ast.ValidationResult {
	result := ast.NewValidator().ValidateModule(m)

	ctx := &validationContext{
		module:    m,
		variables: make(map[string]bool),
		tools:     make(map[string]bool),
		branches:  make(map[string]bool),
		checks:    make(map[string]bool),
	}
	sv.buildValidationContext(ctx)

	sv.validateToolReferences(ctx, result)
	sv.validateConditions(ctx, result)
	sv.validateTemplates(ctx, result)
	sv.validateEvaluation(ctx, result)
	sv.validateScoring(ctx, result)
	sv.validateBranchFlow(ctx, result)

	return result
}

// validationContext holds all module elements for cross-validation
type validationContext struct {
	module    *ast.Module
	variables map[string]bool
	tools     map[string]bool
	branches  map[string]bool
	checks    map[string]bool
}

// buildValidationContext populates the validation context
func (sv *SemanticValidator) buildValidationContext(ctx *validationContext) {
	m := ctx.module

	for _, v := range m.Variables {
		if v.Name != "" {
			ctx.variables[v.Name] = true
		}
	}

	if m.Environment != nil {
		for _, tool := range m.Environment.Tools {
			if tool.Name != "" {
				ctx.tools[tool.Name] = true
			}
		}
	}

	for name := range m.Branches {
		ctx.branches[name] = true
	}

	for _, check := range m.Evaluation {
		if check.Name != "" {
			ctx.checks[check.Name] = true
		}
	}
}

// validateToolReferences checks that steps and checks only name tools the
// environment declares.
func (sv *SemanticValidator) validateToolReferences(ctx *validationContext, result *ast.ValidationResult) {
	sv.walkSteps(ctx.module, func(path string, step *ast.Step) {
		if step.Action != ast.ActionToolCall {
			return
		}
		tool := step.ParamString("tool", "")
		if tool != "" && !ctx.tools[tool] {
			result.AddError(path, fmt.Sprintf("Step '%s' references undeclared tool: %s", step.ID, tool))
		}
	})

	for i, check := range ctx.module.Evaluation {
		if check.Kind != ast.CheckToolCalled {
			continue
		}
		if check.Tool != "" && !ctx.tools[check.Tool] {
			result.AddError(
				fmt.Sprintf("evaluation[%d]", i),
				fmt.Sprintf("Evaluation '%s' references undeclared tool: %s", check.Name, check.Tool),
			)
		}
	}
}

// validateConditions checks that step conditions parse. An unparseable
// condition is treated as false when the module is bound, which silently
// drops the step; flagging it here surfaces the mistake before a run.
func (sv *SemanticValidator) validateConditions(ctx *validationContext, result *ast.ValidationResult) {
	sv.walkSteps(ctx.module, func(path string, step *ast.Step) {
		if step.Condition == "" {
			return
		}
		if _, err := expression.Parse(step.Condition); err != nil {
			result.AddError(path+".condition", fmt.Sprintf("invalid condition expression: %v", err))
		}
	})
}

// validateTemplates checks every template string the binder will render:
// placeholder names must be declared variables and conditional block
// expressions must parse.
func (sv *SemanticValidator) validateTemplates(ctx *validationContext, result *ast.ValidationResult) {
	m := ctx.module

	if prompt := m.SystemPrompt(); prompt != "" {
		sv.validateTemplateString(prompt, "agent_config.system_prompt", ctx, result)
	}

	if m.Environment != nil {
		for i, tool := range m.Environment.Tools {
			sv.validateTemplateValue(tool.Config, fmt.Sprintf("environment.tools[%d].config", i), ctx, result)
		}
		sv.validateTemplateValue(m.Environment.InitialState, "environment.initial_state", ctx, result)
	}

	sv.walkSteps(m, func(path string, step *ast.Step) {
		sv.validateTemplateValue(step.Params, path+".params", ctx, result)
	})
}

// validateTemplateValue walks an arbitrary YAML value and validates every
// string it contains.
func (sv *SemanticValidator) validateTemplateValue(value interface{}, path string, ctx *validationContext, result *ast.ValidationResult) {
	switch v := value.(type) {
	case string:
		sv.validateTemplateString(v, path, ctx, result)
	case map[string]interface{}:
		for key, item := range v {
			sv.validateTemplateValue(item, path+"."+key, ctx, result)
		}
	case []interface{}:
		for i, item := range v {
			sv.validateTemplateValue(item, fmt.Sprintf("%s[%d]", path, i), ctx, result)
		}
	}
}

func (sv *SemanticValidator) validateTemplateString(template, path string, ctx *validationContext, result *ast.ValidationResult) {
	for _, name := range sv.templateValidator.ExtractPlaceholders(template) {
		if !ctx.variables[name] {
			result.AddError(path, fmt.Sprintf("template references undeclared variable: %s", name))
		}
	}

	for _, expr := range sv.templateValidator.ExtractConditionExpressions(template) {
		if _, err := expression.Parse(expr); err != nil {
			result.AddError(path, fmt.Sprintf("invalid template conditional %q: %v", expr, err))
		}
	}
}

// validateEvaluation applies kind-specific checks to the evaluation list
func (sv *SemanticValidator) validateEvaluation(ctx *validationContext, result *ast.ValidationResult) {
	for i, check := range ctx.module.Evaluation {
		path := fmt.Sprintf("evaluation[%d]", i)

		if check.Name == "" {
			result.AddError(path, "check is missing required field: name")
		}

		switch check.Kind {
		case ast.CheckRegex:
			if check.Pattern == "" {
				result.AddError(path, fmt.Sprintf("Evaluation '%s' is missing required field: pattern", check.Name))
			} else if _, err := regexp.Compile(check.Pattern); err != nil {
				result.AddError(path, fmt.Sprintf("Evaluation '%s' has invalid pattern: %v", check.Name, err))
			}
		case ast.CheckContains, ast.CheckEquals:
			if check.Value == nil {
				result.AddError(path, fmt.Sprintf("Evaluation '%s' is missing required field: value", check.Name))
			}
		case ast.CheckCount:
			if check.Min == nil && check.Max == nil {
				result.AddError(path, fmt.Sprintf("Evaluation '%s' needs at least one of: min, max", check.Name))
			}
		case ast.CheckToolCalled:
			if check.Tool == "" {
				result.AddError(path, fmt.Sprintf("Evaluation '%s' is missing required field: tool", check.Name))
			}
		case ast.CheckEnvState:
			if check.Key == "" {
				result.AddError(path, fmt.Sprintf("Evaluation '%s' is missing required field: key", check.Name))
			}
		case ast.CheckDeterministic:
			expr := check.EffectiveExpr()
			if expr == "" {
				result.AddError(path, fmt.Sprintf("Evaluation '%s' is missing required field: expr", check.Name))
			} else if _, err := expression.Parse(expr); err != nil {
				result.AddError(path, fmt.Sprintf("Evaluation '%s' has invalid expr: %v", check.Name, err))
			}
		}

		if passIf := check.EffectivePassIf(); passIf != "" {
			if _, err := expression.ParsePassCondition(passIf); err != nil {
				result.AddError(path, fmt.Sprintf("Evaluation '%s' has invalid pass_if: %v", check.Name, err))
			}
		}
	}
}

// validateScoring checks the scoring formula and weight targets
func (sv *SemanticValidator) validateScoring(ctx *validationContext, result *ast.ValidationResult) {
	scoring := ctx.module.Scoring
	if scoring == nil {
		return
	}

	if scoring.Formula != "" {
		if _, err := expression.Parse(scoring.Formula); err != nil {
			result.AddError("scoring.formula", fmt.Sprintf("invalid scoring formula: %v", err))
		}
	}

	for name := range scoring.Weights {
		if !ctx.checks[name] {
			result.AddError("scoring.weights", fmt.Sprintf("weight references unknown check: %s", name))
		}
	}

	if scoring.MaxScore <= scoring.MinScore {
		result.AddError("scoring", fmt.Sprintf("max_score (%g) must be greater than min_score (%g)", scoring.MaxScore, scoring.MinScore))
	}
}

// validateBranchFlow detects branch cycles and orphaned branches. Control
// transfers to a branch without returning, so a cycle loops forever.
func (sv *SemanticValidator) validateBranchFlow(ctx *validationContext, result *ast.ValidationResult) {
	m := ctx.module

	// Edges: "" is the top-level step list, every other node is a branch.
	edges := make(map[string][]string)
	edges[""] = branchTargets(m.Steps)
	for name, steps := range m.Branches {
		edges[name] = branchTargets(steps)
	}

	visited := make(map[string]bool)
	recursionStack := make(map[string]bool)
	for node := range edges {
		if !visited[node] {
			if cycleNode, found := findCycle(node, edges, visited, recursionStack); found {
				result.AddError("branches", fmt.Sprintf("circular branch flow detected involving branch '%s'", cycleNode))
			}
		}
	}

	referenced := make(map[string]bool)
	for _, targets := range edges {
		for _, t := range targets {
			referenced[t] = true
		}
	}
	for name := range m.Branches {
		if !referenced[name] {
			result.AddError("branches."+name, fmt.Sprintf("branch '%s' is never referenced by a branch step", name))
		}
	}
}

// branchTargets collects the branch names a step list can jump to
func branchTargets(steps []*ast.Step) []string {
	var targets []string
	for _, step := range steps {
		if step.Action == ast.ActionBranch {
			if name := step.ParamString("branch_name", ""); name != "" {
				targets = append(targets, name)
			}
		}
	}
	return targets
}

// findCycle detects cycles in the branch graph using DFS
func findCycle(node string, edges map[string][]string, visited, recursionStack map[string]bool) (string, bool) {
	visited[node] = true
	recursionStack[node] = true
	defer func() { recursionStack[node] = false }()

	for _, next := range edges[node] {
		if _, known := edges[next]; !known {
			// Unknown branch targets are reported separately
			continue
		}
		if !visited[next] {
			if cycleNode, found := findCycle(next, edges, visited, recursionStack); found {
				return cycleNode, true
			}
		} else if recursionStack[next] {
			return next, true
		}
	}

	return "", false
}

// walkSteps visits every step in the module, top-level and branches, with
// a stable path for error reporting.
func (sv *SemanticValidator) walkSteps(m *ast.Module, visit func(path string, step *ast.Step)) {
	for i, step := range m.Steps {
		visit(fmt.Sprintf("steps[%d]", i), step)
	}
	for name, steps := range m.Branches {
		for i, step := range steps {
			visit(fmt.Sprintf("branches.%s[%d]", name, i), step)
		}
	}
}

package ast

// Module helper methods

// GetStep retrieves a top-level step by ID
func (m *Module) GetStep(id string) (*Step, bool) {
	for _, step := range m.Steps {
		if step.ID == id {
			return step, true
		}
	}
	return nil, false
}

// GetBranch retrieves a named branch sequence
func (m *Module) GetBranch(name string) ([]*Step, bool) {
	if m.Branches == nil {
		return nil, false
	}
	steps, exists := m.Branches[name]
	return steps, exists
}

// GetVariable retrieves a variable declaration by name
func (m *Module) GetVariable(name string) (*Variable, bool) {
	for _, v := range m.Variables {
		if v.Name == name {
			return v, true
		}
	}
	return nil, false
}

// GetTool retrieves a tool reference by its in-module name
func (m *Module) GetTool(name string) (*ToolRef, bool) {
	if m.Environment == nil {
		return nil, false
	}
	for _, t := range m.Environment.Tools {
		if t.Name == name {
			return t, true
		}
	}
	return nil, false
}

// ListStepIDs returns the IDs of all top-level steps
func (m *Module) ListStepIDs() []string {
	ids := make([]string, len(m.Steps))
	for i, step := range m.Steps {
		ids[i] = step.ID
	}
	return ids
}

// ListBranchNames returns the names of all declared branches
func (m *Module) ListBranchNames() []string {
	names := make([]string, 0, len(m.Branches))
	for name := range m.Branches {
		names = append(names, name)
	}
	return names
}

// AllSteps returns every step in the module, top-level and branch alike.
// Branch steps follow the top-level ones; ordering within a sequence is
// preserved.
func (m *Module) AllSteps() []*Step {
	steps := make([]*Step, 0, len(m.Steps))
	steps = append(steps, m.Steps...)
	for _, branch := range m.Branches {
		steps = append(steps, branch...)
	}
	return steps
}

// EffectiveScoring returns the module's scoring config, or the default
// when none is declared.
func (m *Module) EffectiveScoring() *Scoring {
	if m.Scoring == nil {
		return DefaultScoring()
	}
	return m.Scoring
}

// SystemPrompt returns the agent_config system prompt override, if any.
func (m *Module) SystemPrompt() string {
	if m.AgentConfig == nil {
		return ""
	}
	if s, ok := m.AgentConfig["system_prompt"].(string); ok {
		return s
	}
	return ""
}

// Step helper methods

// IsKnownAction reports whether the step's action is one the executors
// understand.
func (s *Step) IsKnownAction() bool {
	for _, a := range StepActions {
		if s.Action == a {
			return true
		}
	}
	return false
}

// ParamString returns a string param, or the fallback when absent or not
// a string.
func (s *Step) ParamString(key, fallback string) string {
	if s.Params == nil {
		return fallback
	}
	if v, ok := s.Params[key].(string); ok {
		return v
	}
	return fallback
}

// ParamMap returns a map param, or nil when absent or not a mapping.
func (s *Step) ParamMap(key string) map[string]any {
	if s.Params == nil {
		return nil
	}
	if v, ok := s.Params[key].(map[string]any); ok {
		return v
	}
	return nil
}

// Check helper methods

// IsExpected reports whether the check asserts presence (true, the
// default) or absence (false).
func (c *Check) IsExpected() bool {
	return c.Expected == nil || *c.Expected
}

// EffectiveExpr returns the deterministic check expression, honoring the
// legacy config carrier.
func (c *Check) EffectiveExpr() string {
	if c.Expr != "" {
		return c.Expr
	}
	if c.Config != nil {
		if e, ok := c.Config["expr"].(string); ok {
			return e
		}
	}
	return ""
}

// EffectivePassIf returns the deterministic pass condition, honoring the
// legacy config carrier.
func (c *Check) EffectivePassIf() string {
	if c.PassIf != "" {
		return c.PassIf
	}
	if c.Config != nil {
		if p, ok := c.Config["pass_if"].(string); ok {
			return p
		}
	}
	return ""
}

// Weight returns the check's weight from the scoring config. Default
// weight is 1.0.
func (c *Check) Weight(scoring *Scoring) float64 {
	if scoring == nil || scoring.Weights == nil {
		return 1.0
	}
	if w, ok := scoring.Weights[c.Name]; ok {
		return w
	}
	return 1.0
}

// IsKnownKind reports whether the check kind is one the evaluator
// understands.
func (c *Check) IsKnownKind() bool {
	for _, k := range CheckKinds {
		if c.Kind == k {
			return true
		}
	}
	return false
}

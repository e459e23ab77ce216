package ast

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Position represents a position in a source file
type Position struct {
	Line   int    `json:"line"`
	Column int    `json:"column"`
	Offset int    `json:"offset"`
	File   string `json:"file,omitempty"`
}

// String returns a human-readable representation of the position
func (p Position) String() string {
	if p.File != "" {
		return fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Column)
	}
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// ExtractPosition converts a byte offset into a line/column position
func ExtractPosition(source []byte, offset int) Position {
	lines := strings.Split(string(source), "\n")

	currentOffset := 0
	for lineNum, line := range lines {
		lineLength := len(line) + 1 // +1 for newline character
		if currentOffset+lineLength > offset {
			column := offset - currentOffset + 1
			return Position{
				Line:   lineNum + 1, // 1-indexed
				Column: column,
				Offset: offset,
			}
		}
		currentOffset += lineLength
	}

	// Fallback if position is at end of file
	return Position{
		Line:   len(lines),
		Column: len(lines[len(lines)-1]) + 1,
		Offset: offset,
	}
}

// ExtractContext extracts contextual lines around a position for error reporting
func ExtractContext(source []byte, position Position, contextLines int) string {
	lines := strings.Split(string(source), "\n")

	if position.Line <= 0 || position.Line > len(lines) {
		return ""
	}

	start := max(0, position.Line-contextLines-1)
	end := min(len(lines), position.Line+contextLines)

	var context strings.Builder
	for i := start; i < end; i++ {
		lineNum := i + 1
		prefix := "   "
		if lineNum == position.Line {
			prefix = ">> "
		}

		context.WriteString(fmt.Sprintf("%s%4d | %s\n", prefix, lineNum, lines[i]))

		if lineNum == position.Line && position.Column > 0 {
			pointer := strings.Repeat(" ", 8+min(position.Column-1, len(lines[i]))) + "^"
			context.WriteString(pointer + "\n")
		}
	}

	return context.String()
}

// Step actions understood by the executors.
const (
	ActionInjectUser = "inject_user" // add a scripted user message
	ActionAwaitUser  = "await_user"  // wait for real user input (interactive only)
	ActionAwaitAgent = "await_agent" // run one agent turn
	ActionBranch     = "branch"      // transfer control to a named branch
	ActionToolCall   = "tool_call"   // direct tool invocation, bypassing the agent
)

// StepActions lists every valid step action.
var StepActions = []string{ActionInjectUser, ActionAwaitUser, ActionAwaitAgent, ActionBranch, ActionToolCall}

// Evaluation check kinds.
const (
	CheckContains      = "contains"
	CheckRegex         = "regex"
	CheckCount         = "count"
	CheckToolCalled    = "tool_called"
	CheckEquals        = "equals"
	CheckEnvState      = "env_state"
	CheckDeterministic = "deterministic" // legacy expression check
	CheckLLM           = "llm"           // not computed by the core
)

// CheckKinds lists every valid evaluation check kind.
var CheckKinds = []string{CheckContains, CheckRegex, CheckCount, CheckToolCalled, CheckEquals, CheckEnvState, CheckDeterministic, CheckLLM}

// Check targets accepted by the evaluator.
const (
	TargetAgentMessages    = "agent_messages"
	TargetUserMessages     = "user_messages"
	TargetAllMessages      = "all_messages"
	TargetToolCalls        = "tool_calls"
	TargetLastAgentMessage = "last_agent_message"
	TargetLastUserMessage  = "last_user_message"
)

// Module is the root of a parsed module document. A module describes a
// scripted interaction between a user, an agent, and a set of sandboxed
// tools, plus how the resulting trajectory is evaluated. Modules are
// immutable once bound.
type Module struct {
	ID          string             `yaml:"id" json:"id"`
	Description string             `yaml:"description,omitempty" json:"description,omitempty"`
	Variables   []*Variable        `yaml:"variables,omitempty" json:"variables,omitempty"`
	AgentConfig map[string]any     `yaml:"agent_config,omitempty" json:"agent_config,omitempty"`
	// LegacyAgent is the old top-level `agent` spelling of agent_config.
	// The parser folds it into AgentConfig and clears it, so it never
	// appears in serialized modules; the json tag keeps the key legal
	// under schema validation.
	LegacyAgent map[string]any `yaml:"agent,omitempty" json:"agent,omitempty"`
	Environment *Environment       `yaml:"environment,omitempty" json:"environment,omitempty"`
	Steps       []*Step            `yaml:"steps,omitempty" json:"steps,omitempty"`
	Branches    map[string][]*Step `yaml:"branches,omitempty" json:"branches,omitempty"`
	Evaluation  []*Check           `yaml:"evaluation,omitempty" json:"evaluation,omitempty"`
	Scoring     *Scoring           `yaml:"scoring,omitempty" json:"scoring,omitempty"`

	// Internal fields for tracking
	SourceFile string   `yaml:"-" json:"-"`
	Position   Position `yaml:"-" json:"-"`
}

// Variable is a configurable module parameter. Values are supplied at
// bind time and substituted into templates.
type Variable struct {
	Name        string            `yaml:"name" json:"name"`
	Label       string            `yaml:"label,omitempty" json:"label,omitempty"`
	Description string            `yaml:"description,omitempty" json:"description,omitempty"`
	Type        string            `yaml:"type,omitempty" json:"type,omitempty"` // string | number | boolean | select | slider
	Default     any               `yaml:"default,omitempty" json:"default,omitempty"`
	Options     []*VariableOption `yaml:"options,omitempty" json:"options,omitempty"`
	Min         *float64          `yaml:"min,omitempty" json:"min,omitempty"`
	Max         *float64          `yaml:"max,omitempty" json:"max,omitempty"`
	Step        *float64          `yaml:"step,omitempty" json:"step,omitempty"`

	Position Position `yaml:"-" json:"-"`
}

// VariableOption is a choice for a select variable.
type VariableOption struct {
	Value string `yaml:"value" json:"value"`
	Label string `yaml:"label,omitempty" json:"label,omitempty"`
}

// UnmarshalYAML applies the default variable type.
func (v *Variable) UnmarshalYAML(value *yaml.Node) error {
	type variableAlias Variable
	temp := variableAlias{Type: "string"}
	if err := value.Decode(&temp); err != nil {
		return err
	}

	*v = Variable(temp)
	v.Position = Position{Line: value.Line, Column: value.Column}
	return nil
}

// SandboxLocal is the only sandbox type currently implemented: tools run
// in-process against shared state.
const SandboxLocal = "local"

// Environment describes the sandbox a module runs in: which tools are
// available and the initial mutable state shared with them.
type Environment struct {
	SandboxType  string         `yaml:"sandbox_type,omitempty" json:"sandbox_type,omitempty"`
	Tools        []*ToolRef     `yaml:"tools,omitempty" json:"tools,omitempty"`
	InitialState map[string]any `yaml:"initial_state,omitempty" json:"initial_state,omitempty"`

	Position Position `yaml:"-" json:"-"`
}

// UnmarshalYAML applies the default sandbox type.
func (e *Environment) UnmarshalYAML(value *yaml.Node) error {
	type environmentAlias Environment
	temp := environmentAlias{SandboxType: SandboxLocal}
	if err := value.Decode(&temp); err != nil {
		return err
	}

	*e = Environment(temp)
	e.Position = Position{Line: value.Line, Column: value.Column}
	return nil
}

// ToolRef references a tool instance in a module's environment. Type
// selects the implementation; Name is the in-module handle the agent and
// steps use.
type ToolRef struct {
	Name        string         `yaml:"name" json:"name"`
	Type        string         `yaml:"type" json:"type"`
	Description string         `yaml:"description,omitempty" json:"description,omitempty"`
	Config      map[string]any `yaml:"config,omitempty" json:"config,omitempty"`

	Position Position `yaml:"-" json:"-"`
}

// Step is a single instruction in the module's execution flow.
//
// Actions and their params:
//
//	inject_user: {content}
//	await_user:  {prompt?, timeout?, default?}
//	await_agent: {}
//	branch:      {branch_name}
//	tool_call:   {tool, action, args}
type Step struct {
	ID        string         `yaml:"id" json:"id"`
	Action    string         `yaml:"action" json:"action"`
	Params    map[string]any `yaml:"params,omitempty" json:"params,omitempty"`
	Condition string         `yaml:"condition,omitempty" json:"condition,omitempty"`

	Position Position `yaml:"-" json:"-"`
}

// UnmarshalYAML records the step's source position.
func (s *Step) UnmarshalYAML(value *yaml.Node) error {
	type stepAlias Step
	var temp stepAlias
	if err := value.Decode(&temp); err != nil {
		return err
	}

	*s = Step(temp)
	s.Position = Position{Line: value.Line, Column: value.Column}
	return nil
}

// Check is an evaluation check run against a finished trajectory. The
// meaningful fields depend on Kind; see the evaluator for semantics.
type Check struct {
	Name string `yaml:"name" json:"name"`
	Kind string `yaml:"kind" json:"kind"`

	// Common fields
	Target   string `yaml:"target,omitempty" json:"target,omitempty"`
	Value    any    `yaml:"value,omitempty" json:"value,omitempty"`
	Expected *bool  `yaml:"expected,omitempty" json:"expected,omitempty"`

	// Kind-specific fields
	Pattern       string `yaml:"pattern,omitempty" json:"pattern,omitempty"`             // regex
	CaseSensitive bool   `yaml:"case_sensitive,omitempty" json:"case_sensitive,omitempty"` // contains
	Min           *int   `yaml:"min,omitempty" json:"min,omitempty"`                     // count
	Max           *int   `yaml:"max,omitempty" json:"max,omitempty"`                     // count
	Tool          string `yaml:"tool,omitempty" json:"tool,omitempty"`                   // tool_called
	Action        string `yaml:"action,omitempty" json:"action,omitempty"`               // tool_called
	Key           string `yaml:"key,omitempty" json:"key,omitempty"`                     // env_state
	Expr          string `yaml:"expr,omitempty" json:"expr,omitempty"`                   // deterministic
	PassIf        string `yaml:"pass_if,omitempty" json:"pass_if,omitempty"`             // deterministic

	// Legacy carrier for deterministic/llm checks
	Config map[string]any `yaml:"config,omitempty" json:"config,omitempty"`

	Position Position `yaml:"-" json:"-"`
}

// UnmarshalYAML applies check defaults; expected defaults to true.
func (c *Check) UnmarshalYAML(value *yaml.Node) error {
	type checkAlias Check
	var temp checkAlias
	if err := value.Decode(&temp); err != nil {
		return err
	}

	*c = Check(temp)
	if c.Expected == nil {
		expected := true
		c.Expected = &expected
	}
	c.Position = Position{Line: value.Line, Column: value.Column}
	return nil
}

// Scoring configures how check results compose into the final score.
type Scoring struct {
	// Formula is an expression over check names, e.g.
	// "Profit * 2 + Reputation - CustomersLost * 10". When empty the
	// weighted average of check scores is used.
	Formula string `yaml:"formula,omitempty" json:"formula,omitempty"`

	// Weights maps check names to weights for the weighted average.
	// Default weight is 1.0.
	Weights map[string]float64 `yaml:"weights,omitempty" json:"weights,omitempty"`

	// Normalization settings
	Normalize bool    `yaml:"normalize,omitempty" json:"normalize,omitempty"`
	MinScore  float64 `yaml:"min_score,omitempty" json:"min_score,omitempty"`
	MaxScore  float64 `yaml:"max_score,omitempty" json:"max_score,omitempty"`
}

// UnmarshalYAML applies scoring defaults.
func (s *Scoring) UnmarshalYAML(value *yaml.Node) error {
	type scoringAlias Scoring
	temp := scoringAlias{MaxScore: 100.0}
	if err := value.Decode(&temp); err != nil {
		return err
	}

	*s = Scoring(temp)
	return nil
}

// DefaultScoring returns the scoring config used when a module declares none.
func DefaultScoring() *Scoring {
	return &Scoring{MinScore: 0.0, MaxScore: 100.0}
}

// Conversation roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ToolCall is a tool invocation requested by the assistant. Arguments is
// the raw JSON argument string exactly as the model produced it.
type ToolCall struct {
	ID        string `yaml:"id" json:"id"`
	Name      string `yaml:"name" json:"name"`
	Arguments string `yaml:"arguments" json:"arguments"`
}

// Message is one entry in the conversation history.
type Message struct {
	Role       string     `yaml:"role" json:"role"`
	Content    string     `yaml:"content" json:"content"`
	ToolName   string     `yaml:"tool_name,omitempty" json:"tool_name,omitempty"`
	ToolCallID string     `yaml:"tool_call_id,omitempty" json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `yaml:"tool_calls,omitempty" json:"tool_calls,omitempty"`
}

package agent

import (
	"context"

	"github.com/dojoai/dojo/internal/ast"
)

// Scripted plays back the spec's impl.script entries one per turn and
// then stops. Tests, bench baselines and offline demos use it to get
// fully reproducible runs.
type Scripted struct {
	spec  *Spec
	index int
}

func newScripted(spec *Spec) *Scripted {
	return &Scripted{spec: spec}
}

func (a *Scripted) ID() string { return a.spec.ID }

func (a *Scripted) Step(_ context.Context, _ []ast.Message, _ []PublishedTool) (Action, error) {
	script := a.spec.Impl.Script
	if a.index >= len(script) {
		return Action{Type: ActionStop}, nil
	}
	action := script[a.index]
	a.index++
	if action.Type == "" {
		action.Type = ActionMessage
	}
	return action, nil
}

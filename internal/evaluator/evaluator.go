// Package evaluator scores finished module runs. It walks the module's
// evaluation checks over the recorded history, events, and final
// environment state, then composes the per-check results into a single
// score using the module's scoring config.
package evaluator

import (
	"math"

	"github.com/rs/zerolog/log"

	"github.com/dojoai/dojo/internal/ast"
	"github.com/dojoai/dojo/internal/expression"
	"github.com/dojoai/dojo/pkg/events"
)

// Run is the read-only view of a finished execution handed to Evaluate.
// EnvState is the final state after all tool invocations; the evaluator
// never mutates it.
type Run struct {
	History  []ast.Message
	Events   []events.Event
	EnvState map[string]interface{}
}

// Result aggregates the outcome of every evaluation check. Checks maps
// check names to their result records; see checks.go for the per-kind
// record shapes.
type Result struct {
	Checks    map[string]interface{} `json:"checks"`
	Score     float64                `json:"score"`
	NumEvents int                    `json:"num_events"`
	Status    string                 `json:"status"`
}

// Evaluator runs module evaluation checks. Safe for reuse across runs.
type Evaluator struct {
	exprs *expression.ExpressionEvaluator
}

// New creates an evaluator.
func New() *Evaluator {
	return &Evaluator{exprs: expression.NewExpressionEvaluator()}
}

// Evaluate runs every check in the module against the finished run and
// composes the final score. A check that cannot be computed records
// {status: "error"} and contributes nothing; the remaining checks still
// run, so evaluation itself never fails.
func (ev *Evaluator) Evaluate(m *ast.Module, run Run) Result {
	checks := make(map[string]interface{}, len(m.Evaluation))
	for _, check := range m.Evaluation {
		checks[check.Name] = ev.evalCheck(check, run)
	}

	scoring := m.Scoring
	if scoring == nil {
		scoring = ast.DefaultScoring()
	}

	return Result{
		Checks:    checks,
		Score:     ev.composeScore(m, scoring, checks, run.EnvState),
		NumEvents: len(run.Events),
		Status:    "ok",
	}
}

func (ev *Evaluator) evalCheck(check *ast.Check, run Run) (record interface{}) {
	defer func() {
		if r := recover(); r != nil {
			log.Debug().Str("check", check.Name).Interface("panic", r).Msg("evaluation check panicked")
			record = errorRecordf("check panicked: %v", r)
		}
	}()

	switch check.Kind {
	case ast.CheckContains:
		return evalContains(check, run)
	case ast.CheckRegex:
		return evalRegex(check, run)
	case ast.CheckCount:
		return evalCount(check, run)
	case ast.CheckToolCalled:
		return evalToolCalled(check, run)
	case ast.CheckEquals:
		return evalEquals(check, run)
	case ast.CheckEnvState:
		return evalEnvState(check, run)
	case ast.CheckDeterministic:
		return ev.evalDeterministic(check, run)
	case ast.CheckLLM:
		return skippedRecord("LLM eval not implemented")
	default:
		return errorRecordf("unknown check kind %q", check.Kind)
	}
}

// composeScore builds the numeric vector from the check records and
// applies the scoring config: formula when present, weighted average
// otherwise, then optional normalization into [0, 1].
func (ev *Evaluator) composeScore(m *ast.Module, scoring *ast.Scoring, checks map[string]interface{}, envState map[string]interface{}) float64 {
	vector := make(map[string]float64, len(checks))
	for _, check := range m.Evaluation {
		if n, ok := numericScore(checks[check.Name]); ok {
			vector[check.Name] = n
		}
	}

	score, ok := ev.formulaScore(scoring, vector, envState)
	if !ok {
		score = weightedAverage(m.Evaluation, vector, scoring.Weights)
	}

	if scoring.Normalize && scoring.MaxScore != scoring.MinScore {
		score = (score - scoring.MinScore) / (scoring.MaxScore - scoring.MinScore)
		score = math.Min(1.0, math.Max(0.0, score))
	}
	return score
}

// formulaScore evaluates scoring.formula with check names bound to
// their numeric scores and env_state available for direct reads. Any
// failure falls back to the weighted average rather than erroring the
// whole evaluation.
func (ev *Evaluator) formulaScore(scoring *ast.Scoring, vector map[string]float64, envState map[string]interface{}) (float64, bool) {
	if scoring.Formula == "" {
		return 0, false
	}

	vars := make(map[string]any, len(vector)+1)
	for name, n := range vector {
		vars[name] = n
	}
	vars["env_state"] = envState

	result, err := ev.exprs.Evaluate(scoring.Formula, vars)
	if err != nil {
		log.Debug().Str("formula", scoring.Formula).Err(err).Msg("scoring formula failed, using weighted average")
		return 0, false
	}
	if b, ok := result.(bool); ok {
		if b {
			return 1.0, true
		}
		return 0.0, true
	}
	f, ok := asFloat(result)
	if !ok {
		log.Debug().Str("formula", scoring.Formula).Msg("scoring formula returned a non-numeric value, using weighted average")
		return 0, false
	}
	return f, true
}

// weightedAverage computes sum(w*n)/sum(w) over the checks that
// produced a numeric score. Checks absent from the vector (skipped or
// errored) contribute to neither side. An empty vector scores 0.0.
func weightedAverage(order []*ast.Check, vector map[string]float64, weights map[string]float64) float64 {
	var sum, weightSum float64
	for _, check := range order {
		n, ok := vector[check.Name]
		if !ok {
			continue
		}
		weight := 1.0
		if w, ok := weights[check.Name]; ok {
			weight = w
		}
		sum += weight * n
		weightSum += weight
	}
	if weightSum == 0 {
		return 0.0
	}
	return sum / weightSum
}

// numericScore turns one check record into its score-vector entry.
// Records with passed score 1.0 or 0.0, records with only a value use
// that value, raw numeric or boolean results (legacy deterministic
// checks) convert directly, and anything else is excluded.
func numericScore(record interface{}) (float64, bool) {
	switch v := record.(type) {
	case bool:
		if v {
			return 1.0, true
		}
		return 0.0, true
	case map[string]interface{}:
		if passed, ok := v["passed"].(bool); ok {
			if passed {
				return 1.0, true
			}
			return 0.0, true
		}
		if raw, ok := v["value"]; ok {
			if f, ok := asFloat(raw); ok {
				return f, true
			}
		}
		return 0, false
	default:
		return asFloat(record)
	}
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	}
	return 0, false
}

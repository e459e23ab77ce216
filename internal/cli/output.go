package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/sergi/go-diff/diffmatchpatch"
	"gopkg.in/yaml.v3"

	"github.com/dojoai/dojo/internal/ast"
	"github.com/dojoai/dojo/internal/evaluator"
	"github.com/dojoai/dojo/internal/parser"
	"github.com/dojoai/dojo/internal/style"
	"github.com/dojoai/dojo/pkg/events"
)

// printTable outputs data in a human-readable table format
func printTable(w io.Writer, headers []string, rows [][]string) {
	if len(rows) == 0 {
		return
	}

	// Calculate column widths
	widths := make([]int, len(headers))
	for i, header := range headers {
		widths[i] = len(header)
	}

	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	// Print header
	for i, header := range headers {
		fmt.Fprintf(w, "%-*s  ", widths[i], header)
	}
	fmt.Fprintln(w)

	// Print separator
	for i := range headers {
		for j := 0; j < widths[i]; j++ {
			fmt.Fprint(w, "-")
		}
		fmt.Fprint(w, "  ")
	}
	fmt.Fprintln(w)

	// Print rows
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) {
				fmt.Fprintf(w, "%-*s  ", widths[i], cell)
			}
		}
		fmt.Fprintln(w)
	}
}

// renderTranscript writes the event stream as a labelled conversation.
// Terminal events are skipped; the evaluation renderer owns those.
func renderTranscript(w io.Writer, evs []events.Event) {
	for _, e := range evs {
		switch e.Type {
		case events.TypeUser:
			fmt.Fprintf(w, "%s %s\n", style.UserLabelStyle.Render("user:"), e.Content())
		case events.TypeAgent:
			fmt.Fprintf(w, "%s %s\n", style.AgentLabelStyle.Render("agent:"), e.Content())
		case events.TypeAgentStop:
			fmt.Fprintf(w, "%s\n", style.MutedStyle.Render("agent ended its turn"))
		case events.TypeToolCall:
			args, _ := json.Marshal(e.Payload["args"])
			label := fmt.Sprintf("%s.%s", payloadString(e, "tool"), payloadString(e, "action"))
			fmt.Fprintf(w, "%s %s(%s)\n", style.ToolLabelStyle.Render("tool:"), label, args)
		case events.TypeToolResult:
			result, _ := e.Payload["result"].(map[string]any)
			success, _ := result["success"].(bool)
			if success {
				data, _ := json.Marshal(result["data"])
				fmt.Fprintf(w, "%s %s %s\n", style.ToolLabelStyle.Render("tool:"), style.SuccessIcon(), data)
			} else {
				errMsg, _ := result["error"].(string)
				fmt.Fprintf(w, "%s %s %s\n", style.ToolLabelStyle.Render("tool:"), style.ErrorIcon(), errMsg)
			}
		case events.TypeBranch:
			fmt.Fprintf(w, "%s\n", style.BranchStyle.Render(fmt.Sprintf("-> branch %q", payloadString(e, "branch"))))
		case events.TypeAwaitingInput:
			fmt.Fprintf(w, "%s %s\n", style.PromptStyle.Render("awaiting input:"), payloadString(e, "prompt"))
		}
	}
}

// renderEvaluation writes the check table and final score. Failed checks
// whose record carries the observed value get an expected/actual diff so
// near misses are readable at a glance.
func renderEvaluation(w io.Writer, m *ast.Module, result evaluator.Result) {
	fmt.Fprintf(w, "\n%s\n", style.TitleStyle.Render("Evaluation"))

	for _, check := range m.Evaluation {
		record, ok := result.Checks[check.Name]
		if !ok {
			continue
		}
		fmt.Fprintf(w, "  %s\n", style.RenderCheck(check.Name, checkOutcome(record)))

		if diff := checkDiff(check, record); diff != "" {
			fmt.Fprintf(w, "    %s\n", diff)
		}
	}

	fmt.Fprintf(w, "\n%s  %s\n", style.RenderScore(result.Score),
		style.DurationStyle.Render(fmt.Sprintf("(%d events, status %s)", result.NumEvents, result.Status)))
}

// checkOutcome reduces a check record to the value RenderCheck displays:
// the pass flag when present, a status marker for skips and errors, and
// the raw value otherwise.
func checkOutcome(record interface{}) interface{} {
	m, ok := record.(map[string]interface{})
	if !ok {
		return record
	}
	if passed, ok := m["passed"].(bool); ok {
		return passed
	}
	if status, ok := m["status"].(string); ok {
		if reason, ok := m["reason"].(string); ok {
			return fmt.Sprintf("%s (%s)", status, reason)
		}
		if errMsg, ok := m["error"].(string); ok {
			return fmt.Sprintf("%s: %s", status, errMsg)
		}
		return status
	}
	return record
}

// checkDiff renders an expected/actual diff for a failed check whose
// record captured the observed value. Only checks with a declared value
// produce one.
func checkDiff(check *ast.Check, record interface{}) string {
	m, ok := record.(map[string]interface{})
	if !ok {
		return ""
	}
	passed, ok := m["passed"].(bool)
	if !ok || passed {
		return ""
	}
	actual, ok := m["actual"]
	if !ok || check.Value == nil {
		return ""
	}

	expected := fmt.Sprintf("%v", check.Value)
	got := fmt.Sprintf("%v", actual)
	if expected == got {
		return ""
	}

	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(expected, got, false)
	dmp.DiffCleanupSemantic(diffs)
	return fmt.Sprintf("expected %s, got %s: %s",
		style.CheckPassStyle.Render(expected), style.CheckFailStyle.Render(got), dmp.DiffPrettyText(diffs))
}

// renderIssues writes parse and validation findings with their source
// context, one block per finding.
func renderIssues(w io.Writer, issues []*parser.EnhancedError) {
	for i, issue := range issues {
		if i > 0 {
			fmt.Fprintln(w)
		}
		renderIssue(w, issue)
	}
}

func renderIssue(w io.Writer, issue *parser.EnhancedError) {
	icon := style.GetSeverityIcon(string(issue.Severity))
	title := style.GetSeverityStyle(string(issue.Severity)).Render(issue.Title)

	if issue.Position.File != "" {
		fmt.Fprintf(w, "%s %s %s %s\n", icon, title,
			style.FormatFilePath(issue.Position.File), style.FormatPosition(issue.Position.Line))
	} else {
		fmt.Fprintf(w, "%s %s %s\n", icon, title, style.FormatPosition(issue.Position.Line))
	}

	if issue.Message != "" && issue.Message != issue.Title {
		fmt.Fprintf(w, "  %s\n", style.MessageStyle.Render(issue.Message))
	}

	if ctx := issue.Context; ctx != nil && len(ctx.Lines) > 0 {
		fmt.Fprintln(w)
		for _, line := range ctx.Lines {
			fmt.Fprintln(w, style.RenderCodeLine(line.Number, line.Content, line.IsError))
			if line.IsError && ctx.Highlight.StartColumn > 0 {
				fmt.Fprintln(w, style.RenderHighlightIndicator(ctx.Highlight.StartColumn, ctx.Highlight.Length))
			}
		}
	}

	if s := issue.Suggestion; s != nil {
		fmt.Fprintln(w, style.RenderSuggestion(s.Title, s.Description, s.Examples, s.DocsURL))
	}
}

func payloadString(e events.Event, key string) string {
	s, _ := e.Payload[key].(string)
	return s
}

// yamlMarshal encodes data as YAML with two-space indentation.
func yamlMarshal(data interface{}) ([]byte, error) {
	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(data); err != nil {
		return nil, err
	}
	if err := encoder.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func formatDuration(duration time.Duration) string {
	return fmt.Sprintf("%.2fs", duration.Seconds())
}

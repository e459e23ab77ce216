package cli

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dojoai/dojo/internal/ast"
	"github.com/dojoai/dojo/internal/execcontext"
	"github.com/dojoai/dojo/internal/style"
)

// infoCmd represents the info command
var infoCmd = &cobra.Command{
	Use:   "info [module.yaml]",
	Short: "Show module structure without running it",
	Long: `Parse and validate a module, then print its variables, script
steps, branches, environment tools, and evaluation checks.

Examples:
  dojo info refund.yaml
  dojo info refund.yaml --output json`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runCtx := execcontext.RunContext{
			Context: cmd.Context(),
			StdOut:  cmd.OutOrStdout(),
			StdErr:  cmd.OutOrStderr(),
		}

		if err := showInfo(runCtx, args[0]); err != nil {
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

func showInfo(runCtx execcontext.RunContext, moduleFile string) error {
	module, err := loadModule(runCtx, moduleFile)
	if err != nil {
		return err
	}

	switch viper.GetString("output") {
	case "json":
		style.PrintJSON(runCtx.StdOut, module)
	case "yaml":
		style.PrintYAML(runCtx.StdOut, module)
	default:
		printModuleInfo(runCtx, module)
	}

	return nil
}

func printModuleInfo(runCtx execcontext.RunContext, m *ast.Module) {
	var b strings.Builder

	fmt.Fprintf(&b, "%s\n", style.TitleStyle.Render(m.ID))
	if m.Description != "" {
		fmt.Fprintf(&b, "%s\n", style.MessageStyle.Render(strings.TrimSpace(m.Description)))
	}
	fmt.Fprintf(runCtx.StdOut, "%s\n", style.InfoBoxStyle.Render(strings.TrimRight(b.String(), "\n")))

	if len(m.Variables) > 0 {
		fmt.Fprintf(runCtx.StdOut, "\n%s\n", style.TitleStyle.Render("Variables"))
		headers := []string{"Name", "Type", "Default"}
		rows := make([][]string, len(m.Variables))
		for i, v := range m.Variables {
			rows[i] = []string{v.Name, emptyDash(v.Type), fmt.Sprintf("%v", v.Default)}
		}
		printTable(runCtx.StdOut, headers, rows)
	}

	fmt.Fprintf(runCtx.StdOut, "\n%s\n", style.TitleStyle.Render(fmt.Sprintf("Script (%d steps)", len(m.Steps))))
	for _, step := range m.Steps {
		line := fmt.Sprintf("  %s %s", style.AccentStyle.Render(step.ID), step.Action)
		if step.Condition != "" {
			line += style.MutedStyle.Render(fmt.Sprintf(" if %s", step.Condition))
		}
		fmt.Fprintf(runCtx.StdOut, "%s\n", line)
	}

	if len(m.Branches) > 0 {
		fmt.Fprintf(runCtx.StdOut, "\n%s\n", style.TitleStyle.Render("Branches"))
		for _, name := range sortedBranchNames(m.Branches) {
			fmt.Fprintf(runCtx.StdOut, "  %s %s\n",
				style.BranchStyle.Render(name),
				style.MutedStyle.Render(fmt.Sprintf("(%d steps)", len(m.Branches[name]))))
		}
	}

	if m.Environment != nil && len(m.Environment.Tools) > 0 {
		fmt.Fprintf(runCtx.StdOut, "\n%s\n", style.TitleStyle.Render("Environment tools"))
		headers := []string{"Name", "Type", "Description"}
		rows := make([][]string, len(m.Environment.Tools))
		for i, ref := range m.Environment.Tools {
			rows[i] = []string{ref.Name, ref.Type, emptyDash(ref.Description)}
		}
		printTable(runCtx.StdOut, headers, rows)
	}

	if len(m.Evaluation) > 0 {
		fmt.Fprintf(runCtx.StdOut, "\n%s\n", style.TitleStyle.Render("Evaluation checks"))
		headers := []string{"Name", "Kind", "Target"}
		rows := make([][]string, len(m.Evaluation))
		for i, check := range m.Evaluation {
			rows[i] = []string{check.Name, check.Kind, emptyDash(check.Target)}
		}
		printTable(runCtx.StdOut, headers, rows)
	}

	if m.Scoring != nil && m.Scoring.Formula != "" {
		fmt.Fprintf(runCtx.StdOut, "\n%s %s\n", style.TitleStyle.Render("Scoring"), style.CodeStyle.Render(m.Scoring.Formula))
	}
}

func sortedBranchNames(branches map[string][]*ast.Step) []string {
	names := make([]string, 0, len(branches))
	for name := range branches {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

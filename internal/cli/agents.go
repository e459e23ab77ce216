package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dojoai/dojo/internal/agent"
	"github.com/dojoai/dojo/internal/execcontext"
	"github.com/dojoai/dojo/internal/style"
)

// agentsCmd represents the agents command
var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List available agents",
	Long: `List the agent specs found on the search path.

Specs are loaded from examples/agents, ~/.dojo/agents, and any
directories passed via --agent-dir. Later directories shadow earlier
ones when IDs collide.

Examples:
  dojo agents
  dojo agents --agent-dir ./my-agents
  dojo agents --output json`,
	Run: func(cmd *cobra.Command, args []string) {
		runCtx := execcontext.RunContext{
			Context: cmd.Context(),
			StdOut:  cmd.OutOrStdout(),
			StdErr:  cmd.OutOrStderr(),
		}

		listAgents(runCtx)
	},
}

var agentsDirs []string

func init() {
	rootCmd.AddCommand(agentsCmd)

	agentsCmd.Flags().StringSliceVar(&agentsDirs, "agent-dir", nil, "additional directories to search for agent specs")
}

func listAgents(runCtx execcontext.RunContext) {
	dirs := append(agent.DefaultDirs(), agentsDirs...)
	loader, err := agent.LoadSpecs(dirs...)
	if err != nil {
		style.Error(runCtx.StdErr, fmt.Sprintf("Failed to load agent specs: %v", err))
		return
	}

	specs := loader.Specs()

	switch viper.GetString("output") {
	case "json":
		style.PrintJSON(runCtx.StdOut, specs)
	case "yaml":
		style.PrintYAML(runCtx.StdOut, specs)
	default:
		if len(specs) == 0 {
			style.Warning(runCtx.StdOut, fmt.Sprintf("No agent specs found in %s", strings.Join(dirs, ", ")))
			return
		}

		headers := []string{"ID", "Kind", "Model", "Name"}
		rows := make([][]string, len(specs))
		for i, spec := range specs {
			kind := spec.Kind
			if kind == "" {
				kind = agent.KindLLMPrompt
			}
			rows[i] = []string{spec.ID, kind, emptyDash(spec.Model), emptyDash(spec.Name)}
		}
		printTable(runCtx.StdOut, headers, rows)

		if def, err := loader.DefaultSpec(); err == nil && def != nil {
			fmt.Fprintf(runCtx.StdOut, "\n%s\n", style.MutedStyle.Render("default: "+def.ID))
		}
	}
}

func emptyDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

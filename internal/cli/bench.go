package cli

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dojoai/dojo/internal/agent"
	"github.com/dojoai/dojo/internal/ast"
	"github.com/dojoai/dojo/internal/binder"
	"github.com/dojoai/dojo/internal/engine"
	"github.com/dojoai/dojo/internal/execcontext"
	"github.com/dojoai/dojo/internal/provider"
	"github.com/dojoai/dojo/internal/style"
	"github.com/dojoai/dojo/internal/tools"
)

// benchCmd represents the bench command
var benchCmd = &cobra.Command{
	Use:   "bench [module.yaml]",
	Short: "Benchmark agents against a module",
	Long: `Run a module repeatedly for one or more agents and report
per-run scores alongside an aggregate summary.

Each run executes the full module, including evaluation, with a fresh
environment. When --seed is set, builtin tools derive their randomness
from seed+run so paired runs stay comparable across agents.

Examples:
  dojo bench refund.yaml                               # Default agent, 3 runs
  dojo bench refund.yaml --agents gpt4,claude --runs 10
  dojo bench refund.yaml --seed 42 --out results.csv   # Deterministic, CSV export
  dojo bench refund.yaml -v region=eu -n 5`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runCtx := execcontext.RunContext{
			Context: cmd.Context(),
			StdOut:  cmd.OutOrStdout(),
			StdErr:  cmd.OutOrStderr(),
		}

		if err := runBenchmark(runCtx, args[0]); err != nil {
			os.Exit(1)
		}
	},
}

var (
	benchAgents    []string
	benchRuns      int
	benchVars      []string
	benchSeed      int64
	benchAgentDirs []string
	benchToolDirs  []string
	benchOut       string
	benchTimeout   time.Duration
)

func init() {
	rootCmd.AddCommand(benchCmd)

	benchCmd.Flags().StringSliceVar(&benchAgents, "agents", nil, "agent IDs to benchmark (default: the default agent)")
	benchCmd.Flags().IntVarP(&benchRuns, "runs", "n", 3, "number of runs per agent")
	benchCmd.Flags().StringArrayVarP(&benchVars, "var", "v", nil, "variable override (key=value, values parsed as JSON)")
	benchCmd.Flags().Int64Var(&benchSeed, "seed", 0, "base seed for builtin tool randomness (0 leaves tools unseeded)")
	benchCmd.Flags().StringSliceVar(&benchAgentDirs, "agent-dir", nil, "additional directories to search for agent specs")
	benchCmd.Flags().StringSliceVar(&benchToolDirs, "tool-dir", nil, "additional directories to search for tool specs")
	benchCmd.Flags().StringVar(&benchOut, "out", "", "write per-run results to a CSV file")
	benchCmd.Flags().DurationVar(&benchTimeout, "timeout", 10*time.Minute, "timeout per run")
}

// benchRow holds one run's results. Cells carries the flattened
// check_* and final_* columns whose set varies by module.
type benchRow struct {
	Agent     string
	Run       int
	Score     float64
	NumEvents int
	Status    string
	Duration  time.Duration
	Cells     map[string]string
}

func runBenchmark(runCtx execcontext.RunContext, moduleFile string) error {
	vars, err := collectVariables(benchVars)
	if err != nil {
		style.Error(runCtx.StdErr, err.Error())
		return err
	}

	module, err := loadModule(runCtx, moduleFile)
	if err != nil {
		return err
	}

	registry, err := engine.DefaultToolRegistry(append(tools.DefaultCatalogDirs(), benchToolDirs...)...)
	if err != nil {
		style.Error(runCtx.StdErr, fmt.Sprintf("Failed to load tool catalog: %v", err))
		return err
	}

	loader, err := agent.LoadSpecs(append(agent.DefaultDirs(), benchAgentDirs...)...)
	if err != nil {
		style.Error(runCtx.StdErr, fmt.Sprintf("Failed to load agent specs: %v", err))
		return err
	}

	agents := benchAgents
	if len(agents) == 0 {
		agents = []string{""}
	}

	providers := defaultProviders()
	pretty := !viper.GetBool("quiet") && viper.GetString("output") == "pretty"

	if pretty {
		fmt.Fprintf(runCtx.StdOut, "\nBenchmarking %s (%d agent(s) x %d run(s))\n\n",
			style.AccentStyle.Render(module.ID), len(agents), benchRuns)
	}

	rows := make([]benchRow, 0, len(agents)*benchRuns)
	for _, agentID := range agents {
		for run := 1; run <= benchRuns; run++ {
			row := benchSingleRun(runCtx, module, vars, loader, registry, providers, agentID, run)
			rows = append(rows, row)

			if pretty {
				printBenchRun(runCtx, row)
			}
		}
	}

	switch viper.GetString("output") {
	case "json":
		style.PrintJSON(runCtx.StdOut, benchReport(module.ID, rows))
	case "yaml":
		style.PrintYAML(runCtx.StdOut, benchReport(module.ID, rows))
	default:
		if !viper.GetBool("quiet") {
			printBenchSummary(runCtx, rows)
		}
	}

	if benchOut != "" {
		if err := writeBenchCSV(benchOut, module.ID, rows); err != nil {
			style.Error(runCtx.StdErr, fmt.Sprintf("Failed to write %s: %v", benchOut, err))
			return err
		}
		if pretty {
			style.Success(runCtx.StdOut, fmt.Sprintf("Results written to %s", benchOut))
		}
	}

	return nil
}

// benchSingleRun executes one run. Runner errors become an error row
// rather than aborting the benchmark, so one flaky run still leaves a
// usable result set.
func benchSingleRun(runCtx execcontext.RunContext, module *ast.Module, vars map[string]any, loader *agent.Loader, registry *tools.Registry, providers *provider.Registry, agentID string, run int) benchRow {
	bound := binder.New().Bind(module, vars)
	if benchSeed != 0 {
		seedTools(bound, benchSeed+int64(run-1))
	}

	row := benchRow{Agent: agentID, Run: run, Status: "error", Cells: map[string]string{}}

	ag, err := loader.ForModule(agentID, bound, providers)
	if err != nil {
		style.Error(runCtx.StdErr, fmt.Sprintf("Failed to build agent %q: %v", agentID, err))
		return row
	}
	row.Agent = ag.ID()

	runner, err := engine.NewRunner(bound, ag, registry)
	if err != nil {
		style.Error(runCtx.StdErr, fmt.Sprintf("Failed to build runner: %v", err))
		return row
	}

	ctx := runCtx.Context
	if benchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, benchTimeout)
		defer cancel()
	}

	start := time.Now()
	result, err := runner.Run(ctx)
	row.Duration = time.Since(start)

	if err != nil {
		log.Error().Err(err).Str("agent", row.Agent).Int("run", run).Msg("Benchmark run failed")
		return row
	}

	row.Score = result.Evaluation.Score
	row.NumEvents = result.Evaluation.NumEvents
	row.Status = result.Evaluation.Status
	for name, record := range result.Evaluation.Checks {
		flattenCheck(row.Cells, "check_"+name, record)
	}
	for key, value := range runner.EnvState() {
		switch value.(type) {
		case map[string]interface{}, []interface{}:
		default:
			row.Cells["final_"+key] = fmt.Sprintf("%v", value)
		}
	}

	return row
}

func seedTools(m *ast.Module, seed int64) {
	if m.Environment == nil {
		return
	}
	for _, ref := range m.Environment.Tools {
		if ref.Config == nil {
			ref.Config = make(map[string]any)
		}
		ref.Config["seed"] = seed
	}
}

// flattenCheck turns one check record into CSV cells. Passed records
// become 1/0 under the bare column name; count, value, and actual
// fields get suffixed columns of their own.
func flattenCheck(cells map[string]string, column string, record interface{}) {
	m, ok := record.(map[string]interface{})
	if !ok {
		cells[column] = fmt.Sprintf("%v", record)
		return
	}

	if passed, ok := m["passed"].(bool); ok {
		if passed {
			cells[column] = "1"
		} else {
			cells[column] = "0"
		}
	} else if status, ok := m["status"].(string); ok {
		cells[column] = status
	}

	for _, key := range []string{"count", "value", "actual"} {
		if v, exists := m[key]; exists {
			cells[column+"_"+key] = fmt.Sprintf("%v", v)
		}
	}
}

func benchColumns(rows []benchRow) []string {
	seen := make(map[string]bool)
	for _, row := range rows {
		for key := range row.Cells {
			seen[key] = true
		}
	}
	columns := make([]string, 0, len(seen))
	for key := range seen {
		columns = append(columns, key)
	}
	sort.Strings(columns)
	return columns
}

func writeBenchCSV(path, moduleID string, rows []benchRow) error {
	columns := benchColumns(rows)

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	w := csv.NewWriter(f)
	header := append([]string{"module", "agent", "run", "score", "num_events", "status", "duration_ms"}, columns...)
	if err := w.Write(header); err != nil {
		return err
	}

	for _, row := range rows {
		record := []string{
			moduleID,
			row.Agent,
			strconv.Itoa(row.Run),
			strconv.FormatFloat(row.Score, 'f', 4, 64),
			strconv.Itoa(row.NumEvents),
			row.Status,
			strconv.FormatInt(row.Duration.Milliseconds(), 10),
		}
		for _, column := range columns {
			record = append(record, row.Cells[column])
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}

// benchReport reshapes rows for json/yaml output.
func benchReport(moduleID string, rows []benchRow) map[string]interface{} {
	runs := make([]map[string]interface{}, len(rows))
	for i, row := range rows {
		entry := map[string]interface{}{
			"agent":       row.Agent,
			"run":         row.Run,
			"score":       row.Score,
			"num_events":  row.NumEvents,
			"status":      row.Status,
			"duration_ms": row.Duration.Milliseconds(),
		}
		for key, value := range row.Cells {
			entry[key] = value
		}
		runs[i] = entry
	}
	return map[string]interface{}{
		"module": moduleID,
		"runs":   runs,
	}
}

func printBenchRun(runCtx execcontext.RunContext, row benchRow) {
	scoreText := style.ScoreStyle.Render(fmt.Sprintf("%.2f", row.Score))
	if row.Status != "completed" {
		scoreText = style.CheckFailStyle.Render(row.Status)
	}
	fmt.Fprintf(runCtx.StdOut, "  %s run %d: %s %s\n",
		style.InfoStyle.Render(row.Agent),
		row.Run,
		scoreText,
		style.DurationStyle.Render(fmt.Sprintf("(%d events, %s)", row.NumEvents, formatDuration(row.Duration))),
	)
}

// printBenchSummary aggregates rows per agent and highlights the best
// and worst mean scores when more than one agent ran.
func printBenchSummary(runCtx execcontext.RunContext, rows []benchRow) {
	type aggregate struct {
		agent    string
		runs     int
		errors   int
		sum      float64
		min      float64
		max      float64
		duration time.Duration
	}

	order := []string{}
	byAgent := map[string]*aggregate{}
	for _, row := range rows {
		agg, ok := byAgent[row.Agent]
		if !ok {
			agg = &aggregate{agent: row.Agent, min: row.Score, max: row.Score}
			byAgent[row.Agent] = agg
			order = append(order, row.Agent)
		}
		agg.runs++
		agg.sum += row.Score
		agg.duration += row.Duration
		if row.Score < agg.min {
			agg.min = row.Score
		}
		if row.Score > agg.max {
			agg.max = row.Score
		}
		if row.Status != "completed" {
			agg.errors++
		}
	}

	best, worst := "", ""
	bestMean, worstMean := -1.0, 2.0
	for _, name := range order {
		agg := byAgent[name]
		mean := agg.sum / float64(agg.runs)
		if mean > bestMean {
			bestMean, best = mean, name
		}
		if mean < worstMean {
			worstMean, worst = mean, name
		}
	}

	headers := []string{"Agent", "Runs", "Mean", "Min", "Max", "Mean Duration", "Errors"}
	tableRows := make([][]string, 0, len(order))
	for _, name := range order {
		agg := byAgent[name]
		mean := fmt.Sprintf("%.3f", agg.sum/float64(agg.runs))
		if len(order) > 1 && name == best {
			mean = style.CheckPassStyle.Render(mean)
		} else if len(order) > 1 && name == worst {
			mean = style.CheckFailStyle.Render(mean)
		}
		tableRows = append(tableRows, []string{
			agg.agent,
			strconv.Itoa(agg.runs),
			mean,
			fmt.Sprintf("%.3f", agg.min),
			fmt.Sprintf("%.3f", agg.max),
			formatDuration(agg.duration / time.Duration(agg.runs)),
			strconv.Itoa(agg.errors),
		})
	}

	fmt.Fprintf(runCtx.StdOut, "\n")
	printTable(runCtx.StdOut, headers, tableRows)
}

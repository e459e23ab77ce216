package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dojoai/dojo/internal/agent"
	"github.com/dojoai/dojo/internal/ast"
	"github.com/dojoai/dojo/internal/binder"
	"github.com/dojoai/dojo/internal/engine"
	"github.com/dojoai/dojo/internal/execcontext"
	"github.com/dojoai/dojo/internal/parser"
	"github.com/dojoai/dojo/internal/style"
	"github.com/dojoai/dojo/internal/tools"
	"github.com/dojoai/dojo/pkg/events"
)

// variablesEnv is the environment variable read for variable overrides,
// a JSON object merged below --var flags.
const variablesEnv = "DOJO_VARIABLES"

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run [module.yaml]",
	Short: "Run a module against an agent",
	Long: `Run a module to completion against one agent and print the scored result.

This command:
- Parses and validates the module syntax
- Binds variable overrides into the module
- Drives the scripted steps, calling the agent where the module awaits it
- Streams the transcript live, then prints the evaluation summary

Examples:
  dojo run refund.yaml                          # Run with the default agent
  dojo run refund.yaml --agent demo/scripted    # Pick an agent spec by id
  dojo run refund.yaml --var refund_amount=50   # Override a module variable
  dojo run refund.yaml --output json            # JSON result for automation
  dojo run refund.yaml --out result.json        # Also write the result to a file`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

		go func() {
			<-sigChan
			log.Info().Msg("Received interrupt signal, shutting down gracefully...")
			cancel()
		}()

		if runTimeout > 0 {
			ctx, cancel = context.WithTimeout(ctx, runTimeout)
			defer cancel()
		}

		runCtx := execcontext.RunContext{
			Context: ctx,
			StdOut:  cmd.OutOrStdout(),
			StdErr:  cmd.OutOrStderr(),
		}

		if err := runModule(runCtx, args[0]); err != nil {
			os.Exit(1)
		}
	},
}

var (
	// Agent selection
	runAgent     string
	runAgentDirs []string
	runToolDirs  []string

	// Variable overrides
	runVars []string

	// Execution options
	runOutFile string
	runTimeout time.Duration
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runAgent, "agent", "a", "", "agent spec id (default: first core agent found)")
	runCmd.Flags().StringSliceVar(&runAgentDirs, "agent-dir", nil, "additional agent spec directories")
	runCmd.Flags().StringSliceVar(&runToolDirs, "tool-dir", nil, "additional tool spec directories")

	runCmd.Flags().StringArrayVarP(&runVars, "var", "v", nil, "variable override (key=value, values parsed as JSON)")

	runCmd.Flags().StringVar(&runOutFile, "out", "", "write the run result to a file (.json, .yaml, or plain transcript)")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 30*time.Minute, "overall execution timeout")
}

func runModule(runCtx execcontext.RunContext, moduleFile string) error {
	start := time.Now()

	vars, err := collectVariables(runVars)
	if err != nil {
		style.Error(runCtx.StdErr, err.Error())
		return err
	}

	module, err := loadModule(runCtx, moduleFile)
	if err != nil {
		return err
	}
	log.Info().
		Str("module", module.ID).
		Int("steps", len(module.Steps)).
		Msg("Module loaded and validated")

	bound := binder.New().Bind(module, vars)

	registry, err := engine.DefaultToolRegistry(append(tools.DefaultCatalogDirs(), runToolDirs...)...)
	if err != nil {
		style.Error(runCtx.StdErr, fmt.Sprintf("Failed to build tool registry: %v", err))
		return err
	}

	loader, err := agent.LoadSpecs(append(agent.DefaultDirs(), runAgentDirs...)...)
	if err != nil {
		style.Error(runCtx.StdErr, fmt.Sprintf("Failed to load agent specs: %v", err))
		return err
	}
	ag, err := loader.ForModule(runAgent, bound, defaultProviders())
	if err != nil {
		style.Error(runCtx.StdErr, fmt.Sprintf("Failed to construct agent: %v", err))
		return err
	}

	var options []engine.RunnerOption
	streaming := !viper.GetBool("quiet") && viper.GetString("output") == "pretty"
	if streaming {
		fmt.Fprintf(runCtx.StdOut, "\nRunning %s with %s\n\n",
			style.AccentStyle.Render(bound.ID), style.InfoStyle.Render(ag.ID()))
		options = append(options, engine.WithListener(newProgressTracker(runCtx.StdOut)))
	}

	runner, err := engine.NewRunner(bound, ag, registry, options...)
	if err != nil {
		style.Error(runCtx.StdErr, fmt.Sprintf("Failed to create runner: %v", err))
		return err
	}

	result, err := runner.Run(runCtx.Context)
	duration := time.Since(start)

	if err != nil {
		log.Error().Err(err).Str("module", bound.ID).Dur("duration", duration).Msg("Run failed")
		style.Error(runCtx.StdErr, fmt.Sprintf("Run failed: %v", err))
		return err
	}

	log.Info().
		Str("module", result.ModuleID).
		Str("agent", result.AgentID).
		Float64("score", result.Evaluation.Score).
		Dur("duration", duration).
		Msg("Run completed")

	switch viper.GetString("output") {
	case "json":
		style.PrintJSON(runCtx.StdOut, result)
	case "yaml":
		style.PrintYAML(runCtx.StdOut, result)
	default:
		if !viper.GetBool("quiet") {
			renderEvaluation(runCtx.StdOut, bound, result.Evaluation)
			fmt.Fprintf(runCtx.StdOut, "%s Run completed %s\n", style.SuccessIcon(),
				style.DurationStyle.Render(fmt.Sprintf("(%s)", formatDuration(duration))))
		}
	}

	if runOutFile != "" {
		if err := writeResultFile(result, runOutFile); err != nil {
			style.Error(runCtx.StdErr, fmt.Sprintf("Failed to write %s: %v", runOutFile, err))
			return err
		}
	}

	return nil
}

// loadModule parses a module file and runs structural validation,
// rendering findings with their source context on failure.
func loadModule(runCtx execcontext.RunContext, moduleFile string) (*ast.Module, error) {
	yamlParser, err := parser.NewYAMLParser()
	if err != nil {
		style.Error(runCtx.StdErr, fmt.Sprintf("Failed to create parser: %v", err))
		return nil, err
	}

	module, err := yamlParser.ParseFile(moduleFile)
	if err != nil {
		style.Error(runCtx.StdErr, fmt.Sprintf("Failed to parse module: %v", err))
		return nil, err
	}

	if result := yamlParser.Validate(module); !result.Valid {
		source, _ := os.ReadFile(moduleFile)
		reporter := parser.ReportValidation(result, module, source, moduleFile)
		renderIssues(runCtx.StdErr, reporter.GetErrors())
		return nil, reporter.ToError()
	}

	return module, nil
}

// collectVariables merges overrides: DOJO_VARIABLES JSON first, then
// --var flags on top. Flag values parse as JSON so numbers and booleans
// keep their types; unparseable values stay strings.
func collectVariables(pairs []string) (map[string]any, error) {
	vars := make(map[string]any)

	if env := os.Getenv(variablesEnv); env != "" {
		if err := json.Unmarshal([]byte(env), &vars); err != nil {
			return nil, fmt.Errorf("parsing %s: %v", variablesEnv, err)
		}
	}

	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --var %q, expected key=value", pair)
		}
		var value any
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			value = raw
		}
		vars[key] = value
	}

	return vars, nil
}

// writeResultFile persists the run result, picking the encoding from the
// file extension: .json and .yaml/.yml get structured output, anything
// else the plain transcript.
func writeResultFile(result *engine.RunResult, path string) error {
	var data []byte
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		encoded, err := result.ToJSON(2)
		if err != nil {
			return err
		}
		data = []byte(encoded + "\n")
	case ".yaml", ".yml":
		encoded, err := yamlMarshal(result)
		if err != nil {
			return err
		}
		data = encoded
	default:
		data = []byte(result.Pretty())
	}
	return os.WriteFile(path, data, 0o644)
}

// progressTracker renders a live run: each event stops the spinner,
// prints the event's transcript line, and restarts the spinner so the
// conversation scrolls above the activity indicator.
type progressTracker struct {
	out     io.Writer
	spinner style.Spinner
}

func newProgressTracker(out io.Writer) *progressTracker {
	return &progressTracker{out: out, spinner: style.NewSpinner(out)}
}

// Listen implements events.Listener.
func (t *progressTracker) Listen(stream <-chan events.Event) {
	t.spinner.SetSuffix(" running module")
	t.spinner.Start()
	defer t.spinner.Stop()

	for e := range stream {
		if e.Terminal() {
			// The evaluation summary renders after the run returns.
			continue
		}
		t.spinner.Stop()
		renderTranscript(t.out, []events.Event{e})
		t.spinner.SetSuffix(spinnerSuffix(e))
		t.spinner.Start()
	}
}

func spinnerSuffix(e events.Event) string {
	switch e.Type {
	case events.TypeUser:
		return " waiting for agent"
	case events.TypeToolCall:
		return fmt.Sprintf(" invoking %s", payloadString(e, "tool"))
	default:
		return " running module"
	}
}

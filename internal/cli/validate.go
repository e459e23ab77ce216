package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dojoai/dojo/internal/execcontext"
	"github.com/dojoai/dojo/internal/parser"
	"github.com/dojoai/dojo/internal/parser/schema"
	"github.com/dojoai/dojo/internal/style"
)

// validateCmd represents the validate command
var validateCmd = &cobra.Command{
	Use:   "validate [files...]",
	Short: "Validate module syntax and semantics",
	Long: `Validate module files for syntax errors, structural problems, and
semantic correctness.

This command checks:
- YAML syntax validity
- Step actions and their required params
- Branch references and reachability
- Check kinds and their required fields
- Scoring formula references

Examples:
  dojo validate refund.yaml                 # Validate a single file
  dojo validate examples/modules/*.yaml     # Validate multiple files
  dojo validate --recursive ./modules       # Validate a directory tree
  dojo validate --schema refund.yaml        # Also check against the JSON schema
  dojo validate --output json refund.yaml   # JSON output for CI`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runCtx := execcontext.RunContext{
			Context: cmd.Context(),
			StdOut:  cmd.OutOrStdout(),
			StdErr:  cmd.OutOrStderr(),
		}

		summary := validateModules(runCtx, args)
		if summary.Invalid > 0 {
			os.Exit(1)
		}
	},
}

var (
	validateRecursive bool
	validateShowAll   bool
	validateSchema    bool
)

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().BoolVarP(&validateRecursive, "recursive", "r", false, "recursively validate files in directories")
	validateCmd.Flags().BoolVar(&validateShowAll, "show-all", false, "show all validation results, including successful ones")
	validateCmd.Flags().BoolVar(&validateSchema, "schema", false, "also validate documents against the generated JSON schema")
}

// ValidationOutcome represents the result of validating one module file
type ValidationOutcome struct {
	File     string        `json:"file" yaml:"file"`
	Valid    bool          `json:"valid" yaml:"valid"`
	Duration time.Duration `json:"duration_ms" yaml:"duration_ms"`
	Errors   []string      `json:"errors,omitempty" yaml:"errors,omitempty"`
	Warnings []string      `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// ValidationSummary represents the summary of all validation results
type ValidationSummary struct {
	Total    int                 `json:"total" yaml:"total"`
	Valid    int                 `json:"valid" yaml:"valid"`
	Invalid  int                 `json:"invalid" yaml:"invalid"`
	Duration time.Duration       `json:"total_duration_ms" yaml:"total_duration_ms"`
	Results  []ValidationOutcome `json:"results" yaml:"results"`
}

func validateModules(runCtx execcontext.RunContext, args []string) ValidationSummary {
	start := time.Now()

	files, err := collectFiles(args, validateRecursive)
	if err != nil {
		style.Error(runCtx.StdErr, fmt.Sprintf("Failed to collect files: %v", err))
		return ValidationSummary{Total: 1, Invalid: 1}
	}

	if len(files) == 0 {
		style.Warning(runCtx.StdOut, "No module files found to validate")
		return ValidationSummary{}
	}

	yamlParser, err := parser.NewYAMLParser()
	if err != nil {
		style.Error(runCtx.StdErr, fmt.Sprintf("Failed to create parser: %v", err))
		return ValidationSummary{Total: 1, Invalid: 1}
	}

	var schemaValidator *schema.Validator
	if validateSchema {
		schemaValidator, err = schema.NewValidator()
		if err != nil {
			style.Error(runCtx.StdErr, fmt.Sprintf("Failed to build schema validator: %v", err))
			return ValidationSummary{Total: 1, Invalid: 1}
		}
	}

	pretty := !viper.GetBool("quiet") && viper.GetString("output") == "pretty"
	results := make([]ValidationOutcome, 0, len(files))

	for _, file := range files {
		result := validateSingleFile(runCtx, yamlParser, schemaValidator, file, pretty)
		results = append(results, result)

		if pretty {
			if result.Valid {
				if validateShowAll {
					style.Success(runCtx.StdOut, fmt.Sprintf("%s (%s)", file, formatDuration(result.Duration)))
				}
			} else {
				style.Error(runCtx.StdOut, fmt.Sprintf("%s (%s)", file, formatDuration(result.Duration)))
			}
		}
	}

	summary := ValidationSummary{
		Total:    len(results),
		Duration: time.Since(start),
		Results:  results,
	}
	for _, result := range results {
		if result.Valid {
			summary.Valid++
		} else {
			summary.Invalid++
		}
	}

	switch viper.GetString("output") {
	case "json":
		style.PrintJSON(runCtx.StdOut, summary)
	case "yaml":
		style.PrintYAML(runCtx.StdOut, summary)
	default:
		printValidationSummary(runCtx, summary)
	}

	return summary
}

// validateSingleFile runs the full validation pipeline over one file:
// parse, optional JSON-schema check, then structural validation. In
// pretty mode findings render with their source context as they are
// found.
func validateSingleFile(runCtx execcontext.RunContext, p *parser.YAMLParser, sv *schema.Validator, filename string, pretty bool) ValidationOutcome {
	start := time.Now()
	outcome := ValidationOutcome{
		File:  filename,
		Valid: true,
	}

	module, err := p.ParseFile(filename)
	outcome.Duration = time.Since(start)
	if err != nil {
		outcome.Valid = false
		outcome.Errors = append(outcome.Errors, err.Error())
		if pretty {
			fmt.Fprintf(runCtx.StdOut, "%s\n", style.MessageStyle.Render(err.Error()))
		}
		return outcome
	}

	if sv != nil {
		schemaResult, err := sv.ValidateFile(filename)
		if err != nil {
			outcome.Valid = false
			outcome.Errors = append(outcome.Errors, err.Error())
		} else if !schemaResult.Valid {
			outcome.Valid = false
			for _, finding := range schemaResult.Errors {
				outcome.Errors = append(outcome.Errors, fmt.Sprintf("%s: %s", finding.Path, finding.Message))
			}
		}
	}

	if result := p.Validate(module); !result.Valid {
		outcome.Valid = false
		source, _ := os.ReadFile(filename)
		reporter := parser.ReportValidation(result, module, source, filename)
		for _, issue := range reporter.GetErrors() {
			outcome.Errors = append(outcome.Errors, issue.Error())
		}
		if pretty {
			renderIssues(runCtx.StdOut, reporter.GetErrors())
		}
	}

	outcome.Duration = time.Since(start)

	log.Debug().
		Str("file", filename).
		Bool("valid", outcome.Valid).
		Dur("duration", outcome.Duration).
		Msg("Validated module file")

	return outcome
}

func collectFiles(args []string, recursive bool) ([]string, error) {
	var files []string

	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("cannot access %s: %w", arg, err)
		}

		if info.IsDir() {
			if !recursive {
				return nil, fmt.Errorf("%s is a directory, use --recursive to validate directories", arg)
			}
			err := filepath.Walk(arg, func(path string, info os.FileInfo, err error) error {
				if err != nil {
					return err
				}
				if !info.IsDir() && isModuleFile(path) {
					files = append(files, path)
				}
				return nil
			})
			if err != nil {
				return nil, fmt.Errorf("error walking directory %s: %w", arg, err)
			}
		} else if isModuleFile(arg) {
			files = append(files, arg)
		} else {
			return nil, fmt.Errorf("%s is not a module file (.yaml or .yml)", arg)
		}
	}

	return files, nil
}

func isModuleFile(filename string) bool {
	ext := filepath.Ext(filename)
	return ext == ".yaml" || ext == ".yml"
}

func printValidationSummary(runCtx execcontext.RunContext, summary ValidationSummary) {
	if viper.GetBool("quiet") {
		return
	}

	fmt.Fprintf(runCtx.StdOut, "\n")
	if summary.Invalid == 0 {
		style.Success(runCtx.StdOut, fmt.Sprintf("All %d module(s) are valid (%s)", summary.Total, formatDuration(summary.Duration)))
	} else {
		style.Error(runCtx.StdOut, fmt.Sprintf("%d of %d module(s) failed validation (%s)", summary.Invalid, summary.Total, formatDuration(summary.Duration)))
	}

	if viper.GetBool("verbose") {
		fmt.Fprintf(runCtx.StdOut, "\nDetailed results:\n")
		headers := []string{"File", "Status", "Duration"}
		rows := make([][]string, len(summary.Results))

		for i, result := range summary.Results {
			status := style.SuccessString("valid")
			if !result.Valid {
				status = style.ErrorStyle.Render("invalid")
			}
			rows[i] = []string{
				result.File,
				status,
				result.Duration.String(),
			}
		}

		printTable(runCtx.StdOut, headers, rows)
	}
}

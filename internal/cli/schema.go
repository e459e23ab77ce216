package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dojoai/dojo/internal/ast"
	"github.com/dojoai/dojo/internal/expression"
)

// SchemaOutput bundles everything editor tooling needs to complete and
// validate module files.
type SchemaOutput struct {
	Schema      json.RawMessage                  `json:"schema"`
	Expressions []expression.ExpressionDef       `json:"expressions"`
	Functions   []*expression.FunctionDefinition `json:"functions"`
}

// schemaCmd represents the schema command
var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Output JSON schema and expression definitions",
	Long: `Output the JSON schema for module files plus the expression and
function definitions understood by step conditions, checks, and
scoring formulas.`,
	Hidden: true,
	Run: func(cmd *cobra.Command, args []string) {
		schemaBytes, err := ast.NewSchema()
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Error generating schema: %v\n", err)
			os.Exit(1)
		}

		output := SchemaOutput{
			Schema:      json.RawMessage(schemaBytes),
			Expressions: expression.ExpressionDefs,
			Functions:   expression.FunctionDefs,
		}

		outputBytes, err := json.MarshalIndent(output, "", "  ")
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Error marshaling output: %v\n", err)
			os.Exit(1)
		}

		fmt.Fprintln(cmd.OutOrStdout(), string(outputBytes))
	},
}

func init() {
	rootCmd.AddCommand(schemaCmd)
}

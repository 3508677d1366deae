package cmd

import (
	"fmt"

	"github.com/abdul-hamid-achik/apitest/packages/builtin"
	"github.com/abdul-hamid-achik/apitest/packages/core/parser"
	apihttp "github.com/abdul-hamid-achik/apitest/packages/http"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list [file|directory...]",
	Short: "List all tests in .apitest files",
	Long: `List all tests defined in .apitest files.

Examples:
  apitest list
  apitest list users.apitest
  apitest list ./tests/
  apitest list --functions`,
	RunE: listCommand,
}

var listFunctionsFlag bool

func init() {
	listCmd.Flags().BoolVar(&listFunctionsFlag, "functions", false, "List the built-in functions usable as {{name()}}")
}

func listCommand(cmd *cobra.Command, args []string) error {
	if listFunctionsFlag {
		for _, name := range builtin.NewRegistry().Names() {
			fmt.Fprintf(cmd.OutOrStdout(), "%s()\n", name)
		}
		return nil
	}

	files, err := collectFiles(targetPaths(args))
	if err != nil {
		return &exitError{code: ExitUsageError, err: err}
	}

	if len(files) == 0 {
		return &exitError{code: ExitUsageError, err: errNoFiles}
	}

	failed := 0
	for _, file := range files {
		f, err := parser.ParseFile(file)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Error parsing %s: %v\n", file, err)
			failed++
			continue
		}

		fmt.Fprintf(cmd.OutOrStdout(), "\n%s:\n", file)
		for _, test := range f.Tests {
			method := "?"
			if name, err := apihttp.MethodName(test.Definition.Method); err == nil {
				method = name
			}
			fmt.Fprintf(cmd.OutOrStdout(), "  - %s\n", test.Name)
			fmt.Fprintf(cmd.OutOrStdout(), "    %s %s\n", method, test.Definition.Endpoint)
		}
	}

	if failed > 0 {
		return &exitError{code: ExitParseError}
	}
	return nil
}

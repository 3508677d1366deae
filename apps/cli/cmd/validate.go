package cmd

import (
	"errors"
	"fmt"

	"github.com/abdul-hamid-achik/apitest/packages/core/parser"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate [file|directory...]",
	Short: "Validate .apitest files for syntax errors",
	Long: `Validate .apitest files for syntax errors without executing them.

Examples:
  apitest validate
  apitest validate users.apitest
  apitest validate ./tests/`,
	RunE: validateCommand,
}

func validateCommand(cmd *cobra.Command, args []string) error {
	files, err := collectFiles(targetPaths(args))
	if err != nil {
		return &exitError{code: ExitUsageError, err: err}
	}

	if len(files) == 0 {
		return &exitError{code: ExitUsageError, err: errNoFiles}
	}

	failed := 0
	for _, file := range files {
		if _, err := parser.ParseFile(file); err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), describeParseError(file, err))
			failed++
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Valid: %s\n", file)
	}

	if failed > 0 {
		return &exitError{code: ExitParseError, err: fmt.Errorf("validation failed: %d of %d files invalid", failed, len(files))}
	}
	return nil
}

// describeParseError renders err as file:line:col: message.
func describeParseError(file string, err error) string {
	var te *parser.TokenError
	if errors.As(err, &te) {
		return fmt.Sprintf("%s:%d:%d: %s", file, te.Line, te.Column, te.Kind)
	}

	var pe *parser.ParseError
	if errors.As(err, &pe) && pe.Line > 0 {
		return fmt.Sprintf("%s:%d:%d: %s", file, pe.Line, pe.Column, pe.Message)
	}
	return fmt.Sprintf("%s: %v", file, err)
}

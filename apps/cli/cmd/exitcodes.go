package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Exit codes for apitest CLI
const (
	// ExitSuccess indicates all tests passed
	ExitSuccess = 0

	// ExitTestFailure indicates one or more tests failed
	ExitTestFailure = 1

	// ExitParseError indicates a file parsing error
	ExitParseError = 2

	// ExitConfigError indicates a configuration error
	ExitConfigError = 3

	// ExitUsageError indicates invalid CLI usage
	ExitUsageError = 64
)

// exitError carries the process exit code out of a command. A nil err
// exits quietly.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

var exitCodesCmd = &cobra.Command{
	Use:   "exitcodes",
	Short: "Print the exit codes used by apitest",
	Run: func(cmd *cobra.Command, args []string) {
		codes := []struct {
			code int
			desc string
		}{
			{ExitSuccess, "all tests passed"},
			{ExitTestFailure, "one or more tests failed"},
			{ExitParseError, "a test file could not be parsed"},
			{ExitConfigError, "invalid configuration"},
			{ExitUsageError, "invalid command line usage"},
		}
		for _, c := range codes {
			fmt.Fprintf(cmd.OutOrStdout(), "%3d  %s\n", c.code, c.desc)
		}
	},
}

package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/abdul-hamid-achik/apitest/packages/core/parser"
	"github.com/spf13/cobra"
)

var tokensCmd = &cobra.Command{
	Use:   "tokens <file>",
	Short: "Print the token stream of a file",
	Long: `Print every token of a .apitest file with its line and column.
Useful when a file does not parse the way you expect.

Example:
  apitest tokens users.apitest`,
	Args: cobra.ExactArgs(1),
	RunE: tokensCommand,
}

func tokensCommand(cmd *cobra.Command, args []string) error {
	content, err := os.ReadFile(args[0])
	if err != nil {
		return &exitError{code: ExitUsageError, err: err}
	}

	if err := dumpTokens(cmd.OutOrStdout(), string(content)); err != nil {
		return &exitError{code: ExitParseError, err: fmt.Errorf("%s: %w", args[0], err)}
	}
	return nil
}

// dumpTokens writes one line:column<TAB>token line per token. Tokens read
// before a lexical error are still written.
func dumpTokens(w io.Writer, input string) error {
	lexer := parser.NewLexer(input)
	for {
		tok, err := lexer.Next()
		if err != nil {
			return err
		}
		span := lexer.Span()
		fmt.Fprintf(w, "%d:%d\t%s\n", span.Line, span.Column, tok)
		if tok.Kind == parser.TokenEOF {
			return nil
		}
	}
}

package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/abdul-hamid-achik/apitest/packages/core/parser"
	"github.com/abdul-hamid-achik/apitest/packages/import/curl"
	"github.com/abdul-hamid-achik/apitest/packages/import/openapi"
	"github.com/spf13/cobra"
)

var (
	importOutputFlag       string
	importBaseURLFlag      string
	importTagsFlag         string
	importExcludeTagsFlag  string
	importOperationsFlag   string
	importNoTestsFlag      bool
	importExpectStatusFlag uint16
)

var importCmd = &cobra.Command{
	Use:   "import <format> <source>",
	Short: "Convert curl commands or OpenAPI documents to .apitest files",
	Long: `Convert other request formats to .apitest files.

Supported formats:
  curl    - curl command lines (a file, or - for stdin)
  openapi - OpenAPI 3.0/3.1 (YAML or JSON, file or URL)

Examples:
  apitest import curl commands.sh -o tests/smoke.apitest
  pbpaste | apitest import curl -
  apitest import openapi spec.yaml
  apitest import openapi https://api.example.com/openapi.json --tags users`,
}

var importCurlCmd = &cobra.Command{
	Use:   "curl <file|->",
	Short: "Import from curl commands",
	Long: `Convert curl commands into tests. Commands may span lines with a
trailing backslash; blank lines and # comments are ignored.

Examples:
  apitest import curl commands.sh
  apitest import curl - --status 200 < commands.sh`,
	Args: cobra.ExactArgs(1),
	RunE: importCurlCommand,
}

var importOpenAPICmd = &cobra.Command{
	Use:   "openapi <spec-file-or-url>",
	Short: "Import from an OpenAPI specification",
	Long: `Generate one test per operation of an OpenAPI 3 document. Endpoints
use the {{baseUrl}} variable unless --base-url is given.

Examples:
  apitest import openapi spec.yaml
  apitest import openapi spec.yaml -o tests/api.apitest
  apitest import openapi spec.yaml --tags users,auth
  apitest import openapi spec.yaml --base-url http://localhost:3000
  apitest import openapi spec.yaml --no-tests`,
	Args: cobra.ExactArgs(1),
	RunE: importOpenAPICommand,
}

func init() {
	importCmd.PersistentFlags().StringVarP(&importOutputFlag, "output", "o", "", "Output file path (default: stdout)")

	importCurlCmd.Flags().Uint16Var(&importExpectStatusFlag, "status", 0, "Expect this status code in every generated test")

	importOpenAPICmd.Flags().StringVar(&importBaseURLFlag, "base-url", "", "Override base URL from spec")
	importOpenAPICmd.Flags().StringVar(&importTagsFlag, "tags", "", "Filter operations by tags (comma-separated)")
	importOpenAPICmd.Flags().StringVar(&importExcludeTagsFlag, "exclude-tags", "", "Skip operations with these tags (comma-separated)")
	importOpenAPICmd.Flags().StringVar(&importOperationsFlag, "operations", "", "Only these operation IDs (comma-separated)")
	importOpenAPICmd.Flags().BoolVar(&importNoTestsFlag, "no-tests", false, "Don't generate status expectations")

	importCmd.AddCommand(importCurlCmd)
	importCmd.AddCommand(importOpenAPICmd)
}

func warnFunc(source string) func(format string, args ...any) {
	return func(format string, args ...any) {
		logger.Warn(fmt.Sprintf(format, args...), slog.String("source", source))
	}
}

func importCurlCommand(cmd *cobra.Command, args []string) error {
	source := args[0]
	converter := curl.NewConverter(
		curl.WithExpectStatus(importExpectStatusFlag),
		curl.WithWarnFunc(warnFunc(source)),
	)

	var r io.Reader = cmd.InOrStdin()
	if source != "-" {
		f, err := os.Open(source)
		if err != nil {
			return &exitError{code: ExitUsageError, err: err}
		}
		defer f.Close()
		r = f
	}

	tf, err := converter.ConvertReader(r)
	if err != nil {
		return &exitError{code: ExitParseError, err: fmt.Errorf("failed to convert curl commands: %w", err)}
	}

	return writeImport(cmd, parser.Format(tf), len(tf.Tests))
}

func importOpenAPICommand(cmd *cobra.Command, args []string) error {
	specPath := args[0]

	opts := []openapi.Option{openapi.WithWarnFunc(warnFunc(specPath))}
	if importBaseURLFlag != "" {
		opts = append(opts, openapi.WithBaseURL(importBaseURLFlag))
	}
	if tags := splitList(importTagsFlag); len(tags) > 0 {
		opts = append(opts, openapi.WithTags(tags))
	}
	if tags := splitList(importExcludeTagsFlag); len(tags) > 0 {
		opts = append(opts, openapi.WithExcludeTags(tags))
	}
	if ops := splitList(importOperationsFlag); len(ops) > 0 {
		opts = append(opts, openapi.WithOperations(ops))
	}
	if importNoTestsFlag {
		opts = append(opts, openapi.WithExpectations(false))
	}

	doc, err := openapi.Load(cmdContext(cmd), specPath)
	if err != nil {
		return &exitError{code: ExitParseError, err: err}
	}

	tf, err := openapi.NewConverter(opts...).Convert(doc)
	if err != nil {
		return &exitError{code: ExitParseError, err: fmt.Errorf("failed to convert OpenAPI spec: %w", err)}
	}

	return writeImport(cmd, parser.Format(tf), len(tf.Tests))
}

func writeImport(cmd *cobra.Command, content string, tests int) error {
	if importOutputFlag == "" {
		fmt.Fprint(cmd.OutOrStdout(), content)
		return nil
	}

	if dir := filepath.Dir(importOutputFlag); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	if err := os.WriteFile(importOutputFlag, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d tests to %s\n", tests, importOutputFlag)
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

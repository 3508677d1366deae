package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/abdul-hamid-achik/apitest/packages/core/config"
	"github.com/abdul-hamid-achik/apitest/packages/core/parser"
	"github.com/spf13/cobra"
)

var (
	forceInit bool
	initName  string
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new apitest project",
	Long: `Initialize a new apitest project in --directory, or in a new
subdirectory when --name is given.

This creates:
  - apitest.yaml      - Configuration file with environments
  - example.apitest   - Example test file

Examples:
  apitest init
  apitest init --name payments-api
  apitest init --force`,
	Args: cobra.NoArgs,
	RunE: initCommand,
}

func init() {
	initCmd.Flags().BoolVarP(&forceInit, "force", "f", false, "Overwrite existing files")
	initCmd.Flags().StringVarP(&initName, "name", "n", "", "Create the project in a new directory with this name")
}

const exampleTests = `test "health check"
endpoint "{{baseUrl}}/health"
expect
  status 200

test "create resource"
endpoint "{{baseUrl}}/resources"
method POST
headers
  Content-Type "application/json"
  X-Request-Id "{{uuid()}}"
body "{\"name\": \"Test Resource\"}"
timeout 5000
expect
  status 201
  body contains "\"name\""
`

func initCommand(cmd *cobra.Command, args []string) error {
	dir := directoryFlag
	if initName != "" {
		dir = filepath.Join(dir, initName)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create project directory: %w", err)
	}

	configFile := filepath.Join(dir, config.ConfigFilenames[0])
	exampleFile := filepath.Join(dir, "example"+FileExtension)

	if !forceInit {
		for _, f := range []string{configFile, exampleFile} {
			if _, err := os.Stat(f); err == nil {
				return &exitError{code: ExitUsageError, err: fmt.Errorf("file already exists: %s (use --force to overwrite)", f)}
			}
		}
	}

	defaults := config.DefaultConfig()
	defaults.Headers = map[string]string{
		"User-Agent": "apitest/" + version,
	}
	defaults.Environments = map[string]map[string]any{
		"dev": {
			"baseUrl": "http://localhost:3000",
		},
		"staging": {
			"baseUrl": "https://staging.api.example.com",
		},
	}

	if err := defaults.SaveConfig(configFile); err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created: %s\n", configFile)

	if _, err := parser.ParseSource(exampleTests, exampleFile); err != nil {
		return fmt.Errorf("example tests do not parse: %w", err)
	}
	if err := os.WriteFile(exampleFile, []byte(exampleTests), 0644); err != nil {
		return fmt.Errorf("failed to create example file: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created: %s\n", exampleFile)

	fmt.Fprintf(cmd.OutOrStdout(), "\napitest project initialized!\n")
	fmt.Fprintf(cmd.OutOrStdout(), "Run 'apitest test -d %s' to execute the example tests.\n", dir)

	return nil
}

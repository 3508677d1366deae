package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	"github.com/abdul-hamid-achik/apitest/packages/logs"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

var (
	directoryFlag string
	logLevelFlag  string
	logFileFlag   string
	noColorFlag   bool

	logger     = logs.Discard()
	closeLogFn = func() error { return nil }
)

var rootCmd = &cobra.Command{
	Use:   "apitest",
	Short: "Plain text API tests",
	Long: `apitest runs HTTP API tests written in a small indentation-based
language. Each .apitest file declares named tests with an endpoint,
optional method, headers, query, body and expectations.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setupLogging,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&directoryFlag, "directory", "d", getEnvString("APITEST_DIRECTORY", "./"), "Working directory (env: APITEST_DIRECTORY)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", getEnvString("APITEST_LOG_LEVEL", "warn"), "Log level: debug, info, warn, error (env: APITEST_LOG_LEVEL)")
	rootCmd.PersistentFlags().StringVar(&logFileFlag, "log-file", getEnvString("APITEST_LOG_FILE", ""), "Also write JSON logs to this file (env: APITEST_LOG_FILE)")
	rootCmd.PersistentFlags().BoolVar(&noColorFlag, "no-color", getEnvBool("APITEST_NO_COLOR", false), "Disable colored output (env: APITEST_NO_COLOR)")

	rootCmd.AddCommand(testCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(tokensCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(exitCodesCmd)
	rootCmd.AddCommand(initCmd)
}

// Execute runs the root command and exits with the code matching the
// error category.
func Execute(v, bt string) {
	version = v
	buildTime = bt
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	err := rootCmd.Execute()
	if cerr := closeLogFn(); cerr != nil {
		fmt.Fprintf(stderr, "warning: closing log file: %v\n", cerr)
	}
	if err == nil {
		return ExitSuccess
	}

	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", ee.err)
		}
		return ee.code
	}

	fmt.Fprintf(stderr, "Error: %v\n", err)
	return ExitUsageError
}

func setupLogging(cmd *cobra.Command, args []string) error {
	if noColorFlag {
		color.NoColor = true
	}

	level, err := logs.ParseLevel(logLevelFlag)
	if err != nil {
		return &exitError{code: ExitUsageError, err: err}
	}

	l, closeFn, err := logs.New(logs.Options{
		Level:  level.String(),
		Writer: cmd.ErrOrStderr(),
		File:   logFileFlag,
	})
	if err != nil {
		return &exitError{code: ExitConfigError, err: err}
	}

	logger = l.With(slog.String("command", cmd.Name()))
	closeLogFn = closeFn
	return nil
}

// Environment variable helpers
func getEnvString(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return val == "true" || val == "1" || val == "yes"
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

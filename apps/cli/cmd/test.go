package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/abdul-hamid-achik/apitest/packages/core/config"
	"github.com/abdul-hamid-achik/apitest/packages/core/runner"
	"github.com/abdul-hamid-achik/apitest/packages/history"
	apihttp "github.com/abdul-hamid-achik/apitest/packages/http"
	"github.com/abdul-hamid-achik/apitest/packages/output"
	"github.com/abdul-hamid-achik/apitest/packages/stats"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

var testCmd = &cobra.Command{
	Use:     "test [file|directory...]",
	Aliases: []string{"run"},
	Short:   "Run API tests from .apitest files",
	Long: `Run API tests defined in .apitest files. Without arguments every
.apitest file under --directory is run.

Examples:
  apitest test
  apitest test users.apitest --env staging
  apitest test ./tests/ --name "create*" --bail
  apitest test -d ./tests --parallel --concurrency 10 --rate 20
  apitest test --output junit --output-file report.xml`,
	RunE: testCommand,
}

const (
	// WatchDebounceDelay is the debounce delay for file watch events
	WatchDebounceDelay = 300 * time.Millisecond
)

var (
	envFlag         string
	envFileFlag     string
	configFlag      string
	nameFlag        string
	verboseFlag     int
	bailFlag        bool
	timeoutFlag     string
	dryRunFlag      bool
	outputFlag      string
	outputFileFlag  string
	parallelFlag    bool
	concurrencyFlag int
	rateFlag        float64
	watchFlag       bool
	proxyFlag       string
	insecureFlag    bool
	historyFlag     string
)

func init() {
	// Core flags
	testCmd.Flags().StringVarP(&envFlag, "env", "e", getEnvString("APITEST_ENV", ""), "Environment to use (default from config) (env: APITEST_ENV)")
	testCmd.Flags().StringVar(&envFileFlag, "env-file", getEnvString("APITEST_ENV_FILE", ""), "Path to .env file for variable interpolation (env: APITEST_ENV_FILE)")
	testCmd.Flags().StringVar(&configFlag, "config", getEnvString("APITEST_CONFIG", ""), "Path to config file (env: APITEST_CONFIG)")
	testCmd.Flags().StringVarP(&nameFlag, "name", "n", "", "Run only tests matching name pattern (* wildcards)")

	// Output flags
	testCmd.Flags().CountVarP(&verboseFlag, "verbose", "v", "Verbose output")
	testCmd.Flags().StringVarP(&outputFlag, "output", "o", getEnvString("APITEST_OUTPUT", "console"), "Output format: console, json, junit, tap (env: APITEST_OUTPUT)")
	testCmd.Flags().StringVar(&outputFileFlag, "output-file", getEnvString("APITEST_OUTPUT_FILE", ""), "Write output to file (default: stdout) (env: APITEST_OUTPUT_FILE)")
	testCmd.Flags().StringVar(&historyFlag, "history", getEnvString("APITEST_HISTORY", ""), "Record results in this SQLite database (env: APITEST_HISTORY)")

	// Execution flags
	testCmd.Flags().BoolVar(&bailFlag, "bail", getEnvBool("APITEST_BAIL", false), "Stop on first failure (env: APITEST_BAIL)")
	testCmd.Flags().StringVar(&timeoutFlag, "timeout", getEnvString("APITEST_TIMEOUT", ""), "Request timeout, e.g. 30s (default from config) (env: APITEST_TIMEOUT)")
	testCmd.Flags().BoolVar(&dryRunFlag, "dry-run", false, "Resolve requests without sending them")
	testCmd.Flags().BoolVarP(&parallelFlag, "parallel", "p", getEnvBool("APITEST_PARALLEL", false), "Run tests of a file in parallel (env: APITEST_PARALLEL)")
	testCmd.Flags().IntVar(&concurrencyFlag, "concurrency", getEnvInt("APITEST_CONCURRENCY", runner.DefaultConcurrency), "Number of concurrent requests when running in parallel (env: APITEST_CONCURRENCY)")
	testCmd.Flags().Float64Var(&rateFlag, "rate", getEnvFloat("APITEST_RATE", 0), "Maximum requests per second, 0 for unlimited (env: APITEST_RATE)")
	testCmd.Flags().BoolVarP(&watchFlag, "watch", "w", false, "Watch files for changes and re-run tests")

	// Network flags
	testCmd.Flags().StringVar(&proxyFlag, "proxy", getEnvString("APITEST_PROXY", ""), "Proxy URL for HTTP requests (env: APITEST_PROXY)")
	testCmd.Flags().BoolVarP(&insecureFlag, "insecure", "k", getEnvBool("APITEST_INSECURE", false), "Disable SSL certificate validation (env: APITEST_INSECURE)")
}

// Formatter interface for all output formatters
type Formatter interface {
	FormatResult(result *runner.RunResult)
	FormatError(err error)
	FormatHeader(version string)
}

// Flushable interface for formatters that need to flush output
type Flushable interface {
	Flush(totalDuration time.Duration) error
}

// StatsFormatter is implemented by formatters that report run latency.
type StatsFormatter interface {
	FormatStats(summary *stats.Summary)
}

// runSummary aggregates one pass over all files.
type runSummary struct {
	results     []*runner.RunResult
	passed      int
	failed      int
	skipped     int
	parseErrors int
	started     time.Time
	duration    time.Duration
}

func (s *runSummary) exitCode() int {
	switch {
	case s.parseErrors > 0:
		return ExitParseError
	case s.failed > 0:
		return ExitTestFailure
	default:
		return ExitSuccess
	}
}

func newFormatter(format string, w io.Writer) (Formatter, error) {
	switch strings.ToLower(format) {
	case "json":
		return output.NewJSONFormatter(output.JSONWithWriter(w)), nil
	case "junit":
		return output.NewJUnitFormatter(output.JUnitWithWriter(w)), nil
	case "tap":
		return output.NewTAPFormatter(output.TAPWithWriter(w)), nil
	case "", "console":
		return output.NewConsoleFormatter(
			output.WithWriter(w),
			output.WithVerbose(verboseFlag > 0),
			output.WithNoColor(noColorFlag),
		), nil
	default:
		return nil, fmt.Errorf("unknown output format %q (use console, json, junit or tap)", format)
	}
}

// buildRunnerConfig merges the config file with flags. Flags that were
// set explicitly win.
func buildRunnerConfig(cmd *cobra.Command, fileConfig *config.Config) (*runner.Config, error) {
	flags := cmd.Flags()

	environment := envFlag
	if environment == "" {
		environment = fileConfig.DefaultEnvironment
	}

	timeout := fileConfig.TimeoutDuration()
	if timeoutFlag != "" {
		d, err := time.ParseDuration(timeoutFlag)
		if err != nil {
			return nil, fmt.Errorf("invalid timeout value %q: %w (use format like 30s, 1m, 500ms)", timeoutFlag, err)
		}
		timeout = d
	}

	parallel := fileConfig.GetParallel()
	if flags.Changed("parallel") || parallelFlag {
		parallel = parallelFlag
	}

	concurrency := concurrencyFlag
	if !flags.Changed("concurrency") && fileConfig.Concurrency > 0 {
		concurrency = fileConfig.Concurrency
	}
	if concurrency < 1 {
		return nil, fmt.Errorf("concurrency must be at least 1, got %d", concurrency)
	}

	rateLimit := rateFlag
	if !flags.Changed("rate") && fileConfig.Rate > 0 {
		rateLimit = fileConfig.Rate
	}
	if rateLimit < 0 {
		return nil, fmt.Errorf("rate must not be negative, got %g", rateLimit)
	}

	bail := fileConfig.GetBail()
	if flags.Changed("bail") || bailFlag {
		bail = bailFlag
	}

	proxy := fileConfig.Proxy
	if proxyFlag != "" {
		proxy = proxyFlag
	}
	if proxy != "" {
		if _, err := apihttp.ParseProxyURL(proxy); err != nil {
			return nil, err
		}
	}

	validateSSL := fileConfig.GetValidateSSL()
	if insecureFlag {
		validateSSL = false
	}

	return &runner.Config{
		Environment:    environment,
		Environments:   fileConfig.Environments,
		EnvFile:        envFileFlag,
		Verbose:        verboseFlag > 0,
		Timeout:        timeout,
		FollowRedirect: fileConfig.GetFollowRedirects(),
		MaxRedirects:   fileConfig.MaxRedirects,
		ValidateSSL:    validateSSL,
		Proxy:          proxy,
		Headers:        fileConfig.Headers,
		Bail:           bail,
		NameFilter:     nameFlag,
		Parallel:       parallel,
		Concurrency:    concurrency,
		Rate:           rateLimit,
		DryRun:         dryRunFlag,
		Logger:         logger,
	}, nil
}

func testCommand(cmd *cobra.Command, args []string) error {
	paths := targetPaths(args)

	fileConfig, err := config.LoadConfig(configFlag, directoryFlag)
	if err != nil {
		return &exitError{code: ExitConfigError, err: err}
	}

	cfg, err := buildRunnerConfig(cmd, fileConfig)
	if err != nil {
		return &exitError{code: ExitUsageError, err: err}
	}

	historyPath := historyFlag
	if historyPath == "" {
		historyPath = fileConfig.History
	}

	if _, err := newFormatter(outputFlag, io.Discard); err != nil {
		return &exitError{code: ExitUsageError, err: err}
	}

	files, err := collectFiles(paths)
	if err != nil {
		return &exitError{code: ExitUsageError, err: err}
	}
	if len(files) == 0 {
		return &exitError{code: ExitUsageError, err: errNoFiles}
	}

	ctx, stop := signal.NotifyContext(cmdContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Debug("starting run",
		slog.Int("files", len(files)),
		slog.String("environment", cfg.Environment),
		slog.Bool("parallel", cfg.Parallel))

	tr := &testRun{cmd: cmd, cfg: cfg, paths: paths, historyPath: historyPath}
	summary, err := tr.pass(ctx, files)
	if err != nil {
		return &exitError{code: ExitConfigError, err: err}
	}

	if !watchFlag {
		if code := summary.exitCode(); code != ExitSuccess {
			return &exitError{code: code}
		}
		return nil
	}

	return watch(ctx, cmd, paths, files, func() { tr.rerun(ctx) })
}

// testRun holds what one pass over the test files needs, so watch mode can
// repeat it.
type testRun struct {
	cmd         *cobra.Command
	cfg         *runner.Config
	paths       []string
	historyPath string
}

// pass runs files once. The output file is recreated on every pass so it
// always holds a single report.
func (tr *testRun) pass(ctx context.Context, files []string) (*runSummary, error) {
	var w io.Writer = tr.cmd.OutOrStdout()
	if outputFileFlag != "" {
		f, err := os.Create(outputFileFlag)
		if err != nil {
			return nil, fmt.Errorf("cannot create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	formatter, err := newFormatter(outputFlag, w)
	if err != nil {
		return nil, err
	}
	formatter.FormatHeader(version)

	summary := runFiles(ctx, runner.NewRunner(tr.cfg), files, formatter, tr.cfg.Bail)

	if flushable, ok := formatter.(Flushable); ok {
		if err := flushable.Flush(summary.duration); err != nil {
			return summary, fmt.Errorf("error writing output: %w", err)
		}
	}

	if tr.historyPath != "" && !tr.cfg.DryRun {
		if err := recordHistory(ctx, tr.historyPath, tr.cfg.Environment, summary); err != nil {
			logger.Warn("failed to record history", slog.String("path", tr.historyPath), slog.Any("error", err))
		}
	}
	return summary, nil
}

// rerun collects the files again, so test files created while watching are
// included, and runs a new pass.
func (tr *testRun) rerun(ctx context.Context) {
	files, err := collectFiles(tr.paths)
	if err == nil && len(files) == 0 {
		err = errNoFiles
	}
	if err == nil {
		_, err = tr.pass(ctx, files)
	}
	if err != nil {
		logger.Error("watch run failed", slog.Any("error", err))
	}
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// runFiles runs every file in order and feeds the formatter.
func runFiles(ctx context.Context, r *runner.Runner, files []string, formatter Formatter, bail bool) *runSummary {
	summary := &runSummary{started: time.Now()}
	recorder := r.Stats()
	recorder.Start()

	for _, file := range files {
		if ctx.Err() != nil {
			break
		}

		result, err := r.RunFile(ctx, file)
		if err != nil {
			formatter.FormatError(err)
			if isParseError(err) {
				summary.parseErrors++
			} else {
				summary.failed++
			}
			logger.Debug("file failed", slog.String("file", file), slog.Any("error", err))
			if bail {
				break
			}
			continue
		}

		formatter.FormatResult(result)
		summary.results = append(summary.results, result)
		summary.passed += result.Passed
		summary.failed += result.Failed
		summary.skipped += result.Skipped

		if bail && result.Failed > 0 {
			break
		}
	}

	recorder.Stop()
	summary.duration = time.Since(summary.started)

	if sf, ok := formatter.(StatsFormatter); ok {
		sf.FormatStats(recorder.Summary())
	}
	return summary
}

func recordHistory(ctx context.Context, path, environment string, summary *runSummary) error {
	if !filepath.IsAbs(path) && !strings.Contains(path, ":") {
		path = filepath.Join(directoryFlag, path)
	}

	store, err := history.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()

	run, tests := history.NewRun(environment, summary.results, summary.started, summary.duration)
	if err := store.Save(ctx, run, tests); err != nil {
		return err
	}
	logger.Info("recorded run", slog.String("id", run.ID), slog.Int("tests", len(tests)))
	return nil
}

// watch re-runs the tests whenever a test file or env file changes, until
// ctx is cancelled.
func watch(ctx context.Context, cmd *cobra.Command, paths, files []string, rerun func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	watchedDirs := make(map[string]bool)
	add := func(dir string) {
		if watchedDirs[dir] {
			return
		}
		watchedDirs[dir] = true
		if err := watcher.Add(dir); err != nil {
			logger.Warn("failed to watch directory", slog.String("dir", dir), slog.Any("error", err))
		}
	}

	for _, file := range files {
		add(filepath.Dir(file))
	}
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil || !info.IsDir() {
			continue
		}
		_ = filepath.Walk(p, func(path string, info os.FileInfo, err error) error {
			if err == nil && info.IsDir() {
				add(path)
			}
			return nil
		})
	}

	fmt.Fprintf(cmd.OutOrStdout(), "\nWatching for changes... (press Ctrl+C to stop)\n\n")

	var (
		debounce <-chan time.Time
		timer    *time.Timer
		changed  string
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if event.Has(fsnotify.Create) && !strings.HasPrefix(filepath.Base(event.Name), ".") {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					add(event.Name)
					continue
				}
			}
			if !isTestFile(event.Name) && !isWatchedConfig(event.Name) {
				continue
			}
			changed = event.Name
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(WatchDebounceDelay)
			debounce = timer.C

		case <-debounce:
			debounce = nil
			fmt.Fprintf(cmd.OutOrStdout(), "\nFile changed: %s\nRe-running tests...\n", changed)
			rerun()
			fmt.Fprintf(cmd.OutOrStdout(), "\nWatching for changes... (press Ctrl+C to stop)\n")

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher error", slog.Any("error", err))
		}
	}
}

func isWatchedConfig(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".env") {
		return true
	}
	for _, name := range config.ConfigFilenames {
		if base == name {
			return true
		}
	}
	return false
}

package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/abdul-hamid-achik/apitest/packages/assertions"
	"github.com/abdul-hamid-achik/apitest/packages/core/env"
	"github.com/abdul-hamid-achik/apitest/packages/core/parser"
	"github.com/abdul-hamid-achik/apitest/packages/http"
	"github.com/abdul-hamid-achik/apitest/packages/logs"
	"github.com/abdul-hamid-achik/apitest/packages/stats"
	"golang.org/x/time/rate"
)

const (
	// DefaultConcurrency is the default number of concurrent requests in parallel mode
	DefaultConcurrency = 5

	SkipFiltered = "filtered out"
	SkipBail     = "bail"
	SkipDryRun   = "dry run"
)

type Runner struct {
	client  *http.Client
	config  *Config
	limiter *rate.Limiter
	logger  *slog.Logger
	stats   *stats.Recorder
}

type Config struct {
	Environment string
	// Environments comes from the config file and is the lowest-priority
	// variable source.
	Environments map[string]map[string]any
	// EnvFile is an extra dotenv file applied after the per-directory ones.
	EnvFile   string
	Variables map[string]any

	Verbose        bool
	Timeout        time.Duration
	FollowRedirect bool
	MaxRedirects   int
	ValidateSSL    bool
	Proxy          string
	Headers        map[string]string

	Bail        bool
	NameFilter  string
	Parallel    bool
	Concurrency int
	// Rate limits requests per second across all tests. Zero is unlimited.
	Rate   float64
	DryRun bool

	Logger *slog.Logger
}

func NewRunner(cfg *Config) *Runner {
	if cfg == nil {
		cfg = &Config{FollowRedirect: true, ValidateSSL: true}
	}

	clientOpts := []http.ClientOption{
		http.WithFollowRedirects(cfg.FollowRedirect),
		http.WithValidateSSL(cfg.ValidateSSL),
	}
	if cfg.Timeout > 0 {
		clientOpts = append(clientOpts, http.WithTimeout(cfg.Timeout))
	}
	if cfg.MaxRedirects > 0 {
		clientOpts = append(clientOpts, http.WithMaxRedirects(cfg.MaxRedirects))
	}
	if cfg.Proxy != "" {
		clientOpts = append(clientOpts, http.WithProxy(cfg.Proxy))
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logs.Discard()
	}

	r := &Runner{
		client: http.NewClient(clientOpts...),
		config: cfg,
		logger: logger,
		stats:  stats.NewRecorder(),
	}
	if cfg.Rate > 0 {
		burst := int(cfg.Rate)
		if burst < 1 {
			burst = 1
		}
		r.limiter = rate.NewLimiter(rate.Limit(cfg.Rate), burst)
	}
	return r
}

// Stats returns the latency recorder shared by every file this runner runs.
func (r *Runner) Stats() *stats.Recorder {
	return r.stats
}

type RunResult struct {
	File     string
	Results  []*TestResult
	Duration time.Duration
	Passed   int
	Failed   int
	Skipped  int
}

type TestResult struct {
	Name       string
	Line       int
	Passed     bool
	Skipped    bool
	SkipReason string
	Duration   time.Duration
	Request    *http.Request
	Response   *http.Response
	Assertions []*assertions.Result
	// Unresolved lists the variables the test references that have no
	// value in the selected environment.
	Unresolved []string
	Error      error
}

// RunFile parses path and runs its tests with variables loaded from the
// file's directory.
func (r *Runner) RunFile(ctx context.Context, path string) (*RunResult, error) {
	file, err := parser.ParseFile(path)
	if err != nil {
		return nil, fmt.Errorf("parsing file: %w", err)
	}
	return r.Run(ctx, file)
}

// Run executes the tests of an already parsed file.
func (r *Runner) Run(ctx context.Context, file *parser.TestFile) (*RunResult, error) {
	resolver, err := r.newResolver(filepath.Dir(file.Path))
	if err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}
	return r.runTests(ctx, file, resolver), nil
}

func (r *Runner) newResolver(dir string) (*env.Resolver, error) {
	environment, err := env.LoadEnvironment(dir, r.config.Environment, r.config.Environments)
	if err != nil {
		return nil, err
	}

	var fileVars map[string]any
	if r.config.EnvFile != "" {
		vars, err := env.LoadDotEnv(r.config.EnvFile)
		if err != nil {
			return nil, err
		}
		fileVars = make(map[string]any, len(vars))
		for k, v := range vars {
			fileVars[k] = v
		}
	}

	resolver := env.NewResolver()
	resolver.SetWarnFunc(func(format string, args ...any) {
		r.logger.Warn(fmt.Sprintf(format, args...))
	})
	resolver.SetVariables(env.MergeVariables(
		environment.Variables,
		fileVars,
		env.LoadSystemEnv(env.SystemVariablePrefix),
		r.config.Variables,
	))
	return resolver, nil
}

func (r *Runner) runTests(ctx context.Context, file *parser.TestFile, resolver *env.Resolver) *RunResult {
	start := time.Now()
	result := &RunResult{
		File:    file.Path,
		Results: make([]*TestResult, len(file.Tests)),
	}

	var selected []*parser.ASTNode
	var positions []int
	for i, node := range file.Tests {
		if !matchesPattern(node.Name, r.config.NameFilter) {
			result.Results[i] = skipped(node, SkipFiltered)
			continue
		}
		selected = append(selected, node)
		positions = append(positions, i)
	}

	var results []*TestResult
	if r.config.Parallel {
		results = r.runParallel(ctx, file.Path, selected, resolver)
	} else {
		results = r.runSequential(ctx, file.Path, selected, resolver)
	}
	for i, tr := range results {
		result.Results[positions[i]] = tr
	}

	for _, tr := range result.Results {
		switch {
		case tr.Skipped:
			result.Skipped++
		case tr.Passed:
			result.Passed++
		default:
			result.Failed++
		}
	}

	result.Duration = time.Since(start)
	return result
}

func (r *Runner) runSequential(ctx context.Context, path string, nodes []*parser.ASTNode, resolver *env.Resolver) []*TestResult {
	results := make([]*TestResult, 0, len(nodes))
	bailed := false
	for _, node := range nodes {
		if bailed {
			results = append(results, skipped(node, SkipBail))
			continue
		}
		tr := r.runTest(ctx, path, node, resolver)
		results = append(results, tr)
		if !tr.Passed && !tr.Skipped && r.config.Bail {
			bailed = true
		}
	}
	return results
}

// runParallel runs nodes on a bounded pool. Results keep declaration order.
// With bail, tests not yet started when a failure lands are skipped.
func (r *Runner) runParallel(ctx context.Context, path string, nodes []*parser.ASTNode, resolver *env.Resolver) []*TestResult {
	concurrency := r.config.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]*TestResult, len(nodes))
	var wg sync.WaitGroup
	sem := make(chan struct{}, concurrency)

	for i, node := range nodes {
		sem <- struct{}{}
		if r.config.Bail && ctx.Err() != nil {
			<-sem
			results[i] = skipped(node, SkipBail)
			continue
		}

		wg.Add(1)
		go func(idx int, n *parser.ASTNode) {
			defer wg.Done()
			defer func() { <-sem }()

			tr := r.runTest(ctx, path, n, resolver)
			results[idx] = tr
			if !tr.Passed && !tr.Skipped && r.config.Bail {
				cancel()
			}
		}(i, node)
	}

	wg.Wait()
	return results
}

func skipped(node *parser.ASTNode, reason string) *TestResult {
	return &TestResult{
		Name:       node.Name,
		Line:       node.Line,
		Skipped:    true,
		SkipReason: reason,
	}
}

func (r *Runner) runTest(ctx context.Context, path string, node *parser.ASTNode, resolver *env.Resolver) *TestResult {
	result := &TestResult{
		Name: node.Name,
		Line: node.Line,
	}
	logger := r.logger.With("file", path, "test", node.Name)

	result.Unresolved = r.unresolvedVariables(node.Definition, resolver)

	req, err := http.BuildRequest(node.Definition, resolver.Resolve)
	if err != nil {
		result.Error = err
		return result
	}
	r.addConfigHeaders(req, resolver)
	result.Request = req

	if r.config.DryRun {
		result.Skipped = true
		result.SkipReason = SkipDryRun
		return result
	}

	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return r.abort(result, fmt.Errorf("rate limiter: %w", err))
		}
	}

	logger.Debug("sending request", "method", req.Method, "url", req.URL)
	start := time.Now()
	resp, err := r.client.Do(ctx, req)
	result.Duration = time.Since(start)
	r.stats.Record(path, result.Duration, err)

	if err != nil {
		logger.Warn("request failed", "error", err)
		return r.abort(result, err)
	}
	result.Response = resp
	logger.Debug("response received", "status", resp.StatusCode, "duration", result.Duration)

	result.Assertions = assertions.EvaluateAll(resp, node.Definition.Expect, assertions.WithResolver(resolver.Resolve))
	result.Passed = assertions.AllPassed(result.Assertions)
	return result
}

// addConfigHeaders adds the config file headers, with variables resolved,
// for every key the test did not set itself.
func (r *Runner) addConfigHeaders(req *http.Request, resolver *env.Resolver) {
	if len(r.config.Headers) == 0 {
		return
	}
	values := resolver.ResolveAll(r.config.Headers)
	for _, key := range sortedKeys(r.config.Headers) {
		if req.Header(key) == "" {
			req.AddHeader(key, values[key])
		}
	}
}

// unresolvedVariables returns each variable referenced by def, or by the
// config headers, that the resolver has no value for.
func (r *Runner) unresolvedVariables(def *parser.TestDefinition, resolver *env.Resolver) []string {
	texts := []string{def.Endpoint}
	if def.Query != nil {
		texts = append(texts, *def.Query)
	}
	for _, h := range def.Headers {
		texts = append(texts, h.Value)
	}
	for _, key := range sortedKeys(r.config.Headers) {
		texts = append(texts, r.config.Headers[key])
	}
	if def.Body != nil {
		texts = append(texts, *def.Body)
	}
	for _, e := range def.Expect {
		if e.Kind == parser.ExpectBody {
			texts = append(texts, e.Body.Value)
		}
	}

	var names []string
	seen := make(map[string]bool)
	for _, text := range texts {
		for _, name := range resolver.GetUnresolvedVariables(text) {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	return names
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// abort records err on result. A request canceled because another test
// failed under bail counts as skipped, not failed.
func (r *Runner) abort(result *TestResult, err error) *TestResult {
	if r.config.Bail && errors.Is(err, context.Canceled) {
		result.Skipped = true
		result.SkipReason = SkipBail
		return result
	}
	result.Error = err
	return result
}

// matchesPattern supports a leading and/or trailing * wildcard.
func matchesPattern(name, pattern string) bool {
	if pattern == "" || pattern == "*" {
		return true
	}

	prefix := strings.HasPrefix(pattern, "*")
	suffix := strings.HasSuffix(pattern, "*")
	switch {
	case prefix && suffix:
		return strings.Contains(name, pattern[1:len(pattern)-1])
	case prefix:
		return strings.HasSuffix(name, pattern[1:])
	case suffix:
		return strings.HasPrefix(name, pattern[:len(pattern)-1])
	default:
		return name == pattern
	}
}

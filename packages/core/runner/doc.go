// Package runner executes apitest test files.
//
// For every file it loads variables (config environments, .env files,
// APITEST_VAR_* process variables), builds one request per test, sends it
// and evaluates the test's expectations. Tests run sequentially by default
// or on a bounded worker pool, optionally rate limited, and can stop at the
// first failure.
package runner

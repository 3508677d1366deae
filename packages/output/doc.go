// Package output provides formatters for displaying test results.
//
// Supported output formats:
//   - Console: colored terminal output with a latency summary
//   - JSON: a single machine-readable document per run
//   - JUnit: JUnit XML for CI integration
//   - TAP: Test Anything Protocol version 13 with YAML diagnostics
//
// Every formatter accepts *runner.RunResult values one file at a time.
// JSON, JUnit and TAP accumulate results and write them on Flush.
// Tests skipped by the name filter are omitted from the accumulating formats.
package output

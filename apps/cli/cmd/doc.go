// Package cmd implements the apitest CLI commands using Cobra.
//
// Available commands:
//   - test (alias run): execute tests from .apitest files
//   - validate: check file syntax without executing
//   - list: display the tests defined in files
//   - tokens: dump the token stream of a file
//   - history: show stored results of earlier runs
//   - import: convert curl commands or OpenAPI documents
//   - init: create a project with a config and an example file
//   - version, exitcodes
//
// Commands return *exitError values; Execute maps them to process exit
// codes.
package cmd

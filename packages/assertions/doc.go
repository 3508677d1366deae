// Package assertions evaluates the expectations of a parsed test against an
// HTTP response.
//
// Supported expectations:
//   - status 200: exact status code
//   - body equals "...": whole body, compared structurally when both sides are JSON
//   - body contains "...": substring, whitespace-insensitive for JSON bodies
//
// A test with no expectations passes on any 2xx status.
package assertions

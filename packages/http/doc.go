// Package http provides HTTP client functionality for apitest test execution.
//
// It wraps the standard library's http package with additional features:
//   - Configurable timeouts, per client and per request
//   - Redirect, proxy and TLS verification settings
//   - Request building from parsed test definitions
//   - Multi-value headers sent in declaration order
package http

// Package config handles configuration loading and management for apitest.
//
// It provides functionality for:
//   - Loading configuration from apitest.yaml, apitest.yml or .apitest.yaml
//   - Default configuration values
//   - Per-environment variables under the environments key
package config

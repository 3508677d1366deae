// Package env handles environments and variable resolution for apitest.
//
// It provides functionality for:
//   - Loading environment variables from the config file and .env files
//   - Variable interpolation using {{variable}} syntax
//   - Built-in function evaluation (uuid, timestamp, random, etc.)
//   - Process environment lookups with {{$NAME}}
package env

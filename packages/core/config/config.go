package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the apitest configuration
type Config struct {
	DefaultEnvironment string                    `yaml:"defaultEnvironment,omitempty"`
	Timeout            int                       `yaml:"timeout,omitempty"` // milliseconds
	FollowRedirects    *bool                     `yaml:"followRedirects,omitempty"`
	MaxRedirects       int                       `yaml:"maxRedirects,omitempty"`
	ValidateSSL        *bool                     `yaml:"validateSSL,omitempty"`
	Proxy              string                    `yaml:"proxy,omitempty"`
	Headers            map[string]string         `yaml:"headers,omitempty"` // Default headers for all requests
	Parallel           *bool                     `yaml:"parallel,omitempty"`
	Concurrency        int                       `yaml:"concurrency,omitempty"`
	Rate               float64                   `yaml:"rate,omitempty"` // requests per second, 0 = unlimited
	Bail               *bool                     `yaml:"bail,omitempty"`
	History            string                    `yaml:"history,omitempty"` // sqlite database path
	Environments       map[string]map[string]any `yaml:"environments,omitempty"`
}

// BoolPtr returns a pointer to b
func BoolPtr(b bool) *bool {
	return &b
}

// getBool returns the value of a bool pointer, or the default if nil
func getBool(b *bool, defaultVal bool) bool {
	if b == nil {
		return defaultVal
	}
	return *b
}

// GetFollowRedirects returns the follow redirects setting, defaulting to true
func (c *Config) GetFollowRedirects() bool {
	return getBool(c.FollowRedirects, true)
}

// GetValidateSSL returns the validate SSL setting, defaulting to true
func (c *Config) GetValidateSSL() bool {
	return getBool(c.ValidateSSL, true)
}

// GetParallel returns the parallel setting, defaulting to false
func (c *Config) GetParallel() bool {
	return getBool(c.Parallel, false)
}

// GetBail returns the bail setting, defaulting to false
func (c *Config) GetBail() bool {
	return getBool(c.Bail, false)
}

func (c *Config) TimeoutDuration() time.Duration {
	return time.Duration(c.Timeout) * time.Millisecond
}

// ConfigFilenames contains the possible config file names, in search order
var ConfigFilenames = []string{
	"apitest.yaml",
	"apitest.yml",
	".apitest.yaml",
}

// LoadConfig loads the config file found in dir and, when path is set,
// merges the file at path over it.
func LoadConfig(path, dir string) (*Config, error) {
	base, err := FindAndLoadConfig(dir)
	if err != nil || path == "" {
		return base, err
	}

	override := &Config{}
	if err := decodeConfigFile(path, override); err != nil {
		return nil, err
	}
	return base.Merge(override), nil
}

// FindAndLoadConfig searches for a config file in the given directory
func FindAndLoadConfig(dir string) (*Config, error) {
	for _, filename := range ConfigFilenames {
		configPath := filepath.Join(dir, filename)
		if _, err := os.Stat(configPath); err == nil {
			config := DefaultConfig()
			if err := decodeConfigFile(configPath, config); err != nil {
				return nil, err
			}
			return config, nil
		}
	}

	// Return defaults if no config file found
	return DefaultConfig(), nil
}

// decodeConfigFile decodes path over config. ${VAR} references are
// expanded from the process environment before decoding.
func decodeConfigFile(path string, config *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), config); err != nil {
		return fmt.Errorf("invalid config %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid config %s: %w", path, err)
	}

	return nil
}

func (c *Config) Validate() error {
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	if c.Concurrency < 0 {
		return fmt.Errorf("concurrency must not be negative")
	}
	if c.Rate < 0 {
		return fmt.Errorf("rate must not be negative")
	}
	if c.MaxRedirects < 0 {
		return fmt.Errorf("maxRedirects must not be negative")
	}
	return nil
}

// Merge merges another config into this one, with other taking precedence
func (c *Config) Merge(other *Config) *Config {
	if other == nil {
		return c
	}

	result := *c // Copy

	if other.DefaultEnvironment != "" {
		result.DefaultEnvironment = other.DefaultEnvironment
	}
	if other.Timeout > 0 {
		result.Timeout = other.Timeout
	}
	if other.MaxRedirects > 0 {
		result.MaxRedirects = other.MaxRedirects
	}
	if other.Proxy != "" {
		result.Proxy = other.Proxy
	}
	if other.Concurrency > 0 {
		result.Concurrency = other.Concurrency
	}
	if other.Rate > 0 {
		result.Rate = other.Rate
	}
	if other.History != "" {
		result.History = other.History
	}

	// Boolean flags - only override if explicitly set in other config
	if other.FollowRedirects != nil {
		result.FollowRedirects = other.FollowRedirects
	}
	if other.ValidateSSL != nil {
		result.ValidateSSL = other.ValidateSSL
	}
	if other.Parallel != nil {
		result.Parallel = other.Parallel
	}
	if other.Bail != nil {
		result.Bail = other.Bail
	}

	if len(other.Headers) > 0 {
		headers := make(map[string]string, len(result.Headers)+len(other.Headers))
		for k, v := range result.Headers {
			headers[k] = v
		}
		for k, v := range other.Headers {
			headers[k] = v
		}
		result.Headers = headers
	}

	if len(other.Environments) > 0 {
		envs := make(map[string]map[string]any, len(result.Environments)+len(other.Environments))
		for name, vars := range result.Environments {
			envs[name] = vars
		}
		for name, vars := range other.Environments {
			envs[name] = vars
		}
		result.Environments = envs
	}

	return &result
}

// SaveConfig saves the configuration to a file
func (c *Config) SaveConfig(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

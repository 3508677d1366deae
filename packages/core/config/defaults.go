package config

const (
	DefaultTimeout      = 30000 // milliseconds
	DefaultMaxRedirects = 10
	DefaultConcurrency  = 5
)

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		DefaultEnvironment: "dev",
		Timeout:            DefaultTimeout,
		FollowRedirects:    BoolPtr(true),
		MaxRedirects:       DefaultMaxRedirects,
		ValidateSSL:        BoolPtr(true),
		Parallel:           BoolPtr(false),
		Concurrency:        DefaultConcurrency,
		Bail:               BoolPtr(false),
	}
}

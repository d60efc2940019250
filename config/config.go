// Package config loads opsexec configuration from TOML files and the
// environment via Viper.
//
// Precedence (lowest to highest): built-in defaults, system config,
// project config discovered by walking up the directory tree
// (opsexec.toml), then OPSEXEC_-prefixed environment variables.
package config

// Config represents the core opsexec configuration.
type Config struct {
	Engine EngineConfig `mapstructure:"engine"`
	Logs   LogConfig    `mapstructure:"logs"`
	Server ServerConfig `mapstructure:"server"`
}

// EngineConfig configures the command-execution engine.
type EngineConfig struct {
	// DefaultTimeoutSeconds applies when a request carries no timeout.
	// 0 disables the default (executions run until exit or cancellation).
	DefaultTimeoutSeconds int `mapstructure:"default_timeout_seconds"`

	// MaxTimeoutSeconds is the ceiling for request-specified timeouts.
	// Requests exceeding it are rejected at validation time.
	MaxTimeoutSeconds int `mapstructure:"max_timeout_seconds"`

	// MaxConcurrent bounds simultaneously running executions (the
	// admission gate). Requests beyond the ceiling wait in Pending.
	MaxConcurrent int `mapstructure:"max_concurrent"`

	// MaxOutputBytes caps captured bytes per stream per execution.
	// Output beyond the cap still flows to the log file; the in-memory
	// capture is truncated and the result marked accordingly.
	MaxOutputBytes int `mapstructure:"max_output_bytes"`

	// RatePerMinute limits execution dispatch (0 = unlimited).
	RatePerMinute int `mapstructure:"rate_per_minute"`
}

// LogConfig configures the per-execution log store.
type LogConfig struct {
	// Dir is the directory for per-execution log files.
	// Default: a subdirectory of the platform temp directory.
	Dir string `mapstructure:"dir"`
}

// ServerConfig configures the opsexec API/event server.
type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// DefaultServerPort is the development port for the event/API server.
const DefaultServerPort = 7720

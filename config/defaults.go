package config

import (
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options.
func SetDefaults(v *viper.Viper) {
	// Engine defaults
	v.SetDefault("engine.default_timeout_seconds", 600) // 10 minutes per execution
	v.SetDefault("engine.max_timeout_seconds", 3600)    // 1 hour ceiling
	v.SetDefault("engine.max_concurrent", 8)            // admission gate width
	v.SetDefault("engine.max_output_bytes", 10<<20)     // 10MB captured per stream
	v.SetDefault("engine.rate_per_minute", 0)           // dispatch rate limit disabled

	// Log store defaults
	v.SetDefault("logs.dir", filepath.Join(os.TempDir(), "opsexec-logs"))

	// Server defaults
	v.SetDefault("server.port", DefaultServerPort)
	// Empty allows any origin; the server only binds to localhost.
	v.SetDefault("server.allowed_origins", []string{})
}

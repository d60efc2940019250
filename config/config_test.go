package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	// Run from an empty directory so no project opsexec.toml is discovered.
	orig, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { os.Chdir(orig) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 600, cfg.Engine.DefaultTimeoutSeconds)
	assert.Equal(t, 3600, cfg.Engine.MaxTimeoutSeconds)
	assert.Equal(t, 8, cfg.Engine.MaxConcurrent)
	assert.Equal(t, 10<<20, cfg.Engine.MaxOutputBytes)
	assert.Equal(t, 0, cfg.Engine.RatePerMinute)
	assert.Equal(t, DefaultServerPort, cfg.Server.Port)
	assert.NotEmpty(t, cfg.Logs.Dir)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "opsexec.toml")
	content := `
[engine]
default_timeout_seconds = 30
max_timeout_seconds = 120
max_concurrent = 2

[logs]
dir = "/tmp/opsexec-test-logs"

[server]
port = 9999
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, 30, cfg.Engine.DefaultTimeoutSeconds)
	assert.Equal(t, 120, cfg.Engine.MaxTimeoutSeconds)
	assert.Equal(t, 2, cfg.Engine.MaxConcurrent)
	assert.Equal(t, "/tmp/opsexec-test-logs", cfg.Logs.Dir)
	assert.Equal(t, 9999, cfg.Server.Port)
	// Unspecified keys keep their defaults.
	assert.Equal(t, 10<<20, cfg.Engine.MaxOutputBytes)
}

func TestLoadFromFileMissing(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid defaults", func(c *Config) {}, false},
		{"negative max timeout", func(c *Config) { c.Engine.MaxTimeoutSeconds = -1 }, true},
		{"default exceeds max", func(c *Config) {
			c.Engine.DefaultTimeoutSeconds = 7200
			c.Engine.MaxTimeoutSeconds = 3600
		}, true},
		{"zero workers", func(c *Config) { c.Engine.MaxConcurrent = 0 }, true},
		{"negative output cap", func(c *Config) { c.Engine.MaxOutputBytes = -1 }, true},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, true},
		{"no default timeout is fine", func(c *Config) { c.Engine.DefaultTimeoutSeconds = 0 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Engine: EngineConfig{
					DefaultTimeoutSeconds: 600,
					MaxTimeoutSeconds:     3600,
					MaxConcurrent:         8,
					MaxOutputBytes:        10 << 20,
				},
				Server: ServerConfig{Port: DefaultServerPort},
			}
			tt.mutate(cfg)

			err := Validate(cfg)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(vals map[string]string) func(string) string {
	return func(k string) string { return vals[k] }
}

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	require.NoError(t, cfg.Validate())
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zephyr.yml")
	data := []byte(`
window:
  title: test
  width: 800
  height: 600
present_mode: fifo
convention: gl
max_retired_swapchains: 5
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "test", cfg.Window.Title)
	assert.Equal(t, 800, cfg.Window.Width)
	assert.Equal(t, 600, cfg.Window.Height)
	assert.Equal(t, "fifo", cfg.PresentMode)
	assert.Equal(t, "gl", cfg.Convention)
	assert.Equal(t, 5, cfg.MaxRetiredSwapchains)
	// untouched keys keep their defaults
	assert.Equal(t, Default().Shaders, cfg.Shaders)
	assert.True(t, cfg.Validation)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yml")
	require.NoError(t, os.WriteFile(path, []byte("window: [1, 2"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestApplyEnv(t *testing.T) {
	tests := []struct {
		name string
		val  string
		want bool
	}{
		{"unset keeps value", "", true},
		{"zero disables", "0", false},
		{"false disables", "false", false},
		{"upper FALSE disables", "FALSE", false},
		{"anything else enables", "yes", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.ApplyEnv(env(map[string]string{"VK_VALIDATION": tt.val}))
			assert.Equal(t, tt.want, cfg.Validation)
		})
	}

	cfg := Default()
	cfg.Validation = false
	cfg.ApplyEnv(env(map[string]string{"VK_VALIDATION": "1", "ZEPHYR_LOG_LEVEL": "debug"}))
	assert.True(t, cfg.Validation)
	lvl, err := cfg.Level()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, lvl)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero width", func(c *Config) { c.Window.Width = 0 }},
		{"negative height", func(c *Config) { c.Window.Height = -1 }},
		{"no retired slots", func(c *Config) { c.MaxRetiredSwapchains = 0 }},
		{"bad present mode", func(c *Config) { c.PresentMode = "vsync" }},
		{"bad convention", func(c *Config) { c.Convention = "dx" }},
		{"empty shader path", func(c *Config) { c.Shaders.Fragment = "" }},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidateConventionAliases(t *testing.T) {
	for _, name := range []string{"", "Vulkan", "gl", "OpenGL"} {
		cfg := Default()
		cfg.Convention = name
		assert.NoError(t, cfg.Validate(), "convention %q", name)
	}
}

func TestPath(t *testing.T) {
	assert.Equal(t, DefaultPath, Path(env(nil)))
	assert.Equal(t, "/etc/z.yml", Path(env(map[string]string{"ZEPHYR_CONFIG": "/etc/z.yml"})))
}

// Package config loads the engine settings from an optional YAML file and
// the environment.
package config

import (
	"log/slog"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultPath is read when ZEPHYR_CONFIG is not set.
	DefaultPath = "zephyr.yml"

	maxConfigSize = 1 << 20
)

type WindowConfig struct {
	Title  string `yaml:"title"`
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
}

type ShaderConfig struct {
	Vertex   string `yaml:"vertex"`
	Fragment string `yaml:"fragment"`
}

// Config holds everything main needs to open a window and start the engine.
type Config struct {
	Window     WindowConfig `yaml:"window"`
	Validation bool         `yaml:"validation"`
	LogLevel   string       `yaml:"log_level"`
	// PresentMode is the preferred present mode: mailbox, fifo, fifo_relaxed
	// or immediate. FIFO is used whenever the preferred one is unavailable.
	PresentMode string `yaml:"present_mode"`
	// Convention selects the clip-space convention: vulkan or gl (opengl).
	Convention           string       `yaml:"convention"`
	Shaders              ShaderConfig `yaml:"shaders"`
	MaxRetiredSwapchains int          `yaml:"max_retired_swapchains"`
	ClearColor           [4]float32   `yaml:"clear_color"`
}

func Default() Config {
	return Config{
		Window: WindowConfig{
			Title:  "Zephyr",
			Width:  1920,
			Height: 1080,
		},
		Validation:  true,
		LogLevel:    "info",
		PresentMode: "mailbox",
		Convention:  "vulkan",
		Shaders: ShaderConfig{
			Vertex:   "assets/shaders/shader.vert.spv",
			Fragment: "assets/shaders/shader.frag.spv",
		},
		MaxRetiredSwapchains: 3,
		ClearColor:           [4]float32{0.05, 0.05, 0.08, 1.0},
	}
}

// Load reads path over the defaults. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, errors.Wrapf(err, "stat config %s", path)
	}
	if info.Size() > maxConfigSize {
		return cfg, errors.Newf("config %s too large (%d bytes)", path, info.Size())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "read config %s", path)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parse config %s", path)
	}
	return cfg, nil
}

// ApplyEnv applies environment overrides. VK_VALIDATION=0/false disables
// the validation layers; any other non-empty value enables them.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if getenv == nil {
		getenv = os.Getenv
	}
	switch val := getenv("VK_VALIDATION"); val {
	case "":
	case "0", "false", "False", "FALSE":
		c.Validation = false
	default:
		c.Validation = true
	}
	if lvl := getenv("ZEPHYR_LOG_LEVEL"); lvl != "" {
		c.LogLevel = lvl
	}
}

func (c Config) Validate() error {
	if c.Window.Width <= 0 || c.Window.Height <= 0 {
		return errors.Newf("window size must be positive, got %dx%d", c.Window.Width, c.Window.Height)
	}
	if c.MaxRetiredSwapchains < 1 {
		return errors.Newf("max_retired_swapchains must be at least 1, got %d", c.MaxRetiredSwapchains)
	}
	switch strings.ToLower(c.PresentMode) {
	case "mailbox", "fifo", "fifo_relaxed", "immediate":
	default:
		return errors.Newf("unknown present mode %q", c.PresentMode)
	}
	if !knownConvention(c.Convention) {
		return errors.Newf("unknown convention %q", c.Convention)
	}
	if c.Shaders.Vertex == "" || c.Shaders.Fragment == "" {
		return errors.New("shader paths must be set")
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// ConventionNames lists the accepted convention values. Matching is case
// insensitive and the empty string means vulkan.
var ConventionNames = []string{"", "vulkan", "gl", "opengl"}

func knownConvention(name string) bool {
	name = strings.ToLower(name)
	for _, n := range ConventionNames {
		if n == name {
			return true
		}
	}
	return false
}

// Level parses LogLevel into a slog level.
func (c Config) Level() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, errors.Wrapf(err, "log level %q", c.LogLevel)
	}
	return lvl, nil
}

// Path returns the config file location, honouring ZEPHYR_CONFIG.
func Path(getenv func(string) string) string {
	if getenv == nil {
		getenv = os.Getenv
	}
	if p := getenv("ZEPHYR_CONFIG"); p != "" {
		return p
	}
	return DefaultPath
}

// ABOUTME: YAML configuration file loading for the CLI and server: tool server
// ABOUTME: commands, creative backend selection, TTS options, and directories.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ServerCommand describes how to launch a stdio tool server subprocess.
type ServerCommand struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
	Env     []string `yaml:"env"`
}

// Creative selects and configures the creative tool backend. Backend "mcp"
// launches Server as a subprocess; "openai" serves the creative tools
// in-process against the chat completions API.
type Creative struct {
	Backend string        `yaml:"backend"`
	Model   string        `yaml:"model"`
	Server  ServerCommand `yaml:"server"`
}

// TTS configures the speech synthesis chain.
type TTS struct {
	Provider    string `yaml:"provider"` // force one provider; empty = fallback order
	Voice       string `yaml:"voice"`
	PollyRegion string `yaml:"polly_region"`
	PollyVoice  string `yaml:"polly_voice"`
}

// Config is the full application configuration.
type Config struct {
	WorkDir   string        `yaml:"work_dir"`
	OutputDir string        `yaml:"output_dir"`
	FrameRate int           `yaml:"frame_rate"`
	HistoryDB string        `yaml:"history_db"`
	Creative  Creative      `yaml:"creative"`
	Renderer  ServerCommand `yaml:"renderer"`
	TTS       TTS           `yaml:"tts"`
}

// Default returns the configuration used when no file is provided.
func Default() *Config {
	return &Config{
		WorkDir:   "runs",
		FrameRate: 30,
		HistoryDB: "chalkmotion.db",
		Creative:  Creative{Backend: "openai"},
	}
}

// Load reads a YAML config file, layering it over the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Creative.Backend {
	case "", "openai", "mcp":
	default:
		return fmt.Errorf("config: unknown creative backend %q (want openai or mcp)", c.Creative.Backend)
	}
	if c.FrameRate < 0 {
		return fmt.Errorf("config: frame_rate must not be negative")
	}
	return nil
}

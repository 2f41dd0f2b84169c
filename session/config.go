// Package session is the per-page orchestrator: it owns the parsed page,
// the highlight set, the undo/redo history, and the render pipeline, and
// serialises every operation behind one mutex. Transports (HTTP, MCP,
// CLI) call into a Session; the Session persists through a narrow
// Storage interface and notifies listeners with fresh overlay frames.
package session

import (
	"os"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/clipmark/anchor"
)

// Config is the top-level clipmark configuration.
type Config struct {
	DBPath         string        `yaml:"db_path"`
	HistoryDepth   int           `yaml:"history_depth"`
	RenderInterval time.Duration `yaml:"render_interval"`
	ContextChars   int           `yaml:"context_chars"`
	Ladder         []anchor.Tier `yaml:"ladder"`
	ExportDir      string        `yaml:"export_dir"`
	Listen         string        `yaml:"listen"`
}

// LoadConfigFile reads a YAML configuration file and applies defaults.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.DBPath == "" {
		c.DBPath = "clipmark.db"
	}
	if c.HistoryDepth <= 0 {
		c.HistoryDepth = 30
	}
	if c.RenderInterval <= 0 {
		c.RenderInterval = 100 * time.Millisecond
	}
	if c.ContextChars <= 0 {
		c.ContextChars = anchor.StoredContextChars
	}
	if len(c.Ladder) == 0 {
		c.Ladder = anchor.DefaultLadder
	}
	if c.ExportDir == "" {
		c.ExportDir = "notes"
	}
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8671"
	}
}

// Validate checks ladder sanity after defaults are applied.
func (c Config) Validate() error {
	if err := validation.ValidateStruct(&c,
		validation.Field(&c.DBPath, validation.Required),
		validation.Field(&c.Listen, validation.Required),
	); err != nil {
		return err
	}
	for _, tier := range c.Ladder {
		if err := validation.ValidateStruct(&tier,
			validation.Field(&tier.ContextSize, validation.Min(1)),
			validation.Field(&tier.Threshold, validation.Min(0.0), validation.Max(1.0)),
		); err != nil {
			return err
		}
	}
	return nil
}

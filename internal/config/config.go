// Package config loads the module configuration from yaml, with defaults
// matching the original plugin's hard-coded values.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DataDir         string  `yaml:"data_dir"`
	AutosaveMinutes int     `yaml:"autosave_minutes"`
	LineSpacing     float64 `yaml:"line_spacing"`
	TextFaceOffset  float64 `yaml:"text_face_offset"`
	LockFaceOffset  float64 `yaml:"lock_face_offset"`
	MaxLineLen      int     `yaml:"max_line_len"`
	MaxLines        int     `yaml:"max_lines"`
	Debug           bool    `yaml:"debug"`

	Events EventsConfig `yaml:"events"`
}

type EventsConfig struct {
	JSONL      bool   `yaml:"jsonl"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Load reads the config at path. An empty path returns pure defaults.
func Load(path string) (Config, error) {
	cfg := defaults()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, errors.Wrap(err, "chestward.yaml")
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, errors.Wrap(err, "chestward.yaml")
	}
	return cfg, nil
}

func defaults() Config {
	return Config{
		DataDir:         "data",
		AutosaveMinutes: 15,
		LineSpacing:     0.25,
		TextFaceOffset:  0.2,
		LockFaceOffset:  0.3,
		MaxLineLen:      16,
		MaxLines:        3,
		Events:          EventsConfig{JSONL: true},
	}
}

func (c *Config) Normalize() {
	d := defaults()
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = d.DataDir
	}
	if c.AutosaveMinutes <= 0 {
		c.AutosaveMinutes = d.AutosaveMinutes
	}
	if c.LineSpacing <= 0 {
		c.LineSpacing = d.LineSpacing
	}
	if c.MaxLineLen <= 0 {
		c.MaxLineLen = d.MaxLineLen
	}
	if c.MaxLines <= 0 {
		c.MaxLines = d.MaxLines
	}
}

func (c *Config) Validate() error {
	if c.TextFaceOffset < 0 || c.TextFaceOffset >= 0.5 {
		return errors.Errorf("text_face_offset %v out of range [0, 0.5)", c.TextFaceOffset)
	}
	if c.LockFaceOffset < 0 || c.LockFaceOffset >= 0.5 {
		return errors.Errorf("lock_face_offset %v out of range [0, 0.5)", c.LockFaceOffset)
	}
	return nil
}

// AutosaveInterval is the background flush period.
func (c Config) AutosaveInterval() time.Duration {
	return time.Duration(c.AutosaveMinutes) * time.Minute
}

// Package config loads application settings from YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Supported replay output formats.
var outputFormats = map[string]bool{
	"png":  true,
	"jpg":  true,
	"jpeg": true,
	"tif":  true,
	"tiff": true,
	"bmp":  true,
}

type Config struct {
	History   HistoryConfig  `yaml:"history"`
	Executor  ExecutorConfig `yaml:"executor"`
	Replay    ReplayConfig   `yaml:"replay"`
	Metrics   MetricsConfig  `yaml:"metrics"`
	ImportDir string         `yaml:"import_dir"`
	Log       LogConfig      `yaml:"log"`
}

type HistoryConfig struct {
	Capacity int `yaml:"capacity"`
}

type ExecutorConfig struct {
	// StepTimeout bounds each command; zero disables the bound.
	StepTimeout time.Duration `yaml:"step_timeout"`
}

type ReplayConfig struct {
	Concurrency  int    `yaml:"concurrency"`
	OutputFormat string `yaml:"output_format"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

type LogConfig struct {
	Debug bool `yaml:"debug"`
}

// ValidationError names the offending field.
type ValidationError struct {
	Field   string
	Message string
	Value   interface{}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (value: %v)", e.Field, e.Message, e.Value)
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		History:  HistoryConfig{Capacity: 20},
		Executor: ExecutorConfig{StepTimeout: 0},
		Replay:   ReplayConfig{Concurrency: 4, OutputFormat: "png"},
		Metrics:  MetricsConfig{Enabled: false, Address: ":9090"},
	}
}

// Load reads filename over the defaults. An empty filename yields the defaults.
func Load(filename string) (Config, error) {
	cfg := Default()
	if filename == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return cfg, errors.Wrap(err, "failed to read config file")
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrap(err, "failed to parse config file")
	}
	if err := cfg.Validate(); err != nil {
		return cfg, errors.Wrapf(err, "invalid config %s", filename)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.History.Capacity < 1 {
		return &ValidationError{Field: "history.capacity", Message: "must be at least 1", Value: c.History.Capacity}
	}
	if c.Executor.StepTimeout < 0 {
		return &ValidationError{Field: "executor.step_timeout", Message: "must not be negative", Value: c.Executor.StepTimeout}
	}
	if c.Replay.Concurrency < 1 {
		return &ValidationError{Field: "replay.concurrency", Message: "must be at least 1", Value: c.Replay.Concurrency}
	}
	if !outputFormats[c.Replay.OutputFormat] {
		return &ValidationError{Field: "replay.output_format", Message: "unsupported image format", Value: c.Replay.OutputFormat}
	}
	if c.Metrics.Enabled && c.Metrics.Address == "" {
		return &ValidationError{Field: "metrics.address", Message: "required when metrics are enabled", Value: c.Metrics.Address}
	}
	return nil
}

// Package convert turns a legacy Micro-Manager multi-page acquisition into
// an OME-NGFF dataset: it indexes the containers, assembles each position
// into a dense stack, and writes one position group per stack with the
// matching metadata documents. Each run stamps a provenance record with a
// unique job ID into the dataset's root attributes.
package convert

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the converter configuration loaded from YAML.
type Config struct {
	Input struct {
		// Files lists the container paths to index. Takes precedence
		// over Glob when both are set.
		Files []string `yaml:"files"`

		// Glob is a filename pattern resolved relative to the working
		// directory.
		Glob string `yaml:"glob"`

		// CachePath, when set, persists the built index to a bolt file
		// and reuses it on later runs.
		CachePath string `yaml:"cachePath"`
	} `yaml:"input"`

	Output struct {
		// Path is the root directory of the NGFF dataset to create.
		Path string `yaml:"path"`

		// ChannelNames labels the channel axis, in acquisition order.
		ChannelNames []string `yaml:"channelNames"`

		// Chunks overrides the default per-array chunk shape.
		Chunks []int `yaml:"chunks"`

		// ZstdLevel is the chunk compression level.
		ZstdLevel int `yaml:"zstdLevel"`

		// Overwrite destroys an existing dataset at Path instead of
		// failing.
		Overwrite bool `yaml:"overwrite"`
	} `yaml:"output"`

	// FillMissing zero-fills coordinate gaps instead of failing the
	// position assembly.
	FillMissing bool `yaml:"fillMissing"`
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Output.ZstdLevel = 1
	return cfg
}

// LoadConfig loads configuration from a YAML file. A missing file yields
// the defaults.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("convert: reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("convert: parsing config: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes the configuration to a YAML file, creating parent
// directories as needed.
func SaveConfig(cfg *Config, configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("convert: creating config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("convert: marshaling config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return fmt.Errorf("convert: writing config: %w", err)
	}
	return nil
}

// resolveFiles expands the input section to a concrete file list.
func (c *Config) resolveFiles() ([]string, error) {
	if len(c.Input.Files) > 0 {
		return c.Input.Files, nil
	}
	if c.Input.Glob == "" {
		return nil, fmt.Errorf("convert: no input files or glob configured")
	}
	files, err := filepath.Glob(c.Input.Glob)
	if err != nil {
		return nil, fmt.Errorf("convert: resolving glob %q: %w", c.Input.Glob, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("convert: glob %q matched no files", c.Input.Glob)
	}
	return files, nil
}

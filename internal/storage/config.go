package storage

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// EngineConfig collects the tunables shared by every table in a database.
type EngineConfig struct {
	// PageCapacity is the number of slots per physical page.
	PageCapacity int `yaml:"page_capacity"`

	// RangeBasePages is the number of base pages per page range.
	RangeBasePages int `yaml:"range_base_pages"`

	// MergeThreshold is the update count per table at which a background
	// merge is scheduled. Zero disables threshold-triggered merges.
	MergeThreshold int `yaml:"merge_threshold"`

	// MaxCachedPages bounds the buffer pool.
	MaxCachedPages int `yaml:"max_cached_pages"`

	// MergeSweepSpec is a cron expression for the periodic merge sweep.
	// Empty disables the sweep.
	MergeSweepSpec string `yaml:"merge_sweep_spec"`
}

// DefaultEngineConfig returns the stock configuration.
func DefaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		PageCapacity:   DefaultPageCapacity,
		RangeBasePages: DefaultRangeBasePages,
		MergeThreshold: DefaultMergeThreshold,
		MaxCachedPages: 1024,
	}
}

// normalize fills zero fields with defaults.
func (c *EngineConfig) normalize() {
	d := DefaultEngineConfig()
	if c.PageCapacity <= 0 {
		c.PageCapacity = d.PageCapacity
	}
	if c.RangeBasePages <= 0 {
		c.RangeBasePages = d.RangeBasePages
	}
	if c.MaxCachedPages <= 0 {
		c.MaxCachedPages = d.MaxCachedPages
	}
}

// LoadConfig reads an EngineConfig from a YAML file.
func LoadConfig(path string) (*EngineConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg := DefaultEngineConfig()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.normalize()
	return cfg, nil
}

// SaveConfig writes the configuration as YAML.
func (c *EngineConfig) SaveConfig(path string) error {
	raw, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

// Package config loads the YAML process configuration of spec.md §6's
// external interfaces: cell count, packed mode, worker commit layout, NUMA
// node, region size, queue capacity and log level. This is the only place
// in the module that touches a filesystem path or an environment value —
// every core package (cell, fabric, epoch, queue, worker) takes its
// parameters as plain Go arguments and never reads configuration itself.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the YAML-decodable process configuration.
type Config struct {
	Cells         int    `yaml:"cells"`
	Mode          string `yaml:"mode"`   // "value32" | "clk48"
	Layout        string `yaml:"layout"` // "aos" | "soa"
	NUMANode      int    `yaml:"numa_node"`
	RegionSize    int    `yaml:"region_size"`
	QueueCapacity int    `yaml:"queue_capacity"`
	LogLevel      string `yaml:"log_level"`
}

// Default returns the configuration used when no file is supplied, or to
// fill zero-valued fields after a partial YAML document is loaded.
func Default() Config {
	return Config{
		Cells:         1 << 16,
		Mode:          "value32",
		Layout:        "aos",
		NUMANode:      0,
		RegionSize:    4096,
		QueueCapacity: 1024,
		LogLevel:      "info",
	}
}

// Load reads and parses the YAML file at path, applying Default() for any
// field the file leaves zero-valued.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	d := Default()
	if c.Cells == 0 {
		c.Cells = d.Cells
	}
	if c.Mode == "" {
		c.Mode = d.Mode
	}
	if c.Layout == "" {
		c.Layout = d.Layout
	}
	if c.RegionSize == 0 {
		c.RegionSize = d.RegionSize
	}
	if c.QueueCapacity == 0 {
		c.QueueCapacity = d.QueueCapacity
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
}

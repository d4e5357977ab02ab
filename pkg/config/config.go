// Package config loads the server configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the YAML configuration of the route server.
type Config struct {
	// Graph is the path of the graph file written by preprocess.
	Graph  string `yaml:"graph"`
	Server Server `yaml:"server"`
	Cache  Cache  `yaml:"cache"`
	Search Search `yaml:"search"`
	Log    Log    `yaml:"log"`
}

// Server holds HTTP settings.
type Server struct {
	Addr           string        `yaml:"addr"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// MaxConcurrent limits in-flight requests. Zero means twice the CPU count.
	MaxConcurrent int    `yaml:"max_concurrent"`
	CORSOrigin    string `yaml:"cors_origin"`
}

// Cache holds the graph store cache sizes, in decoded blocks.
type Cache struct {
	Blocks  int `yaml:"blocks"`
	Shapes  int `yaml:"shapes"`
	Reverse int `yaml:"reverse"`
	Regions int `yaml:"regions"`
	Tags    int `yaml:"tags"`
}

// Search holds query limits.
type Search struct {
	// MaxSettles stops a search after this many vertices. Zero means no limit.
	MaxSettles    int     `yaml:"max_settles"`
	MaxSnapMeters float64 `yaml:"max_snap_meters"`
}

// Log holds logger settings.
type Log struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Default returns the configuration used for fields the file leaves out.
func Default() Config {
	return Config{
		Graph: "graph.chb",
		Server: Server{
			Addr:           ":8080",
			ReadTimeout:    5 * time.Second,
			WriteTimeout:   5 * time.Second,
			RequestTimeout: 5 * time.Second,
		},
		Cache: Cache{
			Blocks:  4096,
			Shapes:  512,
			Reverse: 1024,
			Regions: 1024,
			Tags:    256,
		},
		Search: Search{
			MaxSnapMeters: 500,
		},
		Log: Log{
			Level: "info",
		},
	}
}

// Load reads path on top of Default. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects settings no component can run with.
func (c Config) Validate() error {
	if c.Graph == "" {
		return fmt.Errorf("graph path is empty")
	}
	for name, v := range map[string]int{
		"cache.blocks":  c.Cache.Blocks,
		"cache.shapes":  c.Cache.Shapes,
		"cache.reverse": c.Cache.Reverse,
		"cache.regions": c.Cache.Regions,
		"cache.tags":    c.Cache.Tags,
	} {
		if v <= 0 {
			return fmt.Errorf("%s must be positive, got %d", name, v)
		}
	}
	if c.Search.MaxSettles < 0 {
		return fmt.Errorf("search.max_settles must not be negative")
	}
	if c.Search.MaxSnapMeters <= 0 {
		return fmt.Errorf("search.max_snap_meters must be positive")
	}
	return nil
}

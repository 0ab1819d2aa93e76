package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level description of a benchmark run.
type Config struct {
	Target   string   `yaml:"target"`
	Workload Workload `yaml:"workload"`
}

// Workload holds every knob for one workload.
type Workload struct {
	EngineType string        `yaml:"engine_type"` // "sync", "uring", or "libaio"
	Direct     bool          `yaml:"direct"`
	ReadPct    int           `yaml:"read_pct"` // 0-100
	BlockSize  int           `yaml:"block_size"`
	Workers    int           `yaml:"workers"`
	QueueDepth int           `yaml:"queue_depth"`
	Runtime    time.Duration `yaml:"runtime"`

	// Access pattern: "sequential", "random", "zipf", "pareto".
	Pattern      string  `yaml:"pattern"`
	Theta        float64 `yaml:"theta"`    // zipf skew
	ParetoH      float64 `yaml:"pareto_h"` // pareto shape
	RandomRepeat bool    `yaml:"random_repeat"`
	Seed         int64   `yaml:"seed"`

	// Pacing. Rates are per second; zero disables.
	Rate        uint64        `yaml:"rate"` // bytes/sec
	RateMin     uint64        `yaml:"rate_min"`
	RateIOPS    uint64        `yaml:"rate_iops"`
	RateMinIOPS uint64        `yaml:"rate_min_iops"`
	RateCycle   time.Duration `yaml:"rate_cycle"` // averaging window
	Thinktime   time.Duration `yaml:"thinktime"`

	// Clock: "monotonic" (default), "wall", or "cycles".
	ClockSource string `yaml:"clock_source"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) ApplyDefaults() {
	w := &c.Workload
	if w.EngineType == "" {
		w.EngineType = "sync"
	}
	if w.BlockSize == 0 {
		w.BlockSize = 4096
	}
	if w.Workers == 0 {
		w.Workers = 1
	}
	if w.Runtime == 0 {
		w.Runtime = 10 * time.Second
	}
	if w.Pattern == "" {
		w.Pattern = "random"
	}
	if w.RateCycle == 0 {
		w.RateCycle = time.Second
	}
	if w.ClockSource == "" {
		w.ClockSource = "monotonic"
	}
}

func (c *Config) Validate() error {
	if c.Target == "" {
		return fmt.Errorf("config: target path is required")
	}
	w := &c.Workload
	if w.BlockSize <= 0 {
		return fmt.Errorf("config: block_size must be positive, got %d", w.BlockSize)
	}
	if w.ReadPct < 0 || w.ReadPct > 100 {
		return fmt.Errorf("config: read_pct must be within 0-100, got %d", w.ReadPct)
	}
	switch w.Pattern {
	case "sequential", "random", "zipf", "pareto":
	default:
		return fmt.Errorf("config: unknown pattern %q", w.Pattern)
	}
	return nil
}

// Package config loads the runtime configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zeusync/worldcore/internal/core/observability/log"
)

type Config struct {
	Log       LogConfig       `yaml:"log"`
	World     WorldConfig     `yaml:"world"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Snapshot  SnapshotConfig  `yaml:"snapshot"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type WorldConfig struct {
	Name           string `yaml:"name"`
	EntityCapacity int    `yaml:"entity_capacity"`
	PoolCapacity   int    `yaml:"pool_capacity"`
}

type SchedulerConfig struct {
	// Workers bounds the async goroutines; 0 means GOMAXPROCS.
	Workers     int           `yaml:"workers"`
	Granularity int           `yaml:"granularity"`
	Step        time.Duration `yaml:"step"`
}

type SnapshotConfig struct {
	// Strict rejects snapshots that contain component types unknown to the
	// runtime instead of skipping them.
	Strict bool `yaml:"strict"`
}

type MetricsConfig struct {
	// Listen is the address serving /metrics. Empty disables the endpoint.
	Listen string `yaml:"listen"`
}

func Default() *Config {
	return &Config{
		Log:       LogConfig{Level: "info"},
		World:     WorldConfig{Name: "world", EntityCapacity: 1024, PoolCapacity: 256},
		Scheduler: SchedulerConfig{Granularity: 256, Step: 16 * time.Millisecond},
	}
}

// Load reads YAML from r on top of Default. Unknown keys are rejected.
func Load(r io.Reader) (*Config, error) {
	c := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func LoadFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	defer f.Close()
	return Load(f)
}

func (c *Config) Validate() error {
	var errs []error
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if c.World.EntityCapacity < 0 {
		errs = append(errs, fmt.Errorf("world.entity_capacity must not be negative, got %d", c.World.EntityCapacity))
	}
	if c.World.PoolCapacity < 0 {
		errs = append(errs, fmt.Errorf("world.pool_capacity must not be negative, got %d", c.World.PoolCapacity))
	}
	if c.Scheduler.Workers < 0 {
		errs = append(errs, fmt.Errorf("scheduler.workers must not be negative, got %d", c.Scheduler.Workers))
	}
	if c.Scheduler.Granularity <= 0 {
		errs = append(errs, fmt.Errorf("scheduler.granularity must be positive, got %d", c.Scheduler.Granularity))
	}
	if c.Scheduler.Step <= 0 {
		errs = append(errs, fmt.Errorf("scheduler.step must be positive, got %s", c.Scheduler.Step))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// LogLevel returns the parsed log level. Validate has already checked it.
func (c *Config) LogLevel() log.Level {
	level, _ := log.ParseLevel(c.Log.Level)
	return level
}

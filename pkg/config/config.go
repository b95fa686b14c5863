package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/i5heu/GoStrQueue/internal/testbench"
)

var ErrInvalid = errors.New("invalid benchmark config")

// Config holds the benchmark parameters. Concurrency reuses testbench.Config
// so other programs can import it without pulling in the runner.
type Config struct {
	Iterations   int                `yaml:"iterations"`
	Sizes        []int              `yaml:"sizes"`
	ValueLength  int                `yaml:"value_length"`
	Seed         uint64             `yaml:"seed"`
	Capacity     uint64             `yaml:"capacity"`
	TestDuration time.Duration      `yaml:"test_duration"`
	Concurrency  []testbench.Config `yaml:"concurrency"`
}

func Default() Config {
	return Config{
		Iterations:   5,
		Sizes:        []int{1_000, 10_000, 100_000},
		ValueLength:  16,
		Seed:         1,
		Capacity:     1024,
		TestDuration: time.Second,
		Concurrency: []testbench.Config{
			{NumProducers: 2, NumConsumers: 2},
			{NumProducers: 10, NumConsumers: 10},
		},
	}
}

// Load reads a YAML file on top of Default and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %q: %w", path, err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.Iterations < 1 {
		return fmt.Errorf("%w: iterations must be positive, got %d", ErrInvalid, c.Iterations)
	}
	if len(c.Sizes) == 0 {
		return fmt.Errorf("%w: no sizes", ErrInvalid)
	}
	for _, s := range c.Sizes {
		if s < 1 {
			return fmt.Errorf("%w: size must be positive, got %d", ErrInvalid, s)
		}
	}
	if c.ValueLength < 0 {
		return fmt.Errorf("%w: negative value_length", ErrInvalid)
	}
	if c.Capacity < 1 {
		return fmt.Errorf("%w: capacity must be positive", ErrInvalid)
	}
	if c.TestDuration <= 0 {
		return fmt.Errorf("%w: test_duration must be positive", ErrInvalid)
	}
	for _, cc := range c.Concurrency {
		if cc.NumProducers < 1 || cc.NumConsumers < 1 {
			return fmt.Errorf("%w: concurrency needs at least one producer and consumer, got %+v", ErrInvalid, cc)
		}
	}
	return nil
}

// Package config loads and validates run configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig indicates a configuration failed validation.
var ErrInvalidConfig = errors.New("invalid config")

const (
	DefaultWorkers        = 10
	DefaultSampleInterval = 100 * time.Millisecond
)

// Run configures a single coordinator run.
type Run struct {
	// Workers is the number of increment workers to spawn.
	Workers int `json:"workers" yaml:"workers"`
	// Initial is the counter's starting value.
	Initial int64 `json:"initial" yaml:"initial"`
	// Fail lists worker IDs whose critical section fails before incrementing.
	Fail []int `json:"fail,omitempty" yaml:"fail,omitempty"`
	// SampleInterval is how often progress is reported while workers run.
	SampleInterval time.Duration `json:"-" yaml:"sample_interval"`
	// Timeout bounds the whole run. Zero means no limit.
	Timeout time.Duration `json:"-" yaml:"timeout"`
}

// Default returns the default [Run].
func Default() Run {
	return Run{
		Workers:        DefaultWorkers,
		SampleInterval: DefaultSampleInterval,
	}
}

// Load reads a YAML file over [Default] and validates the result.
func Load(path string) (Run, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, path, err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Validate reports every problem with the configuration.
func (r Run) Validate() error {
	var merr *multierror.Error

	if r.Workers < 0 {
		merr = multierror.Append(merr, fmt.Errorf("workers must not be negative, got %d", r.Workers))
	}

	if r.SampleInterval <= 0 {
		merr = multierror.Append(merr, fmt.Errorf("sample_interval must be positive, got %s", r.SampleInterval))
	}

	if r.Timeout < 0 {
		merr = multierror.Append(merr, fmt.Errorf("timeout must not be negative, got %s", r.Timeout))
	}

	seen := make(map[int]bool, len(r.Fail))
	for _, id := range r.Fail {
		if id < 1 || id > r.Workers {
			merr = multierror.Append(merr, fmt.Errorf("fail: worker %d out of range 1..%d", id, r.Workers))
		}

		if seen[id] {
			merr = multierror.Append(merr, fmt.Errorf("fail: worker %d listed twice", id))
		}
		seen[id] = true
	}

	if err := merr.ErrorOrNil(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	return nil
}

// Fails reports whether worker id is configured to fail.
func (r Run) Fails(id int) bool {
	for _, f := range r.Fail {
		if f == id {
			return true
		}
	}

	return false
}

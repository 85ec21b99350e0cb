// Package config loads the service configuration and the watched values
// file. Both are read by file extension from TOML, YAML or JSON.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/dshills/kvobserve/internal/logging"
)

// Config holds the runtime parameters for kvobserve.
type Config struct {
	Addr       string   `json:"addr" yaml:"addr" toml:"addr"`
	ValuesFile string   `json:"values_file" yaml:"values_file" toml:"values_file"`
	Scripts    []string `json:"scripts" yaml:"scripts" toml:"scripts"`

	// CORSOrigins enables cross-origin access to the HTTP API.
	CORSOrigins []string `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins"`

	Log      LogConfig      `json:"log" yaml:"log" toml:"log"`
	Registry RegistryConfig `json:"registry" yaml:"registry" toml:"registry"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `json:"level" yaml:"level" toml:"level"`
	Format string `json:"format" yaml:"format" toml:"format"`
}

// RegistryConfig tunes the observer registries.
type RegistryConfig struct {
	// TryWait bounds how long a mutation waits for a busy registry before
	// it is parked.
	TryWait Duration `json:"try_wait" yaml:"try_wait" toml:"try_wait"`

	// Workers is the number of delivery goroutines. Zero delivers inline.
	Workers   int `json:"workers" yaml:"workers" toml:"workers"`
	QueueSize int `json:"queue_size" yaml:"queue_size" toml:"queue_size"`

	// ReconcileInterval enables a background drain of parked mutations.
	// Zero leaves reconciliation to notification passes.
	ReconcileInterval Duration `json:"reconcile_interval" yaml:"reconcile_interval" toml:"reconcile_interval"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Addr: ":8080",
		Log: LogConfig{
			Level:  "info",
			Format: string(logging.FormatConsole),
		},
		Registry: RegistryConfig{
			TryWait:   Duration(time.Millisecond),
			QueueSize: 1024,
		},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config file %s: %w", path, err)
	}
	if err := decode(path, data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate reports every invalid field.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Addr) == "" {
		errs = append(errs, errors.New("addr is required"))
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch logging.Format(c.Log.Format) {
	case logging.FormatConsole, logging.FormatJSON, "":
	default:
		errs = append(errs, fmt.Errorf("invalid log format %q", c.Log.Format))
	}
	if c.Registry.TryWait < 0 {
		errs = append(errs, errors.New("registry.try_wait must not be negative"))
	}
	if c.Registry.Workers < 0 {
		errs = append(errs, errors.New("registry.workers must not be negative"))
	}
	if c.Registry.QueueSize < 0 {
		errs = append(errs, errors.New("registry.queue_size must not be negative"))
	}
	if c.Registry.ReconcileInterval < 0 {
		errs = append(errs, errors.New("registry.reconcile_interval must not be negative"))
	}
	for _, s := range c.Scripts {
		if strings.TrimSpace(s) == "" {
			errs = append(errs, errors.New("scripts must not contain empty paths"))
			break
		}
	}
	return errors.Join(errs...)
}

func decode(path string, data []byte, out any) error {
	var err error
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		err = toml.Unmarshal(data, out)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, out)
	case ".json":
		err = json.Unmarshal(data, out)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return &ParseError{Path: path, Message: err.Error(), Err: err}
	}
	return nil
}

package config

import (
	"errors"
	"maps"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestDefault_Valid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("expected default config to be valid, got %v", err)
	}
}

func TestLoad_EmptyPath(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != Default().Addr {
		t.Errorf("expected default addr, got %q", cfg.Addr)
	}
}

func TestLoad_Formats(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{
			name: "toml",
			file: "kvobserve.toml",
			content: `addr = ":9090"
values_file = "values.toml"
scripts = ["a.lua"]

[log]
level = "debug"

[registry]
try_wait = "5ms"
workers = 4
reconcile_interval = "1s"
`,
		},
		{
			name: "yaml",
			file: "kvobserve.yaml",
			content: `addr: ":9090"
values_file: values.toml
scripts: [a.lua]
log:
  level: debug
registry:
  try_wait: 5ms
  workers: 4
  reconcile_interval: 1s
`,
		},
		{
			name: "json",
			file: "kvobserve.json",
			content: `{"addr": ":9090", "values_file": "values.toml", "scripts": ["a.lua"],
"log": {"level": "debug"},
"registry": {"try_wait": "5ms", "workers": 4, "reconcile_interval": "1s"}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeFile(t, tt.file, tt.content))
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if cfg.Addr != ":9090" || cfg.ValuesFile != "values.toml" {
				t.Errorf("unexpected top-level fields: %+v", cfg)
			}
			if len(cfg.Scripts) != 1 || cfg.Scripts[0] != "a.lua" {
				t.Errorf("unexpected scripts: %v", cfg.Scripts)
			}
			if cfg.Log.Level != "debug" {
				t.Errorf("expected debug level, got %q", cfg.Log.Level)
			}
			if cfg.Log.Format != "console" {
				t.Errorf("expected default format to survive, got %q", cfg.Log.Format)
			}
			if cfg.Registry.TryWait.Std() != 5*time.Millisecond {
				t.Errorf("expected 5ms try wait, got %v", cfg.Registry.TryWait)
			}
			if cfg.Registry.Workers != 4 {
				t.Errorf("expected 4 workers, got %d", cfg.Registry.Workers)
			}
			if cfg.Registry.QueueSize != 1024 {
				t.Errorf("expected default queue size, got %d", cfg.Registry.QueueSize)
			}
			if cfg.Registry.ReconcileInterval.Std() != time.Second {
				t.Errorf("expected 1s reconcile interval, got %v", cfg.Registry.ReconcileInterval)
			}
		})
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected not-exist error, got %v", err)
	}

	if _, err := Load(writeFile(t, "kvobserve.ini", "addr=x")); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat, got %v", err)
	}

	_, err := Load(writeFile(t, "kvobserve.toml", "addr = "))
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ParseError, got %v", err)
	}
	if perr.Unwrap() == nil {
		t.Error("expected ParseError to wrap the decoder error")
	}

	_, err = Load(writeFile(t, "kvobserve.toml", `[registry]
try_wait = "soon"`))
	if !errors.As(err, &perr) {
		t.Errorf("expected ParseError for bad duration, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"default", func(*Config) {}, true},
		{"empty addr", func(c *Config) { c.Addr = " " }, false},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, false},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, false},
		{"negative try wait", func(c *Config) { c.Registry.TryWait = -1 }, false},
		{"zero try wait", func(c *Config) { c.Registry.TryWait = 0 }, true},
		{"negative workers", func(c *Config) { c.Registry.Workers = -1 }, false},
		{"negative queue", func(c *Config) { c.Registry.QueueSize = -1 }, false},
		{"negative interval", func(c *Config) { c.Registry.ReconcileInterval = -1 }, false},
		{"empty script", func(c *Config) { c.Scripts = []string{""} }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.ok && err != nil {
				t.Errorf("expected valid, got %v", err)
			}
			if !tt.ok && err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadValues_Flattens(t *testing.T) {
	want := map[string]string{
		"A":       "Hello",
		"db.host": "localhost",
		"db.port": "5432",
		"flag":    "true",
		"tags":    "x,y",
	}

	tests := []struct {
		file    string
		content string
	}{
		{"values.toml", `A = "Hello"
flag = true
tags = ["x", "y"]

[db]
host = "localhost"
port = 5432
`},
		{"values.yaml", `A: Hello
flag: true
tags: [x, y]
db:
  host: localhost
  port: 5432
`},
		{"values.json", `{"A": "Hello", "flag": true, "tags": ["x", "y"], "db": {"host": "localhost", "port": 5432}}`},
	}

	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			got, err := LoadValues(writeFile(t, tt.file, tt.content))
			if err != nil {
				t.Fatalf("LoadValues: %v", err)
			}
			if !maps.Equal(got, want) {
				t.Errorf("expected %v, got %v", want, got)
			}
		})
	}
}

func TestDuration_Text(t *testing.T) {
	var d Duration
	if err := d.UnmarshalText([]byte("250ms")); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	text, _ := d.MarshalText()
	if string(text) != "250ms" {
		t.Errorf("expected 250ms, got %s", text)
	}
	if err := d.UnmarshalText([]byte("later")); err == nil {
		t.Error("expected error for invalid duration")
	}
}

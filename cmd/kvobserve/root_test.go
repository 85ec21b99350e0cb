package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version error = %v", err)
	}
	if !strings.HasPrefix(out, "kvobserve dev") {
		t.Errorf("unexpected version output: %q", out)
	}
}

func TestValues(t *testing.T) {
	dir := t.TempDir()
	values := filepath.Join(dir, "values.yaml")
	if err := os.WriteFile(values, []byte("B: Foo\nA: Hello\ndb:\n  port: 5432\n"), 0o644); err != nil {
		t.Fatalf("write values: %v", err)
	}

	out, err := execute(t, "values", values)
	if err != nil {
		t.Fatalf("values error = %v", err)
	}
	want := "A=Hello\nB=Foo\ndb.port=5432\n"
	if out != want {
		t.Errorf("expected %q, got %q", want, out)
	}

	cfgPath := filepath.Join(dir, "kvobserve.toml")
	if err := os.WriteFile(cfgPath, []byte("values_file = \""+filepath.ToSlash(values)+"\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	out, err = execute(t, "--config", cfgPath, "values")
	if err != nil {
		t.Fatalf("values via config error = %v", err)
	}
	if out != want {
		t.Errorf("expected %q, got %q", want, out)
	}
}

func TestValues_NoFile(t *testing.T) {
	if _, err := execute(t, "values"); err == nil {
		t.Error("expected error without a values file")
	}
}

func TestServe_InvalidLogLevel(t *testing.T) {
	if _, err := execute(t, "--log-level", "loud", "serve"); err == nil {
		t.Error("expected error for invalid log level")
	}
}

func TestRun_ExitCode(t *testing.T) {
	if code := run([]string{"nope"}); code != 1 {
		t.Errorf("expected exit code 1 for unknown command, got %d", code)
	}
}

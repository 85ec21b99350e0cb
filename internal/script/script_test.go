package script

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/kvobserve/internal/store"
)

const recorderScript = `
keys = {"A", "B"}
seen = {}

function on_change(key, value)
  table.insert(seen, key .. "=" .. value)
end

function on_remove(key)
  table.insert(seen, "-" .. key)
end
`

func seen(t *testing.T, o *Observer) []string {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()

	tbl, ok := o.state.GetGlobal("seen").(*lua.LTable)
	if !ok {
		t.Fatal("seen is not a table")
	}
	var out []string
	tbl.ForEach(func(_, v lua.LValue) {
		out = append(out, v.String())
	})
	return out
}

func TestLoadString(t *testing.T) {
	o, err := LoadString("rec", recorderScript)
	if err != nil {
		t.Fatalf("LoadString error = %v", err)
	}
	defer o.Close()

	if o.Name() != "rec" {
		t.Errorf("expected name rec, got %q", o.Name())
	}
	if got := strings.Join(o.Keys(), ","); got != "A,B" {
		t.Errorf("expected keys A,B, got %q", got)
	}
	if o.Reference().IsZero() {
		t.Error("expected a non-zero reference")
	}
}

func TestLoadString_Errors(t *testing.T) {
	tests := []struct {
		name string
		code string
		want error
	}{
		{"syntax", "function on_change(", nil},
		{"no handler", "x = 1", ErrNoHandler},
		{"keys not table", `keys = "A"; function on_change() end`, nil},
		{"keys not strings", `keys = {1}; function on_change() end`, nil},
		{"sandboxed io", `io.open("/etc/passwd")`, nil},
		{"sandboxed dofile", `dofile("/etc/passwd")`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadString(tt.name, tt.code)
			if err == nil {
				t.Fatal("expected load error")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.lua")
	if err := os.WriteFile(path, []byte(recorderScript), 0o644); err != nil {
		t.Fatalf("write script: %v", err)
	}

	o, err := Load(path)
	if err != nil {
		t.Fatalf("Load error = %v", err)
	}
	defer o.Close()

	if o.Name() != "audit" {
		t.Errorf("expected name audit, got %q", o.Name())
	}
}

func TestObserver_ReceivesStoreChanges(t *testing.T) {
	o, err := LoadString("rec", recorderScript)
	if err != nil {
		t.Fatalf("LoadString error = %v", err)
	}
	defer o.Close()

	s := store.New(map[string]string{"A": "Hello", "B": "Foo"})
	s.Observe(o.Keys(), o.Reference())

	s.SetValue("A", "World")
	s.SetValue("C", "Pong")
	s.Delete("B")

	got := strings.Join(seen(t, o), " ")
	if got != "A=World -B" {
		t.Errorf("expected %q, got %q", "A=World -B", got)
	}
}

func TestObserver_CloseUnsubscribes(t *testing.T) {
	o, err := LoadString("rec", recorderScript)
	if err != nil {
		t.Fatalf("LoadString error = %v", err)
	}

	s := store.New(nil)
	s.Observe(o.Keys(), o.Reference())
	if err := o.Close(); err != nil {
		t.Fatalf("Close error = %v", err)
	}
	if err := o.Close(); err != nil {
		t.Fatalf("second Close error = %v", err)
	}

	s.SetValue("A", "1")

	if keys := s.Observers().Keys(); len(keys) != 1 || keys[0] != "B" {
		t.Errorf("expected only untouched key B to remain, got %v", keys)
	}
	if err := o.Call(fnChange, "A", "1"); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestObserver_HandlerErrorIsContained(t *testing.T) {
	o, err := LoadString("bad", `function on_change(key, value) error("boom") end`)
	if err != nil {
		t.Fatalf("LoadString error = %v", err)
	}
	defer o.Close()

	o.ValueChanged("A", "1")
	o.ValueRemoved("A")

	calls, failures := o.Stats()
	if calls != 1 || failures != 1 {
		t.Errorf("expected 1 call and 1 failure, got %d and %d", calls, failures)
	}
}

func TestObserver_Timeout(t *testing.T) {
	o, err := LoadString("spin", `function on_change() while true do end end`, WithTimeout(50*time.Millisecond))
	if err != nil {
		t.Fatalf("LoadString error = %v", err)
	}
	defer o.Close()

	done := make(chan error, 1)
	go func() { done <- o.Call(fnChange, "A", "1") }()

	select {
	case err := <-done:
		if err == nil {
			t.Error("expected timeout error")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("handler was not interrupted")
	}
}

func TestObserver_Log(t *testing.T) {
	var buf bytes.Buffer
	o, err := LoadString("loud", `function on_change(key, value) log("changed " .. key) end`,
		WithLogger(zerolog.New(&buf)))
	if err != nil {
		t.Fatalf("LoadString error = %v", err)
	}
	defer o.Close()

	o.ValueChanged("A", "1")

	out := buf.String()
	if !strings.Contains(out, `"message":"changed A"`) || !strings.Contains(out, `"script":"loud"`) {
		t.Errorf("unexpected log output: %q", out)
	}
}

package script

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/kvobserve/internal/observer"
)

// DefaultTimeout bounds a single handler invocation.
const DefaultTimeout = time.Second

const (
	fnChange = "on_change"
	fnRemove = "on_remove"
	keysVar  = "keys"
)

// Option configures an Observer.
type Option func(*Observer)

// WithLogger sets the logger used by the script's log function and for
// handler errors.
func WithLogger(l zerolog.Logger) Option {
	return func(o *Observer) {
		o.logger = l
	}
}

// WithTimeout bounds each handler invocation. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(o *Observer) {
		if d >= 0 {
			o.timeout = d
		}
	}
}

// Observer is a Lua script subscribed to value changes. It implements
// store.ValueObserver and store.RemovalObserver.
type Observer struct {
	name    string
	state   *lua.LState
	mu      sync.Mutex
	closed  atomic.Bool
	timeout time.Duration
	logger  zerolog.Logger

	keys []string
	ref  observer.Reference

	calls    atomic.Int64
	failures atomic.Int64
}

// Load reads and runs the script at path.
func Load(path string, opts ...Option) (*Observer, error) {
	code, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading script %s: %w", path, err)
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return LoadString(name, string(code), opts...)
}

// LoadString runs code as a script called name.
func LoadString(name, code string, opts ...Option) (*Observer, error) {
	o := &Observer{
		name:    name,
		timeout: DefaultTimeout,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.With().Str("script", name).Logger()

	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	openSafeLibraries(L)
	L.SetGlobal("log", L.NewFunction(o.luaLog))
	o.state = L

	if err := o.run(func() error { return L.DoString(code) }); err != nil {
		L.Close()
		return nil, fmt.Errorf("loading script %s: %w", name, err)
	}
	if !o.defines(fnChange) && !o.defines(fnRemove) {
		L.Close()
		return nil, fmt.Errorf("loading script %s: %w", name, ErrNoHandler)
	}

	keys, err := readKeys(L)
	if err != nil {
		L.Close()
		return nil, fmt.Errorf("loading script %s: %w", name, err)
	}
	o.keys = keys

	o.ref = observer.Resolver(func() (any, bool) {
		if o.closed.Load() {
			return nil, false
		}
		return o, true
	})
	return o, nil
}

// openSafeLibraries opens the libraries that cannot reach the host.
func openSafeLibraries(L *lua.LState) {
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	for _, name := range []string{"dofile", "loadfile", "load", "loadstring"} {
		L.SetGlobal(name, lua.LNil)
	}
}

func readKeys(L *lua.LState) ([]string, error) {
	v := L.GetGlobal(keysVar)
	if v == lua.LNil {
		return nil, nil
	}
	tbl, ok := v.(*lua.LTable)
	if !ok {
		return nil, fmt.Errorf("%q must be a table, got %s", keysVar, v.Type())
	}
	var keys []string
	var bad error
	tbl.ForEach(func(_, item lua.LValue) {
		s, ok := item.(lua.LString)
		if !ok {
			bad = fmt.Errorf("%q entries must be strings, got %s", keysVar, item.Type())
			return
		}
		keys = append(keys, string(s))
	})
	return keys, bad
}

// Name returns the script name.
func (o *Observer) Name() string {
	return o.name
}

// Keys returns the keys declared by the script's keys table.
func (o *Observer) Keys() []string {
	return o.keys
}

// Reference returns the registry reference for the script. It resolves
// until Close is called.
func (o *Observer) Reference() observer.Reference {
	return o.ref
}

// ValueChanged calls on_change(key, value).
func (o *Observer) ValueChanged(key, value string) {
	o.dispatch(fnChange, key, value)
}

// ValueRemoved calls on_remove(key).
func (o *Observer) ValueRemoved(key string) {
	o.dispatch(fnRemove, key)
}

// Call invokes a global handler with string arguments.
func (o *Observer) Call(fn string, args ...string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed.Load() {
		return ErrClosed
	}
	f, ok := o.state.GetGlobal(fn).(*lua.LFunction)
	if !ok {
		return nil
	}

	largs := make([]lua.LValue, len(args))
	for i, a := range args {
		largs[i] = lua.LString(a)
	}
	o.calls.Add(1)
	return o.run(func() error {
		return o.state.CallByParam(lua.P{Fn: f, NRet: 0, Protect: true}, largs...)
	})
}

// Stats returns the number of handler calls and failures.
func (o *Observer) Stats() (calls, failures int64) {
	return o.calls.Load(), o.failures.Load()
}

// Close releases the Lua state. The script's reference stops resolving.
func (o *Observer) Close() error {
	if !o.closed.CompareAndSwap(false, true) {
		return nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state.Close()
	return nil
}

func (o *Observer) dispatch(fn string, args ...string) {
	if err := o.Call(fn, args...); err != nil && !errors.Is(err, ErrClosed) {
		o.failures.Add(1)
		o.logger.Warn().Err(err).Str("handler", fn).Msg("script handler failed")
	}
}

// run executes fn under the call timeout, converting panics into errors.
// The caller holds o.mu or owns the state exclusively.
func (o *Observer) run(fn func() error) (err error) {
	if o.timeout > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
		defer cancel()
		o.state.SetContext(ctx)
		defer o.state.RemoveContext()
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lua panic: %v", r)
		}
	}()
	return fn()
}

func (o *Observer) defines(fn string) bool {
	_, ok := o.state.GetGlobal(fn).(*lua.LFunction)
	return ok
}

func (o *Observer) luaLog(L *lua.LState) int {
	msg := L.CheckString(1)
	o.logger.Info().Msg(msg)
	return 0
}

package observer

import (
	"runtime"
	"sync"
	"testing"
	"time"
)

type greeter interface {
	Greet(name string)
}

type farewell interface {
	Bye()
}

// recorder implements greeter and farewell.
type recorder struct {
	mu    sync.Mutex
	calls []string
	byes  int
}

func (r *recorder) Greet(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, name)
}

func (r *recorder) Bye() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byes++
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// mute implements neither capability.
type mute struct {
	name string
}

// fakeMetrics records what the registry reports.
type fakeMetrics struct {
	mu         sync.Mutex
	passes     int
	notified   int
	pruned     int
	deferred   map[Op]int
	reconAdds  int
	reconRemvs int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{deferred: make(map[Op]int)}
}

func (m *fakeMetrics) ObservePass(_ string, notified, pruned int, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.passes++
	m.notified += notified
	m.pruned += pruned
}

func (m *fakeMetrics) ObserveDeferred(_ string, op Op) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deferred[op]++
}

func (m *fakeMetrics) ObserveReconciled(_ string, adds, removes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reconAdds += adds
	m.reconRemvs += removes
}

// collect runs the garbage collector until weak pointers to unreachable
// subscribers have been cleared.
func collect() {
	runtime.GC()
	runtime.GC()
}

// within fails the test if fn does not return before the timeout.
func within(t *testing.T, d time.Duration, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatal("operation did not complete; possible deadlock")
	}
}

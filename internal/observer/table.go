package observer

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/dshills/kvobserve/internal/observer/dispatch"
)

// record is one subscription: a non-owning reference and its delivery sink.
type record struct {
	ref  Reference
	sink Sink
}

// table maps identity to record.
type table map[any]record

// parked is a mutation waiting in a pending buffer. seq orders it against
// every other parked mutation of the same registry.
type parked struct {
	seq uint64
	rec record
}

// buffer is a pending-add or pending-remove buffer. Its lock is independent
// of the main lock and is always available.
type buffer[K comparable] struct {
	mu      sync.Mutex
	entries map[K]map[any]parked
}

func (b *buffer[K]) park(key K, id any, seq *atomic.Uint64, rec record) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.entries == nil {
		b.entries = make(map[K]map[any]parked)
	}
	ids := b.entries[key]
	if ids == nil {
		ids = make(map[any]parked)
		b.entries[key] = ids
	}
	ids[id] = parked{seq: seq.Add(1), rec: rec}
}

// takePending empties both buffers under both of their locks, so a
// goroutine's parked add and later parked remove always land in the same
// drain or in drains taken in that order.
func takePending[K comparable](adds, removes *buffer[K]) (map[K]map[any]parked, map[K]map[any]parked) {
	adds.mu.Lock()
	defer adds.mu.Unlock()
	removes.mu.Lock()
	defer removes.mu.Unlock()

	a, r := adds.entries, removes.entries
	adds.entries, removes.entries = nil, nil
	return a, r
}

// registry is the engine shared by Set and Keyed. Every key addresses an
// independent table; a key's table exists only while it holds a record.
type registry[K comparable] struct {
	cfg config

	// door is the main lock. It is a weighted semaphore so mutations can
	// give up after a bounded wait.
	door   *semaphore.Weighted
	tables map[K]table

	seq     atomic.Uint64
	adds    buffer[K]
	removes buffer[K]

	executor *dispatch.Executor

	// overflow holds work a TrySink refused during the current pass. Only
	// the lock holder touches it.
	overflow []overflowed
}

// overflowed is work to hand to a sink once the main lock is released.
type overflowed struct {
	sink Sink
	fn   func()
}

func newRegistry[K comparable](opts []Option) *registry[K] {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	r := &registry[K]{
		cfg:    cfg,
		door:   semaphore.NewWeighted(1),
		tables: make(map[K]table),
	}
	r.executor = dispatch.NewExecutor(dispatch.WithExecutorPanicHandler(r.recovered))
	return r
}

// lock acquires the main lock, waiting as long as it takes.
func (r *registry[K]) lock() {
	// Acquire only fails when its context is done.
	_ = r.door.Acquire(context.Background(), 1)
}

// tryLock acquires the main lock, waiting at most the configured try-wait.
func (r *registry[K]) tryLock() bool {
	if r.door.TryAcquire(1) {
		return true
	}
	if r.cfg.tryWait <= 0 {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.tryWait)
	defer cancel()
	return r.door.Acquire(ctx, 1) == nil
}

func (r *registry[K]) unlock() {
	r.door.Release(1)
}

// sinkFor returns the sink to record for a registration made under ctx.
func (r *registry[K]) sinkFor(ctx context.Context) Sink {
	if s, ok := SinkFromContext(ctx); ok {
		return s
	}
	return r.cfg.sink
}

// add registers rec under key, directly when the main lock is free within
// the try-wait and through the pending-add buffer otherwise.
func (r *registry[K]) add(key K, rec record) {
	if rec.ref.IsZero() {
		return
	}
	if r.tryLock() {
		r.reconcileLocked()
		r.put(key, rec)
		r.unlock()
		return
	}
	r.adds.park(key, rec.ref.id, &r.seq, rec)
	r.deferred(key, OpAdd)
}

// remove unregisters ref under key, symmetric to add.
func (r *registry[K]) remove(key K, ref Reference) {
	if ref.IsZero() {
		return
	}
	if r.tryLock() {
		r.reconcileLocked()
		r.drop(key, ref.id)
		r.unlock()
		return
	}
	r.removes.park(key, ref.id, &r.seq, record{ref: ref})
	r.deferred(key, OpRemove)
}

func (r *registry[K]) deferred(key K, op Op) {
	r.cfg.metrics.ObserveDeferred(r.cfg.name, op)
	r.cfg.logger.Debug().
		Str("registry", r.cfg.name).
		Interface("key", key).
		Stringer("op", op).
		Msg("registry busy, mutation deferred")
}

// put writes rec, creating the key's table on first use. Caller holds the
// main lock.
func (r *registry[K]) put(key K, rec record) {
	t := r.tables[key]
	if t == nil {
		t = make(table)
		r.tables[key] = t
	}
	t[rec.ref.id] = rec
}

// drop deletes id, deleting the key's table once it is empty. Caller holds
// the main lock.
func (r *registry[K]) drop(key K, id any) {
	t, ok := r.tables[key]
	if !ok {
		return
	}
	delete(t, id)
	if len(t) == 0 {
		delete(r.tables, key)
	}
}

// count returns the number of records under key, including records whose
// subscriber is gone but not yet pruned.
func (r *registry[K]) count(key K) int {
	r.lock()
	defer r.unlock()
	return len(r.tables[key])
}

// keys returns every key that currently has a table.
func (r *registry[K]) keys() []K {
	r.lock()
	defer r.unlock()

	keys := make([]K, 0, len(r.tables))
	for k := range r.tables {
		keys = append(keys, k)
	}
	return keys
}

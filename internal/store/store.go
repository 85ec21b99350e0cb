package store

import (
	"maps"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/dshills/kvobserve/internal/observer"
)

// ValueObserver is notified when a key it observes gets a new value.
type ValueObserver interface {
	ValueChanged(key, value string)
}

// RemovalObserver is notified when a key it observes is deleted.
type RemovalObserver interface {
	ValueRemoved(key string)
}

// Store is a goroutine-safe string map whose mutations are pushed to keyed
// observers.
//
// Writes are serialized together with their notification pass, so a
// subscriber with an inline or serial sink sees the changes to a key in
// commit order. Observers may read the store from inside an action but must
// not write to it.
type Store struct {
	// order serializes each commit with its notification pass. mu guards
	// values alone so reads never wait behind a pass.
	order  sync.Mutex
	mu     sync.RWMutex
	values map[string]string

	observers *observer.Keyed[string]
	bridge    Bridge
	logger    zerolog.Logger
}

// Option configures a Store.
type Option func(*options)

type options struct {
	bridge   Bridge
	logger   zerolog.Logger
	registry []observer.Option
}

// WithBridge sets the change bridge.
func WithBridge(b Bridge) Option {
	return func(o *options) {
		if b != nil {
			o.bridge = b
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithRegistryOptions passes options through to the observer registry.
func WithRegistryOptions(opts ...observer.Option) Option {
	return func(o *options) {
		o.registry = append(o.registry, opts...)
	}
}

// New creates a store seeded with a copy of seed.
func New(seed map[string]string, opts ...Option) *Store {
	o := options{
		bridge: NopBridge{},
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	values := make(map[string]string, len(seed))
	maps.Copy(values, seed)

	return &Store{
		values:    values,
		observers: observer.NewKeyed[string](o.registry...),
		bridge:    o.bridge,
		logger:    o.logger,
	}
}

// Get returns the value for key.
func (s *Store) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// Values returns a copy of the values for keys, or of every value when no
// keys are given. Missing keys are omitted.
func (s *Store) Values(keys ...string) map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(keys) == 0 {
		return maps.Clone(s.values)
	}
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		if v, ok := s.values[k]; ok {
			out[k] = v
		}
	}
	return out
}

// Keys returns every key in sorted order.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SetValue stores value under key and notifies the key's observers.
// Setting a key to its current value does nothing.
func (s *Store) SetValue(key, value string) {
	s.order.Lock()
	defer s.order.Unlock()

	s.mu.Lock()
	old, existed := s.values[key]
	if existed && old == value {
		s.mu.Unlock()
		return
	}
	s.values[key] = value
	s.mu.Unlock()

	s.committed(key)
	observer.WithKey(s.observers, key, func(k string, o ValueObserver) {
		o.ValueChanged(k, value)
	})
}

// Delete removes key and notifies the key's observers. Deleting a missing
// key does nothing.
func (s *Store) Delete(key string) {
	s.order.Lock()
	defer s.order.Unlock()

	s.mu.Lock()
	if _, ok := s.values[key]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.values, key)
	s.mu.Unlock()

	s.committed(key)
	observer.WithKey(s.observers, key, func(k string, o RemovalObserver) {
		o.ValueRemoved(k)
	})
}

// Replace makes the store hold exactly next: changed and new keys are set,
// keys absent from next are deleted. It returns the number of keys touched.
func (s *Store) Replace(next map[string]string) int {
	current := s.Values()

	touched := 0
	for k, v := range next {
		if old, ok := current[k]; ok && old == v {
			continue
		}
		s.SetValue(k, v)
		touched++
	}
	for k := range current {
		if _, ok := next[k]; !ok {
			s.Delete(k)
			touched++
		}
	}
	return touched
}

// Observe registers refs for every key in keys.
func (s *Store) Observe(keys []string, refs ...observer.Reference) {
	s.observers.AddKeys(keys, refs...)
}

// Unobserve unregisters refs from every key in keys.
func (s *Store) Unobserve(keys []string, refs ...observer.Reference) {
	s.observers.RemoveKeys(keys, refs...)
}

// Observers exposes the keyed registry, e.g. for a background reconciler.
func (s *Store) Observers() *observer.Keyed[string] {
	return s.observers
}

func (s *Store) committed(key string) {
	s.bridge.Changed(key)
	s.logger.Debug().Str("key", key).Msg("value changed")
}

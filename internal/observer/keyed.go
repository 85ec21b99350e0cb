package observer

import "context"

// Keyed is an observer registry partitioned by key. Each key owns an
// independent table, created on the first add for that key and deleted once
// it becomes empty.
type Keyed[K comparable] struct {
	r *registry[K]
}

// NewKeyed creates an empty keyed registry.
func NewKeyed[K comparable](opts ...Option) *Keyed[K] {
	return &Keyed[K]{r: newRegistry[K](opts)}
}

// Add registers each reference under key.
func (k *Keyed[K]) Add(key K, refs ...Reference) {
	k.AddKeysContext(context.Background(), []K{key}, refs...)
}

// AddContext registers each reference under key, recording the sink carried
// by ctx or the registry default.
func (k *Keyed[K]) AddContext(ctx context.Context, key K, refs ...Reference) {
	k.AddKeysContext(ctx, []K{key}, refs...)
}

// AddKeys registers every reference under every key.
func (k *Keyed[K]) AddKeys(keys []K, refs ...Reference) {
	k.AddKeysContext(context.Background(), keys, refs...)
}

// AddKeysContext registers every reference under every key, recording the
// sink carried by ctx or the registry default.
func (k *Keyed[K]) AddKeysContext(ctx context.Context, keys []K, refs ...Reference) {
	sink := k.r.sinkFor(ctx)
	for _, key := range keys {
		for _, ref := range refs {
			k.r.add(key, record{ref: ref, sink: sink})
		}
	}
}

// Remove unregisters each reference under key.
func (k *Keyed[K]) Remove(key K, refs ...Reference) {
	k.RemoveKeys([]K{key}, refs...)
}

// RemoveKeys unregisters every reference under every key.
func (k *Keyed[K]) RemoveKeys(keys []K, refs ...Reference) {
	for _, key := range keys {
		for _, ref := range refs {
			k.r.remove(key, ref)
		}
	}
}

// Reconcile applies mutations parked while the registry was busy.
func (k *Keyed[K]) Reconcile() {
	k.r.reconcile()
}

// Len returns the number of records under key, including subscribers that
// are gone but have not been pruned yet.
func (k *Keyed[K]) Len(key K) int {
	return k.r.count(key)
}

// Keys returns the keys that currently have at least one record, in no
// particular order.
func (k *Keyed[K]) Keys() []K {
	return k.r.keys()
}

// WithKey invokes action once for every live subscriber registered under key
// that implements C. A key with no subscribers is a no-op.
func WithKey[K comparable, C any](k *Keyed[K], key K, action func(K, C)) {
	k.r.notify(key, capable(k.r, func(c C) func() {
		return func() { action(key, c) }
	}))
}

// WithKeys calls WithKey once per key.
func WithKeys[K comparable, C any](k *Keyed[K], keys []K, action func(K, C)) {
	for _, key := range keys {
		WithKey(k, key, action)
	}
}

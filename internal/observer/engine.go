package observer

import (
	"cmp"
	"slices"
	"time"
)

// visitor inspects one live subscriber and reports whether it was dispatched.
type visitor func(obj any, sink Sink) bool

// notify runs one notification pass over key's table: stale records are
// pruned, live ones are offered to visit, and parked mutations are
// reconciled before the lock is released. Mutations parked during the pass
// are not visible to it.
func (r *registry[K]) notify(key K, visit visitor) {
	r.lock()
	defer func() {
		overflow := r.overflow
		r.overflow = nil
		r.unlock()
		for _, o := range overflow {
			o.sink.Submit(o.fn)
		}
	}()

	start := time.Now()
	notified, pruned := 0, 0

	if t, ok := r.tables[key]; ok {
		var stale []any
		for id, rec := range t {
			obj, live := rec.ref.Resolve()
			if !live {
				stale = append(stale, id)
				continue
			}
			if visit(obj, rec.sink) {
				notified++
			}
		}
		for _, id := range stale {
			r.drop(key, id)
		}
		pruned = len(stale)
	}

	r.reconcileLocked()

	if pruned > 0 {
		r.cfg.logger.Debug().
			Str("registry", r.cfg.name).
			Interface("key", key).
			Int("pruned", pruned).
			Msg("pruned collected subscribers")
	}
	r.cfg.metrics.ObservePass(r.cfg.name, notified, pruned, time.Since(start))
}

// pendingOp is a parked mutation flattened for ordered application.
type pendingOp[K comparable] struct {
	key K
	id  any
	parked
	add bool
}

// reconcileLocked drains both pending buffers and applies their mutations
// in the order they were parked. Caller holds the main lock.
func (r *registry[K]) reconcileLocked() {
	adds, removes := takePending(&r.adds, &r.removes)
	if len(adds) == 0 && len(removes) == 0 {
		return
	}

	var ops []pendingOp[K]
	for key, ids := range adds {
		for id, p := range ids {
			ops = append(ops, pendingOp[K]{key: key, id: id, parked: p, add: true})
		}
	}
	for key, ids := range removes {
		for id, p := range ids {
			ops = append(ops, pendingOp[K]{key: key, id: id, parked: p})
		}
	}
	slices.SortFunc(ops, func(a, b pendingOp[K]) int {
		return cmp.Compare(a.seq, b.seq)
	})

	nAdd, nRemove := 0, 0
	for _, op := range ops {
		if op.add {
			r.put(op.key, op.rec)
			nAdd++
		} else {
			r.drop(op.key, op.id)
			nRemove++
		}
	}

	r.cfg.metrics.ObserveReconciled(r.cfg.name, nAdd, nRemove)
}

// reconcile takes the main lock and applies parked mutations.
func (r *registry[K]) reconcile() {
	r.lock()
	defer r.unlock()
	r.reconcileLocked()
}

// deliver hands action to sink, guarded against panics. A TrySink that is
// full gets the action after the pass releases the lock, so a pass never
// blocks on a sink whose workers may be waiting for that lock. Caller holds
// the main lock.
func (r *registry[K]) deliver(sink Sink, action func()) {
	fn := r.executor.Wrap(action)
	if ts, ok := sink.(TrySink); ok {
		if !ts.TrySubmit(fn) {
			r.overflow = append(r.overflow, overflowed{sink: sink, fn: fn})
		}
		return
	}
	sink.Submit(fn)
}

// recovered reports a panicking action.
func (r *registry[K]) recovered(v any, stack []byte) {
	r.cfg.logger.Error().
		Str("registry", r.cfg.name).
		Interface("panic", v).
		Bytes("stack", stack).
		Msg("observer action panicked")
	if r.cfg.panicHandler != nil {
		r.cfg.panicHandler(v, stack)
	}
}

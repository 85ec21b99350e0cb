// Package observer lets any object keep a dynamic set of interested parties
// and notify every party that implements a requested capability.
//
// # Subscribers and References
//
// The registry never owns a subscriber. It stores a Reference, which either
// wraps a weak pointer (Ref) or an explicit liveness callback (Resolver).
// When a reference no longer resolves, the entry is pruned during the next
// notification pass that encounters it.
//
//	type Printer struct{ out io.Writer }
//
//	func (p *Printer) ValueChanged(key, value string) { fmt.Fprintln(p.out, key, value) }
//
//	p := &Printer{out: os.Stdout}
//	set := observer.New()
//	set.Add(observer.Ref(p))
//
// # Capabilities
//
// A capability is any Go interface. With invokes the action for every live
// subscriber whose object satisfies it and silently skips the rest:
//
//	type ValueObserver interface{ ValueChanged(key, value string) }
//
//	observer.With(set, func(o ValueObserver) {
//	    o.ValueChanged("editor.tabSize", "4")
//	})
//
// # Keyed Observation
//
// Keyed partitions subscribers by an arbitrary comparable key so a
// notification reaches only the parties registered for that key:
//
//	keyed := observer.NewKeyed[string]()
//	keyed.AddKeys([]string{"A", "B"}, observer.Ref(p))
//	observer.WithKey(keyed, "A", func(key string, o ValueObserver) {
//	    o.ValueChanged(key, "World")
//	})
//
// # Delivery
//
// Every registration records a Sink. Inline runs the action on the notifying
// goroutine; a dispatch.Pool hands it to worker goroutines, in which case the
// order across subscribers is unspecified and deliveries may overlap. The sink
// is taken from the registration context (ContextWithSink) or from the
// registry default (WithSink).
//
// # Thread Safety
//
// Set and Keyed are safe for concurrent use. Passes on the same registry are
// serialized. Add and Remove never wait behind a pass for longer than the
// configured try-wait: when the registry is busy the mutation is parked in a
// pending buffer and applied, in full, when the lock holder next reconciles.
// This makes Add and Remove safe to call from inside an action.
//
// A mutation parked during a pass is not visible to that pass. Reconciliation
// happens at the end of every pass, at the start of every mutation that wins
// the lock, and on demand through Reconcile or RunReconciler.
//
// Len, Keys, Reconcile and the notification functions take the lock
// unconditionally and must not be called from an action delivered inline.
// Actions delivered on other goroutines may call them. A pass never blocks
// on a TrySink such as dispatch.Pool while it holds the lock: work the sink
// refuses is submitted after the lock is released. A plain Sink that blocks
// must not wait on goroutines that themselves call into the registry.
package observer

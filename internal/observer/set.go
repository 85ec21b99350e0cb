package observer

import "context"

// unit is the single key of a Set's table.
type unit struct{}

// Set is an unkeyed observer registry.
type Set struct {
	r *registry[unit]
}

// New creates an empty Set.
func New(opts ...Option) *Set {
	return &Set{r: newRegistry[unit](opts)}
}

// Add registers each reference with the registry's default sink.
// Re-adding an identity overwrites its record.
func (s *Set) Add(refs ...Reference) {
	s.AddContext(context.Background(), refs...)
}

// AddContext registers each reference, recording the sink carried by ctx
// (see ContextWithSink) or the registry default.
func (s *Set) AddContext(ctx context.Context, refs ...Reference) {
	sink := s.r.sinkFor(ctx)
	for _, ref := range refs {
		s.r.add(unit{}, record{ref: ref, sink: sink})
	}
}

// Remove unregisters each reference. Removing an unknown identity is a no-op.
func (s *Set) Remove(refs ...Reference) {
	for _, ref := range refs {
		s.r.remove(unit{}, ref)
	}
}

// Reconcile applies mutations parked while the registry was busy.
func (s *Set) Reconcile() {
	s.r.reconcile()
}

// Len returns the number of records, including subscribers that are gone
// but have not been pruned yet.
func (s *Set) Len() int {
	return s.r.count(unit{})
}

// With invokes action once for every live subscriber that implements C.
// Subscribers that do not implement C are skipped and stay registered.
func With[C any](s *Set, action func(C)) {
	s.r.notify(unit{}, capable(s.r, func(c C) func() {
		return func() { action(c) }
	}))
}

package observer

// capable returns a visitor that dispatches bind(c) to the subscriber's sink
// when the live object implements C.
func capable[K comparable, C any](r *registry[K], bind func(C) func()) visitor {
	return func(obj any, sink Sink) bool {
		c, ok := obj.(C)
		if !ok {
			return false
		}
		r.deliver(sink, bind(c))
		return true
	}
}

// Implements reports whether ref's subscriber is alive and implements C.
func Implements[C any](ref Reference) bool {
	obj, ok := ref.Resolve()
	if !ok {
		return false
	}
	_, ok = obj.(C)
	return ok
}

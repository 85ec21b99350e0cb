package observer

import "context"

// Sink accepts a unit of work for delivery. Implementations may run it
// immediately or later on another goroutine.
type Sink interface {
	Submit(fn func())
}

// TrySink is a Sink that can refuse work instead of blocking. A pass offers
// work to TrySubmit while it holds the registry lock and hands anything
// refused to Submit once the lock is released.
type TrySink interface {
	Sink
	TrySubmit(fn func()) bool
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(fn func())

// Submit implements Sink.
func (f SinkFunc) Submit(fn func()) {
	f(fn)
}

// Inline runs work synchronously on the submitting goroutine.
var Inline Sink = SinkFunc(func(fn func()) { fn() })

// Detached runs each unit of work on its own goroutine.
var Detached Sink = SinkFunc(func(fn func()) { go fn() })

type sinkKey struct{}

// ContextWithSink returns a context carrying s. Registrations made with that
// context record s as the subscriber's delivery sink.
func ContextWithSink(ctx context.Context, s Sink) context.Context {
	return context.WithValue(ctx, sinkKey{}, s)
}

// SinkFromContext returns the sink carried by ctx, if any.
func SinkFromContext(ctx context.Context) (Sink, bool) {
	if ctx == nil {
		return nil, false
	}
	s, ok := ctx.Value(sinkKey{}).(Sink)
	return s, ok && s != nil
}

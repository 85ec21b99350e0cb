package observer

import (
	"time"

	"github.com/rs/zerolog"
)

// DefaultTryWait is how long Add and Remove wait for a busy registry before
// parking the mutation in a pending buffer.
const DefaultTryWait = time.Millisecond

// PanicHandler is called when an action panics during delivery.
type PanicHandler func(recovered any, stack []byte)

// Option configures a Set or Keyed registry.
type Option func(*config)

// config contains registry configuration.
type config struct {
	// name labels log lines and metrics.
	name string

	// tryWait bounds how long a mutation waits for the main lock.
	tryWait time.Duration

	// sink is recorded for registrations whose context carries none.
	sink Sink

	logger       zerolog.Logger
	metrics      Metrics
	panicHandler PanicHandler
}

func defaultConfig() config {
	return config{
		name:    "observers",
		tryWait: DefaultTryWait,
		sink:    Inline,
		logger:  zerolog.Nop(),
		metrics: nopMetrics{},
	}
}

// WithName sets the name used in logs and metrics.
func WithName(name string) Option {
	return func(c *config) {
		if name != "" {
			c.name = name
		}
	}
}

// WithTryWait sets how long a mutation waits for the main lock before it is
// deferred. Zero means a single non-blocking attempt.
func WithTryWait(d time.Duration) Option {
	return func(c *config) {
		if d >= 0 {
			c.tryWait = d
		}
	}
}

// WithSink sets the default delivery sink.
func WithSink(s Sink) Option {
	return func(c *config) {
		if s != nil {
			c.sink = s
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(c *config) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithPanicHandler sets a handler for actions that panic.
func WithPanicHandler(h PanicHandler) Option {
	return func(c *config) {
		c.panicHandler = h
	}
}

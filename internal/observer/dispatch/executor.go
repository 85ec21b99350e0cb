package dispatch

import (
	"runtime/debug"
	"time"
)

// PanicHandler is called when submitted work panics.
// It receives the panic value and the stack trace captured at recovery.
type PanicHandler func(panicValue any, stack []byte)

// Result describes one execution of a unit of work.
type Result struct {
	// Panicked is true if the work panicked.
	Panicked bool

	// PanicValue is the value passed to panic(), if Panicked is true.
	PanicValue any

	// PanicStack is the stack trace at the point of panic.
	PanicStack []byte

	// Duration is how long the work took to run.
	Duration time.Duration
}

// Executor runs work with panic recovery and timing.
type Executor struct {
	panicHandler PanicHandler
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithExecutorPanicHandler sets the panic handler for the executor.
func WithExecutorPanicHandler(h PanicHandler) ExecutorOption {
	return func(e *Executor) {
		e.panicHandler = h
	}
}

// NewExecutor creates a new executor with the given options.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes fn and returns the result. A panic raised by fn is recovered
// and reported to the panic handler; it never propagates to the caller.
func (e *Executor) Run(fn func()) (result Result) {
	start := time.Now()

	defer func() {
		result.Duration = time.Since(start)

		if r := recover(); r != nil {
			stack := debug.Stack()

			result.Panicked = true
			result.PanicValue = r
			result.PanicStack = stack

			if e.panicHandler != nil {
				func() {
					// A panicking panic handler must not crash the worker.
					defer func() { _ = recover() }()
					e.panicHandler(r, stack)
				}()
			}
		}
	}()

	fn()
	return result
}

// Wrap returns a func that runs fn through the executor.
func (e *Executor) Wrap(fn func()) func() {
	return func() {
		e.Run(fn)
	}
}

package dispatch

import "errors"

// Sentinel errors for the dispatch package.
var (
	// ErrAlreadyRunning is returned when Start is called on a running pool.
	ErrAlreadyRunning = errors.New("dispatch pool is already running")

	// ErrNotRunning is returned when work is offered to a stopped pool.
	ErrNotRunning = errors.New("dispatch pool is not running")

	// ErrQueueFull is returned by Enqueue when the queue is at capacity.
	ErrQueueFull = errors.New("dispatch queue is full")
)

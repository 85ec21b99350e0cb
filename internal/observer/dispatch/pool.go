package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Pool executes submitted work on a fixed set of worker goroutines fed by a
// bounded queue. It satisfies observer.Sink.
type Pool struct {
	// Configuration
	queueSize   int
	workerCount int

	// State
	mu      sync.RWMutex // held for reading while sending; for writing while closing
	queue   chan func()
	running atomic.Bool
	wg      sync.WaitGroup

	panicHandler PanicHandler

	// Stats
	submitted   atomic.Uint64
	processed   atomic.Uint64
	panicked    atomic.Uint64
	dropped     atomic.Uint64
	totalTimeNs atomic.Int64
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithQueueSize sets the task queue size.
func WithQueueSize(size int) PoolOption {
	return func(p *Pool) {
		if size > 0 {
			p.queueSize = size
		}
	}
}

// WithWorkerCount sets the number of worker goroutines.
func WithWorkerCount(count int) PoolOption {
	return func(p *Pool) {
		if count > 0 {
			p.workerCount = count
		}
	}
}

// WithPoolPanicHandler sets the panic handler used by every worker.
func WithPoolPanicHandler(h PanicHandler) PoolOption {
	return func(p *Pool) {
		p.panicHandler = h
	}
}

// NewPool creates a new worker pool. Call Start before submitting work.
func NewPool(opts ...PoolOption) *Pool {
	p := &Pool{
		queueSize:   1024,
		workerCount: 8,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewSerial creates a pool with exactly one worker, so work runs one item at
// a time in submission order.
func NewSerial(opts ...PoolOption) *Pool {
	opts = append(opts, WithWorkerCount(1))
	return NewPool(opts...)
}

// Start starts the worker goroutines.
func (p *Pool) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running.Load() {
		return ErrAlreadyRunning
	}

	p.queue = make(chan func(), p.queueSize)
	p.running.Store(true)

	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(p.queue)
	}

	return nil
}

// Stop stops accepting work and waits for queued work to finish or for ctx
// to be done, whichever comes first.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running.Load() {
		p.mu.Unlock()
		return ErrNotRunning
	}
	p.running.Store(false)
	close(p.queue)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Submit queues fn, blocking while the queue is full. Work submitted to a
// stopped pool is dropped and counted.
func (p *Pool) Submit(fn func()) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.running.Load() {
		p.dropped.Add(1)
		return
	}
	p.queue <- fn
	p.submitted.Add(1)
}

// Enqueue queues fn without blocking. It returns ErrQueueFull if the queue
// is at capacity and ErrNotRunning if the pool is stopped.
func (p *Pool) Enqueue(fn func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.running.Load() {
		p.dropped.Add(1)
		return ErrNotRunning
	}

	select {
	case p.queue <- fn:
		p.submitted.Add(1)
		return nil
	default:
		p.dropped.Add(1)
		return ErrQueueFull
	}
}

// TrySubmit queues fn if there is room and reports whether it did. Unlike
// Enqueue a refusal is not counted as dropped.
func (p *Pool) TrySubmit(fn func()) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.running.Load() {
		return false
	}

	select {
	case p.queue <- fn:
		p.submitted.Add(1)
		return true
	default:
		return false
	}
}

// worker drains the queue it was started with.
func (p *Pool) worker(queue <-chan func()) {
	defer p.wg.Done()

	executor := NewExecutor(WithExecutorPanicHandler(p.panicHandler))

	for fn := range queue {
		result := executor.Run(fn)
		p.processed.Add(1)
		if result.Panicked {
			p.panicked.Add(1)
		}
		p.totalTimeNs.Add(result.Duration.Nanoseconds())
	}
}

// IsRunning returns true if the pool is accepting work.
func (p *Pool) IsRunning() bool {
	return p.running.Load()
}

// QueueDepth returns the number of queued, not yet started, work items.
func (p *Pool) QueueDepth() int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.running.Load() {
		return 0
	}
	return len(p.queue)
}

// PoolStats contains statistics for a pool.
type PoolStats struct {
	// Submitted is the number of work items accepted into the queue.
	Submitted uint64

	// Processed is the number of work items that have run.
	Processed uint64

	// Panicked is the number of work items that panicked.
	Panicked uint64

	// Dropped is the number of work items refused (stopped pool or full queue).
	Dropped uint64

	// QueueDepth is the current number of items waiting in the queue.
	QueueDepth int

	// TotalDuration is the cumulative time spent running work.
	TotalDuration time.Duration

	// AvgDuration is the average run time per item.
	AvgDuration time.Duration
}

// Stats returns pool statistics.
func (p *Pool) Stats() PoolStats {
	processed := p.processed.Load()
	totalNs := p.totalTimeNs.Load()

	var avgNs int64
	if processed > 0 {
		avgNs = totalNs / int64(processed)
	}

	return PoolStats{
		Submitted:     p.submitted.Load(),
		Processed:     processed,
		Panicked:      p.panicked.Load(),
		Dropped:       p.dropped.Load(),
		QueueDepth:    p.QueueDepth(),
		TotalDuration: time.Duration(totalNs),
		AvgDuration:   time.Duration(avgNs),
	}
}

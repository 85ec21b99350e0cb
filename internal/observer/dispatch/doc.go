// Package dispatch provides delivery sinks for observer notifications.
//
// A sink accepts a zero-argument unit of work and runs it later, possibly on
// another goroutine. The observer registry hands each matched invocation to
// the sink recorded for the subscriber at registration time.
//
// # Sinks
//
//   - Pool: a bounded queue drained by a fixed set of worker goroutines.
//     Deliveries to different subscribers may overlap in time.
//   - Serial: a Pool with a single worker. Work runs in submission order,
//     which makes it a good home for subscribers that are not goroutine-safe.
//
// Both recover panics raised by the submitted work through an Executor, so a
// failing subscriber never takes a worker down with it.
//
// # Lifecycle
//
//	pool := dispatch.NewPool(dispatch.WithWorkerCount(4))
//	if err := pool.Start(); err != nil {
//	    return err
//	}
//	defer pool.Stop(ctx)
//
//	set := observer.New(observer.WithSink(pool))
package dispatch

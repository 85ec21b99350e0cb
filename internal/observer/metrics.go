package observer

import "time"

// Op identifies a registration mutation.
type Op int

const (
	// OpAdd is an add mutation.
	OpAdd Op = iota

	// OpRemove is a remove mutation.
	OpRemove
)

// String returns the op name.
func (o Op) String() string {
	switch o {
	case OpAdd:
		return "add"
	case OpRemove:
		return "remove"
	default:
		return "unknown"
	}
}

// Metrics receives registry activity. Implementations must be safe for
// concurrent use and must not call back into the registry.
type Metrics interface {
	// ObservePass is called once per notification pass.
	ObservePass(registry string, notified, pruned int, elapsed time.Duration)

	// ObserveDeferred is called when a mutation is parked in a pending buffer.
	ObserveDeferred(registry string, op Op)

	// ObserveReconciled is called when parked mutations are applied.
	ObserveReconciled(registry string, adds, removes int)
}

type nopMetrics struct{}

func (nopMetrics) ObservePass(string, int, int, time.Duration) {}
func (nopMetrics) ObserveDeferred(string, Op)                  {}
func (nopMetrics) ObserveReconciled(string, int, int)          {}

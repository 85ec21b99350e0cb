package store

import "sync/atomic"

// Bridge is told about every committed mutation. It runs on the mutating
// goroutine and must not block.
type Bridge interface {
	Changed(key string)
}

// NopBridge ignores changes.
type NopBridge struct{}

// Changed implements Bridge.
func (NopBridge) Changed(string) {}

// Revision is a Bridge that counts committed mutations.
type Revision struct {
	n atomic.Uint64
}

// Changed implements Bridge.
func (r *Revision) Changed(string) {
	r.n.Add(1)
}

// Current returns the number of mutations seen so far.
func (r *Revision) Current() uint64 {
	return r.n.Load()
}

package observer

import (
	"weak"

	"github.com/google/uuid"
)

// Reference is a non-owning handle to a subscriber.
//
// Two references to the same subscriber compare as the same identity, so a
// subscriber can be removed with a reference built independently of the one
// used to add it. The zero Reference is ignored by every registry operation.
type Reference struct {
	id      any
	resolve func() (any, bool)
}

// Ref returns a reference backed by a weak pointer to p. The registry never
// extends p's lifetime; once p is collected the reference resolves to absent.
//
// p must point to a type with non-zero size: zero-sized values share a single
// address and therefore a single identity.
func Ref[T any](p *T) Reference {
	if p == nil {
		return Reference{}
	}
	wp := weak.Make(p)
	return Reference{
		id: wp,
		resolve: func() (any, bool) {
			v := wp.Value()
			if v == nil {
				return nil, false
			}
			return v, true
		},
	}
}

// Resolver returns a reference whose liveness is decided by fn. fn reports
// the live subscriber and true, or false once the subscriber is gone. Each
// call yields a new identity; keep the returned Reference to remove it later.
func Resolver(fn func() (any, bool)) Reference {
	if fn == nil {
		return Reference{}
	}
	return Reference{id: uuid.New(), resolve: fn}
}

// ID returns the identity used as the table key.
func (r Reference) ID() any {
	return r.id
}

// IsZero reports whether r is the zero Reference.
func (r Reference) IsZero() bool {
	return r.resolve == nil
}

// Resolve returns the live subscriber, or false if it is gone.
func (r Reference) Resolve() (any, bool) {
	if r.resolve == nil {
		return nil, false
	}
	return r.resolve()
}

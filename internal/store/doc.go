// Package store provides an observable key/value store.
//
// Store is the producer side of the observer registry: it owns a string
// map, and after every mutation it notifies the subscribers registered for
// the affected key. Subscribers opt into notifications by implementing
// ValueObserver, RemovalObserver, or both.
//
//	s := store.New(map[string]string{"A": "Hello", "B": "Foo"})
//	view := &View{}
//	s.Observe([]string{"A", "B"}, observer.Ref(view))
//	s.SetValue("A", "World") // view.ValueChanged("A", "World")
//	s.SetValue("C", "Pong")  // no subscriber for C
//
// A Bridge is invoked after each mutation, before subscribers are notified,
// so external change-tracking can follow the store without registering.
package store

package observer_test

import (
	"fmt"

	"github.com/dshills/kvobserve/internal/observer"
)

type ValueObserver interface {
	ValueChanged(key, value string)
}

type Printer struct {
	prefix string
}

func (p *Printer) ValueChanged(key, value string) {
	fmt.Printf("%s %s=%s\n", p.prefix, key, value)
}

func ExampleWith() {
	set := observer.New()
	p := &Printer{prefix: "set:"}
	set.Add(observer.Ref(p))

	observer.With(set, func(o ValueObserver) {
		o.ValueChanged("greeting", "hello")
	})

	set.Remove(observer.Ref(p))
	observer.With(set, func(o ValueObserver) {
		o.ValueChanged("greeting", "unseen")
	})
	// Output:
	// set: greeting=hello
}

func ExampleWithKey() {
	keyed := observer.NewKeyed[string]()
	p := &Printer{prefix: "keyed:"}
	keyed.AddKeys([]string{"A", "B"}, observer.Ref(p))

	observer.WithKey(keyed, "A", func(key string, o ValueObserver) {
		o.ValueChanged(key, "World")
	})
	observer.WithKey(keyed, "C", func(key string, o ValueObserver) {
		o.ValueChanged(key, "Pong")
	})
	// Output:
	// keyed: A=World
}

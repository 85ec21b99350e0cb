package observer

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dshills/kvobserve/internal/observer/dispatch"
)

func TestSet_ConcurrentStress(t *testing.T) {
	const (
		mutators  = 8
		notifiers = 4
		rounds    = 200
	)

	s := New(WithTryWait(50 * time.Microsecond))
	stable := &recorder{}
	s.Add(Ref(stable))

	var wg sync.WaitGroup
	stop := make(chan struct{})
	var passes atomic.Int64

	for n := 0; n < notifiers; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				With(s, func(g greeter) { g.Greet("stress") })
				passes.Add(1)
			}
		}()
	}

	var mwg sync.WaitGroup
	for m := 0; m < mutators; m++ {
		mwg.Add(1)
		go func() {
			defer mwg.Done()
			own := make([]*recorder, 4)
			for i := range own {
				own[i] = &recorder{}
			}
			for r := 0; r < rounds; r++ {
				o := own[r%len(own)]
				s.Add(Ref(o))
				s.Remove(Ref(o))
			}
		}()
	}

	within(t, 20*time.Second, mwg.Wait)
	close(stop)
	within(t, 10*time.Second, wg.Wait)

	s.Reconcile()

	if s.Len() != 1 {
		t.Errorf("expected only the stable subscriber to remain, got %d", s.Len())
	}
	if int64(stable.count()) != passes.Load() {
		t.Errorf("expected stable subscriber in every pass: passes=%d calls=%d", passes.Load(), stable.count())
	}
}

func TestSet_ConcurrentReentrantAsync(t *testing.T) {
	pool := dispatch.NewPool(dispatch.WithWorkerCount(4), dispatch.WithQueueSize(64))
	if err := pool.Start(); err != nil {
		t.Fatal(err)
	}
	defer pool.Stop(context.Background())

	s := New(WithSink(pool), WithTryWait(100*time.Microsecond))
	base := make([]*recorder, 16)
	for i := range base {
		base[i] = &recorder{}
		s.Add(Ref(base[i]))
	}
	// Churned subscribers do not implement greeter, so the number of
	// deliveries is fixed by the base set.
	extra := make([]*mute, 64)
	for i := range extra {
		extra[i] = &mute{name: "extra"}
	}

	const passes = 20
	var delivered sync.WaitGroup
	delivered.Add(passes * len(base))
	var next atomic.Int32

	within(t, 20*time.Second, func() {
		for pass := 0; pass < passes; pass++ {
			With(s, func(g greeter) {
				go func() {
					defer delivered.Done()
					i := int(next.Add(1)) % len(extra)
					s.Add(Ref(extra[i]))
					s.Remove(Ref(extra[i]))
				}()
				g.Greet("async")
			})
		}
		delivered.Wait()
	})

	s.Reconcile()

	if s.Len() != len(base) {
		t.Errorf("expected %d records after balanced churn, got %d", len(base), s.Len())
	}
	runtime.KeepAlive(base)
	runtime.KeepAlive(extra)
}

func TestKeyed_ConcurrentStress(t *testing.T) {
	const workers = 8

	k := NewKeyed[int](WithTryWait(50 * time.Microsecond))
	keys := []int{0, 1, 2, 3}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			o := &keyedRecorder{}
			for r := 0; r < 200; r++ {
				k.AddKeys(keys, Ref(o))
				k.RemoveKeys(keys, Ref(o))
			}
		}()
		go func() {
			defer wg.Done()
			for r := 0; r < 200; r++ {
				WithKeys(k, keys, func(int, notifier) {})
			}
		}()
	}

	within(t, 20*time.Second, wg.Wait)
	k.Reconcile()

	if got := k.Keys(); len(got) != 0 {
		t.Errorf("expected every key table to be deleted, got %v", got)
	}
}

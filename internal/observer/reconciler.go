package observer

import (
	"context"
	"time"
)

// Reconciler applies parked registry mutations on demand.
// Set and Keyed implement it.
type Reconciler interface {
	Reconcile()
}

// RunReconciler calls Reconcile on every registry each interval until ctx is
// done. It lets parked mutations take effect on registries that are rarely
// notified. A non-positive interval disables the loop; RunReconciler then
// just waits for ctx.
func RunReconciler(ctx context.Context, every time.Duration, regs ...Reconciler) error {
	if every <= 0 || len(regs) == 0 {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for _, r := range regs {
				r.Reconcile()
			}
		}
	}
}

package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/antoniostano/scenegen/internal/observability"
)

// Reconciler periodically folds cached session windows into the durable
// log. A single mutex guards the whole pass so the timer-driven sweep and
// a manual trigger can never interleave.
type Reconciler struct {
	coord    *Coordinator
	interval time.Duration
	metrics  *observability.Metrics
	log      *slog.Logger

	passMu sync.Mutex

	mu      sync.Mutex
	started bool
	stop    chan struct{}
	done    chan struct{}
}

func NewReconciler(coord *Coordinator, interval time.Duration, metrics *observability.Metrics, log *slog.Logger) *Reconciler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if log == nil {
		log = slog.Default()
	}
	return &Reconciler{
		coord:    coord,
		interval: interval,
		metrics:  metrics,
		log:      log,
	}
}

// Start launches the background loop. Calling Start on a running
// reconciler is a no-op.
func (r *Reconciler) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	r.started = true
	r.stop = make(chan struct{})
	r.done = make(chan struct{})

	go r.loop(r.stop, r.done)
	r.log.Info("reconciler started", "interval", r.interval)
}

func (r *Reconciler) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			r.runPass(context.Background(), "timer")
		}
	}
}

// Stop terminates the loop and blocks until the in-flight pass, if any,
// has completed.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return
	}
	r.started = false
	stop, done := r.stop, r.done
	r.mu.Unlock()

	close(stop)
	<-done
	r.log.Info("reconciler stopped")
}

// TriggerNow runs one reconciliation pass immediately, serialized against
// the timer-driven sweep.
func (r *Reconciler) TriggerNow(ctx context.Context) error {
	return r.runPass(ctx, "manual")
}

func (r *Reconciler) runPass(ctx context.Context, trigger string) error {
	r.passMu.Lock()
	defer r.passMu.Unlock()

	start := time.Now()
	err := r.coord.SyncToDurable(ctx)
	outcome := "ok"
	if err != nil {
		outcome = "error"
		r.log.Error("reconciliation pass failed", "trigger", trigger, "error", err)
	}
	r.metrics.ObserveReconcile(trigger, outcome, time.Since(start))
	return err
}

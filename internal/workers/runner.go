// Package workers contains the background synchronization workers and the
// runner that schedules them. Each worker is an independent periodic task:
// one goroutine, one interval, one shared cancellation context. Workers
// are stateless loops over the store and the SD client; nothing is shared
// in process beyond the datastore handle.
package workers

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/zulandar/deskmirror/internal/notify"
	"github.com/zulandar/deskmirror/internal/store"
	"gorm.io/gorm"
)

// Worker is one periodically scheduled sync task.
type Worker interface {
	Name() string
	Interval() time.Duration
	// Tick runs one cycle. The context carries the tick's soft deadline;
	// a worker that cannot finish in time persists its progress and
	// returns, resuming on the next tick. Tick errors are logged by the
	// runner, never fatal.
	Tick(ctx context.Context) error
}

// Runner schedules a set of workers, each on its own goroutine, and stops
// them together when the context is cancelled.
type Runner struct {
	db           *gorm.DB
	log          zerolog.Logger
	tickDeadline time.Duration
	workers      []Worker
	active       atomic.Int32
}

// NewRunner creates a Runner. tickDeadline bounds a single tick of any
// worker; zero disables the bound.
func NewRunner(db *gorm.DB, log zerolog.Logger, tickDeadline time.Duration) (*Runner, error) {
	if db == nil {
		return nil, fmt.Errorf("workers: db is required")
	}
	return &Runner{db: db, log: log, tickDeadline: tickDeadline}, nil
}

// Add registers a worker. Not safe to call after Run.
func (r *Runner) Add(w Worker) {
	r.workers = append(r.workers, w)
}

// ActiveTicks returns the number of workers currently inside a tick. The
// cleanup worker uses it to defer compaction while the store is busy.
func (r *Runner) ActiveTicks() int {
	return int(r.active.Load())
}

// Run starts every registered worker and blocks until ctx is cancelled
// and all workers have finished their in-flight tick.
func (r *Runner) Run(ctx context.Context) error {
	if len(r.workers) == 0 {
		return fmt.Errorf("workers: no workers registered")
	}

	var wg sync.WaitGroup
	for _, w := range r.workers {
		wg.Add(1)
		go func(w Worker) {
			defer wg.Done()
			r.loop(ctx, w)
		}(w)
	}
	wg.Wait()
	return nil
}

// loop runs one worker: an immediate first tick, then one per interval.
func (r *Runner) loop(ctx context.Context, w Worker) {
	log := r.log.With().Str("worker", w.Name()).Logger()
	log.Info().Dur("interval", w.Interval()).Msg("worker started")

	for {
		r.runTick(ctx, w, log)
		if !sleepWithContext(ctx, w.Interval()) {
			log.Info().Msg("worker stopped")
			return
		}
	}
}

// runTick executes one tick under the soft deadline, recovering panics
// and recording the watermark after a clean run.
func (r *Runner) runTick(ctx context.Context, w Worker, log zerolog.Logger) {
	if ctx.Err() != nil {
		return
	}

	tctx := ctx
	if r.tickDeadline > 0 {
		var cancel context.CancelFunc
		tctx, cancel = context.WithTimeout(ctx, r.tickDeadline)
		defer cancel()
	}

	r.active.Add(1)
	defer r.active.Add(-1)

	start := time.Now()
	err := func() (err error) {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("workers: %s tick panicked: %v", w.Name(), p)
			}
		}()
		return w.Tick(tctx)
	}()

	if err != nil {
		log.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("tick failed")
		return
	}

	if werr := store.SetWatermark(r.db, w.Name(), time.Now()); werr != nil {
		log.Error().Err(werr).Msg("watermark write failed")
	}
	log.Debug().Dur("elapsed", time.Since(start)).Msg("tick done")
}

// sleepWithContext waits for d or until ctx is cancelled. Returns false
// when the context ended the wait.
func sleepWithContext(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// deliver hands events to the sink one by one. Delivery failures are
// logged and dropped: the front-end owns its own reliability, and a bad
// sink must not fail the tick that produced the transition.
func deliver(ctx context.Context, sink notify.Sink, log zerolog.Logger, events []notify.Event) {
	if sink == nil {
		return
	}
	for _, ev := range events {
		if err := sink.Deliver(ctx, ev); err != nil {
			log.Error().Err(err).Str("event_id", ev.ID).Str("type", ev.Type).
				Int64("ticket_id", ev.TicketID).Msg("event delivery failed")
		}
	}
}

package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	appdb "github.com/zulandar/deskmirror/internal/db"
	"github.com/zulandar/deskmirror/internal/store"
	"gorm.io/gorm"
)

// cronParser uses standard 5-field cron expressions (minute, hour, dom,
// month, dow) for the compaction schedule.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Cleanup bounds local state growth: idle sessions past the TTL and
// history rows past the retention horizon are removed as bulk conditional
// deletes. Optional store compaction runs on a cron schedule, deferred
// while any other worker is mid-tick.
type Cleanup struct {
	db          *gorm.DB
	interval    time.Duration
	sessionTTL  time.Duration
	retention   time.Duration
	compact     cron.Schedule // nil disables compaction
	nextCompact time.Time
	busyTicks   func() int // number of workers currently inside a tick
	log         zerolog.Logger
}

// CleanupOpts holds parameters for creating a Cleanup worker.
type CleanupOpts struct {
	DB         *gorm.DB
	Interval   time.Duration
	SessionTTL time.Duration
	Retention  time.Duration
	// CompactSchedule is a 5-field cron expression; empty disables
	// compaction.
	CompactSchedule string
	// BusyTicks reports how many workers are inside a tick right now
	// (including this one). Compaction waits until it is the only one.
	BusyTicks func() int
	Log       zerolog.Logger
}

// NewCleanup creates a Cleanup worker.
func NewCleanup(opts CleanupOpts) (*Cleanup, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("workers: db is required")
	}
	if opts.Interval <= 0 {
		return nil, fmt.Errorf("workers: interval must be positive")
	}
	if opts.SessionTTL <= 0 {
		return nil, fmt.Errorf("workers: session ttl must be positive")
	}
	if opts.Retention <= 0 {
		return nil, fmt.Errorf("workers: retention must be positive")
	}

	w := &Cleanup{
		db:         opts.DB,
		interval:   opts.Interval,
		sessionTTL: opts.SessionTTL,
		retention:  opts.Retention,
		busyTicks:  opts.BusyTicks,
		log:        opts.Log.With().Str("worker", "cleanup").Logger(),
	}
	if opts.CompactSchedule != "" {
		sched, err := cronParser.Parse(opts.CompactSchedule)
		if err != nil {
			return nil, fmt.Errorf("workers: compact schedule %q: %w", opts.CompactSchedule, err)
		}
		w.compact = sched
		w.nextCompact = sched.Next(time.Now())
	}
	return w, nil
}

func (w *Cleanup) Name() string            { return "cleanup" }
func (w *Cleanup) Interval() time.Duration { return w.interval }

// Tick runs the two independent sweeps, then compaction when due.
func (w *Cleanup) Tick(ctx context.Context) error {
	sessions, err := store.DeleteIdleSessions(w.db, w.sessionTTL)
	if err != nil {
		return err
	}
	if sessions > 0 {
		w.log.Info().Int64("deleted", sessions).Msg("idle sessions evicted")
	}

	done, err := store.PurgeDone(w.db, w.retention)
	if err != nil {
		return err
	}
	if done > 0 {
		w.log.Info().Int64("deleted", done).Msg("done tickets purged")
	}

	w.maybeCompact(ctx)
	return nil
}

// maybeCompact runs store compaction when the schedule says so and no
// other worker is mid-tick. A busy store keeps the slot pending; the next
// tick retries instead of advancing the schedule.
func (w *Cleanup) maybeCompact(ctx context.Context) {
	if w.compact == nil || time.Now().Before(w.nextCompact) || ctx.Err() != nil {
		return
	}
	if w.busyTicks != nil && w.busyTicks() > 1 {
		w.log.Debug().Msg("compaction deferred, other workers mid-tick")
		return
	}

	if err := appdb.Compact(w.db); err != nil {
		w.log.Error().Err(err).Msg("compaction failed")
	} else {
		w.log.Info().Msg("store compacted")
	}
	w.nextCompact = w.compact.Next(time.Now())
}

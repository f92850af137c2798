package workers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/zulandar/deskmirror/internal/mirror"
	"github.com/zulandar/deskmirror/internal/models"
	"github.com/zulandar/deskmirror/internal/notify"
	"github.com/zulandar/deskmirror/internal/sd"
	"github.com/zulandar/deskmirror/internal/store"
	"gorm.io/gorm"
)

// executorLister is the slice of the SD client the executor sync needs.
type executorLister interface {
	ListByExecutor(ctx context.Context, token string, sdUserID int64, pageSize, maxPages int) ([]sd.Ticket, error)
}

// ExecutorSync reconciles each executor session's remotely-assigned
// tickets against the mirror.
type ExecutorSync struct {
	db       *gorm.DB
	client   executorLister
	sink     notify.Sink
	interval time.Duration
	pageSize int
	maxPages int
	log      zerolog.Logger
}

// ExecutorSyncOpts holds parameters for creating an ExecutorSync.
type ExecutorSyncOpts struct {
	DB       *gorm.DB
	Client   executorLister
	Sink     notify.Sink
	Interval time.Duration
	PageSize int
	MaxPages int
	Log      zerolog.Logger
}

// NewExecutorSync creates an ExecutorSync.
func NewExecutorSync(opts ExecutorSyncOpts) (*ExecutorSync, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("workers: db is required")
	}
	if opts.Client == nil {
		return nil, fmt.Errorf("workers: sd client is required")
	}
	if opts.Interval <= 0 {
		return nil, fmt.Errorf("workers: interval must be positive")
	}
	return &ExecutorSync{
		db:       opts.DB,
		client:   opts.Client,
		sink:     opts.Sink,
		interval: opts.Interval,
		pageSize: opts.PageSize,
		maxPages: opts.MaxPages,
		log:      opts.Log.With().Str("worker", "executor-sync").Logger(),
	}, nil
}

func (w *ExecutorSync) Name() string            { return "executor-sync" }
func (w *ExecutorSync) Interval() time.Duration { return w.interval }

// Tick reconciles every syncable executor session. One failing session is
// logged and skipped; the rest of the batch still runs.
func (w *ExecutorSync) Tick(ctx context.Context) error {
	sessions, err := store.ListSyncable(w.db, models.RoleExecutor)
	if err != nil {
		return err
	}

	for i := range sessions {
		if ctx.Err() != nil {
			return nil
		}
		w.syncOne(ctx, &sessions[i])
	}
	return nil
}

func (w *ExecutorSync) syncOne(ctx context.Context, sess *models.Session) {
	tickets, err := w.client.ListByExecutor(ctx, sess.TokenValue(), sess.SDUserID, w.pageSize, w.maxPages)
	switch {
	case errors.Is(err, sd.ErrUnauthorized):
		// The remote revoked the token early. Drop it so the next reauth
		// tick repairs the session instead of waiting out the expiry margin.
		w.log.Warn().Int64("owner", sess.UserID).Msg("unauthorized, token dropped for reauth")
		if cerr := store.ClearToken(w.db, sess.UserID); cerr != nil {
			w.log.Error().Err(cerr).Int64("owner", sess.UserID).Msg("token clear failed")
		}
		return
	case err != nil:
		w.log.Warn().Err(err).Int64("owner", sess.UserID).Msg("list failed, left for next tick")
		return
	}

	res, err := mirror.Reconcile(w.db, mirror.Scope{
		OwnerUserID: sess.UserID,
		TrackKind:   models.TrackExecutor,
	}, tickets)
	if err != nil {
		w.log.Error().Err(err).Int64("owner", sess.UserID).Msg("reconcile failed")
		return
	}
	if terr := store.Touch(w.db, sess.UserID); terr != nil {
		w.log.Error().Err(terr).Int64("owner", sess.UserID).Msg("session touch failed")
	}

	if len(res.Events) > 0 {
		w.log.Info().Int64("owner", sess.UserID).
			Int("inserted", res.Inserted).Int("updated", res.Updated).
			Int("migrated", res.Migrated).Int("removed", res.Removed).
			Msg("mirror reconciled")
	}
	deliver(ctx, w.sink, w.log, res.Events)
}

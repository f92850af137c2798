package workers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/zulandar/deskmirror/internal/mirror"
	"github.com/zulandar/deskmirror/internal/models"
	"github.com/zulandar/deskmirror/internal/notify"
	"github.com/zulandar/deskmirror/internal/sd"
	"github.com/zulandar/deskmirror/internal/store"
	"gorm.io/gorm"
)

// dispatcherClient is the slice of the SD client the dispatcher sync needs.
type dispatcherClient interface {
	ListByLocation(ctx context.Context, token, region, location string, pageSize, maxPages int) ([]sd.Ticket, error)
	GetUser(ctx context.Context, token string, sdUserID int64) (*sd.UserProfile, error)
}

// DispatcherSync reconciles the tickets of each dispatcher's region and
// location scope against a dispatcher-scoped view of the mirror.
type DispatcherSync struct {
	db       *gorm.DB
	client   dispatcherClient
	sink     notify.Sink
	interval time.Duration
	pageSize int
	maxPages int
	log      zerolog.Logger
}

// DispatcherSyncOpts holds parameters for creating a DispatcherSync.
type DispatcherSyncOpts struct {
	DB       *gorm.DB
	Client   dispatcherClient
	Sink     notify.Sink
	Interval time.Duration
	PageSize int
	MaxPages int
	Log      zerolog.Logger
}

// NewDispatcherSync creates a DispatcherSync.
func NewDispatcherSync(opts DispatcherSyncOpts) (*DispatcherSync, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("workers: db is required")
	}
	if opts.Client == nil {
		return nil, fmt.Errorf("workers: sd client is required")
	}
	if opts.Interval <= 0 {
		return nil, fmt.Errorf("workers: interval must be positive")
	}
	return &DispatcherSync{
		db:       opts.DB,
		client:   opts.Client,
		sink:     opts.Sink,
		interval: opts.Interval,
		pageSize: opts.PageSize,
		maxPages: opts.MaxPages,
		log:      opts.Log.With().Str("worker", "dispatcher-sync").Logger(),
	}, nil
}

func (w *DispatcherSync) Name() string            { return "dispatcher-sync" }
func (w *DispatcherSync) Interval() time.Duration { return w.interval }

// Tick reconciles every syncable dispatcher session.
func (w *DispatcherSync) Tick(ctx context.Context) error {
	sessions, err := store.ListSyncable(w.db, models.RoleDispatcher)
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

func (w *DispatcherSync) syncOne(ctx context.Context, sess *models.Session) {
	region, location, ok := w.ensureLocation(ctx, sess)
	if !ok {
		return
	}

	tickets, err := w.client.ListByLocation(ctx, sess.TokenValue(), region, location, w.pageSize, w.maxPages)
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
		TrackKind:   models.TrackDispatcher,
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

// ensureLocation returns the dispatcher's region and location, enriching
// the session from the SD user profile when they are not yet denormalized.
func (w *DispatcherSync) ensureLocation(ctx context.Context, sess *models.Session) (region, location string, ok bool) {
	region = strings.TrimSpace(sess.Region)
	location = strings.TrimSpace(sess.Location)
	if region != "" && location != "" {
		return region, location, true
	}

	profile, err := w.client.GetUser(ctx, sess.TokenValue(), sess.SDUserID)
	switch {
	case errors.Is(err, sd.ErrUnauthorized):
		w.log.Warn().Int64("owner", sess.UserID).Msg("unauthorized on profile fetch, token dropped for reauth")
		if cerr := store.ClearToken(w.db, sess.UserID); cerr != nil {
			w.log.Error().Err(cerr).Int64("owner", sess.UserID).Msg("token clear failed")
		}
		return "", "", false
	case err != nil:
		w.log.Warn().Err(err).Int64("owner", sess.UserID).Msg("profile fetch failed, left for next tick")
		return "", "", false
	}
	if profile.Address == nil {
		w.log.Warn().Int64("owner", sess.UserID).Msg("profile carries no address, dispatcher scope unknown")
		return "", "", false
	}

	region = strings.TrimSpace(profile.Address.Region)
	location = strings.TrimSpace(profile.Address.Location)
	addressID := profile.Address.ID
	if err := store.SetLocation(w.db, sess.UserID, region, location, profile.Address.FullAddress, &addressID); err != nil {
		w.log.Error().Err(err).Int64("owner", sess.UserID).Msg("location update failed")
	}
	if region == "" || location == "" {
		return "", "", false
	}
	return region, location, true
}

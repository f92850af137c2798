package workers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/zulandar/deskmirror/internal/models"
	"github.com/zulandar/deskmirror/internal/sd"
	"github.com/zulandar/deskmirror/internal/store"
	"gorm.io/gorm"
)

// authenticator is the slice of the SD client the reauth worker needs.
type authenticator interface {
	Authenticate(ctx context.Context, username, password string) (*sd.AuthResult, error)
}

// Reauth keeps session tokens valid. Any session without a token, or with
// a token expiring within the safety margin, is re-authenticated with its
// stored credentials. The token pair swap is one UPDATE, so in-flight
// requests holding the old token are never disturbed.
type Reauth struct {
	db       *gorm.DB
	client   authenticator
	interval time.Duration
	margin   time.Duration
	log      zerolog.Logger
}

// ReauthOpts holds parameters for creating a Reauth worker.
type ReauthOpts struct {
	DB       *gorm.DB
	Client   authenticator
	Interval time.Duration
	Margin   time.Duration
	Log      zerolog.Logger
}

// NewReauth creates a Reauth worker.
func NewReauth(opts ReauthOpts) (*Reauth, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("workers: db is required")
	}
	if opts.Client == nil {
		return nil, fmt.Errorf("workers: sd client is required")
	}
	if opts.Interval <= 0 {
		return nil, fmt.Errorf("workers: interval must be positive")
	}
	if opts.Margin < 0 {
		return nil, fmt.Errorf("workers: margin must not be negative")
	}
	return &Reauth{
		db:       opts.DB,
		client:   opts.Client,
		interval: opts.Interval,
		margin:   opts.Margin,
		log:      opts.Log.With().Str("worker", "reauth").Logger(),
	}, nil
}

func (w *Reauth) Name() string            { return "reauth" }
func (w *Reauth) Interval() time.Duration { return w.interval }

// Tick refreshes every session due for reauth. Sessions frozen by a prior
// credential rejection never reach this list, so no authenticate call goes
// out for them until they are re-linked.
func (w *Reauth) Tick(ctx context.Context) error {
	sessions, err := store.ListNeedingReauth(w.db, w.margin)
	if err != nil {
		return err
	}

	var ok, failed int
	for i := range sessions {
		if ctx.Err() != nil {
			break
		}
		if w.reauthOne(ctx, &sessions[i]) {
			ok++
		} else {
			failed++
		}
	}
	if ok+failed > 0 {
		w.log.Info().Int("refreshed", ok).Int("failed", failed).Msg("reauth pass done")
	}
	return nil
}

func (w *Reauth) reauthOne(ctx context.Context, sess *models.Session) bool {
	username, password, err := store.Credentials(w.db, sess.UserID)
	if err != nil {
		w.log.Error().Err(err).Int64("owner", sess.UserID).Msg("credential read failed")
		return false
	}

	res, err := w.client.Authenticate(ctx, username, password)
	switch {
	case errors.Is(err, sd.ErrInvalidCredentials):
		// Stored credentials rejected: freeze the session so no worker
		// hammers the auth endpoint until an explicit re-link.
		w.log.Warn().Int64("owner", sess.UserID).Msg("credentials rejected, session frozen until re-link")
		if ferr := store.MarkAuthFailed(w.db, sess.UserID); ferr != nil {
			w.log.Error().Err(ferr).Int64("owner", sess.UserID).Msg("freeze failed")
		}
		return false
	case err != nil:
		// Transient: state untouched, retried next cycle.
		w.log.Warn().Err(err).Int64("owner", sess.UserID).Msg("reauth failed, left for next tick")
		return false
	}

	if err := store.SwapToken(w.db, sess.UserID, res.Token, res.ExpiresAt); err != nil {
		w.log.Error().Err(err).Int64("owner", sess.UserID).Msg("token swap failed")
		return false
	}
	return true
}

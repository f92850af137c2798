package workers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
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

// pollerCursorKey persists the resume point when a tick hits its soft
// deadline mid-batch.
const pollerCursorKey = "cursor:poller"

// ticketGetter is the slice of the SD client the poller needs.
type ticketGetter interface {
	GetTicket(ctx context.Context, token string, ticketID int64) (*sd.Ticket, error)
}

// Poller re-checks every mirrored open ticket against the remote. State
// machine per ticket: current -> unchanged | updated | done.
type Poller struct {
	db       *gorm.DB
	client   ticketGetter
	sink     notify.Sink
	interval time.Duration
	log      zerolog.Logger
}

// PollerOpts holds parameters for creating a Poller.
type PollerOpts struct {
	DB       *gorm.DB
	Client   ticketGetter
	Sink     notify.Sink
	Interval time.Duration
	Log      zerolog.Logger
}

// NewPoller creates a Poller.
func NewPoller(opts PollerOpts) (*Poller, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("workers: db is required")
	}
	if opts.Client == nil {
		return nil, fmt.Errorf("workers: sd client is required")
	}
	if opts.Interval <= 0 {
		return nil, fmt.Errorf("workers: interval must be positive")
	}
	return &Poller{
		db:       opts.DB,
		client:   opts.Client,
		sink:     opts.Sink,
		interval: opts.Interval,
		log:      opts.Log.With().Str("worker", "poller").Logger(),
	}, nil
}

func (p *Poller) Name() string            { return "poller" }
func (p *Poller) Interval() time.Duration { return p.interval }

// Tick polls every current mirror row once. Failures on one ticket are
// logged and skipped; a deadline mid-batch persists the cursor so the
// next tick resumes where this one stopped.
func (p *Poller) Tick(ctx context.Context) error {
	rows, err := store.ListCurrent(p.db)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	cursorOwner, cursorTicket := p.readCursor()

	for i := range rows {
		row := &rows[i]
		if cursorOwner != 0 && !afterCursor(row, cursorOwner, cursorTicket) {
			continue
		}

		select {
		case <-ctx.Done():
			// Soft deadline: remember where we stopped and yield.
			p.writeCursor(row.OwnerUserID, row.TicketID)
			return nil
		default:
		}

		p.pollOne(ctx, row)
	}

	p.clearCursor()
	return nil
}

// pollOne checks a single mirror row against the remote.
func (p *Poller) pollOne(ctx context.Context, row *models.CurrentTicket) {
	sess, err := store.GetSession(p.db, row.OwnerUserID)
	if err != nil {
		p.log.Error().Err(err).Int64("owner", row.OwnerUserID).Msg("session lookup failed")
		return
	}
	if sess == nil || sess.AuthFailed || !sess.HasToken() {
		return
	}

	t, err := p.client.GetTicket(ctx, sess.TokenValue(), row.TicketID)
	switch {
	case errors.Is(err, sd.ErrNotFound):
		// Remote entity gone: resolved as an implicit terminal removal.
		ev, merr := mirror.MigrateChecked(p.db, row, mirror.StatusRemoved, nil)
		if merr != nil {
			p.log.Error().Err(merr).Int64("ticket_id", row.TicketID).Msg("migrate removed ticket failed")
			return
		}
		if ev != nil {
			deliver(ctx, p.sink, p.log, []notify.Event{*ev})
		}
		return
	case errors.Is(err, sd.ErrUnauthorized):
		// The remote revoked the token early. Drop it so the next reauth
		// tick repairs the session instead of waiting out the expiry margin.
		p.log.Warn().Int64("owner", row.OwnerUserID).Int64("ticket_id", row.TicketID).
			Msg("unauthorized, token dropped for reauth")
		if cerr := store.ClearToken(p.db, row.OwnerUserID); cerr != nil {
			p.log.Error().Err(cerr).Int64("owner", row.OwnerUserID).Msg("token clear failed")
		}
		return
	case err != nil:
		p.log.Warn().Err(err).Int64("ticket_id", row.TicketID).Msg("poll failed, left for next tick")
		return
	}

	if terr := store.Touch(p.db, row.OwnerUserID); terr != nil {
		p.log.Error().Err(terr).Int64("owner", row.OwnerUserID).Msg("session touch failed")
	}

	status := mirror.NormalizeStatus(t.Status)
	if mirror.IsTerminal(status) {
		ev, merr := mirror.MigrateChecked(p.db, row, status, t)
		if merr != nil {
			p.log.Error().Err(merr).Int64("ticket_id", row.TicketID).Msg("migrate failed")
			return
		}
		if ev != nil {
			deliver(ctx, p.sink, p.log, []notify.Event{*ev})
		}
		return
	}

	outcome, err := store.UpsertCurrent(p.db, mirror.CurrentFromRemote(row.OwnerUserID, row.TrackKind, t))
	if err != nil {
		p.log.Error().Err(err).Int64("ticket_id", row.TicketID).Msg("mirror update failed")
		return
	}
	if outcome.Stale {
		// The fetch still confirmed the ticket; record the check.
		if terr := store.TouchCurrent(p.db, row.OwnerUserID, row.TicketID); terr != nil {
			p.log.Error().Err(terr).Int64("ticket_id", row.TicketID).Msg("mirror touch failed")
		}
		return
	}
	if outcome.StatusChanged {
		ev := notify.NewEvent(notify.EventStatusChanged, row.TicketID, row.OwnerUserID)
		ev.Status = status
		ev.PrevStatus = outcome.PrevStatus
		ev.Title = t.Title
		deliver(ctx, p.sink, p.log, []notify.Event{ev})
	}
}

// afterCursor reports whether the row sits strictly past the resume point
// in the (owner, ticket) traversal order.
func afterCursor(row *models.CurrentTicket, owner, ticket int64) bool {
	if row.OwnerUserID != owner {
		return row.OwnerUserID > owner
	}
	return row.TicketID >= ticket
}

func (p *Poller) readCursor() (owner, ticket int64) {
	v, ok, err := store.GetKV(p.db, pollerCursorKey)
	if err != nil || !ok {
		return 0, 0
	}
	parts := strings.SplitN(v, "/", 2)
	if len(parts) != 2 {
		return 0, 0
	}
	owner, _ = strconv.ParseInt(parts[0], 10, 64)
	ticket, _ = strconv.ParseInt(parts[1], 10, 64)
	return owner, ticket
}

func (p *Poller) writeCursor(owner, ticket int64) {
	v := fmt.Sprintf("%d/%d", owner, ticket)
	if err := store.SetKV(p.db, pollerCursorKey, v); err != nil {
		p.log.Error().Err(err).Msg("cursor write failed")
	}
}

func (p *Poller) clearCursor() {
	if err := store.DeleteKV(p.db, pollerCursorKey); err != nil {
		p.log.Error().Err(err).Msg("cursor clear failed")
	}
}

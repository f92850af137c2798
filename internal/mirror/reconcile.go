package mirror

import (
	"fmt"
	"time"

	"github.com/zulandar/deskmirror/internal/models"
	"github.com/zulandar/deskmirror/internal/notify"
	"github.com/zulandar/deskmirror/internal/sd"
	"github.com/zulandar/deskmirror/internal/store"
	"gorm.io/gorm"
)

// Scope identifies one reconciliation domain: the local rows owned by one
// session through one sync path.
type Scope struct {
	OwnerUserID int64
	TrackKind   string
}

// Result summarizes what one reconciliation pass changed. Events holds
// exactly one entry per observed state transition; running the same pass
// again against an unchanged remote list yields an empty Result.
type Result struct {
	Inserted int
	Updated  int
	Migrated int
	Removed  int
	Events   []notify.Event
}

// Reconcile diffs the remote list against the local current-set for one
// scope and applies the difference:
//
//   - remote only        -> insert, new-assignment event
//   - both, fields differ -> update in place (status-changed event on a
//     status transition); terminal status migrates to history and emits
//     closed instead
//   - local only         -> remove, unassigned event; never migrated to
//     history, because absence from a paged list is not proof of closure
//
// Migration is idempotent, so racing the poller on the same ticket
// produces one closed event between them, not two.
func Reconcile(db *gorm.DB, scope Scope, remote []sd.Ticket) (*Result, error) {
	if db == nil {
		return nil, fmt.Errorf("mirror: db is required")
	}
	if scope.OwnerUserID == 0 || scope.TrackKind == "" {
		return nil, fmt.Errorf("mirror: scope owner and track kind are required")
	}

	res := &Result{}
	keep := make([]int64, 0, len(remote))

	for i := range remote {
		t := &remote[i]
		keep = append(keep, t.ID)

		if IsTerminal(t.Status) {
			if err := reconcileTerminal(db, scope, t, res); err != nil {
				return nil, err
			}
			continue
		}

		row := CurrentFromRemote(scope.OwnerUserID, scope.TrackKind, t)
		outcome, err := store.UpsertCurrent(db, row)
		if err != nil {
			return nil, fmt.Errorf("mirror: reconcile %d: %w", t.ID, err)
		}
		switch {
		case outcome.Inserted:
			res.Inserted++
			ev := notify.NewEvent(notify.EventNewAssignment, t.ID, scope.OwnerUserID)
			ev.Status = row.Status
			ev.Title = row.Title
			ev.Author = row.Author
			ev.Address = row.Address
			res.Events = append(res.Events, ev)
		case outcome.Stale:
			// A fresher version is already stored; nothing to report.
		case outcome.StatusChanged:
			res.Updated++
			ev := notify.NewEvent(notify.EventStatusChanged, t.ID, scope.OwnerUserID)
			ev.Status = row.Status
			ev.PrevStatus = outcome.PrevStatus
			ev.Title = row.Title
			res.Events = append(res.Events, ev)
		}
	}

	removed, err := store.DeleteCurrentNotIn(db, scope.OwnerUserID, scope.TrackKind, keep)
	if err != nil {
		return nil, fmt.Errorf("mirror: reconcile scope %d: %w", scope.OwnerUserID, err)
	}
	for _, r := range removed {
		res.Removed++
		ev := notify.NewEvent(notify.EventUnassigned, r.TicketID, scope.OwnerUserID)
		ev.Status = r.Status
		ev.Title = r.Title
		res.Events = append(res.Events, ev)
	}

	return res, nil
}

// reconcileTerminal handles a remote ticket already in a terminal state.
// A mirrored-open ticket migrates to history with a closed event; a ticket
// never mirrored open is recorded in history silently, since no local
// transition was observed.
func reconcileTerminal(db *gorm.DB, scope Scope, t *sd.Ticket, res *Result) error {
	status := NormalizeStatus(t.Status)

	// Most terminal tickets in a listing were never mirrored open; only
	// a mirrored one needs the migration transaction.
	mirrored, err := store.CurrentExists(db, scope.OwnerUserID, t.ID)
	if err != nil {
		return fmt.Errorf("mirror: check %d: %w", t.ID, err)
	}
	if mirrored {
		moved, err := store.MoveToDone(db, scope.OwnerUserID, t.ID, status, ClosedAt(t))
		if err != nil {
			return fmt.Errorf("mirror: migrate %d: %w", t.ID, err)
		}
		if moved {
			res.Migrated++
			ev := notify.NewEvent(notify.EventClosed, t.ID, scope.OwnerUserID)
			ev.Status = status
			ev.Title = t.Title
			res.Events = append(res.Events, ev)
			return nil
		}
	}

	if _, err := store.RecordDone(db, DoneFromRemote(scope.OwnerUserID, scope.TrackKind, t)); err != nil {
		return fmt.Errorf("mirror: record done %d: %w", t.ID, err)
	}
	return nil
}

// MigrateChecked migrates one mirrored ticket to history after the poller
// observed its terminal status directly. The closed event is produced only
// when this call performed the migration.
func MigrateChecked(db *gorm.DB, cur *models.CurrentTicket, finalStatus string, t *sd.Ticket) (*notify.Event, error) {
	if db == nil {
		return nil, fmt.Errorf("mirror: db is required")
	}
	if cur == nil {
		return nil, fmt.Errorf("mirror: current row is required")
	}

	// t is nil when the remote reported the ticket gone (404).
	closedAt := time.Now()
	if t != nil {
		closedAt = ClosedAt(t)
	}
	moved, err := store.MoveToDone(db, cur.OwnerUserID, cur.TicketID, NormalizeStatus(finalStatus), closedAt)
	if err != nil {
		return nil, err
	}
	if !moved {
		return nil, nil
	}
	ev := notify.NewEvent(notify.EventClosed, cur.TicketID, cur.OwnerUserID)
	ev.Status = NormalizeStatus(finalStatus)
	ev.Title = cur.Title
	return &ev, nil
}

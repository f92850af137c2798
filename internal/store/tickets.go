package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/zulandar/deskmirror/internal/models"
	"gorm.io/gorm"
)

// UpsertOutcome describes what an UpsertCurrent call actually did, so the
// caller can decide which event (if any) the write warrants.
type UpsertOutcome struct {
	Inserted      bool
	StatusChanged bool
	PrevStatus    string
	// Stale is set when the incoming row carried an older remote version
	// than the stored one and the write was dropped.
	Stale bool
}

// UpsertCurrent inserts or updates one mirror row inside a transaction.
// A row whose stored remote version is newer than the incoming one wins:
// a slow fetch must not overwrite data a faster worker already applied.
func UpsertCurrent(db *gorm.DB, row *models.CurrentTicket) (UpsertOutcome, error) {
	var out UpsertOutcome
	if db == nil {
		return out, fmt.Errorf("store: db is required")
	}
	if row == nil || row.TicketID == 0 {
		return out, fmt.Errorf("store: ticket row with id is required")
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		var existing models.CurrentTicket
		err := tx.Where("owner_user_id = ? AND ticket_id = ?", row.OwnerUserID, row.TicketID).
			First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			row.LastCheckedAt = time.Now()
			if err := tx.Create(row).Error; err != nil {
				return err
			}
			out.Inserted = true
			return nil
		case err != nil:
			return err
		}

		if existing.RemoteUpdatedTS > row.RemoteUpdatedTS && row.RemoteUpdatedTS > 0 {
			out.Stale = true
			return nil
		}

		out.PrevStatus = existing.Status
		out.StatusChanged = existing.Status != row.Status
		return tx.Model(&models.CurrentTicket{}).
			Where("owner_user_id = ? AND ticket_id = ?", row.OwnerUserID, row.TicketID).
			Updates(map[string]interface{}{
				"track_kind":        row.TrackKind,
				"status":            row.Status,
				"title":             row.Title,
				"sla":               row.SLA,
				"executor_id":       row.ExecutorID,
				"executor":          row.Executor,
				"author":            row.Author,
				"region":            row.Region,
				"location":          row.Location,
				"address":           row.Address,
				"remote_updated_ts": row.RemoteUpdatedTS,
				"raw_json":          row.RawJSON,
				"last_checked_at":   time.Now(),
			}).Error
	})
	if err != nil {
		return UpsertOutcome{}, fmt.Errorf("store: upsert current %d/%d: %w", row.OwnerUserID, row.TicketID, err)
	}
	return out, nil
}

// TouchCurrent refreshes last_checked_at without changing mirrored fields.
func TouchCurrent(db *gorm.DB, ownerUserID, ticketID int64) error {
	if db == nil {
		return fmt.Errorf("store: db is required")
	}
	err := db.Model(&models.CurrentTicket{}).
		Where("owner_user_id = ? AND ticket_id = ?", ownerUserID, ticketID).
		Update("last_checked_at", time.Now()).Error
	if err != nil {
		return fmt.Errorf("store: touch current %d/%d: %w", ownerUserID, ticketID, err)
	}
	return nil
}

// CurrentExists reports whether the mirror holds an open row for the pair.
func CurrentExists(db *gorm.DB, ownerUserID, ticketID int64) (bool, error) {
	if db == nil {
		return false, fmt.Errorf("store: db is required")
	}
	var n int64
	err := db.Model(&models.CurrentTicket{}).
		Where("owner_user_id = ? AND ticket_id = ?", ownerUserID, ticketID).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("store: current exists %d/%d: %w", ownerUserID, ticketID, err)
	}
	return n > 0, nil
}

// DoneExists reports whether the pair already migrated to history.
func DoneExists(db *gorm.DB, ownerUserID, ticketID int64) (bool, error) {
	if db == nil {
		return false, fmt.Errorf("store: db is required")
	}
	var n int64
	err := db.Model(&models.DoneTicket{}).
		Where("owner_user_id = ? AND ticket_id = ?", ownerUserID, ticketID).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("store: done exists %d/%d: %w", ownerUserID, ticketID, err)
	}
	return n > 0, nil
}

// MoveToDone migrates one ticket from the current mirror to history in a
// single transaction: no observer sees the ticket in both tables or in
// neither. The migration is idempotent — a ticket already in history is a
// no-op and reports moved=false, so racing workers emit at most one
// closed event between them.
func MoveToDone(db *gorm.DB, ownerUserID, ticketID int64, finalStatus string, closedAt time.Time) (moved bool, err error) {
	if db == nil {
		return false, fmt.Errorf("store: db is required")
	}
	err = db.Transaction(func(tx *gorm.DB) error {
		var done models.DoneTicket
		err := tx.Where("owner_user_id = ? AND ticket_id = ?", ownerUserID, ticketID).
			First(&done).Error
		if err == nil {
			// Already migrated; drop any leftover current row.
			return DeleteCurrent(tx, ownerUserID, ticketID)
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		var cur models.CurrentTicket
		err = tx.Where("owner_user_id = ? AND ticket_id = ?", ownerUserID, ticketID).
			First(&cur).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Nothing to migrate: another worker got here first.
			return nil
		}
		if err != nil {
			return err
		}

		if closedAt.IsZero() {
			closedAt = time.Now()
		}
		row := models.DoneTicket{
			OwnerUserID:     cur.OwnerUserID,
			TicketID:        cur.TicketID,
			TrackKind:       cur.TrackKind,
			Status:          finalStatus,
			Title:           cur.Title,
			SLA:             cur.SLA,
			ExecutorID:      cur.ExecutorID,
			Executor:        cur.Executor,
			Author:          cur.Author,
			Region:          cur.Region,
			Location:        cur.Location,
			Address:         cur.Address,
			RemoteUpdatedTS: cur.RemoteUpdatedTS,
			RawJSON:         cur.RawJSON,
			ClosedAt:        closedAt,
			MovedAt:         time.Now(),
		}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		if err := DeleteCurrent(tx, ownerUserID, ticketID); err != nil {
			return err
		}
		moved = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("store: move to done %d/%d: %w", ownerUserID, ticketID, err)
	}
	return moved, nil
}

// RecordDone inserts a history row directly, for tickets first observed
// in a terminal state without ever having been mirrored open. Inserting an
// already-recorded pair is a no-op.
func RecordDone(db *gorm.DB, row *models.DoneTicket) (inserted bool, err error) {
	if db == nil {
		return false, fmt.Errorf("store: db is required")
	}
	if row == nil || row.TicketID == 0 {
		return false, fmt.Errorf("store: ticket row with id is required")
	}
	err = db.Transaction(func(tx *gorm.DB) error {
		exists, err := DoneExists(tx, row.OwnerUserID, row.TicketID)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}
		if row.MovedAt.IsZero() {
			row.MovedAt = time.Now()
		}
		if row.ClosedAt.IsZero() {
			row.ClosedAt = row.MovedAt
		}
		if err := tx.Create(row).Error; err != nil {
			return err
		}
		inserted = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("store: record done %d/%d: %w", row.OwnerUserID, row.TicketID, err)
	}
	return inserted, nil
}

// ListCurrent returns all current mirror rows ordered by owner then
// ticket id, the traversal order the poller's resume cursor relies on.
func ListCurrent(db *gorm.DB) ([]models.CurrentTicket, error) {
	if db == nil {
		return nil, fmt.Errorf("store: db is required")
	}
	var out []models.CurrentTicket
	err := db.Order("owner_user_id ASC, ticket_id ASC").Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("store: list current: %w", err)
	}
	return out, nil
}

// ListCurrentForOwner returns one session's mirror rows for a track kind.
func ListCurrentForOwner(db *gorm.DB, ownerUserID int64, trackKind string) ([]models.CurrentTicket, error) {
	if db == nil {
		return nil, fmt.Errorf("store: db is required")
	}
	var out []models.CurrentTicket
	err := db.Where("owner_user_id = ? AND track_kind = ?", ownerUserID, trackKind).
		Order("ticket_id ASC").Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("store: list current for %d: %w", ownerUserID, err)
	}
	return out, nil
}

// DeleteCurrent removes one mirror row.
func DeleteCurrent(db *gorm.DB, ownerUserID, ticketID int64) error {
	if db == nil {
		return fmt.Errorf("store: db is required")
	}
	err := db.Where("owner_user_id = ? AND ticket_id = ?", ownerUserID, ticketID).
		Delete(&models.CurrentTicket{}).Error
	if err != nil {
		return fmt.Errorf("store: delete current %d/%d: %w", ownerUserID, ticketID, err)
	}
	return nil
}

// DeleteCurrentNotIn removes an owner's mirror rows (for one track kind)
// whose ticket ids are absent from keep, returning the removed rows so the
// caller can emit unassigned events. The delete is one bulk statement.
func DeleteCurrentNotIn(db *gorm.DB, ownerUserID int64, trackKind string, keep []int64) ([]models.CurrentTicket, error) {
	if db == nil {
		return nil, fmt.Errorf("store: db is required")
	}

	var removed []models.CurrentTicket
	err := db.Transaction(func(tx *gorm.DB) error {
		q := tx.Where("owner_user_id = ? AND track_kind = ?", ownerUserID, trackKind)
		if len(keep) > 0 {
			q = q.Where("ticket_id NOT IN ?", keep)
		}
		if err := q.Find(&removed).Error; err != nil {
			return err
		}
		if len(removed) == 0 {
			return nil
		}
		ids := make([]int64, len(removed))
		for i, r := range removed {
			ids[i] = r.TicketID
		}
		return tx.Where("owner_user_id = ? AND track_kind = ? AND ticket_id IN ?", ownerUserID, trackKind, ids).
			Delete(&models.CurrentTicket{}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("store: delete current not in %d: %w", ownerUserID, err)
	}
	return removed, nil
}

// PurgeDone deletes history rows moved strictly earlier than the retention
// horizon. A row exactly at the boundary is retained.
func PurgeDone(db *gorm.DB, retention time.Duration) (int64, error) {
	if db == nil {
		return 0, fmt.Errorf("store: db is required")
	}
	cutoff := time.Now().Add(-retention)
	result := db.Where("moved_at < ?", cutoff).Delete(&models.DoneTicket{})
	if result.Error != nil {
		return 0, fmt.Errorf("store: purge done: %w", result.Error)
	}
	return result.RowsAffected, nil
}

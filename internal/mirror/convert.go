package mirror

import (
	"encoding/json"
	"time"

	"github.com/zulandar/deskmirror/internal/models"
	"github.com/zulandar/deskmirror/internal/sd"
)

// CurrentFromRemote maps a remote ticket onto a mirror row for one owner.
func CurrentFromRemote(ownerUserID int64, trackKind string, t *sd.Ticket) *models.CurrentTicket {
	row := &models.CurrentTicket{
		OwnerUserID:     ownerUserID,
		TicketID:        t.ID,
		TrackKind:       trackKind,
		Status:          NormalizeStatus(t.Status),
		Title:           t.Title,
		SLA:             t.SLA,
		Author:          t.Author.Name(),
		Executor:        t.Executor.Name(),
		Region:          t.Region(),
		Location:        t.Location(),
		RemoteUpdatedTS: t.LastUpdatedTimestamp,
	}
	if t.Executor != nil {
		id := t.Executor.ID
		row.ExecutorID = &id
	}
	if t.Address != nil {
		row.Address = t.Address.FullAddress
	}
	if raw, err := json.Marshal(t); err == nil {
		row.RawJSON = string(raw)
	}
	return row
}

// DoneFromRemote maps a remote ticket observed terminal onto a history row.
func DoneFromRemote(ownerUserID int64, trackKind string, t *sd.Ticket) *models.DoneTicket {
	cur := CurrentFromRemote(ownerUserID, trackKind, t)
	return &models.DoneTicket{
		OwnerUserID:     cur.OwnerUserID,
		TicketID:        cur.TicketID,
		TrackKind:       cur.TrackKind,
		Status:          cur.Status,
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
		ClosedAt:        ClosedAt(t),
	}
}

// ClosedAt extracts the remote closing time, falling back to now when the
// remote document carries none.
func ClosedAt(t *sd.Ticket) time.Time {
	if t.ClosedTimestamp > 0 {
		return time.UnixMilli(t.ClosedTimestamp)
	}
	return time.Now()
}

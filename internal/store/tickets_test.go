package store

import (
	"testing"
	"time"

	"github.com/zulandar/deskmirror/internal/models"
)

func currentRow(owner, ticket int64, status string) *models.CurrentTicket {
	return &models.CurrentTicket{
		OwnerUserID: owner,
		TicketID:    ticket,
		TrackKind:   models.TrackExecutor,
		Status:      status,
		Title:       "Broken printer",
	}
}

func TestUpsertCurrent_Insert(t *testing.T) {
	db := testDB(t)

	out, err := UpsertCurrent(db, currentRow(1, 10, "OPENED"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.Inserted || out.StatusChanged || out.Stale {
		t.Errorf("outcome = %+v, want inserted only", out)
	}

	exists, _ := CurrentExists(db, 1, 10)
	if !exists {
		t.Error("row not inserted")
	}
}

func TestUpsertCurrent_StatusChange(t *testing.T) {
	db := testDB(t)
	if _, err := UpsertCurrent(db, currentRow(1, 10, "OPENED")); err != nil {
		t.Fatalf("seed: %v", err)
	}

	out, err := UpsertCurrent(db, currentRow(1, 10, "INPROGRESS"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Inserted || !out.StatusChanged || out.PrevStatus != "OPENED" {
		t.Errorf("outcome = %+v, want status change from OPENED", out)
	}

	out, err = UpsertCurrent(db, currentRow(1, 10, "INPROGRESS"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.StatusChanged {
		t.Errorf("outcome = %+v, same status must not report a change", out)
	}
}

func TestUpsertCurrent_RejectsStale(t *testing.T) {
	db := testDB(t)

	fresh := currentRow(1, 10, "INPROGRESS")
	fresh.RemoteUpdatedTS = 2000
	if _, err := UpsertCurrent(db, fresh); err != nil {
		t.Fatalf("seed: %v", err)
	}

	stale := currentRow(1, 10, "OPENED")
	stale.RemoteUpdatedTS = 1000
	out, err := UpsertCurrent(db, stale)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.Stale {
		t.Errorf("outcome = %+v, want stale", out)
	}

	rows, _ := ListCurrent(db)
	if len(rows) != 1 || rows[0].Status != "INPROGRESS" {
		t.Errorf("rows = %+v, stale write must not land", rows)
	}
}

func TestUpsertCurrent_PerOwnerRows(t *testing.T) {
	db := testDB(t)

	// The same remote ticket mirrored by two sessions yields two rows.
	if _, err := UpsertCurrent(db, currentRow(1, 10, "OPENED")); err != nil {
		t.Fatalf("owner 1: %v", err)
	}
	if _, err := UpsertCurrent(db, currentRow(2, 10, "OPENED")); err != nil {
		t.Fatalf("owner 2: %v", err)
	}

	rows, _ := ListCurrent(db)
	if len(rows) != 2 {
		t.Errorf("rows = %d, want 2", len(rows))
	}
}

func TestMoveToDone(t *testing.T) {
	db := testDB(t)
	if _, err := UpsertCurrent(db, currentRow(1, 10, "INPROGRESS")); err != nil {
		t.Fatalf("seed: %v", err)
	}

	closedAt := time.Now().Add(-time.Minute)
	moved, err := MoveToDone(db, 1, 10, "COMPLETED", closedAt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !moved {
		t.Fatal("moved = false, want true")
	}

	// Never in both tables, never in neither.
	cur, _ := CurrentExists(db, 1, 10)
	done, _ := DoneExists(db, 1, 10)
	if cur || !done {
		t.Errorf("current = %v, done = %v; want false/true", cur, done)
	}

	var row models.DoneTicket
	if err := db.Where("owner_user_id = ? AND ticket_id = ?", 1, 10).First(&row).Error; err != nil {
		t.Fatalf("fetch done row: %v", err)
	}
	if row.Status != "COMPLETED" || row.Title != "Broken printer" {
		t.Errorf("done row = %+v", row)
	}
	if row.ClosedAt.Unix() != closedAt.Unix() {
		t.Errorf("closed_at = %v, want %v", row.ClosedAt, closedAt)
	}
}

func TestMoveToDone_Idempotent(t *testing.T) {
	db := testDB(t)
	if _, err := UpsertCurrent(db, currentRow(1, 10, "INPROGRESS")); err != nil {
		t.Fatalf("seed: %v", err)
	}

	moved, err := MoveToDone(db, 1, 10, "CLOSED", time.Time{})
	if err != nil || !moved {
		t.Fatalf("first move: moved=%v err=%v", moved, err)
	}

	// Second migration of the same pair is a no-op: at most one closed
	// event between racing workers.
	moved, err = MoveToDone(db, 1, 10, "CLOSED", time.Time{})
	if err != nil {
		t.Fatalf("second move: %v", err)
	}
	if moved {
		t.Error("second move reported moved = true")
	}

	var n int64
	db.Model(&models.DoneTicket{}).Where("owner_user_id = ? AND ticket_id = ?", 1, 10).Count(&n)
	if n != 1 {
		t.Errorf("done rows = %d, want 1", n)
	}
}

func TestMoveToDone_AbsentCurrent(t *testing.T) {
	db := testDB(t)
	moved, err := MoveToDone(db, 1, 10, "CLOSED", time.Time{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if moved {
		t.Error("moved = true with nothing to migrate")
	}
	done, _ := DoneExists(db, 1, 10)
	if done {
		t.Error("done row created out of thin air")
	}
}

func TestMoveToDone_DropsLeftoverCurrent(t *testing.T) {
	db := testDB(t)
	if _, err := UpsertCurrent(db, currentRow(1, 10, "INPROGRESS")); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := MoveToDone(db, 1, 10, "CLOSED", time.Time{}); err != nil {
		t.Fatalf("first move: %v", err)
	}
	// Simulate a racing insert that recreated the current row.
	if _, err := UpsertCurrent(db, currentRow(1, 10, "CLOSED")); err != nil {
		t.Fatalf("reinsert: %v", err)
	}

	moved, err := MoveToDone(db, 1, 10, "CLOSED", time.Time{})
	if err != nil {
		t.Fatalf("second move: %v", err)
	}
	if moved {
		t.Error("moved = true, want cleanup-only no-op")
	}
	cur, _ := CurrentExists(db, 1, 10)
	if cur {
		t.Error("leftover current row survived")
	}
}

func TestRecordDone(t *testing.T) {
	db := testDB(t)

	inserted, err := RecordDone(db, &models.DoneTicket{
		OwnerUserID: 1, TicketID: 10, TrackKind: models.TrackExecutor, Status: "CLOSED",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !inserted {
		t.Error("inserted = false, want true")
	}

	inserted, err = RecordDone(db, &models.DoneTicket{
		OwnerUserID: 1, TicketID: 10, TrackKind: models.TrackExecutor, Status: "CLOSED",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inserted {
		t.Error("duplicate record reported inserted = true")
	}

	var row models.DoneTicket
	if err := db.Where("owner_user_id = ? AND ticket_id = ?", 1, 10).First(&row).Error; err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if row.MovedAt.IsZero() || row.ClosedAt.IsZero() {
		t.Errorf("timestamps not defaulted: %+v", row)
	}
}

func TestListCurrent_Order(t *testing.T) {
	db := testDB(t)
	for _, pair := range [][2]int64{{2, 5}, {1, 9}, {1, 3}, {2, 1}} {
		if _, err := UpsertCurrent(db, currentRow(pair[0], pair[1], "OPENED")); err != nil {
			t.Fatalf("seed %v: %v", pair, err)
		}
	}

	rows, err := ListCurrent(db)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := [][2]int64{{1, 3}, {1, 9}, {2, 1}, {2, 5}}
	if len(rows) != len(want) {
		t.Fatalf("rows = %d, want %d", len(rows), len(want))
	}
	for i, w := range want {
		if rows[i].OwnerUserID != w[0] || rows[i].TicketID != w[1] {
			t.Errorf("rows[%d] = %d/%d, want %d/%d", i, rows[i].OwnerUserID, rows[i].TicketID, w[0], w[1])
		}
	}
}

func TestListCurrentForOwner(t *testing.T) {
	db := testDB(t)
	if _, err := UpsertCurrent(db, currentRow(1, 10, "OPENED")); err != nil {
		t.Fatalf("seed: %v", err)
	}
	disp := currentRow(1, 11, "OPENED")
	disp.TrackKind = models.TrackDispatcher
	if _, err := UpsertCurrent(db, disp); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := UpsertCurrent(db, currentRow(2, 12, "OPENED")); err != nil {
		t.Fatalf("seed: %v", err)
	}

	rows, err := ListCurrentForOwner(db, 1, models.TrackExecutor)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 || rows[0].TicketID != 10 {
		t.Errorf("rows = %+v, want ticket 10 only", rows)
	}
}

func TestDeleteCurrentNotIn(t *testing.T) {
	db := testDB(t)
	for _, id := range []int64{10, 11, 12} {
		if _, err := UpsertCurrent(db, currentRow(1, id, "OPENED")); err != nil {
			t.Fatalf("seed %d: %v", id, err)
		}
	}
	other := currentRow(1, 13, "OPENED")
	other.TrackKind = models.TrackDispatcher
	if _, err := UpsertCurrent(db, other); err != nil {
		t.Fatalf("seed: %v", err)
	}

	removed, err := DeleteCurrentNotIn(db, 1, models.TrackExecutor, []int64{11})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(removed) != 2 {
		t.Fatalf("removed = %+v, want tickets 10 and 12", removed)
	}
	if removed[0].TicketID == removed[1].TicketID {
		t.Errorf("removed = %+v", removed)
	}

	kept, _ := ListCurrentForOwner(db, 1, models.TrackExecutor)
	if len(kept) != 1 || kept[0].TicketID != 11 {
		t.Errorf("kept = %+v, want ticket 11", kept)
	}
	// Other track kinds are untouched.
	if exists, _ := CurrentExists(db, 1, 13); !exists {
		t.Error("dispatcher-track row removed by executor sweep")
	}
}

func TestDeleteCurrentNotIn_EmptyKeep(t *testing.T) {
	db := testDB(t)
	if _, err := UpsertCurrent(db, currentRow(1, 10, "OPENED")); err != nil {
		t.Fatalf("seed: %v", err)
	}

	removed, err := DeleteCurrentNotIn(db, 1, models.TrackExecutor, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(removed) != 1 {
		t.Errorf("removed = %+v, want everything", removed)
	}
}

func TestPurgeDone(t *testing.T) {
	db := testDB(t)
	retention := 30 * 24 * time.Hour

	old := models.DoneTicket{OwnerUserID: 1, TicketID: 10, Status: "CLOSED",
		ClosedAt: time.Now().Add(-40 * 24 * time.Hour), MovedAt: time.Now().Add(-40 * 24 * time.Hour)}
	recent := models.DoneTicket{OwnerUserID: 1, TicketID: 11, Status: "CLOSED",
		ClosedAt: time.Now().Add(-time.Hour), MovedAt: time.Now().Add(-time.Hour)}
	if err := db.Create(&old).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := db.Create(&recent).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	n, err := PurgeDone(db, retention)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 {
		t.Errorf("purged = %d, want 1", n)
	}
	if exists, _ := DoneExists(db, 1, 10); exists {
		t.Error("expired history row survived")
	}
	if exists, _ := DoneExists(db, 1, 11); !exists {
		t.Error("recent history row purged")
	}
}

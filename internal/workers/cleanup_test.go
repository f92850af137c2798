package workers

import (
	"context"
	"testing"
	"time"

	"github.com/zulandar/deskmirror/internal/models"
	"github.com/zulandar/deskmirror/internal/store"
	"gorm.io/gorm"
)

func newTestCleanup(t *testing.T, db *gorm.DB, ttl, retention time.Duration) *Cleanup {
	t.Helper()
	w, err := NewCleanup(CleanupOpts{
		DB: db, Interval: time.Minute, SessionTTL: ttl, Retention: retention, Log: noplog(),
	})
	if err != nil {
		t.Fatalf("new cleanup: %v", err)
	}
	return w
}

func TestCleanup_EvictsIdleSessions(t *testing.T) {
	db := testDB(t)
	ttl := time.Hour

	idle := models.Session{UserID: 1, SDUserID: 11, Role: models.RoleUser,
		LinkedAt: time.Now(), LastSeenAt: time.Now().Add(-2 * time.Hour)}
	active := models.Session{UserID: 2, SDUserID: 12, Role: models.RoleUser,
		LinkedAt: time.Now(), LastSeenAt: time.Now()}
	if err := db.Create(&idle).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := db.Create(&active).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := newTestCleanup(t, db, ttl, 30*24*time.Hour).Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if s, _ := store.GetSession(db, 1); s != nil {
		t.Error("idle session survived")
	}
	if s, _ := store.GetSession(db, 2); s == nil {
		t.Error("active session evicted")
	}
}

func TestCleanup_BoundaryNotExpired(t *testing.T) {
	db := testDB(t)
	ttl := time.Hour

	// Idle for just under the TTL: not yet expired.
	s := models.Session{UserID: 1, SDUserID: 11, Role: models.RoleUser,
		LinkedAt: time.Now(), LastSeenAt: time.Now().Add(-ttl).Add(2 * time.Second)}
	if err := db.Create(&s).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := newTestCleanup(t, db, ttl, 30*24*time.Hour).Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if got, _ := store.GetSession(db, 1); got == nil {
		t.Error("session at the boundary evicted")
	}
}

func TestCleanup_PurgesExpiredHistory(t *testing.T) {
	db := testDB(t)
	retention := 30 * 24 * time.Hour

	old := models.DoneTicket{OwnerUserID: 1, TicketID: 10, Status: "CLOSED",
		ClosedAt: time.Now().Add(-45 * 24 * time.Hour), MovedAt: time.Now().Add(-45 * 24 * time.Hour)}
	recent := models.DoneTicket{OwnerUserID: 1, TicketID: 11, Status: "CLOSED",
		ClosedAt: time.Now(), MovedAt: time.Now()}
	if err := db.Create(&old).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := db.Create(&recent).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := newTestCleanup(t, db, time.Hour, retention).Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if exists, _ := store.DoneExists(db, 1, 10); exists {
		t.Error("expired history row survived")
	}
	if exists, _ := store.DoneExists(db, 1, 11); !exists {
		t.Error("recent history row purged")
	}
}

func TestNewCleanup_BadSchedule(t *testing.T) {
	db := testDB(t)
	_, err := NewCleanup(CleanupOpts{
		DB: db, Interval: time.Minute, SessionTTL: time.Hour, Retention: time.Hour,
		CompactSchedule: "not-cron", Log: noplog(),
	})
	if err == nil {
		t.Error("expected error for malformed schedule")
	}
}

func TestCleanup_CompactionDeferredWhileBusy(t *testing.T) {
	db := testDB(t)
	busy := 2
	w, err := NewCleanup(CleanupOpts{
		DB: db, Interval: time.Minute, SessionTTL: time.Hour, Retention: time.Hour,
		CompactSchedule: "* * * * *",
		BusyTicks:       func() int { return busy },
		Log:             noplog(),
	})
	if err != nil {
		t.Fatalf("new cleanup: %v", err)
	}

	// Force the slot due, then tick with another worker mid-tick: the
	// schedule must not advance.
	w.nextCompact = time.Now().Add(-time.Second)
	due := w.nextCompact
	if err := w.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if !w.nextCompact.Equal(due) {
		t.Error("deferred compaction advanced the schedule")
	}

	// Alone now: compaction runs and the next slot is scheduled.
	busy = 1
	if err := w.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if !w.nextCompact.After(time.Now()) {
		t.Errorf("next compaction = %v, want future slot", w.nextCompact)
	}
}

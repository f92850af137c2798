package store

import (
	"testing"
	"time"
)

func TestKV_SetGetDelete(t *testing.T) {
	db := testDB(t)

	if _, ok, err := GetKV(db, "missing"); err != nil || ok {
		t.Errorf("GetKV(missing) = ok=%v err=%v, want absent", ok, err)
	}

	if err := SetKV(db, "cursor:poller", "1/10"); err != nil {
		t.Fatalf("set: %v", err)
	}
	v, ok, err := GetKV(db, "cursor:poller")
	if err != nil || !ok || v != "1/10" {
		t.Errorf("get = %q ok=%v err=%v", v, ok, err)
	}

	// Overwrite in place.
	if err := SetKV(db, "cursor:poller", "2/4"); err != nil {
		t.Fatalf("set: %v", err)
	}
	v, _, _ = GetKV(db, "cursor:poller")
	if v != "2/4" {
		t.Errorf("get after overwrite = %q, want 2/4", v)
	}

	if err := DeleteKV(db, "cursor:poller"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := GetKV(db, "cursor:poller"); ok {
		t.Error("key survived delete")
	}

	// Deleting an absent key is fine.
	if err := DeleteKV(db, "cursor:poller"); err != nil {
		t.Errorf("delete absent: %v", err)
	}
}

func TestSetKV_EmptyKey(t *testing.T) {
	db := testDB(t)
	if err := SetKV(db, "", "v"); err == nil {
		t.Error("expected error for empty key")
	}
}

func TestWatermark_RoundTrip(t *testing.T) {
	db := testDB(t)

	if _, ok, err := Watermark(db, "poller"); err != nil || ok {
		t.Errorf("Watermark before any tick = ok=%v err=%v, want absent", ok, err)
	}

	at := time.Date(2026, 3, 14, 9, 26, 53, 589793238, time.UTC)
	if err := SetWatermark(db, "poller", at); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, ok, err := Watermark(db, "poller")
	if err != nil || !ok {
		t.Fatalf("get = ok=%v err=%v", ok, err)
	}
	if !got.Equal(at) {
		t.Errorf("watermark = %v, want %v", got, at)
	}

	// Workers do not share watermarks.
	if _, ok, _ := Watermark(db, "cleanup"); ok {
		t.Error("cleanup watermark set by poller write")
	}
}

package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/zulandar/deskmirror/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SetKV writes one key in the process-wide key-value table.
func SetKV(db *gorm.DB, k, v string) error {
	if db == nil {
		return fmt.Errorf("store: db is required")
	}
	if k == "" {
		return fmt.Errorf("store: key is required")
	}
	row := models.AppKV{K: k, V: v, UpdatedAt: time.Now()}
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "k"}},
		DoUpdates: clause.AssignmentColumns([]string{"v", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("store: set kv %q: %w", k, err)
	}
	return nil
}

// GetKV reads one key; ok is false when the key is absent.
func GetKV(db *gorm.DB, k string) (v string, ok bool, err error) {
	if db == nil {
		return "", false, fmt.Errorf("store: db is required")
	}
	var row models.AppKV
	err = db.Where("k = ?", k).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("store: get kv %q: %w", k, err)
	}
	return row.V, true, nil
}

// DeleteKV removes one key. Deleting an absent key is not an error.
func DeleteKV(db *gorm.DB, k string) error {
	if db == nil {
		return fmt.Errorf("store: db is required")
	}
	if err := db.Where("k = ?", k).Delete(&models.AppKV{}).Error; err != nil {
		return fmt.Errorf("store: delete kv %q: %w", k, err)
	}
	return nil
}

// SetWatermark records the completion time of a worker's last successful
// tick under "watermark:<worker>".
func SetWatermark(db *gorm.DB, worker string, t time.Time) error {
	return SetKV(db, "watermark:"+worker, t.UTC().Format(time.RFC3339Nano))
}

// Watermark reads a worker's last successful tick time; ok is false when
// the worker has never completed a tick.
func Watermark(db *gorm.DB, worker string) (t time.Time, ok bool, err error) {
	v, ok, err := GetKV(db, "watermark:"+worker)
	if err != nil || !ok {
		return time.Time{}, ok, err
	}
	t, perr := time.Parse(time.RFC3339Nano, v)
	if perr != nil {
		return time.Time{}, false, fmt.Errorf("store: watermark %s: %w", worker, perr)
	}
	return t, true, nil
}

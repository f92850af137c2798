package models

import "time"

// AppKV holds process-wide cursors and watermarks, one row per key
// (e.g. "watermark:poller" = RFC3339 time of the last successful tick).
type AppKV struct {
	K         string `gorm:"primaryKey;size:128"`
	V         string `gorm:"type:text;not null"`
	UpdatedAt time.Time
}

// TableName keeps the table name the admin tooling expects.
func (AppKV) TableName() string { return "app_kv" }

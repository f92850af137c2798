// Package store provides the persistence operations shared by the sync
// workers. All functions are short transactions against the shared GORM
// handle; none of them holds the store open across a network call.
package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/zulandar/deskmirror/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UpsertSession creates or replaces the session row for a linked account.
// Linking always clears an auth-failed freeze: fresh credentials were just
// proven valid.
func UpsertSession(db *gorm.DB, s *models.Session) error {
	if db == nil {
		return fmt.Errorf("store: db is required")
	}
	if s == nil || s.UserID == 0 {
		return fmt.Errorf("store: session with user id is required")
	}
	now := time.Now()
	if s.LinkedAt.IsZero() {
		s.LinkedAt = now
	}
	if s.LastSeenAt.IsZero() {
		s.LastSeenAt = now
	}
	s.AuthFailed = false

	err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"sd_user_id", "role", "username", "password",
			"token", "token_expires_at", "auth_failed",
			"region", "location", "full_address", "address_id",
			"linked_at", "last_seen_at",
		}),
	}).Create(s).Error
	if err != nil {
		return fmt.Errorf("store: upsert session %d: %w", s.UserID, err)
	}
	return nil
}

// GetSession fetches one session by user id. Returns (nil, nil) when the
// session does not exist.
func GetSession(db *gorm.DB, userID int64) (*models.Session, error) {
	if db == nil {
		return nil, fmt.Errorf("store: db is required")
	}
	var s models.Session
	err := db.Where("user_id = ?", userID).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get session %d: %w", userID, err)
	}
	return &s, nil
}

// ListSyncable returns the sessions for a role that currently hold a token
// and are not frozen by an auth failure. These are the sessions the sync
// workers act on; tokenless or frozen sessions are the reauth worker's and
// the link flow's problem respectively.
func ListSyncable(db *gorm.DB, role string) ([]models.Session, error) {
	if db == nil {
		return nil, fmt.Errorf("store: db is required")
	}
	var out []models.Session
	err := db.Where("role = ? AND auth_failed = ? AND token IS NOT NULL AND token != ''", role, false).
		Order("user_id ASC").Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("store: list syncable %s: %w", role, err)
	}
	return out, nil
}

// ListNeedingReauth returns sessions whose token is absent or expires
// within margin of now. Frozen sessions and sessions without stored
// credentials are excluded: the former must be re-linked explicitly, the
// latter cannot be re-authenticated at all.
func ListNeedingReauth(db *gorm.DB, margin time.Duration) ([]models.Session, error) {
	if db == nil {
		return nil, fmt.Errorf("store: db is required")
	}
	deadline := time.Now().Add(margin)
	var out []models.Session
	err := db.Where("auth_failed = ? AND username != '' AND password != ''", false).
		Where("token IS NULL OR token = '' OR token_expires_at IS NULL OR token_expires_at <= ?", deadline).
		Order("user_id ASC").Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("store: list needing reauth: %w", err)
	}
	return out, nil
}

// SwapToken atomically replaces a session's token and expiry in a single
// UPDATE. Concurrent readers observe either the previous pair or the new
// one, never a partial write.
func SwapToken(db *gorm.DB, userID int64, token string, expiresAt time.Time) error {
	if db == nil {
		return fmt.Errorf("store: db is required")
	}
	if token == "" {
		return fmt.Errorf("store: token is required")
	}
	result := db.Model(&models.Session{}).Where("user_id = ?", userID).Updates(map[string]interface{}{
		"token":            token,
		"token_expires_at": expiresAt,
		"auth_failed":      false,
	})
	if result.Error != nil {
		return fmt.Errorf("store: swap token %d: %w", userID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("store: session not found: %d", userID)
	}
	return nil
}

// ClearToken drops a session's token pair, forcing the reauth worker to
// refresh it next cycle.
func ClearToken(db *gorm.DB, userID int64) error {
	if db == nil {
		return fmt.Errorf("store: db is required")
	}
	err := db.Model(&models.Session{}).Where("user_id = ?", userID).Updates(map[string]interface{}{
		"token":            nil,
		"token_expires_at": nil,
	}).Error
	if err != nil {
		return fmt.Errorf("store: clear token %d: %w", userID, err)
	}
	return nil
}

// MarkAuthFailed freezes a session after its stored credentials were
// rejected. The token is dropped and every worker skips the session until
// UpsertSession (a re-link) lifts the freeze.
func MarkAuthFailed(db *gorm.DB, userID int64) error {
	if db == nil {
		return fmt.Errorf("store: db is required")
	}
	err := db.Model(&models.Session{}).Where("user_id = ?", userID).Updates(map[string]interface{}{
		"auth_failed":      true,
		"token":            nil,
		"token_expires_at": nil,
	}).Error
	if err != nil {
		return fmt.Errorf("store: mark auth failed %d: %w", userID, err)
	}
	return nil
}

// Touch refreshes a session's last-activity timestamp.
func Touch(db *gorm.DB, userID int64) error {
	if db == nil {
		return fmt.Errorf("store: db is required")
	}
	err := db.Model(&models.Session{}).Where("user_id = ?", userID).
		Update("last_seen_at", time.Now()).Error
	if err != nil {
		return fmt.Errorf("store: touch %d: %w", userID, err)
	}
	return nil
}

// SetLocation denormalizes a session's region and location from the SD
// user profile.
func SetLocation(db *gorm.DB, userID int64, region, location, fullAddress string, addressID *int64) error {
	if db == nil {
		return fmt.Errorf("store: db is required")
	}
	err := db.Model(&models.Session{}).Where("user_id = ?", userID).Updates(map[string]interface{}{
		"region":       region,
		"location":     location,
		"full_address": fullAddress,
		"address_id":   addressID,
	}).Error
	if err != nil {
		return fmt.Errorf("store: set location %d: %w", userID, err)
	}
	return nil
}

// Credentials is the single accessor for stored reauth credentials. The
// cleartext storage is a declared product decision; keeping reads behind
// this function lets an encrypted-at-rest store replace it without
// touching worker logic.
func Credentials(db *gorm.DB, userID int64) (username, password string, err error) {
	s, err := GetSession(db, userID)
	if err != nil {
		return "", "", err
	}
	if s == nil {
		return "", "", fmt.Errorf("store: session not found: %d", userID)
	}
	return s.Username, s.Password, nil
}

// DeleteIdleSessions evicts sessions whose last activity is strictly older
// than ttl. A session exactly at the boundary is not yet expired.
func DeleteIdleSessions(db *gorm.DB, ttl time.Duration) (int64, error) {
	if db == nil {
		return 0, fmt.Errorf("store: db is required")
	}
	cutoff := time.Now().Add(-ttl)
	result := db.Where("last_seen_at < ?", cutoff).Delete(&models.Session{})
	if result.Error != nil {
		return 0, fmt.Errorf("store: delete idle sessions: %w", result.Error)
	}
	return result.RowsAffected, nil
}

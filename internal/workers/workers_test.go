package workers

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/zulandar/deskmirror/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	if err := db.AutoMigrate(&models.Session{}, &models.CurrentTicket{}, &models.DoneTicket{}, &models.AppKV{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func noplog() zerolog.Logger { return zerolog.Nop() }

func strPtr(s string) *string { return &s }

func timePtr(t time.Time) *time.Time { return &t }

// linkedSession seeds one session holding a valid token.
func linkedSession(t *testing.T, db *gorm.DB, userID, sdUserID int64, role string) {
	t.Helper()
	s := models.Session{
		UserID:         userID,
		SDUserID:       sdUserID,
		Role:           role,
		Username:       "user",
		Password:       "pass",
		Token:          strPtr("tok"),
		TokenExpiresAt: timePtr(time.Now().Add(8 * time.Hour)),
		LinkedAt:       time.Now(),
		LastSeenAt:     time.Now(),
	}
	if err := db.Create(&s).Error; err != nil {
		t.Fatalf("seed session %d: %v", userID, err)
	}
}

// Package models defines the GORM models persisted by deskmirror.
package models

import "time"

// Session roles. The set is closed: sync strategy is selected by role
// lookup, never by subtyping.
const (
	RoleUser       = "USER"
	RoleExecutor   = "EXECUTOR"
	RoleDispatcher = "DISPATCHER"
	RoleAdmin      = "ADMIN"
)

// Session is one linked chat identity with its ServiceDesk account state.
// The token pair (Token, TokenExpiresAt) is written only by the reauth
// worker and the link flow; both fields are swapped in a single UPDATE so
// concurrent readers never observe a half-written pair.
type Session struct {
	UserID   int64  `gorm:"primaryKey;autoIncrement:false"`
	SDUserID int64  `gorm:"not null;index"`
	Role     string `gorm:"size:16;not null;default:USER;index"`

	// Stored credentials for re-authentication. Kept in cleartext by
	// explicit product decision; access goes through store.Credentials.
	Username string `gorm:"size:128"`
	Password string `gorm:"size:128"`

	Token          *string `gorm:"size:512"`
	TokenExpiresAt *time.Time

	// AuthFailed marks a session whose stored credentials were rejected.
	// Sync and reauth skip it until the account is re-linked.
	AuthFailed bool `gorm:"default:false;index"`

	// Region/Location are denormalized from the SD user profile and drive
	// dispatcher-scope filtering.
	Region      string `gorm:"size:128"`
	Location    string `gorm:"size:128"`
	FullAddress string `gorm:"size:256"`
	AddressID   *int64

	LinkedAt   time.Time
	LastSeenAt time.Time `gorm:"index"`
}

// HasToken reports whether the session currently holds a token.
func (s *Session) HasToken() bool {
	return s.Token != nil && *s.Token != ""
}

// TokenValue returns the stored token or "" when absent.
func (s *Session) TokenValue() string {
	if s.Token == nil {
		return ""
	}
	return *s.Token
}

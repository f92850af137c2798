package models

import "time"

// Track kinds record which sync path owns a mirror row.
const (
	TrackUser       = "USER"
	TrackExecutor   = "EXECUTOR"
	TrackDispatcher = "DISPATCHER"
)

// CurrentTicket mirrors one open remote ticket for one caring session.
// The (OwnerUserID, TicketID) pair is unique; a ticket watched by two
// sessions has two independent rows.
type CurrentTicket struct {
	OwnerUserID int64  `gorm:"primaryKey;autoIncrement:false"`
	TicketID    int64  `gorm:"primaryKey;autoIncrement:false"`
	TrackKind   string `gorm:"size:16;index"`

	Status     string `gorm:"size:32;index"`
	Title      string `gorm:"size:512"`
	SLA        string `gorm:"size:64"`
	ExecutorID *int64
	Executor   string `gorm:"size:256"`
	Author     string `gorm:"size:256"`
	Region     string `gorm:"size:128"`
	Location   string `gorm:"size:128"`
	Address    string `gorm:"size:256"`

	// RemoteUpdatedTS is the remote lastUpdatedTimestamp, used to reject
	// stale writes when a slow fetch races a fresher one.
	RemoteUpdatedTS int64
	RawJSON         string `gorm:"type:text"`

	CreatedAt     time.Time
	UpdatedAt     time.Time
	LastCheckedAt time.Time
}

// DoneTicket is the terminal-state history row for a mirrored ticket.
// A ticket id appears here for an owner only after it left CurrentTicket;
// the transition happens exactly once, inside one transaction.
type DoneTicket struct {
	OwnerUserID int64  `gorm:"primaryKey;autoIncrement:false"`
	TicketID    int64  `gorm:"primaryKey;autoIncrement:false"`
	TrackKind   string `gorm:"size:16;index"`

	Status     string `gorm:"size:32"`
	Title      string `gorm:"size:512"`
	SLA        string `gorm:"size:64"`
	ExecutorID *int64
	Executor   string `gorm:"size:256"`
	Author     string `gorm:"size:256"`
	Region     string `gorm:"size:128"`
	Location   string `gorm:"size:128"`
	Address    string `gorm:"size:256"`

	RemoteUpdatedTS int64
	RawJSON         string `gorm:"type:text"`

	ClosedAt time.Time
	MovedAt  time.Time `gorm:"index"`
}

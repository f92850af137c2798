package sd

import (
	"strings"
	"time"
)

// Ticket is the subset of the remote ticket document mirrored locally.
type Ticket struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status"`
	SLA         string `json:"sla"`

	CreatedTimestamp     int64 `json:"createdTimestamp"`
	EstimatedTimestamp   int64 `json:"estimatedTimestamp"`
	ClosedTimestamp      int64 `json:"closedTimestamp"`
	LastUpdatedTimestamp int64 `json:"lastUpdatedTimestamp"`

	Executor *Person  `json:"executor"`
	Author   *Person  `json:"author"`
	Address  *Address `json:"address"`
	Category *Named   `json:"category"`
	Service  *Named   `json:"service"`
}

// ExecutorID returns the assigned executor's SD user id, or 0 when
// unassigned.
func (t *Ticket) ExecutorID() int64 {
	if t.Executor == nil {
		return 0
	}
	return t.Executor.ID
}

// Region returns the ticket address region, or "".
func (t *Ticket) Region() string {
	if t.Address == nil {
		return ""
	}
	return strings.TrimSpace(t.Address.Region)
}

// Location returns the ticket address location, or "".
func (t *Ticket) Location() string {
	if t.Address == nil {
		return ""
	}
	return strings.TrimSpace(t.Address.Location)
}

// Person is a remote user reference embedded in tickets and profiles.
type Person struct {
	ID        int64  `json:"id"`
	FIO       string `json:"fio"`
	Firstname string `json:"firstname"`
	Lastname  string `json:"lastname"`
	Username  string `json:"username"`
}

// Name returns the best available display name for the person.
func (p *Person) Name() string {
	if p == nil {
		return ""
	}
	if fio := strings.TrimSpace(p.FIO); fio != "" {
		return fio
	}
	name := strings.TrimSpace(strings.TrimSpace(p.Firstname) + " " + strings.TrimSpace(p.Lastname))
	if name != "" {
		return name
	}
	return strings.TrimSpace(p.Username)
}

// Address is a remote address record.
type Address struct {
	ID          int64  `json:"id"`
	FullAddress string `json:"fullAddress"`
	Region      string `json:"region"`
	Location    string `json:"location"`
}

// Named is a reference carrying only an id and a display name.
type Named struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// TicketPage is one page of the remote list endpoint.
type TicketPage struct {
	Tickets    []Ticket `json:"tickets"`
	TotalPages int      `json:"totalPages"`
}

// AuthResult is a successful authentication response.
type AuthResult struct {
	SDUserID  int64
	Username  string
	Role      string
	Token     string
	ExpiresAt time.Time
}

// UserProfile is the remote user document used for session enrichment.
type UserProfile struct {
	ID       int64    `json:"id"`
	Username string   `json:"username"`
	Role     string   `json:"role"`
	Address  *Address `json:"address"`
}

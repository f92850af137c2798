// Package notify defines the events the sync core produces and the sink
// interface the messaging front-end implements. The core emits exactly one
// event per observed state transition; delivery and ordering beyond that
// are the sink's concern.
package notify

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Event types.
const (
	EventNewAssignment = "new-assignment"
	EventClosed        = "closed"
	EventUnassigned    = "unassigned"
	EventStatusChanged = "status-changed"
)

// Event is one observed ticket state transition.
type Event struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	TicketID    int64  `json:"ticket_id"`
	OwnerUserID int64  `json:"owner_user_id"`

	Status     string `json:"status,omitempty"`
	PrevStatus string `json:"prev_status,omitempty"`
	Title      string `json:"title,omitempty"`
	Author     string `json:"author,omitempty"`
	Address    string `json:"address,omitempty"`
}

// NewEvent builds an event with a fresh id.
func NewEvent(typ string, ticketID, ownerUserID int64) Event {
	return Event{
		ID:          uuid.NewString(),
		Type:        typ,
		TicketID:    ticketID,
		OwnerUserID: ownerUserID,
	}
}

// Text renders the event as a human-readable one-liner for chat sinks.
func (e Event) Text() string {
	switch e.Type {
	case EventNewAssignment:
		s := fmt.Sprintf("New ticket #%d assigned · %s", e.TicketID, e.Status)
		if e.Title != "" {
			s += "\n" + e.Title
		}
		if e.Author != "" {
			s += "\nAuthor: " + e.Author
		}
		if e.Address != "" {
			s += "\nAddress: " + e.Address
		}
		return s
	case EventClosed:
		return fmt.Sprintf("Ticket #%d finished (%s)", e.TicketID, e.Status)
	case EventUnassigned:
		return fmt.Sprintf("Ticket #%d is no longer assigned to you", e.TicketID)
	case EventStatusChanged:
		return fmt.Sprintf("Ticket #%d: status changed %s → %s", e.TicketID, e.PrevStatus, e.Status)
	default:
		return fmt.Sprintf("Ticket #%d: %s", e.TicketID, e.Type)
	}
}

// Sink receives events produced by the sync core. Delivery failures are
// the sink's own problem to log; the core never retries an emission.
type Sink interface {
	Deliver(ctx context.Context, ev Event) error
}

// LogSink writes events to the structured log. It is the default backend
// and the fallback when no chat platform is configured.
type LogSink struct {
	Log zerolog.Logger
}

// Deliver logs the event.
func (s *LogSink) Deliver(_ context.Context, ev Event) error {
	s.Log.Info().
		Str("event_id", ev.ID).
		Str("type", ev.Type).
		Int64("ticket_id", ev.TicketID).
		Int64("owner_user_id", ev.OwnerUserID).
		Str("status", ev.Status).
		Msg("event")
	return nil
}

// CollectSink buffers events in memory. Test helper.
type CollectSink struct {
	mu     sync.Mutex
	events []Event
}

// Deliver appends the event to the buffer.
func (s *CollectSink) Deliver(_ context.Context, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

// Events returns a copy of the buffered events.
func (s *CollectSink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// Reset clears the buffer.
func (s *CollectSink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}

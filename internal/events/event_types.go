package events

import (
	"time"

	"github.com/homequest/support-service/internal/domain"
)

// EventType enumerates supported event identifiers. The same literals
// travel over the realtime channel, so they stay lowercase-hyphenated.
type EventType string

const (
	EventTicketCreated       EventType = "ticket-created"
	EventTicketAssigned      EventType = "ticket-assigned"
	EventTicketMessageAdded  EventType = "ticket-message-added"
	EventTicketStatusChanged EventType = "ticket-status-changed"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	Type       domain.SubjectType `json:"type"`
	CustomerID *string            `json:"customer_id,omitempty"`
	EmployeeID *string            `json:"employee_id,omitempty"`
}

// Event represents a domain event emitted by services. Connected
// clients treat the payload as a signal only and re-read state over
// REST, so payloads carry identifiers, not authoritative data.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload,omitempty"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	UserRole      domain.UserRole `json:"user_role"`
	CategoryTitle string          `json:"category_title"`
}

// TicketAssignedPayload payload.
type TicketAssignedPayload struct {
	AssignedTo     string `json:"assigned_to"`
	AssignedToName string `json:"assigned_to_name"`
}

// TicketMessageAddedPayload payload.
type TicketMessageAddedPayload struct {
	MessageID  string            `json:"message_id"`
	SenderType domain.SenderType `json:"sender_type"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
}

package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
//
// IN_PROGRESS is never stored: it is derived from an ASSIGNED ticket
// that has received at least one message since assignment, so the
// message log stays the single source of truth for activity.
type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "OPEN"
	TicketStatusAssigned   TicketStatus = "ASSIGNED"
	TicketStatusInProgress TicketStatus = "IN_PROGRESS"
	TicketStatusResolved   TicketStatus = "RESOLVED"
	TicketStatusClosed     TicketStatus = "CLOSED"
)

// UserRole enumerates marketplace roles a requester can hold.
type UserRole string

const (
	UserRoleBuyer  UserRole = "BUYER"
	UserRoleSeller UserRole = "SELLER"
)

// Ticket is the aggregate for customer support requests.
type Ticket struct {
	ID               string
	UserID           string
	UserRole         UserRole
	CategoryTitle    string
	SubCategoryTitle string
	Problem          string
	Status           TicketStatus
	AssignedTo       *string
	AssignedToName   *string
	AssignedAt       *time.Time
	LastMessageAt    *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
	ClosedAt         *time.Time
}

// EffectiveStatus reports the externally visible status. An assigned
// ticket with message activity after assignment surfaces as IN_PROGRESS.
func (t *Ticket) EffectiveStatus() TicketStatus {
	if t.Status == TicketStatusAssigned &&
		t.AssignedAt != nil && t.LastMessageAt != nil &&
		!t.LastMessageAt.Before(*t.AssignedAt) {
		return TicketStatusInProgress
	}
	return t.Status
}

// Terminal reports whether the ticket reached its sticky end state.
func (t *Ticket) Terminal() bool {
	return t.Status == TicketStatusClosed
}

// AssignedToEmployee reports whether employeeID currently holds the ticket.
func (t *Ticket) AssignedToEmployee(employeeID string) bool {
	return t.AssignedTo != nil && *t.AssignedTo == employeeID
}

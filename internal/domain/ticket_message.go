package domain

import "time"

// SenderType indicates who authored a message.
type SenderType string

const (
	SenderTypeCustomer SenderType = "CUSTOMER"
	SenderTypeEmployee SenderType = "EMPLOYEE"
)

// TicketMessage captures one entry in a ticket thread. Messages are
// append only: no update, no delete.
type TicketMessage struct {
	ID         string
	TicketID   string
	SenderID   string
	SenderType SenderType
	Message    string
	FileURL    *string
	FileName   *string
	CreatedAt  time.Time
}

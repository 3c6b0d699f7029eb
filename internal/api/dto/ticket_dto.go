package dto

import (
	"time"

	"github.com/homequest/support-service/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	CategoryTitle    string `json:"category_title"`
	SubCategoryTitle string `json:"sub_category_title"`
	Problem          string `json:"problem"`
}

// CreateMessageRequest payload.
type CreateMessageRequest struct {
	Message  string  `json:"message"`
	FileURL  *string `json:"file_url,omitempty"`
	FileName *string `json:"file_name,omitempty"`
}

// TicketSummary response. Status carries the effective status, so an
// assigned ticket with activity reads IN_PROGRESS here.
type TicketSummary struct {
	ID               string              `json:"id"`
	UserID           string              `json:"user_id"`
	UserRole         domain.UserRole     `json:"user_role"`
	CategoryTitle    string              `json:"category_title"`
	SubCategoryTitle string              `json:"sub_category_title"`
	Status           domain.TicketStatus `json:"status"`
	AssignedTo       *string             `json:"assigned_to,omitempty"`
	AssignedToName   *string             `json:"assigned_to_name,omitempty"`
	CreatedAt        time.Time           `json:"created_at"`
	UpdatedAt        time.Time           `json:"updated_at"`
}

// TicketDetailResponse provides full ticket info with the ordered thread.
type TicketDetailResponse struct {
	TicketSummary
	Problem  string                  `json:"problem"`
	ClosedAt *time.Time              `json:"closed_at,omitempty"`
	Messages []TicketMessageResponse `json:"messages"`
}

// TicketMessageResponse represents one thread entry.
type TicketMessageResponse struct {
	ID         string            `json:"id"`
	TicketID   string            `json:"ticket_id"`
	SenderID   string            `json:"sender_id"`
	SenderType domain.SenderType `json:"sender_type"`
	Message    string            `json:"message"`
	FileURL    *string           `json:"file_url,omitempty"`
	FileName   *string           `json:"file_name,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

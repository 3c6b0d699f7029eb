package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/homequest/support-service/internal/domain"
	"github.com/homequest/support-service/internal/events"
	"github.com/homequest/support-service/internal/repository"
	apperrors "github.com/homequest/support-service/pkg/util"
)

// AssignmentService enforces exclusive ticket ownership. A claim is a
// compare-and-set over the assignee: first employee wins, retries by
// the holder are idempotent, everyone else gets a conflict.
type AssignmentService struct {
	tickets    repository.TicketRepository
	dispatcher events.Dispatcher
}

// AssignmentDependencies bundles repositories.
type AssignmentDependencies struct {
	TicketRepo repository.TicketRepository
	Dispatcher events.Dispatcher
}

// NewAssignmentService creates the service.
func NewAssignmentService(deps AssignmentDependencies) *AssignmentService {
	return &AssignmentService{
		tickets:    deps.TicketRepo,
		dispatcher: deps.Dispatcher,
	}
}

// Claim assigns the ticket to the employee. On success the ticket moves
// OPEN -> ASSIGNED and the display name is recorded. The assignee can
// never change again for the lifetime of the ticket.
func (s *AssignmentService) Claim(ctx context.Context, ticketID, employeeID, employeeName string) (*domain.Ticket, error) {
	if strings.TrimSpace(employeeID) == "" {
		return nil, apperrors.NewUnauthorized("employee required")
	}

	ticket, err := s.tickets.Claim(ctx, ticketID, employeeID, strings.TrimSpace(employeeName))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		if errors.Is(err, repository.ErrAssignmentConflict) {
			holder := ""
			if current, getErr := s.tickets.GetByID(ctx, ticketID); getErr == nil && current.AssignedTo != nil {
				holder = *current.AssignedTo
			}
			return nil, apperrors.NewAlreadyAssigned(ticketID, holder)
		}
		return nil, apperrors.MapError(err)
	}

	// Published on idempotent retries too; subscribers refetch, so a
	// duplicate signal converges to the same state.
	s.publishAssignmentEvent(ctx, employeeID, ticket)
	return ticket, nil
}

func (s *AssignmentService) publishAssignmentEvent(ctx context.Context, employeeID string, ticket *domain.Ticket) {
	if s.dispatcher == nil {
		return
	}
	name := ""
	if ticket.AssignedToName != nil {
		name = *ticket.AssignedToName
	}
	event := events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventTicketAssigned,
		TicketID:  ticket.ID,
		Actor:     events.Actor{Type: domain.SubjectTypeEmployee, EmployeeID: &employeeID},
		Timestamp: time.Now(),
		Payload: events.TicketAssignedPayload{
			AssignedTo:     employeeID,
			AssignedToName: name,
		},
	}
	_ = s.dispatcher.Publish(ctx, event)
}

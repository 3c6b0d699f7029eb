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

// TicketService coordinates the ticket store and lifecycle.
type TicketService struct {
	tickets    repository.TicketRepository
	messages   repository.TicketMessageRepository
	dispatcher events.Dispatcher
}

// TicketDependencies bundles repositories for ticket service.
type TicketDependencies struct {
	TicketRepo  repository.TicketRepository
	MessageRepo repository.TicketMessageRepository
	Dispatcher  events.Dispatcher
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	UserID           string
	UserRole         domain.UserRole
	CategoryTitle    string
	SubCategoryTitle string
	Problem          string
}

// TicketListFilter describes listing filters over effective statuses.
type TicketListFilter struct {
	Statuses   []domain.TicketStatus
	AssignedTo *string
	UserID     *string
	Limit      int
	Offset     int
}

// MessageInput describes an append to a ticket thread.
type MessageInput struct {
	TicketID   string
	SenderID   string
	SenderType domain.SenderType
	Message    string
	FileURL    *string
	FileName   *string
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	return &TicketService{
		tickets:    deps.TicketRepo,
		messages:   deps.MessageRepo,
		dispatcher: deps.Dispatcher,
	}
}

// CreateTicket opens a ticket for a customer. Status is forced to OPEN
// and assignment is forced unset regardless of input.
func (s *TicketService) CreateTicket(ctx context.Context, input TicketCreateInput) (*domain.Ticket, error) {
	if input.UserRole != domain.UserRoleBuyer && input.UserRole != domain.UserRoleSeller {
		return nil, apperrors.NewValidationError("user_role must be BUYER or SELLER", nil)
	}
	if strings.TrimSpace(input.CategoryTitle) == "" || strings.TrimSpace(input.Problem) == "" {
		return nil, apperrors.NewValidationError("category_title and problem required", nil)
	}

	ticket := &domain.Ticket{
		UserID:           input.UserID,
		UserRole:         input.UserRole,
		CategoryTitle:    strings.TrimSpace(input.CategoryTitle),
		SubCategoryTitle: strings.TrimSpace(input.SubCategoryTitle),
		Problem:          strings.TrimSpace(input.Problem),
		Status:           domain.TicketStatusOpen,
	}

	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		Actor:    customerActor(ticket.UserID),
		Payload: events.TicketCreatedPayload{
			UserRole:      ticket.UserRole,
			CategoryTitle: ticket.CategoryTitle,
		},
	})
	return ticket, nil
}

// GetTicket fetches a ticket with its ordered message thread.
func (s *TicketService) GetTicket(ctx context.Context, ticketID string) (*domain.Ticket, []domain.TicketMessage, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, nil, apperrors.MapError(err)
	}
	msgs, err := s.messages.ListByTicket(ctx, ticket.ID)
	if err != nil {
		return nil, nil, apperrors.MapError(err)
	}
	return ticket, msgs, nil
}

// ListTickets returns tickets matching the filter. IN_PROGRESS is a
// derived status, so filtering on it matches ASSIGNED tickets with
// message activity since assignment.
func (s *TicketService) ListTickets(ctx context.Context, filter TicketListFilter) ([]domain.Ticket, error) {
	repoFilter := repository.TicketFilter{
		UserID:     filter.UserID,
		AssignedTo: filter.AssignedTo,
		Statuses:   storedStatuses(filter.Statuses),
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	}
	tickets, err := s.tickets.ListWithFilter(ctx, repoFilter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if len(filter.Statuses) == 0 {
		return tickets, nil
	}
	filtered := make([]domain.Ticket, 0, len(tickets))
	for _, ticket := range tickets {
		if containsStatus(filter.Statuses, ticket.EffectiveStatus()) {
			filtered = append(filtered, ticket)
		}
	}
	return filtered, nil
}

// AddMessage appends a message to a ticket thread. Appends to a closed
// ticket are rejected; the thread itself is never rewritten.
func (s *TicketService) AddMessage(ctx context.Context, input MessageInput) (*domain.TicketMessage, error) {
	if strings.TrimSpace(input.Message) == "" {
		return nil, apperrors.NewValidationError("message required", nil)
	}
	ticket, err := s.tickets.GetByID(ctx, input.TicketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": input.TicketID})
		}
		return nil, apperrors.MapError(err)
	}
	if ticket.Terminal() {
		return nil, apperrors.NewTicketClosed(ticket.ID)
	}
	if input.SenderType == domain.SenderTypeCustomer && ticket.UserID != input.SenderID {
		return nil, apperrors.NewForbidden("ticket belongs to another customer")
	}

	msg := &domain.TicketMessage{
		TicketID:   ticket.ID,
		SenderID:   input.SenderID,
		SenderType: input.SenderType,
		Message:    strings.TrimSpace(input.Message),
		FileURL:    input.FileURL,
		FileName:   input.FileName,
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": input.TicketID})
		}
		return nil, apperrors.MapError(err)
	}
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketMessageAdded,
		TicketID: ticket.ID,
		Actor:    actorFromSender(input.SenderType, input.SenderID),
		Payload: events.TicketMessageAddedPayload{
			MessageID:  msg.ID,
			SenderType: msg.SenderType,
		},
	})
	return msg, nil
}

// Resolve marks the ticket resolved. Only the assigned employee may
// transition it.
func (s *TicketService) Resolve(ctx context.Context, ticketID, employeeID string) (*domain.Ticket, error) {
	return s.transition(ctx, ticketID, employeeID, domain.TicketStatusResolved)
}

// Close moves the ticket to its terminal state. Closed tickets accept
// no further transitions or messages but remain queryable forever.
func (s *TicketService) Close(ctx context.Context, ticketID, employeeID string) (*domain.Ticket, error) {
	return s.transition(ctx, ticketID, employeeID, domain.TicketStatusClosed)
}

func (s *TicketService) transition(ctx context.Context, ticketID, employeeID string, target domain.TicketStatus) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}
	if ticket.Terminal() {
		return nil, apperrors.NewTerminalState(ticket.ID)
	}
	if !ticket.AssignedToEmployee(employeeID) {
		return nil, apperrors.NewNotAssignee(ticket.ID)
	}
	if !isValidTransition(ticket.Status, target) {
		return nil, apperrors.NewConflict("invalid status transition", map[string]any{
			"from": ticket.Status, "to": target,
		})
	}

	oldStatus := ticket.EffectiveStatus()
	var closedAt *time.Time
	if target == domain.TicketStatusClosed {
		now := time.Now()
		closedAt = &now
	}
	updated, err := s.tickets.UpdateStatus(ctx, ticket.ID, target, closedAt)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketStatusChanged,
		TicketID: updated.ID,
		Actor:    employeeActor(employeeID),
		Payload: events.TicketStatusChangedPayload{
			OldStatus: oldStatus,
			NewStatus: updated.Status,
		},
	})
	return updated, nil
}

// allowedTransitions covers explicit calls only. OPEN -> ASSIGNED is
// driven by the assignment claim, and IN_PROGRESS is derived from the
// message log rather than stored.
var allowedTransitions = map[domain.TicketStatus][]domain.TicketStatus{
	domain.TicketStatusOpen:     {},
	domain.TicketStatusAssigned: {domain.TicketStatusResolved, domain.TicketStatusClosed},
	domain.TicketStatusResolved: {domain.TicketStatusClosed},
	domain.TicketStatusClosed:   {},
}

func isValidTransition(current, next domain.TicketStatus) bool {
	for _, candidate := range allowedTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}

func storedStatuses(effective []domain.TicketStatus) []domain.TicketStatus {
	if len(effective) == 0 {
		return nil
	}
	seen := map[domain.TicketStatus]struct{}{}
	var stored []domain.TicketStatus
	for _, status := range effective {
		mapped := status
		if status == domain.TicketStatusInProgress {
			mapped = domain.TicketStatusAssigned
		}
		if _, ok := seen[mapped]; ok {
			continue
		}
		seen[mapped] = struct{}{}
		stored = append(stored, mapped)
	}
	return stored
}

func containsStatus(statuses []domain.TicketStatus, status domain.TicketStatus) bool {
	for _, candidate := range statuses {
		if candidate == status {
			return true
		}
	}
	return false
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}

func customerActor(userID string) events.Actor {
	return events.Actor{
		Type:       domain.SubjectTypeCustomer,
		CustomerID: &userID,
	}
}

func employeeActor(employeeID string) events.Actor {
	return events.Actor{
		Type:       domain.SubjectTypeEmployee,
		EmployeeID: &employeeID,
	}
}

func actorFromSender(sender domain.SenderType, id string) events.Actor {
	if sender == domain.SenderTypeEmployee {
		return employeeActor(id)
	}
	return customerActor(id)
}

package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/homequest/support-service/internal/domain"
)

// memoryState backs the in-memory repositories. Both repositories share
// it so message creation can enforce referential integrity against the
// ticket table, mirroring the foreign key in Postgres.
type memoryState struct {
	mu       sync.Mutex
	tickets  map[string]*domain.Ticket
	messages map[string][]domain.TicketMessage
	now      func() time.Time
}

type memoryTicketRepository struct {
	state *memoryState
}

type memoryMessageRepository struct {
	state *memoryState
}

// NewMemoryRepositories builds repository implementations backed by
// process memory. Used when no Postgres DSN is configured and by tests.
func NewMemoryRepositories() (TicketRepository, TicketMessageRepository) {
	state := &memoryState{
		tickets:  make(map[string]*domain.Ticket),
		messages: make(map[string][]domain.TicketMessage),
		now:      time.Now,
	}
	return &memoryTicketRepository{state: state}, &memoryMessageRepository{state: state}
}

func (r *memoryTicketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()

	now := r.state.now()
	ticket.ID = uuid.NewString()
	ticket.CreatedAt = now
	ticket.UpdatedAt = now
	stored := *ticket
	r.state.tickets[ticket.ID] = &stored
	return nil
}

func (r *memoryTicketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	return r.state.snapshotLocked(id)
}

func (r *memoryTicketRepository) ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()

	var result []domain.Ticket
	for id := range r.state.tickets {
		ticket, err := r.state.snapshotLocked(id)
		if err != nil {
			return nil, err
		}
		if filter.UserID != nil && ticket.UserID != *filter.UserID {
			continue
		}
		if filter.AssignedTo != nil && !ticket.AssignedToEmployee(*filter.AssignedTo) {
			continue
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, ticket.Status) {
			continue
		}
		result = append(result, *ticket)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].UpdatedAt.After(result[j].UpdatedAt)
	})
	result = applyWindow(result, filter.Limit, filter.Offset)
	return result, nil
}

func (r *memoryTicketRepository) Claim(ctx context.Context, ticketID, employeeID, employeeName string) (*domain.Ticket, error) {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()

	stored, ok := r.state.tickets[ticketID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	if stored.AssignedTo != nil {
		if *stored.AssignedTo == employeeID {
			return r.state.snapshotLocked(ticketID)
		}
		return nil, ErrAssignmentConflict
	}

	now := r.state.now()
	stored.AssignedTo = &employeeID
	stored.AssignedToName = &employeeName
	stored.AssignedAt = &now
	stored.Status = domain.TicketStatusAssigned
	stored.UpdatedAt = now
	return r.state.snapshotLocked(ticketID)
}

func (r *memoryTicketRepository) UpdateStatus(ctx context.Context, ticketID string, status domain.TicketStatus, closedAt *time.Time) (*domain.Ticket, error) {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()

	stored, ok := r.state.tickets[ticketID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	stored.Status = status
	stored.ClosedAt = closedAt
	stored.UpdatedAt = r.state.now()
	return r.state.snapshotLocked(ticketID)
}

func (r *memoryMessageRepository) Create(ctx context.Context, msg *domain.TicketMessage) error {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()

	stored, ok := r.state.tickets[msg.TicketID]
	if !ok {
		return pgx.ErrNoRows
	}
	msg.ID = uuid.NewString()
	msg.CreatedAt = r.state.now()
	r.state.messages[msg.TicketID] = append(r.state.messages[msg.TicketID], *msg)
	stored.UpdatedAt = msg.CreatedAt
	return nil
}

func (r *memoryMessageRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketMessage, error) {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()

	msgs := r.state.messages[ticketID]
	result := make([]domain.TicketMessage, len(msgs))
	copy(result, msgs)
	// Stable sort keeps insertion order for equal timestamps.
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// snapshotLocked copies a ticket and derives LastMessageAt from the
// message log, matching what the SQL reads compute.
func (s *memoryState) snapshotLocked(id string) (*domain.Ticket, error) {
	stored, ok := s.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	ticket := *stored
	if msgs := s.messages[id]; len(msgs) > 0 {
		last := msgs[len(msgs)-1].CreatedAt
		for _, msg := range msgs {
			if msg.CreatedAt.After(last) {
				last = msg.CreatedAt
			}
		}
		ticket.LastMessageAt = &last
	}
	return &ticket, nil
}

func containsStatus(statuses []domain.TicketStatus, status domain.TicketStatus) bool {
	for _, candidate := range statuses {
		if candidate == status {
			return true
		}
	}
	return false
}

func applyWindow(tickets []domain.Ticket, limit, offset int) []domain.Ticket {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(tickets) {
		return nil
	}
	tickets = tickets[offset:]
	if limit > 0 && limit < len(tickets) {
		tickets = tickets[:limit]
	}
	return tickets
}

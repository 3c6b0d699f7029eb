package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/homequest/support-service/internal/domain"
)

// ErrAssignmentConflict is returned by Claim when the ticket is already
// held by a different employee.
var ErrAssignmentConflict = errors.New("ticket assigned to another employee")

// TicketFilter captures listing parameters.
type TicketFilter struct {
	UserID     *string
	AssignedTo *string
	Statuses   []domain.TicketStatus
	Limit      int
	Offset     int
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	// Claim atomically sets the assignee when the ticket is still
	// unassigned. It returns the resulting ticket on success or when the
	// same employee already holds it, pgx.ErrNoRows when the ticket does
	// not exist, and ErrAssignmentConflict when a different employee
	// holds it.
	Claim(ctx context.Context, ticketID, employeeID, employeeName string) (*domain.Ticket, error)
	UpdateStatus(ctx context.Context, ticketID string, status domain.TicketStatus, closedAt *time.Time) (*domain.Ticket, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

// ticketColumns is shared by every read so LastMessageAt is always
// derived from the message log rather than stored twice.
const ticketColumns = `
        t.id, t.user_id, t.user_role, t.category_title, t.sub_category_title, t.problem,
        t.status, t.assigned_to, t.assigned_to_name, t.assigned_at,
        (SELECT MAX(m.created_at) FROM ticket_messages m WHERE m.ticket_id = t.id),
        t.created_at, t.updated_at, t.closed_at`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (user_id, user_role, category_title, sub_category_title, problem, status)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		ticket.UserID,
		ticket.UserRole,
		ticket.CategoryTitle,
		ticket.SubCategoryTitle,
		ticket.Problem,
		ticket.Status,
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt)
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT` + ticketColumns + ` FROM tickets t WHERE t.id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *ticketRepository) Claim(ctx context.Context, ticketID, employeeID, employeeName string) (*domain.Ticket, error) {
	query := `
        UPDATE tickets t SET assigned_to=$2, assigned_to_name=$3, status=$4, assigned_at=NOW(), updated_at=NOW()
        WHERE t.id=$1 AND t.assigned_to IS NULL AND t.status=$5
        RETURNING` + ticketColumns
	ticket, err := r.scanRow(r.pool.QueryRow(ctx, query,
		ticketID, employeeID, employeeName,
		domain.TicketStatusAssigned, domain.TicketStatusOpen,
	))
	if err == nil {
		return ticket, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	// CAS did not apply: distinguish missing ticket, idempotent retry by
	// the holder, and a genuine conflict.
	current, err := r.GetByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if current.AssignedToEmployee(employeeID) {
		return current, nil
	}
	return nil, ErrAssignmentConflict
}

func (r *ticketRepository) UpdateStatus(ctx context.Context, ticketID string, status domain.TicketStatus, closedAt *time.Time) (*domain.Ticket, error) {
	query := `
        UPDATE tickets t SET status=$2, closed_at=$3, updated_at=NOW()
        WHERE t.id=$1
        RETURNING` + ticketColumns
	return r.scanRow(r.pool.QueryRow(ctx, query, ticketID, status, closedAt))
}

func (r *ticketRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Ticket, error) {
	return r.scanRow(r.pool.QueryRow(ctx, query, arg))
}

func (r *ticketRepository) scanRow(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := row.Scan(
		&ticket.ID,
		&ticket.UserID,
		&ticket.UserRole,
		&ticket.CategoryTitle,
		&ticket.SubCategoryTitle,
		&ticket.Problem,
		&ticket.Status,
		&ticket.AssignedTo,
		&ticket.AssignedToName,
		&ticket.AssignedAt,
		&ticket.LastMessageAt,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.ClosedAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (r *ticketRepository) ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	base := `SELECT` + ticketColumns + ` FROM tickets t`
	clauses := []string{"1=1"}
	args := []any{}

	if filter.UserID != nil {
		args = append(args, *filter.UserID)
		clauses = append(clauses, fmt.Sprintf("t.user_id=$%d", len(args)))
	}
	if filter.AssignedTo != nil {
		args = append(args, *filter.AssignedTo)
		clauses = append(clauses, fmt.Sprintf("t.assigned_to=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("t.status IN (%s)", strings.Join(placeholders, ",")))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`%s WHERE %s ORDER BY t.updated_at DESC LIMIT %d OFFSET %d`,
		base, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		var ticket domain.Ticket
		if err := rows.Scan(
			&ticket.ID,
			&ticket.UserID,
			&ticket.UserRole,
			&ticket.CategoryTitle,
			&ticket.SubCategoryTitle,
			&ticket.Problem,
			&ticket.Status,
			&ticket.AssignedTo,
			&ticket.AssignedToName,
			&ticket.AssignedAt,
			&ticket.LastMessageAt,
			&ticket.CreatedAt,
			&ticket.UpdatedAt,
			&ticket.ClosedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, ticket)
	}
	return result, rows.Err()
}

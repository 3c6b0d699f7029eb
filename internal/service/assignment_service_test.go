package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homequest/support-service/internal/domain"
	"github.com/homequest/support-service/internal/events"
	"github.com/homequest/support-service/internal/repository"
	apperrors "github.com/homequest/support-service/pkg/util"
)

func newTestServices(t *testing.T) (*TicketService, *AssignmentService, events.Dispatcher) {
	t.Helper()
	ticketRepo, messageRepo := repository.NewMemoryRepositories()
	dispatcher := events.NewInMemoryDispatcher()
	tickets := NewTicketService(TicketDependencies{
		TicketRepo:  ticketRepo,
		MessageRepo: messageRepo,
		Dispatcher:  dispatcher,
	})
	assignments := NewAssignmentService(AssignmentDependencies{
		TicketRepo: ticketRepo,
		Dispatcher: dispatcher,
	})
	return tickets, assignments, dispatcher
}

func createOpenTicket(t *testing.T, tickets *TicketService, userID string) *domain.Ticket {
	t.Helper()
	ticket, err := tickets.CreateTicket(context.Background(), TicketCreateInput{
		UserID:        userID,
		UserRole:      domain.UserRoleBuyer,
		CategoryTitle: "Listings",
		Problem:       "My listing photos will not upload",
	})
	require.NoError(t, err)
	return ticket
}

func TestClaimAssignsFirstEmployee(t *testing.T) {
	tickets, assignments, _ := newTestServices(t)
	ticket := createOpenTicket(t, tickets, "customer-1")

	claimed, err := assignments.Claim(context.Background(), ticket.ID, "emp-1", "Dana")
	require.NoError(t, err)

	assert.Equal(t, domain.TicketStatusAssigned, claimed.Status)
	require.NotNil(t, claimed.AssignedTo)
	assert.Equal(t, "emp-1", *claimed.AssignedTo)
	require.NotNil(t, claimed.AssignedToName)
	assert.Equal(t, "Dana", *claimed.AssignedToName)
	require.NotNil(t, claimed.AssignedAt)
}

func TestClaimConcurrentExactlyOneWinner(t *testing.T) {
	tickets, assignments, _ := newTestServices(t)
	ticket := createOpenTicket(t, tickets, "customer-1")

	const contenders = 16
	results := make([]error, contenders)
	var wg sync.WaitGroup
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = assignments.Claim(context.Background(), ticket.ID,
				fmt.Sprintf("emp-%d", i), fmt.Sprintf("Employee %d", i))
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range results {
		if err == nil {
			winners++
		} else {
			assert.True(t, apperrors.HasCode(err, "ALREADY_ASSIGNED"), "unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, winners)

	current, _, err := tickets.GetTicket(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusAssigned, current.Status)
	require.NotNil(t, current.AssignedTo)
}

func TestClaimRetryByHolderIsIdempotent(t *testing.T) {
	tickets, assignments, _ := newTestServices(t)
	ticket := createOpenTicket(t, tickets, "customer-1")

	first, err := assignments.Claim(context.Background(), ticket.ID, "emp-1", "Dana")
	require.NoError(t, err)

	second, err := assignments.Claim(context.Background(), ticket.ID, "emp-1", "Dana")
	require.NoError(t, err)

	assert.Equal(t, *first.AssignedTo, *second.AssignedTo)
	assert.Equal(t, first.AssignedAt.UnixNano(), second.AssignedAt.UnixNano())
}

func TestClaimConflictReportsHolder(t *testing.T) {
	tickets, assignments, _ := newTestServices(t)
	ticket := createOpenTicket(t, tickets, "customer-1")

	_, err := assignments.Claim(context.Background(), ticket.ID, "emp-1", "Dana")
	require.NoError(t, err)

	_, err = assignments.Claim(context.Background(), ticket.ID, "emp-2", "Rivka")
	require.Error(t, err)
	domainErr := apperrors.ToDomainError(err)
	assert.Equal(t, "ALREADY_ASSIGNED", domainErr.Code)
	assert.Equal(t, "emp-1", domainErr.Details["assigned_to"])
}

func TestClaimUnknownTicket(t *testing.T) {
	_, assignments, _ := newTestServices(t)

	_, err := assignments.Claim(context.Background(), "no-such-ticket", "emp-1", "Dana")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, "NOT_FOUND"))
}

func TestClaimPublishesAssignedEvent(t *testing.T) {
	tickets, assignments, dispatcher := newTestServices(t)
	ticket := createOpenTicket(t, tickets, "customer-1")

	var received []events.Event
	dispatcher.Subscribe(events.EventTicketAssigned, func(ctx context.Context, event events.Event) error {
		received = append(received, event)
		return nil
	})

	_, err := assignments.Claim(context.Background(), ticket.ID, "emp-1", "Dana")
	require.NoError(t, err)

	require.Len(t, received, 1)
	assert.Equal(t, ticket.ID, received[0].TicketID)
	payload, ok := received[0].Payload.(events.TicketAssignedPayload)
	require.True(t, ok)
	assert.Equal(t, "emp-1", payload.AssignedTo)
	assert.Equal(t, "Dana", payload.AssignedToName)
}

package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcherInvokesHandlersInOrder(t *testing.T) {
	dispatcher := NewInMemoryDispatcher()

	var calls []string
	dispatcher.Subscribe(EventTicketCreated, func(ctx context.Context, event Event) error {
		calls = append(calls, "first:"+event.ID)
		return nil
	})
	dispatcher.Subscribe(EventTicketCreated, func(ctx context.Context, event Event) error {
		calls = append(calls, "second:"+event.ID)
		return nil
	})

	require.NoError(t, dispatcher.Publish(context.Background(), Event{ID: "e1", Type: EventTicketCreated}))
	require.NoError(t, dispatcher.Publish(context.Background(), Event{ID: "e2", Type: EventTicketCreated}))

	assert.Equal(t, []string{"first:e1", "second:e1", "first:e2", "second:e2"}, calls)
}

func TestDispatcherFailingHandlerDoesNotStopOthers(t *testing.T) {
	dispatcher := NewInMemoryDispatcher()

	var reached bool
	dispatcher.Subscribe(EventTicketAssigned, func(ctx context.Context, event Event) error {
		return errors.New("boom")
	})
	dispatcher.Subscribe(EventTicketAssigned, func(ctx context.Context, event Event) error {
		reached = true
		return nil
	})

	require.NoError(t, dispatcher.Publish(context.Background(), Event{ID: "e1", Type: EventTicketAssigned}))
	assert.True(t, reached)
}

func TestDispatcherIgnoresOtherEventTypes(t *testing.T) {
	dispatcher := NewInMemoryDispatcher()

	var calls int
	dispatcher.Subscribe(EventTicketStatusChanged, func(ctx context.Context, event Event) error {
		calls++
		return nil
	})

	require.NoError(t, dispatcher.Publish(context.Background(), Event{ID: "e1", Type: EventTicketCreated}))
	assert.Zero(t, calls)
}

package realtime

import (
	"context"

	"github.com/homequest/support-service/internal/events"
)

// RegisterBridge fans dispatcher events out to hub rooms. Handlers run
// synchronously on the publisher's goroutine, so events published for
// one ticket reach its room in publication order.
func RegisterBridge(dispatcher events.Dispatcher, hub *Hub) {
	deliver := func(ctx context.Context, event events.Event) error {
		Deliver(hub, event)
		return nil
	}
	dispatcher.Subscribe(events.EventTicketCreated, deliver)
	dispatcher.Subscribe(events.EventTicketAssigned, deliver)
	dispatcher.Subscribe(events.EventTicketMessageAdded, deliver)
	dispatcher.Subscribe(events.EventTicketStatusChanged, deliver)
}

// Deliver routes one event to its rooms. Ticket creation is a
// list-level change and goes to the employee broadcast only; everything
// else reaches both the ticket's room and the employee broadcast, so
// open chat views and ticket lists each get their signal.
func Deliver(hub *Hub, event events.Event) {
	rooms := []string{EmployeeRoom}
	if event.Type != events.EventTicketCreated {
		rooms = append(rooms, TicketRoom(event.TicketID))
	}
	for _, room := range rooms {
		hub.Broadcast(Notice{
			Type:      string(event.Type),
			Room:      room,
			TicketID:  event.TicketID,
			EventID:   event.ID,
			Timestamp: event.Timestamp,
		})
	}
}

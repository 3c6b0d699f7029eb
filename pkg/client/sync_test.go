package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu        sync.Mutex
	commands  []wsCommand
	inbound   chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound: make(chan []byte, 16),
		done:    make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case payload := <-c.inbound:
		return websocket.TextMessage, payload, nil
	case <-c.done:
		return 0, nil, errors.New("connection closed")
	}
}

func (c *fakeConn) WriteJSON(v interface{}) error {
	if cmd, ok := v.(wsCommand); ok {
		c.mu.Lock()
		c.commands = append(c.commands, cmd)
		c.mu.Unlock()
	}
	return nil
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

func (c *fakeConn) push(t *testing.T, notice Notice) {
	t.Helper()
	payload, err := json.Marshal(notice)
	require.NoError(t, err)
	c.inbound <- payload
}

func (c *fakeConn) sentCommands() []wsCommand {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]wsCommand{}, c.commands...)
}

// ticketBackend is an in-memory stand-in for the REST API.
type ticketBackend struct {
	mu      sync.Mutex
	tickets map[string]Ticket
}

func newTicketBackend(tickets ...Ticket) *ticketBackend {
	b := &ticketBackend{tickets: make(map[string]Ticket)}
	for _, ticket := range tickets {
		b.tickets[ticket.ID] = ticket
	}
	return b
}

func (b *ticketBackend) set(ticket Ticket) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tickets[ticket.ID] = ticket
}

func (b *ticketBackend) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")

		if r.URL.Path == "/tickets" {
			list := make([]Ticket, 0, len(b.tickets))
			for _, ticket := range b.tickets {
				list = append(list, ticket)
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"data": list})
			return
		}
		id := strings.TrimPrefix(r.URL.Path, "/tickets/")
		ticket, ok := b.tickets[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]any{"code": "NOT_FOUND", "message": "ticket not found"},
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": ticket})
	})
}

func startSync(t *testing.T, backend *ticketBackend, employee bool, conns ...*fakeConn) (*SyncClient, chan struct{}, context.CancelFunc) {
	t.Helper()
	server := httptest.NewServer(backend.handler())
	t.Cleanup(server.Close)

	sc := NewSyncClient(New(server.URL, "token"), "ws://unused/ws", "token", employee)
	queue := make(chan *fakeConn, len(conns))
	for _, conn := range conns {
		queue <- conn
	}
	sc.SetDial(func(ctx context.Context) (Conn, error) {
		select {
		case conn := <-queue:
			return conn, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})

	changes := make(chan struct{}, 64)
	sc.OnChange(func() {
		select {
		case changes <- struct{}{}:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = sc.Run(ctx) }()
	t.Cleanup(cancel)
	return sc, changes, cancel
}

func waitChange(t *testing.T, changes chan struct{}) {
	t.Helper()
	select {
	case <-changes:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot update")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition never reached")
}

func TestSyncClientInitialPullPopulatesSnapshot(t *testing.T) {
	backend := newTicketBackend(Ticket{ID: "t1", Status: "OPEN"})
	conn := newFakeConn()
	sc, changes, _ := startSync(t, backend, false, conn)

	waitChange(t, changes)
	ticket, ok := sc.Ticket("t1")
	require.True(t, ok)
	assert.Equal(t, "OPEN", ticket.Status)
}

func TestSyncClientSignalTriggersRefetch(t *testing.T) {
	backend := newTicketBackend(Ticket{ID: "t1", Status: "OPEN"})
	conn := newFakeConn()
	sc, changes, _ := startSync(t, backend, false, conn)
	waitChange(t, changes)

	// The notice itself carries no state; the refetch sees the new status.
	backend.set(Ticket{ID: "t1", Status: "ASSIGNED"})
	conn.push(t, Notice{Type: "ticket-assigned", TicketID: "t1", EventID: "evt-1"})

	waitFor(t, func() bool {
		ticket, ok := sc.Ticket("t1")
		return ok && ticket.Status == "ASSIGNED"
	})
}

func TestSyncClientReconnectConverges(t *testing.T) {
	backend := newTicketBackend(Ticket{ID: "t1", Status: "OPEN"})
	first := newFakeConn()
	second := newFakeConn()
	sc, changes, _ := startSync(t, backend, false, first, second)
	waitChange(t, changes)

	// Drop the connection, then change state while the client is offline.
	first.Close()
	backend.set(Ticket{ID: "t1", Status: "RESOLVED"})

	// The missed push never arrives; the reconnect refetch converges anyway.
	waitFor(t, func() bool {
		ticket, ok := sc.Ticket("t1")
		return ok && ticket.Status == "RESOLVED"
	})
}

func TestSyncClientEmployeeJoinsBroadcastRoom(t *testing.T) {
	backend := newTicketBackend()
	conn := newFakeConn()
	_, changes, _ := startSync(t, backend, true, conn)
	waitChange(t, changes)

	commands := conn.sentCommands()
	require.NotEmpty(t, commands)
	assert.Equal(t, actionJoinEmployeeRoom, commands[0].Action)
}

func TestOpenTicketJoinsRoomAndPullsDetail(t *testing.T) {
	backend := newTicketBackend(
		Ticket{ID: "t1", Status: "ASSIGNED", Messages: []Message{{ID: "m1", Message: "hello"}}},
	)
	conn := newFakeConn()
	sc, changes, _ := startSync(t, backend, false, conn)
	waitChange(t, changes)

	detail, err := sc.OpenTicket(context.Background(), "t1")
	require.NoError(t, err)
	require.Len(t, detail.Messages, 1)

	commands := conn.sentCommands()
	require.NotEmpty(t, commands)
	last := commands[len(commands)-1]
	assert.Equal(t, actionJoinTicket, last.Action)
	assert.Equal(t, "t1", last.TicketID)

	sc.CloseTicketView()
	commands = conn.sentCommands()
	last = commands[len(commands)-1]
	assert.Equal(t, actionLeaveTicket, last.Action)
}

func TestSyncClientRejoinsOpenTicketAfterReconnect(t *testing.T) {
	backend := newTicketBackend(Ticket{ID: "t1", Status: "ASSIGNED"})
	first := newFakeConn()
	second := newFakeConn()
	sc, changes, _ := startSync(t, backend, false, first, second)
	waitChange(t, changes)

	_, err := sc.OpenTicket(context.Background(), "t1")
	require.NoError(t, err)

	first.Close()
	waitFor(t, func() bool {
		for _, cmd := range second.sentCommands() {
			if cmd.Action == actionJoinTicket && cmd.TicketID == "t1" {
				return true
			}
		}
		return false
	})
}

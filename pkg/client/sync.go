package client

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Notice is the push signal delivered over the realtime channel. It
// names what changed but never carries ticket state; receivers refetch
// over REST and treat that response as truth.
type Notice struct {
	Type      string    `json:"type"`
	Room      string    `json:"room"`
	TicketID  string    `json:"ticket_id,omitempty"`
	EventID   string    `json:"event_id"`
	Timestamp time.Time `json:"timestamp"`
}

// Conn is the minimal realtime connection surface SyncClient needs.
// *websocket.Conn satisfies it; tests substitute their own.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteJSON(v interface{}) error
	Close() error
}

type wsCommand struct {
	Action   string `json:"action"`
	TicketID string `json:"ticket_id,omitempty"`
}

const (
	actionJoinEmployeeRoom = "join_employee_room"
	actionJoinTicket       = "join_ticket"
	actionLeaveTicket      = "leave_ticket"
)

// SyncClient keeps a local ticket snapshot in sync with the service.
// Pushes are signals only; every notice triggers a REST refetch, and a
// fresh connection runs a full refetch before any push is trusted, so a
// client that missed pushes while offline still converges.
type SyncClient struct {
	api      *Client
	employee bool
	dial     func(ctx context.Context) (Conn, error)
	backoff  time.Duration

	mu         sync.Mutex
	conn       Conn
	tickets    map[string]Ticket
	openTicket string
	onChange   func()
}

// NewSyncClient creates a sync client dialing wsURL with the given
// bearer token. employee controls joining the shared employee room.
func NewSyncClient(api *Client, wsURL, token string, employee bool) *SyncClient {
	return &SyncClient{
		api:      api,
		employee: employee,
		backoff:  time.Second,
		tickets:  make(map[string]Ticket),
		dial: func(ctx context.Context) (Conn, error) {
			header := http.Header{}
			header.Set("Authorization", "Bearer "+token)
			conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
			if resp != nil && resp.Body != nil {
				resp.Body.Close()
			}
			if err != nil {
				return nil, err
			}
			return conn, nil
		},
	}
}

// SetDial replaces the connection factory. Intended for tests.
func (s *SyncClient) SetDial(dial func(ctx context.Context) (Conn, error)) {
	s.dial = dial
}

// OnChange registers a callback invoked after every snapshot update.
func (s *SyncClient) OnChange(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

// Run connects and processes notices until ctx is cancelled,
// reconnecting with backoff after failures. Each (re)connection joins
// rooms first and then refetches, so a notice racing the refetch is at
// worst a redundant pull.
func (s *SyncClient) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		conn, err := s.dial(ctx)
		if err != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.backoff):
			}
			continue
		}
		s.setConn(conn)

		if err := s.joinRooms(); err == nil {
			_ = s.Refresh(ctx)
			s.readLoop(ctx, conn)
		}
		s.setConn(nil)
		conn.Close()
	}
}

// OpenTicket subscribes to a ticket's room and pulls its detail. The
// join happens before the pull so no change can slip between them.
func (s *SyncClient) OpenTicket(ctx context.Context, ticketID string) (*Ticket, error) {
	s.mu.Lock()
	previous := s.openTicket
	s.openTicket = ticketID
	conn := s.conn
	s.mu.Unlock()

	if conn != nil {
		if previous != "" && previous != ticketID {
			_ = conn.WriteJSON(wsCommand{Action: actionLeaveTicket, TicketID: previous})
		}
		if err := conn.WriteJSON(wsCommand{Action: actionJoinTicket, TicketID: ticketID}); err != nil {
			return nil, err
		}
	}
	ticket, err := s.api.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	s.store(*ticket)
	return ticket, nil
}

// CloseTicketView leaves the ticket room when the detail view goes away.
func (s *SyncClient) CloseTicketView() {
	s.mu.Lock()
	ticketID := s.openTicket
	s.openTicket = ""
	conn := s.conn
	s.mu.Unlock()

	if conn != nil && ticketID != "" {
		_ = conn.WriteJSON(wsCommand{Action: actionLeaveTicket, TicketID: ticketID})
	}
}

// Refresh replaces the snapshot with a full REST pull.
func (s *SyncClient) Refresh(ctx context.Context) error {
	tickets, err := s.api.ListTickets(ctx, ListOptions{})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.tickets = make(map[string]Ticket, len(tickets))
	for _, t := range tickets {
		s.tickets[t.ID] = t
	}
	openTicket := s.openTicket
	s.mu.Unlock()

	if openTicket != "" {
		if detail, err := s.api.GetTicket(ctx, openTicket); err == nil {
			s.store(*detail)
		}
	}
	s.notifyChange()
	return nil
}

// Tickets returns the current snapshot.
func (s *SyncClient) Tickets() []Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Ticket, 0, len(s.tickets))
	for _, t := range s.tickets {
		out = append(out, t)
	}
	return out
}

// Ticket returns one ticket from the snapshot.
func (s *SyncClient) Ticket(ticketID string) (Ticket, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[ticketID]
	return t, ok
}

func (s *SyncClient) setConn(conn Conn) {
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
}

func (s *SyncClient) joinRooms() error {
	s.mu.Lock()
	conn := s.conn
	openTicket := s.openTicket
	s.mu.Unlock()
	if conn == nil {
		return nil
	}
	if s.employee {
		if err := conn.WriteJSON(wsCommand{Action: actionJoinEmployeeRoom}); err != nil {
			return err
		}
	}
	if openTicket != "" {
		if err := conn.WriteJSON(wsCommand{Action: actionJoinTicket, TicketID: openTicket}); err != nil {
			return err
		}
	}
	return nil
}

func (s *SyncClient) readLoop(ctx context.Context, conn Conn) {
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var notice Notice
		if err := json.Unmarshal(payload, &notice); err != nil {
			continue
		}
		s.handleNotice(ctx, notice)
	}
}

func (s *SyncClient) handleNotice(ctx context.Context, notice Notice) {
	if notice.TicketID == "" {
		_ = s.Refresh(ctx)
		return
	}
	ticket, err := s.api.GetTicket(ctx, notice.TicketID)
	if err != nil {
		// The signal named a ticket we could not pull; fall back to a
		// full refresh so the snapshot never dangles.
		_ = s.Refresh(ctx)
		return
	}
	s.store(*ticket)
}

func (s *SyncClient) store(ticket Ticket) {
	s.mu.Lock()
	s.tickets[ticket.ID] = ticket
	s.mu.Unlock()
	s.notifyChange()
}

func (s *SyncClient) notifyChange() {
	s.mu.Lock()
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

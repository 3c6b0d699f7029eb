package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/homequest/support-service/internal/domain"
	"github.com/homequest/support-service/internal/observability"
	apperrors "github.com/homequest/support-service/pkg/util"
)

// EmployeeRoom is joined by every employee client on session start.
const EmployeeRoom = "employee-broadcast"

// TicketRoom names the room for one ticket's detail/chat view.
func TicketRoom(ticketID string) string {
	return "ticket:" + ticketID
}

// Notice is the wire form of a push notification. It is a signal only:
// clients re-read state over REST instead of applying the payload.
type Notice struct {
	Type      string    `json:"type"`
	Room      string    `json:"room"`
	TicketID  string    `json:"ticket_id,omitempty"`
	EventID   string    `json:"event_id"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is one connected client's membership and outbound queue.
// Messages enqueued for a session are delivered in order; a session
// that cannot keep up is dropped rather than blocking the room.
type Session struct {
	ID      string
	Subject domain.SubjectType

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

// Send exposes the outbound queue for the session's write pump.
func (s *Session) Send() <-chan []byte {
	return s.send
}

// enqueue appends payload to the session queue. Reports false when the
// queue is full or the session is closed.
func (s *Session) enqueue(payload []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.send <- payload:
		return true
	default:
		return false
	}
}

func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.send)
	}
}

// Hub is the room-scoped publish/subscribe fabric. Membership is held
// in memory only; a reconnecting client must re-join its rooms.
type Hub struct {
	mu      sync.RWMutex
	rooms   map[string]map[*Session]struct{}
	logger  *zap.Logger
	metrics *observability.Metrics
	buffer  int
}

// NewHub creates a hub. sendBuffer bounds each session's outbound queue.
func NewHub(sendBuffer int, logger *zap.Logger, metrics *observability.Metrics) *Hub {
	if sendBuffer <= 0 {
		sendBuffer = 64
	}
	return &Hub{
		rooms:   make(map[string]map[*Session]struct{}),
		logger:  logger,
		metrics: metrics,
		buffer:  sendBuffer,
	}
}

// NewSession registers a connected client with the hub.
func (h *Hub) NewSession(id string, subject domain.SubjectType) *Session {
	return &Session{
		ID:      id,
		Subject: subject,
		send:    make(chan []byte, h.buffer),
	}
}

// Join adds the session to a room. The employee broadcast room is
// restricted to employee principals.
func (h *Hub) Join(session *Session, room string) error {
	if room == EmployeeRoom && session.Subject != domain.SubjectTypeEmployee {
		return apperrors.NewForbidden("employee room requires employee principal")
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Session]struct{})
		h.rooms[room] = members
	}
	members[session] = struct{}{}
	h.logger.Debug("session joined room", zap.String("session", session.ID), zap.String("room", room))
	return nil
}

// Leave removes the session from a room, releasing the membership so
// ticket rooms do not grow without bound as views change.
func (h *Hub) Leave(session *Session, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(session, room)
}

// Drop removes the session from every room and closes its queue.
// Called when the connection goes away.
func (h *Hub) Drop(session *Session) {
	h.mu.Lock()
	for room := range h.rooms {
		h.removeLocked(session, room)
	}
	h.mu.Unlock()
	session.close()
}

func (h *Hub) removeLocked(session *Session, room string) {
	members, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(members, session)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

// Broadcast fans the notice out to every member of its room. Delivery
// per session is FIFO; slow sessions are dropped, not waited on.
func (h *Hub) Broadcast(notice Notice) {
	payload, err := json.Marshal(notice)
	if err != nil {
		h.logger.Error("marshal notice", zap.Error(err))
		return
	}

	h.mu.RLock()
	members := make([]*Session, 0, len(h.rooms[notice.Room]))
	for session := range h.rooms[notice.Room] {
		members = append(members, session)
	}
	h.mu.RUnlock()

	var stalled []*Session
	for _, session := range members {
		if !session.enqueue(payload) {
			stalled = append(stalled, session)
		}
	}
	for _, session := range stalled {
		h.logger.Warn("dropping stalled session", zap.String("session", session.ID), zap.String("room", notice.Room))
		h.Drop(session)
	}
	if h.metrics != nil {
		h.metrics.RecordFanout(notice.Room, len(members)-len(stalled))
	}
}

// RoomSize reports current membership, used by tests and diagnostics.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/homequest/support-service/internal/auth"
	"github.com/homequest/support-service/internal/config"
	"github.com/homequest/support-service/internal/realtime"
)

// wsCommand is the only inbound traffic the socket accepts: room joins
// and leaves. All state mutation happens over REST.
type wsCommand struct {
	Action   string `json:"action"`
	TicketID string `json:"ticket_id,omitempty"`
}

const (
	actionJoinEmployeeRoom = "join_employee_room"
	actionJoinTicket       = "join_ticket"
	actionLeaveTicket      = "leave_ticket"
)

// RealtimeHandler owns the websocket endpoint feeding push signals to
// connected clients.
type RealtimeHandler struct {
	hub          *realtime.Hub
	logger       *zap.Logger
	pingInterval time.Duration
	writeTimeout time.Duration
}

// NewRealtimeHandler constructs handler.
func NewRealtimeHandler(hub *realtime.Hub, cfg config.RealtimeConfig, logger *zap.Logger) *RealtimeHandler {
	return &RealtimeHandler{
		hub:          hub,
		logger:       logger,
		pingInterval: cfg.PingInterval(),
		writeTimeout: cfg.WriteTimeout(),
	}
}

// Upgrade gates the route to websocket upgrade requests.
func (h *RealtimeHandler) Upgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// Serve returns the websocket connection handler.
func (h *RealtimeHandler) Serve() fiber.Handler {
	return websocket.New(h.serve)
}

func (h *RealtimeHandler) serve(conn *websocket.Conn) {
	defer conn.Close()

	principal, ok := auth.PrincipalFromLocals(conn.Locals(auth.PrincipalKey))
	if !ok {
		h.logger.Warn("websocket connection without principal")
		return
	}

	session := h.hub.NewSession(uuid.NewString(), principal.SubjectType)
	defer h.hub.Drop(session)

	h.logger.Info("realtime session started",
		zap.String("session", session.ID),
		zap.String("subject", string(principal.SubjectType)))

	done := make(chan struct{})
	go h.writePump(conn, session, done)
	defer close(done)

	// Read loop: joins and leaves only. Membership is gone when the
	// connection drops; reconnecting clients re-join explicitly.
	readDeadline := h.pingInterval * 3
	_ = conn.SetReadDeadline(time.Now().Add(readDeadline))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readDeadline))
	})

	for {
		var cmd wsCommand
		if err := conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure,
			) {
				h.logger.Warn("websocket closed unexpectedly", zap.String("session", session.ID), zap.Error(err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readDeadline))

		switch cmd.Action {
		case actionJoinEmployeeRoom:
			if err := h.hub.Join(session, realtime.EmployeeRoom); err != nil {
				h.logger.Warn("employee room join rejected", zap.String("session", session.ID))
			}
		case actionJoinTicket:
			if cmd.TicketID == "" {
				continue
			}
			_ = h.hub.Join(session, realtime.TicketRoom(cmd.TicketID))
		case actionLeaveTicket:
			if cmd.TicketID == "" {
				continue
			}
			h.hub.Leave(session, realtime.TicketRoom(cmd.TicketID))
		default:
			h.logger.Debug("unknown websocket action", zap.String("action", cmd.Action))
		}
	}
}

func (h *RealtimeHandler) writePump(conn *websocket.Conn, session *realtime.Session, done <-chan struct{}) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case payload, ok := <-session.Send():
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				h.logger.Warn("websocket write failed", zap.String("session", session.ID), zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

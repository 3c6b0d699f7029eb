package handlers

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/homequest/support-service/internal/api/dto"
	"github.com/homequest/support-service/internal/auth"
	"github.com/homequest/support-service/internal/domain"
	"github.com/homequest/support-service/internal/service"
	apperrors "github.com/homequest/support-service/pkg/util"
)

// TicketsHandler manages ticket endpoints shared by customers and
// employees. All mutation happens here over REST; the realtime channel
// only signals.
type TicketsHandler struct {
	service *service.TicketService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService) *TicketsHandler {
	return &TicketsHandler{service: ticketService}
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.SubjectType != domain.SubjectTypeCustomer {
		return apperrors.NewUnauthorized("customer required")
	}
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	role := domain.UserRoleBuyer
	if principal.UserRole != nil {
		role = *principal.UserRole
	}
	ticket, err := h.service.CreateTicket(c.UserContext(), service.TicketCreateInput{
		UserID:           principal.ID,
		UserRole:         role,
		CategoryTitle:    req.CategoryTitle,
		SubCategoryTitle: req.SubCategoryTitle,
		Problem:          req.Problem,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// ListTickets GET /tickets. Customers see their own tickets; employees
// see everything, filterable via status and assigned_to_me.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}

	filter := service.TicketListFilter{
		Limit:  parseInt(c.Query("page_size"), 50),
		Offset: (parseInt(c.Query("page"), 1) - 1) * parseInt(c.Query("page_size"), 50),
	}
	if statusStr := c.Query("status"); statusStr != "" {
		for _, part := range strings.Split(statusStr, ",") {
			filter.Statuses = append(filter.Statuses, domain.TicketStatus(strings.ToUpper(strings.TrimSpace(part))))
		}
	}
	switch principal.SubjectType {
	case domain.SubjectTypeCustomer:
		userID := principal.ID
		filter.UserID = &userID
	case domain.SubjectTypeEmployee:
		if c.Query("assigned_to_me") == "true" {
			employeeID := principal.ID
			filter.AssignedTo = &employeeID
		}
	}

	tickets, err := h.service.ListTickets(c.UserContext(), filter)
	if err != nil {
		return err
	}
	items := make([]dto.TicketSummary, 0, len(tickets))
	for i := range tickets {
		items = append(items, ticketSummary(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetTicket GET /tickets/:id returns detail plus the ordered message thread.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	ticket, msgs, err := h.service.GetTicket(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	if principal.SubjectType == domain.SubjectTypeCustomer && ticket.UserID != principal.ID {
		return apperrors.NewForbidden("ticket belongs to another customer")
	}
	return c.JSON(fiber.Map{"data": ticketDetail(ticket, msgs)})
}

// AddMessage POST /tickets/:id/messages.
func (h *TicketsHandler) AddMessage(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.CreateMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	senderType := domain.SenderTypeCustomer
	if principal.SubjectType == domain.SubjectTypeEmployee {
		senderType = domain.SenderTypeEmployee
	}
	msg, err := h.service.AddMessage(c.UserContext(), service.MessageInput{
		TicketID:   c.Params("id"),
		SenderID:   principal.ID,
		SenderType: senderType,
		Message:    req.Message,
		FileURL:    req.FileURL,
		FileName:   req.FileName,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": ticketMessageResponse(msg)})
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func ticketSummary(ticket *domain.Ticket) dto.TicketSummary {
	return dto.TicketSummary{
		ID:               ticket.ID,
		UserID:           ticket.UserID,
		UserRole:         ticket.UserRole,
		CategoryTitle:    ticket.CategoryTitle,
		SubCategoryTitle: ticket.SubCategoryTitle,
		Status:           ticket.EffectiveStatus(),
		AssignedTo:       ticket.AssignedTo,
		AssignedToName:   ticket.AssignedToName,
		CreatedAt:        ticket.CreatedAt,
		UpdatedAt:        ticket.UpdatedAt,
	}
}

func ticketDetail(ticket *domain.Ticket, messages []domain.TicketMessage) dto.TicketDetailResponse {
	msgs := make([]dto.TicketMessageResponse, 0, len(messages))
	for i := range messages {
		msgs = append(msgs, ticketMessageResponse(&messages[i]))
	}
	return dto.TicketDetailResponse{
		TicketSummary: ticketSummary(ticket),
		Problem:       ticket.Problem,
		ClosedAt:      ticket.ClosedAt,
		Messages:      msgs,
	}
}

func ticketMessageResponse(msg *domain.TicketMessage) dto.TicketMessageResponse {
	return dto.TicketMessageResponse{
		ID:         msg.ID,
		TicketID:   msg.TicketID,
		SenderID:   msg.SenderID,
		SenderType: msg.SenderType,
		Message:    msg.Message,
		FileURL:    msg.FileURL,
		FileName:   msg.FileName,
		CreatedAt:  msg.CreatedAt,
	}
}

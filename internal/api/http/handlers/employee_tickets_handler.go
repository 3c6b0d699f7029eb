package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/homequest/support-service/internal/auth"
	"github.com/homequest/support-service/internal/service"
	apperrors "github.com/homequest/support-service/pkg/util"
)

// EmployeeTicketsHandler exposes the assignment and lifecycle
// operations reserved for employees.
type EmployeeTicketsHandler struct {
	assignments *service.AssignmentService
	tickets     *service.TicketService
}

// NewEmployeeTicketsHandler constructs handler.
func NewEmployeeTicketsHandler(assignments *service.AssignmentService, tickets *service.TicketService) *EmployeeTicketsHandler {
	return &EmployeeTicketsHandler{assignments: assignments, tickets: tickets}
}

// AssignTicket POST /tickets/:id/assign. The employee identity comes
// from the auth context, never the request body.
func (h *EmployeeTicketsHandler) AssignTicket(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("employee required")
	}
	ticket, err := h.assignments.Claim(c.UserContext(), c.Params("id"), principal.ID, principal.Name)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// ResolveTicket PUT /tickets/:id/resolve.
func (h *EmployeeTicketsHandler) ResolveTicket(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("employee required")
	}
	ticket, err := h.tickets.Resolve(c.UserContext(), c.Params("id"), principal.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// CloseTicket PUT /tickets/:id/close.
func (h *EmployeeTicketsHandler) CloseTicket(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("employee required")
	}
	ticket, err := h.tickets.Close(c.UserContext(), c.Params("id"), principal.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(ticket)})
}

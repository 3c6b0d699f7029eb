package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/homequest/support-service/internal/api/http/handlers"
	"github.com/homequest/support-service/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health          *handlers.HealthHandler
	Tickets         *handlers.TicketsHandler
	EmployeeTickets *handlers.EmployeeTicketsHandler
	Realtime        *handlers.RealtimeHandler
	AuthMiddleware  *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/healthz/live", cfg.Health.Live)
	app.Get("/healthz/ready", cfg.Health.Ready)

	tickets := app.Group("/tickets", cfg.AuthMiddleware.Handle)
	tickets.Post("", auth.RequireCustomer(), cfg.Tickets.CreateTicket)
	tickets.Get("", auth.RequireAnyPrincipal(), cfg.Tickets.ListTickets)
	tickets.Get("/:id", auth.RequireAnyPrincipal(), cfg.Tickets.GetTicket)
	tickets.Post("/:id/messages", auth.RequireAnyPrincipal(), cfg.Tickets.AddMessage)

	tickets.Post("/:id/assign", auth.RequireEmployee(), cfg.EmployeeTickets.AssignTicket)
	tickets.Put("/:id/resolve", auth.RequireEmployee(), cfg.EmployeeTickets.ResolveTicket)
	tickets.Put("/:id/close", auth.RequireEmployee(), cfg.EmployeeTickets.CloseTicket)

	app.Get("/ws", cfg.Realtime.Upgrade, cfg.AuthMiddleware.Handle, cfg.Realtime.Serve())
}

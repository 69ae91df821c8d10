package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/spec-kit/ticketflow/internal/api/http/handlers"
	"github.com/spec-kit/ticketflow/internal/auth"
	"github.com/spec-kit/ticketflow/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Tickets        *handlers.TicketsHandler
	Accounts       *handlers.AccountsHandler
	AuthMiddleware *auth.AuthMiddleware
	Metrics        *observability.Metrics
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if registry := cfg.Metrics.Registry(); registry != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	}

	authGroup := app.Group("/auth")
	authGroup.Post("/register", cfg.Accounts.Register)
	authGroup.Post("/login", cfg.Accounts.Login)
	authGroup.Get("/me", cfg.AuthMiddleware.Handle, cfg.Accounts.Me)

	// Authentication is attached per route, not as group middleware, so
	// unknown paths still fall through to 404.
	authed := cfg.AuthMiddleware.Handle
	tickets := app.Group("/tickets")
	tickets.Post("/", authed, cfg.Tickets.CreateTicket)
	tickets.Get("/", authed, cfg.Tickets.ListTickets)
	tickets.Get("/:id", authed, cfg.Tickets.GetTicket)
	tickets.Delete("/:id", authed, auth.RequireAdmin(), cfg.Tickets.DeleteTicket)
	tickets.Patch("/:id/status", authed, cfg.Tickets.UpdateStatus)
	tickets.Patch("/:id/priority", authed, cfg.Tickets.UpdatePriority)
	tickets.Patch("/:id/assignee", authed, cfg.Tickets.Assign)
	tickets.Post("/:id/comments", authed, cfg.Tickets.AddComment)
	tickets.Get("/:id/history", authed, cfg.Tickets.History)

	app.Get("/reports/statistics", authed, cfg.Tickets.Statistics)
	app.Get("/accounts", authed, auth.RequireAdmin(), cfg.Accounts.List)
}

package handlers

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticketflow/internal/api/dto"
	"github.com/spec-kit/ticketflow/internal/domain"
	"github.com/spec-kit/ticketflow/internal/service"
	apperrors "github.com/spec-kit/ticketflow/pkg/util/errorutil"
)

// TicketsHandler exposes the ticket lifecycle endpoints.
type TicketsHandler struct {
	service *service.TicketService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService) *TicketsHandler {
	return &TicketsHandler{service: ticketService}
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	input := service.TicketCreateInput{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Assignee:    req.Assignee,
	}
	if strings.TrimSpace(req.Priority) != "" {
		priority, err := domain.ParseTicketPriority(req.Priority)
		if err != nil {
			return apperrors.NewValidationError(err.Error(), nil)
		}
		input.Priority = priority
	}
	ticket, err := h.service.CreateTicket(c.UserContext(), input)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": ticket})
}

// ListTickets GET /tickets?status=&priority=&assignee=.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	filter, err := parseTicketFilter(c)
	if err != nil {
		return err
	}
	tickets, err := h.service.ListTickets(c.UserContext(), filter)
	if err != nil {
		return err
	}
	items := make([]dto.TicketSummary, 0, len(tickets))
	for i := range tickets {
		items = append(items, dto.NewTicketSummary(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	return h.respondWithTicket(c, c.Params("id"))
}

// DeleteTicket DELETE /tickets/:id.
func (h *TicketsHandler) DeleteTicket(c *fiber.Ctx) error {
	id := c.Params("id")
	removed, err := h.service.DeleteTicket(c.UserContext(), id)
	if err != nil {
		return err
	}
	if !removed {
		return ticketNotFound(id)
	}
	return c.SendStatus(http.StatusNoContent)
}

// UpdateStatus PATCH /tickets/:id/status.
func (h *TicketsHandler) UpdateStatus(c *fiber.Ctx) error {
	var req dto.UpdateStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	status, err := domain.ParseTicketStatus(req.Status)
	if err != nil {
		return apperrors.NewValidationError(err.Error(), nil)
	}
	id := c.Params("id")
	updated, err := h.service.UpdateStatus(c.UserContext(), id, status)
	return h.afterMutation(c, id, updated, err)
}

// UpdatePriority PATCH /tickets/:id/priority.
func (h *TicketsHandler) UpdatePriority(c *fiber.Ctx) error {
	var req dto.UpdatePriorityRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	priority, err := domain.ParseTicketPriority(req.Priority)
	if err != nil {
		return apperrors.NewValidationError(err.Error(), nil)
	}
	id := c.Params("id")
	updated, err := h.service.UpdatePriority(c.UserContext(), id, priority)
	return h.afterMutation(c, id, updated, err)
}

// Assign PATCH /tickets/:id/assignee.
func (h *TicketsHandler) Assign(c *fiber.Ctx) error {
	var req dto.AssignRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	assignee := strings.TrimSpace(req.Assignee)
	if assignee == "" {
		return apperrors.NewValidationError("assignee required", nil)
	}
	id := c.Params("id")
	updated, err := h.service.Assign(c.UserContext(), id, assignee)
	return h.afterMutation(c, id, updated, err)
}

// AddComment POST /tickets/:id/comments.
func (h *TicketsHandler) AddComment(c *fiber.Ctx) error {
	var req dto.AddCommentRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.Content) == "" {
		return apperrors.NewValidationError("content required", nil)
	}
	id := c.Params("id")
	added, err := h.service.AddComment(c.UserContext(), id, req.Content)
	if err != nil {
		return err
	}
	if !added {
		return ticketNotFound(id)
	}
	c.Status(http.StatusCreated)
	return h.respondWithTicket(c, id)
}

// History GET /tickets/:id/history.
func (h *TicketsHandler) History(c *fiber.Ctx) error {
	history, err := h.service.GetHistory(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": history})
}

// Statistics GET /reports/statistics.
func (h *TicketsHandler) Statistics(c *fiber.Ctx) error {
	report, err := h.service.GetStatistics(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": report})
}

func (h *TicketsHandler) afterMutation(c *fiber.Ctx, id string, applied bool, err error) error {
	if err != nil {
		return err
	}
	if !applied {
		return ticketNotFound(id)
	}
	return h.respondWithTicket(c, id)
}

func (h *TicketsHandler) respondWithTicket(c *fiber.Ctx, id string) error {
	ticket, ok, err := h.service.GetTicket(c.UserContext(), id)
	if err != nil {
		return err
	}
	if !ok {
		return ticketNotFound(id)
	}
	return c.JSON(fiber.Map{"data": ticket})
}

func parseTicketFilter(c *fiber.Ctx) (service.TicketFilter, error) {
	filter := service.TicketFilter{}
	if raw := c.Query("status"); raw != "" {
		status, err := domain.ParseTicketStatus(raw)
		if err != nil {
			return filter, apperrors.NewValidationError(err.Error(), nil)
		}
		filter.Status = &status
	}
	if raw := c.Query("priority"); raw != "" {
		priority, err := domain.ParseTicketPriority(raw)
		if err != nil {
			return filter, apperrors.NewValidationError(err.Error(), nil)
		}
		filter.Priority = &priority
	}
	if raw := strings.TrimSpace(c.Query("assignee")); raw != "" {
		filter.Assignee = &raw
	}
	return filter, nil
}

func ticketNotFound(id string) error {
	return apperrors.NewNotFound("ticket", map[string]any{"id": id})
}

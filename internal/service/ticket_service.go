package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/ticketflow/internal/domain"
	"github.com/spec-kit/ticketflow/internal/events"
	"github.com/spec-kit/ticketflow/internal/observability"
	"github.com/spec-kit/ticketflow/internal/repository"
	apperrors "github.com/spec-kit/ticketflow/pkg/util/errorutil"
)

const (
	unassignedLabel  = "unassigned"
	maxIDAttempts    = 16
	commentPreview   = 120
	defaultActorName = "admin"
)

// TicketService coordinates ticket workflows. It never caches tickets: every
// operation reads the store, and each mutation runs inside a single
// repository Update so writers of the same ticket never interleave.
type TicketService struct {
	tickets     repository.TicketRepository
	dispatcher  events.Dispatcher
	metrics     *observability.Metrics
	logger      *zap.Logger
	transitions TransitionPolicy
	now         func() time.Time
	newTicketID func() string

	actorMu      sync.RWMutex
	currentActor string
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo   repository.TicketRepository
	Dispatcher   events.Dispatcher
	Metrics      *observability.Metrics
	Logger       *zap.Logger
	Transitions  TransitionPolicy
	DefaultActor string
	Clock        func() time.Time
	IDGenerator  func() string
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Title       string
	Description string
	Priority    domain.TicketPriority
	Category    *string
	Assignee    *string
}

// TicketFilter is a conjunctive filter; nil fields impose no constraint.
type TicketFilter = repository.TicketCriteria

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	s := &TicketService{
		tickets:      deps.TicketRepo,
		dispatcher:   deps.Dispatcher,
		metrics:      deps.Metrics,
		logger:       deps.Logger,
		transitions:  deps.Transitions,
		now:          deps.Clock,
		newTicketID:  deps.IDGenerator,
		currentActor: deps.DefaultActor,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	if s.newTicketID == nil {
		s.newTicketID = generateTicketID
	}
	if s.currentActor == "" {
		s.currentActor = defaultActorName
	}
	return s
}

// SetCurrentActor sets the identity used when a call carries none.
func (s *TicketService) SetCurrentActor(identity string) {
	s.actorMu.Lock()
	defer s.actorMu.Unlock()
	s.currentActor = identity
}

// CurrentActor returns the identity used when a call carries none.
func (s *TicketService) CurrentActor() string {
	s.actorMu.RLock()
	defer s.actorMu.RUnlock()
	return s.currentActor
}

func (s *TicketService) actorFor(ctx context.Context) string {
	if actor, ok := ActorFromContext(ctx); ok {
		return actor
	}
	return s.CurrentActor()
}

// CreateTicket validates input, opens a ticket and records its creation.
func (s *TicketService) CreateTicket(ctx context.Context, input TicketCreateInput) (*domain.Ticket, error) {
	const op = "create"
	title := strings.TrimSpace(input.Title)
	description := strings.TrimSpace(input.Description)
	if title == "" || description == "" {
		s.metrics.RecordTicketOperation(op, "invalid")
		return nil, apperrors.NewValidationError("title and description are required", map[string]any{
			"title_empty":       title == "",
			"description_empty": description == "",
		})
	}
	priority := input.Priority
	if priority == "" {
		priority = domain.TicketPriorityMedium
	}
	if !priority.Valid() {
		s.metrics.RecordTicketOperation(op, "invalid")
		return nil, apperrors.NewValidationError("invalid priority", map[string]any{"priority": string(priority)})
	}

	actor := s.actorFor(ctx)
	now := s.now()
	ticket := &domain.Ticket{
		Title:       title,
		Description: description,
		Priority:    priority,
		Status:      domain.TicketStatusOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
		CreatedBy:   actor,
		Assignee:    nonEmpty(input.Assignee),
		Category:    nonEmpty(input.Category),
		History:     []domain.HistoryEntry{},
		Comments:    []domain.Comment{},
	}
	appendHistory(ticket, actor, now, domain.FieldStatus, nil, string(domain.TicketStatusOpen),
		fmt.Sprintf("Ticket created with title: %s", title))

	if err := s.insertWithFreshID(ctx, ticket); err != nil {
		s.metrics.RecordTicketOperation(op, "error")
		return nil, err
	}
	s.metrics.RecordTicketOperation(op, "ok")
	s.logger.Info("ticket created", zap.String("ticket_id", ticket.ID), zap.String("actor", actor))
	s.publishEvent(ctx, events.Event{
		Type:      events.EventTicketCreated,
		TicketID:  ticket.ID,
		Actor:     actor,
		Timestamp: now,
		Payload: events.TicketCreatedPayload{
			Title:    title,
			Priority: priority,
			Category: ticket.Category,
			Assignee: ticket.Assignee,
		},
	})
	return ticket, nil
}

// UpdateStatus changes the status. It returns false when the ticket does not exist.
func (s *TicketService) UpdateStatus(ctx context.Context, id string, newStatus domain.TicketStatus) (bool, error) {
	const op = "update_status"
	if !newStatus.Valid() {
		s.metrics.RecordTicketOperation(op, "invalid")
		return false, apperrors.NewValidationError("invalid status", map[string]any{"status": string(newStatus)})
	}
	return s.mutate(ctx, op, id, func(ticket *domain.Ticket, actor string, now time.Time) (*events.Event, error) {
		oldStatus := ticket.Status
		if s.transitions != nil && !s.transitions.Allowed(oldStatus, newStatus) {
			return nil, apperrors.NewValidationError("status transition not allowed", map[string]any{
				"from": string(oldStatus),
				"to":   string(newStatus),
			})
		}
		ticket.Status = newStatus
		previous := string(oldStatus)
		appendHistory(ticket, actor, now, domain.FieldStatus, &previous, string(newStatus),
			fmt.Sprintf("Status changed from %s to %s", oldStatus, newStatus))
		return &events.Event{
			Type:    events.EventTicketStatusChanged,
			Payload: events.TicketStatusChangedPayload{OldStatus: oldStatus, NewStatus: newStatus},
		}, nil
	})
}

// UpdatePriority changes the priority. It returns false when the ticket does not exist.
func (s *TicketService) UpdatePriority(ctx context.Context, id string, newPriority domain.TicketPriority) (bool, error) {
	const op = "update_priority"
	if !newPriority.Valid() {
		s.metrics.RecordTicketOperation(op, "invalid")
		return false, apperrors.NewValidationError("invalid priority", map[string]any{"priority": string(newPriority)})
	}
	return s.mutate(ctx, op, id, func(ticket *domain.Ticket, actor string, now time.Time) (*events.Event, error) {
		oldPriority := ticket.Priority
		ticket.Priority = newPriority
		previous := string(oldPriority)
		appendHistory(ticket, actor, now, domain.FieldPriority, &previous, string(newPriority),
			fmt.Sprintf("Priority changed from %s to %s", oldPriority, newPriority))
		return &events.Event{
			Type:    events.EventTicketPriorityChanged,
			Payload: events.TicketPriorityChangedPayload{OldPriority: oldPriority, NewPriority: newPriority},
		}, nil
	})
}

// Assign sets the assignee. It returns false when the ticket does not exist.
func (s *TicketService) Assign(ctx context.Context, id, assignee string) (bool, error) {
	const op = "assign"
	assignee = strings.TrimSpace(assignee)
	if assignee == "" {
		s.metrics.RecordTicketOperation(op, "invalid")
		return false, apperrors.NewValidationError("assignee is required", nil)
	}
	return s.mutate(ctx, op, id, func(ticket *domain.Ticket, actor string, now time.Time) (*events.Event, error) {
		oldAssignee := ticket.Assignee
		previousLabel := unassignedLabel
		if oldAssignee != nil {
			previousLabel = *oldAssignee
		}
		newAssignee := assignee
		ticket.Assignee = &newAssignee
		appendHistory(ticket, actor, now, domain.FieldAssignee, oldAssignee, assignee,
			fmt.Sprintf("Ticket assigned to %s (previously %s)", assignee, previousLabel))
		return &events.Event{
			Type:    events.EventTicketAssigned,
			Payload: events.TicketAssignedPayload{OldAssignee: oldAssignee, NewAssignee: assignee},
		}, nil
	})
}

// AddComment appends a comment authored by the acting identity. The history
// entry records the comment ID, not its text.
func (s *TicketService) AddComment(ctx context.Context, id, text string) (bool, error) {
	return s.mutate(ctx, "add_comment", id, func(ticket *domain.Ticket, actor string, now time.Time) (*events.Event, error) {
		commentID, err := uniqueCommentID(ticket)
		if err != nil {
			return nil, err
		}
		ticket.Comments = append(ticket.Comments, domain.Comment{
			ID:        commentID,
			Timestamp: now,
			Actor:     actor,
			Content:   text,
		})
		appendHistory(ticket, actor, now, domain.FieldComment, nil, commentID,
			fmt.Sprintf("Comment added by %s", actor))
		return &events.Event{
			Type: events.EventTicketCommentAdded,
			Payload: events.TicketCommentAddedPayload{
				CommentID:   commentID,
				BodyPreview: stringPreview(text, commentPreview),
			},
		}, nil
	})
}

// GetTicket returns the ticket, or false when it does not exist.
func (s *TicketService) GetTicket(ctx context.Context, id string) (*domain.Ticket, bool, error) {
	ticket, ok, err := s.tickets.Get(ctx, id)
	if err != nil {
		return nil, false, apperrors.NewPersistenceFailure(err)
	}
	return ticket, ok, nil
}

// GetHistory returns the audit trail in chronological order; an unknown
// ticket yields an empty slice.
func (s *TicketService) GetHistory(ctx context.Context, id string) ([]domain.HistoryEntry, error) {
	ticket, ok, err := s.tickets.Get(ctx, id)
	if err != nil {
		return nil, apperrors.NewPersistenceFailure(err)
	}
	if !ok {
		return []domain.HistoryEntry{}, nil
	}
	history := make([]domain.HistoryEntry, len(ticket.History))
	copy(history, ticket.History)
	return history, nil
}

// ListTickets returns tickets matching every supplied filter, in store order.
func (s *TicketService) ListTickets(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, apperrors.NewValidationError("invalid status filter", map[string]any{"status": string(*filter.Status)})
	}
	if filter.Priority != nil && !filter.Priority.Valid() {
		return nil, apperrors.NewValidationError("invalid priority filter", map[string]any{"priority": string(*filter.Priority)})
	}
	tickets, err := s.tickets.Find(ctx, filter)
	if err != nil {
		return nil, apperrors.NewPersistenceFailure(err)
	}
	return tickets, nil
}

// DeleteTicket removes the ticket and its audit trail from the store. It
// returns false when nothing was removed.
func (s *TicketService) DeleteTicket(ctx context.Context, id string) (bool, error) {
	const op = "delete"
	snapshot, _, err := s.tickets.Get(ctx, id)
	if err != nil {
		s.metrics.RecordTicketOperation(op, "error")
		return false, apperrors.NewPersistenceFailure(err)
	}
	removed, err := s.tickets.Delete(ctx, id)
	if err != nil {
		s.metrics.RecordTicketOperation(op, "error")
		return false, apperrors.NewPersistenceFailure(err)
	}
	if !removed {
		s.metrics.RecordTicketOperation(op, "not_found")
		return false, nil
	}
	s.metrics.RecordTicketOperation(op, "ok")
	actor := s.actorFor(ctx)
	s.logger.Info("ticket deleted", zap.String("ticket_id", id), zap.String("actor", actor))
	if snapshot != nil {
		s.publishEvent(ctx, events.Event{
			Type:     events.EventTicketDeleted,
			TicketID: id,
			Actor:    actor,
			Payload:  events.TicketDeletedPayload{Ticket: *snapshot},
		})
	}
	return true, nil
}

type mutation func(ticket *domain.Ticket, actor string, now time.Time) (*events.Event, error)

// mutate applies one change through the repository's atomic Update. apply
// must append exactly one history entry.
func (s *TicketService) mutate(ctx context.Context, op, id string, apply mutation) (bool, error) {
	actor := s.actorFor(ctx)
	now := s.now()

	var event *events.Event
	found, err := s.tickets.Update(ctx, id, func(ticket *domain.Ticket) error {
		applied, err := apply(ticket, actor, now)
		if err != nil {
			return err
		}
		ticket.UpdatedAt = now
		event = applied
		return nil
	})
	if err != nil {
		var domainErr *apperrors.DomainError
		if errors.As(err, &domainErr) {
			s.metrics.RecordTicketOperation(op, outcomeFor(err))
			return false, domainErr
		}
		s.metrics.RecordTicketOperation(op, "error")
		s.logger.Error("ticket persist failed", zap.String("op", op), zap.String("ticket_id", id), zap.Error(err))
		return false, apperrors.NewPersistenceFailure(err)
	}
	if !found {
		s.metrics.RecordTicketOperation(op, "not_found")
		s.logger.Debug("ticket not found", zap.String("op", op), zap.String("ticket_id", id))
		return false, nil
	}
	s.metrics.RecordTicketOperation(op, "ok")

	if event != nil {
		event.TicketID = id
		event.Actor = actor
		event.Timestamp = now
		s.publishEvent(ctx, *event)
	}
	return true, nil
}

// insertWithFreshID assigns ticket.ID and creates the ticket, drawing a new
// ID whenever the store reports a collision.
func (s *TicketService) insertWithFreshID(ctx context.Context, ticket *domain.Ticket) error {
	for i := 0; i < maxIDAttempts; i++ {
		ticket.ID = s.newTicketID()
		err := s.tickets.Create(ctx, ticket)
		if err == nil {
			return nil
		}
		if !errors.Is(err, repository.ErrTicketExists) {
			return apperrors.NewPersistenceFailure(err)
		}
	}
	return apperrors.NewInternalError(errors.New("could not allocate a unique ticket id"))
}

func uniqueCommentID(ticket *domain.Ticket) (string, error) {
	for i := 0; i < maxIDAttempts; i++ {
		id := uuid.NewString()[:8]
		if !ticket.HasComment(id) {
			return id, nil
		}
	}
	return "", apperrors.NewInternalError(errors.New("could not allocate a unique comment id"))
}

func appendHistory(ticket *domain.Ticket, actor string, now time.Time, field domain.TicketField, previous *string, newValue, description string) {
	ticket.History = append(ticket.History, domain.HistoryEntry{
		Timestamp:     now,
		Actor:         actor,
		Field:         field,
		PreviousValue: previous,
		NewValue:      newValue,
		Description:   description,
	})
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handler failed",
			zap.String("event_type", string(event.Type)),
			zap.String("ticket_id", event.TicketID),
			zap.Error(err))
	}
}

func generateTicketID() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func nonEmpty(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func outcomeFor(err error) string {
	if apperrors.IsCode(err, apperrors.CodeValidation) {
		return "invalid"
	}
	return "error"
}

func stringPreview(body string, limit int) string {
	body = strings.TrimSpace(body)
	if len(body) <= limit {
		return body
	}
	if limit <= 3 {
		return body[:limit]
	}
	return body[:limit-3] + "..."
}

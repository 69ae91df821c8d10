package repository

import "github.com/spec-kit/ticketflow/internal/domain"

// TicketCriteria is a conjunctive filter; nil fields impose no constraint.
type TicketCriteria struct {
	Status   *domain.TicketStatus
	Priority *domain.TicketPriority
	Assignee *string
}

// Matches reports whether ticket satisfies every set field.
func (c TicketCriteria) Matches(ticket *domain.Ticket) bool {
	if c.Status != nil && ticket.Status != *c.Status {
		return false
	}
	if c.Priority != nil && ticket.Priority != *c.Priority {
		return false
	}
	if c.Assignee != nil && (ticket.Assignee == nil || *ticket.Assignee != *c.Assignee) {
		return false
	}
	return true
}

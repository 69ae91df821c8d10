package service

import "github.com/spec-kit/ticketflow/internal/domain"

// TransitionPolicy decides whether a status change is legal. A nil policy
// allows every transition.
type TransitionPolicy interface {
	Allowed(from, to domain.TicketStatus) bool
}

// TransitionTable lists the statuses reachable from each status.
type TransitionTable map[domain.TicketStatus][]domain.TicketStatus

// Allowed implements TransitionPolicy.
func (t TransitionTable) Allowed(from, to domain.TicketStatus) bool {
	for _, candidate := range t[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// StrictTransitions requires a ticket to be resolved before it is closed.
var StrictTransitions = TransitionTable{
	domain.TicketStatusOpen:       {domain.TicketStatusInProgress, domain.TicketStatusPaused, domain.TicketStatusResolved},
	domain.TicketStatusInProgress: {domain.TicketStatusPaused, domain.TicketStatusResolved},
	domain.TicketStatusPaused:     {domain.TicketStatusInProgress, domain.TicketStatusResolved},
	domain.TicketStatusResolved:   {domain.TicketStatusClosed, domain.TicketStatusReopened},
	domain.TicketStatusClosed:     {domain.TicketStatusReopened},
	domain.TicketStatusReopened:   {domain.TicketStatusInProgress, domain.TicketStatusPaused, domain.TicketStatusResolved},
}

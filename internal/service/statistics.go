package service

import (
	"context"

	"github.com/spec-kit/ticketflow/internal/domain"
	apperrors "github.com/spec-kit/ticketflow/pkg/util/errorutil"
)

// Report aggregates ticket counts. Unassigned tickets are absent from
// ByAssignee.
type Report struct {
	TotalTickets    int                           `json:"total_tickets"`
	ByStatus        map[domain.TicketStatus]int   `json:"by_status"`
	ByPriority      map[domain.TicketPriority]int `json:"by_priority"`
	ByAssignee      map[string]int                `json:"by_assignee"`
	TicketsOpen     int                           `json:"tickets_open"`
	TicketsCritical int                           `json:"tickets_critical"`
}

// GetStatistics computes a report from a single snapshot of the store.
func (s *TicketService) GetStatistics(ctx context.Context) (*Report, error) {
	tickets, err := s.tickets.GetAll(ctx)
	if err != nil {
		return nil, apperrors.NewPersistenceFailure(err)
	}
	return buildReport(tickets), nil
}

func buildReport(tickets []domain.Ticket) *Report {
	report := &Report{
		TotalTickets: len(tickets),
		ByStatus:     map[domain.TicketStatus]int{},
		ByPriority:   map[domain.TicketPriority]int{},
		ByAssignee:   map[string]int{},
	}
	for i := range tickets {
		ticket := &tickets[i]
		report.ByStatus[ticket.Status]++
		report.ByPriority[ticket.Priority]++
		if assignee := ticket.AssigneeOrEmpty(); assignee != "" {
			report.ByAssignee[assignee]++
		}
		if ticket.Status == domain.TicketStatusOpen {
			report.TicketsOpen++
		}
		if ticket.Priority == domain.TicketPriorityCritical {
			report.TicketsCritical++
		}
	}
	return report
}

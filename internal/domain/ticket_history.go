package domain

import "time"

// TicketField names the ticket attribute a history entry refers to.
type TicketField string

const (
	FieldStatus   TicketField = "status"
	FieldPriority TicketField = "priority"
	FieldAssignee TicketField = "assignee"
	FieldComment  TicketField = "comment"
)

// HistoryEntry is an immutable audit trail entry. PreviousValue is nil when
// the field was previously unset.
type HistoryEntry struct {
	Timestamp     time.Time   `json:"timestamp"`
	Actor         string      `json:"actor"`
	Field         TicketField `json:"field"`
	PreviousValue *string     `json:"previous_value"`
	NewValue      string      `json:"new_value"`
	Description   string      `json:"description"`
}

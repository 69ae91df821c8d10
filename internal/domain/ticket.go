package domain

import (
	"fmt"
	"strings"
	"time"
)

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "OPEN"
	TicketStatusInProgress TicketStatus = "IN_PROGRESS"
	TicketStatusPaused     TicketStatus = "PAUSED"
	TicketStatusResolved   TicketStatus = "RESOLVED"
	TicketStatusClosed     TicketStatus = "CLOSED"
	TicketStatusReopened   TicketStatus = "REOPENED"
)

// TicketStatuses lists every status in declaration order.
var TicketStatuses = []TicketStatus{
	TicketStatusOpen,
	TicketStatusInProgress,
	TicketStatusPaused,
	TicketStatusResolved,
	TicketStatusClosed,
	TicketStatusReopened,
}

// TicketPriority enumerates urgency, lowest first.
type TicketPriority string

const (
	TicketPriorityLow      TicketPriority = "LOW"
	TicketPriorityMedium   TicketPriority = "MEDIUM"
	TicketPriorityHigh     TicketPriority = "HIGH"
	TicketPriorityCritical TicketPriority = "CRITICAL"
)

// TicketPriorities lists every priority in ascending order.
var TicketPriorities = []TicketPriority{
	TicketPriorityLow,
	TicketPriorityMedium,
	TicketPriorityHigh,
	TicketPriorityCritical,
}

// Valid reports whether s is a known status.
func (s TicketStatus) Valid() bool {
	for _, candidate := range TicketStatuses {
		if s == candidate {
			return true
		}
	}
	return false
}

func (s TicketStatus) String() string {
	return string(s)
}

// MarshalText refuses to encode unknown statuses so they never reach storage.
func (s TicketStatus) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid ticket status %q", string(s))
	}
	return []byte(s), nil
}

func (s *TicketStatus) UnmarshalText(text []byte) error {
	parsed, err := ParseTicketStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseTicketStatus accepts the canonical encoding case-insensitively.
func ParseTicketStatus(value string) (TicketStatus, error) {
	status := TicketStatus(strings.ToUpper(strings.TrimSpace(value)))
	if !status.Valid() {
		return "", fmt.Errorf("invalid ticket status %q", value)
	}
	return status, nil
}

// Valid reports whether p is a known priority.
func (p TicketPriority) Valid() bool {
	for _, candidate := range TicketPriorities {
		if p == candidate {
			return true
		}
	}
	return false
}

func (p TicketPriority) String() string {
	return string(p)
}

// MarshalText refuses to encode unknown priorities.
func (p TicketPriority) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("invalid ticket priority %q", string(p))
	}
	return []byte(p), nil
}

func (p *TicketPriority) UnmarshalText(text []byte) error {
	parsed, err := ParseTicketPriority(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// ParseTicketPriority accepts the canonical encoding case-insensitively.
func ParseTicketPriority(value string) (TicketPriority, error) {
	priority := TicketPriority(strings.ToUpper(strings.TrimSpace(value)))
	if !priority.Valid() {
		return "", fmt.Errorf("invalid ticket priority %q", value)
	}
	return priority, nil
}

// Ticket is the aggregate for support requests. History and Comments are
// append-only and kept in chronological order.
type Ticket struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Priority    TicketPriority `json:"priority"`
	Status      TicketStatus   `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	CreatedBy   string         `json:"created_by"`
	Assignee    *string        `json:"assignee"`
	Category    *string        `json:"category"`
	History     []HistoryEntry `json:"history"`
	Comments    []Comment      `json:"comments"`
}

// Clone returns a deep copy so callers can mutate without aliasing store state.
func (t *Ticket) Clone() *Ticket {
	if t == nil {
		return nil
	}
	cp := *t
	cp.Assignee = cloneString(t.Assignee)
	cp.Category = cloneString(t.Category)
	cp.History = make([]HistoryEntry, len(t.History))
	for i, entry := range t.History {
		entry.PreviousValue = cloneString(entry.PreviousValue)
		cp.History[i] = entry
	}
	cp.Comments = make([]Comment, len(t.Comments))
	for i, comment := range t.Comments {
		if comment.EditedAt != nil {
			edited := *comment.EditedAt
			comment.EditedAt = &edited
		}
		cp.Comments[i] = comment
	}
	return &cp
}

// HasComment reports whether a comment with id already exists on the ticket.
func (t *Ticket) HasComment(id string) bool {
	for _, comment := range t.Comments {
		if comment.ID == id {
			return true
		}
	}
	return false
}

// AssigneeOrEmpty returns the assignee or "" when unassigned.
func (t *Ticket) AssigneeOrEmpty() string {
	if t.Assignee == nil {
		return ""
	}
	return *t.Assignee
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	s := *v
	return &s
}

package domain

import "time"

// Comment is a note appended to a ticket thread. EditedAt stays nil; comments
// cannot be edited.
type Comment struct {
	ID        string     `json:"id"`
	Timestamp time.Time  `json:"timestamp"`
	Actor     string     `json:"actor"`
	Content   string     `json:"content"`
	EditedAt  *time.Time `json:"edited_at"`
}

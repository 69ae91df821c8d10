package domain

import "time"

// Token represents issued access token metadata.
type Token struct {
	Subject   string
	Role      AccountRole
	ExpiresAt time.Time
	IssuedAt  time.Time
}

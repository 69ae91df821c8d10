package domain

import "time"

// AccountRole enumerates operator roles.
type AccountRole string

const (
	AccountRoleAdmin AccountRole = "admin"
	AccountRoleUser  AccountRole = "user"
)

// Account is an operator who can sign in and act on tickets. Username is the
// identity recorded as actor in ticket history.
type Account struct {
	Username     string      `json:"username"`
	PasswordHash string      `json:"password_hash"`
	Role         AccountRole `json:"role"`
	CreatedAt    time.Time   `json:"created_at"`
}

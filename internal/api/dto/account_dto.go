package dto

import (
	"time"

	"github.com/spec-kit/ticketflow/internal/domain"
)

// CredentialsRequest payload for registration and login.
type CredentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthResponse standard response for auth endpoints.
type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AccountResponse omits the password hash.
type AccountResponse struct {
	Username  string             `json:"username"`
	Role      domain.AccountRole `json:"role"`
	CreatedAt time.Time          `json:"created_at"`
}

// NewAccountResponse maps an account for output.
func NewAccountResponse(account *domain.Account) AccountResponse {
	return AccountResponse{
		Username:  account.Username,
		Role:      account.Role,
		CreatedAt: account.CreatedAt,
	}
}

package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticketflow/internal/domain"
	"github.com/spec-kit/ticketflow/internal/repository"
	apperrors "github.com/spec-kit/ticketflow/pkg/util/errorutil"
)

const principalKey = "auth_principal"

// Principal represents the authenticated caller.
type Principal struct {
	Account *domain.Account
	Token   *domain.Token
}

// ActorBinder attaches the caller's identity to the request context.
type ActorBinder func(ctx context.Context, actor string) context.Context

// AuthMiddleware validates bearer tokens and loads principals.
type AuthMiddleware struct {
	tokens    *TokenManager
	accounts  repository.AccountRepository
	bindActor ActorBinder
}

// NewAuthMiddleware constructs middleware. bindActor may be nil.
func NewAuthMiddleware(tokens *TokenManager, accounts repository.AccountRepository, bindActor ActorBinder) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, accounts: accounts, bindActor: bindActor}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return apperrors.NewUnauthorized("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return apperrors.NewUnauthorized("invalid authorization header")
	}

	token, err := m.tokens.ParseToken(strings.TrimSpace(parts[1]))
	if err != nil {
		return apperrors.NewUnauthorized("invalid token")
	}

	account, err := m.accounts.GetByUsername(c.UserContext(), token.Subject)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return apperrors.NewUnauthorized("account not found")
		}
		return apperrors.NewPersistenceFailure(err)
	}

	c.Locals(principalKey, &Principal{Account: account, Token: token})
	if m.bindActor != nil {
		c.SetUserContext(m.bindActor(c.UserContext(), account.Username))
	}
	return c.Next()
}

// PrincipalFromContext retrieves the authenticated entity.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*Principal)
	return principal, ok
}

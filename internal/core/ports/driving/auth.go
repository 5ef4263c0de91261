package driving

import (
	"context"

	"github.com/openclinic-labs/intake-core/internal/core/domain"
)

// AuthService handles operator authentication for the dashboard API.
type AuthService interface {
	// Authenticate validates credentials and issues a bearer token.
	Authenticate(ctx context.Context, req domain.LoginRequest) (*domain.LoginResponse, error)

	// ValidateToken validates a JWT and returns its claims.
	ValidateToken(ctx context.Context, token string) (*domain.TokenClaims, error)
}

package services

import (
	"context"
	"strings"
	"time"

	"github.com/openclinic-labs/intake-core/internal/core/domain"
	"github.com/openclinic-labs/intake-core/internal/core/ports/driven"
	"github.com/openclinic-labs/intake-core/internal/core/ports/driving"
)

// Ensure authService implements AuthService
var _ driving.AuthService = (*authService)(nil)

// authService authenticates dashboard operators. Operators come from
// configuration, so there is no store behind this, only a fixed set.
type authService struct {
	operators   map[string]domain.Operator // keyed by lowercased email
	authAdapter driven.AuthAdapter
	tokenTTL    time.Duration
}

// NewAuthService creates a new AuthService over a fixed operator set.
func NewAuthService(operators []domain.Operator, authAdapter driven.AuthAdapter) driving.AuthService {
	byEmail := make(map[string]domain.Operator, len(operators))
	for _, op := range operators {
		byEmail[strings.ToLower(op.Email)] = op
	}
	return &authService{
		operators:   byEmail,
		authAdapter: authAdapter,
		tokenTTL:    24 * time.Hour,
	}
}

// Authenticate validates credentials and issues a bearer token.
func (s *authService) Authenticate(ctx context.Context, req domain.LoginRequest) (*domain.LoginResponse, error) {
	if req.Email == "" || req.Password == "" {
		return nil, domain.ErrInvalidCredentials
	}

	op, ok := s.operators[strings.ToLower(req.Email)]
	if !ok {
		return nil, domain.ErrInvalidCredentials
	}

	if !s.authAdapter.VerifyPassword(req.Password, op.PasswordHash) {
		return nil, domain.ErrInvalidCredentials
	}

	now := time.Now()
	claims := &domain.TokenClaims{
		Email:     op.Email,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(s.tokenTTL).Unix(),
	}

	token, err := s.authAdapter.GenerateToken(claims)
	if err != nil {
		return nil, err
	}

	return &domain.LoginResponse{
		Token:     token,
		ExpiresAt: claims.ExpiresAt,
	}, nil
}

// ValidateToken validates a JWT and returns its claims.
func (s *authService) ValidateToken(ctx context.Context, token string) (*domain.TokenClaims, error) {
	if token == "" {
		return nil, domain.ErrUnauthorized
	}

	claims, err := s.authAdapter.ParseToken(token)
	if err != nil {
		return nil, domain.ErrUnauthorized
	}

	if claims.Expired() {
		return nil, domain.ErrTokenExpired
	}

	if _, ok := s.operators[strings.ToLower(claims.Email)]; !ok {
		return nil, domain.ErrUnauthorized
	}

	return claims, nil
}

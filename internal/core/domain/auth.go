package domain

import "time"

// Operator is a dashboard user allowed to review queue items.
// The deployment is single-tenant; operators come from configuration,
// not from a self-service signup flow.
type Operator struct {
	Email        string `json:"email"`
	PasswordHash string `json:"-"`
}

// TokenClaims carries the authenticated operator identity inside a JWT.
type TokenClaims struct {
	Email     string `json:"email"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}

// Expired reports whether the claims are past their expiry.
func (c *TokenClaims) Expired() bool {
	return time.Now().Unix() >= c.ExpiresAt
}

// LoginRequest is the operator login payload.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse carries the issued bearer token.
type LoginResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
}

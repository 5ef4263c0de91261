package auth

import (
	"testing"
	"time"

	"github.com/openclinic-labs/intake-core/internal/core/domain"
)

func TestHashAndVerifyPassword(t *testing.T) {
	adapter := NewAdapterWithCost("secret", 4) // Low cost for faster tests

	hash, err := adapter.HashPassword("mypassword")
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}
	if hash == "" || hash == "mypassword" {
		t.Error("expected a salted hash")
	}

	if !adapter.VerifyPassword("mypassword", hash) {
		t.Error("expected password to verify")
	}
	if adapter.VerifyPassword("wrong", hash) {
		t.Error("expected wrong password to fail")
	}
}

func TestHashPassword_DifferentHashesForSamePassword(t *testing.T) {
	adapter := NewAdapterWithCost("secret", 4)

	hash1, _ := adapter.HashPassword("password123")
	hash2, _ := adapter.HashPassword("password123")

	if hash1 == hash2 {
		t.Error("expected different hashes for same password (due to salt)")
	}
}

func TestGenerateAndParseToken(t *testing.T) {
	adapter := NewAdapter("test-secret")

	now := time.Now()
	claims := &domain.TokenClaims{
		Email:     "reviewer@clinic.example",
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(time.Hour).Unix(),
	}

	token, err := adapter.GenerateToken(claims)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	parsed, err := adapter.ParseToken(token)
	if err != nil {
		t.Fatalf("failed to parse token: %v", err)
	}
	if parsed.Email != claims.Email {
		t.Errorf("expected email %s, got %s", claims.Email, parsed.Email)
	}
	if parsed.ExpiresAt != claims.ExpiresAt {
		t.Errorf("expected expiry %d, got %d", claims.ExpiresAt, parsed.ExpiresAt)
	}
}

func TestParseToken_WrongSecret(t *testing.T) {
	adapter := NewAdapter("secret-a")
	other := NewAdapter("secret-b")

	now := time.Now()
	token, _ := adapter.GenerateToken(&domain.TokenClaims{
		Email:     "reviewer@clinic.example",
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(time.Hour).Unix(),
	})

	if _, err := other.ParseToken(token); err == nil {
		t.Error("expected parse to fail with wrong secret")
	}
}

func TestParseToken_Garbage(t *testing.T) {
	adapter := NewAdapter("secret")
	if _, err := adapter.ParseToken("not.a.token"); err == nil {
		t.Error("expected parse to fail")
	}
}

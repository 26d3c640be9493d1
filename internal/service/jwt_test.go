package service

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/launchkit/identity/internal/model"
)

func testUser() *model.User {
	return &model.User{
		ID:        uuid.New(),
		FirstName: "Alice",
		LastName:  "Smith",
		Email:     "alice@example.com",
		Role:      model.RoleUser,
		Enabled:   true,
	}
}

func TestJWTService_RoundTrip(t *testing.T) {
	svc := NewJWTService("test-secret-key-0123456789abcdef", time.Hour)
	user := testUser()

	token, err := svc.GenerateToken(user)
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}

	if claims.UserID != user.ID {
		t.Errorf("Expected user id %s, got %s", user.ID, claims.UserID)
	}
	if claims.Email != user.Email {
		t.Errorf("Expected email %s, got %s", user.Email, claims.Email)
	}
	if claims.Role != model.RoleUser {
		t.Errorf("Expected role %s, got %s", model.RoleUser, claims.Role)
	}
	if claims.ExpiresAt == nil || !claims.ExpiresAt.After(time.Now()) {
		t.Error("Expected expiry in the future")
	}
}

func TestJWTService_ExpiredToken(t *testing.T) {
	svc := NewJWTService("test-secret-key-0123456789abcdef", -time.Minute)

	token, err := svc.GenerateToken(testUser())
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	if _, err := svc.ValidateToken(token); err != ErrTokenExpired {
		t.Errorf("Expected ErrTokenExpired, got %v", err)
	}
}

func TestJWTService_WrongKey(t *testing.T) {
	issuer := NewJWTService("key-one-0123456789abcdef01234567", time.Hour)
	verifier := NewJWTService("key-two-0123456789abcdef01234567", time.Hour)

	token, err := issuer.GenerateToken(testUser())
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	if _, err := verifier.ValidateToken(token); err != ErrTokenBadSignature {
		t.Errorf("Expected ErrTokenBadSignature, got %v", err)
	}
}

func TestJWTService_MalformedToken(t *testing.T) {
	svc := NewJWTService("test-secret-key-0123456789abcdef", time.Hour)

	for _, token := range []string{"", "garbage", "a.b.c"} {
		if _, err := svc.ValidateToken(token); err != ErrTokenMalformed {
			t.Errorf("Expected ErrTokenMalformed for %q, got %v", token, err)
		}
	}
}

func TestJWTService_GenerateRefreshToken(t *testing.T) {
	svc := NewJWTService("test-secret-key-0123456789abcdef", time.Hour)

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		value, err := svc.GenerateRefreshToken()
		if err != nil {
			t.Fatalf("GenerateRefreshToken failed: %v", err)
		}
		if len(value) < 40 {
			t.Fatalf("Refresh token too short: %d chars", len(value))
		}
		if seen[value] {
			t.Fatal("Duplicate refresh token generated")
		}
		seen[value] = true
	}
}

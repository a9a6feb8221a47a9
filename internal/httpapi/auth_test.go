package httpapi

import (
	"strings"
	"testing"
	"time"
)

// TestJWTAuth tests basic JWT authentication functionality
func TestJWTAuth(t *testing.T) {
	auth := NewJWTAuth("test-secret", 0)

	token, expiresAt, err := auth.GenerateToken("operator-1", false)
	if err != nil {
		t.Fatalf("Expected no error generating token, got %v", err)
	}
	if token == "" {
		t.Error("Expected non-empty token")
	}
	if expiresAt.IsZero() {
		t.Error("Expected valid expiration time")
	}

	claims, err := auth.ValidateToken(token)
	if err != nil {
		t.Fatalf("Expected no error validating token, got %v", err)
	}
	if claims.OperatorID != "operator-1" {
		t.Errorf("Expected OperatorID 'operator-1', got '%s'", claims.OperatorID)
	}
	if claims.Subject != "operator-1" {
		t.Errorf("Expected subject 'operator-1', got '%s'", claims.Subject)
	}
	if claims.IsAdmin {
		t.Error("Expected IsAdmin to be false")
	}

	if _, err := auth.ValidateToken("invalid-token"); err == nil {
		t.Error("Expected error for invalid token")
	}
	if _, err := auth.ValidateToken(""); err == nil {
		t.Error("Expected error for empty token")
	}
	if _, _, err := auth.GenerateToken("", false); err == nil {
		t.Error("Expected error for empty operator id")
	}
}

// TestJWTAuth_Claims tests admin flags, expiry and the Bearer prefix
func TestJWTAuth_Claims(t *testing.T) {
	auth := NewJWTAuth("claims-secret", time.Hour)

	t.Run("admin_token", func(t *testing.T) {
		token, _, err := auth.GenerateToken("admin", true)
		if err != nil {
			t.Fatalf("Expected no error generating admin token, got %v", err)
		}
		claims, err := auth.ValidateToken(token)
		if err != nil {
			t.Fatalf("Expected no error validating admin token, got %v", err)
		}
		if !claims.IsAdmin {
			t.Error("Expected IsAdmin to be true for admin token")
		}
	})

	t.Run("token_ttl", func(t *testing.T) {
		_, expiresAt, err := auth.GenerateToken("ttl-test", false)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if diff := expiresAt.Sub(time.Now().Add(time.Hour)).Abs(); diff > time.Minute {
			t.Errorf("Token expiration time off by more than 1 minute: %v", diff)
		}
	})

	t.Run("bearer_prefix", func(t *testing.T) {
		token, _, err := auth.GenerateToken("bearer-test", false)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		claims, err := auth.ValidateToken("Bearer " + token)
		if err != nil || claims.OperatorID != "bearer-test" {
			t.Errorf("Bearer token validation failed: %v", err)
		}
	})

	t.Run("wrong_secret", func(t *testing.T) {
		token, _, err := NewJWTAuth("other-secret", 0).GenerateToken("intruder", true)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if _, err := auth.ValidateToken(token); err == nil {
			t.Error("Expected token signed with another key to be rejected")
		}
	})

	t.Run("tampered_token", func(t *testing.T) {
		token, _, err := auth.GenerateToken("tamper", false)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		parts := strings.Split(token, ".")
		parts[1] = parts[1] + "x"
		if _, err := auth.ValidateToken(strings.Join(parts, ".")); err == nil {
			t.Error("Expected tampered token to be rejected")
		}
	})
}

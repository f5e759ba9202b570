package oauth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestParseIDTokenClaims(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   "user-123",
		"email": "user@example.com",
		"name":  "Example User",
		"iss":   "https://issuer.example.com",
		"exp":   exp.Unix(),
	})
	raw, err := token.SignedString([]byte("test-key"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	claims, err := ParseIDTokenClaims(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if claims.Subject != "user-123" || claims.Email != "user@example.com" || claims.Name != "Example User" {
		t.Errorf("unexpected claims %+v", claims)
	}
	if !claims.ExpiresAt.Equal(exp) {
		t.Errorf("ExpiresAt = %v, want %v", claims.ExpiresAt, exp)
	}

	if _, err := ParseIDTokenClaims(""); err == nil {
		t.Error("expected error for empty token")
	}
	if _, err := ParseIDTokenClaims("not-a-jwt"); err == nil {
		t.Error("expected error for malformed token")
	}
}

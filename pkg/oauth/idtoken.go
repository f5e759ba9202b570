package oauth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// IDTokenClaims holds the identity claims shown to the user after login.
// They are decoded without signature verification and must never be used
// for authorization decisions.
type IDTokenClaims struct {
	Subject   string    `json:"sub"`
	Email     string    `json:"email,omitempty"`
	Name      string    `json:"name,omitempty"`
	Issuer    string    `json:"iss,omitempty"`
	ExpiresAt time.Time `json:"exp,omitempty"`
}

type idTokenPayload struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

// ParseIDTokenClaims decodes the payload of an ID token.
func ParseIDTokenClaims(raw string) (*IDTokenClaims, error) {
	if raw == "" {
		return nil, fmt.Errorf("empty ID token")
	}

	var payload idTokenPayload
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode ID token: %w", err)
	}

	claims := &IDTokenClaims{
		Subject: payload.Subject,
		Email:   payload.Email,
		Name:    payload.Name,
		Issuer:  payload.Issuer,
	}
	if payload.ExpiresAt != nil {
		claims.ExpiresAt = payload.ExpiresAt.Time
	}
	return claims, nil
}

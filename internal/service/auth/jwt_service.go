package auth

import (
	"context"
	"time"
)

// JWTService defines operations for managing JWT bearer tokens.
type JWTService interface {
	// GenerateToken creates a signed access token for subject, typically the
	// name of the client calling the job API.
	GenerateToken(ctx context.Context, subject string) (string, error)

	// ValidateToken validates the token string and extracts its claims.
	// Returns ErrExpiredToken, ErrTokenNotYetValid, ErrWrongTokenType or
	// ErrInvalidToken when validation fails.
	ValidateToken(ctx context.Context, tokenString string) (*Claims, error)
}

// Claims are the validated claims of an access token.
type Claims struct {
	Subject   string    `json:"sub,omitempty"`
	TokenType string    `json:"type,omitempty"`
	IssuedAt  time.Time `json:"iat,omitempty"`
	ExpiresAt time.Time `json:"exp,omitempty"`
	ID        string    `json:"jti,omitempty"`
}

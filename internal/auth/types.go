package auth

import (
	"errors"
	"time"
)

// ErrInvalidToken is returned for any token that fails verification.
var ErrInvalidToken = errors.New("invalid or expired token")

// Result is the outcome of a successful token check. It is stored in the
// request context under ResultKey.
type Result struct {
	Subject   string    `json:"subject"`
	Session   string    `json:"session,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Token is a signed bearer token.
type Token struct {
	Type      string    `json:"type"` // "Bearer"
	Value     string    `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
}

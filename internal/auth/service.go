package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "usagelog"

// Config configures a TokenService.
type Config struct {
	Secret   string        `mapstructure:"jwt_secret"`
	TokenTTL time.Duration `mapstructure:"token_ttl"`
}

// Claims are the collector token claims.
type Claims struct {
	Session string `json:"session,omitempty"`
	jwt.RegisteredClaims
}

// TokenService signs and verifies HS256 collector tokens. Clients and the
// collector share the secret.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenService returns an error when the secret is empty.
func NewTokenService(cfg Config) (*TokenService, error) {
	if cfg.Secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &TokenService{secret: []byte(cfg.Secret), ttl: ttl, now: time.Now}, nil
}

// Issue signs a token for subject (the client app) and session.
func (s *TokenService) Issue(subject, session string) (*Token, error) {
	now := s.now()
	expiresAt := now.Add(s.ttl)
	claims := &Claims{
		Session: session,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
			Subject:   subject,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return &Token{Type: "Bearer", Value: tokenString, ExpiresAt: expiresAt}, nil
}

// TokenFunc returns a function minting a fresh token per call, the shape
// the HTTP sink expects.
func (s *TokenService) TokenFunc(subject, session string) func() (string, error) {
	return func() (string, error) {
		t, err := s.Issue(subject, session)
		if err != nil {
			return "", err
		}
		return t.Value, nil
	}
}

// Verify checks signature, issuer and expiry.
func (s *TokenService) Verify(tokenString string) (*Result, error) {
	if tokenString == "" {
		return nil, ErrInvalidToken
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	res := &Result{Subject: claims.Subject, Session: claims.Session}
	if claims.ExpiresAt != nil {
		res.ExpiresAt = claims.ExpiresAt.Time
	}
	return res, nil
}

package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ContextKey is used for context keys to avoid collisions
type ContextKey string

const (
	// ResultKey is the context key for auth result
	ResultKey ContextKey = "auth_result"
)

// Middleware guards collector routes. A nil service disables it.
type Middleware struct {
	tokens *TokenService
}

func NewMiddleware(tokens *TokenService) *Middleware {
	return &Middleware{tokens: tokens}
}

// Enabled reports whether requests are checked.
func (m *Middleware) Enabled() bool { return m != nil && m.tokens != nil }

// GinAuth returns a Gin middleware function for authentication
func (m *Middleware) GinAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !m.Enabled() {
			c.Next()
			return
		}

		res, err := m.authenticate(c.Request)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "authentication_failed",
				"message": "Authentication required",
			})
			c.Abort()
			return
		}

		c.Set(string(ResultKey), res)
		c.Next()
	}
}

// HTTPAuth returns a standard HTTP middleware function for authentication
func (m *Middleware) HTTPAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		res, err := m.authenticate(r)
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"authentication_failed","message":"Authentication required"}`))
			return
		}

		ctx := context.WithValue(r.Context(), ResultKey, res)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// FromGin returns the result stored by GinAuth.
func FromGin(c *gin.Context) (*Result, bool) {
	v, ok := c.Get(string(ResultKey))
	if !ok {
		return nil, false
	}
	res, ok := v.(*Result)
	return res, ok
}

// authenticate extracts the bearer token from the Authorization header.
func (m *Middleware) authenticate(r *http.Request) (*Result, error) {
	authHeader := r.Header.Get("Authorization")
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return nil, ErrInvalidToken
	}
	return m.tokens.Verify(strings.TrimSpace(parts[1]))
}

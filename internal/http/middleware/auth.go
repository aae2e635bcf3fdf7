// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements bearer-token authentication. Authenticate runs
// globally and only identifies the caller when a valid access token is
// present, so logging, idempotency and rate limiting can key by user.
// RequireAuth is mounted on protected groups and rejects anonymous requests.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-social-backend/internal/auth"
)

// Gin context keys for the authenticated caller.
const (
	ctxKeyUserID   = "userID"
	ctxKeyUsername = "username"
	ctxKeyAuthErr  = "auth.err"
)

// TokenVerifier validates an access token. *auth.Tokens implements it.
type TokenVerifier interface {
	Parse(token string) (*auth.Claims, error)
}

// BearerToken returns the token from an "Authorization: Bearer <token>"
// header, or "" when absent.
func BearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}

// Authenticate identifies the caller from a bearer token. Requests without a
// token pass through anonymously; an invalid token is remembered so
// RequireAuth can report it. With a nil verifier every token is invalid.
func Authenticate(v TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok := BearerToken(c.Request)
		if tok == "" {
			c.Next()
			return
		}
		if v == nil {
			c.Set(ctxKeyAuthErr, true)
			c.Next()
			return
		}
		claims, err := v.Parse(tok)
		if err != nil {
			c.Set(ctxKeyAuthErr, true)
			c.Next()
			return
		}
		SetUser(c, claims.Subject, claims.Username)
		c.Next()
	}
}

// RequireAuth aborts with 401 unless Authenticate identified the caller.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if UserID(c) != "" {
			c.Next()
			return
		}
		msg := "authentication required"
		if c.GetBool(ctxKeyAuthErr) {
			msg = "invalid or expired token"
		}
		c.Header("WWW-Authenticate", `Bearer realm="api"`)
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"request_id": c.Writer.Header().Get(requestIDHeader),
			"code":       "unauthorized",
			"message":    msg,
		})
	}
}

// SetUser records the authenticated caller on the context.
func SetUser(c *gin.Context, userID, username string) {
	c.Set(ctxKeyUserID, userID)
	c.Set(ctxKeyUsername, username)
}

// UserID returns the authenticated user's ID, or "" for anonymous requests.
func UserID(c *gin.Context) string {
	return c.GetString(ctxKeyUserID)
}

// Username returns the authenticated user's handle, or "".
func Username(c *gin.Context) string {
	return c.GetString(ctxKeyUsername)
}

// Idempotent create support.
//
// A create endpoint that receives a validated Idempotency-Key first looks for
// a record under (user, request path, key). When found, the originally
// created resource is returned with `Idempotency-Replayed: true` and nothing
// new is created. Otherwise the handler runs normally and records the new
// resource ID on success (best effort).
package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/tbourn/go-social-backend/internal/http/middleware"
	"github.com/tbourn/go-social-backend/internal/repo"
)

// IdempotencyStore records which resource a (user, scope, key) produced.
type IdempotencyStore interface {
	Lookup(ctx context.Context, userID, scope, key string) (resourceID string, found bool, err error)
	Remember(ctx context.Context, userID, scope, key, resourceID string, status int) error
}

// GormIdempotency is the repository-backed IdempotencyStore.
type GormIdempotency struct {
	DB  *gorm.DB
	TTL time.Duration
}

// Lookup returns the resource recorded for a live key.
func (s GormIdempotency) Lookup(ctx context.Context, userID, scope, key string) (string, bool, error) {
	rec, err := repo.GetIdempotency(ctx, s.DB, userID, scope, key, time.Now().UTC())
	if errors.Is(err, repo.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return rec.ResourceID, true, nil
}

// Remember stores a key. A concurrent duplicate is not an error.
func (s GormIdempotency) Remember(ctx context.Context, userID, scope, key, resourceID string, status int) error {
	ttl := s.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	_, err := repo.CreateIdempotency(ctx, s.DB, userID, scope, key, resourceID, status, ttl)
	if errors.Is(err, repo.ErrDuplicate) {
		return nil
	}
	return err
}

// replayedID returns the resource recorded for this request's key, if any.
func (h *Handlers) replayedID(c *gin.Context) (string, bool) {
	key, has := middleware.GetIdempotencyKey(c)
	if !has || h.idem == nil {
		return "", false
	}
	id, found, err := h.idem.Lookup(c.Request.Context(), userID(c), middleware.IdempotencyScope(c), key)
	if err != nil {
		middleware.LoggerFrom(c).Warn().Err(err).Msg("idempotency lookup failed")
		return "", false
	}
	return id, found
}

// remember records resourceID for this request's key, if one was sent.
func (h *Handlers) remember(c *gin.Context, resourceID string, status int) {
	key, has := middleware.GetIdempotencyKey(c)
	if !has || h.idem == nil {
		return
	}
	if err := h.idem.Remember(c.Request.Context(), userID(c), middleware.IdempotencyScope(c), key, resourceID, status); err != nil {
		middleware.LoggerFrom(c).Warn().Err(err).Msg("idempotency record failed")
	}
}

func markReplayed(c *gin.Context) {
	c.Header(middleware.HeaderIdempotencyReplayed, "true")
}

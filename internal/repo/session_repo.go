package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-social-backend/internal/domain"
)

// CreateRefreshToken stores the hash of a newly issued refresh token.
func CreateRefreshToken(ctx context.Context, db *gorm.DB, accountID, tokenHash string, expiresAt time.Time) (*domain.RefreshToken, error) {
	rt := &domain.RefreshToken{
		ID:        uuid.NewString(),
		AccountID: accountID,
		TokenHash: tokenHash,
		ExpiresAt: expiresAt.UTC(),
		CreatedAt: time.Now().UTC(),
	}
	return rt, db.WithContext(ctx).Create(rt).Error
}

// GetRefreshToken looks a token up by hash regardless of its state.
func GetRefreshToken(ctx context.Context, db *gorm.DB, tokenHash string) (*domain.RefreshToken, error) {
	var rt domain.RefreshToken
	if err := db.WithContext(ctx).Where("token_hash = ?", tokenHash).First(&rt).Error; err != nil {
		return nil, err
	}
	return &rt, nil
}

// RevokeRefreshToken marks an active token revoked. It returns ErrNotFound if
// the token was already revoked, so concurrent rotations cannot both succeed.
func RevokeRefreshToken(ctx context.Context, db *gorm.DB, id string, now time.Time) error {
	res := db.WithContext(ctx).Model(&domain.RefreshToken{}).
		Where("id = ? AND revoked_at IS NULL", id).
		Update("revoked_at", now.UTC())
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteExpiredRefreshTokens removes tokens that expired before now.
func DeleteExpiredRefreshTokens(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Where("expires_at < ?", now.UTC()).Delete(&domain.RefreshToken{})
	return res.RowsAffected, res.Error
}

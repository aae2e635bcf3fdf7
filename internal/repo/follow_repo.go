package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-social-backend/internal/domain"
)

// ToggleFollow creates the follower→following edge if absent, or removes it
// if present. It returns whether the edge exists afterwards.
func ToggleFollow(ctx context.Context, db *gorm.DB, followerID, followingID string) (bool, error) {
	db = db.WithContext(ctx)
	res := db.Where("follower_id = ? AND following_id = ?", followerID, followingID).Delete(&domain.Follow{})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected > 0 {
		return false, nil
	}
	f := &domain.Follow{FollowerID: followerID, FollowingID: followingID, CreatedAt: time.Now().UTC()}
	if err := db.Create(f).Error; err != nil {
		if IsDuplicate(err) {
			return false, ErrDuplicate
		}
		return false, err
	}
	return true, nil
}

// IsFollowing reports whether followerID follows followingID.
func IsFollowing(ctx context.Context, db *gorm.DB, followerID, followingID string) (bool, error) {
	if followerID == "" || followerID == followingID {
		return false, nil
	}
	var n int64
	err := db.WithContext(ctx).Model(&domain.Follow{}).
		Where("follower_id = ? AND following_id = ?", followerID, followingID).
		Count(&n).Error
	return n > 0, err
}

// CountFollowers returns how many profiles follow id.
func CountFollowers(ctx context.Context, db *gorm.DB, id string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.Follow{}).Where("following_id = ?", id).Count(&n).Error
	return n, err
}

// ListFollowers returns profiles following id, most recent follow first.
func ListFollowers(ctx context.Context, db *gorm.DB, id string, offset, limit int) ([]domain.Profile, error) {
	var out []domain.Profile
	err := db.WithContext(ctx).
		Joins("JOIN follows ON follows.follower_id = profiles.id").
		Where("follows.following_id = ?", id).
		Order("follows.created_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ListFollowing returns profiles that id follows, most recent follow first.
func ListFollowing(ctx context.Context, db *gorm.DB, id string, offset, limit int) ([]domain.Profile, error) {
	var out []domain.Profile
	err := db.WithContext(ctx).
		Joins("JOIN follows ON follows.following_id = profiles.id").
		Where("follows.follower_id = ?", id).
		Order("follows.created_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

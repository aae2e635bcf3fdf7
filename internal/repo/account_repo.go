// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for accounts and
// profiles.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions. They follow the "thin repository"
// approach: no business logic, only persistence and query composition.
//
// Error semantics:
//   - Missing rows return ErrNotFound (alias of gorm.ErrRecordNotFound).
//   - Unique violations return ErrDuplicate so services can map them to
//     "username taken" / "email taken".
//   - Any other DB error is propagated unchanged.
package repo

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-social-backend/internal/domain"
)

// CreateAccountWithProfile inserts an account and its profile atomically.
// Both rows share acct.ID. Unique violations on email or username are
// returned as ErrDuplicate.
func CreateAccountWithProfile(ctx context.Context, db *gorm.DB, acct *domain.Account, prof *domain.Profile) error {
	now := time.Now().UTC()
	acct.CreatedAt, acct.UpdatedAt = now, now
	prof.ID = acct.ID
	prof.CreatedAt, prof.UpdatedAt = now, now

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(acct).Error; err != nil {
			return err
		}
		return tx.Create(prof).Error
	})
	if IsDuplicate(err) {
		return ErrDuplicate
	}
	return err
}

// GetAccount fetches an account by ID.
func GetAccount(ctx context.Context, db *gorm.DB, id string) (*domain.Account, error) {
	var a domain.Account
	if err := db.WithContext(ctx).Where("id = ?", id).First(&a).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

// GetAccountByEmail fetches an account by its normalized e-mail.
func GetAccountByEmail(ctx context.Context, db *gorm.DB, email string) (*domain.Account, error) {
	var a domain.Account
	if err := db.WithContext(ctx).Where("email = ?", email).First(&a).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

// EmailExists reports whether an account already uses email.
func EmailExists(ctx context.Context, db *gorm.DB, email string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.Account{}).Where("email = ?", email).Count(&n).Error
	return n > 0, err
}

// UsernameExists reports whether a profile already uses username.
func UsernameExists(ctx context.Context, db *gorm.DB, username string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.Profile{}).Where("username = ?", username).Count(&n).Error
	return n > 0, err
}

// GetProfile fetches a profile by ID.
func GetProfile(ctx context.Context, db *gorm.DB, id string) (*domain.Profile, error) {
	var p domain.Profile
	if err := db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// GetProfileByUsername fetches a profile by its (lower-case) username.
func GetProfileByUsername(ctx context.Context, db *gorm.DB, username string) (*domain.Profile, error) {
	var p domain.Profile
	if err := db.WithContext(ctx).Where("username = ?", username).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// ProfilesByID loads the given profiles in one query, keyed by ID. Missing
// IDs are simply absent from the map.
func ProfilesByID(ctx context.Context, db *gorm.DB, ids []string) (map[string]domain.Profile, error) {
	out := make(map[string]domain.Profile, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []domain.Profile
	if err := db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, p := range rows {
		out[p.ID] = p
	}
	return out, nil
}

// UpdateProfile applies the given column updates to the profile owned by id.
// It returns ErrNotFound if no such profile exists.
func UpdateProfile(ctx context.Context, db *gorm.DB, id string, updates map[string]any) error {
	if len(updates) == 0 {
		_, err := GetProfile(ctx, db, id)
		return err
	}
	res := db.WithContext(ctx).Model(&domain.Profile{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ProfileCounts returns follower, following and (non-deleted) post counts
// for a profile.
func ProfileCounts(ctx context.Context, db *gorm.DB, id string) (followers, following, posts int64, err error) {
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&domain.Follow{}).Where("following_id = ?", id).Count(&followers).Error; err != nil {
			return err
		}
		if err := tx.Model(&domain.Follow{}).Where("follower_id = ?", id).Count(&following).Error; err != nil {
			return err
		}
		return tx.Model(&domain.Post{}).Where("author_id = ?", id).Count(&posts).Error
	})
	return
}

// SearchProfiles returns profiles whose username or display name contains q
// (case-insensitive), ordered by username.
func SearchProfiles(ctx context.Context, db *gorm.DB, q string, limit int) ([]domain.Profile, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, nil
	}
	pat := likePattern(q)
	var out []domain.Profile
	err := db.WithContext(ctx).
		Where(`LOWER(username) LIKE ? ESCAPE '\' OR LOWER(name) LIKE ? ESCAPE '\'`, pat, pat).
		Order("username asc").
		Limit(limit).
		Find(&out).Error
	return out, err
}

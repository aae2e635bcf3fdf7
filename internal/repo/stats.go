// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate queries used for
// conditional responses (ETag generation) in the HTTP layer.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-social-backend/internal/domain"
)

// PostsStats returns the number of visible posts (optionally for one author)
// and the greatest UpdatedAt among them. Like and comment toggles bump a
// post's UpdatedAt, so the pair changes whenever a feed page could.
//
// When there are no rows, count is 0 and maxUpdatedAt is nil.
func PostsStats(ctx context.Context, db *gorm.DB, authorID string) (count int64, maxUpdatedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.Post{})
	if authorID != "" {
		q = q.Where("author_id = ?", authorID)
	}

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest updated_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		UpdatedAt time.Time
	}
	if err = q.Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}

// AuthorsUpdatedAt returns the greatest profiles.updated_at among the authors
// of visible posts (optionally only authorID). Feed items embed author names
// and avatars, so a profile edit must change the feed's validator too.
func AuthorsUpdatedAt(ctx context.Context, db *gorm.DB, authorID string) (*time.Time, error) {
	authors := db.WithContext(ctx).Model(&domain.Post{}).Select("author_id")
	if authorID != "" {
		authors = authors.Where("author_id = ?", authorID)
	}

	var rows []struct {
		UpdatedAt time.Time
	}
	err := db.WithContext(ctx).Model(&domain.Profile{}).
		Select("updated_at").
		Where("id IN (?)", authors).
		Order("updated_at DESC").
		Limit(1).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0].UpdatedAt, nil
}

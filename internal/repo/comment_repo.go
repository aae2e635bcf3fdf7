package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-social-backend/internal/domain"
)

// CreateComment inserts a comment and increments posts.comments_count.
// Call it inside a transaction. The returned comment has its author loaded.
func CreateComment(ctx context.Context, db *gorm.DB, postID, authorID, content string) (*domain.PostComment, error) {
	db = db.WithContext(ctx)
	now := time.Now().UTC()
	c := &domain.PostComment{
		ID:        uuid.NewString(),
		PostID:    postID,
		AuthorID:  authorID,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := db.Create(c).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&domain.Post{}).Where("id = ?", postID).
		Update("comments_count", gorm.Expr("comments_count + 1")).Error; err != nil {
		return nil, err
	}
	return GetComment(ctx, db, c.ID)
}

// GetComment fetches a comment with its author preloaded.
func GetComment(ctx context.Context, db *gorm.DB, id string) (*domain.PostComment, error) {
	var c domain.PostComment
	if err := db.WithContext(ctx).Preload("Author").Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// ListComments returns a page of a post's comments, oldest first.
func ListComments(ctx context.Context, db *gorm.DB, postID string, offset, limit int) ([]domain.PostComment, error) {
	var out []domain.PostComment
	err := db.WithContext(ctx).
		Preload("Author").
		Where("post_id = ?", postID).
		Order("created_at asc").Order("id asc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// CountComments returns the number of comments on a post.
func CountComments(ctx context.Context, db *gorm.DB, postID string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.PostComment{}).Where("post_id = ?", postID).Count(&n).Error
	return n, err
}

// DeleteComment removes a comment and decrements posts.comments_count.
// Call it inside a transaction.
func DeleteComment(ctx context.Context, db *gorm.DB, id string) error {
	db = db.WithContext(ctx)
	var c domain.PostComment
	if err := db.Where("id = ?", id).First(&c).Error; err != nil {
		return err
	}
	if err := db.Delete(&domain.PostComment{}, "id = ?", id).Error; err != nil {
		return err
	}
	return db.Model(&domain.Post{}).Where("id = ?", c.PostID).
		Update("comments_count", gorm.Expr("CASE WHEN comments_count > 0 THEN comments_count - 1 ELSE 0 END")).Error
}

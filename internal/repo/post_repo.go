package repo

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-social-backend/internal/domain"
)

// CreatePost inserts a post and returns it with its author loaded.
func CreatePost(ctx context.Context, db *gorm.DB, authorID, content string, imageURL *string) (*domain.Post, error) {
	now := time.Now().UTC()
	p := &domain.Post{
		ID:        uuid.NewString(),
		AuthorID:  authorID,
		Content:   content,
		ImageURL:  imageURL,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := db.WithContext(ctx).Create(p).Error; err != nil {
		return nil, err
	}
	return GetPost(ctx, db, p.ID)
}

// GetPost fetches a non-deleted post by ID with its author preloaded.
func GetPost(ctx context.Context, db *gorm.DB, id string) (*domain.Post, error) {
	var p domain.Post
	err := db.WithContext(ctx).Preload("Author").Where("id = ?", id).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPosts returns a page of posts, newest first, with authors preloaded.
// When authorID is non-empty only that author's posts are returned.
func ListPosts(ctx context.Context, db *gorm.DB, authorID string, offset, limit int) ([]domain.Post, error) {
	q := db.WithContext(ctx).Preload("Author")
	if authorID != "" {
		q = q.Where("author_id = ?", authorID)
	}
	var out []domain.Post
	err := q.Order("created_at desc").Order("id desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// DeletePost soft-deletes a post. It returns ErrNotFound if the post does not
// exist or is already deleted.
func DeletePost(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Post{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// LikedPostIDs returns the subset of postIDs that userID has liked.
func LikedPostIDs(ctx context.Context, db *gorm.DB, userID string, postIDs []string) (map[string]bool, error) {
	out := make(map[string]bool, len(postIDs))
	if userID == "" || len(postIDs) == 0 {
		return out, nil
	}
	var ids []string
	err := db.WithContext(ctx).
		Model(&domain.PostLike{}).
		Where("user_id = ? AND post_id IN ?", userID, postIDs).
		Pluck("post_id", &ids).Error
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		out[id] = true
	}
	return out, nil
}

// SearchPostCandidates returns up to limit newest posts whose content contains
// any of the given tokens (case-insensitive).
func SearchPostCandidates(ctx context.Context, db *gorm.DB, tokens []string, limit int) ([]domain.Post, error) {
	if len(tokens) == 0 {
		return nil, nil
	}
	conds := make([]string, 0, len(tokens))
	args := make([]any, 0, len(tokens))
	for _, t := range tokens {
		conds = append(conds, `LOWER(content) LIKE ? ESCAPE '\'`)
		args = append(args, likePattern(t))
	}
	var out []domain.Post
	err := db.WithContext(ctx).
		Preload("Author").
		Where(strings.Join(conds, " OR "), args...).
		Order("created_at desc").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ToggleLike flips userID's like on postID and keeps posts.likes_count in
// step. Call it inside a transaction. It returns the new like state and the
// resulting count, or ErrNotFound if the post does not exist.
func ToggleLike(ctx context.Context, db *gorm.DB, postID, userID string) (liked bool, likes int, err error) {
	db = db.WithContext(ctx)

	var post domain.Post
	if err = db.Select("id").Where("id = ?", postID).First(&post).Error; err != nil {
		return false, 0, err
	}

	res := db.Where("post_id = ? AND user_id = ?", postID, userID).Delete(&domain.PostLike{})
	if res.Error != nil {
		return false, 0, res.Error
	}
	if res.RowsAffected > 0 {
		err = db.Model(&domain.Post{}).Where("id = ?", postID).
			Update("likes_count", gorm.Expr("CASE WHEN likes_count > 0 THEN likes_count - 1 ELSE 0 END")).Error
	} else {
		like := &domain.PostLike{PostID: postID, UserID: userID, CreatedAt: time.Now().UTC()}
		if err = db.Create(like).Error; err != nil {
			if IsDuplicate(err) {
				return false, 0, ErrDuplicate
			}
			return false, 0, err
		}
		liked = true
		err = db.Model(&domain.Post{}).Where("id = ?", postID).
			Update("likes_count", gorm.Expr("likes_count + 1")).Error
	}
	if err != nil {
		return false, 0, err
	}

	var row struct{ LikesCount int }
	if err = db.Model(&domain.Post{}).Select("likes_count").Where("id = ?", postID).Scan(&row).Error; err != nil {
		return false, 0, err
	}
	return liked, row.LikesCount, nil
}

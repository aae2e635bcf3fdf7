package services

import (
	"context"

	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-social-backend/internal/domain"
	"github.com/tbourn/go-social-backend/internal/realtime"
	"github.com/tbourn/go-social-backend/internal/repo"
)

// Comment page limits.
const (
	DefaultCommentLimit = 50
	MaxCommentLimit     = 100
)

// CommentService manages comments on posts.
type CommentService struct {
	DB              *gorm.DB
	Publisher       Publisher
	Notifications   *NotificationService
	MaxCommentRunes int
}

// List returns a post's comments oldest first.
func (s *CommentService) List(ctx context.Context, postID string, limit, offset int) ([]domain.PostComment, error) {
	tr := otel.Tracer("services/CommentService")
	ctx, span := tr.Start(ctx, "List",
		trace.WithAttributes(
			attribute.String("post.id", postID),
			attribute.Int("limit", limit),
			attribute.Int("offset", offset),
		),
	)
	defer span.End()

	if _, err := repo.GetPost(ctx, s.DB, postID); err != nil {
		if isNotFound(err) {
			return nil, ErrPostNotFound
		}
		return nil, err
	}
	limit, offset = page(limit, offset, DefaultCommentLimit, MaxCommentLimit)
	items, err := repo.ListComments(ctx, s.DB, postID, offset, limit)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.PostComment{}
	}
	return items, nil
}

// Get returns one comment with its author.
func (s *CommentService) Get(ctx context.Context, commentID string) (*domain.PostComment, error) {
	c, err := repo.GetComment(ctx, s.DB, commentID)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrCommentNotFound
		}
		return nil, err
	}
	return c, nil
}

// Add comments on a post and notifies its author.
func (s *CommentService) Add(ctx context.Context, userID, postID, content string) (*domain.PostComment, error) {
	tr := otel.Tracer("services/CommentService")
	ctx, span := tr.Start(ctx, "Add",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("post.id", postID),
		),
	)
	defer span.End()

	content, err := validateText(content, s.MaxCommentRunes)
	if err != nil {
		return nil, err
	}

	var (
		comment *domain.PostComment
		post    *domain.Post
		notif   *domain.Notification
	)
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := repo.GetPost(ctx, tx, postID)
		if err != nil {
			return err
		}
		c, err := repo.CreateComment(ctx, tx, postID, userID, content)
		if err != nil {
			return err
		}
		p.CommentsCount++
		pid := p.ID
		n, err := s.Notifications.create(ctx, tx, p.AuthorID, userID, domain.NotificationComment, &pid)
		if err != nil {
			return err
		}
		comment, post, notif = c, p, n
		return nil
	})
	if err != nil {
		if isNotFound(err) {
			return nil, ErrPostNotFound
		}
		return nil, err
	}

	publish(ctx, s.Publisher, "post_comments", realtime.Insert, comment, nil)
	publish(ctx, s.Publisher, "posts", realtime.Update, post, nil)
	s.Notifications.announce(ctx, notif)
	return comment, nil
}

// Delete removes a comment. The comment's author and the post's author may
// delete it.
func (s *CommentService) Delete(ctx context.Context, userID, commentID string) error {
	tr := otel.Tracer("services/CommentService")
	ctx, span := tr.Start(ctx, "Delete",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("comment.id", commentID),
		),
	)
	defer span.End()

	var deleted *domain.PostComment
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := repo.GetComment(ctx, tx, commentID)
		if err != nil {
			if isNotFound(err) {
				return ErrCommentNotFound
			}
			return err
		}
		if c.AuthorID != userID {
			var p domain.Post
			// the post may already be soft-deleted
			if err := tx.WithContext(ctx).Unscoped().Select("id", "author_id").Where("id = ?", c.PostID).First(&p).Error; err != nil && !isNotFound(err) {
				return err
			}
			if p.AuthorID != userID {
				return ErrForbidden
			}
		}
		deleted = c
		return repo.DeleteComment(ctx, tx, commentID)
	})
	if err != nil {
		return err
	}
	publish(ctx, s.Publisher, "post_comments", realtime.Delete, nil, deleted)
	return nil
}

// Package services – PostService
//
// This file implements the feed and the post lifecycle: create, read,
// delete, like toggling and post image uploads. Like and comment counters are
// kept on the post row and updated in the same transaction as the like or
// comment, so a feed page is two queries (posts with authors, then the
// viewer's likes) regardless of size.
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-social-backend/internal/domain"
	"github.com/tbourn/go-social-backend/internal/realtime"
	"github.com/tbourn/go-social-backend/internal/repo"
	"github.com/tbourn/go-social-backend/internal/storage"
)

// Feed page limits.
const (
	DefaultFeedLimit = 10
	MaxFeedLimit     = 50
)

// FeedQuery selects a feed page. AuthorID restricts it to one profile.
type FeedQuery struct {
	Limit    int
	Offset   int
	AuthorID string
}

// FeedPage is one page of the feed.
type FeedPage struct {
	Items   []domain.PostView `json:"items"`
	Limit   int               `json:"limit"`
	Offset  int               `json:"offset"`
	HasMore bool              `json:"has_more"`
}

// FeedStamp summarizes what a feed page depends on. Any change to a post
// or to an author's profile moves at least one field.
type FeedStamp struct {
	Count     int64
	PostsAt   *time.Time
	AuthorsAt *time.Time
}

// PostService implements feed and post use-cases.
type PostService struct {
	DB            *gorm.DB
	Store         storage.ObjectStore
	Publisher     Publisher
	Notifications *NotificationService

	MaxPostRunes  int
	MaxImageBytes int64
}

// Feed returns posts newest first (created_at DESC, id DESC) with the
// viewer's like state.
func (s *PostService) Feed(ctx context.Context, viewerID string, q FeedQuery) (*FeedPage, error) {
	tr := otel.Tracer("services/PostService")
	ctx, span := tr.Start(ctx, "Feed",
		trace.WithAttributes(
			attribute.String("user.id", viewerID),
			attribute.String("author.id", q.AuthorID),
			attribute.Int("limit", q.Limit),
			attribute.Int("offset", q.Offset),
		),
	)
	defer span.End()

	limit, offset := page(q.Limit, q.Offset, DefaultFeedLimit, MaxFeedLimit)
	posts, err := repo.ListPosts(ctx, s.DB, q.AuthorID, offset, limit+1)
	if err != nil {
		return nil, err
	}
	hasMore := len(posts) > limit
	if hasMore {
		posts = posts[:limit]
	}
	items, err := s.views(ctx, viewerID, posts)
	if err != nil {
		return nil, err
	}
	return &FeedPage{Items: items, Limit: limit, Offset: offset, HasMore: hasMore}, nil
}

// Stats returns the FeedStamp for the posts a feed query would read. Used
// for conditional GETs.
func (s *PostService) Stats(ctx context.Context, authorID string) (*FeedStamp, error) {
	count, postsAt, err := repo.PostsStats(ctx, s.DB, authorID)
	if err != nil {
		return nil, err
	}
	stamp := &FeedStamp{Count: count, PostsAt: postsAt}
	if count == 0 {
		return stamp, nil
	}
	if stamp.AuthorsAt, err = repo.AuthorsUpdatedAt(ctx, s.DB, authorID); err != nil {
		return nil, err
	}
	return stamp, nil
}

// Get returns one post as seen by viewerID.
func (s *PostService) Get(ctx context.Context, viewerID, postID string) (*domain.PostView, error) {
	tr := otel.Tracer("services/PostService")
	ctx, span := tr.Start(ctx, "Get",
		trace.WithAttributes(attribute.String("post.id", postID)),
	)
	defer span.End()

	p, err := repo.GetPost(ctx, s.DB, postID)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrPostNotFound
		}
		return nil, err
	}
	views, err := s.views(ctx, viewerID, []domain.Post{*p})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

// Create publishes a new post. Content is normalized; imageURL is optional
// and usually comes from UploadImage.
func (s *PostService) Create(ctx context.Context, authorID, content string, imageURL *string) (*domain.PostView, error) {
	tr := otel.Tracer("services/PostService")
	ctx, span := tr.Start(ctx, "Create",
		trace.WithAttributes(attribute.String("user.id", authorID)),
	)
	defer span.End()

	content, err := validateText(content, s.MaxPostRunes)
	if err != nil {
		return nil, err
	}
	if imageURL != nil && *imageURL == "" {
		imageURL = nil
	}
	p, err := repo.CreatePost(ctx, s.DB, authorID, content, imageURL)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("post.id", p.ID))
	postsCreated.Inc()

	publish(ctx, s.Publisher, "posts", realtime.Insert, p, nil)
	v := domain.NewPostView(*p, false)
	return &v, nil
}

// Delete soft-deletes a post. Only its author may delete it.
func (s *PostService) Delete(ctx context.Context, userID, postID string) error {
	tr := otel.Tracer("services/PostService")
	ctx, span := tr.Start(ctx, "Delete",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("post.id", postID),
		),
	)
	defer span.End()

	var deleted *domain.Post
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := repo.GetPost(ctx, tx, postID)
		if err != nil {
			return err
		}
		if p.AuthorID != userID {
			return ErrForbidden
		}
		deleted = p
		return repo.DeletePost(ctx, tx, postID)
	})
	if err != nil {
		if isNotFound(err) {
			return ErrPostNotFound
		}
		return err
	}
	publish(ctx, s.Publisher, "posts", realtime.Delete, nil, deleted)
	return nil
}

// ToggleLike likes the post if userID has not, otherwise removes the like.
// Liking someone else's post notifies its author.
func (s *PostService) ToggleLike(ctx context.Context, userID, postID string) (*domain.LikeState, error) {
	tr := otel.Tracer("services/PostService")
	ctx, span := tr.Start(ctx, "ToggleLike",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("post.id", postID),
		),
	)
	defer span.End()

	var (
		state domain.LikeState
		post  *domain.Post
		notif *domain.Notification
	)
	run := func() error {
		return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			p, err := repo.GetPost(ctx, tx, postID)
			if err != nil {
				return err
			}
			liked, likes, err := repo.ToggleLike(ctx, tx, postID, userID)
			if err != nil {
				return err
			}
			p.LikesCount = likes
			state, post, notif = domain.LikeState{Liked: liked, Likes: likes}, p, nil
			if liked {
				pid := p.ID
				notif, err = s.Notifications.create(ctx, tx, p.AuthorID, userID, domain.NotificationLike, &pid)
				if err != nil {
					return err
				}
			}
			return nil
		})
	}
	err := run()
	if repo.IsDuplicate(err) {
		// concurrent toggle by the same user; the retry sees the committed like
		err = run()
	}
	if err != nil {
		if isNotFound(err) {
			return nil, ErrPostNotFound
		}
		return nil, err
	}

	span.SetAttributes(attribute.Bool("liked", state.Liked))
	if state.Liked {
		likesToggled.WithLabelValues("liked").Inc()
	} else {
		likesToggled.WithLabelValues("unliked").Inc()
	}
	publish(ctx, s.Publisher, "posts", realtime.Update, post, nil)
	s.Notifications.announce(ctx, notif)
	return &state, nil
}

// UploadImage stores a post image under <userID>/posts/<uuid><ext> and
// returns its public URL for a later Create.
func (s *PostService) UploadImage(ctx context.Context, userID string, data []byte) (string, error) {
	tr := otel.Tracer("services/PostService")
	ctx, span := tr.Start(ctx, "UploadImage",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.Int("size", len(data)),
		),
	)
	defer span.End()

	ct, ext, err := checkImage(data, s.MaxImageBytes)
	if err != nil {
		return "", err
	}
	key := fmt.Sprintf("%s/posts/%s%s", userID, uuid.NewString(), ext)
	return s.Store.Put(ctx, key, ct, data)
}

func (s *PostService) views(ctx context.Context, viewerID string, posts []domain.Post) ([]domain.PostView, error) {
	return postViews(ctx, s.DB, viewerID, posts)
}

// postViews attaches the viewer's like state to posts in one query.
func postViews(ctx context.Context, db *gorm.DB, viewerID string, posts []domain.Post) ([]domain.PostView, error) {
	ids := make([]string, len(posts))
	for i, p := range posts {
		ids[i] = p.ID
	}
	liked, err := repo.LikedPostIDs(ctx, db, viewerID, ids)
	if err != nil {
		return nil, err
	}
	out := make([]domain.PostView, len(posts))
	for i, p := range posts {
		out[i] = domain.NewPostView(p, liked[p.ID])
	}
	return out, nil
}

// checkImage enforces the size limit and sniffs the image type.
func checkImage(data []byte, maxBytes int64) (contentType, ext string, err error) {
	if len(data) == 0 {
		return "", "", ErrInvalidImage
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return "", "", ErrImageTooLarge
	}
	ct, ext, err := storage.DetectImage(data)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	return ct, ext, nil
}

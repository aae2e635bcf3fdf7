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

// Follower list limits.
const (
	DefaultFollowLimit = 20
	MaxFollowLimit     = 100
)

// FollowService manages the follow graph.
type FollowService struct {
	DB            *gorm.DB
	Publisher     Publisher
	Notifications *NotificationService
}

// Toggle follows username on behalf of followerID, or unfollows if already
// following. New follows notify the followed profile.
func (s *FollowService) Toggle(ctx context.Context, followerID, username string) (*domain.FollowState, error) {
	tr := otel.Tracer("services/FollowService")
	ctx, span := tr.Start(ctx, "Toggle",
		trace.WithAttributes(
			attribute.String("user.id", followerID),
			attribute.String("username", username),
		),
	)
	defer span.End()

	target, err := repo.GetProfileByUsername(ctx, s.DB, NormalizeUsername(username))
	if err != nil {
		if isNotFound(err) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}
	if target.ID == followerID {
		return nil, ErrSelfFollow
	}

	var (
		state domain.FollowState
		notif *domain.Notification
	)
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		following, err := repo.ToggleFollow(ctx, tx, followerID, target.ID)
		if err != nil {
			return err
		}
		followers, err := repo.CountFollowers(ctx, tx, target.ID)
		if err != nil {
			return err
		}
		state = domain.FollowState{Following: following, Followers: followers}
		if following {
			notif, err = s.Notifications.create(ctx, tx, target.ID, followerID, domain.NotificationFollow, nil)
		}
		return err
	})
	if err != nil {
		if repo.IsDuplicate(err) {
			// a concurrent request created the edge first
			return s.state(ctx, followerID, target.ID)
		}
		return nil, err
	}

	edge := domain.Follow{FollowerID: followerID, FollowingID: target.ID}
	if state.Following {
		publish(ctx, s.Publisher, "follows", realtime.Insert, edge, nil, followerID, target.ID)
	} else {
		publish(ctx, s.Publisher, "follows", realtime.Delete, nil, edge, followerID, target.ID)
	}
	s.Notifications.announce(ctx, notif)
	return &state, nil
}

func (s *FollowService) state(ctx context.Context, followerID, targetID string) (*domain.FollowState, error) {
	following, err := repo.IsFollowing(ctx, s.DB, followerID, targetID)
	if err != nil {
		return nil, err
	}
	followers, err := repo.CountFollowers(ctx, s.DB, targetID)
	if err != nil {
		return nil, err
	}
	return &domain.FollowState{Following: following, Followers: followers}, nil
}

// Followers lists profiles following username, most recent first.
func (s *FollowService) Followers(ctx context.Context, username string, limit, offset int) ([]domain.ProfileSummary, error) {
	return s.list(ctx, "Followers", username, limit, offset, repo.ListFollowers)
}

// Following lists profiles username follows, most recent first.
func (s *FollowService) Following(ctx context.Context, username string, limit, offset int) ([]domain.ProfileSummary, error) {
	return s.list(ctx, "Following", username, limit, offset, repo.ListFollowing)
}

type listFn func(ctx context.Context, db *gorm.DB, id string, offset, limit int) ([]domain.Profile, error)

func (s *FollowService) list(ctx context.Context, op, username string, limit, offset int, fn listFn) ([]domain.ProfileSummary, error) {
	tr := otel.Tracer("services/FollowService")
	ctx, span := tr.Start(ctx, op,
		trace.WithAttributes(
			attribute.String("username", username),
			attribute.Int("limit", limit),
			attribute.Int("offset", offset),
		),
	)
	defer span.End()

	p, err := repo.GetProfileByUsername(ctx, s.DB, NormalizeUsername(username))
	if err != nil {
		if isNotFound(err) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}
	limit, offset = page(limit, offset, DefaultFollowLimit, MaxFollowLimit)
	rows, err := fn(ctx, s.DB, p.ID, offset, limit)
	if err != nil {
		return nil, err
	}
	out := make([]domain.ProfileSummary, len(rows))
	for i, r := range rows {
		out[i] = r.Summary()
	}
	return out, nil
}

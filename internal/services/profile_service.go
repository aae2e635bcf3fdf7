package services

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-social-backend/internal/domain"
	"github.com/tbourn/go-social-backend/internal/realtime"
	"github.com/tbourn/go-social-backend/internal/repo"
	"github.com/tbourn/go-social-backend/internal/storage"
)

// Profile field limits, in runes.
const (
	MaxNameRunes = 50
	MaxBioRunes  = 160
)

// Image kinds accepted by ProfileService.UploadImage.
const (
	ImageAvatar = "avatar"
	ImageCover  = "cover"
)

// ProfilePatch is a partial profile update. Nil fields are left unchanged.
// An empty Bio, AvatarURL or CoverImageURL clears the field.
type ProfilePatch struct {
	Name          *string `json:"name"`
	Bio           *string `json:"bio"`
	AvatarURL     *string `json:"avatar_url"`
	CoverImageURL *string `json:"cover_image_url"`
}

// ProfileService reads and updates profiles.
type ProfileService struct {
	DB            *gorm.DB
	Store         storage.ObjectStore
	Publisher     Publisher
	MaxImageBytes int64
}

// GetByUsername returns the profile with the given handle as seen by viewerID.
func (s *ProfileService) GetByUsername(ctx context.Context, viewerID, username string) (*domain.ProfileView, error) {
	tr := otel.Tracer("services/ProfileService")
	ctx, span := tr.Start(ctx, "GetByUsername",
		trace.WithAttributes(attribute.String("username", username)),
	)
	defer span.End()

	p, err := repo.GetProfileByUsername(ctx, s.DB, NormalizeUsername(username))
	if err != nil {
		if isNotFound(err) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}
	return s.view(ctx, viewerID, p)
}

// GetByID returns the profile id as seen by viewerID.
func (s *ProfileService) GetByID(ctx context.Context, viewerID, id string) (*domain.ProfileView, error) {
	tr := otel.Tracer("services/ProfileService")
	ctx, span := tr.Start(ctx, "GetByID",
		trace.WithAttributes(attribute.String("profile.id", id)),
	)
	defer span.End()

	p, err := repo.GetProfile(ctx, s.DB, id)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}
	return s.view(ctx, viewerID, p)
}

// Update applies patch to userID's own profile.
func (s *ProfileService) Update(ctx context.Context, userID string, patch ProfilePatch) (*domain.ProfileView, error) {
	tr := otel.Tracer("services/ProfileService")
	ctx, span := tr.Start(ctx, "Update",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	updates := map[string]any{}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" || utf8.RuneCountInString(name) > MaxNameRunes {
			return nil, ErrInvalidName
		}
		updates["name"] = name
	}
	if patch.Bio != nil {
		bio := strings.TrimSpace(*patch.Bio)
		if utf8.RuneCountInString(bio) > MaxBioRunes {
			return nil, ErrBioTooLong
		}
		updates["bio"] = nullable(bio)
	}
	if patch.AvatarURL != nil {
		updates["avatar_url"] = nullable(strings.TrimSpace(*patch.AvatarURL))
	}
	if patch.CoverImageURL != nil {
		updates["cover_image_url"] = nullable(strings.TrimSpace(*patch.CoverImageURL))
	}
	return s.apply(ctx, userID, updates)
}

// UploadImage stores an avatar or cover image under <userID>/<kind><ext>,
// replacing any previous upload, and points the profile at it.
func (s *ProfileService) UploadImage(ctx context.Context, userID, kind string, data []byte) (*domain.ProfileView, error) {
	tr := otel.Tracer("services/ProfileService")
	ctx, span := tr.Start(ctx, "UploadImage",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("kind", kind),
			attribute.Int("size", len(data)),
		),
	)
	defer span.End()

	var column string
	switch kind {
	case ImageAvatar:
		column = "avatar_url"
	case ImageCover:
		column = "cover_image_url"
	default:
		return nil, fmt.Errorf("%w: unknown image kind %q", ErrInvalidImage, kind)
	}
	ct, ext, err := checkImage(data, s.MaxImageBytes)
	if err != nil {
		return nil, err
	}
	url, err := s.Store.Put(ctx, userID+"/"+kind+ext, ct, data)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, userID, map[string]any{column: url})
}

func (s *ProfileService) apply(ctx context.Context, userID string, updates map[string]any) (*domain.ProfileView, error) {
	if err := repo.UpdateProfile(ctx, s.DB, userID, updates); err != nil {
		if isNotFound(err) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}
	p, err := repo.GetProfile(ctx, s.DB, userID)
	if err != nil {
		return nil, err
	}
	if len(updates) > 0 {
		publish(ctx, s.Publisher, "profiles", realtime.Update, p, nil)
	}
	return s.view(ctx, userID, p)
}

func (s *ProfileService) view(ctx context.Context, viewerID string, p *domain.Profile) (*domain.ProfileView, error) {
	followers, following, posts, err := repo.ProfileCounts(ctx, s.DB, p.ID)
	if err != nil {
		return nil, err
	}
	v := &domain.ProfileView{
		Profile:        *p,
		FollowersCount: followers,
		FollowingCount: following,
		PostsCount:     posts,
		IsCurrentUser:  viewerID == p.ID,
	}
	if viewerID != "" && !v.IsCurrentUser {
		if v.IsFollowing, err = repo.IsFollowing(ctx, s.DB, viewerID, p.ID); err != nil {
			return nil, err
		}
	}
	return v, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Package handlers exposes the REST and realtime endpoints of the social API.
//
// Handlers are transport-thin: they bind and validate input, call application
// services, and translate results into HTTP responses (including conditional
// responses and idempotent replays). Services are consumed through the
// interfaces below so tests can substitute fakes.
package handlers

import (
	"context"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-social-backend/internal/domain"
	"github.com/tbourn/go-social-backend/internal/http/middleware"
	"github.com/tbourn/go-social-backend/internal/realtime"
	"github.com/tbourn/go-social-backend/internal/services"
)

//
// Service contracts (context-aware)
//

// AuthService manages accounts and sessions.
type AuthService interface {
	SignUp(ctx context.Context, email, password, username string) (*services.AuthResult, error)
	SignIn(ctx context.Context, email, password string) (*services.AuthResult, error)
	Refresh(ctx context.Context, refreshToken string) (*services.AuthResult, error)
	SignOut(ctx context.Context, refreshToken string) error
	CurrentUser(ctx context.Context, userID string) (*services.CurrentUser, error)
}

// ProfileService reads and edits profiles.
type ProfileService interface {
	GetByUsername(ctx context.Context, viewerID, username string) (*domain.ProfileView, error)
	Update(ctx context.Context, userID string, patch services.ProfilePatch) (*domain.ProfileView, error)
	UploadImage(ctx context.Context, userID, kind string, data []byte) (*domain.ProfileView, error)
}

// PostService serves the feed and the post lifecycle.
type PostService interface {
	Feed(ctx context.Context, viewerID string, q services.FeedQuery) (*services.FeedPage, error)
	Stats(ctx context.Context, authorID string) (*services.FeedStamp, error)
	Get(ctx context.Context, viewerID, postID string) (*domain.PostView, error)
	Create(ctx context.Context, authorID, content string, imageURL *string) (*domain.PostView, error)
	Delete(ctx context.Context, userID, postID string) error
	ToggleLike(ctx context.Context, userID, postID string) (*domain.LikeState, error)
	UploadImage(ctx context.Context, userID string, data []byte) (string, error)
}

// CommentService manages post comments.
type CommentService interface {
	List(ctx context.Context, postID string, limit, offset int) ([]domain.PostComment, error)
	Get(ctx context.Context, commentID string) (*domain.PostComment, error)
	Add(ctx context.Context, userID, postID, content string) (*domain.PostComment, error)
	Delete(ctx context.Context, userID, commentID string) error
}

// FollowService manages the follow graph.
type FollowService interface {
	Toggle(ctx context.Context, followerID, username string) (*domain.FollowState, error)
	Followers(ctx context.Context, username string, limit, offset int) ([]domain.ProfileSummary, error)
	Following(ctx context.Context, username string, limit, offset int) ([]domain.ProfileSummary, error)
}

// MessageService manages direct messages.
type MessageService interface {
	Conversations(ctx context.Context, userID string) ([]domain.Conversation, error)
	Thread(ctx context.Context, userID, otherID string, limit int, before *time.Time, beforeID string) ([]domain.Message, error)
	Send(ctx context.Context, senderID, receiverID, content string) (*domain.Message, error)
	Get(ctx context.Context, userID, messageID string) (*domain.Message, error)
	UnreadCount(ctx context.Context, userID string) (int64, error)
}

// NotificationService lists and acknowledges notifications.
type NotificationService interface {
	List(ctx context.Context, userID string, limit int, markRead bool) ([]domain.Notification, error)
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	UnreadCount(ctx context.Context, userID string) (int64, error)
}

// SearchService finds profiles and posts.
type SearchService interface {
	Users(ctx context.Context, q string, limit int) ([]domain.ProfileSummary, error)
	Posts(ctx context.Context, viewerID, q string, limit int) ([]domain.PostView, error)
}

//
// Handler wiring
//

// Deps lists everything the handlers need. Idempotency and Hub are
// optional: without them replays are not detected and /realtime is absent.
type Deps struct {
	Auth          AuthService
	Profiles      ProfileService
	Posts         PostService
	Comments      CommentService
	Follows       FollowService
	Messages      MessageService
	Notifications NotificationService
	Search        SearchService

	Idempotency IdempotencyStore
	Hub         *realtime.Hub
	Tokens      middleware.TokenVerifier
	Realtime    realtime.SessionOptions
	// OriginPatterns restricts WebSocket origins; empty accepts any origin.
	OriginPatterns []string

	// MaxUploadBytes caps multipart image uploads.
	MaxUploadBytes int64
}

// Handlers groups the HTTP endpoints of the API.
type Handlers struct {
	auth          AuthService
	profiles      ProfileService
	posts         PostService
	comments      CommentService
	follows       FollowService
	messages      MessageService
	notifications NotificationService
	search        SearchService

	idem      IdempotencyStore
	hub       *realtime.Hub
	tokens    middleware.TokenVerifier
	rtOpts    realtime.SessionOptions
	wsAccept  *websocket.AcceptOptions
	maxUpload int64
}

// New constructs a Handlers instance bound to the given services.
func New(d Deps) *Handlers {
	maxUpload := d.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 5 << 20
	}
	accept := &websocket.AcceptOptions{CompressionMode: websocket.CompressionContextTakeover}
	if len(d.OriginPatterns) == 0 {
		accept.InsecureSkipVerify = true
	} else {
		accept.OriginPatterns = d.OriginPatterns
	}
	return &Handlers{
		auth:          d.Auth,
		profiles:      d.Profiles,
		posts:         d.Posts,
		comments:      d.Comments,
		follows:       d.Follows,
		messages:      d.Messages,
		notifications: d.Notifications,
		search:        d.Search,
		idem:          d.Idempotency,
		hub:           d.Hub,
		tokens:        d.Tokens,
		rtOpts:        d.Realtime,
		wsAccept:      accept,
		maxUpload:     maxUpload,
	}
}

// userID returns the authenticated caller; routes behind RequireAuth always
// have one.
func userID(c *gin.Context) string {
	return middleware.UserID(c)
}

// Package domain defines the persistence models for accounts, profiles,
// posts, likes, comments, follows, direct messages and notifications. These
// types are mapped with GORM and form the core data layer of the social
// backend.
package domain

import (
	"time"

	"gorm.io/gorm"
)

// Notification types.
const (
	NotificationFollow  = "follow"
	NotificationLike    = "like"
	NotificationComment = "comment"
)

// Account is the authentication identity behind a profile. The password
// hash is never serialized.
type Account struct {
	ID           string    `json:"id"    gorm:"type:char(36);primaryKey"`
	Email        string    `json:"email" gorm:"type:varchar(320);not null;uniqueIndex:ux_accounts_email"`
	PasswordHash string    `json:"-"     gorm:"type:varchar(100);not null"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName returns the database table name for Account.
func (Account) TableName() string { return "accounts" }

// Profile is the public face of an account. Its ID equals the account ID;
// a profile is created in the same transaction as its account.
//
// Fields:
//   - Username: unique handle, lower-case [a-z0-9_], 3 to 30 characters.
//   - Name: display name, defaults to the username.
//   - Bio, AvatarURL, CoverImageURL: optional; nil when unset.
type Profile struct {
	ID            string    `json:"id"       gorm:"type:char(36);primaryKey"`
	Username      string    `json:"username" gorm:"type:varchar(30);not null;uniqueIndex:ux_profiles_username"`
	Name          string    `json:"name"     gorm:"type:varchar(100);not null"`
	Bio           *string   `json:"bio"`
	AvatarURL     *string   `json:"avatar_url"`
	CoverImageURL *string   `json:"cover_image_url"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TableName returns the database table name for Profile.
func (Profile) TableName() string { return "profiles" }

// Post is a short text entry authored by a profile, optionally with an
// image. LikesCount and CommentsCount are maintained in the same transaction
// that inserts or deletes the underlying like/comment rows.
type Post struct {
	ID            string         `json:"id"        gorm:"type:char(36);primaryKey"`
	AuthorID      string         `json:"author_id" gorm:"type:char(36);not null;index:idx_posts_author"`
	Content       string         `json:"content"   gorm:"type:text;not null"`
	ImageURL      *string        `json:"image_url"`
	LikesCount    int            `json:"likes_count"    gorm:"not null;default:0"`
	CommentsCount int            `json:"comments_count" gorm:"not null;default:0"`
	CreatedAt     time.Time      `json:"created_at"     gorm:"index:idx_posts_created"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `json:"-"              gorm:"index"`

	Author *Profile `json:"-" gorm:"foreignKey:AuthorID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Post.
func (Post) TableName() string { return "posts" }

// PostLike records that a user liked a post. A user can like a post at most
// once (composite primary key).
type PostLike struct {
	PostID    string    `json:"post_id" gorm:"type:char(36);primaryKey"`
	UserID    string    `json:"user_id" gorm:"type:char(36);primaryKey;index:idx_post_likes_user"`
	CreatedAt time.Time `json:"created_at"`

	Post Post `json:"-" gorm:"foreignKey:PostID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for PostLike.
func (PostLike) TableName() string { return "post_likes" }

// PostComment is a reply attached to a post.
type PostComment struct {
	ID        string    `json:"id"        gorm:"type:char(36);primaryKey"`
	PostID    string    `json:"post_id"   gorm:"type:char(36);not null;index:idx_comments_post,priority:1"`
	AuthorID  string    `json:"author_id" gorm:"type:char(36);not null"`
	Content   string    `json:"content"   gorm:"type:text;not null"`
	CreatedAt time.Time `json:"created_at" gorm:"index:idx_comments_post,priority:2"`
	UpdatedAt time.Time `json:"updated_at"`

	Post   Post     `json:"-"      gorm:"foreignKey:PostID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Author *Profile `json:"author,omitempty" gorm:"foreignKey:AuthorID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for PostComment.
func (PostComment) TableName() string { return "post_comments" }

// Follow is a directed edge: FollowerID follows FollowingID.
type Follow struct {
	FollowerID  string    `json:"follower_id"  gorm:"type:char(36);primaryKey;check:chk_follows_not_self,follower_id <> following_id"`
	FollowingID string    `json:"following_id" gorm:"type:char(36);primaryKey;index:idx_follows_following"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName returns the database table name for Follow.
func (Follow) TableName() string { return "follows" }

// Message is a direct message between two profiles. Read flips to true when
// the receiver opens the conversation.
type Message struct {
	ID         string    `json:"id"          gorm:"type:char(36);primaryKey"`
	SenderID   string    `json:"sender_id"   gorm:"type:char(36);not null;index:idx_messages_pair,priority:1"`
	ReceiverID string    `json:"receiver_id" gorm:"type:char(36);not null;index:idx_messages_pair,priority:2;index:idx_messages_inbox,priority:1"`
	Content    string    `json:"content"     gorm:"type:text;not null"`
	Read       bool      `json:"read"        gorm:"not null;default:false;index:idx_messages_inbox,priority:2"`
	CreatedAt  time.Time `json:"created_at"  gorm:"index:idx_messages_pair,priority:3"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// Notification tells UserID that ActorID did something (followed them,
// liked or commented on PostID).
type Notification struct {
	ID        string    `json:"id"       gorm:"type:char(36);primaryKey"`
	UserID    string    `json:"user_id"  gorm:"type:char(36);not null;index:idx_notifications_user,priority:1"`
	ActorID   string    `json:"actor_id" gorm:"type:char(36);not null"`
	Type      string    `json:"type"     gorm:"type:varchar(16);not null;check:chk_notifications_type,type IN ('follow','like','comment')"`
	PostID    *string   `json:"post_id"  gorm:"type:char(36)"`
	Read      bool      `json:"read"     gorm:"not null;default:false"`
	CreatedAt time.Time `json:"created_at" gorm:"index:idx_notifications_user,priority:2"`

	Actor *Profile `json:"actor,omitempty" gorm:"foreignKey:ActorID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Notification.
func (Notification) TableName() string { return "notifications" }

// RefreshToken is a server-side session. Only the SHA-256 of the opaque
// token is stored.
type RefreshToken struct {
	ID        string     `gorm:"type:char(36);primaryKey"`
	AccountID string     `gorm:"type:char(36);not null;index"`
	TokenHash string     `gorm:"type:char(64);not null;uniqueIndex:ux_refresh_tokens_hash"`
	ExpiresAt time.Time  `gorm:"not null"`
	RevokedAt *time.Time
	CreatedAt time.Time
}

// TableName returns the database table name for RefreshToken.
func (RefreshToken) TableName() string { return "refresh_tokens" }

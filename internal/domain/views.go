package domain

import "time"

// ProfileSummary is the compact author/actor block embedded in feed items,
// comments, conversations and notifications.
type ProfileSummary struct {
	ID        string  `json:"id"`
	Username  string  `json:"username"`
	Name      string  `json:"name"`
	AvatarURL *string `json:"avatar_url"`
}

// Summary returns the compact form of p.
func (p Profile) Summary() ProfileSummary {
	return ProfileSummary{ID: p.ID, Username: p.Username, Name: p.Name, AvatarURL: p.AvatarURL}
}

// ProfileView is a profile as seen by a particular viewer.
type ProfileView struct {
	Profile
	FollowersCount int64 `json:"followers_count"`
	FollowingCount int64 `json:"following_count"`
	PostsCount     int64 `json:"posts_count"`
	IsFollowing    bool  `json:"is_following"`
	IsCurrentUser  bool  `json:"is_current_user"`
}

// PostView is a feed item: the post, its author and the viewer's like state.
type PostView struct {
	ID        string         `json:"id"`
	Author    ProfileSummary `json:"author"`
	Content   string         `json:"content"`
	ImageURL  *string        `json:"image_url"`
	Likes     int            `json:"likes"`
	Comments  int            `json:"comments"`
	IsLiked   bool           `json:"is_liked"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// NewPostView assembles a PostView. p.Author must be loaded.
func NewPostView(p Post, liked bool) PostView {
	v := PostView{
		ID:        p.ID,
		Content:   p.Content,
		ImageURL:  p.ImageURL,
		Likes:     p.LikesCount,
		Comments:  p.CommentsCount,
		IsLiked:   liked,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
	if p.Author != nil {
		v.Author = p.Author.Summary()
	} else {
		v.Author = ProfileSummary{ID: p.AuthorID}
	}
	return v
}

// Conversation summarizes the direct-message thread with one counterpart.
type Conversation struct {
	User        ProfileSummary `json:"user"`
	LastMessage Message        `json:"last_message"`
	UnreadCount int64          `json:"unread_count"`
}

// LikeState is the result of toggling a like.
type LikeState struct {
	Liked bool `json:"liked"`
	Likes int  `json:"likes"`
}

// FollowState is the result of toggling a follow.
type FollowState struct {
	Following bool  `json:"following"`
	Followers int64 `json:"followers"`
}

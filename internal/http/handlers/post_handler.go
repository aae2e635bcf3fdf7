// Post HTTP handlers.
//
// This file exposes the feed and post lifecycle:
//   - GET    /posts                 (feed, paginated, ETag support)
//   - POST   /posts                 (create, idempotent)
//   - GET    /posts/{id}
//   - DELETE /posts/{id}            (author only)
//   - POST   /posts/{id}/like       (toggle)
//   - POST   /media/posts           (image upload for a later create)
package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-social-backend/internal/services"
	"github.com/tbourn/go-social-backend/internal/utils"
)

//
// DTOs
//

// CreatePostRequest is the JSON payload for publishing a post.
type CreatePostRequest struct {
	// Content is normalized server-side; it must not be blank.
	Content string `json:"content" example:"First light over the harbour"`
	// ImageURL is optional and usually comes from POST /media/posts.
	ImageURL *string `json:"image_url,omitempty" example:"https://cdn.example.com/u1/posts/9b1d.png"`
}

// UploadResponse carries the public URL of an uploaded file.
type UploadResponse struct {
	URL string `json:"url" example:"https://cdn.example.com/u1/posts/9b1d.png"`
}

//
// Handlers
//

// ListPosts godoc
// @ID          listPosts
// @Summary     Feed
// @Description Posts newest first with the viewer's like state. Supports If-None-Match.
// @Tags        Posts
// @Produce     json
// @Security    BearerAuth
// @Param       limit   query     int     false  "Page size"     minimum(1) maximum(50) default(10)
// @Param       offset  query     int     false  "Rows to skip"  minimum(0) default(0)
// @Param       author  query     string  false  "Only posts by this username"
// @Success     200     {object}  services.FeedPage
// @Success     304     "Not modified"
// @Failure     404     {object}  handlers.ErrorResponse  "Author not found"
// @Router      /posts [get]
func (h *Handlers) ListPosts(c *gin.Context) {
	ctx := c.Request.Context()
	viewer := userID(c)
	q := services.FeedQuery{
		Limit:  utils.Limit(c.Query("limit"), services.DefaultFeedLimit, services.MaxFeedLimit),
		Offset: utils.Offset(c.Query("offset")),
	}
	if author := strings.TrimSpace(c.Query("author")); author != "" {
		p, err := h.profiles.GetByUsername(ctx, viewer, author)
		if err != nil {
			failErr(c, err)
			return
		}
		q.AuthorID = p.ID
	}

	// ETag pre-check (best effort).
	if st, err := h.posts.Stats(ctx, q.AuthorID); err == nil {
		etag := fmt.Sprintf(`W/"posts:%s:%s:%d:%d:%d:%d:%d"`,
			viewer, q.AuthorID, q.Limit, q.Offset, st.Count, unixNano(st.PostsAt), unixNano(st.AuthorsAt))
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	page, err := h.posts.Feed(ctx, viewer, q)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, page)
}

// CreatePost godoc
// @ID          createPost
// @Summary     Publish a post
// @Description Supports idempotency via the Idempotency-Key header (same key → same post).
// @Tags        Posts
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       Idempotency-Key  header    string                      false  "Idempotency key for safe retries"
// @Param       body             body      handlers.CreatePostRequest  true   "Post"
// @Success     201              {object}  domain.PostView
// @Failure     400              {object}  handlers.ErrorResponse
// @Router      /posts [post]
func (h *Handlers) CreatePost(c *gin.Context) {
	ctx := c.Request.Context()
	if id, found := h.replayedID(c); found {
		p, err := h.posts.Get(ctx, userID(c), id)
		if err != nil {
			failErr(c, err)
			return
		}
		markReplayed(c)
		ok(c, http.StatusCreated, p)
		return
	}

	var req CreatePostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failBind(c, err)
		return
	}
	if req.ImageURL != nil && strings.TrimSpace(*req.ImageURL) == "" {
		req.ImageURL = nil
	}
	p, err := h.posts.Create(ctx, userID(c), req.Content, req.ImageURL)
	if err != nil {
		failErr(c, err)
		return
	}
	h.remember(c, p.ID, http.StatusCreated)
	ok(c, http.StatusCreated, p)
}

// GetPost godoc
// @ID          getPost
// @Summary     Get a post
// @Tags        Posts
// @Produce     json
// @Security    BearerAuth
// @Param       id   path      string  true  "Post ID"  format(uuid)
// @Success     200  {object}  domain.PostView
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /posts/{id} [get]
func (h *Handlers) GetPost(c *gin.Context) {
	p, err := h.posts.Get(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, p)
}

// DeletePost godoc
// @ID          deletePost
// @Summary     Delete own post
// @Tags        Posts
// @Security    BearerAuth
// @Param       id   path  string  true  "Post ID"  format(uuid)
// @Success     204
// @Failure     403  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /posts/{id} [delete]
func (h *Handlers) DeletePost(c *gin.Context) {
	if err := h.posts.Delete(c.Request.Context(), userID(c), c.Param("id")); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// ToggleLike godoc
// @ID          toggleLike
// @Summary     Like or unlike a post
// @Tags        Posts
// @Produce     json
// @Security    BearerAuth
// @Param       id   path      string  true  "Post ID"  format(uuid)
// @Success     200  {object}  domain.LikeState
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /posts/{id}/like [post]
func (h *Handlers) ToggleLike(c *gin.Context) {
	st, err := h.posts.ToggleLike(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, st)
}

// UploadPostImage godoc
// @ID          uploadPostImage
// @Summary     Upload a post image
// @Description Stores the image and returns its public URL for a later POST /posts.
// @Tags        Posts
// @Accept      multipart/form-data
// @Produce     json
// @Security    BearerAuth
// @Param       file  formData  file  true  "Image file"
// @Success     201   {object}  handlers.UploadResponse
// @Failure     400   {object}  handlers.ErrorResponse
// @Failure     413   {object}  handlers.ErrorResponse
// @Router      /media/posts [post]
func (h *Handlers) UploadPostImage(c *gin.Context) {
	data, good := h.readUpload(c)
	if !good {
		return
	}
	url, err := h.posts.UploadImage(c.Request.Context(), userID(c), data)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, UploadResponse{URL: url})
}

func unixNano(t *time.Time) int64 {
	if t == nil {
		return 0
	}
	return t.UnixNano()
}

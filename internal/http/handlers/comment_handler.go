// Comment HTTP handlers.
//
//   - GET    /posts/{id}/comments   (oldest first)
//   - POST   /posts/{id}/comments   (idempotent)
//   - DELETE /comments/{id}         (comment or post author)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-social-backend/internal/domain"
	"github.com/tbourn/go-social-backend/internal/services"
	"github.com/tbourn/go-social-backend/internal/utils"
)

// CreateCommentRequest is the JSON payload for commenting on a post.
type CreateCommentRequest struct {
	Content string `json:"content" example:"Lovely shot!"`
}

// CommentListResponse is a page of comments.
type CommentListResponse struct {
	Items  []domain.PostComment `json:"items"`
	Limit  int                  `json:"limit"`
	Offset int                  `json:"offset"`
}

// ListComments godoc
// @ID          listComments
// @Summary     List comments on a post
// @Tags        Comments
// @Produce     json
// @Security    BearerAuth
// @Param       id      path      string  true   "Post ID"  format(uuid)
// @Param       limit   query     int     false  "Page size"     minimum(1) maximum(100) default(50)
// @Param       offset  query     int     false  "Rows to skip"  minimum(0) default(0)
// @Success     200     {object}  handlers.CommentListResponse
// @Failure     404     {object}  handlers.ErrorResponse
// @Router      /posts/{id}/comments [get]
func (h *Handlers) ListComments(c *gin.Context) {
	limit := utils.Limit(c.Query("limit"), services.DefaultCommentLimit, services.MaxCommentLimit)
	offset := utils.Offset(c.Query("offset"))
	items, err := h.comments.List(c.Request.Context(), c.Param("id"), limit, offset)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, CommentListResponse{Items: items, Limit: limit, Offset: offset})
}

// CreateComment godoc
// @ID          createComment
// @Summary     Comment on a post
// @Description Supports idempotency via the Idempotency-Key header.
// @Tags        Comments
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       Idempotency-Key  header    string                         false  "Idempotency key for safe retries"
// @Param       id               path      string                         true   "Post ID"  format(uuid)
// @Param       body             body      handlers.CreateCommentRequest  true   "Comment"
// @Success     201              {object}  domain.PostComment
// @Failure     400              {object}  handlers.ErrorResponse
// @Failure     404              {object}  handlers.ErrorResponse
// @Router      /posts/{id}/comments [post]
func (h *Handlers) CreateComment(c *gin.Context) {
	ctx := c.Request.Context()
	if id, found := h.replayedID(c); found {
		cm, err := h.comments.Get(ctx, id)
		if err != nil {
			failErr(c, err)
			return
		}
		markReplayed(c)
		ok(c, http.StatusCreated, cm)
		return
	}

	var req CreateCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failBind(c, err)
		return
	}
	cm, err := h.comments.Add(ctx, userID(c), c.Param("id"), req.Content)
	if err != nil {
		failErr(c, err)
		return
	}
	h.remember(c, cm.ID, http.StatusCreated)
	ok(c, http.StatusCreated, cm)
}

// DeleteComment godoc
// @ID          deleteComment
// @Summary     Delete a comment
// @Tags        Comments
// @Security    BearerAuth
// @Param       id   path  string  true  "Comment ID"  format(uuid)
// @Success     204
// @Failure     403  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /comments/{id} [delete]
func (h *Handlers) DeleteComment(c *gin.Context) {
	if err := h.comments.Delete(c.Request.Context(), userID(c), c.Param("id")); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

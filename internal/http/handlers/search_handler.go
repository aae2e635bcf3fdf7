// Search HTTP handler.
//
//   - GET /search?q=...&type=users|posts
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-social-backend/internal/domain"
	"github.com/tbourn/go-social-backend/internal/services"
	"github.com/tbourn/go-social-backend/internal/utils"
)

// SearchResponse holds results of one kind; the other field is omitted.
type SearchResponse struct {
	Type  string                  `json:"type" example:"users"`
	Query string                  `json:"query"`
	Users []domain.ProfileSummary `json:"users,omitempty"`
	Posts []domain.PostView       `json:"posts,omitempty"`
}

// Search godoc
// @ID          search
// @Summary     Search profiles or posts
// @Description Users match on username or name; posts are ranked by token overlap.
// @Tags        Search
// @Produce     json
// @Security    BearerAuth
// @Param       q      query     string  true   "Query"
// @Param       type   query     string  false  "Result kind"  Enums(users, posts)  default(users)
// @Param       limit  query     int     false  "Max results"  minimum(1) maximum(20) default(20)
// @Success     200    {object}  handlers.SearchResponse
// @Failure     400    {object}  handlers.ErrorResponse
// @Router      /search [get]
func (h *Handlers) Search(c *gin.Context) {
	ctx := c.Request.Context()
	q := c.Query("q")
	limit := utils.Limit(c.Query("limit"), services.DefaultSearchLimit, services.MaxSearchLimit)
	kind := strings.ToLower(strings.TrimSpace(c.DefaultQuery("type", "users")))

	resp := SearchResponse{Type: kind, Query: q}
	switch kind {
	case "users":
		users, err := h.search.Users(ctx, q, limit)
		if err != nil {
			failErr(c, err)
			return
		}
		resp.Users = users
	case "posts":
		posts, err := h.search.Posts(ctx, userID(c), q, limit)
		if err != nil {
			failErr(c, err)
			return
		}
		resp.Posts = posts
	default:
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "type must be users or posts")
		return
	}
	ok(c, http.StatusOK, resp)
}

// Profile HTTP handlers.
//
// This file exposes profile and follow-graph endpoints:
//   - GET   /profiles/{username}
//   - GET   /profiles/{username}/followers
//   - GET   /profiles/{username}/following
//   - POST  /profiles/{username}/follow      (toggle)
//   - PATCH /profile                         (edit own profile)
//   - PUT   /profile/images/{kind}           (avatar|cover upload)
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-social-backend/internal/domain"
	"github.com/tbourn/go-social-backend/internal/services"
	"github.com/tbourn/go-social-backend/internal/utils"
)

// ProfileListResponse is a page of profile summaries.
type ProfileListResponse struct {
	Items  []domain.ProfileSummary `json:"items"`
	Limit  int                     `json:"limit"`
	Offset int                     `json:"offset"`
}

// GetProfile godoc
// @ID          getProfile
// @Summary     Get a profile
// @Description Returns the profile with counts and the viewer's follow state.
// @Tags        Profiles
// @Produce     json
// @Security    BearerAuth
// @Param       username  path      string  true  "Username"
// @Success     200       {object}  domain.ProfileView
// @Failure     404       {object}  handlers.ErrorResponse  "Profile not found"
// @Router      /profiles/{username} [get]
func (h *Handlers) GetProfile(c *gin.Context) {
	p, err := h.profiles.GetByUsername(c.Request.Context(), userID(c), c.Param("username"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, p)
}

// ListFollowers godoc
// @ID          listFollowers
// @Summary     List followers
// @Tags        Profiles
// @Produce     json
// @Security    BearerAuth
// @Param       username  path      string  true   "Username"
// @Param       limit     query     int     false  "Page size"  minimum(1) maximum(100) default(20)
// @Param       offset    query     int     false  "Rows to skip" minimum(0) default(0)
// @Success     200       {object}  handlers.ProfileListResponse
// @Failure     404       {object}  handlers.ErrorResponse
// @Router      /profiles/{username}/followers [get]
func (h *Handlers) ListFollowers(c *gin.Context) {
	h.listFollows(c, h.follows.Followers)
}

// ListFollowing godoc
// @ID          listFollowing
// @Summary     List followed profiles
// @Tags        Profiles
// @Produce     json
// @Security    BearerAuth
// @Param       username  path      string  true   "Username"
// @Param       limit     query     int     false  "Page size"  minimum(1) maximum(100) default(20)
// @Param       offset    query     int     false  "Rows to skip" minimum(0) default(0)
// @Success     200       {object}  handlers.ProfileListResponse
// @Failure     404       {object}  handlers.ErrorResponse
// @Router      /profiles/{username}/following [get]
func (h *Handlers) ListFollowing(c *gin.Context) {
	h.listFollows(c, h.follows.Following)
}

type followLister func(ctx context.Context, username string, limit, offset int) ([]domain.ProfileSummary, error)

func (h *Handlers) listFollows(c *gin.Context, fn followLister) {
	limit := utils.Limit(c.Query("limit"), services.DefaultFollowLimit, services.MaxFollowLimit)
	offset := utils.Offset(c.Query("offset"))
	items, err := fn(c.Request.Context(), c.Param("username"), limit, offset)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ProfileListResponse{Items: items, Limit: limit, Offset: offset})
}

// ToggleFollow godoc
// @ID          toggleFollow
// @Summary     Follow or unfollow a profile
// @Tags        Profiles
// @Produce     json
// @Security    BearerAuth
// @Param       username  path      string  true  "Username"
// @Success     200       {object}  domain.FollowState
// @Failure     400       {object}  handlers.ErrorResponse  "Cannot follow yourself"
// @Failure     404       {object}  handlers.ErrorResponse
// @Router      /profiles/{username}/follow [post]
func (h *Handlers) ToggleFollow(c *gin.Context) {
	st, err := h.follows.Toggle(c.Request.Context(), userID(c), c.Param("username"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, st)
}

// UpdateProfile godoc
// @ID          updateProfile
// @Summary     Edit own profile
// @Description Absent fields are left unchanged; an empty bio clears it.
// @Tags        Profiles
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body      services.ProfilePatch  true  "Fields to change"
// @Success     200   {object}  domain.ProfileView
// @Failure     400   {object}  handlers.ErrorResponse
// @Router      /profile [patch]
func (h *Handlers) UpdateProfile(c *gin.Context) {
	var patch services.ProfilePatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		failBind(c, err)
		return
	}
	p, err := h.profiles.Update(c.Request.Context(), userID(c), patch)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, p)
}

// UploadProfileImage godoc
// @ID          uploadProfileImage
// @Summary     Upload avatar or cover image
// @Tags        Profiles
// @Accept      multipart/form-data
// @Produce     json
// @Security    BearerAuth
// @Param       kind  path      string  true  "avatar or cover"  Enums(avatar, cover)
// @Param       file  formData  file    true  "Image file"
// @Success     200   {object}  domain.ProfileView
// @Failure     400   {object}  handlers.ErrorResponse
// @Failure     413   {object}  handlers.ErrorResponse
// @Router      /profile/images/{kind} [put]
func (h *Handlers) UploadProfileImage(c *gin.Context) {
	kind := c.Param("kind")
	if kind != services.ImageAvatar && kind != services.ImageCover {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "image kind must be avatar or cover")
		return
	}
	data, good := h.readUpload(c)
	if !good {
		return
	}
	p, err := h.profiles.UploadImage(c.Request.Context(), userID(c), kind, data)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, p)
}

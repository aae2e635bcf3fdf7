// Auth HTTP handlers.
//
// This file exposes account and session endpoints:
//   - POST /auth/register  (create account + profile, open a session)
//   - POST /auth/login     (open a session)
//   - POST /auth/refresh   (rotate a refresh token)
//   - POST /auth/logout    (revoke a refresh token)
//   - GET  /auth/me        (current account and profile)
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/tbourn/go-social-backend/internal/domain"
	"github.com/tbourn/go-social-backend/internal/services"
)

//
// DTOs
//

// RegisterRequest is the sign-up payload.
type RegisterRequest struct {
	Email    string `json:"email"    binding:"required,email" example:"ada@example.com"`
	Password string `json:"password" binding:"required" example:"s3cret!"`
	// ConfirmPassword must equal Password when present.
	ConfirmPassword *string `json:"confirm_password,omitempty" example:"s3cret!"`
	Username        string  `json:"username" binding:"required" example:"ada_l"`
}

// LoginRequest is the sign-in payload.
type LoginRequest struct {
	Email    string `json:"email"    binding:"required,email" example:"ada@example.com"`
	Password string `json:"password" binding:"required" example:"s3cret!"`
}

// RefreshRequest carries an opaque refresh token.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// RegisterResponse is returned on sign-up.
type RegisterResponse struct {
	Session services.Session `json:"session"`
	Profile domain.Profile   `json:"profile"`
	Message string           `json:"message" example:"Account created successfully"`
}

// SessionResponse wraps a refreshed session.
type SessionResponse struct {
	Session services.Session `json:"session"`
}

// MeResponse is the signed-in account.
type MeResponse struct {
	User    AccountInfo    `json:"user"`
	Profile domain.Profile `json:"profile"`
}

// AccountInfo is the non-secret part of an account.
type AccountInfo struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

const msgInvalidEmail = "Please enter a valid email address"

// invalidEmail reports whether binding failed on the e-mail format rule
// rather than on a missing field.
func invalidEmail(err error) bool {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return false
	}
	for _, fe := range verrs {
		if fe.Field() == "Email" && fe.Tag() == "email" {
			return true
		}
	}
	return false
}

//
// Handlers
//

// Register godoc
// @ID          register
// @Summary     Create an account
// @Description Creates the account and its profile and returns a session.
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.RegisterRequest   true  "Sign-up payload"
// @Success     201   {object}  handlers.RegisterResponse
// @Failure     400   {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     409   {object}  handlers.ErrorResponse  "Username or email taken"
// @Router      /auth/register [post]
func (h *Handlers) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		if invalidEmail(err) {
			fail(c, http.StatusBadRequest, ErrCodeValidation, msgInvalidEmail)
			return
		}
		fail(c, http.StatusBadRequest, ErrCodeValidation, "Email, password and username are required")
		return
	}
	if req.ConfirmPassword != nil && *req.ConfirmPassword != req.Password {
		fail(c, http.StatusBadRequest, ErrCodeValidation, "Passwords do not match")
		return
	}

	res, err := h.auth.SignUp(c.Request.Context(), req.Email, req.Password, req.Username)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, RegisterResponse{
		Session: res.Session,
		Profile: res.Profile,
		Message: "Account created successfully",
	})
}

// Login godoc
// @ID          login
// @Summary     Sign in
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.LoginRequest  true  "Credentials"
// @Success     200   {object}  services.AuthResult
// @Failure     400   {object}  handlers.ErrorResponse
// @Failure     401   {object}  handlers.ErrorResponse  "Invalid email or password"
// @Router      /auth/login [post]
func (h *Handlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		if invalidEmail(err) {
			fail(c, http.StatusBadRequest, ErrCodeValidation, msgInvalidEmail)
			return
		}
		fail(c, http.StatusBadRequest, ErrCodeValidation, "Email and password are required")
		return
	}
	res, err := h.auth.SignIn(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, res)
}

// Refresh godoc
// @ID          refreshSession
// @Summary     Refresh a session
// @Description Exchanges a refresh token for a new session. The presented token is revoked.
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.RefreshRequest  true  "Refresh token"
// @Success     200   {object}  handlers.SessionResponse
// @Failure     401   {object}  handlers.ErrorResponse
// @Router      /auth/refresh [post]
func (h *Handlers) Refresh(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		fail(c, http.StatusBadRequest, ErrCodeValidation, "refresh_token is required")
		return
	}
	res, err := h.auth.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, SessionResponse{Session: res.Session})
}

// Logout godoc
// @ID          logout
// @Summary     Sign out
// @Tags        Auth
// @Accept      json
// @Security    BearerAuth
// @Param       body  body  handlers.RefreshRequest  true  "Refresh token to revoke"
// @Success     204
// @Failure     400   {object}  handlers.ErrorResponse
// @Failure     401   {object}  handlers.ErrorResponse
// @Router      /auth/logout [post]
func (h *Handlers) Logout(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeValidation, "refresh_token is required")
		return
	}
	if err := h.auth.SignOut(c.Request.Context(), req.RefreshToken); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// Me godoc
// @ID          me
// @Summary     Current user
// @Tags        Auth
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  handlers.MeResponse
// @Failure     401  {object}  handlers.ErrorResponse
// @Router      /auth/me [get]
func (h *Handlers) Me(c *gin.Context) {
	u, err := h.auth.CurrentUser(c.Request.Context(), userID(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, MeResponse{
		User:    AccountInfo{ID: u.ID, Email: u.Email},
		Profile: u.Profile,
	})
}

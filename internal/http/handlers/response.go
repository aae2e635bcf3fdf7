// Package handlers provides HTTP handler implementations for the public API.
//
// This file defines the standard response utilities used across all endpoints,
// including structured error envelopes, the mapping from service errors to
// HTTP statuses, and helpers for common HTTP patterns.
//
// Conventions:
//   - All error responses must return an ErrorResponse with a stable `code`.
//   - `fail()` centralizes error logging and formatting, ensuring 5xx responses
//     are logged with request context for observability.
//   - `failErr()` translates service sentinels; anything unknown is a 500.
//   - `ok()` and `noContent()` write success responses.
//
// Example error response:
//
//	HTTP/1.1 404 Not Found
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "not_found",
//	  "message": "Post not found"
//	}
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-social-backend/internal/http/middleware"
	"github.com/tbourn/go-social-backend/internal/services"
)

// ErrorResponse is the standard error envelope returned by all endpoints.
//
// Fields:
//   - RequestID: Optional correlation ID, echoed from X-Request-ID header, used
//     to correlate server logs with client-side errors.
//   - Code: A stable, machine-readable string (see errors.go constants).
//   - Message: A human-readable error description, safe for display to users.
type ErrorResponse struct {
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code (see errors.go constants)
	Code string `json:"code" example:"not_found"`
	// Human-readable message (safe to show to users)
	Message string `json:"message" example:"Post not found"`
}

// fail aborts the request with a structured error and logs server-side errors.
//
// Server errors (>=500) are logged using the request-scoped logger from middleware.
func fail(c *gin.Context, status int, code, msg string) {
	resp := ErrorResponse{
		RequestID: c.Writer.Header().Get("X-Request-ID"),
		Code:      code,
		Message:   msg,
	}

	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}

	c.AbortWithStatusJSON(status, resp)
}

// Fail is the exported variant of fail() for the router's fallbacks.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

type errMapping struct {
	err    error
	status int
	code   string
	msg    string
}

// errorTable maps service sentinels to responses. Order matters only for
// errors that wrap more than one sentinel.
var errorTable = []errMapping{
	{services.ErrInvalidEmail, http.StatusBadRequest, ErrCodeValidation, msgInvalidEmail},
	{services.ErrWeakPassword, http.StatusBadRequest, ErrCodeValidation, "Password must be at least 6 characters long"},
	{services.ErrPasswordTooLong, http.StatusBadRequest, ErrCodeValidation, "Password must be at most 72 bytes long"},
	{services.ErrInvalidUsername, http.StatusBadRequest, ErrCodeValidation, "Username must be 3-30 characters of lowercase letters, numbers or underscores"},
	{services.ErrUsernameTaken, http.StatusConflict, ErrCodeUsernameTaken, "Username is already taken"},
	{services.ErrEmailTaken, http.StatusConflict, ErrCodeEmailTaken, "An account with this email already exists"},
	{services.ErrInvalidCredentials, http.StatusUnauthorized, ErrCodeInvalidCredentials, "Invalid email or password"},
	{services.ErrInvalidToken, http.StatusUnauthorized, ErrCodeUnauthorized, "Invalid or expired session"},

	{services.ErrProfileNotFound, http.StatusNotFound, ErrCodeNotFound, "Profile not found"},
	{services.ErrPostNotFound, http.StatusNotFound, ErrCodeNotFound, "Post not found"},
	{services.ErrCommentNotFound, http.StatusNotFound, ErrCodeNotFound, "Comment not found"},
	{services.ErrMessageNotFound, http.StatusNotFound, ErrCodeNotFound, "Message not found"},
	{services.ErrEmptyContent, http.StatusBadRequest, ErrCodeValidation, "Content cannot be empty"},
	{services.ErrTooLong, http.StatusBadRequest, ErrCodeValidation, "Content is too long"},
	{services.ErrInvalidName, http.StatusBadRequest, ErrCodeValidation, "Name must be between 1 and 50 characters"},
	{services.ErrBioTooLong, http.StatusBadRequest, ErrCodeValidation, "Bio must be at most 160 characters"},
	{services.ErrForbidden, http.StatusForbidden, ErrCodeForbidden, "You are not allowed to do that"},
	{services.ErrSelfFollow, http.StatusBadRequest, ErrCodeValidation, "You cannot follow yourself"},
	{services.ErrSelfMessage, http.StatusBadRequest, ErrCodeValidation, "You cannot message yourself"},

	{services.ErrImageTooLarge, http.StatusRequestEntityTooLarge, ErrCodePayloadTooLarge, "Image is too large"},
	{services.ErrInvalidImage, http.StatusBadRequest, ErrCodeInvalidImage, "Please upload a PNG, JPEG, GIF or WebP image"},
}

// failErr writes the response mapped to err. Unknown errors become a 500 and
// are logged with the underlying error; the client only sees a generic message.
func failErr(c *gin.Context, err error) {
	for _, m := range errorTable {
		if errors.Is(err, m.err) {
			fail(c, m.status, m.code, m.msg)
			return
		}
	}
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		fail(c, http.StatusRequestEntityTooLarge, ErrCodePayloadTooLarge, "Request body is too large")
		return
	}
	middleware.LoggerFrom(c).Error().Err(err).Msg("unhandled service error")
	fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
}

// failBind reports a request body that could not be decoded.
func failBind(c *gin.Context, err error) {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		fail(c, http.StatusRequestEntityTooLarge, ErrCodePayloadTooLarge, "Request body is too large")
		return
	}
	fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
}

// ok writes a success JSON response.
func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

// noContent writes an HTTP 204 No Content response.
func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

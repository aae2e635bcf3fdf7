// Package services defines the business logic for accounts, profiles, posts,
// comments, follows, direct messages, notifications and search.
// This file centralizes common service-level error values so that they can be
// consistently returned by service methods and checked by callers.
//
// These errors are intended for internal use by the service layer and translation
// into user-facing messages or HTTP status codes should be performed at the
// handler/controller layer.
package services

import "errors"

// Account and session errors.
var (
	// ErrInvalidEmail is returned when the e-mail address is blank.
	ErrInvalidEmail = errors.New("invalid email address")

	// ErrWeakPassword is returned when the password is shorter than the
	// configured minimum.
	ErrWeakPassword = errors.New("password too short")

	// ErrPasswordTooLong is returned when the password exceeds the 72 bytes
	// bcrypt can hash.
	ErrPasswordTooLong = errors.New("password too long")

	// ErrInvalidUsername is returned when a username is not 3-30 characters
	// of [a-z0-9_].
	ErrInvalidUsername = errors.New("invalid username")

	// ErrUsernameTaken is returned when another profile already uses the
	// requested username.
	ErrUsernameTaken = errors.New("username is already taken")

	// ErrEmailTaken is returned when another account already uses the
	// requested e-mail.
	ErrEmailTaken = errors.New("email is already registered")

	// ErrInvalidCredentials covers both unknown e-mails and wrong passwords.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrInvalidToken is returned for unknown, expired or revoked refresh tokens.
	ErrInvalidToken = errors.New("invalid or expired token")
)

// Content errors.
var (
	// ErrProfileNotFound indicates that the requested profile does not exist.
	ErrProfileNotFound = errors.New("profile not found")

	// ErrPostNotFound indicates that the requested post does not exist or was
	// deleted.
	ErrPostNotFound = errors.New("post not found")

	// ErrCommentNotFound indicates that the requested comment does not exist.
	ErrCommentNotFound = errors.New("comment not found")

	// ErrMessageNotFound indicates that the requested direct message does not
	// exist or the caller is not a participant.
	ErrMessageNotFound = errors.New("message not found")

	// ErrEmptyContent is returned when post, comment or message text is blank
	// after trimming.
	ErrEmptyContent = errors.New("content is empty")

	// ErrTooLong is returned when text exceeds its configured rune limit.
	ErrTooLong = errors.New("content too long")

	// ErrInvalidName is returned for a blank or overlong display name.
	ErrInvalidName = errors.New("invalid display name")

	// ErrBioTooLong is returned when a bio exceeds its rune limit.
	ErrBioTooLong = errors.New("bio too long")

	// ErrForbidden is returned when the caller does not own the resource.
	ErrForbidden = errors.New("not allowed")

	// ErrSelfFollow is returned when a profile tries to follow itself.
	ErrSelfFollow = errors.New("cannot follow yourself")

	// ErrSelfMessage is returned when a user messages themselves.
	ErrSelfMessage = errors.New("cannot message yourself")
)

// Upload errors.
var (
	// ErrInvalidImage is returned when an upload is not a supported image or
	// names an unknown image kind.
	ErrInvalidImage = errors.New("invalid image")

	// ErrImageTooLarge is returned when an upload exceeds the size limit.
	ErrImageTooLarge = errors.New("image too large")
)

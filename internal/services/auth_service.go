// Package services – AuthService
//
// This file implements sign-up, sign-in and session management. A sign-up
// creates the account and its profile in one transaction. Sessions are a
// short-lived JWT access token plus an opaque refresh token that is stored
// hashed and rotated on every refresh.
package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-social-backend/internal/auth"
	"github.com/tbourn/go-social-backend/internal/domain"
	"github.com/tbourn/go-social-backend/internal/repo"
)

// MinPasswordLen is the shortest accepted password, in runes.
const MinPasswordLen = 6

var usernameRE = regexp.MustCompile(`^[a-z0-9_]{3,30}$`)

// Session is the credential pair returned to clients.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// AuthResult is returned by SignUp, SignIn and Refresh.
type AuthResult struct {
	Session Session        `json:"session"`
	Profile domain.Profile `json:"profile"`
}

// CurrentUser is the signed-in account with its profile.
type CurrentUser struct {
	ID      string         `json:"id"`
	Email   string         `json:"email"`
	Profile domain.Profile `json:"profile"`
}

// AuthService owns accounts and sessions.
type AuthService struct {
	DB         *gorm.DB
	Tokens     *auth.Tokens
	RefreshTTL time.Duration
	BcryptCost int

	now func() time.Time
}

// NewAuthService wires an AuthService.
func NewAuthService(db *gorm.DB, tokens *auth.Tokens, refreshTTL time.Duration, bcryptCost int) *AuthService {
	return &AuthService{DB: db, Tokens: tokens, RefreshTTL: refreshTTL, BcryptCost: bcryptCost, now: time.Now}
}

func (s *AuthService) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

// normalizeEmail trims and lower-cases an address. Format is checked by
// request binding.
func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", ErrInvalidEmail
	}
	return email, nil
}

// NormalizeUsername trims and lower-cases a handle.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// SignUp creates an account and its profile and opens a session.
func (s *AuthService) SignUp(ctx context.Context, email, password, username string) (*AuthResult, error) {
	tr := otel.Tracer("services/AuthService")
	ctx, span := tr.Start(ctx, "SignUp")
	defer span.End()

	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if utf8.RuneCountInString(password) < MinPasswordLen {
		return nil, ErrWeakPassword
	}
	if len(password) > auth.MaxPasswordBytes {
		return nil, ErrPasswordTooLong
	}
	username = NormalizeUsername(username)
	if !usernameRE.MatchString(username) {
		return nil, ErrInvalidUsername
	}

	if taken, err := repo.UsernameExists(ctx, s.DB, username); err != nil {
		return nil, err
	} else if taken {
		return nil, ErrUsernameTaken
	}
	if taken, err := repo.EmailExists(ctx, s.DB, email); err != nil {
		return nil, err
	} else if taken {
		return nil, ErrEmailTaken
	}

	hash, err := auth.HashPassword(password, s.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	acct := &domain.Account{ID: uuid.NewString(), Email: email, PasswordHash: hash}
	prof := &domain.Profile{Username: username, Name: username}
	if err := repo.CreateAccountWithProfile(ctx, s.DB, acct, prof); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			// lost a race; report whichever unique key now exists
			if taken, _ := repo.UsernameExists(ctx, s.DB, username); taken {
				return nil, ErrUsernameTaken
			}
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	span.SetAttributes(attribute.String("user.id", acct.ID))
	signups.Inc()

	sess, err := s.issue(ctx, s.DB, acct.ID, prof.Username)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Session: *sess, Profile: *prof}, nil
}

// SignIn verifies credentials and opens a session. Unknown e-mails and wrong
// passwords are indistinguishable, including in timing.
func (s *AuthService) SignIn(ctx context.Context, email, password string) (*AuthResult, error) {
	tr := otel.Tracer("services/AuthService")
	ctx, span := tr.Start(ctx, "SignIn")
	defer span.End()

	email = strings.ToLower(strings.TrimSpace(email))
	acct, err := repo.GetAccountByEmail(ctx, s.DB, email)
	if err != nil {
		if !isNotFound(err) {
			return nil, err
		}
		auth.CompareDummy(password, s.BcryptCost)
		return nil, ErrInvalidCredentials
	}
	if !auth.CheckPassword(acct.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	prof, err := repo.GetProfile(ctx, s.DB, acct.ID)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("user.id", acct.ID))

	sess, err := s.issue(ctx, s.DB, acct.ID, prof.Username)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Session: *sess, Profile: *prof}, nil
}

// Refresh rotates a refresh token: the presented token is revoked and a new
// session is issued. Unknown, expired or already revoked tokens fail with
// ErrInvalidToken.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	tr := otel.Tracer("services/AuthService")
	ctx, span := tr.Start(ctx, "Refresh")
	defer span.End()

	if strings.TrimSpace(refreshToken) == "" {
		return nil, ErrInvalidToken
	}
	now := s.clock()
	var out *AuthResult
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rt, err := repo.GetRefreshToken(ctx, tx, auth.HashRefreshToken(refreshToken))
		if err != nil {
			if isNotFound(err) {
				return ErrInvalidToken
			}
			return err
		}
		if rt.RevokedAt != nil || !now.Before(rt.ExpiresAt) {
			return ErrInvalidToken
		}
		if err := repo.RevokeRefreshToken(ctx, tx, rt.ID, now); err != nil {
			if isNotFound(err) {
				return ErrInvalidToken
			}
			return err
		}
		prof, err := repo.GetProfile(ctx, tx, rt.AccountID)
		if err != nil {
			if isNotFound(err) {
				return ErrInvalidToken
			}
			return err
		}
		sess, err := s.issue(ctx, tx, rt.AccountID, prof.Username)
		if err != nil {
			return err
		}
		span.SetAttributes(attribute.String("user.id", rt.AccountID))
		out = &AuthResult{Session: *sess, Profile: *prof}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SignOut revokes a refresh token. Unknown or already revoked tokens are not
// an error.
func (s *AuthService) SignOut(ctx context.Context, refreshToken string) error {
	tr := otel.Tracer("services/AuthService")
	ctx, span := tr.Start(ctx, "SignOut")
	defer span.End()

	if strings.TrimSpace(refreshToken) == "" {
		return nil
	}
	rt, err := repo.GetRefreshToken(ctx, s.DB, auth.HashRefreshToken(refreshToken))
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return err
	}
	if err := repo.RevokeRefreshToken(ctx, s.DB, rt.ID, s.clock()); err != nil && !isNotFound(err) {
		return err
	}
	return nil
}

// CurrentUser returns the account e-mail and profile for userID.
func (s *AuthService) CurrentUser(ctx context.Context, userID string) (*CurrentUser, error) {
	tr := otel.Tracer("services/AuthService")
	ctx, span := tr.Start(ctx, "CurrentUser",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	acct, err := repo.GetAccount(ctx, s.DB, userID)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}
	prof, err := repo.GetProfile(ctx, s.DB, userID)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}
	return &CurrentUser{ID: acct.ID, Email: acct.Email, Profile: *prof}, nil
}

// PurgeExpired deletes refresh tokens that can no longer be used.
func (s *AuthService) PurgeExpired(ctx context.Context) (int64, error) {
	return repo.DeleteExpiredRefreshTokens(ctx, s.DB, s.clock())
}

func (s *AuthService) issue(ctx context.Context, db *gorm.DB, userID, username string) (*Session, error) {
	access, exp, err := s.Tokens.Issue(userID, username)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	raw, hash, err := auth.NewRefreshToken()
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}
	if _, err := repo.CreateRefreshToken(ctx, db, userID, hash, s.clock().Add(s.RefreshTTL)); err != nil {
		return nil, err
	}
	return &Session{AccessToken: access, RefreshToken: raw, TokenType: "Bearer", ExpiresAt: exp}, nil
}

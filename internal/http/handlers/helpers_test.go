package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/tbourn/go-social-backend/internal/auth"
	"github.com/tbourn/go-social-backend/internal/http/middleware"
	"github.com/tbourn/go-social-backend/internal/realtime"
	"github.com/tbourn/go-social-backend/internal/repo"
	"github.com/tbourn/go-social-backend/internal/services"
	"github.com/tbourn/go-social-backend/internal/storage"
)

// ---------- full-stack harness on sqlite ----------

type testAPI struct {
	r      *gin.Engine
	db     *gorm.DB
	hub    *realtime.Hub
	tokens *auth.Tokens
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	store, err := storage.NewLocalStore(t.TempDir(), "http://media.test/media")
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}

	hub := realtime.NewHub()
	t.Cleanup(func() { _ = hub.Shutdown(context.Background()) })
	tokens := auth.NewTokens("handler-secret", "test", 15*time.Minute)

	notes := &services.NotificationService{DB: db, Publisher: hub}
	h := New(Deps{
		Auth:          services.NewAuthService(db, tokens, time.Hour, bcrypt.MinCost),
		Profiles:      &services.ProfileService{DB: db, Store: store, Publisher: hub, MaxImageBytes: 1 << 20},
		Posts:         &services.PostService{DB: db, Store: store, Publisher: hub, Notifications: notes, MaxPostRunes: 500, MaxImageBytes: 1 << 20},
		Comments:      &services.CommentService{DB: db, Publisher: hub, Notifications: notes, MaxCommentRunes: 300},
		Follows:       &services.FollowService{DB: db, Publisher: hub, Notifications: notes},
		Messages:      &services.MessageService{DB: db, Publisher: hub, MaxMessageRunes: 1000},
		Notifications: notes,
		Search:        &services.SearchService{DB: db},
		Idempotency:   GormIdempotency{DB: db, TTL: time.Hour},
		Hub:           hub,
		Tokens:        tokens,
	})

	r := gin.New()
	r.Use(middleware.RequestID(), middleware.Authenticate(tokens))
	r.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, nil))

	api := r.Group("/api")
	api.POST("/auth/register", h.Register)
	api.POST("/auth/login", h.Login)
	api.POST("/auth/refresh", h.Refresh)
	api.GET("/realtime", h.Realtime)

	p := api.Group("", middleware.RequireAuth())
	p.POST("/auth/logout", h.Logout)
	p.GET("/auth/me", h.Me)
	p.GET("/profiles/:username", h.GetProfile)
	p.GET("/profiles/:username/followers", h.ListFollowers)
	p.GET("/profiles/:username/following", h.ListFollowing)
	p.POST("/profiles/:username/follow", h.ToggleFollow)
	p.PATCH("/profile", h.UpdateProfile)
	p.PUT("/profile/images/:kind", h.UploadProfileImage)
	p.GET("/posts", h.ListPosts)
	p.POST("/posts", h.CreatePost)
	p.GET("/posts/:id", h.GetPost)
	p.DELETE("/posts/:id", h.DeletePost)
	p.POST("/posts/:id/like", h.ToggleLike)
	p.GET("/posts/:id/comments", h.ListComments)
	p.POST("/posts/:id/comments", h.CreateComment)
	p.DELETE("/comments/:id", h.DeleteComment)
	p.POST("/media/posts", h.UploadPostImage)
	p.GET("/messages/conversations", h.ListConversations)
	p.GET("/messages/unread_count", h.UnreadMessages)
	p.GET("/messages/:user_id", h.GetThread)
	p.POST("/messages/:user_id", h.SendMessage)
	p.GET("/notifications", h.ListNotifications)
	p.GET("/notifications/unread_count", h.UnreadNotifications)
	p.POST("/notifications/read", h.MarkNotificationsRead)
	p.GET("/search", h.Search)

	return &testAPI{r: r, db: db, hub: hub, tokens: tokens}
}

type user struct {
	id, username, token, refresh string
}

// signup registers username and returns its credentials.
func (a *testAPI) signup(t *testing.T, username string) user {
	t.Helper()
	w := a.do(t, http.MethodPost, "/api/auth/register", "", gin.H{
		"email":    username + "@example.com",
		"password": "secret1",
		"username": username,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("register %s: %d %s", username, w.Code, w.Body.String())
	}
	var res RegisterResponse
	decode(t, w, &res)
	return user{id: res.Profile.ID, username: username, token: res.Session.AccessToken, refresh: res.Session.RefreshToken}
}

// do sends a JSON request. hdr holds header name/value pairs.
func (a *testAPI) do(t *testing.T, method, path, token string, body any, hdr ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	w := httptest.NewRecorder()
	a.r.ServeHTTP(w, req)
	return w
}

// upload sends data as the multipart "file" field.
func (a *testAPI) upload(t *testing.T, method, path, token string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "image.png")
	if err != nil {
		t.Fatal(err)
	}
	_, _ = fw.Write(data)
	_ = mw.Close()

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	a.r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func errCode(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var er ErrorResponse
	decode(t, w, &er)
	return er
}

// pngBytes is a 1x1 PNG.
var pngBytes = []byte{
	0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A,
	0x00, 0x00, 0x00, 0x0D, 0x49, 0x48, 0x44, 0x52,
	0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1F, 0x15, 0xC4,
	0x89, 0x00, 0x00, 0x00, 0x0A, 0x49, 0x44, 0x41,
	0x54, 0x78, 0x9C, 0x63, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0D, 0x0A, 0x2D, 0xB4, 0x00,
	0x00, 0x00, 0x00, 0x49, 0x45, 0x4E, 0x44, 0xAE,
	0x42, 0x60, 0x82,
}

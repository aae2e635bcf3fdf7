package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-social-backend/internal/auth"
)

func TestBearerToken(t *testing.T) {
	cases := []struct {
		header, want string
	}{
		{"", ""},
		{"Bearer abc", "abc"},
		{"bearer   abc  ", "abc"},
		{"Basic abc", ""},
		{"Bearer", ""},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		if got := BearerToken(req); got != tc.want {
			t.Errorf("BearerToken(%q) = %q; want %q", tc.header, got, tc.want)
		}
	}
}

func newAuthRouter(v TokenVerifier) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(), Authenticate(v))
	r.GET("/open", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user": UserID(c)})
	})
	g := r.Group("/private", RequireAuth())
	g.GET("", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user": UserID(c), "username": Username(c)})
	})
	return r
}

func TestAuthenticate_AndRequireAuth(t *testing.T) {
	tokens := auth.NewTokens("secret", "test", time.Minute)
	r := newAuthRouter(tokens)
	tok, _, err := tokens.Issue("u1", "alice")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	// anonymous is fine on open routes
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/open", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("open anonymous -> %d", w.Code)
	}

	// anonymous is rejected on private routes
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/private", nil))
	if w.Code != http.StatusUnauthorized || w.Header().Get("WWW-Authenticate") == "" {
		t.Fatalf("private anonymous -> %d %v", w.Code, w.Header())
	}
	var body map[string]string
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if body["code"] != "unauthorized" || body["message"] != "authentication required" || body["request_id"] == "" {
		t.Fatalf("body = %v", body)
	}

	// bad token
	req := httptest.NewRequest(http.MethodGet, "/private", nil)
	req.Header.Set("Authorization", "Bearer nope")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if w.Code != http.StatusUnauthorized || body["message"] != "invalid or expired token" {
		t.Fatalf("bad token -> %d %v", w.Code, body)
	}

	// valid token
	req = httptest.NewRequest(http.MethodGet, "/private", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if w.Code != http.StatusOK || body["user"] != "u1" || body["username"] != "alice" {
		t.Fatalf("valid token -> %d %v", w.Code, body)
	}
}

func TestAuthenticate_NilVerifierRejectsTokens(t *testing.T) {
	r := newAuthRouter(nil)

	req := httptest.NewRequest(http.MethodGet, "/private", nil)
	req.Header.Set("Authorization", "Bearer whatever")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var body map[string]string
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if w.Code != http.StatusUnauthorized || body["message"] != "invalid or expired token" {
		t.Fatalf("nil verifier -> %d %v", w.Code, body)
	}

	req = httptest.NewRequest(http.MethodGet, "/open", nil)
	req.Header.Set("Authorization", "Bearer whatever")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("open route with nil verifier -> %d", w.Code)
	}
}

func TestUserID_WrongTypeIsAnonymous(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Set(ctxKeyUserID, 42)
	if UserID(c) != "" {
		t.Fatal("non-string user id should read as anonymous")
	}
	SetUser(c, "u9", "zed")
	if UserID(c) != "u9" || Username(c) != "zed" {
		t.Fatalf("SetUser not visible: %q %q", UserID(c), Username(c))
	}
}

package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

type lookupCall struct {
	userID, scope, key string
}

func newIdemRouter(lookup IdempotencyLookup, opts IdempotencyOptions, user string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if user != "" {
			SetUser(c, user, "")
		}
		c.Next()
	})
	r.Use(IdempotencyValidator(opts, lookup))
	h := func(c *gin.Context) {
		key, _ := GetIdempotencyKey(c)
		c.JSON(http.StatusOK, gin.H{
			"key":    key,
			"replay": IsReplay(c),
			"bypass": IsRateBypass(c),
		})
	}
	r.POST("/posts/:id/comments", h)
	r.GET("/posts", h)
	return r
}

func TestIdempotencyValidator_NoHeaderOrNotPost(t *testing.T) {
	called := false
	lookup := func(context.Context, string, string, string, time.Time) (bool, error) {
		called = true
		return true, nil
	}
	r := newIdemRouter(lookup, IdempotencyOptions{}, "u1")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/posts/p1/comments", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"key":""`) {
		t.Fatalf("no header -> %d %s", w.Code, w.Body.String())
	}

	req := httptest.NewRequest(http.MethodGet, "/posts", nil)
	req.Header.Set(HeaderIdempotencyKey, "k1")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if !strings.Contains(w.Body.String(), `"key":""`) {
		t.Fatalf("GET should ignore the key: %s", w.Body.String())
	}
	if called {
		t.Fatal("lookup must not run without a POST key")
	}
}

func TestIdempotencyValidator_RejectsMalformedKeys(t *testing.T) {
	r := newIdemRouter(nil, IdempotencyOptions{MaxLen: 8, Pattern: regexp.MustCompile(`^[a-z0-9]+$`)}, "u1")
	for _, key := range []string{"toolongkey", "UPPER", "sp ace"} {
		req := httptest.NewRequest(http.MethodPost, "/posts/p1/comments", nil)
		req.Header.Set(HeaderIdempotencyKey, key)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), "bad_idempotency_key") {
			t.Fatalf("key %q -> %d %s", key, w.Code, w.Body.String())
		}
	}
}

func TestIdempotencyValidator_ReplayUsesUserAndPathScope(t *testing.T) {
	var calls []lookupCall
	lookup := func(_ context.Context, userID, scope, key string, now time.Time) (bool, error) {
		if now.IsZero() {
			t.Error("lookup got zero time")
		}
		calls = append(calls, lookupCall{userID, scope, key})
		return key == "seen", nil
	}
	r := newIdemRouter(lookup, IdempotencyOptions{}, "u1")

	req := httptest.NewRequest(http.MethodPost, "/posts/p1/comments", nil)
	req.Header.Set(HeaderIdempotencyKey, "seen")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if !strings.Contains(w.Body.String(), `"replay":true`) || !strings.Contains(w.Body.String(), `"bypass":true`) {
		t.Fatalf("replay flags missing: %s", w.Body.String())
	}

	req = httptest.NewRequest(http.MethodPost, "/posts/p1/comments", nil)
	req.Header.Set(HeaderIdempotencyKey, "fresh")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if !strings.Contains(w.Body.String(), `"key":"fresh"`) || !strings.Contains(w.Body.String(), `"replay":false`) {
		t.Fatalf("fresh key: %s", w.Body.String())
	}

	want := lookupCall{"u1", "/posts/p1/comments", "seen"}
	if len(calls) != 2 || calls[0] != want {
		t.Fatalf("calls = %+v", calls)
	}
}

func TestIdempotencyValidator_AnonymousSkipsLookup(t *testing.T) {
	called := false
	lookup := func(context.Context, string, string, string, time.Time) (bool, error) {
		called = true
		return true, nil
	}
	r := newIdemRouter(lookup, IdempotencyOptions{}, "")
	req := httptest.NewRequest(http.MethodPost, "/posts/p1/comments", nil)
	req.Header.Set(HeaderIdempotencyKey, "k")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if called || !strings.Contains(w.Body.String(), `"key":"k"`) {
		t.Fatalf("anonymous: called=%v body=%s", called, w.Body.String())
	}
}

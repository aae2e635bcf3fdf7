package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestKeyByUserOrIP(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.RemoteAddr = "203.0.113.7:1234"

	fn := KeyByUserOrIP()
	if got := fn(c); got != "ip:203.0.113.7" {
		t.Fatalf("anonymous key = %q", got)
	}
	SetUser(c, "u1", "alice")
	if got := fn(c); got != "user:u1" {
		t.Fatalf("user key = %q", got)
	}
}

func TestRateLimiter_BlocksAfterBurst(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl := NewRateLimiter(0.001, 2, KeyByUserOrIP())
	r := gin.New()
	r.Use(rl.Handler())
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	base := testutil.ToFloat64(rateLimited.WithLabelValues("ip"))
	codes := make([]int, 3)
	for i := range codes {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
		codes[i] = w.Code
		if w.Code == http.StatusTooManyRequests && w.Header().Get("Retry-After") != "1" {
			t.Fatalf("missing Retry-After")
		}
	}
	if codes[0] != 204 || codes[1] != 204 || codes[2] != 429 {
		t.Fatalf("codes = %v", codes)
	}
	if got := testutil.ToFloat64(rateLimited.WithLabelValues("ip")); got != base+1 {
		t.Fatalf("rate_limited counter = %v; want %v", got, base+1)
	}
}

func TestRateLimiter_BypassOnReplay(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl := NewRateLimiter(0.001, 1, KeyByUserOrIP())
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if c.GetHeader("X-Replay") == "1" {
			c.Set(ctxKeyRateBypass, true)
		}
		c.Next()
	})
	r.Use(rl.Handler())
	r.POST("/x", func(c *gin.Context) { c.Status(http.StatusCreated) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/x", nil))
	if w.Code != http.StatusCreated {
		t.Fatalf("first -> %d", w.Code)
	}
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/x", nil)
		req.Header.Set("X-Replay", "1")
		w = httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusCreated {
			t.Fatalf("replay %d -> %d", i, w.Code)
		}
	}
}

func TestRateLimiter_EvictsIdleBuckets(t *testing.T) {
	rl := NewRateLimiter(1, 1, KeyByUserOrIP())
	rl.ttl = 0
	rl.getVisitor("a")
	rl.cleanupN = 4999
	rl.getVisitor("b")
	if rl.Len() != 1 {
		t.Fatalf("buckets = %d; want only the fresh one", rl.Len())
	}
	if NewRateLimiter(1, 0, nil).burst != 1 {
		t.Fatal("burst should be coerced to 1")
	}
}

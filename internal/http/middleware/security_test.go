package middleware

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func serveSecurity(t *testing.T, opt SecurityOptions, mutate func(*http.Request), pre ...gin.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(pre...)
	r.Use(SecurityHeaders(opt))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	if mutate != nil {
		mutate(req)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestSecurityHeaders_Baseline(t *testing.T) {
	w := serveSecurity(t, SecurityOptions{}, nil, RequestID())
	want := map[string]string{
		"X-Content-Type-Options":        "nosniff",
		"X-Frame-Options":               "DENY",
		"Referrer-Policy":               "no-referrer",
		"Cross-Origin-Resource-Policy":  "same-site",
		"Access-Control-Expose-Headers": requestIDHeader,
	}
	for k, v := range want {
		if got := w.Header().Get(k); got != v {
			t.Errorf("%s = %q; want %q", k, got, v)
		}
	}
	for _, k := range []string{"Strict-Transport-Security", "Permissions-Policy", "Cache-Control"} {
		if w.Header().Get(k) != "" {
			t.Errorf("%s should be unset", k)
		}
	}
}

func TestSecurityHeaders_ExposeAppends(t *testing.T) {
	pre := func(c *gin.Context) {
		c.Header("Access-Control-Expose-Headers", "ETag")
		c.Next()
	}
	w := serveSecurity(t, SecurityOptions{}, nil, RequestID(), pre)
	if got := w.Header().Get("Access-Control-Expose-Headers"); got != "ETag, "+requestIDHeader {
		t.Fatalf("expose = %q", got)
	}
}

func TestSecurityHeaders_PolicyNoStoreHSTS(t *testing.T) {
	opt := SecurityOptions{EnableHSTS: true, HSTSMaxAge: time.Hour, NoStore: true, EnablePolicy: true}
	w := serveSecurity(t, opt, func(r *http.Request) { r.TLS = &tls.ConnectionState{} })
	if got := w.Header().Get("Strict-Transport-Security"); got != "max-age=3600; includeSubDomains; preload" {
		t.Fatalf("hsts = %q", got)
	}
	if w.Header().Get("Cache-Control") != "no-store" || w.Header().Get("Pragma") != "no-cache" {
		t.Fatalf("no-store headers missing: %v", w.Header())
	}
	if !strings.Contains(w.Header().Get("Permissions-Policy"), "camera=()") {
		t.Fatalf("policy = %q", w.Header().Get("Permissions-Policy"))
	}

	// plain HTTP never gets HSTS
	w = serveSecurity(t, opt, nil)
	if w.Header().Get("Strict-Transport-Security") != "" {
		t.Fatal("hsts on plain http")
	}
}

func TestSecurityHeaders_PrivateNoStoreForUsers(t *testing.T) {
	opt := SecurityOptions{PrivateNoStore: true}
	w := serveSecurity(t, opt, nil)
	if w.Header().Get("Cache-Control") != "" {
		t.Fatal("anonymous response should stay cacheable")
	}
	login := func(c *gin.Context) {
		SetUser(c, "u1", "alice")
		c.Next()
	}
	w = serveSecurity(t, opt, nil, login)
	if got := w.Header().Get("Cache-Control"); got != "private, no-store" {
		t.Fatalf("cache-control = %q", got)
	}
}

func TestIsHTTPS(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if isHTTPS(req) {
		t.Fatal("plain request reported https")
	}
	req.Header.Set("X-Forwarded-Proto", "HTTPS")
	if !isHTTPS(req) {
		t.Fatal("forwarded proto ignored")
	}
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.TLS = &tls.ConnectionState{}
	if !isHTTPS(req) {
		t.Fatal("tls ignored")
	}
}

package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestRedactPII(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"", ""},
		{"mail bob@example.com now", "mail [REDACTED:email] now"},
		{"id 123e4567-e89b-42d3-a456-426614174000", "id [REDACTED:id]"},
		{"call 555-123-4567", "call [REDACTED:phone]"},
		{"nothing here", "nothing here"},
	}
	for _, tc := range cases {
		if got := redactPII(tc.in); got != tc.want {
			t.Errorf("redactPII(%q) = %q; want %q", tc.in, got, tc.want)
		}
	}
}

func TestRedactQuery_MasksCredentials(t *testing.T) {
	mask := lowerSet([]string{"token"}, []string{" Secret "})
	got := redactQuery("token=abc&SECRET=x&q=bob@example.com&limit=5", mask)
	for _, leaked := range []string{"abc", "=x", "bob@example.com"} {
		if strings.Contains(got, leaked) {
			t.Fatalf("query %q leaked %q", got, leaked)
		}
	}
	if !strings.Contains(got, "limit=5") {
		t.Fatalf("query %q lost plain param", got)
	}
	if redactQuery("", mask) != "" {
		t.Fatal("empty query changed")
	}
}

func TestRedactingLogger_InfoAndRedactions(t *testing.T) {
	buf := captureLogger(t)
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(), RedactingLogger(RedactOptions{MaskHeaders: []string{"X-Api-Key"}}))
	r.GET("/api/v1/realtime", func(c *gin.Context) {
		LoggerFrom(c).Debug().Msg("attached")
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/realtime?token=secret-token&q=bob@example.com", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	req.Header.Set("X-Api-Key", "k-123")
	req.Header.Set("X-Contact", "alice@example.com")
	r.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	for _, leaked := range []string{"secret-token", "k-123", "alice@example.com", "bob@example.com"} {
		if strings.Contains(out, leaked) {
			t.Fatalf("log leaked %q: %s", leaked, out)
		}
	}
	m := lastLine(t, buf)
	if m["message"] != "http_request" || m["level"] != "info" || m["route"] != "/api/v1/realtime" {
		t.Fatalf("log = %v", m)
	}
	headers, _ := m["headers"].(map[string]any)
	if headers["Authorization"] != "[REDACTED]" || headers["X-Contact"] != "[REDACTED:email]" {
		t.Fatalf("headers = %v", headers)
	}
}

func TestRedactingLogger_WarnAndErrorLevels(t *testing.T) {
	buf := captureLogger(t)
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RedactingLogger(RedactOptions{}))
	r.GET("/bad", func(c *gin.Context) { c.Status(http.StatusNotFound) })
	r.GET("/boom", func(c *gin.Context) { c.Status(http.StatusBadGateway) })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/bad", nil))
	if m := lastLine(t, buf); m["level"] != "warn" {
		t.Fatalf("4xx level = %v", m["level"])
	}
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/boom", nil))
	if m := lastLine(t, buf); m["level"] != "error" || m["status"] != float64(http.StatusBadGateway) {
		t.Fatalf("5xx log = %v", m)
	}
}

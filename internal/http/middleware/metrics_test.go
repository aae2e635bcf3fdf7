package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_CountersHistogramsAndUnmatched(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Metrics())
	r.GET("/posts/:id", func(c *gin.Context) {
		if got := testutil.ToFloat64(httpInflight); got < 1 {
			t.Errorf("inflight = %v during request", got)
		}
		c.String(http.StatusOK, "hello")
	})

	okBefore := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/posts/:id", "200"))
	missBefore := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "unmatched", "404"))

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/posts/1", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/posts/2", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope/abc", nil))

	if got := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/posts/:id", "200")); got != okBefore+2 {
		t.Fatalf("route counter = %v; want %v", got, okBefore+2)
	}
	if got := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "unmatched", "404")); got != missBefore+1 {
		t.Fatalf("unmatched counter = %v; want %v", got, missBefore+1)
	}
	if got := testutil.ToFloat64(httpInflight); got != 0 {
		t.Fatalf("inflight after = %v", got)
	}
	if n := testutil.CollectAndCount(httpLat); n == 0 {
		t.Fatal("latency histogram has no series")
	}
	if n := testutil.CollectAndCount(httpRespSize); n == 0 {
		t.Fatal("size histogram has no series")
	}
}

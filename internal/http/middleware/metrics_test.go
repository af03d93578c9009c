package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_CountsRoutesAndFoldsUnmatched(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(Metrics("/metrics"))
	r.GET("/orders/:id/status", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/empty", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/metrics", func(c *gin.Context) { c.String(http.StatusOK, "# metrics") })

	baseOK := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/orders/:id/status", "200"))
	base404 := testutil.ToFloat64(httpReqs.WithLabelValues("GET", unmatchedPath, "404"))
	baseEmpty := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/empty", "204"))
	baseSkipped := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/metrics", "200"))

	for _, p := range []string{"/orders/1001/status", "/orders/1002/status", "/nope/a", "/nope/b", "/empty", "/metrics"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, p, nil))
	}

	if got := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/orders/:id/status", "200")); got != baseOK+2 {
		t.Fatalf("route counter = %v; want %v", got, baseOK+2)
	}
	if got := testutil.ToFloat64(httpReqs.WithLabelValues("GET", unmatchedPath, "404")); got != base404+2 {
		t.Fatalf("unmatched counter = %v; want %v", got, base404+2)
	}
	if got := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/empty", "204")); got != baseEmpty+1 {
		t.Fatalf("empty counter = %v; want %v", got, baseEmpty+1)
	}
	if got := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/metrics", "200")); got != baseSkipped {
		t.Fatalf("skipped route was recorded: %v", got)
	}
	if inFlight := testutil.ToFloat64(httpInflight); inFlight != 0 {
		t.Fatalf("httpInflight = %v; want 0", inFlight)
	}
}

package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMiddleware_CountsByRouteAndStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware())
	r.GET("/v1/calls/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	base := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/v1/calls/:id", "200"))
	base404 := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/nope", "404"))

	for _, p := range []string{"/v1/calls/1", "/v1/calls/2", "/nope"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, p, nil))
	}

	if got := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/v1/calls/:id", "200")); got != base+2 {
		t.Fatalf("route counter = %v, want %v", got, base+2)
	}
	if got := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/nope", "404")); got != base404+1 {
		t.Fatalf("fallback counter = %v, want %v", got, base404+1)
	}
	if got := testutil.ToFloat64(httpInflight); got != 0 {
		t.Fatalf("inflight = %v, want 0", got)
	}
}

func TestJobs_Lifecycle(t *testing.T) {
	var m Jobs
	baseQueued := testutil.ToFloat64(jobsQueued)
	baseFailed := testutil.ToFloat64(jobsFinished.WithLabelValues("failed"))

	m.Enqueued()
	if got := testutil.ToFloat64(jobsQueued); got != baseQueued+1 {
		t.Fatalf("queued = %v, want %v", got, baseQueued+1)
	}
	m.Started()
	m.Finished("failed", time.Second)

	if got := testutil.ToFloat64(jobsQueued); got != baseQueued {
		t.Fatalf("queued = %v, want %v", got, baseQueued)
	}
	if got := testutil.ToFloat64(jobsFinished.WithLabelValues("failed")); got != baseFailed+1 {
		t.Fatalf("failed = %v, want %v", got, baseFailed+1)
	}
}

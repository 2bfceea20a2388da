package httpapi

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"oracleflow/internal/apierr"
	"oracleflow/internal/ratelimit"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestWriteErrorRendersAPIError(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	writeError(c, apierr.NotFound("missing"))

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestWriteErrorWrapsUnknownErrors(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	writeError(c, errors.New("boom"))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected an unknown error to map to 500, got %d", w.Code)
	}
}

func TestRateLimitMiddlewareAllowsThenRejects(t *testing.T) {
	limiter := ratelimit.New(map[ratelimit.RouteClass]ratelimit.Limits{
		ratelimit.ClassPublic: {RPS: 1, Burst: 1},
	})
	s := &Server{limiter: limiter}
	mw := s.rateLimitMiddleware(ratelimit.ClassPublic)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"

	w1 := httptest.NewRecorder()
	c1, _ := gin.CreateTestContext(w1)
	c1.Request = req
	mw(c1)
	if c1.IsAborted() {
		t.Fatalf("expected the first request to pass")
	}

	w2 := httptest.NewRecorder()
	c2, _ := gin.CreateTestContext(w2)
	c2.Request = req
	mw(c2)
	if !c2.IsAborted() {
		t.Fatalf("expected the second request over budget to be aborted")
	}
	if w2.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w2.Code)
	}
}

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func newEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

func TestRequestID_GeneratedWhenMissing(t *testing.T) {
	r := newEngine()
	r.Use(RequestID())
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

	if w.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected a generated request ID on the response")
	}
}

func TestRequestID_EchoesIncoming(t *testing.T) {
	r := newEngine()
	r.Use(RequestID())

	var inCtx string
	r.GET("/x", func(c *gin.Context) {
		v, _ := c.Get("requestID")
		inCtx, _ = v.(string)
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Request-ID", "rid-1")
	r.ServeHTTP(w, req)

	if w.Header().Get("X-Request-ID") != "rid-1" || inCtx != "rid-1" {
		t.Fatalf("request ID not propagated: header=%q ctx=%q", w.Header().Get("X-Request-ID"), inCtx)
	}
}

func TestRecovery_AnswersJSON500(t *testing.T) {
	r := newEngine()
	r.Use(RequestID(), Recovery())
	r.GET("/panic", func(c *gin.Context) { panic("kaboom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d; want 500", w.Code)
	}
	if w.Body.Len() == 0 {
		t.Fatal("expected a JSON error body")
	}
}

func TestMetrics_DoesNotBreakRequests(t *testing.T) {
	r := newEngine()
	r.Use(Metrics())
	r.GET("/x", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	if w.Code != http.StatusOK || w.Body.String() != "ok" {
		t.Fatalf("unexpected response: %d %q", w.Code, w.Body.String())
	}
}

func TestAsString(t *testing.T) {
	if asString("a") != "a" || asString(1) != "" || asString(nil) != "" {
		t.Fatal("asString conversions")
	}
}

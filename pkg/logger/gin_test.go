package logger

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestMiddleware_SetsRequestIDAndLogs(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var buf bytes.Buffer
	r := gin.New()
	r.Use(Middleware(NewWithWriter(&buf, "production"), "/api/health"))
	r.GET("/x", func(c *gin.Context) {
		if From(c.Request.Context()) == nil {
			t.Fatalf("expected context logger")
		}
		c.Status(http.StatusOK)
	})
	r.GET("/api/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	if w.Header().Get(HeaderRequestID) == "" {
		t.Fatalf("expected request id header")
	}
	if !strings.Contains(buf.String(), `"path":"/x"`) {
		t.Fatalf("expected request summary, got %s", buf.String())
	}

	buf.Reset()
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if buf.Len() != 0 {
		t.Fatalf("expected quiet path, got %s", buf.String())
	}
}

func TestMiddleware_KeepsIncomingRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(Middleware(Discard()))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(HeaderRequestID, "rid-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get(HeaderRequestID); got != "rid-1" {
		t.Fatalf("expected rid-1, got %q", got)
	}
}

package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestRequireAccessToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := newTestManager(t)
	pair, _ := m.IssuePair(time.Now(), "u1", "doctor")

	r := gin.New()
	r.GET("/h", RequireAccessToken(m), func(c *gin.Context) {
		role, _ := Role(c.Request.Context())
		c.String(http.StatusOK, role)
	})
	r.GET("/q", RequireAccessToken(m, AllowQueryToken()), func(c *gin.Context) {
		uid, _ := UserID(c.Request.Context())
		c.String(http.StatusOK, uid)
	})

	cases := []struct {
		name   string
		target string
		header string
		want   int
	}{
		{"missing", "/h", "", http.StatusUnauthorized},
		{"bearer", "/h", "Bearer " + pair.AccessToken, http.StatusOK},
		{"refresh token", "/h", "Bearer " + pair.RefreshToken, http.StatusUnauthorized},
		{"query not allowed", "/h?access_token=" + pair.AccessToken, "", http.StatusUnauthorized},
		{"query allowed", "/q?access_token=" + pair.AccessToken, "", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, tc.target, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			r.ServeHTTP(w, req)
			if w.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, w.Code)
			}
		})
	}
}

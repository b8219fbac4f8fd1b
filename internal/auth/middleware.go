package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const authorizationHeader = "Authorization"
const bearerPrefix = "Bearer "

// QueryTokenParam carries the access token for clients that cannot set headers,
// i.e. browser WebSocket connections.
const QueryTokenParam = "access_token"

type MiddlewareOption func(*middlewareOptions)

type middlewareOptions struct {
	allowQuery bool
}

// AllowQueryToken accepts ?access_token= when no Authorization header is present.
func AllowQueryToken() MiddlewareOption {
	return func(o *middlewareOptions) { o.allowQuery = true }
}

// RequireAccessToken verifies an access token and injects identity into request context.
// It does not perform RBAC checks; those belong to internal/rbac.
func RequireAccessToken(m *Manager, opts ...MiddlewareOption) gin.HandlerFunc {
	var o middlewareOptions
	for _, opt := range opts {
		opt(&o)
	}

	return func(c *gin.Context) {
		tok := bearerToken(c.GetHeader(authorizationHeader))
		if tok == "" && o.allowQuery {
			tok = strings.TrimSpace(c.Query(QueryTokenParam))
		}
		if tok == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		claims, err := m.Verify(tok, TokenTypeAccess, time.Now())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		ctx := WithIdentity(c.Request.Context(), claims.UserID, claims.Role)
		c.Request = c.Request.WithContext(ctx)

		// Also store on gin context for handler convenience.
		c.Set("user_id", claims.UserID)
		c.Set("role", claims.Role)

		c.Next()
	}
}

func bearerToken(raw string) string {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(raw, bearerPrefix))
}

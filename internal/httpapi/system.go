package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/shzded/MediCall-AI/internal/audit"
	"github.com/shzded/MediCall-AI/pkg/logger"
)

// Health is public and cheap; it is polled by load balancers.
func (h Handlers) Health(c *gin.Context) {
	body := gin.H{"status": "ok"}
	if h.Queue != nil {
		body["enrichment_queue"] = h.Queue()
	}
	if h.Hub != nil {
		body["live_clients"] = h.Hub.Clients()
	}
	if h.Ready != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.Ready(ctx); err != nil {
			logger.FromGin(c).Warn("health check failed", "err", err)
			body["status"] = "degraded"
			c.JSON(http.StatusServiceUnavailable, body)
			return
		}
	}
	c.JSON(http.StatusOK, body)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Refresh exchanges a refresh token for a new token pair.
func (h Handlers) Refresh(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "refresh_token required"})
		return
	}
	pair, claims, err := h.Auth.Refresh(req.RefreshToken, time.Now())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	if h.Audit != nil {
		if err := h.Audit.LogAuth(c.Request.Context(), audit.EventTypeTokenRefreshed, claims.UserID, claims.Role, c.ClientIP()); err != nil {
			logger.FromGin(c).Warn("audit append failed", "err", err)
		}
	}
	c.JSON(http.StatusOK, pair)
}

// Live upgrades to a websocket that streams call change events.
func (h Handlers) Live(c *gin.Context) {
	if h.Hub == nil {
		c.AbortWithStatusJSON(http.StatusNotImplemented, gin.H{"error": "live updates not configured"})
		return
	}
	h.Hub.ServeWS(c.Writer, c.Request)
}

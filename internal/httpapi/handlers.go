package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/shzded/MediCall-AI/internal/audit"
	"github.com/shzded/MediCall-AI/internal/auth"
	"github.com/shzded/MediCall-AI/internal/calls"
	"github.com/shzded/MediCall-AI/internal/enrichment"
	"github.com/shzded/MediCall-AI/internal/notify"
	"github.com/shzded/MediCall-AI/internal/reporting"
	"github.com/shzded/MediCall-AI/internal/stats"
	"github.com/shzded/MediCall-AI/pkg/logger"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Auth    *auth.Manager
	Audit   *audit.Service
	Calls   *calls.Service
	Stats   *stats.Engine
	Reports *reporting.Service
	Hub     *notify.Hub

	// Ready reports whether storage is reachable; nil means always ready.
	Ready func(ctx context.Context) error
	// Queue exposes the enrichment pool on the health endpoint when set.
	Queue func() enrichment.DispatcherStats
}

// actor identifies the caller from the access token for audit records.
func actor(c *gin.Context) calls.Actor {
	uid, _ := auth.UserID(c.Request.Context())
	role, _ := auth.Role(c.Request.Context())
	return calls.Actor{UserID: uid, Role: role, IP: c.ClientIP()}
}

func callID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid call id"})
		return 0, false
	}
	return id, true
}

// queryInt reads an optional integer query parameter.
func queryInt(c *gin.Context, key string, def int) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": key + " must be an integer"})
		return 0, false
	}
	return n, true
}

func writeCallError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, calls.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call not found"})
	case errors.Is(err, calls.ErrInvalidArgument):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		logger.FromGin(c).Error("call operation failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func writeStatsError(c *gin.Context, err error) {
	if errors.Is(err, stats.ErrInvalidRequest) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	logger.FromGin(c).Error("stats query failed", "err", err)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

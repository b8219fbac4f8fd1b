package httpapi

import (
	"bytes"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/shzded/MediCall-AI/internal/reporting"
	"github.com/shzded/MediCall-AI/internal/stats"
	"github.com/shzded/MediCall-AI/pkg/logger"
)

func (h Handlers) StatsSummary(c *gin.Context) {
	s, err := h.Stats.Summary(c.Request.Context())
	if err != nil {
		writeStatsError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h Handlers) StatsDaily(c *gin.Context) {
	days, ok := queryInt(c, "days", stats.DefaultHistogramDays)
	if !ok {
		return
	}
	out, err := h.Stats.DailyHistogram(c.Request.Context(), days)
	if err != nil {
		writeStatsError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) StatsUrgency(c *gin.Context) {
	out, err := h.Stats.UrgencyBreakdown(c.Request.Context())
	if err != nil {
		writeStatsError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) StatsSymptoms(c *gin.Context) {
	limit, ok := queryInt(c, "limit", stats.DefaultSymptomLimit)
	if !ok {
		return
	}
	out, err := h.Stats.TopSymptoms(c.Request.Context(), limit)
	if err != nil {
		writeStatsError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// ExportXLSX renders the practice report as a workbook download.
func (h Handlers) ExportXLSX(c *gin.Context) {
	if h.Reports == nil {
		c.AbortWithStatusJSON(http.StatusNotImplemented, gin.H{"error": "reports not configured"})
		return
	}
	r, err := h.Reports.Build(c.Request.Context())
	if err != nil {
		writeStatsError(c, err)
		return
	}

	// Render fully before writing so a failure still yields a clean 500.
	var buf bytes.Buffer
	if err := reporting.WriteXLSX(&buf, r); err != nil {
		logger.FromGin(c).Error("report render failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "report failed"})
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+r.Filename()+`"`)
	c.Data(http.StatusOK, reporting.ContentTypeXLSX, buf.Bytes())
}

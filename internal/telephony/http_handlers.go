package telephony

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/shzded/MediCall-AI/internal/enrichment"
	"github.com/shzded/MediCall-AI/pkg/logger"
)

// RecordingCompletePath is where Twilio posts finished recordings.
const RecordingCompletePath = "/api/twilio/recording-complete"

// Intaker persists a finished call and schedules its enrichment.
type Intaker interface {
	Intake(ctx context.Context, ev enrichment.IntakeEvent) (int64, error)
}

// TwilioWebhookHandler converts Twilio webhooks to intake events and writes the
// responses Twilio expects. No business logic here.
type TwilioWebhookHandler struct {
	Intake Intaker

	// PublicBaseURL is the externally reachable origin used in the recording callback.
	// When empty it is derived from the request.
	PublicBaseURL string
}

// HandleVoice answers the call-started webhook with the greeting and record script.
func (h TwilioWebhookHandler) HandleVoice(c *gin.Context) {
	log := logger.FromGin(c)

	form, err := ParseTwilioInboundCall(c.Request)
	if err != nil {
		log.Warn("twilio webhook parse failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
		return
	}

	twiml, err := RenderVoiceGreeting(h.baseURL(c) + RecordingCompletePath)
	if err != nil {
		log.Error("twiml render failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "twiml failed"})
		return
	}
	log.Info("inbound call", "call_sid", form.CallSid, "status", form.CallStatus)

	c.Header("Content-Type", "application/xml")
	c.String(http.StatusOK, twiml)
}

// HandleRecordingComplete creates the provisional record and acknowledges with its id.
// It returns before any enrichment work starts.
func (h TwilioWebhookHandler) HandleRecordingComplete(c *gin.Context) {
	log := logger.FromGin(c)
	if h.Intake == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "intake not configured"})
		return
	}

	form, err := ParseRecordingComplete(c.Request)
	if err != nil {
		log.Warn("twilio webhook parse failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
		return
	}

	id, err := h.Intake.Intake(c.Request.Context(), enrichment.IntakeEvent{
		ExternalCallID:  form.CallSid,
		From:            form.From,
		RecordingURL:    form.RecordingURL,
		DurationSeconds: form.RecordingDuration,
	})
	if err != nil {
		log.Error("call intake failed", "call_sid", form.CallSid, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "intake failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "call_id": id})
}

func (h TwilioWebhookHandler) baseURL(c *gin.Context) string {
	return requestBaseURL(c, h.PublicBaseURL)
}

func requestBaseURL(c *gin.Context, public string) string {
	if public != "" {
		return strings.TrimRight(public, "/")
	}
	scheme := "http"
	if c.Request.TLS != nil || strings.EqualFold(c.GetHeader("X-Forwarded-Proto"), "https") {
		scheme = "https"
	}
	return scheme + "://" + c.Request.Host
}

package main

import (
	"github.com/gin-gonic/gin"

	"github.com/shzded/MediCall-AI/internal/auth"
	"github.com/shzded/MediCall-AI/internal/httpapi"
	"github.com/shzded/MediCall-AI/internal/rbac"
	"github.com/shzded/MediCall-AI/internal/telephony"
)

type routeDeps struct {
	handlers      httpapi.Handlers
	twilio        telephony.TwilioWebhookHandler
	authManager   *auth.Manager
	twilioToken   string
	publicBaseURL string
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, d routeDeps) {
	h := d.handlers

	// public
	r.GET("/api/health", h.Health)
	r.POST("/api/auth/refresh", h.Refresh)

	// Provider webhooks, signed by Twilio.
	tw := r.Group("/api/twilio")
	tw.Use(telephony.SignatureMiddleware(d.twilioToken, d.publicBaseURL))
	{
		tw.POST("/voice", d.twilio.HandleVoice)
		tw.POST("/recording-complete", d.twilio.HandleRecordingComplete)
	}

	// Browsers cannot set headers on websocket upgrades.
	r.GET("/api/ws",
		auth.RequireAccessToken(d.authManager, auth.AllowQueryToken()),
		rbac.RequireAnyRole(rbac.StaffRoles...),
		h.Live,
	)

	// protected API group
	api := r.Group("/api")
	api.Use(auth.RequireAccessToken(d.authManager))
	api.Use(rbac.RequireAnyRole(rbac.StaffRoles...))
	{
		callsGroup := api.Group("/calls")
		callsGroup.GET("", h.ListCalls)
		callsGroup.GET("/:id", h.GetCall)
		callsGroup.PATCH("/:id/status", h.ToggleStatus)
		callsGroup.PATCH("/:id/notes", h.UpdateNotes)
		callsGroup.PATCH("/:id/callback", h.MarkCallback)

		// Deleting patient calls and reading their audit trail is for doctors; admin bypasses.
		callsGroup.DELETE("/:id", rbac.RequireAnyRole(rbac.RoleDoctor), h.DeleteCall)
		callsGroup.GET("/:id/audit", rbac.RequireAnyRole(rbac.RoleDoctor), h.CallHistory)

		statsGroup := api.Group("/stats")
		statsGroup.GET("", h.StatsSummary)
		statsGroup.GET("/daily", h.StatsDaily)
		statsGroup.GET("/urgency", h.StatsUrgency)
		statsGroup.GET("/symptoms", h.StatsSymptoms)
		statsGroup.GET("/export/xlsx", h.ExportXLSX)
	}
}

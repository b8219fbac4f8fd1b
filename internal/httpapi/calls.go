package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/shzded/MediCall-AI/internal/audit"
	"github.com/shzded/MediCall-AI/internal/calls"
)

// ListCalls serves GET /api/calls.
func (h Handlers) ListCalls(c *gin.Context) {
	skip, ok := queryInt(c, "skip", 0)
	if !ok {
		return
	}
	limit, ok := queryInt(c, "limit", calls.DefaultPageSize)
	if !ok {
		return
	}

	f := calls.ListFilter{
		Search: c.Query("search"),
		Skip:   skip,
		Limit:  limit,
		Sort:   c.Query("sort"),
		Order:  c.DefaultQuery("order", "desc"),
	}
	if v := c.Query("status"); v != "" {
		st, err := calls.ParseStatus(v)
		if err != nil {
			writeCallError(c, err)
			return
		}
		f.Status = st
	}
	if v := c.Query("urgency"); v != "" {
		u, err := calls.ParseUrgency(v)
		if err != nil {
			writeCallError(c, err)
			return
		}
		f.Urgency = u
	}

	page, err := h.Calls.List(c.Request.Context(), f)
	if err != nil {
		writeCallError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h Handlers) GetCall(c *gin.Context) {
	id, ok := callID(c)
	if !ok {
		return
	}
	rec, err := h.Calls.Get(c.Request.Context(), id)
	if err != nil {
		writeCallError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// ToggleStatus flips a call between read and unread.
func (h Handlers) ToggleStatus(c *gin.Context) {
	id, ok := callID(c)
	if !ok {
		return
	}
	rec, err := h.Calls.ToggleStatus(c.Request.Context(), actor(c), id)
	if err != nil {
		writeCallError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

type notesRequest struct {
	Notes *string `json:"notes"`
}

func (h Handlers) UpdateNotes(c *gin.Context) {
	id, ok := callID(c)
	if !ok {
		return
	}
	var req notesRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Notes == nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "notes required"})
		return
	}
	rec, err := h.Calls.SetNotes(c.Request.Context(), actor(c), id, *req.Notes)
	if err != nil {
		writeCallError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h Handlers) MarkCallback(c *gin.Context) {
	id, ok := callID(c)
	if !ok {
		return
	}
	rec, err := h.Calls.MarkCallbackCompleted(c.Request.Context(), actor(c), id)
	if err != nil {
		writeCallError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// DeleteCall removes a call. RBAC: doctor or admin.
func (h Handlers) DeleteCall(c *gin.Context) {
	id, ok := callID(c)
	if !ok {
		return
	}
	if err := h.Calls.Delete(c.Request.Context(), actor(c), id); err != nil {
		writeCallError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// CallHistory lists the audit trail of one call, newest first.
func (h Handlers) CallHistory(c *gin.Context) {
	if h.Audit == nil {
		c.AbortWithStatusJSON(http.StatusNotImplemented, gin.H{"error": "audit not configured"})
		return
	}
	id, ok := callID(c)
	if !ok {
		return
	}
	limit, ok := queryInt(c, "limit", 100)
	if !ok {
		return
	}
	evs, err := h.Audit.History(c.Request.Context(), id, limit)
	if err != nil {
		writeCallError(c, err)
		return
	}
	if evs == nil {
		evs = []audit.Event{}
	}
	c.JSON(http.StatusOK, gin.H{"events": evs})
}

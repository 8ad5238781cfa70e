package handlers

import (
	"log/slog"
	"net/http"

	"lifecycle-service/internal/auth"
	"lifecycle-service/internal/prefs"
	"lifecycle-service/pkg/ctxmanage"
	"lifecycle-service/pkg/logkey"

	"github.com/gin-gonic/gin"
)

func (h *Handler) GetPreferences(c *gin.Context) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)
	claims, ok := c.Request.Context().Value(auth.ClaimsKey).(auth.Claims)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": http.StatusUnauthorized})
		return
	}

	p, err := h.n.GetOrCreateDefault(c.Request.Context(), claims.Subject)
	if err != nil {
		slog.Error("error fetching preferences", slog.String(logkey.TraceID, traceId), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch preferences"})
		return
	}

	c.JSON(http.StatusOK, p)
}

// UpdatePreferences merges only the fields present in the request body;
// everything omitted keeps its stored value.
func (h *Handler) UpdatePreferences(c *gin.Context) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)
	claims, ok := c.Request.Context().Value(auth.ClaimsKey).(auth.Claims)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": http.StatusUnauthorized})
		return
	}

	var update prefs.Update
	if err := c.ShouldBindJSON(&update); err != nil {
		slog.Error("json validation error", slog.String(logkey.TraceID, traceId), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": http.StatusText(http.StatusBadRequest)})
		return
	}

	p, err := h.n.Apply(c.Request.Context(), claims.Subject, update)
	if err != nil {
		slog.Error("error updating preferences", slog.String(logkey.TraceID, traceId), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to update preferences"})
		return
	}

	c.JSON(http.StatusOK, p)
}

package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"lifecycle-service/internal/payments"
	"lifecycle-service/pkg/logkey"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func (h *Handler) Webhook(c *gin.Context) {
	traceId := uuid.NewString()
	const MaxBodyBytes = int64(65536)

	// Limit the request body size
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxBodyBytes)

	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		slog.Error("failed to read webhook body", slog.String(logkey.TraceID, traceId),
			slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Unable to read request body"})
		return
	}

	sigHeader := c.Request.Header.Get("Stripe-Signature")

	err = h.p.HandleWebhook(c.Request.Context(), payload, sigHeader)
	if err != nil {
		switch {
		case errors.Is(err, payments.ErrInvalidSignature):
			slog.Error("webhook signature verification failed", slog.String(logkey.TraceID, traceId))
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid signature"})
		case errors.Is(err, payments.ErrUnknownPaymentRef):
			slog.Error("webhook references unknown payment", slog.String(logkey.TraceID, traceId),
				slog.String(logkey.ERROR, err.Error()))
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Unknown payment reference"})
		default:
			slog.Error("webhook processing failed", slog.String(logkey.TraceID, traceId),
				slog.String(logkey.ERROR, err.Error()))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Webhook processing failed"})
		}
		return
	}

	c.Status(http.StatusOK)
}

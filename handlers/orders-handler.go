package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"lifecycle-service/internal/auth"
	"lifecycle-service/internal/bus"
	"lifecycle-service/internal/orders"
	"lifecycle-service/internal/payments"
	"lifecycle-service/pkg/ctxmanage"
	"lifecycle-service/pkg/logkey"

	"github.com/gin-gonic/gin"
)

type CheckoutRequest struct {
	ShippingAddress string `json:"shipping_address" validate:"required"`
}

func (h *Handler) Checkout(c *gin.Context) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)
	claims, ok := c.Request.Context().Value(auth.ClaimsKey).(auth.Claims)
	if !ok {
		slog.Error("claims not found", slog.String(logkey.TraceID, traceId))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": http.StatusUnauthorized})
		return
	}

	var req CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.Error("json validation error", slog.String(logkey.TraceID, traceId), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": http.StatusText(http.StatusBadRequest)})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		slog.Error("validation failed", slog.String(logkey.TraceID, traceId), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "shipping_address is required"})
		return
	}

	order, err := h.o.CreateFromCart(c.Request.Context(), claims.Subject, req.ShippingAddress)
	if err != nil {
		var vErr *orders.ValidationError
		switch {
		case errors.Is(err, orders.ErrEmptyCart):
			slog.Error("checkout with empty cart", slog.String(logkey.TraceID, traceId))
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Cart is empty"})
		case errors.As(err, &vErr):
			slog.Error("checkout validation failed", slog.String(logkey.TraceID, traceId), slog.String(logkey.ERROR, vErr.Error()))
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": vErr.Error()})
		default:
			slog.Error("error creating order", slog.String(logkey.TraceID, traceId), slog.String(logkey.ERROR, err.Error()))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to create order"})
		}
		return
	}

	h.b.Publish(bus.OrderCreatedEvent{
		Recipient:   bus.Recipient{UserID: claims.Subject, Email: claims.Email, Name: claims.Name},
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		TotalAmount: order.TotalAmount.StringFixed(2),
		CreatedAt:   time.Now().UTC(),
	})

	slog.Info("order created", slog.String(logkey.TraceID, traceId),
		slog.String(logkey.OrderID, order.ID), slog.String(logkey.OrderNum, order.OrderNumber))
	c.JSON(http.StatusOK, order)
}

func (h *Handler) CreatePayment(c *gin.Context) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)
	claims, ok := c.Request.Context().Value(auth.ClaimsKey).(auth.Claims)
	if !ok {
		slog.Error("claims not found", slog.String(logkey.TraceID, traceId))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": http.StatusUnauthorized})
		return
	}

	orderID := c.Param("id")
	order, err := h.o.GetByID(c.Request.Context(), orderID)
	if err != nil {
		if errors.Is(err, orders.ErrOrderNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Order not found"})
			return
		}
		slog.Error("error fetching order", slog.String(logkey.TraceID, traceId), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch order"})
		return
	}
	if order.UserID != claims.Subject {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
		return
	}

	clientSecret, err := h.p.CreateIntent(c.Request.Context(), orderID)
	if err != nil {
		switch {
		case errors.Is(err, payments.ErrInvalidOrderState):
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "Order is not payable in its current state"})
		case errors.Is(err, orders.ErrPaymentRefAlreadySet):
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "Payment already initiated for this order"})
		default:
			slog.Error("error creating payment intent", slog.String(logkey.TraceID, traceId),
				slog.String(logkey.OrderID, orderID), slog.String(logkey.ERROR, err.Error()))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to create payment intent"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"client_secret": clientSecret})
}

func (h *Handler) GetOrder(c *gin.Context) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)
	claims, ok := c.Request.Context().Value(auth.ClaimsKey).(auth.Claims)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": http.StatusUnauthorized})
		return
	}

	order, err := h.o.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, orders.ErrOrderNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Order not found"})
			return
		}
		slog.Error("error fetching order", slog.String(logkey.TraceID, traceId), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch order"})
		return
	}
	if order.UserID != claims.Subject && !claims.HasRole(auth.RoleAdmin) {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
		return
	}

	c.JSON(http.StatusOK, order)
}

func (h *Handler) ListOrders(c *gin.Context) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)
	claims, ok := c.Request.Context().Value(auth.ClaimsKey).(auth.Claims)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": http.StatusUnauthorized})
		return
	}

	list, err := h.o.ListByUser(c.Request.Context(), claims.Subject)
	if err != nil {
		slog.Error("error listing orders", slog.String(logkey.TraceID, traceId), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to list orders"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"orders": list})
}

type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// UpdateOrderStatus drives the fulfillment edges (processing, shipped,
// cancelled) through the same guarded transition the webhook and the
// scheduler use.
func (h *Handler) UpdateOrderStatus(c *gin.Context) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)
	orderID := c.Param("id")

	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": http.StatusText(http.StatusBadRequest)})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "status is required"})
		return
	}
	if !orders.IsValidStatus(req.Status) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Unknown status"})
		return
	}

	order, changed, err := h.o.Transition(c.Request.Context(), orderID, req.Status)
	if err != nil {
		var invalid *orders.InvalidTransitionError
		switch {
		case errors.Is(err, orders.ErrOrderNotFound):
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Order not found"})
		case errors.As(err, &invalid):
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": invalid.Error()})
		default:
			slog.Error("error updating order status", slog.String(logkey.TraceID, traceId),
				slog.String(logkey.OrderID, orderID), slog.String(logkey.ERROR, err.Error()))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to update order"})
		}
		return
	}

	if changed {
		h.publishStatusEvent(c, order)
	}

	slog.Info("order status updated", slog.String(logkey.TraceID, traceId),
		slog.String(logkey.OrderID, orderID), slog.String(logkey.Status, order.Status))
	c.JSON(http.StatusOK, order)
}

func (h *Handler) publishStatusEvent(c *gin.Context, order orders.Order) {
	contact, err := h.o.GetContact(c.Request.Context(), order.UserID)
	if err != nil {
		slog.Error("resolving order contact", slog.String(logkey.OrderID, order.ID),
			slog.String(logkey.ERROR, err.Error()))
		return
	}
	recipient := bus.Recipient{UserID: order.UserID, Email: contact.Email, Name: contact.Name}
	now := time.Now().UTC()

	switch order.Status {
	case orders.StatusShipped:
		h.b.Publish(bus.OrderShippedEvent{Recipient: recipient, OrderID: order.ID, OrderNumber: order.OrderNumber, CreatedAt: now})
	case orders.StatusDelivered:
		h.b.Publish(bus.OrderDeliveredEvent{Recipient: recipient, OrderID: order.ID, OrderNumber: order.OrderNumber, CreatedAt: now})
	case orders.StatusCancelled:
		h.b.Publish(bus.OrderCancelledEvent{Recipient: recipient, OrderID: order.ID, OrderNumber: order.OrderNumber, CreatedAt: now})
	}
}

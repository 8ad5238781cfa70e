package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"lifecycle-service/internal/auth"
	"lifecycle-service/internal/products"
	"lifecycle-service/pkg/ctxmanage"
	"lifecycle-service/pkg/logkey"

	"github.com/gin-gonic/gin"
)

type AddToCartRequest struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	Quantity  int    `json:"quantity" validate:"required,min=1"`
}

func (h *Handler) AddToCart(c *gin.Context) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)
	claims, ok := c.Request.Context().Value(auth.ClaimsKey).(auth.Claims)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": http.StatusUnauthorized})
		return
	}

	var req AddToCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.Error("json validation error", slog.String(logkey.TraceID, traceId), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": http.StatusText(http.StatusBadRequest)})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		slog.Error("validation failed", slog.String(logkey.TraceID, traceId), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": http.StatusText(http.StatusBadRequest)})
		return
	}

	info, err := h.pr.GetStockInfo(c.Request.Context(), req.ProductID)
	if err != nil {
		if errors.Is(err, products.ErrProductNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Product not found"})
			return
		}
		slog.Error("error fetching product", slog.String(logkey.TraceID, traceId), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch product"})
		return
	}
	if !info.IsActive {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Product is not available"})
		return
	}

	if err := h.c.AddToCartDB(c.Request.Context(), claims.Subject, req.ProductID, req.Quantity, info.Stock); err != nil {
		slog.Error("error adding to cart", slog.String(logkey.TraceID, traceId), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Item added to cart"})
}

func (h *Handler) GetActiveCartItems(c *gin.Context) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)
	claims, ok := c.Request.Context().Value(auth.ClaimsKey).(auth.Claims)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": http.StatusUnauthorized})
		return
	}

	resp, err := h.c.GetActiveCartItems(c.Request.Context(), claims.Subject)
	if err != nil {
		slog.Error("error fetching cart items", slog.String(logkey.TraceID, traceId), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch cart items"})
		return
	}

	c.JSON(http.StatusOK, resp)
}

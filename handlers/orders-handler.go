package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"tree-order-service/internal/auth"
	"tree-order-service/internal/orders"
	"tree-order-service/pkg/ctxmanage"
	"tree-order-service/pkg/logkey"
)

func (h *Handler) GetOrders(c *gin.Context) {
	traceID := ctxmanage.GetTraceIdOfRequest(c)

	list, err := h.o.GetAllOrders(c.Request.Context())
	if err != nil {
		slog.Error("failed to list orders",
			slog.String(logkey.TraceID, traceID), slog.String(logkey.Error, err.Error()))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to list orders"})
		return
	}
	if list == nil {
		list = []orders.Order{}
	}
	c.JSON(http.StatusOK, list)
}

// GetOrder resolves the path parameter first as an order id, then as a
// customer email.
func (h *Handler) GetOrder(c *gin.Context) {
	traceID := ctxmanage.GetTraceIdOfRequest(c)
	id := c.Param("id")

	order, err := h.o.GetOrder(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, orders.ErrOrderNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "order not found"})
			return
		}
		slog.Error("failed to fetch order",
			slog.String(logkey.TraceID, traceID), slog.String(logkey.OrderID, id),
			slog.String(logkey.Error, err.Error()))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch order"})
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) DeleteOrder(c *gin.Context) {
	traceID := ctxmanage.GetTraceIdOfRequest(c)
	id := c.Param("id")

	if claims, ok := c.Request.Context().Value(auth.ClaimsKey).(auth.Claims); ok {
		slog.Info("admin delete requested",
			slog.String(logkey.TraceID, traceID), slog.String("admin", claims.Subject),
			slog.String(logkey.OrderID, id))
	}

	if err := h.o.DeleteOrder(c.Request.Context(), id); err != nil {
		if errors.Is(err, orders.ErrOrderNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "order not found"})
			return
		}
		slog.Error("failed to delete order",
			slog.String(logkey.TraceID, traceID), slog.String(logkey.OrderID, id),
			slog.String(logkey.Error, err.Error()))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to delete order"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "order deleted", "order_id": id})
}

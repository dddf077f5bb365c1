package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"tree-order-service/internal/orders"
	"tree-order-service/pkg/ctxmanage"
	"tree-order-service/pkg/logkey"
)

// Checkout prices the order and routes it into a payment flow. Cash settles
// immediately; stripe and paypal register the order as pending and hand the
// caller a redirect target.
func (h *Handler) Checkout(c *gin.Context) {
	traceID := ctxmanage.GetTraceIdOfRequest(c)

	var req orders.NewOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.Error("failed to bind checkout request",
			slog.String(logkey.TraceID, traceID), slog.String(logkey.Error, err.Error()))
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		slog.Error("checkout request validation failed",
			slog.String(logkey.TraceID, traceID), slog.String(logkey.Error, err.Error()))
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	order, err := orders.NewOrder(req)
	if err != nil {
		slog.Error("invalid order selection",
			slog.String(logkey.TraceID, traceID), slog.String(logkey.Error, err.Error()))
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	slog.Info("checkout started",
		slog.String(logkey.TraceID, traceID),
		slog.String(logkey.OrderID, order.ID),
		slog.String(logkey.Email, order.Customer.Email),
		slog.Float64("price", order.Price),
	)

	var checkoutURL string

	switch order.PaymentMethod {
	case orders.PaymentStripe:
		h.pending.Put(order)
		sess, err := h.stripe.CreateCheckoutSession(order)
		if err != nil {
			// No orphaned pending entries when the provider is down.
			_ = h.pending.Delete(order.ID)
			slog.Error("failed to create stripe checkout session",
				slog.String(logkey.TraceID, traceID), slog.String(logkey.Error, err.Error()))
			c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "payment provider unavailable"})
			return
		}
		checkoutURL = sess.URL

	case orders.PaymentPaypal:
		if h.paypal == nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "paypal is not configured"})
			return
		}
		h.pending.Put(order)
		approveURL, err := h.paypal.CreateOrder(c.Request.Context(), order)
		if err != nil {
			_ = h.pending.Delete(order.ID)
			slog.Error("failed to create paypal order",
				slog.String(logkey.TraceID, traceID), slog.String(logkey.Error, err.Error()))
			c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "payment provider unavailable"})
			return
		}
		checkoutURL = approveURL

	case orders.PaymentCash:
		// No external confirmation to wait for: finalize within the request.
		h.pending.Put(order)
		if _, err := h.completer.CompletePayment(c.Request.Context(), order.ID); err != nil {
			slog.Error("failed to finalize cash order",
				slog.String(logkey.TraceID, traceID), slog.String(logkey.Error, err.Error()))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to save order"})
			return
		}
		checkoutURL = h.stripe.SuccessURL()
	}

	c.JSON(http.StatusOK, gin.H{
		"order_id":     order.ID,
		"price":        order.Price,
		"checkout_url": checkoutURL,
	})
}

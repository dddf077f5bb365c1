package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"tree-order-service/internal/orders"
	"tree-order-service/internal/payments"
	"tree-order-service/pkg/ctxmanage"
	"tree-order-service/pkg/logkey"
)

// PayPalWebhook handles asynchronous payment confirmations from PayPal. The
// delivery is authenticated by asking PayPal to verify the transmission
// headers before the event body is parsed.
func (h *Handler) PayPalWebhook(c *gin.Context) {
	traceID := ctxmanage.GetTraceIdOfRequest(c)

	if h.paypal == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "paypal is not configured"})
		return
	}

	const maxBodyBytes = int64(65536)
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		slog.Error("failed to read webhook body",
			slog.String(logkey.TraceID, traceID), slog.String(logkey.Error, err.Error()))
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}

	valid, err := h.paypal.VerifyWebhookSignature(c.Request.Context(), c.Request.Header, payload)
	if err != nil {
		// The verification call itself failed; 5xx makes PayPal redeliver.
		slog.Error("paypal webhook verification errored",
			slog.String(logkey.TraceID, traceID), slog.String(logkey.Error, err.Error()))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "verification unavailable"})
		return
	}
	if !valid {
		slog.Error("paypal webhook signature invalid", slog.String(logkey.TraceID, traceID))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	var event payments.PayPalEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		slog.Error("failed to unmarshal paypal event",
			slog.String(logkey.TraceID, traceID), slog.String(logkey.Error, err.Error()))
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	switch event.EventType {
	case "PAYMENT.CAPTURE.COMPLETED":
		orderID := event.Resource.CustomID
		if orderID == "" {
			slog.Error("capture event without custom_id", slog.String(logkey.TraceID, traceID))
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing order reference"})
			return
		}

		if _, err := h.completer.CompletePayment(c.Request.Context(), orderID); err != nil {
			if errors.Is(err, orders.ErrOrderNotFound) {
				slog.Warn("confirmation for unknown or already finalized order",
					slog.String(logkey.TraceID, traceID), slog.String(logkey.OrderID, orderID))
				c.JSON(http.StatusOK, gin.H{"status": "ok"})
				return
			}
			slog.Error("failed to finalize order",
				slog.String(logkey.TraceID, traceID), slog.String(logkey.OrderID, orderID),
				slog.String(logkey.Error, err.Error()))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to finalize order"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "ok"})

	default:
		slog.Info("unhandled paypal event type",
			slog.String(logkey.TraceID, traceID), slog.String("event_type", event.EventType))
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

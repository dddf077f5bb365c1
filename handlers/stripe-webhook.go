package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v81"

	"tree-order-service/internal/orders"
	"tree-order-service/internal/payments"
	"tree-order-service/pkg/ctxmanage"
	"tree-order-service/pkg/logkey"
)

// StripeWebhook handles asynchronous payment confirmations from Stripe.
// Signature verification happens before anything in the body is trusted.
// Unrecognized event types are acknowledged without side effects; Stripe
// sends many kinds of events to a webhook endpoint.
func (h *Handler) StripeWebhook(c *gin.Context) {
	traceID := ctxmanage.GetTraceIdOfRequest(c)
	const maxBodyBytes = int64(65536)

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		slog.Error("failed to read webhook body",
			slog.String(logkey.TraceID, traceID), slog.String(logkey.Error, err.Error()))
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}

	event, err := h.stripe.VerifyWebhook(payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		slog.Error("stripe webhook verification failed",
			slog.String(logkey.TraceID, traceID), slog.String(logkey.Error, err.Error()))
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
		return
	}

	switch event.Type {
	case "checkout.session.completed":
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			slog.Error("failed to unmarshal checkout session",
				slog.String(logkey.TraceID, traceID), slog.String(logkey.Error, err.Error()))
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		orderID := sess.Metadata[payments.MetadataRequestID]
		if orderID == "" {
			slog.Error("checkout session without request_id metadata",
				slog.String(logkey.TraceID, traceID))
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing order metadata"})
			return
		}

		order, err := h.completer.CompletePayment(c.Request.Context(), orderID)
		if err != nil {
			if errors.Is(err, orders.ErrOrderNotFound) {
				// Duplicate delivery or an id we never issued; acknowledging
				// stops Stripe from retrying something that cannot succeed.
				slog.Warn("confirmation for unknown or already finalized order",
					slog.String(logkey.TraceID, traceID), slog.String(logkey.OrderID, orderID))
				c.JSON(http.StatusOK, gin.H{"status": "success"})
				return
			}
			// Persistence failure: answer 5xx so Stripe redelivers later.
			slog.Error("failed to finalize order",
				slog.String(logkey.TraceID, traceID), slog.String(logkey.OrderID, orderID),
				slog.String(logkey.Error, err.Error()))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to finalize order"})
			return
		}

		if sess.AmountTotal != int64(math.Round(order.Price*100)) {
			slog.Warn("provider amount differs from calculated price",
				slog.String(logkey.TraceID, traceID), slog.String(logkey.OrderID, orderID),
				slog.Int64("amount_total", sess.AmountTotal),
				slog.Float64("price", order.Price))
		}

		c.JSON(http.StatusOK, gin.H{"status": "success"})

	default:
		slog.Info("unhandled stripe event type",
			slog.String(logkey.TraceID, traceID), slog.String("event_type", string(event.Type)))
		c.JSON(http.StatusOK, gin.H{"status": "success"})
	}
}

package handlers

import (
	"context"
	"net/http"
	"os"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/stripe/stripe-go/v81"

	"tree-order-service/internal/auth"
	"tree-order-service/internal/orders"
	"tree-order-service/internal/payments"
	"tree-order-service/middleware"
)

// OrderStore is the durable store surface the handlers need.
type OrderStore interface {
	GetAllOrders(ctx context.Context) ([]orders.Order, error)
	GetOrder(ctx context.Context, idOrEmail string) (orders.Order, error)
	DeleteOrder(ctx context.Context, orderID string) error
}

// StripeGateway abstracts the Stripe calls so handlers are testable without
// the network.
type StripeGateway interface {
	CreateCheckoutSession(o orders.Order) (*stripe.CheckoutSession, error)
	VerifyWebhook(payload []byte, sigHeader string) (stripe.Event, error)
	SuccessURL() string
}

type PayPalGateway interface {
	CreateOrder(ctx context.Context, o orders.Order) (string, error)
	VerifyWebhookSignature(ctx context.Context, headers http.Header, body []byte) (bool, error)
}

type Handler struct {
	o         OrderStore
	pending   *orders.PendingStore
	completer *payments.Completer
	stripe    StripeGateway
	paypal    PayPalGateway
	validate  *validator.Validate
}

// NewHandler wires the request handlers. paypal may be nil when the provider
// is not configured; its routes then answer 503.
func NewHandler(o OrderStore, pending *orders.PendingStore, completer *payments.Completer,
	stripeGw StripeGateway, paypalGw PayPalGateway) *Handler {
	return &Handler{
		o:         o,
		pending:   pending,
		completer: completer,
		stripe:    stripeGw,
		paypal:    paypalGw,
		validate:  validator.New(),
	}
}

func API(endpointPrefix string, k *auth.Keys, h *Handler, allowedOrigins []string) *gin.Engine {
	r := gin.New()
	mode := os.Getenv("GIN_MODE")
	if mode == gin.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	m, err := middleware.NewMid(k)
	if err != nil {
		panic(err)
	}

	r.Use(middleware.Logger(), gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
	}))

	r.GET("/ping", HealthCheck)

	v1 := r.Group(endpointPrefix)
	{
		v1.POST("/checkout", h.Checkout)
		v1.GET("/orders/:id", h.GetOrder)
		v1.POST("/stripe/webhook", h.StripeWebhook)
		v1.POST("/paypal/webhook", h.PayPalWebhook)

		admin := v1.Group("")
		admin.Use(m.Authentication())
		admin.GET("/orders", h.GetOrders)
		admin.DELETE("/orders/:id", h.DeleteOrder)
	}

	return r
}

func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "pong",
	})
}

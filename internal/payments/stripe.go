package payments

import (
	"fmt"
	"math"
	"os"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/checkout/session"
	"github.com/stripe/stripe-go/v81/webhook"

	"tree-order-service/internal/orders"
)

// MetadataRequestID is the session metadata key carrying the order id through
// Stripe and back via the webhook.
const MetadataRequestID = "request_id"

type StripeConf struct {
	webhookSecret string
	successURL    string
	cancelURL     string
}

func NewStripeConf(webhookSecret, successURL, cancelURL string) (*StripeConf, error) {
	if webhookSecret == "" {
		return nil, fmt.Errorf("stripe webhook secret is empty")
	}
	if successURL == "" || cancelURL == "" {
		return nil, fmt.Errorf("stripe success/cancel urls are empty")
	}
	return &StripeConf{
		webhookSecret: webhookSecret,
		successURL:    successURL,
		cancelURL:     cancelURL,
	}, nil
}

// NewStripeConfFromEnv sets the global stripe API key and reads the webhook
// secret and redirect URLs. All four variables are required.
func NewStripeConfFromEnv() (*StripeConf, error) {
	key := os.Getenv("STRIPE_SECRET_KEY")
	if key == "" {
		return nil, fmt.Errorf("STRIPE_SECRET_KEY is not set")
	}
	stripe.Key = key

	return NewStripeConf(
		os.Getenv("STRIPE_WEBHOOK_SECRET"),
		os.Getenv("SUCCESS_URL"),
		os.Getenv("CANCEL_URL"),
	)
}

func (s *StripeConf) SuccessURL() string { return s.successURL }

// CreateCheckoutSession opens a Stripe hosted checkout for the order. The
// order id travels as opaque session metadata; Stripe hands it back unchanged
// in the checkout.session.completed event.
func (s *StripeConf) CreateCheckoutSession(o orders.Order) (*stripe.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(string(stripe.CurrencyEUR)),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String("Weihnachtsbaum Bestellung"),
					},
					UnitAmount: stripe.Int64(int64(math.Round(o.Price * 100))),
				},
				Quantity: stripe.Int64(1),
			},
		},
		Mode:          stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:    stripe.String(s.successURL),
		CancelURL:     stripe.String(s.cancelURL),
		CustomerEmail: stripe.String(o.Customer.Email),
		Metadata: map[string]string{
			MetadataRequestID: o.ID,
		},
	}

	sess, err := session.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create stripe checkout session: %w", err)
	}
	return sess, nil
}

// VerifyWebhook checks the Stripe-Signature header against the endpoint secret
// and parses the event envelope. Nothing in the body is trusted before this.
func (s *StripeConf) VerifyWebhook(payload []byte, sigHeader string) (stripe.Event, error) {
	return webhook.ConstructEventWithOptions(payload, sigHeader, s.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
}

package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"tree-order-service/internal/orders"
)

// PayPalClient talks to the PayPal REST API directly: order creation for the
// checkout redirect and webhook signature verification. The order id rides in
// the purchase unit's custom_id and comes back in capture events.
type PayPalClient struct {
	base      string
	clientID  string
	secret    string
	webhookID string
	http      *http.Client
}

func NewPayPalClientFromEnv() (*PayPalClient, error) {
	c := &PayPalClient{
		base:      os.Getenv("PAYPAL_BASE"),
		clientID:  os.Getenv("PAYPAL_CLIENT_ID"),
		secret:    os.Getenv("PAYPAL_SECRET"),
		webhookID: os.Getenv("PAYPAL_WEBHOOK_ID"),
		http:      &http.Client{Timeout: 15 * time.Second},
	}
	if c.base == "" || c.clientID == "" || c.secret == "" || c.webhookID == "" {
		return nil, fmt.Errorf("PAYPAL_BASE, PAYPAL_CLIENT_ID, PAYPAL_SECRET and PAYPAL_WEBHOOK_ID must be set")
	}
	return c, nil
}

func (p *PayPalClient) getAccessToken(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.base+"/v1/oauth2/token", bytes.NewBufferString("grant_type=client_credentials"))
	if err != nil {
		return "", fmt.Errorf("error creating token request: %w", err)
	}
	req.SetBasicAuth(p.clientID, p.secret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("error fetching paypal token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("paypal token request failed: %s", resp.Status)
	}

	var body struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("error decoding token response: %w", err)
	}
	return body.AccessToken, nil
}

// CreateOrder creates a PayPal order for the amount and returns the approve
// link the customer is redirected to.
func (p *PayPalClient) CreateOrder(ctx context.Context, o orders.Order) (string, error) {
	token, err := p.getAccessToken(ctx)
	if err != nil {
		return "", err
	}

	payload := map[string]any{
		"intent": "CAPTURE",
		"purchase_units": []map[string]any{
			{
				"custom_id": o.ID,
				"amount": map[string]string{
					"currency_code": "EUR",
					"value":         fmt.Sprintf("%.2f", o.Price),
				},
			},
		},
		"application_context": map[string]string{
			"brand_name": "Dein Weihnachtsbaum",
			"return_url": os.Getenv("SUCCESS_URL"),
			"cancel_url": os.Getenv("CANCEL_URL"),
		},
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("error marshaling paypal order: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.base+"/v2/checkout/orders", bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("error creating order request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := p.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("error creating paypal order: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("paypal order creation failed: %s", resp.Status)
	}

	var body struct {
		Links []struct {
			Rel  string `json:"rel"`
			Href string `json:"href"`
		} `json:"links"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("error decoding paypal order response: %w", err)
	}

	for _, link := range body.Links {
		if link.Rel == "approve" {
			return link.Href, nil
		}
	}
	return "", fmt.Errorf("no approve link in paypal order response")
}

// VerifyWebhookSignature asks PayPal to validate the transmission headers of a
// webhook delivery against the registered webhook id.
func (p *PayPalClient) VerifyWebhookSignature(ctx context.Context, headers http.Header, body []byte) (bool, error) {
	token, err := p.getAccessToken(ctx)
	if err != nil {
		return false, err
	}

	payload := map[string]any{
		"auth_algo":         headers.Get("Paypal-Auth-Algo"),
		"cert_url":          headers.Get("Paypal-Cert-Url"),
		"transmission_id":   headers.Get("Paypal-Transmission-Id"),
		"transmission_sig":  headers.Get("Paypal-Transmission-Sig"),
		"transmission_time": headers.Get("Paypal-Transmission-Time"),
		"webhook_id":        p.webhookID,
		"webhook_event":     json.RawMessage(body),
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return false, fmt.Errorf("error marshaling verification request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.base+"/v1/notifications/verify-webhook-signature", bytes.NewReader(raw))
	if err != nil {
		return false, fmt.Errorf("error creating verification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := p.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("error verifying paypal webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("paypal verification failed: %s", resp.Status)
	}

	var result struct {
		VerificationStatus string `json:"verification_status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false, fmt.Errorf("error decoding verification response: %w", err)
	}
	return result.VerificationStatus == "SUCCESS", nil
}

// PayPalEvent is the subset of the webhook envelope this service reads.
type PayPalEvent struct {
	EventType string         `json:"event_type"`
	Resource  PayPalResource `json:"resource"`
}

type PayPalResource struct {
	ID       string `json:"id"`
	CustomID string `json:"custom_id"`
	Amount   struct {
		CurrencyCode string `json:"currency_code"`
		Value        string `json:"value"`
	} `json:"amount"`
}

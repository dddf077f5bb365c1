package handlers

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"

	"tree-order-service/internal/auth"
	"tree-order-service/internal/orders"
	"tree-order-service/internal/payments"
)

const (
	testWebhookSecret = "whsec_test_secret"
	testSuccessURL    = "https://shop.example/success"
	testCancelURL     = "https://shop.example/cancel"
	testSessionURL    = "https://checkout.stripe.test/session"
)

type fakeStore struct {
	mu     sync.Mutex
	orders []orders.Order
}

func (f *fakeStore) CreateOrder(ctx context.Context, o orders.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o.Status = orders.StatusReceived
	f.orders = append(f.orders, o)
	return nil
}

func (f *fakeStore) GetAllOrders(ctx context.Context) ([]orders.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]orders.Order(nil), f.orders...), nil
}

func (f *fakeStore) GetOrder(ctx context.Context, idOrEmail string) (orders.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.orders {
		if o.ID == idOrEmail {
			return o, nil
		}
	}
	for _, o := range f.orders {
		if o.Customer.Email == idOrEmail {
			return o, nil
		}
	}
	return orders.Order{}, orders.ErrOrderNotFound
}

func (f *fakeStore) DeleteOrder(ctx context.Context, orderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, o := range f.orders {
		if o.ID == orderID {
			f.orders = append(f.orders[:i], f.orders[i+1:]...)
			return nil
		}
	}
	return orders.ErrOrderNotFound
}

func (f *fakeStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.orders)
}

// fakeStripeGateway uses the real verification code but stubs the network
// call that creates checkout sessions.
type fakeStripeGateway struct {
	*payments.StripeConf
	failSession bool
}

func (f *fakeStripeGateway) CreateCheckoutSession(o orders.Order) (*stripe.CheckoutSession, error) {
	if f.failSession {
		return nil, errors.New("stripe unreachable")
	}
	return &stripe.CheckoutSession{
		URL:         testSessionURL,
		AmountTotal: int64(math.Round(o.Price * 100)),
		Metadata:    map[string]string{payments.MetadataRequestID: o.ID},
	}, nil
}

type fakePayPalGateway struct {
	valid     bool
	verifyErr error
}

func (f *fakePayPalGateway) CreateOrder(ctx context.Context, o orders.Order) (string, error) {
	return "https://paypal.test/approve", nil
}

func (f *fakePayPalGateway) VerifyWebhookSignature(ctx context.Context, headers http.Header, body []byte) (bool, error) {
	return f.valid, f.verifyErr
}

type testEnv struct {
	engine  *gin.Engine
	store   *fakeStore
	pending *orders.PendingStore
	stripe  *fakeStripeGateway
	paypal  *fakePayPalGateway
	keys    *auth.Keys
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	conf, err := payments.NewStripeConf(testWebhookSecret, testSuccessURL, testCancelURL)
	if err != nil {
		t.Fatalf("NewStripeConf returned error: %v", err)
	}

	store := &fakeStore{}
	pending := orders.NewPendingStore()
	completer, err := payments.NewCompleter(pending, store, nil, nil)
	if err != nil {
		t.Fatalf("NewCompleter returned error: %v", err)
	}

	keys, err := auth.NewKeys("test-secret")
	if err != nil {
		t.Fatalf("NewKeys returned error: %v", err)
	}

	stripeGw := &fakeStripeGateway{StripeConf: conf}
	paypalGw := &fakePayPalGateway{valid: true}

	h := NewHandler(store, pending, completer, stripeGw, paypalGw)
	engine := API("", keys, h, []string{"http://localhost:5173"})

	return &testEnv{
		engine:  engine,
		store:   store,
		pending: pending,
		stripe:  stripeGw,
		paypal:  paypalGw,
		keys:    keys,
	}
}

func checkoutBody(paymentMethod string) []byte {
	return []byte(fmt.Sprintf(`{
		"customer": {
			"first_name": "John",
			"last_name": "Doe",
			"address": "123 Main St",
			"postal_code": "12345",
			"city": "Springfield",
			"phone": "+1234567890",
			"email": "john.doe@example.com"
		},
		"tree": "nordmann",
		"size": "m",
		"package": "basic",
		"delivery": "standard",
		"tree_stand": false,
		"payment_method": %q
	}`, paymentMethod))
}

type checkoutResponse struct {
	OrderID     string  `json:"order_id"`
	Price       float64 `json:"price"`
	CheckoutURL string  `json:"checkout_url"`
}

func doCheckout(t *testing.T, env *testEnv, paymentMethod string) checkoutResponse {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/checkout", bytes.NewReader(checkoutBody(paymentMethod)))
	req.Header.Set("Content-Type", "application/json")
	env.engine.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("checkout returned %d: %s", w.Code, w.Body.String())
	}
	var resp checkoutResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode checkout response: %v", err)
	}
	return resp
}

func stripeEventPayload(orderID string, amountCents int64) []byte {
	return []byte(fmt.Sprintf(`{
		"id": "evt_test_1",
		"object": "event",
		"api_version": "2024-11-20.acacia",
		"type": "checkout.session.completed",
		"data": {
			"object": {
				"id": "cs_test_1",
				"object": "checkout.session",
				"amount_total": %d,
				"metadata": {"request_id": %q}
			}
		}
	}`, amountCents, orderID))
}

func stripeSignature(payload []byte, secret string) string {
	now := time.Now()
	sig := webhook.ComputeSignature(now, payload, secret)
	return fmt.Sprintf("t=%d,v1=%s", now.Unix(), hex.EncodeToString(sig))
}

func deliverStripeWebhook(env *testEnv, payload []byte, signature string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/stripe/webhook", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", signature)
	env.engine.ServeHTTP(w, req)
	return w
}

func TestCheckoutValidation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body string
	}{
		{"empty body", `{}`},
		{"invalid size", `{
			"customer": {"first_name":"J","last_name":"D","address":"a","postal_code":"1","city":"c","phone":"p","email":"j@example.com"},
			"tree":"nordmann","size":"xxl","package":"basic","delivery":"standard","payment_method":"cash"}`},
		{"invalid email", `{
			"customer": {"first_name":"J","last_name":"D","address":"a","postal_code":"1","city":"c","phone":"p","email":"not-an-email"},
			"tree":"nordmann","size":"m","package":"basic","delivery":"standard","payment_method":"cash"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/checkout", bytes.NewBufferString(tt.body))
			req.Header.Set("Content-Type", "application/json")
			env.engine.ServeHTTP(w, req)

			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
			if env.store.count() != 0 || env.pending.Len() != 0 {
				t.Error("rejected checkout must not touch any store")
			}
		})
	}
}

func TestCheckoutCashSettlesImmediately(t *testing.T) {
	env := newTestEnv(t)

	resp := doCheckout(t, env, "cash")
	if resp.CheckoutURL != testSuccessURL {
		t.Errorf("checkout_url = %s, want success url", resp.CheckoutURL)
	}
	if resp.Price != 83.15 {
		t.Errorf("price = %v, want 83.15", resp.Price)
	}
	if env.pending.Len() != 0 {
		t.Errorf("cash checkout left %d pending entries", env.pending.Len())
	}
	if env.store.count() != 1 {
		t.Fatalf("expected 1 finalized record, got %d", env.store.count())
	}

	record, err := env.store.GetOrder(context.Background(), resp.OrderID)
	if err != nil {
		t.Fatalf("finalized record not retrievable: %v", err)
	}
	if record.Price != resp.Price {
		t.Errorf("stored price = %v, want %v", record.Price, resp.Price)
	}
}

func TestCheckoutStripeRegistersPending(t *testing.T) {
	env := newTestEnv(t)

	resp := doCheckout(t, env, "stripe")
	if resp.CheckoutURL != testSessionURL {
		t.Errorf("checkout_url = %s, want stripe session url", resp.CheckoutURL)
	}
	if env.pending.Len() != 1 {
		t.Fatalf("expected 1 pending entry, got %d", env.pending.Len())
	}
	if _, err := env.pending.Get(resp.OrderID); err != nil {
		t.Errorf("pending entry not keyed by returned order id: %v", err)
	}
	if env.store.count() != 0 {
		t.Errorf("no durable record expected before confirmation, got %d", env.store.count())
	}
}

func TestCheckoutStripeSessionFailureLeavesNoOrphan(t *testing.T) {
	env := newTestEnv(t)
	env.stripe.failSession = true

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/checkout", bytes.NewReader(checkoutBody("stripe")))
	req.Header.Set("Content-Type", "application/json")
	env.engine.ServeHTTP(w, req)

	if w.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", w.Code)
	}
	if env.pending.Len() != 0 {
		t.Errorf("provider failure left %d orphaned pending entries", env.pending.Len())
	}
}

func TestStripeWebhookEndToEnd(t *testing.T) {
	env := newTestEnv(t)

	resp := doCheckout(t, env, "stripe")

	payload := stripeEventPayload(resp.OrderID, int64(math.Round(resp.Price*100)))
	w := deliverStripeWebhook(env, payload, stripeSignature(payload, testWebhookSecret))
	if w.Code != http.StatusOK {
		t.Fatalf("webhook returned %d: %s", w.Code, w.Body.String())
	}

	if env.pending.Len() != 0 {
		t.Errorf("pending store should be empty after confirmation, has %d", env.pending.Len())
	}
	if env.store.count() != 1 {
		t.Fatalf("expected 1 finalized record, got %d", env.store.count())
	}
	record, err := env.store.GetOrder(context.Background(), resp.OrderID)
	if err != nil {
		t.Fatalf("finalized record not retrievable: %v", err)
	}
	if record.Price != resp.Price {
		t.Errorf("stored price = %v, want checkout price %v", record.Price, resp.Price)
	}

	// A provider retry of the same event must be acknowledged without a
	// second record.
	w = deliverStripeWebhook(env, payload, stripeSignature(payload, testWebhookSecret))
	if w.Code != http.StatusOK {
		t.Fatalf("duplicate delivery returned %d", w.Code)
	}
	if env.store.count() != 1 {
		t.Errorf("duplicate delivery created %d records, want 1", env.store.count())
	}
}

func TestStripeWebhookInvalidSignature(t *testing.T) {
	env := newTestEnv(t)

	resp := doCheckout(t, env, "stripe")

	payload := stripeEventPayload(resp.OrderID, 8315)
	w := deliverStripeWebhook(env, payload, stripeSignature(payload, "whsec_wrong_secret"))
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	if env.pending.Len() != 1 {
		t.Errorf("pending store must be untouched, has %d entries", env.pending.Len())
	}
	if env.store.count() != 0 {
		t.Errorf("durable store must be untouched, has %d records", env.store.count())
	}
}

func TestStripeWebhookUnknownOrderIsAcked(t *testing.T) {
	env := newTestEnv(t)

	payload := stripeEventPayload("nonexistent-id", 8315)
	w := deliverStripeWebhook(env, payload, stripeSignature(payload, testWebhookSecret))
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 so the provider stops retrying", w.Code)
	}
	if env.store.count() != 0 {
		t.Errorf("unknown id must not create records, got %d", env.store.count())
	}
}

func TestStripeWebhookUnhandledEventType(t *testing.T) {
	env := newTestEnv(t)

	payload := []byte(`{"id":"evt_2","object":"event","api_version":"2024-11-20.acacia","type":"invoice.paid","data":{"object":{}}}`)
	w := deliverStripeWebhook(env, payload, stripeSignature(payload, testWebhookSecret))
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if env.store.count() != 0 || env.pending.Len() != 0 {
		t.Error("unhandled event types must have no side effects")
	}
}

func TestPayPalWebhookCaptureCompleted(t *testing.T) {
	env := newTestEnv(t)

	resp := doCheckout(t, env, "paypal")
	if resp.CheckoutURL != "https://paypal.test/approve" {
		t.Errorf("checkout_url = %s, want approve link", resp.CheckoutURL)
	}

	payload := fmt.Sprintf(`{"event_type":"PAYMENT.CAPTURE.COMPLETED","resource":{"id":"cap_1","custom_id":%q,"amount":{"currency_code":"EUR","value":"83.15"}}}`, resp.OrderID)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/paypal/webhook", bytes.NewBufferString(payload))
	env.engine.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("webhook returned %d: %s", w.Code, w.Body.String())
	}
	if env.pending.Len() != 0 {
		t.Errorf("pending store should be empty, has %d", env.pending.Len())
	}
	if env.store.count() != 1 {
		t.Errorf("expected 1 finalized record, got %d", env.store.count())
	}
}

func TestPayPalWebhookInvalidSignature(t *testing.T) {
	env := newTestEnv(t)
	env.paypal.valid = false

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/paypal/webhook",
		bytes.NewBufferString(`{"event_type":"PAYMENT.CAPTURE.COMPLETED","resource":{}}`))
	env.engine.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
	if env.store.count() != 0 {
		t.Error("rejected webhook must not create records")
	}
}

func TestGetOrderNotFound(t *testing.T) {
	env := newTestEnv(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/orders/unknown-id", nil)
	env.engine.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestGetOrderByEmailFallback(t *testing.T) {
	env := newTestEnv(t)

	doCheckout(t, env, "cash")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/orders/john.doe@example.com", nil)
	env.engine.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestAdminEndpointsRequireToken(t *testing.T) {
	env := newTestEnv(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	env.engine.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status without token = %d, want 401", w.Code)
	}

	token, err := env.keys.GenerateToken("admin@example.com", []string{auth.RoleAdmin}, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken returned error: %v", err)
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/orders", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	env.engine.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("status with admin token = %d, want 200", w.Code)
	}

	userToken, err := env.keys.GenerateToken("user@example.com", []string{"user"}, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken returned error: %v", err)
	}
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/orders", nil)
	req.Header.Set("Authorization", "Bearer "+userToken)
	env.engine.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Errorf("status with non-admin token = %d, want 403", w.Code)
	}
}

package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"tree-order-service/internal/orders"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []mail
	fail bool
}

func (f *fakeSender) Send(to, subject, body string, html bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("smtp unreachable")
	}
	f.sent = append(f.sent, mail{to: to, subject: subject, body: body, html: html})
	return nil
}

func (f *fakeSender) snapshot() []mail {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]mail(nil), f.sent...)
}

func testOrder() orders.Order {
	return orders.Order{
		ID: "order-1",
		Customer: orders.Customer{
			FirstName: "John", LastName: "Doe", Address: "123 Main St",
			PostalCode: "12345", City: "Springfield", Phone: "+1234567890",
			Email: "john.doe@example.com",
		},
		Tree: orders.TreeNordmann, Size: orders.SizeMedium,
		Package: orders.PackageBasic, Delivery: orders.DeliveryStandard,
		OrderDate: time.Now(), Price: 83.15,
		PaymentMethod: orders.PaymentCash,
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestQueueOrderCompleted(t *testing.T) {
	sender := &fakeSender{}
	q := NewQueue(sender, "admin@example.com", 8)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Start(ctx)

	q.OrderCompleted(testOrder())

	waitFor(t, func() bool { return len(sender.snapshot()) == 2 })

	sent := sender.snapshot()
	if sent[0].to != "admin@example.com" {
		t.Errorf("first mail to %s, want admin", sent[0].to)
	}
	if sent[0].html {
		t.Error("admin mail should be plain text")
	}
	if sent[1].to != "john.doe@example.com" {
		t.Errorf("second mail to %s, want customer", sent[1].to)
	}
	if !sent[1].html {
		t.Error("customer mail should be html")
	}
	if !strings.Contains(sent[1].subject, "order-1") {
		t.Errorf("customer subject missing order id: %s", sent[1].subject)
	}
	if !strings.Contains(sent[1].body, "83.15") {
		t.Error("customer body missing the total amount")
	}
}

func TestQueueWithoutAdminEmail(t *testing.T) {
	sender := &fakeSender{}
	q := NewQueue(sender, "", 8)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Start(ctx)

	q.OrderCompleted(testOrder())

	waitFor(t, func() bool { return len(sender.snapshot()) == 1 })
	if sent := sender.snapshot(); sent[0].to != "john.doe@example.com" {
		t.Errorf("mail to %s, want customer only", sent[0].to)
	}
}

func TestQueueSendFailureIsSwallowed(t *testing.T) {
	sender := &fakeSender{fail: true}
	q := NewQueue(sender, "admin@example.com", 8)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Start(ctx)

	// Must not panic nor block the caller.
	q.OrderCompleted(testOrder())
	q.OrderCompleted(testOrder())
	time.Sleep(50 * time.Millisecond)
}

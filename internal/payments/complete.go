package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tree-order-service/internal/orders"
	"tree-order-service/internal/stores/kafka"
	"tree-order-service/pkg/logkey"
)

// OrderCreator is the slice of the durable store the completer needs.
type OrderCreator interface {
	CreateOrder(ctx context.Context, o orders.Order) error
}

// Notifier queues customer/admin notifications; implementations must not block.
type Notifier interface {
	OrderCompleted(o orders.Order)
}

// Producer publishes order events; satisfied by *kafka.Conf.
type Producer interface {
	ProduceMessage(ctx context.Context, topic string, key, value []byte) error
}

// Completer reconciles an asynchronously confirmed payment with its pending
// order: durable write first, pending eviction second, side effects last.
// The mutex serializes finalizations so two deliveries of the same confirmation
// produce exactly one record; the loser sees ErrOrderNotFound.
type Completer struct {
	mu       sync.Mutex
	pending  *orders.PendingStore
	store    OrderCreator
	notifier Notifier
	producer Producer
}

// NewCompleter wires the finalization path. notifier and producer may be nil;
// both are best-effort side channels.
func NewCompleter(pending *orders.PendingStore, store OrderCreator, notifier Notifier, producer Producer) (*Completer, error) {
	if pending == nil {
		return nil, fmt.Errorf("pending store is nil")
	}
	if store == nil {
		return nil, fmt.Errorf("order store is nil")
	}
	return &Completer{
		pending:  pending,
		store:    store,
		notifier: notifier,
		producer: producer,
	}, nil
}

// CompletePayment finalizes the pending order identified by orderID.
//
// A missing id returns orders.ErrOrderNotFound: either the confirmation is a
// duplicate delivery or the id never existed; neither can succeed later.
// A persistence error leaves the pending entry in place so a provider retry
// can finalize once storage recovers.
func (c *Completer) CompletePayment(ctx context.Context, orderID string) (orders.Order, error) {
	c.mu.Lock()

	order, err := c.pending.Get(orderID)
	if err != nil {
		c.mu.Unlock()
		return orders.Order{}, err
	}

	if err := c.store.CreateOrder(ctx, order); err != nil {
		c.mu.Unlock()
		return orders.Order{}, fmt.Errorf("failed to persist order %s: %w", orderID, err)
	}

	// Eviction strictly after the durable write, so a crash in between never
	// leaves the order in neither store.
	if err := c.pending.Delete(orderID); err != nil {
		slog.Error("pending entry vanished during finalize",
			slog.String(logkey.OrderID, orderID), slog.String(logkey.Error, err.Error()))
	}
	c.mu.Unlock()

	slog.Info("order finalized",
		slog.String(logkey.OrderID, order.ID), slog.String(logkey.Email, order.Customer.Email))

	if c.notifier != nil {
		c.notifier.OrderCompleted(order)
	}
	if c.producer != nil {
		go c.publishOrderPaid(order)
	}

	return order, nil
}

func (c *Completer) publishOrderPaid(order orders.Order) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	event, err := json.Marshal(kafka.OrderPaidEvent{
		OrderID:       order.ID,
		Email:         order.Customer.Email,
		Price:         order.Price,
		PaymentMethod: string(order.PaymentMethod),
		CreatedAt:     time.Now().UTC(),
	})
	if err != nil {
		slog.Error("failed to marshal order paid event", slog.String(logkey.Error, err.Error()))
		return
	}

	if err := c.producer.ProduceMessage(ctx, kafka.TopicOrderPaid, []byte(order.ID), event); err != nil {
		slog.Error("failed to produce order paid event",
			slog.String(logkey.OrderID, order.ID), slog.String(logkey.Error, err.Error()))
		return
	}
	slog.Info("order paid event produced", slog.String(logkey.OrderID, order.ID))
}

package kafka

import "time"

const TopicOrderPaid = `tree-order-service.order-paid`

// OrderPaidEvent is published after an order is finalized so downstream
// consumers (fulfilment, bookkeeping) can react without polling the database.
type OrderPaidEvent struct {
	OrderID       string    `json:"order_id"`
	Email         string    `json:"email"`
	Price         float64   `json:"price"`
	PaymentMethod string    `json:"payment_method"`
	CreatedAt     time.Time `json:"created_at"`
}

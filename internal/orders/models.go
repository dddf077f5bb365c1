package orders

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrOrderNotFound is returned when neither store knows the given order id.
var ErrOrderNotFound = errors.New("order not found")

type Tree string

const (
	TreeNordmann Tree = "nordmann"
)

type Size string

const (
	SizeSmall  Size = "s"
	SizeMedium Size = "m"
	SizeLarge  Size = "l"
	SizeXLarge Size = "xl"
)

type Package string

const (
	PackageBasic Package = "basic"
	PackageExtra Package = "extra"
	PackageFull  Package = "full"
)

type Delivery string

const (
	DeliveryStandard Delivery = "standard"
	DeliveryFast     Delivery = "fast"
	DeliveryExpress  Delivery = "express"
)

type PaymentMethod string

const (
	PaymentStripe PaymentMethod = "stripe"
	PaymentPaypal PaymentMethod = "paypal"
	PaymentCash   PaymentMethod = "cash"
)

// StatusReceived is the initial status of every persisted order.
const StatusReceived = "eingegangen"

func ParseTree(s string) (Tree, error) {
	switch Tree(s) {
	case TreeNordmann:
		return Tree(s), nil
	}
	return "", fmt.Errorf("unknown tree %q", s)
}

func ParseSize(s string) (Size, error) {
	switch Size(s) {
	case SizeSmall, SizeMedium, SizeLarge, SizeXLarge:
		return Size(s), nil
	}
	return "", fmt.Errorf("unknown size %q", s)
}

func ParsePackage(s string) (Package, error) {
	switch Package(s) {
	case PackageBasic, PackageExtra, PackageFull:
		return Package(s), nil
	}
	return "", fmt.Errorf("unknown package %q", s)
}

func ParseDelivery(s string) (Delivery, error) {
	switch Delivery(s) {
	case DeliveryStandard, DeliveryFast, DeliveryExpress:
		return Delivery(s), nil
	}
	return "", fmt.Errorf("unknown delivery %q", s)
}

func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch PaymentMethod(s) {
	case PaymentStripe, PaymentPaypal, PaymentCash:
		return PaymentMethod(s), nil
	}
	return "", fmt.Errorf("unknown payment method %q", s)
}

type Customer struct {
	FirstName  string `json:"first_name" validate:"required"`
	LastName   string `json:"last_name" validate:"required"`
	Address    string `json:"address" validate:"required"`
	PostalCode string `json:"postal_code" validate:"required"`
	City       string `json:"city" validate:"required"`
	Phone      string `json:"phone" validate:"required"`
	Email      string `json:"email" validate:"required,email"`
}

// NewOrderRequest is the checkout request body. Enum fields arrive as plain
// strings and are validated by NewOrder; the price never comes from the client.
type NewOrderRequest struct {
	Customer      Customer `json:"customer" validate:"required"`
	Tree          string   `json:"tree" validate:"required"`
	Size          string   `json:"size" validate:"required"`
	Package       string   `json:"package" validate:"required"`
	Delivery      string   `json:"delivery" validate:"required"`
	TreeStand     bool     `json:"tree_stand"`
	PaymentMethod string   `json:"payment_method" validate:"required"`
}

// Order is the central entity. Its ID is the correlation identifier threaded
// through the payment provider and back via the webhook.
type Order struct {
	ID            string        `json:"id"`
	Customer      Customer      `json:"customer"`
	Tree          Tree          `json:"tree"`
	Size          Size          `json:"size"`
	Package       Package       `json:"package"`
	Delivery      Delivery      `json:"delivery"`
	TreeStand     bool          `json:"tree_stand"`
	OrderDate     time.Time     `json:"order_date"`
	Price         float64       `json:"price"`
	PaymentMethod PaymentMethod `json:"payment_method"`
	Status        string        `json:"status,omitempty"`
}

// NewOrder validates the request, computes the price and mints the order id.
func NewOrder(req NewOrderRequest) (Order, error) {
	tree, err := ParseTree(req.Tree)
	if err != nil {
		return Order{}, err
	}
	size, err := ParseSize(req.Size)
	if err != nil {
		return Order{}, err
	}
	pkg, err := ParsePackage(req.Package)
	if err != nil {
		return Order{}, err
	}
	delivery, err := ParseDelivery(req.Delivery)
	if err != nil {
		return Order{}, err
	}
	method, err := ParsePaymentMethod(req.PaymentMethod)
	if err != nil {
		return Order{}, err
	}

	price, err := CalculatePrice(tree, size, pkg, delivery, req.TreeStand)
	if err != nil {
		return Order{}, err
	}

	return Order{
		ID:            uuid.NewString(),
		Customer:      req.Customer,
		Tree:          tree,
		Size:          size,
		Package:       pkg,
		Delivery:      delivery,
		TreeStand:     req.TreeStand,
		OrderDate:     time.Now().UTC(),
		Price:         price,
		PaymentMethod: method,
	}, nil
}

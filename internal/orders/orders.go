package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Conf wraps the orders table. Finalized orders are the durable, queryable
// projection of an order after its payment is confirmed.
type Conf struct {
	db *sql.DB
}

func NewConf(db *sql.DB) (*Conf, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	return &Conf{db: db}, nil
}

func (c *Conf) CreateOrder(ctx context.Context, o Order) error {
	query := `
		INSERT INTO orders
			(id, order_date, price, first_name, last_name, address, postal_code,
			 city, phone, email, tree, size, package, delivery, tree_stand,
			 payment_method, status)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`
	_, err := c.db.ExecContext(ctx, query,
		o.ID, o.OrderDate, o.Price,
		o.Customer.FirstName, o.Customer.LastName, o.Customer.Address,
		o.Customer.PostalCode, o.Customer.City, o.Customer.Phone, o.Customer.Email,
		string(o.Tree), string(o.Size), string(o.Package), string(o.Delivery),
		o.TreeStand, string(o.PaymentMethod), StatusReceived,
	)
	if err != nil {
		return fmt.Errorf("failed to insert order %s: %w", o.ID, err)
	}
	return nil
}

func (c *Conf) GetAllOrders(ctx context.Context) ([]Order, error) {
	query := selectOrders + ` ORDER BY order_date DESC`
	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating orders: %w", err)
	}
	return out, nil
}

// GetOrder looks the record up by id first, then falls back to the customer
// email, so the storefront can show "my order" from either token.
func (c *Conf) GetOrder(ctx context.Context, idOrEmail string) (Order, error) {
	query := selectOrders + ` WHERE id = $1`
	o, err := scanOrder(c.db.QueryRowContext(ctx, query, idOrEmail))
	if err == nil {
		return o, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Order{}, fmt.Errorf("failed to query order %s: %w", idOrEmail, err)
	}

	query = selectOrders + ` WHERE email = $1 ORDER BY order_date DESC LIMIT 1`
	o, err = scanOrder(c.db.QueryRowContext(ctx, query, idOrEmail))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Order{}, ErrOrderNotFound
		}
		return Order{}, fmt.Errorf("failed to query order by email: %w", err)
	}
	return o, nil
}

func (c *Conf) DeleteOrder(ctx context.Context, orderID string) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, orderID)
	if err != nil {
		return fmt.Errorf("failed to delete order %s: %w", orderID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return ErrOrderNotFound
	}
	return nil
}

const selectOrders = `
	SELECT id, order_date, price, first_name, last_name, address, postal_code,
	       city, phone, email, tree, size, package, delivery, tree_stand,
	       payment_method, status
	FROM orders`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (Order, error) {
	var o Order
	var tree, size, pkg, delivery, method string
	err := row.Scan(
		&o.ID, &o.OrderDate, &o.Price,
		&o.Customer.FirstName, &o.Customer.LastName, &o.Customer.Address,
		&o.Customer.PostalCode, &o.Customer.City, &o.Customer.Phone, &o.Customer.Email,
		&tree, &size, &pkg, &delivery, &o.TreeStand, &method, &o.Status,
	)
	if err != nil {
		return Order{}, err
	}
	o.Tree = Tree(tree)
	o.Size = Size(size)
	o.Package = Package(pkg)
	o.Delivery = Delivery(delivery)
	o.PaymentMethod = PaymentMethod(method)
	return o, nil
}

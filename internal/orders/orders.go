package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CartLine is a cart item joined with its live product at snapshot time.
type CartLine struct {
	ProductID   string
	ProductName string
	Quantity    int
	UnitPrice   decimal.Decimal
}

// OrderTotal sums unit price times quantity over the cart snapshot. The
// result is frozen onto the order; later product price changes do not touch it.
func OrderTotal(lines []CartLine) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	return total
}

// CartStore is the narrow cart contract the ledger needs. Both methods take
// the ledger's transaction so order creation and cart clearing commit or
// roll back together.
type CartStore interface {
	ActiveCartLines(ctx context.Context, tx *sql.Tx, userID string) (int64, []CartLine, error)
	Clear(ctx context.Context, tx *sql.Tx, cartID int64) error
}

type Conf struct {
	db   *sql.DB
	cart CartStore
}

func NewConf(db *sql.DB, cart CartStore) (*Conf, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	if cart == nil {
		return nil, fmt.Errorf("cart store is nil")
	}
	return &Conf{db: db, cart: cart}, nil
}

// CreateFromCart snapshots the user's active cart into a new pending order
// and clears the cart, all in one transaction. An empty cart fails with
// ErrEmptyCart and leaves everything untouched.
func (c *Conf) CreateFromCart(ctx context.Context, userID, shippingAddress string) (Order, error) {
	shippingAddress = strings.TrimSpace(shippingAddress)
	if shippingAddress == "" {
		return Order{}, &ValidationError{Field: "shipping_address", Reason: "must not be empty"}
	}

	var order Order
	err := c.withTx(ctx, func(tx *sql.Tx) error {
		cartID, lines, err := c.cart.ActiveCartLines(ctx, tx, userID)
		if err != nil {
			return fmt.Errorf("loading cart: %w", err)
		}
		if len(lines) == 0 {
			return ErrEmptyCart
		}

		total := OrderTotal(lines)
		items := make([]OrderItem, 0, len(lines))
		for _, line := range lines {
			items = append(items, OrderItem{
				ProductID: line.ProductID,
				Quantity:  line.Quantity,
				UnitPrice: line.UnitPrice,
			})
		}

		now := time.Now().UTC()
		order = Order{
			ID:              uuid.NewString(),
			OrderNumber:     NewOrderNumber(now),
			UserID:          userID,
			Status:          StatusPending,
			TotalAmount:     total,
			ShippingAddress: shippingAddress,
			CreatedAt:       now,
			UpdatedAt:       now,
		}

		queryOrder := `
			INSERT INTO orders (id, order_number, user_id, status, total_amount, shipping_address, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`
		_, err = tx.ExecContext(ctx, queryOrder, order.ID, order.OrderNumber, order.UserID,
			order.Status, order.TotalAmount, order.ShippingAddress, order.CreatedAt, order.UpdatedAt)
		if err != nil {
			return fmt.Errorf("inserting order: %w", err)
		}

		queryItem := `
			INSERT INTO order_items (order_id, product_id, quantity, unit_price)
			VALUES ($1, $2, $3, $4)
			RETURNING id
		`
		for i := range items {
			items[i].OrderID = order.ID
			err = tx.QueryRowContext(ctx, queryItem, order.ID, items[i].ProductID,
				items[i].Quantity, items[i].UnitPrice).Scan(&items[i].ID)
			if err != nil {
				return fmt.Errorf("inserting order item: %w", err)
			}
		}
		order.Items = items

		if err := c.cart.Clear(ctx, tx, cartID); err != nil {
			return fmt.Errorf("clearing cart: %w", err)
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	return order, nil
}

// Transition applies target to the order through the adjacency table. The
// row is locked for the duration so concurrent webhook and scheduler writes
// serialize on a consistent current status. Applying the status the order is
// already in reports changed=false with no error.
func (c *Conf) Transition(ctx context.Context, orderID, target string) (Order, bool, error) {
	if !IsValidStatus(target) {
		return Order{}, false, &ValidationError{Field: "status", Reason: "unknown status " + target}
	}

	var order Order
	changed := false
	err := c.withTx(ctx, func(tx *sql.Tx) error {
		queryLock := `
			SELECT id, order_number, user_id, status, total_amount, shipping_address,
			       COALESCE(stripe_payment_id, ''), created_at, updated_at
			FROM orders
			WHERE id = $1
			FOR UPDATE
		`
		err := tx.QueryRowContext(ctx, queryLock, orderID).Scan(
			&order.ID, &order.OrderNumber, &order.UserID, &order.Status, &order.TotalAmount,
			&order.ShippingAddress, &order.StripePaymentID, &order.CreatedAt, &order.UpdatedAt)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrOrderNotFound
			}
			return fmt.Errorf("locking order: %w", err)
		}

		if order.Status == target {
			return nil
		}
		if !canTransition(order.Status, target) {
			return &InvalidTransitionError{OrderID: orderID, From: order.Status, To: target}
		}

		queryUpdate := `
			UPDATE orders
			SET status = $1, updated_at = NOW()
			WHERE id = $2
			RETURNING updated_at
		`
		if err := tx.QueryRowContext(ctx, queryUpdate, target, orderID).Scan(&order.UpdatedAt); err != nil {
			return fmt.Errorf("updating order status: %w", err)
		}
		order.Status = target
		changed = true
		return nil
	})
	if err != nil {
		return Order{}, false, err
	}
	return order, changed, nil
}

// SetPaymentRef stores the stripe payment intent id exactly once.
func (c *Conf) SetPaymentRef(ctx context.Context, orderID, ref string) error {
	query := `
		UPDATE orders
		SET stripe_payment_id = $1, updated_at = NOW()
		WHERE id = $2 AND stripe_payment_id IS NULL
	`
	res, err := c.db.ExecContext(ctx, query, ref, orderID)
	if err != nil {
		return fmt.Errorf("setting payment reference: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrPaymentRefAlreadySet
	}
	return nil
}

func (c *Conf) GetByID(ctx context.Context, orderID string) (Order, error) {
	query := `
		SELECT id, order_number, user_id, status, total_amount, shipping_address,
		       COALESCE(stripe_payment_id, ''), created_at, updated_at
		FROM orders
		WHERE id = $1
	`
	var order Order
	err := c.db.QueryRowContext(ctx, query, orderID).Scan(
		&order.ID, &order.OrderNumber, &order.UserID, &order.Status, &order.TotalAmount,
		&order.ShippingAddress, &order.StripePaymentID, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Order{}, ErrOrderNotFound
		}
		return Order{}, fmt.Errorf("querying order: %w", err)
	}

	items, err := c.itemsForOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	order.Items = items
	return order, nil
}

// GetByPaymentRef resolves the order correlated to a gateway payment intent.
func (c *Conf) GetByPaymentRef(ctx context.Context, ref string) (Order, error) {
	query := `
		SELECT id, order_number, user_id, status, total_amount, shipping_address,
		       COALESCE(stripe_payment_id, ''), created_at, updated_at
		FROM orders
		WHERE stripe_payment_id = $1
	`
	var order Order
	err := c.db.QueryRowContext(ctx, query, ref).Scan(
		&order.ID, &order.OrderNumber, &order.UserID, &order.Status, &order.TotalAmount,
		&order.ShippingAddress, &order.StripePaymentID, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Order{}, ErrOrderNotFound
		}
		return Order{}, fmt.Errorf("querying order by payment ref: %w", err)
	}
	return order, nil
}

func (c *Conf) ListByUser(ctx context.Context, userID string) ([]Order, error) {
	query := `
		SELECT id, order_number, user_id, status, total_amount, shipping_address,
		       COALESCE(stripe_payment_id, ''), created_at, updated_at
		FROM orders
		WHERE user_id = $1
		ORDER BY created_at DESC
	`
	rows, err := c.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	defer rows.Close()

	var list []Order
	for rows.Next() {
		var order Order
		if err := rows.Scan(&order.ID, &order.OrderNumber, &order.UserID, &order.Status,
			&order.TotalAmount, &order.ShippingAddress, &order.StripePaymentID,
			&order.CreatedAt, &order.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning order: %w", err)
		}
		list = append(list, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating orders: %w", err)
	}
	return list, nil
}

// ListShippedBefore returns shipped orders whose last update predates cutoff,
// with owner contact details for the delivery notification.
func (c *Conf) ListShippedBefore(ctx context.Context, cutoff time.Time) ([]OrderWithContact, error) {
	query := `
		SELECT o.id, o.order_number, o.user_id, o.status, o.total_amount, o.shipping_address,
		       COALESCE(o.stripe_payment_id, ''), o.created_at, o.updated_at, u.email, u.name
		FROM orders o
		JOIN users u ON u.id = o.user_id
		WHERE o.status = $1 AND o.updated_at < $2
		ORDER BY o.updated_at
	`
	return c.queryWithContact(ctx, query, StatusShipped, cutoff)
}

// ListDeliveredWithoutReview returns delivered orders inside the reminder
// window where the owner has not reviewed any of the ordered products yet.
func (c *Conf) ListDeliveredWithoutReview(ctx context.Context, olderThan, newerThan time.Time) ([]OrderWithContact, error) {
	query := `
		SELECT o.id, o.order_number, o.user_id, o.status, o.total_amount, o.shipping_address,
		       COALESCE(o.stripe_payment_id, ''), o.created_at, o.updated_at, u.email, u.name
		FROM orders o
		JOIN users u ON u.id = o.user_id
		WHERE o.status = $1
		  AND o.updated_at < $2
		  AND o.updated_at > $3
		  AND NOT EXISTS (
			SELECT 1
			FROM reviews r
			JOIN order_items oi ON oi.product_id = r.product_id
			WHERE oi.order_id = o.id AND r.user_id = o.user_id
		  )
		ORDER BY o.updated_at
	`
	return c.queryWithContact(ctx, query, StatusDelivered, olderThan, newerThan)
}

// CountByStatus returns the total number of orders and how many of them are
// pending, for the daily report.
func (c *Conf) CountByStatus(ctx context.Context) (total int, pending int, err error) {
	query := `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE status = $1)
		FROM orders
	`
	if err := c.db.QueryRowContext(ctx, query, StatusPending).Scan(&total, &pending); err != nil {
		return 0, 0, fmt.Errorf("counting orders: %w", err)
	}
	return total, pending, nil
}

// GetContact resolves the denormalized user fields carried on lifecycle events.
func (c *Conf) GetContact(ctx context.Context, userID string) (Contact, error) {
	query := `SELECT email, name FROM users WHERE id = $1`
	var contact Contact
	if err := c.db.QueryRowContext(ctx, query, userID).Scan(&contact.Email, &contact.Name); err != nil {
		return Contact{}, fmt.Errorf("querying user contact: %w", err)
	}
	return contact, nil
}

func (c *Conf) itemsForOrder(ctx context.Context, orderID string) ([]OrderItem, error) {
	query := `
		SELECT id, order_id, product_id, quantity, unit_price
		FROM order_items
		WHERE order_id = $1
		ORDER BY id
	`
	rows, err := c.db.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("querying order items: %w", err)
	}
	defer rows.Close()

	var items []OrderItem
	for rows.Next() {
		var item OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Quantity, &item.UnitPrice); err != nil {
			return nil, fmt.Errorf("scanning order item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating order items: %w", err)
	}
	return items, nil
}

func (c *Conf) queryWithContact(ctx context.Context, query string, args ...any) ([]OrderWithContact, error) {
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying orders: %w", err)
	}
	defer rows.Close()

	var list []OrderWithContact
	for rows.Next() {
		var oc OrderWithContact
		if err := rows.Scan(&oc.ID, &oc.OrderNumber, &oc.UserID, &oc.Status, &oc.TotalAmount,
			&oc.ShippingAddress, &oc.StripePaymentID, &oc.CreatedAt, &oc.UpdatedAt,
			&oc.Email, &oc.Name); err != nil {
			return nil, fmt.Errorf("scanning order: %w", err)
		}
		list = append(list, oc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating orders: %w", err)
	}
	return list, nil
}

func (c *Conf) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}

	if err := fn(tx); err != nil {
		if er := tx.Rollback(); er != nil && !errors.Is(er, sql.ErrTxDone) {
			return fmt.Errorf("failed to rollback withTx: %w", err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit withTx: %w", err)
	}
	return nil
}

package cart

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"lifecycle-service/internal/orders"

	"github.com/shopspring/decimal"
)

type Conf struct {
	db *sql.DB
}

func NewConf(db *sql.DB) (*Conf, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	return &Conf{db: db}, nil
}

func (c *Conf) AddToCartDB(ctx context.Context, userID string, productID string, quantity int, stock int) error {
	return c.withTx(ctx, func(tx *sql.Tx) error {
		var cartID int64
		// Query to find an active cart for the user
		queryActiveCart := `
			SELECT id
			FROM cart
			WHERE user_id = $1 AND status = 'active'
			FOR UPDATE
		`
		err := tx.QueryRowContext(ctx, queryActiveCart, userID).Scan(&cartID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				// No active cart exists; create a new cart
				queryCreateCart := `
					INSERT INTO cart (user_id, status, created_at, updated_at)
					VALUES ($1, 'active', NOW(), NOW())
					RETURNING id
				`
				err = tx.QueryRowContext(ctx, queryCreateCart, userID).Scan(&cartID)
				if err != nil {
					return fmt.Errorf("failed to create new cart: %w", err)
				}
			} else {
				return fmt.Errorf("failed to query active cart: %w", err)
			}
		}

		// Check if the product already exists in the cart
		queryCartItem := `
			SELECT id, quantity
			FROM cart_items
			WHERE cart_id = $1 AND product_id = $2
		`
		var cartItemID int64
		var existingQuantity int

		err = tx.QueryRowContext(ctx, queryCartItem, cartID, productID).Scan(&cartItemID, &existingQuantity)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				if quantity > stock {
					return fmt.Errorf("insufficient stock: requested %d, available %d", quantity, stock)
				}

				queryAddCartItem := `
					INSERT INTO cart_items (cart_id, product_id, quantity, created_at, updated_at)
					VALUES ($1, $2, $3, NOW(), NOW())
				`
				_, err = tx.ExecContext(ctx, queryAddCartItem, cartID, productID, quantity)
				if err != nil {
					return fmt.Errorf("failed to add product to cart: %w", err)
				}
			} else {
				return fmt.Errorf("failed to query cart items: %w", err)
			}
		} else {
			newQuantity := existingQuantity + quantity
			if newQuantity > stock {
				return fmt.Errorf("insufficient stock: requested %d, available %d", newQuantity, stock)
			}

			queryUpdateCartItem := `
				UPDATE cart_items
				SET quantity = $1, updated_at = NOW()
				WHERE id = $2
			`
			_, err = tx.ExecContext(ctx, queryUpdateCartItem, newQuantity, cartItemID)
			if err != nil {
				return fmt.Errorf("failed to update cart item quantity: %w", err)
			}
		}

		// Touch the cart so the abandonment scan sees recent activity.
		queryTouch := `UPDATE cart SET updated_at = NOW() WHERE id = $1`
		if _, err := tx.ExecContext(ctx, queryTouch, cartID); err != nil {
			return fmt.Errorf("failed to touch cart: %w", err)
		}

		return nil
	})
}

func (c *Conf) GetActiveCartItems(ctx context.Context, userID string) (*CartResponse, error) {
	var items []CartItem

	err := c.withTx(ctx, func(tx *sql.Tx) error {
		var cartID int64
		queryActiveCart := `
			SELECT id
			FROM cart
			WHERE user_id = $1 AND status = 'active'
			LIMIT 1
		`
		err := tx.QueryRowContext(ctx, queryActiveCart, userID).Scan(&cartID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return fmt.Errorf("failed to query active cart: %w", err)
		}

		queryItems := `
            SELECT ci.product_id, ci.quantity
            FROM cart_items ci
            WHERE ci.cart_id = $1
        `
		rows, err := tx.QueryContext(ctx, queryItems, cartID)
		if err != nil {
			return fmt.Errorf("failed to query cart items: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var item CartItem
			if err := rows.Scan(&item.ProductID, &item.Quantity); err != nil {
				return fmt.Errorf("failed to scan cart item: %w", err)
			}
			items = append(items, item)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("error iterating cart items: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &CartResponse{Items: items}, nil
}

// ActiveCartLines locks the user's active cart and returns its items joined
// with live product price and name. It runs on the caller's transaction so
// the order ledger can snapshot and clear atomically.
func (c *Conf) ActiveCartLines(ctx context.Context, tx *sql.Tx, userID string) (int64, []orders.CartLine, error) {
	var cartID int64
	queryActiveCart := `
		SELECT id
		FROM cart
		WHERE user_id = $1 AND status = 'active'
		FOR UPDATE
	`
	err := tx.QueryRowContext(ctx, queryActiveCart, userID).Scan(&cartID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil, nil
		}
		return 0, nil, fmt.Errorf("failed to query active cart: %w", err)
	}

	queryLines := `
		SELECT ci.product_id, p.name, ci.quantity, p.price
		FROM cart_items ci
		JOIN products p ON p.id = ci.product_id
		WHERE ci.cart_id = $1 AND p.is_active
		ORDER BY ci.id
	`
	rows, err := tx.QueryContext(ctx, queryLines, cartID)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to query cart lines: %w", err)
	}
	defer rows.Close()

	var lines []orders.CartLine
	for rows.Next() {
		var line orders.CartLine
		if err := rows.Scan(&line.ProductID, &line.ProductName, &line.Quantity, &line.UnitPrice); err != nil {
			return 0, nil, fmt.Errorf("failed to scan cart line: %w", err)
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return 0, nil, fmt.Errorf("error iterating cart lines: %w", err)
	}
	return cartID, lines, nil
}

// Clear removes all items from the cart on the caller's transaction.
func (c *Conf) Clear(ctx context.Context, tx *sql.Tx, cartID int64) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID); err != nil {
		return fmt.Errorf("failed to clear cart items: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE cart SET updated_at = NOW() WHERE id = $1`, cartID); err != nil {
		return fmt.Errorf("failed to touch cart: %w", err)
	}
	return nil
}

// ListStale returns non-empty active carts untouched since before cutoff,
// with items and totals denormalized for the abandonment notification. The
// carts themselves are not mutated. One joined query; rows arrive grouped by
// cart and are folded in order.
func (c *Conf) ListStale(ctx context.Context, cutoff time.Time) ([]StaleCart, error) {
	query := `
		SELECT c.id, c.user_id, u.email, u.name, c.updated_at,
		       ci.product_id, p.name, ci.quantity, p.price
		FROM cart c
		JOIN users u ON u.id = c.user_id
		JOIN cart_items ci ON ci.cart_id = c.id
		JOIN products p ON p.id = ci.product_id
		WHERE c.status = 'active'
		  AND c.updated_at < $1
		ORDER BY c.updated_at, c.id, ci.id
	`
	rows, err := c.db.QueryContext(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query stale carts: %w", err)
	}
	defer rows.Close()

	var carts []StaleCart
	for rows.Next() {
		var sc StaleCart
		var item StaleCartItem
		if err := rows.Scan(&sc.CartID, &sc.UserID, &sc.Email, &sc.Name, &sc.LastActive,
			&item.ProductID, &item.ProductName, &item.Quantity, &item.UnitPrice); err != nil {
			return nil, fmt.Errorf("failed to scan stale cart row: %w", err)
		}

		lineTotal := item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
		if n := len(carts); n > 0 && carts[n-1].CartID == sc.CartID {
			carts[n-1].Items = append(carts[n-1].Items, item)
			carts[n-1].Total = carts[n-1].Total.Add(lineTotal)
			continue
		}
		sc.Items = []StaleCartItem{item}
		sc.Total = lineTotal
		carts = append(carts, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stale carts: %w", err)
	}
	return carts, nil
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
		return fmt.Errorf("failed to execute withTx: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit withTx: %w", err)
	}
	return nil
}

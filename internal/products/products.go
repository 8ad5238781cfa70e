// Package products is the read-only product/stock collaborator. Catalog
// writes belong to the catalog service; this service only snapshots prices
// and scans stock levels.
package products

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var ErrProductNotFound = errors.New("product not found")

type StockInfo struct {
	ProductID string
	Name      string
	Price     decimal.Decimal
	Stock     int
	IsActive  bool
}

type Conf struct {
	db *sql.DB
}

func NewConf(db *sql.DB) (*Conf, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	return &Conf{db: db}, nil
}

func (c *Conf) GetStockInfo(ctx context.Context, productID string) (StockInfo, error) {
	query := `
		SELECT id, name, price, stock, is_active
		FROM products
		WHERE id = $1
	`
	var info StockInfo
	err := c.db.QueryRowContext(ctx, query, productID).Scan(
		&info.ProductID, &info.Name, &info.Price, &info.Stock, &info.IsActive)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return StockInfo{}, ErrProductNotFound
		}
		return StockInfo{}, fmt.Errorf("querying product: %w", err)
	}
	return info, nil
}

// ListLowStock splits active products under threshold into low (1..threshold)
// and zero stock.
func (c *Conf) ListLowStock(ctx context.Context, threshold int) (low []StockInfo, zero []StockInfo, err error) {
	query := `
		SELECT id, name, price, stock, is_active
		FROM products
		WHERE is_active AND stock <= $1
		ORDER BY stock, name
	`
	rows, err := c.db.QueryContext(ctx, query, threshold)
	if err != nil {
		return nil, nil, fmt.Errorf("querying low stock products: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var info StockInfo
		if err := rows.Scan(&info.ProductID, &info.Name, &info.Price, &info.Stock, &info.IsActive); err != nil {
			return nil, nil, fmt.Errorf("scanning product: %w", err)
		}
		if info.Stock == 0 {
			zero = append(zero, info)
		} else {
			low = append(low, info)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterating products: %w", err)
	}
	return low, zero, nil
}

func (c *Conf) CountLowStock(ctx context.Context, threshold int) (int, error) {
	query := `SELECT COUNT(*) FROM products WHERE is_active AND stock <= $1`
	var n int
	if err := c.db.QueryRowContext(ctx, query, threshold).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting low stock products: %w", err)
	}
	return n, nil
}

package cart

import (
	"time"

	"github.com/shopspring/decimal"
)

type CartItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type CartResponse struct {
	Items []CartItem `json:"items"`
}

// StaleCartItem carries the denormalized product fields the abandonment
// notification renders.
type StaleCartItem struct {
	ProductID   string
	ProductName string
	Quantity    int
	UnitPrice   decimal.Decimal
}

// StaleCart is an active cart untouched since before the configured
// threshold, with its owner's contact details.
type StaleCart struct {
	CartID     int64
	UserID     string
	Email      string
	Name       string
	Items      []StaleCartItem
	Total      decimal.Decimal
	LastActive time.Time
}

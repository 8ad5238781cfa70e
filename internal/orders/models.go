package orders

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"
)

// Order statuses
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusPaid       = "paid"
	StatusShipped    = "shipped"
	StatusDelivered  = "delivered"
	StatusCancelled  = "cancelled"
)

// statusTransitions is the adjacency table for the order state machine.
// A status change is accepted only if it is listed here for the current
// status; delivered and cancelled are terminal. This is what stops a stale
// at-least-once webhook from regressing an order that already moved on.
var statusTransitions = map[string][]string{
	StatusPending:    {StatusProcessing, StatusPaid, StatusCancelled},
	StatusPaid:       {StatusProcessing},
	StatusProcessing: {StatusShipped, StatusCancelled},
	StatusShipped:    {StatusDelivered},
	StatusDelivered:  {},
	StatusCancelled:  {},
}

func canTransition(from, to string) bool {
	for _, next := range statusTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func IsValidStatus(s string) bool {
	_, ok := statusTransitions[s]
	return ok
}

// Order is an immutable snapshot of a purchase. After creation only the
// status, the stripe payment id and the updated timestamp ever change.
type Order struct {
	ID              string          `json:"id"`
	OrderNumber     string          `json:"order_number"`
	UserID          string          `json:"user_id"`
	Status          string          `json:"status"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	ShippingAddress string          `json:"shipping_address"`
	StripePaymentID string          `json:"stripe_payment_id,omitempty"`
	Items           []OrderItem     `json:"items,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// OrderItem snapshots a product at order time. UnitPrice is decoupled from
// the live product price on purpose.
type OrderItem struct {
	ID        int64           `json:"id"`
	OrderID   string          `json:"order_id"`
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// Contact is the denormalized user reference carried on lifecycle events.
type Contact struct {
	Email string
	Name  string
}

// OrderWithContact pairs an order with its owner's contact details for the
// scheduled jobs that fan out notifications.
type OrderWithContact struct {
	Order
	Contact
}

// NewOrderNumber builds the human-readable business key, e.g.
// ORD-20250114-04821. Uniqueness is enforced by the database index; a
// collision within one day across 100k values is accepted as negligible.
func NewOrderNumber(now time.Time) string {
	return fmt.Sprintf("ORD-%s-%05d", now.UTC().Format("20060102"), rand.Intn(100000))
}

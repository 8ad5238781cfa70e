package bus

import "time"

// Event payloads are immutable snapshots. Handlers run after the triggering
// transaction has ended, so events carry the denormalized user and order
// fields they need instead of live entity references.
type Event interface {
	Name() string
}

type Recipient struct {
	UserID string
	Email  string
	Name   string
}

type OrderCreatedEvent struct {
	Recipient
	OrderID     string
	OrderNumber string
	TotalAmount string
	CreatedAt   time.Time
}

func (OrderCreatedEvent) Name() string { return "order.created" }

type OrderPaidEvent struct {
	Recipient
	OrderID     string
	OrderNumber string
	TotalAmount string
	CreatedAt   time.Time
}

func (OrderPaidEvent) Name() string { return "order.paid" }

type OrderShippedEvent struct {
	Recipient
	OrderID     string
	OrderNumber string
	CreatedAt   time.Time
}

func (OrderShippedEvent) Name() string { return "order.shipped" }

type OrderDeliveredEvent struct {
	Recipient
	OrderID     string
	OrderNumber string
	CreatedAt   time.Time
}

func (OrderDeliveredEvent) Name() string { return "order.delivered" }

type OrderCancelledEvent struct {
	Recipient
	OrderID     string
	OrderNumber string
	CreatedAt   time.Time
}

func (OrderCancelledEvent) Name() string { return "order.cancelled" }

type AbandonedCartItem struct {
	ProductID   string
	ProductName string
	Quantity    int
	UnitPrice   string
}

type CartAbandonedEvent struct {
	Recipient
	CartID      int64
	Items       []AbandonedCartItem
	TotalAmount string
	LastActive  time.Time
}

func (CartAbandonedEvent) Name() string { return "cart.abandoned" }

type ReviewReminderEvent struct {
	Recipient
	OrderID     string
	OrderNumber string
	DeliveredAt time.Time
}

func (ReviewReminderEvent) Name() string { return "review.reminder" }

type StockLevel struct {
	ProductID   string
	ProductName string
	Stock       int
}

type LowStockAlertEvent struct {
	Low       []StockLevel
	Zero      []StockLevel
	CreatedAt time.Time
}

func (LowStockAlertEvent) Name() string { return "stock.low" }

type DailyReportEvent struct {
	TotalOrders   int
	PendingOrders int
	LowStockCount int
	CreatedAt     time.Time
}

func (DailyReportEvent) Name() string { return "report.daily" }

type PriceDropEvent struct {
	ProductID   string
	ProductName string
	OldPrice    string
	NewPrice    string
	Recipients  []Recipient
	CreatedAt   time.Time
}

func (PriceDropEvent) Name() string { return "price.drop" }

type RestockEvent struct {
	ProductID   string
	ProductName string
	Stock       int
	Recipients  []Recipient
	CreatedAt   time.Time
}

func (RestockEvent) Name() string { return "product.restock" }

package kafka

import "time"

const (
	TopicOrderPaid      = `order-service.order-paid`
	TopicOrderDelivered = `order-service.order-delivered`
	TopicOrderCancelled = `order-service.order-cancelled`

	// Announced by the catalog service; consumed here to notify wishlisted users.
	TopicPriceDropped   = `catalog-service.price-dropped`
	TopicProductRestock = `catalog-service.product-restocked`
)

// OrderPaidEvent is produced per product on a successful payment so the
// catalog service can decrement stock.
type OrderPaidEvent struct {
	OrderId   string    `json:"order_id"`
	ProductId string    `json:"product_id"`
	Quantity  int       `json:"quantity"`
	CreatedAt time.Time `json:"created_at"`
}

type OrderStatusEvent struct {
	OrderId     string    `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	UserId      string    `json:"user_id"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

// Recipient is the denormalized target of a catalog notification. The
// catalog service resolves wishlists at publish time so this service never
// reads wishlist state.
type Recipient struct {
	UserId string `json:"user_id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
}

type PriceDroppedEvent struct {
	ProductId   string      `json:"product_id"`
	ProductName string      `json:"product_name"`
	OldPrice    string      `json:"old_price"`
	NewPrice    string      `json:"new_price"`
	Recipients  []Recipient `json:"recipients"`
	CreatedAt   time.Time   `json:"created_at"`
}

type ProductRestockedEvent struct {
	ProductId   string      `json:"product_id"`
	ProductName string      `json:"product_name"`
	Stock       int         `json:"stock"`
	Recipients  []Recipient `json:"recipients"`
	CreatedAt   time.Time   `json:"created_at"`
}

package notify

import (
	"fmt"
	"strings"

	"lifecycle-service/internal/bus"
)

// Renderer turns an event into a subject and body. The production templates
// live with the email collaborator; this plain-text renderer is the default.
type Renderer interface {
	Render(ev bus.Event) (subject, body string, err error)
}

type TextRenderer struct{}

func (TextRenderer) Render(ev bus.Event) (string, string, error) {
	switch e := ev.(type) {
	case bus.OrderCreatedEvent:
		return fmt.Sprintf("Order %s received", e.OrderNumber),
			fmt.Sprintf("Hi %s,\n\nWe received your order %s for %s. We'll let you know when payment is confirmed.\n",
				e.Recipient.Name, e.OrderNumber, e.TotalAmount), nil
	case bus.OrderPaidEvent:
		return fmt.Sprintf("Payment confirmed for order %s", e.OrderNumber),
			fmt.Sprintf("Hi %s,\n\nThank you for your order! Payment of %s for order %s is confirmed. We are processing it now.\n",
				e.Recipient.Name, e.TotalAmount, e.OrderNumber), nil
	case bus.OrderShippedEvent:
		return fmt.Sprintf("Order %s shipped", e.OrderNumber),
			fmt.Sprintf("Hi %s,\n\nYour order %s is on its way.\n", e.Recipient.Name, e.OrderNumber), nil
	case bus.OrderDeliveredEvent:
		return fmt.Sprintf("Order %s delivered", e.OrderNumber),
			fmt.Sprintf("Hi %s,\n\nYour order %s has been delivered. Enjoy!\n", e.Recipient.Name, e.OrderNumber), nil
	case bus.OrderCancelledEvent:
		return fmt.Sprintf("Order %s cancelled", e.OrderNumber),
			fmt.Sprintf("Hi %s,\n\nYour order %s has been cancelled. Any captured payment will be refunded.\n",
				e.Recipient.Name, e.OrderNumber), nil
	case bus.CartAbandonedEvent:
		var sb strings.Builder
		fmt.Fprintf(&sb, "Hi %s,\n\nYou left these in your cart:\n", e.Recipient.Name)
		for _, item := range e.Items {
			fmt.Fprintf(&sb, "  - %s x%d @ %s\n", item.ProductName, item.Quantity, item.UnitPrice)
		}
		fmt.Fprintf(&sb, "\nTotal: %s. Checkout before they're gone!\n", e.TotalAmount)
		return "You left something behind", sb.String(), nil
	case bus.ReviewReminderEvent:
		return fmt.Sprintf("How was order %s?", e.OrderNumber),
			fmt.Sprintf("Hi %s,\n\nYour order %s arrived a little while ago. Mind leaving a review?\n",
				e.Recipient.Name, e.OrderNumber), nil
	case bus.LowStockAlertEvent:
		var sb strings.Builder
		sb.WriteString("Stock report:\n\nOut of stock:\n")
		for _, p := range e.Zero {
			fmt.Fprintf(&sb, "  - %s\n", p.ProductName)
		}
		sb.WriteString("\nRunning low:\n")
		for _, p := range e.Low {
			fmt.Fprintf(&sb, "  - %s (%d left)\n", p.ProductName, p.Stock)
		}
		return "Low stock alert", sb.String(), nil
	case bus.DailyReportEvent:
		return "Daily order report",
			fmt.Sprintf("Orders total: %d\nPending: %d\nLow stock products: %d\n",
				e.TotalOrders, e.PendingOrders, e.LowStockCount), nil
	case bus.PriceDropEvent:
		return fmt.Sprintf("Price drop: %s", e.ProductName),
			fmt.Sprintf("%s dropped from %s to %s. It's on your wishlist!\n",
				e.ProductName, e.OldPrice, e.NewPrice), nil
	case bus.RestockEvent:
		return fmt.Sprintf("Back in stock: %s", e.ProductName),
			fmt.Sprintf("%s is back in stock (%d available). It's on your wishlist!\n",
				e.ProductName, e.Stock), nil
	}
	return "", "", fmt.Errorf("no template for event %s", ev.Name())
}

package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"lifecycle-service/internal/bus"
	"lifecycle-service/internal/cart"
	"lifecycle-service/internal/config"
	"lifecycle-service/internal/orders"
	"lifecycle-service/internal/products"

	"github.com/shopspring/decimal"
)

type fakeLedger struct {
	shipped       []orders.OrderWithContact
	delivered     []orders.OrderWithContact
	total         int
	pending       int
	transitionErr map[string]error // orderID -> error returned by Transition

	transitions []string
}

func (l *fakeLedger) ListShippedBefore(_ context.Context, _ time.Time) ([]orders.OrderWithContact, error) {
	return l.shipped, nil
}

func (l *fakeLedger) ListDeliveredWithoutReview(_ context.Context, _, _ time.Time) ([]orders.OrderWithContact, error) {
	return l.delivered, nil
}

func (l *fakeLedger) CountByStatus(_ context.Context) (int, int, error) {
	return l.total, l.pending, nil
}

func (l *fakeLedger) Transition(_ context.Context, orderID, target string) (orders.Order, bool, error) {
	if err := l.transitionErr[orderID]; err != nil {
		return orders.Order{}, false, err
	}
	l.transitions = append(l.transitions, orderID+":"+target)
	return orders.Order{ID: orderID, Status: target}, true, nil
}

type fakeCarts struct {
	stale []cart.StaleCart
}

func (c *fakeCarts) ListStale(_ context.Context, _ time.Time) ([]cart.StaleCart, error) {
	return c.stale, nil
}

type fakeStock struct {
	low  []products.StockInfo
	zero []products.StockInfo
}

func (s *fakeStock) ListLowStock(_ context.Context, _ int) ([]products.StockInfo, []products.StockInfo, error) {
	return s.low, s.zero, nil
}

func (s *fakeStock) CountLowStock(_ context.Context, _ int) (int, error) {
	return len(s.low) + len(s.zero), nil
}

type fakePublisher struct {
	events []bus.Event
}

func (p *fakePublisher) Publish(ev bus.Event) {
	p.events = append(p.events, ev)
}

func testJobs(t *testing.T, ledger *fakeLedger, carts *fakeCarts, stock *fakeStock) (*Jobs, *fakePublisher) {
	t.Helper()
	publisher := &fakePublisher{}
	cfg := config.Scheduler{
		AbandonedCartAfter:    24 * time.Hour,
		AutoDeliverAfter:      72 * time.Hour,
		ReviewReminderMinDays: 3,
		ReviewReminderMaxDays: 14,
		LowStockThreshold:     10,
	}
	jobs, err := NewJobs(cfg, ledger, carts, stock, publisher)
	if err != nil {
		t.Fatalf("NewJobs: %v", err)
	}
	return jobs, publisher
}

func shippedOrder(id string) orders.OrderWithContact {
	return orders.OrderWithContact{
		Order:   orders.Order{ID: id, OrderNumber: "ORD-20250114-00001", UserID: "u1", Status: orders.StatusShipped},
		Contact: orders.Contact{Email: "buyer@example.com", Name: "Buyer"},
	}
}

func TestAutoDeliverScanEmitsOnePerChangedOrder(t *testing.T) {
	ledger := &fakeLedger{shipped: []orders.OrderWithContact{shippedOrder("o1"), shippedOrder("o2")}}
	jobs, publisher := testJobs(t, ledger, &fakeCarts{}, &fakeStock{})

	if err := jobs.AutoDeliverScan(context.Background()); err != nil {
		t.Fatalf("AutoDeliverScan: %v", err)
	}

	if len(ledger.transitions) != 2 {
		t.Fatalf("expected 2 transitions, got %v", ledger.transitions)
	}
	if len(publisher.events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(publisher.events))
	}
	ev, ok := publisher.events[0].(bus.OrderDeliveredEvent)
	if !ok {
		t.Fatalf("expected OrderDeliveredEvent, got %T", publisher.events[0])
	}
	if ev.OrderID != "o1" || ev.Email != "buyer@example.com" {
		t.Fatalf("unexpected event payload: %+v", ev)
	}
}

func TestAutoDeliverScanContinuesPastFailures(t *testing.T) {
	ledger := &fakeLedger{
		shipped: []orders.OrderWithContact{shippedOrder("o1"), shippedOrder("o2"), shippedOrder("o3")},
		transitionErr: map[string]error{
			"o1": errors.New("db timeout"),
			"o2": &orders.InvalidTransitionError{OrderID: "o2", From: orders.StatusCancelled, To: orders.StatusDelivered},
		},
	}
	jobs, publisher := testJobs(t, ledger, &fakeCarts{}, &fakeStock{})

	if err := jobs.AutoDeliverScan(context.Background()); err != nil {
		t.Fatalf("AutoDeliverScan: %v", err)
	}

	if len(ledger.transitions) != 1 || ledger.transitions[0] != "o3:delivered" {
		t.Fatalf("expected only o3 to transition, got %v", ledger.transitions)
	}
	if len(publisher.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(publisher.events))
	}
}

func TestAbandonedCartScanPayload(t *testing.T) {
	lastActive := time.Date(2025, 1, 13, 9, 30, 0, 0, time.UTC)
	carts := &fakeCarts{stale: []cart.StaleCart{{
		CartID: 7,
		UserID: "u1",
		Email:  "buyer@example.com",
		Name:   "Buyer",
		Items: []cart.StaleCartItem{
			{ProductID: "p1", ProductName: "Mug", Quantity: 2, UnitPrice: decimal.RequireFromString("10.00")},
			{ProductID: "p2", ProductName: "Pen", Quantity: 1, UnitPrice: decimal.RequireFromString("5.50")},
		},
		Total:      decimal.RequireFromString("25.50"),
		LastActive: lastActive,
	}}}
	jobs, publisher := testJobs(t, &fakeLedger{}, carts, &fakeStock{})

	if err := jobs.AbandonedCartScan(context.Background()); err != nil {
		t.Fatalf("AbandonedCartScan: %v", err)
	}

	if len(publisher.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(publisher.events))
	}
	ev := publisher.events[0].(bus.CartAbandonedEvent)
	if ev.CartID != 7 || ev.TotalAmount != "25.50" || !ev.LastActive.Equal(lastActive) {
		t.Fatalf("unexpected event payload: %+v", ev)
	}
	if len(ev.Items) != 2 || ev.Items[1].UnitPrice != "5.50" {
		t.Fatalf("unexpected items: %+v", ev.Items)
	}
}

func TestReviewReminderScan(t *testing.T) {
	deliveredAt := time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)
	order := shippedOrder("o1")
	order.Status = orders.StatusDelivered
	order.UpdatedAt = deliveredAt
	ledger := &fakeLedger{delivered: []orders.OrderWithContact{order}}
	jobs, publisher := testJobs(t, ledger, &fakeCarts{}, &fakeStock{})

	if err := jobs.ReviewReminderScan(context.Background()); err != nil {
		t.Fatalf("ReviewReminderScan: %v", err)
	}

	if len(publisher.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(publisher.events))
	}
	ev := publisher.events[0].(bus.ReviewReminderEvent)
	if ev.OrderID != "o1" || !ev.DeliveredAt.Equal(deliveredAt) {
		t.Fatalf("unexpected event payload: %+v", ev)
	}
}

func TestLowStockScanSkipsWhenHealthy(t *testing.T) {
	jobs, publisher := testJobs(t, &fakeLedger{}, &fakeCarts{}, &fakeStock{})

	if err := jobs.LowStockScan(context.Background()); err != nil {
		t.Fatalf("LowStockScan: %v", err)
	}
	if len(publisher.events) != 0 {
		t.Fatalf("expected no events, got %d", len(publisher.events))
	}
}

func TestLowStockScanAggregates(t *testing.T) {
	stock := &fakeStock{
		low:  []products.StockInfo{{ProductID: "p1", Name: "Mug", Stock: 3}},
		zero: []products.StockInfo{{ProductID: "p2", Name: "Pen", Stock: 0}},
	}
	jobs, publisher := testJobs(t, &fakeLedger{}, &fakeCarts{}, stock)

	if err := jobs.LowStockScan(context.Background()); err != nil {
		t.Fatalf("LowStockScan: %v", err)
	}

	if len(publisher.events) != 1 {
		t.Fatalf("expected 1 aggregate event, got %d", len(publisher.events))
	}
	ev := publisher.events[0].(bus.LowStockAlertEvent)
	if len(ev.Low) != 1 || len(ev.Zero) != 1 || ev.Zero[0].ProductID != "p2" {
		t.Fatalf("unexpected event payload: %+v", ev)
	}
}

func TestDailyReport(t *testing.T) {
	ledger := &fakeLedger{total: 42, pending: 5}
	stock := &fakeStock{low: []products.StockInfo{{ProductID: "p1", Name: "Mug", Stock: 3}}}
	jobs, publisher := testJobs(t, ledger, &fakeCarts{}, stock)

	if err := jobs.DailyReport(context.Background()); err != nil {
		t.Fatalf("DailyReport: %v", err)
	}

	ev := publisher.events[0].(bus.DailyReportEvent)
	if ev.TotalOrders != 42 || ev.PendingOrders != 5 || ev.LowStockCount != 1 {
		t.Fatalf("unexpected report: %+v", ev)
	}
}

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"lifecycle-service/internal/bus"
	"lifecycle-service/internal/cart"
	"lifecycle-service/internal/config"
	"lifecycle-service/internal/orders"
	"lifecycle-service/internal/products"
	"lifecycle-service/pkg/logkey"
)

// Ledger is the slice of the order ledger the scheduled jobs read and drive.
type Ledger interface {
	ListShippedBefore(ctx context.Context, cutoff time.Time) ([]orders.OrderWithContact, error)
	ListDeliveredWithoutReview(ctx context.Context, olderThan, newerThan time.Time) ([]orders.OrderWithContact, error)
	CountByStatus(ctx context.Context) (total int, pending int, err error)
	Transition(ctx context.Context, orderID, target string) (orders.Order, bool, error)
}

type CartScanner interface {
	ListStale(ctx context.Context, cutoff time.Time) ([]cart.StaleCart, error)
}

type StockScanner interface {
	ListLowStock(ctx context.Context, threshold int) (low []products.StockInfo, zero []products.StockInfo, err error)
	CountLowStock(ctx context.Context, threshold int) (int, error)
}

type Publisher interface {
	Publish(ev bus.Event)
}

// Jobs bundles the scheduled scans. They only read state, apply guarded
// transitions and emit events; notification delivery is the dispatcher's
// problem and never blocks a job.
type Jobs struct {
	ledger    Ledger
	carts     CartScanner
	stock     StockScanner
	publisher Publisher
	cfg       config.Scheduler
}

func NewJobs(cfg config.Scheduler, ledger Ledger, carts CartScanner, stock StockScanner, publisher Publisher) (*Jobs, error) {
	if ledger == nil || carts == nil || stock == nil || publisher == nil {
		return nil, fmt.Errorf("scheduler dependencies are nil")
	}
	return &Jobs{ledger: ledger, carts: carts, stock: stock, publisher: publisher, cfg: cfg}, nil
}

// RegisterAll wires every job into the scheduler with its configured interval.
func (j *Jobs) RegisterAll(s *Scheduler) {
	s.Register("abandoned-cart-scan", j.cfg.AbandonedCartInterval, j.AbandonedCartScan)
	s.Register("auto-deliver-scan", j.cfg.AutoDeliverInterval, j.AutoDeliverScan)
	s.Register("review-reminder-scan", j.cfg.ReviewInterval, j.ReviewReminderScan)
	s.Register("low-stock-scan", j.cfg.LowStockInterval, j.LowStockScan)
	s.Register("daily-report", j.cfg.DailyReportInterval, j.DailyReport)
}

// AbandonedCartScan emits one event per cart last touched before the
// threshold. Cart state is not mutated, so the same cart re-announces on
// the next run until the user acts; the dispatcher's preference gate keeps
// that from becoming spam for opted-out users.
func (j *Jobs) AbandonedCartScan(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-j.cfg.AbandonedCartAfter)
	stale, err := j.carts.ListStale(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("scanning stale carts: %w", err)
	}

	for _, sc := range stale {
		items := make([]bus.AbandonedCartItem, 0, len(sc.Items))
		for _, item := range sc.Items {
			items = append(items, bus.AbandonedCartItem{
				ProductID:   item.ProductID,
				ProductName: item.ProductName,
				Quantity:    item.Quantity,
				UnitPrice:   item.UnitPrice.StringFixed(2),
			})
		}
		j.publisher.Publish(bus.CartAbandonedEvent{
			Recipient:   bus.Recipient{UserID: sc.UserID, Email: sc.Email, Name: sc.Name},
			CartID:      sc.CartID,
			Items:       items,
			TotalAmount: sc.Total.StringFixed(2),
			LastActive:  sc.LastActive,
		})
	}
	return nil
}

// AutoDeliverScan moves shipped orders past the threshold to delivered
// through the guarded transition and emits one delivery event per order
// actually moved. A failure on one order is logged and the scan continues.
func (j *Jobs) AutoDeliverScan(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-j.cfg.AutoDeliverAfter)
	shipped, err := j.ledger.ListShippedBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("scanning shipped orders: %w", err)
	}

	for _, oc := range shipped {
		_, changed, err := j.ledger.Transition(ctx, oc.ID, orders.StatusDelivered)
		if err != nil {
			var invalid *orders.InvalidTransitionError
			if errors.As(err, &invalid) {
				// Another writer moved the order between scan and lock.
				slog.Info("auto-deliver skipped", slog.String(logkey.OrderID, oc.ID),
					slog.String(logkey.ERROR, invalid.Error()))
				continue
			}
			slog.Error("auto-deliver failed", slog.String(logkey.OrderID, oc.ID),
				slog.String(logkey.ERROR, err.Error()))
			continue
		}
		if !changed {
			continue
		}

		j.publisher.Publish(bus.OrderDeliveredEvent{
			Recipient:   bus.Recipient{UserID: oc.UserID, Email: oc.Email, Name: oc.Name},
			OrderID:     oc.ID,
			OrderNumber: oc.OrderNumber,
			CreatedAt:   time.Now().UTC(),
		})
	}
	return nil
}

// ReviewReminderScan emits one reminder per delivered order inside the
// rolling window whose owner has not reviewed any ordered product.
func (j *Jobs) ReviewReminderScan(ctx context.Context) error {
	now := time.Now().UTC()
	olderThan := now.AddDate(0, 0, -j.cfg.ReviewReminderMinDays)
	newerThan := now.AddDate(0, 0, -j.cfg.ReviewReminderMaxDays)

	due, err := j.ledger.ListDeliveredWithoutReview(ctx, olderThan, newerThan)
	if err != nil {
		return fmt.Errorf("scanning delivered orders: %w", err)
	}

	for _, oc := range due {
		j.publisher.Publish(bus.ReviewReminderEvent{
			Recipient:   bus.Recipient{UserID: oc.UserID, Email: oc.Email, Name: oc.Name},
			OrderID:     oc.ID,
			OrderNumber: oc.OrderNumber,
			DeliveredAt: oc.UpdatedAt,
		})
	}
	return nil
}

// LowStockScan emits one aggregate alert covering low and zero stock, or
// nothing when both lists are empty.
func (j *Jobs) LowStockScan(ctx context.Context) error {
	low, zero, err := j.stock.ListLowStock(ctx, j.cfg.LowStockThreshold)
	if err != nil {
		return fmt.Errorf("scanning stock levels: %w", err)
	}
	if len(low) == 0 && len(zero) == 0 {
		return nil
	}

	ev := bus.LowStockAlertEvent{CreatedAt: time.Now().UTC()}
	for _, p := range low {
		ev.Low = append(ev.Low, bus.StockLevel{ProductID: p.ProductID, ProductName: p.Name, Stock: p.Stock})
	}
	for _, p := range zero {
		ev.Zero = append(ev.Zero, bus.StockLevel{ProductID: p.ProductID, ProductName: p.Name, Stock: p.Stock})
	}
	j.publisher.Publish(ev)
	return nil
}

// DailyReport emits one aggregate counts event.
func (j *Jobs) DailyReport(ctx context.Context) error {
	total, pending, err := j.ledger.CountByStatus(ctx)
	if err != nil {
		return fmt.Errorf("counting orders: %w", err)
	}
	lowStock, err := j.stock.CountLowStock(ctx, j.cfg.LowStockThreshold)
	if err != nil {
		return fmt.Errorf("counting low stock: %w", err)
	}

	j.publisher.Publish(bus.DailyReportEvent{
		TotalOrders:   total,
		PendingOrders: pending,
		LowStockCount: lowStock,
		CreatedAt:     time.Now().UTC(),
	})
	return nil
}

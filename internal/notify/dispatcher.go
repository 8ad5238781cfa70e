// Package notify consumes lifecycle events and turns them into outbound
// messages. Delivery is fire-and-forget: a failed send is logged and
// swallowed, never surfaced to the operation that emitted the event.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"lifecycle-service/internal/bus"
	"lifecycle-service/internal/config"
	"lifecycle-service/internal/prefs"
	"lifecycle-service/pkg/logkey"
)

// Sender is the external send channel.
type Sender interface {
	Send(to, subject, body string) error
}

// PrefStore resolves per-user notification flags, creating defaults on
// first read.
type PrefStore interface {
	GetOrCreateDefault(ctx context.Context, userID string) (prefs.Preferences, error)
}

type Dispatcher struct {
	prefs       PrefStore
	renderer    Renderer
	sender      Sender
	adminEmail  string
	sendTimeout time.Duration
}

func NewDispatcher(cfg config.Notify, store PrefStore, renderer Renderer, sender Sender) (*Dispatcher, error) {
	if store == nil || renderer == nil || sender == nil {
		return nil, fmt.Errorf("dispatcher dependencies are nil")
	}
	return &Dispatcher{
		prefs:       store,
		renderer:    renderer,
		sender:      sender,
		adminEmail:  cfg.AdminEmail,
		sendTimeout: cfg.SendTimeout,
	}, nil
}

// Handle processes one event. It is the bus worker entrypoint and never
// returns an error: every failure path ends at a log line.
func (d *Dispatcher) Handle(ctx context.Context, ev bus.Event) {
	switch e := ev.(type) {
	case bus.OrderCreatedEvent:
		d.deliverGated(ctx, ev, e.Recipient, func(p prefs.Preferences) bool { return p.OrderUpdates })
	case bus.OrderPaidEvent:
		d.deliverGated(ctx, ev, e.Recipient, func(p prefs.Preferences) bool { return p.OrderUpdates })
	case bus.OrderCancelledEvent:
		d.deliverGated(ctx, ev, e.Recipient, func(p prefs.Preferences) bool { return p.OrderUpdates })
	case bus.OrderShippedEvent:
		d.deliverGated(ctx, ev, e.Recipient, func(p prefs.Preferences) bool { return p.Shipping })
	case bus.OrderDeliveredEvent:
		d.deliverGated(ctx, ev, e.Recipient, func(p prefs.Preferences) bool { return p.Shipping })
	case bus.CartAbandonedEvent:
		d.deliverGated(ctx, ev, e.Recipient, func(p prefs.Preferences) bool { return p.Promotional })
	case bus.ReviewReminderEvent:
		d.deliverGated(ctx, ev, e.Recipient, func(p prefs.Preferences) bool { return p.ReviewReminder })
	case bus.PriceDropEvent:
		// Each wishlisted user is handled on its own; one failure never
		// blocks the rest.
		for _, r := range e.Recipients {
			d.deliverGated(ctx, ev, r, func(p prefs.Preferences) bool { return p.PriceDrop })
		}
	case bus.RestockEvent:
		for _, r := range e.Recipients {
			d.deliverGated(ctx, ev, r, func(p prefs.Preferences) bool { return p.Restock })
		}
	case bus.LowStockAlertEvent, bus.DailyReportEvent:
		// Operational mail goes to the admin address, no preference gate.
		d.deliver(ctx, ev, d.adminEmail)
	default:
		slog.Warn("no dispatch rule for event", slog.String("Event", ev.Name()))
	}
}

func (d *Dispatcher) deliverGated(ctx context.Context, ev bus.Event, r bus.Recipient, enabled func(prefs.Preferences) bool) {
	p, err := d.prefs.GetOrCreateDefault(ctx, r.UserID)
	if err != nil {
		slog.Error("resolving notification preferences", slog.String(logkey.UserID, r.UserID),
			slog.String(logkey.ERROR, err.Error()))
		return
	}
	if !enabled(p) {
		slog.Info("notification disabled by preference", slog.String(logkey.UserID, r.UserID),
			slog.String("Event", ev.Name()))
		return
	}
	d.deliver(ctx, ev, r.Email)
}

func (d *Dispatcher) deliver(ctx context.Context, ev bus.Event, to string) {
	subject, body, err := d.renderer.Render(ev)
	if err != nil {
		slog.Error("rendering notification", slog.String("Event", ev.Name()),
			slog.String(logkey.ERROR, err.Error()))
		return
	}

	if err := d.sendWithTimeout(ctx, to, subject, body); err != nil {
		slog.Error("sending notification", slog.String("Event", ev.Name()),
			slog.String("To", to), slog.String(logkey.ERROR, err.Error()))
		return
	}
	slog.Info("notification sent", slog.String("Event", ev.Name()), slog.String("To", to))
}

// sendWithTimeout bounds the external send call so a slow channel cannot
// starve the bus worker pool. The abandoned goroutine finishes on its own;
// its result is discarded.
func (d *Dispatcher) sendWithTimeout(ctx context.Context, to, subject, body string) error {
	ctx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- d.sender.Send(to, subject, body)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("send timed out after %s", d.sendTimeout)
	}
}

package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"lifecycle-service/internal/bus"
	"lifecycle-service/internal/config"
	"lifecycle-service/internal/orders"
	"lifecycle-service/internal/stores/kafka"
	"lifecycle-service/pkg/logkey"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/paymentintent"
	"github.com/stripe/stripe-go/v81/webhook"
)

var (
	// ErrInvalidSignature means the webhook payload failed verification
	// against the configured secret. Nothing in the payload is trusted.
	ErrInvalidSignature = errors.New("invalid webhook signature")

	// ErrUnknownPaymentRef means no order carries the payment intent id the
	// gateway reported. Orders are never created implicitly from webhooks.
	ErrUnknownPaymentRef = errors.New("unknown payment reference")

	// ErrInvalidOrderState means a payment intent was requested for an order
	// that is not pending.
	ErrInvalidOrderState = errors.New("order is not in a payable state")
)

// Ledger is the slice of the order ledger the reconciler drives.
type Ledger interface {
	GetByID(ctx context.Context, orderID string) (orders.Order, error)
	GetByPaymentRef(ctx context.Context, ref string) (orders.Order, error)
	Transition(ctx context.Context, orderID, target string) (orders.Order, bool, error)
	SetPaymentRef(ctx context.Context, orderID, ref string) error
	GetContact(ctx context.Context, userID string) (orders.Contact, error)
}

// EventCache is the TTL'd seen-event-id set backing webhook idempotency.
type EventCache interface {
	MarkEventSeen(ctx context.Context, eventID string) (first bool, err error)
	ForgetEvent(ctx context.Context, eventID string) error
}

type Producer interface {
	ProduceMessage(topic string, key []byte, value []byte) error
}

type Publisher interface {
	Publish(ev bus.Event)
}

// intentCreator indirects stripe's package-level call for tests.
type intentCreator func(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)

type Conf struct {
	ledger    Ledger
	events    EventCache
	producer  Producer
	publisher Publisher

	webhookSecret string
	currency      string
	newIntent     intentCreator
}

func NewConf(cfg config.Stripe, ledger Ledger, events EventCache, producer Producer, publisher Publisher) (*Conf, error) {
	if ledger == nil || events == nil || producer == nil || publisher == nil {
		return nil, fmt.Errorf("payments dependencies are nil")
	}
	if cfg.SecretKey == "" || cfg.WebhookSecret == "" {
		return nil, fmt.Errorf("stripe keys are not configured")
	}
	stripe.Key = cfg.SecretKey

	return &Conf{
		ledger:        ledger,
		events:        events,
		producer:      producer,
		publisher:     publisher,
		webhookSecret: cfg.WebhookSecret,
		currency:      cfg.Currency,
		newIntent: func(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
			return paymentintent.New(params)
		},
	}, nil
}

// CreateIntent opens a payment intent for a pending order and stores the
// intent id on the order exactly once. The amount comes from the order's
// immutable total converted to the smallest currency unit.
func (c *Conf) CreateIntent(ctx context.Context, orderID string) (clientSecret string, err error) {
	order, err := c.ledger.GetByID(ctx, orderID)
	if err != nil {
		return "", err
	}
	if order.Status != orders.StatusPending {
		return "", fmt.Errorf("order %s is %s: %w", orderID, order.Status, ErrInvalidOrderState)
	}
	if order.StripePaymentID != "" {
		return "", fmt.Errorf("order %s: %w", orderID, orders.ErrPaymentRefAlreadySet)
	}

	amount := order.TotalAmount.Mul(decimal.NewFromInt(100)).IntPart()
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amount),
		Currency: stripe.String(c.currency),
		Metadata: map[string]string{
			"order_id":     order.ID,
			"order_number": order.OrderNumber,
			"user_id":      order.UserID,
		},
	}
	intent, err := c.newIntent(params)
	if err != nil {
		return "", fmt.Errorf("creating payment intent: %w", err)
	}

	if err := c.ledger.SetPaymentRef(ctx, orderID, intent.ID); err != nil {
		return "", err
	}
	return intent.ClientSecret, nil
}

// paymentStage orders the statuses a webhook can push an order through. A
// webhook only ever moves an order forward; a stale delivery carrying an
// earlier stage is dropped before it reaches the ledger.
var paymentStage = map[string]int{
	orders.StatusPending:    0,
	orders.StatusProcessing: 1,
	orders.StatusPaid:       2,
	orders.StatusShipped:    3,
	orders.StatusDelivered:  4,
}

// HandleWebhook verifies, classifies and applies one gateway event.
// Duplicate and out-of-order deliveries are no-ops; unknown event types are
// logged and ignored.
func (c *Conf) HandleWebhook(ctx context.Context, payload []byte, sigHeader string) error {
	event, err := webhook.ConstructEvent(payload, sigHeader, c.webhookSecret)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	var target string
	switch event.Type {
	case "payment_intent.succeeded":
		target = orders.StatusPaid
	case "payment_intent.processing":
		target = orders.StatusProcessing
	case "payment_intent.canceled":
		target = orders.StatusCancelled
	default:
		slog.Info("unhandled event type", slog.String(logkey.EventType, string(event.Type)))
		return nil
	}

	first, err := c.events.MarkEventSeen(ctx, event.ID)
	marked := err == nil && first
	if err != nil {
		// The transition guard below still makes a duplicate harmless, so a
		// cache outage degrades rather than fails the webhook.
		slog.Error("event cache unavailable", slog.String(logkey.EventID, event.ID),
			slog.String(logkey.ERROR, err.Error()))
	} else if !first {
		slog.Info("duplicate webhook event skipped", slog.String(logkey.EventID, event.ID))
		return nil
	}

	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		c.forgetEvent(ctx, event.ID, marked)
		return fmt.Errorf("unmarshalling payment intent: %w", err)
	}

	order, err := c.ledger.GetByPaymentRef(ctx, intent.ID)
	if err != nil {
		// The event stays unmarked so the gateway's retry gets another shot;
		// an unknown ref may just mean the intent's order has not committed
		// its payment reference yet.
		c.forgetEvent(ctx, event.ID, marked)
		if errors.Is(err, orders.ErrOrderNotFound) {
			return fmt.Errorf("payment intent %s: %w", intent.ID, ErrUnknownPaymentRef)
		}
		return err
	}

	if target != orders.StatusCancelled && paymentStage[target] <= paymentStage[order.Status] {
		slog.Info("stale webhook event skipped",
			slog.String(logkey.EventID, event.ID),
			slog.String(logkey.OrderID, order.ID),
			slog.String("Current", order.Status),
			slog.String("Target", target))
		return nil
	}

	updated, changed, err := c.ledger.Transition(ctx, order.ID, target)
	if err != nil {
		var invalid *orders.InvalidTransitionError
		if errors.As(err, &invalid) {
			slog.Info("webhook transition not applicable",
				slog.String(logkey.EventID, event.ID),
				slog.String(logkey.ERROR, invalid.Error()))
			return nil
		}
		c.forgetEvent(ctx, event.ID, marked)
		return err
	}
	if !changed {
		return nil
	}

	c.emitLifecycle(ctx, updated, target)
	return nil
}

// forgetEvent releases the seen-event mark when processing fails after it was
// taken, so the gateway's retry is not dropped as a duplicate and the status
// change is not lost. Best effort: if the delete fails too, the transition
// guard still keeps a replay harmless.
func (c *Conf) forgetEvent(ctx context.Context, eventID string, marked bool) {
	if !marked {
		return
	}
	if err := c.events.ForgetEvent(ctx, eventID); err != nil {
		slog.Error("releasing seen event mark", slog.String(logkey.EventID, eventID),
			slog.String(logkey.ERROR, err.Error()))
	}
}

func (c *Conf) emitLifecycle(ctx context.Context, order orders.Order, target string) {
	contact, err := c.ledger.GetContact(ctx, order.UserID)
	if err != nil {
		slog.Error("resolving order contact", slog.String(logkey.OrderID, order.ID),
			slog.String(logkey.ERROR, err.Error()))
	}
	recipient := bus.Recipient{UserID: order.UserID, Email: contact.Email, Name: contact.Name}
	now := time.Now().UTC()

	switch target {
	case orders.StatusPaid:
		c.publisher.Publish(bus.OrderPaidEvent{
			Recipient:   recipient,
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			TotalAmount: order.TotalAmount.StringFixed(2),
			CreatedAt:   now,
		})
		c.produceOrderPaid(ctx, order)
	case orders.StatusCancelled:
		c.publisher.Publish(bus.OrderCancelledEvent{
			Recipient:   recipient,
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			CreatedAt:   now,
		})
		c.produceStatus(kafka.TopicOrderCancelled, order)
	}
}

// produceOrderPaid tells the catalog service which stock to decrement, one
// record per product like the rest of the platform expects.
func (c *Conf) produceOrderPaid(ctx context.Context, order orders.Order) {
	full := order
	if len(full.Items) == 0 {
		var err error
		full, err = c.ledger.GetByID(ctx, order.ID)
		if err != nil {
			slog.Error("loading order items for kafka", slog.String(logkey.OrderID, order.ID),
				slog.String(logkey.ERROR, err.Error()))
			return
		}
	}

	for _, item := range full.Items {
		data, err := json.Marshal(kafka.OrderPaidEvent{
			OrderId:   order.ID,
			ProductId: item.ProductID,
			Quantity:  item.Quantity,
			CreatedAt: time.Now().UTC(),
		})
		if err != nil {
			slog.Error("marshalling order paid event", slog.String(logkey.ERROR, err.Error()))
			return
		}
		if err := c.producer.ProduceMessage(kafka.TopicOrderPaid, []byte(order.ID), data); err != nil {
			slog.Error("producing order paid event", slog.String(logkey.OrderID, order.ID),
				slog.String(logkey.ERROR, err.Error()))
			return
		}
	}
}

func (c *Conf) produceStatus(topic string, order orders.Order) {
	data, err := json.Marshal(kafka.OrderStatusEvent{
		OrderId:     order.ID,
		OrderNumber: order.OrderNumber,
		UserId:      order.UserID,
		Status:      order.Status,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		slog.Error("marshalling order status event", slog.String(logkey.ERROR, err.Error()))
		return
	}
	if err := c.producer.ProduceMessage(topic, []byte(order.ID), data); err != nil {
		slog.Error("producing order status event", slog.String(logkey.OrderID, order.ID),
			slog.String(logkey.ERROR, err.Error()))
	}
}

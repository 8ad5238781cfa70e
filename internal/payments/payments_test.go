package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"
	"time"

	"lifecycle-service/internal/bus"
	"lifecycle-service/internal/config"
	"lifecycle-service/internal/orders"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v81"
)

const (
	testSecretKey     = "sk_test_xyz"
	testWebhookSecret = "whsec_test_secret"
)

type fakeLedger struct {
	byID  map[string]orders.Order
	byRef map[string]string // payment ref -> order id

	refFailures int   // fail this many GetByPaymentRef calls
	refErr      error // with this error

	transitions []string // "orderID:target"
	refsSet     []string // "orderID:ref"
}

func newFakeLedger(list ...orders.Order) *fakeLedger {
	l := &fakeLedger{byID: map[string]orders.Order{}, byRef: map[string]string{}}
	for _, o := range list {
		l.byID[o.ID] = o
		if o.StripePaymentID != "" {
			l.byRef[o.StripePaymentID] = o.ID
		}
	}
	return l
}

func (l *fakeLedger) GetByID(_ context.Context, orderID string) (orders.Order, error) {
	o, ok := l.byID[orderID]
	if !ok {
		return orders.Order{}, orders.ErrOrderNotFound
	}
	return o, nil
}

func (l *fakeLedger) GetByPaymentRef(_ context.Context, ref string) (orders.Order, error) {
	if l.refFailures > 0 {
		l.refFailures--
		return orders.Order{}, l.refErr
	}
	id, ok := l.byRef[ref]
	if !ok {
		return orders.Order{}, orders.ErrOrderNotFound
	}
	return l.byID[id], nil
}

func (l *fakeLedger) Transition(_ context.Context, orderID, target string) (orders.Order, bool, error) {
	o, ok := l.byID[orderID]
	if !ok {
		return orders.Order{}, false, orders.ErrOrderNotFound
	}
	if o.Status == target {
		return o, false, nil
	}
	l.transitions = append(l.transitions, orderID+":"+target)
	o.Status = target
	o.UpdatedAt = time.Now().UTC()
	l.byID[orderID] = o
	return o, true, nil
}

func (l *fakeLedger) SetPaymentRef(_ context.Context, orderID, ref string) error {
	o := l.byID[orderID]
	if o.StripePaymentID != "" {
		return orders.ErrPaymentRefAlreadySet
	}
	o.StripePaymentID = ref
	l.byID[orderID] = o
	l.byRef[ref] = orderID
	l.refsSet = append(l.refsSet, orderID+":"+ref)
	return nil
}

func (l *fakeLedger) GetContact(_ context.Context, _ string) (orders.Contact, error) {
	return orders.Contact{Email: "buyer@example.com", Name: "Buyer"}, nil
}

type fakeCache struct {
	seen map[string]bool
	err  error
}

func (c *fakeCache) MarkEventSeen(_ context.Context, eventID string) (bool, error) {
	if c.err != nil {
		return false, c.err
	}
	if c.seen == nil {
		c.seen = map[string]bool{}
	}
	if c.seen[eventID] {
		return false, nil
	}
	c.seen[eventID] = true
	return true, nil
}

func (c *fakeCache) ForgetEvent(_ context.Context, eventID string) error {
	if c.err != nil {
		return c.err
	}
	delete(c.seen, eventID)
	return nil
}

type fakeProducer struct {
	topics []string
}

func (p *fakeProducer) ProduceMessage(topic string, _ []byte, _ []byte) error {
	p.topics = append(p.topics, topic)
	return nil
}

type fakePublisher struct {
	events []bus.Event
}

func (p *fakePublisher) Publish(ev bus.Event) {
	p.events = append(p.events, ev)
}

func newTestConf(t *testing.T, ledger Ledger, cache EventCache) (*Conf, *fakeProducer, *fakePublisher) {
	t.Helper()
	producer := &fakeProducer{}
	publisher := &fakePublisher{}
	cfg := config.Stripe{SecretKey: testSecretKey, WebhookSecret: testWebhookSecret, Currency: "inr"}
	c, err := NewConf(cfg, ledger, cache, producer, publisher)
	if err != nil {
		t.Fatalf("NewConf: %v", err)
	}
	return c, producer, publisher
}

// signedHeader produces a Stripe-Signature header the webhook package
// accepts for the given payload and secret.
func signedHeader(payload []byte, secret string) string {
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func eventPayload(eventID, eventType, intentID string) []byte {
	return []byte(fmt.Sprintf(
		`{"id":%q,"api_version":%q,"type":%q,"data":{"object":{"id":%q}}}`,
		eventID, stripe.APIVersion, eventType, intentID))
}

func pendingOrder(id, ref string) orders.Order {
	return orders.Order{
		ID:              id,
		OrderNumber:     "ORD-20250114-00001",
		UserID:          "user-1",
		Status:          orders.StatusPending,
		TotalAmount:     decimal.RequireFromString("25.50"),
		StripePaymentID: ref,
	}
}

func TestHandleWebhookInvalidSignature(t *testing.T) {
	ledger := newFakeLedger(pendingOrder("o1", "pi_1"))
	c, _, _ := newTestConf(t, ledger, &fakeCache{})

	payload := eventPayload("evt_1", "payment_intent.succeeded", "pi_1")
	err := c.HandleWebhook(context.Background(), payload, signedHeader(payload, "whsec_wrong"))
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
	if len(ledger.transitions) != 0 {
		t.Fatalf("expected no transitions, got %v", ledger.transitions)
	}
}

func TestHandleWebhookSucceededMovesOrderToPaid(t *testing.T) {
	ledger := newFakeLedger(pendingOrder("o1", "pi_1"))
	c, _, publisher := newTestConf(t, ledger, &fakeCache{})

	payload := eventPayload("evt_1", "payment_intent.succeeded", "pi_1")
	if err := c.HandleWebhook(context.Background(), payload, signedHeader(payload, testWebhookSecret)); err != nil {
		t.Fatalf("HandleWebhook: %v", err)
	}

	if got := ledger.byID["o1"].Status; got != orders.StatusPaid {
		t.Fatalf("expected order paid, got %s", got)
	}
	if len(publisher.events) != 1 {
		t.Fatalf("expected 1 lifecycle event, got %d", len(publisher.events))
	}
	if _, ok := publisher.events[0].(bus.OrderPaidEvent); !ok {
		t.Fatalf("expected OrderPaidEvent, got %T", publisher.events[0])
	}
}

func TestHandleWebhookDuplicateEventIsNoOp(t *testing.T) {
	ledger := newFakeLedger(pendingOrder("o1", "pi_1"))
	c, _, publisher := newTestConf(t, ledger, &fakeCache{})

	payload := eventPayload("evt_1", "payment_intent.succeeded", "pi_1")
	header := signedHeader(payload, testWebhookSecret)

	if err := c.HandleWebhook(context.Background(), payload, header); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if err := c.HandleWebhook(context.Background(), payload, header); err != nil {
		t.Fatalf("second delivery: %v", err)
	}

	if len(ledger.transitions) != 1 {
		t.Fatalf("expected exactly 1 transition, got %v", ledger.transitions)
	}
	if len(publisher.events) != 1 {
		t.Fatalf("expected exactly 1 event, got %d", len(publisher.events))
	}
	if got := ledger.byID["o1"].Status; got != orders.StatusPaid {
		t.Fatalf("expected order paid, got %s", got)
	}
}

func TestHandleWebhookStaleProcessingDoesNotRegress(t *testing.T) {
	order := pendingOrder("o1", "pi_1")
	order.Status = orders.StatusPaid
	ledger := newFakeLedger(order)
	c, _, publisher := newTestConf(t, ledger, &fakeCache{})

	payload := eventPayload("evt_2", "payment_intent.processing", "pi_1")
	if err := c.HandleWebhook(context.Background(), payload, signedHeader(payload, testWebhookSecret)); err != nil {
		t.Fatalf("HandleWebhook: %v", err)
	}

	if got := ledger.byID["o1"].Status; got != orders.StatusPaid {
		t.Fatalf("expected order to stay paid, got %s", got)
	}
	if len(ledger.transitions) != 0 {
		t.Fatalf("expected no transitions, got %v", ledger.transitions)
	}
	if len(publisher.events) != 0 {
		t.Fatalf("expected no events, got %d", len(publisher.events))
	}
}

func TestHandleWebhookRetryAfterTransientFailure(t *testing.T) {
	ledger := newFakeLedger(pendingOrder("o1", "pi_1"))
	ledger.refFailures = 1
	ledger.refErr = errors.New("db timeout")
	c, _, _ := newTestConf(t, ledger, &fakeCache{})

	payload := eventPayload("evt_1", "payment_intent.succeeded", "pi_1")
	header := signedHeader(payload, testWebhookSecret)

	if err := c.HandleWebhook(context.Background(), payload, header); err == nil {
		t.Fatal("expected first delivery to fail")
	}
	// The gateway redelivers the same event id; a failed delivery must not
	// have consumed it.
	if err := c.HandleWebhook(context.Background(), payload, header); err != nil {
		t.Fatalf("retry: %v", err)
	}

	if got := ledger.byID["o1"].Status; got != orders.StatusPaid {
		t.Fatalf("expected order paid after retry, got %s", got)
	}
	if len(ledger.transitions) != 1 {
		t.Fatalf("expected exactly 1 transition, got %v", ledger.transitions)
	}
}

func TestHandleWebhookUnknownRefStaysRetryable(t *testing.T) {
	order := pendingOrder("o1", "")
	ledger := newFakeLedger(order)
	c, _, _ := newTestConf(t, ledger, &fakeCache{})

	payload := eventPayload("evt_1", "payment_intent.succeeded", "pi_1")
	header := signedHeader(payload, testWebhookSecret)

	err := c.HandleWebhook(context.Background(), payload, header)
	if !errors.Is(err, ErrUnknownPaymentRef) {
		t.Fatalf("expected ErrUnknownPaymentRef, got %v", err)
	}

	// The payment reference lands between deliveries; the redelivery must
	// still be processed.
	if err := ledger.SetPaymentRef(context.Background(), "o1", "pi_1"); err != nil {
		t.Fatalf("SetPaymentRef: %v", err)
	}
	if err := c.HandleWebhook(context.Background(), payload, header); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if got := ledger.byID["o1"].Status; got != orders.StatusPaid {
		t.Fatalf("expected order paid after redelivery, got %s", got)
	}
}

func TestHandleWebhookUnknownPaymentRef(t *testing.T) {
	ledger := newFakeLedger(pendingOrder("o1", "pi_1"))
	c, _, _ := newTestConf(t, ledger, &fakeCache{})

	payload := eventPayload("evt_3", "payment_intent.succeeded", "pi_unknown")
	err := c.HandleWebhook(context.Background(), payload, signedHeader(payload, testWebhookSecret))
	if !errors.Is(err, ErrUnknownPaymentRef) {
		t.Fatalf("expected ErrUnknownPaymentRef, got %v", err)
	}
}

func TestHandleWebhookUnknownEventTypeIgnored(t *testing.T) {
	ledger := newFakeLedger(pendingOrder("o1", "pi_1"))
	c, _, publisher := newTestConf(t, ledger, &fakeCache{})

	payload := eventPayload("evt_4", "charge.refunded", "pi_1")
	if err := c.HandleWebhook(context.Background(), payload, signedHeader(payload, testWebhookSecret)); err != nil {
		t.Fatalf("expected forward-compatible no-op, got %v", err)
	}
	if len(ledger.transitions) != 0 || len(publisher.events) != 0 {
		t.Fatal("expected no side effects for unknown event type")
	}
}

func TestHandleWebhookCacheOutageFallsBackToGuard(t *testing.T) {
	ledger := newFakeLedger(pendingOrder("o1", "pi_1"))
	c, _, _ := newTestConf(t, ledger, &fakeCache{err: errors.New("redis down")})

	payload := eventPayload("evt_5", "payment_intent.succeeded", "pi_1")
	header := signedHeader(payload, testWebhookSecret)

	if err := c.HandleWebhook(context.Background(), payload, header); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	// Second delivery passes the broken cache but the stage guard stops it.
	if err := c.HandleWebhook(context.Background(), payload, header); err != nil {
		t.Fatalf("second delivery: %v", err)
	}
	if len(ledger.transitions) != 1 {
		t.Fatalf("expected exactly 1 transition, got %v", ledger.transitions)
	}
}

func TestHandleWebhookCanceledFromPending(t *testing.T) {
	ledger := newFakeLedger(pendingOrder("o1", "pi_1"))
	c, _, publisher := newTestConf(t, ledger, &fakeCache{})

	payload := eventPayload("evt_6", "payment_intent.canceled", "pi_1")
	if err := c.HandleWebhook(context.Background(), payload, signedHeader(payload, testWebhookSecret)); err != nil {
		t.Fatalf("HandleWebhook: %v", err)
	}

	if got := ledger.byID["o1"].Status; got != orders.StatusCancelled {
		t.Fatalf("expected order cancelled, got %s", got)
	}
	if len(publisher.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(publisher.events))
	}
}

func TestCreateIntent(t *testing.T) {
	ledger := newFakeLedger(pendingOrder("o1", ""))
	c, _, _ := newTestConf(t, ledger, &fakeCache{})

	var gotParams *stripe.PaymentIntentParams
	c.newIntent = func(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
		gotParams = params
		return &stripe.PaymentIntent{ID: "pi_new", ClientSecret: "cs_new"}, nil
	}

	secret, err := c.CreateIntent(context.Background(), "o1")
	if err != nil {
		t.Fatalf("CreateIntent: %v", err)
	}
	if secret != "cs_new" {
		t.Fatalf("expected client secret cs_new, got %s", secret)
	}
	if got := *gotParams.Amount; got != 2550 {
		t.Fatalf("expected amount 2550 in smallest unit, got %d", got)
	}
	if got := ledger.byID["o1"].StripePaymentID; got != "pi_new" {
		t.Fatalf("expected payment ref stored, got %q", got)
	}
}

func TestCreateIntentRejectsNonPendingOrder(t *testing.T) {
	order := pendingOrder("o1", "")
	order.Status = orders.StatusPaid
	ledger := newFakeLedger(order)
	c, _, _ := newTestConf(t, ledger, &fakeCache{})

	_, err := c.CreateIntent(context.Background(), "o1")
	if !errors.Is(err, ErrInvalidOrderState) {
		t.Fatalf("expected ErrInvalidOrderState, got %v", err)
	}
}

func TestCreateIntentRejectsSecondCall(t *testing.T) {
	ledger := newFakeLedger(pendingOrder("o1", "pi_existing"))
	c, _, _ := newTestConf(t, ledger, &fakeCache{})

	_, err := c.CreateIntent(context.Background(), "o1")
	if !errors.Is(err, orders.ErrPaymentRefAlreadySet) {
		t.Fatalf("expected ErrPaymentRefAlreadySet, got %v", err)
	}
}

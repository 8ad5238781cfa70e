package orders

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
)

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to string }{
		{StatusPending, StatusPaid},
		{StatusPending, StatusProcessing},
		{StatusPending, StatusCancelled},
		{StatusPaid, StatusProcessing},
		{StatusProcessing, StatusShipped},
		{StatusProcessing, StatusCancelled},
		{StatusShipped, StatusDelivered},
	}
	for _, tc := range allowed {
		if !canTransition(tc.from, tc.to) {
			t.Errorf("expected %s -> %s to be allowed", tc.from, tc.to)
		}
	}

	denied := []struct{ from, to string }{
		{StatusShipped, StatusPending},
		{StatusShipped, StatusProcessing},
		{StatusShipped, StatusCancelled},
		{StatusPaid, StatusPending},
		{StatusDelivered, StatusShipped},
		{StatusDelivered, StatusCancelled},
		{StatusCancelled, StatusPending},
		{StatusCancelled, StatusPaid},
		{StatusPending, StatusShipped},
		{StatusPending, StatusDelivered},
	}
	for _, tc := range denied {
		if canTransition(tc.from, tc.to) {
			t.Errorf("expected %s -> %s to be denied", tc.from, tc.to)
		}
	}
}

func TestTerminalStatesHaveNoExits(t *testing.T) {
	for _, terminal := range []string{StatusDelivered, StatusCancelled} {
		if n := len(statusTransitions[terminal]); n != 0 {
			t.Errorf("expected %s to be terminal, found %d exits", terminal, n)
		}
	}
}

func TestIsValidStatus(t *testing.T) {
	for s := range statusTransitions {
		if !IsValidStatus(s) {
			t.Errorf("expected %s to be valid", s)
		}
	}
	if IsValidStatus("refunded") {
		t.Error("expected unknown status to be invalid")
	}
}

func TestOrderTotal(t *testing.T) {
	lines := []CartLine{
		{ProductID: "a", Quantity: 2, UnitPrice: decimal.RequireFromString("10.00")},
		{ProductID: "b", Quantity: 1, UnitPrice: decimal.RequireFromString("5.50")},
	}

	total := OrderTotal(lines)
	if want := decimal.RequireFromString("25.50"); !total.Equal(want) {
		t.Fatalf("expected total %s, got %s", want, total)
	}
}

func TestOrderTotalEmpty(t *testing.T) {
	if total := OrderTotal(nil); !total.IsZero() {
		t.Fatalf("expected zero total for empty lines, got %s", total)
	}
}

type fakeCartStore struct {
	cartID  int64
	lines   []CartLine
	cleared []int64
}

func (f *fakeCartStore) ActiveCartLines(_ context.Context, _ *sql.Tx, _ string) (int64, []CartLine, error) {
	return f.cartID, f.lines, nil
}

func (f *fakeCartStore) Clear(_ context.Context, _ *sql.Tx, cartID int64) error {
	f.cleared = append(f.cleared, cartID)
	return nil
}

func newMockConf(t *testing.T, cart *fakeCartStore) (*Conf, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	c, err := NewConf(db, cart)
	if err != nil {
		t.Fatalf("NewConf: %v", err)
	}
	return c, mock
}

func TestCreateFromCart(t *testing.T) {
	cart := &fakeCartStore{cartID: 7, lines: []CartLine{
		{ProductID: "p1", ProductName: "Mug", Quantity: 2, UnitPrice: decimal.RequireFromString("10.00")},
		{ProductID: "p2", ProductName: "Pen", Quantity: 1, UnitPrice: decimal.RequireFromString("5.50")},
	}}
	c, mock := newMockConf(t, cart)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO orders").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("INSERT INTO order_items").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectQuery("INSERT INTO order_items").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(2))
	mock.ExpectCommit()

	order, err := c.CreateFromCart(context.Background(), "u1", "  221B Baker Street  ")
	if err != nil {
		t.Fatalf("CreateFromCart: %v", err)
	}

	if order.Status != StatusPending {
		t.Fatalf("expected pending order, got %s", order.Status)
	}
	if want := decimal.RequireFromString("25.50"); !order.TotalAmount.Equal(want) {
		t.Fatalf("expected total %s, got %s", want, order.TotalAmount)
	}
	if order.ShippingAddress != "221B Baker Street" {
		t.Fatalf("expected trimmed address, got %q", order.ShippingAddress)
	}
	if len(order.Items) != 2 || order.Items[0].ID != 1 || order.Items[1].OrderID != order.ID {
		t.Fatalf("unexpected item snapshot: %+v", order.Items)
	}
	if len(cart.cleared) != 1 || cart.cleared[0] != 7 {
		t.Fatalf("expected cart 7 cleared once, got %v", cart.cleared)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestCreateFromCartEmptyCart(t *testing.T) {
	cart := &fakeCartStore{cartID: 7}
	c, mock := newMockConf(t, cart)

	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := c.CreateFromCart(context.Background(), "u1", "221B Baker Street")
	if !errors.Is(err, ErrEmptyCart) {
		t.Fatalf("expected ErrEmptyCart, got %v", err)
	}
	if len(cart.cleared) != 0 {
		t.Fatalf("expected cart untouched, got %v", cart.cleared)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestCreateFromCartBlankAddress(t *testing.T) {
	cart := &fakeCartStore{cartID: 7, lines: []CartLine{
		{ProductID: "p1", Quantity: 1, UnitPrice: decimal.RequireFromString("10.00")},
	}}
	c, mock := newMockConf(t, cart)

	_, err := c.CreateFromCart(context.Background(), "u1", "   ")
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(cart.cleared) != 0 {
		t.Fatalf("expected cart untouched, got %v", cart.cleared)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestCreateFromCartRollsBackOnInsertFailure(t *testing.T) {
	cart := &fakeCartStore{cartID: 7, lines: []CartLine{
		{ProductID: "p1", Quantity: 1, UnitPrice: decimal.RequireFromString("10.00")},
	}}
	c, mock := newMockConf(t, cart)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO orders").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("INSERT INTO order_items").WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	if _, err := c.CreateFromCart(context.Background(), "u1", "221B Baker Street"); err == nil {
		t.Fatal("expected insert failure to surface")
	}
	if len(cart.cleared) != 0 {
		t.Fatalf("expected no cart clear after rollback, got %v", cart.cleared)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestNewOrderNumber(t *testing.T) {
	now := time.Date(2025, 1, 14, 9, 30, 0, 0, time.UTC)

	pattern := regexp.MustCompile(`^ORD-20250114-\d{5}$`)
	for i := 0; i < 100; i++ {
		num := NewOrderNumber(now)
		if !pattern.MatchString(num) {
			t.Fatalf("order number %q does not match expected format", num)
		}
	}
}

package prefs

import (
	"context"
	"database/sql"
	"fmt"
)

// Categories gate one notification kind each. Every flag defaults to true.
type Preferences struct {
	UserID          string `json:"user_id"`
	OrderUpdates    bool   `json:"order_updates"`
	Shipping        bool   `json:"shipping"`
	PriceDrop       bool   `json:"price_drop"`
	Restock         bool   `json:"restock"`
	Security        bool   `json:"security"`
	PasswordReset   bool   `json:"password_reset"`
	ReviewReminder  bool   `json:"review_reminder"`
	Promotional     bool   `json:"promotional"`
	Newsletter      bool   `json:"newsletter"`
	Recommendations bool   `json:"recommendations"`
}

// Update carries the partial merge: nil fields leave the stored value alone.
type Update struct {
	OrderUpdates    *bool `json:"order_updates"`
	Shipping        *bool `json:"shipping"`
	PriceDrop       *bool `json:"price_drop"`
	Restock         *bool `json:"restock"`
	Security        *bool `json:"security"`
	PasswordReset   *bool `json:"password_reset"`
	ReviewReminder  *bool `json:"review_reminder"`
	Promotional     *bool `json:"promotional"`
	Newsletter      *bool `json:"newsletter"`
	Recommendations *bool `json:"recommendations"`
}

type Conf struct {
	db *sql.DB
}

func NewConf(db *sql.DB) (*Conf, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	return &Conf{db: db}, nil
}

// GetOrCreateDefault returns the user's row, lazily creating it with every
// flag true on first read.
func (c *Conf) GetOrCreateDefault(ctx context.Context, userID string) (Preferences, error) {
	queryInsert := `
		INSERT INTO notification_preferences (user_id)
		VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING
	`
	if _, err := c.db.ExecContext(ctx, queryInsert, userID); err != nil {
		return Preferences{}, fmt.Errorf("creating default preferences: %w", err)
	}

	querySelect := `
		SELECT user_id, order_updates, shipping, price_drop, restock, security,
		       password_reset, review_reminder, promotional, newsletter, recommendations
		FROM notification_preferences
		WHERE user_id = $1
	`
	var p Preferences
	err := c.db.QueryRowContext(ctx, querySelect, userID).Scan(
		&p.UserID, &p.OrderUpdates, &p.Shipping, &p.PriceDrop, &p.Restock, &p.Security,
		&p.PasswordReset, &p.ReviewReminder, &p.Promotional, &p.Newsletter, &p.Recommendations)
	if err != nil {
		return Preferences{}, fmt.Errorf("querying preferences: %w", err)
	}
	return p, nil
}

// Apply merges the partial update; COALESCE keeps existing values for unset
// fields. The row is created first so a fresh user can PATCH directly.
func (c *Conf) Apply(ctx context.Context, userID string, u Update) (Preferences, error) {
	queryInsert := `
		INSERT INTO notification_preferences (user_id)
		VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING
	`
	if _, err := c.db.ExecContext(ctx, queryInsert, userID); err != nil {
		return Preferences{}, fmt.Errorf("creating default preferences: %w", err)
	}

	queryUpdate := `
		UPDATE notification_preferences
		SET order_updates   = COALESCE($2, order_updates),
		    shipping        = COALESCE($3, shipping),
		    price_drop      = COALESCE($4, price_drop),
		    restock         = COALESCE($5, restock),
		    security        = COALESCE($6, security),
		    password_reset  = COALESCE($7, password_reset),
		    review_reminder = COALESCE($8, review_reminder),
		    promotional     = COALESCE($9, promotional),
		    newsletter      = COALESCE($10, newsletter),
		    recommendations = COALESCE($11, recommendations),
		    updated_at      = NOW()
		WHERE user_id = $1
		RETURNING user_id, order_updates, shipping, price_drop, restock, security,
		          password_reset, review_reminder, promotional, newsletter, recommendations
	`
	var p Preferences
	err := c.db.QueryRowContext(ctx, queryUpdate, userID,
		u.OrderUpdates, u.Shipping, u.PriceDrop, u.Restock, u.Security,
		u.PasswordReset, u.ReviewReminder, u.Promotional, u.Newsletter, u.Recommendations,
	).Scan(
		&p.UserID, &p.OrderUpdates, &p.Shipping, &p.PriceDrop, &p.Restock, &p.Security,
		&p.PasswordReset, &p.ReviewReminder, &p.Promotional, &p.Newsletter, &p.Recommendations)
	if err != nil {
		return Preferences{}, fmt.Errorf("updating preferences: %w", err)
	}
	return p, nil
}

// Package cache tracks already-processed webhook event ids in Redis so an
// at-least-once delivery applied twice is a no-op on the second pass. Keys
// carry a TTL; the set stays bounded and survives restarts, which a
// process-local map would not in a multi-instance deployment.
package cache

import (
	"context"
	"fmt"
	"time"

	"lifecycle-service/internal/config"

	"github.com/redis/go-redis/v9"
)

type Conf struct {
	client *redis.Client
	ttl    time.Duration
}

func NewConf(ctx context.Context, cfg config.Redis) (*Conf, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return &Conf{client: client, ttl: cfg.EventTTL}, nil
}

// MarkEventSeen records the event id and reports whether this is the first
// time it has been seen. SETNX makes the check-and-set atomic across
// instances.
func (c *Conf) MarkEventSeen(ctx context.Context, eventID string) (first bool, err error) {
	key := "webhook:event:" + eventID
	first, err = c.client.SetNX(ctx, key, 1, c.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("marking event seen: %w", err)
	}
	return first, nil
}

// ForgetEvent removes a previously marked event id so the gateway's retry of
// a failed delivery is processed instead of skipped.
func (c *Conf) ForgetEvent(ctx context.Context, eventID string) error {
	if err := c.client.Del(ctx, "webhook:event:"+eventID).Err(); err != nil {
		return fmt.Errorf("forgetting event: %w", err)
	}
	return nil
}

func (c *Conf) Close() error {
	return c.client.Close()
}

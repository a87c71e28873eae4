// Package dedup drops Telegram updates that were already handled, so a
// redelivered update after a restart or a second poller is ignored.
package dedup

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/digkill/ReferralBot/internal/metrics"
)

const keyPrefix = "referralbot:update:v1:"

type Filter struct {
	client *redis.Client
	ttl    time.Duration
}

func NewFilter(client *redis.Client, ttl time.Duration) *Filter {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Filter{client: client, ttl: ttl}
}

// Seen reserves updateID and reports whether it was reserved before.
func (f *Filter) Seen(ctx context.Context, updateID int) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	fresh, err := f.client.SetNX(ctx, keyPrefix+strconv.Itoa(updateID), 1, f.ttl).Result()
	if err != nil {
		metrics.UpdatesDedupTotal.WithLabelValues("error").Inc()
		return false, fmt.Errorf("reserve update %d: %w", updateID, err)
	}
	if !fresh {
		metrics.UpdatesDedupTotal.WithLabelValues("hit").Inc()
		return true, nil
	}
	metrics.UpdatesDedupTotal.WithLabelValues("miss").Inc()
	return false, nil
}

func (f *Filter) Ping(ctx context.Context) error {
	return f.client.Ping(ctx).Err()
}

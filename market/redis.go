package market

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/etnz/wealthmind"
	"github.com/redis/go-redis/v9"
)

// Mirror is a second level quote store shared between service instances.
type Mirror interface {
	Get(ctx context.Context, symbol string) (wealthmind.Quote, bool, error)
	Set(ctx context.Context, q wealthmind.Quote, ttl time.Duration) error
}

// Redis is a Mirror storing quotes as JSON strings.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis returns a Mirror on the redis server at addr.
func NewRedis(addr string) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   0,
	})
	return &Redis{client: client, prefix: "wealthmind:quote:"}
}

// Get implements Mirror.
func (r *Redis) Get(ctx context.Context, symbol string) (wealthmind.Quote, bool, error) {
	data, err := r.client.Get(ctx, r.prefix+symbol).Bytes()
	if errors.Is(err, redis.Nil) {
		return wealthmind.Quote{}, false, nil
	}
	if err != nil {
		return wealthmind.Quote{}, false, err
	}
	var q wealthmind.Quote
	if err := json.Unmarshal(data, &q); err != nil {
		return wealthmind.Quote{}, false, err
	}
	return q, true, nil
}

// Set implements Mirror.
func (r *Redis) Set(ctx context.Context, q wealthmind.Quote, ttl time.Duration) error {
	data, err := json.Marshal(q)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.prefix+q.Symbol, data, ttl).Err()
}

// Ping checks the connection.
func (r *Redis) Ping(ctx context.Context) error { return r.client.Ping(ctx).Err() }

// Close closes the connection.
func (r *Redis) Close() error { return r.client.Close() }

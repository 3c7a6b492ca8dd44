package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/Mindburn-Labs/tokenledger/pkg/transfer"
)

// DefaultFeeChannel is the pub/sub channel carrying fee notifications.
const DefaultFeeChannel = "ledger:fees"

// RedisPublisher publishes fee notifications to a Redis pub/sub channel for
// downstream revenue accounting.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

// NewRedisPublisher connects to Redis at addr.
func NewRedisPublisher(addr, password string, db int) *RedisPublisher {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisPublisher{client: rdb, channel: DefaultFeeChannel}
}

// WithChannel overrides the pub/sub channel.
func (p *RedisPublisher) WithChannel(channel string) *RedisPublisher {
	p.channel = channel
	return p
}

// PublishFee implements Publisher.
func (p *RedisPublisher) PublishFee(ctx context.Context, fn transfer.FeeNotification) error {
	payload, err := json.Marshal(fn)
	if err != nil {
		return fmt.Errorf("failed to marshal fee notification: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish error: %w", err)
	}
	return nil
}

// Close releases the Redis connection.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

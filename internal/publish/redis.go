package publish

import (
	"context"
	"fmt"
	"time"

	"github.com/F0G3J3/Distributed-Embedded-Health-Monitor/internal/storage"
	"github.com/go-redis/redis/v8"
)

// redisClient is the subset of *redis.Client the publisher uses.
type redisClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Close() error
}

// RedisConfig holds the connection settings of the Redis publisher
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

// RedisPublisher publishes every reading on a pub/sub channel and keeps
// the latest event of each device under health:latest:<device_id>.
type RedisPublisher struct {
	client  redisClient
	channel string
}

// NewRedisPublisher connects to Redis and checks it with a PING.
func NewRedisPublisher(ctx context.Context, cfg RedisConfig) (*RedisPublisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis not available at %s: %w", cfg.Addr, err)
	}

	return newRedisPublisher(client, cfg.Channel), nil
}

func newRedisPublisher(client redisClient, channel string) *RedisPublisher {
	if channel == "" {
		channel = "health:readings"
	}
	return &RedisPublisher{client: client, channel: channel}
}

func (p *RedisPublisher) Name() string { return "redis" }

// Publish sends the event, then refreshes the per-device latest key.
func (p *RedisPublisher) Publish(ctx context.Context, reading storage.Reading) error {
	data, err := Encode(reading)
	if err != nil {
		return err
	}

	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", p.channel, err)
	}

	if err := p.client.Set(ctx, LatestKey(reading.DeviceID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to store latest reading: %w", err)
	}

	return nil
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

// LatestKey is the Redis key holding the latest event of a device.
func LatestKey(deviceID string) string {
	return "health:latest:" + deviceID
}

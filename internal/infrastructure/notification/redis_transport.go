package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kiosk/backend/internal/infrastructure/config"
)

// RedisTransport publishes notifications on a Redis pub/sub channel so other
// processes (dashboards, the terminal gateway) can consume the same stream.
type RedisTransport struct {
	client     *redis.Client
	ownsClient bool
	channel    string
	logger     *zap.Logger
}

// RedisTransportOption is a functional option for configuring the transport
type RedisTransportOption func(*RedisTransport)

// WithRedisChannel sets the pub/sub channel name
func WithRedisChannel(channel string) RedisTransportOption {
	return func(t *RedisTransport) {
		if channel != "" {
			t.channel = channel
		}
	}
}

// WithRedisLogger sets the logger for the transport
func WithRedisLogger(logger *zap.Logger) RedisTransportOption {
	return func(t *RedisTransport) {
		t.logger = logger
	}
}

// NewRedisTransport connects a new client from config and verifies it
func NewRedisTransport(cfg config.RedisConfig, opts ...RedisTransportOption) (*RedisTransport, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	t := &RedisTransport{
		client:     client,
		ownsClient: true,
		channel:    cfg.Channel,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// NewRedisTransportWithClient wraps an existing client. The caller retains
// ownership and is responsible for closing it.
func NewRedisTransportWithClient(client *redis.Client, channel string, opts ...RedisTransportOption) *RedisTransport {
	t := &RedisTransport{
		client:  client,
		channel: channel,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Name implements Transport
func (t *RedisTransport) Name() string {
	return "redis"
}

// Send implements Transport
func (t *RedisTransport) Send(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	if err := t.client.Publish(ctx, t.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", t.channel, err)
	}

	t.logger.Debug("published notification",
		zap.String("channel", t.channel),
		zap.String("event_type", n.Event),
		zap.Uint64("sequence", n.Sequence),
	)
	return nil
}

// Close implements Transport
func (t *RedisTransport) Close() error {
	if t.ownsClient {
		return t.client.Close()
	}
	return nil
}

// Ensure RedisTransport implements Transport
var _ Transport = (*RedisTransport)(nil)

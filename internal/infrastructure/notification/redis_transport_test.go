package notification

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisTransportPublish(t *testing.T) {
	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	transport := NewRedisTransportWithClient(client, "kiosk:notifications")
	assert.Equal(t, "redis", transport.Name())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	subscriber := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer subscriber.Close()

	pubsub := subscriber.Subscribe(ctx, "kiosk:notifications")
	defer pubsub.Close()
	_, err := pubsub.Receive(ctx)
	require.NoError(t, err)

	sent := Notification{
		Sequence:  7,
		Event:     "SessionEnded",
		Data:      `{"total_amount":"4.00"}`,
		Timestamp: time.Date(2026, 3, 1, 15, 30, 0, 0, time.UTC),
	}
	require.NoError(t, transport.Send(ctx, sent))

	msg, err := pubsub.ReceiveMessage(ctx)
	require.NoError(t, err)

	var received Notification
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &received))
	assert.Equal(t, uint64(7), received.Sequence)
	assert.Equal(t, "SessionEnded", received.Event)
	assert.JSONEq(t, sent.Data, received.Data)
}

func TestRedisTransportCloseKeepsSharedClient(t *testing.T) {
	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	transport := NewRedisTransportWithClient(client, "kiosk:notifications")
	require.NoError(t, transport.Close())

	// the shared client stays usable after the transport closes
	assert.NoError(t, client.Ping(context.Background()).Err())
}

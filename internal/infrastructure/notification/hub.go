package notification

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// HubClient is one connected event-stream consumer. The HTTP layer reads
// from Chan and stops when Done closes.
type HubClient struct {
	ID   string
	Role string
	Chan chan Notification
	Done chan struct{}
}

// Hub is the in-process Transport behind the SSE endpoint. Clients register
// with a buffered channel each; a consumer that cannot keep up loses
// messages instead of stalling the dispatch loop.
type Hub struct {
	clients    sync.Map // map[string]*HubClient
	logger     *zap.Logger
	bufferSize int
	maxClients int
	heartbeat  time.Duration

	ctx     context.Context
	cancel  context.CancelFunc
	startMu sync.Mutex
	started bool
}

// HubOption is a functional option for configuring the hub
type HubOption func(*Hub)

// WithHubBufferSize sets the per-client channel buffer
func WithHubBufferSize(size int) HubOption {
	return func(h *Hub) {
		if size > 0 {
			h.bufferSize = size
		}
	}
}

// WithHubHeartbeat sets the keep-alive interval
func WithHubHeartbeat(interval time.Duration) HubOption {
	return func(h *Hub) {
		if interval > 0 {
			h.heartbeat = interval
		}
	}
}

// WithHubMaxClients caps concurrent connections
func WithHubMaxClients(max int) HubOption {
	return func(h *Hub) {
		h.maxClients = max
	}
}

// NewHub creates a hub with defaults suitable for a venue-sized fleet
func NewHub(logger *zap.Logger, opts ...HubOption) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		logger:     logger,
		bufferSize: 64,
		maxClients: 10000,
		heartbeat:  30 * time.Second,
		ctx:        ctx,
		cancel:     cancel,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Start launches the heartbeat loop
func (h *Hub) Start() error {
	h.startMu.Lock()
	defer h.startMu.Unlock()

	if h.started {
		return fmt.Errorf("hub already started")
	}
	h.started = true

	go h.sendHeartbeats()
	return nil
}

// Name implements Transport
func (h *Hub) Name() string {
	return "sse"
}

// Send implements Transport by fanning the notification out to every
// connected client without blocking
func (h *Hub) Send(ctx context.Context, n Notification) error {
	h.clients.Range(func(key, value any) bool {
		client, ok := value.(*HubClient)
		if !ok {
			return true
		}

		select {
		case client.Chan <- n:
		default:
			h.logger.Warn("client buffer full, dropping notification",
				zap.String("client_id", client.ID),
				zap.String("event_type", n.Event),
			)
		}
		return true
	})
	return nil
}

// Close implements Transport, disconnecting every client
func (h *Hub) Close() error {
	h.cancel()
	h.clients.Range(func(key, value any) bool {
		if client, ok := value.(*HubClient); ok {
			close(client.Done)
		}
		return true
	})
	return nil
}

// Register attaches a new consumer. The returned client must be released
// with Unregister when the connection ends.
func (h *Hub) Register(role string) (*HubClient, error) {
	if h.maxClients > 0 && h.ClientCount() >= h.maxClients {
		return nil, fmt.Errorf("maximum of %d stream connections reached", h.maxClients)
	}

	client := &HubClient{
		ID:   uuid.New().String(),
		Role: role,
		Chan: make(chan Notification, h.bufferSize),
		Done: make(chan struct{}),
	}
	h.clients.Store(client.ID, client)

	h.logger.Info("stream client connected",
		zap.String("client_id", client.ID),
		zap.String("role", role),
	)
	return client, nil
}

// Unregister detaches a consumer. The channel is left open; a concurrent
// Send may still hold the client pointer and closing would panic it.
func (h *Hub) Unregister(client *HubClient) {
	h.clients.Delete(client.ID)

	h.logger.Info("stream client disconnected", zap.String("client_id", client.ID))
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	count := 0
	h.clients.Range(func(_, _ any) bool {
		count++
		return true
	})
	return count
}

// Context exposes the hub lifetime for streaming handlers
func (h *Hub) Context() context.Context {
	return h.ctx
}

func (h *Hub) sendHeartbeats() {
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return
		case <-ticker.C:
			_ = h.Send(h.ctx, Notification{
				Event:     "heartbeat",
				Data:      fmt.Sprintf(`{"timestamp":%d}`, time.Now().Unix()),
				Timestamp: time.Now(),
			})
		}
	}
}

// Ensure Hub implements Transport
var _ Transport = (*Hub)(nil)

package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// NATSTransport publishes notifications to NATS subjects of the form
// <prefix>.<event_type>, one subject per event type so consumers can
// subscribe selectively.
type NATSTransport struct {
	nc            *nats.Conn
	subjectPrefix string
	logger        *zap.Logger
}

// NewNATSTransport connects to the given NATS URL with indefinite reconnects
func NewNATSTransport(url, subjectPrefix string, logger *zap.Logger) (*NATSTransport, error) {
	opts := []nats.Option{
		nats.Name("kiosk-backend"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATSTransport{
		nc:            nc,
		subjectPrefix: subjectPrefix,
		logger:        logger,
	}, nil
}

// Name implements Transport
func (t *NATSTransport) Name() string {
	return "nats"
}

// Send implements Transport
func (t *NATSTransport) Send(ctx context.Context, n Notification) error {
	if t.nc == nil || t.nc.IsClosed() {
		return fmt.Errorf("nats not connected")
	}

	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	subject := fmt.Sprintf("%s.%s", t.subjectPrefix, n.Event)
	return t.nc.Publish(subject, payload)
}

// Close implements Transport
func (t *NATSTransport) Close() error {
	if t.nc != nil {
		if err := t.nc.Drain(); err != nil {
			t.logger.Warn("nats drain failed", zap.Error(err))
		}
		t.nc.Close()
	}
	return nil
}

// Ensure NATSTransport implements Transport
var _ Transport = (*NATSTransport)(nil)

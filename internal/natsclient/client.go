// Package natsclient wraps a NATS connection and JetStream context, adapted
// from go-core/natsclient to provision whatever streams the gateway's
// configured subscriptions name instead of one hard-coded DOMAIN_EVENTS
// stream.
package natsclient

import (
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Client wraps a NATS connection and its JetStream context.
type Client struct {
	Conn *nats.Conn
	JS   nats.JetStreamContext
	Log  *zap.Logger
}

// NewClient connects to NATS and initializes a JetStream context.
func NewClient(url string, logger *zap.Logger) (*Client, error) {
	nc, err := nats.Connect(url, nats.RetryOnFailedConnect(true), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("natsclient: connect: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("natsclient: JetStream context: %w", err)
	}

	logger.Info("NATS JetStream connected", zap.String("url", url))
	return &Client{Conn: nc, JS: js, Log: logger}, nil
}

// Close drains then closes the underlying connection, flushing in-flight
// acknowledgements rather than dropping them.
func (c *Client) Close() {
	if c.Conn == nil {
		return
	}
	if err := c.Conn.Drain(); err != nil {
		c.Conn.Close()
	}
}

// StreamSpec describes one JetStream stream this gateway instance depends
// on, derived from the configured devices list's distinct stream names.
type StreamSpec struct {
	Name     string
	Subjects []string
}

// ProvisionStream idempotently ensures spec's stream exists, creating it on
// first run and treating an existing stream as a no-op — the same
// provisioning idiom as go-core's ProvisionStreams, generalized to an
// arbitrary stream instead of the fixed DOMAIN_EVENTS name.
func (c *Client) ProvisionStream(spec StreamSpec) error {
	if _, err := c.JS.StreamInfo(spec.Name); err == nil {
		c.Log.Info("NATS stream already exists", zap.String("stream", spec.Name))
		return nil
	} else if err != nats.ErrStreamNotFound {
		return fmt.Errorf("natsclient: stream info %s: %w", spec.Name, err)
	}

	cfg := &nats.StreamConfig{
		Name:      spec.Name,
		Subjects:  spec.Subjects,
		Storage:   nats.FileStorage,
		Retention: nats.LimitsPolicy,
	}
	if _, err := c.JS.AddStream(cfg); err != nil {
		return fmt.Errorf("natsclient: create stream %s: %w", spec.Name, err)
	}

	c.Log.Info("NATS stream provisioned", zap.String("stream", spec.Name), zap.Strings("subjects", spec.Subjects))
	return nil
}

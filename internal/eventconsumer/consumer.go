package eventconsumer

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/arc-self/bacnet-eventgateway/internal/cachemirror"
)

// Consumer drives one subscription's state machine and delivery loop over
// a Transport, per spec.md §4.2: DISCONNECTED → CONNECTING → READY →
// DELIVERING ⇄ READY → (error) RECONNECTING → CONNECTING …, with
// STOPPING → STOPPED reachable from any state.
type Consumer struct {
	cfg       Config
	transport Transport
	cursors   CursorStore
	log       *zap.Logger

	handler      Handler
	onError      ErrorHandler
	onStatus     StatusHandler

	status atomic.Value // Status

	stopCh  chan struct{}
	stopped chan struct{}
}

// New constructs a Consumer for one subscription.
func New(cfg Config, transport Transport, cursors CursorStore, log *zap.Logger) *Consumer {
	c := &Consumer{
		cfg:       cfg,
		transport: transport,
		cursors:   cursors,
		log:       log,
		stopCh:    make(chan struct{}),
		stopped:   make(chan struct{}),
	}
	c.setStatus(StatusDisconnected)
	return c
}

// Status returns the consumer's current state.
func (c *Consumer) Status() Status {
	return c.status.Load().(Status)
}

func (c *Consumer) setStatus(s Status) {
	c.status.Store(s)
	if c.onStatus != nil {
		c.onStatus(s)
	}
}

// Subscribe starts the delivery loop in a background goroutine and returns
// once the initial connection succeeds or the context is cancelled. handle
// identity for ack/nak/unsubscribe is the Consumer itself.
func (c *Consumer) Subscribe(ctx context.Context, handler Handler, onError ErrorHandler, onStatus StatusHandler) error {
	c.handler = handler
	c.onError = onError
	c.onStatus = onStatus

	start, err := c.resolveStartPosition()
	if err != nil {
		return err
	}

	c.setStatus(StatusConnecting)
	if err := c.transport.Connect(ctx, c.cfg, start); err != nil {
		c.setStatus(StatusDisconnected)
		return err
	}
	c.setStatus(StatusReady)

	go c.run(ctx)
	return nil
}

// Unsubscribe stops the delivery loop and closes the transport, reachable
// from any state.
func (c *Consumer) Unsubscribe() error {
	c.setStatus(StatusStopping)
	close(c.stopCh)
	<-c.stopped
	c.setStatus(StatusStopped)
	return c.transport.Close()
}

func (c *Consumer) resolveStartPosition() (uint64, error) {
	configured := c.cfg.StartPosition
	cached, err := c.cursors.GetCursor(c.cfg.SubscriptionID)
	if err != nil {
		if errors.Is(err, cachemirror.ErrNotFound) {
			return configured, nil
		}
		return 0, err
	}
	if cached+1 > configured {
		return cached + 1, nil
	}
	return configured, nil
}

func (c *Consumer) run(ctx context.Context) {
	defer close(c.stopped)

	attempts := 0
	for {
		select {
		case <-c.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		c.setStatus(StatusReady)
		msgs, err := c.transport.Fetch(ctx)
		if err != nil {
			if isStopping(c.stopCh) {
				return
			}
			if c.onError != nil {
				c.onError(err)
			}
			if c.cfg.MaxReconnectAttempts >= 0 && attempts >= c.cfg.MaxReconnectAttempts {
				c.log.Error("eventconsumer: giving up after max reconnect attempts",
					zap.String("subscription", c.cfg.SubscriptionID), zap.Int("attempts", attempts))
				return
			}
			c.reconnect(ctx, &attempts)
			continue
		}
		attempts = 0

		c.setStatus(StatusDelivering)
		for _, raw := range msgs {
			if c.deliverOne(ctx, raw) {
				return
			}
		}
	}
}

// deliverOne delivers a single message synchronously and reports whether
// the caller should stop the loop (true on shutdown signal).
func (c *Consumer) deliverOne(ctx context.Context, raw RawMessage) bool {
	select {
	case <-c.stopCh:
		return true
	default:
	}

	ev := Event{
		Position: raw.Position,
		Data:     raw.Data,
		ack:      func() error { return c.transport.Ack(ctx, raw.Position) },
		nak:      func(action NakAction) error { return c.transport.Nak(ctx, raw.Position, action) },
	}

	outcome := c.handler(ctx, ev)
	if outcome.Processed {
		if err := ev.Ack(); err != nil {
			c.log.Error("eventconsumer: ack failed", zap.Uint64("position", raw.Position), zap.Error(err))
		}
		return false
	}

	action := outcome.Action
	if action == "" {
		action = NakRetry
	}
	if err := ev.Nak(action); err != nil {
		c.log.Error("eventconsumer: nak failed", zap.Uint64("position", raw.Position), zap.String("action", string(action)), zap.Error(err))
	}
	return false
}

func (c *Consumer) reconnect(ctx context.Context, attempts *int) {
	c.setStatus(StatusReconnecting)

	delay := c.cfg.BaseDelay << uint(*attempts)
	if delay <= 0 || delay > c.cfg.MaxDelay {
		delay = c.cfg.MaxDelay
	}
	*attempts++

	c.log.Warn("eventconsumer: reconnecting",
		zap.String("subscription", c.cfg.SubscriptionID), zap.Duration("delay", delay), zap.Int("attempt", *attempts))

	select {
	case <-c.stopCh:
		return
	case <-time.After(delay):
	}

	start, err := c.resolveStartPosition()
	if err != nil {
		c.log.Error("eventconsumer: resolve start position on reconnect failed", zap.Error(err))
		return
	}

	c.setStatus(StatusConnecting)
	if err := c.transport.Connect(ctx, c.cfg, start); err != nil {
		c.log.Error("eventconsumer: reconnect failed", zap.Error(err))
		return
	}
}

func isStopping(stopCh chan struct{}) bool {
	select {
	case <-stopCh:
		return true
	default:
		return false
	}
}

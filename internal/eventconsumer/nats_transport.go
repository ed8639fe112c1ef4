package eventconsumer

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// NatsTransport binds Transport to a NATS JetStream durable pull consumer,
// grounded in trm-service's dictionary_consumer.go: PullSubscribe bound to
// an existing stream, sub.Fetch in a loop, Ack/Nak/Term dispatch. Unlike
// the teacher it is generic over stream/subject/durable name (config-driven,
// not hard-coded per service) and maps positions through JetStream message
// metadata sequence numbers rather than assuming Postgres is downstream.
type NatsTransport struct {
	conn *nats.Conn
	js   nats.JetStreamContext
	sub  *nats.Subscription
	log  *zap.Logger

	byPosition map[uint64]*nats.Msg
	fetchBatch int
}

// NewNatsTransport constructs a transport bound to an already-connected
// NATS connection (owned by internal/natsclient).
func NewNatsTransport(conn *nats.Conn, log *zap.Logger) (*NatsTransport, error) {
	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("eventconsumer: JetStream context: %w", err)
	}
	return &NatsTransport{conn: conn, js: js, log: log, byPosition: make(map[uint64]*nats.Msg), fetchBatch: 20}, nil
}

func (t *NatsTransport) Connect(ctx context.Context, cfg Config, position uint64) error {
	var opts []nats.SubOpt
	opts = append(opts, nats.BindStream(cfg.StreamName))
	opts = append(opts, nats.ManualAck())
	if position > 0 {
		opts = append(opts, nats.StartSequence(position))
	} else {
		opts = append(opts, startOptFor(cfg.StartFromMode))
	}

	sub, err := t.js.PullSubscribe(">", cfg.GroupName, opts...)
	if err != nil {
		return fmt.Errorf("eventconsumer: PullSubscribe stream=%s durable=%s: %w", cfg.StreamName, cfg.GroupName, err)
	}
	t.sub = sub
	t.log.Info("eventconsumer: nats transport connected",
		zap.String("stream", cfg.StreamName), zap.String("durable", cfg.GroupName), zap.Uint64("position", position))
	return nil
}

func startOptFor(mode StartFrom) nats.SubOpt {
	switch mode {
	case StartBegin:
		return nats.DeliverAll()
	case StartEnd:
		return nats.DeliverNew()
	default:
		return nats.DeliverAll()
	}
}

func (t *NatsTransport) Fetch(ctx context.Context) ([]RawMessage, error) {
	msgs, err := t.sub.Fetch(t.fetchBatch, nats.Context(ctx))
	if err != nil {
		if err == nats.ErrTimeout || err == context.DeadlineExceeded {
			return nil, nil
		}
		return nil, fmt.Errorf("eventconsumer: fetch: %w", err)
	}

	out := make([]RawMessage, 0, len(msgs))
	for _, m := range msgs {
		meta, err := m.Metadata()
		if err != nil {
			t.log.Warn("eventconsumer: message with no metadata, terminating", zap.Error(err))
			m.Term()
			continue
		}
		t.byPosition[meta.Sequence.Stream] = m
		out = append(out, RawMessage{Position: meta.Sequence.Stream, Data: m.Data})
	}
	return out, nil
}

func (t *NatsTransport) Ack(ctx context.Context, position uint64) error {
	m, ok := t.byPosition[position]
	if !ok {
		return fmt.Errorf("eventconsumer: ack: unknown position %d", position)
	}
	delete(t.byPosition, position)
	return m.Ack()
}

func (t *NatsTransport) Nak(ctx context.Context, position uint64, action NakAction) error {
	m, ok := t.byPosition[position]
	if !ok {
		return fmt.Errorf("eventconsumer: nak: unknown position %d", position)
	}
	delete(t.byPosition, position)

	switch action {
	case NakSkip:
		return m.Term()
	case NakPark:
		// JetStream has no native dead-letter queue primitive reachable from
		// here; Term so the poison message stops blocking redelivery and
		// rely on the operator alert raised by the registry/decoder error
		// counters (spec.md §7) to surface it for manual requeue.
		t.log.Warn("eventconsumer: park requested, terminating (no DLQ transport)", zap.Uint64("position", position))
		return m.Term()
	default:
		return m.Nak()
	}
}

func (t *NatsTransport) Close() error {
	if t.sub != nil {
		return t.sub.Unsubscribe()
	}
	return nil
}

var _ Transport = (*NatsTransport)(nil)

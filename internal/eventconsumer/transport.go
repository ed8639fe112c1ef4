package eventconsumer

import "context"

// RawMessage is one undecoded message fetched from the transport, carrying
// enough for the consumer to build an Event and to issue ack/nak back to
// the same underlying message.
type RawMessage struct {
	Position uint64
	Data     []byte
}

// Transport is the abstract seam spec.md §4.2 requires: "fetch next batch
// since cursor", "persist cursor", "emit acknowledgement". A native
// streaming client (NatsTransport) and a long-poll-over-HTTP adapter
// (HTTPTransport) both implement it; the consumer's state machine and
// delivery loop never see transport-specific types.
type Transport interface {
	// Connect establishes the underlying connection/subscription starting at
	// position (the max of configured start and cached cursor + 1).
	Connect(ctx context.Context, cfg Config, position uint64) error

	// Fetch blocks up to a transport-defined poll interval for the next
	// batch of messages since the last fetched/acked position. An empty,
	// nil-error result means "no messages available right now", not an
	// error — callers must not treat it as a reconnect trigger.
	Fetch(ctx context.Context) ([]RawMessage, error)

	// Ack acknowledges successful processing of the message at position.
	Ack(ctx context.Context, position uint64) error

	// Nak requests redelivery (retry), discard (skip), or dead-letter
	// routing (park) for the message at position. The action must reach
	// the backend; implementations that cannot express park fall back to
	// skip and log a warning rather than silently retrying forever.
	Nak(ctx context.Context, position uint64, action NakAction) error

	// Close releases the underlying connection.
	Close() error
}

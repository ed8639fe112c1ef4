// Package eventconsumer implements the durable subscription consumer (C2):
// an abstract Transport seam — "fetch next batch since cursor", "persist
// cursor", "emit acknowledgement" — with two concrete bindings (NATS
// JetStream pull consumer and a long-poll-over-HTTP adapter), a reconnect
// state machine with exponential backoff, and per-subscription in-order,
// at-least-once delivery to a synchronous handler. Grounded in
// trm-service's dictionary_consumer.go (pull-fetch loop, Ack/Nak/Term
// dispatch) generalized from one hard-coded stream to the abstract
// Transport this package defines.
package eventconsumer

import (
	"context"
	"time"
)

// StartFrom selects where a subscription begins reading when no cached
// cursor exists, per spec.md §4.2 config.start_from.
type StartFrom string

const (
	StartBegin    StartFrom = "begin"
	StartEnd      StartFrom = "end"
	StartPosition StartFrom = "position"
)

// NakAction is the action a handler requests when it fails to process an
// event; it must reach the transport unmodified rather than being
// hard-coded to retry (spec.md §4.2 Ack semantics).
type NakAction string

const (
	NakRetry NakAction = "retry"
	NakSkip  NakAction = "skip"
	NakPark  NakAction = "park"
)

// Outcome is what a handler decides about one delivered event.
type Outcome struct {
	Processed bool
	Action    NakAction // meaningful only when Processed is false
}

// Processed is the outcome returned after a successful apply-and-mirror.
func Processed() Outcome { return Outcome{Processed: true} }

// Failed builds the outcome for a failed apply, carrying the nak action the
// caller wants forwarded to the transport.
func Failed(action NakAction) Outcome { return Outcome{Processed: false, Action: action} }

// Config is one subscription's configuration, per spec.md §4.2.
type Config struct {
	SubscriptionID       string
	StreamName           string
	GroupName            string
	StartFromMode        StartFrom
	StartPosition        uint64
	ObjectInstanceOffset uint32

	BaseDelay           time.Duration
	MaxDelay            time.Duration
	MaxReconnectAttempts int // -1 for unbounded
}

// Event is one delivered message: its raw payload, stream position, and an
// opaque transport handle used to ack/nak it.
type Event struct {
	Position uint64
	Data     []byte
	ack      func() error
	nak      func(NakAction) error
}

// Ack acknowledges the event was fully processed.
func (e Event) Ack() error { return e.ack() }

// Nak requests redelivery, skip, or parking per action.
func (e Event) Nak(action NakAction) error { return e.nak(action) }

// Status is reported through on_status as the consumer's state machine
// transitions, per spec.md §4.2's state machine.
type Status string

const (
	StatusDisconnected Status = "DISCONNECTED"
	StatusConnecting   Status = "CONNECTING"
	StatusReady        Status = "READY"
	StatusDelivering   Status = "DELIVERING"
	StatusReconnecting Status = "RECONNECTING"
	StatusStopping     Status = "STOPPING"
	StatusStopped      Status = "STOPPED"
)

// Handler is invoked synchronously per event on the delivery loop; the
// next fetch does not begin until it returns (spec.md §4.2 Backpressure).
type Handler func(ctx context.Context, ev Event) Outcome

// ErrorHandler is invoked on transport errors, before the consumer enters
// RECONNECTING.
type ErrorHandler func(err error)

// StatusHandler is invoked on every state transition.
type StatusHandler func(status Status)

// CursorStore persists and retrieves the last-applied position per
// subscription, implemented by cachemirror.Cache in production and a fake
// in tests.
type CursorStore interface {
	GetCursor(subscriptionID string) (uint64, error)
	PutCursor(subscriptionID string, position uint64) error
}

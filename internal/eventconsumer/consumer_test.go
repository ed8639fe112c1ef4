package eventconsumer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/arc-self/bacnet-eventgateway/internal/cachemirror"
)

func testConfig() Config {
	return Config{
		SubscriptionID:       "sub-1",
		StreamName:           "measurements",
		GroupName:            "gw",
		StartFromMode:        StartBegin,
		BaseDelay:            time.Millisecond,
		MaxDelay:             10 * time.Millisecond,
		MaxReconnectAttempts: -1,
	}
}

func TestConsumer_DeliversEventsInOrderAndAcks(t *testing.T) {
	transport := NewFakeTransport()
	transport.QueueBatch(RawMessage{Position: 1, Data: []byte("a")}, RawMessage{Position: 2, Data: []byte("b")})
	cursors := cachemirror.NewFakeCache()

	var delivered []uint64
	done := make(chan struct{})
	handler := func(ctx context.Context, ev Event) Outcome {
		delivered = append(delivered, ev.Position)
		if len(delivered) == 2 {
			close(done)
		}
		return Processed()
	}

	c := New(testConfig(), transport, cursors, zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, c.Subscribe(ctx, handler, nil, nil))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}

	require.NoError(t, c.Unsubscribe())
	assert.Equal(t, []uint64{1, 2}, delivered)
	assert.Equal(t, []uint64{1, 2}, transport.Acked)
}

func TestConsumer_FailedOutcomeNaksWithRequestedAction(t *testing.T) {
	transport := NewFakeTransport()
	transport.QueueBatch(RawMessage{Position: 5, Data: []byte("x")})
	cursors := cachemirror.NewFakeCache()

	done := make(chan struct{})
	handler := func(ctx context.Context, ev Event) Outcome {
		defer close(done)
		return Failed(NakSkip)
	}

	c := New(testConfig(), transport, cursors, zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, c.Subscribe(ctx, handler, nil, nil))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
	}
	require.NoError(t, c.Unsubscribe())

	assert.Equal(t, []uint64{5}, transport.Naked)
	assert.Equal(t, []NakAction{NakSkip}, transport.NakActions)
}

func TestConsumer_ReconnectsOnTransportError(t *testing.T) {
	transport := NewFakeTransport()
	transport.FetchErr = errors.New("boom")
	transport.QueueBatch(RawMessage{Position: 1, Data: []byte("a")})
	cursors := cachemirror.NewFakeCache()

	done := make(chan struct{})
	var once bool
	handler := func(ctx context.Context, ev Event) Outcome {
		if !once {
			once = true
			close(done)
		}
		return Processed()
	}

	var statuses []Status
	onStatus := func(s Status) { statuses = append(statuses, s) }

	c := New(testConfig(), transport, cursors, zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, c.Subscribe(ctx, handler, func(error) {}, onStatus))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for post-reconnect delivery")
	}
	require.NoError(t, c.Unsubscribe())

	assert.Contains(t, statuses, StatusReconnecting)
	assert.GreaterOrEqual(t, transport.Connected, 2)
}

func TestConsumer_ResolveStartPosition_PrefersCachedCursorPlusOne(t *testing.T) {
	transport := NewFakeTransport()
	cursors := cachemirror.NewFakeCache()
	require.NoError(t, cursors.PutCursor("sub-1", 41))

	cfg := testConfig()
	cfg.StartPosition = 0
	c := New(cfg, transport, cursors, zaptest.NewLogger(t))

	start, err := c.resolveStartPosition()
	require.NoError(t, err)
	assert.Equal(t, uint64(42), start)
}

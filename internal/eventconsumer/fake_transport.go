package eventconsumer

import (
	"context"
	"sync"
)

// FakeTransport is an in-memory Transport used by consumer unit tests. Batch
// queues a slice of messages to return from the next Fetch call; ConnectErr
// and FetchErr let tests force reconnect paths.
type FakeTransport struct {
	mu sync.Mutex

	batches   [][]RawMessage
	ConnectErr error
	FetchErr   error

	Acked  []uint64
	Naked  []uint64
	NakActions []NakAction
	Connected  int
	Closed     bool
}

func NewFakeTransport() *FakeTransport {
	return &FakeTransport{}
}

// QueueBatch appends one batch to be returned by a future Fetch call.
func (f *FakeTransport) QueueBatch(msgs ...RawMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, msgs)
}

func (f *FakeTransport) Connect(ctx context.Context, cfg Config, position uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Connected++
	return f.ConnectErr
}

func (f *FakeTransport) Fetch(ctx context.Context) ([]RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FetchErr != nil {
		err := f.FetchErr
		f.FetchErr = nil
		return nil, err
	}
	if len(f.batches) == 0 {
		return nil, nil
	}
	next := f.batches[0]
	f.batches = f.batches[1:]
	return next, nil
}

func (f *FakeTransport) Ack(ctx context.Context, position uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Acked = append(f.Acked, position)
	return nil
}

func (f *FakeTransport) Nak(ctx context.Context, position uint64, action NakAction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Naked = append(f.Naked, position)
	f.NakActions = append(f.NakActions, action)
	return nil
}

func (f *FakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

var _ Transport = (*FakeTransport)(nil)

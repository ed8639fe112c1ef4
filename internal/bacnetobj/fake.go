package bacnetobj

import (
	"sync"

	"github.com/arc-self/bacnet-eventgateway/internal/model"
)

// Notification is one call captured by FakeServer.NotifyCOV, used by tests
// that assert on COV fan-out without a real network stack.
type Notification struct {
	Ref           ObjectRef
	Subscriber    Subscriber
	Value         model.Value
	Flags         model.StatusFlags
	TimeRemaining uint32
}

// FakeServer is an in-memory Server used in registry/covmanager/supervisor
// unit tests, in the same spirit as the hand-rolled mockQuerier in the
// teacher's dictionary_consumer_test.go.
type FakeServer struct {
	mu            sync.Mutex
	Objects       map[ObjectRef]ObjectAttributes
	Notifications []Notification
	FailNotifyFor map[string]bool // keyed by Subscriber.Address
	Started       bool
	Stopped       bool
}

func NewFakeServer() *FakeServer {
	return &FakeServer{
		Objects:       make(map[ObjectRef]ObjectAttributes),
		FailNotifyFor: make(map[string]bool),
	}
}

func (f *FakeServer) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Started = true
	return nil
}

func (f *FakeServer) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Stopped = true
	return nil
}

func (f *FakeServer) UpsertObject(ref ObjectRef, kind model.ValueKind, attrs ObjectAttributes) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Objects[ref] = attrs
	return nil
}

func (f *FakeServer) DeleteObject(ref ObjectRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.Objects, ref)
	return nil
}

func (f *FakeServer) NotifyCOV(ref ObjectRef, sub Subscriber, value model.Value, flags model.StatusFlags, timeRemaining uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailNotifyFor[sub.Address] {
		return errNotifyFailed
	}
	f.Notifications = append(f.Notifications, Notification{Ref: ref, Subscriber: sub, Value: value, Flags: flags, TimeRemaining: timeRemaining})
	return nil
}

func (f *FakeServer) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Notifications)
}

var errNotifyFailed = fakeNotifyError("simulated BACnet send failure")

type fakeNotifyError string

func (e fakeNotifyError) Error() string { return string(e) }

var _ Server = (*FakeServer)(nil)

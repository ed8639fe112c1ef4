package cachemirror

import (
	"sync"

	"github.com/arc-self/bacnet-eventgateway/internal/model"
)

// FakeCache is an in-memory Cache used by registry/supervisor unit tests,
// in the same hand-rolled-fake style as bacnetobj.FakeServer.
type FakeCache struct {
	mu            sync.Mutex
	objects       map[model.ObjectID]*model.ObjectRecord
	cursors       map[string]uint64
	device        *model.DeviceConfig
	Published     []model.ObjectID
	FailTransient bool
}

func NewFakeCache() *FakeCache {
	return &FakeCache{
		objects: make(map[model.ObjectID]*model.ObjectRecord),
		cursors: make(map[string]uint64),
	}
}

func (f *FakeCache) PutObject(r *model.ObjectRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailTransient {
		return transientErr("put_object", errSimulated)
	}
	f.objects[r.ID] = r.Clone()
	return nil
}

func (f *FakeCache) GetObject(id model.ObjectID) (*model.ObjectRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.objects[id]
	if !ok {
		return nil, ErrNotFound
	}
	return r.Clone(), nil
}

func (f *FakeCache) DeleteObject(id model.ObjectID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailTransient {
		return transientErr("delete_object", errSimulated)
	}
	delete(f.objects, id)
	return nil
}

func (f *FakeCache) IterateObjects() ([]*model.ObjectRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*model.ObjectRecord, 0, len(f.objects))
	for _, r := range f.objects {
		out = append(out, r.Clone())
	}
	return out, nil
}

func (f *FakeCache) PutCursor(subscriptionID string, position uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailTransient {
		return transientErr("put_cursor", errSimulated)
	}
	f.cursors[subscriptionID] = position
	return nil
}

func (f *FakeCache) GetCursor(subscriptionID string) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pos, ok := f.cursors[subscriptionID]
	if !ok {
		return 0, ErrNotFound
	}
	return pos, nil
}

func (f *FakeCache) PutDeviceConfig(cfg *model.DeviceConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := *cfg
	f.device = &c
	return nil
}

func (f *FakeCache) GetDeviceConfig() (*model.DeviceConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.device == nil {
		return nil, ErrNotFound
	}
	c := *f.device
	return &c, nil
}

func (f *FakeCache) PublishChange(id model.ObjectID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Published = append(f.Published, id)
}

type simulatedError string

func (e simulatedError) Error() string { return string(e) }

var errSimulated = simulatedError("cachemirror: simulated failure")

var _ Cache = (*FakeCache)(nil)

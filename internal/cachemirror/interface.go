package cachemirror

import "github.com/arc-self/bacnet-eventgateway/internal/model"

// Cache is the cache mirror surface the object registry depends on, so
// registry tests can substitute FakeCache instead of dialing Redis —
// the same seam go-core's repositories expose as interfaces for their
// mock-generated unit tests.
type Cache interface {
	PutObject(r *model.ObjectRecord) error
	GetObject(id model.ObjectID) (*model.ObjectRecord, error)
	DeleteObject(id model.ObjectID) error
	IterateObjects() ([]*model.ObjectRecord, error)
	PutCursor(subscriptionID string, position uint64) error
	GetCursor(subscriptionID string) (uint64, error)
	PutDeviceConfig(cfg *model.DeviceConfig) error
	GetDeviceConfig() (*model.DeviceConfig, error)
	PublishChange(id model.ObjectID)
}

var _ Cache = (*Mirror)(nil)

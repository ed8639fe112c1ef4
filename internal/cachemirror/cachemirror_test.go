package cachemirror

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arc-self/bacnet-eventgateway/internal/model"
)

func TestKeyBuilder_DefaultPrefix(t *testing.T) {
	k := newKeyBuilder("")
	assert.Equal(t, "bacnet-gw:objects:index", k.objectsIndex())
	assert.Equal(t, "bacnet-gw:stream:positions", k.streamPositions())
	assert.Equal(t, "bacnet-gw:device:config", k.deviceConfig())
	assert.Equal(t, "bacnet-gw:events:value_change", k.valueChangeChannel())
}

func TestKeyBuilder_ObjectKey(t *testing.T) {
	k := newKeyBuilder("bacnet:")
	id := model.ObjectID{Type: model.ObjectAnalogInput, Instance: 1005}
	assert.Equal(t, "bacnet:object:0:1005", k.object(id))
	assert.Equal(t, "0:1005", objectIndexMember(id))
}

func TestMarshalUnmarshalRecord_RoundTrips(t *testing.T) {
	incr := 0.5
	min := 0.0
	max := 100.0
	original := &model.ObjectRecord{
		ID:                model.ObjectID{Type: model.ObjectAnalogInput, Instance: 1},
		Name:              "Zone Temp",
		Description:       "Zone 1 temperature sensor",
		ValueKind:         model.ValueReal,
		PresentValue:      model.NewRealValue(20.6),
		UnitsCode:         62,
		CovIncrement:      &incr,
		MinValue:          &min,
		MaxValue:          &max,
		InactiveText:      "Inactive",
		ActiveText:        "Active",
		StatusFlags:       model.StatusFlags{InAlarm: false, Fault: false},
		SourceID:          "s1",
		LastUpdate:        time.UnixMilli(1700000000000).UTC(),
		StreamPosition:    12,
		LastNotifiedValue: model.NewRealValue(20.6),
	}

	data, err := marshalRecord(original)
	require.NoError(t, err)

	got, err := unmarshalRecord(data)
	require.NoError(t, err)

	assert.Equal(t, original.ID, got.ID)
	assert.Equal(t, original.Name, got.Name)
	assert.True(t, original.PresentValue.Equal(got.PresentValue))
	assert.Equal(t, *original.CovIncrement, *got.CovIncrement)
	assert.Equal(t, *original.MinValue, *got.MinValue)
	assert.Equal(t, *original.MaxValue, *got.MaxValue)
	assert.Equal(t, original.StreamPosition, got.StreamPosition)
	assert.True(t, original.LastUpdate.Equal(got.LastUpdate))
}

func TestMarshalUnmarshalRecord_NilOptionalFieldsRoundTrip(t *testing.T) {
	original := &model.ObjectRecord{
		ID:           model.ObjectID{Type: model.ObjectBinaryInput, Instance: 2},
		ValueKind:    model.ValueBoolean,
		PresentValue: model.NewBooleanValue(true),
	}

	data, err := marshalRecord(original)
	require.NoError(t, err)

	got, err := unmarshalRecord(data)
	require.NoError(t, err)

	assert.Nil(t, got.CovIncrement)
	assert.Nil(t, got.MinValue)
	assert.Nil(t, got.MaxValue)
}

func TestDeviceConfigFields_RoundTrips(t *testing.T) {
	cfg := &model.DeviceConfig{
		DeviceInstance:             77,
		DeviceName:                 "Gateway Device",
		VendorID:                   260,
		VendorName:                 "Example Vendor",
		ModelName:                  "EG-1",
		ApplicationSoftwareVersion: "1.0.0",
		Location:                   "Roof",
	}

	fields := deviceConfigFields(cfg)
	got := deviceConfigFromFields(fields)

	assert.Equal(t, cfg.DeviceInstance, got.DeviceInstance)
	assert.Equal(t, cfg.DeviceName, got.DeviceName)
	assert.Equal(t, cfg.VendorID, got.VendorID)
	assert.Equal(t, cfg.ModelName, got.ModelName)
}

func TestFakeCache_PutGetDeleteObject(t *testing.T) {
	c := NewFakeCache()
	rec := &model.ObjectRecord{ID: model.ObjectID{Type: model.ObjectAnalogValue, Instance: 3}, PresentValue: model.NewRealValue(1)}

	require.NoError(t, c.PutObject(rec))
	got, err := c.GetObject(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)

	require.NoError(t, c.DeleteObject(rec.ID))
	_, err = c.GetObject(rec.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFakeCache_CursorNotFound(t *testing.T) {
	c := NewFakeCache()
	_, err := c.GetCursor("sub-1")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, c.PutCursor("sub-1", 42))
	pos, err := c.GetCursor("sub-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), pos)
}

func TestFakeCache_TransientFailureClassification(t *testing.T) {
	c := NewFakeCache()
	c.FailTransient = true
	err := c.PutObject(&model.ObjectRecord{ID: model.ObjectID{Type: model.ObjectAnalogValue, Instance: 1}})
	assert.True(t, IsTransient(err))
}

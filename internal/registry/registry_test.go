package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/arc-self/bacnet-eventgateway/internal/bacnetobj"
	"github.com/arc-self/bacnet-eventgateway/internal/cachemirror"
	"github.com/arc-self/bacnet-eventgateway/internal/covmanager"
	"github.com/arc-self/bacnet-eventgateway/internal/decoder"
	"github.com/arc-self/bacnet-eventgateway/internal/model"
)

func newTestRegistry(t *testing.T) (*Registry, *cachemirror.FakeCache, *bacnetobj.FakeServer) {
	cache := cachemirror.NewFakeCache()
	bacnet := bacnetobj.NewFakeServer()
	cov := covmanager.New(bacnet, 0, zaptest.NewLogger(t))
	return New(cache, cov, bacnet, ClampDisabled, zaptest.NewLogger(t)), cache, bacnet
}

func analogDefinition(instance uint32) *decoder.ObjectDefinition {
	incr := 0.5
	return &decoder.ObjectDefinition{
		ObjectType:       model.ObjectAnalogInput,
		ObjectInstance:   instance,
		ObjectName:       "Zone Temp",
		PresentValueType: "real",
		ValueKind:        model.ValueReal,
		CovIncrement:     &incr,
		InitialValue:     ptrValue(model.NewRealValue(20.0)),
	}
}

func ptrValue(v model.Value) *model.Value { return &v }

func TestApplyDefinition_CreatesRecordAndMirrorsToCache(t *testing.T) {
	r, cache, bacnet := newTestRegistry(t)

	err := r.ApplyDefinition(context.Background(), analogDefinition(1), 0, 10, "s1")
	require.NoError(t, err)

	id := model.ObjectID{Type: model.ObjectAnalogInput, Instance: 1}
	rec := r.Get(id)
	require.NotNil(t, rec)
	assert.Equal(t, 20.0, rec.PresentValue.AsFloat64())

	_, err = cache.GetObject(id)
	assert.NoError(t, err)
	assert.Contains(t, bacnet.Objects, bacnetobj.ObjectRef{Type: 0, Instance: 1})
}

func TestApplyDefinition_Offset(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	require.NoError(t, r.ApplyDefinition(context.Background(), analogDefinition(5), 1000, 1, "s1"))

	rec := r.Get(model.ObjectID{Type: model.ObjectAnalogInput, Instance: 1005})
	require.NotNil(t, rec)
}

func TestApplyDefinition_KindMismatchRejected(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	require.NoError(t, r.ApplyDefinition(context.Background(), analogDefinition(1), 0, 1, "s1"))

	def := analogDefinition(1)
	def.ValueKind = model.ValueBoolean
	err := r.ApplyDefinition(context.Background(), def, 0, 2, "s1")
	assert.ErrorIs(t, err, ErrKindMismatch)
}

func TestApplyValue_NoNotificationBelowIncrement(t *testing.T) {
	r, cache, bacnet := newTestRegistry(t)
	require.NoError(t, r.ApplyDefinition(context.Background(), analogDefinition(1), 0, 1, "s1"))

	err := r.ApplyValue(context.Background(), &decoder.ValueUpdate{
		ObjectType:     model.ObjectAnalogInput,
		ObjectInstance: 1,
		PresentValue:   model.NewRealValue(20.4),
	}, 0, 11)
	require.NoError(t, err)

	id := model.ObjectID{Type: model.ObjectAnalogInput, Instance: 1}
	rec := r.Get(id)
	assert.Equal(t, float32(20.4), rec.PresentValue.Real)
	assert.Equal(t, 20.0, rec.LastNotifiedValue.AsFloat64())
	assert.Equal(t, 0, bacnet.Count())

	cached, err := cache.GetObject(id)
	require.NoError(t, err)
	assert.Equal(t, uint64(11), cached.StreamPosition)
}

func TestApplyValue_NotifiesAtOrAboveIncrement(t *testing.T) {
	r, _, bacnet := newTestRegistry(t)
	require.NoError(t, r.ApplyDefinition(context.Background(), analogDefinition(1), 0, 1, "s1"))

	subID := model.COVSubscriptionIdentity{SubscriberProcessID: 1, SubscriberAddress: "sub:1", ObjectID: model.ObjectID{Type: model.ObjectAnalogInput, Instance: 1}}

	_, err := r.cov.Subscribe(subID, false, 300, nil)
	require.NoError(t, err)

	err = r.ApplyValue(context.Background(), &decoder.ValueUpdate{
		ObjectType:     model.ObjectAnalogInput,
		ObjectInstance: 1,
		PresentValue:   model.NewRealValue(20.6),
	}, 0, 12)
	require.NoError(t, err)

	rec := r.Get(model.ObjectID{Type: model.ObjectAnalogInput, Instance: 1})
	assert.Equal(t, float32(20.6), rec.LastNotifiedValue.Real)
	assert.Equal(t, 1, bacnet.Count())
}

func TestApplyValue_NotFoundWhenObjectMissing(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	err := r.ApplyValue(context.Background(), &decoder.ValueUpdate{ObjectType: model.ObjectAnalogInput, ObjectInstance: 99, PresentValue: model.NewRealValue(1)}, 0, 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestApplyDelete_RemovesFromRegistryCacheAndCancelsSubscriptions(t *testing.T) {
	r, cache, _ := newTestRegistry(t)
	require.NoError(t, r.ApplyDefinition(context.Background(), analogDefinition(1), 0, 1, "s1"))

	id := model.ObjectID{Type: model.ObjectAnalogInput, Instance: 1}
	subID := model.COVSubscriptionIdentity{SubscriberProcessID: 1, SubscriberAddress: "sub:1", ObjectID: id}
	_, err := r.cov.Subscribe(subID, false, 60, nil)
	require.NoError(t, err)

	require.NoError(t, r.ApplyDelete(context.Background(), &decoder.ObjectDelete{ObjectType: model.ObjectAnalogInput, ObjectInstance: 1}, 0))

	assert.Nil(t, r.Get(id))
	_, err = cache.GetObject(id)
	assert.ErrorIs(t, err, cachemirror.ErrNotFound)
	assert.Empty(t, r.cov.ListForObject(id))
}

func TestApplyDeviceConfig_UpdatesOnlyPresentFields(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	name := "Gateway"
	require.NoError(t, r.ApplyDeviceConfig(context.Background(), &decoder.DeviceConfigMsg{DeviceName: &name}))

	location := "Roof"
	require.NoError(t, r.ApplyDeviceConfig(context.Background(), &decoder.DeviceConfigMsg{Location: &location}))

	cfg := r.Device()
	require.NotNil(t, cfg)
	assert.Equal(t, "Gateway", cfg.DeviceName)
	assert.Equal(t, "Roof", cfg.Location)
}

func TestLoadFromCache_ReconstructsRegistry(t *testing.T) {
	cache := cachemirror.NewFakeCache()
	bacnet := bacnetobj.NewFakeServer()
	cov := covmanager.New(bacnet, 0, zaptest.NewLogger(t))

	rec := &model.ObjectRecord{ID: model.ObjectID{Type: model.ObjectAnalogInput, Instance: 1}, ValueKind: model.ValueReal, PresentValue: model.NewRealValue(5)}
	require.NoError(t, cache.PutObject(rec))

	r := New(cache, cov, bacnet, ClampDisabled, zaptest.NewLogger(t))
	require.NoError(t, r.LoadFromCache())

	got := r.Get(rec.ID)
	require.NotNil(t, got)
	assert.Equal(t, 5.0, got.PresentValue.AsFloat64())
	assert.Contains(t, bacnet.Objects, bacnetobj.RefFromModel(rec.ID))
}

func multiStateDefinition(instance uint32, stateCount int) *decoder.ObjectDefinition {
	return &decoder.ObjectDefinition{
		ObjectType:       model.ObjectMultiStateValue,
		ObjectInstance:   instance,
		ObjectName:       "Mode",
		PresentValueType: "unsigned",
		ValueKind:        model.ValueUnsigned,
		StateCountHint:   stateCount,
		InitialValue:     ptrValue(model.NewUnsignedValue(1)),
	}
}

func TestApplyValue_MultiStateOutsideStateCountRejected(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	require.NoError(t, r.ApplyDefinition(context.Background(), multiStateDefinition(1, 3), 0, 1, "s1"))

	id := model.ObjectID{Type: model.ObjectMultiStateValue, Instance: 1}

	err := r.ApplyValue(context.Background(), &decoder.ValueUpdate{
		ObjectType:     model.ObjectMultiStateValue,
		ObjectInstance: 1,
		PresentValue:   model.NewUnsignedValue(0),
	}, 0, 2)
	assert.ErrorIs(t, err, ErrOutOfRange)

	err = r.ApplyValue(context.Background(), &decoder.ValueUpdate{
		ObjectType:     model.ObjectMultiStateValue,
		ObjectInstance: 1,
		PresentValue:   model.NewUnsignedValue(4),
	}, 0, 3)
	assert.ErrorIs(t, err, ErrOutOfRange)

	rec := r.Get(id)
	assert.Equal(t, uint32(1), rec.PresentValue.Unsigned, "rejected values must not mutate the stored present value")
}

func TestApplyValue_MultiStateWithinStateCountAccepted(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	require.NoError(t, r.ApplyDefinition(context.Background(), multiStateDefinition(1, 3), 0, 1, "s1"))

	err := r.ApplyValue(context.Background(), &decoder.ValueUpdate{
		ObjectType:     model.ObjectMultiStateValue,
		ObjectInstance: 1,
		PresentValue:   model.NewUnsignedValue(3),
	}, 0, 2)
	require.NoError(t, err)

	rec := r.Get(model.ObjectID{Type: model.ObjectMultiStateValue, Instance: 1})
	assert.Equal(t, uint32(3), rec.PresentValue.Unsigned)
}

func TestApplyValue_IdempotentOnRedeliveredStreamPosition(t *testing.T) {
	r, _, bacnet := newTestRegistry(t)
	require.NoError(t, r.ApplyDefinition(context.Background(), analogDefinition(1), 0, 1, "s1"))

	upd := &decoder.ValueUpdate{ObjectType: model.ObjectAnalogInput, ObjectInstance: 1, PresentValue: model.NewRealValue(20.6)}
	require.NoError(t, r.ApplyValue(context.Background(), upd, 0, 12))
	firstCount := bacnet.Count()

	require.NoError(t, r.ApplyValue(context.Background(), upd, 0, 12))
	assert.Equal(t, firstCount, bacnet.Count(), "redelivery of an unchanged value must not notify again")
}

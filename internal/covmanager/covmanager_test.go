package covmanager

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/arc-self/bacnet-eventgateway/internal/bacnetobj"
	"github.com/arc-self/bacnet-eventgateway/internal/model"
)

func testIdentity(addr string) model.COVSubscriptionIdentity {
	return model.COVSubscriptionIdentity{
		SubscriberProcessID: 1,
		SubscriberAddress:   addr,
		ObjectID:            model.ObjectID{Type: model.ObjectAnalogInput, Instance: 1},
	}
}

func TestSubscribe_NewThenRenew(t *testing.T) {
	m := New(bacnetobj.NewFakeServer(), 0, zaptest.NewLogger(t))
	id := testIdentity("10.0.0.1:47808")

	result, err := m.Subscribe(id, false, 60, nil)
	require.NoError(t, err)
	assert.Equal(t, ResultNew, result)

	result, err = m.Subscribe(id, true, 120, nil)
	require.NoError(t, err)
	assert.Equal(t, ResultRenewed, result)

	subs := m.ListForObject(id.ObjectID)
	require.Len(t, subs, 1)
	assert.True(t, subs[0].Confirmed)
	assert.Equal(t, uint32(120), subs[0].LifetimeSecondsRemaining)
}

func TestSubscribe_CapacityExceeded(t *testing.T) {
	m := New(bacnetobj.NewFakeServer(), 1, zaptest.NewLogger(t))
	_, err := m.Subscribe(testIdentity("a"), false, 60, nil)
	require.NoError(t, err)

	otherObject := model.COVSubscriptionIdentity{SubscriberProcessID: 2, SubscriberAddress: "b", ObjectID: model.ObjectID{Type: model.ObjectAnalogInput, Instance: 2}}
	_, err = m.Subscribe(otherObject, false, 60, nil)
	assert.ErrorIs(t, err, ErrCapacityExceeded)
}

func TestCancel_RemovesSubscription(t *testing.T) {
	m := New(bacnetobj.NewFakeServer(), 0, zaptest.NewLogger(t))
	id := testIdentity("a")
	_, err := m.Subscribe(id, false, 60, nil)
	require.NoError(t, err)

	require.NoError(t, m.Cancel(id))
	assert.Empty(t, m.ListForObject(id.ObjectID))

	err = m.Cancel(id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNotify_FansOutToAllSubscribersAndToleratesOneFailure(t *testing.T) {
	fake := bacnetobj.NewFakeServer()
	fake.FailNotifyFor["bad:1"] = true

	m := New(fake, 0, zaptest.NewLogger(t))
	objID := model.ObjectID{Type: model.ObjectAnalogInput, Instance: 1}

	_, err := m.Subscribe(model.COVSubscriptionIdentity{SubscriberProcessID: 1, SubscriberAddress: "good:1", ObjectID: objID}, false, 60, nil)
	require.NoError(t, err)
	_, err = m.Subscribe(model.COVSubscriptionIdentity{SubscriberProcessID: 2, SubscriberAddress: "bad:1", ObjectID: objID}, false, 60, nil)
	require.NoError(t, err)

	m.Notify(context.Background(), objID, model.NewRealValue(21.0), model.StatusFlags{})

	assert.Equal(t, 1, fake.Count())
}

func TestTick_ExpiresAtZeroButIndefiniteNeverExpires(t *testing.T) {
	m := New(bacnetobj.NewFakeServer(), 0, zaptest.NewLogger(t))
	objID := model.ObjectID{Type: model.ObjectAnalogInput, Instance: 1}

	expiring := model.COVSubscriptionIdentity{SubscriberProcessID: 1, SubscriberAddress: "expiring", ObjectID: objID}
	indefinite := model.COVSubscriptionIdentity{SubscriberProcessID: 2, SubscriberAddress: "indefinite", ObjectID: objID}

	_, err := m.Subscribe(expiring, false, 2, nil)
	require.NoError(t, err)
	_, err = m.Subscribe(indefinite, false, 0, nil)
	require.NoError(t, err)

	m.Tick(1)
	assert.Len(t, m.ListForObject(objID), 2)

	m.Tick(1)
	subs := m.ListForObject(objID)
	require.Len(t, subs, 1)
	assert.Equal(t, "indefinite", subs[0].Identity.SubscriberAddress)
}

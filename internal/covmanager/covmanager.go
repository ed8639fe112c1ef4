// Package covmanager fans out Change-of-Value notifications to subscribers
// with per-subscription lifetime management (C5), grounded in go-core's
// in-memory registries (map + sync.RWMutex guarding a small, short-held
// critical section) the same way iam-service's session cache is built,
// applied here to the COV subscription table instead of sessions.
package covmanager

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/arc-self/bacnet-eventgateway/internal/bacnetobj"
	"github.com/arc-self/bacnet-eventgateway/internal/model"
)

// ErrCapacityExceeded is returned by Subscribe when the manager already
// holds max_subscriptions live leases.
var ErrCapacityExceeded = errors.New("covmanager: capacity_exceeded")

// ErrNotFound is returned by Cancel when no subscription matches the
// identity.
var ErrNotFound = errors.New("covmanager: not_found")

// SubscribeResult reports whether Subscribe created a new lease or renewed
// an existing one, per spec.md §4.5.
type SubscribeResult string

const (
	ResultNew     SubscribeResult = "new"
	ResultRenewed SubscribeResult = "renewed"
)

const defaultMaxSubscriptions = 100

// Manager is the COV subscription table and notifier.
type Manager struct {
	mu       sync.RWMutex
	byObject map[model.ObjectID]map[model.COVSubscriptionIdentity]*model.COVSubscription
	maxSubs  int
	server   bacnetobj.Server
	log      *zap.Logger
	tracer   trace.Tracer
}

// New constructs a Manager. maxSubscriptions <= 0 uses the spec default of
// 100.
func New(server bacnetobj.Server, maxSubscriptions int, log *zap.Logger) *Manager {
	if maxSubscriptions <= 0 {
		maxSubscriptions = defaultMaxSubscriptions
	}
	return &Manager{
		byObject: make(map[model.ObjectID]map[model.COVSubscriptionIdentity]*model.COVSubscription),
		maxSubs:  maxSubscriptions,
		server:   server,
		log:      log,
		tracer:   otel.Tracer("bacnet-cov-manager"),
	}
}

func (m *Manager) count() int {
	n := 0
	for _, subs := range m.byObject {
		n += len(subs)
	}
	return n
}

// Subscribe creates or renews a COV lease. The quadruple
// (subscriberProcessID, subscriberAddress, objectID) is the identity; a
// re-subscribe with the same identity renews lifetime and updates
// confirmed / covIncrementOverride rather than creating a second entry.
func (m *Manager) Subscribe(identity model.COVSubscriptionIdentity, confirmed bool, lifetimeSeconds uint32, covIncrementOverride *float64) (SubscribeResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	subs, ok := m.byObject[identity.ObjectID]
	if !ok {
		subs = make(map[model.COVSubscriptionIdentity]*model.COVSubscription)
		m.byObject[identity.ObjectID] = subs
	}

	now := time.Now().UTC()
	if existing, found := subs[identity]; found {
		existing.Confirmed = confirmed
		existing.LifetimeSecondsRemaining = lifetimeSeconds
		existing.InitialLifetimeSeconds = lifetimeSeconds
		existing.CovIncrementOverride = covIncrementOverride
		existing.LastNotifiedAt = now
		return ResultRenewed, nil
	}

	if m.count() >= m.maxSubs {
		return "", ErrCapacityExceeded
	}

	subs[identity] = &model.COVSubscription{
		Identity:                 identity,
		Confirmed:                confirmed,
		LifetimeSecondsRemaining: lifetimeSeconds,
		InitialLifetimeSeconds:   lifetimeSeconds,
		CovIncrementOverride:     covIncrementOverride,
		CreatedAt:                now,
		LastNotifiedAt:           now,
	}
	return ResultNew, nil
}

// Cancel removes the subscription matching identity.
func (m *Manager) Cancel(identity model.COVSubscriptionIdentity) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	subs, ok := m.byObject[identity.ObjectID]
	if !ok {
		return ErrNotFound
	}
	if _, found := subs[identity]; !found {
		return ErrNotFound
	}
	delete(subs, identity)
	if len(subs) == 0 {
		delete(m.byObject, identity.ObjectID)
	}
	return nil
}

// CancelAllForObject removes every subscription on id, used by
// apply_delete.
func (m *Manager) CancelAllForObject(id model.ObjectID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byObject, id)
}

// ListForObject returns a snapshot of live subscriptions on id.
func (m *Manager) ListForObject(id model.ObjectID) []model.COVSubscription {
	m.mu.RLock()
	defer m.mu.RUnlock()

	subs := m.byObject[id]
	out := make([]model.COVSubscription, 0, len(subs))
	for _, s := range subs {
		out = append(out, *s)
	}
	return out
}

// Notify fans out one notification to every live subscriber of id. Per
// spec.md §4.4, a send failure for one subscriber does not block delivery
// to the others; failures are logged and left for the next value change to
// retry (no per-subscription retry queue in v1).
func (m *Manager) Notify(ctx context.Context, id model.ObjectID, value model.Value, flags model.StatusFlags) {
	_, span := m.tracer.Start(ctx, "gateway.cov_notify")
	defer span.End()

	m.mu.RLock()
	subs := m.byObject[id]
	snapshot := make([]*model.COVSubscription, 0, len(subs))
	for _, s := range subs {
		snapshot = append(snapshot, s)
	}
	m.mu.RUnlock()

	ref := bacnetobj.RefFromModel(id)
	for _, s := range snapshot {
		subscriber := bacnetobj.Subscriber{
			ProcessID: s.Identity.SubscriberProcessID,
			Address:   s.Identity.SubscriberAddress,
			Confirmed: s.Confirmed,
		}
		if err := m.server.NotifyCOV(ref, subscriber, value, flags, s.LifetimeSecondsRemaining); err != nil {
			span.RecordError(err)
			m.log.Warn("covmanager: notify failed, will retry on next value change",
				zap.String("object", id.String()), zap.String("subscriber", s.Identity.SubscriberAddress), zap.Error(err))
			continue
		}
		m.mu.Lock()
		s.LastNotifiedAt = time.Now().UTC()
		m.mu.Unlock()
	}
}

// Tick decrements every live subscription's remaining lifetime by
// elapsedSeconds and removes any that reach zero, except subscriptions
// created with lifetime 0 (indefinite, never expires — see design notes).
// Called once per second by the supervisor.
func (m *Manager) Tick(elapsedSeconds uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for objID, subs := range m.byObject {
		for identity, s := range subs {
			if s.InitialLifetimeSeconds == 0 {
				continue
			}
			if s.LifetimeSecondsRemaining <= elapsedSeconds {
				delete(subs, identity)
				continue
			}
			s.LifetimeSecondsRemaining -= elapsedSeconds
		}
		if len(subs) == 0 {
			delete(m.byObject, objID)
		}
	}
}

// Count returns the total number of live subscriptions across all objects.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.count()
}

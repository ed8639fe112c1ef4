// Package supervisor wires the cache mirror, event consumers, object
// registry, COV manager, and BACnet object layer together and owns the
// startup/shutdown ordering (C6), per spec.md §4.6. Grounded in
// trm-service's cmd/api/main.go wiring order (secrets → NATS → consumer →
// HTTP → graceful shutdown on signal), generalized into an explicit type
// instead of inline main() steps so it can be started and stopped from
// tests without a process.
package supervisor

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/arc-self/bacnet-eventgateway/internal/bacnetobj"
	"github.com/arc-self/bacnet-eventgateway/internal/cachemirror"
	"github.com/arc-self/bacnet-eventgateway/internal/config"
	"github.com/arc-self/bacnet-eventgateway/internal/covmanager"
	"github.com/arc-self/bacnet-eventgateway/internal/decoder"
	"github.com/arc-self/bacnet-eventgateway/internal/eventconsumer"
	"github.com/arc-self/bacnet-eventgateway/internal/httpapi"
	"github.com/arc-self/bacnet-eventgateway/internal/registry"
)

// TransportFactory builds the Transport for one configured device/
// subscription; production wiring supplies eventconsumer.NewNatsTransport
// or eventconsumer.NewHTTPTransport, tests supply eventconsumer.FakeTransport.
type TransportFactory func(device config.Device) (eventconsumer.Transport, error)

// Supervisor owns every component's lifecycle.
type Supervisor struct {
	cfg       *config.Config
	cache     cachemirror.Cache
	bacnet    bacnetobj.Server
	cov       *covmanager.Manager
	registry  *registry.Registry
	metrics   *httpapi.Metrics
	http      *httpapi.Server
	log       *zap.Logger
	transport TransportFactory

	consumers []*eventconsumer.Consumer

	tickStop chan struct{}
	tickDone chan struct{}
}

// New constructs a Supervisor from already-built components; cmd/main.go
// is responsible for dialing the cache, building the BACnet server, and
// constructing the transport factory before calling this.
func New(cfg *config.Config, cache cachemirror.Cache, bacnet bacnetobj.Server, metrics *httpapi.Metrics, transport TransportFactory, log *zap.Logger) *Supervisor {
	cov := covmanager.New(bacnet, cfg.Server.MaxCovSubscriptions, log)
	reg := registry.New(cache, cov, bacnet, registry.ClampDisabled, log)

	s := &Supervisor{
		cfg:       cfg,
		cache:     cache,
		bacnet:    bacnet,
		cov:       cov,
		registry:  reg,
		metrics:   metrics,
		transport: transport,
		log:       log,
	}
	s.http = httpapi.New("bacnet-eventgateway", metrics, reg, s.healthChecks(), log)
	return s
}

// Registry exposes the registry for callers that need read access (e.g.
// COV subscribe/cancel driven by inbound BACnet requests, out of scope for
// this package but needed by an embedder).
func (s *Supervisor) Registry() *registry.Registry { return s.registry }

// COVManager exposes the COV manager for the same reason.
func (s *Supervisor) COVManager() *covmanager.Manager { return s.cov }

func (s *Supervisor) healthChecks() []httpapi.Checker {
	return []httpapi.Checker{
		func() httpapi.CheckStatus {
			_, err := s.cache.GetDeviceConfig()
			up := err == nil || errors.Is(err, cachemirror.ErrNotFound)
			return httpapi.CheckStatus{Name: "cache", Up: up}
		},
	}
}

// Start runs the full startup sequence, per spec.md §4.6:
// (1) connect cache — already done by the caller constructing Supervisor;
// (2) load_from_cache into the registry;
// (3) initialize the BACnet server and start its task loop;
// (4) for each configured, enabled subscription resolve its start position;
// (5) create consumers;
// (6) start the COV tick and the health/metrics HTTP surface.
func (s *Supervisor) Start(ctx context.Context) error {
	if err := s.registry.LoadFromCache(); err != nil {
		return err
	}

	if err := s.bacnet.Start(); err != nil {
		return err
	}

	for _, device := range s.cfg.Devices {
		if !device.Enabled {
			continue
		}
		if err := s.startConsumer(ctx, device); err != nil {
			return err
		}
	}

	s.tickStop = make(chan struct{})
	s.tickDone = make(chan struct{})
	go s.runCOVTick()

	s.http.Start(s.cfg.Health.BindAddress + ":" + strconv.Itoa(s.cfg.Health.Port))

	return nil
}

func (s *Supervisor) startConsumer(ctx context.Context, device config.Device) error {
	transport, err := s.transport(device)
	if err != nil {
		return err
	}

	cfg := eventconsumer.Config{
		SubscriptionID:       device.SubscriptionID,
		StreamName:           device.StreamName,
		GroupName:            device.GroupName,
		StartFromMode:        eventconsumer.StartFrom(device.StartFrom),
		StartPosition:        device.StartPosition,
		ObjectInstanceOffset: device.ObjectInstanceOffset,
		BaseDelay:            time.Duration(s.cfg.EventStore.ReconnectDelayMs) * time.Millisecond,
		MaxDelay:             30 * time.Second,
		MaxReconnectAttempts: s.cfg.EventStore.MaxReconnectAttempts,
	}

	consumer := eventconsumer.New(cfg, transport, s.cache, s.log)
	s.consumers = append(s.consumers, consumer)

	handler := s.applyHandler(device.ObjectInstanceOffset, device.SubscriptionID)
	onStatus := func(status eventconsumer.Status) {
		s.metrics.ConsumerStatus.WithLabelValues(device.SubscriptionID).Set(statusOrdinal(status))
	}
	onError := func(err error) {
		s.log.Error("supervisor: consumer transport error", zap.String("subscription", device.SubscriptionID), zap.Error(err))
	}

	return consumer.Subscribe(ctx, handler, onError, onStatus)
}

// applyHandler implements the apply path of spec.md §4.6: decode → (on
// decode error: ack and emit counter) → apply_* → (on failure: nak-retry;
// on success: put_cursor then ack). Cursor advance precedes ack so a crash
// between the two cannot lose events — redelivery after crash simply
// reapplies, which is idempotent.
//
// The cursor is driven by the transport-delivered ev.Position (e.g. NATS
// meta.Sequence.Stream), not the envelope's own streamPosition field: that
// field is optional wire metadata the source system may omit, and a cursor
// built from an absent field never advances. env.StreamPosition is used only
// as a fallback when the transport reports no position at all.
func (s *Supervisor) applyHandler(offset uint32, subscriptionID string) eventconsumer.Handler {
	return func(ctx context.Context, ev eventconsumer.Event) eventconsumer.Outcome {
		position := ev.Position

		env, err := decoder.Decode(ev.Data)
		if err != nil {
			s.metrics.EventsDecoded.WithLabelValues("unknown", "error").Inc()
			s.log.Warn("supervisor: decode error, skipping event", zap.Uint64("position", ev.Position), zap.Error(err))
			return eventconsumer.Processed()
		}
		s.metrics.EventsDecoded.WithLabelValues(string(env.Type), "ok").Inc()

		if position == 0 && env.StreamPosition != 0 {
			position = env.StreamPosition
		}

		if err := s.applyEnvelope(ctx, env, offset, position); err != nil {
			s.metrics.EventsApplied.WithLabelValues(string(env.Type), "error").Inc()
			var cacheErr *registry.ErrCacheTransient
			if errors.As(err, &cacheErr) {
				s.log.Error("supervisor: transient cache failure, requesting retry", zap.Error(err))
				return eventconsumer.Failed(eventconsumer.NakRetry)
			}
			s.log.Warn("supervisor: apply rejected event, skipping", zap.Error(err))
			return eventconsumer.Processed()
		}
		s.metrics.EventsApplied.WithLabelValues(string(env.Type), "ok").Inc()

		if err := s.cache.PutCursor(subscriptionID, position); err != nil {
			s.log.Error("supervisor: cursor persistence failed, requesting retry", zap.Error(err))
			return eventconsumer.Failed(eventconsumer.NakRetry)
		}
		return eventconsumer.Processed()
	}
}

func (s *Supervisor) applyEnvelope(ctx context.Context, env *decoder.Envelope, offset uint32, position uint64) error {
	switch {
	case env.ObjectDefinition != nil:
		return s.registry.ApplyDefinition(ctx, env.ObjectDefinition, offset, position, env.SourceID)
	case env.ValueUpdate != nil:
		return s.registry.ApplyValue(ctx, env.ValueUpdate, offset, position)
	case env.ObjectDelete != nil:
		return s.registry.ApplyDelete(ctx, env.ObjectDelete, offset)
	case env.DeviceConfig != nil:
		return s.registry.ApplyDeviceConfig(ctx, env.DeviceConfig)
	default:
		return nil
	}
}

func (s *Supervisor) runCOVTick() {
	defer close(s.tickDone)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-s.tickStop:
			return
		case <-ticker.C:
			s.cov.Tick(1)
			s.metrics.COVSubscriptions.Set(float64(s.cov.Count()))
			s.metrics.RegistryObjects.Set(float64(len(s.registry.Snapshot())))
		}
	}
}

// Stop runs the shutdown sequence, per spec.md §4.6:
// (1) stop consumers (no new events);
// (2) drain in-flight applications — Unsubscribe blocks until the delivery
//     loop returns, which only happens between events;
// (3) stop the BACnet server;
// (4) stop the COV tick;
// (5) close the cache.
func (s *Supervisor) Stop() error {
	var firstErr error
	var mu sync.Mutex
	record := func(err error) {
		if err == nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if firstErr == nil {
			firstErr = err
		}
	}

	var wg sync.WaitGroup
	for _, c := range s.consumers {
		wg.Add(1)
		go func(c *eventconsumer.Consumer) {
			defer wg.Done()
			record(c.Unsubscribe())
		}(c)
	}
	wg.Wait()

	record(s.bacnet.Stop())

	if s.tickStop != nil {
		close(s.tickStop)
		<-s.tickDone
	}

	record(s.http.Shutdown(10 * time.Second))

	if closer, ok := s.cache.(interface{ Close() error }); ok {
		record(closer.Close())
	}

	return firstErr
}

func statusOrdinal(status eventconsumer.Status) float64 {
	switch status {
	case eventconsumer.StatusDisconnected:
		return 0
	case eventconsumer.StatusConnecting:
		return 1
	case eventconsumer.StatusReady:
		return 2
	case eventconsumer.StatusDelivering:
		return 3
	case eventconsumer.StatusReconnecting:
		return 4
	case eventconsumer.StatusStopping:
		return 5
	case eventconsumer.StatusStopped:
		return 6
	default:
		return -1
	}
}

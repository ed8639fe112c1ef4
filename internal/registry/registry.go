// Package registry implements the in-memory authoritative object table
// (C4): apply_definition / apply_value / apply_delete / apply_device_config
// / load_from_cache, Change-of-Value delta detection, and integration with
// the cache mirror, the COV manager, and the external BACnet object layer.
// Grounded in the spec's own design note: "re-architect as an explicit
// registry value owned by the supervisor... This removes hidden coupling
// and makes testing trivial" — generalized from go-core's pattern of a
// struct holding a map guarded by one mutex (the same shape iam-service
// uses for its in-memory session table), never module-level state.
package registry

import (
	"context"
	"math"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/arc-self/bacnet-eventgateway/internal/bacnetobj"
	"github.com/arc-self/bacnet-eventgateway/internal/cachemirror"
	"github.com/arc-self/bacnet-eventgateway/internal/covmanager"
	"github.com/arc-self/bacnet-eventgateway/internal/decoder"
	"github.com/arc-self/bacnet-eventgateway/internal/model"
)

// ClampMode controls what ApplyValue does when an incoming value falls
// outside the configured [min, max] range.
type ClampMode bool

const (
	ClampEnabled  ClampMode = true
	ClampDisabled ClampMode = false
)

// Registry is the authoritative in-memory object table. Every apply_*
// operation runs under objectsMu, per spec.md §5's single registry-wide
// mutex; the cache mirror is called with the lock held no longer than one
// write's duration.
type Registry struct {
	objectsMu sync.RWMutex
	objects   map[model.ObjectID]*model.ObjectRecord

	device   *model.DeviceConfig
	deviceMu sync.RWMutex

	cache  cachemirror.Cache
	cov    *covmanager.Manager
	bacnet bacnetobj.Server
	clamp  ClampMode
	log    *zap.Logger
	tracer trace.Tracer
}

// New constructs an empty Registry.
func New(cache cachemirror.Cache, cov *covmanager.Manager, bacnet bacnetobj.Server, clamp ClampMode, log *zap.Logger) *Registry {
	return &Registry{
		objects: make(map[model.ObjectID]*model.ObjectRecord),
		cache:   cache,
		cov:     cov,
		bacnet:  bacnet,
		clamp:   clamp,
		log:     log,
		tracer:  otel.Tracer("bacnet-registry"),
	}
}

func offsetInstance(instance, offset uint32) uint32 { return instance + offset }

// ApplyDefinition implements apply_definition, per spec.md §4.4.
func (r *Registry) ApplyDefinition(ctx context.Context, def *decoder.ObjectDefinition, offset uint32, streamPosition uint64, sourceID string) error {
	_, span := r.tracer.Start(ctx, "gateway.apply_definition")
	defer span.End()

	id := model.ObjectID{Type: def.ObjectType, Instance: offsetInstance(def.ObjectInstance, offset)}

	r.objectsMu.Lock()
	existing, found := r.objects[id]
	if found && existing.ValueKind != def.ValueKind {
		r.objectsMu.Unlock()
		span.RecordError(ErrKindMismatch)
		return ErrKindMismatch
	}

	var rec *model.ObjectRecord
	if found {
		rec = existing
		rec.Name = def.ObjectName
		rec.Description = def.Description
		rec.UnitsCode = def.Units
		rec.UnitsText = def.UnitsText
		rec.CovIncrement = def.CovIncrement
		rec.MinValue = def.MinPresentValue
		rec.MaxValue = def.MaxPresentValue
		rec.StateTexts = def.StateTexts
		rec.StateCount = def.StateCountHint
		rec.InactiveText = def.InactiveText
		rec.ActiveText = def.ActiveText
		rec.SourceID = sourceID
		rec.LastUpdate = time.Now().UTC()
		rec.StreamPosition = streamPosition
	} else {
		initial := model.Value{Kind: def.ValueKind}
		if def.InitialValue != nil {
			initial = *def.InitialValue
		}
		rec = &model.ObjectRecord{
			ID:                id,
			Name:              def.ObjectName,
			Description:       def.Description,
			ValueKind:         def.ValueKind,
			PresentValue:      initial,
			UnitsCode:         def.Units,
			UnitsText:         def.UnitsText,
			CovIncrement:      def.CovIncrement,
			MinValue:          def.MinPresentValue,
			MaxValue:          def.MaxPresentValue,
			StateTexts:        def.StateTexts,
			StateCount:        def.StateCountHint,
			InactiveText:      def.InactiveText,
			ActiveText:        def.ActiveText,
			SourceID:          sourceID,
			LastUpdate:        time.Now().UTC(),
			StreamPosition:    streamPosition,
			LastNotifiedValue: initial,
		}
		r.objects[id] = rec
	}
	snapshot := rec.Clone()
	r.objectsMu.Unlock()

	if err := r.cache.PutObject(snapshot); err != nil {
		wrapped := wrapCacheErr(err)
		span.RecordError(wrapped)
		return wrapped
	}

	if err := r.bacnet.UpsertObject(bacnetobj.RefFromModel(id), snapshot.ValueKind, toAttributes(snapshot)); err != nil {
		r.log.Warn("registry: BACnet layer upsert failed", zap.String("object", id.String()), zap.Error(err))
	}
	return nil
}

// ApplyValue implements apply_value, per spec.md §4.4. Side effects are
// ordered in-memory, then cache, then COV, matching the invariant that a
// transient cache failure must not suppress the in-memory write.
func (r *Registry) ApplyValue(ctx context.Context, upd *decoder.ValueUpdate, offset uint32, streamPosition uint64) error {
	_, span := r.tracer.Start(ctx, "gateway.apply_value")
	defer span.End()

	id := model.ObjectID{Type: upd.ObjectType, Instance: offsetInstance(upd.ObjectInstance, offset)}

	r.objectsMu.Lock()
	rec, found := r.objects[id]
	if !found {
		r.objectsMu.Unlock()
		span.RecordError(ErrNotFound)
		return ErrNotFound
	}

	value := upd.PresentValue
	if id.Type.IsMultiState() {
		if value.Unsigned < 1 || (rec.StateCount > 0 && value.Unsigned > uint32(rec.StateCount)) {
			r.objectsMu.Unlock()
			span.RecordError(ErrOutOfRange)
			return ErrOutOfRange
		}
	}
	if rec.MinValue != nil || rec.MaxValue != nil {
		clamped, ok := clampOrReject(value, rec.MinValue, rec.MaxValue, r.clamp)
		if !ok {
			r.objectsMu.Unlock()
			span.RecordError(ErrOutOfRange)
			return ErrOutOfRange
		}
		value = clamped
	}

	prevNotified := rec.LastNotifiedValue
	prevFlags := rec.StatusFlags

	rec.PresentValue = value
	if upd.StatusFlags != nil {
		rec.StatusFlags = *upd.StatusFlags
	}
	if upd.Reliability != nil {
		rec.Reliability = *upd.Reliability
	}
	if upd.EventState != nil {
		rec.EventState = *upd.EventState
	}
	rec.LastUpdate = time.Now().UTC()
	rec.StreamPosition = streamPosition

	shouldNotify := covDelta(prevNotified, value, rec.CovIncrement) || flagsChanged(prevFlags, rec.StatusFlags)
	if shouldNotify {
		rec.LastNotifiedValue = value
	}
	snapshot := rec.Clone()
	r.objectsMu.Unlock()

	if err := r.cache.PutObject(snapshot); err != nil {
		wrapped := wrapCacheErr(err)
		span.RecordError(wrapped)
		return wrapped
	}
	r.cache.PublishChange(id)

	if shouldNotify {
		r.cov.Notify(ctx, id, snapshot.PresentValue, snapshot.StatusFlags)
	}
	return nil
}

// ApplyDelete implements apply_delete, per spec.md §4.4.
func (r *Registry) ApplyDelete(ctx context.Context, del *decoder.ObjectDelete, offset uint32) error {
	_, span := r.tracer.Start(ctx, "gateway.apply_delete")
	defer span.End()

	id := model.ObjectID{Type: del.ObjectType, Instance: offsetInstance(del.ObjectInstance, offset)}

	r.objectsMu.Lock()
	delete(r.objects, id)
	r.objectsMu.Unlock()

	if err := r.bacnet.DeleteObject(bacnetobj.RefFromModel(id)); err != nil {
		r.log.Warn("registry: BACnet layer delete failed", zap.String("object", id.String()), zap.Error(err))
	}
	if err := r.cache.DeleteObject(id); err != nil {
		wrapped := wrapCacheErr(err)
		span.RecordError(wrapped)
		return wrapped
	}
	r.cov.CancelAllForObject(id)
	return nil
}

// ApplyDeviceConfig implements apply_device_config, per spec.md §4.4.
func (r *Registry) ApplyDeviceConfig(ctx context.Context, cfg *decoder.DeviceConfigMsg) error {
	_, span := r.tracer.Start(ctx, "gateway.apply_device_config")
	defer span.End()

	r.deviceMu.Lock()
	if r.device == nil {
		r.device = &model.DeviceConfig{}
	}
	if cfg.DeviceInstance != nil {
		r.device.DeviceInstance = *cfg.DeviceInstance
	}
	if cfg.DeviceName != nil {
		r.device.DeviceName = *cfg.DeviceName
	}
	if cfg.DeviceDescription != nil {
		r.device.DeviceDescription = *cfg.DeviceDescription
	}
	if cfg.VendorID != nil {
		r.device.VendorID = *cfg.VendorID
	}
	if cfg.VendorName != nil {
		r.device.VendorName = *cfg.VendorName
	}
	if cfg.ModelName != nil {
		r.device.ModelName = *cfg.ModelName
	}
	if cfg.ApplicationSoftwareVersion != nil {
		r.device.ApplicationSoftwareVersion = *cfg.ApplicationSoftwareVersion
	}
	if cfg.Location != nil {
		r.device.Location = *cfg.Location
	}
	snapshot := *r.device
	r.deviceMu.Unlock()

	if err := r.cache.PutDeviceConfig(&snapshot); err != nil {
		wrapped := wrapCacheErr(err)
		span.RecordError(wrapped)
		return wrapped
	}
	return nil
}

// LoadFromCache implements load_from_cache, reconstructing the in-memory
// map and BACnet-layer objects by iterating the cache index. Called at
// startup per spec.md §4.6 step 2.
func (r *Registry) LoadFromCache() error {
	records, err := r.cache.IterateObjects()
	if err != nil {
		return wrapCacheErr(err)
	}

	r.objectsMu.Lock()
	for _, rec := range records {
		r.objects[rec.ID] = rec
	}
	r.objectsMu.Unlock()

	for _, rec := range records {
		if err := r.bacnet.UpsertObject(bacnetobj.RefFromModel(rec.ID), rec.ValueKind, toAttributes(rec)); err != nil {
			r.log.Warn("registry: BACnet layer upsert failed during recovery", zap.String("object", rec.ID.String()), zap.Error(err))
		}
	}

	if cfg, err := r.cache.GetDeviceConfig(); err == nil {
		r.deviceMu.Lock()
		r.device = cfg
		r.deviceMu.Unlock()
	} else if err != cachemirror.ErrNotFound {
		return wrapCacheErr(err)
	}

	r.log.Info("registry: loaded from cache", zap.Int("objects", len(records)))
	return nil
}

// Get returns a defensive copy of the record at id, or nil if absent.
func (r *Registry) Get(id model.ObjectID) *model.ObjectRecord {
	r.objectsMu.RLock()
	defer r.objectsMu.RUnlock()
	return r.objects[id].Clone()
}

// Snapshot returns a defensive copy of every object in the registry,
// consumed by the /status endpoint.
func (r *Registry) Snapshot() []*model.ObjectRecord {
	r.objectsMu.RLock()
	defer r.objectsMu.RUnlock()
	out := make([]*model.ObjectRecord, 0, len(r.objects))
	for _, rec := range r.objects {
		out = append(out, rec.Clone())
	}
	return out
}

// Device returns a copy of the device record, or nil if never set.
func (r *Registry) Device() *model.DeviceConfig {
	r.deviceMu.RLock()
	defer r.deviceMu.RUnlock()
	if r.device == nil {
		return nil
	}
	cfg := *r.device
	return &cfg
}

func toAttributes(rec *model.ObjectRecord) bacnetobj.ObjectAttributes {
	return bacnetobj.ObjectAttributes{
		Name:         rec.Name,
		Description:  rec.Description,
		UnitsCode:    rec.UnitsCode,
		StateTexts:   rec.StateTexts,
		InactiveText: rec.InactiveText,
		ActiveText:   rec.ActiveText,
	}
}

func wrapCacheErr(err error) error {
	if cachemirror.IsTransient(err) {
		return &ErrCacheTransient{Err: err}
	}
	return err
}

// covDelta implements the COV delta rule of spec.md §4.4: numeric kinds
// notify when the absolute delta reaches the increment (or on any change
// when the increment is 0); boolean notifies on any change.
func covDelta(prev, next model.Value, covIncrement *float64) bool {
	if next.Kind == model.ValueBoolean {
		return prev.Boolean != next.Boolean
	}

	c := 0.0
	if covIncrement != nil {
		c = *covIncrement
	}
	if c > 0 {
		return math.Abs(next.AsFloat64()-prev.AsFloat64()) >= c
	}
	return !prev.Equal(next)
}

func flagsChanged(prev, next model.StatusFlags) bool {
	return !prev.Equal(next)
}

// clampOrReject applies min/max to value when clamping is enabled,
// otherwise rejects out-of-range values outright.
func clampOrReject(value model.Value, min, max *float64, clamp ClampMode) (model.Value, bool) {
	f := value.AsFloat64()
	if min != nil && f < *min {
		if !bool(clamp) {
			return value, false
		}
		return setFloat(value, *min), true
	}
	if max != nil && f > *max {
		if !bool(clamp) {
			return value, false
		}
		return setFloat(value, *max), true
	}
	return value, true
}

func setFloat(value model.Value, f float64) model.Value {
	switch value.Kind {
	case model.ValueReal:
		value.Real = float32(f)
	case model.ValueUnsigned:
		value.Unsigned = uint32(f)
	case model.ValueSigned:
		value.Signed = int32(f)
	case model.ValueEnumerated:
		value.Enum = uint32(f)
	}
	return value
}

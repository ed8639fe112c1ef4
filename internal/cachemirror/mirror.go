package cachemirror

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/arc-self/bacnet-eventgateway/internal/model"
)

// Config configures the Redis-backed cache mirror, per spec.md §6 *cache*
// section.
type Config struct {
	Host              string
	Port              int
	Password          string
	Database          int
	KeyPrefix         string
	ConnectTimeout    time.Duration
	CommandTimeout    time.Duration
}

// Mirror is the cache mirror (C1): a thin projection layer over Redis
// providing put/get/delete/iterate for object records, a cursor hash, a
// device-config hash, and a best-effort pub/sub change signal. Constructed
// the way public-api-service wires its redis.Client into sdk_handler.go: one
// shared client, context-scoped calls, redis.Nil mapped to ErrNotFound.
type Mirror struct {
	client *redis.Client
	keys   keyBuilder
	log    *zap.Logger
	cmdTO  time.Duration
}

// New dials Redis and returns a ready Mirror. Connection failures are
// reported as transient per spec.md §4.1's failure model.
func New(cfg Config, log *zap.Logger) (*Mirror, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.Database,
		DialTimeout:  cfg.ConnectTimeout,
		ReadTimeout:  cfg.CommandTimeout,
		WriteTimeout: cfg.CommandTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, transientErr("connect", err)
	}

	return &Mirror{
		client: client,
		keys:   newKeyBuilder(cfg.KeyPrefix),
		log:    log,
		cmdTO:  cfg.CommandTimeout,
	}, nil
}

// Close releases the underlying connection pool.
func (m *Mirror) Close() error {
	return m.client.Close()
}

func (m *Mirror) ctx() (context.Context, context.CancelFunc) {
	if m.cmdTO <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), m.cmdTO)
}

// PutObject serializes the record and writes the object blob plus its index
// entry in one pipelined batch (spec.md §4.1 put_object).
func (m *Mirror) PutObject(r *model.ObjectRecord) error {
	data, err := marshalRecord(r)
	if err != nil {
		return permanentErr("put_object", err)
	}

	ctx, cancel := m.ctx()
	defer cancel()

	_, err = m.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, m.keys.object(r.ID), data, 0)
		pipe.SAdd(ctx, m.keys.objectsIndex(), objectIndexMember(r.ID))
		return nil
	})
	if err != nil {
		return classifyRedisErr("put_object", err)
	}
	return nil
}

// GetObject fetches and deserializes the record at (type, instance), or
// ErrNotFound if absent.
func (m *Mirror) GetObject(id model.ObjectID) (*model.ObjectRecord, error) {
	ctx, cancel := m.ctx()
	defer cancel()

	data, err := m.client.Get(ctx, m.keys.object(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, classifyRedisErr("get_object", err)
	}

	rec, err := unmarshalRecord(data)
	if err != nil {
		return nil, permanentErr("get_object", fmt.Errorf("decode record %s: %w", id, err))
	}
	return rec, nil
}

// DeleteObject removes the blob and index entry for (type, instance).
func (m *Mirror) DeleteObject(id model.ObjectID) error {
	ctx, cancel := m.ctx()
	defer cancel()

	_, err := m.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, m.keys.object(id))
		pipe.SRem(ctx, m.keys.objectsIndex(), objectIndexMember(id))
		return nil
	})
	if err != nil {
		return classifyRedisErr("delete_object", err)
	}
	return nil
}

// IterateObjects walks the object index and returns every record, used at
// startup by the registry's load_from_cache. It tolerates a stale index
// member whose blob has since been deleted (logs and skips) so a partial
// failure during a prior delete_object cannot wedge recovery.
func (m *Mirror) IterateObjects() ([]*model.ObjectRecord, error) {
	ctx, cancel := m.ctx()
	defer cancel()

	members, err := m.client.SMembers(ctx, m.keys.objectsIndex()).Result()
	if err != nil {
		return nil, classifyRedisErr("iterate_objects", err)
	}

	records := make([]*model.ObjectRecord, 0, len(members))
	for _, member := range members {
		var objType, instance uint32
		if _, err := fmt.Sscanf(member, "%d:%d", &objType, &instance); err != nil {
			m.log.Warn("cachemirror: skipping malformed index member", zap.String("member", member))
			continue
		}
		id := model.ObjectID{Type: model.ObjectType(objType), Instance: instance}

		data, err := m.client.Get(ctx, m.keys.object(id)).Bytes()
		if err == redis.Nil {
			m.log.Warn("cachemirror: index member has no blob, skipping", zap.String("member", member))
			continue
		}
		if err != nil {
			return nil, classifyRedisErr("iterate_objects", err)
		}

		rec, err := unmarshalRecord(data)
		if err != nil {
			m.log.Warn("cachemirror: skipping corrupt record", zap.String("member", member), zap.Error(err))
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// PutCursor persists the last-applied stream position for a subscription.
func (m *Mirror) PutCursor(subscriptionID string, position uint64) error {
	ctx, cancel := m.ctx()
	defer cancel()

	if err := m.client.HSet(ctx, m.keys.streamPositions(), subscriptionID, position).Err(); err != nil {
		return classifyRedisErr("put_cursor", err)
	}
	return nil
}

// GetCursor returns the cached cursor for a subscription, or ErrNotFound.
func (m *Mirror) GetCursor(subscriptionID string) (uint64, error) {
	ctx, cancel := m.ctx()
	defer cancel()

	pos, err := m.client.HGet(ctx, m.keys.streamPositions(), subscriptionID).Uint64()
	if err == redis.Nil {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, classifyRedisErr("get_cursor", err)
	}
	return pos, nil
}

// PutDeviceConfig mirrors the device record under ${prefix}device:config as
// a hash of fields (spec.md §6 key layout).
func (m *Mirror) PutDeviceConfig(cfg *model.DeviceConfig) error {
	ctx, cancel := m.ctx()
	defer cancel()

	fields := deviceConfigFields(cfg)
	args := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		args[k] = v
	}
	if err := m.client.HSet(ctx, m.keys.deviceConfig(), args).Err(); err != nil {
		return classifyRedisErr("put_device_config", err)
	}
	return nil
}

// GetDeviceConfig returns the mirrored device record, or ErrNotFound if the
// hash has never been written.
func (m *Mirror) GetDeviceConfig() (*model.DeviceConfig, error) {
	ctx, cancel := m.ctx()
	defer cancel()

	fields, err := m.client.HGetAll(ctx, m.keys.deviceConfig()).Result()
	if err != nil {
		return nil, classifyRedisErr("get_device_config", err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	return deviceConfigFromFields(fields), nil
}

// PublishChange emits a best-effort change signal on the value-change
// channel; failures are logged, never propagated, per spec.md §4.1
// publish_change being "best effort".
func (m *Mirror) PublishChange(id model.ObjectID) {
	ctx, cancel := m.ctx()
	defer cancel()

	if err := m.client.Publish(ctx, m.keys.valueChangeChannel(), objectIndexMember(id)).Err(); err != nil {
		m.log.Warn("cachemirror: publish_change failed", zap.String("object", id.String()), zap.Error(err))
	}
}

func classifyRedisErr(op string, err error) error {
	if err == nil {
		return nil
	}
	switch err {
	case redis.Nil:
		return permanentErr(op, err)
	default:
		return transientErr(op, err)
	}
}

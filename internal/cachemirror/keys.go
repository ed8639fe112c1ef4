// Package cachemirror mirrors the authoritative in-memory object registry
// into Redis so a restarted gateway can rebuild its working set without
// waiting to replay the entire event stream from the beginning, the same
// role go-redis plays for public-api-service's SDK session cache
// (sdk_handler.go): a `redis.Client` addressed with small, namespaced keys
// and ctx-scoped calls, `redis.Nil` treated as "not found" rather than an
// error.
package cachemirror

import (
	"fmt"

	"github.com/arc-self/bacnet-eventgateway/internal/model"
)

// keyBuilder renders the key layout from spec.md §6 under a configurable
// prefix (default "bacnet-gw:").
type keyBuilder struct {
	prefix string
}

func newKeyBuilder(prefix string) keyBuilder {
	if prefix == "" {
		prefix = "bacnet-gw:"
	}
	return keyBuilder{prefix: prefix}
}

func (k keyBuilder) object(id model.ObjectID) string {
	return fmt.Sprintf("%sobject:%d:%d", k.prefix, uint32(id.Type), id.Instance)
}

func (k keyBuilder) objectsIndex() string {
	return k.prefix + "objects:index"
}

func (k keyBuilder) streamPositions() string {
	return k.prefix + "stream:positions"
}

func (k keyBuilder) deviceConfig() string {
	return k.prefix + "device:config"
}

func (k keyBuilder) valueChangeChannel() string {
	return k.prefix + "events:value_change"
}

func objectIndexMember(id model.ObjectID) string {
	return fmt.Sprintf("%d:%d", uint32(id.Type), id.Instance)
}

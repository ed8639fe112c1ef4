package decoder

import (
	"encoding/json"

	"github.com/arc-self/bacnet-eventgateway/internal/model"
)

// MessageType enumerates the four envelope kinds recognized by the decoder.
type MessageType string

const (
	MessageObjectDefinition MessageType = "ObjectDefinition"
	MessageValueUpdate      MessageType = "ValueUpdate"
	MessageObjectDelete     MessageType = "ObjectDelete"
	MessageDeviceConfig     MessageType = "DeviceConfig"
)

// rawEnvelope mirrors the JSON wire shape from spec.md §4.3: required
// messageType/sourceId/payload, optional timestamp/correlationId/streamPosition.
type rawEnvelope struct {
	MessageType    string          `json:"messageType"`
	SourceID       string          `json:"sourceId"`
	Payload        json.RawMessage `json:"payload"`
	Timestamp      *string         `json:"timestamp"`
	CorrelationID  *string         `json:"correlationId"`
	StreamPosition *uint64         `json:"streamPosition"`
}

// Envelope carries the parsed common fields plus the one populated typed
// message, discriminated by Type.
type Envelope struct {
	Type           MessageType
	SourceID       string
	TimestampMS    int64 // 0 if absent
	CorrelationID  string
	StreamPosition uint64

	ObjectDefinition *ObjectDefinition
	ValueUpdate      *ValueUpdate
	ObjectDelete     *ObjectDelete
	DeviceConfig     *DeviceConfigMsg
}

// ObjectDefinition is the typed ObjectDefinition payload, spec.md §4.3.
type ObjectDefinition struct {
	ObjectType       model.ObjectType
	ObjectInstance   uint32
	ObjectName       string
	PresentValueType string
	Description      string
	Units            uint16
	UnitsText        string
	CovIncrement     *float64
	MinPresentValue  *float64
	MaxPresentValue  *float64
	StateTexts       []string
	InactiveText     string
	ActiveText       string
	PriorityArray    bool
	InitialValue     *model.Value
	ValueKind        model.ValueKind
	// StateCountHint is len(stateTexts) for multi-state objects; 0 otherwise.
	StateCountHint int
}

// ValueUpdate is the typed ValueUpdate payload, spec.md §4.3.
type ValueUpdate struct {
	ObjectType      model.ObjectType
	ObjectInstance  uint32
	PresentValue    model.Value
	Quality         string
	StatusFlags     *model.StatusFlags
	Priority        *int
	SourceTimestampMS int64
	Reliability     *uint8
	EventState      *uint8
}

// ObjectDelete is the typed ObjectDelete payload, spec.md §4.3.
type ObjectDelete struct {
	ObjectType     model.ObjectType
	ObjectInstance uint32
	Reason         string
}

// DeviceConfigMsg is the typed DeviceConfig payload, spec.md §4.3 — every
// field is optional and present fields replace the corresponding device
// attribute.
type DeviceConfigMsg struct {
	DeviceInstance             *uint32
	DeviceName                 *string
	DeviceDescription          *string
	VendorID                   *uint16
	VendorName                 *string
	ModelName                  *string
	ApplicationSoftwareVersion *string
	Location                   *string
}

// defaultUnitsNoUnits is BACnet's "no-units" enumeration value, used when
// ObjectDefinition.units is absent (spec.md §4.3).
const defaultUnitsNoUnits = 95

// Decode parses a raw event payload into an Envelope. It never returns a
// transient error — every failure is a *FieldError, permanent for this
// event (spec.md §4.3 "they never abort the subscription").
func Decode(raw []byte) (*Envelope, error) {
	var env rawEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, newFieldError(KindInvalidJSON, "", err.Error())
	}
	if env.MessageType == "" {
		return nil, newFieldError(KindMissingField, "messageType", "required")
	}
	if env.SourceID == "" {
		return nil, newFieldError(KindMissingField, "sourceId", "required")
	}
	if len(env.Payload) == 0 {
		return nil, newFieldError(KindMissingField, "payload", "required")
	}

	out := &Envelope{
		Type:     MessageType(env.MessageType),
		SourceID: env.SourceID,
	}
	if env.Timestamp != nil {
		ms, err := ParseTimestamp(*env.Timestamp)
		if err != nil {
			fe := err.(*FieldError)
			fe.Field = "timestamp"
			return nil, fe
		}
		out.TimestampMS = ms
	}
	if env.CorrelationID != nil {
		out.CorrelationID = *env.CorrelationID
	}
	if env.StreamPosition != nil {
		out.StreamPosition = *env.StreamPosition
	}

	switch out.Type {
	case MessageObjectDefinition:
		def, err := decodeObjectDefinition(env.Payload)
		if err != nil {
			return nil, err
		}
		out.ObjectDefinition = def
	case MessageValueUpdate:
		upd, err := decodeValueUpdate(env.Payload)
		if err != nil {
			return nil, err
		}
		out.ValueUpdate = upd
	case MessageObjectDelete:
		del, err := decodeObjectDelete(env.Payload)
		if err != nil {
			return nil, err
		}
		out.ObjectDelete = del
	case MessageDeviceConfig:
		cfg, err := decodeDeviceConfig(env.Payload)
		if err != nil {
			return nil, err
		}
		out.DeviceConfig = cfg
	default:
		return nil, newFieldError(KindUnknownMessageType, "messageType", env.MessageType)
	}

	return out, nil
}

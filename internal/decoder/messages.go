package decoder

import (
	"encoding/json"
	"fmt"

	"github.com/arc-self/bacnet-eventgateway/internal/model"
)

// ── ObjectDefinition ─────────────────────────────────────────────────────

type objectDefinitionWire struct {
	ObjectType       *string  `json:"objectType"`
	ObjectInstance   *uint32  `json:"objectInstance"`
	ObjectName       *string  `json:"objectName"`
	PresentValueType *string  `json:"presentValueType"`
	Description      string   `json:"description"`
	Units            *uint16  `json:"units"`
	UnitsText        string   `json:"unitsText"`
	CovIncrement     *float64 `json:"covIncrement"`
	MinPresentValue  *float64 `json:"minPresentValue"`
	MaxPresentValue  *float64 `json:"maxPresentValue"`
	StateTexts       []string `json:"stateTexts"`
	InactiveText     *string  `json:"inactiveText"`
	ActiveText       *string  `json:"activeText"`
	PriorityArray    bool     `json:"priorityArray"`
	InitialValue     json.RawMessage `json:"initialValue"`
}

func decodeObjectDefinition(raw json.RawMessage) (*ObjectDefinition, error) {
	var w objectDefinitionWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, newFieldError(KindInvalidJSON, "payload", err.Error())
	}
	if w.ObjectType == nil {
		return nil, newFieldError(KindMissingField, "payload.objectType", "required")
	}
	objType, ok := model.ParseObjectType(*w.ObjectType)
	if !ok {
		return nil, newFieldError(KindInvalidValue, "payload.objectType", fmt.Sprintf("unrecognized object type %q", *w.ObjectType))
	}
	if w.ObjectInstance == nil {
		return nil, newFieldError(KindMissingField, "payload.objectInstance", "required")
	}
	if w.ObjectName == nil || *w.ObjectName == "" {
		return nil, newFieldError(KindMissingField, "payload.objectName", "required")
	}
	if len(*w.ObjectName) > 255 {
		return nil, newFieldError(KindInvalidValue, "payload.objectName", "exceeds 255 bytes")
	}
	if len(w.Description) > 511 {
		return nil, newFieldError(KindInvalidValue, "payload.description", "exceeds 511 bytes")
	}
	if w.PresentValueType == nil {
		return nil, newFieldError(KindMissingField, "payload.presentValueType", "required")
	}

	// Value kind: derived from object type for binary/multi-state
	// regardless of presentValueType; derived from presentValueType for
	// analog/value objects (spec.md §4.3).
	var kind model.ValueKind
	if objType.IsBinary() || objType.IsMultiState() {
		kind, _ = model.ValueKindForObjectType(objType)
	} else {
		k, err := parsePresentValueType(*w.PresentValueType)
		if err != nil {
			return nil, err
		}
		kind = k
	}

	if len(w.StateTexts) > 16 {
		return nil, newFieldError(KindInvalidValue, "payload.stateTexts", "more than 16 entries")
	}

	units := uint16(defaultUnitsNoUnits)
	if w.Units != nil {
		units = *w.Units
	}
	inactiveText := "Inactive"
	if w.InactiveText != nil {
		inactiveText = *w.InactiveText
	}
	activeText := "Active"
	if w.ActiveText != nil {
		activeText = *w.ActiveText
	}

	def := &ObjectDefinition{
		ObjectType:       objType,
		ObjectInstance:   *w.ObjectInstance,
		ObjectName:       *w.ObjectName,
		PresentValueType: *w.PresentValueType,
		Description:      w.Description,
		Units:            units,
		UnitsText:        w.UnitsText,
		CovIncrement:     w.CovIncrement,
		MinPresentValue:  w.MinPresentValue,
		MaxPresentValue:  w.MaxPresentValue,
		StateTexts:       w.StateTexts,
		InactiveText:     inactiveText,
		ActiveText:       activeText,
		PriorityArray:    w.PriorityArray,
		ValueKind:        kind,
	}

	if len(w.InitialValue) > 0 {
		v, err := decodeValueForKind(kind, w.InitialValue, "payload.initialValue")
		if err != nil {
			return nil, err
		}
		def.InitialValue = &v
	}

	if objType.IsMultiState() {
		def.StateCountHint = len(w.StateTexts)
	}

	return def, nil
}

func parsePresentValueType(s string) (model.ValueKind, error) {
	switch s {
	case "real":
		return model.ValueReal, nil
	case "unsigned":
		return model.ValueUnsigned, nil
	case "signed":
		return model.ValueSigned, nil
	case "boolean":
		return model.ValueBoolean, nil
	case "enumerated":
		return model.ValueEnumerated, nil
	default:
		return 0, newFieldError(KindInvalidValue, "payload.presentValueType", fmt.Sprintf("unrecognized value kind %q", s))
	}
}

func decodeValueForKind(kind model.ValueKind, raw json.RawMessage, field string) (model.Value, error) {
	switch kind {
	case model.ValueReal:
		var f float64
		if err := json.Unmarshal(raw, &f); err != nil {
			return model.Value{}, newFieldError(KindInvalidType, field, "expected a number")
		}
		return model.NewRealValue(float32(f)), nil
	case model.ValueUnsigned:
		var u uint32
		if err := json.Unmarshal(raw, &u); err != nil {
			return model.Value{}, newFieldError(KindInvalidType, field, "expected a non-negative integer")
		}
		return model.NewUnsignedValue(u), nil
	case model.ValueSigned:
		var i int32
		if err := json.Unmarshal(raw, &i); err != nil {
			return model.Value{}, newFieldError(KindInvalidType, field, "expected an integer")
		}
		return model.NewSignedValue(i), nil
	case model.ValueBoolean:
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return model.Value{}, newFieldError(KindInvalidType, field, "expected a boolean")
		}
		return model.NewBooleanValue(b), nil
	case model.ValueEnumerated:
		var u uint32
		if err := json.Unmarshal(raw, &u); err != nil {
			return model.Value{}, newFieldError(KindInvalidType, field, "expected a non-negative integer")
		}
		return model.NewEnumeratedValue(u), nil
	default:
		return model.Value{}, newFieldError(KindInvalidValue, field, "unknown value kind")
	}
}

// ── ValueUpdate ──────────────────────────────────────────────────────────

type statusFlagsWire struct {
	InAlarm      bool `json:"in_alarm"`
	Fault        bool `json:"fault"`
	Overridden   bool `json:"overridden"`
	OutOfService bool `json:"out_of_service"`
}

type valueUpdateWire struct {
	ObjectType      *string         `json:"objectType"`
	ObjectInstance  *uint32         `json:"objectInstance"`
	PresentValue    json.RawMessage `json:"presentValue"`
	Quality         string          `json:"quality"`
	StatusFlags     *statusFlagsWire `json:"statusFlags"`
	Priority        *int            `json:"priority"`
	SourceTimestamp *string         `json:"sourceTimestamp"`
	Reliability     *uint8          `json:"reliability"`
	EventState      *uint8          `json:"eventState"`
}

func decodeValueUpdate(raw json.RawMessage) (*ValueUpdate, error) {
	var w valueUpdateWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, newFieldError(KindInvalidJSON, "payload", err.Error())
	}
	if w.ObjectType == nil {
		return nil, newFieldError(KindMissingField, "payload.objectType", "required")
	}
	objType, ok := model.ParseObjectType(*w.ObjectType)
	if !ok {
		return nil, newFieldError(KindInvalidValue, "payload.objectType", fmt.Sprintf("unrecognized object type %q", *w.ObjectType))
	}
	if w.ObjectInstance == nil {
		return nil, newFieldError(KindMissingField, "payload.objectInstance", "required")
	}
	if len(w.PresentValue) == 0 {
		return nil, newFieldError(KindMissingField, "payload.presentValue", "required")
	}

	kind, ok := model.ValueKindForObjectType(objType)
	if !ok {
		return nil, newFieldError(KindInvalidValue, "payload.objectType", "cannot derive value kind")
	}
	v, err := decodeValueForKind(kind, w.PresentValue, "payload.presentValue")
	if err != nil {
		return nil, err
	}

	if w.Priority != nil && (*w.Priority < 0 || *w.Priority > 16) {
		return nil, newFieldError(KindInvalidValue, "payload.priority", "must be 0-16")
	}

	upd := &ValueUpdate{
		ObjectType:     objType,
		ObjectInstance: *w.ObjectInstance,
		PresentValue:   v,
		Quality:        w.Quality,
		Priority:       w.Priority,
		Reliability:    w.Reliability,
		EventState:     w.EventState,
	}
	if w.StatusFlags != nil {
		upd.StatusFlags = &model.StatusFlags{
			InAlarm:      w.StatusFlags.InAlarm,
			Fault:        w.StatusFlags.Fault,
			Overridden:   w.StatusFlags.Overridden,
			OutOfService: w.StatusFlags.OutOfService,
		}
	}
	if w.SourceTimestamp != nil {
		ms, err := ParseTimestamp(*w.SourceTimestamp)
		if err != nil {
			fe := err.(*FieldError)
			fe.Field = "payload.sourceTimestamp"
			return nil, fe
		}
		upd.SourceTimestampMS = ms
	}

	return upd, nil
}

// ── ObjectDelete ─────────────────────────────────────────────────────────

type objectDeleteWire struct {
	ObjectType     *string `json:"objectType"`
	ObjectInstance *uint32 `json:"objectInstance"`
	Reason         string  `json:"reason"`
}

func decodeObjectDelete(raw json.RawMessage) (*ObjectDelete, error) {
	var w objectDeleteWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, newFieldError(KindInvalidJSON, "payload", err.Error())
	}
	if w.ObjectType == nil {
		return nil, newFieldError(KindMissingField, "payload.objectType", "required")
	}
	objType, ok := model.ParseObjectType(*w.ObjectType)
	if !ok {
		return nil, newFieldError(KindInvalidValue, "payload.objectType", fmt.Sprintf("unrecognized object type %q", *w.ObjectType))
	}
	if w.ObjectInstance == nil {
		return nil, newFieldError(KindMissingField, "payload.objectInstance", "required")
	}
	return &ObjectDelete{ObjectType: objType, ObjectInstance: *w.ObjectInstance, Reason: w.Reason}, nil
}

// ── DeviceConfig ─────────────────────────────────────────────────────────

type deviceConfigWire struct {
	DeviceInstance             *uint32 `json:"deviceInstance"`
	DeviceName                 *string `json:"deviceName"`
	DeviceDescription          *string `json:"deviceDescription"`
	VendorID                   *uint16 `json:"vendorId"`
	VendorName                 *string `json:"vendorName"`
	ModelName                  *string `json:"modelName"`
	ApplicationSoftwareVersion *string `json:"applicationSoftwareVersion"`
	Location                   *string `json:"location"`
}

func decodeDeviceConfig(raw json.RawMessage) (*DeviceConfigMsg, error) {
	var w deviceConfigWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, newFieldError(KindInvalidJSON, "payload", err.Error())
	}
	return &DeviceConfigMsg{
		DeviceInstance:             w.DeviceInstance,
		DeviceName:                 w.DeviceName,
		DeviceDescription:          w.DeviceDescription,
		VendorID:                   w.VendorID,
		VendorName:                 w.VendorName,
		ModelName:                  w.ModelName,
		ApplicationSoftwareVersion: w.ApplicationSoftwareVersion,
		Location:                   w.Location,
	}, nil
}

package cachemirror

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/arc-self/bacnet-eventgateway/internal/model"
)

// wireRecord is the canonical JSON encoding of an ObjectRecord. All optional
// fields are present with explicit defaults so that, per spec.md §4.1,
// putObject(getObject(x)) round-trips to an equal record: pointer fields
// that are nil encode as null and decode back to nil rather than being
// omitted, which would otherwise make a present-but-zero value
// indistinguishable from absent.
type wireRecord struct {
	Type               uint32        `json:"type"`
	Instance           uint32        `json:"instance"`
	Name               string        `json:"name"`
	Description        string        `json:"description"`
	ValueKind          uint8         `json:"valueKind"`
	PresentValue       wireValue     `json:"presentValue"`
	UnitsCode          uint16        `json:"unitsCode"`
	UnitsText          string        `json:"unitsText"`
	CovIncrement       *float64      `json:"covIncrement"`
	MinValue           *float64      `json:"minValue"`
	MaxValue           *float64      `json:"maxValue"`
	StateTexts         []string      `json:"stateTexts"`
	StateCount         int           `json:"stateCount"`
	InactiveText       string        `json:"inactiveText"`
	ActiveText         string        `json:"activeText"`
	StatusFlags        wireStatus    `json:"statusFlags"`
	Reliability        uint8         `json:"reliability"`
	EventState         uint8         `json:"eventState"`
	SourceID           string        `json:"sourceId"`
	LastUpdateUnixMS   int64         `json:"lastUpdateUnixMs"`
	StreamPosition     uint64        `json:"streamPosition"`
	LastNotifiedValue  wireValue     `json:"lastNotifiedValue"`
}

type wireValue struct {
	Kind     uint8   `json:"kind"`
	Real     float32 `json:"real"`
	Unsigned uint32  `json:"unsigned"`
	Signed   int32   `json:"signed"`
	Boolean  bool    `json:"boolean"`
	Enum     uint32  `json:"enum"`
}

type wireStatus struct {
	InAlarm      bool `json:"inAlarm"`
	Fault        bool `json:"fault"`
	Overridden   bool `json:"overridden"`
	OutOfService bool `json:"outOfService"`
}

func toWireValue(v model.Value) wireValue {
	return wireValue{Kind: uint8(v.Kind), Real: v.Real, Unsigned: v.Unsigned, Signed: v.Signed, Boolean: v.Boolean, Enum: v.Enum}
}

func fromWireValue(w wireValue) model.Value {
	return model.Value{Kind: model.ValueKind(w.Kind), Real: w.Real, Unsigned: w.Unsigned, Signed: w.Signed, Boolean: w.Boolean, Enum: w.Enum}
}

func marshalRecord(r *model.ObjectRecord) ([]byte, error) {
	w := wireRecord{
		Type:              uint32(r.ID.Type),
		Instance:          r.ID.Instance,
		Name:              r.Name,
		Description:       r.Description,
		ValueKind:         uint8(r.ValueKind),
		PresentValue:      toWireValue(r.PresentValue),
		UnitsCode:         r.UnitsCode,
		UnitsText:         r.UnitsText,
		CovIncrement:      r.CovIncrement,
		MinValue:          r.MinValue,
		MaxValue:          r.MaxValue,
		StateTexts:        r.StateTexts,
		StateCount:        r.StateCount,
		InactiveText:      r.InactiveText,
		ActiveText:        r.ActiveText,
		StatusFlags:       wireStatus(r.StatusFlags),
		Reliability:       r.Reliability,
		EventState:        r.EventState,
		SourceID:          r.SourceID,
		LastUpdateUnixMS:  r.LastUpdate.UnixMilli(),
		StreamPosition:    r.StreamPosition,
		LastNotifiedValue: toWireValue(r.LastNotifiedValue),
	}
	return json.Marshal(w)
}

func unmarshalRecord(data []byte) (*model.ObjectRecord, error) {
	var w wireRecord
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	return &model.ObjectRecord{
		ID:                 model.ObjectID{Type: model.ObjectType(w.Type), Instance: w.Instance},
		Name:               w.Name,
		Description:        w.Description,
		ValueKind:          model.ValueKind(w.ValueKind),
		PresentValue:       fromWireValue(w.PresentValue),
		UnitsCode:          w.UnitsCode,
		UnitsText:          w.UnitsText,
		CovIncrement:       w.CovIncrement,
		MinValue:           w.MinValue,
		MaxValue:           w.MaxValue,
		StateTexts:         w.StateTexts,
		StateCount:         w.StateCount,
		InactiveText:       w.InactiveText,
		ActiveText:         w.ActiveText,
		StatusFlags:        model.StatusFlags(w.StatusFlags),
		Reliability:        w.Reliability,
		EventState:         w.EventState,
		SourceID:           w.SourceID,
		LastUpdate:         time.UnixMilli(w.LastUpdateUnixMS).UTC(),
		StreamPosition:     w.StreamPosition,
		LastNotifiedValue:  fromWireValue(w.LastNotifiedValue),
	}, nil
}

// deviceConfigFields flattens a DeviceConfig into the string->string map
// stored in the ${prefix}device:config hash (spec.md §6 key layout: "hash
// of device fields").
func deviceConfigFields(cfg *model.DeviceConfig) map[string]string {
	return map[string]string{
		"deviceInstance":             strconv.FormatUint(uint64(cfg.DeviceInstance), 10),
		"deviceName":                 cfg.DeviceName,
		"deviceDescription":          cfg.DeviceDescription,
		"vendorId":                   strconv.FormatUint(uint64(cfg.VendorID), 10),
		"vendorName":                 cfg.VendorName,
		"modelName":                  cfg.ModelName,
		"applicationSoftwareVersion": cfg.ApplicationSoftwareVersion,
		"location":                   cfg.Location,
	}
}

func deviceConfigFromFields(fields map[string]string) *model.DeviceConfig {
	cfg := &model.DeviceConfig{
		DeviceName:                 fields["deviceName"],
		DeviceDescription:          fields["deviceDescription"],
		VendorName:                 fields["vendorName"],
		ModelName:                  fields["modelName"],
		ApplicationSoftwareVersion: fields["applicationSoftwareVersion"],
		Location:                   fields["location"],
	}
	if v, err := strconv.ParseUint(fields["deviceInstance"], 10, 32); err == nil {
		cfg.DeviceInstance = uint32(v)
	}
	if v, err := strconv.ParseUint(fields["vendorId"], 10, 16); err == nil {
		cfg.VendorID = uint16(v)
	}
	return cfg
}

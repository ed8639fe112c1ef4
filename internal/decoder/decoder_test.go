package decoder

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arc-self/bacnet-eventgateway/internal/model"
)

func TestDecode_ObjectDefinition_CreateThenUpdateScenario(t *testing.T) {
	raw := []byte(`{"messageType":"ObjectDefinition","sourceId":"s1","payload":{"objectType":"analog-input","objectInstance":1,"objectName":"T","presentValueType":"real","covIncrement":0.5,"initialValue":20.0}}`)
	env, err := Decode(raw)
	require.NoError(t, err)
	require.NotNil(t, env.ObjectDefinition)
	def := env.ObjectDefinition
	assert.Equal(t, model.ObjectAnalogInput, def.ObjectType)
	assert.Equal(t, uint32(1), def.ObjectInstance)
	assert.Equal(t, "T", def.ObjectName)
	assert.Equal(t, model.ValueReal, def.ValueKind)
	require.NotNil(t, def.CovIncrement)
	assert.Equal(t, 0.5, *def.CovIncrement)
	require.NotNil(t, def.InitialValue)
	assert.Equal(t, float32(20.0), def.InitialValue.Real)
	assert.Equal(t, uint16(95), def.Units, "default units is no-units (95)")
}

func TestDecode_ValueUpdate_Basic(t *testing.T) {
	raw := []byte(`{"messageType":"ValueUpdate","sourceId":"s1","payload":{"objectType":"analog-input","objectInstance":1,"presentValue":20.4}}`)
	env, err := Decode(raw)
	require.NoError(t, err)
	require.NotNil(t, env.ValueUpdate)
	assert.Equal(t, float32(20.4), env.ValueUpdate.PresentValue.Real)
	assert.Equal(t, model.ValueReal, env.ValueUpdate.PresentValue.Kind)
}

func TestDecode_ValueUpdate_BinaryIsBoolean(t *testing.T) {
	raw := []byte(`{"messageType":"ValueUpdate","sourceId":"s1","payload":{"objectType":"binary-input","objectInstance":2,"presentValue":true}}`)
	env, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, model.ValueBoolean, env.ValueUpdate.PresentValue.Kind)
	assert.True(t, env.ValueUpdate.PresentValue.Boolean)
}

func TestDecode_ValueUpdate_MultiStateIsUnsigned(t *testing.T) {
	raw := []byte(`{"messageType":"ValueUpdate","sourceId":"s1","payload":{"objectType":"multi-state-value","objectInstance":3,"presentValue":2}}`)
	env, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, model.ValueUnsigned, env.ValueUpdate.PresentValue.Kind)
	assert.Equal(t, uint32(2), env.ValueUpdate.PresentValue.Unsigned)
}

func TestDecode_MissingRequiredField(t *testing.T) {
	raw := []byte(`{"sourceId":"s1","payload":{}}`)
	_, err := Decode(raw)
	require.Error(t, err)
	var fe *FieldError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, KindMissingField, fe.Kind)
	assert.Equal(t, "messageType", fe.Field)
}

func TestDecode_InvalidJSON(t *testing.T) {
	_, err := Decode([]byte(`{not json`))
	require.Error(t, err)
	var fe *FieldError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, KindInvalidJSON, fe.Kind)
}

func TestDecode_UnknownMessageType(t *testing.T) {
	raw := []byte(`{"messageType":"SomethingElse","sourceId":"s1","payload":{}}`)
	_, err := Decode(raw)
	require.Error(t, err)
	var fe *FieldError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, KindUnknownMessageType, fe.Kind)
}

func TestDecode_ObjectDelete(t *testing.T) {
	raw := []byte(`{"messageType":"ObjectDelete","sourceId":"s1","payload":{"objectType":"analog-input","objectInstance":1,"reason":"decommissioned"}}`)
	env, err := Decode(raw)
	require.NoError(t, err)
	require.NotNil(t, env.ObjectDelete)
	assert.Equal(t, "decommissioned", env.ObjectDelete.Reason)
}

func TestDecode_DeviceConfig_AllFieldsOptional(t *testing.T) {
	raw := []byte(`{"messageType":"DeviceConfig","sourceId":"s1","payload":{"location":"Roof"}}`)
	env, err := Decode(raw)
	require.NoError(t, err)
	require.NotNil(t, env.DeviceConfig)
	require.NotNil(t, env.DeviceConfig.Location)
	assert.Equal(t, "Roof", *env.DeviceConfig.Location)
	assert.Nil(t, env.DeviceConfig.DeviceName)
}

func TestParseTimestamp_Forms(t *testing.T) {
	cases := []string{
		"2024-01-02T03:04:05Z",
		"2024-01-02T03:04:05.123Z",
		"2024-01-02T03:04:05.1Z",
		"2024-01-02T03:04:05+02:00",
		"2024-01-02T03:04:05-00:00",
	}
	for _, c := range cases {
		_, err := ParseTimestamp(c)
		assert.NoError(t, err, "expected %q to parse", c)
	}
}

func TestParseTimestamp_NegativeZeroOffsetIsUTC(t *testing.T) {
	ms1, err := ParseTimestamp("2024-01-02T03:04:05-00:00")
	require.NoError(t, err)
	ms2, err := ParseTimestamp("2024-01-02T03:04:05Z")
	require.NoError(t, err)
	assert.Equal(t, ms2, ms1)
}

func TestParseTimestamp_Rejected(t *testing.T) {
	_, err := ParseTimestamp("not-a-timestamp")
	require.Error(t, err)
}

func TestDecode_MultiStateTooManyStateTexts(t *testing.T) {
	texts := `["a","b","c","d","e","f","g","h","i","j","k","l","m","n","o","p","q"]`
	raw := []byte(`{"messageType":"ObjectDefinition","sourceId":"s1","payload":{"objectType":"multi-state-value","objectInstance":1,"objectName":"M","presentValueType":"unsigned","stateTexts":` + texts + `}}`)
	_, err := Decode(raw)
	require.Error(t, err)
	var fe *FieldError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, KindInvalidValue, fe.Kind)
}

func TestDecode_ValueUpdate_PriorityOutOfRange(t *testing.T) {
	raw := []byte(`{"messageType":"ValueUpdate","sourceId":"s1","payload":{"objectType":"analog-value","objectInstance":1,"presentValue":1.0,"priority":99}}`)
	_, err := Decode(raw)
	require.Error(t, err)
}

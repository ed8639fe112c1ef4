package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_ParsesTestdataConfig(t *testing.T) {
	cfg, err := Load([]string{"--config", "testdata/config.yaml"})
	require.NoError(t, err)

	assert.Equal(t, uint32(1001), cfg.Server.DeviceInstance)
	assert.Equal(t, uint32(120), cfg.Server.CovLifetimeSeconds)
	assert.Equal(t, 50, cfg.Server.MaxCovSubscriptions)
	assert.Equal(t, 47808, cfg.LegacyTransport.Port)
	assert.Equal(t, "bacnet-gw:", cfg.Cache.KeyPrefix)
	require.Len(t, cfg.Devices, 1)
	assert.Equal(t, "sub-1", cfg.Devices[0].SubscriptionID)
	assert.Equal(t, -1, cfg.EventStore.MaxReconnectAttempts)
}

func TestResolveField_PassesThroughNonVaultValues(t *testing.T) {
	got, err := resolveField(nil, "plain-value")
	require.NoError(t, err)
	assert.Equal(t, "plain-value", got)
}

func TestResolveField_RejectsMalformedReference(t *testing.T) {
	_, err := resolveField(nil, "${vault:secret/data/gw}")
	assert.Error(t, err)
}

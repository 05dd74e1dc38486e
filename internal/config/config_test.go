package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_ENV", "missing")
	cfg, err := LoadFrom(New())
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 54*time.Second, cfg.Server.PingPeriod)
	assert.Equal(t, "json", cfg.Client.Codec)
	assert.Equal(t, time.Second, cfg.Client.HandshakeTimeout)
	assert.Equal(t, 3, cfg.Client.DeviceAttempts)
	assert.InDelta(t, 10.0, cfg.Client.Spatial.MaxDistance, 1e-9)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("CONFIG_ENV", "missing")
	t.Setenv("CALLA_CLIENT_CODEC", "msgpack")
	t.Setenv("CALLA_SERVER_PORT", "9090")

	cfg, err := LoadFrom(New())
	require.NoError(t, err)
	assert.Equal(t, "msgpack", cfg.Client.Codec)
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestRejectsUnknownCodec(t *testing.T) {
	t.Setenv("CONFIG_ENV", "missing")
	v := New()
	v.Set("client.codec", "xml")

	_, err := LoadFrom(v)
	assert.Error(t, err)
}

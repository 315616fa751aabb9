package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigPassesValidation(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, 100*time.Millisecond, cfg.Runtime.TickInterval)
}

func TestNewConfigEnvOverridesDefaultAndOptionOverridesEnv(t *testing.T) {
	t.Setenv("GOVERNOR_TICK_INTERVAL", "250ms")
	t.Setenv("GOVERNOR_SIM_BASE_URL", "http://sim.internal:9000")

	cfg, err := NewConfig(WithTickInterval(500 * time.Millisecond))
	require.NoError(t, err)

	assert.Equal(t, 500*time.Millisecond, cfg.Runtime.TickInterval, "option must win over env")
	assert.Equal(t, "http://sim.internal:9000", cfg.Simulator.BaseURL, "env must win over default")
}

func TestNewConfigRejectsInvalidEnvDuration(t *testing.T) {
	t.Setenv("GOVERNOR_TICK_INTERVAL", "not-a-duration")

	_, err := NewConfig()
	require.Error(t, err)
}

func TestNewConfigDefaultsToNoOpLogger(t *testing.T) {
	cfg, err := NewConfig()
	require.NoError(t, err)
	assert.NotNil(t, cfg.Logger())
}

func TestValidateRejectsRedisBackendWithoutURL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Store.Backend = "redis"
	cfg.Store.RedisURL = ""

	err := cfg.Validate()
	assert.ErrorIs(t, err, ErrValidationError)
}

func TestValidateRejectsInvertedSpeedBounds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Policy.MinSpeed = 0.8
	cfg.Policy.MaxSpeed = 0.2

	err := cfg.Validate()
	assert.ErrorIs(t, err, ErrValidationError)
}

func TestWithStoreBackendOptionSetsRedisURL(t *testing.T) {
	cfg, err := NewConfig(WithStoreBackend("redis", "redis://localhost:6379/0"))
	require.NoError(t, err)
	assert.Equal(t, "redis", cfg.Store.Backend)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Store.RedisURL)
}

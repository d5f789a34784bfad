package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcess(t *testing.T) {
	// Default config
	config, err := Process([]string{})
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, config.Hold.Max)
	assert.Equal(t, 0.7, config.Catch.FailedDamageMultiplier)
	assert.Equal(t, 2, config.Throw.Ultimate.ExtraBalls)
	assert.Equal(t, 1.5, config.Lifecycle.Spawn.Y())

	value, ok := config.Stats.Stat("brute", "throwDamage")
	require.True(t, ok)
	assert.Equal(t, 28.0, value)

	dir := t.TempDir()

	// yaml config
	{
		yaml := filepath.Join(dir, "config.yaml")
		err = os.WriteFile(yaml, []byte(`
hold:
  penaltyDamage: 15
`), 0644)
		require.NoError(t, err)
		config, err = Process([]string{yaml})
		require.NoError(t, err)
		assert.Equal(t, 15, config.Hold.PenaltyDamage)
		// Untouched values keep their defaults.
		assert.Equal(t, 3*time.Second, config.Hold.Warning)
	}

	// json config
	{
		json := filepath.Join(dir, "config.json")
		err = os.WriteFile(json, []byte(`{
  "relay": {
    "room": "court",
    "rate": 10
  }
}`), 0644)
		require.NoError(t, err)
		config, err = Process([]string{json})
		require.NoError(t, err)
		assert.Equal(t, "court", config.Relay.Room)
		assert.Equal(t, 10.0, config.Relay.Rate)
		assert.Equal(t, 240, config.Relay.Burst)
	}

	// multiple yaml
	{
		yaml1 := filepath.Join(dir, "config1.yaml")
		err = os.WriteFile(yaml1, []byte(`
lifecycle:
  discoveryTimeout: 10s
catch:
  window: 0s
`), 0644)
		require.NoError(t, err)

		yaml2 := filepath.Join(dir, "config2.yaml")
		err = os.WriteFile(yaml2, []byte(`
lifecycle:
  discoveryTimeout: 1s
`), 0644)
		require.NoError(t, err)
		config, err = Process([]string{yaml1, yaml2})
		require.NoError(t, err)
		assert.Equal(t, time.Second, config.Lifecycle.DiscoveryTimeout)
		assert.Equal(t, time.Duration(0), config.Catch.Window)
	}

	// Invalid config
	{
		bad := filepath.Join(dir, "bad.yaml")
		err = os.WriteFile(bad, []byte(`
hold:
  danger: 10s
`), 0644)
		require.NoError(t, err)
		_, err = Process([]string{bad})
		assert.ErrorIs(t, err, ErrInvalid)

		unknown := filepath.Join(dir, "unknown.yaml")
		err = os.WriteFile(unknown, []byte("holdd:\n  max: 1s\n"), 0644)
		require.NoError(t, err)
		_, err = Process([]string{unknown})
		assert.Error(t, err)

		_, err = Process([]string{filepath.Join(dir, "missing.yaml")})
		assert.Error(t, err)

		toml := filepath.Join(dir, "config.toml")
		require.NoError(t, os.WriteFile(toml, []byte("x = 1"), 0644))
		_, err = Process([]string{toml})
		assert.Error(t, err)
	}
}

func TestDump(t *testing.T) {
	config, err := Process([]string{})
	require.NoError(t, err)

	data, err := Dump(config)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "dump.yaml")
	require.NoError(t, os.WriteFile(path, data, 0644))

	again, err := Process([]string{path})
	require.NoError(t, err)
	assert.Equal(t, config, again)
}

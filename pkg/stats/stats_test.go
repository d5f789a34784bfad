package stats

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const table = `
default:
  throwDamage: 20
  accuracy: 0.9
characters:
  brute:
    throwDamage: 30
    damageResistance: 0.8
  sprinter:
    throwSpeed: 1.2
`

func TestStat(t *testing.T) {
	stats, err := Parse([]byte(table))
	require.NoError(t, err)

	value, ok := stats.Stat("brute", "throwDamage")
	require.True(t, ok)
	assert.Equal(t, 30.0, value)

	// Inherited from the default.
	value, ok = stats.Stat("brute", "accuracy")
	require.True(t, ok)
	assert.Equal(t, 0.9, value)

	value, ok = stats.Stat("nobody", "throwDamage")
	require.True(t, ok)
	assert.Equal(t, 20.0, value)

	_, ok = stats.Stat("sprinter", "colliderScale")
	assert.False(t, ok)

	var missing *Table
	_, ok = missing.Stat("brute", "throwDamage")
	assert.False(t, ok)

	assert.Equal(t, []string{"brute", "sprinter"}, stats.Names())
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.yaml")
	require.NoError(t, os.WriteFile(path, []byte(table), 0644))

	stats, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, stats.Characters, 2)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Parse([]byte("default:\n  accuracy: -1\n"))
	assert.Error(t, err)
}

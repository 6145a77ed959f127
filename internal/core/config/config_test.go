package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/worldcore/internal/core/observability/log"
)

func TestDefaultIsValid(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
	assert.Equal(t, log.LevelInfo, c.LogLevel())
}

func TestLoadOverridesDefaults(t *testing.T) {
	c, err := Load(strings.NewReader(`
log:
  level: debug
world:
  name: arena
  pool_capacity: 64
scheduler:
  workers: 3
  step: 20ms
snapshot:
  strict: true
metrics:
  listen: ":9102"
`))
	require.NoError(t, err)

	assert.Equal(t, log.LevelDebug, c.LogLevel())
	assert.Equal(t, "arena", c.World.Name)
	assert.Equal(t, 64, c.World.PoolCapacity)
	assert.Equal(t, 1024, c.World.EntityCapacity)
	assert.Equal(t, 3, c.Scheduler.Workers)
	assert.Equal(t, 256, c.Scheduler.Granularity)
	assert.Equal(t, 20*time.Millisecond, c.Scheduler.Step)
	assert.True(t, c.Snapshot.Strict)
	assert.Equal(t, ":9102", c.Metrics.Listen)
}

func TestLoadEmpty(t *testing.T) {
	c, err := Load(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
}

func TestLoadRejects(t *testing.T) {
	for name, doc := range map[string]string{
		"unknown key":      "world:\n  colour: red\n",
		"bad level":        "log:\n  level: loud\n",
		"zero granularity": "scheduler:\n  granularity: 0\n",
		"negative workers": "scheduler:\n  workers: -1\n",
		"bad step":         "scheduler:\n  step: soon\n",
		"negative pool":    "world:\n  pool_capacity: -4\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Load(strings.NewReader(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "worldtool.yaml")
	require.NoError(t, os.WriteFile(path, []byte("world:\n  name: file\n"), 0o600))

	c, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "file", c.World.Name)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

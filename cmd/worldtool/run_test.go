package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/worldcore/internal/core/components"
	"github.com/zeusync/worldcore/internal/core/config"
	"github.com/zeusync/worldcore/internal/core/models"
	"github.com/zeusync/worldcore/internal/core/snapshot"
	"github.com/zeusync/worldcore/internal/core/world"
	"github.com/zeusync/worldcore/internal/injector"
	"github.com/zeusync/worldcore/pkg/encoding"
)

type marker struct{}

type markerCodec struct{}

func (markerCodec) Encode(models.EncodeContext, *encoding.Writer, *marker) error { return nil }

func (markerCodec) Decode(world.DecodeContext[marker], *encoding.Reader, uint32, *marker) error {
	return nil
}

func writeConfig(t *testing.T, doc string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "worldtool.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: silent\n"+doc), 0o600))
	return path
}

func newRuntime(t *testing.T) *injector.Runtime {
	t.Helper()
	cfg := config.Default()
	cfg.Log.Level = "silent"
	rt, err := injector.InitializeRuntime(cfg)
	require.NoError(t, err)
	return rt
}

// writeScene saves a world with one moving entity and returns the path.
func writeScene(t *testing.T, withMarker bool) string {
	t.Helper()
	ctx := context.Background()
	rt := newRuntime(t)
	w := rt.World

	mover, err := w.CreateEntity(ctx, models.EntityDesc{Name: "mover", GlobalKey: "mover", Local: models.Identity()}, models.EntityHandle{})
	require.NoError(t, err)
	v, err := w.CreateComponent(ctx, rt.Components.Velocity, mover)
	require.NoError(t, err)
	require.NoError(t, w.SetActive(ctx, v, true))
	require.NoError(t, world.Mutate(ctx, w, v, func(v *components.Velocity) { v.Linear = models.Vec3{X: 10} }))

	if withMarker {
		id, err := world.RegisterComponent[marker](rt.Types, "test.marker", 1, markerCodec{})
		require.NoError(t, err)
		_, err = w.CreateComponent(ctx, id, mover)
		require.NoError(t, err)
	}

	var buf bytes.Buffer
	require.NoError(t, snapshot.Write(ctx, &buf, w, w.Roots(ctx)))
	path := filepath.Join(t.TempDir(), "scene.world")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
	return path
}

func TestRunStepsAndSaves(t *testing.T) {
	in := writeScene(t, false)
	out := filepath.Join(t.TempDir(), "after.world")
	cfgPath := writeConfig(t, "scheduler:\n  step: 100ms\n")

	require.NoError(t, run(context.Background(), options{configPath: cfgPath, in: in, out: out, steps: 3}))

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()

	ctx := context.Background()
	rt := newRuntime(t)
	d, err := snapshot.ReadWorldDescription(ctx, f, snapshot.Options{Types: rt.Types, Tags: rt.Tags, Source: out})
	require.NoError(t, err)
	_, _, err = d.Instantiate(ctx, rt.World, models.EntityHandle{})
	require.NoError(t, err)

	mover, ok := rt.World.FindByGlobalKey(ctx, "mover")
	require.True(t, ok)
	e, _ := rt.World.Entity(ctx, mover)
	assert.InDelta(t, 3, e.Local.Position.X, 1e-5)
}

func TestRunStrictRejectsUnknownTypes(t *testing.T) {
	in := writeScene(t, true)

	err := run(context.Background(), options{configPath: writeConfig(t, "snapshot:\n  strict: true\n"), in: in})
	assert.ErrorIs(t, err, snapshot.ErrUnknownComponentType)

	assert.NoError(t, run(context.Background(), options{configPath: writeConfig(t, ""), in: in, steps: 1}))
}

func TestRunRejectsBadOptions(t *testing.T) {
	ctx := context.Background()
	assert.Error(t, run(ctx, options{steps: -1}))
	assert.Error(t, run(ctx, options{profile: "gpu"}))
	assert.Error(t, run(ctx, options{configPath: filepath.Join(t.TempDir(), "missing.yaml")}))
	assert.ErrorIs(t, run(ctx, options{configPath: writeConfig(t, ""), in: filepath.Join(t.TempDir(), "missing.world")}), os.ErrNotExist)
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := run(ctx, options{configPath: writeConfig(t, ""), in: writeScene(t, false), steps: 5})
	assert.ErrorIs(t, err, context.Canceled)
}

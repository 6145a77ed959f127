package world

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/worldcore/internal/core/events/bus"
	"github.com/zeusync/worldcore/internal/core/models"
	"github.com/zeusync/worldcore/pkg/encoding"
)

type position struct{ X, Y float32 }

type positionCodec struct{}

func (positionCodec) Encode(_ models.EncodeContext, w *encoding.Writer, v *position) error {
	w.F32(v.X)
	w.F32(v.Y)
	return nil
}

func (positionCodec) Decode(_ DecodeContext[position], r *encoding.Reader, _ uint32, v *position) (err error) {
	if v.X, err = r.F32(); err != nil {
		return err
	}
	v.Y, err = r.F32()
	return err
}

type label struct{ Text string }

type labelCodec struct{}

func (labelCodec) Encode(_ models.EncodeContext, w *encoding.Writer, v *label) error {
	w.Text(v.Text)
	return nil
}

func (labelCodec) Decode(_ DecodeContext[label], r *encoding.Reader, _ uint32, v *label) (err error) {
	v.Text, err = r.Text()
	return err
}

var destroyAll = DestroyPolicy{Children: DestroyChildren, Components: DestroyComponents}

func newTestWorld(t *testing.T, opts ...Option) (*World, models.TypeID, models.TypeID) {
	t.Helper()
	types := NewTypeRegistry()
	posID, err := RegisterComponent[position](types, "position", 1, positionCodec{})
	require.NoError(t, err)
	labelID, err := RegisterComponent[label](types, "label", 1, labelCodec{})
	require.NoError(t, err)
	return New(types, NewTagRegistry(), opts...), posID, labelID
}

func TestTypeRegistry(t *testing.T) {
	types := NewTypeRegistry()
	id, err := RegisterComponent[position](types, "position", 2, positionCodec{})
	require.NoError(t, err)
	assert.Equal(t, TypeIDOf("position"), id)
	assert.NotZero(t, id)

	_, err = RegisterComponent[position](types, "position", 2, positionCodec{})
	assert.ErrorIs(t, err, ErrTypeExists)
	_, err = RegisterComponent[position](types, "", 1, positionCodec{})
	assert.Error(t, err)

	ct, ok := types.Lookup("position")
	require.True(t, ok)
	assert.Equal(t, uint32(2), ct.Version)
	byID, ok := types.ByID(id)
	require.True(t, ok)
	assert.Same(t, ct, byID)

	_, ok = types.Lookup("missing")
	assert.False(t, ok)

	_, err = RegisterComponent[label](types, "alpha", 1, labelCodec{})
	require.NoError(t, err)
	names := make([]string, 0)
	for _, ct := range types.Types() {
		names = append(names, ct.Name)
	}
	assert.Equal(t, []string{"alpha", "position"}, names)
}

func TestTagRegistryDedupes(t *testing.T) {
	tags := NewTagRegistry()
	a := tags.Intern("enemy")
	b := tags.Intern("boss")
	assert.Equal(t, a, tags.Intern("enemy"))
	assert.NotEqual(t, a, b)
	assert.Equal(t, 2, tags.Len())

	name, ok := tags.Name(b)
	require.True(t, ok)
	assert.Equal(t, "boss", name)
	_, ok = tags.Name(0)
	assert.False(t, ok)

	id, ok := tags.Lookup("boss")
	require.True(t, ok)
	assert.Equal(t, b, id)
}

func TestEntityHierarchy(t *testing.T) {
	ctx := context.Background()
	w, _, _ := newTestWorld(t)

	root, err := w.CreateEntity(ctx, models.EntityDesc{Name: "root"}, models.EntityHandle{})
	require.NoError(t, err)
	a, err := w.CreateEntity(ctx, models.EntityDesc{Name: "a"}, root)
	require.NoError(t, err)
	b, err := w.CreateEntity(ctx, models.EntityDesc{Name: "b"}, root)
	require.NoError(t, err)
	leaf, err := w.CreateEntity(ctx, models.EntityDesc{Name: "leaf"}, a)
	require.NoError(t, err)

	assert.Equal(t, []models.EntityHandle{root}, w.Roots(ctx))
	assert.Equal(t, []models.EntityHandle{a, b}, w.Children(ctx, root))

	e, ok := w.Entity(ctx, leaf)
	require.True(t, ok)
	assert.Equal(t, a, e.Parent)

	assert.ErrorIs(t, w.SetParent(ctx, root, leaf), ErrParentCycle)
	assert.ErrorIs(t, w.SetParent(ctx, a, a), ErrParentCycle)

	require.NoError(t, w.SetParent(ctx, leaf, b))
	assert.Empty(t, w.Children(ctx, a))
	assert.Equal(t, []models.EntityHandle{leaf}, w.Children(ctx, b))

	require.NoError(t, w.SetParent(ctx, b, models.EntityHandle{}))
	assert.Equal(t, []models.EntityHandle{root, b}, w.Roots(ctx))

	_, err = w.CreateEntity(ctx, models.EntityDesc{}, models.EntityHandle{Index: 40, Generation: 1})
	assert.ErrorIs(t, err, ErrStaleHandle)
}

func TestWorldTransformComposes(t *testing.T) {
	ctx := context.Background()
	w, _, _ := newTestWorld(t)

	local := models.Identity()
	local.Position = models.Vec3{X: 1}
	root, _ := w.CreateEntity(ctx, models.EntityDesc{Local: local}, models.EntityHandle{})
	child, _ := w.CreateEntity(ctx, models.EntityDesc{Local: local}, root)

	tr, ok := w.WorldTransform(ctx, child)
	require.True(t, ok)
	assert.InDelta(t, 2, tr.Position.X, 1e-6)
}

func TestDestroyPolicyRequired(t *testing.T) {
	ctx := context.Background()
	w, _, _ := newTestWorld(t)
	h, _ := w.CreateEntity(ctx, models.EntityDesc{}, models.EntityHandle{})

	_, err := w.DestroyEntity(ctx, h, DestroyPolicy{})
	assert.ErrorIs(t, err, ErrInvalidPolicy)
	_, err = w.DestroyEntity(ctx, h, DestroyPolicy{Children: DestroyChildren})
	assert.ErrorIs(t, err, ErrInvalidPolicy)
	assert.True(t, w.ContainsEntity(ctx, h))
}

func TestDestroyReparentsAndDetaches(t *testing.T) {
	ctx := context.Background()
	w, posID, _ := newTestWorld(t)

	top, _ := w.CreateEntity(ctx, models.EntityDesc{Name: "top"}, models.EntityHandle{})
	mid, _ := w.CreateEntity(ctx, models.EntityDesc{Name: "mid"}, top)
	c1, _ := w.CreateEntity(ctx, models.EntityDesc{Name: "c1"}, mid)
	c2, _ := w.CreateEntity(ctx, models.EntityDesc{Name: "c2"}, mid)
	comp, err := w.CreateComponent(ctx, posID, mid)
	require.NoError(t, err)

	ok, err := w.DestroyEntity(ctx, mid, DestroyPolicy{Children: ReparentChildren, Components: DetachComponents})
	require.NoError(t, err)
	require.True(t, ok)

	assert.False(t, w.ContainsEntity(ctx, mid))
	assert.Equal(t, []models.EntityHandle{c1, c2}, w.Children(ctx, top))
	e, _ := w.Entity(ctx, c1)
	assert.Equal(t, top, e.Parent)

	require.True(t, w.ContainsComponent(ctx, comp))
	owner, ok := w.ComponentOwner(ctx, comp)
	require.True(t, ok)
	assert.True(t, owner.IsZero())

	ok, err = w.DestroyEntity(ctx, mid, destroyAll)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDestroyRecursive(t *testing.T) {
	ctx := context.Background()
	w, posID, labelID := newTestWorld(t)

	root, _ := w.CreateEntity(ctx, models.EntityDesc{}, models.EntityHandle{})
	child, _ := w.CreateEntity(ctx, models.EntityDesc{}, root)
	grandchild, _ := w.CreateEntity(ctx, models.EntityDesc{}, child)
	other, _ := w.CreateEntity(ctx, models.EntityDesc{}, models.EntityHandle{})
	c1, _ := w.CreateComponent(ctx, posID, child)
	c2, _ := w.CreateComponent(ctx, labelID, grandchild)

	ok, err := w.DestroyEntity(ctx, root, destroyAll)
	require.NoError(t, err)
	require.True(t, ok)

	for _, h := range []models.EntityHandle{root, child, grandchild} {
		assert.False(t, w.ContainsEntity(ctx, h))
	}
	assert.False(t, w.ContainsComponent(ctx, c1))
	assert.False(t, w.ContainsComponent(ctx, c2))
	assert.Equal(t, []models.EntityHandle{other}, w.Roots(ctx))
	assert.Equal(t, 1, w.EntityCount(ctx))
}

func TestComponentLifecycle(t *testing.T) {
	ctx := context.Background()
	w, posID, _ := newTestWorld(t)

	a, _ := w.CreateEntity(ctx, models.EntityDesc{Name: "a"}, models.EntityHandle{})
	b, _ := w.CreateEntity(ctx, models.EntityDesc{Name: "b"}, models.EntityHandle{})

	h, err := w.CreateComponent(ctx, posID, a)
	require.NoError(t, err)
	assert.Equal(t, posID, h.Type)
	assert.False(t, w.IsActive(ctx, h))
	assert.Equal(t, []models.ComponentHandle{h}, w.Components(ctx, a))

	v, ok := Get[position](ctx, w, h)
	require.True(t, ok)
	assert.Equal(t, position{}, v)

	require.NoError(t, Mutate(ctx, w, h, func(p *position) { p.X = 3 }))
	v, _ = Get[position](ctx, w, h)
	assert.Equal(t, float32(3), v.X)
	_, ok = Get[label](ctx, w, h)
	assert.False(t, ok)
	assert.ErrorIs(t, Mutate(ctx, w, h, func(*label) {}), ErrTypeMismatch)

	require.NoError(t, w.SetActive(ctx, h, true))
	assert.True(t, w.IsActive(ctx, h))
	require.NoError(t, w.SetComponentFlags(ctx, h, 0x5))
	flags, _ := w.ComponentFlags(ctx, h)
	assert.Equal(t, uint32(0x5), flags)

	require.NoError(t, w.Attach(ctx, h, b))
	assert.Empty(t, w.Components(ctx, a))
	assert.Equal(t, []models.ComponentHandle{h}, w.Components(ctx, b))

	require.NoError(t, w.Detach(ctx, h))
	require.NoError(t, w.Detach(ctx, h))
	assert.Empty(t, w.Components(ctx, b))
	assert.True(t, w.ContainsComponent(ctx, h))

	assert.True(t, w.DestroyComponent(ctx, h))
	assert.False(t, w.DestroyComponent(ctx, h))
	assert.ErrorIs(t, w.Detach(ctx, h), ErrStaleHandle)
	assert.ErrorIs(t, w.Attach(ctx, h, a), ErrStaleHandle)
	assert.ErrorIs(t, w.SetActive(ctx, h, true), ErrStaleHandle)
	_, ok = Get[position](ctx, w, h)
	assert.False(t, ok)
}

func TestCreateComponentErrors(t *testing.T) {
	ctx := context.Background()
	w, posID, _ := newTestWorld(t)

	_, err := w.CreateComponent(ctx, models.TypeID(12345), models.EntityHandle{})
	assert.ErrorIs(t, err, ErrUnknownType)

	_, err = w.CreateComponent(ctx, posID, models.EntityHandle{Index: 3, Generation: 1})
	assert.ErrorIs(t, err, ErrStaleHandle)

	detached, err := w.CreateComponent(ctx, posID, models.EntityHandle{})
	require.NoError(t, err)
	owner, ok := w.ComponentOwner(ctx, detached)
	require.True(t, ok)
	assert.True(t, owner.IsZero())

	_, err = PoolFor[label](w, posID)
	assert.ErrorIs(t, err, ErrTypeMismatch)
	pool, err := PoolFor[position](w, posID)
	require.NoError(t, err)
	assert.Equal(t, 1, pool.Len())
}

func TestFindHelpers(t *testing.T) {
	ctx := context.Background()
	w, _, _ := newTestWorld(t)
	enemy := w.Tags().Intern("enemy")

	a, _ := w.CreateEntity(ctx, models.EntityDesc{GlobalKey: "spawn", Tags: []models.TagID{enemy, enemy}}, models.EntityHandle{})
	b, _ := w.CreateEntity(ctx, models.EntityDesc{Tags: []models.TagID{enemy}}, models.EntityHandle{})
	_, _ = w.CreateEntity(ctx, models.EntityDesc{}, models.EntityHandle{})

	got, ok := w.FindByGlobalKey(ctx, "spawn")
	require.True(t, ok)
	assert.Equal(t, a, got)
	_, ok = w.FindByGlobalKey(ctx, "")
	assert.False(t, ok)

	assert.Equal(t, []models.EntityHandle{a, b}, w.FindByTag(ctx, enemy))

	e, _ := w.Entity(ctx, a)
	assert.Len(t, e.Tags, 1)

	require.NoError(t, w.UpdateEntity(ctx, b, func(d *models.EntityDesc) {
		d.GlobalKey = "boss"
		d.Tags = nil
	}))
	got, ok = w.FindByGlobalKey(ctx, "boss")
	require.True(t, ok)
	assert.Equal(t, b, got)
	assert.Equal(t, []models.EntityHandle{a}, w.FindByTag(ctx, enemy))
}

func TestGlobalKeysAreUnique(t *testing.T) {
	ctx := context.Background()
	w, _, _ := newTestWorld(t)

	spawn, err := w.CreateEntity(ctx, models.EntityDesc{GlobalKey: "spawn"}, models.EntityHandle{})
	require.NoError(t, err)
	_, err = w.CreateEntity(ctx, models.EntityDesc{GlobalKey: "spawn"}, models.EntityHandle{})
	assert.ErrorIs(t, err, ErrGlobalKeyInUse)
	assert.Equal(t, 1, w.EntityCount(ctx))

	other, err := w.CreateEntity(ctx, models.EntityDesc{Name: "other"}, models.EntityHandle{})
	require.NoError(t, err)
	err = w.UpdateEntity(ctx, other, func(d *models.EntityDesc) {
		d.Name = "renamed"
		d.GlobalKey = "spawn"
	})
	assert.ErrorIs(t, err, ErrGlobalKeyInUse)
	e, _ := w.Entity(ctx, other)
	assert.Equal(t, "other", e.Name)
	assert.Empty(t, e.GlobalKey)

	// keeping its own key is not a conflict
	require.NoError(t, w.UpdateEntity(ctx, spawn, func(d *models.EntityDesc) { d.Name = "spawn point" }))
	got, ok := w.FindByGlobalKey(ctx, "spawn")
	require.True(t, ok)
	assert.Equal(t, spawn, got)

	require.NoError(t, w.UpdateEntity(ctx, spawn, func(d *models.EntityDesc) { d.GlobalKey = "start" }))
	_, ok = w.FindByGlobalKey(ctx, "spawn")
	assert.False(t, ok)
	require.NoError(t, w.UpdateEntity(ctx, other, func(d *models.EntityDesc) { d.GlobalKey = "spawn" }))
	got, ok = w.FindByGlobalKey(ctx, "spawn")
	require.True(t, ok)
	assert.Equal(t, other, got)
}

func TestGlobalKeyFreedOnDestroy(t *testing.T) {
	ctx := context.Background()
	w, _, _ := newTestWorld(t)
	policy := DestroyPolicy{Children: DestroyChildren, Components: DestroyComponents}

	root, err := w.CreateEntity(ctx, models.EntityDesc{GlobalKey: "gate"}, models.EntityHandle{})
	require.NoError(t, err)
	_, err = w.CreateEntity(ctx, models.EntityDesc{GlobalKey: "lever"}, root)
	require.NoError(t, err)

	removed, err := w.DestroyEntity(ctx, root, policy)
	require.NoError(t, err)
	require.True(t, removed)
	for _, key := range []string{"gate", "lever"} {
		_, ok := w.FindByGlobalKey(ctx, key)
		assert.False(t, ok, key)
	}

	again, err := w.CreateEntity(ctx, models.EntityDesc{GlobalKey: "lever"}, models.EntityHandle{})
	require.NoError(t, err)
	got, ok := w.FindByGlobalKey(ctx, "lever")
	require.True(t, ok)
	assert.Equal(t, again, got)
}

func TestEventsPublishedAfterRelease(t *testing.T) {
	ctx := context.Background()
	events := bus.New()
	w, posID, _ := newTestWorld(t, WithEventBus(events))

	var seen []string
	for _, typ := range []string{EventEntityCreated, EventComponentCreated, EventEntityDestroyed, EventComponentDestroyed} {
		_, err := events.Subscribe(typ, func(e bus.Event) error {
			// the gate is free while handlers run
			_ = w.EntityCount(ctx)
			seen = append(seen, e.Type())
			return nil
		})
		require.NoError(t, err)
	}

	err := w.Write(ctx, func(ctx context.Context) error {
		h, err := w.CreateEntity(ctx, models.EntityDesc{}, models.EntityHandle{})
		if err != nil {
			return err
		}
		_, err = w.CreateComponent(ctx, posID, h)
		assert.Empty(t, seen)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, []string{EventEntityCreated, EventComponentCreated}, seen)

	root := w.Roots(ctx)[0]
	_, err = w.DestroyEntity(ctx, root, destroyAll)
	require.NoError(t, err)
	assert.Equal(t, []string{EventEntityCreated, EventComponentCreated, EventComponentDestroyed, EventEntityDestroyed}, seen)
}

func TestPoolRangeChunks(t *testing.T) {
	ctx := context.Background()
	w, posID, _ := newTestWorld(t, WithPoolCapacity(16))
	owner, _ := w.CreateEntity(ctx, models.EntityDesc{}, models.EntityHandle{})
	for range 10 {
		_, err := w.CreateComponent(ctx, posID, owner)
		require.NoError(t, err)
	}
	pool, err := PoolFor[position](w, posID)
	require.NoError(t, err)
	assert.Equal(t, 16, pool.Cap())

	total := 0
	for lo := 0; lo < pool.Cap(); lo += 4 {
		for h, inst := range pool.Range(lo, lo+4) {
			assert.Equal(t, owner, inst.Owner)
			assert.True(t, pool.Contains(h))
			total++
		}
	}
	assert.Equal(t, 10, total)
}

package models

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/zeusync/worldcore/pkg/slotmap"
)

const eps = 1e-5

func assertVec(t *testing.T, want, got Vec3) {
	t.Helper()
	assert.InDelta(t, want.X, got.X, eps)
	assert.InDelta(t, want.Y, got.Y, eps)
	assert.InDelta(t, want.Z, got.Z, eps)
}

func TestRotate(t *testing.T) {
	q := AxisAngle(Vec3{Z: 1}, math.Pi/2)
	assertVec(t, Vec3{Y: 1}, q.Rotate(Vec3{X: 1}))
	assertVec(t, Vec3{X: 1}, IdentityQuat().Rotate(Vec3{X: 1}))
}

func TestQuatMulOrder(t *testing.T) {
	rz := AxisAngle(Vec3{Z: 1}, math.Pi/2)
	rx := AxisAngle(Vec3{X: 1}, math.Pi/2)
	v := Vec3{X: 1}
	assertVec(t, rx.Rotate(rz.Rotate(v)), rx.Mul(rz).Rotate(v))
}

func TestTransformCompose(t *testing.T) {
	parent := Identity()
	parent.Position = Vec3{X: 10}
	parent.Rotation = AxisAngle(Vec3{Z: 1}, math.Pi/2)
	parent.UniformScale = 2

	child := Identity()
	child.Position = Vec3{X: 1}

	world := parent.Mul(child)
	assertVec(t, Vec3{X: 10, Y: 2}, world.Position)
	assert.InDelta(t, 2, world.UniformScale, eps)
	assertVec(t, parent.Apply(child.Position), world.Position)

	same := Identity().Mul(child)
	assert.Equal(t, child.Position, same.Position)
}

func TestEntityTags(t *testing.T) {
	e := NewEntity(EntityDesc{Name: "crate", Tags: []TagID{3, 3, 5}})
	assert.Equal(t, []TagID{3, 5}, e.Tags)
	assert.True(t, e.HasTag(5))

	e.RemoveTag(3)
	assert.False(t, e.HasTag(3))

	desc := e.Desc()
	desc.Tags[0] = 99
	assert.Equal(t, TagID(5), e.Tags[0])
}

func TestHandleZero(t *testing.T) {
	assert.True(t, EntityHandle{}.IsZero())
	assert.True(t, ComponentHandle{}.IsZero())
	assert.False(t, ComponentHandle{Type: 4, Slot: slotmap.Handle{Generation: 1}}.IsZero())
	assert.Equal(t, "entity(2:3)", EntityHandle{Index: 2, Generation: 3}.String())
}

package models

import "math"

type Vec3 struct {
	X, Y, Z float32
}

func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z}
}

func (v Vec3) Mul(o Vec3) Vec3 {
	return Vec3{v.X * o.X, v.Y * o.Y, v.Z * o.Z}
}

func (v Vec3) Scale(s float32) Vec3 {
	return Vec3{v.X * s, v.Y * s, v.Z * s}
}

func (v Vec3) Cross(o Vec3) Vec3 {
	return Vec3{
		v.Y*o.Z - v.Z*o.Y,
		v.Z*o.X - v.X*o.Z,
		v.X*o.Y - v.Y*o.X,
	}
}

// Quat is a rotation quaternion.
type Quat struct {
	X, Y, Z, W float32
}

func IdentityQuat() Quat {
	return Quat{W: 1}
}

// AxisAngle builds a rotation of angle radians around a unit axis.
func AxisAngle(axis Vec3, angle float64) Quat {
	s := float32(math.Sin(angle / 2))
	return Quat{X: axis.X * s, Y: axis.Y * s, Z: axis.Z * s, W: float32(math.Cos(angle / 2))}
}

// Mul returns the rotation that applies o first and then q.
func (q Quat) Mul(o Quat) Quat {
	return Quat{
		X: q.W*o.X + q.X*o.W + q.Y*o.Z - q.Z*o.Y,
		Y: q.W*o.Y - q.X*o.Z + q.Y*o.W + q.Z*o.X,
		Z: q.W*o.Z + q.X*o.Y - q.Y*o.X + q.Z*o.W,
		W: q.W*o.W - q.X*o.X - q.Y*o.Y - q.Z*o.Z,
	}
}

// Rotate applies q to v.
func (q Quat) Rotate(v Vec3) Vec3 {
	u := Vec3{q.X, q.Y, q.Z}
	t := u.Cross(v).Scale(2)
	return v.Add(t.Scale(q.W)).Add(u.Cross(t))
}

// Transform is a local position, rotation and scale. The effective scale on
// each axis is Scale multiplied by UniformScale.
type Transform struct {
	Position     Vec3
	Rotation     Quat
	Scale        Vec3
	UniformScale float32
}

func Identity() Transform {
	return Transform{
		Rotation:     IdentityQuat(),
		Scale:        Vec3{1, 1, 1},
		UniformScale: 1,
	}
}

// Mul composes t (the parent) with c (the child) and returns the child
// expressed in the parent's space.
func (t Transform) Mul(c Transform) Transform {
	scale := t.Scale.Scale(t.UniformScale)
	return Transform{
		Position:     t.Position.Add(t.Rotation.Rotate(c.Position.Mul(scale))),
		Rotation:     t.Rotation.Mul(c.Rotation),
		Scale:        t.Scale.Mul(c.Scale),
		UniformScale: t.UniformScale * c.UniformScale,
	}
}

// Apply transforms a point.
func (t Transform) Apply(p Vec3) Vec3 {
	return t.Position.Add(t.Rotation.Rotate(p.Mul(t.Scale.Scale(t.UniformScale))))
}

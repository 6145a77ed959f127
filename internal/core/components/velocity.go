package components

import (
	"context"

	"github.com/zeusync/worldcore/internal/core/models"
	"github.com/zeusync/worldcore/internal/core/system"
	"github.com/zeusync/worldcore/internal/core/world"
	"github.com/zeusync/worldcore/pkg/encoding"
)

const velocityVersion = 1

// Velocity moves its owner's local position every step. Damping is the
// fraction of speed lost per second.
type Velocity struct {
	Linear  models.Vec3
	Damping float32
}

type VelocityCodec struct{}

func (VelocityCodec) Encode(_ models.EncodeContext, w *encoding.Writer, v *Velocity) error {
	w.F32(v.Linear.X)
	w.F32(v.Linear.Y)
	w.F32(v.Linear.Z)
	w.F32(v.Damping)
	return nil
}

func (VelocityCodec) Decode(_ world.DecodeContext[Velocity], r *encoding.Reader, _ uint32, v *Velocity) error {
	var f [4]float32
	for i := range f {
		x, err := r.F32()
		if err != nil {
			return err
		}
		f[i] = x
	}
	v.Linear = models.Vec3{X: f[0], Y: f[1], Z: f[2]}
	v.Damping = f[3]
	return nil
}

func dampVelocity(_ context.Context, s system.Step) {
	dt := float32(s.Delta.Seconds())
	for _, inst := range system.Each[Velocity](s) {
		if inst.Data.Damping <= 0 {
			continue
		}
		inst.Data.Linear = inst.Data.Linear.Scale(max(0, 1-inst.Data.Damping*dt))
	}
}

// applyVelocity needs the write gate to move entities, so it runs sync.
func applyVelocity(ctx context.Context, s system.Step) {
	dt := float32(s.Delta.Seconds())
	for _, inst := range system.Each[Velocity](s) {
		if inst.Owner.IsZero() {
			continue
		}
		step := inst.Data.Linear.Scale(dt)
		_ = s.World.UpdateEntity(ctx, inst.Owner, func(desc *models.EntityDesc) {
			desc.Local.Position = desc.Local.Position.Add(step)
		})
	}
}

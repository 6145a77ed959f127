package components

import (
	"context"
	"fmt"

	"github.com/zeusync/worldcore/internal/core/models"
	"github.com/zeusync/worldcore/internal/core/system"
	"github.com/zeusync/worldcore/internal/core/world"
	"github.com/zeusync/worldcore/pkg/encoding"
)

// Version 1 stored only the current value; version 2 added the maximum.
const healthVersion = 2

type Health struct {
	Current int32
	Max     int32
}

type HealthCodec struct{}

func (HealthCodec) Encode(_ models.EncodeContext, w *encoding.Writer, v *Health) error {
	w.I32(v.Current)
	w.I32(v.Max)
	return nil
}

func (HealthCodec) Decode(_ world.DecodeContext[Health], r *encoding.Reader, version uint32, v *Health) (err error) {
	if v.Current, err = r.I32(); err != nil {
		return err
	}
	switch {
	case version <= 1:
		v.Max = v.Current
	case version == 2:
		v.Max, err = r.I32()
	default:
		err = fmt.Errorf("health layout version %d is newer than %d", version, healthVersion)
	}
	return err
}

func clampHealth(_ context.Context, s system.Step) {
	for _, inst := range system.Each[Health](s) {
		inst.Data.Current = min(max(inst.Data.Current, 0), inst.Data.Max)
	}
}

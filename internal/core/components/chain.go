package components

import (
	"context"

	"github.com/zeusync/worldcore/internal/core/models"
	"github.com/zeusync/worldcore/internal/core/system"
	"github.com/zeusync/worldcore/internal/core/world"
	"github.com/zeusync/worldcore/pkg/encoding"
)

const chainLinkVersion = 1

// ChainLink is one segment of a chain. Next points at the following segment,
// which may be any component, or is zero at the end of the chain.
type ChainLink struct {
	Next   models.ComponentHandle
	Length float32
}

type ChainLinkCodec struct{}

func (ChainLinkCodec) Encode(ec models.EncodeContext, w *encoding.Writer, v *ChainLink) error {
	w.U32(ec.ComponentIndex(v.Next))
	w.F32(v.Length)
	return nil
}

func (ChainLinkCodec) Decode(dc world.DecodeContext[ChainLink], r *encoding.Reader, _ uint32, v *ChainLink) error {
	next, err := r.U32()
	if err != nil {
		return err
	}
	if v.Length, err = r.F32(); err != nil {
		return err
	}
	dc.ComponentRef(next, func(v *ChainLink, h models.ComponentHandle) { v.Next = h })
	return nil
}

// pruneChain cuts links whose next segment was destroyed.
func pruneChain(ctx context.Context, s system.Step) {
	for _, inst := range system.Each[ChainLink](s) {
		if !inst.Data.Next.IsZero() && !s.World.ContainsComponent(ctx, inst.Data.Next) {
			inst.Data.Next = models.ComponentHandle{}
		}
	}
}

// ChainLength follows Next from start and returns the summed segment length
// and the number of segments. It stops at the first component that is not a
// live link, or when a segment repeats.
func ChainLength(ctx context.Context, w *world.World, start models.ComponentHandle) (float32, int) {
	var total float32
	seen := make(map[models.ComponentHandle]bool)
	for h := start; !h.IsZero() && !seen[h]; {
		link, ok := world.Get[ChainLink](ctx, w, h)
		if !ok {
			break
		}
		seen[h] = true
		total += link.Length
		h = link.Next
	}
	return total, len(seen)
}

package snapshot

import (
	"bytes"
	"cmp"
	"context"
	"fmt"
	"io"
	"slices"

	"github.com/zeusync/worldcore/internal/core/models"
	"github.com/zeusync/worldcore/internal/core/world"
	"github.com/zeusync/worldcore/pkg/encoding"
	"github.com/zeusync/worldcore/pkg/generic"
)

var buffers = generic.NewResetPool(func() *bytes.Buffer { return new(bytes.Buffer) }, (*bytes.Buffer).Reset)

type encodeContext struct {
	entities   map[models.EntityHandle]uint32
	components map[models.ComponentHandle]uint32
}

func (ec *encodeContext) EntityIndex(h models.EntityHandle) uint32 {
	return ec.entities[h]
}

func (ec *encodeContext) ComponentIndex(h models.ComponentHandle) uint32 {
	return ec.components[h]
}

type typeBatch struct {
	pool       world.ComponentPool
	components []models.ComponentHandle
}

// Write serialises the subtrees under roots at MaxVersion. Roots that lie
// inside an earlier root's subtree are written once, as part of that subtree.
// Component references to anything outside the written set become index 0.
func Write(ctx context.Context, out io.Writer, w *world.World, roots []models.EntityHandle) error {
	ctx, release := w.Gate().RLock(ctx)
	defer release()

	ec := &encodeContext{
		entities:   make(map[models.EntityHandle]uint32),
		components: make(map[models.ComponentHandle]uint32),
	}

	var order []models.Entity
	var queue []models.EntityHandle
	add := func(h models.EntityHandle) (bool, error) {
		if _, seen := ec.entities[h]; seen {
			return false, nil
		}
		e, ok := w.Entity(ctx, h)
		if !ok {
			return false, fmt.Errorf("snapshot write: entity %s: %w", h, world.ErrStaleHandle)
		}
		order = append(order, e)
		ec.entities[h] = uint32(len(order))
		queue = append(queue, e.Children...)
		return true, nil
	}

	var rootCount int
	for _, h := range topmost(ctx, w, roots) {
		added, err := add(h)
		if err != nil {
			return err
		}
		if added {
			rootCount++
		}
	}
	// breadth first, so every parent precedes its children
	for len(queue) > 0 {
		h := queue[0]
		queue = queue[1:]
		if _, err := add(h); err != nil {
			return err
		}
	}

	tagIndex := make(map[models.TagID]uint32)
	var tagNames []string
	batches := make(map[models.TypeID]*typeBatch)
	for _, e := range order {
		for _, tag := range e.Tags {
			if _, ok := tagIndex[tag]; ok {
				continue
			}
			name, ok := w.Tags().Name(tag)
			if !ok {
				return fmt.Errorf("snapshot write: tag %d is not registered", tag)
			}
			tagIndex[tag] = uint32(len(tagNames))
			tagNames = append(tagNames, name)
		}
		for _, c := range e.Components {
			b, ok := batches[c.Type]
			if !ok {
				pool, err := w.Pool(c.Type)
				if err != nil {
					return fmt.Errorf("snapshot write: %w", err)
				}
				b = &typeBatch{pool: pool}
				batches[c.Type] = b
			}
			b.components = append(b.components, c)
		}
	}

	types := make([]*typeBatch, 0, len(batches))
	for _, b := range batches {
		types = append(types, b)
	}
	slices.SortFunc(types, func(a, b *typeBatch) int { return cmp.Compare(a.pool.Type().Name, b.pool.Type().Name) })

	var maxIndex uint32
	for _, b := range types {
		for _, c := range b.components {
			maxIndex++
			ec.components[c] = maxIndex
		}
	}

	head := buffers.Get()
	defer buffers.Put(head)
	wr := encoding.NewWriterBuffer(head)

	wr.U32(MaxVersion)
	wr.U32(uint32(len(tagNames)))
	for _, name := range tagNames {
		wr.Text(name)
	}
	wr.U32(uint32(rootCount))
	wr.U32(uint32(len(order) - rootCount))
	wr.U32(uint32(len(types)))
	wr.U32(maxIndex)

	for i, e := range order {
		var parent uint32
		if i >= rootCount {
			parent = ec.entities[e.Parent]
		}
		writeEntity(wr, parent, &e, tagIndex)
	}
	for _, b := range types {
		wr.Text(b.pool.Type().Name)
		wr.U32(b.pool.Type().Version)
	}

	scratch := buffers.Get()
	defer buffers.Put(scratch)
	for _, b := range types {
		blob := encoding.NewWriterBuffer(scratch)
		if err := writeBatch(blob, ec, b); err != nil {
			return fmt.Errorf("snapshot write: type %q: %w", b.pool.Type().Name, err)
		}
		wr.U32(uint32(blob.Len()))
		wr.Raw(blob.Bytes())
	}

	if _, err := wr.WriteTo(out); err != nil {
		return fmt.Errorf("snapshot write: %w", err)
	}
	return nil
}

// topmost drops the handles that have an ancestor among roots.
func topmost(ctx context.Context, w *world.World, roots []models.EntityHandle) []models.EntityHandle {
	set := make(map[models.EntityHandle]bool, len(roots))
	for _, h := range roots {
		set[h] = true
	}
	out := make([]models.EntityHandle, 0, len(roots))
	for _, h := range roots {
		covered := false
		e, ok := w.Entity(ctx, h)
		for ok && !e.Parent.IsZero() {
			if set[e.Parent] {
				covered = true
				break
			}
			e, ok = w.Entity(ctx, e.Parent)
		}
		if !covered {
			out = append(out, h)
		}
	}
	return out
}

func writeEntity(wr *encoding.Writer, parent uint32, e *models.Entity, tagIndex map[models.TagID]uint32) {
	wr.U32(parent)
	wr.Text(e.Name)
	wr.Text(e.GlobalKey)

	t := e.Local
	for _, f := range []float32{
		t.Position.X, t.Position.Y, t.Position.Z,
		t.Rotation.X, t.Rotation.Y, t.Rotation.Z, t.Rotation.W,
		t.Scale.X, t.Scale.Y, t.Scale.Z,
		t.UniformScale,
	} {
		wr.F32(f)
	}
	wr.Bool(e.Active)
	wr.Bool(e.Dynamic)

	wr.U32(uint32(len(e.Tags)))
	for _, tag := range e.Tags {
		wr.U32(tagIndex[tag])
	}
	wr.U16(uint16(e.Team))
}

func writeBatch(wr *encoding.Writer, ec *encodeContext, b *typeBatch) error {
	wr.U32(uint32(len(b.components)))
	for _, c := range b.components {
		owner, _ := b.pool.Owner(c)
		active, _ := b.pool.Active(c)
		flags, _ := b.pool.Flags(c)

		wr.U32(ec.EntityIndex(owner))
		wr.U32(ec.ComponentIndex(c))
		wr.Bool(active)
		wr.U32(flags)
		if err := b.pool.Encode(ec, wr, c); err != nil {
			return err
		}
	}
	return nil
}

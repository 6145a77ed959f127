package snapshot

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/zeusync/worldcore/internal/core/models"
	"github.com/zeusync/worldcore/internal/core/observability/log"
	"github.com/zeusync/worldcore/internal/core/observability/metrics"
	"github.com/zeusync/worldcore/internal/core/world"
	"github.com/zeusync/worldcore/pkg/encoding"
)

// InstantiatedEvent is the payload of world.EventSnapshotInstantiated.
type InstantiatedEvent struct {
	Source   string
	Roots    []models.EntityHandle
	Children []models.EntityHandle
}

type InstantiateOption func(*instantiateOptions)

type instantiateOptions struct {
	transform *models.Transform
	team      *models.TeamID
}

// WithTransform places the roots under t: each root's local transform becomes
// t composed with the stored one.
func WithTransform(t models.Transform) InstantiateOption {
	return func(o *instantiateOptions) { o.transform = &t }
}

// WithTeam overrides the team of every root.
func WithTeam(team models.TeamID) InstantiateOption {
	return func(o *instantiateOptions) { o.team = &team }
}

type deferredRef struct {
	index uint32
	set   func(models.ComponentHandle)
}

// loadContext is the per-instantiation state: the index to handle tables
// and the deferred component references.
type loadContext struct {
	entities   []models.EntityHandle
	components []models.ComponentHandle
	deferred   []deferredRef
	badRef     uint32
}

func (lc *loadContext) Entity(index uint32) models.EntityHandle {
	if int64(index) >= int64(len(lc.entities)) {
		return models.EntityHandle{}
	}
	return lc.entities[index]
}

func (lc *loadContext) ComponentRef(index uint32, set func(models.ComponentHandle)) {
	switch {
	case index == 0:
		set(models.ComponentHandle{})
	case int64(index) >= int64(len(lc.components)):
		lc.badRef = index
	case !lc.components[index].IsZero():
		set(lc.components[index])
	default:
		lc.deferred = append(lc.deferred, deferredRef{index: index, set: set})
	}
}

// resolve runs every deferred setter once. Indices no record filled resolve
// to the zero handle.
func (lc *loadContext) resolve() (unresolved int) {
	for _, ref := range lc.deferred {
		h := lc.components[ref.index]
		if h.IsZero() {
			unresolved++
		}
		ref.set(h)
	}
	lc.deferred = nil
	return unresolved
}

// Instantiate creates the described entities and components in w. Roots are
// attached under parent, or become world roots when parent is zero. It
// returns the created roots and children in stored order.
//
// The whole call holds w's write gate. On failure everything it created is
// removed again before the gate is released.
func (d *Description) Instantiate(ctx context.Context, w *world.World, parent models.EntityHandle, opts ...InstantiateOption) (roots, children []models.EntityHandle, err error) {
	var o instantiateOptions
	for _, opt := range opts {
		opt(&o)
	}

	ctx, release := w.Gate().Lock(ctx)
	defer release()

	lc := &loadContext{
		entities:   make([]models.EntityHandle, 1, d.EntityCount()+1),
		components: make([]models.ComponentHandle, d.MaxComponentIndex+1),
	}
	var created []models.ComponentHandle

	stage, err := d.instantiate(ctx, w, parent, o, lc, &created)
	if err != nil {
		d.rollback(ctx, w, lc.entities[1:], created)
		de := newDecodeError(stage, d.Source, err)
		d.logger.Error("snapshot instantiate failed", log.String("stage", string(de.Stage)), log.Error(de.Cause))
		d.metrics.ObserveLoad(string(de.Stage), metrics.ResultFailed)
		return nil, nil, de
	}

	roots = slices.Clone(lc.entities[1 : 1+len(d.Roots)])
	children = slices.Clone(lc.entities[1+len(d.Roots):])
	d.metrics.ObserveLoad("instantiate", metrics.ResultOK)
	w.Emit(ctx, world.EventSnapshotInstantiated, InstantiatedEvent{Source: d.Source, Roots: roots, Children: children})
	return roots, children, nil
}

func (d *Description) instantiate(ctx context.Context, w *world.World, parent models.EntityHandle, o instantiateOptions, lc *loadContext, created *[]models.ComponentHandle) (Stage, error) {
	if err := ctx.Err(); err != nil {
		return StageInstantiate, err
	}

	for _, rec := range d.Roots {
		desc := rec.Desc
		if o.transform != nil {
			desc.Local = o.transform.Mul(desc.Local)
		}
		if o.team != nil {
			desc.Team = *o.team
		}
		h, err := d.createEntity(ctx, w, desc, parent)
		if err != nil {
			return StageInstantiate, err
		}
		lc.entities = append(lc.entities, h)
	}
	for _, rec := range d.Children {
		h, err := d.createEntity(ctx, w, rec.Desc, lc.entities[rec.ParentIndex])
		if err != nil {
			return StageInstantiate, err
		}
		lc.entities = append(lc.entities, h)
	}

	for i := range d.Types {
		t := &d.Types[i]
		if t.Type == nil {
			continue
		}
		if err := d.createComponents(ctx, w, t, lc, created); err != nil {
			return StageComponents, fmt.Errorf("type %q: %w", t.Name, err)
		}
	}

	if n := lc.resolve(); n > 0 {
		d.logger.Warn("component references left unresolved", log.Int("count", n))
	}
	return "", nil
}

// createEntity creates desc under parent. A global key another live entity
// already holds is dropped from the new entity.
func (d *Description) createEntity(ctx context.Context, w *world.World, desc models.EntityDesc, parent models.EntityHandle) (models.EntityHandle, error) {
	h, err := w.CreateEntity(ctx, desc, parent)
	if !errors.Is(err, world.ErrGlobalKeyInUse) {
		return h, err
	}
	d.logger.Warn("dropping duplicate global key",
		log.String("key", desc.GlobalKey),
		log.String("entity", desc.Name),
	)
	desc.GlobalKey = ""
	return w.CreateEntity(ctx, desc, parent)
}

func (d *Description) createComponents(ctx context.Context, w *world.World, t *TypeEntry, lc *loadContext, created *[]models.ComponentHandle) error {
	pool, err := w.Pool(t.Type.ID)
	if err != nil {
		return err
	}
	data := d.blob[t.offset : t.offset+t.length]
	r := encoding.NewBytesReader(data)

	count, err := r.U32()
	if err != nil {
		return err
	}
	var last uint32
	for range count {
		owner, err := r.U32()
		if err != nil {
			return err
		}
		index, err := r.U32()
		if err != nil {
			return err
		}
		active, err := r.Bool()
		if err != nil {
			return err
		}
		var flags uint32
		if d.Version >= VersionUserFlags {
			if flags, err = r.U32(); err != nil {
				return err
			}
		}

		if int64(owner) >= int64(len(lc.entities)) {
			return corrupt("owner index %d out of %d entities", owner, len(lc.entities)-1)
		}
		if index == 0 || int64(index) >= int64(len(lc.components)) {
			return corrupt("component index %d outside 1..%d", index, d.MaxComponentIndex)
		}
		if index <= last {
			return corrupt("component index %d after %d in one batch", index, last)
		}
		if !lc.components[index].IsZero() {
			return corrupt("component index %d used twice", index)
		}
		last = index

		h, err := w.CreateComponent(ctx, t.Type.ID, lc.entities[owner])
		if err != nil {
			return err
		}
		*created = append(*created, h)
		pool.SetActive(h, active)
		pool.SetFlags(h, flags)
		lc.components[index] = h

		if err := pool.Decode(lc, r, t.Version, h); err != nil {
			return fmt.Errorf("component %d: %w", index, err)
		}
		if lc.badRef != 0 {
			return corrupt("component %d references index %d outside 1..%d", index, lc.badRef, d.MaxComponentIndex)
		}
	}

	if rest := int64(len(data)) - r.Position(); rest > 0 {
		d.logger.Warn("component blob not fully consumed",
			log.String("type", t.Name),
			log.Int64("remaining", rest),
		)
	}
	return nil
}

func (d *Description) rollback(ctx context.Context, w *world.World, entities []models.EntityHandle, components []models.ComponentHandle) {
	for _, h := range components {
		w.DestroyComponent(ctx, h)
	}
	policy := world.DestroyPolicy{Children: world.DestroyChildren, Components: world.DetachComponents}
	for i := len(entities) - 1; i >= 0; i-- {
		// reverse creation order removes children before their parents
		_, _ = w.DestroyEntity(ctx, entities[i], policy)
	}
}

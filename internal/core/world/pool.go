package world

import (
	"iter"

	"github.com/zeusync/worldcore/internal/core/models"
	"github.com/zeusync/worldcore/pkg/encoding"
	"github.com/zeusync/worldcore/pkg/slotmap"
)

// Instance is one component as stored in its pool.
type Instance[T any] struct {
	Owner  models.EntityHandle
	Active bool
	Flags  uint32
	Data   T
}

// ComponentPool is the type-erased view of a Pool used by the world, the
// snapshot codec and the scheduler.
type ComponentPool interface {
	Type() *ComponentType

	Create(owner models.EntityHandle) (models.ComponentHandle, error)
	Remove(h models.ComponentHandle) (owner models.EntityHandle, ok bool)
	Contains(h models.ComponentHandle) bool

	Owner(h models.ComponentHandle) (models.EntityHandle, bool)
	SetOwner(h models.ComponentHandle, owner models.EntityHandle) bool
	Active(h models.ComponentHandle) (bool, bool)
	SetActive(h models.ComponentHandle, active bool) bool
	Flags(h models.ComponentHandle) (uint32, bool)
	SetFlags(h models.ComponentHandle, flags uint32) bool

	// Handles yields every live component in slot order.
	Handles() iter.Seq[models.ComponentHandle]

	Encode(ec models.EncodeContext, w *encoding.Writer, h models.ComponentHandle) error
	Decode(dc models.DecodeContext, r *encoding.Reader, version uint32, h models.ComponentHandle) error

	Len() int
	Cap() int
}

// Pool stores every component of type T.
type Pool[T any] struct {
	ct    *ComponentType
	codec Codec[T]
	table *slotmap.Table[Instance[T]]
}

var _ ComponentPool = (*Pool[struct{}])(nil)

func newPool[T any](ct *ComponentType, codec Codec[T], capacity int) *Pool[T] {
	return &Pool[T]{
		ct:    ct,
		codec: codec,
		table: slotmap.New[Instance[T]](slotmap.WithCapacity(capacity)),
	}
}

func (p *Pool[T]) Type() *ComponentType {
	return p.ct
}

func (p *Pool[T]) handle(h slotmap.Handle) models.ComponentHandle {
	return models.ComponentHandle{Type: p.ct.ID, Slot: h}
}

func (p *Pool[T]) instance(h models.ComponentHandle) *Instance[T] {
	if h.Type != p.ct.ID {
		return nil
	}
	return p.table.Ref(h.Slot)
}

// Create allocates a default-constructed, inactive component.
func (p *Pool[T]) Create(owner models.EntityHandle) (models.ComponentHandle, error) {
	h, err := p.table.Insert(Instance[T]{Owner: owner})
	if err != nil {
		return models.ComponentHandle{}, err
	}
	return p.handle(h), nil
}

func (p *Pool[T]) Remove(h models.ComponentHandle) (models.EntityHandle, bool) {
	if h.Type != p.ct.ID {
		return models.EntityHandle{}, false
	}
	inst, ok := p.table.Remove(h.Slot)
	return inst.Owner, ok
}

func (p *Pool[T]) Contains(h models.ComponentHandle) bool {
	return h.Type == p.ct.ID && p.table.Contains(h.Slot)
}

func (p *Pool[T]) Owner(h models.ComponentHandle) (models.EntityHandle, bool) {
	inst := p.instance(h)
	if inst == nil {
		return models.EntityHandle{}, false
	}
	return inst.Owner, true
}

func (p *Pool[T]) SetOwner(h models.ComponentHandle, owner models.EntityHandle) bool {
	inst := p.instance(h)
	if inst == nil {
		return false
	}
	inst.Owner = owner
	return true
}

func (p *Pool[T]) Active(h models.ComponentHandle) (bool, bool) {
	inst := p.instance(h)
	if inst == nil {
		return false, false
	}
	return inst.Active, true
}

func (p *Pool[T]) SetActive(h models.ComponentHandle, active bool) bool {
	inst := p.instance(h)
	if inst == nil {
		return false
	}
	inst.Active = active
	return true
}

func (p *Pool[T]) Flags(h models.ComponentHandle) (uint32, bool) {
	inst := p.instance(h)
	if inst == nil {
		return 0, false
	}
	return inst.Flags, true
}

func (p *Pool[T]) SetFlags(h models.ComponentHandle, flags uint32) bool {
	inst := p.instance(h)
	if inst == nil {
		return false
	}
	inst.Flags = flags
	return true
}

// Get returns a copy of the component data.
func (p *Pool[T]) Get(h models.ComponentHandle) (T, bool) {
	inst := p.instance(h)
	if inst == nil {
		var zero T
		return zero, false
	}
	return inst.Data, true
}

// Ref returns the component data in place, or nil for a stale handle.
func (p *Pool[T]) Ref(h models.ComponentHandle) *T {
	inst := p.instance(h)
	if inst == nil {
		return nil
	}
	return &inst.Data
}

func (p *Pool[T]) Handles() iter.Seq[models.ComponentHandle] {
	return func(yield func(models.ComponentHandle) bool) {
		for h := range p.table.All() {
			if !yield(p.handle(h)) {
				return
			}
		}
	}
}

// All yields every live component in slot order.
func (p *Pool[T]) All() iter.Seq2[models.ComponentHandle, *Instance[T]] {
	return p.Range(0, -1)
}

// Range yields the live components whose slot index lies in [lo, hi).
// A negative hi means the end of the pool. Disjoint ranges never share an
// instance, so they may be processed concurrently.
func (p *Pool[T]) Range(lo, hi int) iter.Seq2[models.ComponentHandle, *Instance[T]] {
	return func(yield func(models.ComponentHandle, *Instance[T]) bool) {
		for h, inst := range p.table.Range(lo, hi) {
			if !yield(p.handle(h), inst) {
				return
			}
		}
	}
}

func (p *Pool[T]) Encode(ec models.EncodeContext, w *encoding.Writer, h models.ComponentHandle) error {
	inst := p.instance(h)
	if inst == nil {
		return ErrStaleHandle
	}
	return p.codec.Encode(ec, w, &inst.Data)
}

// Decode fills the component addressed by h in place.
func (p *Pool[T]) Decode(dc models.DecodeContext, r *encoding.Reader, version uint32, h models.ComponentHandle) error {
	inst := p.instance(h)
	if inst == nil {
		return ErrStaleHandle
	}
	return p.codec.Decode(poolDecodeContext[T]{dc: dc, pool: p, self: h}, r, version, &inst.Data)
}

// poolDecodeContext routes deferred reference setters back to the current
// storage of the component being decoded, which may have moved by the time
// they run.
type poolDecodeContext[T any] struct {
	dc   models.DecodeContext
	pool *Pool[T]
	self models.ComponentHandle
}

func (c poolDecodeContext[T]) Entity(index uint32) models.EntityHandle {
	return c.dc.Entity(index)
}

func (c poolDecodeContext[T]) ComponentRef(index uint32, set func(v *T, h models.ComponentHandle)) {
	c.dc.ComponentRef(index, func(h models.ComponentHandle) {
		if v := c.pool.Ref(c.self); v != nil {
			set(v, h)
		}
	})
}

func (p *Pool[T]) Len() int {
	return p.table.Len()
}

func (p *Pool[T]) Cap() int {
	return p.table.Cap()
}

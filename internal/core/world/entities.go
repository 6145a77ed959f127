package world

import (
	"fmt"
	"iter"
	"slices"

	"github.com/zeusync/worldcore/internal/core/models"
	"github.com/zeusync/worldcore/pkg/slotmap"
)

// EntityRegistry stores entities and the hierarchy between them. The tree is
// intrusive: parent and child links live in the entity payload. Entities
// without a parent are kept in an ordered root list. Non-empty global keys
// are unique among live entities.
type EntityRegistry struct {
	table *slotmap.Table[models.Entity]
	roots []models.EntityHandle
	keys  map[string]models.EntityHandle
}

func NewEntityRegistry(capacity int) *EntityRegistry {
	return &EntityRegistry{
		table: slotmap.New[models.Entity](slotmap.WithCapacity(capacity)),
		keys:  make(map[string]models.EntityHandle),
	}
}

// Create allocates an entity and links it under parent, or into the root list
// when parent is the zero handle.
func (r *EntityRegistry) Create(desc models.EntityDesc, parent models.EntityHandle) (models.EntityHandle, error) {
	if !parent.IsZero() && !r.Contains(parent) {
		return models.EntityHandle{}, ErrStaleHandle
	}
	if _, taken := r.keys[desc.GlobalKey]; taken {
		return models.EntityHandle{}, fmt.Errorf("%q: %w", desc.GlobalKey, ErrGlobalKeyInUse)
	}

	e := models.NewEntity(desc)
	e.Parent = parent
	h, err := r.table.Insert(e)
	if err != nil {
		return models.EntityHandle{}, err
	}

	eh := models.EntityHandle(h)
	r.link(eh, parent)
	if desc.GlobalKey != "" {
		r.keys[desc.GlobalKey] = eh
	}
	return eh, nil
}

// ByGlobalKey returns the live entity holding key.
func (r *EntityRegistry) ByGlobalKey(key string) (models.EntityHandle, bool) {
	h, ok := r.keys[key]
	return h, ok
}

// SetGlobalKey moves h to key, releasing its previous key. An empty key
// leaves h without one.
func (r *EntityRegistry) SetGlobalKey(h models.EntityHandle, key string) error {
	e := r.Ref(h)
	if e == nil {
		return ErrStaleHandle
	}
	if e.GlobalKey == key {
		return nil
	}
	if _, taken := r.keys[key]; taken {
		return fmt.Errorf("%q: %w", key, ErrGlobalKeyInUse)
	}
	delete(r.keys, e.GlobalKey)
	if key != "" {
		r.keys[key] = h
	}
	e.GlobalKey = key
	return nil
}

func (r *EntityRegistry) Get(h models.EntityHandle) (models.Entity, bool) {
	return r.table.Get(slotmap.Handle(h))
}

// Ref returns the stored entity, or nil when h is stale. The pointer must not
// be kept across a Create.
func (r *EntityRegistry) Ref(h models.EntityHandle) *models.Entity {
	return r.table.Ref(slotmap.Handle(h))
}

func (r *EntityRegistry) Contains(h models.EntityHandle) bool {
	return r.table.Contains(slotmap.Handle(h))
}

// Roots returns a copy of the root list in creation order.
func (r *EntityRegistry) Roots() []models.EntityHandle {
	return slices.Clone(r.roots)
}

func (r *EntityRegistry) Children(h models.EntityHandle) []models.EntityHandle {
	e := r.Ref(h)
	if e == nil {
		return nil
	}
	return slices.Clone(e.Children)
}

// IsAncestor reports whether a is h or one of its ancestors.
func (r *EntityRegistry) IsAncestor(a, h models.EntityHandle) bool {
	for cur := h; !cur.IsZero(); {
		if cur == a {
			return true
		}
		e := r.Ref(cur)
		if e == nil {
			return false
		}
		cur = e.Parent
	}
	return false
}

// SetParent moves h under parent, or to the end of the root list when parent
// is zero. The child is appended to the new parent's children.
func (r *EntityRegistry) SetParent(h, parent models.EntityHandle) error {
	e := r.Ref(h)
	if e == nil {
		return ErrStaleHandle
	}
	if !parent.IsZero() {
		if !r.Contains(parent) {
			return ErrStaleHandle
		}
		if r.IsAncestor(h, parent) {
			return ErrParentCycle
		}
	}
	if e.Parent == parent {
		return nil
	}

	r.unlink(h, e.Parent)
	r.Ref(h).Parent = parent
	r.link(h, parent)
	return nil
}

// Remove frees the slot of h and unlinks it from its parent. Children still
// point at h afterwards; the caller re-parents or removes them first.
func (r *EntityRegistry) Remove(h models.EntityHandle) (models.Entity, bool) {
	e, ok := r.table.Remove(slotmap.Handle(h))
	if !ok {
		return models.Entity{}, false
	}
	r.unlink(h, e.Parent)
	delete(r.keys, e.GlobalKey)
	return e, true
}

func (r *EntityRegistry) Len() int {
	return r.table.Len()
}

// All yields every live entity in slot order.
func (r *EntityRegistry) All() iter.Seq2[models.EntityHandle, *models.Entity] {
	return func(yield func(models.EntityHandle, *models.Entity) bool) {
		for h, e := range r.table.All() {
			if !yield(models.EntityHandle(h), e) {
				return
			}
		}
	}
}

func (r *EntityRegistry) link(h, parent models.EntityHandle) {
	if parent.IsZero() {
		r.roots = append(r.roots, h)
		return
	}
	p := r.Ref(parent)
	p.Children = append(p.Children, h)
}

func (r *EntityRegistry) unlink(h, parent models.EntityHandle) {
	match := func(c models.EntityHandle) bool { return c == h }
	if parent.IsZero() {
		r.roots = slices.DeleteFunc(r.roots, match)
		return
	}
	if p := r.Ref(parent); p != nil {
		p.Children = slices.DeleteFunc(p.Children, match)
	}
}

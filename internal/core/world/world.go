// Package world holds the live entity/component store: the entity hierarchy,
// one component pool per registered type, and the gate that serialises
// structural changes against readers.
//
// Every World method takes a context. A context returned by Gate().Lock or
// passed into Write already owns the gate, so nested calls made with it do not
// lock again.
package world

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/zeusync/worldcore/internal/core/events/bus"
	"github.com/zeusync/worldcore/internal/core/models"
	"github.com/zeusync/worldcore/internal/core/observability/log"
	"github.com/zeusync/worldcore/internal/core/observability/metrics"
)

// Lifecycle event types published on the world's bus.
const (
	EventEntityCreated        = "entity.created"
	EventEntityDestroyed      = "entity.destroyed"
	EventComponentCreated     = "component.created"
	EventComponentDestroyed   = "component.destroyed"
	EventSnapshotInstantiated = "snapshot.instantiated"
)

type EntityEvent struct {
	Entity models.EntityHandle
	Parent models.EntityHandle
}

type ComponentEvent struct {
	Component models.ComponentHandle
	Owner     models.EntityHandle
}

// ChildPolicy decides what happens to the children of a destroyed entity.
type ChildPolicy uint8

const (
	ReparentChildren ChildPolicy = iota + 1
	DestroyChildren
)

// ComponentPolicy decides what happens to the components of a destroyed entity.
type ComponentPolicy uint8

const (
	DetachComponents ComponentPolicy = iota + 1
	DestroyComponents
)

// DestroyPolicy has no usable zero value; both fields must be set.
type DestroyPolicy struct {
	Children   ChildPolicy
	Components ComponentPolicy
}

func (p DestroyPolicy) validate() error {
	if p.Children != ReparentChildren && p.Children != DestroyChildren {
		return ErrInvalidPolicy
	}
	if p.Components != DetachComponents && p.Components != DestroyComponents {
		return ErrInvalidPolicy
	}
	return nil
}

type World struct {
	name string
	gate Gate

	types    *TypeRegistry
	tags     *TagRegistry
	entities *EntityRegistry

	poolsMu      sync.Mutex
	pools        map[models.TypeID]ComponentPool
	poolCapacity int

	logger  log.Log
	metrics *metrics.Metrics
	events  bus.EventBus
}

type Option func(*World)

func WithName(name string) Option {
	return func(w *World) { w.name = name }
}

func WithLogger(l log.Log) Option {
	return func(w *World) { w.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(w *World) { w.metrics = m }
}

func WithEventBus(b bus.EventBus) Option {
	return func(w *World) { w.events = b }
}

// WithEntityCapacity pre-allocates entity slots.
func WithEntityCapacity(n int) Option {
	return func(w *World) { w.entities = NewEntityRegistry(n) }
}

// WithPoolCapacity sets the initial slot count of each component pool.
func WithPoolCapacity(n int) Option {
	return func(w *World) { w.poolCapacity = n }
}

// New creates an empty world over the process-wide type and tag registries.
func New(types *TypeRegistry, tags *TagRegistry, opts ...Option) *World {
	w := &World{
		name:  "world",
		types: types,
		tags:  tags,
		pools: make(map[models.TypeID]ComponentPool),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.entities == nil {
		w.entities = NewEntityRegistry(0)
	}
	if w.logger == nil {
		w.logger = log.NewNop()
	}
	w.logger = w.logger.Named("world").With(log.String("world", w.name))
	return w
}

func (w *World) Name() string              { return w.name }
func (w *World) Gate() *Gate               { return &w.gate }
func (w *World) Types() *TypeRegistry      { return w.types }
func (w *World) Tags() *TagRegistry        { return w.tags }
func (w *World) Logger() log.Log           { return w.logger }
func (w *World) Metrics() *metrics.Metrics { return w.metrics }

// Write runs fn while ctx holds the gate for writing. Events raised inside fn
// are published after the outermost hold is released.
func (w *World) Write(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, release := w.gate.Lock(ctx)
	defer release()
	return fn(ctx)
}

// Read runs fn while ctx holds the gate for reading.
func (w *World) Read(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, release := w.gate.RLock(ctx)
	defer release()
	return fn(ctx)
}

// Pool returns the storage for a registered type, creating it on first use.
func (w *World) Pool(id models.TypeID) (ComponentPool, error) {
	w.poolsMu.Lock()
	defer w.poolsMu.Unlock()
	if p, ok := w.pools[id]; ok {
		return p, nil
	}
	ct, ok := w.types.ByID(id)
	if !ok {
		return nil, fmt.Errorf("type %08x: %w", uint32(id), ErrUnknownType)
	}
	p := ct.newPool(w.poolCapacity)
	w.pools[id] = p
	return p, nil
}

func (w *World) poolOf(h models.ComponentHandle) ComponentPool {
	w.poolsMu.Lock()
	defer w.poolsMu.Unlock()
	return w.pools[h.Type]
}

// PoolFor returns the typed pool registered under id.
func PoolFor[T any](w *World, id models.TypeID) (*Pool[T], error) {
	p, err := w.Pool(id)
	if err != nil {
		return nil, err
	}
	typed, ok := p.(*Pool[T])
	if !ok {
		return nil, fmt.Errorf("type %q: %w", p.Type().Name, ErrTypeMismatch)
	}
	return typed, nil
}

// Entities

// CreateEntity adds an entity under parent. A non-empty global key already
// held by a live entity fails with ErrGlobalKeyInUse.
func (w *World) CreateEntity(ctx context.Context, desc models.EntityDesc, parent models.EntityHandle) (models.EntityHandle, error) {
	ctx, release := w.gate.Lock(ctx)
	defer release()

	h, err := w.entities.Create(desc, parent)
	if err != nil {
		return models.EntityHandle{}, err
	}
	w.metrics.SetLiveEntities(w.entities.Len())
	w.emit(ctx, EventEntityCreated, EntityEvent{Entity: h, Parent: parent})
	return h, nil
}

// DestroyEntity removes h and handles its children and components as policy
// says. A stale handle reports false without error.
func (w *World) DestroyEntity(ctx context.Context, h models.EntityHandle, policy DestroyPolicy) (bool, error) {
	if err := policy.validate(); err != nil {
		return false, err
	}
	ctx, release := w.gate.Lock(ctx)
	defer release()

	n := w.destroyEntity(ctx, h, policy)
	if n == 0 {
		return false, nil
	}
	w.logger.Debug("entity destroyed", log.Stringer("entity", h), log.Int("removed", n))
	w.metrics.SetLiveEntities(w.entities.Len())
	return true, nil
}

func (w *World) destroyEntity(ctx context.Context, h models.EntityHandle, policy DestroyPolicy) int {
	e := w.entities.Ref(h)
	if e == nil {
		return 0
	}
	parent := e.Parent
	components := slices.Clone(e.Components)
	children := slices.Clone(e.Children)

	for _, c := range components {
		if policy.Components == DestroyComponents {
			w.destroyComponent(ctx, c)
		} else {
			w.detach(c)
		}
	}

	removed := 1
	for _, child := range children {
		if policy.Children == DestroyChildren {
			removed += w.destroyEntity(ctx, child, policy)
			continue
		}
		// parent is an ancestor of child, so this cannot form a cycle
		_ = w.entities.SetParent(child, parent)
	}

	w.entities.Remove(h)
	w.emit(ctx, EventEntityDestroyed, EntityEvent{Entity: h, Parent: parent})
	return removed
}

// Entity returns a copy of the entity addressed by h.
func (w *World) Entity(ctx context.Context, h models.EntityHandle) (models.Entity, bool) {
	_, release := w.gate.RLock(ctx)
	defer release()

	e := w.entities.Ref(h)
	if e == nil {
		return models.Entity{}, false
	}
	out := *e
	out.Tags = slices.Clone(e.Tags)
	out.Children = slices.Clone(e.Children)
	out.Components = slices.Clone(e.Components)
	return out, true
}

// UpdateEntity edits the descriptive fields of h. Hierarchy and component
// links are changed through SetParent, Attach and Detach instead.
func (w *World) UpdateEntity(ctx context.Context, h models.EntityHandle, fn func(desc *models.EntityDesc)) error {
	_, release := w.gate.Lock(ctx)
	defer release()

	e := w.entities.Ref(h)
	if e == nil {
		return ErrStaleHandle
	}
	desc := e.Desc()
	fn(&desc)
	if err := w.entities.SetGlobalKey(h, desc.GlobalKey); err != nil {
		return err
	}

	updated := models.NewEntity(desc)
	updated.Parent, updated.Children, updated.Components = e.Parent, e.Children, e.Components
	*e = updated
	return nil
}

func (w *World) SetParent(ctx context.Context, h, parent models.EntityHandle) error {
	_, release := w.gate.Lock(ctx)
	defer release()
	return w.entities.SetParent(h, parent)
}

func (w *World) Roots(ctx context.Context) []models.EntityHandle {
	_, release := w.gate.RLock(ctx)
	defer release()
	return w.entities.Roots()
}

func (w *World) Children(ctx context.Context, h models.EntityHandle) []models.EntityHandle {
	_, release := w.gate.RLock(ctx)
	defer release()
	return w.entities.Children(h)
}

func (w *World) EntityCount(ctx context.Context) int {
	_, release := w.gate.RLock(ctx)
	defer release()
	return w.entities.Len()
}

func (w *World) ContainsEntity(ctx context.Context, h models.EntityHandle) bool {
	_, release := w.gate.RLock(ctx)
	defer release()
	return w.entities.Contains(h)
}

// WorldTransform composes the local transforms from the root down to h.
func (w *World) WorldTransform(ctx context.Context, h models.EntityHandle) (models.Transform, bool) {
	_, release := w.gate.RLock(ctx)
	defer release()

	e := w.entities.Ref(h)
	if e == nil {
		return models.Transform{}, false
	}
	t := e.Local
	for p := e.Parent; !p.IsZero(); {
		pe := w.entities.Ref(p)
		if pe == nil {
			break
		}
		t = pe.Local.Mul(t)
		p = pe.Parent
	}
	return t, true
}

// FindByGlobalKey returns the entity whose global key is key.
func (w *World) FindByGlobalKey(ctx context.Context, key string) (models.EntityHandle, bool) {
	if key == "" {
		return models.EntityHandle{}, false
	}
	_, release := w.gate.RLock(ctx)
	defer release()
	return w.entities.ByGlobalKey(key)
}

// FindByTag lists the entities carrying tag in slot order.
func (w *World) FindByTag(ctx context.Context, tag models.TagID) []models.EntityHandle {
	_, release := w.gate.RLock(ctx)
	defer release()

	var out []models.EntityHandle
	for h, e := range w.entities.All() {
		if e.HasTag(tag) {
			out = append(out, h)
		}
	}
	return out
}

// Components

// CreateComponent allocates an inactive, zero-valued component of type id and
// attaches it to owner. A zero owner leaves it detached.
func (w *World) CreateComponent(ctx context.Context, id models.TypeID, owner models.EntityHandle) (models.ComponentHandle, error) {
	ctx, release := w.gate.Lock(ctx)
	defer release()

	p, err := w.Pool(id)
	if err != nil {
		return models.ComponentHandle{}, err
	}
	var e *models.Entity
	if !owner.IsZero() {
		if e = w.entities.Ref(owner); e == nil {
			return models.ComponentHandle{}, ErrStaleHandle
		}
	}

	h, err := p.Create(owner)
	if err != nil {
		return models.ComponentHandle{}, fmt.Errorf("create %s: %w", p.Type().Name, err)
	}
	if e != nil {
		e.Components = append(e.Components, h)
	}
	w.emit(ctx, EventComponentCreated, ComponentEvent{Component: h, Owner: owner})
	return h, nil
}

// DestroyComponent detaches and frees h. A stale handle reports false.
func (w *World) DestroyComponent(ctx context.Context, h models.ComponentHandle) bool {
	ctx, release := w.gate.Lock(ctx)
	defer release()
	return w.destroyComponent(ctx, h)
}

func (w *World) destroyComponent(ctx context.Context, h models.ComponentHandle) bool {
	p := w.poolOf(h)
	if p == nil || !p.Contains(h) {
		return false
	}
	w.detach(h)
	owner, _ := p.Remove(h)
	w.emit(ctx, EventComponentDestroyed, ComponentEvent{Component: h, Owner: owner})
	return true
}

// Attach moves h to owner, detaching it from any previous owner.
func (w *World) Attach(ctx context.Context, h models.ComponentHandle, owner models.EntityHandle) error {
	_, release := w.gate.Lock(ctx)
	defer release()

	p := w.poolOf(h)
	if p == nil || !p.Contains(h) {
		return ErrStaleHandle
	}
	e := w.entities.Ref(owner)
	if e == nil {
		return ErrStaleHandle
	}
	if current, _ := p.Owner(h); current == owner {
		return nil
	}
	w.detach(h)
	e.Components = append(e.Components, h)
	p.SetOwner(h, owner)
	return nil
}

// Detach clears the owner of h. Detaching a detached component is a no-op.
func (w *World) Detach(ctx context.Context, h models.ComponentHandle) error {
	_, release := w.gate.Lock(ctx)
	defer release()

	p := w.poolOf(h)
	if p == nil || !p.Contains(h) {
		return ErrStaleHandle
	}
	w.detach(h)
	return nil
}

func (w *World) detach(h models.ComponentHandle) {
	p := w.poolOf(h)
	if p == nil {
		return
	}
	owner, ok := p.Owner(h)
	if !ok || owner.IsZero() {
		return
	}
	if e := w.entities.Ref(owner); e != nil {
		e.Components = slices.DeleteFunc(e.Components, func(c models.ComponentHandle) bool { return c == h })
	}
	p.SetOwner(h, models.EntityHandle{})
}

func (w *World) SetActive(ctx context.Context, h models.ComponentHandle, active bool) error {
	_, release := w.gate.Lock(ctx)
	defer release()

	p := w.poolOf(h)
	if p == nil || !p.SetActive(h, active) {
		return ErrStaleHandle
	}
	return nil
}

func (w *World) IsActive(ctx context.Context, h models.ComponentHandle) bool {
	_, release := w.gate.RLock(ctx)
	defer release()

	p := w.poolOf(h)
	if p == nil {
		return false
	}
	active, _ := p.Active(h)
	return active
}

func (w *World) SetComponentFlags(ctx context.Context, h models.ComponentHandle, flags uint32) error {
	_, release := w.gate.Lock(ctx)
	defer release()

	p := w.poolOf(h)
	if p == nil || !p.SetFlags(h, flags) {
		return ErrStaleHandle
	}
	return nil
}

func (w *World) ComponentFlags(ctx context.Context, h models.ComponentHandle) (uint32, bool) {
	_, release := w.gate.RLock(ctx)
	defer release()

	p := w.poolOf(h)
	if p == nil {
		return 0, false
	}
	return p.Flags(h)
}

// ComponentOwner returns the owner of h; the zero handle means detached.
func (w *World) ComponentOwner(ctx context.Context, h models.ComponentHandle) (models.EntityHandle, bool) {
	_, release := w.gate.RLock(ctx)
	defer release()

	p := w.poolOf(h)
	if p == nil {
		return models.EntityHandle{}, false
	}
	return p.Owner(h)
}

func (w *World) ContainsComponent(ctx context.Context, h models.ComponentHandle) bool {
	_, release := w.gate.RLock(ctx)
	defer release()

	p := w.poolOf(h)
	return p != nil && p.Contains(h)
}

// Components lists the components attached to owner in attach order.
func (w *World) Components(ctx context.Context, owner models.EntityHandle) []models.ComponentHandle {
	_, release := w.gate.RLock(ctx)
	defer release()

	e := w.entities.Ref(owner)
	if e == nil {
		return nil
	}
	return slices.Clone(e.Components)
}

// Get returns a copy of the data of component h.
func Get[T any](ctx context.Context, w *World, h models.ComponentHandle) (T, bool) {
	_, release := w.gate.RLock(ctx)
	defer release()

	var zero T
	p, ok := w.poolOf(h).(*Pool[T])
	if !ok {
		return zero, false
	}
	return p.Get(h)
}

// Ref returns the data of component h in place. The pointer is only valid
// while ctx holds the gate, so callers use it inside Read or Write.
func Ref[T any](ctx context.Context, w *World, h models.ComponentHandle) *T {
	_, release := w.gate.RLock(ctx)
	defer release()

	p, ok := w.poolOf(h).(*Pool[T])
	if !ok {
		return nil
	}
	return p.Ref(h)
}

// Mutate runs fn on the data of component h under the write gate.
func Mutate[T any](ctx context.Context, w *World, h models.ComponentHandle, fn func(v *T)) error {
	_, release := w.gate.Lock(ctx)
	defer release()

	p, ok := w.poolOf(h).(*Pool[T])
	if !ok {
		if w.poolOf(h) != nil {
			return ErrTypeMismatch
		}
		return ErrStaleHandle
	}
	v := p.Ref(h)
	if v == nil {
		return ErrStaleHandle
	}
	fn(v)
	return nil
}

// Emit publishes a custom event once ctx releases its hold on the gate.
func (w *World) Emit(ctx context.Context, eventType string, data any) {
	w.emit(ctx, eventType, data)
}

func (w *World) emit(ctx context.Context, eventType string, data any) {
	if w.events == nil {
		return
	}
	w.gate.Defer(ctx, func() {
		if err := w.events.Publish(bus.NewEvent(eventType, w.name, data)); err != nil {
			w.logger.Warn("event handler failed", log.String("event", eventType), log.Error(err))
		}
	})
}

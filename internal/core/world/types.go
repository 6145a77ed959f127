package world

import (
	"cmp"
	"fmt"
	"slices"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/zeusync/worldcore/internal/core/models"
	"github.com/zeusync/worldcore/pkg/encoding"
)

// Codec reads and writes the payload of one component type. Decode receives
// the type version recorded in the snapshot, which may be older than the
// registered one; handling old layouts is the codec's job.
type Codec[T any] interface {
	Encode(ec models.EncodeContext, w *encoding.Writer, v *T) error
	Decode(dc DecodeContext[T], r *encoding.Reader, version uint32, v *T) error
}

// DecodeContext is what a codec sees while its component is being loaded.
type DecodeContext[T any] interface {
	// Entity resolves a snapshot entity index; 0 is the zero handle.
	Entity(index uint32) models.EntityHandle
	// ComponentRef asks for the component stored under a snapshot index. set
	// runs at most once, either during Decode or after every component of the
	// snapshot exists. It receives the decoded component's current storage,
	// so it must write through v rather than through the pointer given to
	// Decode.
	ComponentRef(index uint32, set func(v *T, h models.ComponentHandle))
}

// ComponentType is the registry entry for one component type: its identity
// plus the closures that build storage for it.
type ComponentType struct {
	ID      models.TypeID
	Name    string
	Version uint32

	newPool func(capacity int) ComponentPool
}

// TypeIDOf derives the stable id of a component type name.
func TypeIDOf(name string) models.TypeID {
	id := models.TypeID(xxhash.Sum64String(name))
	if id == 0 {
		id = 1
	}
	return id
}

// TypeRegistry maps component type names to their constructors. It is meant
// to be filled once at startup and shared by every world and snapshot load of
// the process.
type TypeRegistry struct {
	mu     sync.RWMutex
	byName map[string]*ComponentType
	byID   map[models.TypeID]*ComponentType
}

func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{
		byName: make(map[string]*ComponentType),
		byID:   make(map[models.TypeID]*ComponentType),
	}
}

// RegisterComponent adds component type T under name.
func RegisterComponent[T any](r *TypeRegistry, name string, version uint32, codec Codec[T]) (models.TypeID, error) {
	if name == "" {
		return 0, fmt.Errorf("register component: empty type name")
	}
	if codec == nil {
		return 0, fmt.Errorf("register component %q: nil codec", name)
	}

	id := TypeIDOf(name)
	ct := &ComponentType{ID: id, Name: name, Version: version}
	ct.newPool = func(capacity int) ComponentPool {
		return newPool[T](ct, codec, capacity)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[name]; exists {
		return 0, fmt.Errorf("register component %q: %w", name, ErrTypeExists)
	}
	if other, exists := r.byID[id]; exists {
		return 0, fmt.Errorf("register component %q: %w with %q", name, ErrTypeIDCollision, other.Name)
	}
	r.byName[name] = ct
	r.byID[id] = ct
	return id, nil
}

// Lookup resolves a serialized type name.
func (r *TypeRegistry) Lookup(name string) (*ComponentType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ct, ok := r.byName[name]
	return ct, ok
}

func (r *TypeRegistry) ByID(id models.TypeID) (*ComponentType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ct, ok := r.byID[id]
	return ct, ok
}

// Types lists every registered type ordered by name.
func (r *TypeRegistry) Types() []*ComponentType {
	r.mu.RLock()
	out := make([]*ComponentType, 0, len(r.byName))
	for _, ct := range r.byName {
		out = append(out, ct)
	}
	r.mu.RUnlock()
	slices.SortFunc(out, func(a, b *ComponentType) int { return cmp.Compare(a.Name, b.Name) })
	return out
}

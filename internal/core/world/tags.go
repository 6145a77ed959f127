package world

import (
	"sync"

	"github.com/zeusync/worldcore/internal/core/models"
)

// TagRegistry interns entity tag names. Tags are deduplicated by name for the
// lifetime of the registry, across every snapshot loaded through it.
type TagRegistry struct {
	mu     sync.RWMutex
	byName map[string]models.TagID
	names  []string
}

func NewTagRegistry() *TagRegistry {
	return &TagRegistry{byName: make(map[string]models.TagID)}
}

// Intern returns the id of name, allocating one on first use.
func (r *TagRegistry) Intern(name string) models.TagID {
	r.mu.RLock()
	id, ok := r.byName[name]
	r.mu.RUnlock()
	if ok {
		return id
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.byName[name]; ok {
		return id
	}
	r.names = append(r.names, name)
	id = models.TagID(len(r.names))
	r.byName[name] = id
	return id
}

func (r *TagRegistry) Lookup(name string) (models.TagID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byName[name]
	return id, ok
}

func (r *TagRegistry) Name(id models.TagID) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if id == 0 || int(id) > len(r.names) {
		return "", false
	}
	return r.names[id-1], true
}

func (r *TagRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.names)
}

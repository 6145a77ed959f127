// Package models holds the plain data shared by the world, the snapshot codec
// and the scheduler: handles, the entity payload and transforms.
package models

import (
	"fmt"

	"github.com/zeusync/worldcore/pkg/slotmap"
)

// TypeID identifies a registered component type. It is derived from the type
// name, so it is stable across processes.
type TypeID uint32

// TagID identifies an interned entity tag.
type TagID uint32

// TeamID groups entities by owning team.
type TeamID uint16

// EntityHandle is a generational reference to an entity.
// The zero value refers to no entity.
type EntityHandle slotmap.Handle

func (h EntityHandle) IsZero() bool {
	return slotmap.Handle(h).IsZero()
}

func (h EntityHandle) String() string {
	return "entity(" + slotmap.Handle(h).String() + ")"
}

// ComponentHandle is a generational reference to a component of a given type.
type ComponentHandle struct {
	Type TypeID
	Slot slotmap.Handle
}

func (h ComponentHandle) IsZero() bool {
	return h.Type == 0 && h.Slot.IsZero()
}

func (h ComponentHandle) String() string {
	return fmt.Sprintf("component(%08x/%s)", uint32(h.Type), h.Slot)
}

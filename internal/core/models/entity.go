package models

import "slices"

// EntityDesc is everything needed to create an entity.
type EntityDesc struct {
	Name      string
	GlobalKey string
	Local     Transform
	Active    bool
	Dynamic   bool
	Team      TeamID
	Tags      []TagID
}

// Entity is the payload stored in the entity registry. Parent and Children
// form an intrusive tree over entity handles; Components lists everything
// currently attached.
type Entity struct {
	Name      string
	GlobalKey string
	Local     Transform
	Active    bool
	Dynamic   bool
	Team      TeamID
	Tags      []TagID

	Parent     EntityHandle
	Children   []EntityHandle
	Components []ComponentHandle
}

// NewEntity builds the payload for desc. Tags are copied and deduplicated.
func NewEntity(desc EntityDesc) Entity {
	e := Entity{
		Name:      desc.Name,
		GlobalKey: desc.GlobalKey,
		Local:     desc.Local,
		Active:    desc.Active,
		Dynamic:   desc.Dynamic,
		Team:      desc.Team,
	}
	for _, tag := range desc.Tags {
		e.AddTag(tag)
	}
	return e
}

// Desc returns the creation-time view of e.
func (e *Entity) Desc() EntityDesc {
	return EntityDesc{
		Name:      e.Name,
		GlobalKey: e.GlobalKey,
		Local:     e.Local,
		Active:    e.Active,
		Dynamic:   e.Dynamic,
		Team:      e.Team,
		Tags:      slices.Clone(e.Tags),
	}
}

func (e *Entity) HasTag(tag TagID) bool {
	return slices.Contains(e.Tags, tag)
}

func (e *Entity) AddTag(tag TagID) {
	if !e.HasTag(tag) {
		e.Tags = append(e.Tags, tag)
	}
}

func (e *Entity) RemoveTag(tag TagID) {
	e.Tags = slices.DeleteFunc(e.Tags, func(t TagID) bool { return t == tag })
}

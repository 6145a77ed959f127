package models

// DecodeContext is handed to component decoders while a snapshot is being
// instantiated.
type DecodeContext interface {
	// Entity resolves a snapshot entity index. Index 0 is the zero handle.
	Entity(index uint32) EntityHandle
	// ComponentRef asks for the handle of the component stored under index.
	// set is called at most once: immediately when that component already
	// exists, otherwise after every component of the snapshot is created.
	ComponentRef(index uint32, set func(ComponentHandle))
}

// EncodeContext maps live handles to snapshot indices while writing.
// Handles outside the written set map to 0.
type EncodeContext interface {
	EntityIndex(h EntityHandle) uint32
	ComponentIndex(h ComponentHandle) uint32
}

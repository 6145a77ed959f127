package world

import (
	"errors"

	"github.com/zeusync/worldcore/pkg/slotmap"
)

var (
	// Handle errors

	ErrStaleHandle       = errors.New("stale handle")
	ErrCapacityExhausted = slotmap.ErrCapacityExhausted

	// Type registry errors

	ErrUnknownType     = errors.New("unknown component type")
	ErrTypeExists      = errors.New("component type already registered")
	ErrTypeIDCollision = errors.New("component type id collision")
	ErrTypeMismatch    = errors.New("component type mismatch")

	// Hierarchy errors

	ErrParentCycle   = errors.New("entity cannot be parented to itself or a descendant")
	ErrInvalidPolicy = errors.New("destroy policy must set both child and component handling")

	// Lookup errors

	ErrGlobalKeyInUse = errors.New("global key already in use")
)

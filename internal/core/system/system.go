// Package system schedules the update functions registered by component
// types and runs them once per simulation step.
package system

import (
	"context"
	"errors"
	"iter"
	"time"

	"github.com/zeusync/worldcore/internal/core/models"
	"github.com/zeusync/worldcore/internal/core/world"
	"github.com/zeusync/worldcore/pkg/concurrent"
)

var (
	ErrEmptyName         = errors.New("update function name is empty")
	ErrNilFunc           = errors.New("update function is nil")
	ErrInvalidPhase      = errors.New("invalid update phase")
	ErrUnknownType       = errors.New("update function registered for unknown component type")
	ErrDuplicateName     = errors.New("update function already registered")
	ErrCyclicDependency  = errors.New("cyclic update function dependency")
	ErrUnknownDependency = errors.New("unknown update function dependency")
)

// Phase defines how an update function runs
type Phase uint8

const (
	// PhaseSync runs once per step on the stepping goroutine and covers every
	// instance of the type. It may mutate the world.
	PhaseSync Phase = iota + 1
	// PhaseAsync is split into slot ranges of at most Granularity slots that
	// run in parallel. A chunk may only mutate the instances in its range.
	PhaseAsync
)

func (p Phase) String() string {
	switch p {
	case PhaseSync:
		return "sync"
	case PhaseAsync:
		return "async"
	default:
		return "invalid"
	}
}

// State represents where an update function is within the current step
type State uint8

const (
	StateRegistered State = iota
	StateReady
	StateRunning
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateRegistered:
		return "registered"
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Step is what one call of an update function sees.
type Step struct {
	World *world.World
	// Pool holds the instances of the registering type.
	Pool world.ComponentPool
	// Range is the slot range this call owns. Sync calls own the whole pool.
	Range concurrent.Range
	Delta time.Duration
	// Index counts steps since the scheduler was created.
	Index uint64
}

// UpdateFunc processes the instances of one component type. It handles its
// own failures; the scheduler only orders and dispatches.
type UpdateFunc func(ctx context.Context, s Step)

// Registration describes one update function.
type Registration struct {
	Type  models.TypeID
	Name  string
	Phase Phase
	// Dependencies name the functions that must complete before this one
	// starts. They may be registered later, but must exist by the first step.
	Dependencies []string
	// Granularity is the maximum number of slots per async chunk. Zero uses
	// the scheduler default.
	Granularity int
	// Priority orders async functions within a tier, highest first.
	Priority int
	Fn       UpdateFunc
}

// Each yields the active instances of T within the range of s.
func Each[T any](s Step) iter.Seq2[models.ComponentHandle, *world.Instance[T]] {
	return func(yield func(models.ComponentHandle, *world.Instance[T]) bool) {
		p, ok := s.Pool.(*world.Pool[T])
		if !ok {
			return
		}
		for h, inst := range p.Range(s.Range.Lo, s.Range.Hi) {
			if !inst.Active {
				continue
			}
			if !yield(h, inst) {
				return
			}
		}
	}
}

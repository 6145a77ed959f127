// Package components provides the component types every world runtime
// registers: linear motion, linked chains and hit points.
package components

import (
	"fmt"

	"github.com/zeusync/worldcore/internal/core/models"
	"github.com/zeusync/worldcore/internal/core/system"
	"github.com/zeusync/worldcore/internal/core/world"
)

// Registered type names. They are written into snapshots and must not change.
const (
	VelocityType  = "core.velocity"
	ChainLinkType = "core.chain_link"
	HealthType    = "core.health"
)

// Update function names, usable as dependencies by other registrations.
const (
	UpdateVelocityDamp  = "velocity.damp"
	UpdateVelocityApply = "velocity.apply"
	UpdateChainPrune    = "chain.prune"
	UpdateHealthClamp   = "health.clamp"
)

// IDs holds the type ids assigned by Register.
type IDs struct {
	Velocity  models.TypeID
	ChainLink models.TypeID
	Health    models.TypeID
}

// Register adds the built-in component types to types.
func Register(types *world.TypeRegistry) (IDs, error) {
	var ids IDs
	var err error
	if ids.Velocity, err = world.RegisterComponent[Velocity](types, VelocityType, velocityVersion, VelocityCodec{}); err != nil {
		return IDs{}, fmt.Errorf("register %s: %w", VelocityType, err)
	}
	if ids.ChainLink, err = world.RegisterComponent[ChainLink](types, ChainLinkType, chainLinkVersion, ChainLinkCodec{}); err != nil {
		return IDs{}, fmt.Errorf("register %s: %w", ChainLinkType, err)
	}
	if ids.Health, err = world.RegisterComponent[Health](types, HealthType, healthVersion, HealthCodec{}); err != nil {
		return IDs{}, fmt.Errorf("register %s: %w", HealthType, err)
	}
	return ids, nil
}

// Updates returns the update functions of the built-in types. granularity
// applies to the async ones; zero leaves the scheduler default.
func Updates(ids IDs, granularity int) []system.Registration {
	return []system.Registration{
		{
			Type:        ids.Velocity,
			Name:        UpdateVelocityDamp,
			Phase:       system.PhaseAsync,
			Granularity: granularity,
			Fn:          dampVelocity,
		},
		{
			Type:         ids.Velocity,
			Name:         UpdateVelocityApply,
			Phase:        system.PhaseSync,
			Dependencies: []string{UpdateVelocityDamp},
			Fn:           applyVelocity,
		},
		{
			Type:  ids.ChainLink,
			Name:  UpdateChainPrune,
			Phase: system.PhaseSync,
			Fn:    pruneChain,
		},
		{
			Type:        ids.Health,
			Name:        UpdateHealthClamp,
			Phase:       system.PhaseAsync,
			Granularity: granularity,
			Priority:    1,
			Fn:          clampHealth,
		},
	}
}

// RegisterUpdates registers Updates(ids, granularity) with s.
func RegisterUpdates(s *system.Scheduler, ids IDs, granularity int) error {
	for _, reg := range Updates(ids, granularity) {
		if err := s.Register(reg); err != nil {
			return err
		}
	}
	return nil
}

package injector

import (
	"fmt"

	"github.com/google/wire"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/zeusync/worldcore/internal/core/components"
	"github.com/zeusync/worldcore/internal/core/config"
	"github.com/zeusync/worldcore/internal/core/events/bus"
	"github.com/zeusync/worldcore/internal/core/observability/log"
	"github.com/zeusync/worldcore/internal/core/observability/metrics"
	"github.com/zeusync/worldcore/internal/core/system"
	"github.com/zeusync/worldcore/internal/core/world"
)

// Runtime is everything a process needs to load and step one world.
type Runtime struct {
	Config     *config.Config
	Logger     log.Log
	Registry   *prometheus.Registry
	Metrics    *metrics.Metrics
	Types      *world.TypeRegistry
	Tags       *world.TagRegistry
	Components components.IDs
	Events     bus.EventBus
	World      *world.World
	Scheduler  *system.Scheduler
}

var ProviderSet = wire.NewSet(
	ProvideLogger,
	ProvideRegistry,
	ProvideMetrics,
	ProvideTypeRegistry,
	ProvideComponents,
	ProvideTagRegistry,
	ProvideEventBus,
	ProvideWorld,
	ProvideScheduler,
)

func ProvideLogger(cfg *config.Config) log.Log {
	return log.New(cfg.LogLevel())
}

func ProvideRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

func ProvideMetrics(reg *prometheus.Registry) (*metrics.Metrics, error) {
	return metrics.New(reg)
}

func ProvideTypeRegistry() *world.TypeRegistry {
	return world.NewTypeRegistry()
}

func ProvideComponents(types *world.TypeRegistry) (components.IDs, error) {
	return components.Register(types)
}

func ProvideTagRegistry() *world.TagRegistry {
	return world.NewTagRegistry()
}

func ProvideEventBus() bus.EventBus {
	return bus.New()
}

func ProvideWorld(cfg *config.Config, types *world.TypeRegistry, tags *world.TagRegistry, logger log.Log, m *metrics.Metrics, events bus.EventBus) *world.World {
	return world.New(types, tags,
		world.WithName(cfg.World.Name),
		world.WithEntityCapacity(cfg.World.EntityCapacity),
		world.WithPoolCapacity(cfg.World.PoolCapacity),
		world.WithLogger(logger),
		world.WithMetrics(m),
		world.WithEventBus(events),
	)
}

// ProvideScheduler registers the built-in update functions and checks the
// resulting plan, so a misconfigured dependency fails at startup.
func ProvideScheduler(cfg *config.Config, types *world.TypeRegistry, ids components.IDs, logger log.Log, m *metrics.Metrics) (*system.Scheduler, error) {
	s := system.New(types,
		system.WithLogger(logger),
		system.WithMetrics(m),
		system.WithWorkers(cfg.Scheduler.Workers),
		system.WithGranularity(cfg.Scheduler.Granularity),
	)
	if err := components.RegisterUpdates(s, ids, cfg.Scheduler.Granularity); err != nil {
		return nil, fmt.Errorf("scheduler: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("scheduler: %w", err)
	}
	return s, nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/pkg/profile"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zeusync/worldcore/internal/core/config"
	"github.com/zeusync/worldcore/internal/core/events/bus"
	"github.com/zeusync/worldcore/internal/core/models"
	"github.com/zeusync/worldcore/internal/core/observability/log"
	"github.com/zeusync/worldcore/internal/core/snapshot"
	"github.com/zeusync/worldcore/internal/core/world"
	"github.com/zeusync/worldcore/internal/injector"
)

type options struct {
	configPath string
	in         string
	out        string
	steps      int
	profile    string
}

var profileModes = map[string]func(*profile.Profile){
	"cpu":    profile.CPUProfile,
	"mem":    profile.MemProfile,
	"allocs": profile.MemProfileAllocs,
	"block":  profile.BlockProfile,
	"mutex":  profile.MutexProfile,
	"trace":  profile.TraceProfile,
}

func run(ctx context.Context, opts options) error {
	if opts.steps < 0 {
		return fmt.Errorf("-steps must not be negative, got %d", opts.steps)
	}
	var mode func(*profile.Profile)
	if opts.profile != "" {
		var ok bool
		if mode, ok = profileModes[opts.profile]; !ok {
			return fmt.Errorf("unknown profile mode %q", opts.profile)
		}
	}

	cfg := config.Default()
	if opts.configPath != "" {
		var err error
		if cfg, err = config.LoadFile(opts.configPath); err != nil {
			return err
		}
	}

	rt, err := injector.InitializeRuntime(cfg)
	if err != nil {
		return err
	}
	logger := rt.Logger.Named("worldtool")

	if cfg.Metrics.Listen != "" {
		shutdown, err := serveMetrics(cfg.Metrics.Listen, rt, logger)
		if err != nil {
			return err
		}
		defer shutdown()
	}

	sub, err := rt.Events.Subscribe(world.EventSnapshotInstantiated, func(e bus.Event) error {
		if ev, ok := e.Data().(snapshot.InstantiatedEvent); ok {
			logger.Info("snapshot instantiated",
				log.String("source", ev.Source),
				log.Int("roots", len(ev.Roots)),
				log.Int("children", len(ev.Children)),
			)
		}
		return nil
	})
	if err != nil {
		return err
	}
	defer func() { _ = rt.Events.Unsubscribe(sub) }()

	if opts.in != "" {
		if err := load(ctx, rt, opts.in); err != nil {
			return err
		}
	}

	if mode != nil {
		p := profile.Start(mode, profile.ProfilePath("."), profile.NoShutdownHook)
		defer p.Stop()
	}

	start := time.Now()
	for i := range opts.steps {
		if err := rt.Scheduler.RunStep(ctx, rt.World, cfg.Scheduler.Step); err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
	}
	logger.Info("simulation finished",
		log.Int("steps", opts.steps),
		log.Int("entities", rt.World.EntityCount(ctx)),
		log.Duration("elapsed", time.Since(start)),
	)

	if opts.out != "" {
		if err := save(ctx, rt, opts.out); err != nil {
			return err
		}
	}
	return nil
}

func load(ctx context.Context, rt *injector.Runtime, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	d, err := snapshot.ReadWorldDescription(ctx, f, snapshot.Options{
		Types:   rt.Types,
		Tags:    rt.Tags,
		Logger:  rt.Logger,
		Metrics: rt.Metrics,
		Source:  path,
	})
	if err != nil {
		return err
	}
	if unknown := d.Unknown(); rt.Config.Snapshot.Strict && len(unknown) > 0 {
		return fmt.Errorf("%s: %w: %s", path, snapshot.ErrUnknownComponentType, strings.Join(unknown, ", "))
	}
	_, _, err = d.Instantiate(ctx, rt.World, models.EntityHandle{})
	return err
}

func save(ctx context.Context, rt *injector.Runtime, path string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return snapshot.Write(ctx, f, rt.World, rt.World.Roots(ctx))
}

func serveMetrics(addr string, rt *injector.Runtime, logger log.Log) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(rt.Registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", log.Error(err))
		}
	}()
	logger.Info("serving metrics", log.String("addr", ln.Addr().String()))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}

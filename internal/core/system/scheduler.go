package system

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zeusync/worldcore/internal/core/observability/log"
	"github.com/zeusync/worldcore/internal/core/observability/metrics"
	"github.com/zeusync/worldcore/internal/core/world"
	"github.com/zeusync/worldcore/pkg/concurrent"
	"github.com/zeusync/worldcore/pkg/sequence"
)

const DefaultGranularity = 256

type function struct {
	Registration
	state atomic.Uint32
}

// progress tracks the outstanding chunks of one async function within one
// tier run.
type progress struct {
	f       *function
	pending atomic.Int64
	started time.Time
}

func (f *function) setState(s State) {
	f.state.Store(uint32(s))
}

// Scheduler orders the registered update functions into dependency tiers and
// runs them. Within a tier sync functions run first in declaration order,
// then the chunks of every async function are submitted by priority and the
// tier waits for all of them.
//
// Steps on different worlds may run concurrently. State then reports the
// most recent transition of either step.
type Scheduler struct {
	mu          sync.Mutex
	types       *world.TypeRegistry
	logger      log.Log
	metrics     *metrics.Metrics
	workers     int
	granularity int

	funcs  []*function
	byName map[string]*function
	tiers  [][]*function
	steps  uint64
}

type Option func(*Scheduler)

func WithLogger(l log.Log) Option {
	return func(s *Scheduler) { s.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// WithWorkers bounds the goroutines running async chunks. Zero or less uses
// GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(s *Scheduler) { s.workers = n }
}

// WithGranularity sets the chunk size used by async registrations that leave
// Granularity at zero.
func WithGranularity(n int) Option {
	return func(s *Scheduler) { s.granularity = n }
}

func New(types *world.TypeRegistry, opts ...Option) *Scheduler {
	s := &Scheduler{
		types:       types,
		granularity: DefaultGranularity,
		byName:      make(map[string]*function),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.NewNop()
	}
	s.logger = s.logger.Named("scheduler")
	if s.workers <= 0 {
		s.workers = runtime.GOMAXPROCS(0)
	}
	if s.granularity <= 0 {
		s.granularity = DefaultGranularity
	}
	return s
}

// Register adds an update function. Dependencies on names not registered yet
// are allowed; a registration that would close a dependency cycle is
// rejected with ErrCyclicDependency and leaves the scheduler unchanged.
func (s *Scheduler) Register(reg Registration) error {
	switch {
	case reg.Name == "":
		return ErrEmptyName
	case reg.Fn == nil:
		return fmt.Errorf("%q: %w", reg.Name, ErrNilFunc)
	case reg.Phase != PhaseSync && reg.Phase != PhaseAsync:
		return fmt.Errorf("%q: %w %d", reg.Name, ErrInvalidPhase, reg.Phase)
	}
	if _, ok := s.types.ByID(reg.Type); !ok {
		return fmt.Errorf("%q: %w %08x", reg.Name, ErrUnknownType, uint32(reg.Type))
	}
	if reg.Phase == PhaseAsync && reg.Granularity <= 0 {
		reg.Granularity = s.granularity
	}
	reg.Dependencies = slices.Clone(reg.Dependencies)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byName[reg.Name]; ok {
		return fmt.Errorf("%q: %w", reg.Name, ErrDuplicateName)
	}
	f := &function{Registration: reg}
	s.byName[reg.Name] = f
	if path := s.cycleFrom(f); path != nil {
		delete(s.byName, reg.Name)
		return fmt.Errorf("%w: %s", ErrCyclicDependency, strings.Join(path, " -> "))
	}
	s.funcs = append(s.funcs, f)
	s.tiers = nil

	s.logger.Debug("update function registered",
		log.String("name", reg.Name),
		log.Stringer("phase", reg.Phase),
		log.Int("dependencies", len(reg.Dependencies)),
	)
	return nil
}

// cycleFrom returns the dependency path leading from f back to f, if any.
// The graph without f is acyclic, so any new cycle passes through it.
func (s *Scheduler) cycleFrom(f *function) []string {
	visited := make(map[string]bool)
	var path []string
	var walk func(name string) bool
	walk = func(name string) bool {
		g, ok := s.byName[name]
		if !ok {
			return false
		}
		path = append(path, name)
		for _, dep := range g.Dependencies {
			if dep == f.Name {
				path = append(path, dep)
				return true
			}
			if visited[dep] {
				continue
			}
			visited[dep] = true
			if walk(dep) {
				return true
			}
		}
		path = path[:len(path)-1]
		return false
	}
	if walk(f.Name) {
		return path
	}
	return nil
}

// Validate checks that every dependency names a registered function and
// builds the execution plan.
func (s *Scheduler) Validate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.plan()
	return err
}

func (s *Scheduler) plan() ([][]*function, error) {
	if s.tiers != nil || len(s.funcs) == 0 {
		return s.tiers, nil
	}

	var errs []error
	for _, f := range s.funcs {
		for _, dep := range f.Dependencies {
			if _, ok := s.byName[dep]; !ok {
				errs = append(errs, fmt.Errorf("%q depends on %q: %w", f.Name, dep, ErrUnknownDependency))
			}
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	tierOf := make(map[*function]int, len(s.funcs))
	var tier func(f *function) int
	tier = func(f *function) int {
		if t, ok := tierOf[f]; ok {
			return t
		}
		t := 0
		for _, dep := range f.Dependencies {
			t = max(t, tier(s.byName[dep])+1)
		}
		tierOf[f] = t
		return t
	}

	var tiers [][]*function
	for _, f := range s.funcs {
		t := tier(f)
		for len(tiers) <= t {
			tiers = append(tiers, nil)
		}
		tiers[t] = append(tiers[t], f)
	}
	reset(tiers)

	s.tiers = tiers
	s.logger.Debug("execution plan rebuilt", log.Int("functions", len(s.funcs)), log.Int("tiers", len(tiers)))
	return tiers, nil
}

// Order returns the function names in the order a step starts them. Async
// functions of one tier run concurrently; their listed order is the
// submission order.
func (s *Scheduler) Order() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tiers, err := s.plan()
	if err != nil {
		return nil, err
	}
	var out []string
	for _, tier := range tiers {
		syncFns, asyncFns := split(tier)
		for _, f := range append(syncFns, asyncFns...) {
			out = append(out, f.Name)
		}
	}
	return out, nil
}

// Tiers returns the function names grouped by dependency tier.
func (s *Scheduler) Tiers() ([][]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tiers, err := s.plan()
	if err != nil {
		return nil, err
	}
	out := make([][]string, len(tiers))
	for i, tier := range tiers {
		for _, f := range tier {
			out[i] = append(out[i], f.Name)
		}
	}
	return out, nil
}

// State reports the state of the named function.
func (s *Scheduler) State(name string) (State, bool) {
	s.mu.Lock()
	f, ok := s.byName[name]
	s.mu.Unlock()
	if !ok {
		return 0, false
	}
	return State(f.state.Load()), true
}

// Steps returns the number of steps started so far.
func (s *Scheduler) Steps() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.steps
}

// split returns the sync functions of a tier in declaration order and the
// async ones in submission order.
func split(tier []*function) (syncFns, asyncFns []*function) {
	q := sequence.NewPriorityQueue[*function]()
	for _, f := range tier {
		if f.Phase == PhaseSync {
			syncFns = append(syncFns, f)
		} else {
			q.Enqueue(f, f.Priority)
		}
	}
	return syncFns, q.Drain()
}

// reset puts every function back to its state at the start of a step.
func reset(tiers [][]*function) {
	for _, tier := range tiers {
		for _, f := range tier {
			if len(f.Dependencies) > 0 {
				f.setState(StateRegistered)
			} else {
				f.setState(StateReady)
			}
		}
	}
}

// RunStep runs every registered function once against w, holding w's write
// gate for the whole step. Cancellation is checked between tiers and before
// each async chunk starts; a cancelled step returns the context error and
// leaves the remaining functions unrun.
func (s *Scheduler) RunStep(ctx context.Context, w *world.World, dt time.Duration) error {
	start := time.Now()

	s.mu.Lock()
	tiers, err := s.plan()
	index := s.steps
	if err == nil {
		s.steps++
	}
	s.mu.Unlock()
	if err != nil {
		return err
	}

	ctx, release := w.Gate().Lock(ctx)
	defer release()

	reset(tiers)

	for i, tier := range tiers {
		if err := ctx.Err(); err != nil {
			s.logger.Warn("step cancelled", log.Uint64("step", index), log.Int("tier", i), log.Error(err))
			return err
		}
		if err := s.runTier(ctx, w, tier, dt, index); err != nil {
			s.logger.Warn("step cancelled", log.Uint64("step", index), log.Int("tier", i), log.Error(err))
			return err
		}
	}

	s.metrics.ObserveStep(time.Since(start))
	s.metrics.SetLiveEntities(w.EntityCount(ctx))
	return nil
}

func (s *Scheduler) runTier(ctx context.Context, w *world.World, tier []*function, dt time.Duration, index uint64) error {
	for _, f := range tier {
		f.setState(StateReady)
	}
	syncFns, asyncFns := split(tier)

	for _, f := range syncFns {
		if err := ctx.Err(); err != nil {
			return err
		}
		pool, err := w.Pool(f.Type)
		if err != nil {
			return fmt.Errorf("%q: %w", f.Name, err)
		}
		f.setState(StateRunning)
		begin := time.Now()
		f.Fn(ctx, Step{
			World: w,
			Pool:  pool,
			Range: concurrent.Range{Lo: 0, Hi: pool.Cap()},
			Delta: dt,
			Index: index,
		})
		s.metrics.ObserveFunction(f.Name, PhaseSync.String(), time.Since(begin))
		f.setState(StateCompleted)
	}

	if len(asyncFns) == 0 {
		return nil
	}

	type chunk struct {
		p    *progress
		step Step
	}
	var chunks []chunk
	for _, f := range asyncFns {
		pool, err := w.Pool(f.Type)
		if err != nil {
			return fmt.Errorf("%q: %w", f.Name, err)
		}
		ranges := concurrent.Chunks(pool.Cap(), f.Granularity)
		f.setState(StateRunning)
		if len(ranges) == 0 {
			f.setState(StateCompleted)
			continue
		}
		p := &progress{f: f, started: time.Now()}
		p.pending.Store(int64(len(ranges)))
		s.metrics.AddChunks(f.Name, len(ranges))
		for _, r := range ranges {
			chunks = append(chunks, chunk{p: p, step: Step{World: w, Pool: pool, Range: r, Delta: dt, Index: index}})
		}
	}

	readCtx := w.Gate().ReadOnly(ctx)
	return concurrent.Run(readCtx, s.workers, func(yield func(concurrent.Task) bool) {
		for _, c := range chunks {
			task := func(ctx context.Context) error {
				f := c.p.f
				f.Fn(ctx, c.step)
				if c.p.pending.Add(-1) == 0 {
					s.metrics.ObserveFunction(f.Name, PhaseAsync.String(), time.Since(c.p.started))
					f.setState(StateCompleted)
				}
				return nil
			}
			if !yield(task) {
				return
			}
		}
	})
}

// Package runner owns the wall-clock side of a simulation: it advances a
// kernel.Sim on a shared ticker in a single background goroutine and hands
// read-only snapshots to the HTTP/WebSocket layer. The kernel itself stays
// strictly single-threaded; the runner's mutex only arbitrates
// between the one stepping goroutine and concurrent readers.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/antigravity/trafficsim/internal/events"
	"github.com/antigravity/trafficsim/internal/kernel"
	"github.com/antigravity/trafficsim/internal/mapmodel"
	"github.com/antigravity/trafficsim/internal/simtypes"
)

// Config drives the runner's pacing.
type Config struct {
	// UpdateInterval is the wall-clock duration between kernel steps. It has
	// no bearing on simulated time, which always advances by exactly one
	// TIMESTEP per step.
	UpdateInterval time.Duration
	// MaxTicks stops the run after this many steps; 0 means unbounded.
	MaxTicks int64
	// StopWhenDone ends the run once the kernel reports IsDone.
	StopWhenDone bool
	// RecentEvents caps how many trailing events snapshots retain.
	RecentEvents int
}

const (
	defaultInterval     = 100 * time.Millisecond
	defaultRecentEvents = 512
)

// TickSnapshot is what readers see: the tick just completed, its stats
// digest, and the trailing event window.
type TickSnapshot struct {
	Tick   simtypes.Tick
	Stats  kernel.SimStats
	Events []events.Event
	Done   bool
}

// Manager coordinates stepping and concurrent reads.
type Manager struct {
	mu     sync.RWMutex
	sim    *kernel.Sim
	m      *mapmodel.Map
	recent []events.Event
	fatal  error

	cfg    Config
	logger *slog.Logger
	ticker *time.Ticker

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	started bool
}

// NewManager wraps sim with pacing defaults filled in.
func NewManager(sim *kernel.Sim, m *mapmodel.Map, cfg Config) *Manager {
	if cfg.UpdateInterval <= 0 {
		cfg.UpdateInterval = defaultInterval
	}
	if cfg.RecentEvents <= 0 {
		cfg.RecentEvents = defaultRecentEvents
	}
	return &Manager{
		sim:    sim,
		m:      m,
		cfg:    cfg,
		logger: slog.Default(),
	}
}

// WithLogger configures structured logging.
func (r *Manager) WithLogger(logger *slog.Logger) *Manager {
	if logger != nil {
		r.logger = logger
	}
	return r
}

// Start begins ticking. Starting twice is an error.
func (r *Manager) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return fmt.Errorf("runner: already started")
	}
	r.started = true
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.ticker = time.NewTicker(r.cfg.UpdateInterval)

	r.wg.Add(1)
	go r.run()
	return nil
}

// Stop cancels the run and waits for the stepping goroutine to exit.
func (r *Manager) Stop() {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return
	}
	cancel := r.cancel
	ticker := r.ticker
	r.started = false
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if ticker != nil {
		ticker.Stop()
	}
	r.wg.Wait()
}

// Started reports whether the runner is ticking.
func (r *Manager) Started() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.started
}

// Err returns the fatal kernel error that ended the run, if any.
func (r *Manager) Err() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fatal
}

func (r *Manager) run() {
	defer r.wg.Done()
	var ticks int64
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-r.ticker.C:
			if !r.step() {
				return
			}
			ticks++
			if r.cfg.MaxTicks > 0 && ticks >= r.cfg.MaxTicks {
				r.logger.Info("runner: reached tick limit", "ticks", ticks)
				return
			}
		}
	}
}

// step advances the kernel once; false ends the run.
func (r *Manager) step() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	ev, err := r.sim.Step(r.m)
	if err != nil {
		r.sim.DumpBeforeAbort()
		r.fatal = err
		r.logger.Error("runner: fatal step error, halting", "err", err)
		r.cancel()
		return false
	}
	r.recent = append(r.recent, ev...)
	if overflow := len(r.recent) - r.cfg.RecentEvents; overflow > 0 {
		r.recent = append([]events.Event(nil), r.recent[overflow:]...)
	}
	if r.cfg.StopWhenDone && r.sim.IsDone() {
		r.logger.Info("runner: simulation done", "tick", r.sim.Now())
		r.cancel()
		return false
	}
	return true
}

// Snapshot returns the latest tick's view for API consumers.
func (r *Manager) Snapshot() TickSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return TickSnapshot{
		Tick:   r.sim.Now(),
		Stats:  r.sim.Stats(),
		Events: append([]events.Event(nil), r.recent...),
		Done:   r.sim.IsDone(),
	}
}

// Map exposes the road network the run is stepping over. The map is only
// mutated between steps via the kernel's edit entrypoints, so reads are safe.
func (r *Manager) Map() *mapmodel.Map { return r.m }

// Query runs fn against the Sim under the read lock, for handlers serving
// tooltip/path/trip queries without racing the stepper.
func (r *Manager) Query(fn func(*kernel.Sim)) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn(r.sim)
}

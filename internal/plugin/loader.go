package plugin

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	termerr "github.com/defiterm/defiterm/internal/errors"
	"github.com/defiterm/defiterm/internal/fiber"
	"github.com/defiterm/defiterm/internal/registry"
)

// State is the lifecycle position of a plugin id.
type State string

const (
	StateUnloaded State = "unloaded"
	StateLoading  State = "loading"
	StateLoaded   State = "loaded"
	StateFailed   State = "failed"
)

// Entry records one load attempt. Failed loads are recorded too, so repeated
// attempts and health checks have something to inspect.
type Entry struct {
	Plugin   Plugin
	Fiber    *fiber.Fiber
	Config   Config
	State    State
	Loaded   bool
	Err      error
	LoadedAt time.Time
}

// Loader registers fibers with the command registry while preserving its
// invariants. Lifecycle calls for the same plugin id must be serialized by the
// caller; the loader's lock only protects its own bookkeeping.
type Loader struct {
	mu       sync.Mutex
	registry *registry.Registry
	entries  map[string]*Entry
	logger   *zap.Logger
	now      func() time.Time
}

func NewLoader(reg *registry.Registry, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{
		registry: reg,
		entries:  map[string]*Entry{},
		logger:   logger,
		now:      time.Now,
	}
}

// Load runs the full load sequence: resolve effective config, validate it,
// initialize the plugin, check the fiber identity invariant and register the
// fiber. Any failure is recorded against the plugin id and returned.
func (l *Loader) Load(ctx context.Context, p Plugin, cfg *Config) error {
	l.mu.Lock()
	if entry, ok := l.entries[p.ID()]; ok && entry.Loaded {
		l.mu.Unlock()
		// Rejecting up front keeps the loaded entry and its registered fiber
		// intact; a later Unload must still be able to find them.
		return termerr.New(termerr.CodeInternal, "plugin "+p.ID()+" is already loaded; unload it first")
	}
	l.mu.Unlock()

	effective := l.effectiveConfig(p, cfg)
	l.setState(p, effective, StateLoading)

	if !effective.Enabled {
		return l.fail(p, effective, termerr.New(termerr.CodeDisabled, "plugin "+p.ID()+" is disabled by configuration"))
	}
	if validator, ok := p.(ConfigValidator); ok {
		if err := validator.ValidateConfig(effective); err != nil {
			if _, typed := termerr.As(err); !typed {
				err = termerr.Wrap(termerr.CodeInvalidConfig, "validate config for "+p.ID(), err)
			}
			return l.fail(p, effective, err)
		}
	}

	built, err := p.Initialize(ctx, effective)
	if err != nil {
		if _, typed := termerr.As(err); !typed {
			err = termerr.Wrap(termerr.CodeInternal, "initialize plugin "+p.ID(), err)
		}
		return l.fail(p, effective, err)
	}

	// The invariant that keeps the fibered structure intact: a plugin may only
	// ever introduce the fiber it declared. Violations are fatal for this
	// load, reported and never retried here.
	checked, err := fiber.FromPlugin(p.ID(), built)
	if err != nil {
		return l.fail(p, effective, err)
	}

	if err := l.registry.RegisterFiber(checked); err != nil {
		return l.fail(p, effective, err)
	}

	l.mu.Lock()
	l.entries[p.ID()] = &Entry{
		Plugin:   p,
		Fiber:    checked,
		Config:   effective,
		State:    StateLoaded,
		Loaded:   true,
		LoadedAt: l.now().UTC(),
	}
	l.mu.Unlock()
	l.logger.Info("plugin loaded",
		zap.String("protocol", p.ID()),
		zap.Int("commands", checked.Len()))
	return nil
}

// Unload runs the plugin's optional cleanup, removes its fiber from the
// resolvable set and drops the registry entry.
func (l *Loader) Unload(ctx context.Context, pluginID string) error {
	l.mu.Lock()
	entry, ok := l.entries[pluginID]
	l.mu.Unlock()
	if !ok || !entry.Loaded {
		return termerr.New(termerr.CodeNotFound, "plugin "+pluginID+" is not loaded")
	}

	if cleaner, ok := entry.Plugin.(CleanupPlugin); ok {
		if err := cleaner.Cleanup(ctx); err != nil {
			l.logger.Warn("plugin cleanup failed",
				zap.String("protocol", pluginID),
				zap.Error(err))
		}
	}

	l.registry.RemoveFiber(pluginID)
	l.mu.Lock()
	delete(l.entries, pluginID)
	l.mu.Unlock()
	l.logger.Info("plugin unloaded", zap.String("protocol", pluginID))
	return nil
}

// Reload composes unload and load, reusing the entry's plugin and config.
func (l *Loader) Reload(ctx context.Context, pluginID string) error {
	l.mu.Lock()
	entry, ok := l.entries[pluginID]
	l.mu.Unlock()
	if !ok {
		return termerr.New(termerr.CodeNotFound, "plugin "+pluginID+" has no registry entry")
	}
	p, cfg := entry.Plugin, entry.Config
	if err := l.Unload(ctx, pluginID); err != nil {
		return err
	}
	return l.Load(ctx, p, &cfg)
}

// Entries returns the recorded load attempts ordered by plugin id.
func (l *Loader) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	ids := make([]string, 0, len(l.entries))
	for id := range l.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]Entry, 0, len(ids))
	for _, id := range ids {
		out = append(out, *l.entries[id])
	}
	return out
}

// Entry returns the recorded load attempt for a plugin id.
func (l *Loader) Entry(pluginID string) (Entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.entries[pluginID]
	if !ok {
		return Entry{}, false
	}
	return *entry, true
}

// HealthCheckAll fans out the loaded plugins' probes concurrently and joins
// all results. A failing probe is captured as false, never propagated; a
// plugin without a probe is assumed healthy.
func (l *Loader) HealthCheckAll(ctx context.Context) map[string]bool {
	l.mu.Lock()
	loaded := make(map[string]Plugin, len(l.entries))
	for id, entry := range l.entries {
		if entry.Loaded {
			loaded[id] = entry.Plugin
		}
	}
	l.mu.Unlock()

	results := make(map[string]bool, len(loaded))
	var resultsMu sync.Mutex
	var wg sync.WaitGroup
	for id, p := range loaded {
		checker, ok := p.(HealthChecker)
		if !ok {
			resultsMu.Lock()
			results[id] = true
			resultsMu.Unlock()
			continue
		}
		wg.Add(1)
		go func(id string, checker HealthChecker) {
			defer wg.Done()
			healthy := checker.HealthCheck(ctx) == nil
			resultsMu.Lock()
			results[id] = healthy
			resultsMu.Unlock()
		}(id, checker)
	}
	wg.Wait()
	return results
}

func (l *Loader) effectiveConfig(p Plugin, cfg *Config) Config {
	if cfg != nil {
		return *cfg
	}
	if defaulter, ok := p.(ConfigDefaulter); ok {
		return defaulter.DefaultConfig()
	}
	return Config{Enabled: true}
}

func (l *Loader) setState(p Plugin, cfg Config, state State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[p.ID()] = &Entry{Plugin: p, Config: cfg, State: state}
}

func (l *Loader) fail(p Plugin, cfg Config, err error) error {
	l.mu.Lock()
	l.entries[p.ID()] = &Entry{
		Plugin: p,
		Config: cfg,
		State:  StateFailed,
		Err:    err,
	}
	l.mu.Unlock()
	l.logger.Error("plugin load failed",
		zap.String("protocol", p.ID()),
		zap.Error(err))
	return err
}

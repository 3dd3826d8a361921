// Package registry holds named modules and dispatches execution by name,
// ordered sequence, parallel fan-out, or priority order, tracking
// per-module statistics and enforcing declared dependencies. Every
// dispatch returns a module.Result: registry-level misuse (unknown
// name, missing dependency) is reported the same non-throwing way as
// module-level failure, so callers handle exactly one result shape.
//
// The dependency check verifies that each declared dependency is
// currently registered, not that it ever executed successfully; a
// registered-but-never-run dependency passes.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"uplift/internal/cache"
	"uplift/internal/logging"
	"uplift/internal/module"
)

// Options tunes a single dispatch.
type Options struct {
	// Timeout bounds each module execution. Zero means no explicit
	// budget. The deadline propagates into the module's ctx so blocking
	// work is cancelled cooperatively.
	Timeout time.Duration
	// ContinueOnError keeps ExecuteSequence running past failures while
	// preserving strict ordering.
	ContinueOnError bool
}

// ModuleStats is a snapshot of one registered module's execution history.
type ModuleStats struct {
	Name            string
	RegisteredAt    time.Time
	ExecutionCount  int64
	LastExecutedAt  time.Time
	AverageDuration time.Duration
	SuccessRate     float64
}

type entry struct {
	exec         *module.Executor
	registeredAt time.Time

	executionCount int64
	successCount   int64
	lastExecutedAt time.Time
	totalDuration  time.Duration
}

// Registry is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	cache   *cache.Cache
}

// New builds an empty registry. The cache is handed to each registered
// module's executor; it may be nil.
func New(c *cache.Cache) *Registry {
	return &Registry{entries: make(map[string]*entry), cache: c}
}

// Register adds a module under its descriptor name. Re-registering an
// existing name replaces the previous module with a warning, not an
// error.
func (r *Registry) Register(m module.Module) {
	desc := m.Descriptor()
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[desc.Name]; exists {
		logging.RegistryWarn("module %q re-registered, replacing previous instance", desc.Name)
	}
	r.entries[desc.Name] = &entry{
		exec:         module.NewExecutor(m, r.cache),
		registeredAt: time.Now(),
	}
	logging.RegistryDebug("registered module %q v%s (priority %d)", desc.Name, desc.Version, desc.EffectivePriority())
}

// Unregister removes a module, closing its resources. Reports whether
// the name was registered.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	ent, ok := r.entries[name]
	delete(r.entries, name)
	r.mu.Unlock()
	if !ok {
		return false
	}
	if err := ent.exec.Close(); err != nil {
		logging.RegistryWarn("closing module %q: %v", name, err)
	}
	return true
}

// Get returns the registered module by name.
func (r *Registry) Get(name string) (module.Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ent, ok := r.entries[name]
	if !ok {
		return nil, false
	}
	return ent.exec.Module(), true
}

// Has reports whether a module is registered under name.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[name]
	return ok
}

// List returns the descriptors of all registered modules, sorted by name.
func (r *Registry) List() []module.Descriptor {
	r.mu.RLock()
	descs := make([]module.Descriptor, 0, len(r.entries))
	for _, ent := range r.entries {
		descs = append(descs, ent.exec.Metadata())
	}
	r.mu.RUnlock()
	sort.Slice(descs, func(i, j int) bool { return descs[i].Name < descs[j].Name })
	return descs
}

// Execute runs the named module. An unknown name yields a configuration
// failure; a declared dependency that is not registered yields a
// dependency failure without invoking the module. executionCount and
// lastExecutedAt are updated before invocation, the duration and success
// aggregates after.
func (r *Registry) Execute(ctx context.Context, name string, input any, opts Options) module.Result {
	start := time.Now()

	r.mu.Lock()
	ent, ok := r.entries[name]
	if !ok {
		r.mu.Unlock()
		return module.Fail(module.NewError(module.KindConfiguration, name, "module not registered"), time.Since(start))
	}
	for _, dep := range ent.exec.Metadata().Dependencies {
		if _, ok := r.entries[dep]; !ok {
			r.mu.Unlock()
			return module.Fail(module.WrapError(module.KindDependency, name,
				fmt.Sprintf("dependency %q is not registered", dep), nil), time.Since(start))
		}
	}
	ent.executionCount++
	ent.lastExecutedAt = start
	r.mu.Unlock()

	res := r.invoke(ctx, ent.exec, input, opts)

	r.mu.Lock()
	if res.Success {
		ent.successCount++
	}
	ent.totalDuration += res.Meta.Duration
	r.mu.Unlock()

	logging.RegistryDebug("executed %q success=%t in %v", name, res.Success, res.Meta.Duration)
	return res
}

// invoke applies the per-call budget. The module observes the deadline
// through its ctx; when the budget wins the race the call is recorded as
// a timeout while the late finisher delivers into a buffered channel and
// exits without leaking.
func (r *Registry) invoke(ctx context.Context, exec *module.Executor, input any, opts Options) module.Result {
	if opts.Timeout <= 0 {
		return exec.Execute(ctx, input)
	}

	dctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	done := make(chan module.Result, 1)
	go func() { done <- exec.Execute(dctx, input) }()

	select {
	case res := <-done:
		return res
	case <-dctx.Done():
		name := exec.Metadata().Name
		return module.Fail(module.NewError(module.KindTimeout, name,
			fmt.Sprintf("execution exceeded %v budget", opts.Timeout)), opts.Timeout)
	}
}

// ExecuteSequence runs the named modules strictly in order, collecting
// each result. It stops after the first failure unless
// opts.ContinueOnError is set.
func (r *Registry) ExecuteSequence(ctx context.Context, names []string, input any, opts Options) []module.Result {
	results := make([]module.Result, 0, len(names))
	for _, name := range names {
		res := r.Execute(ctx, name, input, opts)
		results = append(results, res)
		if !res.Success && !opts.ContinueOnError {
			break
		}
	}
	return results
}

// ExecuteParallel fans out all named modules concurrently and joins the
// results in input order. Every name contributes exactly one result
// regardless of how many individually failed.
func (r *Registry) ExecuteParallel(ctx context.Context, names []string, input any, opts Options) []module.Result {
	results := make([]module.Result, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		i, name := i, name
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = r.Execute(ctx, name, input, opts)
		}()
	}
	wg.Wait()
	return results
}

// ExecuteByPriority runs every enabled module ordered by ascending
// effective priority and delegates to ExecuteSequence. Ties keep name
// order: candidates are pre-sorted by name so the stable priority sort
// is deterministic across runs.
func (r *Registry) ExecuteByPriority(ctx context.Context, input any, opts Options) []module.Result {
	type candidate struct {
		name     string
		priority int
	}

	r.mu.RLock()
	cands := make([]candidate, 0, len(r.entries))
	for name, ent := range r.entries {
		desc := ent.exec.Metadata()
		if !desc.Enabled {
			continue
		}
		cands = append(cands, candidate{name: name, priority: desc.EffectivePriority()})
	}
	r.mu.RUnlock()

	sort.Slice(cands, func(i, j int) bool { return cands[i].name < cands[j].name })
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].priority < cands[j].priority })

	names := make([]string, len(cands))
	for i, c := range cands {
		names[i] = c.name
	}
	return r.ExecuteSequence(ctx, names, input, opts)
}

// GetStats returns a per-module snapshot sorted by name. AverageDuration
// is a true running mean over completed executions.
func (r *Registry) GetStats() []ModuleStats {
	r.mu.RLock()
	stats := make([]ModuleStats, 0, len(r.entries))
	for name, ent := range r.entries {
		s := ModuleStats{
			Name:           name,
			RegisteredAt:   ent.registeredAt,
			ExecutionCount: ent.executionCount,
			LastExecutedAt: ent.lastExecutedAt,
		}
		if ent.executionCount > 0 {
			s.AverageDuration = ent.totalDuration / time.Duration(ent.executionCount)
			s.SuccessRate = float64(ent.successCount) / float64(ent.executionCount)
		}
		stats = append(stats, s)
	}
	r.mu.RUnlock()
	sort.Slice(stats, func(i, j int) bool { return stats[i].Name < stats[j].Name })
	return stats
}

// Close unregisters every module, closing each one's resources.
func (r *Registry) Close() {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*entry)
	r.mu.Unlock()

	for name, ent := range entries {
		if err := ent.exec.Close(); err != nil {
			logging.RegistryWarn("closing module %q: %v", name, err)
		}
	}
}

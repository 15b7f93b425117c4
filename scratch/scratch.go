// Package scratch implements the "scoped acquisition" cleanup idiom called
// for in spec §9: intermediate files register a cleanup callback at
// creation time, and the registry runs every remaining callback on any
// exit path, replacing the source's repeated try/except/cleanup/raise
// blocks (see spt_ecmwf_autorapid_process/rapid_process.py).
package scratch

import "sync"

// Registry accumulates cleanup callbacks for intermediate artifacts
// produced while a unit of work (typically one ensemble member) is in
// flight. Call Forget to drop a callback once its artifact is no longer
// "intermediate" (e.g. the final Qout has been moved into place).
type Registry struct {
	mu    sync.Mutex
	funcs []func()
	paths []string
}

// New returns an empty registry.
func New() *Registry { return &Registry{} }

// Add registers a cleanup callback for the artifact at path. Cleanup runs
// in last-in-first-out order from CleanupAll.
func (r *Registry) Add(path string, cleanup func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs = append(r.funcs, cleanup)
	r.paths = append(r.paths, path)
}

// Forget removes the most recently registered callback for path, if any,
// without running it — used once an artifact has graduated from
// "intermediate" to "final".
func (r *Registry) Forget(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.paths) - 1; i >= 0; i-- {
		if r.paths[i] == path {
			r.funcs = append(r.funcs[:i], r.funcs[i+1:]...)
			r.paths = append(r.paths[:i], r.paths[i+1:]...)
			return
		}
	}
}

// CleanupAll runs every remaining registered callback, in reverse
// registration order, and empties the registry. Safe to call multiple
// times; a no-op once empty. Intended to be the sole entry in a deferred
// call at the top of the unit of work this registry scopes.
func (r *Registry) CleanupAll() {
	r.mu.Lock()
	funcs := r.funcs
	r.funcs = nil
	r.paths = nil
	r.mu.Unlock()
	for i := len(funcs) - 1; i >= 0; i-- {
		funcs[i]()
	}
}

// Paths returns the artifact paths currently registered, for logging.
func (r *Registry) Paths() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.paths))
	copy(out, r.paths)
	return out
}

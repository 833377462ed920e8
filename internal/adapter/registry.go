package adapter

import (
	"fmt"
	"sync"
)

// Registry holds adapters keyed by AdapterType, and the Go-idiomatic
// replacement for the worker's dynamic "registerAdapters" (see
// SPEC_FULL.md: Go has no require()-style dynamic module loading without
// cgo/plugin fragility, so named modules resolve against this static,
// compile-time-populated registry instead).
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
	modules  map[string][]Adapter // module name -> adapters it contributes
}

// NewRegistry returns an empty registry. Callers typically call
// RegisterBuiltins to populate it with the reference adapters.
func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[string]Adapter),
		modules:  make(map[string][]Adapter),
	}
}

// Register adds a single adapter, keyed by its AdapterType.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.AdapterType()] = a
}

// RegisterModule registers a named group of adapters atomically, the
// static-registry analogue of the worker's registerAdapters command.
func (r *Registry) RegisterModule(name string, adapters []Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modules[name] = adapters
	for _, a := range adapters {
		r.adapters[a.AdapterType()] = a
	}
}

// Get looks up an adapter by type.
func (r *Registry) Get(adapterType string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[adapterType]
	return a, ok
}

// HasModule reports whether a named module was registered.
func (r *Registry) HasModule(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.modules[name]
	return ok
}

// Types lists every registered adapter type, for diagnostics.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.adapters))
	for t := range r.adapters {
		out = append(out, t)
	}
	return out
}

// RegisterBuiltins adds the reference adapters shipped with this module.
func (r *Registry) RegisterBuiltins() {
	r.RegisterModule("builtin", []Adapter{
		NewShellAdapter(),
		NewClaudeCodeAdapter(),
		NewGeminiCLIAdapter(),
		NewCodexAdapter(),
		NewAiderAdapter(),
	})
}

// Describe is a small helper for error messages.
func Describe(a Adapter) string {
	return fmt.Sprintf("%s (%s)", a.DisplayName(), a.AdapterType())
}

package bridge

import (
	"fmt"
	"sort"
	"sync"
)

// Discovery source names
const (
	SourceNewArch = "new-arch"
	SourceLegacy  = "legacy"
)

// Registry resolves a module name to a native module handle
type Registry interface {
	Lookup(name string) (NativeModule, bool)
}

// ModuleRegistry is a concurrent name to NativeModule map
type ModuleRegistry struct {
	modules sync.Map
}

// Package registries probed by the default discovery strategies
var (
	NewArch = NewRegistry()
	Legacy  = NewRegistry()
)

// NewRegistry creates an empty module registry
func NewRegistry() *ModuleRegistry {
	return &ModuleRegistry{}
}

// Register adds or replaces a module under name
func (r *ModuleRegistry) Register(name string, m NativeModule) error {
	if name == "" {
		return fmt.Errorf("module name cannot be empty")
	}
	if m == nil {
		return fmt.Errorf("module %s: nil handle", name)
	}

	r.modules.Store(name, m)
	return nil
}

// Unregister removes a module
func (r *ModuleRegistry) Unregister(name string) {
	r.modules.Delete(name)
}

// Lookup retrieves a module by name
func (r *ModuleRegistry) Lookup(name string) (NativeModule, bool) {
	val, ok := r.modules.Load(name)
	if !ok {
		return nil, false
	}
	return val.(NativeModule), true
}

// Names returns the registered module names, sorted
func (r *ModuleRegistry) Names() []string {
	var names []string
	r.modules.Range(func(key, _ interface{}) bool {
		names = append(names, key.(string))
		return true
	})
	sort.Strings(names)
	return names
}

// Strategy is one discovery step
type Strategy struct {
	Name   string
	Lookup func(name string) (NativeModule, bool)
}

// RegistryStrategy adapts a registry to a discovery step
func RegistryStrategy(source string, reg Registry) Strategy {
	return Strategy{Name: source, Lookup: reg.Lookup}
}

// DefaultStrategies probes the new-architecture registry, then the legacy one
func DefaultStrategies() []Strategy {
	return []Strategy{
		RegistryStrategy(SourceNewArch, NewArch),
		RegistryStrategy(SourceLegacy, Legacy),
	}
}

// Discovery is the outcome of running discovery strategies
type Discovery struct {
	Found  bool
	Source string
	Module NativeModule
	Tried  []string
	// Faults lists strategies whose lookup panicked
	Faults []string
}

// Discover runs strategies in order and returns the first hit. Running out
// of strategies is reported through Found, never as an error.
func Discover(strategies []Strategy, name string) Discovery {
	var d Discovery
	for _, s := range strategies {
		d.Tried = append(d.Tried, s.Name)

		m, ok, faulted := lookup(s, name)
		if faulted {
			d.Faults = append(d.Faults, s.Name)
			continue
		}
		if ok && m != nil {
			d.Found = true
			d.Source = s.Name
			d.Module = m
			return d
		}
	}
	return d
}

func lookup(s Strategy, name string) (m NativeModule, ok bool, faulted bool) {
	if s.Lookup == nil {
		return nil, false, false
	}
	defer func() {
		if r := recover(); r != nil {
			m, ok, faulted = nil, false, true
		}
	}()
	m, ok = s.Lookup(name)
	return m, ok, false
}

// Package plugin holds the extraction module contract, the static module
// registry and the orchestrator that runs modules over one dump.
package plugin

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/dump-sleuth/internal/dump"
	"github.com/dump-sleuth/pkg/model"
)

// Output is what a module produces on success.
type Output struct {
	Data      model.Value
	Artifacts []model.ArtifactRecord
}

// Module is one independently pluggable extraction unit.
//
// Analyze must treat the accessor and extraction context as read-only and
// keep no state shared with other modules. Long scans should return
// promptly once ctx is cancelled.
type Module interface {
	// Name is the unique module name used as the result key.
	Name() string
	// Priority orders sequential runs, highest first.
	Priority() int
	// SupportedFormats lists the formats the module accepts. An empty list
	// accepts every format.
	SupportedFormats() []model.DumpFormat
	// Analyze scans the dump.
	Analyze(ctx context.Context, acc dump.Accessor, ec *model.ExtractionContext, meta model.DumpMetadata) (*Output, error)
}

// Supports reports whether m accepts format.
func Supports(m Module, format model.DumpFormat) bool {
	formats := m.SupportedFormats()
	if len(formats) == 0 {
		return true
	}
	for _, f := range formats {
		if f == format {
			return true
		}
	}
	return false
}

// ErrDuplicateModule is returned when registering a name twice.
var ErrDuplicateModule = errors.New("module already registered")

// ErrUnknownModule is returned when selecting a name that is not registered.
var ErrUnknownModule = errors.New("unknown module")

// Registry is the static set of modules known to the program.
type Registry struct {
	modules map[string]Module
}

// NewRegistry creates a registry holding modules.
func NewRegistry(modules ...Module) (*Registry, error) {
	r := &Registry{modules: make(map[string]Module)}
	for _, m := range modules {
		if err := r.Register(m); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a module. Names must be unique.
func (r *Registry) Register(m Module) error {
	name := m.Name()
	if _, exists := r.modules[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateModule, name)
	}
	r.modules[name] = m
	return nil
}

// Get returns the module registered under name.
func (r *Registry) Get(name string) (Module, bool) {
	m, ok := r.modules[name]
	return m, ok
}

// Len returns the number of registered modules.
func (r *Registry) Len() int { return len(r.modules) }

// Ordered returns all modules by descending priority, ties broken by name.
func (r *Registry) Ordered() []Module {
	out := make([]Module, 0, len(r.modules))
	for _, m := range r.modules {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority() != out[j].Priority() {
			return out[i].Priority() > out[j].Priority()
		}
		return out[i].Name() < out[j].Name()
	})
	return out
}

// Select returns a registry restricted to names. Every name must exist.
func (r *Registry) Select(names []string) (*Registry, error) {
	sub := &Registry{modules: make(map[string]Module, len(names))}
	for _, name := range names {
		m, ok := r.modules[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownModule, name)
		}
		if err := sub.Register(m); err != nil {
			return nil, err
		}
	}
	return sub, nil
}

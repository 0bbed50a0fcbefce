// Package registry defines the static catalog of tools the assistant
// can call against Home Assistant. The catalog is immutable after
// construction; intent classification narrows it to a focused subset
// per request, and the executor consults the per-tool flags for write
// guarding, confirmation, and output truncation.
package registry

import (
	"fmt"
	"sort"
)

// Definition describes a single callable tool.
type Definition struct {
	Name        string
	Description string
	// Parameters is a JSON-schema object shape, provider-neutral.
	Parameters map[string]any

	// Write marks tools that mutate platform state. Rejected in
	// read-only sessions.
	Write bool
	// Destructive marks irreversible removals. These additionally
	// require user confirmation before execution.
	Destructive bool
	// AutoStop marks creation/update tools whose success should end
	// the tool loop after one narration round.
	AutoStop bool
	// LongOutput grants the larger truncation budget for tools whose
	// results are whole files or full config documents.
	LongOutput bool
}

// Registry holds the tool catalog.
type Registry struct {
	defs  map[string]*Definition
	order []string
}

// New builds the full catalog.
func New() *Registry {
	r := &Registry{defs: make(map[string]*Definition)}
	for _, d := range catalog() {
		r.register(d)
	}
	return r
}

func (r *Registry) register(d *Definition) {
	if _, dup := r.defs[d.Name]; dup {
		panic(fmt.Sprintf("registry: duplicate tool %q", d.Name))
	}
	r.defs[d.Name] = d
	r.order = append(r.order, d.Name)
}

// List returns the full catalog in registration order.
func (r *Registry) List() []*Definition {
	out := make([]*Definition, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.defs[name])
	}
	return out
}

// Get returns a definition by name, or nil when absent.
func (r *Registry) Get(name string) *Definition {
	return r.defs[name]
}

// Subset returns the named definitions in the given order. An unknown
// name is a programmer error — intent tables and the catalog are both
// static — so it panics rather than silently shrinking the toolset.
func (r *Registry) Subset(names []string) []*Definition {
	out := make([]*Definition, 0, len(names))
	for _, name := range names {
		d, ok := r.defs[name]
		if !ok {
			panic(fmt.Sprintf("registry: unknown tool %q in subset", name))
		}
		out = append(out, d)
	}
	return out
}

// Names returns all tool names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.defs))
	for name := range r.defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Schemas renders definitions in the OpenAI function envelope. Provider
// adapters convert from this shape at their wire boundary.
func Schemas(defs []*Definition) []map[string]any {
	out := make([]map[string]any, 0, len(defs))
	for _, d := range defs {
		params := d.Parameters
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		out = append(out, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        d.Name,
				"description": d.Description,
				"parameters":  params,
			},
		})
	}
	return out
}

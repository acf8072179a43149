package provider

import (
	"fmt"
	"sort"
)

// Registry holds the configured backends by name. Selection happens once at
// startup; the pipeline only ever sees the Extractor it was handed.
type Registry struct {
	extractors map[string]Extractor
}

func NewRegistry(extractors ...Extractor) *Registry {
	m := make(map[string]Extractor, len(extractors))
	for _, e := range extractors {
		m[e.Name()] = e
	}
	return &Registry{extractors: m}
}

// Select returns the backend registered under name.
func (r *Registry) Select(name string) (Extractor, error) {
	e, ok := r.extractors[name]
	if !ok {
		return nil, fmt.Errorf("unknown AI provider %q (have %v)", name, r.Names())
	}
	return e, nil
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.extractors))
	for n := range r.extractors {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

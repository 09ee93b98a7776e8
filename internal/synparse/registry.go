package synparse

import (
	"fmt"
	"strings"
	"sync"
)

// Registry is a named lookup table of Parser implementations, consulted
// when a ruleset's config binds a parser by name.
type Registry struct {
	mu      sync.RWMutex
	parsers map[string]Parser
}

// NewRegistry builds an empty parser registry.
func NewRegistry() *Registry {
	return &Registry{parsers: make(map[string]Parser)}
}

// DefaultRegistry builds a Registry with the built-in RFC3164 and RFC5424
// parsers registered under their conventional names.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NewRFC5424Parser())
	r.Register(NewRFC3164Parser())
	return r
}

// Register adds p under its Name(), overwriting any parser previously
// registered with the same case-insensitive name.
func (r *Registry) Register(p Parser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.parsers[strings.ToLower(p.Name())] = p
}

// Lookup resolves name to a Parser, case-insensitively. Returns
// ErrParserNotFound on a miss so the caller (the rulesetParser directive
// handler) can surface PARSER_NOT_FOUND without mutating the ruleset.
func (r *Registry) Lookup(name string) (Parser, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.parsers[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("parser %q: %w", name, ErrParserNotFound)
	}
	return p, nil
}

// Names returns every registered parser name.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.parsers))
	for _, p := range r.parsers {
		out = append(out, p.Name())
	}
	return out
}

// Package ruleset implements the ruleset registry and batch dispatcher:
// the named-ruleset lookup table, the rule interface contract, and the
// single/multi-ruleset batch execution paths that route messages to
// rules.
package ruleset

import (
	"fmt"
	"strings"
	"sync"

	"github.com/imtcpd/imtcpd/internal/queue"
)

// Registry holds every constructed ruleset plus the current and default
// pointers. Mutation is limited to the config-binding phases; lookups
// during normal operation only take the read lock.
type Registry struct {
	mu sync.RWMutex

	byName map[string]*Ruleset
	order  []*Ruleset

	current *Ruleset
	dflt    *Ruleset

	mainQueue *queue.Queue
}

// NewRegistry constructs an empty registry. mainQueue is the fallback
// queue GetRulesetQueue returns for rulesets with no private queue of
// their own; it may be nil if every ruleset is expected to carry one.
func NewRegistry(mainQueue *queue.Queue) *Registry {
	return &Registry{
		byName:    make(map[string]*Ruleset),
		mainQueue: mainQueue,
	}
}

// ConstructFinalize inserts rs into the registry under its current name.
// The name stored as the map key is copied independently of rs's own
// name field so a later SetName rename cannot corrupt a live map key.
// Sets current to rs unconditionally, and default to rs if the registry
// had none yet.
func (r *Registry) ConstructFinalize(rs *Ruleset) error {
	key := strings.ToLower(rs.Name())
	if key == "" {
		return fmt.Errorf("ruleset: empty name: %w", ErrDuplicateName)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[key]; exists {
		return fmt.Errorf("ruleset %q: %w", rs.Name(), ErrDuplicateName)
	}
	if rs.attached {
		return ErrRulesetExists
	}
	rs.attached = true

	r.byName[key] = rs
	r.order = append(r.order, rs)
	r.current = rs
	if r.dflt == nil {
		r.dflt = rs
	}
	return nil
}

// Destruct removes rs from the registry without affecting current/default
// bookkeeping of other rulesets beyond clearing pointers that referenced
// it.
func (r *Registry) Destruct(rs *Ruleset) {
	key := strings.ToLower(rs.Name())

	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.byName, key)
	for i, v := range r.order {
		if v == rs {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	if r.current == rs {
		r.current = nil
	}
	if r.dflt == rs {
		r.dflt = nil
	}
}

// GetRuleset looks up a ruleset by case-insensitive name.
func (r *Registry) GetRuleset(name string) (*Ruleset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rs, ok := r.byName[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("ruleset %q: %w", name, ErrNotFound)
	}
	return rs, nil
}

// SetDefault points the registry's default ruleset at name. On a miss the
// previous default is left untouched; the caller is expected to log the
// returned error.
func (r *Registry) SetDefault(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rs, ok := r.byName[strings.ToLower(name)]
	if !ok {
		return fmt.Errorf("ruleset %q: %w", name, ErrNotFound)
	}
	r.dflt = rs
	return nil
}

// SetCurrent points the registry's current ruleset at name. On a miss the
// previous current is left untouched; the caller is expected to log the
// returned error.
func (r *Registry) SetCurrent(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rs, ok := r.byName[strings.ToLower(name)]
	if !ok {
		return fmt.Errorf("ruleset %q: %w", name, ErrNotFound)
	}
	r.current = rs
	return nil
}

// GetCurrent returns the registry's current ruleset, or nil if none has
// been finalized yet.
func (r *Registry) GetCurrent() *Ruleset {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// GetDefault returns the registry's default ruleset, or nil if none has
// been finalized yet.
func (r *Registry) GetDefault() *Ruleset {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.dflt
}

// GetRulesetQueue returns rs's private queue if it has one, otherwise the
// registry's shared main queue (which may itself be nil).
func (r *Registry) GetRulesetQueue(rs *Ruleset) *queue.Queue {
	if rs != nil {
		if q := rs.Queue(); q != nil {
			return q
		}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.mainQueue
}

// AddRule appends rule to rs. A rule reporting zero actions is rejected
// per the zero-action invariant; the caller should log a warning and
// treat the ruleset as otherwise unchanged.
func (r *Registry) AddRule(rs *Ruleset, rule Rule) error {
	if rule.ActionCount() < 1 {
		return ErrZeroActions
	}
	rs.addRule(rule)
	return nil
}

// AddScript appends an opaque statement-tree node to rs's script list.
func (r *Registry) AddScript(rs *Ruleset, stmt any) {
	rs.addScript(stmt)
}

// AddParser attaches a parser name to rs. The first call on a ruleset
// implicitly disables that ruleset's reliance on the engine default
// parser set. Validating that name refers to a registered parser is the
// caller's responsibility (PARSER_NOT_FOUND is a config-layer concern);
// this method only records the binding.
func (r *Registry) AddParser(rs *Ruleset, name string) {
	rs.addParser(name)
}

// AttachQueue binds q as rs's private ingress queue. Fails with
// ErrQueueExists if rs already has one (duplicate rulesetCreateMainQueue
// directive).
func (r *Registry) AttachQueue(rs *Ruleset, q *queue.Queue) error {
	return rs.attachQueue(q)
}

// SetName renames rs and re-keys the registry's lookup map, if rs is
// currently attached.
func (r *Registry) SetName(rs *Ruleset, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	oldKey := strings.ToLower(rs.Name())
	if _, attached := r.byName[oldKey]; attached {
		delete(r.byName, oldKey)
		r.byName[strings.ToLower(name)] = rs
	}
	rs.setName(name)
}

// DestructAllActions tears down every ruleset in the registry: the
// registry's map and pointers are cleared first, then for each former
// ruleset its queue is closed before its parser list and rules are
// dropped. After this call the registry is empty and both current and
// default are nil.
func (r *Registry) DestructAllActions() {
	r.mu.Lock()
	order := r.order
	r.order = nil
	r.byName = make(map[string]*Ruleset)
	r.current = nil
	r.dflt = nil
	r.mu.Unlock()

	for _, rs := range order {
		rs.destructQueue()
		rs.mu.Lock()
		rs.parsers = nil
		rs.rules = nil
		rs.scripts = nil
		rs.attached = false
		rs.mu.Unlock()
	}
}

// Rulesets returns a snapshot of every ruleset in insertion order. Used by
// IterateAllActions and by the admin introspection surface.
func (r *Registry) Rulesets() []*Ruleset {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Ruleset, len(r.order))
	copy(out, r.order)
	return out
}

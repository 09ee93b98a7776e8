package ruleset

import (
	"strings"
	"sync"

	"github.com/imtcpd/imtcpd/internal/queue"
)

// Ruleset is a named, ordered chain of rules plus the optional queue and
// parser list bound to it. A Ruleset is constructed standalone and only
// becomes visible to lookups once passed to Registry.ConstructFinalize.
type Ruleset struct {
	mu sync.RWMutex

	name string

	rules   []Rule
	scripts []any

	parsers           []string
	defaultParserOff  bool

	queue *queue.Queue

	attached bool
}

// NewRuleset constructs a standalone ruleset. It is not visible to any
// registry lookup until ConstructFinalize succeeds.
func NewRuleset(name string) *Ruleset {
	return &Ruleset{name: name}
}

// Name returns the ruleset's current name. Implements message.Ruleset.
func (rs *Ruleset) Name() string {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return rs.name
}

func (rs *Ruleset) normalizedName() string {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return strings.ToLower(rs.name)
}

// Rules returns a snapshot slice of the ruleset's rules in insertion
// order. The returned slice must not be mutated.
func (rs *Ruleset) Rules() []Rule {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	out := make([]Rule, len(rs.rules))
	copy(out, rs.rules)
	return out
}

// Queue returns the ruleset's private queue, or nil if none is attached.
func (rs *Ruleset) Queue() *queue.Queue {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return rs.queue
}

// Parsers returns a snapshot of the parser names attached to this
// ruleset, in the order they were added.
func (rs *Ruleset) Parsers() []string {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	out := make([]string, len(rs.parsers))
	copy(out, rs.parsers)
	return out
}

// UsesDefaultParsers reports whether this ruleset still relies on the
// engine-wide default parser set, i.e. no explicit parser has been added
// to it yet.
func (rs *Ruleset) UsesDefaultParsers() bool {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return !rs.defaultParserOff
}

// addRule appends rule to the ruleset. Callers must have already rejected
// zero-action rules (Registry.AddRule does this); this method exists
// separately so tests can exercise append ordering directly.
func (rs *Ruleset) addRule(r Rule) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.rules = append(rs.rules, r)
}

func (rs *Ruleset) addScript(stmt any) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.scripts = append(rs.scripts, stmt)
}

func (rs *Ruleset) addParser(name string) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.defaultParserOff = true
	rs.parsers = append(rs.parsers, name)
}

func (rs *Ruleset) attachQueue(q *queue.Queue) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.queue != nil {
		return ErrQueueExists
	}
	rs.queue = q
	return nil
}

func (rs *Ruleset) setName(name string) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.name = name
}

// destructQueue closes the ruleset's queue, if any, per its own shutdown
// policy (the queue decides whether buffered messages drain or are
// abandoned). It is a no-op if no queue is attached.
func (rs *Ruleset) destructQueue() {
	rs.mu.Lock()
	q := rs.queue
	rs.queue = nil
	rs.mu.Unlock()
	if q != nil {
		q.Close()
	}
}

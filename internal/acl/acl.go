// Package acl implements the permitted-peer ACL consulted by the TCP
// server's accept path: isAllowed(family, addr, fqdn, directionTCP).
package acl

import (
	"net/netip"
	"strings"
)

// Family identifies the address family of an incoming connection.
// Unknown always fails closed.
type Family int

const (
	FamilyUnknown Family = iota
	FamilyIPv4
	FamilyIPv6
)

// FamilyOf derives a Family from a netip.Addr.
func FamilyOf(addr netip.Addr) Family {
	switch {
	case addr.Is4() || addr.Is4In6():
		return FamilyIPv4
	case addr.Is6():
		return FamilyIPv6
	default:
		return FamilyUnknown
	}
}

// List is an ordered, immutable set of permitted-peer patterns shared
// among every TCP server instance that references it. Patterns are
// dot-separated label sequences where a "*" label matches any single
// label at that position.
type List struct {
	patterns []string
}

// NewList builds an immutable List snapshot from patterns. The returned
// List shares no mutable state with the caller's slice.
func NewList(patterns []string) *List {
	out := make([]string, len(patterns))
	copy(out, patterns)
	return &List{patterns: out}
}

// Patterns returns a copy of the list's patterns.
func (l *List) Patterns() []string {
	if l == nil {
		return nil
	}
	out := make([]string, len(l.patterns))
	copy(out, l.patterns)
	return out
}

// ACL decides whether a peer may connect, consulting an optional bounded
// LRU verdict cache keyed by address.
type ACL struct {
	list  *List
	cache *lruCache
}

// New builds an ACL backed by list. A cacheSize of 0 disables caching;
// every decision is made per-accept with no caching required, but a
// bounded cache amortizes repeat connections from the same peer.
func New(list *List, cacheSize int) *ACL {
	a := &ACL{list: list}
	if cacheSize > 0 {
		a.cache = newLRUCache(cacheSize)
	}
	return a
}

// IsAllowed implements the isAllowed contract: family, the peer's numeric
// address, its resolved FQDN (empty if reverse resolution failed or was
// skipped), and whether this is a TCP accept (directionTCP always true
// for this engine, kept for interface fidelity with the source contract).
func (a *ACL) IsAllowed(family Family, addr netip.Addr, fqdn string, directionTCP bool) bool {
	if family == FamilyUnknown {
		return false
	}
	if len(a.list.patterns) == 0 {
		// An empty permitted-peer list means the directive was never
		// configured; the server-level default policy (open) applies
		// upstream of this ACL, so report allowed.
		return true
	}

	if a.cache != nil {
		if verdict, ok := a.cache.get(addr); ok {
			return verdict
		}
	}

	verdict := false
	if fqdn != "" && a.matchesAny(fqdn) {
		verdict = true
	} else if a.matchesAny(addr.String()) {
		verdict = true
	}

	if a.cache != nil {
		a.cache.put(addr, verdict)
	}
	return verdict
}

func (a *ACL) matchesAny(candidate string) bool {
	for _, pattern := range a.list.patterns {
		if matchLabels(pattern, candidate) {
			return true
		}
	}
	return false
}

// matchLabels compares pattern and candidate label by label (split on
// '.'). A "*" label in pattern matches any single candidate label at that
// position; both sequences must have the same length.
func matchLabels(pattern, candidate string) bool {
	pLabels := strings.Split(pattern, ".")
	cLabels := strings.Split(candidate, ".")
	if len(pLabels) != len(cLabels) {
		return false
	}
	for i, p := range pLabels {
		if p == "*" {
			continue
		}
		if !strings.EqualFold(p, cLabels[i]) {
			return false
		}
	}
	return true
}

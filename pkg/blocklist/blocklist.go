// Package blocklist loads and matches the immutable set of blocked domain
// names. Matching uses label-boundary suffix semantics: a query name is
// blocked iff it equals a listed name or is a subdomain of one.
package blocklist

import (
	"strings"

	"github.com/miekg/dns"
)

// Set is an immutable set of canonical (lowercase, dot-terminated) names.
type Set struct {
	names map[string]struct{}
}

// NewSet builds a Set from raw names, canonicalising each entry.
func NewSet(names ...string) *Set {
	s := &Set{names: make(map[string]struct{}, len(names))}
	for _, name := range names {
		s.names[Canonical(name)] = struct{}{}
	}
	return s
}

// Len returns the number of entries.
func (s *Set) Len() int {
	return len(s.names)
}

// Contains reports whether name is an exact member of the set.
func (s *Set) Contains(name string) bool {
	_, ok := s.names[name]
	return ok
}

// Match reports whether name equals a set entry or ends with "." followed by
// one, and returns the closest enclosing (longest) matching suffix. The name
// must be canonical. The walk strips one label at a time, so "bad.com." can
// never match an entry "ad.com.".
func (s *Set) Match(name string) (suffix string, ok bool) {
	candidate := name
	for {
		if _, ok := s.names[candidate]; ok {
			return candidate, true
		}
		i := strings.IndexByte(candidate, '.')
		if i < 0 || i == len(candidate)-1 {
			return "", false
		}
		candidate = candidate[i+1:]
	}
}

// Canonical converts a domain name to its canonical form: lowercase with a
// single trailing dot. It is idempotent.
func Canonical(name string) string {
	return strings.ToLower(dns.Fqdn(name))
}

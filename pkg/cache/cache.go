// Package cache records prior per-name block/allow classifications so the
// handler does not re-scan the blocklist for names it has already seen. The
// cache is a bounded LRU; under adversarial traffic old entries are evicted
// and re-derived on demand.
package cache

import (
	"github.com/bluele/gcache"
)

// Matcher classifies a canonical name against the blocklist. *blocklist.Set
// satisfies it; tests substitute counting fakes.
type Matcher interface {
	Match(name string) (suffix string, ok bool)
}

// Decision is a cached classification. Zone is the matched blocklist suffix
// when Blocked is true (used as the SOA owner of the negative answer).
type Decision struct {
	Blocked bool
	Zone    string
}

// DecisionCache is a concurrency-safe name → Decision LRU. A name maps to at
// most one Decision, so the block and allow partitions are disjoint by
// construction.
type DecisionCache struct {
	entries gcache.Cache
	matcher Matcher
}

// New creates a DecisionCache with the given capacity over the matcher.
func New(matcher Matcher, capacity int) *DecisionCache {
	return &DecisionCache{
		entries: gcache.New(capacity).LRU().Build(),
		matcher: matcher,
	}
}

// Classify returns the block decision for a canonical name, consulting the
// cache first and recording the matcher's verdict on a miss.
func (c *DecisionCache) Classify(name string) (zone string, blocked bool) {
	if v, err := c.entries.Get(name); err == nil {
		d := v.(Decision)
		return d.Zone, d.Blocked
	}

	zone, blocked = c.matcher.Match(name)
	_ = c.entries.Set(name, Decision{Blocked: blocked, Zone: zone})
	return zone, blocked
}

// Len returns the current number of cached decisions.
func (c *DecisionCache) Len() int {
	return c.entries.Len(false)
}

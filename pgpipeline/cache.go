package pgpipeline

import (
	"fmt"

	"golang.org/x/sync/singleflight"

	"github.com/shipq/pgpipeline/nanoid"
)

// statementCache maps a SQL fingerprint to the server-side prepared
// statement name the backend knows it by, bounded to statementLimit
// entries with LRU eviction (§4.E). The map-plus-access-order-slice shape
// mirrors a bounded LRU cache; accessOrder holds fingerprints from least
// to most recently used.
type statementCache struct {
	limit       int
	entries     map[string]string
	accessOrder []string

	// prepareGroup keys each PREPARE by fingerprint: prepareLocked runs
	// it inside prepareGroup.Do. Every caller of prepareLocked (including
	// the cache-expiry retry) already holds Conn.mu, so at most one
	// PREPARE per fingerprint is in flight.
	prepareGroup singleflight.Group
}

func newStatementCache(limit int) *statementCache {
	if limit <= 0 {
		limit = 1
	}
	return &statementCache{
		limit:   limit,
		entries: make(map[string]string, limit),
	}
}

// lookup returns the cached name for fingerprint and touches its LRU
// position, or reports !ok on a miss.
func (c *statementCache) lookup(fingerprint string) (name string, ok bool) {
	name, ok = c.entries[fingerprint]
	if ok {
		c.touch(fingerprint)
	}
	return name, ok
}

// touch moves fingerprint to the most-recently-used end of accessOrder.
func (c *statementCache) touch(fingerprint string) {
	for i, fp := range c.accessOrder {
		if fp == fingerprint {
			c.accessOrder = append(c.accessOrder[:i], c.accessOrder[i+1:]...)
			break
		}
	}
	c.accessOrder = append(c.accessOrder, fingerprint)
}

// nextName allocates a fresh server-side prepared statement name. The
// wire protocol treats this as an opaque string, not a SQL identifier, so
// nanoid's URL-safe alphabet (including '-'/'_') is sent as-is.
func (c *statementCache) nextName() string {
	return fmt.Sprintf("pgpipeline_stmt_%s", nanoid.New())
}

// insert records a new fingerprint→name mapping and reports the evicted
// entry, if the cache was at capacity. The caller is responsible for
// issuing the DEALLOCATE for the evicted name (§4.E: "eviction issues
// DEALLOCATE through the flush helper").
func (c *statementCache) insert(fingerprint, name string) (evictedFingerprint, evictedName string, evicted bool) {
	c.entries[fingerprint] = name
	c.touch(fingerprint)

	if len(c.entries) <= c.limit {
		return "", "", false
	}

	evictedFingerprint = c.accessOrder[0]
	c.accessOrder = c.accessOrder[1:]
	evictedName = c.entries[evictedFingerprint]
	delete(c.entries, evictedFingerprint)
	return evictedFingerprint, evictedName, true
}

// remove deletes fingerprint from the cache (used when a cached plan is
// invalidated server-side and must be re-prepared under a fresh name).
func (c *statementCache) remove(fingerprint string) (name string, ok bool) {
	name, ok = c.entries[fingerprint]
	if !ok {
		return "", false
	}
	delete(c.entries, fingerprint)
	for i, fp := range c.accessOrder {
		if fp == fingerprint {
			c.accessOrder = append(c.accessOrder[:i], c.accessOrder[i+1:]...)
			break
		}
	}
	return name, true
}

// len reports the number of live cache entries.
func (c *statementCache) len() int { return len(c.entries) }

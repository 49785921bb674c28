package pgpipeline

import (
	"context"
	"testing"

	"github.com/shipq/pgpipeline/pgpipeline/internal/faketest"
	"github.com/shipq/pgpipeline/pgpipeline/internal/proptest"
)

// FIFO resolution (§8 invariant): for any sequence of N successful
// affected-count replies, forcing the last issued handle resolves every
// earlier handle to its own scripted count, in issue order.
func TestProperty_FIFOResolution(t *testing.T) {
	proptest.QuickCheck(t, "FIFO resolution", func(g *proptest.Generator) bool {
		n := g.IntRange(1, 12)
		counts := make([]int64, n)
		script := make([]faketest.Reply, 0, n+1)
		for i := range counts {
			counts[i] = int64(g.IntRange(0, 1000))
			script = append(script, faketest.Reply{Affected: counts[i]})
		}
		script = append(script, faketest.Reply{Sync: true})

		conn := NewWithBackend(faketest.NewConn(script), Options{})
		handles := make([]*Deferred, n)
		for i := range handles {
			h, err := conn.ExecQuery(context.Background(), "UPDATE t SET x = 1", nil, false, nil)
			if err != nil {
				t.Logf("ExecQuery failed: %v", err)
				return false
			}
			handles[i] = h
		}

		if _, err := handles[n-1].Force(); err != nil {
			t.Logf("Force failed: %v", err)
			return false
		}

		for i, h := range handles {
			if h.State() != StateResolved {
				t.Logf("handle %d not resolved: %v", i, h.State())
				return false
			}
			got, err := h.RowsAffected()
			if err != nil {
				t.Logf("handle %d RowsAffected error: %v", i, err)
				return false
			}
			if got != counts[i] {
				t.Logf("handle %d: want %d, got %d", i, counts[i], got)
				return false
			}
		}
		return true
	})
}

// At-most-once terminal (§8 invariant): once a handle leaves Pending, no
// sequence of further assign/assignError calls changes its resolved value
// or error.
func TestProperty_TerminalOnce(t *testing.T) {
	proptest.QuickCheck(t, "terminal state never changes after first settle", func(g *proptest.Generator) bool {
		conn := NewWithBackend(faketest.NewConn(nil), Options{})
		h := newDeferred(conn, "SELECT 1", nil, nil)

		firstIsError := g.Bool()
		var firstErr error
		var firstVal Result
		if firstIsError {
			firstErr = priorQueryPipelineError()
			h.assignError(firstErr)
		} else {
			firstVal = NewAffectedCount(int64(g.IntRange(0, 1000)))
			h.assign(firstVal)
		}

		rounds := g.IntRange(1, 8)
		for i := 0; i < rounds; i++ {
			if g.Bool() {
				h.assignError(connectionResetError())
			} else {
				h.assign(NewAffectedCount(int64(g.IntRange(0, 1000))))
			}
		}

		if firstIsError {
			return h.State() == StateFailed && h.err == firstErr
		}
		return h.State() == StateResolved && h.value.RowsAffected() == firstVal.RowsAffected()
	})
}

// Cache LRU bound (§8 invariant): the statement cache never holds more
// entries than its configured limit, regardless of insert order or count.
func TestProperty_CacheNeverExceedsLimit(t *testing.T) {
	proptest.QuickCheck(t, "statement cache stays within its limit", func(g *proptest.Generator) bool {
		limit := g.IntRange(1, 8)
		c := newStatementCache(limit)

		inserts := g.IntRange(0, 40)
		for i := 0; i < inserts; i++ {
			fp := g.Identifier(12)
			name := c.nextName()
			c.insert(fp, name)
			if c.len() > limit {
				t.Logf("cache exceeded limit %d after %d inserts: len=%d", limit, i+1, c.len())
				return false
			}
		}
		return true
	})
}

// Check-in idempotence (§8 invariant): CheckIn on an already-empty queue
// is a no-op that never errors, regardless of how many times it runs.
func TestProperty_CheckInIdempotent(t *testing.T) {
	proptest.QuickCheck(t, "check-in on a drained connection is idempotent", func(g *proptest.Generator) bool {
		conn := NewWithBackend(faketest.NewConn(nil), Options{})
		calls := g.IntRange(1, 5)
		for i := 0; i < calls; i++ {
			if err := conn.CheckIn(context.Background()); err != nil {
				t.Logf("CheckIn call %d failed: %v", i, err)
				return false
			}
		}
		return conn.queue.len() == 0
	})
}

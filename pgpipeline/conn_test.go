package pgpipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/shipq/pgpipeline/pgpipeline/internal/faketest"
)

func cols() []pgconn.FieldDescription {
	return []pgconn.FieldDescription{
		{Name: "id"},
		{Name: "name"},
	}
}

func rowsReply(rows [][][]byte) faketest.Reply {
	return faketest.Reply{Columns: cols(), Rows: rows}
}

// S1 (deferred-force): force returns rows; a second access reuses the
// cached materialization without re-draining.
func TestForce_DeferredMaterialization(t *testing.T) {
	fake := faketest.NewConn([]faketest.Reply{
		rowsReply([][][]byte{
			{[]byte("3"), []byte("alice")},
			{[]byte("4"), []byte("bob")},
		}),
		{Sync: true},
	})
	conn := NewWithBackend(fake, Options{})

	h, err := conn.ExecQuery(context.Background(), "SELECT * FROM users WHERE id IS NOT NULL", nil, false, nil)
	if err != nil {
		t.Fatalf("ExecQuery: %v", err)
	}
	if !h.Scheduled() {
		t.Fatalf("expected handle to be scheduled before force")
	}

	rows, err := h.Rows()
	if err != nil {
		t.Fatalf("Rows: %v", err)
	}
	want := [][]any{{"3", "alice"}, {"4", "bob"}}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Fatalf("rows mismatch (-want +got):\n%s", diff)
	}

	rows2, err := h.Rows()
	if err != nil {
		t.Fatalf("second Rows: %v", err)
	}
	if diff := cmp.Diff(rows, rows2); diff != "" {
		t.Fatalf("second access should equal first (-first +second):\n%s", diff)
	}
}

// S2 (two-in-flight): forcing the second handle first still resolves
// both, in FIFO order.
func TestDrain_FIFOResolution(t *testing.T) {
	fake := faketest.NewConn([]faketest.Reply{
		rowsReply([][][]byte{
			{[]byte("3"), []byte("alice")},
			{[]byte("4"), []byte("bob")},
		}),
		{Sync: true},
		rowsReply([][][]byte{
			{[]byte("4"), []byte("bob")},
		}),
		{Sync: true},
	})
	conn := NewWithBackend(fake, Options{})

	h1, err := conn.ExecQuery(context.Background(), "SELECT * FROM users WHERE id IS NOT NULL", nil, false, nil)
	if err != nil {
		t.Fatalf("ExecQuery h1: %v", err)
	}
	h2, err := conn.ExecQuery(context.Background(), "SELECT * FROM users WHERE id = '4'", nil, false, nil)
	if err != nil {
		t.Fatalf("ExecQuery h2: %v", err)
	}

	first, err := h2.First()
	if err != nil {
		t.Fatalf("h2.First: %v", err)
	}
	if diff := cmp.Diff([]any{"4", "bob"}, first); diff != "" {
		t.Fatalf("h2 first row mismatch (-want +got):\n%s", diff)
	}

	if h1.State() != StateResolved {
		t.Fatalf("expected h1 resolved as a side effect of forcing h2, got %v", h1.State())
	}
	if h2.State() != StateResolved {
		t.Fatalf("expected h2 resolved, got %v", h2.State())
	}

	rows1, err := h1.Rows()
	if err != nil {
		t.Fatalf("h1.Rows: %v", err)
	}
	if len(rows1) != 2 {
		t.Fatalf("expected h1 to have 2 rows, got %d", len(rows1))
	}
}

// S5 (pipeline-aborted propagation): H1 fails, H2 (queued before any
// drain) resolves with PriorQueryPipelineError; forcing H1 afterward
// still yields its own StatementInvalid error.
func TestDrain_PipelineAbortedPropagation(t *testing.T) {
	fake := faketest.NewConn([]faketest.Reply{
		{Err: &pgconn.PgError{Code: "23505", Message: "duplicate key"}},
		{Err: &pgconn.PgError{Code: "25P02", Message: "current transaction is aborted"}},
		{Sync: true},
	})
	conn := NewWithBackend(fake, Options{})

	h1, err := conn.ExecQuery(context.Background(), "INSERT INTO users (id) VALUES (1)", nil, false, nil)
	if err != nil {
		t.Fatalf("ExecQuery h1: %v", err)
	}
	h2, err := conn.ExecQuery(context.Background(), "INSERT INTO users (id) VALUES (2)", nil, false, nil)
	if err != nil {
		t.Fatalf("ExecQuery h2: %v", err)
	}

	_, err2 := h2.Force()
	if err2 == nil {
		t.Fatalf("expected h2 to fail")
	}
	var pe2 *Error
	if !errors.As(err2, &pe2) || pe2.Kind != KindPriorQueryPipelineError {
		t.Fatalf("expected h2 PriorQueryPipelineError, got %v", err2)
	}

	_, err1 := h1.Force()
	if err1 == nil {
		t.Fatalf("expected h1 to fail")
	}
	var pe1 *Error
	if !errors.As(err1, &pe1) || pe1.Kind != KindStatementInvalid {
		t.Fatalf("expected h1 StatementInvalid, got %v", err1)
	}
}

// S3 (mixed deferred + immediate): a pending deferred handle drains before
// a subsequent synchronous admin statement dispatches, and dispatch order
// follows issue order, not force order.
func TestExecute_DrainsPendingBeforeDispatch(t *testing.T) {
	fake := faketest.NewConn([]faketest.Reply{
		{Affected: 1},
		{Sync: true},
		{Affected: 1},
		{Sync: true},
	})
	conn := NewWithBackend(fake, Options{})

	h1, err := conn.ExecQuery(context.Background(), "UPDATE users SET active = true WHERE id = 1", nil, false, nil)
	if err != nil {
		t.Fatalf("ExecQuery h1: %v", err)
	}

	result, err := conn.Execute(context.Background(), "UPDATE users SET active = true WHERE id = 2")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.RowsAffected() != 1 {
		t.Fatalf("expected 1 row affected, got %d", result.RowsAffected())
	}

	if h1.State() != StateResolved {
		t.Fatalf("expected h1 drained before the immediate statement dispatched, got %v", h1.State())
	}

	sent := fake.Pipeline().Sent
	if len(sent) != 2 {
		t.Fatalf("expected exactly 2 dispatches, got %d: %v", len(sent), sent)
	}
	if !strings.Contains(sent[0], "id = 1") || !strings.Contains(sent[1], "id = 2") {
		t.Fatalf("expected dispatch order h1 then h2, got %v", sent)
	}
}

// S4 (cache-expiry retry): the backend rejects a cached prepared statement
// as unknown (SQLSTATE 26000); a cached plan invalidated by a schema change
// (SQLSTATE 0A000) takes the same path. The
// cache-expiry hook removes the stale entry, re-prepares under a fresh
// name, re-executes, and resolves the original handle with the retried
// rows — all without the caller ever seeing an error. This recurses into
// prepareLocked/flushPipelineAndGetSyncResult from inside the handle's own
// error hook, so the trailing sync for the aborted batch must drain before
// the retry's PREPARE is sent, or the two batches desynchronize.
func TestCacheExpiryHook_RetriesAndResolvesOriginalHandle(t *testing.T) {
	const sql = "SELECT * FROM authors WHERE user_id = $1"

	fake := faketest.NewConn([]faketest.Reply{
		{},           // first PREPARE ack
		{Sync: true}, // closes the first PREPARE batch
		{Err: &pgconn.PgError{Code: "26000", Message: `prepared statement "pgpipeline_stmt_x" does not exist`}},
		{Sync: true}, // trailing sync for the aborted EXECUTE batch
		{},           // retry PREPARE ack
		{Sync: true}, // closes the retry PREPARE batch
		rowsReply([][][]byte{
			{[]byte("3"), []byte("alice")},
		}),
		{Sync: true}, // closes the retry EXECUTE batch
	})
	conn := NewWithBackend(fake, Options{})

	h, err := conn.ExecQuery(context.Background(), sql, []any{"3"}, true, nil)
	if err != nil {
		t.Fatalf("ExecQuery: %v", err)
	}

	rows, err := h.Rows()
	if err != nil {
		t.Fatalf("expected cache-expiry retry to resolve transparently, got error: %v", err)
	}
	want := [][]any{{"3", "alice"}}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Fatalf("rows mismatch (-want +got):\n%s", diff)
	}

	if _, ok := conn.cache.lookup(sql); !ok {
		t.Fatalf("expected the retried statement to be cached under a fresh name")
	}

	sent := fake.Pipeline().Sent
	if len(sent) != 4 {
		t.Fatalf("expected PREPARE, EXECUTE, PREPARE, EXECUTE dispatches, got %d: %v", len(sent), sent)
	}
	if !strings.HasPrefix(sent[0], "PREPARE ") || !strings.HasPrefix(sent[1], "EXECUTE ") ||
		!strings.HasPrefix(sent[2], "PREPARE ") || !strings.HasPrefix(sent[3], "EXECUTE ") {
		t.Fatalf("expected PREPARE/EXECUTE/PREPARE/EXECUTE dispatch order, got %v", sent)
	}
}

// S6 (error hook): a registered hook observes the failure and consumes
// it; the forcing caller sees no error.
func TestErrorHook_ConsumesError(t *testing.T) {
	fake := faketest.NewConn([]faketest.Reply{
		{Err: errors.New("connection dropped mid-read")},
		{Sync: true},
	})
	conn := NewWithBackend(fake, Options{})

	h, err := conn.ExecQuery(context.Background(), "SELECT 1", nil, false, nil)
	if err != nil {
		t.Fatalf("ExecQuery: %v", err)
	}

	hookRan := false
	h.OnError(func(h *Deferred, err error) error {
		hookRan = true
		return nil
	})

	_, err = h.Force()
	if err != nil {
		t.Fatalf("expected hook to consume the error, got %v", err)
	}
	if !hookRan {
		t.Fatalf("expected error hook to run")
	}
	if h.State() != StateResolved {
		t.Fatalf("expected handle resolved after hook consumed the error, got %v", h.State())
	}
}

// At-most-once terminal: assign/assignError are no-ops once a handle is
// already terminal.
func TestDeferred_TerminalOnce(t *testing.T) {
	conn := NewWithBackend(faketest.NewConn(nil), Options{})
	h := newDeferred(conn, "SELECT 1", nil, nil)

	h.assign(NewAffectedCount(1))
	h.assign(NewAffectedCount(99))
	if h.RowsAffectedUnsafe() != 1 {
		t.Fatalf("expected first assign to win, got %d", h.RowsAffectedUnsafe())
	}

	h2 := newDeferred(conn, "SELECT 1", nil, nil)
	h2.assignError(priorQueryPipelineError())
	h2.assign(NewAffectedCount(5))
	if h2.State() != StateFailed {
		t.Fatalf("expected state to stay Failed once terminal, got %v", h2.State())
	}
}

// RowsAffectedUnsafe reads value directly without forcing, for
// asserting terminal state without triggering a drain.
func (h *Deferred) RowsAffectedUnsafe() int64 { return h.value.RowsAffected() }

// Check-in idempotence: releasing a connection with pending handles
// drains the queue and leaves it usable for the next check-out.
func TestCheckIn_DrainsQueue(t *testing.T) {
	fake := faketest.NewConn([]faketest.Reply{
		{Affected: 1},
		{Sync: true},
	})
	conn := NewWithBackend(fake, Options{})

	h, err := conn.ExecQuery(context.Background(), "UPDATE users SET active = true", nil, false, nil)
	if err != nil {
		t.Fatalf("ExecQuery: %v", err)
	}
	if h.State() != StatePending {
		t.Fatalf("expected handle still pending before check-in")
	}

	if err := conn.CheckIn(context.Background()); err != nil {
		t.Fatalf("CheckIn: %v", err)
	}
	if conn.queue.len() != 0 {
		t.Fatalf("expected empty queue after check-in, got %d", conn.queue.len())
	}
}

// Cache LRU bound: inserting beyond statement_limit evicts the oldest
// entry and reports it as the eviction victim.
func TestStatementCache_LRUEviction(t *testing.T) {
	c := newStatementCache(2)
	_, _, evicted := c.insert("sql-a", "name-a")
	if evicted {
		t.Fatalf("unexpected eviction on first insert")
	}
	_, _, evicted = c.insert("sql-b", "name-b")
	if evicted {
		t.Fatalf("unexpected eviction on second insert")
	}

	evictedFP, evictedName, evicted := c.insert("sql-c", "name-c")
	if !evicted {
		t.Fatalf("expected eviction on third insert over limit 2")
	}
	if evictedFP != "sql-a" || evictedName != "name-a" {
		t.Fatalf("expected LRU victim sql-a/name-a, got %s/%s", evictedFP, evictedName)
	}
	if c.len() != 2 {
		t.Fatalf("expected cache size to stay at limit, got %d", c.len())
	}
}

// TestReadOnly_RejectsWriteStatementBeforeTransmission verifies §7's
// "raised before transmission" wording: with Options.ReadOnly set, a write
// statement fails synchronously with KindReadOnlyError and never reaches
// the backend at all.
func TestReadOnly_RejectsWriteStatementBeforeTransmission(t *testing.T) {
	fake := faketest.NewConn(nil)
	conn := NewWithBackend(fake, Options{ReadOnly: true})

	_, err := conn.ExecQuery(context.Background(), "UPDATE users SET active = false", nil, false, nil)
	if err == nil {
		t.Fatalf("expected ExecQuery to reject a write statement under ReadOnly")
	}
	var pErr *Error
	if !errors.As(err, &pErr) || pErr.Kind != KindReadOnlyError {
		t.Fatalf("expected KindReadOnlyError, got %v", err)
	}
	if len(fake.Pipeline().Sent) != 0 {
		t.Fatalf("expected no dispatch to the backend, got %v", fake.Pipeline().Sent)
	}

	_, err = conn.Execute(context.Background(), "DELETE FROM users")
	if !errors.As(err, &pErr) || pErr.Kind != KindReadOnlyError {
		t.Fatalf("expected Execute to also reject under ReadOnly, got %v", err)
	}

	h, err := conn.ExecQuery(context.Background(), "SELECT 1", nil, false, nil)
	if err != nil {
		t.Fatalf("expected reads to pass through under ReadOnly, got %v", err)
	}
	if h == nil {
		t.Fatalf("expected a handle for the read statement")
	}
}

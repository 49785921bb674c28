package pgpipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/jackc/pgx/v5/pgconn"
)

// Options configures a Conn at construction time (§6 "Configuration
// options").
type Options struct {
	// DatabaseURL is a standard postgres:// connection string, passed
	// through to pgconn.Connect unmodified.
	DatabaseURL string
	// StatementLimit bounds the prepared-statement cache (§4.E). Zero
	// means "use the default" (32).
	StatementLimit int
	// TypeRegistry decodes row values; if nil, values are returned as raw
	// text (defaultTypeRegistry).
	TypeRegistry TypeRegistry
	// Logger receives structured dispatch/drain/cache diagnostics.
	// Defaults to slog.Default() if nil.
	Logger *slog.Logger
	// ReadOnly rejects write statements before they are ever sent to the
	// backend (§7 "ReadOnlyError ... raised before transmission"), rather
	// than waiting for the backend to reject them as SQLSTATE 25006.
	ReadOnly bool
}

const defaultStatementLimit = 32

// Conn is the pipelined adapter facade (§4.F): exec_query, execute,
// select_*, reset!, reconnect!, disconnect!, active?.
type Conn struct {
	mu sync.Mutex

	backend  BackendConn
	pipeline BackendPipeline

	queue            *queue
	cache            *statementCache
	hasUnsyncedSends bool
	pipelineAborted  bool

	// pendingSyncs counts Sync() calls issued but not yet matched by a
	// *pgconn.PipelineSync reply. A batch sent by one drain call (e.g. a
	// cache-expiry retry's nested PREPARE/EXECUTE round trips, §4.E) can
	// have its trailing sync consumed by that same nested call; the
	// outer drain loop must know not to wait for a second one.
	pendingSyncs int

	typeRegistry TypeRegistry
	log          *slog.Logger
	readOnly     bool

	databaseURL string
	closed      bool
}

// Connect opens a new backend connection and starts it in pipeline mode
// (§6 "enter/exit pipeline mode").
func Connect(ctx context.Context, opts Options) (*Conn, error) {
	pgConn, err := pgconn.Connect(ctx, opts.DatabaseURL)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	return newConn(newPgConnBackend(pgConn), opts), nil
}

// NewWithBackend constructs a Conn around an already-established
// BackendConn, bypassing pgconn.Connect. Exported so tests (and
// alternative transports) outside this package can drive the engine
// against internal/faketest's scripted fake.
func NewWithBackend(backend BackendConn, opts Options) *Conn {
	return newConn(backend, opts)
}

func newConn(backend BackendConn, opts Options) *Conn {
	limit := opts.StatementLimit
	if limit <= 0 {
		limit = defaultStatementLimit
	}
	registry := opts.TypeRegistry
	if registry == nil {
		registry = defaultTypeRegistry{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Conn{
		backend:      backend,
		queue:        newQueue(),
		cache:        newStatementCache(limit),
		typeRegistry: registry,
		log:          logger,
		readOnly:     opts.ReadOnly,
		databaseURL:  opts.DatabaseURL,
	}
	c.mu.Lock()
	c.pipeline = c.backend.StartPipeline(context.Background())
	c.mu.Unlock()
	return c
}

func (c *Conn) logger() *slog.Logger { return c.log }

// Active reports whether the connection is usable.
func (c *Conn) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed && !c.backend.IsClosed()
}

// ExecQuery issues a SQL statement with binds. If prepare is true, the
// statement is cached and executed via a server-side prepared name
// (§4.D "Issue path (prepared)"); otherwise it is sent as a plain
// parameterized query (§4.D "Issue path (non-prepared)"). On success it
// returns a Deferred handle; callers materialize it via Force or an
// accessor. It returns a nil handle and an error when the connection is
// closed, a write is rejected in read-only mode, or the PREPARE fails.
func (c *Conn) ExecQuery(ctx context.Context, sql string, binds []any, prepare bool, projector ResultProjector) (*Deferred, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, connectionResetError()
	}

	if c.readOnly && isWriteStatement(sql) {
		return nil, readOnlyError(sql)
	}

	if prepare {
		return c.issuePreparedLocked(sql, binds, projector)
	}
	return c.issueUnpreparedLocked(sql, binds, projector), nil
}

func (c *Conn) issueUnpreparedLocked(sql string, binds []any, projector ResultProjector) *Deferred {
	paramValues := encodeBinds(binds)
	c.pipeline.SendQueryParams(sql, paramValues, nil, nil, nil)
	c.hasUnsyncedSends = true

	h := newDeferred(c, sql, binds, projector)
	c.queue.push(h)
	c.emitDispatchEvent(sql, "", binds)
	return h
}

func (c *Conn) issuePreparedLocked(sql string, binds []any, projector ResultProjector) (*Deferred, error) {
	fingerprint := sql
	name, ok := c.cache.lookup(fingerprint)
	if !ok {
		var err error
		name, err = c.prepareLocked(fingerprint, sql)
		if err != nil {
			return nil, err
		}
	}

	paramValues := encodeBinds(binds)
	c.pipeline.SendQueryPrepared(name, paramValues, nil, nil)
	c.hasUnsyncedSends = true

	h := newDeferred(c, sql, binds, projector)
	h.OnError(c.cacheExpiryHook(fingerprint, sql, binds, projector))
	c.queue.push(h)
	c.emitDispatchEvent(sql, name, binds)
	return h, nil
}

// prepareLocked runs PREPARE through the flush helper and installs the
// cache entry, evicting and DEALLOCATE-ing the LRU victim if the cache
// was full (§4.E).
func (c *Conn) prepareLocked(fingerprint, sql string) (string, error) {
	result, err, _ := c.cache.prepareGroup.Do(fingerprint, func() (any, error) {
		name := c.cache.nextName()
		_, err := c.flushPipelineAndGetSyncResult(func() error {
			c.pipeline.SendPrepare(name, sql, nil)
			return nil
		})
		if err != nil {
			return "", err
		}
		return name, nil
	})
	if err != nil {
		return "", err
	}
	name := result.(string)

	evictedFingerprint, evictedName, evicted := c.cache.insert(fingerprint, name)
	if evicted {
		if _, derr := c.flushPipelineAndGetSyncResult(func() error {
			c.pipeline.SendDeallocate(evictedName)
			return nil
		}); derr != nil {
			c.log.Warn("pgpipeline: DEALLOCATE failed for evicted statement",
				"fingerprint", evictedFingerprint, "name", evictedName, "error", derr)
		}
	}
	return name, nil
}

// cacheExpiryHook implements §4.E's cache-expiry retry policy: outside a
// transaction, remove the stale fingerprint and re-issue the statement,
// resolving the original handle with the retried result; inside a
// transaction, surface PreparedStatementCacheExpired as-is.
func (c *Conn) cacheExpiryHook(fingerprint, sql string, binds []any, projector ResultProjector) ErrorHook {
	return func(h *Deferred, err error) error {
		var pErr *Error
		if !errors.As(err, &pErr) || pErr.Kind != KindPreparedStatementCacheExpired {
			return err
		}

		if c.backend.TxStatus() != 'I' {
			return err
		}

		c.cache.remove(fingerprint)
		name, prepErr := c.prepareLocked(fingerprint, sql)
		if prepErr != nil {
			return prepErr
		}

		paramValues := encodeBinds(binds)
		result, execErr := c.flushPipelineAndGetSyncResult(func() error {
			c.pipeline.SendQueryPrepared(name, paramValues, nil, nil)
			return nil
		})
		if execErr != nil {
			return execErr
		}
		if projector != nil {
			result = projector(result)
		}
		h.assign(result)
		return nil
	}
}

// Execute runs sql as an immediate administrative statement through the
// flush helper (§4.F "execute/query for raw text... immediate").
func (c *Conn) Execute(ctx context.Context, sql string) (Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return Result{}, connectionResetError()
	}
	if c.readOnly && isWriteStatement(sql) {
		return Result{}, readOnlyError(sql)
	}
	result, err := c.flushPipelineAndGetSyncResult(func() error {
		c.pipeline.SendQueryParams(sql, nil, nil, nil, nil)
		return nil
	})
	c.emitDispatchEvent(sql, "[SYNC]", nil)
	return result, err
}

// Reset implements reset!: drains outstanding work, rolls back if the
// transaction is non-idle, then issues DISCARD ALL — all through the
// flush helper under the connection mutex (§4.F).
func (c *Conn) Reset(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return connectionResetError()
	}

	c.drainLocked(nil)

	if c.backend.TxStatus() != 'I' {
		if _, err := c.flushPipelineAndGetSyncResult(func() error {
			c.pipeline.SendQueryParams("ROLLBACK", nil, nil, nil, nil)
			return nil
		}); err != nil {
			return err
		}
	}

	if _, err := c.flushPipelineAndGetSyncResult(func() error {
		c.pipeline.SendQueryParams("DISCARD ALL", nil, nil, nil, nil)
		return nil
	}); err != nil {
		return err
	}
	c.cache.entries = make(map[string]string, c.cache.limit)
	c.cache.accessOrder = nil
	return nil
}

// Reconnect implements reconnect!: fails every still-Pending handle with
// a connection-reset error (§9 Open Question 1, resolved per
// DESIGN.md), then re-establishes the backend connection and a fresh
// pipeline.
func (c *Conn) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.failAllPendingLocked(connectionResetError())
	if c.pipeline != nil {
		_ = c.pipeline.Close()
	}
	_ = c.backend.Close(ctx)

	pgConn, err := pgconn.Connect(ctx, c.databaseURL)
	if err != nil {
		c.closed = true
		return classifyTransportError(err)
	}
	c.backend = newPgConnBackend(pgConn)
	c.pipeline = c.backend.StartPipeline(context.Background())
	c.hasUnsyncedSends = false
	c.pipelineAborted = false
	c.pendingSyncs = 0
	c.closed = false
	return nil
}

// Disconnect implements disconnect!: fails every still-Pending handle
// with a connection-reset error, then closes the backend connection for
// good (§9 Open Question 1).
func (c *Conn) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.failAllPendingLocked(connectionResetError())
	if c.pipeline != nil {
		_ = c.pipeline.Close()
	}
	c.closed = true
	return c.backend.Close(ctx)
}

// CheckIn implements the check-in hook (§4.H): drains C (discarding
// unread results is acceptable), aggregates any drain failures into a
// single logged error, and never raises to the caller.
func (c *Conn) CheckIn(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var aggregate *multierror.Error
	for c.queue.len() > 0 {
		h := c.queue.peekFront()
		c.drainLocked(h)
		if h.state == StateFailed && h.err != nil {
			aggregate = multierror.Append(aggregate, h.err)
		}
	}

	if aggregate != nil && len(aggregate.Errors) > 0 {
		c.log.Warn("pgpipeline: check-in drained handles with errors", "error", aggregate.ErrorOrNil())
	}
	return nil
}

func (c *Conn) emitDispatchEvent(sql, preparedName string, binds []any) {
	c.log.Debug("pgpipeline: dispatch",
		"sql", sql,
		"prepared_name", preparedName,
		"binds_count", len(binds),
	)
}

// writeKeywords are the leading statement keywords Options.ReadOnly
// rejects before transmission (§7 "ReadOnlyError ... raised before
// transmission"). This is a client-side policy, distinct from (and
// checked before) the backend's own read-only-transaction enforcement,
// which still surfaces as KindReadOnlyError via SQLSTATE 25006 if this
// check is bypassed (no ReadOnly option set) or the backend disagrees.
var writeKeywords = []string{
	"INSERT", "UPDATE", "DELETE", "TRUNCATE",
	"CREATE", "ALTER", "DROP", "GRANT", "REVOKE",
}

func isWriteStatement(sql string) bool {
	trimmed := strings.TrimLeft(sql, " \t\r\n")
	for _, kw := range writeKeywords {
		if len(trimmed) >= len(kw) && strings.EqualFold(trimmed[:len(kw)], kw) {
			return true
		}
	}
	return false
}

func readOnlyError(sql string) *Error {
	return newError(KindReadOnlyError, fmt.Sprintf("write statement rejected under read-only policy: %s", sql), nil)
}

// encodeBinds renders bind values in Postgres text wire format. The
// pipeline core treats value encoding as a collaborator concern in the
// general case (§1 "type OID registration and value encoders/decoders"
// are out of core); this text-format fallback covers the common scalar
// types without requiring every caller to supply an encoder.
func encodeBinds(binds []any) [][]byte {
	if binds == nil {
		return nil
	}
	out := make([][]byte, len(binds))
	for i, b := range binds {
		if b == nil {
			out[i] = nil
			continue
		}
		out[i] = []byte(fmt.Sprint(b))
	}
	return out
}

package pgpipeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// Kind classifies a pgpipeline error into the taxonomy a caller can act on
// without parsing message text.
type Kind int

const (
	// KindUnknown is the zero value; never produced by this package.
	KindUnknown Kind = iota
	// KindStatementInvalid covers SQLSTATE class 42 (syntax/undefined
	// object) and similar statement-shape errors.
	KindStatementInvalid
	// KindDataError covers SQLSTATE class 22 (value out of range, string
	// too long, invalid text representation).
	KindDataError
	// KindPreparedStatementCacheExpired is raised when the backend
	// reports an unknown prepared statement name (the cache entry
	// outlived the backend's actual PREPARE, e.g. after a DISCARD ALL),
	// or rejects a cached plan that a schema change invalidated.
	KindPreparedStatementCacheExpired
	// KindPriorQueryPipelineError is raised on a handle whose own send
	// succeeded but an earlier queued statement aborted the pipeline,
	// so the backend never executed this one.
	KindPriorQueryPipelineError
	// KindConnectionFailed covers transport-level failures: socket
	// errors, a Reconnect/Disconnect call failing the queued handles,
	// Sync I/O failures.
	KindConnectionFailed
	// KindReadOnlyError covers SQLSTATE 25006 (cannot execute in a
	// read-only transaction) and Options.ReadOnly's pre-send rejection
	// of write statements (conn.go's isWriteStatement check).
	KindReadOnlyError
)

func (k Kind) String() string {
	switch k {
	case KindStatementInvalid:
		return "statement_invalid"
	case KindDataError:
		return "data_error"
	case KindPreparedStatementCacheExpired:
		return "prepared_statement_cache_expired"
	case KindPriorQueryPipelineError:
		return "prior_query_pipeline_error"
	case KindConnectionFailed:
		return "connection_failed"
	case KindReadOnlyError:
		return "read_only_error"
	default:
		return "unknown"
	}
}

// Error is the typed error every Deferred handle fails with. It carries a
// Kind so callers can branch without string matching, and wraps the
// underlying cause (typically a *pgconn.PgError or a plain error for
// transport failures) via Unwrap.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("pgpipeline: %s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("pgpipeline: %s: %s", e.Kind, e.Message)
}

// Unwrap exposes the underlying cause to errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.Cause }

// Is supports errors.Is(err, &pgpipeline.Error{Kind: KindConnectionFailed})-
// style kind matching by comparing Kind, not identity.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Kind == other.Kind
}

func newError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// classifyPgError maps a *pgconn.PgError's SQLSTATE onto a Kind, per §7's
// error-kind taxonomy.
func classifyPgError(pgErr *pgconn.PgError) *Error {
	code := pgErr.Code
	switch {
	case code == "25006":
		return newError(KindReadOnlyError, "cannot execute in a read-only transaction", pgErr)
	case code == "26000" || code == "08P01":
		// 26000 = invalid_sql_statement_name (unknown prepared
		// statement); 08P01 = protocol_violation, which pgx also
		// surfaces when the backend rejects a cached statement name
		// it no longer recognizes.
		return newError(KindPreparedStatementCacheExpired, "prepared statement not found on backend", pgErr)
	case code == "0A000" && strings.Contains(pgErr.Message, "cached plan"):
		// 0A000 = feature_not_supported, which the backend reports as
		// "cached plan must not change result type" when a schema change
		// invalidated a prepared statement's plan.
		return newError(KindPreparedStatementCacheExpired, "cached plan must be replanned", pgErr)
	case len(code) >= 2 && code[:2] == "22":
		return newError(KindDataError, "invalid input value", pgErr)
	case len(code) >= 2 && code[:2] == "42":
		return newError(KindStatementInvalid, "statement invalid", pgErr)
	default:
		return newError(KindStatementInvalid, "statement execution failed", pgErr)
	}
}

// classifyTransportError wraps a non-protocol failure (socket I/O, context
// cancellation propagated from Sync/Flush) as KindConnectionFailed.
func classifyTransportError(cause error) *Error {
	return newError(KindConnectionFailed, "backend connection failed", cause)
}

// priorQueryPipelineError is the fixed error every handle still queued
// behind an aborted statement resolves to. The backend never executed
// these statements; the pipeline is simply draining toward its next Sync.
func priorQueryPipelineError() *Error {
	return newError(KindPriorQueryPipelineError, "a prior statement in this pipeline failed", nil)
}

// connectionResetError is the fixed error every still-Pending handle
// resolves to when Reconnect/Disconnect discards the queue (§9, Open
// Question 1). Calls on an already-closed Conn also return it.
func connectionResetError() *Error {
	return newError(KindConnectionFailed, "connection reset while handle was pending", nil)
}

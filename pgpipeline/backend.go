package pgpipeline

import (
	"context"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/shipq/pgpipeline/pgpipeline/internal/backendiface"
)

// BackendPipeline is the narrow slice of *pgconn.Pipeline the engine
// depends on. Method signatures are copied verbatim from pgx v5's real
// Pipeline type so *pgconn.Pipeline satisfies this interface without any
// wrapping, while internal/faketest can supply a scripted fake for tests
// that never touch a socket.
//
// Defined in internal/backendiface and aliased here so internal/faketest
// can implement it without importing this package (which would create an
// import cycle with this package's own white-box tests).
type BackendPipeline = backendiface.BackendPipeline

// BackendConn is the narrow slice of *pgconn.PgConn the engine depends
// on: starting a pipeline, inspecting transaction status, and lifecycle
// control. Grounded on the real pgconn.PgConn method set.
type BackendConn = backendiface.BackendConn

// RowReader is the narrow slice of *pgconn.ResultReader the engine needs
// to materialize a row-returning reply. The engine's drain loop type-
// switches on this interface rather than the concrete *pgconn.ResultReader
// so internal/faketest can script row-set replies without a real socket.
type RowReader = backendiface.RowReader

// pgConnBackend adapts a real *pgconn.PgConn to BackendConn. StartPipeline
// is the only method that needs an explicit shim, since *pgconn.Pipeline
// satisfies BackendPipeline structurally already.
type pgConnBackend struct {
	conn *pgconn.PgConn
}

func newPgConnBackend(conn *pgconn.PgConn) *pgConnBackend {
	return &pgConnBackend{conn: conn}
}

func (b *pgConnBackend) StartPipeline(ctx context.Context) BackendPipeline {
	return b.conn.StartPipeline(ctx)
}

func (b *pgConnBackend) TxStatus() byte { return b.conn.TxStatus() }

func (b *pgConnBackend) Close(ctx context.Context) error { return b.conn.Close(ctx) }

func (b *pgConnBackend) IsClosed() bool { return b.conn.IsClosed() }

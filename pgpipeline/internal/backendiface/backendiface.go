// Package backendiface holds the narrow backend interfaces shared by the
// pgpipeline engine and internal/faketest. It exists as a separate leaf
// package so faketest (which implements these interfaces) does not need
// to import the pgpipeline package itself, avoiding an import cycle in
// pgpipeline's own (white-box) tests. pgpipeline re-exports these types
// via aliases so its public API shape is unchanged.
package backendiface

import (
	"context"

	"github.com/jackc/pgx/v5/pgconn"
)

// BackendPipeline is the narrow slice of *pgconn.Pipeline the engine
// depends on. Method signatures are copied verbatim from pgx v5's real
// Pipeline type so *pgconn.Pipeline satisfies this interface without any
// wrapping, while internal/faketest can supply a scripted fake for tests
// that never touch a socket.
type BackendPipeline interface {
	SendPrepare(name, sql string, paramOIDs []uint32)
	SendDeallocate(name string)
	SendQueryParams(sql string, paramValues [][]byte, paramOIDs []uint32, paramFormats []int16, resultFormats []int16)
	SendQueryPrepared(stmtName string, paramValues [][]byte, paramFormats []int16, resultFormats []int16)
	Flush() error
	Sync() error
	GetResults() (results any, err error)
	Close() error
}

// BackendConn is the narrow slice of *pgconn.PgConn the engine depends
// on: starting a pipeline, inspecting transaction status, and lifecycle
// control. Grounded on the real pgconn.PgConn method set.
type BackendConn interface {
	StartPipeline(ctx context.Context) BackendPipeline
	TxStatus() byte
	Close(ctx context.Context) error
	IsClosed() bool
}

// RowReader is the narrow slice of *pgconn.ResultReader the engine needs
// to materialize a row-returning reply. The engine's drain loop type-
// switches on this interface rather than the concrete *pgconn.ResultReader
// so internal/faketest can script row-set replies without a real socket.
type RowReader interface {
	FieldDescriptions() []pgconn.FieldDescription
	NextRow() bool
	Values() [][]byte
	Close() (pgconn.CommandTag, error)
}

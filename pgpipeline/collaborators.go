package pgpipeline

import "context"

// TypeRegistry resolves a column's wire type (OID + type modifier + name)
// to a Go value decoder. Supplied at Conn construction (§6 "type
// registry"); the core never registers types globally at load time
// (§9 "Global type-registration side effects").
type TypeRegistry interface {
	// Decode converts raw wire bytes for a column into a Go value. name
	// is the column's wire name, useful for registries that special-case
	// particular columns (e.g. known enum columns) rather than OID alone.
	Decode(oid uint32, modifier int32, name string, raw []byte) (any, error)
}

// PreparedQuery is the opaque output of a SQLBuilder: SQL text, its bind
// parameters, and whether the statement is safe to PREPARE (§6 "SQL
// builder... core treats output as opaque bytes").
type PreparedQuery struct {
	SQL        string
	Binds      []any
	Preparable bool
}

// SQLBuilder turns a relational query description into SQL text and
// binds. The pipeline core never inspects SQL shape itself; it treats a
// SQLBuilder's output as opaque (§1 "OUT OF SCOPE... SQL generation").
type SQLBuilder interface {
	Build(query any) (PreparedQuery, error)
}

// Pool is the connection-pool collaborator: CheckIn is invoked when a
// Conn is released back to the pool. The core never calls a Pool; a pool
// implementation calls Conn.CheckIn, and Conn never reaches into pool
// internals (§6 "Connection
// pool: invokes the check-in hook on release", §9 "explicit pool
// callback interface... not method override on an external class").
type Pool interface {
	CheckIn(ctx context.Context, conn *Conn) error
}

// ResultProjector turns a raw Result into a domain-level value before a
// Deferred resolves successfully. Conn.ExecQuery installs one as a
// handle's callback when building a pipelined query (§4.F "returns a
// handle with callback set to a row-set-to-domain projector").
type ResultProjector func(Result) Result

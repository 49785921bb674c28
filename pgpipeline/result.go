package pgpipeline

import "fmt"

// Column describes one column of a RowSet, as reported by the backend
// (§4.A: "type-cast of columns is performed by the collaborator type
// registry"). OID and TypeModifier are passed to the TypeRegistry
// collaborator to obtain a decoder; Name is the wire column name.
type Column struct {
	Name         string
	OID          uint32
	TypeModifier int32
}

// Result is the tagged variant over the three reply shapes a backend reply
// can take (§4.A): a row set, a command-affected count, or a raw array
// (used for the rare reply that is neither, e.g. a LISTEN/NOTIFY ack
// surfaced as opaque data by a collaborator).
//
// Exactly one of the Kind-selected fields is meaningful; Result never
// exposes a bare `any` to callers the way method-forwarding would.
type Result struct {
	kind ResultKind

	rows    RowSet
	count   AffectedCount
	rawItem RawArray
}

// ResultKind discriminates which variant a Result holds.
type ResultKind int

const (
	// KindRowSet holds a RowSet (SELECT and RETURNING replies).
	KindRowSet ResultKind = iota
	// KindAffectedCount holds an AffectedCount (INSERT/UPDATE/DELETE without RETURNING).
	KindAffectedCount
	// KindRawArray holds a RawArray (administrative/diagnostic replies).
	KindRawArray
)

// RowSet is the decoded result of a query that returns rows.
type RowSet struct {
	Columns []Column
	Rows    [][]any
}

// AffectedCount is the decoded result of a command that affects rows
// without returning any (INSERT/UPDATE/DELETE without RETURNING).
type AffectedCount struct {
	N int64
}

// RawArray is an ordered sequence of opaque items, used for replies that
// don't fit the row-set/affected-count shapes.
type RawArray struct {
	Items []any
}

// NewRowSet wraps a RowSet in a Result.
func NewRowSet(rs RowSet) Result { return Result{kind: KindRowSet, rows: rs} }

// NewAffectedCount wraps an AffectedCount in a Result.
func NewAffectedCount(n int64) Result {
	return Result{kind: KindAffectedCount, count: AffectedCount{N: n}}
}

// NewRawArray wraps a RawArray in a Result.
func NewRawArray(items []any) Result {
	return Result{kind: KindRawArray, rawItem: RawArray{Items: items}}
}

// Kind reports which variant this Result holds.
func (r Result) Kind() ResultKind { return r.kind }

// Rows returns the decoded rows of a RowSet result, or nil for any other
// kind.
func (r Result) Rows() [][]any {
	if r.kind != KindRowSet {
		return nil
	}
	return r.rows.Rows
}

// Columns returns the column descriptions of a RowSet result, or nil for
// any other kind.
func (r Result) Columns() []Column {
	if r.kind != KindRowSet {
		return nil
	}
	return r.rows.Columns
}

// First returns the first row of a RowSet result, or nil if the result is
// empty or not a RowSet.
func (r Result) First() []any {
	rows := r.Rows()
	if len(rows) == 0 {
		return nil
	}
	return rows[0]
}

// Len reports the number of rows in a RowSet, or 0 for any other kind.
func (r Result) Len() int {
	return len(r.Rows())
}

// RowsAffected returns the affected-row count of an AffectedCount result,
// or 0 for any other kind.
func (r Result) RowsAffected() int64 {
	if r.kind != KindAffectedCount {
		return 0
	}
	return r.count.N
}

// Items returns the opaque item list of a RawArray result, or nil for any
// other kind.
func (r Result) Items() []any {
	if r.kind != KindRawArray {
		return nil
	}
	return r.rawItem.Items
}

func (r Result) String() string {
	switch r.kind {
	case KindRowSet:
		return fmt.Sprintf("RowSet(%d cols, %d rows)", len(r.rows.Columns), len(r.rows.Rows))
	case KindAffectedCount:
		return fmt.Sprintf("AffectedCount(%d)", r.count.N)
	case KindRawArray:
		return fmt.Sprintf("RawArray(%d items)", len(r.rawItem.Items))
	default:
		return "Result(unknown)"
	}
}

package pgpipeline

import "context"

// SelectAll issues a row-returning query and returns a Deferred whose
// resolved Result is a RowSet. It is ExecQuery specialized for the
// "select_*" family of facade operations named in §4.F, with no
// domain-level projector installed.
func (c *Conn) SelectAll(ctx context.Context, sql string, binds []any) (*Deferred, error) {
	return c.ExecQuery(ctx, sql, binds, true, nil)
}

// SelectOne issues a row-returning query and projects the resolved
// RowSet down to its first row via the handle's callback, so forcing it
// returns a one-row RowSet directly.
func (c *Conn) SelectOne(ctx context.Context, sql string, binds []any) (*Deferred, error) {
	return c.ExecQuery(ctx, sql, binds, true, func(r Result) Result {
		if r.Kind() != KindRowSet {
			return r
		}
		first := r.First()
		if first == nil {
			return NewRowSet(RowSet{Columns: r.Columns()})
		}
		return NewRowSet(RowSet{Columns: r.Columns(), Rows: [][]any{first}})
	})
}

// SelectValue issues a row-returning query and projects the resolved
// result down to the first column of its first row.
func (c *Conn) SelectValue(ctx context.Context, sql string, binds []any) (*Deferred, error) {
	return c.ExecQuery(ctx, sql, binds, true, func(r Result) Result {
		if r.Kind() != KindRowSet {
			return r
		}
		first := r.First()
		if len(first) == 0 {
			return NewRawArray(nil)
		}
		return NewRawArray([]any{first[0]})
	})
}

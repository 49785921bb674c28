// Package faketest provides a scripted fake backend implementing
// backendiface.BackendConn/BackendPipeline, so the dispatch/drain engine's
// FIFO-resolution, aborted-pipeline, and cache-expiry-retry logic can be
// exercised deterministically without a live Postgres socket.
package faketest

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/shipq/pgpipeline/pgpipeline/internal/backendiface"
)

// Reply is one scripted backend reply. Exactly one of Rows/Affected/Err/
// Sync/Close should be set; PipelineSync and CloseComplete replies carry
// no payload.
type Reply struct {
	// Columns/Rows populate a backendiface.RowReader-shaped success reply.
	Columns []pgconn.FieldDescription
	Rows    [][][]byte

	// Affected, when Columns is empty, is the CommandTag's affected-row
	// count for a non-row-returning success reply.
	Affected int64

	// Err, when set, makes GetResults return (nil, Err) for this step —
	// modeling a *pgconn.PgError fatal reply.
	Err error

	// Sync marks this step as a PipelineSync marker.
	Sync bool

	// Close marks this step as a CloseComplete (DEALLOCATE ack).
	Close bool
}

// Conn is a fake backendiface.BackendConn.
type Conn struct {
	TxStatusByte byte
	closed       bool
	pipeline     *Pipeline
}

// NewConn returns a fake connection whose single pipeline replays script
// in order across successive GetResults calls.
func NewConn(script []Reply) *Conn {
	return &Conn{
		TxStatusByte: 'I',
		pipeline:     &Pipeline{script: script},
	}
}

// Pipeline exposes the fake's current Pipeline for assertions (Sent log,
// rescripting).
func (c *Conn) Pipeline() *Pipeline { return c.pipeline }

func (c *Conn) StartPipeline(ctx context.Context) backendiface.BackendPipeline {
	return c.pipeline
}

func (c *Conn) TxStatus() byte { return c.TxStatusByte }

func (c *Conn) Close(ctx context.Context) error { c.closed = true; return nil }

func (c *Conn) IsClosed() bool { return c.closed }

var _ backendiface.BackendConn = (*Conn)(nil)

// Pipeline is a fake backendiface.BackendPipeline that replays a fixed
// script of replies, ignoring the actual content of Send* calls (tests
// assert on dispatch order via the Sent log instead).
type Pipeline struct {
	script []Reply
	cursor int

	// Sent records every Send* call, in order, for assertions about
	// dispatch ordering (§8 S3 "instrumented SQL order").
	Sent []string

	closed bool
}

func (p *Pipeline) SendPrepare(name, sql string, paramOIDs []uint32) {
	p.Sent = append(p.Sent, fmt.Sprintf("PREPARE %s: %s", name, sql))
}

func (p *Pipeline) SendDeallocate(name string) {
	p.Sent = append(p.Sent, fmt.Sprintf("DEALLOCATE %s", name))
}

func (p *Pipeline) SendQueryParams(sql string, paramValues [][]byte, paramOIDs []uint32, paramFormats []int16, resultFormats []int16) {
	p.Sent = append(p.Sent, fmt.Sprintf("QUERY: %s", sql))
}

func (p *Pipeline) SendQueryPrepared(stmtName string, paramValues [][]byte, paramFormats []int16, resultFormats []int16) {
	p.Sent = append(p.Sent, fmt.Sprintf("EXECUTE %s", stmtName))
}

func (p *Pipeline) Flush() error { return nil }

func (p *Pipeline) Sync() error { return nil }

func (p *Pipeline) Close() error { p.closed = true; return nil }

// GetResults replays the next scripted step.
func (p *Pipeline) GetResults() (results any, err error) {
	if p.cursor >= len(p.script) {
		return nil, errors.New("faketest: script exhausted")
	}
	step := p.script[p.cursor]
	p.cursor++

	switch {
	case step.Err != nil:
		return nil, step.Err
	case step.Sync:
		return &pgconn.PipelineSync{}, nil
	case step.Close:
		return &pgconn.CloseComplete{}, nil
	case step.Columns != nil:
		return &rowReader{columns: step.Columns, rows: step.Rows}, nil
	default:
		return &rowReader{affected: step.Affected}, nil
	}
}

var _ backendiface.BackendPipeline = (*Pipeline)(nil)

// rowReader implements backendiface.RowReader for a scripted reply,
// standing in for a real *pgconn.ResultReader.
type rowReader struct {
	columns  []pgconn.FieldDescription
	rows     [][][]byte
	affected int64

	cursor int
}

func (r *rowReader) FieldDescriptions() []pgconn.FieldDescription { return r.columns }

func (r *rowReader) NextRow() bool {
	if r.cursor >= len(r.rows) {
		return false
	}
	r.cursor++
	return true
}

func (r *rowReader) Values() [][]byte {
	if r.cursor == 0 || r.cursor > len(r.rows) {
		return nil
	}
	return r.rows[r.cursor-1]
}

func (r *rowReader) Close() (pgconn.CommandTag, error) {
	if len(r.columns) == 0 {
		return pgconn.NewCommandTag(fmt.Sprintf("UPDATE %d", r.affected)), nil
	}
	return pgconn.NewCommandTag(fmt.Sprintf("SELECT %d", len(r.rows))), nil
}

var _ backendiface.RowReader = (*rowReader)(nil)

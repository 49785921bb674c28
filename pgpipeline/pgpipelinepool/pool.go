// Package pgpipelinepool is the connection-pool collaborator named in
// spec §6 ("Connection pool: invokes the check-in hook on release"),
// built on jackc/puddle/v2 — the same generic resource pool pgx itself
// uses to implement pgxpool.
package pgpipelinepool

import (
	"context"
	"fmt"

	"github.com/jackc/puddle/v2"

	"github.com/shipq/pgpipeline/pgpipeline"
)

// Pool is a bounded pool of *pgpipeline.Conn. Releasing a connection back
// to the pool invokes its Check-in Hook before the connection becomes
// available to the next caller (§4.H).
type Pool struct {
	p *puddle.Pool[*pgpipeline.Conn]
}

// Constructor builds a fresh *pgpipeline.Conn for the pool to hand out.
type Constructor func(ctx context.Context) (*pgpipeline.Conn, error)

// New creates a Pool with the given max size, using constructor to build
// new connections on demand.
func New(maxSize int32, constructor Constructor) (*Pool, error) {
	p, err := puddle.NewPool(&puddle.Config[*pgpipeline.Conn]{
		Constructor: func(ctx context.Context) (*pgpipeline.Conn, error) {
			return constructor(ctx)
		},
		Destructor: func(conn *pgpipeline.Conn) {
			_ = conn.Disconnect(context.Background())
		},
		MaxSize: maxSize,
	})
	if err != nil {
		return nil, fmt.Errorf("pgpipelinepool: %w", err)
	}
	return &Pool{p: p}, nil
}

// Acquire checks out a connection, blocking until one is available or ctx
// is done.
func (p *Pool) Acquire(ctx context.Context) (*puddle.Resource[*pgpipeline.Conn], error) {
	return p.p.Acquire(ctx)
}

// CheckIn implements pgpipeline.Pool by calling the Conn's own check-in
// hook. Release runs the same hook directly before returning the puddle
// resource to the pool.
func (p *Pool) CheckIn(ctx context.Context, conn *pgpipeline.Conn) error {
	return conn.CheckIn(ctx)
}

// Release runs the check-in hook and returns the resource to the pool.
func (p *Pool) Release(ctx context.Context, res *puddle.Resource[*pgpipeline.Conn]) {
	if err := res.Value().CheckIn(ctx); err != nil {
		res.Destroy()
		return
	}
	res.Release()
}

// Close destroys every pooled connection.
func (p *Pool) Close() { p.p.Close() }

var _ pgpipeline.Pool = (*Pool)(nil)

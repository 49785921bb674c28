package pgpipelinepool_test

import (
	"context"
	"testing"

	"github.com/shipq/pgpipeline/pgpipeline"
	"github.com/shipq/pgpipeline/pgpipeline/internal/faketest"
	"github.com/shipq/pgpipeline/pgpipeline/pgpipelinepool"
)

// TestPool_ReleaseRunsCheckIn verifies that releasing a connection back to
// the pool drains any still-Pending handle through the check-in hook
// before the underlying puddle resource becomes available again.
func TestPool_ReleaseRunsCheckIn(t *testing.T) {
	fake := faketest.NewConn([]faketest.Reply{
		{Affected: 1},
		{Sync: true},
	})
	conn := pgpipeline.NewWithBackend(fake, pgpipeline.Options{})

	pool, err := pgpipelinepool.New(1, func(ctx context.Context) (*pgpipeline.Conn, error) {
		return conn, nil
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer pool.Close()

	ctx := context.Background()
	res, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	h, err := res.Value().ExecQuery(ctx, "UPDATE widgets SET name = $1", []any{"gamma"}, false, nil)
	if err != nil {
		t.Fatalf("ExecQuery: %v", err)
	}

	pool.Release(ctx, res)

	if h.State() != pgpipeline.StateResolved {
		t.Fatalf("expected check-in to drain the outstanding handle, got state %v", h.State())
	}
}

package pgpipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// endlessLoopThreshold is the observation window named in §5: a drain
// that makes no progress for this long logs a diagnostic, but does not
// cancel anything (spec.md §9: "not a cancellation deadline").
const endlessLoopThreshold = 20 * time.Second

// drainUntil blocks until target reaches a terminal state (or, if target
// is nil, until the queue is fully drained), consuming backend replies
// and assigning them to handles in FIFO order (§4.D).
func (c *Conn) drainUntil(target *Deferred) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.drainLocked(target)
}

// drainLocked is drainUntil's body, callable by code that already holds
// c.mu (e.g. flushPipelineAndGetSyncResult, which must drain outstanding
// work before issuing an administrative statement).
func (c *Conn) drainLocked(target *Deferred) {
	if target != nil && target.state != StatePending {
		return
	}
	if c.pipeline == nil {
		return
	}
	if c.hasUnsyncedSends {
		if err := c.pipeline.Sync(); err != nil {
			c.failAllPendingLocked(classifyTransportError(err))
			return
		}
		c.pendingSyncs++
		if err := c.pipeline.Flush(); err != nil {
			c.failAllPendingLocked(classifyTransportError(err))
			return
		}
		c.hasUnsyncedSends = false
	}

	lastProgress := time.Now()
	for {
		if target == nil && c.queue.len() == 0 && c.pendingSyncs == 0 {
			return
		}

		results, err := c.pipeline.GetResults()
		switch {
		case err != nil:
			c.onFatalReplyLocked(err)
			lastProgress = time.Now()
		case results == nil:
			c.observeNoProgressLocked(&lastProgress)
		default:
			switch r := results.(type) {
			case RowReader:
				c.onResultReaderLocked(r)
				lastProgress = time.Now()
			case *pgconn.PipelineSync:
				c.pipelineAborted = false
				c.pendingSyncs--
				if c.backend.TxStatus() == 'E' {
					c.logger().Warn("pgpipeline: transaction in error status, stopping drain",
						"queue_len", c.queue.len(),
					)
					return
				}
				if c.queue.len() == 0 {
					return
				}
			case *pgconn.CloseComplete:
				// DEALLOCATE acknowledgment; no queue entry to pop.
			default:
				c.logger().Warn("pgpipeline: unrecognized pipeline reply", "type", fmt.Sprintf("%T", r))
			}
		}

		// §4.D: once target resolves, stop as soon as C is non-empty —
		// the caller has what it needs and remaining replies stay
		// queued for a later drain. If C is empty, keep looping only
		// while a sync debt is still outstanding (pendingSyncs > 0):
		// the trailing PipelineSync marker (handled above) must be
		// consumed before stopping, unless a nested call already
		// consumed it on this drain's behalf (§4.E cache-expiry retry,
		// which recurses into drainLocked/flushPipelineAndGetSyncResult
		// from inside this same handle's error hook).
		if target != nil && target.state != StatePending {
			if c.queue.len() > 0 || c.pendingSyncs == 0 {
				return
			}
		}
	}
}

// onFatalReplyLocked handles a GetResults error: pop the head handle and
// classify the error, distinguishing the statement that actually caused
// the pipeline to abort from the ones collaterally swept up in it
// (§4.D "Pipeline Aborted reply").
func (c *Conn) onFatalReplyLocked(err error) {
	h := c.queue.popFront()
	if h == nil {
		return
	}
	if c.pipelineAborted {
		h.assignError(priorQueryPipelineError())
		return
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		c.pipelineAborted = true
		h.assignError(classifyPgError(pgErr))
		return
	}
	h.assignError(classifyTransportError(err))
}

// onResultReaderLocked handles a successful reply: pop the head handle,
// materialize its rows via the type registry, and assign.
func (c *Conn) onResultReaderLocked(r RowReader) {
	h := c.queue.popFront()

	result, err := c.materializeResultReader(r)
	if h == nil {
		return
	}
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			c.pipelineAborted = true
			h.assignError(classifyPgError(pgErr))
		} else {
			h.assignError(classifyTransportError(err))
		}
		return
	}
	h.assign(result)
}

// materializeResultReader drains a single ResultReader to completion and
// converts it into a Result, decoding columns through the type registry.
func (c *Conn) materializeResultReader(r RowReader) (Result, error) {
	fds := r.FieldDescriptions()
	var rows [][]any

	for r.NextRow() {
		raw := r.Values()
		row := make([]any, len(raw))
		for i, v := range raw {
			if i < len(fds) {
				decoded, err := c.typeRegistry.Decode(fds[i].DataTypeOID, fds[i].TypeModifier, string(fds[i].Name), v)
				if err != nil {
					row[i] = nil
					continue
				}
				row[i] = decoded
			} else {
				row[i] = v
			}
		}
		rows = append(rows, row)
	}

	cmdTag, err := r.Close()
	if err != nil {
		return Result{}, err
	}

	if len(fds) == 0 {
		return NewAffectedCount(cmdTag.RowsAffected()), nil
	}

	cols := make([]Column, len(fds))
	for i, fd := range fds {
		cols[i] = Column{Name: string(fd.Name), OID: fd.DataTypeOID, TypeModifier: fd.TypeModifier}
	}
	return NewRowSet(RowSet{Columns: cols, Rows: rows}), nil
}

// observeNoProgressLocked implements the §5 "endless-loop guard": a nil
// reply with a non-empty queue and no progress for endlessLoopThreshold
// logs a diagnostic and keeps draining. It never converts to a hard
// error here; spec.md §9 leaves that escalation to the implementer, and
// this implementation's choice (documented in DESIGN.md) is to stay
// log-only.
func (c *Conn) observeNoProgressLocked(lastProgress *time.Time) {
	if time.Since(*lastProgress) < endlessLoopThreshold {
		return
	}
	c.logger().Warn("pgpipeline: drain loop making no progress",
		"queue_len", c.queue.len(),
		"stalled_for", time.Since(*lastProgress).String(),
	)
	// TODO(drain-deadline): if this threshold should become a hard
	// error rather than a diagnostic, plumb a context deadline into
	// drainUntil/drainLocked here.
	*lastProgress = time.Now()
}

// failAllPendingLocked resolves every still-Pending handle in the queue
// with err. Used when the transport itself fails mid-drain.
func (c *Conn) failAllPendingLocked(err error) {
	for _, h := range c.queue.clear() {
		h.assignError(err)
	}
}

// flushPipelineAndGetSyncResult drains any outstanding work, then runs
// sendOp, syncs, and consumes exactly the reply(ies) produced by sendOp
// plus the trailing sync marker — used for administrative statements
// (PREPARE, DEALLOCATE, DISCARD ALL, ROLLBACK, SELECT 1) that must never
// interleave with user handles (§4.D). Must be called with c.mu held.
func (c *Conn) flushPipelineAndGetSyncResult(sendOp func() error) (Result, error) {
	c.drainLocked(nil)

	if err := sendOp(); err != nil {
		return Result{}, classifyTransportError(err)
	}
	if err := c.pipeline.Sync(); err != nil {
		return Result{}, classifyTransportError(err)
	}
	c.pendingSyncs++
	if err := c.pipeline.Flush(); err != nil {
		return Result{}, classifyTransportError(err)
	}

	var result Result
	var resultErr error
	for {
		results, err := c.pipeline.GetResults()
		switch {
		case err != nil:
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) {
				resultErr = classifyPgError(pgErr)
			} else {
				resultErr = classifyTransportError(err)
			}
		case results == nil:
			continue
		default:
			switch r := results.(type) {
			case RowReader:
				result, err = c.materializeResultReader(r)
				if err != nil {
					var pgErr *pgconn.PgError
					if errors.As(err, &pgErr) {
						resultErr = classifyPgError(pgErr)
					} else {
						resultErr = classifyTransportError(err)
					}
				}
			case *pgconn.CloseComplete:
				// nothing to materialize
			case *pgconn.PipelineSync:
				c.pendingSyncs--
				return result, resultErr
			default:
				c.logger().Warn("pgpipeline: unrecognized pipeline reply", "type", fmt.Sprintf("%T", r))
			}
		}
	}
}

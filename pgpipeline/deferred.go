package pgpipeline

import (
	"fmt"
	"runtime"
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle stage of a Deferred handle (§3 "Deferred Handle").
type State int

const (
	// StatePending means the handle has not yet received a reply.
	StatePending State = iota
	// StateResolved means the handle terminated successfully.
	StateResolved
	// StateFailed means the handle terminated with an error.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateResolved:
		return "resolved"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ErrorHook is installed via Deferred.OnError and runs, in registration
// order, when a handle's drain resolves to an error. A hook that returns
// nil consumes the error and stops propagation (the caller sees no error);
// a hook that returns a non-nil error — the same one or a different one —
// passes it to the next hook, or raises it to the forcer if it was the
// last hook (§4.B).
type ErrorHook func(h *Deferred, err error) error

// DebugCreationSite gates the caller-site trace capture on Deferred
// creation. Off by default: walking runtime.Callers on every issued
// statement is not something a caller should pay for unconditionally
// (§9 "Caller-site trace capture").
var DebugCreationSite = false

// creationSiteDepth bounds how many frames are captured when
// DebugCreationSite is enabled.
const creationSiteDepth = 8

// Deferred is a placeholder for a reply not yet read off the pipeline
// (§4.B). Every accessor that corresponds to an operation on the
// underlying Result forces materialization first; CorrelationID, State,
// and OnError do not.
type Deferred struct {
	conn *Conn

	sql   string
	binds []any

	state State
	value Result
	err   error

	callback   func(Result) Result
	errorHooks []ErrorHook

	creationSite []string
	creationTime time.Time
	resolvedTime time.Time

	correlationID uuid.UUID
}

// newDeferred constructs a Pending handle for the given statement text and
// binds. Must only be called with conn.mu held: the caller is expected to
// push the returned handle onto conn.queue before releasing the lock.
func newDeferred(conn *Conn, sql string, binds []any, callback func(Result) Result) *Deferred {
	h := &Deferred{
		conn:          conn,
		sql:           sql,
		binds:         binds,
		state:         StatePending,
		callback:      callback,
		creationTime:  time.Now(),
		correlationID: uuid.New(),
	}
	if DebugCreationSite {
		h.creationSite = captureCreationSite()
	}
	return h
}

func captureCreationSite() []string {
	pcs := make([]uintptr, creationSiteDepth)
	n := runtime.Callers(3, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	var sites []string
	for {
		frame, more := frames.Next()
		sites = append(sites, fmt.Sprintf("%s:%d %s", frame.File, frame.Line, frame.Function))
		if !more {
			break
		}
	}
	return sites
}

// OnError appends an error hook. Multiple hooks are allowed and run in
// registration order. Does not force.
func (h *Deferred) OnError(hook ErrorHook) {
	h.errorHooks = append(h.errorHooks, hook)
}

// State reports the handle's current lifecycle state without forcing.
func (h *Deferred) State() State { return h.state }

// Scheduled reports whether the handle is still Pending, without forcing
// (§8 S1: "handle.scheduled?").
func (h *Deferred) Scheduled() bool { return h.state == StatePending }

// CorrelationID is the instrumentation correlation id assigned at issue
// time. Does not force.
func (h *Deferred) CorrelationID() uuid.UUID { return h.correlationID }

// SQL returns the statement text this handle was issued for. Does not
// force.
func (h *Deferred) SQL() string { return h.sql }

// CreationSite returns the captured call-site trace, or nil if
// DebugCreationSite was false at issue time. Does not force.
func (h *Deferred) CreationSite() []string { return h.creationSite }

// Force blocks until the handle reaches a terminal state, draining the
// connection as needed, then returns the resolved value or error.
// Force is idempotent: a handle already terminal returns immediately
// without re-draining (§8 S1 "second access re-uses cached
// materialization").
func (h *Deferred) Force() (Result, error) {
	if h.state == StatePending {
		h.conn.drainUntil(h)
	}
	return h.value, h.err
}

// Rows forces the handle and returns the underlying RowSet's rows.
func (h *Deferred) Rows() ([][]any, error) {
	v, err := h.Force()
	if err != nil {
		return nil, err
	}
	return v.Rows(), nil
}

// Columns forces the handle and returns the underlying RowSet's columns.
func (h *Deferred) Columns() ([]Column, error) {
	v, err := h.Force()
	if err != nil {
		return nil, err
	}
	return v.Columns(), nil
}

// First forces the handle and returns the first row of a RowSet result.
func (h *Deferred) First() ([]any, error) {
	v, err := h.Force()
	if err != nil {
		return nil, err
	}
	return v.First(), nil
}

// Len forces the handle and returns the row count of a RowSet result.
func (h *Deferred) Len() (int, error) {
	v, err := h.Force()
	if err != nil {
		return 0, err
	}
	return v.Len(), nil
}

// RowsAffected forces the handle and returns the affected-row count of an
// AffectedCount result.
func (h *Deferred) RowsAffected() (int64, error) {
	v, err := h.Force()
	if err != nil {
		return 0, err
	}
	return v.RowsAffected(), nil
}

// Items forces the handle and returns the underlying RawArray's items.
func (h *Deferred) Items() ([]any, error) {
	v, err := h.Force()
	if err != nil {
		return nil, err
	}
	return v.Items(), nil
}

// EqualValue forces the handle and compares its resolved value against
// other using the Result's row/count/item data (§3 "Equality against a
// non-handle forces materialization").
func (h *Deferred) EqualValue(other Result) bool {
	v, err := h.Force()
	if err != nil {
		return false
	}
	if v.Kind() != other.Kind() {
		return false
	}
	switch v.Kind() {
	case KindAffectedCount:
		return v.RowsAffected() == other.RowsAffected()
	case KindRawArray:
		return equalAnySlice(v.Items(), other.Items())
	default:
		if len(v.Rows()) != len(other.Rows()) {
			return false
		}
		for i := range v.Rows() {
			if !equalAnySlice(v.Rows()[i], other.Rows()[i]) {
				return false
			}
		}
		return true
	}
}

func equalAnySlice(a, b []any) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if fmt.Sprint(a[i]) != fmt.Sprint(b[i]) {
			return false
		}
	}
	return true
}

// assign records the first successful terminal transition. Must be called
// with conn.mu held, and at most once per handle (the drain loop pops a
// handle off the queue before calling assign, so this is naturally
// enforced: a popped handle is never pushed again).
func (h *Deferred) assign(raw Result) {
	if h.state != StatePending {
		return
	}
	value := raw
	if h.callback != nil {
		value = h.callback(raw)
	}
	h.value = value
	h.state = StateResolved
	h.resolvedTime = time.Now()
}

// assignError records a failed terminal transition, running error hooks
// first. A hook that returns nil and has itself resolved the handle (e.g.
// a cache-expiry retry hook that reissued the statement and called
// assign) leaves that resolution in place. A hook that returns nil without
// resolving the handle consumes the error silently, resolving it to a
// zero-value Result so the forcing caller sees no error (§8 S6). Must be
// called with conn.mu held.
func (h *Deferred) assignError(err error) {
	if h.state != StatePending {
		return
	}
	for _, hook := range h.errorHooks {
		next := hook(h, err)
		if next == nil {
			if h.state == StatePending {
				h.assign(Result{})
			}
			return
		}
		err = next
	}
	h.err = err
	h.state = StateFailed
	h.resolvedTime = time.Now()
}

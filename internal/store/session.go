package store

import (
	"context"
	"database/sql"
	"errors"
)

// Mode is the execution mode a session is constructed with. It never changes
// for the lifetime of the session.
type Mode int

const (
	// ModeBlocking executes store calls synchronously on the caller's
	// goroutine with no cancellation point.
	ModeBlocking Mode = iota + 1
	// ModeNonBlocking suspends at store-call boundaries until the underlying
	// query completes or the supplied context is done.
	ModeNonBlocking
)

func (m Mode) String() string {
	switch m {
	case ModeBlocking:
		return "blocking"
	case ModeNonBlocking:
		return "non-blocking"
	default:
		return "unknown"
	}
}

// ErrModeMismatch reports a blocking call on a non-blocking session or the
// reverse. It indicates a caller defect and is never retried.
var ErrModeMismatch = errors.New("store: operation mode does not match session mode")

// DB is the subset of database/sql a session needs. *sql.DB and *sql.Tx both
// satisfy it, so a session can be bound to a pool or to one transaction.
type DB interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Change is one pending write. When Dest is non-empty the statement is
// expected to return exactly one row (RETURNING) scanned into Dest at flush.
type Change struct {
	Query string
	Args  []any
	Dest  []any
}

// Session is a unit of work bound to one store connection or transaction.
// Writes queue until Flush; reads flush pending writes first so the store
// sees them inside the surrounding transaction. A session is owned by one
// logical unit of work at a time and is not safe for concurrent use.
type Session struct {
	mode    Mode
	db      DB
	pending []Change
}

// NewBlockingSession returns a session whose repository operations must be
// invoked through their blocking forms.
func NewBlockingSession(db DB) *Session {
	return &Session{mode: ModeBlocking, db: db}
}

// NewSession returns a non-blocking session whose repository operations must
// be invoked through their Context forms.
func NewSession(db DB) *Session {
	return &Session{mode: ModeNonBlocking, db: db}
}

// Mode reports the execution mode fixed at construction.
func (s *Session) Mode() Mode { return s.mode }

// Enqueue registers a pending change executed on the next flush.
func (s *Session) Enqueue(ch Change) {
	s.pending = append(s.pending, ch)
}

// Pending reports the number of queued changes.
func (s *Session) Pending() int { return len(s.pending) }

// Flush sends queued changes to the store in issue order. RETURNING values
// are scanned back so generated identities are usable before commit.
// Constraint violations surface here unchanged from the driver. On error the
// queue is discarded; the unit of work is expected to roll back.
func (s *Session) Flush(ctx context.Context) error {
	queued := s.pending
	s.pending = nil
	for _, ch := range queued {
		if len(ch.Dest) > 0 {
			if err := s.db.QueryRowContext(ctx, ch.Query, ch.Args...).Scan(ch.Dest...); err != nil {
				return err
			}
			continue
		}
		if _, err := s.db.ExecContext(ctx, ch.Query, ch.Args...); err != nil {
			return err
		}
	}
	return nil
}

// Query runs a multi-row read after flushing pending changes.
func (s *Session) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if err := s.Flush(ctx); err != nil {
		return nil, err
	}
	return s.db.QueryContext(ctx, query, args...)
}

// ScanRow runs a single-row read after flushing pending changes. A missing
// row is reported as sql.ErrNoRows.
func (s *Session) ScanRow(ctx context.Context, query string, args []any, dest ...any) error {
	if err := s.Flush(ctx); err != nil {
		return err
	}
	return s.db.QueryRowContext(ctx, query, args...).Scan(dest...)
}

// CountRows evaluates a count aggregate after flushing pending changes.
func (s *Session) CountRows(ctx context.Context, query string, args ...any) (int64, error) {
	var n int64
	if err := s.ScanRow(ctx, query, args, &n); err != nil {
		return 0, err
	}
	return n, nil
}

// Exec runs a write immediately, flushing queued changes first to preserve
// issue order.
func (s *Session) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if err := s.Flush(ctx); err != nil {
		return nil, err
	}
	return s.db.ExecContext(ctx, query, args...)
}

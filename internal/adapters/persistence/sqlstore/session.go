package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jsamuelsen/go-cleanarch-kit/internal/platform/logging"
	"github.com/jsamuelsen/go-cleanarch-kit/internal/platform/metrics"
	"github.com/jsamuelsen/go-cleanarch-kit/internal/ports"
)

// ErrSessionClosed is returned by operations on a closed session.
var ErrSessionClosed = errors.New("session is closed")

// Session is a lazily begun unit of work. The first statement begins a
// transaction and every later statement of the unit runs on it.
type Session struct {
	db      *sql.DB
	dialect Dialect
	txOpts  *sql.TxOptions
	metrics *metrics.Metrics

	mu     sync.Mutex
	tx     *sql.Tx
	closed bool
}

var _ ports.Session = (*Session)(nil)

// querier is satisfied by *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Dialect returns the SQL dialect of the session's database.
func (s *Session) Dialect() Dialect {
	return s.dialect
}

// InTransaction reports whether a unit of work is open.
func (s *Session) InTransaction() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.tx != nil
}

func (s *Session) conn(ctx context.Context) (querier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrSessionClosed
	}

	if s.tx == nil {
		tx, err := s.db.BeginTx(ctx, s.txOpts)
		if err != nil {
			return nil, fmt.Errorf("beginning unit of work: %w", err)
		}

		s.tx = tx
	}

	return s.tx, nil
}

// Commit implements ports.Session. Committing with no open unit is a no-op.
func (s *Session) Commit(ctx context.Context) error {
	s.mu.Lock()
	tx := s.tx
	s.tx = nil
	closed := s.closed
	s.mu.Unlock()

	if closed {
		return ErrSessionClosed
	}

	if tx == nil {
		return nil
	}

	if err := tx.Commit(); err != nil {
		s.metrics.ObserveSession("commit_failed")
		return fmt.Errorf("committing unit of work: %w", err)
	}

	s.metrics.ObserveSession("commit")
	logging.FromContext(ctx).Debug("unit of work committed", slog.String("dialect", s.dialect.Name()))

	return nil
}

// Rollback implements ports.Session.
func (s *Session) Rollback(ctx context.Context) error {
	s.mu.Lock()
	tx := s.tx
	s.tx = nil
	s.mu.Unlock()

	if tx == nil {
		return nil
	}

	err := tx.Rollback()
	if err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rolling back unit of work: %w", err)
	}

	s.metrics.ObserveSession("rollback")
	logging.FromContext(ctx).Debug("unit of work rolled back", slog.String("dialect", s.dialect.Name()))

	return nil
}

// Close implements ports.Session. Any unfinished unit is rolled back.
func (s *Session) Close(ctx context.Context) error {
	err := s.Rollback(ctx)

	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	return err
}

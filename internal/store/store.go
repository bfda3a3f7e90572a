// Package store is the only writer to the SQLite database. Every insert and
// update runs the validate package first; a rejected entity is never written.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"go.uber.org/zap"

	"github.com/saadjs/kcal-core/internal/model"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var builder = sq.StatementBuilder.PlaceholderFormat(sq.Question)

type Store struct {
	db   *sql.DB
	q    querier
	inTx bool
	loc  *time.Location
	now  func() time.Time
	log  *zap.Logger
}

type Option func(*Store)

// WithLocation sets the calendar used to compute day windows. Defaults to time.Local.
func WithLocation(loc *time.Location) Option {
	return func(s *Store) { s.loc = loc }
}

func WithLogger(log *zap.Logger) Option {
	return func(s *Store) { s.log = log }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{db: db, q: db, loc: time.Local, now: time.Now, log: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Location() *time.Location { return s.loc }

// InTx runs fn against a Store bound to a single transaction. The transaction
// commits when fn returns nil and rolls back otherwise. Nested calls reuse the
// outer transaction.
func (s *Store) InTx(ctx context.Context, fn func(tx *Store) error) error {
	if s.inTx {
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return persistErr("begin transaction", err)
	}
	txStore := *s
	txStore.q = tx
	txStore.inTx = true

	if err := fn(&txStore); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.log.Error("rollback failed", zap.Error(rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return persistErr("commit transaction", err)
	}
	return nil
}

// DayWindow returns [start, end) of the local calendar day containing at.
func (s *Store) DayWindow(at time.Time) (time.Time, time.Time) {
	local := at.In(s.loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.loc)
	return start, start.AddDate(0, 0, 1)
}

func (s *Store) exec(ctx context.Context, op string, b sq.Sqlizer) (int64, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build %s query: %w", op, err)
	}
	res, err := s.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, persistErr(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, persistErr(op, err)
	}
	return n, nil
}

func (s *Store) count(ctx context.Context, table string, where ...sq.Sqlizer) (int, error) {
	b := builder.Select("COUNT(1)").From(table)
	for _, w := range where {
		b = b.Where(w)
	}
	query, args, err := b.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count query: %w", err)
	}
	var n int
	if err := s.q.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, persistErr("count "+table, err)
	}
	return n, nil
}

func (s *Store) exists(ctx context.Context, table, column string, value any) (bool, error) {
	n, err := s.count(ctx, table, sq.Eq{column: value})
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ApproximateSize reports the database file size from SQLite page counts.
func (s *Store) ApproximateSize(ctx context.Context) (int64, error) {
	var size int64
	err := s.q.QueryRowContext(ctx,
		`SELECT page_count * page_size FROM pragma_page_count(), pragma_page_size()`).Scan(&size)
	if err != nil {
		return 0, persistErr("read database size", err)
	}
	return size, nil
}

// SetMeta records a sync bookkeeping value.
func (s *Store) SetMeta(ctx context.Context, key, value string) error {
	_, err := s.exec(ctx, "set sync state", builder.Insert("sync_state").
		Columns("key", "value", "updated_at").
		Values(key, value, toNanos(s.now())).
		Suffix("ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at"))
	return err
}

// Meta returns the stored value and whether the key exists.
func (s *Store) Meta(ctx context.Context, key string) (string, bool, error) {
	query, args, err := builder.Select("value").From("sync_state").Where(sq.Eq{"key": key}).ToSql()
	if err != nil {
		return "", false, fmt.Errorf("build sync state query: %w", err)
	}
	var value string
	err = s.q.QueryRowContext(ctx, query, args...).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, persistErr("read sync state", err)
	}
	return value, true, nil
}

func persistErr(op string, err error) error {
	return &model.PersistenceError{Op: op, Err: err}
}

func notFound(kind string, id any) error {
	return fmt.Errorf("%s %v: %w", kind, id, model.ErrNotFound)
}

func toNanos(t time.Time) int64 {
	return t.UnixNano()
}

func (s *Store) fromNanos(n int64) time.Time {
	return time.Unix(0, n).In(s.loc)
}

// Package store is the relational persistence layer: connection pools,
// migrations, transaction scoping and the book, member, loan and staff tables.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // goqu dialect
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"  // goqu dialect
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"           // postgres driver
	_ "github.com/mattn/go-sqlite3" // sqlite driver
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Supported drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

const (
	defaultMaxOpenConnections = 25
	defaultMaxIdleConnections = 10
	defaultMaxConnLifetime    = time.Hour
	defaultMaxConnIdleTime    = 5 * time.Minute
)

// Store owns the connection pools. On SQLite writes go through a single
// connection opened with an immediate transaction lock, so write transactions
// never interleave; reads use a separate pool.
type Store struct {
	db      *sqlx.DB
	read    *sqlx.DB
	driver  string
	dialect goqu.DialectWrapper
	logger  *slog.Logger
	tracer  trace.Tracer
}

// Open connects to the database named by driver and dsn. For SQLite the dsn
// is a file path.
func Open(ctx context.Context, driver, dsn string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var writeDB, readDB *sqlx.DB
	var err error

	switch driver {
	case DriverPostgres:
		writeDB, err = sqlx.Open(DriverPostgres, dsn)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		writeDB.SetMaxOpenConns(defaultMaxOpenConnections)
		writeDB.SetMaxIdleConns(defaultMaxIdleConnections)
		writeDB.SetConnMaxLifetime(defaultMaxConnLifetime)
		writeDB.SetConnMaxIdleTime(defaultMaxConnIdleTime)
		readDB = writeDB
	case DriverSQLite:
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create db dir: %w", err)
			}
		}
		writeDB, err = sqlx.Open(DriverSQLite, sqliteDSN(dsn, true))
		if err != nil {
			return nil, fmt.Errorf("open sqlite (write): %w", err)
		}
		writeDB.SetMaxOpenConns(1)
		writeDB.SetMaxIdleConns(1)
		readDB, err = sqlx.Open(DriverSQLite, sqliteDSN(dsn, false))
		if err != nil {
			_ = writeDB.Close()
			return nil, fmt.Errorf("open sqlite (read): %w", err)
		}
		readDB.SetMaxOpenConns(4)
		readDB.SetMaxIdleConns(4)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	s := &Store{
		db:      writeDB,
		read:    readDB,
		driver:  driver,
		dialect: goqu.Dialect(driver),
		logger:  logger,
		tracer:  otel.Tracer("libradesk/store"),
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.db.PingContext(pingCtx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}

	return s, nil
}

func sqliteDSN(path string, write bool) string {
	params := url.Values{}
	params.Set("_journal_mode", "WAL")
	params.Set("_busy_timeout", "5000")
	params.Set("_synchronous", "NORMAL")
	params.Set("_foreign_keys", "on")
	params.Set("_loc", "UTC")
	if write {
		params.Set("_txlock", "immediate")
	}
	return "file:" + path + "?" + params.Encode()
}

// Driver returns the driver name the store was opened with.
func (s *Store) Driver() string {
	return s.driver
}

// Close releases both pools.
func (s *Store) Close() error {
	var errs []string
	if s.read != nil && s.read != s.db {
		if err := s.read.Close(); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if err := s.db.Close(); err != nil {
		errs = append(errs, err.Error())
	}
	if len(errs) > 0 {
		return fmt.Errorf("close store: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Ping checks the write pool.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Reader returns queries bound to the read pool, outside any transaction.
func (s *Store) Reader() *Queries {
	return &Queries{ext: s.read, store: s}
}

// InTx runs fn inside one write transaction. The transaction commits when fn
// returns nil and rolls back otherwise, so no partial state is ever visible.
// Driver-level serialization failures come back as ErrConcurrencyConflict.
func (s *Store) InTx(ctx context.Context, name string, fn func(q *Queries) error) error {
	ctx, span := s.tracer.Start(ctx, "store.tx",
		trace.WithAttributes(
			attribute.String("tx.name", name),
			attribute.String("db.system", s.driver),
		),
	)
	defer span.End()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		err = classify(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "begin")
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&Queries{ext: tx, store: s, inTx: true}); err != nil {
		span.SetAttributes(attribute.Bool("tx.rolled_back", true))
		return classify(err)
	}

	if err := tx.Commit(); err != nil {
		err = classify(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "commit")
		return fmt.Errorf("commit transaction: %w", err)
	}
	span.SetAttributes(attribute.Bool("tx.committed", true))
	return nil
}

// Queries runs statements against either a pool or an open transaction.
type Queries struct {
	ext   sqlx.ExtContext
	store *Store
	inTx  bool
}

// Ext exposes the underlying executor so collaborators such as the loan
// journal can write in the same transaction.
func (q *Queries) Ext() sqlx.ExtContext {
	return q.ext
}

// Driver returns the store's driver name.
func (q *Queries) Driver() string {
	return q.store.driver
}

func (q *Queries) rebind(query string) string {
	return q.store.db.Rebind(query)
}

// forUpdate returns the row-lock suffix for reads that precede a write in the
// same transaction. SQLite needs none: its write transactions hold the
// database lock from BEGIN.
func (q *Queries) forUpdate() string {
	if q.inTx && q.store.driver == DriverPostgres {
		return " FOR UPDATE"
	}
	return ""
}

func (q *Queries) get(ctx context.Context, dest any, query string, args ...any) error {
	return sqlx.GetContext(ctx, q.ext, dest, q.rebind(query), args...)
}

func (q *Queries) sel(ctx context.Context, dest any, query string, args ...any) error {
	return sqlx.SelectContext(ctx, q.ext, dest, q.rebind(query), args...)
}

func (q *Queries) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := q.ext.ExecContext(ctx, q.rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func now() time.Time {
	return time.Now().UTC()
}

package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	_ "github.com/jackc/pgx/v5/stdlib"

	"staffroster.org/internal/auth"
	"staffroster.org/internal/obs"
)

var _ auth.Store = (*Store)(nil)

// Config controls the connection pool.
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	// ConnectAttempts bounds the startup ping retries. Zero means 5.
	ConnectAttempts uint
}

type Store struct {
	db *sql.DB
}

// Open connects to PostgreSQL and waits until the server answers a ping,
// retrying with exponential backoff.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, errors.New("pg: dsn is required")
	}
	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, err
	}
	maxOpen, maxIdle := cfg.MaxOpenConns, cfg.MaxIdleConns
	if maxOpen <= 0 {
		maxOpen = 15
	}
	if maxIdle <= 0 || maxIdle > maxOpen {
		maxIdle = maxOpen
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(orDefault(cfg.ConnMaxLifetime, 15*time.Minute))
	db.SetConnMaxIdleTime(orDefault(cfg.ConnMaxIdleTime, 5*time.Minute))

	attempts := cfg.ConnectAttempts
	if attempts == 0 {
		attempts = 5
	}
	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return struct{}{}, db.PingContext(pingCtx)
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(attempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			obs.Logger().Warn().Err(err).Dur("retry_in", next).Msg("database not reachable")
		}),
	)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pg: connect: %w", err)
	}
	return &Store{db: db}, nil
}

// New wraps an existing handle.
func New(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// Ping checks that the database answers.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Begin implements auth.Store with a read-committed transaction.
func (s *Store) Begin(ctx context.Context) (auth.UnitOfWork, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, mapPgError(err)
	}
	return &unit{tx: tx}, nil
}

type unit struct {
	tx   *sql.Tx
	done bool
}

func (u *unit) Users() auth.UserRepository { return &userRepo{tx: u.tx} }

func (u *unit) Commit() error {
	if u.done {
		return sql.ErrTxDone
	}
	u.done = true
	return mapPgError(u.tx.Commit())
}

func (u *unit) Rollback() error {
	if u.done {
		return nil
	}
	u.done = true
	return u.tx.Rollback()
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

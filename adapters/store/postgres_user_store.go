package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/layer-3/siweauth/core"
	"github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
)

// PostgresUserStore persists users in PostgreSQL. The unique constraint on
// address makes FindOrCreate idempotent across instances.
type PostgresUserStore struct {
	db       *sql.DB
	table    string
	clock    Clock
	timeout  time.Duration
	duration *prometheus.HistogramVec
}

// OpenPostgres opens and pings a PostgreSQL database
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	return db, nil
}

// NewPostgresUserStore creates a user store on table ("users" by default)
func NewPostgresUserStore(db *sql.DB, table string, opts ...Option) *PostgresUserStore {
	o := buildOptions("", opts)
	if table == "" {
		table = "users"
	}
	return &PostgresUserStore{
		db:       db,
		table:    pq.QuoteIdentifier(table),
		clock:    o.clock,
		timeout:  o.timeout,
		duration: o.duration,
	}
}

// Migrate creates the users table when missing
func (s *PostgresUserStore) Migrate(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS ` + s.table + ` (
			id           UUID PRIMARY KEY,
			address      TEXT NOT NULL UNIQUE,
			display_name TEXT,
			created_at   TIMESTAMPTZ NOT NULL
		)
	`
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("migrate users: %w", err)
	}
	return nil
}

// FindOrCreate inserts the user unless a row for address exists
func (s *PostgresUserStore) FindOrCreate(ctx context.Context, address string) (*core.User, bool, error) {
	defer observe(s.duration, "user_find_or_create", time.Now())
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	address = core.NormalizeAddress(address)
	query := `
		INSERT INTO ` + s.table + ` (id, address, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (address) DO NOTHING
		RETURNING id, address, display_name, created_at
	`
	user, err := scanUser(s.db.QueryRowContext(ctx, query, uuid.New().String(), address, s.clock().UTC()))
	if err == nil {
		return user, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, storeError("create user", err)
	}

	user, err = s.find(ctx, address)
	if err != nil {
		return nil, false, err
	}
	return user, false, nil
}

// FindByAddress returns the user stored for address
func (s *PostgresUserStore) FindByAddress(ctx context.Context, address string) (*core.User, error) {
	defer observe(s.duration, "user_find", time.Now())
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	return s.find(ctx, core.NormalizeAddress(address))
}

func (s *PostgresUserStore) find(ctx context.Context, address string) (*core.User, error) {
	query := `SELECT id, address, display_name, created_at FROM ` + s.table + ` WHERE address = $1`
	user, err := scanUser(s.db.QueryRowContext(ctx, query, address))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrNotAuthenticated
		}
		return nil, storeError("find user", err)
	}
	return user, nil
}

func scanUser(row *sql.Row) (*core.User, error) {
	var (
		user        core.User
		displayName sql.NullString
	)
	if err := row.Scan(&user.ID, &user.Address, &displayName, &user.CreatedAt); err != nil {
		return nil, err
	}
	if displayName.Valid {
		user.DisplayName = &displayName.String
	}
	return &user, nil
}

func storeError(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return fmt.Errorf("%s: %w: %s (%s)", op, core.ErrStoreUnavailable, pqErr.Message, pqErr.Code)
	}
	return fmt.Errorf("%s: %w: %v", op, core.ErrStoreUnavailable, err)
}

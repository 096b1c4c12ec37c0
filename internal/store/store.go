package store

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/newrelic/go-agent/v3/integrations/nrpq" // registers the "nrpostgres" driver
)

//go:embed schema.sql
var schema string

const (
	driverPostgres   = "postgres"
	driverNRPostgres = "nrpostgres"
)

func init() {
	sqlx.BindDriver(driverNRPostgres, sqlx.DOLLAR)
}

// Store is the PostgreSQL-backed OrderStore
type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store. With instrumented set, queries go
// through the New Relic driver so they show up as datastore segments.
func NewStore(databaseURL string, instrumented bool) (*Store, error) {
	driver := driverPostgres
	if instrumented {
		driver = driverNRPostgres
	}

	db, err := sqlx.Connect(driver, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// NewStoreFromDB wraps an existing connection
func NewStoreFromDB(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Migrate applies the embedded schema; it is safe to run repeatedly
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Ping checks the connection, used by readiness probes
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

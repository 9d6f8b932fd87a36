// Package sqlite backs the client registry with a sqlite database so
// registrations survive restarts. Flow state (pending authorizations,
// issued codes, sessions) stays in memory; an interrupted upstream leg
// cannot resume after a restart, so persisting it buys nothing.
package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/ledgerly/agentgate/internal/broker/store"
	"github.com/ledgerly/agentgate/internal/broker/store/memory"

	_ "modernc.org/sqlite"
)

type Store struct {
	db  *sql.DB
	mem *memory.Store
	dsn string
}

func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	// Enforce FKs
	if _, err := db.ExecContext(context.Background(), `PRAGMA foreign_keys = ON;`); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{
		db:  db,
		mem: memory.New(),
		dsn: dsn,
	}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Ping verifies the database connection is still alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Clients() store.Clients { return &clientsRepo{db: s.db} }

func (s *Store) PendingFlows() store.PendingFlows { return s.mem.PendingFlows() }
func (s *Store) IssuedCodes() store.IssuedCodes   { return s.mem.IssuedCodes() }
func (s *Store) Sessions() store.Sessions         { return s.mem.Sessions() }

func mapNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

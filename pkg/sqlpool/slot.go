package sqlpool

import (
	"context"
	"database/sql"
	"sync"
	"time"
)

// openTimeout and pingTimeout bound the blocking driver I/O a slot can
// perform on open and on an is-open probe, so a single wedged network
// call cannot hang the whole pool forever.
const (
	openTimeout = 10 * time.Second
	pingTimeout = 2 * time.Second
)

// slot is a preregistered, named container for at most one driver
// connection. Its name is stable for the pool's lifetime and is the only
// identifier exchanged between the stacks, the registry, and a caller's
// Handle.
type slot struct {
	name     string
	database int
	driver   string
	dsn      string

	postOpenStatements []string
	enableUpsert       bool
	extension          Extension

	mu sync.Mutex
	db *sql.DB
}

// open establishes the slot's single underlying connection. The driver
// name and the registered database/sql driver name are identical for
// every driver this pool wires (sqlite3, mysql, postgres), so no mapping
// is needed beyond the DSN assembled at setup time.
func (s *slot) open(ctx context.Context) error {
	db, err := sql.Open(s.driver, s.dsn)
	if err != nil {
		return err
	}
	// Exactly one physical connection per slot: database/sql's own
	// pooling must never second-guess this pool's single-connection
	// discipline.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	openCtx, cancel := context.WithTimeout(ctx, openTimeout)
	defer cancel()
	if err := db.PingContext(openCtx); err != nil {
		db.Close()
		return err
	}

	s.mu.Lock()
	s.db = db
	s.mu.Unlock()
	return nil
}

// isOpen reports whether the slot's handle is currently usable. This is
// the pool's only health probe: one round trip, no retries, no backoff.
// A nil handle or a failed ping both count as closed.
func (s *slot) isOpen(ctx context.Context) bool {
	s.mu.Lock()
	db := s.db
	s.mu.Unlock()
	if db == nil {
		return false
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return db.PingContext(pingCtx) == nil
}

// close closes the slot's handle, if any, and clears it so the slot is
// ready to be reopened on a future slow-path acquire.
func (s *slot) close() {
	s.mu.Lock()
	db := s.db
	s.db = nil
	s.mu.Unlock()
	if db != nil {
		db.Close()
	}
}

// sqlDB returns the slot's current handle for a caller who just won it on
// the fast or slow acquire path.
func (s *slot) sqlDB() *sql.DB {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db
}

// runPostOpenStatements executes each configured post-open SQL statement
// in order. Individual statement failures are reported through onError
// and never escalated — these are best-effort session setup hooks.
func (s *slot) runPostOpenStatements(ctx context.Context, onError func(statement string, err error)) {
	s.mu.Lock()
	db := s.db
	stmts := s.postOpenStatements
	s.mu.Unlock()

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil && onError != nil {
			onError(stmt, err)
		}
	}
}

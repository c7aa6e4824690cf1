package poolerr

import "errors"

// Acquire errors
var (
	// ErrNoPooledConnection is returned when acquire is called with an
	// out-of-range database index, or the SQL subsystem is unavailable.
	ErrNoPooledConnection = errors.New("no pooled connection")

	// ErrOpenFailed is returned when the driver refused to open a slot's
	// connection on the slow path. Acquire has already returned the slot
	// to the available stack.
	ErrOpenFailed = errors.New("sql database open failed")
)

// Release errors
var (
	// ErrInvalidHandle names a handle that does not belong to this pool,
	// or that has already been released. No pkg/sqlpool operation returns
	// it: Release ignores such a handle silently.
	ErrInvalidHandle = errors.New("invalid pooled handle")
)

// Configuration errors
var (
	// ErrEmptyDatabaseName is logged (never returned to a caller) when a
	// configured database has a non-empty DriverType but an empty
	// DatabaseName; the slot is skipped.
	ErrEmptyDatabaseName = errors.New("database name empty")
)

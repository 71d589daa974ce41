package storage

import (
	"errors"
	"fmt"
)

// Sentinel errors a caller can match with errors.Is; the SQLite backend wraps
// its concrete messages around one of these via wrapf. Errors from
// rows.Err() after a scan loop are returned unwrapped.
var (
	ErrConnectionFailed = errors.New("storage: connection failed")
	ErrQueryFailed      = errors.New("storage: query failed")
	ErrMigrationFailed  = errors.New("storage: migration failed")
	ErrInvalidConfig    = errors.New("storage: invalid configuration")
	ErrUnhealthy        = errors.New("storage: backend unhealthy")
)

// wrapf is a small helper that keeps call sites in sqlite.go readable:
// wrapf(ErrQueryFailed, "inserting %d rows: %v", n, err).
func wrapf(sentinel error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))
}

// Package db owns the on-disk sqlite store: the schema, its pragmas, and
// the get-or-insert / insert / upsert row operations the ingestion
// pipeline drives through actor.DbActor.
package db

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	_ "github.com/mattn/go-sqlite3"
)

// ErrUnsupportedBackend is returned by Open when the linked sqlite engine
// predates `ON CONFLICT ... DO UPDATE` support (3.24.0).
var ErrUnsupportedBackend = errors.New("db: sqlite engine too old, need >= 3.24.0 for upsert")

// ErrStorageIO wraps any I/O or constraint failure reported by the store
// during a unit of work.
var ErrStorageIO = errors.New("db: storage error")

const minSqliteVersion = 3024000 // 3.24.0, first release with upsert

// DefaultBusyTimeout is used by Open when busyTimeout is zero.
const DefaultBusyTimeout = 5 * time.Second

// Open opens (creating if absent) the sqlite store file at dbPath, applies
// the pragmas of SPEC_FULL.md §4.2, and idempotently applies the schema.
// A store that was WAL-checkpointing under a just-exited process can
// transiently report SQLITE_BUSY on open, so the open+schema-apply
// sequence is retried a few times before giving up. busyTimeout bounds how
// long a write waits on SQLITE_BUSY before failing; zero uses
// DefaultBusyTimeout.
func Open(dbPath string, busyTimeout time.Duration) (*sql.DB, error) {
	if busyTimeout <= 0 {
		busyTimeout = DefaultBusyTimeout
	}

	var conn *sql.DB

	err := retry.Do(
		func() error {
			var openErr error
			conn, openErr = openOnce(dbPath, busyTimeout)
			return openErr
		},
		retry.Attempts(3),
		retry.DelayType(retry.FixedDelay),
		retry.Delay(50*time.Millisecond),
	)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func openOnce(dbPath string, busyTimeout time.Duration) (*sql.DB, error) {
	opts := []string{
		"_foreign_keys=1",
		fmt.Sprintf("_busy_timeout=%d", busyTimeout.Milliseconds()),
	}
	conn, err := sql.Open("sqlite3", dbPath+"?"+strings.Join(opts, "&"))
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", ErrStorageIO, dbPath, err)
	}

	// A single pooled connection is what makes synchronous=OFF/
	// journal_mode=MEMORY below (and actor.DbActor's single-writer
	// contract) actually hold: database/sql applies a session pragma only
	// to whichever connection ran the Exec, and silently opens further
	// connections from the pool on demand otherwise.
	conn.SetMaxOpenConns(1)

	if err := checkBackendVersion(conn); err != nil {
		conn.Close()
		return nil, err
	}

	if _, err := conn.Exec(`
		pragma synchronous = OFF;
		pragma journal_mode = MEMORY;
	`); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: setting pragmas: %v", ErrStorageIO, err)
	}

	if err := ApplySchema(conn); err != nil {
		conn.Close()
		return nil, err
	}

	return conn, nil
}

func checkBackendVersion(conn *sql.DB) error {
	var version string
	if err := conn.QueryRow("select sqlite_version()").Scan(&version); err != nil {
		return fmt.Errorf("%w: reading sqlite_version(): %v", ErrStorageIO, err)
	}
	if versionNumber(version) < minSqliteVersion {
		return fmt.Errorf("%w: engine reports %s", ErrUnsupportedBackend, version)
	}
	return nil
}

// versionNumber mirrors sqlite3_libversion_number()'s encoding: X.Y.Z ->
// X*1_000_000 + Y*1_000 + Z.
func versionNumber(version string) int {
	parts := strings.SplitN(version, ".", 3)
	for len(parts) < 3 {
		parts = append(parts, "0")
	}
	major, _ := strconv.Atoi(parts[0])
	minor, _ := strconv.Atoi(parts[1])
	patch, _ := strconv.Atoi(parts[2])
	return major*1_000_000 + minor*1_000 + patch
}

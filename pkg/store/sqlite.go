// Package store provides SQLite-based persistence for access attempts and
// authentication events. It is the durable backing for the gateway's event
// history and the data source for trustctl's offline inspection commands.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/RaihaanIhsan/ZeroTrustHealthCare/pkg/audit"
)

// appName is used for state directory paths. The gateway and trustctl share
// one database so CLI inspection sees what the server recorded.
const appName = "zthc"

// Store persists access attempts and auth events.
type Store struct {
	db *sql.DB
}

// DefaultPath returns the default database path following XDG spec.
func DefaultPath() string {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, _ := os.UserHomeDir()
		dataHome = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataHome, appName, appName+".db")
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL mode lets trustctl read committed history while the gateway keeps
	// writing, without either side blocking the other.
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Without a busy timeout, concurrent writes immediately return
	// SQLITE_BUSY. 5 seconds allows retries under contention.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// migrate creates the schema if it doesn't exist.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS access_attempts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		at INTEGER NOT NULL,
		principal_id TEXT NOT NULL DEFAULT '',
		ip TEXT NOT NULL DEFAULT '',
		endpoint TEXT NOT NULL DEFAULT '',
		result TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		created_at INTEGER DEFAULT (strftime('%s', 'now'))
	);
	CREATE INDEX IF NOT EXISTS idx_access_attempts_principal ON access_attempts(principal_id, at);
	CREATE INDEX IF NOT EXISTS idx_access_attempts_at ON access_attempts(at);

	CREATE TABLE IF NOT EXISTS auth_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		at INTEGER NOT NULL,
		principal_id TEXT NOT NULL,
		success INTEGER NOT NULL,
		created_at INTEGER DEFAULT (strftime('%s', 'now'))
	);
	CREATE INDEX IF NOT EXISTS idx_auth_events_principal ON auth_events(principal_id, at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for diagnostics.
func (s *Store) DB() *sql.DB {
	return s.db
}

// RecordAttempt persists one access attempt.
func (s *Store) RecordAttempt(a audit.AccessAttempt) error {
	at := a.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.db.Exec(
		`INSERT INTO access_attempts (at, principal_id, ip, endpoint, result, reason)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		at.UnixMilli(), a.PrincipalID, a.IP, a.Endpoint, string(a.Result), a.Reason,
	)
	if err != nil {
		return fmt.Errorf("failed to insert access attempt: %w", err)
	}
	return nil
}

// RecordAuthEvent persists one authentication outcome.
func (s *Store) RecordAuthEvent(e audit.AuthEvent) error {
	at := e.At
	if at.IsZero() {
		at = time.Now()
	}
	success := 0
	if e.Success {
		success = 1
	}
	_, err := s.db.Exec(
		`INSERT INTO auth_events (at, principal_id, success) VALUES (?, ?, ?)`,
		at.UnixMilli(), e.PrincipalID, success,
	)
	if err != nil {
		return fmt.Errorf("failed to insert auth event: %w", err)
	}
	return nil
}

// RecentAttempts returns up to n attempts for the principal, newest first.
func (s *Store) RecentAttempts(principalID string, n int) []audit.AccessAttempt {
	if n <= 0 {
		return nil
	}
	rows, err := s.db.Query(
		`SELECT at, principal_id, ip, endpoint, result, reason
		 FROM access_attempts WHERE principal_id = ?
		 ORDER BY at DESC, id DESC LIMIT ?`,
		principalID, n,
	)
	if err != nil {
		return nil
	}
	defer rows.Close()

	var out []audit.AccessAttempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return out
		}
		out = append(out, a)
	}
	return out
}

// RecentAuthEvents returns up to n login outcomes for the principal, newest
// first.
func (s *Store) RecentAuthEvents(principalID string, n int) []audit.AuthEvent {
	if n <= 0 {
		return nil
	}
	rows, err := s.db.Query(
		`SELECT at, principal_id, success FROM auth_events
		 WHERE principal_id = ? ORDER BY at DESC, id DESC LIMIT ?`,
		principalID, n,
	)
	if err != nil {
		return nil
	}
	defer rows.Close()

	var out []audit.AuthEvent
	for rows.Next() {
		var at int64
		var e audit.AuthEvent
		var success int
		if err := rows.Scan(&at, &e.PrincipalID, &success); err != nil {
			return out
		}
		e.At = time.UnixMilli(at)
		e.Success = success == 1
		out = append(out, e)
	}
	return out
}

// CountAttemptsSince counts the principal's attempts at or after the given
// time.
func (s *Store) CountAttemptsSince(principalID string, since time.Time) int {
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM access_attempts WHERE principal_id = ? AND at >= ?`,
		principalID, since.UnixMilli(),
	).Scan(&count)
	if err != nil {
		return 0
	}
	return count
}

// AttemptFilter specifies criteria for querying access attempts.
type AttemptFilter struct {
	PrincipalID string
	Result      audit.Result
	Since       time.Time
	Limit       int
}

// QueryAttempts retrieves attempts matching the filter, newest first.
func (s *Store) QueryAttempts(filter AttemptFilter) ([]audit.AccessAttempt, error) {
	var conditions []string
	var args []interface{}

	if filter.PrincipalID != "" {
		conditions = append(conditions, "principal_id = ?")
		args = append(args, filter.PrincipalID)
	}
	if filter.Result != "" {
		conditions = append(conditions, "result = ?")
		args = append(args, string(filter.Result))
	}
	if !filter.Since.IsZero() {
		conditions = append(conditions, "at >= ?")
		args = append(args, filter.Since.UnixMilli())
	}

	query := `SELECT at, principal_id, ip, endpoint, result, reason FROM access_attempts`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY at DESC, id DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query access attempts: %w", err)
	}
	defer rows.Close()

	var out []audit.AccessAttempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Metrics aggregates stored history into the same shape the in-memory ring
// log reports.
func (s *Store) Metrics() (audit.Metrics, error) {
	var m audit.Metrics

	err := s.db.QueryRow(
		`SELECT COUNT(*),
		        COALESCE(SUM(CASE WHEN result = ? THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN result = ? THEN 1 ELSE 0 END), 0),
		        COUNT(DISTINCT CASE WHEN principal_id != '' THEN principal_id END)
		 FROM access_attempts`,
		string(audit.ResultGranted), string(audit.ResultDenied),
	).Scan(&m.Attempts, &m.Granted, &m.Denied, &m.UniquePrincipals)
	if err != nil {
		return audit.Metrics{}, fmt.Errorf("failed to aggregate attempts: %w", err)
	}

	err = s.db.QueryRow(
		`SELECT COALESCE(SUM(success), 0), COALESCE(SUM(1 - success), 0) FROM auth_events`,
	).Scan(&m.AuthSuccesses, &m.AuthFailures)
	if err != nil {
		return audit.Metrics{}, fmt.Errorf("failed to aggregate auth events: %w", err)
	}

	return m, nil
}

// PruneBefore deletes history older than the cutoff and reports rows removed.
func (s *Store) PruneBefore(cutoff time.Time) (int64, error) {
	var total int64
	for _, table := range []string{"access_attempts", "auth_events"} {
		res, err := s.db.Exec(
			fmt.Sprintf("DELETE FROM %s WHERE at < ?", table), cutoff.UnixMilli(),
		)
		if err != nil {
			return total, fmt.Errorf("failed to prune %s: %w", table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("failed to count pruned rows: %w", err)
		}
		total += n
	}
	return total, nil
}

func scanAttempt(rows *sql.Rows) (audit.AccessAttempt, error) {
	var at int64
	var a audit.AccessAttempt
	var result string
	if err := rows.Scan(&at, &a.PrincipalID, &a.IP, &a.Endpoint, &result, &a.Reason); err != nil {
		return audit.AccessAttempt{}, fmt.Errorf("failed to scan access attempt: %w", err)
	}
	a.At = time.UnixMilli(at)
	a.Result = audit.Result(result)
	return a, nil
}

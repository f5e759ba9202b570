package prefs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"appauth/pkg/logging"
)

// Driver is a database/sql driver name supported by SQLStore.
type Driver string

const (
	DriverSQLite   Driver = "sqlite3"
	DriverPostgres Driver = "postgres"
)

// DetectDriver determines the driver from a connection string. Anything
// that is not recognisably PostgreSQL is treated as an SQLite path.
func DetectDriver(dsn string) Driver {
	lower := strings.ToLower(dsn)
	switch {
	case strings.HasPrefix(lower, "postgres://"),
		strings.HasPrefix(lower, "postgresql://"),
		strings.Contains(lower, "host="):
		return DriverPostgres
	default:
		return DriverSQLite
	}
}

// SQLStore keeps preferences in a single table, partitioned by namespace.
type SQLStore struct {
	db        *sql.DB
	driver    Driver
	namespace string
}

// NewSQLStore opens dsn, creates the preference table if needed and
// returns a Store scoped to namespace.
func NewSQLStore(ctx context.Context, dsn, namespace string) (*SQLStore, error) {
	if dsn == "" {
		return nil, errors.New("preference DSN is empty")
	}
	if namespace == "" {
		namespace = DefaultNamespace
	}

	driver := DetectDriver(dsn)
	if driver == DriverSQLite && !strings.Contains(dsn, "?") {
		dsn += "?_busy_timeout=5000&_journal_mode=WAL"
	}

	db, err := sql.Open(string(driver), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open preference database: %w", err)
	}

	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(4)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping preference database: %w", err)
	}

	s := &SQLStore{db: db, driver: driver, namespace: namespace}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	logging.Debug(logging.SubsystemPersistence, "Opened %s preference store (namespace %s)", driver, namespace)
	return s, nil
}

// Driver returns the detected driver.
func (s *SQLStore) Driver() Driver { return s.driver }

func (s *SQLStore) migrate(ctx context.Context) error {
	const ddl = `CREATE TABLE IF NOT EXISTS appauth_preferences (
	namespace  TEXT NOT NULL,
	name       TEXT NOT NULL,
	value      TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	PRIMARY KEY (namespace, name)
)`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create preference table: %w", err)
	}
	return nil
}

// placeholders rewrites ? placeholders to $n for PostgreSQL.
func (s *SQLStore) placeholders(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		s.placeholders(`SELECT value FROM appauth_preferences WHERE namespace = ? AND name = ?`),
		s.namespace, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read preference %s: %w", key, err)
	}
	return value, nil
}

func (s *SQLStore) Put(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		s.placeholders(`INSERT INTO appauth_preferences (namespace, name, value, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (namespace, name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`),
		s.namespace, key, value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to write preference %s: %w", key, err)
	}
	return nil
}

func (s *SQLStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx,
		s.placeholders(`DELETE FROM appauth_preferences WHERE namespace = ? AND name = ?`),
		s.namespace, key)
	if err != nil {
		return fmt.Errorf("failed to delete preference %s: %w", key, err)
	}
	return nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

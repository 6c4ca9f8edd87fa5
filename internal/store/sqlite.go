// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Scalars, set members and hash fields live in three tables; pub/sub is process-local

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	bus    *Broadcaster
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "store", "backend", "sqlite")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// A single connection serializes writers so multi-statement primitives stay atomic.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		bus:    NewBroadcaster(0, logger),
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS kv (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS set_members (
			key    TEXT NOT NULL,
			member TEXT NOT NULL,
			PRIMARY KEY (key, member)
		);

		CREATE TABLE IF NOT EXISTS hash_fields (
			key   TEXT NOT NULL,
			field TEXT NOT NULL,
			value TEXT NOT NULL,
			PRIMARY KEY (key, field)
		);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection and ends every subscription
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	s.bus.Close()
	return s.db.Close()
}

// Get returns the scalar at key.
// Returns ErrNotFound if the key doesn't exist.
func (s *SQLiteStore) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("querying kv: %w", err)
	}
	return value, nil
}

// Set stores a scalar, replacing any previous value.
func (s *SQLiteStore) Set(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO kv (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`
	if _, err := s.db.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("upserting kv: %w", err)
	}
	s.logger.Debug("SET", "key", key)
	return nil
}

// SetNX stores a scalar only if the key is absent.
func (s *SQLiteStore) SetNX(ctx context.Context, key, value string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO kv (key, value) VALUES (?, ?)`, key, value)
	if err != nil {
		return false, fmt.Errorf("inserting kv: %w", err)
	}
	return insertedOne(result)
}

// Del removes keys of any type and returns how many existed.
func (s *SQLiteStore) Del(ctx context.Context, keys ...string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var deleted int64
	for _, key := range keys {
		found := false
		for _, table := range []string{"kv", "set_members", "hash_fields"} {
			result, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE key = ?`, key)
			if err != nil {
				return 0, fmt.Errorf("deleting from %s: %w", table, err)
			}
			n, err := result.RowsAffected()
			if err != nil {
				return 0, fmt.Errorf("getting rows affected: %w", err)
			}
			if n > 0 {
				found = true
			}
		}
		if found {
			deleted++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing delete: %w", err)
	}
	s.logger.Debug("DEL", "keys", keys, "deleted", deleted)
	return deleted, nil
}

// SAdd adds members to the set at key and returns how many were new.
func (s *SQLiteStore) SAdd(ctx context.Context, key string, members ...string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var added int64
	for _, member := range members {
		result, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO set_members (key, member) VALUES (?, ?)`, key, member)
		if err != nil {
			return 0, fmt.Errorf("inserting set member: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("getting rows affected: %w", err)
		}
		added += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing sadd: %w", err)
	}
	s.logger.Debug("SADD", "key", key, "added", added)
	return added, nil
}

// SRem removes members from the set at key and returns how many were present.
func (s *SQLiteStore) SRem(ctx context.Context, key string, members ...string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var removed int64
	for _, member := range members {
		result, err := tx.ExecContext(ctx, `DELETE FROM set_members WHERE key = ? AND member = ?`, key, member)
		if err != nil {
			return 0, fmt.Errorf("deleting set member: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("getting rows affected: %w", err)
		}
		removed += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing srem: %w", err)
	}
	return removed, nil
}

// SMembers returns the members of the set at key, sorted. Absent sets are empty.
func (s *SQLiteStore) SMembers(ctx context.Context, key string) ([]string, error) {
	members, err := s.queryStrings(ctx, `SELECT member FROM set_members WHERE key = ? ORDER BY member`, key)
	if err != nil {
		return nil, fmt.Errorf("listing set members: %w", err)
	}
	s.logger.Debug("SMEMBERS", "key", key, "count", len(members))
	return members, nil
}

// HGet returns a single hash field.
// Returns ErrNotFound if the field doesn't exist.
func (s *SQLiteStore) HGet(ctx context.Context, key, field string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM hash_fields WHERE key = ? AND field = ?`, key, field,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("querying hash field: %w", err)
	}
	return value, nil
}

// HSet writes a single hash field.
func (s *SQLiteStore) HSet(ctx context.Context, key, field, value string) error {
	query := `
		INSERT INTO hash_fields (key, field, value) VALUES (?, ?, ?)
		ON CONFLICT(key, field) DO UPDATE SET value = excluded.value
	`
	if _, err := s.db.ExecContext(ctx, query, key, field, value); err != nil {
		return fmt.Errorf("upserting hash field: %w", err)
	}
	s.logger.Debug("HSET", "key", key, "field", field)
	return nil
}

// HSetNX writes a hash field only if it is absent.
func (s *SQLiteStore) HSetNX(ctx context.Context, key, field, value string) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO hash_fields (key, field, value) VALUES (?, ?, ?)`, key, field, value)
	if err != nil {
		return false, fmt.Errorf("inserting hash field: %w", err)
	}
	return insertedOne(result)
}

// HKeys returns the field names of the hash at key, sorted.
func (s *SQLiteStore) HKeys(ctx context.Context, key string) ([]string, error) {
	fields, err := s.queryStrings(ctx, `SELECT field FROM hash_fields WHERE key = ? ORDER BY field`, key)
	if err != nil {
		return nil, fmt.Errorf("listing hash fields: %w", err)
	}
	return fields, nil
}

// HDel removes hash fields and returns how many existed.
func (s *SQLiteStore) HDel(ctx context.Context, key string, fields ...string) (int64, error) {
	var removed int64
	for _, field := range fields {
		result, err := s.db.ExecContext(ctx, `DELETE FROM hash_fields WHERE key = ? AND field = ?`, key, field)
		if err != nil {
			return removed, fmt.Errorf("deleting hash field: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return removed, fmt.Errorf("getting rows affected: %w", err)
		}
		removed += n
	}
	return removed, nil
}

// Publish delivers payload to subscribers in this process.
func (s *SQLiteStore) Publish(ctx context.Context, channel, payload string) (int64, error) {
	n := s.bus.Publish(channel, payload)
	s.logger.Debug("PUBLISH", "channel", channel, "receivers", n)
	return n, nil
}

// Subscribe attaches to channel until ctx is cancelled or the subscription is closed.
func (s *SQLiteStore) Subscribe(ctx context.Context, channel string) (*Subscription, error) {
	return s.bus.Subscribe(ctx, channel)
}

// queryStrings runs a single-column query and collects the results.
func (s *SQLiteStore) queryStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	return out, nil
}

// insertedOne reports whether an INSERT OR IGNORE actually inserted a row.
func insertedOne(result sql.Result) (bool, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("getting rows affected: %w", err)
	}
	return n == 1, nil
}

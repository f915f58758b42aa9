package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "modernc.org/sqlite"
)

// SqliteStorage is the durable on-device Storage. A single file keeps cached
// responses across app restarts, which is what makes stale-serve useful when
// the van leaves coverage.
type SqliteStorage struct {
	db *sql.DB
}

func NewSqliteStorage(dbPath string) (*SqliteStorage, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &SqliteStorage{db: db}, nil
}

func (s *SqliteStorage) RunMigrations(migrationsPath string) error {
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", migrationsPath),
		"sqlite",
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}

	return nil
}

func (s *SqliteStorage) Find(ctx context.Context, key string) (*Entry, error) {
	query := `
		SELECT key, payload, stored_at_ns, ttl_ns
		FROM cache_entries
		WHERE key = ?
	`

	var (
		entry    Entry
		storedAt int64
		ttl      int64
	)
	err := s.db.QueryRowContext(ctx, query, key).Scan(&entry.Key, &entry.Payload, &storedAt, &ttl)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoEntry
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query cache entry: %w", err)
	}

	entry.StoredAt = time.Unix(0, storedAt)
	entry.TTL = time.Duration(ttl)
	return &entry, nil
}

func (s *SqliteStorage) Set(ctx context.Context, key string, entry *Entry) error {
	query := `
		INSERT INTO cache_entries (key, payload, stored_at_ns, ttl_ns)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			payload = excluded.payload,
			stored_at_ns = excluded.stored_at_ns,
			ttl_ns = excluded.ttl_ns
	`

	_, err := s.db.ExecContext(ctx, query, key, []byte(entry.Payload), entry.StoredAt.UnixNano(), int64(entry.TTL))
	if err != nil {
		return fmt.Errorf("failed to store cache entry: %w", err)
	}
	return nil
}

func (s *SqliteStorage) Remove(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

func (s *SqliteStorage) RemovePrefix(ctx context.Context, prefix string) error {
	// Keys contain '%' and '_' freely, so the LIKE pattern escapes them.
	pattern := likeEscape(prefix) + "%"
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE key LIKE ? ESCAPE '\'`, pattern)
	if err != nil {
		return fmt.Errorf("failed to delete cache entries by prefix: %w", err)
	}
	return nil
}

func (s *SqliteStorage) Close() error {
	return s.db.Close()
}

func likeEscape(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

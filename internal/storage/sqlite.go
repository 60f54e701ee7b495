package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"eventhub/internal/models"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS registrations (
	id         TEXT PRIMARY KEY,
	event_id   TEXT NOT NULL,
	name       TEXT NOT NULL,
	email      TEXT NOT NULL,
	phone      TEXT NOT NULL DEFAULT '',
	role       TEXT NOT NULL DEFAULT '',
	client_ip  TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	UNIQUE (event_id, email)
);
CREATE TABLE IF NOT EXISTS short_links (
	key        TEXT PRIMARY KEY,
	target_url TEXT NOT NULL,
	created_by TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	expires_at INTEGER
);
CREATE TABLE IF NOT EXISTS api_keys (
	id          TEXT PRIMARY KEY,
	user_id     TEXT NOT NULL,
	name        TEXT NOT NULL,
	key_hash    TEXT NOT NULL UNIQUE,
	prefix      TEXT NOT NULL,
	permissions TEXT NOT NULL,
	enabled     INTEGER NOT NULL,
	created_at  INTEGER NOT NULL
);
`

// SQLiteStorage implements Storage on an SQLite database file. Timestamps are
// stored as unix nanoseconds.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens the database at dsn and creates the schema.
func NewSQLiteStorage(dsn string) (*SQLiteStorage, error) {
	if dsn == "" {
		return nil, fmt.Errorf("connection string is required for SQLite storage")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite serialises writers; one connection also keeps :memory: databases shared.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func (ss *SQLiteStorage) CreateRegistration(ctx context.Context, reg *models.Registration) error {
	_, err := ss.db.ExecContext(ctx,
		`INSERT INTO registrations (id, event_id, name, email, phone, role, client_ip, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		reg.ID, reg.EventID, reg.Name, reg.Email, reg.Phone, reg.Role, reg.ClientIP, reg.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to create registration: %w", sqliteErr(err))
	}
	return nil
}

func (ss *SQLiteStorage) ListRegistrations(ctx context.Context, eventID string) ([]*models.Registration, error) {
	rows, err := ss.db.QueryContext(ctx,
		`SELECT id, event_id, name, email, phone, role, client_ip, created_at
		 FROM registrations WHERE event_id = ? ORDER BY created_at, id`, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to list registrations: %w", err)
	}
	defer rows.Close()

	regs := make([]*models.Registration, 0)
	for rows.Next() {
		var (
			reg     models.Registration
			created int64
		)
		if err := rows.Scan(&reg.ID, &reg.EventID, &reg.Name, &reg.Email, &reg.Phone, &reg.Role, &reg.ClientIP, &created); err != nil {
			return nil, fmt.Errorf("failed to scan registration: %w", err)
		}
		reg.CreatedAt = time.Unix(0, created).UTC()
		regs = append(regs, &reg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list registrations: %w", err)
	}
	return regs, nil
}

func (ss *SQLiteStorage) CreateShortLink(ctx context.Context, link *models.ShortLink) error {
	var expires sql.NullInt64
	if link.ExpiresAt != nil {
		expires = sql.NullInt64{Int64: link.ExpiresAt.UnixNano(), Valid: true}
	}

	_, err := ss.db.ExecContext(ctx,
		`INSERT INTO short_links (key, target_url, created_by, created_at, expires_at) VALUES (?, ?, ?, ?, ?)`,
		link.Key, link.TargetURL, link.CreatedBy, link.CreatedAt.UnixNano(), expires,
	)
	if err != nil {
		return fmt.Errorf("failed to create short link: %w", sqliteErr(err))
	}
	return nil
}

func (ss *SQLiteStorage) GetShortLink(ctx context.Context, key string) (*models.ShortLink, error) {
	var (
		link    models.ShortLink
		created int64
		expires sql.NullInt64
	)
	err := ss.db.QueryRowContext(ctx,
		`SELECT key, target_url, created_by, created_at, expires_at FROM short_links WHERE key = ?`, key,
	).Scan(&link.Key, &link.TargetURL, &link.CreatedBy, &created, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("short link %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get short link: %w", err)
	}

	link.CreatedAt = time.Unix(0, created).UTC()
	if expires.Valid {
		t := time.Unix(0, expires.Int64).UTC()
		link.ExpiresAt = &t
	}
	return &link, nil
}

func (ss *SQLiteStorage) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	_, err := ss.db.ExecContext(ctx,
		`INSERT INTO api_keys (id, user_id, name, key_hash, prefix, permissions, enabled, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		key.ID, key.UserID, key.Name, key.KeyHash, key.Prefix,
		strings.Join(key.Permissions, ","), key.Enabled, key.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to create api key: %w", sqliteErr(err))
	}
	return nil
}

func (ss *SQLiteStorage) GetAPIKeyByHash(ctx context.Context, hash string) (*models.APIKey, error) {
	var (
		key     models.APIKey
		perms   string
		created int64
	)
	err := ss.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, key_hash, prefix, permissions, enabled, created_at
		 FROM api_keys WHERE key_hash = ?`, hash,
	).Scan(&key.ID, &key.UserID, &key.Name, &key.KeyHash, &key.Prefix, &perms, &key.Enabled, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("api key: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get api key: %w", err)
	}

	if perms != "" {
		key.Permissions = strings.Split(perms, ",")
	}
	key.CreatedAt = time.Unix(0, created).UTC()
	return &key, nil
}

func (ss *SQLiteStorage) Ping(ctx context.Context) error {
	return ss.db.PingContext(ctx)
}

// Close closes the storage connection
func (ss *SQLiteStorage) Close() error {
	return ss.db.Close()
}

// sqliteErr maps unique constraint violations to ErrConflict.
func sqliteErr(err error) error {
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return fmt.Errorf("%w: %v", ErrConflict, err)
		}
	}
	return err
}

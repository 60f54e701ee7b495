package storage

import (
	"context"
	"errors"
	"fmt"

	"eventhub/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS registrations (
	id         TEXT PRIMARY KEY,
	event_id   TEXT NOT NULL,
	name       TEXT NOT NULL,
	email      TEXT NOT NULL,
	phone      TEXT NOT NULL DEFAULT '',
	role       TEXT NOT NULL DEFAULT '',
	client_ip  TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	UNIQUE (event_id, email)
);
CREATE TABLE IF NOT EXISTS short_links (
	key        TEXT PRIMARY KEY,
	target_url TEXT NOT NULL,
	created_by TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	expires_at TIMESTAMPTZ
);
CREATE TABLE IF NOT EXISTS api_keys (
	id          TEXT PRIMARY KEY,
	user_id     TEXT NOT NULL,
	name        TEXT NOT NULL,
	key_hash    TEXT NOT NULL UNIQUE,
	prefix      TEXT NOT NULL,
	permissions TEXT[] NOT NULL,
	enabled     BOOLEAN NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL
);
`

// uniqueViolation is the PostgreSQL SQLSTATE for a unique constraint failure.
const uniqueViolation = "23505"

// PostgresStorage implements the Storage interface on a pgx connection pool.
type PostgresStorage struct {
	pool *pgxpool.Pool
}

// NewPostgresStorage connects to dsn and creates the schema.
func NewPostgresStorage(ctx context.Context, cfg models.DatabaseConfig) (*PostgresStorage, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("connection string is required for PostgreSQL storage")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxOpenConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &PostgresStorage{pool: pool}, nil
}

func (ps *PostgresStorage) CreateRegistration(ctx context.Context, reg *models.Registration) error {
	_, err := ps.pool.Exec(ctx,
		`INSERT INTO registrations (id, event_id, name, email, phone, role, client_ip, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		reg.ID, reg.EventID, reg.Name, reg.Email, reg.Phone, reg.Role, reg.ClientIP, reg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create registration: %w", pgErr(err))
	}
	return nil
}

func (ps *PostgresStorage) ListRegistrations(ctx context.Context, eventID string) ([]*models.Registration, error) {
	rows, err := ps.pool.Query(ctx,
		`SELECT id, event_id, name, email, phone, role, client_ip, created_at
		 FROM registrations WHERE event_id = $1 ORDER BY created_at, id`, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to list registrations: %w", err)
	}

	regs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.Registration, error) {
		var reg models.Registration
		err := row.Scan(&reg.ID, &reg.EventID, &reg.Name, &reg.Email, &reg.Phone, &reg.Role, &reg.ClientIP, &reg.CreatedAt)
		return &reg, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan registrations: %w", err)
	}
	return regs, nil
}

func (ps *PostgresStorage) CreateShortLink(ctx context.Context, link *models.ShortLink) error {
	expires := pgtype.Timestamptz{}
	if link.ExpiresAt != nil {
		expires = pgtype.Timestamptz{Time: *link.ExpiresAt, Valid: true}
	}

	_, err := ps.pool.Exec(ctx,
		`INSERT INTO short_links (key, target_url, created_by, created_at, expires_at) VALUES ($1, $2, $3, $4, $5)`,
		link.Key, link.TargetURL, link.CreatedBy, link.CreatedAt, expires,
	)
	if err != nil {
		return fmt.Errorf("failed to create short link: %w", pgErr(err))
	}
	return nil
}

func (ps *PostgresStorage) GetShortLink(ctx context.Context, key string) (*models.ShortLink, error) {
	var (
		link    models.ShortLink
		expires pgtype.Timestamptz
	)
	err := ps.pool.QueryRow(ctx,
		`SELECT key, target_url, created_by, created_at, expires_at FROM short_links WHERE key = $1`, key,
	).Scan(&link.Key, &link.TargetURL, &link.CreatedBy, &link.CreatedAt, &expires)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("short link %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get short link: %w", err)
	}

	if expires.Valid {
		t := expires.Time
		link.ExpiresAt = &t
	}
	return &link, nil
}

func (ps *PostgresStorage) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	perms := key.Permissions
	if perms == nil {
		perms = []string{}
	}

	_, err := ps.pool.Exec(ctx,
		`INSERT INTO api_keys (id, user_id, name, key_hash, prefix, permissions, enabled, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		key.ID, key.UserID, key.Name, key.KeyHash, key.Prefix, perms, key.Enabled, key.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create api key: %w", pgErr(err))
	}
	return nil
}

func (ps *PostgresStorage) GetAPIKeyByHash(ctx context.Context, hash string) (*models.APIKey, error) {
	var key models.APIKey
	err := ps.pool.QueryRow(ctx,
		`SELECT id, user_id, name, key_hash, prefix, permissions, enabled, created_at
		 FROM api_keys WHERE key_hash = $1`, hash,
	).Scan(&key.ID, &key.UserID, &key.Name, &key.KeyHash, &key.Prefix, &key.Permissions, &key.Enabled, &key.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("api key: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get api key: %w", err)
	}
	return &key, nil
}

// Ping checks database connectivity.
func (ps *PostgresStorage) Ping(ctx context.Context) error {
	return ps.pool.Ping(ctx)
}

// Close closes the connection pool.
func (ps *PostgresStorage) Close() error {
	ps.pool.Close()
	return nil
}

func pgErr(err error) error {
	var pe *pgconn.PgError
	if errors.As(err, &pe) && pe.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", ErrConflict, pe.ConstraintName)
	}
	return err
}

package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/serroba/keythrottle/internal/audit"
)

const createDenialsTable = `
	CREATE TABLE IF NOT EXISTS ratelimit_denials (
		id          TEXT PRIMARY KEY,
		key         TEXT NOT NULL,
		scope       TEXT,
		max_requests INTEGER NOT NULL,
		path        TEXT NOT NULL,
		method      TEXT NOT NULL,
		client_ip   TEXT NOT NULL,
		user_agent  TEXT NOT NULL,
		request_id  TEXT,
		denied_at   TIMESTAMPTZ NOT NULL
	)
`

// PostgresAuditStore is a PostgreSQL implementation of audit.Store.
type PostgresAuditStore struct {
	pool *pgxpool.Pool
}

// NewPostgresAuditStore creates a new PostgreSQL-backed audit store.
func NewPostgresAuditStore(pool *pgxpool.Pool) *PostgresAuditStore {
	return &PostgresAuditStore{pool: pool}
}

// EnsureSchema creates the denials table when it does not exist.
func (p *PostgresAuditStore) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, createDenialsTable); err != nil {
		return fmt.Errorf("create ratelimit_denials: %w", err)
	}

	return nil
}

// SaveDenied inserts the event. Redelivered events with a known id are ignored.
func (p *PostgresAuditStore) SaveDenied(ctx context.Context, event *audit.DeniedEvent) error {
	query := `
		INSERT INTO ratelimit_denials
			(id, key, scope, max_requests, path, method, client_ip, user_agent, request_id, denied_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
	`

	_, err := p.pool.Exec(ctx, query,
		event.ID,
		event.Key,
		nullableString(event.Scope),
		event.Limit,
		event.Path,
		event.Method,
		event.ClientIP,
		event.UserAgent,
		nullableString(event.RequestID),
		event.DeniedAt,
	)

	return err
}

// Shutdown closes the underlying pool.
func (p *PostgresAuditStore) Shutdown() error {
	p.pool.Close()

	return nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}

	return &s
}

var _ audit.Store = (*PostgresAuditStore)(nil)

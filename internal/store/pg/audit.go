// Package pg is the managed-mode AuditStore, backed by Postgres via
// the pgx stdlib driver — the same database/sql-plus-pgx combination
// the teacher uses for its own Postgres-backed stores.
package pg

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/nextlevelbuilder/relaybus/internal/store"
)

// AuditStore records connection lifecycle events into Postgres.
type AuditStore struct {
	db *sql.DB
}

// Open connects to dsn and returns an AuditStore. Schema must already
// be applied (see cmd/migrate and internal/store/pg/migrations) —
// Open does not run migrations itself.
func Open(dsn string) (*AuditStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &AuditStore{db: db}, nil
}

func (s *AuditStore) RecordConnect(ctx context.Context, connID, role string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO connections (conn_id, role, connected_at) VALUES ($1, $2, now())`,
		connID, role,
	)
	return err
}

// RecordDisconnect stamps disconnected_at and persists the channel set
// the connection owned (as listener or responder) at the moment it
// dropped, written as a text[] column via lib/pq's Array adapter.
func (s *AuditStore) RecordDisconnect(ctx context.Context, connID string, ownedChannels []string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE connections SET disconnected_at = now(), owned_channels = $2 WHERE conn_id = $1`,
		connID, pq.Array(ownedChannels),
	)
	return err
}

func (s *AuditStore) RecordDeliveryFailure(ctx context.Context, connID, channel, reason string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO delivery_failures (conn_id, channel, reason, occurred_at) VALUES ($1, $2, $3, now())`,
		connID, channel, reason,
	)
	return err
}

func (s *AuditStore) Snapshot(ctx context.Context) (store.AuditSnapshot, error) {
	snap := store.AuditSnapshot{TakenAt: time.Now()}
	row := s.db.QueryRowContext(ctx, `SELECT count(*) FROM connections`)
	if err := row.Scan(&snap.ConnectCount); err != nil {
		return snap, fmt.Errorf("count connections: %w", err)
	}
	row = s.db.QueryRowContext(ctx, `SELECT count(*) FROM connections WHERE disconnected_at IS NOT NULL`)
	if err := row.Scan(&snap.DisconnectCount); err != nil {
		return snap, fmt.Errorf("count disconnects: %w", err)
	}
	row = s.db.QueryRowContext(ctx, `SELECT count(*) FROM delivery_failures`)
	if err := row.Scan(&snap.DeliveryFailures); err != nil {
		return snap, fmt.Errorf("count delivery failures: %w", err)
	}
	return snap, nil
}

func (s *AuditStore) Close() error {
	return s.db.Close()
}

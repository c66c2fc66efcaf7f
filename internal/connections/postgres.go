package connections

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgStore persists connections in a single table keyed by
// (user_id, integration_id). The upsert makes save atomic, so no
// application-level partition lock is needed.
type pgStore struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool}
}

// EnsureSchema creates the required tables if they do not already exist.
// Safe to call repeatedly (idempotent).
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS connections (
  user_id text NOT NULL,
  integration_id text NOT NULL,
  encrypted text NOT NULL,
  iv text NOT NULL,
  algorithm text NOT NULL,
  status text NOT NULL DEFAULT 'active',
  metadata jsonb NOT NULL DEFAULT '{}'::jsonb,
  created_at timestamptz NOT NULL DEFAULT NOW(),
  updated_at timestamptz NOT NULL DEFAULT NOW(),
  PRIMARY KEY (user_id, integration_id)
);
CREATE TABLE IF NOT EXISTS usage_events (
  id BIGSERIAL PRIMARY KEY,
  user_id text NOT NULL,
  integration_id text,
  action_id text,
  status_code int,
  ok boolean,
  request_id text,
  duration_ms int,
  started_at timestamptz NOT NULL DEFAULT NOW(),
  finished_at timestamptz
);
`)
	return err
}

func (s *pgStore) Save(ctx context.Context, userID string, conn Connection) error {
	meta, err := json.Marshal(conn.Metadata)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO connections (user_id, integration_id, encrypted, iv, algorithm, status, metadata, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (user_id, integration_id) DO UPDATE SET
		  encrypted=EXCLUDED.encrypted,
		  iv=EXCLUDED.iv,
		  algorithm=EXCLUDED.algorithm,
		  status=EXCLUDED.status,
		  metadata=EXCLUDED.metadata,
		  updated_at=EXCLUDED.updated_at
	`, userID, conn.IntegrationID, conn.Credential.Encrypted, conn.Credential.IV, conn.Credential.Algorithm,
		conn.Status, meta, conn.CreatedAt, conn.UpdatedAt)
	return err
}

func (s *pgStore) Get(ctx context.Context, userID, integrationID string) (Connection, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT integration_id, encrypted, iv, algorithm, status, metadata, created_at, updated_at
		FROM connections WHERE user_id=$1 AND integration_id=$2
	`, userID, integrationID)
	return scanConnection(row)
}

func (s *pgStore) List(ctx context.Context, userID string) ([]Connection, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT integration_id, encrypted, iv, algorithm, status, metadata, created_at, updated_at
		FROM connections WHERE user_id=$1 ORDER BY integration_id
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Connection
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *pgStore) Delete(ctx context.Context, userID, integrationID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM connections WHERE user_id=$1 AND integration_id=$2`, userID, integrationID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanConnection(row pgx.Row) (Connection, error) {
	var c Connection
	var meta []byte
	err := row.Scan(&c.IntegrationID, &c.Credential.Encrypted, &c.Credential.IV, &c.Credential.Algorithm,
		&c.Status, &meta, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Connection{}, ErrNotFound
	}
	if err != nil {
		return Connection{}, err
	}
	if len(meta) > 0 {
		_ = json.Unmarshal(meta, &c.Metadata)
	}
	return c, nil
}

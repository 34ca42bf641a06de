package tokenstore

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps the slot in caelium.token_slots.
// The pool is owned by the caller; Close does not close it.
type PostgresStore struct {
	pool  *pgxpool.Pool
	codec Codec
}

// NewPostgresStore creates a Postgres-backed token store.
func NewPostgresStore(pool *pgxpool.Pool, codec Codec) *PostgresStore {
	return &PostgresStore{pool: pool, codec: codec}
}

// EnsureSchema creates the schema and table when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE SCHEMA IF NOT EXISTS caelium;
		CREATE TABLE IF NOT EXISTS caelium.token_slots (
			name       text PRIMARY KEY,
			value      text NOT NULL,
			updated_at timestamptz NOT NULL DEFAULT now()
		);
	`)
	return err
}

func (s *PostgresStore) Load(ctx context.Context) (Pair, bool, error) {
	var raw string
	err := s.pool.QueryRow(ctx, `
		SELECT value
		FROM caelium.token_slots
		WHERE name = $1
	`, SlotName).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return Pair{}, false, nil
	}
	if err != nil {
		return Pair{}, false, err
	}

	p, err := s.codec.decode([]byte(raw))
	if err != nil {
		return Pair{}, false, err
	}
	return p, true, nil
}

func (s *PostgresStore) Save(ctx context.Context, p Pair) error {
	b, err := s.codec.encode(p)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO caelium.token_slots (name, value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
	`, SlotName, string(b))
	return err
}

func (s *PostgresStore) Delete(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM caelium.token_slots
		WHERE name = $1
	`, SlotName)
	return err
}

func (s *PostgresStore) Close() error { return nil }

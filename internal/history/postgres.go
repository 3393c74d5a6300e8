package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgErrUniqueViolation = "23505"

const schema = `
CREATE TABLE IF NOT EXISTS airdrop_history (
	id         UUID PRIMARY KEY,
	tx_id      TEXT NOT NULL,
	digest     TEXT NOT NULL,
	summary    JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS airdrop_history_digest_idx ON airdrop_history (digest, created_at);
`

// PostgresStore keeps history in a Postgres table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to dsn and creates the history table if missing.
func NewPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create history schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Add implements Store.
func (s *PostgresStore) Add(ctx context.Context, e Entry) error {
	if err := e.validate(); err != nil {
		return err
	}
	summary, err := json.Marshal(e.Summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO airdrop_history (id, tx_id, digest, summary, created_at) VALUES ($1, $2, $3, $4, $5)`,
		e.ID, e.TxID, e.Digest, summary, e.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgErrUniqueViolation {
			return fmt.Errorf("%w: %s", ErrDuplicate, e.ID)
		}
		return fmt.Errorf("insert history: %w", err)
	}
	return nil
}

const selectEntry = `SELECT id::text, tx_id, digest, summary, created_at FROM airdrop_history`

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, id string) (*Entry, error) {
	rows, err := s.pool.Query(ctx, selectEntry+` WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("get history: %w", err)
	}
	entries, err := scanEntries(rows)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return &entries[0], nil
}

// FindByDigest implements Store.
func (s *PostgresStore) FindByDigest(ctx context.Context, digest string) ([]Entry, error) {
	rows, err := s.pool.Query(ctx, selectEntry+` WHERE digest = $1 ORDER BY created_at ASC, id ASC`, digest)
	if err != nil {
		return nil, fmt.Errorf("find history by digest: %w", err)
	}
	return scanEntries(rows)
}

// List implements Store.
func (s *PostgresStore) List(ctx context.Context, limit int) ([]Entry, error) {
	query := selectEntry + ` ORDER BY created_at DESC, id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return scanEntries(rows)
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func scanEntries(rows pgx.Rows) ([]Entry, error) {
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var e Entry
		var summary []byte
		if err := rows.Scan(&e.ID, &e.TxID, &e.Digest, &summary, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		if err := json.Unmarshal(summary, &e.Summary); err != nil {
			return nil, fmt.Errorf("decode summary: %w", err)
		}
		e.CreatedAt = e.CreatedAt.UTC()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return out, nil
}

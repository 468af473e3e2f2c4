package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/videovault/backend/internal/db"
	"github.com/videovault/backend/internal/models"
	"github.com/videovault/backend/internal/tokens"
)

// PostgresTokenStore persists link tokens to PostgreSQL. Transact serializes
// mutations per token with a row lock, which is what makes concurrent
// first-viewer lock attempts linearizable.
type PostgresTokenStore struct {
	pool db.Pool
}

// NewPostgresTokenStore constructs a token store backed by PostgreSQL.
func NewPostgresTokenStore(pool db.Pool) *PostgresTokenStore {
	return &PostgresTokenStore{pool: pool}
}

const tokenColumns = `token, video_id, session_id, created_at, expires_at, revoked_at, max_sessions, session_count`

// Insert persists a freshly minted token record.
func (s *PostgresTokenStore) Insert(ctx context.Context, record models.VideoToken) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO video_tokens (`+tokenColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
    `, record.Token, record.VideoID, record.SessionID, record.CreatedAt,
		record.ExpiresAt, record.RevokedAt, record.MaxSessions, record.SessionCount)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505":
				return ErrConflict
			case "23503":
				return ErrNotFound
			}
		}
		return fmt.Errorf("insert link token: %w", err)
	}

	return nil
}

// Find loads a token record by its opaque identifier.
func (s *PostgresTokenStore) Find(ctx context.Context, token string) (models.VideoToken, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return models.VideoToken{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT `+tokenColumns+`
        FROM video_tokens
        WHERE token = $1
    `, token)

	record, err := scanToken(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.VideoToken{}, tokens.ErrTokenNotFound
		}
		return models.VideoToken{}, fmt.Errorf("select link token: %w", err)
	}

	return record, nil
}

// ListByVideo returns every token minted for a video, newest first.
func (s *PostgresTokenStore) ListByVideo(ctx context.Context, videoID string) ([]models.VideoToken, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT `+tokenColumns+`
        FROM video_tokens
        WHERE video_id = $1
        ORDER BY created_at DESC
    `, videoID)
	if err != nil {
		return nil, fmt.Errorf("query link tokens: %w", err)
	}
	defer rows.Close()

	var records []models.VideoToken
	for rows.Next() {
		record, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("scan link token: %w", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate link tokens: %w", err)
	}

	return records, nil
}

// Transact reads the token row under a row lock, applies mutate to the
// snapshot, and writes the result back in the same transaction. Concurrent
// Transact calls on the same token serialize on the row lock; calls on
// different tokens proceed independently.
func (s *PostgresTokenStore) Transact(ctx context.Context, token string, mutate func(*models.VideoToken) error) (models.VideoToken, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return models.VideoToken{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tx, err := conn.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.VideoToken{}, fmt.Errorf("begin token transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `
        SELECT `+tokenColumns+`
        FROM video_tokens
        WHERE token = $1
        FOR UPDATE
    `, token)

	record, err := scanToken(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.VideoToken{}, tokens.ErrTokenNotFound
		}
		return models.VideoToken{}, fmt.Errorf("select link token for update: %w", err)
	}

	if err := mutate(&record); err != nil {
		return models.VideoToken{}, err
	}

	if _, err := tx.Exec(ctx, `
        UPDATE video_tokens
        SET session_id = $2, revoked_at = $3, session_count = $4
        WHERE token = $1
    `, record.Token, record.SessionID, record.RevokedAt, record.SessionCount); err != nil {
		return models.VideoToken{}, fmt.Errorf("update link token: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return models.VideoToken{}, fmt.Errorf("commit token transaction: %w", err)
	}

	return record, nil
}

func scanToken(row pgx.Row) (models.VideoToken, error) {
	var record models.VideoToken
	err := row.Scan(
		&record.Token,
		&record.VideoID,
		&record.SessionID,
		&record.CreatedAt,
		&record.ExpiresAt,
		&record.RevokedAt,
		&record.MaxSessions,
		&record.SessionCount,
	)
	if err != nil {
		return models.VideoToken{}, err
	}
	record.CreatedAt = record.CreatedAt.UTC()
	record.ExpiresAt = record.ExpiresAt.UTC()
	if record.RevokedAt != nil {
		at := record.RevokedAt.UTC()
		record.RevokedAt = &at
	}
	return record, nil
}

var _ tokens.Store = (*PostgresTokenStore)(nil)

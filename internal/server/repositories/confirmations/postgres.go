package confirmations

import (
	"context"
	"fmt"
	"time"

	"github.com/QKhanh04/innerg-api/internal/dbx"
	"github.com/QKhanh04/innerg-api/internal/timex"
)

// PostgresStore keeps tokens in the user_tokens table.
type PostgresStore struct {
	db  dbx.DBTX
	now timex.Clock
}

func NewPostgresStore(db dbx.DBTX, now timex.Clock) *PostgresStore {
	if now == nil {
		now = timex.SystemClock
	}
	return &PostgresStore{db: db, now: now}
}

func (s *PostgresStore) Set(ctx context.Context, userID, purpose, digest string, ttl time.Duration) error {
	query := `
		INSERT INTO user_tokens (user_id, purpose, token_hash, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, purpose)
		DO UPDATE SET token_hash = EXCLUDED.token_hash, expires_at = EXCLUDED.expires_at
	`
	if _, err := s.db.ExecContext(ctx, query, userID, purpose, digest, s.now().Add(ttl)); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (s *PostgresStore) Consume(ctx context.Context, userID, purpose, digest string) (bool, error) {
	query := `
		DELETE FROM user_tokens
		WHERE user_id = $1 AND purpose = $2 AND token_hash = $3 AND expires_at > $4
	`
	res, err := s.db.ExecContext(ctx, query, userID, purpose, digest, s.now())
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n == 1, nil
}

func (s *PostgresStore) Invalidate(ctx context.Context, userID, purpose string) error {
	query := `DELETE FROM user_tokens WHERE user_id = $1 AND purpose = $2`
	if _, err := s.db.ExecContext(ctx, query, userID, purpose); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

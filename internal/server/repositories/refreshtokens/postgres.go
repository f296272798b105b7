// Package refreshtokens provides PostgreSQL and in-memory repositories for the
// refresh tokens used by the session flows.
package refreshtokens

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/QKhanh04/innerg-api/internal/common"
	"github.com/QKhanh04/innerg-api/internal/dbx"
	"github.com/QKhanh04/innerg-api/internal/server/models"
)

// PostgresRepository implements Repository over dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, token *models.RefreshToken) error {
	query := `
		INSERT INTO refresh_tokens (id, user_id, token, created_at, expires_at, revoked)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := r.db.ExecContext(ctx, query,
		token.ID, token.UserID, token.Token, token.CreatedAt, token.Expires, token.Revoked); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) FindWithOwner(ctx context.Context, token string) (*models.RefreshTokenWithOwner, error) {
	query := `
		SELECT t.id, t.user_id, t.token, t.created_at, t.expires_at, t.revoked,
		       u.id, u.username, u.email, u.password_hash, u.email_confirmed,
		       u.access_failed_count, u.lockout_end, u.created_at
		FROM refresh_tokens t
		JOIN users u ON u.id = t.user_id
		WHERE t.token = $1
	`

	var (
		res      models.RefreshTokenWithOwner
		t, u     = &res.Token, &res.Owner
		password sql.NullString
		lockout  sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, query, token).Scan(
		&t.ID, &t.UserID, &t.Token, &t.CreatedAt, &t.Expires, &t.Revoked,
		&u.ID, &u.UserName, &u.Email, &password, &u.EmailConfirmed,
		&u.AccessFailedCount, &lockout, &u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	u.PasswordHash = password.String
	if lockout.Valid {
		end := lockout.Time
		u.LockoutEnd = &end
	}
	return &res, nil
}

func (r *PostgresRepository) Revoke(ctx context.Context, token string) (bool, error) {
	query := `
		UPDATE refresh_tokens
		SET revoked = TRUE
		WHERE token = $1 AND revoked = FALSE
	`
	res, err := r.db.ExecContext(ctx, query, token)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n == 1, nil
}

func (r *PostgresRepository) RevokeAllForUser(ctx context.Context, userID string) (int64, error) {
	query := `
		UPDATE refresh_tokens
		SET revoked = TRUE
		WHERE user_id = $1 AND revoked = FALSE
	`
	return r.exec(ctx, query, userID)
}

func (r *PostgresRepository) DeleteExpiredOrRevoked(ctx context.Context, now time.Time) (int64, error) {
	query := `
		DELETE FROM refresh_tokens
		WHERE expires_at < $1 OR revoked = TRUE
	`
	return r.exec(ctx, query, now)
}

func (r *PostgresRepository) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

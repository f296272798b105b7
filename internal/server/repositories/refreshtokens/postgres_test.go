package refreshtokens

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/QKhanh04/innerg-api/internal/common"
	"github.com/QKhanh04/innerg-api/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func TestCreate_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now().UTC()
	q := `(?s)^\s*INSERT\s+INTO\s+refresh_tokens\s*\(id,\s*user_id,\s*token,\s*created_at,\s*expires_at,\s*revoked\)\s*VALUES\s*\(\$1,\s*\$2,\s*\$3,\s*\$4,\s*\$5,\s*\$6\)\s*$`

	mock.ExpectExec(q).
		WithArgs("t-1", "u1", "tok123", now, now.Add(time.Hour), false).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Create(context.Background(), &models.RefreshToken{
		ID: "t-1", UserID: "u1", Token: "tok123", CreatedAt: now, Expires: now.Add(time.Hour),
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`INSERT\s+INTO\s+refresh_tokens`).WillReturnError(errors.New("boom"))

	err := repo.Create(context.Background(), &models.RefreshToken{})
	if err == nil || !regexp.MustCompile(`db error: .*boom`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func findColumns() []string {
	return []string{
		"id", "user_id", "token", "created_at", "expires_at", "revoked",
		"id", "username", "email", "password_hash", "email_confirmed",
		"access_failed_count", "lockout_end", "created_at",
	}
}

func TestFindWithOwner_Found(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now().UTC()
	q := `(?s)SELECT\s+t\.id,.*FROM\s+refresh_tokens\s+t\s+JOIN\s+users\s+u\s+ON\s+u\.id\s*=\s*t\.user_id\s+WHERE\s+t\.token\s*=\s*\$1`

	mock.ExpectQuery(q).
		WithArgs("tok").
		WillReturnRows(sqlmock.NewRows(findColumns()).AddRow(
			"t-1", "u-1", "tok", now, now.Add(time.Hour), true,
			"u-1", "alice", "a@x.com", "hash", true, 3, now.Add(time.Minute), now,
		))

	got, err := repo.FindWithOwner(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, "t-1", got.Token.ID)
	assert.True(t, got.Token.Revoked)
	assert.Equal(t, now.Add(time.Hour), got.Token.Expires)
	assert.Equal(t, "alice", got.Owner.UserName)
	assert.Equal(t, "hash", got.Owner.PasswordHash)
	assert.Equal(t, 3, got.Owner.AccessFailedCount)
	require.NotNil(t, got.Owner.LockoutEnd)
}

func TestFindWithOwner_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`FROM\s+refresh_tokens`).WithArgs("nope").WillReturnError(sql.ErrNoRows)

	_, err := repo.FindWithOwner(context.Background(), "nope")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestRevoke_CompareAndSet(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)UPDATE\s+refresh_tokens\s+SET\s+revoked\s*=\s*TRUE\s+WHERE\s+token\s*=\s*\$1\s+AND\s+revoked\s*=\s*FALSE`

	mock.ExpectExec(q).WithArgs("tok").WillReturnResult(sqlmock.NewResult(0, 1))
	won, err := repo.Revoke(context.Background(), "tok")
	require.NoError(t, err)
	assert.True(t, won)

	mock.ExpectExec(q).WithArgs("tok").WillReturnResult(sqlmock.NewResult(0, 0))
	won, err = repo.Revoke(context.Background(), "tok")
	require.NoError(t, err)
	assert.False(t, won)

	mock.ExpectExec(q).WithArgs("tok").WillReturnError(errors.New("down"))
	_, err = repo.Revoke(context.Background(), "tok")
	assert.Error(t, err)
}

func TestRevokeAllForUser(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`(?s)UPDATE\s+refresh_tokens\s+SET\s+revoked\s*=\s*TRUE\s+WHERE\s+user_id\s*=\s*\$1\s+AND\s+revoked\s*=\s*FALSE`).
		WithArgs("u-1").
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := repo.RevokeAllForUser(context.Background(), "u-1")
	require.NoError(t, err)
	assert.EqualValues(t, 4, n)
}

func TestDeleteExpiredOrRevoked(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now().UTC()
	q := `(?s)DELETE\s+FROM\s+refresh_tokens\s+WHERE\s+expires_at\s*<\s*\$1\s+OR\s+revoked\s*=\s*TRUE`

	mock.ExpectExec(q).WithArgs(now).WillReturnResult(sqlmock.NewResult(0, 0))
	n, err := repo.DeleteExpiredOrRevoked(context.Background(), now)
	require.NoError(t, err)
	assert.Zero(t, n)

	mock.ExpectExec(q).WithArgs(now).WillReturnResult(sqlmock.NewResult(0, 7))
	n, err = repo.DeleteExpiredOrRevoked(context.Background(), now)
	require.NoError(t, err)
	assert.EqualValues(t, 7, n)

	mock.ExpectExec(q).WithArgs(now).WillReturnError(errors.New("db err"))
	_, err = repo.DeleteExpiredOrRevoked(context.Background(), now)
	if err == nil || !regexp.MustCompile(`db error: .*db err`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

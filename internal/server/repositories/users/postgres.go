package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/QKhanh04/innerg-api/internal/common"
	"github.com/QKhanh04/innerg-api/internal/dbx"
	"github.com/QKhanh04/innerg-api/internal/server/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

var userColumns = Columns("")

// Columns lists the user columns read by ScanUser, each prefixed with prefix
// (e.g. "u.").
func Columns(prefix string) []string {
	cols := []string{
		"id", "username", "email", "password_hash", "email_confirmed",
		"access_failed_count", "lockout_end", "created_at",
	}
	for i := range cols {
		cols[i] = prefix + cols[i]
	}
	return cols
}

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}

	query, args, err := psql.Insert("users").
		Columns("id", "username", "normalized_username", "email", "normalized_email",
			"password_hash", "email_confirmed", "access_failed_count", "lockout_end").
		Values(user.ID, user.UserName, models.NormalizeName(user.UserName), user.Email, models.NormalizeName(user.Email),
			nullString(user.PasswordHash), user.EmailConfirmed, user.AccessFailedCount, user.LockoutEnd).
		Suffix("RETURNING created_at").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&user.CreatedAt); err != nil {
		return nil, dbError(err)
	}
	return user, nil
}

func (r *PostgresRepository) Update(ctx context.Context, user *models.User) error {
	query, args, err := psql.Update("users").
		Set("username", user.UserName).
		Set("normalized_username", models.NormalizeName(user.UserName)).
		Set("email", user.Email).
		Set("normalized_email", models.NormalizeName(user.Email)).
		Set("password_hash", nullString(user.PasswordHash)).
		Set("email_confirmed", user.EmailConfirmed).
		Set("access_failed_count", user.AccessFailedCount).
		Set("lockout_end", user.LockoutEnd).
		Where(squirrel.Eq{"id": user.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	return r.execOne(ctx, query, args...)
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		return common.ErrorNotFound
	}
	query, args, err := psql.Delete("users").Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	return r.execOne(ctx, query, args...)
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	if !validID(id) {
		return nil, common.ErrorNotFound
	}
	return r.getOne(ctx, psql.Select(userColumns...).From("users").Where(squirrel.Eq{"id": id}))
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getOne(ctx, psql.Select(userColumns...).From("users").
		Where(squirrel.Eq{"normalized_email": models.NormalizeName(email)}))
}

func (r *PostgresRepository) GetByUserName(ctx context.Context, userName string) (*models.User, error) {
	return r.getOne(ctx, psql.Select(userColumns...).From("users").
		Where(squirrel.Eq{"normalized_username": models.NormalizeName(userName)}))
}

func (r *PostgresRepository) LockByID(ctx context.Context, id string) (*models.User, error) {
	if !validID(id) {
		return nil, common.ErrorNotFound
	}
	return r.getOne(ctx, psql.Select(userColumns...).From("users").
		Where(squirrel.Eq{"id": id}).Suffix("FOR UPDATE"))
}

// validID reports whether id can match the uuid primary key. Anything else
// would be rejected by the server with invalid_text_representation.
func validID(id string) bool {
	return uuid.Validate(id) == nil
}

func (r *PostgresRepository) EnsureRole(ctx context.Context, role string) error {
	query, args, err := psql.Insert("roles").
		Columns("name", "normalized_name").
		Values(role, models.NormalizeName(role)).
		Suffix("ON CONFLICT (normalized_name) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return dbError(err)
	}
	return nil
}

func (r *PostgresRepository) RoleExists(ctx context.Context, role string) (bool, error) {
	query, args, err := psql.Select("1").From("roles").
		Where(squirrel.Eq{"normalized_name": models.NormalizeName(role)}).ToSql()
	if err != nil {
		return false, fmt.Errorf("build query: %w", err)
	}

	var one int
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, dbError(err)
	}
	return true, nil
}

func (r *PostgresRepository) GetRoles(ctx context.Context, userID string) ([]string, error) {
	query, args, err := psql.Select("r.name").
		From("user_roles ur").
		Join("roles r ON r.normalized_name = ur.role_name").
		Where(squirrel.Eq{"ur.user_id": userID}).
		OrderBy("r.name").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dbError(err)
	}
	defer rows.Close()

	roles := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, dbError(err)
		}
		roles = append(roles, name)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError(err)
	}
	return roles, nil
}

func (r *PostgresRepository) AddToRole(ctx context.Context, userID, role string) error {
	query, args, err := psql.Insert("user_roles").
		Columns("user_id", "role_name").
		Values(userID, models.NormalizeName(role)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return dbError(err)
	}
	return nil
}

func (r *PostgresRepository) RemoveFromRole(ctx context.Context, userID, role string) error {
	query, args, err := psql.Delete("user_roles").
		Where(squirrel.Eq{"user_id": userID, "role_name": models.NormalizeName(role)}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return dbError(err)
	}
	return nil
}

func (r *PostgresRepository) AddLogin(ctx context.Context, login models.ExternalLogin) error {
	query, args, err := psql.Insert("user_logins").
		Columns("provider", "provider_key", "user_id", "display_name").
		Values(login.Provider, login.ProviderKey, login.UserID, login.DisplayName).
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return dbError(err)
	}
	return nil
}

func (r *PostgresRepository) RemoveLogin(ctx context.Context, userID, provider string) error {
	query, args, err := psql.Delete("user_logins").
		Where(squirrel.Eq{"user_id": userID, "provider": provider}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return dbError(err)
	}
	return nil
}

func (r *PostgresRepository) FindByLogin(ctx context.Context, provider, providerKey string) (*models.User, error) {
	return r.getOne(ctx, psql.Select(Columns("u.")...).
		From("user_logins l").
		Join("users u ON u.id = l.user_id").
		Where(squirrel.Eq{"l.provider": provider, "l.provider_key": providerKey}))
}

func (r *PostgresRepository) getOne(ctx context.Context, b squirrel.SelectBuilder) (*models.User, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	user, err := ScanUser(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, dbError(err)
	}
	return user, nil
}

func (r *PostgresRepository) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return dbError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return dbError(err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

// ScanUser reads Columns, in order, from row.
func ScanUser(row interface{ Scan(dest ...any) error }) (*models.User, error) {
	var (
		u        models.User
		password sql.NullString
		lockout  sql.NullTime
	)
	if err := row.Scan(&u.ID, &u.UserName, &u.Email, &password, &u.EmailConfirmed,
		&u.AccessFailedCount, &lockout, &u.CreatedAt); err != nil {
		return nil, err
	}
	u.PasswordHash = password.String
	if lockout.Valid {
		t := lockout.Time
		u.LockoutEnd = &t
	}
	return &u, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func dbError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", common.ErrorAlreadyExists, pgErr.ConstraintName)
	}
	return fmt.Errorf("db error: %w", err)
}

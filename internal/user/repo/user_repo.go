package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-attendance-go/pkg/database"
)

// UserRepo provides data access for users table using sqlx.
type UserRepo struct {
	db *sqlx.DB
}

func NewUserRepo(db *sqlx.DB) *UserRepo { return &UserRepo{db: db} }

const userColumns = `id, name, email, password_hash, password_algo, role, profile_image, position,
	is_first_login, version, login_failed_attempts, locked_until, last_login_at,
	password_updated_at, created_at, updated_at`

// EnsureTable creates the users table if not exists (idempotent).
// Emails are stored lower-cased so the plain UNIQUE constraint is
// case-insensitive on postgres and sqlite alike.
func (r *UserRepo) EnsureTable(ctx context.Context) error {
	ts := database.TimestampType(r.db.DriverName())
	ddl := `
CREATE TABLE IF NOT EXISTS users (
  id VARCHAR(32) PRIMARY KEY,
  name TEXT NOT NULL,
  email TEXT NOT NULL UNIQUE,
  password_hash TEXT NOT NULL,
  password_algo TEXT NOT NULL DEFAULT '',
  role VARCHAR(16) NOT NULL DEFAULT 'employee',
  profile_image TEXT,
  position TEXT,
  is_first_login BOOLEAN NOT NULL DEFAULT FALSE,
  version BIGINT NOT NULL DEFAULT 1,
  login_failed_attempts INT NOT NULL DEFAULT 0,
  locked_until {{ts}},
  last_login_at {{ts}},
  password_updated_at {{ts}},
  created_at {{ts}} NOT NULL,
  updated_at {{ts}} NOT NULL
)`
	return database.ExecAll(ctx, r.db, []string{
		strings.ReplaceAll(ddl, "{{ts}}", ts),
		`CREATE INDEX IF NOT EXISTS idx_users_role ON users(role)`,
	})
}

// Create inserts a new user row.
func (r *UserRepo) Create(ctx context.Context, u *entity.User) error {
	const q = `INSERT INTO users (id, name, email, password_hash, password_algo, role, profile_image, position,
		is_first_login, version, login_failed_attempts, created_at, updated_at)
		VALUES (:id, :name, :email, :password_hash, :password_algo, :role, :profile_image, :position,
		:is_first_login, :version, 0, :created_at, :updated_at)`
	_, err := r.db.NamedExecContext(ctx, q, u)
	return err
}

// GetByEmail returns a user matched by its normalized email or sql.ErrNoRows.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*entity.User, error) {
	q := r.db.Rebind(`SELECT ` + userColumns + ` FROM users WHERE email=?`)
	var row entity.User
	if err := r.db.GetContext(ctx, &row, q, email); err != nil {
		return nil, err
	}
	return &row, nil
}

// GetByID fetches a full user row.
func (r *UserRepo) GetByID(ctx context.Context, id string) (*entity.User, error) {
	q := r.db.Rebind(`SELECT ` + userColumns + ` FROM users WHERE id=?`)
	var row entity.User
	if err := r.db.GetContext(ctx, &row, q, id); err != nil {
		return nil, err
	}
	return &row, nil
}

// GetMinimalAuthView returns only the fields needed for token claim hydration.
func (r *UserRepo) GetMinimalAuthView(ctx context.Context, id string) (*entity.MinimalAuthView, error) {
	q := r.db.Rebind(`SELECT id, email, role, version FROM users WHERE id=?`)
	var v entity.MinimalAuthView
	if err := r.db.GetContext(ctx, &v, q, id); err != nil {
		return nil, err
	}
	return &v, nil
}

// List returns users ordered by name.
func (r *UserRepo) List(ctx context.Context, limit, offset int) ([]entity.User, error) {
	if limit <= 0 {
		limit = 100
	}
	q := r.db.Rebind(`SELECT ` + userColumns + ` FROM users ORDER BY name, id LIMIT ? OFFSET ?`)
	var rows []entity.User
	if err := r.db.SelectContext(ctx, &rows, q, limit, offset); err != nil {
		return nil, err
	}
	return rows, nil
}

// CountByRole counts users holding role.
func (r *UserRepo) CountByRole(ctx context.Context, role string) (int, error) {
	q := r.db.Rebind(`SELECT COUNT(*) FROM users WHERE role=?`)
	var n int
	if err := r.db.GetContext(ctx, &n, q, role); err != nil {
		return 0, err
	}
	return n, nil
}

// IncrementFailedLogin increments the failure counter atomically and returns new value.
func (r *UserRepo) IncrementFailedLogin(ctx context.Context, id string, now time.Time) (int, error) {
	q := r.db.Rebind(`UPDATE users SET login_failed_attempts = login_failed_attempts + 1, updated_at=?
		WHERE id=? RETURNING login_failed_attempts`)
	var v int
	if err := r.db.GetContext(ctx, &v, q, now, id); err != nil {
		return 0, err
	}
	return v, nil
}

// LockIfThreshold locks the user until the given instant if attempts >= threshold.
func (r *UserRepo) LockIfThreshold(ctx context.Context, id string, threshold int, until, now time.Time) (bool, error) {
	q := r.db.Rebind(`UPDATE users SET locked_until=?, login_failed_attempts=0, updated_at=?
		WHERE id=? AND login_failed_attempts >= ?`)
	res, err := r.db.ExecContext(ctx, q, until, now, id, threshold)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ResetLoginSuccess resets failure metrics on successful authentication.
func (r *UserRepo) ResetLoginSuccess(ctx context.Context, id string, now time.Time) error {
	q := r.db.Rebind(`UPDATE users SET login_failed_attempts=0, last_login_at=?, locked_until=NULL, updated_at=? WHERE id=?`)
	_, err := r.db.ExecContext(ctx, q, now, now, id)
	return err
}

// BumpVersion increments version for token invalidation.
func (r *UserRepo) BumpVersion(ctx context.Context, id string, now time.Time) error {
	q := r.db.Rebind(`UPDATE users SET version = version + 1, updated_at=? WHERE id=?`)
	return mustAffect(r.db.ExecContext(ctx, q, now, id))
}

// UpdatePassword stores a new hash. With rotate set it also clears the
// first-login flag and bumps version so tokens issued under the old password
// stop validating; a transparent rehash passes rotate=false.
func (r *UserRepo) UpdatePassword(ctx context.Context, id, hash, algo string, now time.Time, rotate bool) error {
	if rotate {
		q := r.db.Rebind(`UPDATE users SET password_hash=?, password_algo=?, password_updated_at=?,
			version=version+1, is_first_login=FALSE, updated_at=? WHERE id=?`)
		return mustAffect(r.db.ExecContext(ctx, q, hash, algo, now, now, id))
	}
	q := r.db.Rebind(`UPDATE users SET password_hash=?, password_algo=?, password_updated_at=?, updated_at=? WHERE id=?`)
	return mustAffect(r.db.ExecContext(ctx, q, hash, algo, now, now, id))
}

// UpdateProfile overwrites the editable profile fields.
func (r *UserRepo) UpdateProfile(ctx context.Context, id, name string, position, profileImage *string, now time.Time) error {
	q := r.db.Rebind(`UPDATE users SET name=?, position=?, profile_image=?, updated_at=? WHERE id=?`)
	return mustAffect(r.db.ExecContext(ctx, q, name, position, profileImage, now, id))
}

func mustAffect(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// IsNotFound reports whether err means no row matched.
func IsNotFound(err error) bool { return errors.Is(err, sql.ErrNoRows) }

package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-attendance-go/pkg/database"
)

type RevocationRepo struct {
	db *sqlx.DB
}

func NewRevocationRepo(db *sqlx.DB) *RevocationRepo {
	return &RevocationRepo{db: db}
}

func (r *RevocationRepo) EnsureTable(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS revoked_tokens (
  jti VARCHAR(64) PRIMARY KEY,
  user_id VARCHAR(32) NOT NULL,
  expires_at {{ts}} NOT NULL,
  revoked_at {{ts}} NOT NULL
)`
	return database.ExecAll(ctx, r.db, []string{
		strings.ReplaceAll(ddl, "{{ts}}", database.TimestampType(r.db.DriverName())),
		`CREATE INDEX IF NOT EXISTS idx_revoked_tokens_expires ON revoked_tokens(expires_at)`,
	})
}

// Revoke denylists jti and purges rows whose tokens have expired. It reports
// false when jti was already revoked.
func (r *RevocationRepo) Revoke(ctx context.Context, jti, userID string, expiresAt, now time.Time) (bool, error) {
	if _, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM revoked_tokens WHERE expires_at < ?`), now); err != nil {
		return false, err
	}
	q := r.db.Rebind(`INSERT INTO revoked_tokens (jti, user_id, expires_at, revoked_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (jti) DO NOTHING`)
	res, err := r.db.ExecContext(ctx, q, jti, userID, expiresAt, now)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *RevocationRepo) IsRevoked(ctx context.Context, jti string) (bool, error) {
	var one int
	err := r.db.GetContext(ctx, &one, r.db.Rebind(`SELECT 1 FROM revoked_tokens WHERE jti = ?`), jti)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

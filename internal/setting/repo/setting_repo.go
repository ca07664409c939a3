package repo

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/setting/entity"
	"github.com/ovaphlow/pitchfork/service-attendance-go/pkg/database"
)

// Repo is the repository for versioned settings rows.
type Repo struct {
	db *sqlx.DB
}

// NewRepo constructs a new Repo with an existing *sqlx.DB connection.
func NewRepo(db *sqlx.DB) *Repo {
	return &Repo{db: db}
}

// EnsureTable ensures the settings table and its index exist.
// Fields:
// - id varchar(64) PRIMARY KEY, the setting key
// - category varchar(32) (indexed)
// - value text holding a JSON document
// - version bigint for optimistic locking
func (r *Repo) EnsureTable(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS settings (
  id VARCHAR(64) PRIMARY KEY,
  category VARCHAR(32) NOT NULL DEFAULT '',
  value TEXT NOT NULL,
  version BIGINT NOT NULL DEFAULT 1,
  updated_at {{ts}} NOT NULL,
  updated_by VARCHAR(32) NOT NULL DEFAULT ''
)`
	return database.ExecAll(ctx, r.db, []string{
		strings.ReplaceAll(ddl, "{{ts}}", database.TimestampType(r.db.DriverName())),
		`CREATE INDEX IF NOT EXISTS idx_settings_category ON settings (category)`,
	})
}

func (r *Repo) GetByID(ctx context.Context, id string) (*entity.Setting, error) {
	var st entity.Setting
	q := r.db.Rebind(`SELECT id, category, value, version, updated_at, updated_by FROM settings WHERE id = ?`)
	if err := r.db.GetContext(ctx, &st, q, id); err != nil {
		return nil, err
	}
	return &st, nil
}

// Create inserts st unless the key already exists; it reports whether a row was written.
func (r *Repo) Create(ctx context.Context, st *entity.Setting) (bool, error) {
	q := r.db.Rebind(`INSERT INTO settings (id, category, value, version, updated_at, updated_by)
		VALUES (?, ?, ?, ?, ?, ?) ON CONFLICT (id) DO NOTHING`)
	res, err := r.db.ExecContext(ctx, q, st.ID, st.Category, string(st.Value), st.Version, st.UpdatedAt, st.UpdatedBy)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// Update writes st when the stored version still equals expected and
// returns the number of rows changed.
func (r *Repo) Update(ctx context.Context, st *entity.Setting, expected int64) (int64, error) {
	q := r.db.Rebind(`UPDATE settings SET value = ?, version = ?, updated_at = ?, updated_by = ?
		WHERE id = ? AND version = ?`)
	res, err := r.db.ExecContext(ctx, q, string(st.Value), st.Version, st.UpdatedAt, st.UpdatedBy, st.ID, expected)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

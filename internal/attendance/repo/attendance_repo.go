package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/attendance/entity"
	"github.com/ovaphlow/pitchfork/service-attendance-go/pkg/database"
)

// AttendanceRepo is the record store gateway over the attendance_records table.
type AttendanceRepo struct {
	db *sqlx.DB
}

func NewAttendanceRepo(db *sqlx.DB) *AttendanceRepo { return &AttendanceRepo{db: db} }

const recordColumns = `id, user_id, user_name, status, method, latitude, longitude, location_name,
	occurred_at, day, is_checkout, image_url, created_at`

// Index names double as the discriminator when a unique violation has to be
// attributed to check-in or check-out.
const (
	IndexOneCheckIn  = "ux_attendance_checkin_per_day"
	IndexOneCheckOut = "ux_attendance_checkout_per_day"
)

// EnsureTable creates the table plus the partial unique indexes that allow at
// most one check-in and one check-out per user and day.
func (r *AttendanceRepo) EnsureTable(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS attendance_records (
  id VARCHAR(32) PRIMARY KEY,
  user_id VARCHAR(32) NOT NULL,
  user_name TEXT NOT NULL,
  status VARCHAR(16) NOT NULL,
  method VARCHAR(16) NOT NULL,
  latitude DOUBLE PRECISION,
  longitude DOUBLE PRECISION,
  location_name TEXT,
  occurred_at {{ts}} NOT NULL,
  day VARCHAR(10) NOT NULL,
  is_checkout BOOLEAN NOT NULL DEFAULT FALSE,
  image_url TEXT,
  created_at {{ts}} NOT NULL
)`
	return database.ExecAll(ctx, r.db, []string{
		strings.ReplaceAll(ddl, "{{ts}}", database.TimestampType(r.db.DriverName())),
		`CREATE UNIQUE INDEX IF NOT EXISTS ` + IndexOneCheckIn + ` ON attendance_records (user_id, day) WHERE NOT is_checkout`,
		`CREATE UNIQUE INDEX IF NOT EXISTS ` + IndexOneCheckOut + ` ON attendance_records (user_id, day) WHERE is_checkout`,
		`CREATE INDEX IF NOT EXISTS idx_attendance_day ON attendance_records (day)`,
		`CREATE INDEX IF NOT EXISTS idx_attendance_user_occurred ON attendance_records (user_id, occurred_at)`,
	})
}

func (r *AttendanceRepo) Insert(ctx context.Context, rec *entity.Record) error {
	const q = `INSERT INTO attendance_records (` + recordColumns + `)
		VALUES (:id, :user_id, :user_name, :status, :method, :latitude, :longitude, :location_name,
		:occurred_at, :day, :is_checkout, :image_url, :created_at)`
	_, err := r.db.NamedExecContext(ctx, q, rec)
	return err
}

func (r *AttendanceRepo) findOne(ctx context.Context, userID, day string, checkout bool) (*entity.Record, error) {
	q := r.db.Rebind(`SELECT ` + recordColumns + ` FROM attendance_records
		WHERE user_id = ? AND day = ? AND is_checkout = ? LIMIT 1`)
	var rec entity.Record
	err := r.db.GetContext(ctx, &rec, q, userID, day, checkout)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// FindOpenCheckIn returns the user's check-in for day, or nil.
func (r *AttendanceRepo) FindOpenCheckIn(ctx context.Context, userID, day string) (*entity.Record, error) {
	return r.findOne(ctx, userID, day, false)
}

// FindCheckOut returns the user's check-out for day, or nil.
func (r *AttendanceRepo) FindCheckOut(ctx context.Context, userID, day string) (*entity.Record, error) {
	return r.findOne(ctx, userID, day, true)
}

// List returns records newest first.
func (r *AttendanceRepo) List(ctx context.Context, f entity.Filter) ([]entity.Record, error) {
	var (
		where []string
		args  []any
	)
	if f.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, f.UserID)
	}
	if f.FromDay != "" {
		where = append(where, "day >= ?")
		args = append(args, f.FromDay)
	}
	if f.ToDay != "" {
		where = append(where, "day <= ?")
		args = append(args, f.ToDay)
	}
	q := `SELECT ` + recordColumns + ` FROM attendance_records`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY occurred_at DESC, id DESC`
	if f.Limit > 0 {
		q += ` LIMIT ? OFFSET ?`
		args = append(args, f.Limit, f.Offset)
	}
	rows := []entity.Record{}
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(q), args...); err != nil {
		return nil, err
	}
	return rows, nil
}

// ListDays returns every record whose day lies in [from, to], oldest first.
func (r *AttendanceRepo) ListDays(ctx context.Context, from, to string) ([]entity.Record, error) {
	q := r.db.Rebind(`SELECT ` + recordColumns + ` FROM attendance_records
		WHERE day >= ? AND day <= ? ORDER BY occurred_at ASC, id ASC`)
	rows := []entity.Record{}
	if err := r.db.SelectContext(ctx, &rows, q, from, to); err != nil {
		return nil, err
	}
	return rows, nil
}

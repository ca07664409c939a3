package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

type Config struct {
	Driver         string
	DSN            string
	Name           string
	MaxConns       int
	Timeout        time.Duration
	TimeZone       string
	ClientEncoding string
}

// ErrMissingDSN is returned when DATABASE_URL is unset for a server driver.
var ErrMissingDSN = errors.New("DATABASE_URL is required for the postgres driver")

// ConfigFromEnv reads DB config from environment variables. Only the
// sqlite driver has a default location; postgres needs DATABASE_URL.
func ConfigFromEnv() (Config, error) {
	driver := os.Getenv("DATABASE_DRIVER")
	if driver == "" {
		driver = DriverPostgres
	}
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		if driver != DriverSQLite {
			return Config{}, ErrMissingDSN
		}
		dsn = "attendance.db"
	}
	max := 5
	tz := os.Getenv("DATABASE_TIMEZONE")
	enc := os.Getenv("DATABASE_CLIENT_ENCODING")
	return Config{
		Driver:         driver,
		DSN:            dsn,
		Name:           os.Getenv("DATABASE_NAME"),
		MaxConns:       max,
		Timeout:        5 * time.Second,
		TimeZone:       tz,
		ClientEncoding: enc,
	}, nil
}

// Connect opens a *sql.DB and verifies connectivity with a ping
func Connect(cfg Config) (*sql.DB, error) {
	if cfg.Driver == "" {
		cfg.Driver = DriverPostgres
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	dsn, err := resolveDSN(cfg)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if cfg.Driver == DriverSQLite {
		// sqlite allows a single writer; one connection avoids SQLITE_BUSY
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		max := cfg.MaxConns
		if max <= 0 {
			max = 5
		}
		db.SetMaxOpenConns(max)
		db.SetMaxIdleConns(max)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	if cfg.Driver == DriverSQLite {
		if err := applyPragmas(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
		return db, nil
	}
	// Apply session-level settings if provided
	if cfg.TimeZone != "" || cfg.ClientEncoding != "" {
		connCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		// Use a short-lived transactionless Exec for session settings
		if cfg.TimeZone != "" {
			if _, err := db.ExecContext(connCtx, "SET TIME ZONE "+quoteLiteral(cfg.TimeZone)); err != nil {
				// return error to surface misconfiguration
				db.Close()
				return nil, fmt.Errorf("set time zone: %w", err)
			}
		}
		if cfg.ClientEncoding != "" {
			if _, err := db.ExecContext(connCtx, "SET client_encoding = "+quoteLiteral(cfg.ClientEncoding)); err != nil {
				db.Close()
				return nil, fmt.Errorf("set client_encoding: %w", err)
			}
		}
	}
	return db, nil
}

// Open connects and wraps the handle with sqlx using the driver's bind style.
func Open(cfg Config) (*sqlx.DB, error) {
	db, err := Connect(cfg)
	if err != nil {
		return nil, err
	}
	driver := cfg.Driver
	if driver == "" {
		driver = DriverPostgres
	}
	return sqlx.NewDb(db, driver), nil
}

// resolveDSN applies cfg.Name as the database of a postgres URL DSN.
func resolveDSN(cfg Config) (string, error) {
	if cfg.Name == "" || cfg.Driver != DriverPostgres {
		return cfg.DSN, nil
	}
	if !strings.HasPrefix(cfg.DSN, "postgres://") && !strings.HasPrefix(cfg.DSN, "postgresql://") {
		return cfg.DSN + " dbname=" + cfg.Name, nil
	}
	u, err := url.Parse(cfg.DSN)
	if err != nil {
		return "", fmt.Errorf("parse DATABASE_URL: %w", err)
	}
	u.Path = "/" + cfg.Name
	return u.String(), nil
}

func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("apply %q: %w", p, err)
		}
	}
	return nil
}

// TimestampType returns the column type used for instants on the given driver.
// go-sqlite3 only decodes columns declared exactly TIMESTAMP/DATETIME/DATE.
func TimestampType(driver string) string {
	if driver == DriverSQLite {
		return "TIMESTAMP"
	}
	return "TIMESTAMPTZ"
}

// ExecAll runs DDL statements one at a time; not every driver accepts
// several statements in a single Exec.
func ExecAll(ctx context.Context, db *sqlx.DB, stmts []string) error {
	for _, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("exec %q: %w", firstLine(s), err)
		}
	}
	return nil
}

// IsUniqueViolation reports whether err is a unique constraint failure on
// either supported driver.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// quoteLiteral escapes single quotes and wraps the value in single quotes
// so it can be used safely in SET ... statements which don't accept
// parameter placeholders for the right-hand side.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// Package app assembles the services shared by the API server and the schema tool.
package app

import (
	"context"
	"fmt"
	"os"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/attendance"
	attendancerepo "github.com/ovaphlow/pitchfork/service-attendance-go/internal/attendance/repo"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/geocode"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/imagehost"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/schema"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/session"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/setting"
	settingrepo "github.com/ovaphlow/pitchfork/service-attendance-go/internal/setting/repo"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/user"
	userrepo "github.com/ovaphlow/pitchfork/service-attendance-go/internal/user/repo"
)

type Config struct {
	Session    session.Config
	Attendance attendance.Config
	Geocode    geocode.Config
	ImageHost  imagehost.Config
	// CORSAllowedOrigin is echoed back for browser clients; empty disables CORS.
	CORSAllowedOrigin string
	AdminEmail        string
	AdminPassword     string
}

// ConfigFromEnv gathers every package's ConfigFromEnv.
func ConfigFromEnv() (Config, error) {
	att, err := attendance.ConfigFromEnv()
	if err != nil {
		return Config{}, err
	}
	return Config{
		Session:           session.ConfigFromEnv(),
		Attendance:        att,
		Geocode:           geocode.ConfigFromEnv(),
		ImageHost:         imagehost.ConfigFromEnv(),
		CORSAllowedOrigin: os.Getenv("CORS_ALLOWED_ORIGIN"),
		AdminEmail:        os.Getenv("ADMIN_EMAIL"),
		AdminPassword:     os.Getenv("ADMIN_PASSWORD"),
	}, nil
}

type App struct {
	Config     Config
	Logger     *zap.SugaredLogger
	Users      *user.UserService
	Sessions   *session.Manager
	Hours      *setting.Service
	Attendance *attendance.Service
	Geocoder   *geocode.Client
	Images     *imagehost.Client
}

func New(db *sqlx.DB, cfg Config, logger *zap.SugaredLogger) (*App, error) {
	if err := schema.Load(); err != nil {
		return nil, fmt.Errorf("load schemas: %w", err)
	}
	users := user.NewUserService(db, userrepo.NewUserRepo(db), nil)
	sessions, err := session.NewManager(db, cfg.Session, users)
	if err != nil {
		return nil, err
	}
	hours := setting.NewService(settingrepo.NewRepo(db))
	geo := geocode.NewClient(cfg.Geocode)
	var reverser attendance.ReverseGeocoder
	if cfg.Geocode.APIKey != "" {
		reverser = geo
	}
	att := attendance.NewService(attendancerepo.NewAttendanceRepo(db), users, hours, reverser, cfg.Attendance, logger)
	return &App{
		Config:     cfg,
		Logger:     logger,
		Users:      users,
		Sessions:   sessions,
		Hours:      hours,
		Attendance: att,
		Geocoder:   geo,
		Images:     imagehost.NewClient(cfg.ImageHost),
	}, nil
}

// EnsureSchema creates every table and index and seeds default business hours.
func (a *App) EnsureSchema(ctx context.Context) error {
	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"users", a.Users.EnsureTable},
		{"revoked_tokens", a.Sessions.EnsureTable},
		{"settings", a.Hours.EnsureTable},
		{"attendance_records", a.Attendance.EnsureTable},
	}
	for _, s := range steps {
		if err := s.fn(ctx); err != nil {
			return fmt.Errorf("ensure %s: %w", s.name, err)
		}
	}
	if _, err := a.Hours.SeedDefaults(ctx); err != nil {
		return fmt.Errorf("seed business hours: %w", err)
	}
	return nil
}

// SeedAdmin creates the bootstrap admin from ADMIN_EMAIL/ADMIN_PASSWORD.
// It is a no-op when either is unset or the account exists.
func (a *App) SeedAdmin(ctx context.Context) error {
	if a.Config.AdminEmail == "" || a.Config.AdminPassword == "" {
		a.Logger.Infow("admin seed skipped; ADMIN_EMAIL or ADMIN_PASSWORD not set")
		return nil
	}
	created, err := a.Users.EnsureAdmin(ctx, a.Config.AdminEmail, a.Config.AdminPassword)
	if err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	if created {
		a.Logger.Infow("admin account created", "email", user.NormalizeEmail(a.Config.AdminEmail))
	}
	return nil
}

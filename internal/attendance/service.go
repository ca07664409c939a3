package attendance

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/attendance/entity"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/attendance/repo"
	settingentity "github.com/ovaphlow/pitchfork/service-attendance-go/internal/setting/entity"
	userentity "github.com/ovaphlow/pitchfork/service-attendance-go/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-attendance-go/pkg/apperror"
	"github.com/ovaphlow/pitchfork/service-attendance-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-attendance-go/pkg/utilities"
)

var (
	ErrAlreadyCheckedIn  = apperror.New(apperror.KindConflict, "already_checked_in", "already checked in today")
	ErrNotCheckedIn      = apperror.New(apperror.KindConflict, "not_checked_in", "no check-in recorded today")
	ErrAlreadyCheckedOut = apperror.New(apperror.KindConflict, "already_checked_out", "already checked out today")
	ErrClockSkew         = apperror.New(apperror.KindValidation, "timestamp_out_of_range", "timestamp is too far from server time")
	ErrInvalidRange      = apperror.New(apperror.KindValidation, "invalid_range", "invalid date range")
	// ErrPasswordResetRequired blocks accounts still holding an admin-issued temporary password.
	ErrPasswordResetRequired = apperror.New(apperror.KindForbidden, "password_reset_required", "change your temporary password before recording attendance")
)

const maxDashboardDays = 366

type Config struct {
	Location     *time.Location
	MaxClockSkew time.Duration
	// GeocodeTimeout bounds the best-effort place name lookup on submit.
	GeocodeTimeout time.Duration
}

// ConfigFromEnv reads ATTENDANCE_TIMEZONE (IANA name, default UTC).
func ConfigFromEnv() (Config, error) {
	cfg := Config{Location: time.UTC, MaxClockSkew: 10 * time.Minute, GeocodeTimeout: 3 * time.Second}
	if tz := os.Getenv("ATTENDANCE_TIMEZONE"); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return cfg, fmt.Errorf("ATTENDANCE_TIMEZONE: %w", err)
		}
		cfg.Location = loc
	}
	return cfg, nil
}

// Users is what the attendance service needs from the user service.
type Users interface {
	Get(ctx context.Context, id string) (*userentity.User, error)
	CountEmployees(ctx context.Context) (int, error)
}

type Hours interface {
	BusinessHours(ctx context.Context) (settingentity.BusinessHours, error)
}

// ReverseGeocoder resolves coordinates to a place name.
type ReverseGeocoder interface {
	Reverse(ctx context.Context, lat, lng float64) (string, error)
}

type Service struct {
	repo     *repo.AttendanceRepo
	users    Users
	hours    Hours
	geocoder ReverseGeocoder
	cfg      Config
	logger   *zap.SugaredLogger
	now      func() time.Time
}

// NewService wires the gateway. geocoder may be nil.
func NewService(r *repo.AttendanceRepo, users Users, hours Hours, geocoder ReverseGeocoder, cfg Config, logger *zap.SugaredLogger) *Service {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.MaxClockSkew <= 0 {
		cfg.MaxClockSkew = 10 * time.Minute
	}
	if cfg.GeocodeTimeout <= 0 {
		cfg.GeocodeTimeout = 3 * time.Second
	}
	return &Service{repo: r, users: users, hours: hours, geocoder: geocoder, cfg: cfg, logger: logger, now: time.Now}
}

// WithClock replaces the time source; used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) EnsureTable(ctx context.Context) error {
	return s.repo.EnsureTable(ctx)
}

// DayOf returns the calendar day of t in the configured zone.
func (s *Service) DayOf(t time.Time) string {
	return t.In(s.cfg.Location).Format(entity.DayLayout)
}

// Submission is a validated attendance write.
type Submission struct {
	UserID     string
	Status     string
	Method     string
	Location   *entity.Location
	Timestamp  *time.Time
	IsCheckout bool
	ImageURL   *string
}

// Submit records a check-in or check-out. The guard reads are an early,
// friendlier answer; the unique indexes are what make duplicates impossible.
func (s *Service) Submit(ctx context.Context, in Submission) (*entity.Record, error) {
	now := s.now().UTC().Truncate(time.Second)
	occurred := now
	if in.Timestamp != nil {
		occurred = in.Timestamp.UTC().Truncate(time.Second)
		if d := occurred.Sub(now); d > s.cfg.MaxClockSkew || d < -s.cfg.MaxClockSkew {
			return nil, ErrClockSkew
		}
	}
	if in.Method != entity.MethodBiometric && in.Method != entity.MethodManual {
		return nil, apperror.Validation("method must be biometric or manual")
	}
	switch in.Status {
	case "", entity.StatusPresent, entity.StatusAbsent, entity.StatusLate:
	default:
		return nil, apperror.Validation("status must be present, absent or late")
	}
	u, err := s.users.Get(ctx, in.UserID)
	if err != nil {
		return nil, err
	}
	if u.IsFirstLogin {
		return nil, ErrPasswordResetRequired
	}
	day := s.DayOf(occurred)

	checkIn, err := s.repo.FindOpenCheckIn(ctx, in.UserID, day)
	if err != nil {
		return nil, apperror.Store(err)
	}
	if !in.IsCheckout && checkIn != nil {
		return nil, ErrAlreadyCheckedIn
	}
	if in.IsCheckout {
		if checkIn == nil {
			return nil, ErrNotCheckedIn
		}
		out, err := s.repo.FindCheckOut(ctx, in.UserID, day)
		if err != nil {
			return nil, apperror.Store(err)
		}
		if out != nil {
			return nil, ErrAlreadyCheckedOut
		}
	}

	status := in.Status
	if status == "" {
		status, err = s.deriveStatus(ctx, occurred, in.IsCheckout)
		if err != nil {
			return nil, err
		}
	}

	rec := &entity.Record{
		ID:         utilities.NewSnowflakeID(),
		UserID:     u.ID,
		UserName:   u.Name,
		Status:     status,
		Method:     in.Method,
		OccurredAt: occurred,
		Day:        day,
		IsCheckout: in.IsCheckout,
		ImageURL:   nonEmpty(in.ImageURL),
		CreatedAt:  now,
	}
	if in.Location != nil {
		lat, lng := in.Location.Lat, in.Location.Lng
		rec.Latitude, rec.Longitude = &lat, &lng
		rec.LocationName = nonEmpty(in.Location.Name)
		if rec.LocationName == nil {
			rec.LocationName = s.lookupPlace(ctx, lat, lng)
		}
	}

	if err := s.repo.Insert(ctx, rec); err != nil {
		if database.IsUniqueViolation(err) {
			if in.IsCheckout {
				return nil, ErrAlreadyCheckedOut
			}
			return nil, ErrAlreadyCheckedIn
		}
		return nil, apperror.Store(err)
	}
	s.logger.Infow("attendance recorded", "user_id", rec.UserID, "day", rec.Day, "checkout", rec.IsCheckout, "status", rec.Status)
	return rec, nil
}

func (s *Service) deriveStatus(ctx context.Context, occurred time.Time, checkout bool) (string, error) {
	if checkout {
		return entity.StatusPresent, nil
	}
	bh, err := s.hours.BusinessHours(ctx)
	if err != nil {
		return "", err
	}
	if bh.IsLate(occurred.In(s.cfg.Location)) {
		return entity.StatusLate, nil
	}
	return entity.StatusPresent, nil
}

// lookupPlace never fails the write; a missing name is acceptable.
func (s *Service) lookupPlace(ctx context.Context, lat, lng float64) *string {
	if s.geocoder == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.GeocodeTimeout)
	defer cancel()
	name, err := s.geocoder.Reverse(ctx, lat, lng)
	if err != nil {
		s.logger.Warnw("reverse geocoding failed", "err", err)
		return nil
	}
	return nonEmpty(&name)
}

// Today reports the user's check-in and check-out for the current day.
func (s *Service) Today(ctx context.Context, userID string) (*entity.TodayStatus, error) {
	day := s.DayOf(s.now())
	in, err := s.repo.FindOpenCheckIn(ctx, userID, day)
	if err != nil {
		return nil, apperror.Store(err)
	}
	out, err := s.repo.FindCheckOut(ctx, userID, day)
	if err != nil {
		return nil, apperror.Store(err)
	}
	st := &entity.TodayStatus{Date: day, HasCheckedIn: in != nil, HasCheckedOut: out != nil}
	if in != nil {
		st.CheckIn = in.View()
	}
	if out != nil {
		st.CheckOut = out.View()
	}
	return st, nil
}

func (s *Service) History(ctx context.Context, f entity.Filter) ([]entity.Record, error) {
	if err := validRange(f.FromDay, f.ToDay); err != nil {
		return nil, err
	}
	rows, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, apperror.Store(err)
	}
	return rows, nil
}

// Dashboard aggregates [from, to]; empty bounds default to today.
func (s *Service) Dashboard(ctx context.Context, from, to string) (*entity.DashboardStats, error) {
	today := s.DayOf(s.now())
	if from == "" {
		from = today
	}
	if to == "" {
		to = from
	}
	if err := validRange(from, to); err != nil {
		return nil, err
	}
	days, err := dayRange(from, to)
	if err != nil {
		return nil, err
	}
	total, err := s.users.CountEmployees(ctx)
	if err != nil {
		return nil, err
	}
	bh, err := s.hours.BusinessHours(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.ListDays(ctx, from, to)
	if err != nil {
		return nil, apperror.Store(err)
	}
	return aggregate(from, to, days, total, bh, rows, s.cfg.Location), nil
}

func aggregate(from, to string, days []string, total int, bh settingentity.BusinessHours, rows []entity.Record, loc *time.Location) *entity.DashboardStats {
	stats := &entity.DashboardStats{From: from, To: to, TotalEmployees: total, Daily: make([]entity.DailyStats, len(days))}
	index := make(map[string]int, len(days))
	for i, d := range days {
		stats.Daily[i].Date = d
		index[d] = i
	}
	present := map[string]struct{}{}
	presentPerDay := make([]map[string]struct{}, len(days))
	for k := range rows {
		rec := &rows[k]
		i, ok := index[rec.Day]
		if !ok {
			continue
		}
		daily := &stats.Daily[i]
		local := rec.OccurredAt.In(loc)
		if rec.IsCheckout {
			stats.CheckOuts++
			daily.CheckOuts++
			if bh.IsEarlyDeparture(local) {
				stats.EarlyDepartures++
				daily.EarlyDepartures++
			}
			continue
		}
		stats.CheckIns++
		daily.CheckIns++
		switch {
		case rec.Status == entity.StatusAbsent:
			stats.Absent++
			continue
		case rec.Status == entity.StatusLate || bh.IsLate(local):
			stats.Late++
			daily.Late++
		default:
			stats.OnTime++
		}
		present[rec.UserID] = struct{}{}
		if presentPerDay[i] == nil {
			presentPerDay[i] = map[string]struct{}{}
		}
		presentPerDay[i][rec.UserID] = struct{}{}
	}
	stats.PresentEmployees = len(present)
	for i := range stats.Daily {
		stats.Daily[i].PresentEmployees = len(presentPerDay[i])
	}
	return stats
}

func validRange(from, to string) error {
	var f, t time.Time
	var err error
	if from != "" {
		if f, err = time.Parse(entity.DayLayout, from); err != nil {
			return apperror.WithDetails(ErrInvalidRange, []string{"from must be YYYY-MM-DD"})
		}
	}
	if to != "" {
		if t, err = time.Parse(entity.DayLayout, to); err != nil {
			return apperror.WithDetails(ErrInvalidRange, []string{"to must be YYYY-MM-DD"})
		}
	}
	if from != "" && to != "" && t.Before(f) {
		return apperror.WithDetails(ErrInvalidRange, []string{"to is before from"})
	}
	return nil
}

func dayRange(from, to string) ([]string, error) {
	f, _ := time.Parse(entity.DayLayout, from)
	t, _ := time.Parse(entity.DayLayout, to)
	n := int(t.Sub(f).Hours()/24) + 1
	if n > maxDashboardDays {
		return nil, apperror.WithDetails(ErrInvalidRange, []string{fmt.Sprintf("range exceeds %d days", maxDashboardDays)})
	}
	out := make([]string, 0, n)
	for d := f; !d.After(t); d = d.AddDate(0, 0, 1) {
		out = append(out, d.Format(entity.DayLayout))
	}
	return out, nil
}

func nonEmpty(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

package setting

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/setting/entity"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/setting/repo"
	"github.com/ovaphlow/pitchfork/service-attendance-go/pkg/apperror"
)

// Service encapsulates business logic for settings and depends on a repo.
type Service struct {
	repo *repo.Repo
	now  func() time.Time
}

// NewService constructs a Service with the provided repository.
func NewService(r *repo.Repo) *Service {
	return &Service{repo: r, now: time.Now}
}

// WithClock replaces the time source; used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// sentinel errors for common failure modes
var (
	ErrVersionConflict = apperror.New(apperror.KindConflict, "version_conflict", "business hours were changed by someone else; reload and retry")
	ErrInvalidHours    = apperror.New(apperror.KindValidation, "invalid_business_hours", "invalid business hours")
)

func (s *Service) EnsureTable(ctx context.Context) error {
	return s.repo.EnsureTable(ctx)
}

// SeedDefaults stores the default business hours when none exist yet.
func (s *Service) SeedDefaults(ctx context.Context) (bool, error) {
	st, err := toSetting(entity.DefaultBusinessHours())
	if err != nil {
		return false, err
	}
	st.Version = 1
	st.UpdatedAt = s.now().UTC().Truncate(time.Second)
	return s.repo.Create(ctx, st)
}

// BusinessHours returns the stored hours, or the defaults at version 1 when
// nothing was saved yet.
func (s *Service) BusinessHours(ctx context.Context) (entity.BusinessHours, error) {
	st, err := s.repo.GetByID(ctx, entity.KeyBusinessHours)
	if errors.Is(err, sql.ErrNoRows) {
		bh := entity.DefaultBusinessHours()
		bh.Version = 1
		return bh, nil
	}
	if err != nil {
		return entity.BusinessHours{}, apperror.Store(err)
	}
	var bh entity.BusinessHours
	if err := st.Value.Unmarshal(&bh); err != nil {
		return entity.BusinessHours{}, fmt.Errorf("decode business hours: %w", err)
	}
	bh.Version = st.Version
	bh.UpdatedAt = st.UpdatedAt
	bh.UpdatedBy = st.UpdatedBy
	return bh, nil
}

// UpdateBusinessHours replaces the hours using optimistic locking: in.Version
// must match the stored version.
func (s *Service) UpdateBusinessHours(ctx context.Context, in entity.BusinessHours, by string) (entity.BusinessHours, error) {
	if err := in.Validate(); err != nil {
		return entity.BusinessHours{}, apperror.WithDetails(ErrInvalidHours, []string{err.Error()})
	}
	if _, err := s.SeedDefaults(ctx); err != nil {
		return entity.BusinessHours{}, apperror.Store(err)
	}
	current, err := s.BusinessHours(ctx)
	if err != nil {
		return entity.BusinessHours{}, err
	}
	if in.Version != current.Version {
		return entity.BusinessHours{}, ErrVersionConflict
	}
	st, err := toSetting(in)
	if err != nil {
		return entity.BusinessHours{}, err
	}
	st.Version = in.Version + 1
	st.UpdatedAt = s.now().UTC().Truncate(time.Second)
	st.UpdatedBy = by
	rows, err := s.repo.Update(ctx, st, in.Version)
	if err != nil {
		return entity.BusinessHours{}, apperror.Store(err)
	}
	if rows == 0 {
		// lost a race after the version check above
		return entity.BusinessHours{}, ErrVersionConflict
	}
	in.Version = st.Version
	in.UpdatedAt = st.UpdatedAt
	in.UpdatedBy = by
	return in, nil
}

func toSetting(bh entity.BusinessHours) (*entity.Setting, error) {
	raw, err := json.Marshal(struct {
		CheckInStart     string `json:"checkInStart"`
		CheckOutEnd      string `json:"checkOutEnd"`
		LateGraceMinutes int    `json:"lateGraceMinutes"`
	}{bh.CheckInStart, bh.CheckOutEnd, bh.LateGraceMinutes})
	if err != nil {
		return nil, err
	}
	return &entity.Setting{ID: entity.KeyBusinessHours, Category: entity.CategoryAttendance, Value: raw}, nil
}

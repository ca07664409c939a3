package setting

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/setting/entity"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/setting/repo"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/testutil"
)

func newService(t *testing.T) *Service {
	t.Helper()
	db := testutil.NewSQLite(t)
	svc := NewService(repo.NewRepo(db)).WithClock(func() time.Time {
		return time.Date(2025, 3, 3, 7, 0, 0, 0, time.UTC)
	})
	require.NoError(t, svc.EnsureTable(context.Background()))
	return svc
}

func TestDefaultsBeforeSeed(t *testing.T) {
	svc := newService(t)
	bh, err := svc.BusinessHours(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "09:00", bh.CheckInStart)
	assert.Equal(t, "17:00", bh.CheckOutEnd)
	assert.Equal(t, 15, bh.LateGraceMinutes)
	assert.Equal(t, int64(1), bh.Version)
}

func TestSeedIsIdempotent(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	created, err := svc.SeedDefaults(ctx)
	require.NoError(t, err)
	assert.True(t, created)
	created, err = svc.SeedDefaults(ctx)
	require.NoError(t, err)
	assert.False(t, created)
}

func TestSeededHoursReadBack(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	_, err := svc.SeedDefaults(ctx)
	require.NoError(t, err)

	bh, err := svc.BusinessHours(ctx)
	require.NoError(t, err)
	assert.Equal(t, "09:00", bh.CheckInStart)
	assert.Equal(t, 15, bh.LateGraceMinutes)
	assert.Equal(t, int64(1), bh.Version)
	assert.True(t, bh.UpdatedAt.Equal(time.Date(2025, 3, 3, 7, 0, 0, 0, time.UTC)), bh.UpdatedAt)

	bh.CheckInStart = "07:45"
	got, err := svc.UpdateBusinessHours(ctx, bh, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)

	bh, err = svc.BusinessHours(ctx)
	require.NoError(t, err)
	assert.Equal(t, "07:45", bh.CheckInStart)
	assert.Equal(t, "admin-1", bh.UpdatedBy)
}

func TestUpdateWithOptimisticLock(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	next := entity.BusinessHours{CheckInStart: "08:30", CheckOutEnd: "16:30", LateGraceMinutes: 5, Version: 1}
	got, err := svc.UpdateBusinessHours(ctx, next, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)
	assert.Equal(t, "admin-1", got.UpdatedBy)

	// a second writer still holding version 1 loses
	_, err = svc.UpdateBusinessHours(ctx, next, "admin-2")
	assert.ErrorIs(t, err, ErrVersionConflict)

	stored, err := svc.BusinessHours(ctx)
	require.NoError(t, err)
	assert.Equal(t, "08:30", stored.CheckInStart)
	assert.Equal(t, 5, stored.LateGraceMinutes)
	assert.Equal(t, int64(2), stored.Version)
}

func TestUpdateRejectsInvalidHours(t *testing.T) {
	svc := newService(t)
	_, err := svc.UpdateBusinessHours(context.Background(),
		entity.BusinessHours{CheckInStart: "18:00", CheckOutEnd: "09:00", LateGraceMinutes: 0, Version: 1}, "a")
	assert.ErrorIs(t, err, ErrInvalidHours)
}

func TestLateAndEarlyClassification(t *testing.T) {
	bh := entity.DefaultBusinessHours()
	at := func(h, m int) time.Time { return time.Date(2025, 3, 3, h, m, 0, 0, time.UTC) }
	assert.False(t, bh.IsLate(at(9, 15)))
	assert.True(t, bh.IsLate(at(9, 16)))
	assert.True(t, bh.IsEarlyDeparture(at(16, 59)))
	assert.False(t, bh.IsEarlyDeparture(at(17, 0)))
}

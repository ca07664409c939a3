package workflow

import (
	"context"

	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/attendance"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/attendance/entity"
)

// ServiceRecords runs the engine against an in-process attendance service.
type ServiceRecords struct {
	Svc *attendance.Service
}

func (r ServiceRecords) Today(ctx context.Context, userID string) (*entity.TodayStatus, error) {
	return r.Svc.Today(ctx, userID)
}

func (r ServiceRecords) Submit(ctx context.Context, s Submission) (*entity.RecordView, error) {
	ts := s.Timestamp
	rec, err := r.Svc.Submit(ctx, attendance.Submission{
		UserID:     s.UserID,
		Status:     s.Status,
		Method:     s.Method,
		Location:   s.Location,
		Timestamp:  &ts,
		IsCheckout: s.IsCheckout,
		ImageURL:   s.ImageURL,
	})
	if err != nil {
		return nil, err
	}
	return rec.View(), nil
}

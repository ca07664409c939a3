package client

import (
	"context"

	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/attendance"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/attendance/entity"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/workflow"
)

// Remote adapts the API to the workflow engine using the managed session's
// token. It serves as Records, Geocoder and ImageUploader.
type Remote struct {
	Sessions *SessionManager
}

var (
	_ workflow.Records       = Remote{}
	_ workflow.Geocoder      = Remote{}
	_ workflow.ImageUploader = Remote{}
)

func (r Remote) Today(ctx context.Context, userID string) (*entity.TodayStatus, error) {
	token, err := r.Sessions.Token()
	if err != nil {
		return nil, err
	}
	st, err := r.Sessions.API().Today(ctx, token, userID)
	return st, r.Sessions.Check(err)
}

func (r Remote) Submit(ctx context.Context, s workflow.Submission) (*entity.RecordView, error) {
	token, err := r.Sessions.Token()
	if err != nil {
		return nil, err
	}
	ts := s.Timestamp
	rec, err := r.Sessions.API().SubmitAttendance(ctx, token, attendance.SubmitRequest{
		UserID:     s.UserID,
		Status:     s.Status,
		Method:     s.Method,
		Location:   s.Location,
		Timestamp:  &ts,
		IsCheckout: s.IsCheckout,
		ImageURL:   s.ImageURL,
	})
	return rec, r.Sessions.Check(err)
}

func (r Remote) Reverse(ctx context.Context, lat, lng float64) (string, error) {
	token, err := r.Sessions.Token()
	if err != nil {
		return "", err
	}
	return r.Sessions.API().ReverseGeocode(ctx, token, lat, lng)
}

func (r Remote) Upload(ctx context.Context, filename string, image []byte) (string, error) {
	token, err := r.Sessions.Token()
	if err != nil {
		return "", err
	}
	u, err := r.Sessions.API().UploadImage(ctx, token, filename, image)
	return u, r.Sessions.Check(err)
}
